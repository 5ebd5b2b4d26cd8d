package services

import (
	"context"
	"fmt"
	"time"

	"FanatiquePay/internal/db"
	"FanatiquePay/internal/events"
	"FanatiquePay/internal/metrics"
	"FanatiquePay/internal/models"
	"FanatiquePay/internal/payments"
	"FanatiquePay/internal/pricing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	DefaultTotalTolerance  = decimal.New(1, -2)
	DefaultAmountTolerance = decimal.New(1, -3)
)

type OrderRepository interface {
	CreateOrder(ctx context.Context, tx db.Tx, order *models.Order, lines []models.OrderLine) (int64, error)
	GetOrder(ctx context.Context, q db.Tx, orderID int64) (*models.Order, error)
	GetOrderForUpdate(ctx context.Context, tx db.Tx, orderID int64) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, tx db.Tx, orderID int64, status models.OrderStatus, txHash string) error
	MarkSettling(ctx context.Context, tx db.Tx, orderID int64, buyer string, deadline time.Time) error
	SetTransactionHash(ctx context.Context, tx db.Tx, orderID int64, txHash string) error
	ReleaseSettlement(ctx context.Context, tx db.Tx, orderID int64) error
	ListSettling(ctx context.Context, q db.Tx, limit int) ([]*models.Order, error)
}

type PriceQuoter interface {
	Quote(ctx context.Context, lines []models.CartLine) (pricing.Totals, error)
}

type PaymentGateway interface {
	Submit(ctx context.Context, req payments.Request) (string, error)
	AwaitConfirmation(ctx context.Context, txHash string) (payments.Settlement, error)
}

type OrderService struct {
	DB              db.TxRunner
	Orders          OrderRepository
	Pricing         PriceQuoter
	Gateway         PaymentGateway
	Events          events.Publisher
	Logger          *zap.Logger
	// nil tolerances fall back to the defaults; zero means exact match
	TotalTolerance  *decimal.Decimal
	AmountTolerance *decimal.Decimal
	TokenDecimals   int32
}

func (s OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*models.Order, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	totals, err := s.Pricing.Quote(ctx, req.Lines)
	if err != nil {
		return nil, err
	}

	tol := s.totalTolerance()
	if !pricing.WithinTolerance(totals.Real, *req.TotalReal, tol) {
		return nil, fmt.Errorf("%w: totalReal computed %s, submitted %s", ErrTotalMismatch, totals.Real, req.TotalReal)
	}
	if !pricing.WithinTolerance(totals.FanToken, *req.TotalFanToken, tol) {
		return nil, fmt.Errorf("%w: totalFanToken computed %s, submitted %s", ErrTotalMismatch, totals.FanToken, req.TotalFanToken)
	}

	order := &models.Order{
		EstablishmentID: req.EstablishmentID,
		UserID:          req.UserID,
		MatchID:         req.MatchID,
		Status:          models.OrderPendingPayment,
		TotalReal:       totals.Real,
		TotalFanToken:   totals.FanToken,
	}
	lines := make([]models.OrderLine, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = models.OrderLine{ProductID: l.ProductID, Quantity: l.Quantity}
	}

	err = s.DB.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		_, err := s.Orders.CreateOrder(ctx, tx, order, lines)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.OrdersCreated.Inc()
	s.logger().Info("order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", order.UserID),
		zap.String("total_fantoken", order.TotalFanToken.String()),
	)
	s.publish(ctx, events.OrderCreated, order)
	return order, nil
}

// GetOrder returns the order only to the user who placed it.
func (s OrderService) GetOrder(ctx context.Context, orderID, userID int64) (*models.Order, error) {
	if orderID == 0 {
		return nil, missingField("orderId")
	}
	if userID == 0 {
		return nil, missingField("userId")
	}
	var order *models.Order
	err := s.DB.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		order, err = s.Orders.GetOrder(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrOwnershipMismatch
	}
	return order, nil
}

func (s OrderService) Quote(ctx context.Context, req QuoteRequest) (pricing.Totals, error) {
	if err := validateRequest(req); err != nil {
		return pricing.Totals{}, err
	}
	return s.Pricing.Quote(ctx, req.Lines)
}

func (s OrderService) publish(ctx context.Context, eventType string, order *models.Order) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(context.WithoutCancel(ctx), events.NewOrderEvent(eventType, order)); err != nil {
		s.logger().Warn("publish order event failed",
			zap.String("event", eventType),
			zap.Int64("order_id", order.ID),
			zap.Error(err),
		)
	}
}

func (s OrderService) totalTolerance() decimal.Decimal {
	if s.TotalTolerance == nil {
		return DefaultTotalTolerance
	}
	return *s.TotalTolerance
}

func (s OrderService) amountTolerance() decimal.Decimal {
	if s.AmountTolerance == nil {
		return DefaultAmountTolerance
	}
	return *s.AmountTolerance
}

func (s OrderService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
