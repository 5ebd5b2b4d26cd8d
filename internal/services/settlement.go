package services

import (
	"context"
	"fmt"
	"strings"

	"FanatiquePay/internal/db"
	"FanatiquePay/internal/events"
	"FanatiquePay/internal/models"

	"go.uber.org/zap"
)

// CompleteSettlement marks a settling order paid with txHash. Calling it again
// for an order already paid with the same hash returns the order unchanged.
func (s OrderService) CompleteSettlement(ctx context.Context, orderID int64, txHash string) (*models.Order, error) {
	if txHash == "" {
		return nil, missingField("transactionHash")
	}
	var order *models.Order
	changed := false
	err := s.DB.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		o, err := s.Orders.GetOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		switch o.Status {
		case models.OrderPaid:
			if o.TransactionHash == nil || !sameHash(*o.TransactionHash, txHash) {
				return fmt.Errorf("%w: order %d already paid by another transaction", ErrInvalidState, o.ID)
			}
			order = o
			return nil
		case models.OrderSettling:
			if o.TransactionHash != nil && !sameHash(*o.TransactionHash, txHash) {
				return fmt.Errorf("%w: order %d is settling with transaction %s", ErrInvalidState, o.ID, *o.TransactionHash)
			}
		default:
			return fmt.Errorf("%w: order %d is %s", ErrInvalidState, o.ID, o.Status)
		}
		if err := s.Orders.UpdateOrderStatus(ctx, tx, o.ID, models.OrderPaid, txHash); err != nil {
			return err
		}
		o.Status = models.OrderPaid
		o.TransactionHash = &txHash
		order = o
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.publish(ctx, events.OrderPaid, order)
	}
	return order, nil
}

// ReleaseSettlement returns a settling order to pending payment. A non-empty
// txHash must match the hash recorded on the order.
func (s OrderService) ReleaseSettlement(ctx context.Context, orderID int64, txHash string) (*models.Order, error) {
	var order *models.Order
	err := s.DB.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		o, err := s.Orders.GetOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.Status != models.OrderSettling {
			return fmt.Errorf("%w: order %d is %s", ErrInvalidState, o.ID, o.Status)
		}
		if txHash != "" && (o.TransactionHash == nil || !sameHash(*o.TransactionHash, txHash)) {
			return fmt.Errorf("%w: order %d settlement changed", ErrInvalidState, o.ID)
		}
		if err := s.Orders.ReleaseSettlement(ctx, tx, o.ID); err != nil {
			return err
		}
		o.Status = models.OrderPendingPayment
		o.TransactionHash = nil
		o.BuyerAddress = nil
		o.PaymentDeadline = nil
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger().Info("settlement released", zap.Int64("order_id", orderID))
	s.publish(ctx, events.OrderReleased, order)
	return order, nil
}

// ResolveSettlement is the administrative way out of the settling state,
// used when the reconciler cannot decide on its own.
func (s OrderService) ResolveSettlement(ctx context.Context, req ResolveRequest) (*models.Order, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	switch req.Outcome {
	case OutcomeRelease:
		return s.ReleaseSettlement(ctx, req.OrderID, "")
	case OutcomePaid:
		hash := strings.TrimSpace(req.TransactionHash)
		if hash == "" {
			var order *models.Order
			err := s.DB.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
				var err error
				order, err = s.Orders.GetOrder(ctx, tx, req.OrderID)
				return err
			})
			if err != nil {
				return nil, err
			}
			if order.TransactionHash == nil {
				return nil, missingField("transactionHash")
			}
			hash = *order.TransactionHash
		}
		return s.CompleteSettlement(ctx, req.OrderID, hash)
	default:
		return nil, invalidField("outcome", "must be paid or release")
	}
}

func (s OrderService) PendingSettlements(ctx context.Context, limit int) ([]*models.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	var orders []*models.Order
	err := s.DB.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		orders, err = s.Orders.ListSettling(ctx, tx, limit)
		return err
	})
	return orders, err
}

func sameHash(a, b string) bool {
	return strings.EqualFold(a, b)
}
