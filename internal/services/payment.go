package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"FanatiquePay/internal/chain"
	"FanatiquePay/internal/db"
	"FanatiquePay/internal/events"
	"FanatiquePay/internal/metrics"
	"FanatiquePay/internal/models"
	"FanatiquePay/internal/payments"
	"FanatiquePay/internal/pricing"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// latest instant stored for a payment deadline (9999-12-31T23:59:59Z)
const maxDeadlineUnix = 253402300799

// PayOrder settles a pending order on chain and marks it paid.
//
// The order row is locked, checked and moved to settling in one transaction, so
// a concurrent call for the same order fails with ErrInvalidState instead of
// submitting a second settlement. When the chain rejects the payment the order
// goes back to pending payment. When the outcome is unknown the order stays
// settling and a *PaymentPendingError is returned.
func (s OrderService) PayOrder(ctx context.Context, req PayOrderRequest) (*PayOrderResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	payReq, err := s.parseAuthorization(req)
	if err != nil {
		return nil, err
	}

	var order *models.Order
	err = s.DB.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		o, err := s.Orders.GetOrderForUpdate(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}
		if o.UserID != req.UserID {
			return ErrOwnershipMismatch
		}
		if o.Status != models.OrderPendingPayment {
			return fmt.Errorf("%w: order %d is %s", ErrInvalidState, o.ID, o.Status)
		}
		if !pricing.WithinTolerance(o.TotalFanToken, *req.Amount, s.amountTolerance()) {
			return fmt.Errorf("%w: order total %s, amount %s", ErrAmountMismatch, o.TotalFanToken, req.Amount)
		}
		if err := s.Orders.MarkSettling(ctx, tx, o.ID, payReq.Buyer.Hex(), deadlineTime(payReq.Deadline)); err != nil {
			return err
		}
		o.Status = models.OrderSettling
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	log := s.logger().With(zap.Int64("order_id", order.ID))
	// writes after broadcast must land even if the caller goes away
	bg := context.WithoutCancel(ctx)

	hash, err := s.Gateway.Submit(ctx, payReq)
	if hash == "" {
		log.Warn("settlement not submitted", zap.Error(err))
		s.release(bg, order.ID)
		outcome := metrics.OutcomeRejected
		if !errors.Is(err, ErrPaymentRejected) {
			outcome = metrics.OutcomeUnavailable
		}
		metrics.Settlements.WithLabelValues(outcome).Inc()
		return nil, err
	}
	log = log.With(zap.String("tx_hash", hash))

	if herr := s.recordHash(bg, order.ID, hash); herr != nil {
		log.Error("store settlement hash failed", zap.Error(herr))
		metrics.Settlements.WithLabelValues(metrics.OutcomeReconcile).Inc()
		return nil, &PaymentPendingError{OrderID: order.ID, TxHash: hash, Err: fmt.Errorf("%w: %w", ErrReconciliationRequired, herr)}
	}
	if err != nil {
		log.Warn("settlement outcome unknown", zap.Error(err))
		return nil, s.pending(bg, order, hash, err)
	}

	start := time.Now()
	settlement, err := s.Gateway.AwaitConfirmation(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrPaymentRejected) {
			log.Warn("settlement reverted", zap.Error(err))
			s.release(bg, order.ID)
			metrics.Settlements.WithLabelValues(metrics.OutcomeRejected).Inc()
			return nil, err
		}
		log.Warn("settlement not confirmed", zap.Error(err))
		return nil, s.pending(bg, order, hash, err)
	}
	metrics.SettlementDuration.Observe(time.Since(start).Seconds())

	paid, err := s.CompleteSettlement(bg, order.ID, hash)
	if err != nil {
		log.Error("mark order paid failed after settlement", zap.Error(err))
		metrics.Settlements.WithLabelValues(metrics.OutcomeReconcile).Inc()
		return nil, &PaymentPendingError{OrderID: order.ID, TxHash: hash, Err: fmt.Errorf("%w: %w", ErrReconciliationRequired, err)}
	}

	metrics.Settlements.WithLabelValues(metrics.OutcomePaid).Inc()
	log.Info("order paid", zap.Uint64("block", settlement.BlockNumber))
	return &PayOrderResult{
		OrderID:         paid.ID,
		Status:          paid.Status,
		TransactionHash: hash,
		BlockNumber:     settlement.BlockNumber,
	}, nil
}

func (s OrderService) parseAuthorization(req PayOrderRequest) (payments.Request, error) {
	if !common.IsHexAddress(req.BuyerAddress) {
		return payments.Request{}, invalidField("buyerAddress", "not a hex address")
	}
	if !req.Amount.IsPositive() {
		return payments.Request{}, invalidField("amount", "must be positive")
	}
	amount, err := payments.ToBaseUnits(*req.Amount, s.TokenDecimals)
	if err != nil {
		return payments.Request{}, invalidField("amount", err.Error())
	}
	deadline, err := payments.ParseUint256(req.Deadline)
	if err != nil {
		return payments.Request{}, invalidField("deadline", err.Error())
	}
	tokenID, err := payments.ParseUint256(req.TokenID)
	if err != nil {
		return payments.Request{}, invalidField("tokenId", err.Error())
	}
	sig, err := payments.DecodeHex(req.Signature)
	if err != nil || len(sig) == 0 {
		return payments.Request{}, invalidField("signature", "not hex bytes")
	}
	r, err := payments.DecodeBytes32(req.Permit.R)
	if err != nil {
		return payments.Request{}, invalidField("permit.r", err.Error())
	}
	sv, err := payments.DecodeBytes32(req.Permit.S)
	if err != nil {
		return payments.Request{}, invalidField("permit.s", err.Error())
	}
	permitDeadline, err := payments.ParseUint256(req.Permit.Deadline)
	if err != nil {
		return payments.Request{}, invalidField("permit.deadline", err.Error())
	}

	return payments.Request{
		OrderID:   req.OrderID,
		Buyer:     common.HexToAddress(req.BuyerAddress),
		Amount:    amount,
		Deadline:  deadline,
		TokenID:   tokenID,
		Signature: sig,
		Permit: chain.PermitData{
			V:        *req.Permit.V,
			R:        r,
			S:        sv,
			Deadline: permitDeadline,
		},
	}, nil
}

func (s OrderService) pending(ctx context.Context, order *models.Order, hash string, err error) error {
	metrics.Settlements.WithLabelValues(metrics.OutcomePending).Inc()
	order.TransactionHash = &hash
	s.publish(ctx, events.OrderSettling, order)
	return &PaymentPendingError{OrderID: order.ID, TxHash: hash, Err: err}
}

func (s OrderService) recordHash(ctx context.Context, orderID int64, hash string) error {
	return s.DB.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		return s.Orders.SetTransactionHash(ctx, tx, orderID, hash)
	})
}

// release puts an order whose settlement never happened back to pending payment.
func (s OrderService) release(ctx context.Context, orderID int64) {
	if _, err := s.ReleaseSettlement(ctx, orderID, ""); err != nil {
		s.logger().Error("release settlement failed; order needs manual resolution",
			zap.Int64("order_id", orderID),
			zap.Error(err),
		)
	}
}

func deadlineTime(d *big.Int) time.Time {
	if !d.IsInt64() || d.Int64() > maxDeadlineUnix {
		return time.Unix(maxDeadlineUnix, 0).UTC()
	}
	return time.Unix(d.Int64(), 0).UTC()
}
