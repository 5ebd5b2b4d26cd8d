package worker

import (
	"context"
	"errors"
	"math/big"
	"time"

	"FanatiquePay/internal/metrics"
	"FanatiquePay/internal/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

const (
	OutcomePaid     = "paid"
	OutcomeReleased = "released"
	OutcomeWaiting  = "waiting"
	OutcomeManual   = "manual"
)

type Settlements interface {
	PendingSettlements(ctx context.Context, limit int) ([]*models.Order, error)
	CompleteSettlement(ctx context.Context, orderID int64, txHash string) (*models.Order, error)
	ReleaseSettlement(ctx context.Context, orderID int64, txHash string) (*models.Order, error)
}

type ChainReader interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// Reconciler resolves orders left settling after payOrder could not observe
// the outcome of their transaction.
type Reconciler struct {
	Orders              Settlements
	Chain               ChainReader
	Interval            time.Duration
	BatchSize           int
	Grace               time.Duration
	WSEndpoints         []string
	WSFailoverThreshold int
	Logger              *zap.Logger

	wake chan struct{}
}

func (w *Reconciler) Run(ctx context.Context) {
	w.wake = make(chan struct{}, 1)
	go w.RunWS(ctx)

	interval := w.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := w.SyncOnce(ctx); err != nil {
			w.logger().Warn("reconcile pass failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-w.wake:
		}
	}
}

// Nudge requests an extra pass without waiting for the next tick.
func (w *Reconciler) Nudge() {
	if w.wake == nil {
		return
	}
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Reconciler) SyncOnce(ctx context.Context) error {
	limit := w.BatchSize
	if limit <= 0 {
		limit = 100
	}
	orders, err := w.Orders.PendingSettlements(ctx, limit)
	if err != nil {
		return err
	}
	metrics.SettlingOrders.Set(float64(len(orders)))
	if len(orders) == 0 {
		return nil
	}

	head, err := w.Chain.HeaderByNumber(ctx, nil)
	if err != nil {
		return err
	}
	headTime := time.Unix(int64(head.Time), 0).UTC()

	for _, order := range orders {
		outcome, err := w.reconcileOrder(ctx, order, headTime)
		if err != nil {
			w.logger().Warn("reconcile order failed", zap.Int64("order_id", order.ID), zap.Error(err))
			continue
		}
		metrics.Reconciled.WithLabelValues(outcome).Inc()
	}
	return nil
}

func (w *Reconciler) reconcileOrder(ctx context.Context, order *models.Order, headTime time.Time) (string, error) {
	log := w.logger().With(zap.Int64("order_id", order.ID))
	if order.TransactionHash == nil || *order.TransactionHash == "" {
		// a transaction may have been broadcast without its hash being stored
		log.Warn("settling order has no transaction hash; resolve it manually")
		return OutcomeManual, nil
	}
	hash := *order.TransactionHash
	log = log.With(zap.String("tx_hash", hash))

	receipt, err := w.Chain.TransactionReceipt(ctx, common.HexToHash(hash))
	switch {
	case err == nil && receipt.Status == types.ReceiptStatusSuccessful:
		if _, err := w.Orders.CompleteSettlement(ctx, order.ID, hash); err != nil {
			return "", err
		}
		log.Info("settlement confirmed")
		return OutcomePaid, nil
	case err == nil:
		if _, err := w.Orders.ReleaseSettlement(ctx, order.ID, hash); err != nil {
			return "", err
		}
		log.Info("settlement reverted; order released")
		return OutcomeReleased, nil
	case errors.Is(err, ethereum.NotFound):
		if w.expired(order, headTime) {
			// the contract refuses payments past their deadline, so this one can no longer land
			if _, err := w.Orders.ReleaseSettlement(ctx, order.ID, hash); err != nil {
				return "", err
			}
			log.Info("settlement expired without receipt; order released")
			return OutcomeReleased, nil
		}
		return OutcomeWaiting, nil
	default:
		return "", err
	}
}

func (w *Reconciler) expired(order *models.Order, headTime time.Time) bool {
	if order.PaymentDeadline == nil {
		return false
	}
	return headTime.After(order.PaymentDeadline.Add(w.Grace))
}

func (w *Reconciler) logger() *zap.Logger {
	if w.Logger == nil {
		return zap.NewNop()
	}
	return w.Logger
}
