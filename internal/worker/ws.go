package worker

import (
	"context"
	"time"

	"FanatiquePay/internal/chain"

	"go.uber.org/zap"
)

// RunWS subscribes to new heads and nudges a reconcile pass for each block.
// It rotates to the next endpoint after WSFailoverThreshold consecutive failures.
func (w *Reconciler) RunWS(ctx context.Context) {
	endpoints := w.WSEndpoints
	if len(endpoints) == 0 {
		w.logger().Info("ws disabled: no ws endpoints")
		return
	}
	threshold := w.WSFailoverThreshold
	if threshold <= 0 {
		threshold = 3
	}

	idx, failures := 0, 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		endpoint := endpoints[idx]
		if err := w.consumeHeads(ctx, endpoint); err != nil && ctx.Err() == nil {
			failures++
			w.logger().Warn("ws stream ended", zap.String("endpoint", endpoint), zap.Error(err))
			if failures >= threshold && len(endpoints) > 1 {
				idx = (idx + 1) % len(endpoints)
				failures = 0
				w.logger().Info("ws failover", zap.String("endpoint", endpoints[idx]))
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(3 * time.Second):
		}
	}
}

func (w *Reconciler) consumeHeads(ctx context.Context, endpoint string) error {
	client := chain.NewWSClient(endpoint)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			client.Close()
		case <-done:
		}
	}()

	if err := client.SubscribeNewHeads(ctx); err != nil {
		return err
	}
	w.logger().Info("ws connected", zap.String("endpoint", endpoint))

	for {
		msg, err := client.Read(ctx)
		if err != nil {
			return err
		}
		head, ok, err := chain.ParseWSHead(msg)
		if err != nil {
			w.logger().Warn("ws parse failed", zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		w.logger().Debug("new head", zap.Uint64("number", head.Number))
		w.Nudge()
	}
}
