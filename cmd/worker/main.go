package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"FanatiquePay/internal/chain"
	"FanatiquePay/internal/config"
	"FanatiquePay/internal/db"
	"FanatiquePay/internal/events"
	"FanatiquePay/internal/logging"
	"FanatiquePay/internal/metrics"
	"FanatiquePay/internal/services"
	"FanatiquePay/internal/store"
	"FanatiquePay/internal/worker"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DB.DSN, cfg.DB.MaxConns)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	defer pool.Close()

	rpc, err := chain.DialMulti(ctx, cfg.Chain.RPCEndpoints, cfg.Chain.RPCFailoverThreshold)
	if err != nil {
		logger.Fatal("rpc dial failed", zap.Error(err))
	}
	defer rpc.Close()
	rpc.OnRotate = func(url string) {
		metrics.RPCFailovers.Inc()
		logger.Warn("rpc failover", zap.String("endpoint", url))
	}

	publisher := events.New(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
	defer publisher.Close()

	// the reconciler only moves settling orders, so no pricing or gateway here
	orderSvc := services.OrderService{
		DB:     db.New(pool),
		Orders: store.New(),
		Events: publisher,
		Logger: logger,
	}

	wsEndpoints := cfg.Chain.WSEndpoints
	if len(wsEndpoints) == 0 {
		for _, ep := range cfg.Chain.RPCEndpoints {
			if ws := chain.DefaultWSEndpoint(ep); ws != "" {
				wsEndpoints = append(wsEndpoints, ws)
			}
		}
	}

	w := &worker.Reconciler{
		Orders:              orderSvc,
		Chain:               rpc,
		Interval:            cfg.WorkerInterval(),
		BatchSize:           cfg.Worker.BatchSize,
		Grace:               time.Duration(cfg.Worker.GraceSeconds) * time.Second,
		WSEndpoints:         wsEndpoints,
		WSFailoverThreshold: cfg.Chain.RPCFailoverThreshold,
		Logger:              logger,
	}

	logger.Info("reconciler started",
		zap.Duration("interval", w.Interval),
		zap.Int("batch_size", w.BatchSize),
		zap.String("rpc", rpc.BaseURL()),
	)
	w.Run(ctx)
	logger.Info("reconciler stopped")
}
