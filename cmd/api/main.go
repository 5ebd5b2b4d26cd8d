package main

import (
	"context"
	"errors"
	"log"
	"math/big"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"FanatiquePay/internal/catalog"
	"FanatiquePay/internal/chain"
	"FanatiquePay/internal/config"
	"FanatiquePay/internal/db"
	"FanatiquePay/internal/events"
	internalhttp "FanatiquePay/internal/http"
	"FanatiquePay/internal/logging"
	"FanatiquePay/internal/metrics"
	"FanatiquePay/internal/payments"
	"FanatiquePay/internal/pricing"
	"FanatiquePay/internal/services"
	"FanatiquePay/internal/store"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
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

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = catalog.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("redis unavailable; running without cache and shared rate limit", zap.Error(err))
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	cat, closeCatalog, err := buildCatalog(ctx, cfg, pool, rdb, logger)
	if err != nil {
		logger.Fatal("catalog init failed", zap.Error(err))
	}
	defer closeCatalog()

	rpc, err := chain.DialMulti(ctx, cfg.Chain.RPCEndpoints, cfg.Chain.RPCFailoverThreshold)
	if err != nil {
		logger.Fatal("rpc dial failed", zap.Error(err))
	}
	defer rpc.Close()
	rpc.OnRotate = func(url string) {
		metrics.RPCFailovers.Inc()
		logger.Warn("rpc failover", zap.String("endpoint", url))
	}

	key, relay, err := chain.KeyDeriver{XPrv: cfg.Wallet.XPrv}.Derive(cfg.Wallet.DerivationIndex)
	if err != nil {
		logger.Fatal("relay key derivation failed", zap.Error(err))
	}
	if cfg.Wallet.RelayAddress != "" && !strings.EqualFold(cfg.Wallet.RelayAddress, relay.Hex()) {
		logger.Fatal("derived relay address does not match wallet.relay_address",
			zap.String("derived", relay.Hex()),
			zap.String("configured", cfg.Wallet.RelayAddress),
		)
	}

	contract, err := chain.NewPaymentContract(common.HexToAddress(cfg.Chain.ContractAddress), rpc)
	if err != nil {
		logger.Fatal("payment contract binding failed", zap.Error(err))
	}
	gateway, err := payments.NewGateway(contract, rpc, key, big.NewInt(cfg.Chain.ChainID))
	if err != nil {
		logger.Fatal("payment gateway init failed", zap.Error(err))
	}
	gateway.GasLimit = cfg.Payments.GasLimit
	gateway.ConfirmTimeout = cfg.ConfirmTimeout()
	gateway.Logger = logger

	publisher := events.New(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
	defer publisher.Close()

	totalTol, amountTol := cfg.Tolerances()
	orderSvc := services.OrderService{
		DB:              db.New(pool),
		Orders:          store.New(),
		Pricing:         pricing.Calculator{Catalog: cat},
		Gateway:         gateway,
		Events:          publisher,
		Logger:          logger,
		TotalTolerance:  &totalTol,
		AmountTolerance: &amountTol,
		TokenDecimals:   cfg.Chain.TokenDecimals,
	}

	var limiterRedis redis.Cmdable
	if rdb != nil {
		limiterRedis = rdb
	}
	h := internalhttp.NewHandler(orderSvc, logger)
	srv := internalhttp.NewServer(h, internalhttp.Options{
		AdminToken:  cfg.Server.AdminToken,
		CORSOrigins: cfg.Server.CORSOrigins,
		PayLimiter:  internalhttp.NewPayLimiter(limiterRedis, cfg.RateLimit.PayPerSecond, cfg.RateLimit.PayBurst, logger),
		Logger:      logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
		// payOrder waits for on-chain confirmation before answering
		WriteTimeout: cfg.ConfirmTimeout() + 30*time.Second,
	}

	go func() {
		logger.Info("api listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("relay", relay.Hex()),
			zap.String("rpc", rpc.BaseURL()),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.ConfirmTimeout()+5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}

func buildCatalog(ctx context.Context, cfg *config.Config, pool *db.Pool, rdb *redis.Client, logger *zap.Logger) (catalog.Catalog, func(), error) {
	var base catalog.Catalog
	closeFn := func() {}
	switch cfg.Catalog.Source {
	case "mysql":
		mc, err := catalog.OpenMySQL(ctx, cfg.Catalog.MySQLDSN)
		if err != nil {
			return nil, nil, err
		}
		base = mc
		closeFn = func() { _ = mc.Close() }
	default:
		base = catalog.NewPG(pool)
	}

	if rdb == nil || cfg.Catalog.CacheTTLSeconds <= 0 {
		return base, closeFn, nil
	}
	ttl := time.Duration(cfg.Catalog.CacheTTLSeconds) * time.Second
	return catalog.NewCached(base, rdb, ttl, logger), closeFn, nil
}
