package main

import (
	"flag"
	"log"
	"os"

	"FanatiquePay/internal/config"
	"FanatiquePay/internal/db"
	"FanatiquePay/internal/logging"

	"go.uber.org/zap"
)

func main() {
	dsn := flag.String("dsn", "", "postgres DSN (defaults to DB_DSN or the config file)")
	flag.Parse()

	if *dsn == "" {
		*dsn = os.Getenv("DB_DSN")
	}
	level := "info"
	if *dsn == "" {
		cfg, err := config.Load("")
		if err != nil {
			log.Fatalf("config load failed: %v", err)
		}
		*dsn = cfg.DB.DSN
		level = cfg.Log.Level
	}

	logger, err := logging.New(level)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	changed, err := db.Migrate(*dsn)
	if err != nil {
		logger.Fatal("migrate failed", zap.Error(err))
	}
	if changed {
		logger.Info("migrations applied")
		return
	}
	logger.Info("schema up to date")
}
