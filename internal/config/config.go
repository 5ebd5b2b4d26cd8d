package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr        string   `yaml:"addr" validate:"required"`
		AdminToken  string   `yaml:"admin_token"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	} `yaml:"log"`
	DB struct {
		DSN      string `yaml:"dsn" validate:"required"`
		MaxConns int32  `yaml:"max_conns" validate:"min=1"`
	} `yaml:"db"`
	Catalog struct {
		Source          string `yaml:"source" validate:"oneof=postgres mysql"`
		MySQLDSN        string `yaml:"mysql_dsn" validate:"required_if=Source mysql"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds" validate:"min=0"`
	} `yaml:"catalog"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Wallet struct {
		XPrv            string `yaml:"xprv"`
		DerivationIndex uint32 `yaml:"derivation_index"`
		RelayAddress    string `yaml:"relay_address" validate:"omitempty,eth_addr"`
	} `yaml:"wallet"`
	Chain struct {
		ChainID              int64    `yaml:"chain_id" validate:"required"`
		RPCEndpoints         []string `yaml:"rpc_endpoints" validate:"required,min=1,dive,url"`
		WSEndpoints          []string `yaml:"ws_endpoints"`
		ContractAddress      string   `yaml:"contract_address" validate:"required,eth_addr"`
		TokenDecimals        int32    `yaml:"token_decimals" validate:"min=0,max=36"`
		RPCFailoverThreshold int      `yaml:"rpc_failover_threshold"`
	} `yaml:"chain"`
	Payments struct {
		ConfirmTimeoutSeconds int    `yaml:"confirm_timeout_seconds" validate:"min=1"`
		GasLimit              uint64 `yaml:"gas_limit"`
		TotalTolerance        string `yaml:"total_tolerance" validate:"nonneg_decimal"`
		AmountTolerance       string `yaml:"amount_tolerance" validate:"nonneg_decimal"`
	} `yaml:"payments"`
	RateLimit struct {
		PayPerSecond float64 `yaml:"pay_per_second" validate:"min=0"`
		PayBurst     int     `yaml:"pay_burst" validate:"min=0"`
	} `yaml:"rate_limit"`
	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`
	Worker struct {
		IntervalSeconds int64 `yaml:"interval_seconds" validate:"min=1"`
		BatchSize       int   `yaml:"batch_size" validate:"min=1"`
		GraceSeconds    int64 `yaml:"grace_seconds" validate:"min=0"`
	} `yaml:"worker"`
}

func (c *Config) ConfirmTimeout() time.Duration {
	return time.Duration(c.Payments.ConfirmTimeoutSeconds) * time.Second
}

func (c *Config) WorkerInterval() time.Duration {
	return time.Duration(c.Worker.IntervalSeconds) * time.Second
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	applyDefaults(&cfg)
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(&cfg)

	v := validator.New()
	if err := v.RegisterValidation("nonneg_decimal", nonNegativeDecimal); err != nil {
		return nil, err
	}
	if err := v.Struct(&cfg); err != nil {
		return nil, formatValidationError(err)
	}
	return &cfg, nil
}

func nonNegativeDecimal(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(strings.TrimSpace(fl.Field().String()))
	return err == nil && !d.IsNegative()
}

// Tolerances returns the order total and payment amount tolerances. Load has
// already checked that both parse.
func (c *Config) Tolerances() (total, amount decimal.Decimal) {
	total, _ = decimal.NewFromString(strings.TrimSpace(c.Payments.TotalTolerance))
	amount, _ = decimal.NewFromString(strings.TrimSpace(c.Payments.AmountTolerance))
	return total, amount
}

func applyDefaults(cfg *Config) {
	cfg.Server.Addr = ":8080"
	cfg.Log.Level = "info"
	cfg.DB.MaxConns = 10
	cfg.Catalog.Source = "postgres"
	cfg.Catalog.CacheTTLSeconds = 300
	cfg.Chain.TokenDecimals = 18
	cfg.Chain.RPCFailoverThreshold = 3
	cfg.Payments.ConfirmTimeoutSeconds = 60
	cfg.Payments.TotalTolerance = "0.01"
	cfg.Payments.AmountTolerance = "0.001"
	cfg.RateLimit.PayPerSecond = 1
	cfg.RateLimit.PayBurst = 3
	cfg.Kafka.Topic = "fanatique.orders"
	cfg.Worker.IntervalSeconds = 20
	cfg.Worker.BatchSize = 50
	cfg.Worker.GraceSeconds = 300
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("CATALOG_SOURCE"); v != "" {
		cfg.Catalog.Source = v
	}
	if v := os.Getenv("CATALOG_MYSQL_DSN"); v != "" {
		cfg.Catalog.MySQLDSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("WALLET_XPRV"); v != "" {
		cfg.Wallet.XPrv = v
	}
	if v := os.Getenv("WALLET_RELAY_ADDRESS"); v != "" {
		cfg.Wallet.RelayAddress = v
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		cfg.Chain.ChainID = atoi64Or(cfg.Chain.ChainID, v)
	}
	if v := os.Getenv("RPC_ENDPOINTS"); v != "" {
		cfg.Chain.RPCEndpoints = splitCommaList(v)
	}
	if v := os.Getenv("WS_ENDPOINTS"); v != "" {
		cfg.Chain.WSEndpoints = splitCommaList(v)
	}
	if v := os.Getenv("PAYMENT_CONTRACT_ADDRESS"); v != "" {
		cfg.Chain.ContractAddress = v
	}
	if v := os.Getenv("TOKEN_DECIMALS"); v != "" {
		cfg.Chain.TokenDecimals = int32(atoiOr(int(cfg.Chain.TokenDecimals), v))
	}
	if v := os.Getenv("PAYMENT_CONFIRM_TIMEOUT_SECONDS"); v != "" {
		cfg.Payments.ConfirmTimeoutSeconds = atoiOr(cfg.Payments.ConfirmTimeoutSeconds, v)
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitCommaList(v)
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
	if v := os.Getenv("WORKER_INTERVAL_SECONDS"); v != "" {
		cfg.Worker.IntervalSeconds = atoi64Or(cfg.Worker.IntervalSeconds, v)
	}
	if v := os.Getenv("WORKER_BATCH_SIZE"); v != "" {
		cfg.Worker.BatchSize = atoiOr(cfg.Worker.BatchSize, v)
	}
	if v := os.Getenv("WORKER_GRACE_SECONDS"); v != "" {
		cfg.Worker.GraceSeconds = atoi64Or(cfg.Worker.GraceSeconds, v)
	}
}

// formatValidationError reports the first failing field using its yaml path.
func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	return fmt.Errorf("config: %s failed %q validation", strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag())
}

func splitCommaList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func atoiOr(fallback int, v string) int {
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func atoi64Or(fallback int64, v string) int64 {
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}
