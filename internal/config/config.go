package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	AppModeProduction = "PROD"
	AppModeDevelop    = "DEV"
)

type Config struct {
	App struct {
		LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
		Mode     string `yaml:"mode" env:"APP_MODE"`
	} `yaml:"app"`
	Server struct {
		Addr           string `yaml:"addr" env:"SERVER_ADDR"`
		AdminJWTSecret string `yaml:"admin_jwt_secret" env:"ADMIN_JWT_SECRET"`
	} `yaml:"server"`
	DB struct {
		DSN string `yaml:"dsn" env:"DB_DSN"`
	} `yaml:"db"`
	Mpesa struct {
		BaseURL            string `yaml:"base_url" env:"MPESA_BASE_URL"`
		ConsumerKey        string `yaml:"consumer_key" env:"MPESA_CONSUMER_KEY"`
		ConsumerSecret     string `yaml:"consumer_secret" env:"MPESA_CONSUMER_SECRET"`
		ShortCode          string `yaml:"short_code" env:"MPESA_SHORT_CODE"`
		PassKey            string `yaml:"pass_key" env:"MPESA_PASS_KEY"`
		CallbackURL        string `yaml:"callback_url" env:"MPESA_CALLBACK"`
		AccountReference   string `yaml:"account_reference"`
		B2CShortCode       string `yaml:"b2c_short_code" env:"MPESA_B2C_SHORT_CODE"`
		InitiatorName      string `yaml:"initiator_name" env:"MPESA_INITIATOR_NAME"`
		SecurityCredential string `yaml:"security_credential" env:"MPESA_SECURITY_CREDENTIAL"`
		ResultURL          string `yaml:"result_url" env:"MPESA_B2C_RESULT_URL"`
		TimeoutURL         string `yaml:"timeout_url" env:"MPESA_B2C_TIMEOUT_URL"`
		MinPayout          int64  `yaml:"min_payout"`
	} `yaml:"mpesa"`
	Ledger struct {
		WSEndpoints            []string `yaml:"ws_endpoints" env:"LEDGER_WS_ENDPOINTS" envSeparator:","`
		PoolAddress            string   `yaml:"pool_address" env:"LEDGER_POOL_ADDRESS"`
		Signer                 string   `yaml:"signer" env:"LEDGER_SIGNER"`
		FailoverThreshold      int      `yaml:"failover_threshold"`
		FinalityTimeoutSeconds int64    `yaml:"finality_timeout_seconds"`
	} `yaml:"ledger"`
	Tokens []Token `yaml:"tokens"`
	Worker struct {
		PollIntervalSeconds int64 `yaml:"poll_interval_seconds"`
		PollMaxAttempts     int   `yaml:"poll_max_attempts"`
	} `yaml:"worker"`
	Notify struct {
		Username string `yaml:"username" env:"AFRICASTALKING_USERNAME"`
		APIKey   string `yaml:"api_key" env:"AFRICASTALKING_API_KEY"`
		SenderID string `yaml:"sender_id"`
		BaseURL  string `yaml:"base_url"`
	} `yaml:"notify"`
}

// Token is one entry of the supported asset registry. Rate and MinBalance
// are decimal strings; AssetID 0 means the chain's native token.
type Token struct {
	Symbol     string `yaml:"symbol"`
	Decimals   int32  `yaml:"decimals"`
	AssetID    uint32 `yaml:"asset_id"`
	Rate       string `yaml:"rate"`
	MinBalance string `yaml:"min_balance"`
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
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.App.Mode == "" {
		cfg.App.Mode = AppModeProduction
	}
	if cfg.Mpesa.BaseURL == "" {
		cfg.Mpesa.BaseURL = "https://sandbox.safaricom.co.ke"
	}
	if cfg.Mpesa.AccountReference == "" {
		cfg.Mpesa.AccountReference = "DotRamp"
	}
	if cfg.Mpesa.B2CShortCode == "" {
		cfg.Mpesa.B2CShortCode = cfg.Mpesa.ShortCode
	}
	if cfg.Ledger.FailoverThreshold <= 0 {
		cfg.Ledger.FailoverThreshold = 3
	}
	if cfg.Ledger.FinalityTimeoutSeconds <= 0 {
		cfg.Ledger.FinalityTimeoutSeconds = 120
	}
	if cfg.Worker.PollIntervalSeconds == 0 {
		cfg.Worker.PollIntervalSeconds = 15
	}
	if cfg.Worker.PollMaxAttempts == 0 {
		cfg.Worker.PollMaxAttempts = 8
	}
	for i := range cfg.Tokens {
		cfg.Tokens[i].Symbol = strings.ToUpper(strings.TrimSpace(cfg.Tokens[i].Symbol))
		if cfg.Tokens[i].MinBalance == "" {
			cfg.Tokens[i].MinBalance = "0"
		}
	}
}

func (cfg *Config) validate() error {
	if cfg.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if cfg.Mpesa.ShortCode == "" || cfg.Mpesa.ConsumerKey == "" || cfg.Mpesa.ConsumerSecret == "" ||
		cfg.Mpesa.PassKey == "" || cfg.Mpesa.CallbackURL == "" {
		return errors.New("mpesa config is incomplete")
	}
	if cfg.Mpesa.InitiatorName == "" || cfg.Mpesa.SecurityCredential == "" ||
		cfg.Mpesa.ResultURL == "" || cfg.Mpesa.TimeoutURL == "" {
		return errors.New("mpesa b2c config is incomplete")
	}
	if len(cfg.Ledger.WSEndpoints) == 0 || cfg.Ledger.PoolAddress == "" {
		return errors.New("ledger config is incomplete")
	}
	if cfg.Worker.PollIntervalSeconds < 0 || cfg.Worker.PollMaxAttempts < 0 {
		return errors.New("worker poll settings must be positive")
	}
	if len(cfg.Tokens) == 0 {
		return errors.New("at least one token is required")
	}

	seen := map[string]struct{}{}
	for _, t := range cfg.Tokens {
		if t.Symbol == "" {
			return errors.New("token symbol is required")
		}
		if _, ok := seen[t.Symbol]; ok {
			return fmt.Errorf("duplicate token %s", t.Symbol)
		}
		seen[t.Symbol] = struct{}{}
		if t.Decimals < 0 || t.Decimals > 30 {
			return fmt.Errorf("token %s: invalid decimals", t.Symbol)
		}
		rate, err := decimal.NewFromString(t.Rate)
		if err != nil || !rate.IsPositive() {
			return fmt.Errorf("token %s: rate must be a positive decimal", t.Symbol)
		}
		floor, err := decimal.NewFromString(t.MinBalance)
		if err != nil || floor.IsNegative() {
			return fmt.Errorf("token %s: min_balance must be a non-negative decimal", t.Symbol)
		}
	}
	return nil
}
