package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type QuoteProvider string

const (
	AlphaVantage QuoteProvider = "alphavantage"
	TInvest      QuoteProvider = "tinvest"
)

type ServerConfig struct {
	Port            string        `yaml:"port"`
	IdentityHeader  string        `yaml:"identity_header"` // set by the auth gateway in front of the service
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

const (
	_portDefault            = "8080"
	_identityHeaderDefault  = "X-User-Id"
	_shutdownTimeoutDefault = 10 * time.Second
)

func (c *ServerConfig) Setup() {
	if c.Port == "" {
		c.Port = _portDefault
	}
	if c.IdentityHeader == "" {
		c.IdentityHeader = _identityHeaderDefault
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = _shutdownTimeoutDefault
	}
}

type LedgerConfig struct {
	StartingCash float64 `yaml:"starting_cash"`
	Currency     string  `yaml:"currency"`
	MaxRetries   int     `yaml:"max_retries"` // optimistic write retries per order
}

const (
	_startingCashDefault = 100000
	_currencyDefault     = "USD"
	_maxRetriesDefault   = 3
)

func (c *LedgerConfig) Setup() error {
	if c.StartingCash < 0 {
		return fmt.Errorf("negative starting cash %f", c.StartingCash)
	}
	if c.StartingCash == 0 {
		c.StartingCash = _startingCashDefault
	}
	c.Currency = strings.ToUpper(strings.TrimSpace(c.Currency))
	if c.Currency == "" {
		c.Currency = _currencyDefault
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = _maxRetriesDefault
	}
	return nil
}

type HistoryConfig struct {
	Limit int `yaml:"limit"` // default page size of the history endpoint
}

const _historyLimitDefault = 200

type AlphaVantageConfig struct {
	Address           string        `yaml:"address"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	Timeout           time.Duration `yaml:"timeout"`
}

type QuoteConfig struct {
	Provider     QuoteProvider      `yaml:"provider"`
	TTL          time.Duration      `yaml:"ttl"`
	StaleTTL     time.Duration      `yaml:"stale_ttl"`
	Timeout      time.Duration      `yaml:"timeout"`
	AlphaVantage AlphaVantageConfig `yaml:"alpha_vantage"`
	InvestConfig string             `yaml:"invest_config"` // investgo yaml, used by the tinvest provider
}

const (
	_quoteTTLDefault         = 15 * time.Second
	_quoteStaleTTLDefault    = 10 * time.Minute
	_quoteTimeoutDefault     = 5 * time.Second
	_alphaVantageAddress     = "https://www.alphavantage.co"
	_alphaVantageRPMDefault  = 5 // free tier
	_investConfigPathDefault = "./configs/invest.yaml"
)

func (c *QuoteConfig) Setup() error {
	if c.Provider == "" {
		c.Provider = AlphaVantage
	}
	if c.Provider != AlphaVantage && c.Provider != TInvest {
		return fmt.Errorf("unknown quote provider %q", c.Provider)
	}
	if c.TTL <= 0 {
		c.TTL = _quoteTTLDefault
	}
	if c.StaleTTL <= 0 {
		c.StaleTTL = _quoteStaleTTLDefault
	}
	if c.Timeout <= 0 {
		c.Timeout = _quoteTimeoutDefault
	}
	if c.AlphaVantage.Address == "" {
		c.AlphaVantage.Address = _alphaVantageAddress
	}
	if c.AlphaVantage.RequestsPerMinute <= 0 {
		c.AlphaVantage.RequestsPerMinute = _alphaVantageRPMDefault
	}
	if c.AlphaVantage.Timeout <= 0 || c.AlphaVantage.Timeout > c.Timeout {
		c.AlphaVantage.Timeout = c.Timeout
	}
	if c.InvestConfig == "" {
		c.InvestConfig = _investConfigPathDefault
	}
	return nil
}

type AppConfig struct {
	LogLevel string        `yaml:"log_level"`
	Server   ServerConfig  `yaml:"server"`
	Ledger   LedgerConfig  `yaml:"ledger"`
	History  HistoryConfig `yaml:"history"`
	Quote    QuoteConfig   `yaml:"quote"`
}

func (c *AppConfig) ValidateAndSetup() error {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	c.Server.Setup()

	if c.History.Limit <= 0 {
		c.History.Limit = _historyLimitDefault
	}

	if err := c.Ledger.Setup(); err != nil {
		return fmt.Errorf("%w: can't setup ledger", err)
	}

	if err := c.Quote.Setup(); err != nil {
		return fmt.Errorf("%w: can't setup quote", err)
	}

	return nil
}

// LoadAppConfig reads filename, a missing file means all defaults.
func LoadAppConfig(filename string) (AppConfig, error) {
	var cfg AppConfig
	input, err := os.ReadFile(filename)
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("%w: can't read file", err)
	}

	if len(input) > 0 {
		if err := yaml.Unmarshal(input, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: can't unmarshal config", err)
		}
	}

	if err := cfg.ValidateAndSetup(); err != nil {
		return cfg, fmt.Errorf("%w: can't setup cfg", err)
	}

	return cfg, nil
}
