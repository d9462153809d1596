package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/russianinvestments/invest-api-go-sdk/investgo"
)

const _investAppName = "demo-trading"

var ErrEmptyInvestToken = errors.New("empty t-invest api token")

// LoadInvestConfig reads the investgo yaml used by the tinvest quote provider.
// The token only ever comes from T_INVEST_API_TOKEN.
func LoadInvestConfig(filename string) (investgo.Config, error) {
	cfg, err := investgo.LoadConfig(filename)
	if err != nil {
		return investgo.Config{}, fmt.Errorf("%w: can't load config", err)
	}

	cfg.Token = os.Getenv("T_INVEST_API_TOKEN")
	if cfg.Token == "" {
		return investgo.Config{}, ErrEmptyInvestToken
	}
	if cfg.AppName == "" {
		cfg.AppName = _investAppName
	}
	// market data only, the demo ledger never trades through a real account
	cfg.AccountId = ""

	return cfg, nil
}
