package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/STTM-NSU/demo-trading/internal/config"
	"github.com/STTM-NSU/demo-trading/internal/db"
	"github.com/STTM-NSU/demo-trading/internal/journal"
	"github.com/STTM-NSU/demo-trading/internal/portfolio"
	"github.com/STTM-NSU/demo-trading/internal/quote"
	"github.com/STTM-NSU/demo-trading/internal/trading"
	"github.com/STTM-NSU/demo-trading/internal/watchlist"
	"github.com/jmoiron/sqlx"
	"github.com/russianinvestments/invest-api-go-sdk/investgo"
	"github.com/shopspring/decimal"
)

// app holds the wired components shared by the subcommands.
type app struct {
	db       *sqlx.DB
	ledger   *portfolio.Ledger
	recorder *journal.Recorder
	oracle   *quote.Oracle
	service  *trading.Service
	watch    *watchlist.Store

	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func openDB(ctx context.Context) (*sqlx.DB, error) {
	dbCfg := db.NewConfigFromEnv().Setup()
	zapLogger.Infof("connecting to %s", dbCfg)

	conn, err := db.NewDB(dbCfg)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func newQuoteProvider(ctx context.Context, cfg config.QuoteConfig) (quote.Provider, func(), error) {
	switch cfg.Provider {
	case config.TInvest:
		investCfg, err := config.LoadInvestConfig(cfg.InvestConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: can't load invest cfg", err)
		}
		investClient, err := investgo.NewClient(ctx, investCfg, zapLogger)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: can't create invest client", err)
		}
		provider := quote.NewTInvestProvider(investClient, zapLogger)
		stop := func() {
			provider.Close()
			if err := investClient.Stop(); err != nil {
				zapLogger.Errorf("%s: can't stop invest client", err)
			}
		}
		return provider, stop, nil
	default:
		apiKey := os.Getenv("ALPHA_VANTAGE_KEY")
		if apiKey == "" {
			zapLogger.Warnf("ALPHA_VANTAGE_KEY is not set, quotes are unavailable")
		}
		provider := quote.NewAlphaVantageProvider(cfg.AlphaVantage, apiKey, zapLogger)
		return provider, provider.Close, nil
	}
}

func newOracle(ctx context.Context) (*quote.Oracle, func(), error) {
	provider, stop, err := newQuoteProvider(ctx, appCfg.Quote)
	if err != nil {
		return nil, nil, err
	}
	return quote.NewOracle(provider, quote.OracleConfig{
		TTL:      appCfg.Quote.TTL,
		StaleTTL: appCfg.Quote.StaleTTL,
		Timeout:  appCfg.Quote.Timeout,
	}, zapLogger), stop, nil
}

func newApp(ctx context.Context, withOracle bool) (*app, error) {
	conn, err := openDB(ctx)
	if err != nil {
		return nil, err
	}
	a := &app{db: conn}
	a.closers = append(a.closers, func() {
		if err := conn.Close(); err != nil {
			zapLogger.Errorf("%s: can't close db", err)
		}
	})

	a.ledger = portfolio.NewLedger(conn, portfolio.Config{
		StartingCash: decimal.NewFromFloat(appCfg.Ledger.StartingCash),
		MaxRetries:   appCfg.Ledger.MaxRetries,
	}, zapLogger.With("component", "ledger"))
	a.recorder = journal.NewRecorder(conn, zapLogger.With("component", "journal"))
	a.watch = watchlist.NewStore(conn, zapLogger.With("component", "watchlist"))

	var prices trading.PriceSource = unavailablePrices{}
	if withOracle {
		oracle, stop, err := newOracle(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.oracle = oracle
		a.closers = append(a.closers, stop)
		prices = oracle
	}

	a.service = trading.NewService(a.ledger, a.recorder, prices, conn, appCfg.History.Limit, zapLogger.With("component", "trading"))
	return a, nil
}

// unavailablePrices backs read-only commands that never price an order.
type unavailablePrices struct{}

func (unavailablePrices) CurrentPrice(context.Context, string) (decimal.Decimal, error) {
	return decimal.Zero, quote.ErrPriceUnavailable
}
