package quote

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/STTM-NSU/demo-trading/internal/logger"
	"github.com/STTM-NSU/demo-trading/internal/tools"
	"github.com/russianinvestments/invest-api-go-sdk/investgo"
	investapi "github.com/russianinvestments/invest-api-go-sdk/proto"
	"github.com/shopspring/decimal"
	"go.uber.org/ratelimit"
)

// TInvestProvider quotes tickers through the T-Invest market data API.
// Tickers are resolved to instrument uids once and cached.
type TInvestProvider struct {
	mdService    *investgo.MarketDataServiceClient
	instrService *investgo.InstrumentsServiceClient

	mdRateLimiter    *limiter // 600 T/M
	instrRateLimiter *limiter // 200 T/M

	logger logger.Logger

	mu   sync.RWMutex
	uids map[string]string
}

func NewTInvestProvider(c *investgo.Client, logger logger.Logger) *TInvestProvider {
	return &TInvestProvider{
		mdService:        c.NewMarketDataServiceClient(),
		instrService:     c.NewInstrumentsServiceClient(),
		mdRateLimiter:    newLimiter(ratelimit.New(500, ratelimit.Per(time.Minute))),
		instrRateLimiter: newLimiter(ratelimit.New(150, ratelimit.Per(time.Minute))),
		logger:           logger,
		uids:             make(map[string]string),
	}
}

func (p *TInvestProvider) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if symbol == "" {
		return decimal.Zero, ErrEmptySymbol
	}

	uid, err := p.resolve(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}

	if err := p.mdRateLimiter.Wait(ctx); err != nil {
		return decimal.Zero, err
	}
	resp, err := p.mdService.GetLastPrices([]string{uid})
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: can't get last price", err)
	}
	if len(resp.GetLastPrices()) == 0 {
		return decimal.Zero, fmt.Errorf("%w: empty last price for instrument %s", ErrNoQuote, uid)
	}

	price := tools.QuotationToDecimal(resp.GetLastPrices()[0].GetPrice())
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: non-positive price for %s", ErrNoQuote, symbol)
	}
	return price, nil
}

func (p *TInvestProvider) Search(ctx context.Context, keywords string) ([]Match, error) {
	if keywords == "" {
		return []Match{}, nil
	}

	instruments, err := p.find(ctx, keywords)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(instruments))
	for _, i := range instruments {
		if !i.GetApiTradeAvailableFlag() {
			continue
		}
		matches = append(matches, Match{
			Symbol: i.GetTicker(),
			Name:   i.GetName(),
			Type:   i.GetInstrumentType(),
			Region: i.GetClassCode(),
		})
	}
	return matches, nil
}

// Close stops the rate limiters, the provider can't be used afterwards.
func (p *TInvestProvider) Close() {
	p.mdRateLimiter.Stop()
	p.instrRateLimiter.Stop()
}

func (p *TInvestProvider) resolve(ctx context.Context, ticker string) (string, error) {
	p.mu.RLock()
	uid, ok := p.uids[ticker]
	p.mu.RUnlock()
	if ok {
		return uid, nil
	}

	instruments, err := p.find(ctx, ticker)
	if err != nil {
		return "", err
	}
	for _, i := range instruments {
		if !strings.EqualFold(i.GetTicker(), ticker) || !i.GetApiTradeAvailableFlag() {
			continue
		}
		p.mu.Lock()
		p.uids[ticker] = i.GetUid()
		p.mu.Unlock()
		return i.GetUid(), nil
	}

	return "", fmt.Errorf("%w: instrument %s not found", ErrNoQuote, ticker)
}

func (p *TInvestProvider) find(ctx context.Context, query string) ([]*investapi.InstrumentShort, error) {
	if err := p.instrRateLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := p.instrService.FindInstrument(query)
	if err != nil {
		return nil, fmt.Errorf("%w: can't find instrument", err)
	}
	return resp.GetInstruments(), nil
}
