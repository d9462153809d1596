package quote

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/STTM-NSU/demo-trading/internal/config"
	"github.com/STTM-NSU/demo-trading/internal/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/ratelimit"
	"resty.dev/v3"
)

const (
	_alphaVantageQueryURL = "/query"
)

type globalQuoteResponse struct {
	GlobalQuote map[string]string `json:"Global Quote"`
	Note        string            `json:"Note"`
	Information string            `json:"Information"`
	Error       string            `json:"Error Message"`
}

type symbolSearchResponse struct {
	BestMatches []map[string]string `json:"bestMatches"`
	Note        string              `json:"Note"`
	Information string              `json:"Information"`
	Error       string              `json:"Error Message"`
}

type AlphaVantageProvider struct {
	c      *resty.Client
	apiKey string

	rateLimiter *limiter

	logger logger.Logger
}

func NewAlphaVantageProvider(cfg config.AlphaVantageConfig, apiKey string, logger logger.Logger) *AlphaVantageProvider {
	client := resty.New().
		SetLogger(logger).
		SetBaseURL(cfg.Address).
		SetTimeout(cfg.Timeout)

	return &AlphaVantageProvider{
		c:           client,
		apiKey:      apiKey,
		rateLimiter: newLimiter(ratelimit.New(cfg.RequestsPerMinute, ratelimit.Per(time.Minute))),
		logger:      logger,
	}
}

// curl "https://www.alphavantage.co/query?function=GLOBAL_QUOTE&symbol=IBM&apikey=demo"
func (p *AlphaVantageProvider) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if p.apiKey == "" {
		return decimal.Zero, ErrNoAPIKey
	}
	if symbol == "" {
		return decimal.Zero, ErrEmptySymbol
	}

	var result globalQuoteResponse
	if err := p.query(ctx, map[string]string{
		"function": "GLOBAL_QUOTE",
		"symbol":   symbol,
	}, &result); err != nil {
		return decimal.Zero, err
	}

	if msg := firstNonEmpty(result.Error, result.Note, result.Information); msg != "" {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoQuote, msg)
	}

	raw := firstNonEmpty(result.GlobalQuote["05. price"], result.GlobalQuote["05. Price"], result.GlobalQuote["price"])
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoQuote, symbol)
	}

	price, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: can't parse price %q", err, raw)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: non-positive price %s for %s", ErrNoQuote, price, symbol)
	}
	return price, nil
}

// Search returns no matches without an api key, the search box just stays empty.
func (p *AlphaVantageProvider) Search(ctx context.Context, keywords string) ([]Match, error) {
	if p.apiKey == "" || keywords == "" {
		return []Match{}, nil
	}

	var result symbolSearchResponse
	if err := p.query(ctx, map[string]string{
		"function": "SYMBOL_SEARCH",
		"keywords": keywords,
	}, &result); err != nil {
		return nil, err
	}
	if msg := firstNonEmpty(result.Error, result.Note, result.Information); msg != "" {
		return nil, fmt.Errorf("symbol search error: %s", msg)
	}

	matches := make([]Match, 0, len(result.BestMatches))
	for _, m := range result.BestMatches {
		matches = append(matches, Match{
			Symbol: m["1. symbol"],
			Name:   m["2. name"],
			Type:   m["3. type"],
			Region: m["4. region"],
		})
	}
	return matches, nil
}

// Close stops the rate limiter, the provider can't be used afterwards.
func (p *AlphaVantageProvider) Close() {
	p.rateLimiter.Stop()
}

func (p *AlphaVantageProvider) query(ctx context.Context, params map[string]string, result any) error {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return err
	}

	resp, err := p.c.R().
		SetQueryParams(params).
		SetQueryParam("apikey", p.apiKey).
		SetResult(result).
		SetContext(ctx).
		Get(_alphaVantageQueryURL)
	if err != nil {
		return fmt.Errorf("%w: can't send alphavantage %s request", err, params["function"])
	}
	defer resp.Body.Close()

	p.logger.Debugf("got alphavantage response %s status: %s, %s", params["function"], resp.Status(), resp.Duration())

	if !resp.IsSuccess() {
		return fmt.Errorf("alphavantage %s unexpected status: %s", params["function"], resp.Status())
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
