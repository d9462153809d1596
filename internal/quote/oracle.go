package quote

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/STTM-NSU/demo-trading/internal/logger"
	"github.com/shopspring/decimal"
)

const (
	_ttlDefault      = 15 * time.Second
	_staleTTLDefault = 10 * time.Minute
	_timeoutDefault  = 5 * time.Second

	_maxBatchFetches = 4
)

type OracleConfig struct {
	TTL      time.Duration // fresh cache window
	StaleTTL time.Duration // how old a cached price may be when upstream fails
	Timeout  time.Duration // bound on one upstream call
}

type cachedPrice struct {
	price   decimal.Decimal
	fetched time.Time
}

// Oracle resolves current prices through a short-lived cache in front of a
// Provider. A caller waits for at most one upstream call.
type Oracle struct {
	provider Provider
	logger   logger.Logger

	ttl      time.Duration
	staleTTL time.Duration
	timeout  time.Duration
	now      func() time.Time

	mu    sync.RWMutex
	cache map[string]cachedPrice
}

func NewOracle(provider Provider, cfg OracleConfig, logger logger.Logger) *Oracle {
	if cfg.TTL <= 0 {
		cfg.TTL = _ttlDefault
	}
	if cfg.StaleTTL < cfg.TTL {
		cfg.StaleTTL = max(_staleTTLDefault, cfg.TTL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = _timeoutDefault
	}

	return &Oracle{
		provider: provider,
		logger:   logger,
		ttl:      cfg.TTL,
		staleTTL: cfg.StaleTTL,
		timeout:  cfg.Timeout,
		now:      time.Now,
		cache:    make(map[string]cachedPrice),
	}
}

func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// CurrentPrice returns a positive price for symbol or ErrPriceUnavailable.
func (o *Oracle) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return decimal.Zero, ErrEmptySymbol
	}

	cached, ok := o.cached(symbol)
	if ok && o.now().Sub(cached.fetched) < o.ttl {
		return cached.price, nil
	}

	price, err := o.fetch(ctx, symbol)
	if err == nil {
		o.mu.Lock()
		o.cache[symbol] = cachedPrice{price: price, fetched: o.now()}
		o.mu.Unlock()
		return price, nil
	}

	if ok && o.now().Sub(cached.fetched) < o.staleTTL {
		o.logger.Warnf("%s: serving stale price for %s fetched at %s", err, symbol, cached.fetched.Format(time.RFC3339))
		return cached.price, nil
	}

	o.logger.Warnf("%s: no price for %s", err, symbol)
	return decimal.Zero, fmt.Errorf("%w: %s: %s", ErrPriceUnavailable, symbol, err)
}

// Prices resolves several symbols, at most _maxBatchFetches upstream calls at
// a time and within one oracle timeout for the whole batch. Unavailable
// symbols are left out of the result.
func (o *Oracle) Prices(ctx context.Context, symbols []string) map[string]decimal.Decimal {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sem  = make(chan struct{}, _maxBatchFetches)
		seen = make(map[string]struct{}, len(symbols))
		out  = make(map[string]decimal.Decimal, len(symbols))
	)

	for _, s := range symbols {
		s = NormalizeSymbol(s)
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}

		wg.Add(1)
		go func() {
			defer wg.Done()
			price, ok := o.batchPrice(ctx, s, sem)
			if !ok {
				return
			}
			mu.Lock()
			out[s] = price
			mu.Unlock()
		}()
	}
	wg.Wait()

	return out
}

func (o *Oracle) batchPrice(ctx context.Context, symbol string, sem chan struct{}) (decimal.Decimal, bool) {
	cached, ok := o.cached(symbol)
	if ok && o.now().Sub(cached.fetched) < o.ttl {
		return cached.price, true
	}

	stale := func() (decimal.Decimal, bool) {
		if ok && o.now().Sub(cached.fetched) < o.staleTTL {
			return cached.price, true
		}
		return decimal.Zero, false
	}

	select {
	case sem <- struct{}{}:
		defer func() { <-sem }()
	case <-ctx.Done():
		return stale()
	}
	if ctx.Err() != nil {
		return stale()
	}

	price, err := o.CurrentPrice(ctx, symbol)
	return price, err == nil
}

func (o *Oracle) Search(ctx context.Context, keywords string) ([]Match, error) {
	keywords = strings.TrimSpace(keywords)
	if keywords == "" {
		return []Match{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	matches, err := o.provider.Search(ctx, keywords)
	if err != nil {
		return nil, fmt.Errorf("%w: can't search symbols", err)
	}
	return matches, nil
}

func (o *Oracle) cached(symbol string) (cachedPrice, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	c, ok := o.cache[symbol]
	return c, ok
}

// fetch runs the provider call in its own goroutine so a provider that
// ignores ctx still can't hold the caller past the timeout.
func (o *Oracle) fetch(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	type result struct {
		price decimal.Decimal
		err   error
	}
	ch := make(chan result, 1)

	go func() {
		price, err := o.provider.LastPrice(ctx, symbol)
		ch <- result{price: price, err: err}
	}()

	select {
	case r := <-ch:
		if r.err == nil && !r.price.IsPositive() {
			r.err = fmt.Errorf("%w: non-positive price %s", ErrNoQuote, r.price)
		}
		return r.price, r.err
	case <-ctx.Done():
		return decimal.Zero, ctx.Err()
	}
}
