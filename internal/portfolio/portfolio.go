package portfolio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/STTM-NSU/demo-trading/internal/logger"
	"github.com/STTM-NSU/demo-trading/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const (
	_maxRetriesDefault = 3
)

var DefaultStartingCash = decimal.New(100000, 0)

type Hook func(ctx context.Context, tx *sqlx.Tx, p model.Portfolio) error

// OrderHooks run inside the order transaction while the user's lock is held.
// Check gets the stored portfolio before the order is applied, Record gets
// the written one. An error from either rolls the whole order back.
type OrderHooks struct {
	Check  Hook
	Record Hook
}

type Config struct {
	StartingCash decimal.Decimal
	MaxRetries   int
}

// Ledger owns the demo portfolios. Orders for one user are applied one at a
// time, different users never wait for each other in process.
type Ledger struct {
	db     *sqlx.DB
	logger logger.Logger

	locks *userLocks

	startingCash decimal.Decimal
	maxRetries   int
	now          func() time.Time
}

func NewLedger(db *sqlx.DB, cfg Config, logger logger.Logger) *Ledger {
	if !cfg.StartingCash.IsPositive() {
		cfg.StartingCash = DefaultStartingCash
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = _maxRetriesDefault
	}

	return &Ledger{
		db:           db,
		logger:       logger,
		locks:        newUserLocks(),
		startingCash: cfg.StartingCash.Round(CashPlaces),
		maxRetries:   cfg.MaxRetries,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// GetOrCreate returns the user's portfolio, creating the default one on
// first access.
func (l *Ledger) GetOrCreate(ctx context.Context, userID string) (model.Portfolio, error) {
	if userID == "" {
		return model.Portfolio{}, ErrEmptyUser
	}

	p, created, err := getOrCreate(ctx, l.db, userID, l.startingCash, l.now())
	if err != nil {
		return model.Portfolio{}, err
	}
	if created {
		l.logger.Infof("created demo portfolio for %s with cash %s", userID, p.Cash.StringFixed(CashPlaces))
	}
	return p, nil
}

// ApplyOrder applies one buy or sell at price and persists the result. The
// hooks run in the same transaction so the trade record and the balance
// change commit together.
func (l *Ledger) ApplyOrder(
	ctx context.Context,
	userID, symbol string,
	side model.Side,
	quantity, price decimal.Decimal,
	hooks OrderHooks,
) (model.Portfolio, error) {
	if userID == "" {
		return model.Portfolio{}, ErrEmptyUser
	}
	if err := validateOrder(side, symbol, quantity, price); err != nil {
		return model.Portfolio{}, err
	}

	unlock := l.locks.Lock(userID)
	defer unlock()

	for attempt := 1; attempt <= l.maxRetries; attempt++ {
		p, err := l.applyOnce(ctx, userID, symbol, side, quantity, price, hooks)
		if errors.Is(err, errVersionConflict) {
			l.logger.Warnf("portfolio %s changed under order, retry %d/%d", userID, attempt, l.maxRetries)
			continue
		}
		return p, err
	}

	return model.Portfolio{}, ErrConcurrentUpdate
}

func (l *Ledger) applyOnce(
	ctx context.Context,
	userID, symbol string,
	side model.Side,
	quantity, price decimal.Decimal,
	hooks OrderHooks,
) (_ model.Portfolio, err error) {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.Portfolio{}, fmt.Errorf("%w: can't begin order transaction", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				l.logger.Errorf("%s: can't rollback order transaction", rbErr)
			}
		}
	}()

	now := l.now()
	current, _, err := getOrCreate(ctx, tx, userID, l.startingCash, now)
	if err != nil {
		return model.Portfolio{}, err
	}

	if hooks.Check != nil {
		if err = hooks.Check(ctx, tx, current); err != nil {
			return model.Portfolio{}, err
		}
	}

	next, err := Apply(current, side, symbol, quantity, price)
	if err != nil {
		return model.Portfolio{}, err
	}

	saved, err := savePortfolio(ctx, tx, next, now)
	if err != nil {
		return model.Portfolio{}, err
	}

	if hooks.Record != nil {
		if err = hooks.Record(ctx, tx, saved); err != nil {
			return model.Portfolio{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return model.Portfolio{}, fmt.Errorf("%w: can't commit order", err)
	}

	l.logger.Debugf("%s %s %s at %s for %s, cash %s", side, quantity, symbol, price, userID, saved.Cash.StringFixed(CashPlaces))
	return saved, nil
}
