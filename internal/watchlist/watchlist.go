package watchlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/STTM-NSU/demo-trading/internal/logger"
	"github.com/STTM-NSU/demo-trading/internal/model"
	"github.com/STTM-NSU/demo-trading/internal/quote"
	"github.com/jmoiron/sqlx"
)

// MaxItems caps a watchlist so pricing it stays one quote batch.
const MaxItems = 50

var (
	ErrEmptyUser      = errors.New("empty user identifier")
	ErrEmptySymbol    = errors.New("symbol is required")
	ErrAlreadyWatched = errors.New("symbol already in watchlist")
	ErrNotWatched     = errors.New("symbol not in watchlist")
	ErrFull           = errors.New("watchlist is full")
)

const (
	_queryList  = `SELECT user_id, symbol, created_at FROM demo_watchlist WHERE user_id = ? ORDER BY created_at, symbol`
	_queryCount = `SELECT COUNT(*) FROM demo_watchlist WHERE user_id = ?`
	_insertItem = `INSERT INTO demo_watchlist (user_id, symbol, created_at) VALUES (?, ?, ?) ON CONFLICT (user_id, symbol) DO NOTHING`
	_deleteItem = `DELETE FROM demo_watchlist WHERE user_id = ? AND symbol = ?`
)

// Store keeps the symbols each user follows.
type Store struct {
	db     *sqlx.DB
	logger logger.Logger
	now    func() time.Time
}

func NewStore(db *sqlx.DB, logger logger.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) List(ctx context.Context, userID string) ([]model.WatchlistItem, error) {
	if userID == "" {
		return nil, ErrEmptyUser
	}

	items := make([]model.WatchlistItem, 0)
	if err := s.db.SelectContext(ctx, &items, s.db.Rebind(_queryList), userID); err != nil {
		return nil, fmt.Errorf("%w: can't query watchlist", err)
	}
	return items, nil
}

func (s *Store) Symbols(ctx context.Context, userID string) ([]string, error) {
	items, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(items))
	for _, i := range items {
		symbols = append(symbols, i.Symbol)
	}
	return symbols, nil
}

// Add puts symbol on the user's watchlist. Symbols are upper-cased the same
// way orders are.
func (s *Store) Add(ctx context.Context, userID, symbol string) (_ model.WatchlistItem, err error) {
	if userID == "" {
		return model.WatchlistItem{}, ErrEmptyUser
	}
	symbol = quote.NormalizeSymbol(symbol)
	if symbol == "" {
		return model.WatchlistItem{}, ErrEmptySymbol
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.WatchlistItem{}, fmt.Errorf("%w: can't begin watchlist transaction", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Errorf("%s: can't rollback watchlist transaction", rbErr)
			}
		}
	}()

	var count int
	if err = tx.GetContext(ctx, &count, tx.Rebind(_queryCount), userID); err != nil {
		return model.WatchlistItem{}, fmt.Errorf("%w: can't count watchlist", err)
	}
	if count >= MaxItems {
		err = fmt.Errorf("%w: at most %d symbols", ErrFull, MaxItems)
		return model.WatchlistItem{}, err
	}

	item := model.WatchlistItem{UserID: userID, Symbol: symbol, CreatedAt: s.now()}
	res, err := tx.ExecContext(ctx, tx.Rebind(_insertItem), item.UserID, item.Symbol, item.CreatedAt)
	if err != nil {
		return model.WatchlistItem{}, fmt.Errorf("%w: can't insert watchlist item", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.WatchlistItem{}, fmt.Errorf("%w: can't get affected rows", err)
	}
	if n == 0 {
		err = fmt.Errorf("%w: %s", ErrAlreadyWatched, symbol)
		return model.WatchlistItem{}, err
	}

	if err = tx.Commit(); err != nil {
		return model.WatchlistItem{}, fmt.Errorf("%w: can't commit watchlist item", err)
	}

	s.logger.Debugf("%s watches %s", userID, symbol)
	return item, nil
}

func (s *Store) Remove(ctx context.Context, userID, symbol string) error {
	if userID == "" {
		return ErrEmptyUser
	}
	symbol = quote.NormalizeSymbol(symbol)
	if symbol == "" {
		return ErrEmptySymbol
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(_deleteItem), userID, symbol)
	if err != nil {
		return fmt.Errorf("%w: can't delete watchlist item", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: can't get affected rows", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotWatched, symbol)
	}
	return nil
}
