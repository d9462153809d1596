package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/STTM-NSU/demo-trading/internal/id"
	"github.com/STTM-NSU/demo-trading/internal/logger"
	"github.com/STTM-NSU/demo-trading/internal/model"
	"github.com/jmoiron/sqlx"
)

const (
	DefaultHistoryLimit = 200
	MaxHistoryLimit     = 1000
)

var ErrEmptyUser = errors.New("empty user identifier")

const (
	_insertTrade = `INSERT INTO demo_trades (
							id, user_id, symbol, side, quantity, price,
							stop_loss, take_profit, idempotency_key, meta, created_at
						) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_selectTrades = `SELECT id, user_id, symbol, side, quantity, price,
							stop_loss, take_profit, idempotency_key, meta, created_at
						FROM demo_trades`
	_queryHistory     = _selectTrades + ` WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`
	_queryIdempotency = _selectTrades + ` WHERE user_id = ? AND idempotency_key = ?`
)

// Recorder is the append-only log of executed demo orders. Records are never
// updated or deleted.
type Recorder struct {
	db     *sqlx.DB
	logger logger.Logger
	now    func() time.Time
}

func NewRecorder(db *sqlx.DB, logger logger.Logger) *Recorder {
	return &Recorder{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Record appends rec through ext, which is either the database or the order
// transaction. ID and CreatedAt are assigned when empty. Business rules are
// not checked again, rec must describe an order the ledger already applied.
func (r *Recorder) Record(ctx context.Context, ext sqlx.ExtContext, rec model.TradeRecord) (model.TradeRecord, error) {
	if rec.UserID == "" {
		return rec, ErrEmptyUser
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now()
	}
	if rec.ID == "" {
		rec.ID = id.New(rec.CreatedAt)
	}

	if _, err := ext.ExecContext(ctx, ext.Rebind(_insertTrade),
		rec.ID,
		rec.UserID,
		rec.Symbol,
		rec.Side,
		rec.Quantity,
		rec.Price,
		rec.StopLoss,
		rec.TakeProfit,
		rec.IdempotencyKey,
		rec.Meta,
		rec.CreatedAt,
	); err != nil {
		return rec, fmt.Errorf("%w: can't insert trade", err)
	}

	r.logger.Debugf("recorded trade %s: %s %s %s at %s for %s", rec.ID, rec.Side, rec.Quantity, rec.Symbol, rec.Price, rec.UserID)
	return rec, nil
}

// History returns up to limit trades of the user, newest first. A limit
// outside (0, MaxHistoryLimit] falls back to the nearest valid value.
func (r *Recorder) History(ctx context.Context, userID string, limit int) ([]model.TradeRecord, error) {
	if userID == "" {
		return nil, ErrEmptyUser
	}

	trades := make([]model.TradeRecord, 0)
	if err := r.db.SelectContext(ctx, &trades, r.db.Rebind(_queryHistory), userID, clampLimit(limit)); err != nil {
		return nil, fmt.Errorf("%w: can't query trade history", err)
	}
	return trades, nil
}

// FindByIdempotencyKey looks up the trade a previous submission with the same
// key produced.
func (r *Recorder) FindByIdempotencyKey(ctx context.Context, ext sqlx.ExtContext, userID, key string) (model.TradeRecord, bool, error) {
	var rec model.TradeRecord
	if key == "" {
		return rec, false, nil
	}
	if err := sqlx.GetContext(ctx, ext, &rec, ext.Rebind(_queryIdempotency), userID, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, false, nil
		}
		return rec, false, fmt.Errorf("%w: can't query trade by idempotency key", err)
	}
	return rec, true, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return limit
	}
}
