package portfolio

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/STTM-NSU/demo-trading/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const (
	_queryPortfolio = `SELECT user_id, cash, holdings, version, created_at, updated_at
							FROM demo_portfolios WHERE user_id = ?`
	_insertPortfolio = `INSERT INTO demo_portfolios (
								user_id, cash, holdings, version, created_at, updated_at
							) VALUES (?, ?, ?, 1, ?, ?)
							ON CONFLICT (user_id) DO NOTHING`
	_updatePortfolio = `UPDATE demo_portfolios SET
								cash = ?,
								holdings = ?,
								version = version + 1,
								updated_at = ?
							WHERE user_id = ? AND version = ?`
)

func loadPortfolio(ctx context.Context, q sqlx.ExtContext, userID string) (model.Portfolio, bool, error) {
	var p model.Portfolio
	if err := sqlx.GetContext(ctx, q, &p, q.Rebind(_queryPortfolio), userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, false, nil
		}
		return p, false, fmt.Errorf("%w: can't query portfolio", err)
	}
	if p.Holdings == nil {
		p.Holdings = model.Holdings{}
	}
	return p, true, nil
}

// getOrCreate reads the portfolio and inserts the default one when missing.
// created reports whether this call performed the insert.
func getOrCreate(ctx context.Context, q sqlx.ExtContext, userID string, startingCash decimal.Decimal, now time.Time) (model.Portfolio, bool, error) {
	p, exists, err := loadPortfolio(ctx, q, userID)
	if err != nil || exists {
		return p, false, err
	}

	res, err := q.ExecContext(ctx, q.Rebind(_insertPortfolio),
		userID, startingCash, model.Holdings{}, now, now,
	)
	if err != nil {
		return model.Portfolio{}, false, fmt.Errorf("%w: can't create portfolio", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return model.Portfolio{}, false, fmt.Errorf("%w: can't create portfolio", err)
	}

	// lost the insert race to another writer, read what it stored
	p, exists, err = loadPortfolio(ctx, q, userID)
	if err != nil {
		return p, false, err
	}
	if !exists {
		return p, false, fmt.Errorf("portfolio %s vanished after insert", userID)
	}
	return p, affected == 1, nil
}

// savePortfolio replaces the whole row if nobody wrote it since it was read
// at p.Version.
func savePortfolio(ctx context.Context, q sqlx.ExtContext, p model.Portfolio, now time.Time) (model.Portfolio, error) {
	res, err := q.ExecContext(ctx, q.Rebind(_updatePortfolio),
		p.Cash, p.Holdings, now, p.UserID, p.Version,
	)
	if err != nil {
		return p, fmt.Errorf("%w: can't update portfolio", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return p, fmt.Errorf("%w: can't update portfolio", err)
	}
	if affected == 0 {
		return p, errVersionConflict
	}

	p.Version++
	p.UpdatedAt = now
	return p, nil
}
