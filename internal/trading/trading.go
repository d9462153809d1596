package trading

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/STTM-NSU/demo-trading/internal/logger"
	"github.com/STTM-NSU/demo-trading/internal/model"
	"github.com/STTM-NSU/demo-trading/internal/portfolio"
	"github.com/STTM-NSU/demo-trading/internal/quote"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type PriceSource interface {
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

type Ledger interface {
	GetOrCreate(ctx context.Context, userID string) (model.Portfolio, error)
	ApplyOrder(ctx context.Context, userID, symbol string, side model.Side, quantity, price decimal.Decimal, hooks portfolio.OrderHooks) (model.Portfolio, error)
}

type Recorder interface {
	Record(ctx context.Context, ext sqlx.ExtContext, rec model.TradeRecord) (model.TradeRecord, error)
	History(ctx context.Context, userID string, limit int) ([]model.TradeRecord, error)
	FindByIdempotencyKey(ctx context.Context, ext sqlx.ExtContext, userID, key string) (model.TradeRecord, bool, error)
}

// OrderRequest is the inbound order as submitted by the client. Quantity is
// nullable to tell "missing" apart from "zero".
type OrderRequest struct {
	Symbol         string
	Side           string
	Quantity       decimal.NullDecimal
	StopLoss       decimal.NullDecimal
	TakeProfit     decimal.NullDecimal
	IdempotencyKey string
	Meta           model.Meta // stored with the trade as is
}

type Result struct {
	Trade     model.TradeRecord
	Portfolio model.Portfolio
	Replayed  bool // an earlier submission with the same idempotency key
}

// errReplay aborts the order transaction when the idempotency key turns out
// to be taken already.
type errReplay struct {
	trade model.TradeRecord
}

func (e *errReplay) Error() string {
	return "order already executed: " + e.trade.ID
}

type Service struct {
	ledger   Ledger
	recorder Recorder
	prices   PriceSource
	db       sqlx.ExtContext

	historyLimit int

	logger logger.Logger
}

func NewService(ledger Ledger, recorder Recorder, prices PriceSource, db sqlx.ExtContext, historyLimit int, logger logger.Logger) *Service {
	return &Service{
		ledger:       ledger,
		recorder:     recorder,
		prices:       prices,
		db:           db,
		historyLimit: historyLimit,
		logger:       logger,
	}
}

// Submit validates req, prices it and applies it to the user's demo
// portfolio. The trade record commits together with the balance change.
func (s *Service) Submit(ctx context.Context, userID string, req OrderRequest) (Result, error) {
	if strings.TrimSpace(userID) == "" {
		return Result{}, ErrUnauthenticated
	}

	order, err := normalize(req)
	if err != nil {
		return Result{}, err
	}

	if order.IdempotencyKey != "" {
		if res, found, err := s.replay(ctx, s.db, userID, order.IdempotencyKey); err != nil || found {
			return res, err
		}
	}

	price, err := s.prices.CurrentPrice(ctx, order.Symbol)
	if err != nil {
		if !errors.Is(err, quote.ErrPriceUnavailable) {
			err = fmt.Errorf("%w: %s", ErrPriceUnavailable, err)
		}
		return Result{}, err
	}

	var recorded model.TradeRecord
	p, err := s.ledger.ApplyOrder(ctx, userID, order.Symbol, order.Side, order.Quantity, price, portfolio.OrderHooks{
		// runs ahead of the balance rules so a repeated order replays even
		// when it could not be applied a second time
		Check: func(ctx context.Context, tx *sqlx.Tx, _ model.Portfolio) error {
			if order.IdempotencyKey == "" {
				return nil
			}
			prev, found, err := s.recorder.FindByIdempotencyKey(ctx, tx, userID, order.IdempotencyKey)
			if err != nil {
				return err
			}
			if found {
				return &errReplay{trade: prev}
			}
			return nil
		},
		Record: func(ctx context.Context, tx *sqlx.Tx, _ model.Portfolio) error {
			rec, err := s.recorder.Record(ctx, tx, model.TradeRecord{
				UserID:         userID,
				Symbol:         order.Symbol,
				Side:           order.Side,
				Quantity:       order.Quantity,
				Price:          price,
				StopLoss:       order.StopLoss,
				TakeProfit:     order.TakeProfit,
				IdempotencyKey: sql.NullString{String: order.IdempotencyKey, Valid: order.IdempotencyKey != ""},
				Meta:           order.Meta,
			})
			if err != nil {
				return err
			}
			recorded = rec
			return nil
		},
	})
	if err != nil {
		var replay *errReplay
		if errors.As(err, &replay) {
			return s.replayed(ctx, userID, replay.trade)
		}
		s.logger.Infof("%s: order %s %s %s rejected for %s", err, order.Side, order.Quantity, order.Symbol, userID)
		return Result{}, err
	}

	s.logger.Infof("executed demo %s %s %s at %s for %s, cash %s",
		order.Side, order.Quantity, order.Symbol, price, userID, p.Cash.StringFixed(portfolio.CashPlaces))

	return Result{Trade: recorded, Portfolio: p}, nil
}

func (s *Service) Portfolio(ctx context.Context, userID string) (model.Portfolio, error) {
	if strings.TrimSpace(userID) == "" {
		return model.Portfolio{}, ErrUnauthenticated
	}
	return s.ledger.GetOrCreate(ctx, userID)
}

// History returns the newest trades first, limit <= 0 means the configured
// default page.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]model.TradeRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUnauthenticated
	}
	if limit <= 0 {
		limit = s.historyLimit
	}
	return s.recorder.History(ctx, userID, limit)
}

func (s *Service) replay(ctx context.Context, ext sqlx.ExtContext, userID, key string) (Result, bool, error) {
	prev, found, err := s.recorder.FindByIdempotencyKey(ctx, ext, userID, key)
	if err != nil || !found {
		return Result{}, false, err
	}
	res, err := s.replayed(ctx, userID, prev)
	return res, true, err
}

func (s *Service) replayed(ctx context.Context, userID string, trade model.TradeRecord) (Result, error) {
	p, err := s.ledger.GetOrCreate(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	s.logger.Infof("replayed order %s for %s", trade.ID, userID)
	return Result{Trade: trade, Portfolio: p, Replayed: true}, nil
}

// normalize checks the request shape. Symbols are upper-cased so "aapl" and
// "AAPL" are the same holding.
func normalize(req OrderRequest) (model.Order, error) {
	symbol := quote.NormalizeSymbol(req.Symbol)
	side := model.Side(strings.ToLower(strings.TrimSpace(req.Side)))

	if symbol == "" || side == "" || !req.Quantity.Valid {
		return model.Order{}, ErrMissingField
	}
	if !req.Quantity.Decimal.IsPositive() {
		return model.Order{}, ErrInvalidQuantity
	}
	if !side.Valid() {
		return model.Order{}, fmt.Errorf("%w: %q", ErrInvalidSide, req.Side)
	}

	return model.Order{
		Symbol:         symbol,
		Side:           side,
		Quantity:       req.Quantity.Decimal,
		StopLoss:       positiveOrNull(req.StopLoss),
		TakeProfit:     positiveOrNull(req.TakeProfit),
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
		Meta:           req.Meta,
	}, nil
}

// risk levels of zero mean "not set", the web form sends empty inputs that way
func positiveOrNull(d decimal.NullDecimal) decimal.NullDecimal {
	if !d.Valid || !d.Decimal.IsPositive() {
		return decimal.NullDecimal{}
	}
	return d
}
