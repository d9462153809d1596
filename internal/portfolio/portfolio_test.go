package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/STTM-NSU/demo-trading/internal/db"
	"github.com/STTM-NSU/demo-trading/internal/logger"
	"github.com/STTM-NSU/demo-trading/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUser = "trader@example.com"

func newTestLedger(t *testing.T) (*Ledger, *sqlx.DB) {
	t.Helper()
	conn := db.NewTestDB(t)
	return NewLedger(conn, Config{}, logger.NewNop()), conn
}

func countPortfolios(t *testing.T, conn *sqlx.DB) int {
	t.Helper()
	var n int
	require.NoError(t, conn.Get(&n, "SELECT COUNT(*) FROM demo_portfolios"))
	return n
}

func TestGetOrCreateNewUser(t *testing.T) {
	l, conn := newTestLedger(t)

	p, err := l.GetOrCreate(context.Background(), testUser)
	require.NoError(t, err)

	assert.Equal(t, testUser, p.UserID)
	assertDecimal(t, "100000.00", p.Cash)
	assert.Empty(t, p.Holdings)
	assert.Equal(t, int64(1), p.Version)
	assert.Equal(t, 1, countPortfolios(t, conn))
}

func TestGetOrCreateCreatesOnce(t *testing.T) {
	l, conn := newTestLedger(t)
	ctx := context.Background()

	first, created, err := getOrCreate(ctx, conn, testUser, l.startingCash, l.now())
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := getOrCreate(ctx, conn, testUser, l.startingCash, l.now())
	require.NoError(t, err)
	assert.False(t, created)

	assert.True(t, first.Cash.Equal(second.Cash))
	assert.Equal(t, first.Version, second.Version)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))
	assert.Equal(t, 1, countPortfolios(t, conn))
}

func TestGetOrCreateConcurrentFirstAccess(t *testing.T) {
	l, conn := newTestLedger(t)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.GetOrCreate(context.Background(), testUser); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, countPortfolios(t, conn))
}

func TestGetOrCreateEmptyUser(t *testing.T) {
	l, _ := newTestLedger(t)
	_, err := l.GetOrCreate(context.Background(), "")
	require.ErrorIs(t, err, ErrEmptyUser)
}

func TestApplyOrderBuyThenSell(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	p, err := l.ApplyOrder(ctx, testUser, "TSLA", model.Buy, dec("10"), dec("250.00"), OrderHooks{})
	require.NoError(t, err)
	assertDecimal(t, "97500.00", p.Cash)
	assertDecimal(t, "10", p.Holdings["TSLA"])

	stored, err := l.GetOrCreate(ctx, testUser)
	require.NoError(t, err)
	assertDecimal(t, "97500.00", stored.Cash)
	assertDecimal(t, "10", stored.Holdings["TSLA"])
	assert.Equal(t, p.Version, stored.Version)

	p, err = l.ApplyOrder(ctx, testUser, "TSLA", model.Sell, dec("10"), dec("260.00"), OrderHooks{})
	require.NoError(t, err)
	assertDecimal(t, "100100.00", p.Cash)
	assert.Empty(t, p.Holdings)

	stored, err = l.GetOrCreate(ctx, testUser)
	require.NoError(t, err)
	assert.Empty(t, stored.Holdings)
}

func TestApplyOrderRejectedLeavesStateUntouched(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.ApplyOrder(ctx, testUser, "TSLA", model.Buy, dec("10"), dec("250.00"), OrderHooks{})
	require.NoError(t, err)
	before, err := l.GetOrCreate(ctx, testUser)
	require.NoError(t, err)

	_, err = l.ApplyOrder(ctx, testUser, "TSLA", model.Sell, dec("20"), dec("250.00"), OrderHooks{})
	require.ErrorIs(t, err, ErrInsufficientHoldings)

	_, err = l.ApplyOrder(ctx, testUser, "TSLA", model.Buy, dec("1000"), dec("250.00"), OrderHooks{})
	require.ErrorIs(t, err, ErrInsufficientFunds)

	after, err := l.GetOrCreate(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version, "rejected orders must not write")
	assert.True(t, before.Cash.Equal(after.Cash))
	assertDecimal(t, "10", after.Holdings["TSLA"])
}

func TestApplyOrderRejectedForNewUserCreatesNothing(t *testing.T) {
	l, conn := newTestLedger(t)

	_, err := l.ApplyOrder(context.Background(), testUser, "TSLA", model.Sell, dec("1"), dec("10"), OrderHooks{})
	require.ErrorIs(t, err, ErrInsufficientHoldings)
	assert.Equal(t, 0, countPortfolios(t, conn))
}

func TestApplyOrderValidationBeforeStorage(t *testing.T) {
	l, conn := newTestLedger(t)
	ctx := context.Background()

	_, err := l.ApplyOrder(ctx, testUser, "TSLA", model.Buy, dec("0"), dec("10"), OrderHooks{})
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = l.ApplyOrder(ctx, testUser, "TSLA", model.Side("hold"), dec("1"), dec("10"), OrderHooks{})
	require.ErrorIs(t, err, ErrInvalidSide)
	_, err = l.ApplyOrder(ctx, "", "TSLA", model.Buy, dec("1"), dec("10"), OrderHooks{})
	require.ErrorIs(t, err, ErrEmptyUser)

	assert.Equal(t, 0, countPortfolios(t, conn))
}

func TestApplyOrderHookFailureRollsBack(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	hookErr := errors.New("journal down")

	_, err := l.ApplyOrder(ctx, testUser, "AAPL", model.Buy, dec("5"), dec("100"), OrderHooks{
		Record: func(ctx context.Context, tx *sqlx.Tx, p model.Portfolio) error {
			assertDecimal(t, "99500.00", p.Cash)
			return hookErr
		},
	})
	require.ErrorIs(t, err, hookErr)

	p, err := l.GetOrCreate(ctx, testUser)
	require.NoError(t, err)
	assertDecimal(t, "100000.00", p.Cash)
	assert.Empty(t, p.Holdings)
}

func TestApplyOrderCheckRunsBeforeBusinessRules(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	stop := errors.New("already done")

	var seen model.Portfolio
	var recorded bool
	_, err := l.ApplyOrder(ctx, testUser, "AAPL", model.Sell, dec("1"), dec("100"), OrderHooks{
		Check: func(ctx context.Context, tx *sqlx.Tx, p model.Portfolio) error {
			seen = p
			return stop
		},
		Record: func(context.Context, *sqlx.Tx, model.Portfolio) error {
			recorded = true
			return nil
		},
	})
	require.ErrorIs(t, err, stop, "a sell of nothing must reach the check, not the holdings rule")
	assert.False(t, recorded)
	assertDecimal(t, "100000.00", seen.Cash)
	assert.Empty(t, seen.Holdings)

	_, err = l.ApplyOrder(ctx, testUser, "AAPL", model.Buy, dec("1"), dec("100"), OrderHooks{
		Check: func(ctx context.Context, tx *sqlx.Tx, p model.Portfolio) error {
			return nil
		},
	})
	require.NoError(t, err)
}

func TestApplyOrderConcurrentSameUser(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.ApplyOrder(ctx, testUser, "AAPL", model.Buy, dec("5"), dec("100.00"), OrderHooks{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	p, err := l.GetOrCreate(ctx, testUser)
	require.NoError(t, err)
	assertDecimal(t, "99000.00", p.Cash)
	assertDecimal(t, "10", p.Holdings["AAPL"])
	assert.Equal(t, 0, l.locks.size())
}

func TestApplyOrderConcurrentManyUsers(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	const (
		users  = 4
		orders = 25
	)

	var wg sync.WaitGroup
	for u := 0; u < users; u++ {
		for i := 0; i < orders; i++ {
			wg.Add(1)
			go func(user string) {
				defer wg.Done()
				_, err := l.ApplyOrder(ctx, user, "MSFT", model.Buy, dec("1"), dec("10.01"), OrderHooks{})
				assert.NoError(t, err)
			}(fmt.Sprintf("user-%d", u))
		}
	}
	wg.Wait()

	for u := 0; u < users; u++ {
		p, err := l.GetOrCreate(ctx, fmt.Sprintf("user-%d", u))
		require.NoError(t, err)
		assertDecimal(t, "99749.75", p.Cash)
		assertDecimal(t, "25", p.Holdings["MSFT"])
		assert.Equal(t, int64(orders+1), p.Version)
	}
}

func TestSavePortfolioStaleVersion(t *testing.T) {
	l, conn := newTestLedger(t)
	ctx := context.Background()

	p, err := l.GetOrCreate(ctx, testUser)
	require.NoError(t, err)

	_, err = savePortfolio(ctx, conn, p, l.now())
	require.NoError(t, err)

	// p still carries the version read before the first save
	_, err = savePortfolio(ctx, conn, p, l.now())
	require.ErrorIs(t, err, errVersionConflict)
}

func TestUserLocksSerialize(t *testing.T) {
	locks := newUserLocks()

	unlock := locks.Lock("a")
	acquired := make(chan struct{})
	go func() {
		u := locks.Lock("a")
		close(acquired)
		u()
	}()

	// a different user is not blocked
	unlockB := locks.Lock("b")
	unlockB()

	select {
	case <-acquired:
		t.Fatal("second lock on the same user acquired while held")
	default:
	}

	unlock()
	<-acquired
	assert.Eventually(t, func() bool { return locks.size() == 0 }, time.Second, time.Millisecond)
}
