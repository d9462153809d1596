package quote

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/ratelimit"
)

var errLimiterStopped = errors.New("rate limiter stopped")

// limiter hands out ratelimit slots only to callers that are still waiting.
// A caller whose ctx is done before its turn gives the slot to the next one.
type limiter struct {
	tokens chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newLimiter(rl ratelimit.Limiter) *limiter {
	l := &limiter{
		tokens: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go l.run(rl)
	return l
}

func (l *limiter) run(rl ratelimit.Limiter) {
	for {
		rl.Take()
		select {
		case l.tokens <- struct{}{}:
		case <-l.done:
			return
		}
	}
}

func (l *limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-l.tokens:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return errLimiterStopped
	}
}

func (l *limiter) Stop() {
	l.once.Do(func() { close(l.done) })
}
