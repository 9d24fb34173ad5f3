package provider

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/hejijunhao/statusreport/internal/errs"
)

// Limiter is a token bucket owned by one run. It is created when the run
// starts and closed when it ends; waits after Close fail with
// errs.ErrLimiterClosed, and Close releases any goroutine still waiting.
type Limiter struct {
	lim    *rate.Limiter
	done   context.Context
	cancel context.CancelFunc
	closed atomic.Bool
}

// NewLimiter creates a bucket refilling at perSecond tokens with the given burst.
func NewLimiter(perSecond float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	done, cancel := context.WithCancel(context.Background())
	return &Limiter{
		lim:    rate.NewLimiter(rate.Limit(perSecond), burst),
		done:   done,
		cancel: cancel,
	}
}

// Wait blocks until a token is available, ctx is done, or the limiter closes.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.closed.Load() {
		return errs.ErrLimiterClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(l.done, cancel)
	defer stop()

	if err := l.lim.Wait(ctx); err != nil {
		if l.closed.Load() {
			return errs.ErrLimiterClosed
		}
		return err
	}
	return nil
}

// Close releases the bucket. It is safe to call more than once.
func (l *Limiter) Close() {
	if l.closed.CompareAndSwap(false, true) {
		l.cancel()
	}
}

// Limited wraps p so every Complete call first waits on l.
func Limited(p Provider, l *Limiter) Provider {
	return &limited{Provider: p, lim: l}
}

type limited struct {
	Provider
	lim *Limiter
}

func (p *limited) Complete(ctx context.Context, req Request) (string, error) {
	if err := p.lim.Wait(ctx); err != nil {
		return "", err
	}
	return p.Provider.Complete(ctx, req)
}
