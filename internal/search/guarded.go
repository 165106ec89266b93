package search

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/bjornefisk/StudyTutor/internal/logging"
)

// Breaker defaults for the expansion generator.
const (
	breakerMinRequests  = 3
	breakerFailureRatio = 0.6
	breakerOpenTimeout  = 30 * time.Second
	breakerHalfOpenMax  = 1
)

// Notice conditions emitted once per process.
const (
	conditionExpansionFailed  = "expansion_failed"
	conditionExpansionBreaker = "expansion_breaker_open"
	conditionExpansionLimited = "expansion_rate_limited"
)

// GuardedExpander wraps an Expander so that it never fails. Calls are
// rate limited and pass through a circuit breaker; any failure yields
// the fallback's output, or no variants when there is no fallback.
type GuardedExpander struct {
	inner    Expander
	fallback Expander
	breaker  *gobreaker.CircuitBreaker[[]string]
	limiter  *rate.Limiter
	notifier *logging.Notifier
}

// GuardOptions configures a GuardedExpander.
type GuardOptions struct {
	// RatePerSecond bounds calls to inner; 0 disables limiting.
	RatePerSecond float64
	// Fallback is used when inner fails. Nil means no variants.
	Fallback Expander
	Notifier *logging.Notifier
}

// NewGuardedExpander wraps inner.
func NewGuardedExpander(inner Expander, opts GuardOptions) *GuardedExpander {
	g := &GuardedExpander{
		inner:    inner,
		fallback: opts.Fallback,
		notifier: opts.Notifier,
	}
	if opts.RatePerSecond > 0 {
		burst := max(1, int(opts.RatePerSecond))
		g.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	g.breaker = gobreaker.NewCircuitBreaker[[]string](gobreaker.Settings{
		Name:        "expansion:" + inner.Name(),
		MaxRequests: breakerHalfOpenMax,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < breakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= breakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation is not a generator failure.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				opts.Notifier.Warn(conditionExpansionBreaker, "query expansion circuit opened",
					slog.String("breaker", name),
					slog.String("from", from.String()))
			}
		},
	})
	return g
}

// Expand implements Expander and never returns an error.
func (g *GuardedExpander) Expand(ctx context.Context, query string, n int) ([]string, error) {
	if n <= 0 {
		return []string{}, nil
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			g.notifier.Warn(conditionExpansionLimited, "query expansion skipped by rate limiter",
				slog.String("error", err.Error()))
			return g.fallbackFor(ctx, query, n), nil
		}
	}

	out, err := g.breaker.Execute(func() ([]string, error) {
		return g.inner.Expand(ctx, query, n)
	})
	if err != nil {
		if !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests) {
			g.notifier.Warn(conditionExpansionFailed, "query expansion failed, continuing without variants",
				slog.String("expander", g.inner.Name()),
				slog.String("error", err.Error()))
		}
		return g.fallbackFor(ctx, query, n), nil
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func (g *GuardedExpander) fallbackFor(ctx context.Context, query string, n int) []string {
	if g.fallback == nil {
		return []string{}
	}
	out, err := g.fallback.Expand(ctx, query, n)
	if err != nil || out == nil {
		return []string{}
	}
	return out
}

// Name returns the wrapped expander's name.
func (g *GuardedExpander) Name() string { return g.inner.Name() }

// BreakerState reports the circuit state, e.g. "closed" or "open".
func (g *GuardedExpander) BreakerState() string { return g.breaker.State().String() }
