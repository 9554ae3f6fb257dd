package carrier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// GuardConfig configures Guarded
type GuardConfig struct {
	RatePerSecond   float64
	RateBurst       int
	BreakerFailures uint32        // consecutive failures that open the breaker
	BreakerOpenFor  time.Duration // how long the breaker stays open
}

// Guarded wraps a Submitter with a rate limiter and a circuit breaker.
// Neither retries: a refused submission fails immediately.
type Guarded struct {
	next    Submitter
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewGuarded creates a Guarded submitter
func NewGuarded(next Submitter, cfg GuardConfig) *Guarded {
	settings := gobreaker.Settings{
		Name:        "carrier-submit",
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			// The carrier answering "no" to one message says nothing about its health
			var carrierErr *Error
			return err == nil || (errors.As(err, &carrierErr) && carrierErr.Rejected())
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed: name=%s, from=%s, to=%s", name, from, to)
		},
	}

	return &Guarded{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Submit submits s if the limiter and breaker allow it
func (g *Guarded) Submit(ctx context.Context, s *Submission) (*Receipt, error) {
	if !g.limiter.Allow() {
		return nil, ErrRateLimited
	}

	res, err := g.breaker.Execute(func() (interface{}, error) {
		return g.next.Submit(ctx, s)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, err
	}
	return res.(*Receipt), nil
}

// State returns the breaker state, for diagnostics
func (g *Guarded) State() gobreaker.State {
	return g.breaker.State()
}
