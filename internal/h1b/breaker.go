package h1b

import (
	"context"
	"errors"

	"github.com/offersplus/backend/internal/circuitbreaker"
)

// BreakerSource guards a Source with a circuit breaker. Not-provisioned
// errors and cancellations pass through without counting as failures, so
// a missing table never opens the circuit.
type BreakerSource struct {
	next Source
	cb   *circuitbreaker.CircuitBreaker
}

// NewBreakerSource wraps next. cfg.IsFailure is replaced.
func NewBreakerSource(next Source, cfg circuitbreaker.Config) *BreakerSource {
	if cfg.Name == "" {
		cfg.Name = "h1b_source"
	}
	cfg.IsFailure = countsAsFailure
	return &BreakerSource{next: next, cb: circuitbreaker.New(cfg)}
}

func countsAsFailure(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrUnknownField) {
		return false
	}
	return !IsNotProvisioned(err)
}

// State exposes the breaker state for health reporting.
func (s *BreakerSource) State() circuitbreaker.State { return s.cb.GetState() }

func (s *BreakerSource) QueryPage(ctx context.Context, f Filters, p Pagination) (res PaginatedResult[Record], err error) {
	err = s.cb.Execute(ctx, func(ctx context.Context) error {
		res, err = s.next.QueryPage(ctx, f, p)
		return err
	})
	return res, err
}

func (s *BreakerSource) Distinct(ctx context.Context, field Field, limit int) (out []string, err error) {
	err = s.cb.Execute(ctx, func(ctx context.Context) error {
		out, err = s.next.Distinct(ctx, field, limit)
		return err
	})
	return out, err
}

func (s *BreakerSource) Sample(ctx context.Context, f Filters, limit int) (out []Record, err error) {
	err = s.cb.Execute(ctx, func(ctx context.Context) error {
		out, err = s.next.Sample(ctx, f, limit)
		return err
	})
	return out, err
}

func (s *BreakerSource) Export(ctx context.Context, f Filters, limit int) (out []Record, err error) {
	err = s.cb.Execute(ctx, func(ctx context.Context) error {
		out, err = s.next.Export(ctx, f, limit)
		return err
	})
	return out, err
}
