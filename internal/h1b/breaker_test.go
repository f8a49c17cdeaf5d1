package h1b

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offersplus/backend/internal/circuitbreaker"
)

type errSource struct {
	err   error
	calls int
}

func (s *errSource) QueryPage(context.Context, Filters, Pagination) (PaginatedResult[Record], error) {
	s.calls++
	return PaginatedResult[Record]{}, s.err
}

func (s *errSource) Distinct(context.Context, Field, int) ([]string, error) {
	s.calls++
	return nil, s.err
}

func (s *errSource) Sample(context.Context, Filters, int) ([]Record, error) {
	s.calls++
	return nil, s.err
}

func (s *errSource) Export(context.Context, Filters, int) ([]Record, error) {
	s.calls++
	return nil, s.err
}

func TestBreakerSourceOpensOnTransientErrors(t *testing.T) {
	inner := &errSource{err: errors.New("connection reset")}
	src := NewBreakerSource(inner, circuitbreaker.Config{Name: "h1b_test_transient", FailureThreshold: 2, Timeout: time.Hour})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := src.Sample(ctx, Filters{}, 10)
		assert.ErrorIs(t, err, inner.err)
	}
	assert.Equal(t, circuitbreaker.StateOpen, src.State())

	_, err := src.Export(ctx, Filters{}, 10)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, 2, inner.calls)
}

func TestBreakerSourceIgnoresMissingTable(t *testing.T) {
	inner := &errSource{err: &pq.Error{Code: "42P01", Message: "relation does not exist"}}
	src := NewBreakerSource(inner, circuitbreaker.Config{Name: "h1b_test_missing", FailureThreshold: 1})
	for i := 0; i < 3; i++ {
		_, err := src.QueryPage(context.Background(), Filters{}, Pagination{})
		assert.True(t, IsNotProvisioned(err))
	}
	assert.Equal(t, circuitbreaker.StateClosed, src.State())
	assert.Equal(t, 3, inner.calls)
}

func TestBreakerSourcePassesResults(t *testing.T) {
	src := NewBreakerSource(NewMemorySource(fixtureRecords()...), circuitbreaker.Config{Name: "h1b_test_ok"})
	values, err := src.Distinct(context.Background(), FieldJobTitle, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Data Analyst", "Product Manager"}, values)
}
