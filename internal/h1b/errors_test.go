package h1b

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsNotProvisioned(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"undefined table", &pq.Error{Code: "42P01", Message: `relation "h1b_applications" does not exist`}, true},
		{"statement timeout", fmt.Errorf("count: %w", &pq.Error{Code: "57014", Message: "canceling statement due to statement timeout"}), true},
		{"other pq error", &pq.Error{Code: "23505", Message: "duplicate key"}, false},
		{"rest schema cache", &RestError{Status: 404, Code: "PGRST205", Message: "Could not find the table"}, true},
		{"rest undefined table", &RestError{Status: 404, Code: "42P01"}, true},
		{"rest server error", &RestError{Status: 503, Message: "upstream unavailable"}, false},
		{"relation message", errors.New(`ERROR: relation "public.h1b_applications" does not exist`), true},
		{"canceling statement message", errors.New("canceling statement due to user request"), true},
		{"context deadline", context.DeadlineExceeded, false},
		{"wrapped cancel", fmt.Errorf("query: %w", context.Canceled), false},
		{"network", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, false},
		{"plain failure", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsNotProvisioned(tt.err))
		})
	}
}

func TestRestErrorMessage(t *testing.T) {
	assert.Equal(t, "rest source: 404 PGRST205: missing", (&RestError{Status: 404, Code: "PGRST205", Message: "missing"}).Error())
	assert.Equal(t, "rest source: 500: oops", (&RestError{Status: 500, Message: "oops"}).Error())
}
