package h1b

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/lib/pq"
)

// RestError is an error body returned by a PostgREST endpoint.
type RestError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

func (e *RestError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("rest source: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("rest source: %d: %s", e.Status, e.Message)
}

// Postgres codes: undefined_table, query_canceled (statement timeout).
const (
	pqUndefinedTable = "42P01"
	pqQueryCanceled  = "57014"
	restSchemaCache  = "PGRST205"
)

// IsNotProvisioned reports whether err means the H1B table is missing or
// too slow to scan. Such errors degrade to empty results instead of
// failing. Network failures and context deadlines are transient and never
// match.
func IsNotProvisioned(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqUndefinedTable, pqQueryCanceled:
			return true
		}
	}
	var restErr *RestError
	if errors.As(err, &restErr) {
		switch restErr.Code {
		case restSchemaCache, pqUndefinedTable, pqQueryCanceled:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist") {
		return true
	}
	return strings.Contains(msg, "statement timeout") || strings.Contains(msg, "canceling statement")
}
