package apierr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/offersplus/backend/internal/circuitbreaker"
	"github.com/offersplus/backend/internal/h1b"
	"github.com/offersplus/backend/internal/logger"
)

// ErrorCode represents a structured error code
type ErrorCode string

// Error code constants organized by category
const (
	// AUTH_ - Authentication and authorization errors
	ErrAuthMissing   ErrorCode = "AUTH_MISSING"
	ErrAuthInvalid   ErrorCode = "AUTH_INVALID"
	ErrAuthForbidden ErrorCode = "AUTH_FORBIDDEN"

	// H1B_ - Query errors against the H1B data source
	ErrH1BQueryFailed   ErrorCode = "H1B_QUERY_FAILED"
	ErrH1BUnavailable   ErrorCode = "H1B_UNAVAILABLE"
	ErrH1BInvalidField  ErrorCode = "H1B_INVALID_FIELD"
	ErrH1BInvalidParams ErrorCode = "H1B_INVALID_PARAMS"
	ErrH1BTimeout       ErrorCode = "H1B_TIMEOUT"

	// CACHE_ - Cache administration errors
	ErrCacheClearFailed    ErrorCode = "CACHE_CLEAR_FAILED"
	ErrCacheStatsFailed    ErrorCode = "CACHE_STATS_FAILED"
	ErrCacheCleanupFailed  ErrorCode = "CACHE_CLEANUP_FAILED"
	ErrCachePrefetchFailed ErrorCode = "CACHE_PREFETCH_FAILED"

	// SYSTEM_ - System and server errors
	ErrSystemInternal    ErrorCode = "SYSTEM_INTERNAL"
	ErrSystemUnavailable ErrorCode = "SYSTEM_UNAVAILABLE"
	ErrSystemTimeout     ErrorCode = "SYSTEM_TIMEOUT"

	// VALIDATION_ - Request validation errors
	ErrValidationInvalidJSON   ErrorCode = "VALIDATION_INVALID_JSON"
	ErrValidationInvalidFormat ErrorCode = "VALIDATION_INVALID_FORMAT"
	ErrValidationInvalidValue  ErrorCode = "VALIDATION_INVALID_VALUE"

	// RESOURCE_ - Resource errors
	ErrResourceNotFound ErrorCode = "RESOURCE_NOT_FOUND"

	// RATE_LIMIT_ - Rate limiting errors
	ErrRateLimitGlobal ErrorCode = "RATE_LIMIT_GLOBAL"
	ErrRateLimitIP     ErrorCode = "RATE_LIMIT_IP"
)

// Error represents a structured API error
type Error struct {
	Code      ErrorCode      `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	status    int
}

// ErrorResponse is the top-level error response wrapper
type ErrorResponse struct {
	Error *Error `json:"error"`
}

// New creates a new API error
func New(code ErrorCode, message string, status int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		status:  status,
	}
}

// WithDetails adds details to the error
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// WithRequestID adds a request ID to the error
func (e *Error) WithRequestID(requestID string) *Error {
	e.RequestID = requestID
	return e
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// Status returns the HTTP status code
func (e *Error) Status() int {
	return e.status
}

// WriteError writes a structured error response to the HTTP response writer
func WriteError(w http.ResponseWriter, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status())
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: err})
}

// GetRequestID extracts the request ID from the context
func GetRequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(logger.RequestIDKey).(string); ok {
		return reqID
	}
	return ""
}

// WriteErrorWithContext writes a structured error response with request ID from context
func WriteErrorWithContext(w http.ResponseWriter, r *http.Request, err *Error) {
	if reqID := GetRequestID(r.Context()); reqID != "" {
		err = err.WithRequestID(reqID)
	}
	WriteError(w, err)
}

// FromSourceError maps an error returned by the service layer onto the
// API error a client should see.
func FromSourceError(err error) *Error {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, h1b.ErrUnknownField):
		return H1BInvalidField("")
	case errors.Is(err, context.DeadlineExceeded):
		return H1BTimeout()
	case errors.Is(err, context.Canceled):
		return New(ErrSystemTimeout, "Request canceled", 499)
	case errors.Is(err, circuitbreaker.ErrCircuitOpen), h1b.IsNotProvisioned(err):
		return H1BUnavailable("")
	}
	return H1BQueryFailed("")
}

// AuthMissing creates an authentication missing error
func AuthMissing(message string) *Error {
	if message == "" {
		message = "Authentication required"
	}
	return New(ErrAuthMissing, message, http.StatusUnauthorized)
}

// AuthInvalid creates an invalid authentication error
func AuthInvalid(message string) *Error {
	if message == "" {
		message = "Invalid authentication credentials"
	}
	return New(ErrAuthInvalid, message, http.StatusUnauthorized)
}

// H1BQueryFailed reports a failed query against the data source.
func H1BQueryFailed(message string) *Error {
	if message == "" {
		message = "Failed to load H1B data"
	}
	return New(ErrH1BQueryFailed, message, http.StatusBadGateway)
}

// H1BUnavailable reports that the data source is not provisioned or its
// circuit is open.
func H1BUnavailable(message string) *Error {
	if message == "" {
		message = "H1B data is temporarily unavailable"
	}
	return New(ErrH1BUnavailable, message, http.StatusServiceUnavailable)
}

// H1BInvalidField reports an unsupported unique-values field.
func H1BInvalidField(field string) *Error {
	e := New(ErrH1BInvalidField, "Unsupported field", http.StatusBadRequest)
	if field != "" {
		e.Message = "Unsupported field: " + field
		e = e.WithDetails(map[string]any{"field": field, "allowed": []string{"employer", "status", "jobTitle"}})
	}
	return e
}

// H1BInvalidParams reports malformed filter or pagination parameters.
func H1BInvalidParams(message string) *Error {
	if message == "" {
		message = "Invalid query parameters"
	}
	return New(ErrH1BInvalidParams, message, http.StatusBadRequest)
}

// H1BTimeout reports a source query that ran past its deadline.
func H1BTimeout() *Error {
	return New(ErrH1BTimeout, "H1B query timeout - try narrowing the filters", http.StatusGatewayTimeout)
}

// CacheClearFailed creates a cache clear failure error
func CacheClearFailed(message string) *Error {
	if message == "" {
		message = "Failed to clear cache"
	}
	return New(ErrCacheClearFailed, message, http.StatusInternalServerError)
}

// CacheStatsFailed creates a cache stats failure error
func CacheStatsFailed(message string) *Error {
	if message == "" {
		message = "Failed to read cache statistics"
	}
	return New(ErrCacheStatsFailed, message, http.StatusInternalServerError)
}

// CacheCleanupFailed creates a cache cleanup failure error
func CacheCleanupFailed(message string) *Error {
	if message == "" {
		message = "Failed to remove expired cache entries"
	}
	return New(ErrCacheCleanupFailed, message, http.StatusInternalServerError)
}

// CachePrefetchFailed creates a prefetch failure error
func CachePrefetchFailed(message string) *Error {
	if message == "" {
		message = "Prefetch is not available"
	}
	return New(ErrCachePrefetchFailed, message, http.StatusServiceUnavailable)
}

// SystemInternal creates an internal server error
func SystemInternal(message string) *Error {
	if message == "" {
		message = "Internal server error"
	}
	return New(ErrSystemInternal, message, http.StatusInternalServerError)
}

// SystemUnavailable creates a service unavailable error
func SystemUnavailable(message string) *Error {
	if message == "" {
		message = "Service unavailable"
	}
	return New(ErrSystemUnavailable, message, http.StatusServiceUnavailable)
}

// ValidationInvalidFormat creates an invalid format error
func ValidationInvalidFormat(message string) *Error {
	if message == "" {
		message = "Invalid request format"
	}
	return New(ErrValidationInvalidFormat, message, http.StatusBadRequest)
}

// ValidationInvalidValue creates an invalid value error
func ValidationInvalidValue(field string, message string) *Error {
	if message == "" {
		message = "Invalid value for field: " + field
	}
	return New(ErrValidationInvalidValue, message, http.StatusBadRequest).
		WithDetails(map[string]any{"field": field})
}

// ResourceNotFound creates a resource not found error
func ResourceNotFound(resourceType string) *Error {
	return New(ErrResourceNotFound, resourceType+" not found", http.StatusNotFound).
		WithDetails(map[string]any{"resource_type": resourceType})
}

// RateLimitGlobal creates a global rate limit error
func RateLimitGlobal() *Error {
	return New(ErrRateLimitGlobal, "Rate limit exceeded - too many requests globally", http.StatusTooManyRequests)
}

// RateLimitIP creates an IP rate limit error
func RateLimitIP() *Error {
	return New(ErrRateLimitIP, "Rate limit exceeded - too many requests from your IP", http.StatusTooManyRequests)
}
