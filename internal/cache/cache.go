package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by a Backend when no entry exists for a key.
var ErrNotFound = errors.New("cache: entry not found")

// Entry is a single persisted cache record.
type Entry struct {
	Key        string `json:"key"`
	Data       string `json:"data"`
	Timestamp  int64  `json:"timestamp"` // creation time, unix milliseconds
	TTL        int64  `json:"ttl"`       // lifetime in milliseconds
	Compressed bool   `json:"compressed"`
	SizeBytes  int    `json:"size"` // size of the uncompressed payload
}

// Valid reports whether the entry is still live at now.
func (e *Entry) Valid(now time.Time) bool {
	return now.UnixMilli()-e.Timestamp <= e.TTL
}

// ExpiresAt returns the last instant at which the entry is still valid.
func (e *Entry) ExpiresAt() time.Time {
	return time.UnixMilli(e.Timestamp + e.TTL)
}

// Backend is the storage layer beneath a Store. Implementations must be
// safe for concurrent use; Put is an overwrite keyed by Entry.Key.
type Backend interface {
	// Get returns the entry for key or ErrNotFound.
	Get(ctx context.Context, key string) (*Entry, error)

	// Put stores the entry, replacing any entry with the same key.
	Put(ctx context.Context, e *Entry) error

	// Delete removes the entry for key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes all entries.
	Clear(ctx context.Context) error

	// Scan calls fn for every entry in ascending timestamp order.
	// Returning an error from fn stops the scan and is returned.
	Scan(ctx context.Context, fn func(*Entry) error) error

	// Close releases the underlying connection.
	Close() error
}

// Opener establishes a Backend for the given options. A Store calls its
// Opener at most once successfully.
type Opener func(ctx context.Context, opts Options) (Backend, error)

// Clock abstracts time for expiry decisions.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}
