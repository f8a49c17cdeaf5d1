package cache

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"
)

// ErrCorruptEntry is returned when a stored entry cannot be decoded.
var ErrCorruptEntry = errors.New("cache: corrupt entry")

var metaBucket = []byte("meta")

// BoltBackend persists entries in a bbolt file. Entries live in one bucket
// keyed by cache key; a second bucket indexes them by timestamp.
type BoltBackend struct {
	db      *bolt.DB
	entries []byte
	byTime  []byte
}

// BoltOpener returns an Opener for a bbolt file at path.
func BoltOpener(path string) Opener {
	return func(ctx context.Context, opts Options) (Backend, error) {
		return OpenBolt(ctx, path, opts)
	}
}

// OpenBolt opens (or creates) the bbolt file at path and prepares the
// collection buckets for opts. A stored schema version that differs from
// opts.Version drops and recreates the collection.
func OpenBolt(ctx context.Context, path string, opts Options) (*BoltBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	b := &BoltBackend{
		db:      db,
		entries: []byte(opts.Collection),
		byTime:  []byte(opts.Collection + "_by_timestamp"),
	}
	if err := b.migrate(opts.Version); err != nil {
		db.Close()
		return nil, err
	}
	return b, ctx.Err()
}

func (b *BoltBackend) migrate(version int) error {
	want := []byte(strconv.Itoa(version))
	return b.db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}
		if got := meta.Get(b.entries); got != nil && !bytes.Equal(got, want) {
			if err := dropBucket(tx, b.entries); err != nil {
				return err
			}
			if err := dropBucket(tx, b.byTime); err != nil {
				return err
			}
		}
		if _, err := tx.CreateBucketIfNotExists(b.entries); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(b.byTime); err != nil {
			return err
		}
		return meta.Put(b.entries, want)
	})
}

func dropBucket(tx *bolt.Tx, name []byte) error {
	if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
		return err
	}
	return nil
}

// timeIndexKey orders index keys by big-endian timestamp, then cache key.
func timeIndexKey(ts int64, key string) []byte {
	out := make([]byte, 8+len(key))
	binary.BigEndian.PutUint64(out, uint64(ts))
	copy(out[8:], key)
	return out
}

func (b *BoltBackend) Get(_ context.Context, key string) (*Entry, error) {
	var e *Entry
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(b.entries).Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}
		var decoded Entry
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptEntry, err)
		}
		e = &decoded
		return nil
	})
	return e, err
}

func (b *BoltBackend) Put(_ context.Context, e *Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		entries, index := tx.Bucket(b.entries), tx.Bucket(b.byTime)
		if err := unindex(entries, index, e.Key); err != nil {
			return err
		}
		if err := entries.Put([]byte(e.Key), raw); err != nil {
			return err
		}
		return index.Put(timeIndexKey(e.Timestamp, e.Key), nil)
	})
}

// unindex removes the timestamp index row of the entry currently stored
// under key, if any.
func unindex(entries, index *bolt.Bucket, key string) error {
	prev := entries.Get([]byte(key))
	if prev == nil {
		return nil
	}
	var old Entry
	if err := json.Unmarshal(prev, &old); err != nil {
		// the index row cannot be located; the sweep in Scan drops it.
		return nil
	}
	return index.Delete(timeIndexKey(old.Timestamp, key))
}

func (b *BoltBackend) Delete(_ context.Context, key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		entries, index := tx.Bucket(b.entries), tx.Bucket(b.byTime)
		if err := unindex(entries, index, key); err != nil {
			return err
		}
		return entries.Delete([]byte(key))
	})
}

func (b *BoltBackend) Clear(context.Context) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{b.entries, b.byTime} {
			if err := dropBucket(tx, name); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}

// Scan walks the timestamp index. Entries are copied out of the read
// transaction before fn runs, so fn may call back into the backend.
func (b *BoltBackend) Scan(ctx context.Context, fn func(*Entry) error) error {
	var (
		entries  []Entry
		dangling [][]byte
		corrupt  [][]byte
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(b.entries)
		c := tx.Bucket(b.byTime).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if len(k) < 8 {
				continue
			}
			raw := data.Get(k[8:])
			if raw == nil {
				dangling = append(dangling, append([]byte(nil), k...))
				continue
			}
			var e Entry
			if err := json.Unmarshal(raw, &e); err != nil {
				corrupt = append(corrupt, append([]byte(nil), k[8:]...))
				dangling = append(dangling, append([]byte(nil), k...))
				continue
			}
			if e.Timestamp != int64(binary.BigEndian.Uint64(k[:8])) {
				dangling = append(dangling, append([]byte(nil), k...))
				continue
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(dangling) > 0 {
		if err := b.prune(dangling, corrupt); err != nil {
			return err
		}
	}
	for i := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(&entries[i]); err != nil {
			return err
		}
	}
	return nil
}

// prune drops index rows found dangling by Scan and the undecodable entries
// behind corrupt keys. Entries rewritten since the scan are left alone.
func (b *BoltBackend) prune(rows, corrupt [][]byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		data, index := tx.Bucket(b.entries), tx.Bucket(b.byTime)
		for _, k := range rows {
			if err := index.Delete(k); err != nil {
				return err
			}
		}
		for _, key := range corrupt {
			raw := data.Get(key)
			if raw == nil || json.Unmarshal(raw, new(Entry)) == nil {
				continue
			}
			if err := data.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BoltBackend) Close() error {
	return b.db.Close()
}
