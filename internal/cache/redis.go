package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisBackend stores entries in Redis so several API instances share one
// cache. Each entry is a JSON string with a native expiry matching its TTL;
// a sorted set scored by timestamp serves as the secondary index.
type RedisBackend struct {
	client *redis.Client
	prefix string
	index  string
}

// RedisOpener returns an Opener that dials Redis with ro.
func RedisOpener(ro *redis.Options) Opener {
	return func(ctx context.Context, opts Options) (Backend, error) {
		return OpenRedis(ctx, redis.NewClient(ro), opts)
	}
}

// OpenRedis wraps client as a Backend for opts.Collection. The backend owns
// client and closes it on Close.
func OpenRedis(ctx context.Context, client *redis.Client, opts Options) (*RedisBackend, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	base := opts.Name + ":" + opts.Collection
	r := &RedisBackend{
		client: client,
		prefix: base + ":e:",
		index:  base + ":by_timestamp",
	}
	if err := r.migrate(ctx, opts.Name+":meta:"+opts.Collection+":version", opts.Version); err != nil {
		client.Close()
		return nil, err
	}
	return r, nil
}

func (r *RedisBackend) migrate(ctx context.Context, versionKey string, version int) error {
	want := strconv.Itoa(version)
	got, err := r.client.Get(ctx, versionKey).Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return fmt.Errorf("read cache version: %w", err)
	case got != want:
		if err := r.Clear(ctx); err != nil {
			return err
		}
	}
	return r.client.Set(ctx, versionKey, want, 0).Err()
}

func (r *RedisBackend) Get(ctx context.Context, key string) (*Entry, error) {
	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	return &e, nil
}

func (r *RedisBackend) Put(ctx context.Context, e *Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	ttl := time.Duration(e.TTL) * time.Millisecond
	if ttl <= 0 {
		ttl = time.Millisecond
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.prefix+e.Key, raw, ttl)
		pipe.ZAdd(ctx, r.index, &redis.Z{Score: float64(e.Timestamp), Member: e.Key})
		return nil
	})
	return err
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.prefix+key)
		pipe.ZRem(ctx, r.index, key)
		return nil
	})
	return err
}

func (r *RedisBackend) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", 500).Result()
		if err != nil {
			return fmt.Errorf("scan cache keys: %w", err)
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	return r.client.Del(ctx, r.index).Err()
}

// Scan walks the timestamp index. Index members whose entry already expired
// in Redis are pruned.
func (r *RedisBackend) Scan(ctx context.Context, fn func(*Entry) error) error {
	keys, err := r.client.ZRange(ctx, r.index, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("read timestamp index: %w", err)
	}
	var (
		gone    []interface{}
		corrupt []string
	)
	for _, key := range keys {
		e, err := r.Get(ctx, key)
		switch {
		case errors.Is(err, ErrNotFound):
			gone = append(gone, key)
			continue
		case errors.Is(err, ErrCorruptEntry):
			corrupt = append(corrupt, key)
			continue
		case err != nil:
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	for _, key := range corrupt {
		if err := r.dropCorrupt(ctx, key); err != nil {
			return err
		}
	}
	if len(gone) > 0 {
		return r.client.ZRem(ctx, r.index, gone...).Err()
	}
	return nil
}

// dropCorrupt deletes key if its stored entry still fails to decode. The
// WATCH keeps a concurrent Put from being deleted.
func (r *RedisBackend) dropCorrupt(ctx context.Context, key string) error {
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, r.prefix+key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil && json.Unmarshal(raw, new(Entry)) == nil {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, r.prefix+key)
			pipe.ZRem(ctx, r.index, key)
			return nil
		})
		return err
	}, r.prefix+key)
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
