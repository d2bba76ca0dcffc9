package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
)

const minSlidingTTL = time.Second

// RedisOptions configures a RedisBackend.
type RedisOptions struct {
	// Prefix namespaces every key, e.g. "evauth".
	Prefix string
	// ClientID separates clients sharing one Redis.
	ClientID string
	// TTL bounds how long a record survives without a write.
	TTL time.Duration
	// Sliding extends TTL on every successful Load.
	Sliding bool
	// JitterRange spreads sliding expirations by up to ±JitterRange.
	JitterRange time.Duration
}

// RedisBackend is the authoritative session-backed store.
type RedisBackend struct {
	redis redis.UniversalClient
	opts  RedisOptions
}

func NewRedisBackend(client redis.UniversalClient, opts RedisOptions) (*RedisBackend, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	if opts.Prefix == "" {
		opts.Prefix = "evauth"
	}
	if opts.ClientID == "" {
		opts.ClientID = "default"
	}
	if opts.TTL <= 0 {
		return nil, errors.New("redis session TTL must be > 0")
	}
	if opts.JitterRange < 0 {
		return nil, errors.New("redis session jitter must be >= 0")
	}
	return &RedisBackend{redis: client, opts: opts}, nil
}

func (r *RedisBackend) key() string {
	return r.opts.Prefix + ":session:" + r.opts.ClientID
}

func (r *RedisBackend) savedAtKey() string {
	return r.opts.Prefix + ":session_at:" + r.opts.ClientID
}

func (r *RedisBackend) Load(ctx context.Context) ([]byte, error) {
	key := r.key()
	data, err := r.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if r.opts.Sliding {
		ttl, err := r.nextSlidingTTL()
		if err != nil {
			return nil, err
		}
		_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Expire(ctx, key, ttl)
			pipe.Expire(ctx, r.savedAtKey(), ttl)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}
	return data, nil
}

func (r *RedisBackend) Save(ctx context.Context, data []byte) error {
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(), data, r.opts.TTL)
		pipe.Set(ctx, r.savedAtKey(), time.Now().Unix(), r.opts.TTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func (r *RedisBackend) Delete(ctx context.Context) error {
	if err := r.redis.Del(ctx, r.key(), r.savedAtKey()).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// SavedAt returns when the current record was written.
func (r *RedisBackend) SavedAt(ctx context.Context) (time.Time, error) {
	unix, err := r.redis.Get(ctx, r.savedAtKey()).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return time.Unix(unix, 0), nil
}

// Ping measures a round-trip to Redis.
func (r *RedisBackend) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return time.Since(start), nil
}

func (r *RedisBackend) nextSlidingTTL() (time.Duration, error) {
	ttl := r.opts.TTL
	if r.opts.JitterRange > 0 {
		jitter, err := randomJitter(r.opts.JitterRange)
		if err != nil {
			return 0, err
		}
		ttl += jitter
	}
	if ttl < minSlidingTTL {
		ttl = minSlidingTTL
	}
	return ttl, nil
}

func randomJitter(jitterRange time.Duration) (time.Duration, error) {
	span := big.NewInt(int64(jitterRange)*2 + 1)
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return 0, err
	}
	return time.Duration(n.Int64()) - jitterRange, nil
}
