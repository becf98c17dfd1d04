package database

import (
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-redis/redis"
	"github.com/pkg/errors"

	"github.com/armadaproject/batchsched/internal/common/batchcontext"
)

const (
	// Optimistic transactions are retried this many times when the watched key changes underneath them.
	redisWriteAttempts = 5
	redisRetryDelay    = 10 * time.Millisecond
)

// RedisStateStore is a StateStore that keeps each document as a JSON string under a prefixed redis key.
// Merging writes use WATCH/MULTI so concurrent writers don't lose each other's updates.
type RedisStateStore struct {
	db        *redis.Client
	keyPrefix string
}

func NewRedisStateStore(db *redis.Client, keyPrefix string) *RedisStateStore {
	return &RedisStateStore{
		db:        db,
		keyPrefix: keyPrefix,
	}
}

func (r *RedisStateStore) redisKey(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	return fmt.Sprintf("%s:%s", r.keyPrefix, key)
}

func (r *RedisStateStore) Read(ctx *batchcontext.Context, key string) (Document, error) {
	bytes, err := r.db.WithContext(ctx).Get(r.redisKey(key)).Bytes()
	if err == redis.Nil {
		return Document{}, nil
	} else if err != nil {
		return nil, errors.Wrapf(err, "error reading %s from redis", key)
	}
	return decodeDocument(bytes)
}

func (r *RedisStateStore) Write(ctx *batchcontext.Context, key string, doc Document, merge bool) error {
	db := r.db.WithContext(ctx)
	redisKey := r.redisKey(key)
	if !merge {
		bytes, err := encodeDocument(doc)
		if err != nil {
			return err
		}
		if err := db.Set(redisKey, bytes, 0).Err(); err != nil {
			return errors.Wrapf(err, "error writing %s to redis", key)
		}
		return nil
	}

	merged := func(tx *redis.Tx) error {
		existing, err := tx.Get(redisKey).Bytes()
		if err != nil && err != redis.Nil {
			return err
		}
		current, err := decodeDocument(existing)
		if err != nil {
			return err
		}
		bytes, err := encodeDocument(Merge(current, doc))
		if err != nil {
			return err
		}
		_, err = tx.Pipelined(func(pipe redis.Pipeliner) error {
			pipe.Set(redisKey, bytes, 0)
			return nil
		})
		return err
	}

	err := retry.Do(
		func() error { return db.Watch(merged, redisKey) },
		retry.Attempts(redisWriteAttempts),
		retry.Delay(redisRetryDelay),
		retry.RetryIf(func(err error) bool { return err == redis.TxFailedErr }),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return errors.Wrapf(err, "error merging %s into redis", key)
	}
	return nil
}
