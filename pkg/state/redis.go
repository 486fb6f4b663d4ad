package state

import (
	"context"
	"slices"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

const scanBatchSize = 512

var _ Store = (*RedisStore)(nil)

// RedisStore is a Store backed by redis. Every key is stored under Namespace so several nodes can
// share one redis instance.
type RedisStore struct {
	Namespace string
	Client    *redis.Client
}

type RedisOptions = redis.Options

func NewRedisStore(options RedisOptions, namespace string) *RedisStore {
	return &RedisStore{
		Namespace: namespace,
		Client:    redis.NewClient(&options),
	}
}

// Ping checks the connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	return eris.Wrap(r.Client.Ping(ctx).Err(), "failed to ping redis")
}

func (r *RedisStore) key(k string) string {
	return r.Namespace + ":" + k
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	bz, err := r.Client.Get(ctx, r.key(key)).Bytes()
	if eris.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrapf(err, "failed to get key %s", key)
	}
	return bz, true, nil
}

func (r *RedisStore) Iterate(ctx context.Context, prefix string, fn func(string, []byte) bool) error {
	match := escapeGlob(r.key(prefix)) + "*"

	var keys []string
	iter := r.Client.Scan(ctx, 0, match, scanBatchSize).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return eris.Wrapf(err, "failed to scan prefix %s", prefix)
	}
	if len(keys) == 0 {
		return nil
	}
	// SCAN may return a key more than once.
	slices.Sort(keys)
	keys = slices.Compact(keys)

	for start := 0; start < len(keys); start += scanBatchSize {
		chunk := keys[start:min(start+scanBatchSize, len(keys))]
		values, err := r.Client.MGet(ctx, chunk...).Result()
		if err != nil {
			return eris.Wrapf(err, "failed to read prefix %s", prefix)
		}
		for i, v := range values {
			s, ok := v.(string)
			if !ok {
				continue // deleted between SCAN and MGET
			}
			if !fn(strings.TrimPrefix(chunk[i], r.Namespace+":"), []byte(s)) {
				return nil
			}
		}
	}
	return nil
}

// Apply writes the batch inside MULTI/EXEC.
func (r *RedisStore) Apply(ctx context.Context, batch Batch) error {
	if len(batch) == 0 {
		return nil
	}
	_, err := r.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range batch {
			if op.Value == nil {
				pipe.Del(ctx, r.key(op.Key))
				continue
			}
			pipe.Set(ctx, r.key(op.Key), op.Value, 0)
		}
		return nil
	})
	return eris.Wrap(err, "failed to commit batch")
}

func (r *RedisStore) Close() error {
	return eris.Wrap(r.Client.Close(), "failed to close redis client")
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}
