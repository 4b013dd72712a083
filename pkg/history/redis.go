package history

import (
	"context"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-redis/redis/v9"
)

const (
	RESULTS_KEY  = "yard-results"
	DEFAULT_KEEP = 1000
)

// RedisStore keeps the most recent results in a capped list.
type RedisStore struct {
	client *redis.Client
	keep   int
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(settings RedisSettings, keep int) *RedisStore {
	if keep <= 0 {
		keep = DEFAULT_KEEP
	}

	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     settings.Address,
			Password: settings.Password,
			DB:       settings.DB,
		}),
		keep: keep,
	}
}

func (r *RedisStore) Record(ctx context.Context, result Result) error {
	data, err := cbor.Marshal(result)
	if err != nil {
		return err
	}

	pipe := r.client.Pipeline()
	pipe.LPush(ctx, RESULTS_KEY, data)
	pipe.LTrim(ctx, RESULTS_KEY, 0, int64(r.keep-1))
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStore) Recent(ctx context.Context, limit int) ([]Result, error) {
	if limit <= 0 {
		return nil, nil
	}

	values, err := r.client.LRange(ctx, RESULTS_KEY, 0, int64(limit-1)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(values))
	for _, value := range values {
		var result Result
		if err := cbor.Unmarshal([]byte(value), &result); err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// Clear drops every stored result.
func (r *RedisStore) Clear(ctx context.Context) error {
	return r.client.Del(ctx, RESULTS_KEY).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
