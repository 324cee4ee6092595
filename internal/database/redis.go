package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tejusbharadwaj/spotprice/internal/config"
	"github.com/tejusbharadwaj/spotprice/internal/models"
)

// RedisRepo stores each snapshot under <prefix><AREA> with a TTL and keeps
// the set of areas under <prefix>areas.
type RedisRepo struct {
	client *redis.Client
	cfg    config.RedisConfig
}

func NewRedisRepo(ctx context.Context, cfg config.RedisConfig) (*RedisRepo, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisRepoWithClient(client, cfg), nil
}

// NewRedisRepoWithClient wraps an existing client.
func NewRedisRepoWithClient(client *redis.Client, cfg config.RedisConfig) *RedisRepo {
	return &RedisRepo{client: client, cfg: cfg}
}

func (r *RedisRepo) key(area string) string {
	return r.cfg.KeyPrefix + areaKey(area)
}

func (r *RedisRepo) indexKey() string {
	return r.cfg.KeyPrefix + "areas"
}

func (r *RedisRepo) Save(ctx context.Context, data *models.IntervalPriceData) error {
	payload, err := encodeSnapshot(data)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(data.Area), payload, r.cfg.TTL)
		pipe.SAdd(ctx, r.indexKey(), areaKey(data.Area))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (r *RedisRepo) Load(ctx context.Context, area string) (*models.IntervalPriceData, error) {
	payload, err := r.client.Get(ctx, r.key(area)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(payload)
}

// LoadAll skips index entries whose snapshot has expired.
func (r *RedisRepo) LoadAll(ctx context.Context) ([]*models.IntervalPriceData, error) {
	areas, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(areas) == 0 {
		return nil, nil
	}

	keys := make([]string, len(areas))
	for i, a := range areas {
		keys[i] = r.key(a)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	var results []*models.IntervalPriceData
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			r.client.SRem(ctx, r.indexKey(), areas[i])
			continue
		}
		data, err := decodeSnapshot([]byte(s))
		if err != nil {
			return nil, err
		}
		results = append(results, data)
	}
	return results, nil
}

func (r *RedisRepo) Delete(ctx context.Context, area string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key(area))
		pipe.SRem(ctx, r.indexKey(), areaKey(area))
		return nil
	})
	return err
}

func (r *RedisRepo) Close() error {
	return r.client.Close()
}

var _ SnapshotRepository = (*RedisRepo)(nil)
