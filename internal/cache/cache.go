package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/aks129/fhirspective/pkg/models"
)

// Cache is the caching interface. All cache operations go through here.
// Implementations must be safe for concurrent use.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	SetAssessmentStatus(ctx context.Context, assessmentID uuid.UUID, status string, ttl time.Duration) error
	GetAssessmentStatus(ctx context.Context, assessmentID uuid.UUID) (string, bool, error)
	SetProgress(ctx context.Context, progress *models.Progress, ttl time.Duration) error
	GetProgress(ctx context.Context, assessmentID uuid.UUID) (*models.Progress, bool, error)
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *RedisCache) SetAssessmentStatus(ctx context.Context, assessmentID uuid.UUID, status string, ttl time.Duration) error {
	return c.client.Set(ctx, AssessmentStatusKey(assessmentID), status, ttl).Err()
}

func (c *RedisCache) GetAssessmentStatus(ctx context.Context, assessmentID uuid.UUID) (string, bool, error) {
	val, err := c.client.Get(ctx, AssessmentStatusKey(assessmentID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCache) SetProgress(ctx context.Context, progress *models.Progress, ttl time.Duration) error {
	data, err := json.Marshal(progress)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, ProgressKey(progress.AssessmentID), data, ttl).Err()
}

func (c *RedisCache) GetProgress(ctx context.Context, assessmentID uuid.UUID) (*models.Progress, bool, error) {
	val, err := c.client.Get(ctx, ProgressKey(assessmentID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var p models.Progress
	if err := json.Unmarshal(val, &p); err != nil {
		return nil, false, err
	}
	return &p, true, nil
}

// Close releases the underlying Redis connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
