package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"astapp/internal/model"
)

// FormCache handles Redis operations for parsed form configs
type FormCache interface {
	SetForm(ctx context.Context, appID string, cfg *model.FormConfig) error
	GetForm(ctx context.Context, appID string) (*model.FormConfig, error)
	DeleteForm(ctx context.Context, appID string) error
}

type formCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewFormCache creates a new form cache
func NewFormCache(client *redis.Client, ttl time.Duration) FormCache {
	return &formCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *formCache) key(appID string) string {
	return fmt.Sprintf("form:%s:config", appID)
}

func (c *formCache) SetForm(ctx context.Context, appID string, cfg *model.FormConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(appID), data, c.ttl).Err()
}

// GetForm returns nil, nil on a miss. Numeric app fields come back as
// float64; callers normalize.
func (c *formCache) GetForm(ctx context.Context, appID string) (*model.FormConfig, error) {
	data, err := c.client.Get(ctx, c.key(appID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg model.FormConfig
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *formCache) DeleteForm(ctx context.Context, appID string) error {
	return c.client.Del(ctx, c.key(appID)).Err()
}
