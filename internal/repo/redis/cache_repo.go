package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const catalogSnapshotKey = "catalog:snapshot"

var ErrCacheMiss = errors.New("cache miss")

// CacheRepo holds the serialized catalog snapshot the matcher scores against,
// so a burst of free-text requests does not re-read the whole catalog table.
type CacheRepo struct {
	client *goredis.Client
}

func NewCacheRepo(client *goredis.Client) *CacheRepo {
	return &CacheRepo{client: client}
}

func (r *CacheRepo) GetCatalogSnapshot(ctx context.Context, target any) error {
	if r.client == nil {
		return ErrCacheMiss
	}

	raw, err := r.client.Get(ctx, catalogSnapshotKey).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return ErrCacheMiss
		}
		return fmt.Errorf("get catalog snapshot: %w", err)
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode catalog snapshot: %w", err)
	}

	return nil
}

func (r *CacheRepo) SetCatalogSnapshot(ctx context.Context, value any, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}
	if ttl <= 0 {
		return nil
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode catalog snapshot: %w", err)
	}

	if err := r.client.Set(ctx, catalogSnapshotKey, raw, ttl).Err(); err != nil {
		return fmt.Errorf("set catalog snapshot: %w", err)
	}

	return nil
}

func (r *CacheRepo) InvalidateCatalogSnapshot(ctx context.Context) error {
	if r.client == nil {
		return nil
	}

	if err := r.client.Del(ctx, catalogSnapshotKey).Err(); err != nil {
		return fmt.Errorf("invalidate catalog snapshot: %w", err)
	}

	return nil
}
