package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/masyukai/cart/internal/cart"
	"github.com/masyukai/cart/internal/condition"
)

// Redis persists cart snapshots as JSON values in Redis. A TTL greater than
// zero makes abandoned carts expire on their own.
type Redis struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
}

// NewRedis constructs a Redis store.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	return &Redis{Client: client, Prefix: prefix, TTL: ttl}
}

func (r *Redis) key(identifier, instance, kind string) string {
	prefix := r.Prefix
	if prefix == "" {
		prefix = "cart"
	}
	return fmt.Sprintf("%s:%s:%s:%s", prefix, identifier, instance, kind)
}

func (r *Redis) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	if r == nil || r.Client == nil {
		return false, errors.New("storage: redis client not configured")
	}
	data, err := r.Client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Redis) setJSON(ctx context.Context, key string, v any) error {
	if r == nil || r.Client == nil {
		return errors.New("storage: redis client not configured")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.Client.Set(ctx, key, data, r.TTL).Err()
}

// GetItems implements cart.Storage.
func (r *Redis) GetItems(ctx context.Context, identifier, instance string) (*cart.ItemCollection, error) {
	items := cart.NewItemCollection()
	ok, err := r.getJSON(ctx, r.key(identifier, instance, "items"), items)
	if err != nil {
		return nil, fmt.Errorf("storage: redis items: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return items, nil
}

// PutItems implements cart.Storage.
func (r *Redis) PutItems(ctx context.Context, identifier, instance string, items *cart.ItemCollection) error {
	if err := r.setJSON(ctx, r.key(identifier, instance, "items"), items); err != nil {
		return fmt.Errorf("storage: redis items: %w", err)
	}
	return nil
}

// GetConditions implements cart.Storage.
func (r *Redis) GetConditions(ctx context.Context, identifier, instance string) (*condition.Collection, error) {
	conds := condition.NewCollection()
	ok, err := r.getJSON(ctx, r.key(identifier, instance, "conditions"), conds)
	if err != nil {
		return nil, fmt.Errorf("storage: redis conditions: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return conds, nil
}

// PutConditions implements cart.Storage.
func (r *Redis) PutConditions(ctx context.Context, identifier, instance string, conds *condition.Collection) error {
	if err := r.setJSON(ctx, r.key(identifier, instance, "conditions"), conds); err != nil {
		return fmt.Errorf("storage: redis conditions: %w", err)
	}
	return nil
}

// GetMetadata implements cart.Storage.
func (r *Redis) GetMetadata(ctx context.Context, identifier, instance, key string) ([]byte, bool, error) {
	if r == nil || r.Client == nil {
		return nil, false, errors.New("storage: redis client not configured")
	}
	data, err := r.Client.Get(ctx, r.key(identifier, instance, "meta:"+key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("storage: redis metadata: %w", err)
	}
	return data, true, nil
}

// PutMetadata implements cart.Storage.
func (r *Redis) PutMetadata(ctx context.Context, identifier, instance, key string, value []byte) error {
	if r == nil || r.Client == nil {
		return errors.New("storage: redis client not configured")
	}
	if err := r.Client.Set(ctx, r.key(identifier, instance, "meta:"+key), value, r.TTL).Err(); err != nil {
		return fmt.Errorf("storage: redis metadata: %w", err)
	}
	return nil
}
