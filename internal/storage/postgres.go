package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/masyukai/cart/internal/cart"
	"github.com/masyukai/cart/internal/condition"
)

// Postgres persists cart snapshots in the cart_storage table, one JSONB row
// per (identifier, instance, key). Schema lives in db/migrations.
type Postgres struct {
	Pool *pgxpool.Pool
}

// NewPostgres constructs a Postgres store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{Pool: pool}
}

const (
	pgSelect = `SELECT payload FROM cart_storage WHERE identifier = $1 AND instance = $2 AND key = $3`
	pgUpsert = `INSERT INTO cart_storage (identifier, instance, key, payload, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (identifier, instance, key)
DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`
)

func (p *Postgres) get(ctx context.Context, identifier, instance, key string) ([]byte, bool, error) {
	if p == nil || p.Pool == nil {
		return nil, false, errors.New("storage: postgres pool not configured")
	}
	var payload []byte
	err := p.Pool.QueryRow(ctx, pgSelect, identifier, instance, key).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return payload, true, nil
}

func (p *Postgres) put(ctx context.Context, identifier, instance, key string, payload []byte) error {
	if p == nil || p.Pool == nil {
		return errors.New("storage: postgres pool not configured")
	}
	_, err := p.Pool.Exec(ctx, pgUpsert, identifier, instance, key, payload)
	return err
}

// GetItems implements cart.Storage.
func (p *Postgres) GetItems(ctx context.Context, identifier, instance string) (*cart.ItemCollection, error) {
	raw, ok, err := p.get(ctx, identifier, instance, "items")
	if err != nil {
		return nil, fmt.Errorf("storage: postgres items: %w", err)
	}
	if !ok {
		return nil, nil
	}
	items := cart.NewItemCollection()
	if err := json.Unmarshal(raw, items); err != nil {
		return nil, fmt.Errorf("storage: decode items: %w", err)
	}
	return items, nil
}

// PutItems implements cart.Storage.
func (p *Postgres) PutItems(ctx context.Context, identifier, instance string, items *cart.ItemCollection) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("storage: encode items: %w", err)
	}
	if err := p.put(ctx, identifier, instance, "items", raw); err != nil {
		return fmt.Errorf("storage: postgres items: %w", err)
	}
	return nil
}

// GetConditions implements cart.Storage.
func (p *Postgres) GetConditions(ctx context.Context, identifier, instance string) (*condition.Collection, error) {
	raw, ok, err := p.get(ctx, identifier, instance, "conditions")
	if err != nil {
		return nil, fmt.Errorf("storage: postgres conditions: %w", err)
	}
	if !ok {
		return nil, nil
	}
	conds := condition.NewCollection()
	if err := json.Unmarshal(raw, conds); err != nil {
		return nil, fmt.Errorf("storage: decode conditions: %w", err)
	}
	return conds, nil
}

// PutConditions implements cart.Storage.
func (p *Postgres) PutConditions(ctx context.Context, identifier, instance string, conds *condition.Collection) error {
	raw, err := json.Marshal(conds)
	if err != nil {
		return fmt.Errorf("storage: encode conditions: %w", err)
	}
	if err := p.put(ctx, identifier, instance, "conditions", raw); err != nil {
		return fmt.Errorf("storage: postgres conditions: %w", err)
	}
	return nil
}

// GetMetadata implements cart.Storage.
func (p *Postgres) GetMetadata(ctx context.Context, identifier, instance, key string) ([]byte, bool, error) {
	raw, ok, err := p.get(ctx, identifier, instance, "meta:"+key)
	if err != nil {
		return nil, false, fmt.Errorf("storage: postgres metadata: %w", err)
	}
	return raw, ok, nil
}

// PutMetadata implements cart.Storage.
func (p *Postgres) PutMetadata(ctx context.Context, identifier, instance, key string, value []byte) error {
	if err := p.put(ctx, identifier, instance, "meta:"+key, value); err != nil {
		return fmt.Errorf("storage: postgres metadata: %w", err)
	}
	return nil
}
