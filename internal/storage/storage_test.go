package storage_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/masyukai/cart/internal/cart"
	"github.com/masyukai/cart/internal/condition"
	"github.com/masyukai/cart/internal/storage"
)

func sampleItems(t *testing.T) *cart.ItemCollection {
	t.Helper()
	itemCond, err := condition.New(condition.Spec{
		Name:   "clearance",
		Type:   condition.TypeDiscount,
		Target: condition.TargetItem,
		Value:  "-25%",
	})
	require.NoError(t, err)

	items := cart.NewItemCollection()
	raw := `[
		{"id":"sku-1","name":"Mechanical Keyboard","unit_price":{"amount":"89.90","currency":"USD"},"quantity":2,
		 "attributes":{"category":"peripherals"},
		 "conditions":[{"name":"clearance","type":"discount","target":"item","value":"-25%","order":0}]},
		{"id":"sku-2","name":"USB Cable","unit_price":{"amount":"4.50","currency":"USD"},"quantity":5}
	]`
	require.NoError(t, items.UnmarshalJSON([]byte(raw)))
	got, ok := items.Get("sku-1")
	require.True(t, ok)
	require.True(t, got.Conditions.Has(itemCond.Name))
	return items
}

func sampleConditions(t *testing.T) *condition.Collection {
	t.Helper()
	conds := condition.NewCollection()
	vat, err := condition.New(condition.Spec{Name: "vat", Type: condition.TypeTax, Target: condition.TargetSubtotal, Value: "12.5%", Order: 10})
	require.NoError(t, err)
	require.NoError(t, conds.Add(vat))
	return conds
}

func verifyStore(t *testing.T, store cart.Storage) {
	t.Helper()
	ctx := context.Background()

	// empty reads report absence, not errors
	items, err := store.GetItems(ctx, "user-1", "default")
	require.NoError(t, err)
	require.Nil(t, items)
	_, ok, err := store.GetMetadata(ctx, "user-1", "default", "dynamic_conditions")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.PutItems(ctx, "user-1", "default", sampleItems(t)))
	require.NoError(t, store.PutConditions(ctx, "user-1", "default", sampleConditions(t)))
	require.NoError(t, store.PutMetadata(ctx, "user-1", "default", "dynamic_conditions", []byte(`[]`)))

	items, err = store.GetItems(ctx, "user-1", "default")
	require.NoError(t, err)
	require.Equal(t, 2, items.Len())
	kb, ok := items.Get("sku-1")
	require.True(t, ok)
	require.Equal(t, int64(8990), kb.UnitPrice.MinorUnits())
	require.Equal(t, "USD", kb.UnitPrice.Currency())
	require.True(t, kb.Conditions.Has("clearance"))

	conds, err := store.GetConditions(ctx, "user-1", "default")
	require.NoError(t, err)
	vat, ok := conds.Get("vat")
	require.True(t, ok)
	require.Equal(t, 10, vat.Order)

	raw, ok, err := store.GetMetadata(ctx, "user-1", "default", "dynamic_conditions")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `[]`, string(raw))

	// instances are independent namespaces
	other, err := store.GetItems(ctx, "user-1", "wishlist")
	require.NoError(t, err)
	require.Nil(t, other)
}

func TestMemoryStore(t *testing.T) {
	verifyStore(t, storage.NewMemory())
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	verifyStore(t, storage.NewRedis(client, "carttest", time.Hour))
}

func TestRedisStoreTTL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := storage.NewRedis(client, "carttest", time.Minute)
	ctx := context.Background()
	require.NoError(t, store.PutItems(ctx, "user-2", "default", sampleItems(t)))

	mr.FastForward(2 * time.Minute)

	items, err := store.GetItems(ctx, "user-2", "default")
	require.NoError(t, err)
	require.Nil(t, items)
}
