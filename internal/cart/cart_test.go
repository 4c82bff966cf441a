package cart_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/masyukai/cart/internal/cart"
	"github.com/masyukai/cart/internal/condition"
	"github.com/masyukai/cart/internal/events"
	"github.com/masyukai/cart/internal/money"
	"github.com/masyukai/cart/internal/storage"
)

var usd = money.Policy{Currency: "USD", Precision: 2}

func price(minor int64) money.Money {
	return money.FromMinorUnits(minor, usd)
}

type captureSink struct {
	topics   []string
	payloads []cart.Event
	fail     error
}

func (s *captureSink) Emit(_ context.Context, topic string, payload any) error {
	if s.fail != nil {
		return s.fail
	}
	s.topics = append(s.topics, topic)
	if ev, ok := payload.(cart.Event); ok {
		s.payloads = append(s.payloads, ev)
	}
	return nil
}

func newCart(t *testing.T) (*cart.Cart, *storage.Memory, *captureSink) {
	t.Helper()
	store := storage.NewMemory()
	sink := &captureSink{}
	c, err := cart.New(context.Background(), "user-1", "default", cart.Options{
		Storage: store,
		Events:  sink,
		Policy:  usd,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	return c, store, sink
}

func TestAddValidation(t *testing.T) {
	c, _, _ := newCart(t)
	ctx := context.Background()

	cases := []cart.ItemSpec{
		{ID: "", Name: "Widget", UnitPrice: price(100), Quantity: 1},
		{ID: "sku-1", Name: "", UnitPrice: price(100), Quantity: 1},
		{ID: "sku-1", Name: "Widget", UnitPrice: price(0), Quantity: 1},
		{ID: "sku-1", Name: "Widget", UnitPrice: price(-100), Quantity: 1},
		{ID: "sku-1", Name: "Widget", UnitPrice: price(100), Quantity: 0},
	}
	for _, spec := range cases {
		_, err := c.Add(ctx, spec)
		require.ErrorIs(t, err, cart.ErrInvalidItem)
	}
	require.True(t, c.IsEmpty())
}

func TestMergeOnAdd(t *testing.T) {
	c, _, _ := newCart(t)
	ctx := context.Background()

	_, err := c.Add(ctx, cart.ItemSpec{ID: "sku-1", Name: "Widget", UnitPrice: price(1000), Quantity: 2})
	require.NoError(t, err)
	// second add merges quantity; the new price and name are ignored
	item, err := c.Add(ctx, cart.ItemSpec{ID: "sku-1", Name: "Renamed", UnitPrice: price(9999), Quantity: 3})
	require.NoError(t, err)

	require.Equal(t, 5, item.Quantity)
	require.Equal(t, "Widget", item.Name)
	require.Equal(t, int64(1000), item.UnitPrice.MinorUnits())
	require.Len(t, c.Items(), 1)
}

func TestUpdateQuantityPatches(t *testing.T) {
	c, _, _ := newCart(t)
	ctx := context.Background()

	_, err := c.Add(ctx, cart.ItemSpec{ID: "sku-1", Name: "Widget", UnitPrice: price(1000), Quantity: 2})
	require.NoError(t, err)

	item, removed, err := c.Update(ctx, "sku-1", cart.ItemPatch{Quantity: &cart.QuantityPatch{Relative: true, Value: 3}})
	require.NoError(t, err)
	require.False(t, removed)
	require.Equal(t, 5, item.Quantity)

	item, removed, err = c.Update(ctx, "sku-1", cart.ItemPatch{Quantity: &cart.QuantityPatch{Value: 1}})
	require.NoError(t, err)
	require.False(t, removed)
	require.Equal(t, 1, item.Quantity)

	// dropping to zero removes the item instead of keeping an empty line
	item, removed, err = c.Update(ctx, "sku-1", cart.ItemPatch{Quantity: &cart.QuantityPatch{Relative: true, Value: -1}})
	require.NoError(t, err)
	require.True(t, removed)
	require.Equal(t, "sku-1", item.ID)
	require.True(t, c.IsEmpty())
}

func TestUpdateMissingItem(t *testing.T) {
	c, _, _ := newCart(t)
	_, _, err := c.Update(context.Background(), "ghost", cart.ItemPatch{})
	require.ErrorIs(t, err, cart.ErrItemNotFound)

	_, err = c.Remove(context.Background(), "ghost")
	require.ErrorIs(t, err, cart.ErrItemNotFound)
}

func TestRemoveCascadesItemConditions(t *testing.T) {
	c, _, _ := newCart(t)
	ctx := context.Background()

	_, err := c.Add(ctx, cart.ItemSpec{ID: "sku-1", Name: "Widget", UnitPrice: price(1000), Quantity: 1})
	require.NoError(t, err)

	itemCond, err := condition.New(condition.Spec{Name: "clearance", Type: condition.TypeDiscount, Target: condition.TargetItem, Value: "-50%"})
	require.NoError(t, err)
	require.NoError(t, c.AddItemCondition(ctx, "sku-1", itemCond))

	cartCond, err := condition.New(condition.Spec{Name: "vat", Type: condition.TypeTax, Target: condition.TargetSubtotal, Value: "10%"})
	require.NoError(t, err)
	require.NoError(t, c.AddCondition(ctx, cartCond))

	_, err = c.Remove(ctx, "sku-1")
	require.NoError(t, err)

	// cart-level conditions survive item removal
	_, ok := c.Condition("vat")
	require.True(t, ok)
	require.True(t, c.IsEmpty())
}

func TestConditionManagement(t *testing.T) {
	c, _, _ := newCart(t)
	ctx := context.Background()

	vat, err := condition.New(condition.Spec{Name: "vat", Type: condition.TypeTax, Target: condition.TargetSubtotal, Value: "10%"})
	require.NoError(t, err)
	require.NoError(t, c.AddCondition(ctx, vat))
	require.ErrorIs(t, c.AddCondition(ctx, vat), condition.ErrDuplicateName)

	itemTargeted, err := condition.New(condition.Spec{Name: "line-fee", Type: condition.TypeFee, Target: condition.TargetItem, Value: "+1"})
	require.NoError(t, err)
	require.ErrorIs(t, c.AddCondition(ctx, itemTargeted), condition.ErrInvalidCondition)

	dynamic, err := condition.New(condition.Spec{
		Name: "bulk", Type: condition.TypeDiscount, Target: condition.TargetTotal, Value: "-5%",
		Rules: []condition.RuleSpec{{Key: "min-items", Params: map[string]any{"count": 2}}},
	})
	require.NoError(t, err)
	require.ErrorIs(t, c.AddCondition(ctx, dynamic), condition.ErrInvalidCondition)

	require.NoError(t, c.RemoveCondition(ctx, "vat"))
	require.ErrorIs(t, c.RemoveCondition(ctx, "vat"), cart.ErrConditionNotFound)
}

func TestTotalsOrderSensitivity(t *testing.T) {
	c, _, _ := newCart(t)
	ctx := context.Background()

	_, err := c.Add(ctx, cart.ItemSpec{ID: "sku-1", Name: "Widget", UnitPrice: price(10000), Quantity: 1})
	require.NoError(t, err)

	promo, err := condition.New(condition.Spec{Name: "promo", Type: condition.TypeDiscount, Target: condition.TargetTotal, Value: "-10%", Order: 1})
	require.NoError(t, err)
	handling, err := condition.New(condition.Spec{Name: "handling", Type: condition.TypeFee, Target: condition.TargetTotal, Value: "+5", Order: 2})
	require.NoError(t, err)
	require.NoError(t, c.AddCondition(ctx, promo))
	require.NoError(t, c.AddCondition(ctx, handling))

	total, err := c.Total()
	require.NoError(t, err)
	require.Equal(t, int64(9500), total.MinorUnits())

	// flip the order: fee first, then percentage
	require.NoError(t, c.RemoveCondition(ctx, "promo"))
	promoLast, err := condition.New(condition.Spec{Name: "promo", Type: condition.TypeDiscount, Target: condition.TargetTotal, Value: "-10%", Order: 3})
	require.NoError(t, err)
	require.NoError(t, c.AddCondition(ctx, promoLast))

	total, err = c.Total()
	require.NoError(t, err)
	require.Equal(t, int64(9450), total.MinorUnits())
}

func TestItemConditionsFoldIntoSubtotal(t *testing.T) {
	c, _, _ := newCart(t)
	ctx := context.Background()

	halfOff, err := condition.New(condition.Spec{Name: "half-off", Type: condition.TypeDiscount, Target: condition.TargetItem, Value: "-50%"})
	require.NoError(t, err)
	_, err = c.Add(ctx, cart.ItemSpec{
		ID: "sku-1", Name: "Widget", UnitPrice: price(1000), Quantity: 2,
		Conditions: []condition.Condition{halfOff},
	})
	require.NoError(t, err)
	_, err = c.Add(ctx, cart.ItemSpec{ID: "sku-2", Name: "Gadget", UnitPrice: price(500), Quantity: 1})
	require.NoError(t, err)

	// (2000 * 0.5) + 500
	subtotal, err := c.Subtotal()
	require.NoError(t, err)
	require.Equal(t, int64(1500), subtotal.MinorUnits())

	res, err := c.ItemSubtotal("sku-1")
	require.NoError(t, err)
	require.Equal(t, int64(2000), res.Base.MinorUnits())
	require.Equal(t, int64(1000), res.Final.MinorUnits())
}

func TestDynamicConditionScenario(t *testing.T) {
	c, _, _ := newCart(t)
	ctx := context.Background()

	_, err := c.Add(ctx, cart.ItemSpec{ID: "sku-a", Name: "Alpha", UnitPrice: price(1000), Quantity: 2})
	require.NoError(t, err)

	subtotal, err := c.Subtotal()
	require.NoError(t, err)
	require.Equal(t, int64(2000), subtotal.MinorUnits())
	total, err := c.Total()
	require.NoError(t, err)
	require.Equal(t, int64(2000), total.MinorUnits())

	bulk, err := condition.New(condition.Spec{
		Name: "bulk-discount", Type: condition.TypeDiscount, Target: condition.TargetTotal, Value: "-15%",
		Rules: []condition.RuleSpec{{Key: "min-items", Params: map[string]any{"count": 2}}},
	})
	require.NoError(t, err)
	require.NoError(t, c.RegisterDynamic(ctx, bulk))

	// one distinct item (qty 2): rule is false, condition stays detached
	_, attached := c.Condition("bulk-discount")
	require.False(t, attached)
	total, err = c.Total()
	require.NoError(t, err)
	require.Equal(t, int64(2000), total.MinorUnits())

	// second distinct item trips the rule
	_, err = c.Add(ctx, cart.ItemSpec{ID: "sku-b", Name: "Beta", UnitPrice: price(1000), Quantity: 1})
	require.NoError(t, err)
	_, attached = c.Condition("bulk-discount")
	require.True(t, attached)
	total, err = c.Total()
	require.NoError(t, err)
	require.Equal(t, int64(2550), total.MinorUnits())

	// removing an item detaches it again
	_, err = c.Remove(ctx, "sku-b")
	require.NoError(t, err)
	_, attached = c.Condition("bulk-discount")
	require.False(t, attached)
}

func TestDynamicTotalBetweenBoundary(t *testing.T) {
	c, _, _ := newCart(t)
	ctx := context.Background()

	exact, err := condition.New(condition.Spec{
		Name: "exact-fifty", Type: condition.TypeDiscount, Target: condition.TargetTotal, Value: "-5",
		Rules: []condition.RuleSpec{{Key: "total-between", Params: map[string]any{"min": 5000, "max": 5000}}},
	})
	require.NoError(t, err)
	require.NoError(t, c.RegisterDynamic(ctx, exact))

	_, err = c.Add(ctx, cart.ItemSpec{ID: "sku-1", Name: "Widget", UnitPrice: price(4999), Quantity: 1})
	require.NoError(t, err)
	_, attached := c.Condition("exact-fifty")
	require.False(t, attached)

	// exactly 5000 minor units attaches
	_, _, err = c.Update(ctx, "sku-1", cart.ItemPatch{UnitPrice: ptr(price(5000))})
	require.NoError(t, err)
	_, attached = c.Condition("exact-fifty")
	require.True(t, attached)

	_, _, err = c.Update(ctx, "sku-1", cart.ItemPatch{UnitPrice: ptr(price(5001))})
	require.NoError(t, err)
	_, attached = c.Condition("exact-fifty")
	require.False(t, attached)
}

func ptr[T any](v T) *T { return &v }

func TestDynamicEvaluationIdempotent(t *testing.T) {
	c, _, _ := newCart(t)
	ctx := context.Background()

	bulk, err := condition.New(condition.Spec{
		Name: "bulk-discount", Type: condition.TypeDiscount, Target: condition.TargetTotal, Value: "-15%",
		Rules: []condition.RuleSpec{{Key: "min-items", Params: map[string]any{"count": 1}}},
	})
	require.NoError(t, err)
	require.NoError(t, c.RegisterDynamic(ctx, bulk))
	_, err = c.Add(ctx, cart.ItemSpec{ID: "sku-1", Name: "Widget", UnitPrice: price(1000), Quantity: 1})
	require.NoError(t, err)

	_, attached := c.Condition("bulk-discount")
	require.True(t, attached)
	totalBefore, err := c.Total()
	require.NoError(t, err)

	require.NoError(t, c.Reevaluate(ctx))
	require.NoError(t, c.Reevaluate(ctx))

	names := make([]string, 0)
	for _, cond := range c.Conditions() {
		names = append(names, cond.Name)
	}
	require.Equal(t, []string{"bulk-discount"}, names)
	totalAfter, err := c.Total()
	require.NoError(t, err)
	require.True(t, totalBefore.Equal(totalAfter))
}

func TestDynamicItemTarget(t *testing.T) {
	c, _, _ := newCart(t)
	ctx := context.Background()

	bookDeal, err := condition.New(condition.Spec{
		Name: "book-deal", Type: condition.TypeDiscount, Target: condition.TargetItem, Value: "-10%",
		Rules: []condition.RuleSpec{{Key: "item-attribute", Params: map[string]any{"attribute": "category", "equals": "books"}}},
	})
	require.NoError(t, err)
	require.NoError(t, c.RegisterDynamic(ctx, bookDeal))

	_, err = c.Add(ctx, cart.ItemSpec{
		ID: "book-1", Name: "Go in Practice", UnitPrice: price(3000), Quantity: 1,
		Attributes: map[string]any{"category": "books"},
	})
	require.NoError(t, err)
	_, err = c.Add(ctx, cart.ItemSpec{
		ID: "mug-1", Name: "Mug", UnitPrice: price(1000), Quantity: 1,
		Attributes: map[string]any{"category": "kitchen"},
	})
	require.NoError(t, err)

	book, _ := c.Item("book-1")
	mug, _ := c.Item("mug-1")
	require.True(t, book.Conditions.Has("book-deal"))
	require.False(t, mug.Conditions.Has("book-deal"))

	subtotal, err := c.Subtotal()
	require.NoError(t, err)
	// 3000*0.9 + 1000
	require.Equal(t, int64(3700), subtotal.MinorUnits())
}

func TestRegisterDynamicUnknownRuleFailsFast(t *testing.T) {
	c, _, _ := newCart(t)

	bogus, err := condition.New(condition.Spec{
		Name: "mystery", Type: condition.TypeDiscount, Target: condition.TargetTotal, Value: "-5%",
		Rules: []condition.RuleSpec{{Key: "frequent-buyer"}},
	})
	require.NoError(t, err)
	err = c.RegisterDynamic(context.Background(), bogus)
	require.Error(t, err)
	require.Empty(t, c.DynamicConditions())
}

func TestClear(t *testing.T) {
	c, _, sink := newCart(t)
	ctx := context.Background()

	_, err := c.Add(ctx, cart.ItemSpec{ID: "sku-1", Name: "Widget", UnitPrice: price(1000), Quantity: 1})
	require.NoError(t, err)
	vat, err := condition.New(condition.Spec{Name: "vat", Type: condition.TypeTax, Target: condition.TargetSubtotal, Value: "10%"})
	require.NoError(t, err)
	require.NoError(t, c.AddCondition(ctx, vat))

	require.NoError(t, c.Clear(ctx))
	require.True(t, c.IsEmpty())
	require.Empty(t, c.Conditions())
	require.Empty(t, c.DynamicConditions())
	require.Equal(t, events.TopicCartCleared, sink.topics[len(sink.topics)-1])

	total, err := c.Total()
	require.NoError(t, err)
	require.True(t, total.IsZero())
}

func TestPersistenceAcrossInstances(t *testing.T) {
	c, store, _ := newCart(t)
	ctx := context.Background()

	bulk, err := condition.New(condition.Spec{
		Name: "bulk-discount", Type: condition.TypeDiscount, Target: condition.TargetTotal, Value: "-15%",
		Rules: []condition.RuleSpec{{Key: "min-items", Params: map[string]any{"count": 2}}},
	})
	require.NoError(t, err)
	require.NoError(t, c.RegisterDynamic(ctx, bulk))
	_, err = c.Add(ctx, cart.ItemSpec{ID: "sku-a", Name: "Alpha", UnitPrice: price(1000), Quantity: 2})
	require.NoError(t, err)
	_, err = c.Add(ctx, cart.ItemSpec{ID: "sku-b", Name: "Beta", UnitPrice: price(1000), Quantity: 1})
	require.NoError(t, err)

	reloaded, err := cart.New(ctx, "user-1", "default", cart.Options{
		Storage: store,
		Policy:  usd,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	require.Len(t, reloaded.Items(), 2)
	require.Len(t, reloaded.DynamicConditions(), 1)
	_, attached := reloaded.Condition("bulk-discount")
	require.True(t, attached)

	total, err := reloaded.Total()
	require.NoError(t, err)
	require.Equal(t, int64(2550), total.MinorUnits())

	// the dynamic registry keeps working after a reload
	_, err = reloaded.Remove(ctx, "sku-b")
	require.NoError(t, err)
	_, attached = reloaded.Condition("bulk-discount")
	require.False(t, attached)
}

func TestInstancesAreIndependent(t *testing.T) {
	store := storage.NewMemory()
	ctx := context.Background()

	def, err := cart.New(ctx, "user-1", "default", cart.Options{Storage: store, Policy: usd, Logger: zerolog.Nop()})
	require.NoError(t, err)
	wish, err := cart.New(ctx, "user-1", "wishlist", cart.Options{Storage: store, Policy: usd, Logger: zerolog.Nop()})
	require.NoError(t, err)

	_, err = def.Add(ctx, cart.ItemSpec{ID: "sku-1", Name: "Widget", UnitPrice: price(1000), Quantity: 1})
	require.NoError(t, err)

	require.True(t, wish.IsEmpty())
}

func TestEventsCarryAggregates(t *testing.T) {
	c, _, sink := newCart(t)
	ctx := context.Background()

	_, err := c.Add(ctx, cart.ItemSpec{ID: "sku-1", Name: "Widget", UnitPrice: price(1000), Quantity: 2})
	require.NoError(t, err)

	require.Equal(t, []string{events.TopicItemAdded}, sink.topics)
	ev := sink.payloads[0]
	require.Equal(t, "user-1", ev.Identifier)
	require.Equal(t, "default", ev.Instance)
	require.Equal(t, 1, ev.Aggregates.ItemsCount)
	require.Equal(t, 2, ev.Aggregates.TotalQuantity)
	require.Equal(t, int64(2000), ev.Aggregates.Subtotal.MinorUnits())
	require.Equal(t, int64(2000), ev.Aggregates.Total.MinorUnits())
	require.NotNil(t, ev.Item)
}

func TestEventSinkFailureDoesNotFailMutation(t *testing.T) {
	c, _, sink := newCart(t)
	sink.fail = errors.New("sink down")

	_, err := c.Add(context.Background(), cart.ItemSpec{ID: "sku-1", Name: "Widget", UnitPrice: price(1000), Quantity: 1})
	require.NoError(t, err)
	require.Len(t, c.Items(), 1)
}

func TestQuoteBreakdown(t *testing.T) {
	c, _, _ := newCart(t)
	ctx := context.Background()

	halfOff, err := condition.New(condition.Spec{Name: "half-off", Type: condition.TypeDiscount, Target: condition.TargetItem, Value: "-50%"})
	require.NoError(t, err)
	_, err = c.Add(ctx, cart.ItemSpec{
		ID: "sku-1", Name: "Widget", UnitPrice: price(2000), Quantity: 1,
		Conditions: []condition.Condition{halfOff},
	})
	require.NoError(t, err)

	vat, err := condition.New(condition.Spec{Name: "vat", Type: condition.TypeTax, Target: condition.TargetSubtotal, Value: "10%", Order: 1})
	require.NoError(t, err)
	require.NoError(t, c.AddCondition(ctx, vat))
	ship, err := condition.New(condition.Spec{Name: "shipping", Type: condition.TypeShipping, Target: condition.TargetTotal, Value: "+4.90", Order: 2})
	require.NoError(t, err)
	require.NoError(t, c.AddCondition(ctx, ship))

	quote, err := c.Quote()
	require.NoError(t, err)
	require.Len(t, quote.Items, 1)
	require.Equal(t, int64(2000), quote.Items[0].Gross.MinorUnits())
	require.Equal(t, int64(1000), quote.Items[0].Net.MinorUnits())
	// 1000 * 1.10 = 1100 subtotal, +490 shipping = 1590 total
	require.Equal(t, int64(1100), quote.Subtotal.MinorUnits())
	require.Equal(t, int64(1590), quote.Total.MinorUnits())
	require.Len(t, quote.Breakdown, 2)
	require.Equal(t, 1, quote.Aggregates.ItemsCount)
}

func TestUpdateRejectedPatchLeavesItemUntouched(t *testing.T) {
	c, _, _ := newCart(t)
	ctx := context.Background()

	_, err := c.Add(ctx, cart.ItemSpec{ID: "sku-1", Name: "Widget", UnitPrice: price(1000), Quantity: 2})
	require.NoError(t, err)

	// a valid name paired with an invalid price must reject the whole patch
	zero := price(0)
	_, _, err = c.Update(ctx, "sku-1", cart.ItemPatch{Name: ptr("Renamed"), UnitPrice: &zero})
	require.ErrorIs(t, err, cart.ErrInvalidItem)

	item, ok := c.Item("sku-1")
	require.True(t, ok)
	require.Equal(t, "Widget", item.Name)
	require.Equal(t, int64(1000), item.UnitPrice.MinorUnits())
	require.Equal(t, 2, item.Quantity)

	// and the mirror case: valid price, blank name
	raised := price(1500)
	_, _, err = c.Update(ctx, "sku-1", cart.ItemPatch{Name: ptr("  "), UnitPrice: &raised})
	require.ErrorIs(t, err, cart.ErrInvalidItem)

	item, _ = c.Item("sku-1")
	require.Equal(t, "Widget", item.Name)
	require.Equal(t, int64(1000), item.UnitPrice.MinorUnits())
}

// failingItemStore delegates to Memory until armed, then rejects item writes.
type failingItemStore struct {
	*storage.Memory
	fail bool
}

func (s *failingItemStore) PutItems(ctx context.Context, identifier, instance string, items *cart.ItemCollection) error {
	if s.fail {
		return errors.New("storage unavailable")
	}
	return s.Memory.PutItems(ctx, identifier, instance, items)
}

func TestPersistFailureRollsBack(t *testing.T) {
	store := &failingItemStore{Memory: storage.NewMemory()}
	sink := &captureSink{}
	ctx := context.Background()
	c, err := cart.New(ctx, "user-1", "default", cart.Options{
		Storage: store,
		Events:  sink,
		Policy:  usd,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)

	_, err = c.Add(ctx, cart.ItemSpec{ID: "sku-1", Name: "Widget", UnitPrice: price(1000), Quantity: 2})
	require.NoError(t, err)

	store.fail = true

	_, err = c.Add(ctx, cart.ItemSpec{ID: "sku-2", Name: "Gadget", UnitPrice: price(500), Quantity: 1})
	require.Error(t, err)

	// in-memory state reverted to the stored snapshot
	require.Len(t, c.Items(), 1)
	_, ok := c.Item("sku-2")
	require.False(t, ok)
	total, err := c.Total()
	require.NoError(t, err)
	require.Equal(t, int64(2000), total.MinorUnits())

	// the failed mutation emitted nothing
	require.Equal(t, []string{events.TopicItemAdded}, sink.topics)

	// and a later successful mutation does not leak the rejected item
	store.fail = false
	_, _, err = c.Update(ctx, "sku-1", cart.ItemPatch{Quantity: &cart.QuantityPatch{Value: 3}})
	require.NoError(t, err)
	reloaded, err := cart.New(ctx, "user-1", "default", cart.Options{Storage: store, Policy: usd, Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.Len(t, reloaded.Items(), 1)
}
