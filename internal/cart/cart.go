// Package cart implements the cart aggregate: an ordered item collection,
// cart-level condition collection, and a dynamic condition registry, with
// pricing reads and storage/event collaborators injected at construction.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/masyukai/cart/internal/condition"
	"github.com/masyukai/cart/internal/events"
	"github.com/masyukai/cart/internal/money"
	"github.com/masyukai/cart/internal/obs"
	"github.com/masyukai/cart/internal/pricing"
	"github.com/masyukai/cart/internal/rules"
)

// ErrConditionNotFound is the typed not-found result for condition removal.
var ErrConditionNotFound = errors.New("cart: condition not found")

// metadataDynamicKey is the storage sub-key holding dynamic registrations.
const metadataDynamicKey = "dynamic_conditions"

// Storage persists cart snapshots keyed by (identifier, instance).
// Implementations live in internal/storage; the engine never issues partial
// writes: every mutation computes in memory first, then persists.
type Storage interface {
	GetItems(ctx context.Context, identifier, instance string) (*ItemCollection, error)
	PutItems(ctx context.Context, identifier, instance string, items *ItemCollection) error
	GetConditions(ctx context.Context, identifier, instance string) (*condition.Collection, error)
	PutConditions(ctx context.Context, identifier, instance string, conds *condition.Collection) error
	GetMetadata(ctx context.Context, identifier, instance, key string) ([]byte, bool, error)
	PutMetadata(ctx context.Context, identifier, instance, key string, value []byte) error
}

// EventSink receives state-transition notifications. Sink failures are logged
// and never fail the mutation.
type EventSink interface {
	Emit(ctx context.Context, topic string, payload any) error
}

// Aggregates is the cart-level summary attached to every event payload.
type Aggregates struct {
	ItemsCount    int         `json:"items_count"`
	TotalQuantity int         `json:"total_quantity"`
	Subtotal      money.Money `json:"subtotal"`
	Total         money.Money `json:"total"`
}

// Event is the payload emitted for every cart state transition.
type Event struct {
	Identifier string               `json:"identifier"`
	Instance   string               `json:"instance"`
	Item       *Item                `json:"item,omitempty"`
	Condition  *condition.Condition `json:"condition,omitempty"`
	Aggregates Aggregates           `json:"aggregates"`
}

// Options carries the collaborators a cart is constructed with.
type Options struct {
	Storage Storage
	Events  EventSink
	Policy  money.Policy
	Rules   *rules.Registry
	Logger  zerolog.Logger
}

// Cart is the aggregate root. It is request-scoped: construct, mutate, and
// discard within one request; cross-request consistency belongs to Storage.
type Cart struct {
	identifier string
	instance   string
	policy     money.Policy
	storage    Storage
	events     EventSink
	log        zerolog.Logger

	items      *ItemCollection
	conditions *condition.Collection
	dynamic    *dynamicRegistry
}

// New loads (or initialises) the cart stored under (identifier, instance).
func New(ctx context.Context, identifier, instance string, opts Options) (*Cart, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, errors.New("cart: identifier is required")
	}
	if strings.TrimSpace(instance) == "" {
		instance = "default"
	}
	if opts.Storage == nil {
		return nil, errors.New("cart: storage is required")
	}
	policy := opts.Policy
	if policy.Currency == "" {
		policy = money.DefaultPolicy()
	}
	registry := opts.Rules
	if registry == nil {
		registry = rules.NewRegistry()
	}

	c := &Cart{
		identifier: identifier,
		instance:   instance,
		policy:     policy,
		storage:    opts.Storage,
		events:     opts.Events,
		log:        opts.Logger.With().Str("cart", identifier).Str("instance", instance).Logger(),
		items:      NewItemCollection(),
		conditions: condition.NewCollection(),
		dynamic:    newDynamicRegistry(registry),
	}
	if err := c.reload(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Identifier returns the external cart identity.
func (c *Cart) Identifier() string { return c.identifier }

// Instance returns the cart namespace, e.g. "default" or "wishlist".
func (c *Cart) Instance() string { return c.instance }

// Policy returns the money policy all amounts are computed under.
func (c *Cart) Policy() money.Policy { return c.policy }

func (c *Cart) reload(ctx context.Context) error {
	items, err := c.storage.GetItems(ctx, c.identifier, c.instance)
	if err != nil {
		return fmt.Errorf("cart: load items: %w", err)
	}
	if items == nil {
		items = NewItemCollection()
	}
	conds, err := c.storage.GetConditions(ctx, c.identifier, c.instance)
	if err != nil {
		return fmt.Errorf("cart: load conditions: %w", err)
	}
	if conds == nil {
		conds = condition.NewCollection()
	}
	c.items = items
	c.conditions = conds

	dynamic := newDynamicRegistry(c.dynamic.rules)
	raw, ok, err := c.storage.GetMetadata(ctx, c.identifier, c.instance, metadataDynamicKey)
	if err != nil {
		return fmt.Errorf("cart: load dynamic conditions: %w", err)
	}
	if ok && len(raw) > 0 {
		stored := condition.NewCollection()
		if err := json.Unmarshal(raw, stored); err != nil {
			return fmt.Errorf("cart: decode dynamic conditions: %w", err)
		}
		for _, cond := range stored.All() {
			if err := dynamic.register(cond); err != nil {
				return fmt.Errorf("cart: restore dynamic condition %q: %w", cond.Name, err)
			}
		}
	}
	c.dynamic = dynamic
	c.dynamic.rebuildAttachments(c)
	return nil
}

func (c *Cart) persist(ctx context.Context) error {
	if err := c.storage.PutItems(ctx, c.identifier, c.instance, c.items); err != nil {
		return fmt.Errorf("cart: persist items: %w", err)
	}
	if err := c.storage.PutConditions(ctx, c.identifier, c.instance, c.conditions); err != nil {
		return fmt.Errorf("cart: persist conditions: %w", err)
	}
	registered := condition.NewCollection()
	for _, cond := range c.dynamic.registered() {
		if err := registered.Add(cond); err != nil {
			return fmt.Errorf("cart: snapshot dynamic conditions: %w", err)
		}
	}
	raw, err := json.Marshal(registered)
	if err != nil {
		return fmt.Errorf("cart: encode dynamic conditions: %w", err)
	}
	if err := c.storage.PutMetadata(ctx, c.identifier, c.instance, metadataDynamicKey, raw); err != nil {
		return fmt.Errorf("cart: persist dynamic conditions: %w", err)
	}
	return nil
}

// finish runs the shared tail of every mutation: re-evaluate dynamic
// conditions, persist the new snapshot, then notify. A persist failure rolls
// the in-memory state back to the stored snapshot.
func (c *Cart) finish(ctx context.Context, op, topic string, payload Event) error {
	attached, detached := c.dynamic.evaluate(c)
	if attached > 0 || detached > 0 {
		obs.RecordDynamicTransitions(attached, detached)
		c.log.Debug().Int("attached", attached).Int("detached", detached).Msg("dynamic conditions re-evaluated")
	}
	if err := c.persist(ctx); err != nil {
		obs.RecordCartMutation(op, "error")
		if reloadErr := c.reload(ctx); reloadErr != nil {
			c.log.Error().Err(reloadErr).Msg("rollback reload failed")
		}
		return err
	}
	obs.RecordCartMutation(op, "ok")
	c.notify(ctx, topic, payload)
	return nil
}

func (c *Cart) notify(ctx context.Context, topic string, payload Event) {
	if c.events == nil {
		return
	}
	payload.Identifier = c.identifier
	payload.Instance = c.instance
	payload.Aggregates = c.aggregates()
	if err := c.events.Emit(ctx, topic, payload); err != nil {
		c.log.Warn().Err(err).Str("topic", topic).Msg("event sink failed")
	}
}

func (c *Cart) aggregates() Aggregates {
	agg := Aggregates{
		ItemsCount:    c.items.Len(),
		TotalQuantity: c.items.TotalQuantity(),
		Subtotal:      money.Zero(c.policy),
		Total:         money.Zero(c.policy),
	}
	if subtotal, err := c.Subtotal(); err == nil {
		agg.Subtotal = subtotal
	} else {
		c.log.Error().Err(err).Msg("aggregate subtotal failed, reporting zero")
	}
	if total, err := c.Total(); err == nil {
		agg.Total = total
	} else {
		c.log.Error().Err(err).Msg("aggregate total failed, reporting zero")
	}
	return agg
}

// Add inserts an item, merging quantity into an existing entry with the same
// id. On merge the existing price, name and attributes win; only quantity
// accumulates.
func (c *Cart) Add(ctx context.Context, spec ItemSpec) (*Item, error) {
	candidate, err := newItem(spec)
	if err != nil {
		obs.RecordCartMutation("add", "invalid")
		return nil, err
	}
	item, merged := c.items.Get(candidate.ID)
	if merged {
		item.Quantity += candidate.Quantity
	} else {
		item = candidate
		c.items.add(item)
	}
	if err := c.finish(ctx, "add", events.TopicItemAdded, Event{Item: item}); err != nil {
		return nil, err
	}
	c.log.Info().Str("item", item.ID).Int("quantity", item.Quantity).Bool("merged", merged).Msg("item added")
	return item, nil
}

// QuantityPatch mutates an item quantity either relatively (delta) or
// absolutely (replacement value).
type QuantityPatch struct {
	Relative bool
	Value    int
}

// ItemPatch describes an item update. Nil fields are left unchanged.
type ItemPatch struct {
	Name       *string
	UnitPrice  *money.Money
	Attributes map[string]any
	Quantity   *QuantityPatch
}

// Update patches an item. A resulting quantity of zero or less removes the
// item instead; the removed flag reports that outcome. A missing id returns
// ErrItemNotFound.
func (c *Cart) Update(ctx context.Context, id string, patch ItemPatch) (*Item, bool, error) {
	item, ok := c.items.Get(id)
	if !ok {
		obs.RecordCartMutation("update", "not_found")
		return nil, false, fmt.Errorf("%w: %q", ErrItemNotFound, id)
	}

	quantity := item.Quantity
	if patch.Quantity != nil {
		if patch.Quantity.Relative {
			quantity += patch.Quantity.Value
		} else {
			quantity = patch.Quantity.Value
		}
	}
	if quantity <= 0 {
		removed, err := c.Remove(ctx, id)
		return removed, true, err
	}

	// Validate the whole patch before touching the item: items.Get hands out
	// the live pointer, so a partial application would leak through a later
	// rejection.
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		obs.RecordCartMutation("update", "invalid")
		return nil, false, fmt.Errorf("%w: name is required", ErrInvalidItem)
	}
	if patch.UnitPrice != nil && !patch.UnitPrice.IsPositive() {
		obs.RecordCartMutation("update", "invalid")
		return nil, false, fmt.Errorf("%w: unit price must be positive", ErrInvalidItem)
	}

	if patch.Name != nil {
		item.Name = *patch.Name
	}
	if patch.UnitPrice != nil {
		item.UnitPrice = *patch.UnitPrice
	}
	if patch.Attributes != nil {
		item.Attributes = patch.Attributes
	}
	item.Quantity = quantity

	if err := c.finish(ctx, "update", events.TopicItemUpdated, Event{Item: item}); err != nil {
		return nil, false, err
	}
	c.log.Info().Str("item", item.ID).Int("quantity", item.Quantity).Msg("item updated")
	return item, false, nil
}

// Remove deletes an item. Item-level conditions leave with it; cart-level
// conditions are untouched. A missing id returns ErrItemNotFound.
func (c *Cart) Remove(ctx context.Context, id string) (*Item, error) {
	item, ok := c.items.remove(id)
	if !ok {
		obs.RecordCartMutation("remove", "not_found")
		return nil, fmt.Errorf("%w: %q", ErrItemNotFound, id)
	}
	c.dynamic.forgetItem(id)
	if err := c.finish(ctx, "remove", events.TopicItemRemoved, Event{Item: item}); err != nil {
		return nil, err
	}
	c.log.Info().Str("item", item.ID).Msg("item removed")
	return item, nil
}

// AddCondition attaches a static cart-level condition. Conditions carrying
// rules must go through RegisterDynamic; item-targeted conditions through
// AddItemCondition.
func (c *Cart) AddCondition(ctx context.Context, cond condition.Condition) error {
	if cond.Dynamic() {
		return fmt.Errorf("%w: %q carries rules, register it as dynamic", condition.ErrInvalidCondition, cond.Name)
	}
	if cond.Target == condition.TargetItem {
		return fmt.Errorf("%w: %q targets an item, use AddItemCondition", condition.ErrInvalidCondition, cond.Name)
	}
	if err := c.conditions.Add(cond); err != nil {
		return err
	}
	return c.finish(ctx, "add_condition", events.TopicConditionAdded, Event{Condition: &cond})
}

// RemoveCondition removes a static cart-level condition by name.
func (c *Cart) RemoveCondition(ctx context.Context, name string) error {
	cond, ok := c.conditions.Remove(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrConditionNotFound, name)
	}
	return c.finish(ctx, "remove_condition", events.TopicConditionRemoved, Event{Condition: &cond})
}

// AddItemCondition attaches a static condition to one item.
func (c *Cart) AddItemCondition(ctx context.Context, itemID string, cond condition.Condition) error {
	item, ok := c.items.Get(itemID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrItemNotFound, itemID)
	}
	if cond.Dynamic() {
		return fmt.Errorf("%w: %q carries rules, register it as dynamic", condition.ErrInvalidCondition, cond.Name)
	}
	if cond.Target != condition.TargetItem {
		return fmt.Errorf("%w: %q must target %q", condition.ErrInvalidCondition, cond.Name, condition.TargetItem)
	}
	if err := item.Conditions.Add(cond); err != nil {
		return err
	}
	return c.finish(ctx, "add_item_condition", events.TopicConditionAdded, Event{Item: item, Condition: &cond})
}

// RemoveItemCondition removes a static condition from one item.
func (c *Cart) RemoveItemCondition(ctx context.Context, itemID, name string) error {
	item, ok := c.items.Get(itemID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrItemNotFound, itemID)
	}
	cond, ok := item.Conditions.Remove(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrConditionNotFound, name)
	}
	return c.finish(ctx, "remove_item_condition", events.TopicConditionRemoved, Event{Item: item, Condition: &cond})
}

// RegisterDynamic registers a rule-gated condition. Rule predicates are
// compiled immediately: an unknown key fails here, not during evaluation.
func (c *Cart) RegisterDynamic(ctx context.Context, cond condition.Condition) error {
	if !cond.Dynamic() {
		return fmt.Errorf("%w: %q has no rules", condition.ErrInvalidCondition, cond.Name)
	}
	if err := c.dynamic.register(cond); err != nil {
		return err
	}
	return c.finish(ctx, "register_dynamic", events.TopicConditionAdded, Event{Condition: &cond})
}

// UnregisterDynamic removes a dynamic registration and detaches any copies it
// placed in the active collections.
func (c *Cart) UnregisterDynamic(ctx context.Context, name string) error {
	cond, ok := c.dynamic.unregister(c, name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrConditionNotFound, name)
	}
	return c.finish(ctx, "unregister_dynamic", events.TopicConditionRemoved, Event{Condition: &cond})
}

// Reevaluate re-runs dynamic condition evaluation against current state and
// persists any attachment changes. Mutations do this automatically; callers
// only need it after changing rule-relevant state outside the cart.
func (c *Cart) Reevaluate(ctx context.Context) error {
	attached, detached := c.dynamic.evaluate(c)
	if attached == 0 && detached == 0 {
		return nil
	}
	obs.RecordDynamicTransitions(attached, detached)
	return c.persist(ctx)
}

// Clear empties items, conditions and dynamic registrations. The cart itself
// survives, empty but present under its storage key.
func (c *Cart) Clear(ctx context.Context) error {
	c.items.Clear()
	c.conditions.Clear()
	c.dynamic.clear()
	if err := c.persist(ctx); err != nil {
		obs.RecordCartMutation("clear", "error")
		return err
	}
	obs.RecordCartMutation("clear", "ok")
	c.notify(ctx, events.TopicCartCleared, Event{})
	c.log.Info().Msg("cart cleared")
	return nil
}

// IsEmpty reports whether the cart holds no items.
func (c *Cart) IsEmpty() bool { return c.items.Len() == 0 }

// Items returns the items in insertion order. Read-only for callers.
func (c *Cart) Items() []*Item { return c.items.All() }

// Item looks one item up by id.
func (c *Cart) Item(id string) (*Item, bool) { return c.items.Get(id) }

// Conditions returns the active cart-level conditions in insertion order,
// including dynamically attached ones.
func (c *Cart) Conditions() []condition.Condition { return c.conditions.All() }

// Condition looks a cart-level condition up by name.
func (c *Cart) Condition(name string) (condition.Condition, bool) { return c.conditions.Get(name) }

// DynamicConditions returns the registered dynamic conditions (with rules).
func (c *Cart) DynamicConditions() []condition.Condition { return c.dynamic.registered() }

// itemNet prices one item: gross, then its item-level conditions in order.
func (c *Cart) itemNet(item *Item) (pricing.Result, error) {
	return pricing.ApplyOrdered(item.Gross(), item.Conditions.ByTarget(condition.TargetItem))
}

// ItemSubtotal returns the conditioned subtotal for one item.
func (c *Cart) ItemSubtotal(id string) (pricing.Result, error) {
	item, ok := c.items.Get(id)
	if !ok {
		return pricing.Result{}, fmt.Errorf("%w: %q", ErrItemNotFound, id)
	}
	return c.itemNet(item)
}

func (c *Cart) itemsBase() (money.Money, error) {
	base := money.Zero(c.policy)
	for _, item := range c.items.All() {
		net, err := c.itemNet(item)
		if err != nil {
			return money.Money{}, err
		}
		base, err = base.Add(net.Final)
		if err != nil {
			return money.Money{}, err
		}
	}
	return base, nil
}

// Subtotal sums the conditioned item subtotals and applies cart-level
// subtotal conditions on top.
func (c *Cart) Subtotal() (money.Money, error) {
	base, err := c.itemsBase()
	if err != nil {
		return money.Money{}, err
	}
	res, err := pricing.ApplyOrdered(base, c.conditions.ByTarget(condition.TargetSubtotal))
	if err != nil {
		return money.Money{}, err
	}
	return res.Final, nil
}

// Total applies cart-level total conditions on top of the subtotal.
func (c *Cart) Total() (money.Money, error) {
	subtotal, err := c.Subtotal()
	if err != nil {
		return money.Money{}, err
	}
	res, err := pricing.ApplyOrdered(subtotal, c.conditions.ByTarget(condition.TargetTotal))
	if err != nil {
		return money.Money{}, err
	}
	return res.Final, nil
}

// ItemQuote is one priced line in a Quote.
type ItemQuote struct {
	Item      *Item             `json:"item"`
	Gross     money.Money       `json:"gross"`
	Net       money.Money       `json:"net"`
	Breakdown []pricing.Applied `json:"breakdown,omitempty"`
}

// Quote is the full pricing picture for the current cart state.
type Quote struct {
	Items      []ItemQuote       `json:"items"`
	Subtotal   money.Money       `json:"subtotal"`
	Total      money.Money       `json:"total"`
	Breakdown  []pricing.Applied `json:"breakdown,omitempty"`
	Aggregates Aggregates        `json:"aggregates"`
}

// Quote prices the whole cart and returns per-line and cart-level breakdowns.
func (c *Cart) Quote() (Quote, error) {
	q := Quote{}
	base := money.Zero(c.policy)
	for _, item := range c.items.All() {
		net, err := c.itemNet(item)
		if err != nil {
			return Quote{}, err
		}
		q.Items = append(q.Items, ItemQuote{Item: item, Gross: net.Base, Net: net.Final, Breakdown: net.Breakdown})
		base, err = base.Add(net.Final)
		if err != nil {
			return Quote{}, err
		}
	}
	subRes, err := pricing.ApplyOrdered(base, c.conditions.ByTarget(condition.TargetSubtotal))
	if err != nil {
		return Quote{}, err
	}
	totalRes, err := pricing.ApplyOrdered(subRes.Final, c.conditions.ByTarget(condition.TargetTotal))
	if err != nil {
		return Quote{}, err
	}
	q.Subtotal = subRes.Final
	q.Total = totalRes.Final
	q.Breakdown = append(subRes.Breakdown, totalRes.Breakdown...)
	q.Aggregates = Aggregates{
		ItemsCount:    c.items.Len(),
		TotalQuantity: c.items.TotalQuantity(),
		Subtotal:      q.Subtotal,
		Total:         q.Total,
	}
	return q, nil
}
