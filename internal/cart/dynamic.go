package cart

import (
	"fmt"

	"github.com/masyukai/cart/internal/condition"
	"github.com/masyukai/cart/internal/money"
	"github.com/masyukai/cart/internal/pricing"
	"github.com/masyukai/cart/internal/rules"
)

// dynamicEntry pairs a registered dynamic condition with its compiled
// predicates. Compilation happens at registration so unsupported rule keys
// fail fast instead of silently never matching.
type dynamicEntry struct {
	cond  condition.Condition
	preds []rules.Predicate
}

// dynamicRegistry tracks registered dynamic conditions and which collections
// currently hold their static copies.
type dynamicRegistry struct {
	rules        *rules.Registry
	entries      []dynamicEntry
	cartAttached map[string]struct{}
	itemAttached map[string]map[string]struct{}
}

func newDynamicRegistry(r *rules.Registry) *dynamicRegistry {
	return &dynamicRegistry{
		rules:        r,
		cartAttached: map[string]struct{}{},
		itemAttached: map[string]map[string]struct{}{},
	}
}

func (d *dynamicRegistry) register(cond condition.Condition) error {
	for _, e := range d.entries {
		if e.cond.Name == cond.Name {
			return fmt.Errorf("%w: %q", condition.ErrDuplicateName, cond.Name)
		}
	}
	preds, err := d.rules.Compile(cond.Rules)
	if err != nil {
		return err
	}
	d.entries = append(d.entries, dynamicEntry{cond: cond, preds: preds})
	return nil
}

func (d *dynamicRegistry) unregister(c *Cart, name string) (condition.Condition, bool) {
	for i, e := range d.entries {
		if e.cond.Name != name {
			continue
		}
		d.entries = append(d.entries[:i], d.entries[i+1:]...)
		if _, ok := d.cartAttached[name]; ok {
			c.conditions.Remove(name)
			delete(d.cartAttached, name)
		}
		if ids, ok := d.itemAttached[name]; ok {
			for id := range ids {
				if item, found := c.items.Get(id); found {
					item.Conditions.Remove(name)
				}
			}
			delete(d.itemAttached, name)
		}
		return e.cond, true
	}
	return condition.Condition{}, false
}

func (d *dynamicRegistry) registered() []condition.Condition {
	out := make([]condition.Condition, 0, len(d.entries))
	for _, e := range d.entries {
		out = append(out, e.cond)
	}
	return out
}

func (d *dynamicRegistry) clear() {
	d.entries = nil
	d.cartAttached = map[string]struct{}{}
	d.itemAttached = map[string]map[string]struct{}{}
}

// forgetItem drops attachment bookkeeping for a removed item.
func (d *dynamicRegistry) forgetItem(id string) {
	for name, ids := range d.itemAttached {
		delete(ids, id)
		if len(ids) == 0 {
			delete(d.itemAttached, name)
		}
	}
}

func (d *dynamicRegistry) isItemAttached(name, itemID string) bool {
	ids, ok := d.itemAttached[name]
	if !ok {
		return false
	}
	_, ok = ids[itemID]
	return ok
}

func (d *dynamicRegistry) markItem(name, itemID string) {
	if d.itemAttached[name] == nil {
		d.itemAttached[name] = map[string]struct{}{}
	}
	d.itemAttached[name][itemID] = struct{}{}
}

// rebuildAttachments re-derives attachment state from freshly loaded
// collections, e.g. after a storage reload.
func (d *dynamicRegistry) rebuildAttachments(c *Cart) {
	d.cartAttached = map[string]struct{}{}
	d.itemAttached = map[string]map[string]struct{}{}
	for _, e := range d.entries {
		if e.cond.Target == condition.TargetItem {
			for _, item := range c.items.All() {
				if item.Conditions.Has(e.cond.Name) {
					d.markItem(e.cond.Name, item.ID)
				}
			}
			continue
		}
		if c.conditions.Has(e.cond.Name) {
			d.cartAttached[e.cond.Name] = struct{}{}
		}
	}
}

// evaluate re-evaluates every registered dynamic condition against the
// current cart state and attaches or detaches static copies accordingly.
// It returns the transition counts.
//
// The snapshot excludes the registry's own attachments, so evaluation is a
// pure function of items plus user-added conditions: re-evaluating twice
// with no intervening mutation always yields the same attached set.
func (d *dynamicRegistry) evaluate(c *Cart) (attached, detached int) {
	snap, err := d.snapshot(c)
	if err != nil {
		c.log.Error().Err(err).Msg("dynamic snapshot failed, attachments unchanged")
		return 0, 0
	}

	for _, e := range d.entries {
		name := e.cond.Name
		if e.cond.Target == condition.TargetItem {
			for _, item := range c.items.All() {
				view := itemView(item)
				pass := rules.EvalAll(e.preds, rules.Context{Cart: snap, Item: &view})
				has := d.isItemAttached(name, item.ID)
				switch {
				case pass && !has:
					if err := item.Conditions.Add(e.cond.Static()); err != nil {
						c.log.Warn().Err(err).Str("condition", name).Str("item", item.ID).Msg("dynamic attach skipped")
						continue
					}
					d.markItem(name, item.ID)
					attached++
				case !pass && has:
					item.Conditions.Remove(name)
					delete(d.itemAttached[name], item.ID)
					detached++
				}
			}
			continue
		}

		pass := rules.EvalAll(e.preds, rules.Context{Cart: snap})
		_, has := d.cartAttached[name]
		switch {
		case pass && !has:
			if err := c.conditions.Add(e.cond.Static()); err != nil {
				c.log.Warn().Err(err).Str("condition", name).Msg("dynamic attach skipped")
				continue
			}
			d.cartAttached[name] = struct{}{}
			attached++
		case !pass && has:
			c.conditions.Remove(name)
			delete(d.cartAttached, name)
			detached++
		}
	}
	return attached, detached
}

func itemView(item *Item) rules.ItemView {
	return rules.ItemView{
		ID:         item.ID,
		Name:       item.Name,
		UnitPrice:  item.UnitPrice,
		Quantity:   item.Quantity,
		Attributes: item.Attributes,
	}
}

// snapshot prices the cart while excluding every condition the registry
// attached itself.
func (d *dynamicRegistry) snapshot(c *Cart) (rules.Snapshot, error) {
	snap := rules.Snapshot{}
	base := money.Zero(c.policy)
	for _, item := range c.items.All() {
		var conds []condition.Condition
		for _, cond := range item.Conditions.ByTarget(condition.TargetItem) {
			if !d.isItemAttached(cond.Name, item.ID) {
				conds = append(conds, cond)
			}
		}
		net, err := pricing.ApplyOrdered(item.Gross(), conds)
		if err != nil {
			return rules.Snapshot{}, err
		}
		var sumErr error
		base, sumErr = base.Add(net.Final)
		if sumErr != nil {
			return rules.Snapshot{}, sumErr
		}
		snap.Items = append(snap.Items, itemView(item))
		snap.TotalQuantity += item.Quantity
	}
	snap.ItemCount = c.items.Len()

	subRes, err := pricing.ApplyOrdered(base, d.ownConditions(c, condition.TargetSubtotal))
	if err != nil {
		return rules.Snapshot{}, err
	}
	totalRes, err := pricing.ApplyOrdered(subRes.Final, d.ownConditions(c, condition.TargetTotal))
	if err != nil {
		return rules.Snapshot{}, err
	}
	snap.Subtotal = subRes.Final
	snap.Total = totalRes.Final
	return snap, nil
}

// ownConditions filters cart-level conditions down to user-added ones.
func (d *dynamicRegistry) ownConditions(c *Cart, target condition.Target) []condition.Condition {
	var out []condition.Condition
	for _, cond := range c.conditions.ByTarget(target) {
		if _, attachedByUs := d.cartAttached[cond.Name]; !attachedByUs {
			out = append(out, cond)
		}
	}
	return out
}
