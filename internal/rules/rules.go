// Package rules provides the predicate vocabulary that gates dynamic
// conditions. Predicates are pure functions of a cart snapshot, cheap to
// re-evaluate on every mutation.
package rules

import (
	"errors"
	"fmt"

	"github.com/masyukai/cart/internal/condition"
	"github.com/masyukai/cart/internal/money"
)

// ErrUnsupportedRule is returned for a predicate key the registry does not
// know. It surfaces at registration time, never during evaluation.
var ErrUnsupportedRule = errors.New("rules: unsupported rule")

// ErrInvalidRule is returned when a known predicate is given unusable parameters.
var ErrInvalidRule = errors.New("rules: invalid rule parameters")

// ItemView is the read-only item data exposed to predicates.
type ItemView struct {
	ID         string
	Name       string
	UnitPrice  money.Money
	Quantity   int
	Attributes map[string]any
}

// Snapshot captures the cart aggregate state predicates evaluate against.
// Totals are computed from items and user-added conditions only, so that
// rule evaluation never feeds back on its own attachments.
type Snapshot struct {
	ItemCount     int
	TotalQuantity int
	Subtotal      money.Money
	Total         money.Money
	Items         []ItemView
}

// Context is one evaluation scope. Item is set when a condition targets a
// specific item and nil for cart-level targets.
type Context struct {
	Cart Snapshot
	Item *ItemView
}

// Predicate reports whether a dynamic condition should be attached.
type Predicate func(Context) bool

// Builder turns rule parameters into a predicate, failing fast on bad input.
type Builder func(params map[string]any) (Predicate, error)

// Registry maps predicate keys to builders.
type Registry struct {
	builders map[string]Builder
}

// NewRegistry returns a registry pre-loaded with the built-in vocabulary.
func NewRegistry() *Registry {
	r := &Registry{builders: map[string]Builder{}}
	r.Register("min-items", buildMinItems)
	r.Register("max-items", buildMaxItems)
	r.Register("total-at-least", buildTotalAtLeast)
	r.Register("total-below", buildTotalBelow)
	r.Register("total-between", buildTotalBetween)
	r.Register("item-attribute", buildItemAttribute)
	r.Register("item-ids", buildItemIDs)
	r.Register("item-qty-at-least", buildItemQtyAtLeast)
	r.Register("item-price-at-least", buildItemPriceAtLeast)
	return r
}

// Register adds or replaces a builder for the given key.
func (r *Registry) Register(key string, b Builder) {
	r.builders[key] = b
}

// Build compiles a single rule spec.
func (r *Registry) Build(spec condition.RuleSpec) (Predicate, error) {
	b, ok := r.builders[spec.Key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedRule, spec.Key)
	}
	p, err := b(spec.Params)
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", spec.Key, err)
	}
	return p, nil
}

// Compile compiles every spec, AND semantics are applied by the caller.
func (r *Registry) Compile(specs []condition.RuleSpec) ([]Predicate, error) {
	out := make([]Predicate, 0, len(specs))
	for _, spec := range specs {
		p, err := r.Build(spec)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// EvalAll reports whether every predicate passes for the context.
func EvalAll(preds []Predicate, ctx Context) bool {
	for _, p := range preds {
		if !p(ctx) {
			return false
		}
	}
	return true
}
