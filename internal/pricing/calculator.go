package pricing

import (
	"fmt"
	"sort"

	"github.com/masyukai/cart/internal/condition"
	"github.com/masyukai/cart/internal/money"
)

// Applied records one condition's effect inside an ordered chain.
type Applied struct {
	Name  string         `json:"name"`
	Type  condition.Type `json:"type"`
	Delta money.Money    `json:"delta"`
}

// Result is the outcome of applying a condition chain to a base amount.
type Result struct {
	Base      money.Money `json:"base"`
	Final     money.Money `json:"final"`
	Breakdown []Applied   `json:"breakdown,omitempty"`
}

// ApplyOrdered applies conditions to base sorted by Order ascending (stable,
// ties keep the given order). Each condition sees the running total left by
// the prior ones, not the original base, and every step rounds at the base's
// precision. Target filtering is the caller's responsibility.
func ApplyOrdered(base money.Money, conds []condition.Condition) (Result, error) {
	chain := make([]condition.Condition, len(conds))
	copy(chain, conds)
	sort.SliceStable(chain, func(i, j int) bool { return chain[i].Order < chain[j].Order })

	res := Result{Base: base, Final: base}
	running := base
	for _, cond := range chain {
		next, err := cond.Value.Apply(running)
		if err != nil {
			return Result{}, fmt.Errorf("pricing: apply %q: %w", cond.Name, err)
		}
		delta, err := next.Sub(running)
		if err != nil {
			return Result{}, fmt.Errorf("pricing: apply %q: %w", cond.Name, err)
		}
		res.Breakdown = append(res.Breakdown, Applied{Name: cond.Name, Type: cond.Type, Delta: delta})
		running = next
	}
	res.Final = running
	return res, nil
}

// DeltaByType folds a breakdown into per-type totals, e.g. how much of the
// final amount is tax versus discount.
func DeltaByType(breakdown []Applied, p money.Policy) (map[condition.Type]money.Money, error) {
	out := make(map[condition.Type]money.Money)
	for _, a := range breakdown {
		current, ok := out[a.Type]
		if !ok {
			current = money.Zero(p)
		}
		sum, err := current.Add(a.Delta)
		if err != nil {
			return nil, err
		}
		out[a.Type] = sum
	}
	return out, nil
}
