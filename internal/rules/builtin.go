package rules

import (
	"fmt"
	"math"
)

func intParam(params map[string]any, key string) (int64, error) {
	raw, ok := params[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing %q", ErrInvalidRule, key)
	}
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%w: %q must be an integer", ErrInvalidRule, key)
		}
		return int64(v), nil
	default:
		return 0, fmt.Errorf("%w: %q must be an integer", ErrInvalidRule, key)
	}
}

func stringParam(params map[string]any, key string) (string, error) {
	raw, ok := params[key]
	if !ok {
		return "", fmt.Errorf("%w: missing %q", ErrInvalidRule, key)
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: %q must be a non-empty string", ErrInvalidRule, key)
	}
	return s, nil
}

func stringsParam(params map[string]any, key string) ([]string, error) {
	raw, ok := params[key]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q", ErrInvalidRule, key)
	}
	switch v := raw.(type) {
	case []string:
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: %q must not be empty", ErrInvalidRule, key)
		}
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, el := range v {
			s, ok := el.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %q must hold strings", ErrInvalidRule, key)
			}
			out = append(out, s)
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("%w: %q must not be empty", ErrInvalidRule, key)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q must be a string list", ErrInvalidRule, key)
	}
}

// anyItem applies the per-item check to the scoped item when present,
// otherwise to every item in the cart until one passes.
func anyItem(ctx Context, check func(ItemView) bool) bool {
	if ctx.Item != nil {
		return check(*ctx.Item)
	}
	for _, it := range ctx.Cart.Items {
		if check(it) {
			return true
		}
	}
	return false
}

func buildMinItems(params map[string]any) (Predicate, error) {
	count, err := intParam(params, "count")
	if err != nil {
		return nil, err
	}
	return func(ctx Context) bool {
		return int64(ctx.Cart.ItemCount) >= count
	}, nil
}

func buildMaxItems(params map[string]any) (Predicate, error) {
	count, err := intParam(params, "count")
	if err != nil {
		return nil, err
	}
	return func(ctx Context) bool {
		return int64(ctx.Cart.ItemCount) <= count
	}, nil
}

// Total thresholds compare in minor units with inclusive bounds.

func buildTotalAtLeast(params map[string]any) (Predicate, error) {
	amount, err := intParam(params, "amount")
	if err != nil {
		return nil, err
	}
	return func(ctx Context) bool {
		return ctx.Cart.Total.MinorUnits() >= amount
	}, nil
}

func buildTotalBelow(params map[string]any) (Predicate, error) {
	amount, err := intParam(params, "amount")
	if err != nil {
		return nil, err
	}
	return func(ctx Context) bool {
		return ctx.Cart.Total.MinorUnits() <= amount
	}, nil
}

func buildTotalBetween(params map[string]any) (Predicate, error) {
	min, err := intParam(params, "min")
	if err != nil {
		return nil, err
	}
	max, err := intParam(params, "max")
	if err != nil {
		return nil, err
	}
	if max < min {
		return nil, fmt.Errorf("%w: max below min", ErrInvalidRule)
	}
	return func(ctx Context) bool {
		total := ctx.Cart.Total.MinorUnits()
		return total >= min && total <= max
	}, nil
}

func buildItemAttribute(params map[string]any) (Predicate, error) {
	key, err := stringParam(params, "attribute")
	if err != nil {
		return nil, err
	}
	want, ok := params["equals"]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q", ErrInvalidRule, "equals")
	}
	return func(ctx Context) bool {
		return anyItem(ctx, func(it ItemView) bool {
			got, ok := it.Attributes[key]
			return ok && got == want
		})
	}, nil
}

func buildItemIDs(params map[string]any) (Predicate, error) {
	ids, err := stringsParam(params, "ids")
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return func(ctx Context) bool {
		return anyItem(ctx, func(it ItemView) bool {
			_, ok := set[it.ID]
			return ok
		})
	}, nil
}

func buildItemQtyAtLeast(params map[string]any) (Predicate, error) {
	count, err := intParam(params, "count")
	if err != nil {
		return nil, err
	}
	return func(ctx Context) bool {
		return anyItem(ctx, func(it ItemView) bool {
			return int64(it.Quantity) >= count
		})
	}, nil
}

func buildItemPriceAtLeast(params map[string]any) (Predicate, error) {
	amount, err := intParam(params, "amount")
	if err != nil {
		return nil, err
	}
	return func(ctx Context) bool {
		return anyItem(ctx, func(it ItemView) bool {
			return it.UnitPrice.MinorUnits() >= amount
		})
	}, nil
}
