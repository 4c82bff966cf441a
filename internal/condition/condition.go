package condition

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidCondition is returned when a condition spec fails validation.
var ErrInvalidCondition = errors.New("condition: invalid condition")

// Type categorises what a condition represents.
type Type string

const (
	TypeDiscount Type = "discount"
	TypeFee      Type = "fee"
	TypeTax      Type = "tax"
	TypeShipping Type = "shipping"
	TypeCustom   Type = "custom"
)

// Target is the aggregation level a condition applies to.
type Target string

const (
	TargetItem     Target = "item"
	TargetSubtotal Target = "subtotal"
	TargetTotal    Target = "total"
)

func validType(t Type) bool {
	switch t {
	case TypeDiscount, TypeFee, TypeTax, TypeShipping, TypeCustom:
		return true
	}
	return false
}

func validTarget(t Target) bool {
	switch t {
	case TargetItem, TargetSubtotal, TargetTotal:
		return true
	}
	return false
}

// RuleSpec names a rule predicate and its parameters. A condition carrying
// rule specs is dynamic: its presence in a collection is managed by the
// dynamic registry, not by direct user action.
type RuleSpec struct {
	Key    string         `json:"key"`
	Params map[string]any `json:"params,omitempty"`
}

// Spec is the input for constructing a Condition.
type Spec struct {
	Name       string
	Type       Type
	Target     Target
	Value      string
	Order      int
	Attributes map[string]any
	Rules      []RuleSpec
}

// Condition is an immutable rule describing one price adjustment.
// Construct via New; treat the fields as read-only afterwards.
type Condition struct {
	Name       string         `json:"name"`
	Type       Type           `json:"type"`
	Target     Target         `json:"target"`
	Value      Value          `json:"value"`
	Order      int            `json:"order"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Rules      []RuleSpec     `json:"rules,omitempty"`
}

// New validates the spec and parses its value expression once.
func New(spec Spec) (Condition, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return Condition{}, fmt.Errorf("%w: name is required", ErrInvalidCondition)
	}
	if !validType(spec.Type) {
		return Condition{}, fmt.Errorf("%w: unknown type %q", ErrInvalidCondition, spec.Type)
	}
	if !validTarget(spec.Target) {
		return Condition{}, fmt.Errorf("%w: unknown target %q", ErrInvalidCondition, spec.Target)
	}
	value, err := ParseValue(spec.Value)
	if err != nil {
		return Condition{}, fmt.Errorf("%w: %s", ErrInvalidCondition, err)
	}
	return Condition{
		Name:       name,
		Type:       spec.Type,
		Target:     spec.Target,
		Value:      value,
		Order:      spec.Order,
		Attributes: spec.Attributes,
		Rules:      spec.Rules,
	}, nil
}

// Dynamic reports whether the condition's attachment is rule-gated.
func (c Condition) Dynamic() bool {
	return len(c.Rules) > 0
}

// Static returns a copy with the rule specs stripped. The dynamic registry
// attaches this form to the active collections.
func (c Condition) Static() Condition {
	c.Rules = nil
	return c
}

// IsDiscount reports whether the condition lowers the amount it applies to.
func (c Condition) IsDiscount() bool { return c.Value.IsDiscount() }

// IsCharge reports whether the condition raises the amount it applies to.
func (c Condition) IsCharge() bool { return c.Value.IsCharge() }
