package condition

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrDuplicateName is returned when a condition name is reused within one collection.
var ErrDuplicateName = errors.New("condition: duplicate name in collection")

// Collection is an ordered, name-keyed set of conditions. Names are unique
// within a single collection; cart-level and each item-level collection are
// independent namespaces.
type Collection struct {
	list []Condition
}

// NewCollection returns an empty collection.
func NewCollection() *Collection {
	return &Collection{}
}

// Len returns the number of conditions held.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.list)
}

// Add appends a condition, rejecting duplicate names.
func (c *Collection) Add(cond Condition) error {
	if _, ok := c.Get(cond.Name); ok {
		return fmt.Errorf("%w: %q", ErrDuplicateName, cond.Name)
	}
	c.list = append(c.list, cond)
	return nil
}

// Get looks a condition up by name.
func (c *Collection) Get(name string) (Condition, bool) {
	if c == nil {
		return Condition{}, false
	}
	for _, cond := range c.list {
		if cond.Name == name {
			return cond, true
		}
	}
	return Condition{}, false
}

// Has reports whether a condition with the given name is present.
func (c *Collection) Has(name string) bool {
	_, ok := c.Get(name)
	return ok
}

// Remove deletes a condition by name and returns it.
func (c *Collection) Remove(name string) (Condition, bool) {
	if c == nil {
		return Condition{}, false
	}
	for i, cond := range c.list {
		if cond.Name == name {
			c.list = append(c.list[:i], c.list[i+1:]...)
			return cond, true
		}
	}
	return Condition{}, false
}

// Clear drops every condition.
func (c *Collection) Clear() {
	if c != nil {
		c.list = nil
	}
}

// All returns the conditions in insertion order.
func (c *Collection) All() []Condition {
	if c == nil {
		return nil
	}
	out := make([]Condition, len(c.list))
	copy(out, c.list)
	return out
}

// Sorted returns the conditions ordered by Order ascending. The sort is
// stable: ties keep insertion order.
func (c *Collection) Sorted() []Condition {
	out := c.All()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// ByType returns the conditions of the given type, in insertion order.
func (c *Collection) ByType(t Type) []Condition {
	var out []Condition
	if c == nil {
		return out
	}
	for _, cond := range c.list {
		if cond.Type == t {
			out = append(out, cond)
		}
	}
	return out
}

// ByTarget returns the conditions applying at the given level, by Order ascending.
func (c *Collection) ByTarget(t Target) []Condition {
	var out []Condition
	for _, cond := range c.Sorted() {
		if cond.Target == t {
			out = append(out, cond)
		}
	}
	return out
}

// Names returns the condition names in insertion order.
func (c *Collection) Names() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.list))
	for _, cond := range c.list {
		out = append(out, cond.Name)
	}
	return out
}

// Stats summarises a collection for reporting.
type Stats struct {
	Total     int `json:"total"`
	Discounts int `json:"discounts"`
	Charges   int `json:"charges"`
}

// Stats counts conditions by classification.
func (c *Collection) Stats() Stats {
	s := Stats{Total: c.Len()}
	if c == nil {
		return s
	}
	for _, cond := range c.list {
		switch {
		case cond.IsDiscount():
			s.Discounts++
		case cond.IsCharge():
			s.Charges++
		}
	}
	return s
}

// MarshalJSON encodes the collection as an ordered array.
func (c *Collection) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.list)
}

// UnmarshalJSON decodes an ordered array, re-validating name uniqueness.
func (c *Collection) UnmarshalJSON(data []byte) error {
	var list []Condition
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	rebuilt := Collection{}
	for _, cond := range list {
		if err := rebuilt.Add(cond); err != nil {
			return err
		}
	}
	*c = rebuilt
	return nil
}
