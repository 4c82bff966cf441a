package cart

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/masyukai/cart/internal/condition"
	"github.com/masyukai/cart/internal/money"
)

// ErrInvalidItem is returned when an item spec fails validation.
var ErrInvalidItem = errors.New("cart: invalid item")

// ErrItemNotFound is the typed not-found result for update/remove on a
// missing item id.
var ErrItemNotFound = errors.New("cart: item not found")

// Item is one line entry, owned exclusively by its cart.
type Item struct {
	ID         string
	Name       string
	UnitPrice  money.Money
	Quantity   int
	Attributes map[string]any
	Conditions *condition.Collection
}

// ItemSpec is the input for adding an item.
type ItemSpec struct {
	ID         string
	Name       string
	UnitPrice  money.Money
	Quantity   int
	Attributes map[string]any
	Conditions []condition.Condition
}

func newItem(spec ItemSpec) (*Item, error) {
	id := strings.TrimSpace(spec.ID)
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidItem)
	}
	if strings.TrimSpace(spec.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidItem)
	}
	if !spec.UnitPrice.IsPositive() {
		return nil, fmt.Errorf("%w: unit price must be positive", ErrInvalidItem)
	}
	if spec.Quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidItem)
	}
	conds := condition.NewCollection()
	for _, c := range spec.Conditions {
		if c.Target != condition.TargetItem {
			return nil, fmt.Errorf("%w: condition %q must target %q", ErrInvalidItem, c.Name, condition.TargetItem)
		}
		if err := conds.Add(c); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidItem, err)
		}
	}
	return &Item{
		ID:         id,
		Name:       spec.Name,
		UnitPrice:  spec.UnitPrice,
		Quantity:   spec.Quantity,
		Attributes: spec.Attributes,
		Conditions: conds,
	}, nil
}

// Gross returns unit price times quantity before any conditions.
func (i *Item) Gross() money.Money {
	return i.UnitPrice.MulInt(int64(i.Quantity))
}

type itemRecord struct {
	ID         string                `json:"id"`
	Name       string                `json:"name"`
	UnitPrice  money.Money           `json:"unit_price"`
	Quantity   int                   `json:"quantity"`
	Attributes map[string]any        `json:"attributes,omitempty"`
	Conditions *condition.Collection `json:"conditions,omitempty"`
}

// MarshalJSON encodes the item for storage snapshots.
func (i *Item) MarshalJSON() ([]byte, error) {
	return json.Marshal(itemRecord{
		ID:         i.ID,
		Name:       i.Name,
		UnitPrice:  i.UnitPrice,
		Quantity:   i.Quantity,
		Attributes: i.Attributes,
		Conditions: i.Conditions,
	})
}

// UnmarshalJSON decodes a stored item snapshot.
func (i *Item) UnmarshalJSON(data []byte) error {
	var rec itemRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	if rec.Conditions == nil {
		rec.Conditions = condition.NewCollection()
	}
	*i = Item{
		ID:         rec.ID,
		Name:       rec.Name,
		UnitPrice:  rec.UnitPrice,
		Quantity:   rec.Quantity,
		Attributes: rec.Attributes,
		Conditions: rec.Conditions,
	}
	return nil
}

// ItemCollection is an ordered, id-keyed set of items.
type ItemCollection struct {
	list []*Item
}

// NewItemCollection returns an empty collection.
func NewItemCollection() *ItemCollection {
	return &ItemCollection{}
}

// Len returns the number of distinct items.
func (c *ItemCollection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.list)
}

// TotalQuantity sums the quantities across all items.
func (c *ItemCollection) TotalQuantity() int {
	total := 0
	if c == nil {
		return total
	}
	for _, it := range c.list {
		total += it.Quantity
	}
	return total
}

// Get looks an item up by id.
func (c *ItemCollection) Get(id string) (*Item, bool) {
	if c == nil {
		return nil, false
	}
	for _, it := range c.list {
		if it.ID == id {
			return it, true
		}
	}
	return nil, false
}

func (c *ItemCollection) add(item *Item) {
	c.list = append(c.list, item)
}

func (c *ItemCollection) remove(id string) (*Item, bool) {
	for i, it := range c.list {
		if it.ID == id {
			c.list = append(c.list[:i], c.list[i+1:]...)
			return it, true
		}
	}
	return nil, false
}

// All returns the items in insertion order. The slice is a copy; the items
// themselves stay owned by the cart.
func (c *ItemCollection) All() []*Item {
	if c == nil {
		return nil
	}
	out := make([]*Item, len(c.list))
	copy(out, c.list)
	return out
}

// Clear drops every item.
func (c *ItemCollection) Clear() {
	if c != nil {
		c.list = nil
	}
}

// MarshalJSON encodes the collection as an ordered array.
func (c *ItemCollection) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.list)
}

// UnmarshalJSON decodes an ordered array of items.
func (c *ItemCollection) UnmarshalJSON(data []byte) error {
	var list []*Item
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	rebuilt := ItemCollection{}
	for _, it := range list {
		if _, dup := rebuilt.Get(it.ID); dup {
			return fmt.Errorf("%w: duplicate id %q in snapshot", ErrInvalidItem, it.ID)
		}
		rebuilt.add(it)
	}
	*c = rebuilt
	return nil
}
