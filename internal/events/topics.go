package events

// Topic constants for cart state transitions.
const (
	TopicItemAdded        = "cart.item_added"
	TopicItemUpdated      = "cart.item_updated"
	TopicItemRemoved      = "cart.item_removed"
	TopicConditionAdded   = "cart.condition_added"
	TopicConditionRemoved = "cart.condition_removed"
	TopicCartCleared      = "cart.cleared"
)

// DefaultTopics returns the canonical list of emitted topics.
func DefaultTopics() []string {
	return []string{
		TopicItemAdded,
		TopicItemUpdated,
		TopicItemRemoved,
		TopicConditionAdded,
		TopicConditionRemoved,
		TopicCartCleared,
	}
}
