package events

import (
	"context"
	"encoding/json"

	"github.com/masyukai/cart/internal/queue"
)

// QueueKind is the task kind cart events travel under.
const QueueKind = "cart-events"

// QueueNotifier hands events to the Redis-backed queue for asynchronous
// consumers (projections, webhooks, analytics).
type QueueNotifier struct {
	Q    queue.Enqueuer
	Kind string
}

// Notify implements Notifier. The event id doubles as the idempotency key so
// a retried emit never enqueues twice.
func (n QueueNotifier) Notify(ctx context.Context, event Event) error {
	kind := n.Kind
	if kind == "" {
		kind = QueueKind
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return n.Q.Enqueue(ctx, queue.Task{
		Kind:           kind,
		Payload:        payload,
		IdempotencyKey: event.ID,
	})
}
