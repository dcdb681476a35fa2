package fanout

import (
	"context"

	"chat-sync/internal/db"
	"chat-sync/internal/models"
	"chat-sync/internal/observability"
)

// Outbox holds the updates of one operation between the bucket append, which
// runs inside the caller's transaction, and the live push after commit.
// An Outbox is used by a single goroutine.
type Outbox struct {
	fanout  *Fanout
	skip    string
	pending []models.UpdateEntry
}

// Append writes a durable update to userID's bucket through q. A failure must
// abort the surrounding transaction.
func (o *Outbox) Append(ctx context.Context, q db.Queryer, userID int64, update models.Update) error {
	entry, err := o.fanout.bucket.Append(ctx, q, userID, update)
	if err != nil {
		return err
	}
	observability.IncUpdateAppended(string(update.Kind()))
	o.pending = append(o.pending, entry)
	return nil
}

// Len returns the number of updates waiting for Flush.
func (o *Outbox) Len() int {
	return len(o.pending)
}

// Reset forgets collected updates. Call it when the transaction is retried or
// rolled back.
func (o *Outbox) Reset() {
	o.pending = o.pending[:0]
}

// Flush pushes every collected update live. It never fails; delivery is best
// effort once the bucket holds the update.
func (o *Outbox) Flush(ctx context.Context) {
	for _, entry := range o.pending {
		o.fanout.push(ctx, entry, o.skip)
	}
	o.pending = nil
}
