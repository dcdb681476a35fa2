package repositories

import (
	"context"

	"chat-sync/internal/db"
)

// UnreadCounter is the storage query the calculator needs.
type UnreadCounter interface {
	CountAfter(ctx context.Context, q db.Queryer, chatID int64, afterID int64) (int, error)
}

// UnreadCalculator derives unread counts from current message rows. Counts
// are never cached, so they cannot drift from the messages table.
type UnreadCalculator struct {
	counter UnreadCounter
}

// NewUnreadCalculator constructs an UnreadCalculator.
func NewUnreadCalculator(counter UnreadCounter) *UnreadCalculator {
	return &UnreadCalculator{counter: counter}
}

// Count returns how many messages of the chat sit above readInboxMaxID.
func (c *UnreadCalculator) Count(ctx context.Context, q db.Queryer, chatID int64, readInboxMaxID int64) (int, error) {
	if readInboxMaxID < 0 {
		readInboxMaxID = 0
	}
	return c.counter.CountAfter(ctx, q, chatID, readInboxMaxID)
}
