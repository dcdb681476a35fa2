package models

import "time"

// Message is a chat message. ID is the per-chat sequence number, not a global id.
type Message struct {
	ChatID    int64     `db:"chat_id" json:"chat_id"`
	ID        int64     `db:"message_id" json:"id"`
	SenderID  int64     `db:"sender_id" json:"sender_id"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// DeleteResult describes the chat after a hard delete.
type DeleteResult struct {
	Deleted       []int64
	LastMessageID *int64
}
