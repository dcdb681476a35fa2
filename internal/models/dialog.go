package models

import "time"

// Dialog is one user's state for a chat.
type Dialog struct {
	UserID         int64     `db:"user_id" json:"-"`
	ChatID         int64     `db:"chat_id" json:"chat_id"`
	PeerUserID     *int64    `db:"peer_user_id" json:"-"`
	Pinned         bool      `db:"pinned" json:"pinned"`
	Archived       bool      `db:"archived" json:"archived"`
	Draft          *string   `db:"draft" json:"draft,omitempty"`
	ReadInboxMaxID int64     `db:"read_inbox_max_id" json:"read_inbox_max_id"`
	UnreadMark     bool      `db:"unread_mark" json:"unread_mark"`
	CreatedAt      time.Time `db:"created_at" json:"-"`
}

// DialogPatch carries the optional fields of an updateDialog request.
type DialogPatch struct {
	Pinned   *bool   `json:"pinned,omitempty"`
	Archived *bool   `json:"archived,omitempty"`
	Draft    *string `json:"draft,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p DialogPatch) Empty() bool {
	return p.Pinned == nil && p.Archived == nil && p.Draft == nil
}

// Apply writes the provided fields onto d and reports whether archived flipped.
func (p DialogPatch) Apply(d *Dialog) (archivedFlipped bool) {
	if p.Pinned != nil {
		d.Pinned = *p.Pinned
	}
	if p.Archived != nil {
		archivedFlipped = d.Archived != *p.Archived
		d.Archived = *p.Archived
	}
	if p.Draft != nil {
		if *p.Draft == "" {
			d.Draft = nil
		} else {
			draft := *p.Draft
			d.Draft = &draft
		}
	}
	return archivedFlipped
}

// ReadResult is the outcome of advancing a dialog's read position.
type ReadResult struct {
	EffectiveMaxID int64
	Advanced       bool
	MarkCleared    bool
}

// ReadOutcome is what readMessages reports back to the caller.
type ReadOutcome struct {
	ReadMaxID   int64 `json:"read_max_id"`
	UnreadCount int   `json:"unread_count"`
	Advanced    bool  `json:"advanced"`
	MarkCleared bool  `json:"mark_cleared"`
}

// DialogView is a dialog with its chat, last message and unread count attached.
type DialogView struct {
	Dialog
	Peer        Peer     `json:"peer"`
	Chat        Chat     `json:"chat"`
	LastMessage *Message `json:"last_message,omitempty"`
	UnreadCount int      `json:"unread_count"`
}

// DialogRow is the joined dialog/chat/last-message row loaded for dialog lists.
type DialogRow struct {
	Dialog
	ChatType      ChatType   `db:"chat_type"`
	User1ID       *int64     `db:"user1_id"`
	User2ID       *int64     `db:"user2_id"`
	SpaceID       *int64     `db:"space_id"`
	Title         *string    `db:"title"`
	Public        bool       `db:"public"`
	LastMessageID *int64     `db:"last_message_id"`
	ChatCreatedAt time.Time  `db:"chat_created_at"`
	MsgSenderID   *int64     `db:"msg_sender_id"`
	MsgContent    *string    `db:"msg_content"`
	MsgCreatedAt  *time.Time `db:"msg_created_at"`
}

// ChatOf rebuilds the chat part of a joined row.
func (r DialogRow) ChatOf() Chat {
	return Chat{
		ID:            r.ChatID,
		Type:          r.ChatType,
		User1ID:       r.User1ID,
		User2ID:       r.User2ID,
		SpaceID:       r.SpaceID,
		Title:         r.Title,
		Public:        r.Public,
		LastMessageID: r.LastMessageID,
		CreatedAt:     r.ChatCreatedAt,
	}
}

// LastMessageOf returns the joined last message, if the chat has one.
func (r DialogRow) LastMessageOf() *Message {
	if r.LastMessageID == nil || r.MsgSenderID == nil {
		return nil
	}
	msg := &Message{ChatID: r.ChatID, ID: *r.LastMessageID, SenderID: *r.MsgSenderID}
	if r.MsgContent != nil {
		msg.Content = *r.MsgContent
	}
	if r.MsgCreatedAt != nil {
		msg.CreatedAt = *r.MsgCreatedAt
	}
	return msg
}
