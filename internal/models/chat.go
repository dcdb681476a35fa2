package models

import (
	"errors"
	"time"
)

// ChatType distinguishes direct chats from threads.
type ChatType string

const (
	ChatTypeDirect ChatType = "direct"
	ChatTypeThread ChatType = "thread"
)

// Chat is a conversation. Direct chats store their participants as an ordered
// (min, max) pair so one pair maps to exactly one row.
type Chat struct {
	ID            int64     `db:"id" json:"id"`
	Type          ChatType  `db:"type" json:"type"`
	User1ID       *int64    `db:"user1_id" json:"user1_id,omitempty"`
	User2ID       *int64    `db:"user2_id" json:"user2_id,omitempty"`
	SpaceID       *int64    `db:"space_id" json:"space_id,omitempty"`
	Title         *string   `db:"title" json:"title,omitempty"`
	Public        bool      `db:"public" json:"public"`
	LastMessageID *int64    `db:"last_message_id" json:"last_message_id,omitempty"`
	MaxSeq        int64     `db:"max_seq" json:"-"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// IsParticipant reports whether userID is one side of a direct chat.
func (c Chat) IsParticipant(userID int64) bool {
	if c.Type != ChatTypeDirect {
		return false
	}
	return (c.User1ID != nil && *c.User1ID == userID) || (c.User2ID != nil && *c.User2ID == userID)
}

// PeerFor returns how userID addresses this chat in their dialog list.
func (c Chat) PeerFor(userID int64) Peer {
	if c.Type == ChatTypeDirect && c.User1ID != nil && c.User2ID != nil {
		if *c.User1ID == userID {
			return UserPeer(*c.User2ID)
		}
		return UserPeer(*c.User1ID)
	}
	return ThreadPeer(c.ID)
}

// Space groups threads; membership decides which public threads a user sees.
type Space struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

var ErrInvalidPeer = errors.New("peer must reference exactly one user or thread")

// Peer identifies a dialog from one viewer's perspective: either the other
// user of a direct chat or a thread.
type Peer struct {
	UserID   int64 `json:"user_id,omitempty"`
	ThreadID int64 `json:"thread_id,omitempty"`
}

func UserPeer(userID int64) Peer {
	return Peer{UserID: userID}
}

func ThreadPeer(threadID int64) Peer {
	return Peer{ThreadID: threadID}
}

func (p Peer) IsUser() bool {
	return p.UserID != 0 && p.ThreadID == 0
}

func (p Peer) IsThread() bool {
	return p.ThreadID != 0 && p.UserID == 0
}

// Validate rejects empty, negative and doubly-specified peers.
func (p Peer) Validate() error {
	if p.UserID < 0 || p.ThreadID < 0 {
		return ErrInvalidPeer
	}
	if p.IsUser() == p.IsThread() {
		return ErrInvalidPeer
	}
	return nil
}

// PeerForRecipient converts the peer as seen by senderID into the peer that
// recipientID sees for the same chat. A direct chat seen by the sender as
// "user B" is seen by B as "user <sender>"; threads look the same to everyone.
func PeerForRecipient(senderID int64, senderView Peer, recipientID int64) Peer {
	if recipientID == senderID {
		return senderView
	}
	if senderView.IsUser() {
		return UserPeer(senderID)
	}
	return senderView
}
