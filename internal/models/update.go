package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// UpdateKind names a variant of Update on the wire and in the bucket.
type UpdateKind string

const (
	KindDialogArchived    UpdateKind = "dialog_archived"
	KindReadMaxAdvanced   UpdateKind = "read_max_advanced"
	KindUnreadMarkCleared UpdateKind = "unread_mark_cleared"
	KindUnreadMarkSet     UpdateKind = "unread_mark_set"
	KindMessagesDeleted   UpdateKind = "messages_deleted"
	KindComposeAction     UpdateKind = "compose_action"
)

// Update is a state change delivered to a user's devices. The set of variants
// is closed: only types in this package implement it.
type Update interface {
	Kind() UpdateKind
	update()
}

// DialogArchived reports that the recipient's dialog with Peer was (un)archived.
type DialogArchived struct {
	Peer     Peer `json:"peer"`
	Archived bool `json:"archived"`
}

// ReadMaxAdvanced reports a new read position and the unread count it leaves.
type ReadMaxAdvanced struct {
	Peer        Peer  `json:"peer"`
	ReadMaxID   int64 `json:"read_max_id"`
	UnreadCount int   `json:"unread_count"`
}

// UnreadMarkCleared reports that the manual unread mark was removed.
type UnreadMarkCleared struct {
	Peer Peer `json:"peer"`
}

// UnreadMarkSet reports that the user flagged the dialog as unread.
type UnreadMarkSet struct {
	Peer Peer `json:"peer"`
}

// MessagesDeleted reports hard-deleted messages in the chat addressed by Peer.
type MessagesDeleted struct {
	Peer       Peer    `json:"peer"`
	MessageIDs []int64 `json:"message_ids"`
}

// ComposeActionType is what a user is doing in a chat. The empty value means
// the user stopped.
type ComposeActionType string

const (
	ComposeTyping            ComposeActionType = "typing"
	ComposeUploadingPhoto    ComposeActionType = "uploading_photo"
	ComposeUploadingDocument ComposeActionType = "uploading_document"
	ComposeUploadingVideo    ComposeActionType = "uploading_video"
)

// Valid reports whether a is a known action or the empty "stopped" action.
func (a ComposeActionType) Valid() bool {
	switch a {
	case "", ComposeTyping, ComposeUploadingPhoto, ComposeUploadingDocument, ComposeUploadingVideo:
		return true
	}
	return false
}

// ComposeAction tells the recipient that UserID is composing in the chat
// the recipient knows as Peer. It is never written to the bucket.
type ComposeAction struct {
	Peer   Peer              `json:"peer"`
	UserID int64             `json:"user_id"`
	Action ComposeActionType `json:"action,omitempty"`
}

func (DialogArchived) Kind() UpdateKind    { return KindDialogArchived }
func (ReadMaxAdvanced) Kind() UpdateKind   { return KindReadMaxAdvanced }
func (UnreadMarkCleared) Kind() UpdateKind { return KindUnreadMarkCleared }
func (UnreadMarkSet) Kind() UpdateKind     { return KindUnreadMarkSet }
func (MessagesDeleted) Kind() UpdateKind   { return KindMessagesDeleted }
func (ComposeAction) Kind() UpdateKind     { return KindComposeAction }

func (DialogArchived) update()    {}
func (ReadMaxAdvanced) update()   {}
func (UnreadMarkCleared) update() {}
func (UnreadMarkSet) update()     {}
func (MessagesDeleted) update()   {}
func (ComposeAction) update()     {}

// IsDurable reports whether u must be appended to the user's bucket.
func IsDurable(u Update) bool {
	switch u.(type) {
	case DialogArchived, ReadMaxAdvanced, UnreadMarkCleared, UnreadMarkSet, MessagesDeleted:
		return true
	case ComposeAction:
		return false
	default:
		panic(fmt.Sprintf("models: unhandled update %T", u))
	}
}

// UpdatePeer returns the peer an update refers to.
func UpdatePeer(u Update) Peer {
	switch v := u.(type) {
	case DialogArchived:
		return v.Peer
	case ReadMaxAdvanced:
		return v.Peer
	case UnreadMarkCleared:
		return v.Peer
	case UnreadMarkSet:
		return v.Peer
	case MessagesDeleted:
		return v.Peer
	case ComposeAction:
		return v.Peer
	default:
		panic(fmt.Sprintf("models: unhandled update %T", u))
	}
}

// DecodeUpdate rebuilds an update from its stored kind and JSON payload.
func DecodeUpdate(kind UpdateKind, payload []byte) (Update, error) {
	switch kind {
	case KindDialogArchived:
		return decodeAs[DialogArchived](payload)
	case KindReadMaxAdvanced:
		return decodeAs[ReadMaxAdvanced](payload)
	case KindUnreadMarkCleared:
		return decodeAs[UnreadMarkCleared](payload)
	case KindUnreadMarkSet:
		return decodeAs[UnreadMarkSet](payload)
	case KindMessagesDeleted:
		return decodeAs[MessagesDeleted](payload)
	case KindComposeAction:
		return decodeAs[ComposeAction](payload)
	default:
		return nil, fmt.Errorf("unknown update kind %q", kind)
	}
}

func decodeAs[T Update](payload []byte) (Update, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// UpdateEntry is one record of a user's bucket.
type UpdateEntry struct {
	UserID    int64
	Seq       int64
	Update    Update
	CreatedAt time.Time
}

// UpdateEnvelope is the JSON shape of an update on the wire. Seq is zero for
// transient updates.
type UpdateEnvelope struct {
	Seq       int64           `json:"seq,omitempty"`
	Kind      UpdateKind      `json:"kind"`
	Update    json.RawMessage `json:"update"`
	CreatedAt *time.Time      `json:"created_at,omitempty"`
}

// NewEnvelope wraps u for the wire.
func NewEnvelope(seq int64, u Update, createdAt time.Time) (UpdateEnvelope, error) {
	payload, err := json.Marshal(u)
	if err != nil {
		return UpdateEnvelope{}, err
	}
	env := UpdateEnvelope{Seq: seq, Kind: u.Kind(), Update: payload}
	if !createdAt.IsZero() {
		env.CreatedAt = &createdAt
	}
	return env, nil
}

// Decode returns the update carried by the envelope.
func (e UpdateEnvelope) Decode() (Update, error) {
	return DecodeUpdate(e.Kind, e.Update)
}

func (e UpdateEntry) MarshalJSON() ([]byte, error) {
	env, err := NewEnvelope(e.Seq, e.Update, e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

func (e *UpdateEntry) UnmarshalJSON(data []byte) error {
	var env UpdateEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	u, err := env.Decode()
	if err != nil {
		return err
	}
	e.Seq = env.Seq
	e.Update = u
	if env.CreatedAt != nil {
		e.CreatedAt = *env.CreatedAt
	}
	return nil
}

// UpdatesPage is one page of catch-up results. Cursor is the seq to pass as
// "after" for the next page.
type UpdatesPage struct {
	Updates []UpdateEntry `json:"updates"`
	Cursor  int64         `json:"cursor"`
	HasMore bool          `json:"has_more"`
}
