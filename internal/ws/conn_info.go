package ws

import (
	"time"

	"chat-sync/internal/observability"
)

// Session lifecycle event names.
const (
	EventConnect    = "ws_connect"
	EventDisconnect = "ws_disconnect"
	EventError      = "ws_error"
)

// ConnInfo describes where a session came from.
type ConnInfo struct {
	observability.RequestMeta
	UserID      int64
	TraceID     string
	ConnectedAt time.Time
}

// SessionEvent is published to the broker when a session opens, fails or closes.
type SessionEvent struct {
	Event      string    `json:"event"`
	SessionID  string    `json:"session_id"`
	UserID     int64     `json:"user_id"`
	DeviceID   string    `json:"device_id,omitempty"`
	ClientIP   string    `json:"client_ip,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (i ConnInfo) event(name, reason string, now time.Time) SessionEvent {
	ev := SessionEvent{
		Event:      name,
		SessionID:  i.SessionID,
		UserID:     i.UserID,
		DeviceID:   i.DeviceID,
		ClientIP:   i.ClientIP,
		Reason:     reason,
		OccurredAt: now.UTC(),
	}
	if name != EventConnect {
		ev.DurationMS = now.Sub(i.ConnectedAt).Milliseconds()
	}
	return ev
}
