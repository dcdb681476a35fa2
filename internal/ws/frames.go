package ws

import (
	"encoding/json"
	"time"

	"chat-sync/internal/models"
)

const (
	FrameConnectionOpen = "connection_open"
	FrameUpdate         = "update"
	FrameUpdates        = "updates"
	FrameGetUpdates     = "get_updates"
	FramePing           = "ping"
	FramePong           = "pong"
	FrameError          = "error"
)

type connectionOpenFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Cursor    int64  `json:"cursor"`
}

// UpdateFrame carries one live update.
type UpdateFrame struct {
	Type string `json:"type"`
	models.UpdateEnvelope
}

type updatesFrame struct {
	Type    string               `json:"type"`
	Updates []models.UpdateEntry `json:"updates"`
	Cursor  int64                `json:"cursor"`
	HasMore bool                 `json:"has_more"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// clientFrame is what a client may send over the socket.
type clientFrame struct {
	Type  string `json:"type"`
	After int64  `json:"after"`
	Limit int    `json:"limit"`
}

// EncodeUpdateFrame renders an update push. seq is zero for transient updates.
func EncodeUpdateFrame(seq int64, update models.Update, createdAt time.Time) ([]byte, error) {
	env, err := models.NewEnvelope(seq, update, createdAt)
	if err != nil {
		return nil, err
	}
	return json.Marshal(UpdateFrame{Type: FrameUpdate, UpdateEnvelope: env})
}
