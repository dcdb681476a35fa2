package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"chat-sync/internal/auth"
	"chat-sync/internal/models"
	"chat-sync/internal/observability"
	"chat-sync/internal/rabbitmq"
)

const (
	maxFrameSize    = 4096
	wsEventsRouting = "ws_events.sessions"
)

// CatchUp serves bucket reads for connected sessions.
type CatchUp interface {
	GetUpdates(ctx context.Context, userID, afterSeq int64, limit int) (models.UpdatesPage, error)
	GetUpdatesState(ctx context.Context, userID int64) (int64, error)
}

// TokenValidator resolves a bearer token to its claims.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// Handler upgrades authenticated requests into registered sessions.
type Handler struct {
	registry *Registry
	catchUp  CatchUp
	tokens   TokenValidator
	events   rabbitmq.Publisher
	buffer   int
	logger   *zap.Logger
}

// NewHandler constructs a Handler. buffer is the per-session send queue size.
func NewHandler(registry *Registry, catchUp CatchUp, tokens TokenValidator, events rabbitmq.Publisher, buffer int, logger *zap.Logger) *Handler {
	return &Handler{
		registry: registry,
		catchUp:  catchUp,
		tokens:   tokens,
		events:   events,
		buffer:   buffer,
		logger:   logger.Named("ws"),
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and runs the session until the client leaves.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chat-sync/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	claims, err := h.tokens.Validate(bearerToken(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	cursor, err := h.catchUp.GetUpdatesState(ctx, claims.UserID)
	if err != nil {
		h.logger.Error("load update cursor failed", zap.Int64("user_id", claims.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	meta := observability.MetaFromRequest(c.Request)
	if claims.DeviceID != "" {
		meta.DeviceID = claims.DeviceID
	}
	meta.SessionID = uuid.NewString()
	info := ConnInfo{
		RequestMeta: meta,
		UserID:      claims.UserID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	// connection_open is queued before the session becomes visible to
	// fanout, so it is always the first frame on the wire.
	session := newConnSession(conn, info, h.buffer, h.logger)
	h.sendFrame(session, connectionOpenFrame{Type: FrameConnectionOpen, SessionID: info.SessionID, Cursor: cursor})
	h.registry.Register(info.UserID, info.SessionID, session)
	go session.writeLoop()

	observability.IncWSActive()
	h.lifecycle(ctx, info, EventConnect, "")

	go h.readLoop(context.WithoutCancel(ctx), session)
}

func (h *Handler) readLoop(ctx context.Context, session *connSession) {
	info := session.info
	var closeReason string
	defer func() {
		h.registry.Unregister(info.SessionID)
		session.Close()
		observability.DecWSActive()
		h.lifecycle(ctx, info, EventDisconnect, closeReason)
	}()

	conn := session.conn
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.lifecycle(ctx, info, EventError, closeReason)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		h.handleFrame(ctx, session, data)
	}
}

func (h *Handler) handleFrame(ctx context.Context, session *connSession, data []byte) {
	var frame clientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		h.sendFrame(session, errorFrame{Type: FrameError, Error: "malformed frame"})
		return
	}

	switch frame.Type {
	case FramePing:
		h.sendFrame(session, map[string]string{"type": FramePong})
	case FrameGetUpdates:
		page, err := h.catchUp.GetUpdates(ctx, session.UserID(), frame.After, frame.Limit)
		if err != nil {
			session.logger.Warn("catch-up read failed", zap.Int64("after", frame.After), zap.Error(err))
			h.sendFrame(session, errorFrame{Type: FrameError, Error: "internal error"})
			return
		}
		h.sendFrame(session, updatesFrame{
			Type:    FrameUpdates,
			Updates: page.Updates,
			Cursor:  page.Cursor,
			HasMore: page.HasMore,
		})
	default:
		h.sendFrame(session, errorFrame{Type: FrameError, Error: "unknown frame type"})
	}
}

func (h *Handler) sendFrame(session Session, frame any) {
	payload, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("encode frame failed", zap.Error(err))
		return
	}
	if err := session.Send(payload); err != nil {
		h.logger.Debug("frame dropped", zap.String("session_id", session.ID()), zap.Error(err))
	}
}

func (h *Handler) lifecycle(ctx context.Context, info ConnInfo, event, reason string) {
	observability.IncWSEvent(event)
	if h.events == nil {
		return
	}
	if err := h.events.Publish(ctx, wsEventsRouting, info.event(event, reason, time.Now()), info.BrokerHeaders(info.TraceID)); err != nil {
		h.logger.Debug("session event not published", zap.String("event", event), zap.Error(err))
	}
}

// bearerToken prefers the Authorization header; browsers cannot set it on a
// websocket upgrade, so the token query parameter is accepted as well.
func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		token, _ := auth.BearerToken(header)
		return token
	}
	return c.Query("token")
}
