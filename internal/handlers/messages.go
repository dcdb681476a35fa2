package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-sync/internal/models"
)

// MessageService is the message part of the sync service.
type MessageService interface {
	SendMessage(ctx context.Context, userID int64, peer models.Peer, content string) (models.Message, error)
	DeleteMessages(ctx context.Context, userID int64, peer models.Peer, messageIDs []int64, originSession string) (models.DeleteResult, error)
	SendComposeAction(ctx context.Context, userID int64, peer models.Peer, action models.ComposeActionType) error
	GetChatHistory(ctx context.Context, userID int64, peer models.Peer, offsetID int64, limit int) ([]models.Message, error)
}

// MessageHandler serves message and compose endpoints.
type MessageHandler struct {
	messages MessageService
	logger   *zap.Logger
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(messages MessageService, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{messages: messages, logger: logger}
}

// SendMessage stores a new message in the chat addressed by peer.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	var req struct {
		Peer    models.Peer `json:"peer"`
		Content string      `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.messages.SendMessage(c.Request.Context(), userIDFromContext(c), req.Peer, req.Content)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// GetChatHistory pages backwards through a chat. The peer is given as
// user_id or thread_id; offset_id excludes it and everything newer.
func (h *MessageHandler) GetChatHistory(c *gin.Context) {
	var req struct {
		UserID   int64 `form:"user_id"`
		ThreadID int64 `form:"thread_id"`
		OffsetID int64 `form:"offset_id"`
		Limit    int   `form:"limit"`
	}
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.OffsetID < 0 || req.Limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset_id or limit"})
		return
	}

	peer := models.Peer{UserID: req.UserID, ThreadID: req.ThreadID}
	messages, err := h.messages.GetChatHistory(c.Request.Context(), userIDFromContext(c), peer, req.OffsetID, req.Limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// DeleteMessages hard-deletes messages for everyone in the chat.
func (h *MessageHandler) DeleteMessages(c *gin.Context) {
	var req struct {
		Peer       models.Peer `json:"peer"`
		MessageIDs []int64     `json:"message_ids" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.messages.DeleteMessages(c.Request.Context(), userIDFromContext(c), req.Peer, req.MessageIDs, sessionIDFromContext(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": result.Deleted, "last_message_id": result.LastMessageID})
}

// SendComposeAction broadcasts typing or upload progress. An empty action
// means the user stopped.
func (h *MessageHandler) SendComposeAction(c *gin.Context) {
	var req struct {
		Peer   models.Peer              `json:"peer"`
		Action models.ComposeActionType `json:"action"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.messages.SendComposeAction(c.Request.Context(), userIDFromContext(c), req.Peer, req.Action); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
