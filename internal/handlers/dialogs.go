package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-sync/internal/models"
)

// DialogService is the dialog part of the sync service.
type DialogService interface {
	ListDialogs(ctx context.Context, userID int64, spaceID *int64) ([]models.DialogView, error)
	ReadMessages(ctx context.Context, userID int64, peer models.Peer, maxID *int64, originSession string) (models.ReadOutcome, error)
	UpdateDialog(ctx context.Context, userID int64, peer models.Peer, patch models.DialogPatch, originSession string) (models.Dialog, error)
	MarkAsUnread(ctx context.Context, userID int64, peer models.Peer, originSession string) (bool, error)
}

// DialogHandler serves dialog list and dialog state endpoints.
type DialogHandler struct {
	dialogs DialogService
	logger  *zap.Logger
}

// NewDialogHandler builds a DialogHandler.
func NewDialogHandler(dialogs DialogService, logger *zap.Logger) *DialogHandler {
	return &DialogHandler{dialogs: dialogs, logger: logger}
}

// ListDialogs returns the caller's dialogs, optionally limited to one space.
func (h *DialogHandler) ListDialogs(c *gin.Context) {
	var spaceID *int64
	if raw := c.Query("space_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid space id"})
			return
		}
		spaceID = &parsed
	}

	dialogs, err := h.dialogs.ListDialogs(c.Request.Context(), userIDFromContext(c), spaceID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dialogs": dialogs})
}

// ReadMessages marks the dialog read up to max_id, or fully read when omitted.
func (h *DialogHandler) ReadMessages(c *gin.Context) {
	var req struct {
		Peer  models.Peer `json:"peer"`
		MaxID *int64      `json:"max_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := h.dialogs.ReadMessages(c.Request.Context(), userIDFromContext(c), req.Peer, req.MaxID, sessionIDFromContext(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// MarkAsUnread flags the dialog as unread until the next read.
func (h *DialogHandler) MarkAsUnread(c *gin.Context) {
	var req struct {
		Peer models.Peer `json:"peer"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	changed, err := h.dialogs.MarkAsUnread(c.Request.Context(), userIDFromContext(c), req.Peer, sessionIDFromContext(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_mark": true, "changed": changed})
}

// UpdateDialog changes pinned, archived or draft.
func (h *DialogHandler) UpdateDialog(c *gin.Context) {
	var req struct {
		Peer models.Peer `json:"peer"`
		models.DialogPatch
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.DialogPatch.Empty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}

	dialog, err := h.dialogs.UpdateDialog(c.Request.Context(), userIDFromContext(c), req.Peer, req.DialogPatch, sessionIDFromContext(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dialog": dialog})
}
