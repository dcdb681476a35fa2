package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-sync/internal/models"
)

// UpdatesService serves catch-up reads of the caller's bucket.
type UpdatesService interface {
	GetUpdates(ctx context.Context, userID, afterSeq int64, limit int) (models.UpdatesPage, error)
	GetUpdatesState(ctx context.Context, userID int64) (int64, error)
}

// UpdatesHandler serves catch-up endpoints.
type UpdatesHandler struct {
	updates UpdatesService
	logger  *zap.Logger
}

// NewUpdatesHandler builds an UpdatesHandler.
func NewUpdatesHandler(updates UpdatesService, logger *zap.Logger) *UpdatesHandler {
	return &UpdatesHandler{updates: updates, logger: logger}
}

// GetUpdates returns bucket entries after the "after" cursor.
func (h *UpdatesHandler) GetUpdates(c *gin.Context) {
	after, err := strconv.ParseInt(c.DefaultQuery("after", "0"), 10, 64)
	if err != nil || after < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid after"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	page, err := h.updates.GetUpdates(c.Request.Context(), userIDFromContext(c), after, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetUpdatesState returns the caller's current cursor.
func (h *UpdatesHandler) GetUpdatesState(c *gin.Context) {
	seq, err := h.updates.GetUpdatesState(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cursor": seq})
}
