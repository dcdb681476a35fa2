package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDContextKey = "request_id"
	userIDContextKey    = "userID"
	sessionIDContextKey = "sessionID"
)

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-Id")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) int64 {
	return c.GetInt64(userIDContextKey)
}

// sessionIDFromContext is the caller's websocket session, skipped on fanout.
func sessionIDFromContext(c *gin.Context) string {
	return c.GetString(sessionIDContextKey)
}
