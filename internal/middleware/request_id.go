package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chat-sync/internal/observability"
)

// RequestID makes sure every request carries an X-Request-Id and echoes it back.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := observability.MetaFromRequest(c.Request).RequestID
		if requestID == "" {
			requestID = uuid.NewString()
			c.Request.Header.Set(observability.HeaderRequestID, requestID)
		}
		c.Set("request_id", requestID)
		c.Header(observability.HeaderRequestID, requestID)
		c.Next()
	}
}
