package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-sync/internal/auth"
	"chat-sync/internal/observability"
)

// Keys AuthMiddleware sets on the gin context.
const (
	UserIDKey    = "userID"
	DeviceIDKey  = "deviceID"
	SessionIDKey = "sessionID"
)

// TokenValidator resolves a bearer token to its claims.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// AuthMiddleware rejects requests without a valid bearer token. On success the
// caller's user id is stored, plus the device from the token (or header) and
// the live session id used for echo suppression.
func AuthMiddleware(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			unauthorized(c, "missing bearer token")
			return
		}
		claims, err := tokens.Validate(token)
		if err != nil {
			unauthorized(c, err.Error())
			return
		}

		meta := observability.MetaFromRequest(c.Request)
		deviceID := claims.DeviceID
		if deviceID == "" {
			deviceID = meta.DeviceID
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(DeviceIDKey, deviceID)
		if meta.SessionID != "" {
			c.Set(SessionIDKey, meta.SessionID)
		}
		c.Next()
	}
}

func unauthorized(c *gin.Context, reason string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": reason})
}
