package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SessionCounter reports how many sessions this node holds.
type SessionCounter interface {
	Count() int
}

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, sessions SessionCounter, nodeID string, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"node_id":    nodeID,
			"sessions":   sessions.Count(),
			"request_id": requestIDFromContext(c),
		})
	})
}
