package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"support-chat-service/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.ChatEventEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/event-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), telemetry.EventChatCreated, telemetry.ChatEventPayload{
			ChatID: "debug-" + requestIDFromContext(c),
			Detail: "event test",
		})
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
