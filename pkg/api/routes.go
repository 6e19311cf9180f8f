package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter builds the gin engine with every console route
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(), SecurityHeaders())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api/v1")
	RegisterRoutes(apiGroup, h)
	return router
}

// RegisterRoutes registers the console routes on g
func RegisterRoutes(g *gin.RouterGroup, h *Handler) {
	devices := g.Group("/devices/:id")
	{
		devices.GET("/view", h.DeviceView)
		devices.POST("/operations/:op", h.ExecuteOperation)
		devices.GET("/executions", h.DeviceExecutions)
	}

	g.GET("/plugins/:id/operations", h.PluginOperations)

	confirmations := g.Group("/confirmations/:token")
	{
		confirmations.POST("", h.ConfirmOperation)
		confirmations.DELETE("", h.CancelOperation)
	}

	g.POST("/sessions", h.OpenSession)
	sessions := g.Group("/sessions/:sid")
	{
		sessions.DELETE("", h.CloseSession)
		sessions.PUT("/devices/:id", h.EnterDevice)
		sessions.DELETE("/devices/:id", h.LeaveDevice)
		sessions.GET("/devices/:id/availability", h.DeviceAvailability)
	}
}
