package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"reminder-service/internal/logging"
	"reminder-service/internal/providers"
)

func NewRouter(basePath string, svc Service, hub *providers.Hub, logger *logging.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLoggingMiddleware(logger))

	h := NewHandler(svc, hub, logger)
	api := r.Group(basePath)
	{
		// Analysis
		api.POST("/issues/analyze", h.BatchAnalyze)
		api.POST("/issues/:key/analyze", h.AnalyzeIssue)
		api.GET("/issues/:key/history", h.GetHistory)
		api.GET("/attention", h.FindIssuesNeedingAttention)

		// Notifications
		api.POST("/issues/:key/notify", h.NotifyIssue)
		api.POST("/notifications/deliver", h.DeliverNotification)
		api.POST("/notifications/batch", h.DeliverBatch)
		api.GET("/notifications/:id", h.GetNotification)
		api.POST("/notifications/:id/response", h.RecordResponse)
		api.DELETE("/notifications/:id", h.CancelNotification)

		// Queues
		api.POST("/queues/process", h.ProcessAllQueues)
		api.POST("/queues/:user_id/process", h.ProcessQueue)
		api.GET("/queues/:user_id", h.GetQueue)

		// Engine configuration
		api.GET("/config", h.GetConfig)
		api.PATCH("/config", h.UpdateConfig)

		// Recipients
		api.GET("/users/:user_id/preferences", h.GetPreferences)
		api.PUT("/users/:user_id/preferences", h.SavePreferences)
		api.GET("/users/:user_id/contact-points", h.GetContactPoints)
		api.POST("/users/:user_id/contact-points", h.CreateContactPoint)
		api.DELETE("/contact-points/:id", h.DeleteContactPoint)
		api.GET("/users/:user_id/inbox", h.GetInbox)

		api.GET("/ws/:user_id", h.WebSocket)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}
