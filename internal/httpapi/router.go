package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/vidioagent/backend/internal/common"
	"github.com/vidioagent/backend/internal/config"
	"github.com/vidioagent/backend/internal/httpapi/handlers"
	"github.com/vidioagent/backend/internal/httpapi/middleware"
	"github.com/vidioagent/backend/internal/provider"
	"github.com/vidioagent/backend/internal/storage"
)

func NewRouter(db *gorm.DB, cfg config.Config, store *storage.Store, notifier provider.Notifier, queue handlers.JobQueue) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	h := handlers.NewHandler(db, cfg, store, notifier, queue)

	r.GET("/health", h.Health)

	// WhatsApp intake
	r.POST("/webhook", h.WhatsAppWebhook)

	// Tenant registration and public profile
	r.POST("/register", h.RegisterBusiness)
	r.POST("/login", h.Login)
	r.GET("/businesses", h.ListBusinesses)
	r.GET("/businesses/:id", h.GetBusiness)

	// Stored artifacts must be fetchable by the render provider.
	r.Static("/storage", store.Root())

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.GET("/me", h.Me)
	authGroup.PATCH("/me/active", h.SetActive)
	authGroup.GET("/conversations", h.ListConversations)

	return r
}
