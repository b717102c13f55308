package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/vidioagent/backend/internal/common"
	"github.com/vidioagent/backend/internal/config"
	"github.com/vidioagent/backend/internal/convo"
	"github.com/vidioagent/backend/internal/httpapi/middleware"
	"github.com/vidioagent/backend/internal/provider"
	"github.com/vidioagent/backend/internal/storage"
	"github.com/vidioagent/backend/internal/store/rabbitmq"
)

// JobQueue is the slice of the queue publisher the handlers need.
type JobQueue interface {
	PublishJob(ctx context.Context, job rabbitmq.VideoJob) error
}

type Handler struct {
	DB       *gorm.DB
	Cfg      config.Config
	Repo     *convo.Repo
	Store    *storage.Store
	Notifier provider.Notifier
	Queue    JobQueue
}

func NewHandler(db *gorm.DB, cfg config.Config, store *storage.Store, notifier provider.Notifier, queue JobQueue) *Handler {
	return &Handler{
		DB:       db,
		Cfg:      cfg,
		Repo:     convo.NewRepo(db),
		Store:    store,
		Notifier: notifier,
		Queue:    queue,
	}
}

func (h *Handler) Health(c *gin.Context) {
	common.OK(c, gin.H{"status": "healthy"})
}

func businessIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.BusinessIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}
