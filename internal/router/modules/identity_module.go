package modules

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	handlers "github.com/oksasatya/identity-lifecycle-service/internal/interface/http"
	"github.com/oksasatya/identity-lifecycle-service/internal/interface/middleware"
)

// IdentityModule wires the identity lifecycle routes under /api/identities.
type IdentityModule struct {
	Handler *handlers.IdentityHandler
	Redis   *redis.Client
}

func NewIdentityModule(h *handlers.IdentityHandler, rdb *redis.Client) *IdentityModule {
	return &IdentityModule{Handler: h, Redis: rdb}
}

func (m *IdentityModule) Register(rg *gin.RouterGroup) {
	signupLimiter := middleware.RateLimit(m.Redis, 20, time.Minute, middleware.KeyByIPAndPath(), middleware.AllowPrivateIP())
	socialLimiter := middleware.RateLimit(m.Redis, 120, time.Minute, middleware.KeyByIPAndPath(), middleware.AllowPrivateIP())

	ids := rg.Group("/identities")
	ids.Use(middleware.RateLimit(m.Redis, 600, time.Minute, middleware.KeyByIP(), middleware.AllowPrivateIP()))
	{
		ids.POST("", signupLimiter, m.Handler.Create)
		ids.POST("/social", socialLimiter, m.Handler.UpsertSocial)
		ids.GET("", m.Handler.Search)
		ids.GET("/by-provider", m.Handler.GetByProvider)
		ids.GET("/availability", m.Handler.Availability)
		ids.GET("/stats", m.Handler.Stats)
		ids.GET("/:id", m.Handler.Get)
		ids.PATCH("/:id", m.Handler.UpdateProfile)
		ids.PUT("/:id/status", m.Handler.Transition)
		ids.DELETE("/:id", m.Handler.Delete)
	}
}
