package router

import (
	"github.com/oksasatya/identity-lifecycle-service/internal/container"
	handlers "github.com/oksasatya/identity-lifecycle-service/internal/interface/http"
	"github.com/oksasatya/identity-lifecycle-service/internal/router/modules"
)

func buildIdentityHandler() *handlers.IdentityHandler {
	return handlers.NewIdentityHandler(
		container.GetIdentityService(),
		container.GetLogger(),
		container.GetConfig().BcryptCost,
	)
}

// InitModules registers every feature module with the registry.
// Call once during startup, after the container is populated.
func InitModules(r *Registry) {
	r.Add(modules.NewIdentityModule(buildIdentityHandler(), container.GetRedis()))
	if container.GetConfig().DebugMetricsEnabled {
		r.Add(modules.NewDebugModule(container.GetRedis()))
	}
}
