// README: HTTP router registration.
package http

import (
	"github.com/gin-gonic/gin"

	"relialimo/internal/http/handlers"
	"relialimo/internal/http/middleware"
)

const (
	roleDispatcher = "dispatcher"
	roleAdmin      = "admin"
)

func registerRoutes(r *gin.Engine, deps ServerDeps) {
	health := handlers.NewHealthHandler(deps.Health)
	r.GET("/healthz", health.Live)
	r.GET("/readyz", health.Ready)

	api := r.Group("/api")
	api.Use(middleware.Auth(deps.Verifier))
	api.Use(middleware.RequireRole(roleDispatcher, roleAdmin))

	reservations := handlers.NewReservationHandler(deps.Reservations, deps.Drivers, deps.Activity)
	api.POST("/reservations", reservations.Create)
	api.GET("/reservations", reservations.List)
	api.GET("/reservations/:id", reservations.Get)
	api.PUT("/reservations/:id/farmout/mode", reservations.SetMode)
	api.PUT("/reservations/:id/farmout/status", reservations.SetStatus)
	api.POST("/reservations/:id/farmout/accept", reservations.Accept)
	api.POST("/reservations/:id/farmout/clear", reservations.Clear)
	api.GET("/reservations/:id/farmout/activity", reservations.Activity)

	drivers := handlers.NewDriverHandler(deps.Drivers)
	api.GET("/drivers", drivers.List)
	api.PUT("/drivers/:id/status", drivers.SetStatus)

	farmout := handlers.NewFarmoutHandler(deps.Farmout)
	api.GET("/farmout/jobs", farmout.Jobs)
	api.GET("/farmout/settings", farmout.GetSettings)
	admin := api.Group("", middleware.RequireRole(roleAdmin))
	admin.PUT("/farmout/settings", farmout.UpdateSettings)
	admin.PUT("/farmout/settings/interval", farmout.EditInterval)
}
