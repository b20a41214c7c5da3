// README: API gateway; builds the gin engine with middleware and delegates to module services.
package http

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"relialimo/internal/http/handlers"
	"relialimo/internal/http/middleware"
	"relialimo/internal/infra"
	"relialimo/internal/modules/driver"
	"relialimo/internal/modules/farmout"
	"relialimo/internal/modules/reservation"
)

type ServerDeps struct {
	Reservations *reservation.Service
	Drivers      *driver.Service
	Farmout      *farmout.Service
	Activity     handlers.ActivityLister
	// Verifier may be nil, which leaves the API unauthenticated.
	Verifier    infra.TokenVerifier
	Health      map[string]handlers.Pinger
	Log         zerolog.Logger
	CORSAllowed []string
}

type Server struct {
	deps ServerDeps
}

func NewServer(deps ServerDeps) *Server {
	return &Server{deps: deps}
}

func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(s.deps.Log))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(s.deps.Log))
	r.Use(cors.New(corsConfig(s.deps.CORSAllowed)))

	registerRoutes(r, s.deps)
	return r
}

func corsConfig(allowed []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowed) == 0 || (len(allowed) == 1 && allowed[0] == "*") {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	} else {
		cfg.AllowOrigins = allowed
	}
	return cfg
}
