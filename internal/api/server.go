package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Router wraps a configured Gin engine and exposes it as an http.Handler.
type Router struct {
	engine *gin.Engine
}

// NewRouter constructs a Router with the full middleware chain and all routes
// registered. Middleware order:
//  1. Recovery: panic -> 500
//  2. Tracing: trace context per request
//  3. RequestLogger: structured request/response logging
func NewRouter(o orchestratorService, serviceName string, logger *slog.Logger) *Router {
	engine := gin.New()

	engine.Use(Recovery(logger))
	engine.Use(Tracing(serviceName))
	engine.Use(RequestLogger(logger))

	h := &Handler{orchestrator: o, logger: logger}

	v1 := engine.Group("/api/v1")
	v1.POST("/bootstrap", h.Bootstrap)
	v1.GET("/migrations", h.Migrations)

	engine.GET("/health", h.Health)
	engine.GET("/health/deep", h.DeepHealth)
	engine.GET("/ready", h.Ready)

	return &Router{engine: engine}
}

// Handler returns the underlying http.Handler for use with net/http servers.
func (r *Router) Handler() http.Handler {
	return r.engine
}
