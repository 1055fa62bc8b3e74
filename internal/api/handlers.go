package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"classroom-platform/dbinit/internal/migrate"
	"classroom-platform/dbinit/internal/orchestrator"
)

// orchestratorService is the subset of *orchestrator.Orchestrator used by the
// HTTP handlers. Declaring it as an interface allows test doubles to be injected.
type orchestratorService interface {
	StartBootstrap(ctx context.Context) (<-chan struct{}, error)
	RunDeepHealth(ctx context.Context) map[string]orchestrator.ProbeResult
	Status(ctx context.Context) (*migrate.ValidationResult, error)
	IsReady() bool
	LastResult() *orchestrator.BootstrapResult
}

// Handler holds the dependencies shared across all HTTP handlers.
type Handler struct {
	orchestrator orchestratorService
	logger       *slog.Logger
}

// Bootstrap handles POST /api/v1/bootstrap.
// It returns 202 once a new bootstrap run has claimed the run guard, or 409 if
// one is already in progress. The run itself continues in the background.
func (h *Handler) Bootstrap(c *gin.Context) {
	ctx := context.WithoutCancel(c.Request.Context())
	if _, err := h.orchestrator.StartBootstrap(ctx); err != nil {
		if errors.Is(err, orchestrator.ErrBootstrapInProgress) {
			c.JSON(http.StatusConflict, gin.H{"status": orchestrator.StatusInProgress})
			return
		}
		h.logger.ErrorContext(ctx, "bootstrap could not start", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// Health handles GET /health.
// It always returns 200; this is the liveness probe.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"mode":   "shallow",
	})
}

// DeepHealth handles GET /health/deep.
// It probes every configured dependency and returns 200 only when every probe is OK.
func (h *Handler) DeepHealth(c *gin.Context) {
	probes := h.orchestrator.RunDeepHealth(c.Request.Context())

	allOK := true
	for _, p := range probes {
		if !p.OK {
			allOK = false
			break
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !allOK {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":       status,
		"dependencies": probes,
	})
}

// Ready handles GET /ready.
// It returns 200 only after a successful bootstrap; 503 otherwise. The last
// result, if any, is included either way.
func (h *Handler) Ready(c *gin.Context) {
	body := gin.H{"ready": h.orchestrator.IsReady()}
	if last := h.orchestrator.LastResult(); last != nil {
		body["bootstrap"] = last
	}

	if h.orchestrator.IsReady() {
		c.JSON(http.StatusOK, body)
		return
	}
	c.JSON(http.StatusServiceUnavailable, body)
}

// Migrations handles GET /api/v1/migrations with the ledger status.
func (h *Handler) Migrations(c *gin.Context) {
	status, err := h.orchestrator.Status(c.Request.Context())
	if err != nil {
		h.logger.WarnContext(c.Request.Context(), "migration status failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "error",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, status)
}
