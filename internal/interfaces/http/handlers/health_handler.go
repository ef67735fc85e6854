package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
)

// HealthCheck probes one backend.  A nil error means the backend is usable.
type HealthCheck func(ctx context.Context) error

// NamedCheck pairs a backend name with its probe so readiness output stays
// ordered and self-describing.
type NamedCheck struct {
	Name  string
	Check HealthCheck
}

// HealthHandler serves liveness and readiness.  Liveness only proves the
// process is serving; readiness probes every registered backend.
type HealthHandler struct {
	checks       []NamedCheck
	checkTimeout time.Duration
	logger       logging.Logger
}

// NewHealthHandler constructs a HealthHandler over the given backend probes.
func NewHealthHandler(checks []NamedCheck, log logging.Logger) *HealthHandler {
	return &HealthHandler{
		checks:       checks,
		checkTimeout: 5 * time.Second,
		logger:       log.Named("health_handler"),
	}
}

// Liveness always answers 200 while the process can serve requests.
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness probes each backend and answers 503 when any probe fails.
// Individual probe results are reported so a degraded deployment names the
// backend that took it down.
func (h *HealthHandler) Readiness(c *gin.Context) {
	type checkResult struct {
		Status string `json:"status"`
		Error  string `json:"error,omitempty"`
	}

	results := make(map[string]checkResult, len(h.checks))
	healthy := true

	for _, nc := range h.checks {
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.checkTimeout)
		err := nc.Check(ctx)
		cancel()

		if err != nil {
			healthy = false
			results[nc.Name] = checkResult{Status: "down", Error: err.Error()}
			h.logger.Warn("readiness check failed",
				logging.String("backend", nc.Name), logging.Err(err))
			continue
		}
		results[nc.Name] = checkResult{Status: "up"}
	}

	status := http.StatusOK
	overall := "ready"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	c.JSON(status, gin.H{"status": overall, "checks": results})
}
