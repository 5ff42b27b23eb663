// handlers_health.go - Health and readiness reporting
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/cardscan-intake/gateway/internal/batch"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	manager *batch.Manager
	version string
	backend string
	started time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(m *batch.Manager, version, backendURL string) HealthHandler {
	return &HealthHandlerImpl{
		manager: m,
		version: version,
		backend: backendURL,
		started: time.Now(),
	}
}

// HandleHealth reports gateway health together with a sketch of the intake
// state, so a dashboard can tell an idle gateway from one mid-batch.
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	res := map[string]interface{}{
		"status":        "ok",
		"version":       h.version,
		"backend":       h.backend,
		"uptimeSeconds": int(time.Since(h.started).Seconds()),
		"activeBatch":   false,
	}
	if snap := h.manager.Snapshot(); snap != nil {
		res["activeBatch"] = true
		res["restored"] = snap.Restored
		res["files"] = len(snap.Files)
		res["records"] = len(h.manager.Records())
	}
	return c.JSON(http.StatusOK, res)
}
