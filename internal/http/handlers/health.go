package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/recycleright-backend/internal/http/response"
	"github.com/yungbote/recycleright-backend/internal/platform/apierr"
)

// Readiness reports whether a dependency can serve traffic.
type Readiness interface {
	Ready(ctx context.Context) error
}

type HealthHandler struct {
	checks map[string]Readiness
}

func NewHealthHandler(checks map[string]Readiness) *HealthHandler {
	return &HealthHandler{checks: checks}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// GET /readyz
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	status := gin.H{}
	for name, chk := range h.checks {
		if chk == nil {
			continue
		}
		if err := chk.Ready(ctx); err != nil {
			response.RespondAPIError(c, apierr.New(http.StatusServiceUnavailable, "not_ready", err))
			return
		}
		status[name] = "ok"
	}
	response.RespondOK(c, gin.H{"status": "ready", "checks": status})
}
