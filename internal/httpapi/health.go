package httpapi

import (
	"context"
	"net/http"
	"sort"
	"time"

	"conference-orchestrator/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Check reports whether one dependency is usable.
type Check func(ctx context.Context) error

type Health struct {
	Checks  map[string]Check
	Timeout time.Duration
}

func (h Health) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready runs every check; any failure makes the instance unready.
func (h Health) Ready(c *gin.Context) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	names := make([]string, 0, len(h.Checks))
	for name := range h.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	var failing []string
	for _, name := range names {
		if err := h.Checks[name](ctx); err != nil {
			logger.FromGin(c).Warn("readiness check failed", "check", name, "err", err)
			failing = append(failing, name)
		}
	}
	if len(failing) > 0 {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "failing": failing})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
