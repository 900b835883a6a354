package sse

import (
	"context"
	"strings"
	"time"

	"github.com/nimburion/pulse/pkg/health"
)

const defaultEngineCheckName = "stream-engine"

// engineChecker reports the engine's readiness: unhealthy once the engine is
// closed, otherwise session occupancy against the configured capacity.
type engineChecker struct {
	name     string
	engine   *Engine
	capacity *health.CapacityChecker
}

// NewEngineHealthChecker adapts an Engine to the health registry. The check
// degrades as active sessions approach MaxSessions and reports unhealthy
// when the engine has been closed.
func NewEngineHealthChecker(name string, engine *Engine) health.Checker {
	checkName := strings.TrimSpace(name)
	if checkName == "" {
		checkName = defaultEngineCheckName
	}

	checker := &engineChecker{name: checkName, engine: engine}
	if engine != nil {
		checker.capacity = health.NewCapacityChecker(checkName, engine.ActiveSessions, engine.Config().MaxSessions, 0)
	}
	return checker
}

func (c *engineChecker) Name() string {
	return c.name
}

func (c *engineChecker) Check(ctx context.Context) health.CheckResult {
	if c.engine == nil {
		return health.CheckResult{
			Name:      c.name,
			Status:    health.StatusUnhealthy,
			Message:   "engine is not configured",
			Timestamp: time.Now(),
		}
	}
	if c.engine.Closed() {
		return health.CheckResult{
			Name:      c.name,
			Status:    health.StatusUnhealthy,
			Message:   "engine is closed",
			Timestamp: time.Now(),
		}
	}
	return c.capacity.Check(ctx)
}
