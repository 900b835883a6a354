package scheduler

import (
	"context"
	"fmt"
	"strings"

	"github.com/nimburion/pulse/pkg/health"
)

const defaultHealthCheckName = "scheduler"

// NewHealthChecker adapts a Scheduler to the health registry. The check
// reports unhealthy when the scheduler loop is not running.
func NewHealthChecker(name string, s *Scheduler) health.Checker {
	checkName := strings.TrimSpace(name)
	if checkName == "" {
		checkName = defaultHealthCheckName
	}

	return health.NewCustomChecker(checkName, func(ctx context.Context) (health.Status, string, error) {
		if s == nil {
			return health.StatusUnhealthy, "scheduler is not configured", nil
		}
		if !s.Running() {
			return health.StatusUnhealthy, "scheduler is not running", nil
		}
		return health.StatusHealthy, fmt.Sprintf("%d active subscriptions", s.Subscriptions()), nil
	})
}
