package health

import (
	"context"
	"time"
)

// Checkable is implemented by components that can report their own health
type Checkable interface {
	HealthCheck(ctx context.Context) error
}

// AdapterChecker adapts any Checkable component into a Checker with a timeout
type AdapterChecker struct {
	name    string
	adapter Checkable
	timeout time.Duration
}

// NewAdapterChecker creates a health checker for a Checkable component.
// A zero timeout defaults to 5 seconds.
func NewAdapterChecker(name string, adapter Checkable, timeout time.Duration) *AdapterChecker {
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	return &AdapterChecker{
		name:    name,
		adapter: adapter,
		timeout: timeout,
	}
}

// Check performs the health check on the adapter
func (c *AdapterChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.adapter.HealthCheck(checkCtx)
	duration := time.Since(start)

	if err != nil {
		return CheckResult{
			Name:      c.name,
			Status:    StatusUnhealthy,
			Error:     err.Error(),
			Timestamp: time.Now(),
			Duration:  duration,
		}
	}

	return CheckResult{
		Name:      c.name,
		Status:    StatusHealthy,
		Message:   "OK",
		Timestamp: time.Now(),
		Duration:  duration,
	}
}

// Name returns the name of the health check
func (c *AdapterChecker) Name() string {
	return c.name
}

// PingChecker always reports healthy; useful for liveness checks
type PingChecker struct {
	name string
}

// NewPingChecker creates a new ping checker
func NewPingChecker(name string) *PingChecker {
	return &PingChecker{
		name: name,
	}
}

// Check always returns healthy status
func (c *PingChecker) Check(ctx context.Context) CheckResult {
	return CheckResult{
		Name:      c.name,
		Status:    StatusHealthy,
		Message:   "Service is alive",
		Timestamp: time.Now(),
		Duration:  0,
	}
}

// Name returns the name of the health check
func (c *PingChecker) Name() string {
	return c.name
}

// CustomChecker builds a health checker from a custom function returning
// (status, message, error)
type CustomChecker struct {
	name      string
	checkFunc func(ctx context.Context) (Status, string, error)
}

// NewCustomChecker creates a new custom health checker
func NewCustomChecker(name string, checkFunc func(ctx context.Context) (Status, string, error)) *CustomChecker {
	return &CustomChecker{
		name:      name,
		checkFunc: checkFunc,
	}
}

// Check executes the custom check function
func (c *CustomChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	status, message, err := c.checkFunc(ctx)

	result := CheckResult{
		Name:      c.name,
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
		Duration:  time.Since(start),
	}

	if err != nil {
		result.Error = err.Error()
	}

	return result
}

// Name returns the name of the health check
func (c *CustomChecker) Name() string {
	return c.name
}

// CapacityChecker reports how close a counted resource is to its limit.
// It degrades at the given ratio and is used for stream session capacity.
type CapacityChecker struct {
	name          string
	current       func() int
	limit         int
	degradedRatio float64
}

// NewCapacityChecker creates a checker that reads the current occupancy from
// the supplied function. A degradedRatio of 0 defaults to 0.9. A limit of 0
// disables the check (always healthy).
func NewCapacityChecker(name string, current func() int, limit int, degradedRatio float64) *CapacityChecker {
	if degradedRatio <= 0 || degradedRatio > 1 {
		degradedRatio = 0.9
	}

	return &CapacityChecker{
		name:          name,
		current:       current,
		limit:         limit,
		degradedRatio: degradedRatio,
	}
}

// Check reports degraded when occupancy crosses the configured ratio and
// unhealthy when the limit is exhausted.
func (c *CapacityChecker) Check(ctx context.Context) CheckResult {
	occupancy := c.current()
	result := CheckResult{
		Name:      c.name,
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Metadata: map[string]any{
			"current": occupancy,
			"limit":   c.limit,
		},
	}

	if c.limit <= 0 {
		result.Message = "no capacity limit configured"
		return result
	}

	switch {
	case occupancy >= c.limit:
		result.Status = StatusUnhealthy
		result.Message = "capacity exhausted"
	case float64(occupancy) >= float64(c.limit)*c.degradedRatio:
		result.Status = StatusDegraded
		result.Message = "approaching capacity"
	default:
		result.Message = "capacity available"
	}

	return result
}

// Name returns the name of the health check
func (c *CapacityChecker) Name() string {
	return c.name
}
