// pkg/resource/health.go
package resource

import (
	"context"
	"fmt"
)

// HealthCheck reports unhealthy when memory is over the limit or the
// tracked goroutines pass 80% of theirs.
type HealthCheck struct {
	manager *Manager
}

// NewHealthCheck creates a health check for the manager
func NewHealthCheck(manager *Manager) *HealthCheck {
	return &HealthCheck{manager: manager}
}

// Name returns the name of this health check.
func (r *HealthCheck) Name() string {
	return "resource"
}

// Check verifies that resource usage is within acceptable limits.
func (r *HealthCheck) Check(ctx context.Context) error {
	stats := r.manager.Stats()

	if stats.MemoryUsageMB > stats.MaxMemoryMB {
		return fmt.Errorf("memory usage %dMB exceeds limit %dMB", stats.MemoryUsageMB, stats.MaxMemoryMB)
	}

	threshold := stats.MaxGoroutines * 8 / 10
	if stats.GoroutineCount > threshold {
		return fmt.Errorf("goroutine count %d exceeds 80%% threshold (%d/%d)",
			stats.GoroutineCount, threshold, stats.MaxGoroutines)
	}
	return nil
}
