package axon

import (
	"context"

	"github.com/axonmem/axon/pkg/maintenance"
)

// RunMaintenanceCycle performs one decay-then-prune pass.
func (c *Client) RunMaintenanceCycle(ctx context.Context) (*maintenance.CycleReport, error) {
	return c.scheduler.RunCycle(ctx)
}

// RunAggressiveMaintenance decays as if n cycles elapsed, in one pass.
func (c *Client) RunAggressiveMaintenance(ctx context.Context, n int) (*maintenance.CycleReport, error) {
	return c.scheduler.RunAggressive(ctx, n)
}

// PruneConnections deletes every connection at or below the prune threshold,
// regardless of the auto-prune setting.
func (c *Client) PruneConnections(ctx context.Context) (int, error) {
	return c.engine.Prune(ctx)
}

// ConnectionStatistics computes read-only aggregates over all connections.
func (c *Client) ConnectionStatistics(ctx context.Context) (*maintenance.Statistics, error) {
	return c.scheduler.Statistics(ctx)
}
