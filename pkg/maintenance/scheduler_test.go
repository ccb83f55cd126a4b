package maintenance_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axonmem/axon/pkg/checkpoint"
	"github.com/axonmem/axon/pkg/driver/drivertest"
	"github.com/axonmem/axon/pkg/maintenance"
	"github.com/axonmem/axon/pkg/plasticity"
	"github.com/axonmem/axon/pkg/types"
)

func newScheduler(t *testing.T, cfg plasticity.Config, checkpoints *checkpoint.Store) (*maintenance.Scheduler, *drivertest.Store) {
	t.Helper()
	store := drivertest.New()
	engine, err := plasticity.NewEngine(store, nil, cfg, nil)
	require.NoError(t, err)
	scheduler, err := maintenance.NewScheduler(store, engine, checkpoints, nil)
	require.NoError(t, err)
	return scheduler, store
}

func seedConnection(t *testing.T, store *drivertest.Store, source, target string, strength float64) {
	t.Helper()
	ctx := context.Background()
	for _, id := range []string{source, target} {
		require.NoError(t, store.UpsertMemory(ctx, &types.Memory{
			ID: id, Content: id, Summary: id, Confidence: 1,
			Permeability: types.PermeabilityOpen,
		}))
	}
	require.NoError(t, store.SetConnection(ctx, &types.Connection{
		SourceID: source, TargetID: target, Strength: strength,
	}))
}

func TestRunCycleReportsCounts(t *testing.T) {
	ctx := context.Background()
	cfg := plasticity.DefaultConfig()
	cfg.PruneThreshold = 0.1
	scheduler, store := newScheduler(t, cfg, nil)
	seedConnection(t, store, "a", "b", 0.4)  // decays
	seedConnection(t, store, "c", "d", 0.8)  // above threshold
	seedConnection(t, store, "e", "f", 0.05) // pruned immediately

	report, err := scheduler.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Cycle)
	assert.Equal(t, 2, report.Examined)
	assert.Equal(t, 2, report.Decayed)
	assert.Equal(t, 1, report.Pruned)
	assert.False(t, report.RunAt.IsZero())
}

func TestRunAggressiveMatchesHalfLife(t *testing.T) {
	ctx := context.Background()
	cfg := plasticity.DefaultConfig()
	cfg.AutoPrune = false
	scheduler, store := newScheduler(t, cfg, nil)
	seedConnection(t, store, "a", "b", 0.4)

	// Default half-life is 10 cycles.
	_, err := scheduler.RunAggressive(ctx, 10)
	require.NoError(t, err)

	conn, err := store.GetConnection(ctx, "a", "b")
	require.NoError(t, err)
	assert.InDelta(t, 0.2, conn.Strength, 1e-9)
}

func TestCyclesAccumulateInCheckpoints(t *testing.T) {
	ctx := context.Background()
	checkpoints, err := checkpoint.Open(t.TempDir())
	require.NoError(t, err)
	defer checkpoints.Close()

	scheduler, store := newScheduler(t, plasticity.DefaultConfig(), checkpoints)
	seedConnection(t, store, "a", "b", 0.4)

	report, err := scheduler.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Cycle)

	report, err = scheduler.RunAggressive(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 6, report.Cycle)

	state, err := checkpoints.Load()
	require.NoError(t, err)
	assert.Equal(t, 6, state.TotalCycles)
	assert.False(t, state.LastRunAt.IsZero())
}

func TestStatisticsReadOnly(t *testing.T) {
	ctx := context.Background()
	cfg := plasticity.DefaultConfig()
	cfg.PruneThreshold = 0.05
	scheduler, store := newScheduler(t, cfg, nil)
	seedConnection(t, store, "a", "b", 0.05)
	seedConnection(t, store, "c", "d", 0.45)
	seedConnection(t, store, "e", "f", 0.95)

	stats, err := scheduler.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Count)
	assert.InDelta(t, 0.05, stats.MinStrength, 1e-9)
	assert.InDelta(t, 0.95, stats.MaxStrength, 1e-9)
	assert.InDelta(t, (0.05+0.45+0.95)/3, stats.MeanStrength, 1e-9)
	assert.Equal(t, 2, stats.BelowDecayThreshold)
	assert.Equal(t, 1, stats.PruningCandidates)
	assert.Equal(t, 1, stats.Buckets[0])
	assert.Equal(t, 1, stats.Buckets[4])
	assert.Equal(t, 1, stats.Buckets[9])

	// Nothing was mutated by the scan.
	conn, err := store.GetConnection(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, 0.05, conn.Strength)
}

func TestStatisticsEmptyGraph(t *testing.T) {
	scheduler, _ := newScheduler(t, plasticity.DefaultConfig(), nil)
	stats, err := scheduler.Statistics(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Count)
	assert.Zero(t, stats.MeanStrength)
}

// haltingStore refuses connection writes after a quota, simulating a backend
// that dies partway through a decay pass.
type haltingStore struct {
	*drivertest.Store
	allowWrites int
	writes      int
}

func (s *haltingStore) SetConnection(ctx context.Context, conn *types.Connection) error {
	s.writes++
	if s.writes > s.allowWrites {
		return errors.New("connection write refused")
	}
	return s.Store.SetConnection(ctx, conn)
}

func TestRunCycleReportsPartialFailure(t *testing.T) {
	ctx := context.Background()
	cfg := plasticity.DefaultConfig()
	cfg.AutoPrune = false
	inner := drivertest.New()
	store := &haltingStore{Store: inner}

	engine, err := plasticity.NewEngine(store, nil, cfg, nil)
	require.NoError(t, err)
	scheduler, err := maintenance.NewScheduler(store, engine, nil, nil)
	require.NoError(t, err)

	seedConnection(t, inner, "a", "b", 0.3)
	seedConnection(t, inner, "c", "d", 0.4)
	store.allowWrites = 1

	report, err := scheduler.RunCycle(ctx)
	require.Error(t, err)
	require.NotNil(t, report)
	assert.Equal(t, 2, report.Examined)
	assert.Equal(t, 1, report.Decayed)
	assert.Zero(t, report.Pruned)
}
