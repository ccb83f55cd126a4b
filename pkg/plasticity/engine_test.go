package plasticity_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axonmem/axon/pkg/driver"
	"github.com/axonmem/axon/pkg/driver/drivertest"
	"github.com/axonmem/axon/pkg/plasticity"
	"github.com/axonmem/axon/pkg/types"
)

type allowAll struct{}

func (allowAll) CanFormConnection(context.Context, string, string) (bool, error) {
	return true, nil
}

type denyAll struct{}

func (denyAll) CanFormConnection(context.Context, string, string) (bool, error) {
	return false, nil
}

func newTestEngine(t *testing.T, cfg plasticity.Config, guard plasticity.FormationChecker) (*plasticity.Engine, *drivertest.Store) {
	t.Helper()
	store := drivertest.New()
	engine, err := plasticity.NewEngine(store, guard, cfg, nil)
	require.NoError(t, err)
	return engine, store
}

func addMemory(t *testing.T, store *drivertest.Store, id string) {
	t.Helper()
	err := store.UpsertMemory(context.Background(), &types.Memory{
		ID:           id,
		Content:      "content of " + id,
		Summary:      id,
		Confidence:   1,
		Permeability: types.PermeabilityOpen,
	})
	require.NoError(t, err)
}

func addConnection(t *testing.T, store *drivertest.Store, source, target string, strength float64) {
	t.Helper()
	err := store.SetConnection(context.Background(), &types.Connection{
		SourceID: source,
		TargetID: target,
		Strength: strength,
		Type:     "related",
	})
	require.NoError(t, err)
}

func TestStrengthenAndWeaken(t *testing.T) {
	ctx := context.Background()
	cfg := plasticity.DefaultConfig()
	engine, store := newTestEngine(t, cfg, allowAll{})
	addMemory(t, store, "a")
	addMemory(t, store, "b")
	addConnection(t, store, "a", "b", 0.5)

	next, err := engine.Strengthen(ctx, "a", "b")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, next, 1e-9)

	// Pair lookup works against the stored direction.
	next, err = engine.Weaken(ctx, "b", "a")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, next, 1e-9)
}

func TestStrengthenMissingConnection(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t, plasticity.DefaultConfig(), allowAll{})
	addMemory(t, store, "a")
	addMemory(t, store, "b")

	_, err := engine.Strengthen(ctx, "a", "b")
	assert.ErrorIs(t, err, driver.ErrConnectionNotFound)

	// Strengthen never creates the missing edge.
	conns, err := store.ListConnections(ctx, driver.ConnectionFilter{})
	require.NoError(t, err)
	assert.Empty(t, conns)
}

func TestStrengthenClampsAtMax(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t, plasticity.DefaultConfig(), allowAll{})
	addMemory(t, store, "a")
	addMemory(t, store, "b")
	addConnection(t, store, "a", "b", 0.97)

	next, err := engine.Strengthen(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, 1.0, next)

	next, err = engine.Strengthen(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, 1.0, next)
}

func TestApplyHebbianCreatesSingleEdgePerPair(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t, plasticity.DefaultConfig(), allowAll{})
	for _, id := range []string{"a", "b", "c"} {
		addMemory(t, store, id)
	}

	affected, err := engine.ApplyHebbian(ctx, []string{"a", "b", "c"}, true)
	require.NoError(t, err)
	assert.Equal(t, 3, affected)

	conns, err := store.ListConnections(ctx, driver.ConnectionFilter{})
	require.NoError(t, err)
	require.Len(t, conns, 3)
	for _, conn := range conns {
		assert.InDelta(t, 0.3, conn.Strength, 1e-9)
		assert.Equal(t, plasticity.ConnectionTypeHebbian, conn.Type)
	}

	// Repeating strengthens the same edges instead of duplicating them.
	_, err = engine.ApplyHebbian(ctx, []string{"a", "b", "c"}, true)
	require.NoError(t, err)
	conns, err = store.ListConnections(ctx, driver.ConnectionFilter{})
	require.NoError(t, err)
	assert.Len(t, conns, 3)
	for _, conn := range conns {
		assert.Greater(t, conn.Strength, 0.3)
	}
}

func TestApplyHebbianNoReverseDuplicate(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t, plasticity.DefaultConfig(), allowAll{})
	addMemory(t, store, "a")
	addMemory(t, store, "b")
	addConnection(t, store, "b", "a", 0.4)

	_, err := engine.ApplyHebbian(ctx, []string{"a", "b"}, false)
	require.NoError(t, err)

	conns, err := store.ListConnections(ctx, driver.ConnectionFilter{})
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, "b", conns[0].SourceID)
	assert.Greater(t, conns[0].Strength, 0.4)
}

func TestApplyHebbianRespectsGuard(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t, plasticity.DefaultConfig(), denyAll{})
	addMemory(t, store, "a")
	addMemory(t, store, "b")

	affected, err := engine.ApplyHebbian(ctx, []string{"a", "b"}, true)
	require.NoError(t, err)
	assert.Zero(t, affected)

	// Bypassing the guard creates the edge.
	affected, err = engine.ApplyHebbian(ctx, []string{"a", "b"}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, affected)
}

func TestApplyHebbianDisabledCreation(t *testing.T) {
	ctx := context.Background()
	cfg := plasticity.DefaultConfig()
	cfg.HebbianCreatesConnections = false
	engine, store := newTestEngine(t, cfg, allowAll{})
	addMemory(t, store, "a")
	addMemory(t, store, "b")

	affected, err := engine.ApplyHebbian(ctx, []string{"a", "b"}, false)
	require.NoError(t, err)
	assert.Zero(t, affected)

	conns, err := store.ListConnections(ctx, driver.ConnectionFilter{})
	require.NoError(t, err)
	assert.Empty(t, conns)
}

func TestApplyHebbianUnknownMemory(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t, plasticity.DefaultConfig(), allowAll{})
	addMemory(t, store, "a")

	affected, err := engine.ApplyHebbian(ctx, []string{"a", "ghost"}, true)
	assert.ErrorIs(t, err, driver.ErrMemoryNotFound)
	assert.Zero(t, affected)

	conns, err := store.ListConnections(ctx, driver.ConnectionFilter{})
	require.NoError(t, err)
	assert.Empty(t, conns)
}

func TestApplyHebbianCreatesUnderZeroLearningRate(t *testing.T) {
	ctx := context.Background()
	cfg := plasticity.DefaultConfig()
	cfg.LearningRate = 0
	engine, store := newTestEngine(t, cfg, allowAll{})
	addMemory(t, store, "a")
	addMemory(t, store, "b")

	// The learning rate scales strengthening but never gates creation.
	affected, err := engine.ApplyHebbian(ctx, []string{"a", "b"}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, affected)

	conn, err := store.GetConnection(ctx, "a", "b")
	require.NoError(t, err)
	assert.InDelta(t, 0.3, conn.Strength, 1e-9)
	assert.Equal(t, plasticity.ConnectionTypeHebbian, conn.Type)

	// The existing edge stays put under a zero rate.
	affected, err = engine.ApplyHebbian(ctx, []string{"a", "b"}, false)
	require.NoError(t, err)
	assert.Zero(t, affected)

	conn, err = store.GetConnection(ctx, "a", "b")
	require.NoError(t, err)
	assert.InDelta(t, 0.3, conn.Strength, 1e-9)
}

func TestApplyRetrievalStrengthens(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t, plasticity.DefaultConfig(), allowAll{})
	for _, id := range []string{"a", "b", "c", "d"} {
		addMemory(t, store, id)
	}
	addConnection(t, store, "a", "b", 0.5)
	addConnection(t, store, "c", "a", 0.5)
	addConnection(t, store, "c", "d", 0.5)

	require.NoError(t, engine.ApplyRetrieval(ctx, []string{"a"}))

	ab, err := store.GetConnection(ctx, "a", "b")
	require.NoError(t, err)
	assert.InDelta(t, 0.52, ab.Strength, 1e-9)

	ca, err := store.GetConnection(ctx, "c", "a")
	require.NoError(t, err)
	assert.InDelta(t, 0.52, ca.Strength, 1e-9)

	// Unrelated connections stay put.
	cd, err := store.GetConnection(ctx, "c", "d")
	require.NoError(t, err)
	assert.Equal(t, 0.5, cd.Strength)
}

func TestApplyRetrievalWeakensCompetitors(t *testing.T) {
	ctx := context.Background()
	cfg := plasticity.DefaultConfig()
	cfg.RetrievalStrengthens = false
	cfg.RetrievalWeakensCompetitors = true
	cfg.CompetitorDistance = 1
	engine, store := newTestEngine(t, cfg, allowAll{})
	for _, id := range []string{"a", "b", "c"} {
		addMemory(t, store, id)
	}
	addConnection(t, store, "a", "b", 0.5)
	addConnection(t, store, "b", "c", 0.5)

	require.NoError(t, engine.ApplyRetrieval(ctx, []string{"a"}))

	// b is a direct competitor of the accessed memory.
	ab, err := store.GetConnection(ctx, "a", "b")
	require.NoError(t, err)
	assert.InDelta(t, 0.48, ab.Strength, 1e-9)

	// c is beyond the hop radius; its connection is untouched.
	bc, err := store.GetConnection(ctx, "b", "c")
	require.NoError(t, err)
	assert.Equal(t, 0.5, bc.Strength)
}

func TestDecayOnlyBelowThreshold(t *testing.T) {
	ctx := context.Background()
	cfg := plasticity.DefaultConfig()
	cfg.AutoPrune = false
	engine, store := newTestEngine(t, cfg, allowAll{})
	for _, id := range []string{"a", "b", "c"} {
		addMemory(t, store, id)
	}
	addConnection(t, store, "a", "b", 0.4)
	addConnection(t, store, "a", "c", 0.8)

	stats, err := engine.Decay(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Examined)
	assert.Equal(t, 1, stats.Decayed)

	ab, err := store.GetConnection(ctx, "a", "b")
	require.NoError(t, err)
	assert.InDelta(t, 0.2, ab.Strength, 1e-9)

	ac, err := store.GetConnection(ctx, "a", "c")
	require.NoError(t, err)
	assert.Equal(t, 0.8, ac.Strength)
}

func TestDecayAll(t *testing.T) {
	ctx := context.Background()
	cfg := plasticity.DefaultConfig()
	cfg.DecayAll = true
	cfg.AutoPrune = false
	engine, store := newTestEngine(t, cfg, allowAll{})
	addMemory(t, store, "a")
	addMemory(t, store, "b")
	addConnection(t, store, "a", "b", 0.8)

	stats, err := engine.Decay(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Decayed)

	ab, err := store.GetConnection(ctx, "a", "b")
	require.NoError(t, err)
	assert.InDelta(t, 0.4, ab.Strength, 1e-9)
}

func TestDecayAutoPrunes(t *testing.T) {
	ctx := context.Background()
	cfg := plasticity.DefaultConfig()
	cfg.PruneThreshold = 0.1
	engine, store := newTestEngine(t, cfg, allowAll{})
	addMemory(t, store, "a")
	addMemory(t, store, "b")
	addConnection(t, store, "a", "b", 0.11)

	// Ten cycles halve 0.11 to ~0.055, under the prune threshold.
	stats, err := engine.Decay(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pruned)

	_, err = store.GetConnection(ctx, "a", "b")
	assert.ErrorIs(t, err, driver.ErrConnectionNotFound)
}

func TestPruneExactness(t *testing.T) {
	ctx := context.Background()
	cfg := plasticity.DefaultConfig()
	cfg.PruneThreshold = 0.05
	engine, store := newTestEngine(t, cfg, allowAll{})
	for _, id := range []string{"a", "b", "c", "d"} {
		addMemory(t, store, id)
	}
	addConnection(t, store, "a", "b", 0.05) // at threshold: pruned
	addConnection(t, store, "a", "c", 0.051)
	addConnection(t, store, "c", "d", 0.9)

	pruned, err := engine.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	conns, err := store.ListConnections(ctx, driver.ConnectionFilter{})
	require.NoError(t, err)
	assert.Len(t, conns, 2)
}

func TestNoPlasticityFreezesWeights(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t, plasticity.NoPlasticityConfig(), allowAll{})
	addMemory(t, store, "a")
	addMemory(t, store, "b")
	addConnection(t, store, "a", "b", 0.5)

	next, err := engine.Strengthen(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, 0.5, next)

	// The preset disables Hebbian creation outright, so co-access neither
	// moves the existing edge nor adds new ones.
	addMemory(t, store, "c")
	affected, err := engine.ApplyHebbian(ctx, []string{"a", "b", "c"}, false)
	require.NoError(t, err)
	assert.Zero(t, affected)

	conns, err := store.ListConnections(ctx, driver.ConnectionFilter{})
	require.NoError(t, err)
	assert.Len(t, conns, 1)

	stats, err := engine.Decay(ctx, 100)
	require.NoError(t, err)
	assert.Zero(t, stats.Decayed)
}

func TestSetConfigRejectsInvalid(t *testing.T) {
	engine, _ := newTestEngine(t, plasticity.DefaultConfig(), allowAll{})

	bad := plasticity.DefaultConfig()
	bad.CurveSteepness = 2
	assert.ErrorIs(t, engine.SetConfig(bad), plasticity.ErrInvalidConfig)

	good := plasticity.HighDecayConfig()
	require.NoError(t, engine.SetConfig(good))
	assert.True(t, engine.Config().DecayAll)
}
