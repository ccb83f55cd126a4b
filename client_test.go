package axon_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axonmem/axon"
	"github.com/axonmem/axon/pkg/driver/drivertest"
	"github.com/axonmem/axon/pkg/plasticity"
	"github.com/axonmem/axon/pkg/types"
)

func newTestClient(t *testing.T, cfg *axon.Config) *axon.Client {
	t.Helper()
	client, err := axon.NewClient(drivertest.New(), nil, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestCreateAndGetMemory(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, nil)

	m, err := client.CreateMemory(ctx, "go interfaces are satisfied implicitly", "go interfaces", 0.9, nil)
	require.NoError(t, err)
	require.NotEmpty(t, m.ID)

	got, err := client.GetMemory(ctx, m.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, m.Content, got.Content)
	assert.Equal(t, int64(1), got.AccessCount)

	// Suppressed reads leave access tracking alone.
	got, err = client.GetMemory(ctx, m.ID, &axon.GetMemoryOptions{SuppressEffects: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.AccessCount)

	_, err = client.GetMemory(ctx, "ghost", nil)
	assert.ErrorIs(t, err, axon.ErrMemoryNotFound)
}

func TestCreateMemoryValidation(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, nil)

	_, err := client.CreateMemory(ctx, "", "summary", 0.5, nil)
	assert.ErrorIs(t, err, axon.ErrInvalidArgument)

	_, err = client.CreateMemory(ctx, "content", "summary", 2, nil)
	assert.ErrorIs(t, err, axon.ErrInvalidArgument)
}

func TestActiveCompartment(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, nil)

	comp, err := client.CreateCompartment(ctx, "work", "work context")
	require.NoError(t, err)
	require.NoError(t, client.SetActiveCompartment(ctx, comp.ID))

	m, err := client.CreateMemory(ctx, "standup is at ten", "standup time", 1, nil)
	require.NoError(t, err)

	comps, err := client.CompartmentsOf(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, comps, 1)
	assert.Equal(t, comp.ID, comps[0].ID)

	// Opting out keeps the memory global.
	m2, err := client.CreateMemory(ctx, "the sun is a star", "sun", 1,
		&axon.CreateMemoryOptions{SkipActiveCompartment: true})
	require.NoError(t, err)
	comps, err = client.CompartmentsOf(ctx, m2.ID)
	require.NoError(t, err)
	assert.Empty(t, comps)

	require.NoError(t, client.SetActiveCompartment(ctx, ""))
	assert.Empty(t, client.ActiveCompartment())

	err = client.SetActiveCompartment(ctx, "ghost")
	assert.ErrorIs(t, err, axon.ErrCompartmentNotFound)
}

func TestCreateCompartmentNameUnique(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, nil)

	first, err := client.CreateCompartment(ctx, "projects", "")
	require.NoError(t, err)
	second, err := client.CreateCompartment(ctx, "projects", "different description")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestDeleteCompartment(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, nil)

	comp, err := client.CreateCompartment(ctx, "scratch", "")
	require.NoError(t, err)
	m, err := client.CreateMemory(ctx, "temp note", "note", 1,
		&axon.CreateMemoryOptions{CompartmentID: comp.ID})
	require.NoError(t, err)

	err = client.DeleteCompartment(ctx, comp.ID, false)
	assert.ErrorIs(t, err, axon.ErrCompartmentNotEmpty)

	require.NoError(t, client.DeleteCompartment(ctx, comp.ID, true))

	// The member survives, detached.
	comps, err := client.CompartmentsOf(ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, comps)
}

func TestLinkMemories(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, nil)

	a, err := client.CreateMemory(ctx, "coffee wakes me up", "coffee", 1, nil)
	require.NoError(t, err)
	b, err := client.CreateMemory(ctx, "mornings are slow", "mornings", 1, nil)
	require.NoError(t, err)

	linked, err := client.LinkMemories(ctx, a.ID, b.ID, nil)
	require.NoError(t, err)
	assert.True(t, linked)

	conn, err := client.GetConnection(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.5, conn.Strength)
	assert.Equal(t, axon.ConnectionTypeRelated, conn.Type)

	// Relinking the reverse direction updates the same edge.
	strength := 0.8
	linked, err = client.LinkMemories(ctx, b.ID, a.ID, &axon.LinkMemoriesOptions{Strength: &strength})
	require.NoError(t, err)
	assert.True(t, linked)

	conn, err = client.GetConnection(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.8, conn.Strength)
	assert.Equal(t, a.ID, conn.SourceID)
}

func TestLinkMemoriesKeepsOverride(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, nil)

	a, err := client.CreateMemory(ctx, "the safe code is 4411", "safe code", 1, nil)
	require.NoError(t, err)
	b, err := client.CreateMemory(ctx, "the safe is in the study", "safe location", 1, nil)
	require.NoError(t, err)

	_, err = client.LinkMemories(ctx, a.ID, b.ID, &axon.LinkMemoriesOptions{
		Permeability: types.PermeabilityClosed,
	})
	require.NoError(t, err)

	// Relinking without a permeability option keeps the stored override.
	strength := 0.9
	_, err = client.LinkMemories(ctx, a.ID, b.ID, &axon.LinkMemoriesOptions{Strength: &strength})
	require.NoError(t, err)

	conn, err := client.GetConnection(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.9, conn.Strength)
	assert.Equal(t, types.PermeabilityClosed, conn.Permeability)

	// An explicit option replaces it.
	_, err = client.LinkMemories(ctx, a.ID, b.ID, &axon.LinkMemoriesOptions{
		Permeability: types.PermeabilityOpen,
	})
	require.NoError(t, err)

	conn, err = client.GetConnection(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PermeabilityOpen, conn.Permeability)
}

func TestLinkMemoriesValidation(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, nil)

	a, err := client.CreateMemory(ctx, "one", "one", 1, nil)
	require.NoError(t, err)
	b, err := client.CreateMemory(ctx, "two", "two", 1, nil)
	require.NoError(t, err)

	_, err = client.LinkMemories(ctx, a.ID, a.ID, nil)
	assert.ErrorIs(t, err, axon.ErrInvalidArgument)

	bad := 1.5
	_, err = client.LinkMemories(ctx, a.ID, b.ID, &axon.LinkMemoriesOptions{Strength: &bad})
	assert.ErrorIs(t, err, axon.ErrInvalidArgument)

	_, err = client.LinkMemories(ctx, a.ID, "ghost", nil)
	assert.ErrorIs(t, err, axon.ErrMemoryNotFound)
}

func TestLinkMemoriesCompartmentCheck(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, nil)

	comp, err := client.CreateCompartment(ctx, "sealed", "")
	require.NoError(t, err)
	comp.AllowExternalConnections = false
	require.NoError(t, client.UpdateCompartment(ctx, comp))

	inside, err := client.CreateMemory(ctx, "internal detail", "internal", 1,
		&axon.CreateMemoryOptions{CompartmentID: comp.ID})
	require.NoError(t, err)
	outside, err := client.CreateMemory(ctx, "public detail", "public", 1, nil)
	require.NoError(t, err)

	// Guarded link is refused without an error.
	linked, err := client.LinkMemories(ctx, inside.ID, outside.ID,
		&axon.LinkMemoriesOptions{CheckCompartments: true})
	require.NoError(t, err)
	assert.False(t, linked)

	// The administrative path bypasses the guard.
	linked, err = client.LinkMemories(ctx, inside.ID, outside.ID, nil)
	require.NoError(t, err)
	assert.True(t, linked)
}

func TestRetrievalStrengthensOnRead(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, nil)

	a, err := client.CreateMemory(ctx, "paris is in france", "paris", 1, nil)
	require.NoError(t, err)
	b, err := client.CreateMemory(ctx, "france is in europe", "france", 1, nil)
	require.NoError(t, err)
	_, err = client.LinkMemories(ctx, a.ID, b.ID, nil)
	require.NoError(t, err)

	_, err = client.GetMemory(ctx, a.ID, nil)
	require.NoError(t, err)

	conn, err := client.GetConnection(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.52, conn.Strength, 1e-9)

	// Suppressed reads leave weights alone.
	_, err = client.GetMemory(ctx, a.ID, &axon.GetMemoryOptions{SuppressEffects: true})
	require.NoError(t, err)
	conn, err = client.GetConnection(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.52, conn.Strength, 1e-9)
}

func TestStrongestConnectionsFiltered(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, nil)

	hub, err := client.CreateMemory(ctx, "hub", "hub", 1, nil)
	require.NoError(t, err)
	visible, err := client.CreateMemory(ctx, "visible", "visible", 1, nil)
	require.NoError(t, err)
	hidden, err := client.CreateMemory(ctx, "hidden", "hidden", 1, nil)
	require.NoError(t, err)

	s1, s2 := 0.9, 0.7
	_, err = client.LinkMemories(ctx, hub.ID, visible.ID, &axon.LinkMemoriesOptions{Strength: &s1})
	require.NoError(t, err)
	_, err = client.LinkMemories(ctx, hub.ID, hidden.ID, &axon.LinkMemoriesOptions{Strength: &s2})
	require.NoError(t, err)

	// Hide one endpoint: osmotic inward never exposes data.
	require.NoError(t, client.SetMemoryPermeability(ctx, []string{hidden.ID}, types.PermeabilityOsmoticInward))

	conns, err := client.StrongestConnections(ctx, hub.ID, 10)
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, visible.ID, conns[0].Other(hub.ID))
	assert.Equal(t, 0.9, conns[0].Strength)
}

func TestHebbianThroughFacade(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, nil)

	a, err := client.CreateMemory(ctx, "alpha", "alpha", 1, nil)
	require.NoError(t, err)
	b, err := client.CreateMemory(ctx, "beta", "beta", 1, nil)
	require.NoError(t, err)

	affected, err := client.ApplyHebbianLearning(ctx, []string{a.ID, b.ID}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, affected)

	conn, err := client.GetConnection(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, conn.Strength, 1e-9)
}

func TestMaintenanceThroughFacade(t *testing.T) {
	ctx := context.Background()
	cfg := plasticity.DefaultConfig()
	cfg.DecayAll = true
	client := newTestClient(t, &axon.Config{Plasticity: cfg})

	a, err := client.CreateMemory(ctx, "fading", "fading", 1, nil)
	require.NoError(t, err)
	b, err := client.CreateMemory(ctx, "memory", "memory", 1, nil)
	require.NoError(t, err)
	s := 0.8
	_, err = client.LinkMemories(ctx, a.ID, b.ID, &axon.LinkMemoriesOptions{Strength: &s})
	require.NoError(t, err)

	report, err := client.RunAggressiveMaintenance(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Decayed)

	conn, err := client.GetConnection(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, conn.Strength, 1e-9)

	stats, err := client.ConnectionStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Count)
}

func TestSwapPlasticityConfig(t *testing.T) {
	client := newTestClient(t, nil)

	require.NoError(t, client.SetPlasticityConfig(plasticity.HighDecayConfig()))
	assert.True(t, client.PlasticityConfig().DecayAll)

	bad := plasticity.DefaultConfig()
	bad.CurveSteepness = 0
	assert.ErrorIs(t, client.SetPlasticityConfig(bad), axon.ErrInvalidConfig)
}
