package plasticity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/axonmem/axon/pkg/driver"
	"github.com/axonmem/axon/pkg/types"
)

// FormationChecker gates creation of new connections. Implemented by the
// permeability formation guard.
type FormationChecker interface {
	CanFormConnection(ctx context.Context, memoryIDA, memoryIDB string) (bool, error)
}

// ConnectionTypeHebbian tags connections created by co-access learning.
const ConnectionTypeHebbian = "hebbian"

// DecayStats reports the outcome of one decay pass.
type DecayStats struct {
	Examined int
	Decayed  int
	Pruned   int
}

// Engine mutates connection weights through the store. It holds no graph
// state of its own; the Config may be swapped at any time and is read fresh
// on every operation.
type Engine struct {
	store  driver.GraphStore
	guard  FormationChecker
	logger *slog.Logger

	mu  sync.RWMutex
	cfg Config
}

// NewEngine validates the config and returns an engine bound to the store.
// The guard may be nil, in which case Hebbian creation is ungated.
func NewEngine(store driver.GraphStore, guard FormationChecker, cfg Config, logger *slog.Logger) (*Engine, error) {
	if store == nil {
		return nil, errors.New("plasticity: store is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, guard: guard, cfg: cfg, logger: logger}, nil
}

// Config returns the current configuration.
func (e *Engine) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// SetConfig swaps the configuration after validating it.
func (e *Engine) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
	return nil
}

// connectionEither resolves the stored edge for an unordered pair, trying
// both directions.
func (e *Engine) connectionEither(ctx context.Context, a, b string) (*types.Connection, error) {
	conn, err := e.store.GetConnection(ctx, a, b)
	if err == nil {
		return conn, nil
	}
	if !errors.Is(err, driver.ErrConnectionNotFound) {
		return nil, err
	}
	return e.store.GetConnection(ctx, b, a)
}

// Strengthen raises the weight of an existing connection between the pair.
// It never creates one; a missing connection is a NotFound error.
func (e *Engine) Strengthen(ctx context.Context, a, b string) (float64, error) {
	cfg := e.Config()
	return e.adjust(ctx, a, b, cfg.StrengthenAmount, true, cfg)
}

// Weaken lowers the weight of an existing connection between the pair.
func (e *Engine) Weaken(ctx context.Context, a, b string) (float64, error) {
	cfg := e.Config()
	return e.adjust(ctx, a, b, cfg.WeakenAmount, false, cfg)
}

func (e *Engine) adjust(ctx context.Context, a, b string, amount float64, increase bool, cfg Config) (float64, error) {
	conn, err := e.connectionEither(ctx, a, b)
	if err != nil {
		return 0, err
	}
	next := applyDelta(conn.Strength, amount, increase, cfg)
	if next == conn.Strength {
		return next, nil
	}
	conn.Strength = next
	if err := e.store.SetConnection(ctx, conn); err != nil {
		return 0, fmt.Errorf("update connection %s->%s: %w", conn.SourceID, conn.TargetID, err)
	}
	return next, nil
}

// ApplyHebbian strengthens connections between every unordered pair of the
// given co-accessed memories. Pairs without a connection get a new one at the
// implicit initial strength when HebbianCreatesConnections is set, gated by
// the formation guard when respectCompartments is true; the learning rate
// scales the strengthening amount but never gates creation. An existing edge
// in either direction counts as connected, so repeated calls never duplicate
// a pair. Every id must name an existing memory.
func (e *Engine) ApplyHebbian(ctx context.Context, memoryIDs []string, respectCompartments bool) (int, error) {
	cfg := e.Config()
	for _, id := range memoryIDs {
		if _, err := e.store.GetMemory(ctx, id); err != nil {
			return 0, err
		}
	}

	affected := 0
	for i := 0; i < len(memoryIDs); i++ {
		for j := i + 1; j < len(memoryIDs); j++ {
			a, b := memoryIDs[i], memoryIDs[j]
			if a == b {
				continue
			}

			conn, err := e.connectionEither(ctx, a, b)
			if err == nil {
				next := applyDelta(conn.Strength, cfg.HebbianAmount, true, cfg)
				if next == conn.Strength {
					continue
				}
				conn.Strength = next
				if err := e.store.SetConnection(ctx, conn); err != nil {
					return affected, fmt.Errorf("strengthen pair %s/%s: %w", a, b, err)
				}
				affected++
				continue
			}
			if !errors.Is(err, driver.ErrConnectionNotFound) {
				return affected, err
			}
			if !cfg.HebbianCreatesConnections {
				continue
			}

			if respectCompartments && e.guard != nil {
				allowed, err := e.guard.CanFormConnection(ctx, a, b)
				if err != nil {
					return affected, err
				}
				if !allowed {
					e.logger.Debug("hebbian pair blocked by compartments", "a", a, "b", b)
					continue
				}
			}

			strength, err := e.initialImplicitStrength(ctx, a, b, cfg)
			if err != nil {
				return affected, err
			}
			created := &types.Connection{
				SourceID:  a,
				TargetID:  b,
				Strength:  strength,
				Type:      ConnectionTypeHebbian,
				CreatedAt: time.Now().UTC(),
			}
			if err := e.store.SetConnection(ctx, created); err != nil {
				return affected, fmt.Errorf("create pair %s/%s: %w", a, b, err)
			}
			affected++
		}
	}
	return affected, nil
}

// initialImplicitStrength resolves contents for similarity boosting when
// enabled; otherwise the bare implicit base applies.
func (e *Engine) initialImplicitStrength(ctx context.Context, a, b string, cfg Config) (float64, error) {
	if !cfg.UseSemanticSimilarity || cfg.Similarity == nil {
		return cfg.InitialStrength(false, "", ""), nil
	}
	ma, err := e.store.GetMemory(ctx, a)
	if err != nil {
		return 0, err
	}
	mb, err := e.store.GetMemory(ctx, b)
	if err != nil {
		return 0, err
	}
	return cfg.InitialStrength(false, ma.Content, mb.Content), nil
}

// ApplyRetrieval applies access-driven weight changes for a set of memories
// retrieved together. With RetrievalStrengthens, every connection touching an
// accessed memory is strengthened. With RetrievalWeakensCompetitors,
// connections from each accessed memory to non-accessed neighbors within
// CompetitorDistance hops are weakened; nothing outside that neighborhood is
// touched.
func (e *Engine) ApplyRetrieval(ctx context.Context, accessedIDs []string) error {
	cfg := e.Config()
	if cfg.LearningRate == 0 || len(accessedIDs) == 0 {
		return nil
	}

	accessed := make(map[string]bool, len(accessedIDs))
	for _, id := range accessedIDs {
		accessed[id] = true
	}

	if cfg.RetrievalStrengthens {
		// Dedupe by ordered pair so a connection between two accessed
		// memories is strengthened once.
		seen := make(map[string]bool)
		for _, id := range accessedIDs {
			conns, err := e.store.ConnectionsTouching(ctx, id)
			if err != nil {
				return err
			}
			for _, conn := range conns {
				key := conn.SourceID + "\x00" + conn.TargetID
				if seen[key] {
					continue
				}
				seen[key] = true
				conn.Strength = applyDelta(conn.Strength, cfg.RetrievalAmount, true, cfg)
				if err := e.store.SetConnection(ctx, conn); err != nil {
					return fmt.Errorf("retrieval strengthen %s->%s: %w", conn.SourceID, conn.TargetID, err)
				}
			}
		}
	}

	if cfg.RetrievalWeakensCompetitors && cfg.CompetitorDistance > 0 {
		for _, id := range accessedIDs {
			neighbors, err := e.store.Neighborhood(ctx, id, cfg.CompetitorDistance)
			if err != nil {
				return err
			}
			for _, neighbor := range neighbors {
				if accessed[neighbor] {
					continue
				}
				conn, err := e.connectionEither(ctx, id, neighbor)
				if errors.Is(err, driver.ErrConnectionNotFound) {
					continue
				}
				if err != nil {
					return err
				}
				conn.Strength = applyDelta(conn.Strength, cfg.RetrievalAmount, false, cfg)
				if err := e.store.SetConnection(ctx, conn); err != nil {
					return fmt.Errorf("retrieval weaken %s->%s: %w", conn.SourceID, conn.TargetID, err)
				}
			}
		}
	}
	return nil
}

// Decay applies time-based weakening for the given number of elapsed cycles.
// Only connections below DecayThreshold are touched unless DecayAll is set.
// When AutoPrune is enabled, a prune pass follows.
func (e *Engine) Decay(ctx context.Context, cycles int) (DecayStats, error) {
	cfg := e.Config()
	stats := DecayStats{}
	if cycles <= 0 || cfg.LearningRate == 0 {
		return stats, nil
	}

	filter := driver.ConnectionFilter{}
	if !cfg.DecayAll {
		threshold := cfg.DecayThreshold
		filter.StrengthBelow = &threshold
	}
	conns, err := e.store.ListConnections(ctx, filter)
	if err != nil {
		return stats, err
	}

	stats.Examined = len(conns)
	for _, conn := range conns {
		next := decayedStrength(conn.Strength, cycles, cfg)
		if next == conn.Strength {
			continue
		}
		conn.Strength = next
		if err := e.store.SetConnection(ctx, conn); err != nil {
			return stats, fmt.Errorf("decay %s->%s: %w", conn.SourceID, conn.TargetID, err)
		}
		stats.Decayed++
	}

	if cfg.AutoPrune {
		pruned, err := e.Prune(ctx)
		if err != nil {
			return stats, err
		}
		stats.Pruned = pruned
	}
	return stats, nil
}

// Prune deletes every connection at or below PruneThreshold.
func (e *Engine) Prune(ctx context.Context) (int, error) {
	cfg := e.Config()
	threshold := cfg.PruneThreshold
	conns, err := e.store.ListConnections(ctx, driver.ConnectionFilter{StrengthAtMost: &threshold})
	if err != nil {
		return 0, err
	}
	pruned := 0
	for _, conn := range conns {
		if err := e.store.DeleteConnection(ctx, conn.SourceID, conn.TargetID); err != nil {
			return pruned, fmt.Errorf("prune %s->%s: %w", conn.SourceID, conn.TargetID, err)
		}
		pruned++
	}
	if pruned > 0 {
		e.logger.Info("pruned weak connections", "count", pruned, "threshold", threshold)
	}
	return pruned, nil
}
