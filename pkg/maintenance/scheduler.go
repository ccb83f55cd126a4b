// Package maintenance runs periodic graph upkeep: decay and prune cycles,
// durable cycle tracking, and read-only connection statistics.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/sony/gobreaker"

	"github.com/axonmem/axon/pkg/checkpoint"
	"github.com/axonmem/axon/pkg/driver"
	"github.com/axonmem/axon/pkg/plasticity"
	"github.com/axonmem/axon/pkg/types"
)

// CycleReport describes one maintenance cycle. Examined and Decayed are
// reported separately so a caller can retry safely after a partial failure.
type CycleReport struct {
	Cycle    int       `json:"cycle"`
	RunAt    time.Time `json:"run_at"`
	Examined int       `json:"examined"`
	Decayed  int       `json:"decayed"`
	Pruned   int       `json:"pruned"`
}

// Statistics is a read-only aggregate over all connections. Buckets holds
// counts per 0.1 strength band, Buckets[0] covering [0.0,0.1).
type Statistics struct {
	Count               int     `json:"count"`
	MinStrength         float64 `json:"min_strength"`
	MaxStrength         float64 `json:"max_strength"`
	MeanStrength        float64 `json:"mean_strength"`
	BelowDecayThreshold int     `json:"below_decay_threshold"`
	PruningCandidates   int     `json:"pruning_candidates"`
	Buckets             [10]int `json:"buckets"`
}

// Scheduler coordinates maintenance cycles. Store scans go through a circuit
// breaker so a failing backend trips instead of being hammered on every
// cycle. The checkpoint store is optional; without it cycle numbering starts
// from zero each run.
type Scheduler struct {
	store       driver.GraphStore
	engine      *plasticity.Engine
	checkpoints *checkpoint.Store
	breaker     *gobreaker.CircuitBreaker
	logger      *slog.Logger
}

// NewScheduler wires a scheduler over the store and engine.
func NewScheduler(store driver.GraphStore, engine *plasticity.Engine, checkpoints *checkpoint.Store, logger *slog.Logger) (*Scheduler, error) {
	if store == nil {
		return nil, errors.New("maintenance: store is required")
	}
	if engine == nil {
		return nil, errors.New("maintenance: engine is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	st := gobreaker.Settings{
		Name:        "maintenance-scan",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("maintenance circuit breaker state change",
				"name", name, "from", from.String(), "to", to.String())
		},
	}

	return &Scheduler{
		store:       store,
		engine:      engine,
		checkpoints: checkpoints,
		breaker:     gobreaker.NewCircuitBreaker(st),
		logger:      logger,
	}, nil
}

// RunCycle executes one decay-then-prune pass and records it in the
// checkpoint store.
func (s *Scheduler) RunCycle(ctx context.Context) (*CycleReport, error) {
	return s.run(ctx, 1)
}

// RunAggressive decays as if n cycles elapsed, in a single pass.
func (s *Scheduler) RunAggressive(ctx context.Context, n int) (*CycleReport, error) {
	if n <= 0 {
		n = 1
	}
	return s.run(ctx, n)
}

func (s *Scheduler) run(ctx context.Context, cycles int) (*CycleReport, error) {
	state := &checkpoint.CycleState{}
	if s.checkpoints != nil {
		loaded, err := s.checkpoints.Load()
		if err != nil {
			return nil, err
		}
		state = loaded
	}

	result, err := s.breaker.Execute(func() (interface{}, error) {
		stats, err := s.engine.Decay(ctx, cycles)
		return stats, err
	})
	// Decay reports partial counts alongside its error; keep them so a
	// failed cycle still shows processed vs total for a safe retry.
	stats, _ := result.(plasticity.DecayStats)

	report := &CycleReport{
		Cycle:    state.TotalCycles + cycles,
		RunAt:    time.Now().UTC(),
		Examined: stats.Examined,
		Decayed:  stats.Decayed,
		Pruned:   stats.Pruned,
	}
	if err != nil {
		return report, fmt.Errorf("maintenance cycle %d: %w", report.Cycle, err)
	}

	if s.checkpoints != nil {
		state.TotalCycles += cycles
		state.LastRunAt = report.RunAt
		state.LastDecayed = report.Decayed
		state.LastPruned = report.Pruned
		if err := s.checkpoints.Save(state); err != nil {
			// The graph work already landed; surface the report so the
			// caller can resume from it.
			return report, fmt.Errorf("save cycle checkpoint: %w", err)
		}
	}

	s.logger.Info("maintenance cycle complete",
		"cycle", report.Cycle,
		"examined", report.Examined,
		"decayed", report.Decayed,
		"pruned", report.Pruned)
	return report, nil
}

// Statistics computes aggregates over every connection without mutating any
// state.
func (s *Scheduler) Statistics(ctx context.Context) (*Statistics, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.store.ListConnections(ctx, driver.ConnectionFilter{})
	})
	if err != nil {
		return nil, fmt.Errorf("scan connections: %w", err)
	}
	conns := result.([]*types.Connection)

	cfg := s.engine.Config()
	stats := &Statistics{}
	if len(conns) == 0 {
		return stats, nil
	}

	stats.Count = len(conns)
	stats.MinStrength = math.Inf(1)
	stats.MaxStrength = math.Inf(-1)
	sum := 0.0
	for _, conn := range conns {
		sum += conn.Strength
		if conn.Strength < stats.MinStrength {
			stats.MinStrength = conn.Strength
		}
		if conn.Strength > stats.MaxStrength {
			stats.MaxStrength = conn.Strength
		}
		if conn.Strength < cfg.DecayThreshold {
			stats.BelowDecayThreshold++
		}
		if conn.Strength <= cfg.PruneThreshold {
			stats.PruningCandidates++
		}
		bucket := int(conn.Strength * 10)
		if bucket > 9 {
			bucket = 9
		}
		if bucket < 0 {
			bucket = 0
		}
		stats.Buckets[bucket]++
	}
	stats.MeanStrength = sum / float64(len(conns))
	return stats, nil
}
