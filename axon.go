package axon

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/axonmem/axon/pkg/checkpoint"
	"github.com/axonmem/axon/pkg/driver"
	"github.com/axonmem/axon/pkg/maintenance"
	"github.com/axonmem/axon/pkg/permeability"
	"github.com/axonmem/axon/pkg/plasticity"
	"github.com/axonmem/axon/pkg/similarity"
	"github.com/axonmem/axon/pkg/types"
)

// Sentinel errors re-exported for callers that only import the root package.
var (
	ErrMemoryNotFound      = driver.ErrMemoryNotFound
	ErrCompartmentNotFound = driver.ErrCompartmentNotFound
	ErrConnectionNotFound  = driver.ErrConnectionNotFound
	ErrCompartmentNotEmpty = driver.ErrCompartmentNotEmpty
	ErrInvalidArgument     = types.ErrInvalidArgument
	ErrInvalidConfig       = plasticity.ErrInvalidConfig
)

// Config holds client-level settings.
type Config struct {
	// Plasticity is the initial plasticity configuration. Zero value means
	// defaults.
	Plasticity plasticity.Config

	// CheckpointDir enables durable maintenance-cycle tracking when set.
	CheckpointDir string
}

// Client is the main entry point. It owns the graph store, the two engines
// and the maintenance scheduler.
type Client struct {
	store       driver.GraphStore
	evaluator   *permeability.Evaluator
	guard       *permeability.FormationGuard
	engine      *plasticity.Engine
	scheduler   *maintenance.Scheduler
	checkpoints *checkpoint.Store
	scorer      similarity.Scorer
	logger      *slog.Logger

	mu                  sync.RWMutex
	activeCompartmentID string
}

// NewClient wires a client over the given store. The scorer is optional;
// when present it backs semantic initial-strength boosting and is closed
// with the client.
func NewClient(store driver.GraphStore, scorer similarity.Scorer, config *Config, logger *slog.Logger) (*Client, error) {
	if store == nil {
		return nil, errors.New("axon: store is required")
	}
	if config == nil {
		config = &Config{Plasticity: plasticity.DefaultConfig()}
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg := config.Plasticity
	// A zero-valued config means the caller did not set one.
	if cfg.MaxStrength == 0 && cfg.MinStrength == 0 && cfg.LearningRate == 0 {
		cfg = plasticity.DefaultConfig()
	}
	if scorer != nil {
		cfg = cfg.WithSimilarity(scorer.Score)
	}

	evaluator, err := permeability.NewEvaluator(store, logger)
	if err != nil {
		return nil, err
	}
	guard, err := permeability.NewFormationGuard(store)
	if err != nil {
		return nil, err
	}
	engine, err := plasticity.NewEngine(store, guard, cfg, logger)
	if err != nil {
		return nil, err
	}

	var checkpoints *checkpoint.Store
	if config.CheckpointDir != "" {
		checkpoints, err = checkpoint.Open(config.CheckpointDir)
		if err != nil {
			return nil, err
		}
	}

	scheduler, err := maintenance.NewScheduler(store, engine, checkpoints, logger)
	if err != nil {
		if checkpoints != nil {
			checkpoints.Close()
		}
		return nil, err
	}

	return &Client{
		store:       store,
		evaluator:   evaluator,
		guard:       guard,
		engine:      engine,
		scheduler:   scheduler,
		checkpoints: checkpoints,
		scorer:      scorer,
		logger:      logger,
	}, nil
}

// Store exposes the underlying graph store.
func (c *Client) Store() driver.GraphStore {
	return c.store
}

// Close releases the store, scorer and checkpoint database.
func (c *Client) Close() error {
	var errs []error
	if c.checkpoints != nil {
		if err := c.checkpoints.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.scorer != nil {
		if err := c.scorer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// PlasticityConfig returns the active plasticity configuration.
func (c *Client) PlasticityConfig() plasticity.Config {
	return c.engine.Config()
}

// SetPlasticityConfig swaps the plasticity configuration, keeping the
// similarity scorer attached when one is configured.
func (c *Client) SetPlasticityConfig(cfg plasticity.Config) error {
	if c.scorer != nil {
		cfg = cfg.WithSimilarity(c.scorer.Score)
	}
	return c.engine.SetConfig(cfg)
}

// SavePlasticityConfig writes the active configuration to a YAML file. The
// similarity function is not serialized.
func (c *Client) SavePlasticityConfig(path string) error {
	return c.engine.Config().Save(path)
}

// LoadPlasticityConfig reads a YAML configuration and activates it,
// reattaching the scorer if one is configured.
func (c *Client) LoadPlasticityConfig(path string) error {
	cfg, err := plasticity.LoadConfig(path)
	if err != nil {
		return err
	}
	return c.SetPlasticityConfig(cfg)
}
