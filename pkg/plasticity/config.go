package plasticity

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/axonmem/axon/pkg/types"
)

// ErrInvalidConfig is returned when a Config fails validation.
var ErrInvalidConfig = errors.New("invalid plasticity config")

// SimilarityFn scores semantic similarity between two content strings on a
// 0-1 scale.
type SimilarityFn func(a, b string) (float64, error)

// Config controls all plasticity behavior. Each operation context carries its
// own base amount; the effective amount is base * LearningRate * curve factor.
// Treat values as immutable once handed to an engine and swap the whole
// Config to reconfigure.
type Config struct {
	// LearningRate is the global multiplier for all operations. Zero
	// disables plasticity entirely.
	LearningRate float64 `yaml:"learning_rate"`

	StrengthenAmount float64 `yaml:"strengthen_amount"`
	WeakenAmount     float64 `yaml:"weaken_amount"`
	HebbianAmount    float64 `yaml:"hebbian_amount"`
	RetrievalAmount  float64 `yaml:"retrieval_amount"`
	DecayAmount      float64 `yaml:"decay_amount"`

	// Starting strength for new connections. Explicit applies to
	// user-created links, implicit to Hebbian and other emergent ones.
	InitialStrengthExplicit float64 `yaml:"initial_strength_explicit"`
	InitialStrengthImplicit float64 `yaml:"initial_strength_implicit"`

	// UseSemanticSimilarity boosts initial strength by scoring the two
	// contents with Similarity. The boost can only raise the base value.
	UseSemanticSimilarity bool         `yaml:"use_semantic_similarity"`
	Similarity            SimilarityFn `yaml:"-"`

	MaxStrength float64 `yaml:"max_strength"`
	MinStrength float64 `yaml:"min_strength"`

	// Curve shapes how current strength affects the rate of change.
	// CurveSteepness lives in (0,1); smaller values resist harder near the
	// bound being approached.
	Curve          types.Curve `yaml:"curve"`
	CurveSteepness float64     `yaml:"curve_steepness"`

	// DecayHalfLife is a fraction of 100 cycles: 0.1 means strength halves
	// every 10 cycles. Only connections below DecayThreshold decay unless
	// DecayAll is set.
	DecayCurve     types.Curve `yaml:"decay_curve"`
	DecayHalfLife  float64     `yaml:"decay_half_life"`
	DecayThreshold float64     `yaml:"decay_threshold"`
	DecayAll       bool        `yaml:"decay_all"`

	PruneThreshold float64 `yaml:"prune_threshold"`
	AutoPrune      bool    `yaml:"auto_prune"`

	RetrievalStrengthens        bool `yaml:"retrieval_strengthens"`
	RetrievalWeakensCompetitors bool `yaml:"retrieval_weakens_competitors"`
	// CompetitorDistance is the hop radius around an accessed memory within
	// which non-accessed neighbors are weakened.
	CompetitorDistance int `yaml:"competitor_distance"`

	HebbianCreatesConnections bool `yaml:"hebbian_creates_connections"`
}

// DefaultConfig returns balanced settings.
func DefaultConfig() Config {
	return Config{
		LearningRate:                1.0,
		StrengthenAmount:            0.1,
		WeakenAmount:                0.1,
		HebbianAmount:               0.05,
		RetrievalAmount:             0.02,
		DecayAmount:                 0.05,
		InitialStrengthExplicit:     0.5,
		InitialStrengthImplicit:     0.3,
		MaxStrength:                 1.0,
		MinStrength:                 0.0,
		Curve:                       types.CurveLinear,
		CurveSteepness:              0.5,
		DecayCurve:                  types.CurveExponential,
		DecayHalfLife:               0.1,
		DecayThreshold:              0.5,
		PruneThreshold:              0.01,
		AutoPrune:                   true,
		RetrievalStrengthens:        true,
		CompetitorDistance:          1,
		HebbianCreatesConnections:   true,
	}
}

// AggressiveLearningConfig adapts quickly.
func AggressiveLearningConfig() Config {
	cfg := DefaultConfig()
	cfg.StrengthenAmount = 0.15
	cfg.HebbianAmount = 0.1
	cfg.RetrievalAmount = 0.05
	cfg.DecayThreshold = 0.3
	return cfg
}

// ConservativeLearningConfig changes slowly and prunes reluctantly.
func ConservativeLearningConfig() Config {
	cfg := DefaultConfig()
	cfg.LearningRate = 0.5
	cfg.Curve = types.CurveExponential
	cfg.DecayThreshold = 0.7
	cfg.PruneThreshold = 0.005
	return cfg
}

// NoPlasticityConfig disables all automatic weight changes.
func NoPlasticityConfig() Config {
	cfg := DefaultConfig()
	cfg.LearningRate = 0.0
	cfg.RetrievalStrengthens = false
	cfg.RetrievalWeakensCompetitors = false
	cfg.HebbianCreatesConnections = false
	cfg.AutoPrune = false
	return cfg
}

// HighDecayConfig forgets aggressively under memory pressure.
func HighDecayConfig() Config {
	cfg := DefaultConfig()
	cfg.DecayAmount = 0.1
	cfg.DecayThreshold = 0.7
	cfg.DecayAll = true
	cfg.PruneThreshold = 0.05
	cfg.DecayHalfLife = 0.05
	return cfg
}

// PresetConfig resolves a preset by name.
func PresetConfig(name string) (Config, error) {
	switch name {
	case "", "default":
		return DefaultConfig(), nil
	case "aggressive_learning":
		return AggressiveLearningConfig(), nil
	case "conservative_learning":
		return ConservativeLearningConfig(), nil
	case "no_plasticity":
		return NoPlasticityConfig(), nil
	case "high_decay":
		return HighDecayConfig(), nil
	default:
		return Config{}, fmt.Errorf("%w: unknown preset %q", ErrInvalidConfig, name)
	}
}

// Validate rejects out-of-range settings. Called at construction sites so
// engines never have to re-check at operation time.
func (c Config) Validate() error {
	if c.LearningRate < 0 {
		return fmt.Errorf("%w: learning_rate must be >= 0, got %v", ErrInvalidConfig, c.LearningRate)
	}
	amounts := map[string]float64{
		"strengthen_amount": c.StrengthenAmount,
		"weaken_amount":     c.WeakenAmount,
		"hebbian_amount":    c.HebbianAmount,
		"retrieval_amount":  c.RetrievalAmount,
		"decay_amount":      c.DecayAmount,
	}
	for name, v := range amounts {
		if v < 0 {
			return fmt.Errorf("%w: %s must be >= 0, got %v", ErrInvalidConfig, name, v)
		}
	}
	if c.MinStrength >= c.MaxStrength {
		return fmt.Errorf("%w: min_strength %v must be below max_strength %v", ErrInvalidConfig, c.MinStrength, c.MaxStrength)
	}
	if c.CurveSteepness <= 0 || c.CurveSteepness >= 1 {
		return fmt.Errorf("%w: curve_steepness must be in (0,1), got %v", ErrInvalidConfig, c.CurveSteepness)
	}
	if c.DecayHalfLife <= 0 {
		return fmt.Errorf("%w: decay_half_life must be > 0, got %v", ErrInvalidConfig, c.DecayHalfLife)
	}
	for name, v := range map[string]float64{
		"initial_strength_explicit": c.InitialStrengthExplicit,
		"initial_strength_implicit": c.InitialStrengthImplicit,
		"decay_threshold":           c.DecayThreshold,
		"prune_threshold":           c.PruneThreshold,
	} {
		if v < c.MinStrength || v > c.MaxStrength {
			return fmt.Errorf("%w: %s %v outside strength bounds [%v,%v]", ErrInvalidConfig, name, v, c.MinStrength, c.MaxStrength)
		}
	}
	if c.CompetitorDistance < 0 {
		return fmt.Errorf("%w: competitor_distance must be >= 0, got %d", ErrInvalidConfig, c.CompetitorDistance)
	}
	if _, err := types.ParseCurve(string(c.Curve)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := types.ParseCurve(string(c.DecayCurve)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// InitialStrength computes the starting strength for a new connection.
// When semantic similarity is enabled and both contents are available, the
// similarity score scales the headroom between the base and MaxStrength, so
// the result is never below the base.
func (c Config) InitialStrength(explicit bool, content1, content2 string) float64 {
	base := c.InitialStrengthImplicit
	if explicit {
		base = c.InitialStrengthExplicit
	}
	if c.UseSemanticSimilarity && c.Similarity != nil && content1 != "" && content2 != "" {
		similarity, err := c.Similarity(content1, content2)
		if err == nil {
			similarity = types.Clamp(similarity, 0, 1)
			base += (c.MaxStrength - base) * similarity
		}
	}
	return types.Clamp(base, c.MinStrength, c.MaxStrength)
}

// WithSimilarity returns a copy of the config with the similarity function
// attached and boosting enabled.
func (c Config) WithSimilarity(fn SimilarityFn) Config {
	c.Similarity = fn
	c.UseSemanticSimilarity = fn != nil
	return c
}

// Save writes the config as YAML. The similarity function is not serialized
// and must be reattached after Load.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal plasticity config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write plasticity config: %w", err)
	}
	return nil
}

// LoadConfig reads a YAML config and validates it.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read plasticity config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse plasticity config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
