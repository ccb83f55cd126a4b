package plasticity

import (
	"math"

	"github.com/axonmem/axon/pkg/types"
)

// curveFactor scales a base amount by how close the current strength is to
// the bound it is moving toward.
//
// EXPONENTIAL resists near the target bound: with remaining headroom
// h = (max-current)/(max-min), the factor is h^(1/steepness) when
// strengthening, and symmetrically l^(1/steepness) with
// l = (current-min)/(max-min) when weakening. LOGARITHMIC is the inverse
// shape, where changes get easier near the bounds.
func curveFactor(curve types.Curve, steepness, current, min, max float64, increase bool) float64 {
	if curve == types.CurveLinear {
		return 1.0
	}

	span := max - min
	if span <= 0 {
		return 1.0
	}
	exponent := 1.0 / steepness

	var room float64
	if increase {
		room = (max - current) / span
	} else {
		room = (current - min) / span
	}
	room = types.Clamp(room, 0, 1)

	switch curve {
	case types.CurveExponential:
		return math.Pow(room, exponent)
	case types.CurveLogarithmic:
		return 1.0 - math.Pow(1.0-room, exponent)
	default:
		return 1.0
	}
}

// applyDelta computes the new strength for one weight change. The effective
// amount is base * learning rate * curve factor; the result is clamped to the
// configured bounds.
func applyDelta(current, baseAmount float64, increase bool, cfg Config) float64 {
	factor := curveFactor(cfg.Curve, cfg.CurveSteepness, current, cfg.MinStrength, cfg.MaxStrength, increase)
	raw := baseAmount * cfg.LearningRate * factor
	next := current - raw
	if increase {
		next = current + raw
	}
	return types.Clamp(next, cfg.MinStrength, cfg.MaxStrength)
}

// decayedStrength computes the post-decay strength after elapsed cycles.
// EXPONENTIAL halves the strength every DecayHalfLife*100 cycles. LINEAR
// subtracts a fixed amount per cycle and LOGARITHMIC grows sublinearly with
// elapsed time. Decay never raises strength.
func decayedStrength(current float64, cycles int, cfg Config) float64 {
	if cycles <= 0 {
		return current
	}

	var next float64
	switch cfg.DecayCurve {
	case types.CurveLinear:
		next = current - cfg.DecayAmount*cfg.LearningRate*float64(cycles)
	case types.CurveLogarithmic:
		next = current - cfg.DecayAmount*cfg.LearningRate*math.Log1p(float64(cycles))
	default:
		halfLifeCycles := cfg.DecayHalfLife * 100
		if halfLifeCycles < 1 {
			halfLifeCycles = 1
		}
		next = current * math.Pow(0.5, float64(cycles)/halfLifeCycles)
	}

	if next > current {
		next = current
	}
	return types.Clamp(next, cfg.MinStrength, cfg.MaxStrength)
}
