package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Permeability controls data flow direction through memory, compartment, and
// connection boundaries. Direction is from the perspective of the owner:
// "inward" means the owner may pull data in from outside, "outward" means the
// owner may expose data to the outside.
type Permeability string

const (
	// PermeabilityOpen allows bidirectional data flow.
	PermeabilityOpen Permeability = "open"
	// PermeabilityClosed blocks data flow in both directions.
	PermeabilityClosed Permeability = "closed"
	// PermeabilityOsmoticInward allows pulling data in but never leaks out.
	PermeabilityOsmoticInward Permeability = "osmotic_inward"
	// PermeabilityOsmoticOutward allows sharing data out but never pulls in.
	PermeabilityOsmoticOutward Permeability = "osmotic_outward"
)

// AllowsInward reports whether data may flow toward the owner.
func (p Permeability) AllowsInward() bool {
	return p == PermeabilityOpen || p == PermeabilityOsmoticInward
}

// AllowsOutward reports whether data may flow away from the owner.
func (p Permeability) AllowsOutward() bool {
	return p == PermeabilityOpen || p == PermeabilityOsmoticOutward
}

// Valid reports whether p is one of the defined permeability values.
func (p Permeability) Valid() bool {
	switch p {
	case PermeabilityOpen, PermeabilityClosed, PermeabilityOsmoticInward, PermeabilityOsmoticOutward:
		return true
	}
	return false
}

// ParsePermeability converts a stored string into a Permeability value.
// Unknown or empty values default to open, matching the storage default.
func ParsePermeability(s string) Permeability {
	switch Permeability(strings.ToLower(strings.TrimSpace(s))) {
	case PermeabilityClosed:
		return PermeabilityClosed
	case PermeabilityOsmoticInward:
		return PermeabilityOsmoticInward
	case PermeabilityOsmoticOutward:
		return PermeabilityOsmoticOutward
	default:
		return PermeabilityOpen
	}
}

// Curve selects the response shape for plasticity operations. The same
// enumeration serves both the strengthening/weakening curve and the decay
// curve.
type Curve string

const (
	// CurveLinear applies a constant rate regardless of current strength.
	CurveLinear Curve = "linear"
	// CurveExponential grows resistance as strength approaches the bound
	// being moved toward (half-life based when used as a decay curve).
	CurveExponential Curve = "exponential"
	// CurveLogarithmic is the inverse shape: changes come easier near the
	// bounds.
	CurveLogarithmic Curve = "logarithmic"
)

// ParseCurve converts a stored string into a Curve value.
func ParseCurve(s string) (Curve, error) {
	switch Curve(strings.ToLower(strings.TrimSpace(s))) {
	case CurveLinear:
		return CurveLinear, nil
	case CurveExponential:
		return CurveExponential, nil
	case CurveLogarithmic:
		return CurveLogarithmic, nil
	default:
		return "", fmt.Errorf("unknown curve %q", s)
	}
}

// Memory is a stored unit of information, the node type the engines operate
// over. Compartment membership is kept as an explicit many-to-many index in
// the store rather than back-references on the struct.
type Memory struct {
	ID           string       `json:"id"`
	Content      string       `json:"content"`
	Summary      string       `json:"summary"`
	Confidence   float64      `json:"confidence"`
	Permeability Permeability `json:"permeability"`
	CreatedAt    time.Time    `json:"created_at"`
	LastAccessed time.Time    `json:"last_accessed"`
	AccessCount  int64        `json:"access_count"`
}

// NewMemory builds a memory with a fresh UUID and validated fields.
func NewMemory(content, summary string, confidence float64) (*Memory, error) {
	if err := RequireNonEmpty(content, "content"); err != nil {
		return nil, err
	}
	if err := RequireNonEmpty(summary, "summary"); err != nil {
		return nil, err
	}
	if err := RequireUnitRange(confidence, "confidence"); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Memory{
		ID:           uuid.New().String(),
		Content:      content,
		Summary:      summary,
		Confidence:   confidence,
		Permeability: PermeabilityOpen,
		CreatedAt:    now,
		LastAccessed: now,
	}, nil
}

// Compartment is a named group of memories sharing an access policy. Names
// are unique; a compartment with zero members is valid.
type Compartment struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Permeability Permeability `json:"permeability"`
	// AllowExternalConnections governs whether organic links may form from
	// members to memories outside the compartment.
	AllowExternalConnections bool      `json:"allow_external_connections"`
	Description              string    `json:"description"`
	CreatedAt                time.Time `json:"created_at"`
}

// NewCompartment builds a compartment with a fresh UUID. External
// connections default to allowed and permeability to open.
func NewCompartment(name string) (*Compartment, error) {
	if err := RequireNonEmpty(name, "name"); err != nil {
		return nil, err
	}
	return &Compartment{
		ID:                       uuid.New().String(),
		Name:                     name,
		Permeability:             PermeabilityOpen,
		AllowExternalConnections: true,
		CreatedAt:                time.Now().UTC(),
	}, nil
}

// Connection is a weighted, typed link between two memories. The edge is
// stored directed but most engine logic treats the pair as unordered. An
// empty Permeability means the connection inherits from its endpoints and
// their compartments; a set value can only narrow, never loosen, that policy.
type Connection struct {
	SourceID     string       `json:"source_id"`
	TargetID     string       `json:"target_id"`
	Strength     float64      `json:"strength"`
	Type         string       `json:"type,omitempty"`
	Permeability Permeability `json:"permeability,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// HasOverride reports whether the connection carries an explicit
// permeability override.
func (c *Connection) HasOverride() bool {
	return c.Permeability != ""
}

// Touches reports whether the connection has the given memory as either
// endpoint.
func (c *Connection) Touches(memoryID string) bool {
	return c.SourceID == memoryID || c.TargetID == memoryID
}

// Other returns the opposite endpoint of the given memory, or "" when the
// memory is not an endpoint.
func (c *Connection) Other(memoryID string) string {
	switch memoryID {
	case c.SourceID:
		return c.TargetID
	case c.TargetID:
		return c.SourceID
	}
	return ""
}
