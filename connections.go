package axon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/axonmem/axon/pkg/driver"
	"github.com/axonmem/axon/pkg/types"
)

// LinkMemoriesOptions adjusts explicit link creation.
type LinkMemoriesOptions struct {
	// Strength overrides the configured initial strength. Must be in the
	// configured strength bounds.
	Strength *float64
	// Type tags the connection; defaults to "related".
	Type string
	// Permeability sets a connection-level override. Empty inherits from
	// the endpoints and their compartments, and leaves any stored override
	// untouched when re-linking an existing pair.
	Permeability types.Permeability
	// CheckCompartments runs the formation guard before linking. A guard
	// denial returns false without an error.
	CheckCompartments bool
}

// ConnectionTypeRelated is the default tag for explicit links.
const ConnectionTypeRelated = "related"

// LinkMemories creates or updates a connection between two memories. The
// returned bool is false when the formation guard refused the pair; that is
// a normal outcome, not an error. Without an explicit strength, the link
// starts at the configured explicit initial strength, boosted by semantic
// similarity when a scorer is attached.
func (c *Client) LinkMemories(ctx context.Context, sourceID, targetID string, opts *LinkMemoriesOptions) (bool, error) {
	if sourceID == "" || targetID == "" || sourceID == targetID {
		return false, fmt.Errorf("link endpoints %q, %q: %w", sourceID, targetID, types.ErrInvalidArgument)
	}
	if opts == nil {
		opts = &LinkMemoriesOptions{}
	}
	if opts.Permeability != "" && !opts.Permeability.Valid() {
		return false, fmt.Errorf("%w: unknown permeability %q", types.ErrInvalidArgument, opts.Permeability)
	}

	source, err := c.store.GetMemory(ctx, sourceID)
	if err != nil {
		return false, err
	}
	target, err := c.store.GetMemory(ctx, targetID)
	if err != nil {
		return false, err
	}

	if opts.CheckCompartments {
		allowed, err := c.guard.CanFormConnection(ctx, sourceID, targetID)
		if err != nil {
			return false, err
		}
		if !allowed {
			c.logger.Debug("link blocked by compartments", "source", sourceID, "target", targetID)
			return false, nil
		}
	}

	cfg := c.engine.Config()
	var strength float64
	if opts.Strength != nil {
		strength = *opts.Strength
		if err := types.RequireRange(strength, cfg.MinStrength, cfg.MaxStrength, "strength"); err != nil {
			return false, err
		}
	} else {
		strength = cfg.InitialStrength(true, source.Content, target.Content)
	}

	connType := opts.Type
	if connType == "" {
		connType = ConnectionTypeRelated
	}

	// Update in place when the pair is already linked, in either direction.
	conn, err := c.store.GetConnection(ctx, sourceID, targetID)
	if errors.Is(err, driver.ErrConnectionNotFound) {
		conn, err = c.store.GetConnection(ctx, targetID, sourceID)
	}
	if err != nil && !errors.Is(err, driver.ErrConnectionNotFound) {
		return false, err
	}
	if err != nil {
		conn = &types.Connection{
			SourceID:  sourceID,
			TargetID:  targetID,
			CreatedAt: time.Now().UTC(),
		}
	}
	conn.Strength = strength
	conn.Type = connType
	if opts.Permeability != "" {
		conn.Permeability = opts.Permeability
	}

	if err := c.store.SetConnection(ctx, conn); err != nil {
		return false, err
	}
	return true, nil
}

// GetConnection resolves the connection between two memories, in either
// direction.
func (c *Client) GetConnection(ctx context.Context, a, b string) (*types.Connection, error) {
	conn, err := c.store.GetConnection(ctx, a, b)
	if errors.Is(err, driver.ErrConnectionNotFound) {
		return c.store.GetConnection(ctx, b, a)
	}
	return conn, err
}

// UnlinkMemories deletes the connection between two memories.
func (c *Client) UnlinkMemories(ctx context.Context, a, b string) error {
	conn, err := c.GetConnection(ctx, a, b)
	if err != nil {
		return err
	}
	return c.store.DeleteConnection(ctx, conn.SourceID, conn.TargetID)
}

// StrengthenConnection raises the weight of an existing link and returns the
// new strength.
func (c *Client) StrengthenConnection(ctx context.Context, a, b string) (float64, error) {
	return c.engine.Strengthen(ctx, a, b)
}

// WeakenConnection lowers the weight of an existing link and returns the new
// strength.
func (c *Client) WeakenConnection(ctx context.Context, a, b string) (float64, error) {
	return c.engine.Weaken(ctx, a, b)
}

// ApplyHebbianLearning reinforces every pair among memories accessed
// together. See the plasticity engine for pairing and creation semantics.
// Returns the number of connections strengthened or created.
func (c *Client) ApplyHebbianLearning(ctx context.Context, memoryIDs []string, respectCompartments bool) (int, error) {
	return c.engine.ApplyHebbian(ctx, memoryIDs, respectCompartments)
}

// StrongestConnections returns up to limit outgoing connections of a memory,
// strongest first, restricted to targets whose data may flow back to the
// memory.
func (c *Client) StrongestConnections(ctx context.Context, memoryID string, limit int) ([]*types.Connection, error) {
	return c.rankedConnections(ctx, memoryID, limit, true)
}

// WeakestConnections is StrongestConnections with the opposite ordering.
func (c *Client) WeakestConnections(ctx context.Context, memoryID string, limit int) ([]*types.Connection, error) {
	return c.rankedConnections(ctx, memoryID, limit, false)
}

func (c *Client) rankedConnections(ctx context.Context, memoryID string, limit int, strongestFirst bool) ([]*types.Connection, error) {
	if limit <= 0 {
		limit = 10
	}
	// Over-fetch so permeability filtering still fills the limit.
	conns, err := c.store.ConnectionsFrom(ctx, memoryID, strongestFirst, limit*3)
	if err != nil {
		return nil, err
	}

	targets := make([]string, 0, len(conns))
	byTarget := make(map[string]*types.Connection, len(conns))
	for _, conn := range conns {
		other := conn.Other(memoryID)
		targets = append(targets, other)
		byTarget[other] = conn
	}

	readable, err := c.evaluator.FilterReadable(ctx, memoryID, targets)
	if err != nil {
		return nil, err
	}

	result := make([]*types.Connection, 0, limit)
	for _, id := range readable {
		if conn, ok := byTarget[id]; ok {
			result = append(result, conn)
			if len(result) == limit {
				break
			}
		}
	}
	return result, nil
}

// CanDataFlow reports whether data may flow from source to destination.
func (c *Client) CanDataFlow(ctx context.Context, sourceID, destinationID string) (bool, error) {
	return c.evaluator.CanDataFlow(ctx, sourceID, destinationID)
}

// CanFormConnection reports whether a link between the two memories would be
// allowed by their compartments.
func (c *Client) CanFormConnection(ctx context.Context, a, b string) (bool, error) {
	return c.guard.CanFormConnection(ctx, a, b)
}
