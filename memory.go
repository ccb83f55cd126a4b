package axon

import (
	"context"
	"fmt"
	"time"

	"github.com/axonmem/axon/pkg/types"
)

// CreateMemoryOptions adjusts memory creation.
type CreateMemoryOptions struct {
	// Permeability defaults to OPEN.
	Permeability types.Permeability
	// CompartmentID places the memory in a specific compartment. Empty
	// falls back to the active compartment, if any.
	CompartmentID string
	// SkipActiveCompartment keeps the memory out of the active compartment
	// even when one is set.
	SkipActiveCompartment bool
}

// CreateMemory stores a new memory. Content is required; confidence must be
// in [0,1]. The memory lands in the active compartment unless options say
// otherwise.
func (c *Client) CreateMemory(ctx context.Context, content, summary string, confidence float64, opts *CreateMemoryOptions) (*types.Memory, error) {
	memory, err := types.NewMemory(content, summary, confidence)
	if err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &CreateMemoryOptions{}
	}
	if opts.Permeability != "" {
		if !opts.Permeability.Valid() {
			return nil, fmt.Errorf("%w: unknown permeability %q", types.ErrInvalidArgument, opts.Permeability)
		}
		memory.Permeability = opts.Permeability
	}

	if err := c.store.UpsertMemory(ctx, memory); err != nil {
		return nil, err
	}

	compartmentID := opts.CompartmentID
	if compartmentID == "" && !opts.SkipActiveCompartment {
		compartmentID = c.ActiveCompartment()
	}
	if compartmentID != "" {
		if err := c.store.AddToCompartment(ctx, []string{memory.ID}, compartmentID); err != nil {
			return nil, err
		}
	}

	c.logger.Debug("memory created", "id", memory.ID, "compartment", compartmentID)
	return memory, nil
}

// GetMemoryOptions adjusts retrieval behavior.
type GetMemoryOptions struct {
	// SuppressEffects skips access tracking and retrieval-induced weight
	// changes, for administrative reads.
	SuppressEffects bool
}

// GetMemory fetches a memory by id. Unless suppressed, the read bumps the
// memory's access tracking and applies retrieval effects to its connections.
func (c *Client) GetMemory(ctx context.Context, id string, opts *GetMemoryOptions) (*types.Memory, error) {
	memory, err := c.store.GetMemory(ctx, id)
	if err != nil {
		return nil, err
	}
	if opts != nil && opts.SuppressEffects {
		return memory, nil
	}

	now := time.Now().UTC()
	if err := c.store.TouchMemory(ctx, id, now); err != nil {
		return nil, err
	}
	memory.LastAccessed = now
	memory.AccessCount++

	if err := c.engine.ApplyRetrieval(ctx, []string{id}); err != nil {
		return nil, err
	}
	return memory, nil
}

// AccessMemories fetches several memories as one retrieval event, so
// retrieval effects treat them all as accessed together.
func (c *Client) AccessMemories(ctx context.Context, ids []string) ([]*types.Memory, error) {
	memories := make([]*types.Memory, 0, len(ids))
	now := time.Now().UTC()
	for _, id := range ids {
		memory, err := c.store.GetMemory(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := c.store.TouchMemory(ctx, id, now); err != nil {
			return nil, err
		}
		memory.LastAccessed = now
		memory.AccessCount++
		memories = append(memories, memory)
	}
	if err := c.engine.ApplyRetrieval(ctx, ids); err != nil {
		return nil, err
	}
	return memories, nil
}

// SetMemoryPermeability updates permeability on one or more memories.
func (c *Client) SetMemoryPermeability(ctx context.Context, ids []string, p types.Permeability) error {
	if !p.Valid() {
		return fmt.Errorf("%w: unknown permeability %q", types.ErrInvalidArgument, p)
	}
	if len(ids) == 0 {
		return nil
	}
	return c.store.SetMemoryPermeability(ctx, ids, p)
}

// DeleteMemory removes a memory and all its connections.
func (c *Client) DeleteMemory(ctx context.Context, id string) error {
	return c.store.DeleteMemory(ctx, id)
}
