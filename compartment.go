package axon

import (
	"context"
	"errors"
	"fmt"

	"github.com/axonmem/axon/pkg/driver"
	"github.com/axonmem/axon/pkg/types"
)

// CreateCompartment creates a named compartment. Names are unique: creating
// a compartment whose name already exists returns the existing one.
func (c *Client) CreateCompartment(ctx context.Context, name, description string) (*types.Compartment, error) {
	existing, err := c.store.GetCompartmentByName(ctx, name)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, driver.ErrCompartmentNotFound) {
		return nil, err
	}

	compartment, err := types.NewCompartment(name)
	if err != nil {
		return nil, err
	}
	compartment.Description = description
	if err := c.store.UpsertCompartment(ctx, compartment); err != nil {
		return nil, err
	}
	c.logger.Debug("compartment created", "id", compartment.ID, "name", name)
	return compartment, nil
}

// GetCompartment fetches a compartment by id.
func (c *Client) GetCompartment(ctx context.Context, id string) (*types.Compartment, error) {
	return c.store.GetCompartment(ctx, id)
}

// GetCompartmentByName fetches a compartment by its unique name.
func (c *Client) GetCompartmentByName(ctx context.Context, name string) (*types.Compartment, error) {
	return c.store.GetCompartmentByName(ctx, name)
}

// UpdateCompartment persists changed settings on an existing compartment.
func (c *Client) UpdateCompartment(ctx context.Context, compartment *types.Compartment) error {
	if compartment == nil || compartment.ID == "" {
		return fmt.Errorf("compartment id: %w", types.ErrInvalidArgument)
	}
	if _, err := c.store.GetCompartment(ctx, compartment.ID); err != nil {
		return err
	}
	return c.store.UpsertCompartment(ctx, compartment)
}

// DeleteCompartment removes a compartment. With reassignMemories the members
// are detached first; otherwise a non-empty compartment is an error.
func (c *Client) DeleteCompartment(ctx context.Context, id string, reassignMemories bool) error {
	if _, err := c.store.GetCompartment(ctx, id); err != nil {
		return err
	}
	count, err := c.store.MemberCount(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 && !reassignMemories {
		return fmt.Errorf("compartment %s has %d members: %w", id, count, driver.ErrCompartmentNotEmpty)
	}

	if err := c.store.DeleteCompartment(ctx, id); err != nil {
		return err
	}

	c.mu.Lock()
	if c.activeCompartmentID == id {
		c.activeCompartmentID = ""
	}
	c.mu.Unlock()
	return nil
}

// AddToCompartment places one or more memories into a compartment.
func (c *Client) AddToCompartment(ctx context.Context, memoryIDs []string, compartmentID string) error {
	if len(memoryIDs) == 0 {
		return nil
	}
	if _, err := c.store.GetCompartment(ctx, compartmentID); err != nil {
		return err
	}
	for _, id := range memoryIDs {
		if _, err := c.store.GetMemory(ctx, id); err != nil {
			return err
		}
	}
	return c.store.AddToCompartment(ctx, memoryIDs, compartmentID)
}

// RemoveFromCompartment detaches memories from a compartment. An empty
// compartment id detaches them from every compartment.
func (c *Client) RemoveFromCompartment(ctx context.Context, memoryIDs []string, compartmentID string) error {
	if len(memoryIDs) == 0 {
		return nil
	}
	return c.store.RemoveFromCompartment(ctx, memoryIDs, compartmentID)
}

// CompartmentsOf lists the compartments containing a memory.
func (c *Client) CompartmentsOf(ctx context.Context, memoryID string) ([]*types.Compartment, error) {
	return c.store.CompartmentsOf(ctx, memoryID)
}

// MembersOf lists memories belonging to a compartment.
func (c *Client) MembersOf(ctx context.Context, compartmentID string, limit int) ([]*types.Memory, error) {
	return c.store.MembersOf(ctx, compartmentID, limit)
}

// SetActiveCompartment makes new memories default into the given
// compartment. An empty id clears the active compartment.
func (c *Client) SetActiveCompartment(ctx context.Context, id string) error {
	if id != "" {
		if _, err := c.store.GetCompartment(ctx, id); err != nil {
			return err
		}
	}
	c.mu.Lock()
	c.activeCompartmentID = id
	c.mu.Unlock()
	return nil
}

// ActiveCompartment returns the active compartment id, empty when none.
func (c *Client) ActiveCompartment() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activeCompartmentID
}
