package driver

import (
	"context"
	"errors"
	"time"

	"github.com/axonmem/axon/pkg/types"
)

// GraphProvider represents the type of graph database backing a store.
type GraphProvider string

const (
	GraphProviderLadybug GraphProvider = "ladybug"
	GraphProviderNeo4j   GraphProvider = "neo4j"
)

var (
	// ErrMemoryNotFound is returned when a referenced memory does not exist.
	ErrMemoryNotFound = errors.New("memory not found")
	// ErrCompartmentNotFound is returned when a referenced compartment does not exist.
	ErrCompartmentNotFound = errors.New("compartment not found")
	// ErrConnectionNotFound is returned when no connection exists between two memories.
	ErrConnectionNotFound = errors.New("connection not found")
	// ErrCompartmentNotEmpty is returned when deleting a compartment that
	// still has members without asking for reassignment.
	ErrCompartmentNotEmpty = errors.New("compartment has members")
)

// ConnectionFilter selects connections for scan operations. Nil threshold
// fields mean no bound; both may be combined with a type tag.
type ConnectionFilter struct {
	// StrengthBelow keeps connections with strength strictly below the value.
	StrengthBelow *float64
	// StrengthAtMost keeps connections with strength at or below the value.
	StrengthAtMost *float64
	// Type keeps connections whose type tag matches exactly.
	Type string
}

// Matches reports whether the connection passes the filter.
func (f ConnectionFilter) Matches(c *types.Connection) bool {
	if f.StrengthBelow != nil && c.Strength >= *f.StrengthBelow {
		return false
	}
	if f.StrengthAtMost != nil && c.Strength > *f.StrengthAtMost {
		return false
	}
	if f.Type != "" && c.Type != f.Type {
		return false
	}
	return true
}

// GraphStore is the graph collaborator the engines operate against. It holds
// memories, compartments, and weighted connections; persistence, query
// execution, and transaction durability are its responsibility, not the
// engines'.
type GraphStore interface {
	// Memory operations.
	UpsertMemory(ctx context.Context, m *types.Memory) error
	GetMemory(ctx context.Context, id string) (*types.Memory, error)
	// TouchMemory records an access: bumps the access count and sets the
	// last-accessed timestamp.
	TouchMemory(ctx context.Context, id string, at time.Time) error
	SetMemoryPermeability(ctx context.Context, ids []string, p types.Permeability) error
	DeleteMemory(ctx context.Context, id string) error

	// Compartment operations. Name uniqueness is enforced by callers via
	// GetCompartmentByName before creating.
	UpsertCompartment(ctx context.Context, c *types.Compartment) error
	GetCompartment(ctx context.Context, id string) (*types.Compartment, error)
	GetCompartmentByName(ctx context.Context, name string) (*types.Compartment, error)
	// DeleteCompartment detaches all members and removes the compartment.
	DeleteCompartment(ctx context.Context, id string) error
	AddToCompartment(ctx context.Context, memoryIDs []string, compartmentID string) error
	// RemoveFromCompartment detaches memories from the named compartment, or
	// from every compartment when compartmentID is empty.
	RemoveFromCompartment(ctx context.Context, memoryIDs []string, compartmentID string) error
	// CompartmentsOf returns the compartments containing the memory; empty
	// when the memory is global.
	CompartmentsOf(ctx context.Context, memoryID string) ([]*types.Compartment, error)
	MembersOf(ctx context.Context, compartmentID string, limit int) ([]*types.Memory, error)
	MemberCount(ctx context.Context, compartmentID string) (int64, error)

	// Connection operations. At most one connection per ordered pair;
	// SetConnection is create-or-update.
	SetConnection(ctx context.Context, c *types.Connection) error
	GetConnection(ctx context.Context, sourceID, targetID string) (*types.Connection, error)
	DeleteConnection(ctx context.Context, sourceID, targetID string) error
	// ListConnections scans all memory-to-memory connections passing the
	// filter; used by decay, prune, and statistics passes.
	ListConnections(ctx context.Context, filter ConnectionFilter) ([]*types.Connection, error)
	// ConnectionsTouching returns every connection with the memory as either
	// endpoint.
	ConnectionsTouching(ctx context.Context, memoryID string) ([]*types.Connection, error)
	// ConnectionsFrom returns outgoing connections ordered by strength,
	// descending when strongestFirst.
	ConnectionsFrom(ctx context.Context, memoryID string, strongestFirst bool, limit int) ([]*types.Connection, error)
	// Neighborhood returns ids of memories reachable within maxHops along
	// connections, excluding the start memory.
	Neighborhood(ctx context.Context, memoryID string, maxHops int) ([]string, error)

	Provider() GraphProvider
	Close() error
}
