// Package permeability enforces compartment boundaries. The evaluator
// decides whether data may flow between memories and the formation guard
// decides whether a connection may be created in the first place.
package permeability

import (
	"context"
	"errors"
	"log/slog"

	"github.com/axonmem/axon/pkg/driver"
	"github.com/axonmem/axon/pkg/types"
)

// Evaluator answers data-flow questions with fail-safe semantics: every
// layer must grant or the flow is denied.
type Evaluator struct {
	store  driver.GraphStore
	logger *slog.Logger
}

// NewEvaluator binds the evaluator to a store.
func NewEvaluator(store driver.GraphStore, logger *slog.Logger) (*Evaluator, error) {
	if store == nil {
		return nil, errors.New("permeability: store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{store: store, logger: logger}, nil
}

// CanDataFlow reports whether data may move from the source memory to the
// destination memory, that is, whether a read rooted at the destination is
// allowed to see the source.
//
// Layers, all of which must grant:
//
//  1. the source memory allows outward flow
//  2. every compartment containing the source allows outward flow
//  3. every compartment containing the destination allows inward flow
//  4. the destination memory allows inward flow
//  5. a connection-level permeability override, if present, also allows the
//     direction
//
// The override at layer 5 can only narrow what layers 1-4 grant; a flow
// denied by memory or compartment permeability stays denied no matter what
// the connection carries. A memory in no compartments passes layers 2-3
// vacuously. Denial is a false result, not an error.
func (e *Evaluator) CanDataFlow(ctx context.Context, sourceID, destinationID string) (bool, error) {
	source, err := e.store.GetMemory(ctx, sourceID)
	if err != nil {
		return false, err
	}
	destination, err := e.store.GetMemory(ctx, destinationID)
	if err != nil {
		return false, err
	}

	if !source.Permeability.AllowsOutward() {
		return e.deny("source memory", sourceID, destinationID)
	}

	sourceComps, err := e.store.CompartmentsOf(ctx, sourceID)
	if err != nil {
		return false, err
	}
	for _, c := range sourceComps {
		if !c.Permeability.AllowsOutward() {
			return e.deny("source compartment", sourceID, destinationID)
		}
	}

	destComps, err := e.store.CompartmentsOf(ctx, destinationID)
	if err != nil {
		return false, err
	}
	for _, c := range destComps {
		if !c.Permeability.AllowsInward() {
			return e.deny("destination compartment", sourceID, destinationID)
		}
	}

	if !destination.Permeability.AllowsInward() {
		return e.deny("destination memory", sourceID, destinationID)
	}

	conn, err := e.connectionEither(ctx, sourceID, destinationID)
	if errors.Is(err, driver.ErrConnectionNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if conn.HasOverride() {
		// The override is read relative to the stored edge direction: a
		// flow along the edge needs outward permission, a flow against it
		// needs inward.
		allowed := conn.Permeability.AllowsInward()
		if conn.SourceID == sourceID {
			allowed = conn.Permeability.AllowsOutward()
		}
		if !allowed {
			return e.deny("connection override", sourceID, destinationID)
		}
	}
	return true, nil
}

func (e *Evaluator) deny(layer, sourceID, destinationID string) (bool, error) {
	e.logger.Debug("data flow denied",
		"layer", layer, "source", sourceID, "destination", destinationID)
	return false, nil
}

func (e *Evaluator) connectionEither(ctx context.Context, a, b string) (*types.Connection, error) {
	conn, err := e.store.GetConnection(ctx, a, b)
	if err == nil {
		return conn, nil
	}
	if !errors.Is(err, driver.ErrConnectionNotFound) {
		return nil, err
	}
	return e.store.GetConnection(ctx, b, a)
}

// FilterReadable keeps only the memories whose data may flow to the reader.
// The reader itself always passes.
func (e *Evaluator) FilterReadable(ctx context.Context, readerID string, memoryIDs []string) ([]string, error) {
	readable := make([]string, 0, len(memoryIDs))
	for _, id := range memoryIDs {
		if id == readerID {
			readable = append(readable, id)
			continue
		}
		ok, err := e.CanDataFlow(ctx, id, readerID)
		if err != nil {
			return nil, err
		}
		if ok {
			readable = append(readable, id)
		}
	}
	return readable, nil
}

// FormationGuard decides whether an edge may be created between two
// memories, independent of whether data may later flow across it.
type FormationGuard struct {
	store driver.GraphStore
}

// NewFormationGuard binds the guard to a store.
func NewFormationGuard(store driver.GraphStore) (*FormationGuard, error) {
	if store == nil {
		return nil, errors.New("permeability: store is required")
	}
	return &FormationGuard{store: store}, nil
}

// CanFormConnection allows a pair when the two memories share exactly the
// same set of compartments, or when every compartment on both sides permits
// external connections. A memory with no compartments permits external
// connections trivially for its side. Both memories must exist; an unknown
// id is a NotFound error, not a denial.
func (g *FormationGuard) CanFormConnection(ctx context.Context, memoryIDA, memoryIDB string) (bool, error) {
	if _, err := g.store.GetMemory(ctx, memoryIDA); err != nil {
		return false, err
	}
	if _, err := g.store.GetMemory(ctx, memoryIDB); err != nil {
		return false, err
	}

	compsA, err := g.store.CompartmentsOf(ctx, memoryIDA)
	if err != nil {
		return false, err
	}
	compsB, err := g.store.CompartmentsOf(ctx, memoryIDB)
	if err != nil {
		return false, err
	}

	if sameCompartmentSet(compsA, compsB) {
		return true, nil
	}
	return allAllowExternal(compsA) && allAllowExternal(compsB), nil
}

func sameCompartmentSet(a, b []*types.Compartment) bool {
	if len(a) != len(b) {
		return false
	}
	ids := make(map[string]bool, len(a))
	for _, c := range a {
		ids[c.ID] = true
	}
	for _, c := range b {
		if !ids[c.ID] {
			return false
		}
	}
	return true
}

func allAllowExternal(comps []*types.Compartment) bool {
	for _, c := range comps {
		if !c.AllowExternalConnections {
			return false
		}
	}
	return true
}
