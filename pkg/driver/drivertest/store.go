// Package drivertest provides an in-memory GraphStore for tests.
package drivertest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/axonmem/axon/pkg/driver"
	"github.com/axonmem/axon/pkg/types"
)

// Store is a map-backed GraphStore. It is safe for concurrent use.
type Store struct {
	mu           sync.RWMutex
	memories     map[string]*types.Memory
	compartments map[string]*types.Compartment
	connections  map[string]*types.Connection
	membership   map[string]map[string]bool
}

// New returns an empty store.
func New() *Store {
	return &Store{
		memories:     make(map[string]*types.Memory),
		compartments: make(map[string]*types.Compartment),
		connections:  make(map[string]*types.Connection),
		membership:   make(map[string]map[string]bool),
	}
}

func connKey(source, target string) string {
	return source + "\x00" + target
}

func copyMemory(m *types.Memory) *types.Memory {
	clone := *m
	return &clone
}

func copyCompartment(c *types.Compartment) *types.Compartment {
	clone := *c
	return &clone
}

func copyConnection(c *types.Connection) *types.Connection {
	clone := *c
	return &clone
}

// Provider implements driver.GraphStore.
func (s *Store) Provider() driver.GraphProvider {
	return driver.GraphProvider("memory")
}

// Close implements driver.GraphStore.
func (s *Store) Close() error {
	return nil
}

func (s *Store) UpsertMemory(_ context.Context, m *types.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memories[m.ID] = copyMemory(m)
	return nil
}

func (s *Store) GetMemory(_ context.Context, id string) (*types.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memories[id]
	if !ok {
		return nil, fmt.Errorf("memory %s: %w", id, driver.ErrMemoryNotFound)
	}
	return copyMemory(m), nil
}

func (s *Store) TouchMemory(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memories[id]
	if !ok {
		return fmt.Errorf("memory %s: %w", id, driver.ErrMemoryNotFound)
	}
	m.LastAccessed = at
	m.AccessCount++
	return nil
}

func (s *Store) SetMemoryPermeability(_ context.Context, ids []string, p types.Permeability) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		m, ok := s.memories[id]
		if !ok {
			return fmt.Errorf("memory %s: %w", id, driver.ErrMemoryNotFound)
		}
		m.Permeability = p
	}
	return nil
}

func (s *Store) DeleteMemory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.memories, id)
	delete(s.membership, id)
	for key, conn := range s.connections {
		if conn.SourceID == id || conn.TargetID == id {
			delete(s.connections, key)
		}
	}
	return nil
}

func (s *Store) UpsertCompartment(_ context.Context, c *types.Compartment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compartments[c.ID] = copyCompartment(c)
	return nil
}

func (s *Store) GetCompartment(_ context.Context, id string) (*types.Compartment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.compartments[id]
	if !ok {
		return nil, fmt.Errorf("compartment %s: %w", id, driver.ErrCompartmentNotFound)
	}
	return copyCompartment(c), nil
}

func (s *Store) GetCompartmentByName(_ context.Context, name string) (*types.Compartment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.compartments {
		if c.Name == name {
			return copyCompartment(c), nil
		}
	}
	return nil, fmt.Errorf("compartment %q: %w", name, driver.ErrCompartmentNotFound)
}

func (s *Store) DeleteCompartment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.compartments, id)
	for _, comps := range s.membership {
		delete(comps, id)
	}
	return nil
}

func (s *Store) AddToCompartment(_ context.Context, memoryIDs []string, compartmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range memoryIDs {
		if s.membership[id] == nil {
			s.membership[id] = make(map[string]bool)
		}
		s.membership[id][compartmentID] = true
	}
	return nil
}

func (s *Store) RemoveFromCompartment(_ context.Context, memoryIDs []string, compartmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range memoryIDs {
		if compartmentID == "" {
			delete(s.membership, id)
			continue
		}
		delete(s.membership[id], compartmentID)
	}
	return nil
}

func (s *Store) CompartmentsOf(_ context.Context, memoryID string) ([]*types.Compartment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var comps []*types.Compartment
	for id := range s.membership[memoryID] {
		if c, ok := s.compartments[id]; ok {
			comps = append(comps, copyCompartment(c))
		}
	}
	sort.Slice(comps, func(i, j int) bool { return comps[i].ID < comps[j].ID })
	return comps, nil
}

func (s *Store) MembersOf(_ context.Context, compartmentID string, limit int) ([]*types.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var members []*types.Memory
	for id, comps := range s.membership {
		if comps[compartmentID] {
			if m, ok := s.memories[id]; ok {
				members = append(members, copyMemory(m))
			}
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	if limit > 0 && len(members) > limit {
		members = members[:limit]
	}
	return members, nil
}

func (s *Store) MemberCount(_ context.Context, compartmentID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, comps := range s.membership {
		if comps[compartmentID] {
			count++
		}
	}
	return count, nil
}

func (s *Store) SetConnection(_ context.Context, c *types.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := copyConnection(c)
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
	}
	s.connections[connKey(c.SourceID, c.TargetID)] = clone
	return nil
}

func (s *Store) GetConnection(_ context.Context, sourceID, targetID string) (*types.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.connections[connKey(sourceID, targetID)]
	if !ok {
		return nil, fmt.Errorf("connection %s->%s: %w", sourceID, targetID, driver.ErrConnectionNotFound)
	}
	return copyConnection(c), nil
}

func (s *Store) DeleteConnection(_ context.Context, sourceID, targetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connections, connKey(sourceID, targetID))
	return nil
}

func (s *Store) ListConnections(_ context.Context, filter driver.ConnectionFilter) ([]*types.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var conns []*types.Connection
	for _, c := range s.connections {
		if filter.Matches(c) {
			conns = append(conns, copyConnection(c))
		}
	}
	sort.Slice(conns, func(i, j int) bool {
		return connKey(conns[i].SourceID, conns[i].TargetID) < connKey(conns[j].SourceID, conns[j].TargetID)
	})
	return conns, nil
}

func (s *Store) ConnectionsTouching(_ context.Context, memoryID string) ([]*types.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var conns []*types.Connection
	for _, c := range s.connections {
		if c.Touches(memoryID) {
			conns = append(conns, copyConnection(c))
		}
	}
	sort.Slice(conns, func(i, j int) bool {
		return connKey(conns[i].SourceID, conns[i].TargetID) < connKey(conns[j].SourceID, conns[j].TargetID)
	})
	return conns, nil
}

func (s *Store) ConnectionsFrom(_ context.Context, memoryID string, strongestFirst bool, limit int) ([]*types.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var conns []*types.Connection
	for _, c := range s.connections {
		if c.SourceID == memoryID {
			conns = append(conns, copyConnection(c))
		}
	}
	sort.Slice(conns, func(i, j int) bool {
		if strongestFirst {
			return conns[i].Strength > conns[j].Strength
		}
		return conns[i].Strength < conns[j].Strength
	})
	if limit > 0 && len(conns) > limit {
		conns = conns[:limit]
	}
	return conns, nil
}

func (s *Store) Neighborhood(_ context.Context, memoryID string, maxHops int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adjacency := make(map[string][]string)
	for _, c := range s.connections {
		adjacency[c.SourceID] = append(adjacency[c.SourceID], c.TargetID)
		adjacency[c.TargetID] = append(adjacency[c.TargetID], c.SourceID)
	}

	visited := map[string]bool{memoryID: true}
	frontier := []string{memoryID}
	var result []string
	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		var next []string
		for _, id := range frontier {
			for _, neighbor := range adjacency[id] {
				if visited[neighbor] {
					continue
				}
				visited[neighbor] = true
				result = append(result, neighbor)
				next = append(next, neighbor)
			}
		}
		frontier = next
	}
	sort.Strings(result)
	return result, nil
}
