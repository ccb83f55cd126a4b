// Package checkpoint persists maintenance progress so interrupted cycles
// resume where they left off instead of replaying decay from zero.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

var cycleStateKey = []byte("maintenance/cycle_state")

// CycleState is the durable record of maintenance history.
type CycleState struct {
	LastRunAt   time.Time `json:"last_run_at"`
	TotalCycles int       `json:"total_cycles"`
	LastDecayed int       `json:"last_decayed"`
	LastPruned  int       `json:"last_pruned"`
}

// Store is a Badger-backed checkpoint store.
type Store struct {
	db *badger.DB
}

// Open creates or reopens the checkpoint database. An empty dir defaults to a
// directory under the system temp path.
func Open(dir string) (*Store, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "axon-checkpoints")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory: %w", err)
	}

	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint database: %w", err)
	}
	return &Store{db: db}, nil
}

// Load returns the saved cycle state, or a zero state when none exists yet.
func (s *Store) Load() (*CycleState, error) {
	state := &CycleState{}
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cycleStateKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, state)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return &CycleState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cycle state: %w", err)
	}
	return state, nil
}

// Save overwrites the cycle state.
func (s *Store) Save(state *CycleState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal cycle state: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(cycleStateKey, data)
	})
	if err != nil {
		return fmt.Errorf("save cycle state: %w", err)
	}
	return nil
}

// Reset removes any saved state.
func (s *Store) Reset() error {
	err := s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(cycleStateKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("reset cycle state: %w", err)
	}
	return nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
