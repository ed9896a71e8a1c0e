// Package store persists upstream configurations and tool enabled flags
// in a local bbolt database so mounted servers survive a restart.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"swaggerd/internal/domain"
)

var (
	bucketSpecs     = []byte("specs")
	bucketToolState = []byte("tool_state")
)

// SpecRecord is one persisted upstream registration.
type SpecRecord struct {
	ID        string                `json:"id"`
	Prefix    string                `json:"prefix"`
	Config    domain.UpstreamConfig `json:"config"`
	CreatedAt time.Time             `json:"createdAt"`
}

type Store struct {
	mu     sync.RWMutex
	db     *bolt.DB
	path   string
	closed bool
}

func Open(path string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if dir := filepath.Dir(trimmed); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure store dir: %w", err)
		}
	}
	options := &bolt.Options{Timeout: time.Second}
	db, err := bolt.Open(trimmed, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, path: trimmed}, nil
}

func ensureSchema(db *bolt.DB) error {
	return db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketSpecs, bucketToolState} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) update(fn func(tx *bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.ErrStoreClosed
	}
	return s.db.Update(fn)
}

func (s *Store) view(fn func(tx *bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.ErrStoreClosed
	}
	return s.db.View(fn)
}

// PutSpec stores the upstream configuration behind a prefix, replacing any
// previous record for that prefix.
func (s *Store) PutSpec(prefix string, cfg domain.UpstreamConfig) (SpecRecord, error) {
	record := SpecRecord{
		ID:        uuid.NewString(),
		Prefix:    prefix,
		Config:    cfg,
		CreatedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return SpecRecord{}, fmt.Errorf("encode spec record: %w", err)
	}
	err = s.update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSpecs).Put([]byte(prefix), raw)
	})
	if err != nil {
		return SpecRecord{}, err
	}
	return record, nil
}

// ListSpecs returns every persisted registration ordered by creation time.
func (s *Store) ListSpecs() ([]SpecRecord, error) {
	var records []SpecRecord
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSpecs).ForEach(func(_, raw []byte) error {
			var record SpecRecord
			if err := json.Unmarshal(raw, &record); err != nil {
				return fmt.Errorf("decode spec record: %w", err)
			}
			records = append(records, record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

// SetToolEnabled persists one tool flag under "prefix/name".
func (s *Store) SetToolEnabled(prefix, name string, enabled bool) error {
	value := []byte("0")
	if enabled {
		value = []byte("1")
	}
	return s.update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketToolState).Put([]byte(prefix+"/"+name), value)
	})
}

// ToolStates returns every persisted tool flag keyed by prefix then tool
// name.
func (s *Store) ToolStates() (map[string]map[string]bool, error) {
	states := make(map[string]map[string]bool)
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketToolState).ForEach(func(k, v []byte) error {
			prefix, name, ok := strings.Cut(string(k), "/")
			if !ok {
				return nil
			}
			if states[prefix] == nil {
				states[prefix] = make(map[string]bool)
			}
			states[prefix][name] = string(v) == "1"
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return states, nil
}
