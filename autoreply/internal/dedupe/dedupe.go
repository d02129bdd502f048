// Package dedupe is the persistent set of post identifiers that have already
// been replied to. It survives restarts: Load merges the persisted set into
// memory, Persist makes every recorded identifier durable before returning.
//
// A Store is single-writer: the cycle loop is its only caller, so it carries
// no locking.
package dedupe

import (
	"context"
	"errors"
	"fmt"
)

// ErrCorrupt is returned by Load when the persisted state cannot be parsed.
// It is a fatal startup condition.
var ErrCorrupt = errors.New("dedupe: corrupt store")

// Store is the dedupe contract shared by the backends.
type Store interface {
	// Contains reports whether id has been recorded.
	Contains(id string) bool
	// Record adds id to the set. Recording a present id is a no-op.
	Record(id string)
	// Load merges the persisted identifiers into memory.
	Load(ctx context.Context) error
	// Persist makes every recorded identifier durable.
	Persist(ctx context.Context) error
	// Len returns the number of identifiers in the set.
	Len() int
	// IDs returns identifiers in recording order.
	IDs() []string
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Open builds the backend named by backend at path and loads it.
func Open(ctx context.Context, backend, path string) (Store, error) {
	var s Store
	switch backend {
	case BackendFile, "":
		s = NewFileStore(path)
	case BackendSQLite:
		ss, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		s = ss
	default:
		return nil, fmt.Errorf("dedupe: unknown backend %q", backend)
	}
	if err := s.Load(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// set is the in-memory half shared by both backends.
type set struct {
	ids   map[string]struct{}
	order []string
}

func newSet() set {
	return set{ids: make(map[string]struct{})}
}

func (s *set) contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// add reports whether id was new.
func (s *set) add(id string) bool {
	if id == "" || s.contains(id) {
		return false
	}
	s.ids[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}

func (s *set) snapshot() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
