package filesystem

import (
	"context"
	"slices"

	"github.com/puzpuzpuz/xsync/v4"
)

// Scope is a table of per-node exclusive locks. A sync of a directory holds
// the directory's id; a favorite toggle holds its node and that node's parent.
//
// Multi-id acquisitions take locks in sorted id order so two holders can never
// wait on each other.
type Scope struct {
	held *xsync.Map[string, chan struct{}] // id -> closed on release
}

func NewScope() *Scope {
	return &Scope{held: xsync.NewMap[string, chan struct{}]()}
}

// Acquire blocks until every id is held or ctx ends.
// The returned release func must be called exactly once.
func (s *Scope) Acquire(ctx context.Context, ids ...string) (func(), error) {
	ids = normalizeIDs(ids)
	acquired := make([]string, 0, len(ids))
	for _, id := range ids {
		if err := s.acquireOne(ctx, id); err != nil {
			s.release(acquired)
			return nil, err
		}
		acquired = append(acquired, id)
	}
	return func() { s.release(acquired) }, nil
}

// TryAcquire takes every id or none without waiting
func (s *Scope) TryAcquire(ids ...string) (func(), bool) {
	ids = normalizeIDs(ids)
	acquired := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, busy := s.held.LoadOrStore(id, make(chan struct{})); busy {
			s.release(acquired)
			return nil, false
		}
		acquired = append(acquired, id)
	}
	return func() { s.release(acquired) }, true
}

// Held reports whether id is currently locked
func (s *Scope) Held(id string) bool {
	_, ok := s.held.Load(id)
	return ok
}

func (s *Scope) acquireOne(ctx context.Context, id string) error {
	for {
		wait, busy := s.held.LoadOrStore(id, make(chan struct{}))
		if !busy {
			return nil
		}
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Scope) release(ids []string) {
	for i := len(ids) - 1; i >= 0; i-- {
		if ch, ok := s.held.LoadAndDelete(ids[i]); ok {
			close(ch)
		}
	}
}

func normalizeIDs(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	out = slices.Compact(out)
	return slices.DeleteFunc(out, func(id string) bool { return id == "" })
}
