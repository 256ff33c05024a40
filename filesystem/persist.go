package filesystem

import (
	"context"

	"github.com/brettbedarf/webmirror"
)

// Batch is one atomic unit of store mutation.
// Deletes are applied before Upserts.
type Batch struct {
	Deletes []string         // Node ids; descendants are included
	Upserts []webmirror.Node // Full node records
}

// Empty reports whether the batch carries no work
func (b Batch) Empty() bool {
	return len(b.Deletes) == 0 && len(b.Upserts) == 0
}

// Persister durably stores node records. Apply must be all-or-nothing.
type Persister interface {
	Load(ctx context.Context) ([]webmirror.Node, error)
	Apply(ctx context.Context, b Batch) error
}

// nopPersister keeps the store memory only
type nopPersister struct{}

func (nopPersister) Load(context.Context) ([]webmirror.Node, error) { return nil, nil }
func (nopPersister) Apply(context.Context, Batch) error             { return nil }
