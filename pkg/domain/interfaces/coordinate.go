package interfaces

import (
	"context"

	"github.com/secmon-lab/anchorpoint/pkg/domain/model"
	"github.com/secmon-lab/anchorpoint/pkg/domain/types"
)

// Generator maps a concept to a Coordinate. Hash and LLM generation both satisfy it, so
// callers can swap strategy without branching on type.
type Generator interface {
	Method() types.Method
	Generate(ctx context.Context, concept string) (model.Coordinate, error)
}

// CoordinateSource produces a fresh entry for a concept, with no caching. It is the
// upstream of the cached generator.
type CoordinateSource interface {
	Method() types.Method
	Produce(ctx context.Context, concept string) (*model.Entry, error)
}

// CoordinateRepository is the concept-keyed coordinate cache
type CoordinateRepository interface {
	// Get returns the entry for the exact concept, or an error wrapping model.ErrNotFound
	Get(ctx context.Context, concept string) (*model.Entry, error)

	// Put stores the entry, overwriting any previous entry for the same concept
	Put(ctx context.Context, entry *model.Entry) error

	// GetMany returns the entries that exist; absent concepts are simply missing from the map
	GetMany(ctx context.Context, concepts []string) (map[string]*model.Entry, error)

	// List returns every entry sorted by concept
	List(ctx context.Context) ([]*model.Entry, error)

	Close() error
}
