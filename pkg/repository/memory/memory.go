package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anchorpoint/pkg/domain/interfaces"
	"github.com/secmon-lab/anchorpoint/pkg/domain/model"
)

// Repository is an alias for Memory to match the pattern
type Repository = Memory

// Memory is the ephemeral coordinate cache. Entries are lost when the process exits.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*model.Entry
}

var _ interfaces.CoordinateRepository = &Memory{}

func New() *Memory {
	return &Memory{
		entries: make(map[string]*model.Entry),
	}
}

func copyEntry(entry *model.Entry) *model.Entry {
	copied := *entry
	return &copied
}

func (m *Memory) Get(ctx context.Context, concept string) (*model.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, exists := m.entries[concept]
	if !exists {
		return nil, goerr.Wrap(model.ErrNotFound, "coordinate not cached", goerr.V(model.ConceptKey, concept))
	}

	return copyEntry(entry), nil
}

func (m *Memory) Put(ctx context.Context, entry *model.Entry) error {
	if err := entry.Validate(); err != nil {
		return goerr.Wrap(err, "refusing to cache invalid entry", goerr.V(model.ConceptKey, entry.Concept))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[entry.Concept] = copyEntry(entry)
	return nil
}

func (m *Memory) GetMany(ctx context.Context, concepts []string) (map[string]*model.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]*model.Entry, len(concepts))
	for _, concept := range concepts {
		if entry, exists := m.entries[concept]; exists {
			result[concept] = copyEntry(entry)
		}
	}

	return result, nil
}

func (m *Memory) List(ctx context.Context) ([]*model.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]*model.Entry, 0, len(m.entries))
	for _, entry := range m.entries {
		entries = append(entries, copyEntry(entry))
	}

	slices.SortFunc(entries, func(a, b *model.Entry) int {
		return strings.Compare(a.Concept, b.Concept)
	})
	return entries, nil
}

func (m *Memory) Close() error {
	return nil
}
