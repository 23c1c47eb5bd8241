package model

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anchorpoint/pkg/domain/types"
)

// GenerationID is a UUID-based identifier for one successful generation
type GenerationID string

// NewGenerationID generates a new UUID v4 GenerationID
func NewGenerationID() GenerationID {
	return GenerationID(uuid.New().String())
}

// Entry is a cached coordinate together with the metadata of the generation that produced it.
// Concept is the exact, case-sensitive key; no normalization is applied.
type Entry struct {
	Concept      string
	Coordinate   Coordinate
	Method       types.Method
	GenerationID GenerationID
	GeneratedAt  time.Time

	// HashAlgorithm is set for hash entries
	HashAlgorithm types.HashAlgorithm

	// Model, PromptVersion and RawResponse are set for LLM entries
	Model         string
	PromptVersion string
	RawResponse   string
}

// ValidateConcept checks that a concept can be used as a key and hashed canonically
func ValidateConcept(concept string) error {
	if !utf8.ValidString(concept) {
		return goerr.Wrap(ErrInvalidInput, "concept is not valid UTF-8",
			goerr.V(ConceptKey, concept))
	}
	return nil
}

// Validate checks the entry is complete enough to be cached
func (e *Entry) Validate() error {
	if e == nil {
		return goerr.Wrap(ErrInvalidInput, "entry is nil")
	}
	if err := ValidateConcept(e.Concept); err != nil {
		return err
	}
	if err := e.Method.Validate(); err != nil {
		return goerr.Wrap(ErrInvalidInput, "invalid entry method",
			goerr.V(ConceptKey, e.Concept), goerr.V("method", e.Method))
	}
	if _, err := NewCoordinateFromValues(e.Coordinate.Values()); err != nil {
		return goerr.Wrap(err, "invalid entry coordinate", goerr.V(ConceptKey, e.Concept))
	}
	return nil
}

// IsStale reports whether an LLM entry was produced by a different prompt version than
// the current one. Hash entries never go stale.
func (e *Entry) IsStale(promptVersion string) bool {
	if e.Method != types.MethodLLM {
		return false
	}
	return e.PromptVersion != promptVersion
}

// LabeledCoordinate returns the coordinate carrying the entry's concept and provenance
func (e *Entry) LabeledCoordinate() Coordinate {
	p := Provenance{Method: e.Method}
	switch e.Method {
	case types.MethodHash:
		p.Source = string(e.HashAlgorithm)
	case types.MethodLLM:
		p.Source = e.Model
		p.GeneratedAt = e.GeneratedAt
	}
	return e.Coordinate.WithLabel(e.Concept).WithProvenance(p)
}
