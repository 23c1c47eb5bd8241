package model

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anchorpoint/pkg/domain/types"
)

// RecordSchemaVersion is written into every persisted record. Fields may only be added;
// readers ignore unknown fields and treat missing ones as empty.
const RecordSchemaVersion = 1

// Record is the stable JSON form of an Entry, shared by the file backend, snapshots
// and the HTTP API.
type Record struct {
	SchemaVersion int       `json:"schema_version"`
	Concept       string    `json:"concept"`
	Love          float64   `json:"love"`
	Power         float64   `json:"power"`
	Wisdom        float64   `json:"wisdom"`
	Justice       float64   `json:"justice"`
	Distance      float64   `json:"distance"`
	Zone          string    `json:"zone"`
	Method        string    `json:"method"`
	GenerationID  string    `json:"generation_id,omitempty"`
	GeneratedAt   time.Time `json:"generated_at"`
	HashAlgorithm string    `json:"hash_algorithm,omitempty"`
	Model         string    `json:"model,omitempty"`
	PromptVersion string    `json:"prompt_version,omitempty"`
	RawResponse   string    `json:"raw_response,omitempty"`
}

// ToRecord converts an Entry into its persisted form
func (e *Entry) ToRecord() *Record {
	c := e.Coordinate
	return &Record{
		SchemaVersion: RecordSchemaVersion,
		Concept:       e.Concept,
		Love:          c.Love(),
		Power:         c.Power(),
		Wisdom:        c.Wisdom(),
		Justice:       c.Justice(),
		Distance:      c.Distance(),
		Zone:          string(c.Zone()),
		Method:        string(e.Method),
		GenerationID:  string(e.GenerationID),
		GeneratedAt:   e.GeneratedAt,
		HashAlgorithm: string(e.HashAlgorithm),
		Model:         e.Model,
		PromptVersion: e.PromptVersion,
		RawResponse:   e.RawResponse,
	}
}

// ToEntry converts a persisted record back into an Entry. Distance and Zone are derived
// values and are recomputed rather than trusted.
func (r *Record) ToEntry() (*Entry, error) {
	if r.SchemaVersion > RecordSchemaVersion {
		return nil, goerr.New("record schema version is newer than supported",
			goerr.V(ConceptKey, r.Concept),
			goerr.V("schema_version", r.SchemaVersion))
	}

	coord, err := NewCoordinate(r.Love, r.Power, r.Wisdom, r.Justice)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid coordinate in record", goerr.V(ConceptKey, r.Concept))
	}

	entry := &Entry{
		Concept:       r.Concept,
		Method:        types.Method(r.Method),
		GenerationID:  GenerationID(r.GenerationID),
		GeneratedAt:   r.GeneratedAt,
		HashAlgorithm: types.HashAlgorithm(r.HashAlgorithm),
		Model:         r.Model,
		PromptVersion: r.PromptVersion,
		RawResponse:   r.RawResponse,
	}
	entry.Coordinate = coord
	entry.Coordinate = entry.LabeledCoordinate()

	if err := entry.Validate(); err != nil {
		return nil, err
	}
	return entry, nil
}
