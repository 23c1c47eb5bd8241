package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anchorpoint/pkg/domain/interfaces"
	"github.com/secmon-lab/anchorpoint/pkg/domain/model"
	"github.com/secmon-lab/anchorpoint/pkg/domain/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	// CoordinatesCollection is the collection name without prefix
	CoordinatesCollection = "coordinates"

	// Maximum document references per GetAll
	firestoreGetAllLimit = 100
)

type Firestore struct {
	client           *firestore.Client
	collectionPrefix string
}

var _ interfaces.CoordinateRepository = &Firestore{}

type Option func(*Firestore)

func WithCollectionPrefix(prefix string) Option {
	return func(f *Firestore) {
		f.collectionPrefix = prefix
	}
}

// New connects to Firestore. An empty databaseID selects the default database.
func New(ctx context.Context, projectID, databaseID string, opts ...Option) (*Firestore, error) {
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}

	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(errors.Join(model.ErrCacheUnavailable, err), "failed to create firestore client",
			goerr.V("projectID", projectID),
			goerr.V("databaseID", databaseID),
			goerr.V(model.BackendKey, types.BackendFirestore))
	}

	f := &Firestore{client: client}
	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

// coordinateDoc is the Firestore persistence model
type coordinateDoc struct {
	SchemaVersion int       `firestore:"schema_version"`
	Concept       string    `firestore:"concept"`
	Love          float64   `firestore:"love"`
	Power         float64   `firestore:"power"`
	Wisdom        float64   `firestore:"wisdom"`
	Justice       float64   `firestore:"justice"`
	Distance      float64   `firestore:"distance"`
	Zone          string    `firestore:"zone"`
	Method        string    `firestore:"method"`
	GenerationID  string    `firestore:"generation_id"`
	GeneratedAt   time.Time `firestore:"generated_at"`
	HashAlgorithm string    `firestore:"hash_algorithm"`
	Model         string    `firestore:"model"`
	PromptVersion string    `firestore:"prompt_version"`
	RawResponse   string    `firestore:"raw_response"`
}

func toDoc(entry *model.Entry) *coordinateDoc {
	r := entry.ToRecord()
	return &coordinateDoc{
		SchemaVersion: r.SchemaVersion,
		Concept:       r.Concept,
		Love:          r.Love,
		Power:         r.Power,
		Wisdom:        r.Wisdom,
		Justice:       r.Justice,
		Distance:      r.Distance,
		Zone:          r.Zone,
		Method:        r.Method,
		GenerationID:  r.GenerationID,
		GeneratedAt:   r.GeneratedAt,
		HashAlgorithm: r.HashAlgorithm,
		Model:         r.Model,
		PromptVersion: r.PromptVersion,
		RawResponse:   r.RawResponse,
	}
}

func (d *coordinateDoc) toEntry() (*model.Entry, error) {
	record := &model.Record{
		SchemaVersion: d.SchemaVersion,
		Concept:       d.Concept,
		Love:          d.Love,
		Power:         d.Power,
		Wisdom:        d.Wisdom,
		Justice:       d.Justice,
		Method:        d.Method,
		GenerationID:  d.GenerationID,
		GeneratedAt:   d.GeneratedAt,
		HashAlgorithm: d.HashAlgorithm,
		Model:         d.Model,
		PromptVersion: d.PromptVersion,
		RawResponse:   d.RawResponse,
	}
	return record.ToEntry()
}

// CollectionName returns the coordinates collection name for a prefix
func CollectionName(prefix string) string {
	if prefix != "" {
		return prefix + "_" + CoordinatesCollection
	}
	return CoordinatesCollection
}

func (f *Firestore) collection() *firestore.CollectionRef {
	return f.client.Collection(CollectionName(f.collectionPrefix))
}

// docID maps an arbitrary concept onto a valid document ID. Concepts may contain '/'
// or exceed the 1500 byte ID limit.
func docID(concept string) string {
	sum := sha256.Sum256([]byte(concept))
	return hex.EncodeToString(sum[:])
}

func (f *Firestore) Get(ctx context.Context, concept string) (*model.Entry, error) {
	snap, err := f.collection().Doc(docID(concept)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrNotFound, "coordinate not cached", goerr.V(model.ConceptKey, concept))
		}
		return nil, goerr.Wrap(errors.Join(model.ErrCacheUnavailable, err), "failed to get coordinate",
			goerr.V(model.ConceptKey, concept))
	}

	var doc coordinateDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal coordinate", goerr.V(model.ConceptKey, concept))
	}
	return doc.toEntry()
}

func (f *Firestore) Put(ctx context.Context, entry *model.Entry) error {
	if err := entry.Validate(); err != nil {
		return goerr.Wrap(err, "refusing to cache invalid entry", goerr.V(model.ConceptKey, entry.Concept))
	}

	if _, err := f.collection().Doc(docID(entry.Concept)).Set(ctx, toDoc(entry)); err != nil {
		return goerr.Wrap(errors.Join(model.ErrCacheUnavailable, err), "failed to put coordinate",
			goerr.V(model.ConceptKey, entry.Concept))
	}
	return nil
}

// GetMany splits the lookup into GetAll batches
func (f *Firestore) GetMany(ctx context.Context, concepts []string) (map[string]*model.Entry, error) {
	result := make(map[string]*model.Entry, len(concepts))

	for i := 0; i < len(concepts); i += firestoreGetAllLimit {
		end := min(i+firestoreGetAllLimit, len(concepts))
		batch := concepts[i:end]

		refs := make([]*firestore.DocumentRef, len(batch))
		for j, concept := range batch {
			refs[j] = f.collection().Doc(docID(concept))
		}

		snaps, err := f.client.GetAll(ctx, refs)
		if err != nil {
			return nil, goerr.Wrap(errors.Join(model.ErrCacheUnavailable, err), "failed to batch get coordinates",
				goerr.V("count", len(batch)))
		}

		for idx, snap := range snaps {
			if !snap.Exists() {
				continue
			}
			var doc coordinateDoc
			if err := snap.DataTo(&doc); err != nil {
				return nil, goerr.Wrap(err, "failed to unmarshal coordinate", goerr.V(model.ConceptKey, batch[idx]))
			}
			entry, err := doc.toEntry()
			if err != nil {
				return nil, err
			}
			result[entry.Concept] = entry
		}
	}

	return result, nil
}

func (f *Firestore) List(ctx context.Context) ([]*model.Entry, error) {
	iter := f.collection().Documents(ctx)
	defer iter.Stop()

	var entries []*model.Entry
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(errors.Join(model.ErrCacheUnavailable, err), "failed to iterate coordinates")
		}

		var doc coordinateDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal coordinate", goerr.V("doc_id", snap.Ref.ID))
		}
		entry, err := doc.toEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	slices.SortFunc(entries, func(a, b *model.Entry) int {
		return strings.Compare(a.Concept, b.Concept)
	})
	return entries, nil
}

func (f *Firestore) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}
