// Package bolt is the single-file coordinate cache backed by go.etcd.io/bbolt.
// Values are model.Record JSON documents keyed by the concept bytes.
package bolt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anchorpoint/pkg/domain/interfaces"
	"github.com/secmon-lab/anchorpoint/pkg/domain/model"
	"github.com/secmon-lab/anchorpoint/pkg/domain/types"
	"go.etcd.io/bbolt"
)

var bucketCoordinates = []byte("coordinates")

const defaultOpenTimeout = 5 * time.Second

type Bolt struct {
	db   *bbolt.DB
	path string
}

var _ interfaces.CoordinateRepository = &Bolt{}

type Option func(*options)

type options struct {
	openTimeout time.Duration
}

// WithOpenTimeout bounds how long New waits for the file lock held by another process
func WithOpenTimeout(d time.Duration) Option {
	return func(o *options) {
		o.openTimeout = d
	}
}

// New opens or creates the cache file at path
func New(path string, opts ...Option) (*Bolt, error) {
	o := options{openTimeout: defaultOpenTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: o.openTimeout})
	if err != nil {
		return nil, goerr.Wrap(unavailable(err), "failed to open cache file",
			goerr.V("path", path),
			goerr.V(model.BackendKey, types.BackendFile))
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCoordinates)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(unavailable(err), "failed to create coordinates bucket", goerr.V("path", path))
	}

	return &Bolt{db: db, path: path}, nil
}

func (b *Bolt) Get(ctx context.Context, concept string) (*model.Entry, error) {
	var data []byte
	if err := b.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketCoordinates).Get([]byte(concept)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	}); err != nil {
		return nil, goerr.Wrap(unavailable(err), "failed to read cache file",
			goerr.V(model.ConceptKey, concept), goerr.V("path", b.path))
	}

	if data == nil {
		return nil, goerr.Wrap(model.ErrNotFound, "coordinate not cached", goerr.V(model.ConceptKey, concept))
	}
	return decode(concept, data)
}

func (b *Bolt) Put(ctx context.Context, entry *model.Entry) error {
	if err := entry.Validate(); err != nil {
		return goerr.Wrap(err, "refusing to cache invalid entry", goerr.V(model.ConceptKey, entry.Concept))
	}

	data, err := json.Marshal(entry.ToRecord())
	if err != nil {
		return goerr.Wrap(err, "failed to encode record", goerr.V(model.ConceptKey, entry.Concept))
	}

	if err := b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCoordinates).Put([]byte(entry.Concept), data)
	}); err != nil {
		return goerr.Wrap(unavailable(err), "failed to write cache file",
			goerr.V(model.ConceptKey, entry.Concept), goerr.V("path", b.path))
	}
	return nil
}

func (b *Bolt) GetMany(ctx context.Context, concepts []string) (map[string]*model.Entry, error) {
	raw := make(map[string][]byte, len(concepts))
	if err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketCoordinates)
		for _, concept := range concepts {
			if v := bucket.Get([]byte(concept)); v != nil {
				raw[concept] = append([]byte(nil), v...)
			}
		}
		return nil
	}); err != nil {
		return nil, goerr.Wrap(unavailable(err), "failed to read cache file", goerr.V("path", b.path))
	}

	result := make(map[string]*model.Entry, len(raw))
	for concept, data := range raw {
		entry, err := decode(concept, data)
		if err != nil {
			return nil, err
		}
		result[concept] = entry
	}
	return result, nil
}

// List walks the bucket in key order, which is byte order of the concept
func (b *Bolt) List(ctx context.Context) ([]*model.Entry, error) {
	var entries []*model.Entry
	if err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCoordinates).ForEach(func(k, v []byte) error {
			entry, err := decode(string(k), v)
			if err != nil {
				return err
			}
			entries = append(entries, entry)
			return nil
		})
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to list cache file", goerr.V("path", b.path))
	}
	return entries, nil
}

func (b *Bolt) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func decode(concept string, data []byte) (*model.Entry, error) {
	var record model.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, goerr.Wrap(err, "failed to decode record", goerr.V(model.ConceptKey, concept))
	}
	return record.ToEntry()
}
