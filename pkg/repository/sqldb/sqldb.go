// Package sqldb is the SQL coordinate cache. The same schema and queries serve SQLite
// (modernc.org/sqlite, pure Go) and PostgreSQL (lib/pq) through sqlx.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anchorpoint/pkg/domain/interfaces"
	"github.com/secmon-lab/anchorpoint/pkg/domain/model"
	"github.com/secmon-lab/anchorpoint/pkg/domain/types"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS coordinates (
	concept         TEXT PRIMARY KEY,
	schema_version  INTEGER NOT NULL,
	love            DOUBLE PRECISION NOT NULL,
	power           DOUBLE PRECISION NOT NULL,
	wisdom          DOUBLE PRECISION NOT NULL,
	justice         DOUBLE PRECISION NOT NULL,
	method          TEXT NOT NULL,
	generation_id   TEXT NOT NULL DEFAULT '',
	generated_at    BIGINT NOT NULL DEFAULT 0,
	hash_algorithm  TEXT NOT NULL DEFAULT '',
	model           TEXT NOT NULL DEFAULT '',
	prompt_version  TEXT NOT NULL DEFAULT '',
	raw_response    TEXT NOT NULL DEFAULT ''
);
`

const columns = `concept, schema_version, love, power, wisdom, justice, method, generation_id,
	generated_at, hash_algorithm, model, prompt_version, raw_response`

const upsertQuery = `INSERT INTO coordinates (` + columns + `) VALUES (
	:concept, :schema_version, :love, :power, :wisdom, :justice, :method, :generation_id,
	:generated_at, :hash_algorithm, :model, :prompt_version, :raw_response
) ON CONFLICT (concept) DO UPDATE SET
	schema_version = excluded.schema_version,
	love = excluded.love,
	power = excluded.power,
	wisdom = excluded.wisdom,
	justice = excluded.justice,
	method = excluded.method,
	generation_id = excluded.generation_id,
	generated_at = excluded.generated_at,
	hash_algorithm = excluded.hash_algorithm,
	model = excluded.model,
	prompt_version = excluded.prompt_version,
	raw_response = excluded.raw_response`

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

type row struct {
	Concept       string  `db:"concept"`
	SchemaVersion int     `db:"schema_version"`
	Love          float64 `db:"love"`
	Power         float64 `db:"power"`
	Wisdom        float64 `db:"wisdom"`
	Justice       float64 `db:"justice"`
	Method        string  `db:"method"`
	GenerationID  string  `db:"generation_id"`
	GeneratedAt   int64   `db:"generated_at"`
	HashAlgorithm string  `db:"hash_algorithm"`
	Model         string  `db:"model"`
	PromptVersion string  `db:"prompt_version"`
	RawResponse   string  `db:"raw_response"`
}

func toRow(entry *model.Entry) *row {
	r := entry.ToRecord()
	var generatedAt int64
	if !r.GeneratedAt.IsZero() {
		generatedAt = r.GeneratedAt.UnixNano()
	}
	return &row{
		Concept:       r.Concept,
		SchemaVersion: r.SchemaVersion,
		Love:          r.Love,
		Power:         r.Power,
		Wisdom:        r.Wisdom,
		Justice:       r.Justice,
		Method:        r.Method,
		GenerationID:  r.GenerationID,
		GeneratedAt:   generatedAt,
		HashAlgorithm: r.HashAlgorithm,
		Model:         r.Model,
		PromptVersion: r.PromptVersion,
		RawResponse:   r.RawResponse,
	}
}

func (r *row) toEntry() (*model.Entry, error) {
	record := &model.Record{
		SchemaVersion: r.SchemaVersion,
		Concept:       r.Concept,
		Love:          r.Love,
		Power:         r.Power,
		Wisdom:        r.Wisdom,
		Justice:       r.Justice,
		Method:        r.Method,
		GenerationID:  r.GenerationID,
		HashAlgorithm: r.HashAlgorithm,
		Model:         r.Model,
		PromptVersion: r.PromptVersion,
		RawResponse:   r.RawResponse,
	}
	if r.GeneratedAt != 0 {
		record.GeneratedAt = time.Unix(0, r.GeneratedAt).UTC()
	}
	return record.ToEntry()
}

// DB is a CoordinateRepository over a SQL database
type DB struct {
	db      *sqlx.DB
	backend types.Backend
}

var _ interfaces.CoordinateRepository = &DB{}

// NewSQLite opens or creates a SQLite cache file and applies the schema
func NewSQLite(ctx context.Context, path string) (*DB, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, goerr.Wrap(unavailable(err), "failed to open sqlite database",
			goerr.V("path", path), goerr.V(model.BackendKey, types.BackendSQLite))
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, goerr.Wrap(unavailable(err), "failed to configure sqlite", goerr.V("pragma", pragma))
		}
	}

	return newDB(ctx, db, types.BackendSQLite)
}

// NewPostgres connects to PostgreSQL with the given DSN and applies the schema
func NewPostgres(ctx context.Context, dsn string) (*DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, goerr.Wrap(unavailable(err), "failed to connect to postgres",
			goerr.V(model.BackendKey, types.BackendPostgres))
	}
	return newDB(ctx, db, types.BackendPostgres)
}

func newDB(ctx context.Context, db *sqlx.DB, backend types.Backend) (*DB, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(unavailable(err), "failed to apply schema", goerr.V(model.BackendKey, backend))
	}
	return &DB{db: db, backend: backend}, nil
}

// Backend reports which SQL engine is behind the repository
func (d *DB) Backend() types.Backend {
	return d.backend
}

func (d *DB) Get(ctx context.Context, concept string) (*model.Entry, error) {
	var r row
	query := d.db.Rebind(`SELECT ` + columns + ` FROM coordinates WHERE concept = ?`)
	if err := d.db.GetContext(ctx, &r, query, concept); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, goerr.Wrap(model.ErrNotFound, "coordinate not cached", goerr.V(model.ConceptKey, concept))
		}
		return nil, goerr.Wrap(unavailable(err), "failed to get coordinate",
			goerr.V(model.ConceptKey, concept), goerr.V(model.BackendKey, d.backend))
	}
	return r.toEntry()
}

func (d *DB) Put(ctx context.Context, entry *model.Entry) error {
	if err := entry.Validate(); err != nil {
		return goerr.Wrap(err, "refusing to cache invalid entry", goerr.V(model.ConceptKey, entry.Concept))
	}

	if _, err := d.db.NamedExecContext(ctx, upsertQuery, toRow(entry)); err != nil {
		return goerr.Wrap(unavailable(err), "failed to put coordinate",
			goerr.V(model.ConceptKey, entry.Concept), goerr.V(model.BackendKey, d.backend))
	}
	return nil
}

func (d *DB) GetMany(ctx context.Context, concepts []string) (map[string]*model.Entry, error) {
	result := make(map[string]*model.Entry, len(concepts))
	if len(concepts) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(`SELECT `+columns+` FROM coordinates WHERE concept IN (?)`, concepts)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build query")
	}

	var rows []row
	if err := d.db.SelectContext(ctx, &rows, d.db.Rebind(query), args...); err != nil {
		return nil, goerr.Wrap(unavailable(err), "failed to get coordinates",
			goerr.V("count", len(concepts)), goerr.V(model.BackendKey, d.backend))
	}

	for i := range rows {
		entry, err := rows[i].toEntry()
		if err != nil {
			return nil, err
		}
		result[entry.Concept] = entry
	}
	return result, nil
}

// List returns entries in byte order of the concept regardless of database collation
func (d *DB) List(ctx context.Context) ([]*model.Entry, error) {
	var rows []row
	if err := d.db.SelectContext(ctx, &rows, `SELECT `+columns+` FROM coordinates`); err != nil {
		return nil, goerr.Wrap(unavailable(err), "failed to list coordinates", goerr.V(model.BackendKey, d.backend))
	}

	entries := make([]*model.Entry, 0, len(rows))
	for i := range rows {
		entry, err := rows[i].toEntry()
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

func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

func unavailable(err error) error {
	return errors.Join(model.ErrCacheUnavailable, err)
}
