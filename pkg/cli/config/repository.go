package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anchorpoint/pkg/domain/interfaces"
	"github.com/secmon-lab/anchorpoint/pkg/domain/types"
	"github.com/secmon-lab/anchorpoint/pkg/repository/bolt"
	"github.com/secmon-lab/anchorpoint/pkg/repository/firestore"
	"github.com/secmon-lab/anchorpoint/pkg/repository/memory"
	"github.com/secmon-lab/anchorpoint/pkg/repository/sqldb"
	"github.com/secmon-lab/anchorpoint/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// Default database files per engine, so switching backends never opens the other
// engine's file
const (
	defaultBoltPath   = "anchorpoint.bolt"
	defaultSQLitePath = "anchorpoint.sqlite"
)

// Repository holds CLI flags for the coordinate cache backend
type Repository struct {
	backend          string
	path             string
	dsn              string `masq:"secret"`
	projectID        string
	databaseID       string
	collectionPrefix string
}

// Flags returns CLI flags for repository configuration
func (r *Repository) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "cache-backend",
			Usage:       "Cache backend (file, sqlite, postgres, firestore, ephemeral)",
			Value:       string(types.BackendFile),
			Category:    "Cache",
			Sources:     cli.EnvVars("ANCHORPOINT_CACHE_BACKEND"),
			Destination: &r.backend,
		},
		&cli.StringFlag{
			Name:        "cache-path",
			Usage:       "Database file for the file and sqlite backends (default: anchorpoint.bolt or anchorpoint.sqlite)",
			Category:    "Cache",
			Sources:     cli.EnvVars("ANCHORPOINT_CACHE_PATH"),
			Destination: &r.path,
		},
		&cli.StringFlag{
			Name:        "postgres-dsn",
			Usage:       "PostgreSQL connection string (required when using postgres backend)",
			Category:    "Cache",
			Sources:     cli.EnvVars("ANCHORPOINT_POSTGRES_DSN"),
			Destination: &r.dsn,
		},
		&cli.StringFlag{
			Name:        "firestore-project-id",
			Usage:       "Firestore Project ID (required when using firestore backend)",
			Category:    "Cache",
			Sources:     cli.EnvVars("ANCHORPOINT_FIRESTORE_PROJECT_ID"),
			Destination: &r.projectID,
		},
		&cli.StringFlag{
			Name:        "firestore-database-id",
			Usage:       "Firestore Database ID",
			Category:    "Cache",
			Sources:     cli.EnvVars("ANCHORPOINT_FIRESTORE_DATABASE_ID"),
			Destination: &r.databaseID,
		},
		&cli.StringFlag{
			Name:        "firestore-collection-prefix",
			Usage:       "Prefix prepended to Firestore collection names",
			Category:    "Cache",
			Sources:     cli.EnvVars("ANCHORPOINT_FIRESTORE_COLLECTION_PREFIX"),
			Destination: &r.collectionPrefix,
		},
	}
}

// LogAttrs returns log attributes for the repository configuration
func (r *Repository) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("backend", r.backend),
		slog.String("path", r.path),
		slog.Bool("dsn_set", r.dsn != ""),
		slog.String("project_id", r.projectID),
		slog.String("database_id", r.databaseID),
	}
}

// Backend returns the configured backend type
func (r *Repository) Backend() types.Backend {
	return types.Backend(r.backend)
}

// ProjectID returns the Firestore project ID
func (r *Repository) ProjectID() string {
	return r.projectID
}

// DatabaseID returns the Firestore database ID
func (r *Repository) DatabaseID() string {
	return r.databaseID
}

// CollectionPrefix returns the Firestore collection prefix
func (r *Repository) CollectionPrefix() string {
	return r.collectionPrefix
}

// Configure opens the cache for the configured backend.
// The caller is responsible for calling Close() on the returned repository.
func (r *Repository) Configure(ctx context.Context) (interfaces.CoordinateRepository, error) {
	backend := types.Backend(r.backend)
	if err := backend.Validate(); err != nil {
		return nil, goerr.Wrap(ErrInvalidConfig, "invalid cache backend", goerr.V("backend", r.backend))
	}

	switch backend {
	case types.BackendFile:
		repo, err := bolt.New(r.pathOrDefault())
		if err != nil {
			return nil, goerr.Wrap(err, "failed to open file cache")
		}
		logging.Default().Info("Using file cache", "path", r.pathOrDefault())
		return repo, nil

	case types.BackendSQLite:
		repo, err := sqldb.NewSQLite(ctx, r.pathOrDefault())
		if err != nil {
			return nil, goerr.Wrap(err, "failed to open sqlite cache")
		}
		logging.Default().Info("Using SQLite cache", "path", r.pathOrDefault())
		return repo, nil

	case types.BackendPostgres:
		if r.dsn == "" {
			return nil, goerr.Wrap(ErrInvalidConfig, "postgres-dsn is required when using postgres backend")
		}
		repo, err := sqldb.NewPostgres(ctx, r.dsn)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to connect postgres cache")
		}
		logging.Default().Info("Using PostgreSQL cache")
		return repo, nil

	case types.BackendFirestore:
		if r.projectID == "" {
			return nil, goerr.Wrap(ErrInvalidConfig, "firestore-project-id is required when using firestore backend")
		}
		repo, err := firestore.New(ctx, r.projectID, r.databaseID,
			firestore.WithCollectionPrefix(r.collectionPrefix))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize firestore cache")
		}
		logging.Default().Info("Using Firestore cache",
			"project_id", r.projectID,
			"database_id", r.databaseID,
		)
		return repo, nil

	default:
		logging.Default().Warn("Using ephemeral cache, entries are lost on exit")
		return memory.New(), nil
	}
}

func (r *Repository) pathOrDefault() string {
	if r.path != "" {
		return r.path
	}
	if types.Backend(r.backend) == types.BackendSQLite {
		return defaultSQLitePath
	}
	return defaultBoltPath
}
