package repository_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/anchorpoint/pkg/domain/interfaces"
	"github.com/secmon-lab/anchorpoint/pkg/domain/model"
	"github.com/secmon-lab/anchorpoint/pkg/domain/types"
	"github.com/secmon-lab/anchorpoint/pkg/repository/bolt"
	"github.com/secmon-lab/anchorpoint/pkg/repository/firestore"
	"github.com/secmon-lab/anchorpoint/pkg/repository/memory"
	"github.com/secmon-lab/anchorpoint/pkg/repository/sqldb"
)

func newLLMEntry(t *testing.T, concept string, values [4]float64) *model.Entry {
	t.Helper()
	coord, err := model.NewCoordinateFromValues(values)
	gt.NoError(t, err).Required()

	entry := &model.Entry{
		Concept:       concept,
		Coordinate:    coord,
		Method:        types.MethodLLM,
		GenerationID:  model.NewGenerationID(),
		GeneratedAt:   time.Date(2026, 10, 17, 9, 30, 15, 123456000, time.UTC),
		Model:         "gemini-2.5-flash",
		PromptVersion: "lpwj-rubric-v1",
		RawResponse:   "Love: 0.1\nPower: 0.2\nWisdom: 0.3\nJustice: 0.4",
	}
	entry.Coordinate = entry.LabeledCoordinate()
	return entry
}

func newHashEntry(t *testing.T, concept string, values [4]float64) *model.Entry {
	t.Helper()
	coord, err := model.NewCoordinateFromValues(values)
	gt.NoError(t, err).Required()

	entry := &model.Entry{
		Concept:       concept,
		Coordinate:    coord,
		Method:        types.MethodHash,
		GenerationID:  model.NewGenerationID(),
		GeneratedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		HashAlgorithm: types.HashSHA256,
	}
	entry.Coordinate = entry.LabeledCoordinate()
	return entry
}

// uniq returns a concept unique to this test run so that shared backends do not collide
func uniq(name string) string {
	return name + "-" + uuid.NewString()
}

func runCoordinateRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.CoordinateRepository) {
	t.Helper()

	t.Run("Get returns ErrNotFound for missing concept", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		entry, err := repo.Get(ctx, uniq("missing"))
		gt.Error(t, err).Is(model.ErrNotFound)
		gt.Value(t, entry).Nil()
	})

	t.Run("Put then Get returns the stored entry", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		concept := uniq("Mercy")
		stored := newLLMEntry(t, concept, [4]float64{0.9, 0.6, 0.8, 0.7})
		gt.NoError(t, repo.Put(ctx, stored)).Required()

		got, err := repo.Get(ctx, concept)
		gt.NoError(t, err).Required()
		gt.Value(t, got.Concept).Equal(concept)
		gt.Value(t, got.Coordinate.Values()).Equal(stored.Coordinate.Values())
		gt.Value(t, got.Coordinate.Label()).Equal(concept)
		gt.Value(t, got.Method).Equal(types.MethodLLM)
		gt.Value(t, got.GenerationID).Equal(stored.GenerationID)
		gt.Bool(t, got.GeneratedAt.Equal(stored.GeneratedAt)).True()
		gt.Value(t, got.Model).Equal(stored.Model)
		gt.Value(t, got.PromptVersion).Equal(stored.PromptVersion)
		gt.Value(t, got.RawResponse).Equal(stored.RawResponse)
	})

	t.Run("hash entries keep their algorithm", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		concept := uniq("JEHOVAH")
		stored := newHashEntry(t, concept, [4]float64{0.7464074716920739, 0.8994445678480898, 0.8709558610147256, 0.9853176794670347})
		gt.NoError(t, repo.Put(ctx, stored)).Required()

		got, err := repo.Get(ctx, concept)
		gt.NoError(t, err).Required()
		gt.Value(t, got.HashAlgorithm).Equal(types.HashSHA256)
		gt.Value(t, got.Coordinate.Values()).Equal(stored.Coordinate.Values())
		gt.Value(t, got.Coordinate.Provenance().Source).Equal(string(types.HashSHA256))
	})

	t.Run("Put overwrites previous entry", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		concept := uniq("Grace")
		gt.NoError(t, repo.Put(ctx, newLLMEntry(t, concept, [4]float64{0.1, 0.1, 0.1, 0.1}))).Required()
		second := newLLMEntry(t, concept, [4]float64{0.5, 0.6, 0.7, 0.8})
		gt.NoError(t, repo.Put(ctx, second)).Required()

		got, err := repo.Get(ctx, concept)
		gt.NoError(t, err).Required()
		gt.Value(t, got.Coordinate.Values()).Equal([4]float64{0.5, 0.6, 0.7, 0.8})
		gt.Value(t, got.GenerationID).Equal(second.GenerationID)
	})

	t.Run("concepts are case sensitive opaque keys", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		suffix := uuid.NewString()
		upper := "Love-" + suffix
		lower := "love-" + suffix
		gt.NoError(t, repo.Put(ctx, newLLMEntry(t, upper, [4]float64{1, 1, 1, 1}))).Required()

		_, err := repo.Get(ctx, lower)
		gt.Error(t, err).Is(model.ErrNotFound)

		unicode := "慈悲/mercy " + suffix
		gt.NoError(t, repo.Put(ctx, newLLMEntry(t, unicode, [4]float64{0, 0, 0, 0}))).Required()
		got, err := repo.Get(ctx, unicode)
		gt.NoError(t, err).Required()
		gt.Value(t, got.Concept).Equal(unicode)
	})

	t.Run("Put rejects invalid entries", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		entry := newLLMEntry(t, uniq("bad"), [4]float64{0.1, 0.2, 0.3, 0.4})
		entry.Method = "oracle"
		gt.Error(t, repo.Put(ctx, entry)).Is(model.ErrInvalidInput)
	})

	t.Run("GetMany returns only present concepts", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		a, b, missing := uniq("a"), uniq("b"), uniq("missing")
		gt.NoError(t, repo.Put(ctx, newLLMEntry(t, a, [4]float64{0.1, 0.2, 0.3, 0.4}))).Required()
		gt.NoError(t, repo.Put(ctx, newHashEntry(t, b, [4]float64{0.4, 0.3, 0.2, 0.1}))).Required()

		got, err := repo.GetMany(ctx, []string{a, missing, b})
		gt.NoError(t, err).Required()
		gt.Number(t, len(got)).Equal(2)
		gt.Map(t, got).HasKey(a)
		gt.Map(t, got).HasKey(b)
		gt.Value(t, got[b].Coordinate.Values()).Equal([4]float64{0.4, 0.3, 0.2, 0.1})

		empty, err := repo.GetMany(ctx, nil)
		gt.NoError(t, err).Required()
		gt.Number(t, len(empty)).Equal(0)
	})

	t.Run("List returns entries sorted by concept", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		prefix := "list-" + uuid.NewString() + "-"
		for _, name := range []string{"charlie", "alpha", "Bravo"} {
			gt.NoError(t, repo.Put(ctx, newLLMEntry(t, prefix+name, [4]float64{0.5, 0.5, 0.5, 0.5}))).Required()
		}

		entries, err := repo.List(ctx)
		gt.NoError(t, err).Required()

		var names []string
		for _, e := range entries {
			if strings.HasPrefix(e.Concept, prefix) {
				names = append(names, strings.TrimPrefix(e.Concept, prefix))
			}
		}
		gt.Value(t, names).Equal([]string{"Bravo", "alpha", "charlie"})
	})
}

func newMemoryRepository(t *testing.T) interfaces.CoordinateRepository {
	return memory.New()
}

func newBoltRepository(t *testing.T) interfaces.CoordinateRepository {
	t.Helper()
	repo, err := bolt.New(filepath.Join(t.TempDir(), "cache.db"))
	gt.NoError(t, err).Required()
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func newSQLiteRepository(t *testing.T) interfaces.CoordinateRepository {
	t.Helper()
	repo, err := sqldb.NewSQLite(context.Background(), filepath.Join(t.TempDir(), "cache.sqlite"))
	gt.NoError(t, err).Required()
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func newPostgresRepository(t *testing.T) interfaces.CoordinateRepository {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	repo, err := sqldb.NewPostgres(context.Background(), dsn)
	gt.NoError(t, err).Required()
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func newFirestoreRepository(t *testing.T) interfaces.CoordinateRepository {
	t.Helper()

	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	if projectID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID not set")
	}

	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")
	if databaseID == "" {
		t.Skip("TEST_FIRESTORE_DATABASE_ID not set")
	}

	ctx := context.Background()
	repo, err := firestore.New(ctx, projectID, databaseID,
		firestore.WithCollectionPrefix("test_"+time.Now().Format("20060102_150405")))
	gt.NoError(t, err).Required()
	t.Cleanup(func() { _ = repo.Close() })

	return repo
}

func TestMemoryCoordinateRepository(t *testing.T) {
	runCoordinateRepositoryTest(t, newMemoryRepository)
}

func TestBoltCoordinateRepository(t *testing.T) {
	runCoordinateRepositoryTest(t, newBoltRepository)
}

func TestSQLiteCoordinateRepository(t *testing.T) {
	runCoordinateRepositoryTest(t, newSQLiteRepository)
}

func TestPostgresCoordinateRepository(t *testing.T) {
	runCoordinateRepositoryTest(t, newPostgresRepository)
}

func TestFirestoreCoordinateRepository(t *testing.T) {
	runCoordinateRepositoryTest(t, newFirestoreRepository)
}

func TestDurableBackendsSurviveReopen(t *testing.T) {
	ctx := context.Background()

	t.Run("bolt", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cache.db")
		repo, err := bolt.New(path)
		gt.NoError(t, err).Required()
		gt.NoError(t, repo.Put(ctx, newLLMEntry(t, "Mercy", [4]float64{0.9, 0.6, 0.8, 0.7}))).Required()
		gt.NoError(t, repo.Close()).Required()

		reopened, err := bolt.New(path)
		gt.NoError(t, err).Required()
		defer func() { _ = reopened.Close() }()

		got, err := reopened.Get(ctx, "Mercy")
		gt.NoError(t, err).Required()
		gt.Value(t, got.Coordinate.Values()).Equal([4]float64{0.9, 0.6, 0.8, 0.7})
	})

	t.Run("sqlite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cache.sqlite")
		repo, err := sqldb.NewSQLite(ctx, path)
		gt.NoError(t, err).Required()
		gt.NoError(t, repo.Put(ctx, newLLMEntry(t, "Mercy", [4]float64{0.9, 0.6, 0.8, 0.7}))).Required()
		gt.NoError(t, repo.Close()).Required()

		reopened, err := sqldb.NewSQLite(ctx, path)
		gt.NoError(t, err).Required()
		defer func() { _ = reopened.Close() }()

		got, err := reopened.Get(ctx, "Mercy")
		gt.NoError(t, err).Required()
		gt.Value(t, got.Coordinate.Values()).Equal([4]float64{0.9, 0.6, 0.8, 0.7})
		gt.Value(t, reopened.Backend()).Equal(types.BackendSQLite)
	})
}
