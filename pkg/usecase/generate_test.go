package usecase_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/anchorpoint/pkg/domain/model"
	"github.com/secmon-lab/anchorpoint/pkg/domain/types"
	"github.com/secmon-lab/anchorpoint/pkg/repository/memory"
	"github.com/secmon-lab/anchorpoint/pkg/service/hash"
	"github.com/secmon-lab/anchorpoint/pkg/usecase"
	"github.com/secmon-lab/anchorpoint/pkg/utils/logging"
)

const testPromptVersion = "test-prompt-v2"

// fakeSource produces LLM-like entries whose values come from the sha256 generator
type fakeSource struct {
	calls     atomic.Int32
	inFlight  atomic.Int32
	maxFlight atomic.Int32
	produceFn func(ctx context.Context, concept string) (*model.Entry, error)
}

func (s *fakeSource) Method() types.Method {
	return types.MethodLLM
}

func (s *fakeSource) Produce(ctx context.Context, concept string) (*model.Entry, error) {
	s.calls.Add(1)
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		cur := s.maxFlight.Load()
		if n <= cur || s.maxFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	if s.produceFn != nil {
		return s.produceFn(ctx, concept)
	}
	return llmEntry(concept, testPromptVersion)
}

func llmEntry(concept, promptVersion string) (*model.Entry, error) {
	coord, err := hash.Coordinate(types.HashSHA256, concept)
	if err != nil {
		return nil, err
	}
	entry := &model.Entry{
		Concept:       concept,
		Coordinate:    coord,
		Method:        types.MethodLLM,
		GenerationID:  model.NewGenerationID(),
		GeneratedAt:   time.Now().UTC(),
		Model:         "fake-model",
		PromptVersion: promptVersion,
		RawResponse:   "Love: 0.1\nPower: 0.2\nWisdom: 0.3\nJustice: 0.4",
	}
	entry.Coordinate = entry.LabeledCoordinate()
	return entry, nil
}

// flakyRepository fails Get or Put on demand
type flakyRepository struct {
	*memory.Memory
	getErr error
	putErr error
}

func (r *flakyRepository) Get(ctx context.Context, concept string) (*model.Entry, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.Memory.Get(ctx, concept)
}

func (r *flakyRepository) GetMany(ctx context.Context, concepts []string) (map[string]*model.Entry, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.Memory.GetMany(ctx, concepts)
}

func (r *flakyRepository) Put(ctx context.Context, entry *model.Entry) error {
	if r.putErr != nil {
		return r.putErr
	}
	return r.Memory.Put(ctx, entry)
}

func newGenerator(t *testing.T, source *fakeSource, repo *memory.Memory, opts ...usecase.GeneratorOption) *usecase.Generator {
	t.Helper()
	g, err := usecase.NewGenerator(source, repo, opts...)
	gt.NoError(t, err).Required()
	return g
}

func TestNewGenerator(t *testing.T) {
	_, err := usecase.NewGenerator(nil, memory.New())
	gt.Error(t, err)

	_, err = usecase.NewGenerator(&fakeSource{}, memory.New(), usecase.WithConcurrency(0))
	gt.Error(t, err).Is(model.ErrInvalidInput)
}

func TestGenerateCaching(t *testing.T) {
	ctx := context.Background()

	t.Run("miss generates and writes through, hit makes no call", func(t *testing.T) {
		source := &fakeSource{}
		repo := memory.New()
		g := newGenerator(t, source, repo)

		first, err := g.Generate(ctx, "Mercy")
		gt.NoError(t, err).Required()
		gt.Value(t, source.calls.Load()).Equal(int32(1))

		cached, err := repo.Get(ctx, "Mercy")
		gt.NoError(t, err).Required()
		gt.Value(t, cached.Coordinate.Values()).Equal(first.Values())

		second, err := g.Generate(ctx, "Mercy")
		gt.NoError(t, err).Required()
		gt.Value(t, source.calls.Load()).Equal(int32(1))
		gt.Value(t, second.Values()).Equal(first.Values())
		gt.Value(t, second.Label()).Equal("Mercy")
	})

	t.Run("refresh bypasses cache and overwrites", func(t *testing.T) {
		source := &fakeSource{}
		repo := memory.New()
		g := newGenerator(t, source, repo)

		first, err := g.GenerateEntry(ctx, "Mercy", usecase.GenerateOptions{})
		gt.NoError(t, err).Required()

		refreshed, err := g.GenerateEntry(ctx, "Mercy", usecase.GenerateOptions{Refresh: true})
		gt.NoError(t, err).Required()
		gt.Value(t, source.calls.Load()).Equal(int32(2))
		gt.Value(t, refreshed.GenerationID).NotEqual(first.GenerationID)

		cached, err := repo.Get(ctx, "Mercy")
		gt.NoError(t, err).Required()
		gt.Value(t, cached.GenerationID).Equal(refreshed.GenerationID)
	})

	t.Run("concepts are case sensitive", func(t *testing.T) {
		source := &fakeSource{}
		g := newGenerator(t, source, memory.New())

		_, err := g.Generate(ctx, "Love")
		gt.NoError(t, err).Required()
		_, err = g.Generate(ctx, "love")
		gt.NoError(t, err).Required()
		gt.Value(t, source.calls.Load()).Equal(int32(2))
	})

	t.Run("invalid concept fails before any call", func(t *testing.T) {
		source := &fakeSource{}
		g := newGenerator(t, source, memory.New())

		_, err := g.Generate(ctx, string([]byte{0xc3, 0x28}))
		gt.Error(t, err).Is(model.ErrInvalidInput)
		gt.Value(t, source.calls.Load()).Equal(int32(0))
	})

	t.Run("source failure is surfaced and nothing is cached", func(t *testing.T) {
		source := &fakeSource{
			produceFn: func(ctx context.Context, concept string) (*model.Entry, error) {
				return nil, model.ErrMalformedResponse
			},
		}
		repo := memory.New()
		g := newGenerator(t, source, repo)

		_, err := g.Generate(ctx, "Mercy")
		gt.Error(t, err).Is(model.ErrMalformedResponse)

		_, err = repo.Get(ctx, "Mercy")
		gt.Error(t, err).Is(model.ErrNotFound)
	})

	t.Run("entries from another method are not reused", func(t *testing.T) {
		repo := memory.New()
		hashGen, err := hash.New(types.HashSHA256)
		gt.NoError(t, err).Required()
		hashEntry, err := hashGen.Produce(ctx, "Mercy")
		gt.NoError(t, err).Required()
		gt.NoError(t, repo.Put(ctx, hashEntry)).Required()

		source := &fakeSource{}
		g := newGenerator(t, source, repo)

		var logs bytes.Buffer
		logCtx := logging.With(ctx, slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelInfo})))

		entry, err := g.GenerateEntry(logCtx, "Mercy", usecase.GenerateOptions{})
		gt.NoError(t, err).Required()
		gt.Value(t, entry.Method).Equal(types.MethodLLM)
		gt.Value(t, source.calls.Load()).Equal(int32(1))
		gt.Bool(t, strings.Contains(logs.String(), "another method")).False()
	})
}

func TestGenerateStaleEntries(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T) *memory.Memory {
		repo := memory.New()
		old, err := llmEntry("Mercy", "test-prompt-v1")
		gt.NoError(t, err).Required()
		gt.NoError(t, repo.Put(ctx, old)).Required()
		return repo
	}

	t.Run("stale entry is served when refresh-stale is off", func(t *testing.T) {
		source := &fakeSource{}
		g := newGenerator(t, source, seed(t), usecase.WithPromptVersion(testPromptVersion))

		entry, err := g.GenerateEntry(ctx, "Mercy", usecase.GenerateOptions{})
		gt.NoError(t, err).Required()
		gt.Value(t, entry.PromptVersion).Equal("test-prompt-v1")
		gt.Bool(t, entry.IsStale(testPromptVersion)).True()
		gt.Value(t, source.calls.Load()).Equal(int32(0))
	})

	t.Run("stale entry is regenerated with refresh-stale", func(t *testing.T) {
		source := &fakeSource{}
		repo := seed(t)
		g := newGenerator(t, source, repo,
			usecase.WithPromptVersion(testPromptVersion),
			usecase.WithRefreshStale(true),
		)

		entry, err := g.GenerateEntry(ctx, "Mercy", usecase.GenerateOptions{})
		gt.NoError(t, err).Required()
		gt.Value(t, entry.PromptVersion).Equal(testPromptVersion)
		gt.Value(t, source.calls.Load()).Equal(int32(1))

		cached, err := repo.Get(ctx, "Mercy")
		gt.NoError(t, err).Required()
		gt.Value(t, cached.PromptVersion).Equal(testPromptVersion)
	})
}

func TestGenerateCacheUnavailable(t *testing.T) {
	ctx := context.Background()
	down := errors.New("connection refused")

	t.Run("get failure is fatal without degraded mode", func(t *testing.T) {
		source := &fakeSource{}
		repo := &flakyRepository{Memory: memory.New(), getErr: down}
		g, err := usecase.NewGenerator(source, repo)
		gt.NoError(t, err).Required()

		_, err = g.Generate(ctx, "Mercy")
		gt.Error(t, err).Is(model.ErrCacheUnavailable)
		gt.Bool(t, errors.Is(err, down)).True()
		gt.Value(t, source.calls.Load()).Equal(int32(0))
	})

	t.Run("put failure is fatal without degraded mode", func(t *testing.T) {
		source := &fakeSource{}
		repo := &flakyRepository{Memory: memory.New(), putErr: down}
		g, err := usecase.NewGenerator(source, repo)
		gt.NoError(t, err).Required()

		_, err = g.Generate(ctx, "Mercy")
		gt.Error(t, err).Is(model.ErrCacheUnavailable)
		gt.Value(t, source.calls.Load()).Equal(int32(1))
	})

	t.Run("degraded mode generates unpersisted", func(t *testing.T) {
		source := &fakeSource{}
		repo := &flakyRepository{Memory: memory.New(), getErr: down, putErr: down}
		g, err := usecase.NewGenerator(source, repo, usecase.WithDegradedMode(true))
		gt.NoError(t, err).Required()

		coord, err := g.Generate(ctx, "Mercy")
		gt.NoError(t, err).Required()
		gt.Value(t, coord.Label()).Equal("Mercy")
		gt.Value(t, source.calls.Load()).Equal(int32(1))

		result, err := g.GenerateBatch(ctx, []string{"Grace", "Hope"}, usecase.BatchOptions{})
		gt.NoError(t, err).Required()
		gt.Number(t, len(result.Entries)).Equal(2)
	})
}

func TestGenerateSingleFlight(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	source := &fakeSource{
		produceFn: func(ctx context.Context, concept string) (*model.Entry, error) {
			once.Do(func() { close(started) })
			<-release
			return llmEntry(concept, testPromptVersion)
		},
	}
	g := newGenerator(t, source, memory.New())

	const callers = 8
	coords := make([]model.Coordinate, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			coords[i], errs[i] = g.Generate(ctx, "Mercy")
		}()
	}

	<-started
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	gt.Value(t, source.calls.Load()).Equal(int32(1))
	for i := range callers {
		gt.NoError(t, errs[i]).Required()
		gt.Value(t, coords[i].Values()).Equal(coords[0].Values())
	}
}

func TestGenerateSingleFlightLeaderDeadline(t *testing.T) {
	started := make(chan struct{})
	var first atomic.Bool
	first.Store(true)

	source := &fakeSource{
		produceFn: func(ctx context.Context, concept string) (*model.Entry, error) {
			if first.CompareAndSwap(true, false) {
				close(started)
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return llmEntry(concept, testPromptVersion)
		},
	}
	g := newGenerator(t, source, memory.New())

	leaderCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var leaderErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, leaderErr = g.Generate(leaderCtx, "Mercy")
	}()

	<-started
	coord, err := g.Generate(context.Background(), "Mercy")
	gt.NoError(t, err).Required()
	gt.Value(t, coord.Label()).Equal("Mercy")

	wg.Wait()
	gt.Error(t, leaderErr).Is(context.DeadlineExceeded)
	gt.Value(t, source.calls.Load()).Equal(int32(2))
}

func TestGenerateBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("collapses duplicates and isolates failures", func(t *testing.T) {
		source := &fakeSource{
			produceFn: func(ctx context.Context, concept string) (*model.Entry, error) {
				if concept == "Chaos" {
					return nil, model.ErrMalformedResponse
				}
				return llmEntry(concept, testPromptVersion)
			},
		}
		g := newGenerator(t, source, memory.New())

		result, err := g.GenerateBatch(ctx, []string{"Mercy", "Grace", "Mercy", "Chaos"}, usecase.BatchOptions{Concurrency: 2})
		gt.NoError(t, err).Required()
		gt.Value(t, source.calls.Load()).Equal(int32(3))
		gt.Number(t, len(result.Entries)).Equal(2)
		gt.Map(t, result.Entries).HasKey("Mercy")
		gt.Map(t, result.Entries).HasKey("Grace")
		gt.Error(t, result.Errors["Chaos"]).Is(model.ErrMalformedResponse)
		gt.Number(t, len(result.Coordinates())).Equal(2)
	})

	t.Run("cached concepts make no calls", func(t *testing.T) {
		source := &fakeSource{}
		g := newGenerator(t, source, memory.New())

		_, err := g.GenerateBatch(ctx, []string{"a", "b", "c"}, usecase.BatchOptions{})
		gt.NoError(t, err).Required()
		_, err = g.GenerateBatch(ctx, []string{"a", "b", "c", "d"}, usecase.BatchOptions{})
		gt.NoError(t, err).Required()
		gt.Value(t, source.calls.Load()).Equal(int32(4))
	})

	t.Run("respects the concurrency limit", func(t *testing.T) {
		source := &fakeSource{
			produceFn: func(ctx context.Context, concept string) (*model.Entry, error) {
				time.Sleep(10 * time.Millisecond)
				return llmEntry(concept, testPromptVersion)
			},
		}
		g := newGenerator(t, source, memory.New(), usecase.WithConcurrency(3))

		concepts := []string{"c1", "c2", "c3", "c4", "c5", "c6", "c7", "c8", "c9", "c10"}
		result, err := g.GenerateBatch(ctx, concepts, usecase.BatchOptions{})
		gt.NoError(t, err).Required()
		gt.Number(t, len(result.Entries)).Equal(10)
		gt.Bool(t, source.maxFlight.Load() <= 3).True()
	})

	t.Run("fail fast stops starting new generations", func(t *testing.T) {
		source := &fakeSource{
			produceFn: func(ctx context.Context, concept string) (*model.Entry, error) {
				if concept == "bad" {
					return nil, model.ErrMalformedResponse
				}
				return llmEntry(concept, testPromptVersion)
			},
		}
		g := newGenerator(t, source, memory.New())

		result, err := g.GenerateBatch(ctx, []string{"ok", "bad", "later1", "later2"},
			usecase.BatchOptions{Concurrency: 1, FailFast: true})
		gt.Error(t, err).Is(model.ErrMalformedResponse)
		gt.Map(t, result.Entries).HasKey("ok")
		gt.Map(t, result.Errors).HasKey("bad")
		gt.Value(t, result.Skipped).Equal([]string{"later1", "later2"})
		gt.Value(t, source.calls.Load()).Equal(int32(2))
	})
}

func TestGenerateBatchCancellation(t *testing.T) {
	run := func(t *testing.T, policy usecase.CancelPolicy, produce func(ctx context.Context, concept string, release <-chan struct{}) (*model.Entry, error)) (*usecase.BatchResult, error, *memory.Memory, *fakeSource) {
		t.Helper()

		started := make(chan struct{})
		release := make(chan struct{})
		var once sync.Once

		source := &fakeSource{
			produceFn: func(ctx context.Context, concept string) (*model.Entry, error) {
				once.Do(func() { close(started) })
				return produce(ctx, concept, release)
			},
		}
		repo := memory.New()
		g := newGenerator(t, source, repo)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		type out struct {
			result *usecase.BatchResult
			err    error
		}
		done := make(chan out, 1)
		go func() {
			r, err := g.GenerateBatch(ctx, []string{"first", "second", "third"},
				usecase.BatchOptions{Concurrency: 1, CancelPolicy: policy})
			done <- out{r, err}
		}()

		<-started
		cancel()
		close(release)
		o := <-done
		return o.result, o.err, repo, source
	}

	t.Run("finish in flight completes and caches started work", func(t *testing.T) {
		result, err, repo, source := run(t, usecase.CancelFinishInFlight,
			func(ctx context.Context, concept string, release <-chan struct{}) (*model.Entry, error) {
				<-release
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return llmEntry(concept, testPromptVersion)
			})

		gt.Error(t, err).Is(context.Canceled)
		gt.Map(t, result.Entries).HasKey("first")
		gt.Value(t, result.Skipped).Equal([]string{"second", "third"})
		gt.Value(t, source.calls.Load()).Equal(int32(1))

		_, err = repo.Get(context.Background(), "first")
		gt.NoError(t, err)
	})

	t.Run("abandon in flight propagates cancellation", func(t *testing.T) {
		result, err, repo, source := run(t, usecase.CancelAbandonInFlight,
			func(ctx context.Context, concept string, release <-chan struct{}) (*model.Entry, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			})

		gt.Error(t, err).Is(context.Canceled)
		gt.Number(t, len(result.Entries)).Equal(0)
		gt.Value(t, result.Abandoned).Equal([]string{"first"})
		gt.Value(t, result.Skipped).Equal([]string{"second", "third"})
		gt.Value(t, source.calls.Load()).Equal(int32(1))

		_, err = repo.Get(context.Background(), "first")
		gt.Error(t, err).Is(model.ErrNotFound)
	})
}

func TestRegenerate(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	src := &fakeSource{}
	g, err := usecase.NewGenerator(src, repo, usecase.WithPromptVersion(testPromptVersion))
	gt.NoError(t, err).Required()
	gt.Value(t, g.PromptVersion()).Equal(testPromptVersion)

	old, err := llmEntry("Grace", "test-prompt-v1")
	gt.NoError(t, err).Required()
	gt.NoError(t, repo.Put(ctx, old)).Required()

	n, err := g.Regenerate(ctx, []string{"Grace", "Mercy"})
	gt.NoError(t, err)
	gt.Value(t, n).Equal(2)
	gt.Value(t, src.calls.Load()).Equal(int32(2))

	cached, err := repo.Get(ctx, "Grace")
	gt.NoError(t, err).Required()
	gt.Value(t, cached.PromptVersion).Equal(testPromptVersion)

	src.produceFn = func(ctx context.Context, concept string) (*model.Entry, error) {
		if concept == "Mercy" {
			return nil, model.ErrMalformedResponse
		}
		return llmEntry(concept, testPromptVersion)
	}
	n, err = g.Regenerate(ctx, []string{"Grace", "Mercy"})
	gt.Value(t, n).Equal(1)
	gt.Error(t, err).Is(model.ErrMalformedResponse)
}
