package usecase

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anchorpoint/pkg/domain/interfaces"
	"github.com/secmon-lab/anchorpoint/pkg/domain/model"
	"github.com/secmon-lab/anchorpoint/pkg/domain/types"
	"github.com/secmon-lab/anchorpoint/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const DefaultConcurrency = 4

// CancelPolicy decides what happens to generations already in flight when a batch is cancelled.
// New generations are never started after cancellation under either policy.
type CancelPolicy int

const (
	// CancelFinishInFlight lets started generations complete and be cached
	CancelFinishInFlight CancelPolicy = iota
	// CancelAbandonInFlight propagates cancellation into started generations
	CancelAbandonInFlight
)

func (p CancelPolicy) String() string {
	switch p {
	case CancelFinishInFlight:
		return "finish-in-flight"
	case CancelAbandonInFlight:
		return "abandon-in-flight"
	default:
		return "unknown"
	}
}

// Generator puts a cache and per-concept single-flight in front of a CoordinateSource
type Generator struct {
	source        interfaces.CoordinateSource
	repo          interfaces.CoordinateRepository
	group         singleflight.Group
	promptVersion string
	refreshStale  bool
	degraded      bool
	concurrency   int
}

var _ interfaces.Generator = &Generator{}

type GeneratorOption func(*Generator)

// WithPromptVersion sets the prompt version cached LLM entries are compared against
func WithPromptVersion(version string) GeneratorOption {
	return func(g *Generator) {
		g.promptVersion = version
	}
}

// WithRefreshStale regenerates cached entries whose prompt version differs from the current one
func WithRefreshStale(enabled bool) GeneratorOption {
	return func(g *Generator) {
		g.refreshStale = enabled
	}
}

// WithDegradedMode lets generation continue unpersisted when the cache is unreachable
func WithDegradedMode(enabled bool) GeneratorOption {
	return func(g *Generator) {
		g.degraded = enabled
	}
}

// WithConcurrency sets the default in-flight limit for GenerateBatch
func WithConcurrency(n int) GeneratorOption {
	return func(g *Generator) {
		g.concurrency = n
	}
}

// NewGenerator creates a cached generator. A nil repo disables caching but keeps single-flight.
func NewGenerator(source interfaces.CoordinateSource, repo interfaces.CoordinateRepository, opts ...GeneratorOption) (*Generator, error) {
	if source == nil {
		return nil, goerr.New("coordinate source is required")
	}

	g := &Generator{
		source:      source,
		repo:        repo,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.concurrency < 1 {
		return nil, goerr.Wrap(model.ErrInvalidInput, "concurrency must be at least 1", goerr.V("concurrency", g.concurrency))
	}

	return g, nil
}

func (g *Generator) Method() types.Method {
	return g.source.Method()
}

// Generate returns the cached coordinate for concept, producing and caching it on a miss
func (g *Generator) Generate(ctx context.Context, concept string) (model.Coordinate, error) {
	entry, err := g.GenerateEntry(ctx, concept, GenerateOptions{})
	if err != nil {
		return model.Coordinate{}, err
	}
	return entry.Coordinate, nil
}

var errFlightAbandoned = errors.New("generation abandoned by the caller leading the flight")

// GenerateOptions controls a single generation
type GenerateOptions struct {
	// Refresh bypasses the cache lookup. The fresh result is still written through.
	Refresh bool
}

// GenerateEntry is Generate returning the full cache entry
func (g *Generator) GenerateEntry(ctx context.Context, concept string, opts GenerateOptions) (*model.Entry, error) {
	if err := model.ValidateConcept(concept); err != nil {
		return nil, goerr.Wrap(err, "invalid concept", goerr.V(model.StageKey, model.StageValidate))
	}

	if !opts.Refresh {
		entry, err := g.lookup(ctx, concept)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			return entry, nil
		}
	}

	for {
		ch := g.group.DoChan(concept, func() (any, error) {
			entry, err := g.produce(ctx, concept, opts)
			if err != nil && ctx.Err() != nil {
				return nil, errors.Join(errFlightAbandoned, err)
			}
			return entry, err
		})

		select {
		case <-ctx.Done():
			return nil, goerr.Wrap(ctx.Err(), "generation cancelled",
				goerr.V(model.ConceptKey, concept),
				goerr.V(model.StageKey, model.StageGenerate))

		case res := <-ch:
			// The leader's context ended. Waiters with a live context start a new flight.
			if errors.Is(res.Err, errFlightAbandoned) {
				if ctx.Err() == nil {
					continue
				}
				return nil, goerr.Wrap(ctx.Err(), "generation cancelled",
					goerr.V(model.ConceptKey, concept),
					goerr.V(model.StageKey, model.StageGenerate))
			}
			if res.Err != nil {
				return nil, res.Err
			}
			return res.Val.(*model.Entry), nil
		}
	}
}

// lookup returns a usable cached entry, or nil when the concept must be generated
func (g *Generator) lookup(ctx context.Context, concept string) (*model.Entry, error) {
	if g.repo == nil {
		return nil, nil
	}

	entry, err := g.repo.Get(ctx, concept)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, nil
		}
		if err := g.cacheFailure(ctx, err, concept, model.StageCacheGet); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if !g.usable(ctx, entry) {
		return nil, nil
	}
	return entry, nil
}

func (g *Generator) usable(ctx context.Context, entry *model.Entry) bool {
	logger := logging.From(ctx)

	if entry.Method != g.source.Method() {
		logger.Debug("Cached entry was produced by another method, ignoring it",
			"concept", entry.Concept,
			"cached_method", entry.Method,
			"method", g.source.Method(),
		)
		return false
	}

	if g.promptVersion != "" && entry.IsStale(g.promptVersion) {
		logger.Warn("Cached entry uses an outdated prompt version",
			"concept", entry.Concept,
			"cached_prompt_version", entry.PromptVersion,
			"prompt_version", g.promptVersion,
			"refresh_stale", g.refreshStale,
		)
		return !g.refreshStale
	}

	return true
}

// produce runs inside the single flight for concept
func (g *Generator) produce(ctx context.Context, concept string, opts GenerateOptions) (*model.Entry, error) {
	// Another flight may have landed between the first lookup and this one
	if !opts.Refresh {
		entry, err := g.lookup(ctx, concept)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			return entry, nil
		}
	}

	entry, err := g.source.Produce(ctx, concept)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate coordinate",
			goerr.V(model.ConceptKey, concept),
			goerr.V(model.StageKey, model.StageGenerate),
			goerr.V("method", g.source.Method()))
	}

	if g.repo != nil {
		if err := g.repo.Put(ctx, entry); err != nil {
			if err := g.cacheFailure(ctx, err, concept, model.StageCachePut); err != nil {
				return nil, err
			}
		}
	}

	logging.From(ctx).Debug("Generated coordinate",
		"concept", concept,
		"method", entry.Method,
		"distance", entry.Coordinate.Distance(),
	)
	return entry, nil
}

// cacheFailure returns nil when degraded mode absorbs the failure
func (g *Generator) cacheFailure(ctx context.Context, err error, concept, stage string) error {
	if !errors.Is(err, model.ErrCacheUnavailable) {
		err = errors.Join(model.ErrCacheUnavailable, err)
	}

	if g.degraded {
		logging.From(ctx).Warn("Cache unavailable, continuing without persistence",
			"concept", concept,
			"stage", stage,
			"error", err.Error(),
		)
		return nil
	}

	return goerr.Wrap(err, "cache unavailable",
		goerr.V(model.ConceptKey, concept),
		goerr.V(model.StageKey, stage))
}

// BatchOptions controls GenerateBatch
type BatchOptions struct {
	// Concurrency overrides the generator default when positive
	Concurrency int
	// FailFast stops starting new generations after the first failure
	FailFast     bool
	CancelPolicy CancelPolicy
	Refresh      bool
}

// BatchResult holds per-concept outcomes of a batch
type BatchResult struct {
	Entries map[string]*model.Entry
	Errors  map[string]error
	// Skipped concepts were never started because of cancellation or fail-fast
	Skipped []string
	// Abandoned concepts were in flight when cancellation reached them
	Abandoned []string
}

// Coordinates returns the successfully generated coordinates keyed by concept
func (r *BatchResult) Coordinates() map[string]model.Coordinate {
	coords := make(map[string]model.Coordinate, len(r.Entries))
	for concept, entry := range r.Entries {
		coords[concept] = entry.Coordinate
	}
	return coords
}

// GenerateBatch generates coordinates for many concepts with bounded concurrency. Per-concept
// failures are collected in the result. The returned error is non-nil only when the batch was
// cut short, by cancellation of ctx or by FailFast.
func (g *Generator) GenerateBatch(ctx context.Context, concepts []string, opts BatchOptions) (*BatchResult, error) {
	limit := g.concurrency
	if opts.Concurrency > 0 {
		limit = opts.Concurrency
	}

	result := &BatchResult{
		Entries: make(map[string]*model.Entry),
		Errors:  make(map[string]error),
	}

	pending := uniqueConcepts(concepts)
	if !opts.Refresh && g.repo != nil {
		hits, err := g.repo.GetMany(ctx, pending)
		if err != nil {
			if err := g.cacheFailure(ctx, err, "", model.StageCacheGet); err != nil {
				return nil, err
			}
			hits = nil
		}

		remaining := pending[:0:0]
		for _, concept := range pending {
			if entry, ok := hits[concept]; ok && g.usable(ctx, entry) {
				result.Entries[concept] = entry
				continue
			}
			remaining = append(remaining, concept)
		}
		pending = remaining
	}

	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		firstErr error
		eg       errgroup.Group
	)
	eg.SetLimit(limit)

	skip := func(concept string) {
		mu.Lock()
		defer mu.Unlock()
		result.Skipped = append(result.Skipped, concept)
	}

	for i, concept := range pending {
		if batchCtx.Err() != nil {
			for _, c := range pending[i:] {
				skip(c)
			}
			break
		}

		eg.Go(func() error {
			if batchCtx.Err() != nil {
				skip(concept)
				return nil
			}

			itemCtx := batchCtx
			if opts.CancelPolicy == CancelFinishInFlight {
				itemCtx = context.WithoutCancel(batchCtx)
			}

			entry, err := g.GenerateEntry(itemCtx, concept, GenerateOptions{Refresh: opts.Refresh})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.Entries[concept] = entry
			case batchCtx.Err() != nil && isContextError(err):
				result.Abandoned = append(result.Abandoned, concept)
			default:
				result.Errors[concept] = err
				if firstErr == nil {
					firstErr = err
				}
				if opts.FailFast {
					cancel()
				}
			}
			return nil
		})
	}
	_ = eg.Wait()
	slices.Sort(result.Skipped)
	slices.Sort(result.Abandoned)

	logging.From(ctx).Info("Batch generation finished",
		"method", g.source.Method(),
		"requested", len(concepts),
		"generated", len(result.Entries),
		"failed", len(result.Errors),
		"skipped", len(result.Skipped),
		"abandoned", len(result.Abandoned),
	)

	if err := ctx.Err(); err != nil {
		return result, goerr.Wrap(err, "batch generation cancelled", goerr.V("cancel_policy", opts.CancelPolicy.String()))
	}
	if opts.FailFast && firstErr != nil {
		return result, goerr.Wrap(firstErr, "batch generation stopped on first failure")
	}
	return result, nil
}

// Regenerate bypasses the cache for concepts and returns how many were regenerated
func (g *Generator) Regenerate(ctx context.Context, concepts []string) (int, error) {
	result, err := g.GenerateBatch(ctx, concepts, BatchOptions{Refresh: true})
	if result == nil {
		return 0, err
	}
	if err == nil && len(result.Errors) > 0 {
		failed := make([]string, 0, len(result.Errors))
		for concept := range result.Errors {
			failed = append(failed, concept)
		}
		slices.Sort(failed)
		err = goerr.Wrap(result.Errors[failed[0]], "some concepts failed to regenerate", goerr.V("failed", failed))
	}
	return len(result.Entries), err
}

// PromptVersion returns the prompt version cached entries are compared against
func (g *Generator) PromptVersion() string {
	return g.promptVersion
}

func uniqueConcepts(concepts []string) []string {
	seen := make(map[string]struct{}, len(concepts))
	unique := make([]string, 0, len(concepts))
	for _, c := range concepts {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		unique = append(unique, c)
	}
	return unique
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
