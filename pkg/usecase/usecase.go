package usecase

import (
	"slices"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anchorpoint/pkg/domain/model"
	"github.com/secmon-lab/anchorpoint/pkg/domain/types"
)

// UseCases holds the configured generators, one per method
type UseCases struct {
	generators    map[types.Method]*Generator
	defaultMethod types.Method
	batch         BatchOptions
	now           func() time.Time
}

type Option func(*UseCases)

// WithGenerator registers g for its method. The first registered generator becomes the default.
func WithGenerator(g *Generator) Option {
	return func(uc *UseCases) {
		if g == nil {
			return
		}
		if uc.defaultMethod == "" {
			uc.defaultMethod = g.Method()
		}
		uc.generators[g.Method()] = g
	}
}

// WithDefaultMethod selects the generator used when a caller names no method
func WithDefaultMethod(method types.Method) Option {
	return func(uc *UseCases) {
		uc.defaultMethod = method
	}
}

// WithBatchOptions sets the batch behaviour used by reports
func WithBatchOptions(opts BatchOptions) Option {
	return func(uc *UseCases) {
		uc.batch = opts
	}
}

// WithClock overrides the clock that stamps reports
func WithClock(now func() time.Time) Option {
	return func(uc *UseCases) {
		uc.now = now
	}
}

func New(opts ...Option) *UseCases {
	uc := &UseCases{
		generators: make(map[types.Method]*Generator),
		now:        func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// Generator returns the generator for method, or the default one when method is empty
func (uc *UseCases) Generator(method types.Method) (*Generator, error) {
	if method == "" {
		method = uc.defaultMethod
	}
	if err := method.Validate(); err != nil {
		return nil, goerr.Wrap(model.ErrInvalidInput, "unknown generation method", goerr.V("method", method))
	}

	g, ok := uc.generators[method]
	if !ok {
		return nil, goerr.Wrap(model.ErrInvalidInput, "generation method is not configured",
			goerr.V("method", method))
	}
	return g, nil
}

// Methods lists the configured generation methods
func (uc *UseCases) Methods() []types.Method {
	methods := make([]types.Method, 0, len(uc.generators))
	for m := range uc.generators {
		methods = append(methods, m)
	}
	slices.Sort(methods)
	return methods
}

// BatchOptions returns the batch behaviour configured for reports
func (uc *UseCases) BatchOptions() BatchOptions {
	return uc.batch
}
