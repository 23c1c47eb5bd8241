// Package rating asks a language model to rate a concept on the four dimensions and
// turns the answer into a coordinate.
package rating

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/anchorpoint/pkg/domain/interfaces"
	"github.com/secmon-lab/anchorpoint/pkg/domain/model"
	"github.com/secmon-lab/anchorpoint/pkg/domain/types"
	"github.com/secmon-lab/anchorpoint/pkg/utils/logging"
)

const (
	DefaultTimeout     = 60 * time.Second
	DefaultRetryBudget = 3
	DefaultBackoffBase = 500 * time.Millisecond
	DefaultBackoffMax  = 8 * time.Second
)

// Service is the uncached LLM coordinate source
type Service struct {
	llmClient   gollem.LLMClient
	model       string
	timeout     time.Duration
	retryBudget int
	backoffBase time.Duration
	backoffMax  time.Duration
	isTransient func(error) bool
	sleep       func(ctx context.Context, d time.Duration) error
	now         func() time.Time
}

var _ interfaces.CoordinateSource = &Service{}

// Option is a functional option for Service configuration
type Option func(*Service)

// WithModel records the model name in entry metadata
func WithModel(name string) Option {
	return func(s *Service) {
		s.model = name
	}
}

// WithTimeout bounds every single external call
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.timeout = d
	}
}

// WithRetryBudget sets how many times a transient failure is retried. Zero disables retries.
func WithRetryBudget(n int) Option {
	return func(s *Service) {
		s.retryBudget = n
	}
}

// WithBackoff sets the first retry delay and the cap of the doubling sequence
func WithBackoff(base, maxDelay time.Duration) Option {
	return func(s *Service) {
		s.backoffBase = base
		s.backoffMax = maxDelay
	}
}

// WithTransientClassifier replaces the default decision of which call errors are retried
func WithTransientClassifier(fn func(error) bool) Option {
	return func(s *Service) {
		s.isTransient = fn
	}
}

// WithSleep replaces the backoff sleeper
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Service) {
		s.sleep = fn
	}
}

// WithClock overrides the clock used to stamp entries
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a rating Service with the provided LLM client
func New(llmClient gollem.LLMClient, opts ...Option) (*Service, error) {
	if llmClient == nil {
		return nil, goerr.New("LLM client is required")
	}

	s := &Service{
		llmClient:   llmClient,
		timeout:     DefaultTimeout,
		retryBudget: DefaultRetryBudget,
		backoffBase: DefaultBackoffBase,
		backoffMax:  DefaultBackoffMax,
		isTransient: defaultIsTransient,
		sleep:       sleepContext,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.timeout <= 0 {
		return nil, goerr.New("timeout must be positive", goerr.V("timeout", s.timeout))
	}
	if s.retryBudget < 0 {
		return nil, goerr.New("retry budget must not be negative", goerr.V("retry_budget", s.retryBudget))
	}

	return s, nil
}

// Method returns types.MethodLLM
func (s *Service) Method() types.Method {
	return types.MethodLLM
}

// Model returns the configured model name
func (s *Service) Model() string {
	return s.model
}

// Produce rates a concept and returns a complete LLM entry including the raw response
func (s *Service) Produce(ctx context.Context, concept string) (*model.Entry, error) {
	if err := model.ValidateConcept(concept); err != nil {
		return nil, err
	}
	if strings.TrimSpace(concept) == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "concept must not be blank for LLM rating",
			goerr.V(model.ConceptKey, concept))
	}

	logger := logging.From(ctx)

	raw, err := s.complete(ctx, concept, buildUserPrompt(concept))
	if err != nil {
		return nil, err
	}

	coord, err := Parse(raw)
	if err != nil {
		logger.Warn("LLM response could not be parsed, retrying with strict prompt",
			"concept", concept,
			"error", err.Error(),
		)

		raw, err = s.complete(ctx, concept, buildStrictPrompt(concept))
		if err != nil {
			return nil, err
		}
		coord, err = Parse(raw)
		if err != nil {
			return nil, goerr.Wrap(err, "LLM response could not be parsed",
				goerr.V(model.ConceptKey, concept),
				goerr.V(model.StageKey, model.StageParse),
				goerr.V("response", raw))
		}
	}

	entry := &model.Entry{
		Concept:       concept,
		Method:        types.MethodLLM,
		GenerationID:  model.NewGenerationID(),
		GeneratedAt:   s.now(),
		Model:         s.model,
		PromptVersion: PromptVersion,
		RawResponse:   raw,
	}
	entry.Coordinate = coord
	entry.Coordinate = entry.LabeledCoordinate()

	return entry, nil
}

// complete sends one prompt, retrying transient failures with exponential backoff
func (s *Service) complete(ctx context.Context, concept, prompt string) (string, error) {
	logger := logging.From(ctx)

	var lastErr error
	for attempt := 0; attempt <= s.retryBudget; attempt++ {
		if attempt > 0 {
			delay := s.backoff(attempt)
			logger.Warn("Retrying LLM call",
				"concept", concept,
				"attempt", attempt,
				"delay", delay,
				"error", lastErr.Error(),
			)
			if err := s.sleep(ctx, delay); err != nil {
				return "", goerr.Wrap(err, "LLM retry interrupted",
					goerr.V(model.ConceptKey, concept),
					goerr.V(model.StageKey, model.StageGenerate),
					goerr.V(model.AttemptKey, attempt))
			}
		}

		text, err := s.call(ctx, prompt)
		if err == nil {
			return text, nil
		}

		if ctx.Err() != nil {
			return "", goerr.Wrap(ctx.Err(), "LLM call cancelled",
				goerr.V(model.ConceptKey, concept),
				goerr.V(model.StageKey, model.StageGenerate),
				goerr.V(model.AttemptKey, attempt))
		}
		if !s.isTransient(err) {
			return "", goerr.Wrap(err, "LLM call failed",
				goerr.V(model.ConceptKey, concept),
				goerr.V(model.StageKey, model.StageGenerate),
				goerr.V(model.AttemptKey, attempt))
		}
		lastErr = err
	}

	return "", goerr.Wrap(errors.Join(model.ErrTransientService, lastErr), "LLM call failed after retries",
		goerr.V(model.ConceptKey, concept),
		goerr.V(model.StageKey, model.StageGenerate),
		goerr.V(model.AttemptKey, s.retryBudget))
}

type callResult struct {
	text string
	err  error
}

// call performs a single bounded request. The result is awaited in a select so that a
// client that ignores its context still cannot outlive the timeout.
func (s *Service) call(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		text, err := s.generate(callCtx, prompt)
		done <- callResult{text: text, err: err}
	}()

	select {
	case r := <-done:
		return r.text, r.err
	case <-callCtx.Done():
		return "", goerr.Wrap(callCtx.Err(), "LLM call timed out", goerr.V("timeout", s.timeout))
	}
}

func (s *Service) generate(ctx context.Context, prompt string) (string, error) {
	session, err := s.llmClient.NewSession(ctx,
		gollem.WithSessionSystemPrompt(buildSystemPrompt()),
	)
	if err != nil {
		return "", goerr.Wrap(err, "failed to create LLM session")
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(prompt))
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate content from LLM")
	}
	if resp == nil {
		return "", nil
	}

	return strings.Join(resp.Texts, "\n"), nil
}

func (s *Service) backoff(attempt int) time.Duration {
	d := s.backoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= s.backoffMax {
			return s.backoffMax
		}
	}
	if d > s.backoffMax {
		return s.backoffMax
	}
	return d
}

// permanentErrors are request or policy failures that a retry cannot fix
var permanentErrors = []error{
	model.ErrInvalidInput,
	context.Canceled,
	gollem.ErrProhibitedContent,
	gollem.ErrTokenSizeExceeded,
	gollem.ErrInvalidParameter,
	gollem.ErrInvalidTool,
	gollem.ErrInvalidInputSchema,
}

// defaultIsTransient retries everything except the permanent errors above.
// Provider SDKs do not share an error taxonomy for network, timeout and rate-limit failures.
func defaultIsTransient(err error) bool {
	for _, target := range permanentErrors {
		if errors.Is(err, target) {
			return false
		}
	}
	return !goerr.HasTag(err, gollem.ErrTagTokenExceeded)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
