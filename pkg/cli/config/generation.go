package config

import (
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anchorpoint/pkg/service/rating"
	"github.com/secmon-lab/anchorpoint/pkg/usecase"
	"github.com/urfave/cli/v3"
)

// Generation holds CLI flags controlling how coordinates are produced and cached
type Generation struct {
	concurrency  int
	timeout      time.Duration
	retryBudget  int
	backoffBase  time.Duration
	backoffMax   time.Duration
	failFast     bool
	abandon      bool
	degraded     bool
	refreshStale bool
}

// Flags returns CLI flags for generation configuration
func (g *Generation) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "concurrency",
			Usage:       "Maximum number of concepts generated at once in a batch",
			Value:       usecase.DefaultConcurrency,
			Category:    "Generation",
			Sources:     cli.EnvVars("ANCHORPOINT_CONCURRENCY"),
			Destination: &g.concurrency,
		},
		&cli.DurationFlag{
			Name:        "llm-timeout",
			Usage:       "Timeout of a single LLM call",
			Value:       rating.DefaultTimeout,
			Category:    "Generation",
			Sources:     cli.EnvVars("ANCHORPOINT_LLM_TIMEOUT"),
			Destination: &g.timeout,
		},
		&cli.IntFlag{
			Name:        "retry-budget",
			Usage:       "Retries after a transient LLM failure",
			Value:       rating.DefaultRetryBudget,
			Category:    "Generation",
			Sources:     cli.EnvVars("ANCHORPOINT_RETRY_BUDGET"),
			Destination: &g.retryBudget,
		},
		&cli.DurationFlag{
			Name:        "backoff-base",
			Usage:       "First retry delay, doubled on each attempt",
			Value:       rating.DefaultBackoffBase,
			Category:    "Generation",
			Sources:     cli.EnvVars("ANCHORPOINT_BACKOFF_BASE"),
			Destination: &g.backoffBase,
		},
		&cli.DurationFlag{
			Name:        "backoff-max",
			Usage:       "Upper bound of the retry delay",
			Value:       rating.DefaultBackoffMax,
			Category:    "Generation",
			Sources:     cli.EnvVars("ANCHORPOINT_BACKOFF_MAX"),
			Destination: &g.backoffMax,
		},
		&cli.BoolFlag{
			Name:        "fail-fast",
			Usage:       "Stop a batch at the first failed concept",
			Category:    "Generation",
			Sources:     cli.EnvVars("ANCHORPOINT_FAIL_FAST"),
			Destination: &g.failFast,
		},
		&cli.BoolFlag{
			Name:        "abandon-in-flight",
			Usage:       "Cancel running generations on interrupt instead of letting them finish",
			Category:    "Generation",
			Sources:     cli.EnvVars("ANCHORPOINT_ABANDON_IN_FLIGHT"),
			Destination: &g.abandon,
		},
		&cli.BoolFlag{
			Name:        "degraded",
			Usage:       "Keep generating uncached when the cache is unavailable",
			Category:    "Generation",
			Sources:     cli.EnvVars("ANCHORPOINT_DEGRADED"),
			Destination: &g.degraded,
		},
		&cli.BoolFlag{
			Name:        "refresh-stale",
			Usage:       "Regenerate cached LLM entries produced by an older prompt version",
			Category:    "Generation",
			Sources:     cli.EnvVars("ANCHORPOINT_REFRESH_STALE"),
			Destination: &g.refreshStale,
		},
	}
}

// LogAttrs returns log attributes for the generation configuration
func (g *Generation) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.Int("concurrency", g.concurrency),
		slog.Duration("timeout", g.timeout),
		slog.Int("retry_budget", g.retryBudget),
		slog.Duration("backoff_base", g.backoffBase),
		slog.Duration("backoff_max", g.backoffMax),
		slog.Bool("fail_fast", g.failFast),
		slog.String("cancel_policy", g.cancelPolicy().String()),
		slog.Bool("degraded", g.degraded),
		slog.Bool("refresh_stale", g.refreshStale),
	}
}

// Validate checks value ranges
func (g *Generation) Validate() error {
	switch {
	case g.concurrency < 1:
		return goerr.Wrap(ErrInvalidConfig, "concurrency must be at least 1", goerr.V("concurrency", g.concurrency))
	case g.timeout <= 0:
		return goerr.Wrap(ErrInvalidConfig, "llm-timeout must be positive", goerr.V("timeout", g.timeout))
	case g.retryBudget < 0:
		return goerr.Wrap(ErrInvalidConfig, "retry-budget must not be negative", goerr.V("retry_budget", g.retryBudget))
	case g.backoffBase <= 0 || g.backoffMax < g.backoffBase:
		return goerr.Wrap(ErrInvalidConfig, "backoff-max must not be below a positive backoff-base",
			goerr.V("backoff_base", g.backoffBase), goerr.V("backoff_max", g.backoffMax))
	}
	return nil
}

// RatingOptions returns options for the LLM rating service
func (g *Generation) RatingOptions(model string) []rating.Option {
	opts := []rating.Option{
		rating.WithTimeout(g.timeout),
		rating.WithRetryBudget(g.retryBudget),
		rating.WithBackoff(g.backoffBase, g.backoffMax),
	}
	if model != "" {
		opts = append(opts, rating.WithModel(model))
	}
	return opts
}

// GeneratorOptions returns options for the cached generator
func (g *Generation) GeneratorOptions() []usecase.GeneratorOption {
	return []usecase.GeneratorOption{
		usecase.WithConcurrency(g.concurrency),
		usecase.WithDegradedMode(g.degraded),
		usecase.WithRefreshStale(g.refreshStale),
	}
}

// BatchOptions returns the default options for batch generation
func (g *Generation) BatchOptions() usecase.BatchOptions {
	return usecase.BatchOptions{
		Concurrency:  g.concurrency,
		FailFast:     g.failFast,
		CancelPolicy: g.cancelPolicy(),
	}
}

func (g *Generation) cancelPolicy() usecase.CancelPolicy {
	if g.abandon {
		return usecase.CancelAbandonInFlight
	}
	return usecase.CancelFinishInFlight
}
