package worker

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anchorpoint/pkg/domain/interfaces"
	"github.com/secmon-lab/anchorpoint/pkg/domain/types"
	"github.com/secmon-lab/anchorpoint/pkg/utils/logging"
)

// Regenerator produces fresh entries for concepts regardless of what is cached
type Regenerator interface {
	Regenerate(ctx context.Context, concepts []string) (int, error)
}

// StaleRefreshWorker periodically regenerates cached LLM entries whose prompt version differs
// from the current one
//
// Architecture assumptions:
// - Single server instance (no distributed locking)
// - Regeneration goes through the cached generator, so API requests for the same concept share its flight
type StaleRefreshWorker struct {
	repo          interfaces.CoordinateRepository
	regen         Regenerator
	promptVersion string
	interval      time.Duration
	stopCh        chan struct{}
	doneCh        chan struct{}
	stopOnce      sync.Once
}

// NewStaleRefreshWorker creates a new worker for refreshing stale LLM entries
func NewStaleRefreshWorker(repo interfaces.CoordinateRepository, regen Regenerator, promptVersion string, interval time.Duration) *StaleRefreshWorker {
	return &StaleRefreshWorker{
		repo:          repo,
		regen:         regen,
		promptVersion: promptVersion,
		interval:      interval,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Start begins the background refresh loop. The first cycle runs immediately in the
// background and does not block server startup.
func (w *StaleRefreshWorker) Start(ctx context.Context) error {
	if w.interval <= 0 {
		return goerr.New("refresh interval must be positive", goerr.V("interval", w.interval))
	}

	logging.Default().Info("Stale entry refresh worker starting",
		"interval", w.interval.String(),
		"prompt_version", w.promptVersion)

	go w.run(ctx)

	return nil
}

// Stop signals the worker to stop and waits for completion
func (w *StaleRefreshWorker) Stop() {
	w.stopOnce.Do(func() {
		logging.Default().Info("Stale entry refresh worker stopping")
		close(w.stopCh)
	})
	<-w.doneCh
}

func (w *StaleRefreshWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	// stopCh also cancels an in-progress cycle
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if _, err := w.Refresh(ctx); err != nil {
		logging.Default().Error("Initial stale entry refresh failed (will retry next interval)",
			"error", err.Error())
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.Refresh(ctx); err != nil {
				logging.Default().Error("Stale entry refresh failed (will retry next interval)",
					"error", err.Error())
			}

		case <-w.stopCh:
			logging.Default().Info("Stale entry refresh worker received stop signal")
			return

		case <-ctx.Done():
			logging.Default().Info("Stale entry refresh worker context cancelled")
			return
		}
	}
}

// Refresh performs a single refresh cycle and returns how many entries were regenerated
func (w *StaleRefreshWorker) Refresh(ctx context.Context) (int, error) {
	startTime := time.Now()

	entries, err := w.repo.List(ctx)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list cached entries")
	}

	var stale []string
	for _, entry := range entries {
		if entry.Method == types.MethodLLM && entry.IsStale(w.promptVersion) {
			stale = append(stale, entry.Concept)
		}
	}
	if len(stale) == 0 {
		logging.Default().Debug("No stale entries", "cached", len(entries))
		return 0, nil
	}

	logging.Default().Info("Refreshing stale entries", "count", len(stale))
	n, err := w.regen.Regenerate(ctx, stale)
	if err != nil {
		return n, goerr.Wrap(err, "failed to regenerate stale entries", goerr.V("stale", len(stale)))
	}

	logging.Default().Info("Stale entry refresh completed",
		"stale", len(stale),
		"refreshed", n,
		"duration", time.Since(startTime).String())

	return n, nil
}
