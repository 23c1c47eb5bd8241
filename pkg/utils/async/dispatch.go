package async

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anchorpoint/pkg/utils/errutil"
	"github.com/secmon-lab/anchorpoint/pkg/utils/logging"
)

// Dispatch runs handler in a new goroutine detached from the caller's cancellation. The
// context logger is carried over; errors and panics are logged and reported. The returned
// WaitGroup is done when the handler has returned.
func Dispatch(ctx context.Context, name string, handler func(ctx context.Context) error) *sync.WaitGroup {
	logger := logging.From(ctx).With("task", name)
	bgCtx := logging.With(context.WithoutCancel(ctx), logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				err := goerr.New("panic in async handler", goerr.V("panic", r), goerr.V("task", name))
				_ = errutil.Handle(bgCtx, err, "async handler panicked")
			}
		}()

		if err := handler(bgCtx); err != nil {
			_ = errutil.Handle(bgCtx, err, "async handler failed")
			return
		}
		logger.Debug("async handler finished")
	}()

	return &wg
}
