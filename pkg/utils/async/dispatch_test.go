package async_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/anchorpoint/pkg/utils/async"
)

func TestDispatch(t *testing.T) {
	t.Run("runs detached from caller cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		release := make(chan struct{})
		var cancelled atomic.Bool

		wg := async.Dispatch(ctx, "warm", func(ctx context.Context) error {
			<-release
			cancelled.Store(ctx.Err() != nil)
			return nil
		})
		cancel()
		close(release)
		wg.Wait()

		gt.False(t, cancelled.Load())
	})

	t.Run("error does not escape", func(t *testing.T) {
		wg := async.Dispatch(t.Context(), "fail", func(ctx context.Context) error {
			return errors.New("boom")
		})
		wg.Wait()
	})

	t.Run("panic is recovered", func(t *testing.T) {
		wg := async.Dispatch(t.Context(), "panic", func(ctx context.Context) error {
			panic("boom")
		})
		wg.Wait()
	})
}
