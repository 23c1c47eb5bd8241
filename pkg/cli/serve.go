package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anchorpoint/pkg/cli/config"
	httpctrl "github.com/secmon-lab/anchorpoint/pkg/controller/http"
	"github.com/secmon-lab/anchorpoint/pkg/domain/types"
	"github.com/secmon-lab/anchorpoint/pkg/service/worker"
	"github.com/secmon-lab/anchorpoint/pkg/usecase"
	"github.com/secmon-lab/anchorpoint/pkg/utils/async"
	"github.com/secmon-lab/anchorpoint/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdServe() *cli.Command {
	var addr string
	var warmDataset string
	var warmMethod string
	var staleInterval time.Duration
	var appCfg appConfig

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("ANCHORPOINT_ADDR"),
			Destination: &addr,
		},
		&cli.StringFlag{
			Name:        "warm-dataset",
			Usage:       "Dataset file generated in the background at startup to fill the cache",
			Sources:     cli.EnvVars("ANCHORPOINT_WARM_DATASET"),
			Destination: &warmDataset,
		},
		&cli.StringFlag{
			Name:        "warm-method",
			Usage:       "Generation method used for warm-up",
			Value:       string(types.MethodLLM),
			Sources:     cli.EnvVars("ANCHORPOINT_WARM_METHOD"),
			Destination: &warmMethod,
		},
		&cli.DurationFlag{
			Name:        "stale-refresh-interval",
			Usage:       "Interval of background regeneration of LLM entries from older prompt versions; 0 disables",
			Sources:     cli.EnvVars("ANCHORPOINT_STALE_REFRESH_INTERVAL"),
			Destination: &staleInterval,
		},
	}
	flags = append(flags, appCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, closer, err := appCfg.Configure(ctx)
			if err != nil {
				return err
			}
			defer closer()

			httpHandler, err := httpctrl.New(uc)
			if err != nil {
				return goerr.Wrap(err, "failed to create http server")
			}
			server := &http.Server{
				Addr:              addr,
				Handler:           httpHandler,
				ReadHeaderTimeout: 30 * time.Second,
			}

			// Cache warm-up
			warmCtx, stopWarm := context.WithCancel(ctx)
			defer stopWarm()
			if warmDataset != "" {
				if err := startWarmUp(warmCtx, uc, warmDataset, types.Method(warmMethod)); err != nil {
					return err
				}
			}

			var staleWorker *worker.StaleRefreshWorker
			if staleInterval > 0 {
				if appCfg.cache == nil {
					return goerr.New("stale-refresh-interval requires LLM generation to be configured")
				}
				g, err := uc.Generator(types.MethodLLM)
				if err != nil {
					return err
				}
				staleWorker = worker.NewStaleRefreshWorker(appCfg.cache, g, g.PromptVersion(), staleInterval)
				if err := staleWorker.Start(ctx); err != nil {
					return goerr.Wrap(err, "failed to start stale entry refresh worker")
				}
				defer staleWorker.Stop()
			}

			// Setup signal handling for graceful shutdown
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			// Start server in goroutine
			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("Starting HTTP server", "addr", addr, "methods", uc.Methods())
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			// Wait for shutdown signal or server error
			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logging.Default().Info("Received shutdown signal", "signal", sig)

				// Stop background work first
				stopWarm()
				if staleWorker != nil {
					staleWorker.Stop()
				}

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}

				logging.Default().Info("Server shutdown completed")
				return nil
			}
		},
	}
}

// startWarmUp generates a dataset in the background. Cancelling ctx stops scheduling new
// concepts; in-flight ones follow the configured cancel policy.
func startWarmUp(ctx context.Context, uc *usecase.UseCases, path string, method types.Method) error {
	dataset, err := config.LoadDataset(path)
	if err != nil {
		return goerr.Wrap(err, "failed to load warm-up dataset")
	}

	g, err := uc.Generator(method)
	if err != nil {
		return goerr.Wrap(err, "warm-up method is not available")
	}

	concepts := dataset.Concepts()
	async.Dispatch(ctx, "warm-up", func(_ context.Context) error {
		result, err := g.GenerateBatch(ctx, concepts, uc.BatchOptions())
		if err != nil {
			return goerr.Wrap(err, "warm-up interrupted", goerr.V("dataset", path))
		}
		logging.From(ctx).Info("Cache warm-up finished",
			"dataset", path,
			"generated", len(result.Entries),
			"failed", len(result.Errors),
		)
		return nil
	})
	return nil
}
