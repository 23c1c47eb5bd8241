package cli

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anchorpoint/pkg/cli/config"
	"github.com/secmon-lab/anchorpoint/pkg/domain/interfaces"
	"github.com/secmon-lab/anchorpoint/pkg/domain/types"
	"github.com/secmon-lab/anchorpoint/pkg/service/rating"
	"github.com/secmon-lab/anchorpoint/pkg/usecase"
	"github.com/secmon-lab/anchorpoint/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// appConfig bundles the settings every generating command shares
type appConfig struct {
	hash config.Hash
	llm  config.LLM
	repo config.Repository
	gen  config.Generation

	// cache is set by Configure when LLM generation is enabled
	cache interfaces.CoordinateRepository
}

func (a *appConfig) Flags() []cli.Flag {
	var flags []cli.Flag
	flags = append(flags, a.hash.Flags()...)
	flags = append(flags, a.llm.Flags()...)
	flags = append(flags, a.repo.Flags()...)
	flags = append(flags, a.gen.Flags()...)
	return flags
}

// Configure builds the use cases. Hash generation is registered uncached and is the default;
// LLM generation is registered with the configured cache when credentials are present.
// The returned closer releases the cache.
func (a *appConfig) Configure(ctx context.Context) (*usecase.UseCases, func(), error) {
	closer := func() {}

	if err := a.gen.Validate(); err != nil {
		return nil, closer, err
	}

	hashGen, err := a.hash.Configure()
	if err != nil {
		return nil, closer, err
	}
	hashCached, err := usecase.NewGenerator(hashGen, nil, a.gen.GeneratorOptions()...)
	if err != nil {
		return nil, closer, goerr.Wrap(err, "failed to create hash generator")
	}

	opts := []usecase.Option{
		usecase.WithGenerator(hashCached),
		usecase.WithDefaultMethod(types.MethodHash),
		usecase.WithBatchOptions(a.gen.BatchOptions()),
	}

	llmClient, err := a.llm.Configure(ctx)
	if err != nil {
		return nil, closer, err
	}
	if llmClient == nil {
		logging.Default().Info("LLM not configured, only the hash method is available")
		return usecase.New(opts...), closer, nil
	}

	repo, err := a.repo.Configure(ctx)
	if err != nil {
		return nil, closer, goerr.Wrap(err, "failed to initialize cache")
	}
	closer = func() { closeRepository(repo) }
	a.cache = repo

	svc, err := rating.New(llmClient, a.gen.RatingOptions(a.llm.Model())...)
	if err != nil {
		closer()
		return nil, func() {}, goerr.Wrap(err, "failed to create rating service")
	}

	genOpts := append(a.gen.GeneratorOptions(), usecase.WithPromptVersion(rating.PromptVersion))
	llmCached, err := usecase.NewGenerator(svc, repo, genOpts...)
	if err != nil {
		closer()
		return nil, func() {}, goerr.Wrap(err, "failed to create llm generator")
	}
	opts = append(opts, usecase.WithGenerator(llmCached))

	logging.Default().Info("LLM generation enabled",
		"llm", slog.GroupValue(a.llm.LogAttrs()...),
		"cache", slog.GroupValue(a.repo.LogAttrs()...),
		"generation", slog.GroupValue(a.gen.LogAttrs()...),
	)
	return usecase.New(opts...), closer, nil
}

func closeRepository(repo interfaces.CoordinateRepository) {
	if err := repo.Close(); err != nil {
		logging.Default().Error("failed to close repository", "error", err.Error())
	}
}

func newEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc
}
