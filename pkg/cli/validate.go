package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anchorpoint/pkg/cli/config"
	"github.com/secmon-lab/anchorpoint/pkg/domain/types"
	"github.com/secmon-lab/anchorpoint/pkg/service/rating"
	"github.com/secmon-lab/anchorpoint/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdValidate() *cli.Command {
	var repoCfg config.Repository
	var datasetPath string
	var checkCache bool

	flags := []cli.Flag{
		datasetFlag(&datasetPath),
		&cli.BoolFlag{
			Name:        "check-cache",
			Usage:       "Also report cache coverage and stale LLM entries for the dataset",
			Destination: &checkCache,
		},
	}
	flags = append(flags, repoCfg.Flags()...)

	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate a dataset file and optionally check cache coverage",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

			// Step 1: Load and validate the dataset
			dataset, err := config.LoadDataset(datasetPath)
			if err != nil {
				return goerr.Wrap(err, "dataset validation failed")
			}

			concepts := dataset.Concepts()
			logger.Info("Dataset validation passed",
				"category_count", len(dataset.Categories),
				"concept_count", len(concepts),
			)
			for _, category := range dataset.Categories {
				logger.Info("Category validated",
					"name", category.Name,
					"concept_count", len(category.Concepts),
				)
			}

			if !checkCache {
				return nil
			}

			// Step 2: Check which concepts are already cached
			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize cache")
			}
			defer closeRepository(repo)

			entries, err := repo.GetMany(ctx, concepts)
			if err != nil {
				return goerr.Wrap(err, "failed to read cache")
			}

			var missing, stale []string
			for _, concept := range concepts {
				entry, ok := entries[concept]
				if !ok {
					missing = append(missing, concept)
					continue
				}
				if entry.Method == types.MethodLLM && entry.IsStale(rating.PromptVersion) {
					stale = append(stale, concept)
				}
			}

			logger.Info("Cache coverage",
				"cached", len(entries),
				"missing", len(missing),
				"stale", len(stale),
			)
			if len(missing) > 0 {
				logger.Warn("Concepts without cached coordinates", "concepts", missing)
			}
			if len(stale) > 0 {
				logger.Warn("Cached LLM entries from an older prompt version",
					"concepts", stale,
					"prompt_version", rating.PromptVersion,
				)
			}
			return nil
		},
	}
}
