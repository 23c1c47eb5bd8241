package cli

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anchorpoint/pkg/cli/config"
	"github.com/secmon-lab/anchorpoint/pkg/domain/model"
	"github.com/secmon-lab/anchorpoint/pkg/service/snapshot"
	"github.com/secmon-lab/anchorpoint/pkg/utils/logging"
	"github.com/secmon-lab/anchorpoint/pkg/utils/safe"
	"github.com/urfave/cli/v3"
)

func cmdCache() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect and move the coordinate cache",
		Commands: []*cli.Command{
			cmdCacheGet(),
			cmdCacheExport(),
			cmdCacheImport(),
		},
	}
}

func cmdCacheGet() *cli.Command {
	var repoCfg config.Repository

	return &cli.Command{
		Name:      "get",
		Usage:     "Print cached entries as JSON lines",
		ArgsUsage: "CONCEPT...",
		Flags:     repoCfg.Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			concepts := c.Args().Slice()
			if len(concepts) == 0 {
				return goerr.Wrap(model.ErrInvalidInput, "no concept given")
			}

			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize cache")
			}
			defer closeRepository(repo)

			enc := newEncoder(c.Root().Writer)
			var missing []string
			for _, concept := range concepts {
				entry, err := repo.Get(ctx, concept)
				if errors.Is(err, model.ErrNotFound) {
					missing = append(missing, concept)
					continue
				}
				if err != nil {
					return goerr.Wrap(err, "failed to read cache", goerr.V(model.ConceptKey, concept))
				}
				if err := enc.Encode(entry.ToRecord()); err != nil {
					return goerr.Wrap(err, "failed to write record")
				}
			}

			if len(missing) > 0 {
				return goerr.Wrap(model.ErrNotFound, "concepts not cached", goerr.V("concepts", missing))
			}
			return nil
		},
	}
}

func cmdCacheExport() *cli.Command {
	var repoCfg config.Repository
	var output string

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "Destination file or gs://bucket/object; stdout when empty",
			Destination: &output,
		},
	}
	flags = append(flags, repoCfg.Flags()...)

	return &cli.Command{
		Name:  "export",
		Usage: "Write every cached entry as JSON lines",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize cache")
			}
			defer closeRepository(repo)

			if output == "" {
				n, err := snapshot.Export(ctx, repo, c.Root().Writer)
				if err != nil {
					return err
				}
				logging.From(ctx).Info("Cache exported", "entries", n)
				return nil
			}

			n, err := snapshot.ExportTo(ctx, repo, output)
			if err != nil {
				return err
			}

			logging.From(ctx).Info("Cache exported", "entries", n, "output", output)
			return nil
		},
	}
}

func cmdCacheImport() *cli.Command {
	var repoCfg config.Repository
	var input string

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "Source file or gs://bucket/object",
			Required:    true,
			Destination: &input,
		},
	}
	flags = append(flags, repoCfg.Flags()...)

	return &cli.Command{
		Name:  "import",
		Usage: "Load JSON lines entries into the cache, overwriting existing concepts",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize cache")
			}
			defer closeRepository(repo)

			r, err := snapshot.Open(ctx, input)
			if err != nil {
				return err
			}
			defer safe.Close(ctx, r)

			n, err := snapshot.Import(ctx, repo, r)
			if err != nil {
				return err
			}

			logging.From(ctx).Info("Cache imported", "entries", n, "input", input)
			return nil
		},
	}
}
