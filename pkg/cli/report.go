package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anchorpoint/pkg/cli/config"
	"github.com/secmon-lab/anchorpoint/pkg/domain/types"
	"github.com/urfave/cli/v3"
)

func datasetFlag(dest *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "dataset",
		Aliases:     []string{"d"},
		Usage:       "Dataset file (TOML, or JSON with a .json extension)",
		Required:    true,
		Sources:     cli.EnvVars("ANCHORPOINT_DATASET"),
		Destination: dest,
	}
}

func cmdReport() *cli.Command {
	var appCfg appConfig
	var datasetPath string
	var method string

	flags := []cli.Flag{
		datasetFlag(&datasetPath),
		&cli.StringFlag{
			Name:        "method",
			Aliases:     []string{"m"},
			Usage:       "Generation method (hash, llm)",
			Sources:     cli.EnvVars("ANCHORPOINT_METHOD"),
			Destination: &method,
		},
	}
	flags = append(flags, appCfg.Flags()...)

	return &cli.Command{
		Name:    "report",
		Aliases: []string{"r"},
		Usage:   "Generate a dataset and print category statistics as JSON",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			dataset, err := config.LoadDataset(datasetPath)
			if err != nil {
				return err
			}

			uc, closer, err := appCfg.Configure(ctx)
			if err != nil {
				return err
			}
			defer closer()

			report, err := uc.BuildReport(ctx, dataset, types.Method(method))
			if err != nil {
				return goerr.Wrap(err, "failed to build report", goerr.V("dataset", datasetPath))
			}

			enc := newEncoder(c.Root().Writer)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return goerr.Wrap(err, "failed to write report")
			}
			return nil
		},
	}
}

func cmdCompare() *cli.Command {
	var appCfg appConfig
	var datasetPath string
	var methodA, methodB string

	flags := []cli.Flag{
		datasetFlag(&datasetPath),
		&cli.StringFlag{
			Name:        "method-a",
			Usage:       "First generation method",
			Value:       string(types.MethodHash),
			Destination: &methodA,
		},
		&cli.StringFlag{
			Name:        "method-b",
			Usage:       "Second generation method",
			Value:       string(types.MethodLLM),
			Destination: &methodB,
		},
	}
	flags = append(flags, appCfg.Flags()...)

	return &cli.Command{
		Name:  "compare",
		Usage: "Measure how closely two generation methods agree on a dataset",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			dataset, err := config.LoadDataset(datasetPath)
			if err != nil {
				return err
			}

			uc, closer, err := appCfg.Configure(ctx)
			if err != nil {
				return err
			}
			defer closer()

			cmp, err := uc.CompareMethods(ctx, dataset, types.Method(methodA), types.Method(methodB))
			if err != nil {
				return goerr.Wrap(err, "failed to compare methods", goerr.V("dataset", datasetPath))
			}

			enc := newEncoder(c.Root().Writer)
			enc.SetIndent("", "  ")
			if err := enc.Encode(cmp); err != nil {
				return goerr.Wrap(err, "failed to write comparison")
			}
			return nil
		},
	}
}
