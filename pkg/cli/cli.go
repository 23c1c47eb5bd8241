package cli

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anchorpoint/pkg/cli/config"
	"github.com/secmon-lab/anchorpoint/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

const envFileVar = "ANCHORPOINT_ENV_FILE"

func Run(ctx context.Context, args []string, version string) error {
	return run(ctx, args, version, os.Stdout)
}

func run(ctx context.Context, args []string, version string, w io.Writer) error {
	// env files must be loaded before flags read their env sources
	if err := loadEnvFiles(args); err != nil {
		logging.Default().Error("failed to load env file", "error", err)
		return err
	}

	var loggerCfg config.Logger
	var sentryCfg config.Sentry
	var envFiles []string
	var closers []func()

	flags := []cli.Flag{
		&cli.StringSliceFlag{
			Name:        "env-file",
			Usage:       "Load environment variables from dotenv files",
			Sources:     cli.EnvVars(envFileVar),
			Destination: &envFiles,
		},
	}
	flags = append(flags, loggerCfg.Flags()...)
	flags = append(flags, sentryCfg.Flags()...)

	app := &cli.Command{
		Name:    "anchorpoint",
		Usage:   "Map concepts onto the Love/Power/Wisdom/Justice coordinate space",
		Version: version,
		Flags:   flags,
		Writer:  w,
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			f, err := loggerCfg.Configure()
			if err != nil {
				return ctx, err
			}
			closers = append(closers, f)

			flush, err := sentryCfg.Configure(version)
			if err != nil {
				return ctx, err
			}
			closers = append(closers, flush)

			logging.Default().Info("Starting anchorpoint",
				"version", version,
				"logger", loggerCfg,
				"env_files", envFiles,
			)
			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
			return nil
		},
		Commands: []*cli.Command{
			cmdGenerate(),
			cmdReport(),
			cmdCompare(),
			cmdCache(),
			cmdValidate(),
			cmdServe(),
			cmdMigrate(),
		},
	}

	if err := app.Run(ctx, args); err != nil {
		logging.Default().Error("failed to run app", "error", err)
		return err
	}

	return nil
}

// loadEnvFiles scans raw arguments for --env-file ahead of flag parsing. Variables already
// set in the environment win over file values.
func loadEnvFiles(args []string) error {
	var files []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--env-file" || arg == "-env-file":
			if i+1 < len(args) {
				files = append(files, args[i+1])
				i++
			}
		case strings.HasPrefix(arg, "--env-file="):
			files = append(files, strings.TrimPrefix(arg, "--env-file="))
		case strings.HasPrefix(arg, "-env-file="):
			files = append(files, strings.TrimPrefix(arg, "-env-file="))
		}
	}
	if len(files) == 0 {
		if v := os.Getenv(envFileVar); v != "" {
			files = strings.Split(v, ",")
		}
	}
	if len(files) == 0 {
		return nil
	}

	if err := godotenv.Load(files...); err != nil {
		return goerr.Wrap(err, "failed to load env file", goerr.V("files", files))
	}
	return nil
}
