package cli

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anchorpoint/pkg/domain/model"
	"github.com/secmon-lab/anchorpoint/pkg/domain/types"
	"github.com/secmon-lab/anchorpoint/pkg/usecase"
	"github.com/secmon-lab/anchorpoint/pkg/utils/logging"
	"github.com/secmon-lab/anchorpoint/pkg/utils/safe"
	"github.com/urfave/cli/v3"
)

func cmdGenerate() *cli.Command {
	var appCfg appConfig
	var method string
	var refresh bool
	var input string

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "method",
			Aliases:     []string{"m"},
			Usage:       "Generation method (hash, llm)",
			Sources:     cli.EnvVars("ANCHORPOINT_METHOD"),
			Destination: &method,
		},
		&cli.BoolFlag{
			Name:        "refresh",
			Usage:       "Ignore cached entries and regenerate",
			Destination: &refresh,
		},
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "Read concepts one per line from a file, '-' for stdin",
			Destination: &input,
		},
	}
	flags = append(flags, appCfg.Flags()...)

	return &cli.Command{
		Name:      "generate",
		Aliases:   []string{"g"},
		Usage:     "Generate coordinates for concepts and print them as JSON lines",
		ArgsUsage: "CONCEPT...",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			concepts := c.Args().Slice()
			if input != "" {
				lines, err := readConcepts(ctx, input)
				if err != nil {
					return err
				}
				concepts = append(concepts, lines...)
			}
			if len(concepts) == 0 {
				return goerr.Wrap(model.ErrInvalidInput, "no concept given")
			}

			uc, closer, err := appCfg.Configure(ctx)
			if err != nil {
				return err
			}
			defer closer()

			g, err := uc.Generator(types.Method(method))
			if err != nil {
				return err
			}

			batchOpts := appCfg.gen.BatchOptions()
			batchOpts.Refresh = refresh
			result, batchErr := g.GenerateBatch(ctx, concepts, batchOpts)
			if result == nil {
				return batchErr
			}

			enc := newEncoder(c.Root().Writer)
			printed := make(map[string]bool, len(concepts))
			for _, concept := range concepts {
				entry, ok := result.Entries[concept]
				if !ok || printed[concept] {
					continue
				}
				printed[concept] = true
				if err := enc.Encode(entry.ToRecord()); err != nil {
					return goerr.Wrap(err, "failed to write record")
				}
			}

			return summarize(ctx, result, batchErr)
		},
	}
}

// summarize logs per-concept failures and turns them into the command error
func summarize(ctx context.Context, result *usecase.BatchResult, batchErr error) error {
	logger := logging.From(ctx)
	for concept, err := range result.Errors {
		logger.Error("failed to generate coordinate", "concept", concept, "error", err.Error())
	}
	if batchErr != nil {
		return batchErr
	}
	if len(result.Errors) > 0 {
		return goerr.New("some concepts failed", goerr.V("failed", len(result.Errors)))
	}
	return nil
}

func readConcepts(ctx context.Context, path string) ([]string, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		// #nosec G304 - path is expected to be provided by CLI argument
		f, err := os.Open(path)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to open concept list", goerr.V("path", path))
		}
		defer safe.Close(ctx, f)
		r = f
	}

	var concepts []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		concepts = append(concepts, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to read concept list", goerr.V("path", path))
	}
	return concepts, nil
}
