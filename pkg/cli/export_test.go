package cli

import (
	"context"
	"io"
)

// RunWithWriter runs the app with command output sent to w
func RunWithWriter(ctx context.Context, args []string, w io.Writer) error {
	return run(ctx, args, "test", w)
}

// LoadEnvFiles exposes the env file pre-scan
func LoadEnvFiles(args []string) error {
	return loadEnvFiles(args)
}
