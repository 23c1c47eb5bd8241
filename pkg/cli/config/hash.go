package config

import (
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anchorpoint/pkg/domain/types"
	"github.com/secmon-lab/anchorpoint/pkg/service/hash"
	"github.com/urfave/cli/v3"
)

// Hash holds CLI flags for the deterministic generator
type Hash struct {
	algorithm string
}

// Flags returns CLI flags for hash configuration
func (h *Hash) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "hash-algorithm",
			Usage:       "Digest for hash coordinates (sha256, sha1, md5, sha512, blake2b-256)",
			Value:       string(types.DefaultHashAlgorithm),
			Category:    "Generation",
			Sources:     cli.EnvVars("ANCHORPOINT_HASH_ALGORITHM"),
			Destination: &h.algorithm,
		},
	}
}

// LogAttrs returns log attributes for the hash configuration
func (h *Hash) LogAttrs() []slog.Attr {
	return []slog.Attr{slog.String("algorithm", h.algorithm)}
}

// Configure creates the hash generator
func (h *Hash) Configure() (*hash.Generator, error) {
	gen, err := hash.New(types.HashAlgorithm(h.algorithm))
	if err != nil {
		return nil, goerr.Wrap(err, "invalid hash configuration")
	}
	return gen, nil
}
