package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gollem/llm/claude"
	"github.com/m-mizutani/gollem/llm/gemini"
	"github.com/m-mizutani/gollem/llm/openai"
	"github.com/secmon-lab/anchorpoint/pkg/domain/types"
	"github.com/urfave/cli/v3"
)

// LLM holds configuration for the language model client used by the llm method
type LLM struct {
	provider  string
	model     string
	projectID string
	location  string
	apiKey    string `masq:"secret"`
}

// Flags returns CLI flags for LLM configuration
func (l *LLM) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "llm-provider",
			Usage:       "LLM provider (gemini, openai, claude)",
			Value:       string(types.ProviderGemini),
			Category:    "LLM",
			Sources:     cli.EnvVars("ANCHORPOINT_LLM_PROVIDER"),
			Destination: &l.provider,
		},
		&cli.StringFlag{
			Name:        "llm-model",
			Usage:       "Model name; the provider default is used when empty",
			Category:    "LLM",
			Sources:     cli.EnvVars("ANCHORPOINT_LLM_MODEL"),
			Destination: &l.model,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini API",
			Category:    "LLM",
			Sources:     cli.EnvVars("ANCHORPOINT_GEMINI_PROJECT"),
			Destination: &l.projectID,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini API",
			Value:       "us-central1",
			Category:    "LLM",
			Sources:     cli.EnvVars("ANCHORPOINT_GEMINI_LOCATION"),
			Destination: &l.location,
		},
		&cli.StringFlag{
			Name:        "llm-api-key",
			Usage:       "API key for OpenAI or Claude",
			Category:    "LLM",
			Sources:     cli.EnvVars("ANCHORPOINT_LLM_API_KEY"),
			Destination: &l.apiKey,
		},
	}
}

// LogAttrs returns log attributes for the LLM configuration
func (l *LLM) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("provider", l.provider),
		slog.String("model", l.model),
		slog.String("project_id", l.projectID),
		slog.String("location", l.location),
		slog.Bool("api_key_set", l.apiKey != ""),
	}
}

// Model returns the configured model name
func (l *LLM) Model() string {
	return l.model
}

// Enabled reports whether enough settings are present to build a client
func (l *LLM) Enabled() bool {
	switch types.Provider(l.provider) {
	case types.ProviderGemini:
		return l.projectID != ""
	case types.ProviderOpenAI, types.ProviderClaude:
		return l.apiKey != ""
	default:
		return false
	}
}

// Configure creates the LLM client for the configured provider.
// Returns nil if the provider credentials are not configured (the llm method will be unavailable).
func (l *LLM) Configure(ctx context.Context) (gollem.LLMClient, error) {
	provider := types.Provider(l.provider)
	if err := provider.Validate(); err != nil {
		return nil, goerr.Wrap(ErrInvalidConfig, "invalid llm provider", goerr.V("provider", l.provider))
	}
	if !l.Enabled() {
		return nil, nil
	}

	switch provider {
	case types.ProviderGemini:
		var opts []gemini.Option
		if l.model != "" {
			opts = append(opts, gemini.WithModel(l.model))
		}
		client, err := gemini.New(ctx, l.projectID, l.location, opts...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create Gemini client")
		}
		return client, nil

	case types.ProviderOpenAI:
		var opts []openai.Option
		if l.model != "" {
			opts = append(opts, openai.WithModel(l.model))
		}
		client, err := openai.New(ctx, l.apiKey, opts...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create OpenAI client")
		}
		return client, nil

	default:
		var opts []claude.Option
		if l.model != "" {
			opts = append(opts, claude.WithModel(l.model))
		}
		client, err := claude.New(ctx, l.apiKey, opts...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create Claude client")
		}
		return client, nil
	}
}
