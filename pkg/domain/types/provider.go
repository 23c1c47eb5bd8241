package types

import (
	"github.com/m-mizutani/goerr/v2"
)

// Provider selects the language model vendor used for LLM generation
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderOpenAI Provider = "openai"
	ProviderClaude Provider = "claude"
)

// Validate checks if the provider is supported
func (p Provider) Validate() error {
	switch p {
	case ProviderGemini, ProviderOpenAI, ProviderClaude:
		return nil
	default:
		return goerr.New("invalid LLM provider", goerr.V("provider", p))
	}
}

// String returns the string representation of the provider
func (p Provider) String() string {
	return string(p)
}
