package config

import "time"

// NewLLMForTest creates an LLM config for testing purposes
func NewLLMForTest(provider, model, projectID, location, apiKey string) *LLM {
	return &LLM{
		provider:  provider,
		model:     model,
		projectID: projectID,
		location:  location,
		apiKey:    apiKey,
	}
}

// NewRepositoryForTest creates a cache config for testing purposes
func NewRepositoryForTest(backend, path string) *Repository {
	return &Repository{
		backend: backend,
		path:    path,
	}
}

// CachePath returns the database file the backend would open
func (r *Repository) CachePath() string {
	return r.pathOrDefault()
}

// NewGenerationForTest creates a generation config for testing purposes
func NewGenerationForTest(concurrency int, timeout time.Duration, retryBudget int, backoffBase, backoffMax time.Duration) *Generation {
	return &Generation{
		concurrency: concurrency,
		timeout:     timeout,
		retryBudget: retryBudget,
		backoffBase: backoffBase,
		backoffMax:  backoffMax,
	}
}

// SetCancelPolicyForTest toggles abandonment and fail-fast
func (g *Generation) SetCancelPolicyForTest(abandon, failFast bool) {
	g.abandon = abandon
	g.failFast = failFast
}

// NewLoggerForTest creates a logger config for testing purposes
func NewLoggerForTest(level, format, output string) *Logger {
	return &Logger{
		level:  level,
		format: format,
		output: output,
	}
}

// NewHashForTest creates a hash config for testing purposes
func NewHashForTest(algorithm string) *Hash {
	return &Hash{algorithm: algorithm}
}
