package rating

import "time"

var (
	BuildSystemPrompt = buildSystemPrompt
	BuildUserPrompt   = buildUserPrompt
	BuildStrictPrompt = buildStrictPrompt
)

// Backoff exposes the retry delay sequence for testing
func (s *Service) Backoff(attempt int) time.Duration {
	return s.backoff(attempt)
}
