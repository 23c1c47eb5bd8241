package model

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors shared by generators, repositories and analysis
var (
	// ErrInvalidInput means the caller supplied an out-of-contract concept or value. Never retried.
	ErrInvalidInput = goerr.New("invalid input")

	// ErrTransientService covers network, timeout and rate-limit failures of the LLM call.
	ErrTransientService = goerr.New("transient service failure")

	// ErrMalformedResponse means a model response could not be parsed into four valid dimensions.
	ErrMalformedResponse = goerr.New("malformed response")

	// ErrCacheUnavailable means the persistence backend could not be reached.
	ErrCacheUnavailable = goerr.New("cache unavailable")

	// ErrNotFound means the cache holds no entry for the concept.
	ErrNotFound = goerr.New("entry not found")

	// ErrNoData means a statistic was requested over an empty set.
	ErrNoData = goerr.New("no data")

	// ErrUndefined means a statistic is undefined for the input, e.g. zero variance.
	ErrUndefined = goerr.New("undefined statistic")
)

// Context keys for error values
const (
	ConceptKey = "concept"
	StageKey   = "stage"
	AttemptKey = "attempt"
	BackendKey = "backend"
)

// Stages reported with StageKey
const (
	StageValidate = "validate"
	StageCacheGet = "cache_get"
	StageCachePut = "cache_put"
	StageGenerate = "generate"
	StageParse    = "parse"
)
