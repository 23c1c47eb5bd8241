package types

import (
	"github.com/m-mizutani/goerr/v2"
)

// Method identifies how a coordinate was generated
type Method string

const (
	MethodHash Method = "hash"
	MethodLLM  Method = "llm"
)

// AllMethods returns all valid generation methods
func AllMethods() []Method {
	return []Method{
		MethodHash,
		MethodLLM,
	}
}

// Validate checks if the method is known
func (m Method) Validate() error {
	switch m {
	case MethodHash, MethodLLM:
		return nil
	default:
		return goerr.New("invalid generation method", goerr.V("method", m))
	}
}

// String returns the string representation of the method
func (m Method) String() string {
	return string(m)
}
