package types

import (
	"github.com/m-mizutani/goerr/v2"
)

// Backend selects the coordinate cache persistence
type Backend string

const (
	// BackendEphemeral keeps entries in process memory only. It must be chosen explicitly.
	BackendEphemeral Backend = "ephemeral"
	BackendFile      Backend = "file"
	BackendSQLite    Backend = "sqlite"
	BackendPostgres  Backend = "postgres"
	BackendFirestore Backend = "firestore"
)

// AllBackends returns all supported cache backends
func AllBackends() []Backend {
	return []Backend{
		BackendEphemeral,
		BackendFile,
		BackendSQLite,
		BackendPostgres,
		BackendFirestore,
	}
}

// Validate checks if the backend is supported
func (b Backend) Validate() error {
	for _, v := range AllBackends() {
		if b == v {
			return nil
		}
	}
	return goerr.New("invalid cache backend", goerr.V("backend", b))
}

// IsDurable reports whether entries survive a process restart
func (b Backend) IsDurable() bool {
	return b != BackendEphemeral
}

// String returns the string representation of the backend
func (b Backend) String() string {
	return string(b)
}
