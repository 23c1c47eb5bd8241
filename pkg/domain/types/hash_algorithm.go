package types

import (
	"github.com/m-mizutani/goerr/v2"
)

// HashAlgorithm selects the digest used by the deterministic generator
type HashAlgorithm string

const (
	HashSHA256     HashAlgorithm = "sha256"
	HashSHA1       HashAlgorithm = "sha1"
	HashMD5        HashAlgorithm = "md5"
	HashSHA512     HashAlgorithm = "sha512"
	HashBLAKE2b256 HashAlgorithm = "blake2b-256"

	DefaultHashAlgorithm = HashSHA256
)

// AllHashAlgorithms returns all supported digest algorithms
func AllHashAlgorithms() []HashAlgorithm {
	return []HashAlgorithm{
		HashSHA256,
		HashSHA1,
		HashMD5,
		HashSHA512,
		HashBLAKE2b256,
	}
}

// Validate checks if the algorithm is supported
func (h HashAlgorithm) Validate() error {
	for _, a := range AllHashAlgorithms() {
		if h == a {
			return nil
		}
	}
	return goerr.New("unsupported hash algorithm", goerr.V("algorithm", h))
}

// String returns the string representation of the algorithm
func (h HashAlgorithm) String() string {
	return string(h)
}
