// Package hash derives coordinates deterministically from a digest of the concept.
//
// The digest of the UTF-8 bytes is split into four equal, disjoint slices in canonical
// dimension order. Each slice is read as a big-endian unsigned integer and divided by the
// largest integer of that width, so all-zero bytes map to 0 and all-one bytes map to 1.
package hash

import (
	"context"
	"crypto/md5"  // #nosec G501 - used for pseudo-random mapping, not security
	"crypto/sha1" // #nosec G505 - used for pseudo-random mapping, not security
	"crypto/sha256"
	"crypto/sha512"
	stdhash "hash"
	"math/big"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anchorpoint/pkg/domain/interfaces"
	"github.com/secmon-lab/anchorpoint/pkg/domain/model"
	"github.com/secmon-lab/anchorpoint/pkg/domain/types"
	"golang.org/x/crypto/blake2b"
)

// quantizePrecision is wide enough to hold a full 128-bit slice (sha512) exactly
const quantizePrecision = 256

// Generator is a deterministic coordinate generator bound to one digest algorithm
type Generator struct {
	algorithm types.HashAlgorithm
	newHash   func() stdhash.Hash
	now       func() time.Time
}

var (
	_ interfaces.Generator        = &Generator{}
	_ interfaces.CoordinateSource = &Generator{}
)

// Option is a functional option for Generator configuration
type Option func(*Generator)

// WithClock overrides the clock used to stamp cache entries. Coordinates never depend on it.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// New creates a Generator for the given algorithm. The algorithm is fixed for the
// generator's lifetime.
func New(algorithm types.HashAlgorithm, opts ...Option) (*Generator, error) {
	newHash, err := hasherOf(algorithm)
	if err != nil {
		return nil, err
	}

	g := &Generator{
		algorithm: algorithm,
		newHash:   newHash,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func hasherOf(algorithm types.HashAlgorithm) (func() stdhash.Hash, error) {
	switch algorithm {
	case types.HashSHA256:
		return sha256.New, nil
	case types.HashSHA1:
		return sha1.New, nil
	case types.HashMD5:
		return md5.New, nil
	case types.HashSHA512:
		return sha512.New, nil
	case types.HashBLAKE2b256:
		return func() stdhash.Hash {
			// New256 only fails for keys longer than 64 bytes
			h, _ := blake2b.New256(nil)
			return h
		}, nil
	default:
		return nil, goerr.Wrap(model.ErrInvalidInput, "unsupported hash algorithm",
			goerr.V("algorithm", algorithm))
	}
}

// Method returns types.MethodHash
func (g *Generator) Method() types.Method {
	return types.MethodHash
}

// Algorithm returns the configured digest algorithm
func (g *Generator) Algorithm() types.HashAlgorithm {
	return g.algorithm
}

// Generate returns the coordinate for a concept. It is a pure function of the concept and
// the algorithm; the returned coordinate is labelled with the concept.
func (g *Generator) Generate(ctx context.Context, concept string) (model.Coordinate, error) {
	if err := model.ValidateConcept(concept); err != nil {
		return model.Coordinate{}, err
	}

	h := g.newHash()
	_, _ = h.Write([]byte(concept))
	digest := h.Sum(nil)

	width := len(digest) / 4
	var values [4]float64
	for i := range values {
		values[i] = quantize(digest[i*width : (i+1)*width])
	}

	coord, err := model.NewCoordinateFromValues(values)
	if err != nil {
		// quantize never leaves [0,1]
		return model.Coordinate{}, goerr.Wrap(err, "hash coordinate out of range",
			goerr.V(model.ConceptKey, concept))
	}

	return coord.WithLabel(concept).WithProvenance(model.Provenance{
		Method: types.MethodHash,
		Source: string(g.algorithm),
	}), nil
}

// Produce wraps Generate into a cache entry stamped with the generation time
func (g *Generator) Produce(ctx context.Context, concept string) (*model.Entry, error) {
	coord, err := g.Generate(ctx, concept)
	if err != nil {
		return nil, err
	}

	return &model.Entry{
		Concept:       concept,
		Coordinate:    coord,
		Method:        types.MethodHash,
		GenerationID:  model.NewGenerationID(),
		GeneratedAt:   g.now(),
		HashAlgorithm: g.algorithm,
	}, nil
}

// Coordinate is a convenience for one-off generation without keeping a Generator
func Coordinate(algorithm types.HashAlgorithm, concept string) (model.Coordinate, error) {
	g, err := New(algorithm)
	if err != nil {
		return model.Coordinate{}, err
	}
	return g.Generate(context.Background(), concept)
}

// quantize maps b, read as a big-endian unsigned integer, onto [0,1] by dividing by
// 2^(8*len(b)) - 1
func quantize(b []byte) float64 {
	num := new(big.Float).SetPrec(quantizePrecision).SetInt(new(big.Int).SetBytes(b))

	maxInt := new(big.Int).Lsh(big.NewInt(1), uint(8*len(b)))
	maxInt.Sub(maxInt, big.NewInt(1))
	den := new(big.Float).SetPrec(quantizePrecision).SetInt(maxInt)

	f, _ := new(big.Float).SetPrec(quantizePrecision).Quo(num, den).Float64()
	return f
}
