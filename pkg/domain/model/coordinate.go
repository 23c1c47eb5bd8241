package model

import (
	"math"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anchorpoint/pkg/domain/types"
)

// MaxDistance is the largest possible distance between two points of the unit hypercube
const MaxDistance = 2.0

// AnchorPoint is the fixed reference (1,1,1,1). Changing it changes the meaning of every
// distance the system has ever recorded.
var AnchorPoint = Coordinate{values: [4]float64{1, 1, 1, 1}, label: "anchor"}

// Provenance records which generator produced a coordinate
type Provenance struct {
	Method types.Method
	// Source is the hash algorithm for hash coordinates or the model name for LLM coordinates
	Source string
	// GeneratedAt is zero for hash coordinates, which do not depend on wall-clock time
	GeneratedAt time.Time
}

// Coordinate is an immutable point in the Love/Power/Wisdom/Justice unit hypercube.
// Use NewCoordinate to build one; every accessor returns a copy.
type Coordinate struct {
	values     [4]float64
	label      string
	provenance Provenance
}

// NewCoordinate validates the four dimensions and builds a Coordinate. Values outside
// [0,1] and NaN are rejected with ErrInvalidInput; they are never clamped here.
func NewCoordinate(love, power, wisdom, justice float64) (Coordinate, error) {
	values := [4]float64{love, power, wisdom, justice}
	for i, v := range values {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return Coordinate{}, goerr.Wrap(ErrInvalidInput, "dimension out of range",
				goerr.V("dimension", types.Dimensions()[i]),
				goerr.V("value", v))
		}
	}
	return Coordinate{values: values}, nil
}

// NewCoordinateFromValues builds a Coordinate from values in canonical dimension order
func NewCoordinateFromValues(values [4]float64) (Coordinate, error) {
	return NewCoordinate(values[0], values[1], values[2], values[3])
}

// Clamp forces v into [0,1]. NaN stays NaN so that NewCoordinate still rejects it.
func Clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func (c Coordinate) Love() float64    { return c.values[0] }
func (c Coordinate) Power() float64   { return c.values[1] }
func (c Coordinate) Wisdom() float64  { return c.values[2] }
func (c Coordinate) Justice() float64 { return c.values[3] }

// Value returns the value of a single dimension. Unknown dimensions return NaN.
func (c Coordinate) Value(d types.Dimension) float64 {
	i := d.Index()
	if i < 0 {
		return math.NaN()
	}
	return c.values[i]
}

// Values returns the four dimensions in canonical order
func (c Coordinate) Values() [4]float64 {
	return c.values
}

// Label returns the originating concept name, if any
func (c Coordinate) Label() string {
	return c.label
}

// Provenance returns the generation provenance
func (c Coordinate) Provenance() Provenance {
	return c.provenance
}

// WithLabel returns a copy carrying the given label
func (c Coordinate) WithLabel(label string) Coordinate {
	c.label = label
	return c
}

// WithProvenance returns a copy carrying the given provenance
func (c Coordinate) WithProvenance(p Provenance) Coordinate {
	c.provenance = p
	return c
}

// DistanceTo returns the Euclidean distance to another coordinate
func (c Coordinate) DistanceTo(other Coordinate) float64 {
	var sum float64
	for i := range c.values {
		d := c.values[i] - other.values[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Distance returns the Euclidean distance to the AnchorPoint, always within [0, MaxDistance]
func (c Coordinate) Distance() float64 {
	return c.DistanceTo(AnchorPoint)
}

// Zone classifies the distance to the AnchorPoint
func (c Coordinate) Zone() types.Zone {
	return types.ZoneOf(c.Distance())
}

// SameValues reports whether both coordinates have identical dimensions, ignoring label
// and provenance
func (c Coordinate) SameValues(other Coordinate) bool {
	return c.values == other.values
}
