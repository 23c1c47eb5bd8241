package types

// Zone buckets a distance-to-anchor into coarse bands
type Zone string

const (
	ZoneInner  Zone = "inner"
	ZoneMiddle Zone = "middle"
	ZoneOuter  Zone = "outer"
	ZoneFar    Zone = "far"
)

// Upper bounds (exclusive) of the inner, middle and outer bands. Anything at or beyond
// the last bound is far.
const (
	ZoneInnerBound  = 0.5
	ZoneMiddleBound = 1.0
	ZoneOuterBound  = 1.5
)

// AllZones returns all zones ordered from closest to farthest
func AllZones() []Zone {
	return []Zone{
		ZoneInner,
		ZoneMiddle,
		ZoneOuter,
		ZoneFar,
	}
}

// ZoneOf classifies a distance-to-anchor
func ZoneOf(distance float64) Zone {
	switch {
	case distance < ZoneInnerBound:
		return ZoneInner
	case distance < ZoneMiddleBound:
		return ZoneMiddle
	case distance < ZoneOuterBound:
		return ZoneOuter
	default:
		return ZoneFar
	}
}

// String returns the string representation of the zone
func (z Zone) String() string {
	return string(z)
}
