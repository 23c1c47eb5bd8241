package types

import "fmt"

// Dimension names one axis of a coordinate
type Dimension string

const (
	DimensionLove    Dimension = "love"
	DimensionPower   Dimension = "power"
	DimensionWisdom  Dimension = "wisdom"
	DimensionJustice Dimension = "justice"
)

// Dimensions returns all dimensions in canonical order
func Dimensions() []Dimension {
	return []Dimension{
		DimensionLove,
		DimensionPower,
		DimensionWisdom,
		DimensionJustice,
	}
}

// Index returns the position of the dimension in canonical order, or -1 if unknown
func (d Dimension) Index() int {
	switch d {
	case DimensionLove:
		return 0
	case DimensionPower:
		return 1
	case DimensionWisdom:
		return 2
	case DimensionJustice:
		return 3
	default:
		return -1
	}
}

// IsValid checks if the dimension is one of the four known axes
func (d Dimension) IsValid() bool {
	return d.Index() >= 0
}

// Title returns the capitalized label used in prompts and reports
func (d Dimension) Title() string {
	switch d {
	case DimensionLove:
		return "Love"
	case DimensionPower:
		return "Power"
	case DimensionWisdom:
		return "Wisdom"
	case DimensionJustice:
		return "Justice"
	default:
		return string(d)
	}
}

// String returns the string representation of the dimension
func (d Dimension) String() string {
	return string(d)
}

// ParseDimension parses a string into a Dimension
func ParseDimension(s string) (Dimension, error) {
	d := Dimension(s)
	if !d.IsValid() {
		return "", fmt.Errorf("invalid dimension: %s", s)
	}
	return d, nil
}
