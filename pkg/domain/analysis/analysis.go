// Package analysis holds the statistics computed over coordinate collections. Every function is
// pure. Degenerate input is reported through Status and never as NaN or Inf.
package analysis

import (
	"math"

	"github.com/montanaflynn/stats"
	"github.com/secmon-lab/anchorpoint/pkg/domain/model"
	"gonum.org/v1/gonum/stat/distuv"
)

// Status tells whether a statistic could be computed
type Status string

const (
	StatusOK Status = "ok"
	// StatusNoData means the input set was empty
	StatusNoData Status = "no_data"
	// StatusUndefined means the input was present but degenerate, e.g. zero variance
	StatusUndefined Status = "undefined"
)

// Err maps a non-ok status onto the model error taxonomy
func (s Status) Err() error {
	switch s {
	case StatusNoData:
		return model.ErrNoData
	case StatusUndefined:
		return model.ErrUndefined
	default:
		return nil
	}
}

// Summary is the minimal distance report shape: mean, population stddev, min, max and n
type Summary struct {
	Status Status  `json:"status"`
	N      int     `json:"n"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Summarize describes values with population standard deviation
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{Status: StatusNoData}
	}

	data := stats.Float64Data(values)
	mean, _ := data.Mean()
	stdDev, _ := data.StandardDeviationPopulation()
	minV, _ := data.Min()
	maxV, _ := data.Max()

	return Summary{
		Status: StatusOK,
		N:      len(values),
		Mean:   mean,
		StdDev: stdDev,
		Min:    minV,
		Max:    maxV,
	}
}

// Distances returns the distance to the anchor point of every coordinate
func Distances(coords []model.Coordinate) []float64 {
	d := make([]float64, len(coords))
	for i, c := range coords {
		d[i] = c.Distance()
	}
	return d
}

// CategoryStatistics summarizes distance-to-anchor per category
func CategoryStatistics(groups map[string][]model.Coordinate) map[string]Summary {
	result := make(map[string]Summary, len(groups))
	for category, coords := range groups {
		result[category] = Summarize(Distances(coords))
	}
	return result
}

// twoSidedT returns the two-sided p-value of t under Student's t with df degrees of freedom
func twoSidedT(t, df float64) float64 {
	if math.IsInf(t, 0) {
		return 0
	}
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p := 2 * dist.Survival(math.Abs(t))
	return math.Min(1, math.Max(0, p))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
