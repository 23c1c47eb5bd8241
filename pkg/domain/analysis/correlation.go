package analysis

import (
	"math"

	"github.com/montanaflynn/stats"
	"github.com/secmon-lab/anchorpoint/pkg/domain/model"
	"github.com/secmon-lab/anchorpoint/pkg/domain/types"
)

// Pearson is a product-moment correlation with its two-sided p-value. PValue is nil when
// there are too few samples for the t distribution (n < 3).
type Pearson struct {
	Status Status   `json:"status"`
	N      int      `json:"n"`
	R      float64  `json:"r"`
	PValue *float64 `json:"p_value,omitempty"`
}

// Correlation is the Pearson coefficient between two dimensions
type Correlation struct {
	A types.Dimension `json:"a"`
	B types.Dimension `json:"b"`
	Pearson
}

// PearsonOf correlates x and y. Mismatched lengths are treated as no data.
func PearsonOf(x, y []float64) Pearson {
	n := len(x)
	if n == 0 || n != len(y) {
		return Pearson{Status: StatusNoData}
	}
	if n < 2 {
		return Pearson{Status: StatusUndefined, N: n}
	}

	// stats.Correlation reports 0 for a constant series, which must not pass as "uncorrelated"
	if constant(x) || constant(y) {
		return Pearson{Status: StatusUndefined, N: n}
	}

	r, err := stats.Correlation(x, y)
	if err != nil || !finite(r) {
		return Pearson{Status: StatusUndefined, N: n}
	}
	r = math.Max(-1, math.Min(1, r))

	result := Pearson{Status: StatusOK, N: n, R: r}
	if n > 2 {
		df := float64(n - 2)
		var p float64
		if denom := 1 - r*r; denom > 0 {
			p = twoSidedT(r*math.Sqrt(df/denom), df)
		}
		result.PValue = &p
	}
	return result
}

// PairwiseCorrelation correlates every pair of dimensions across coords, in canonical order:
// love-power, love-wisdom, love-justice, power-wisdom, power-justice, wisdom-justice.
func PairwiseCorrelation(coords []model.Coordinate) []Correlation {
	dims := types.Dimensions()
	series := make([][]float64, len(dims))
	for i, d := range dims {
		series[i] = make([]float64, len(coords))
		for j, c := range coords {
			series[i][j] = c.Value(d)
		}
	}

	var result []Correlation
	for i := 0; i < len(dims); i++ {
		for j := i + 1; j < len(dims); j++ {
			result = append(result, Correlation{
				A:       dims[i],
				B:       dims[j],
				Pearson: PearsonOf(series[i], series[j]),
			})
		}
	}
	return result
}

func constant(xs []float64) bool {
	for _, x := range xs[1:] {
		if x != xs[0] {
			return false
		}
	}
	return true
}
