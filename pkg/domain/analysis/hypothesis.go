package analysis

import (
	"math"
	"slices"

	"github.com/montanaflynn/stats"
	"github.com/secmon-lab/anchorpoint/pkg/domain/model"
	"github.com/secmon-lab/anchorpoint/pkg/domain/types"
	"gonum.org/v1/gonum/stat/distuv"
)

// TTest is Welch's unequal-variance t-test on distance-to-anchor of two samples
type TTest struct {
	Status Status  `json:"status"`
	NA     int     `json:"n_a"`
	NB     int     `json:"n_b"`
	MeanA  float64 `json:"mean_a"`
	MeanB  float64 `json:"mean_b"`
	T      float64 `json:"t"`
	DF     float64 `json:"df"`
	PValue float64 `json:"p_value"`
}

// WelchTTest compares the mean distance of a and b. Each side needs two samples and at least
// one side must vary.
func WelchTTest(a, b []model.Coordinate) TTest {
	da, db := Distances(a), Distances(b)
	result := TTest{NA: len(da), NB: len(db)}
	if len(da) == 0 || len(db) == 0 {
		result.Status = StatusNoData
		return result
	}

	result.MeanA, _ = stats.Mean(da)
	result.MeanB, _ = stats.Mean(db)
	if len(da) < 2 || len(db) < 2 {
		result.Status = StatusUndefined
		return result
	}

	if constant(da) && constant(db) {
		result.Status = StatusUndefined
		return result
	}

	va, _ := stats.SampleVariance(da)
	vb, _ := stats.SampleVariance(db)
	sa, sb := va/float64(len(da)), vb/float64(len(db))
	se2 := sa + sb
	if se2 <= 0 {
		result.Status = StatusUndefined
		return result
	}

	t := (result.MeanA - result.MeanB) / math.Sqrt(se2)
	df := se2 * se2 / (sa*sa/float64(len(da)-1) + sb*sb/float64(len(db)-1))
	if !finite(t) || !finite(df) {
		result.Status = StatusUndefined
		return result
	}

	result.Status = StatusOK
	result.T = t
	result.DF = df
	result.PValue = twoSidedT(t, df)
	return result
}

// ChiSquare is Pearson's chi-square test of independence between category and zone
type ChiSquare struct {
	Status     Status                        `json:"status"`
	Statistic  float64                       `json:"statistic"`
	DF         int                           `json:"df"`
	PValue     float64                       `json:"p_value"`
	Categories []string                      `json:"categories"`
	Zones      []types.Zone                  `json:"zones"`
	Observed   map[string]map[types.Zone]int `json:"observed"`
}

// ZoneChiSquare tests whether zone membership depends on category. Empty categories and
// zones no coordinate falls in are dropped from the table.
func ZoneChiSquare(groups map[string][]model.Coordinate) ChiSquare {
	result := ChiSquare{
		Categories: []string{},
		Zones:      []types.Zone{},
		Observed:   make(map[string]map[types.Zone]int),
	}

	colTotals := make(map[types.Zone]int)
	rowTotals := make(map[string]int)
	var total int
	for category, coords := range groups {
		if len(coords) == 0 {
			continue
		}
		row := make(map[types.Zone]int)
		for _, c := range coords {
			z := c.Zone()
			row[z]++
			colTotals[z]++
		}
		result.Observed[category] = row
		result.Categories = append(result.Categories, category)
		rowTotals[category] = len(coords)
		total += len(coords)
	}
	slices.Sort(result.Categories)
	for _, z := range types.AllZones() {
		if colTotals[z] > 0 {
			result.Zones = append(result.Zones, z)
		}
	}

	if total == 0 {
		result.Status = StatusNoData
		return result
	}
	if len(result.Categories) < 2 || len(result.Zones) < 2 {
		result.Status = StatusUndefined
		return result
	}

	var statistic float64
	for _, category := range result.Categories {
		for _, z := range result.Zones {
			expected := float64(rowTotals[category]) * float64(colTotals[z]) / float64(total)
			diff := float64(result.Observed[category][z]) - expected
			statistic += diff * diff / expected
		}
	}

	df := (len(result.Categories) - 1) * (len(result.Zones) - 1)
	result.Status = StatusOK
	result.Statistic = statistic
	result.DF = df
	result.PValue = distuv.ChiSquared{K: float64(df)}.Survival(statistic)
	return result
}
