package analysis

import (
	"math"
	"slices"

	"github.com/secmon-lab/anchorpoint/pkg/domain/model"
	"github.com/secmon-lab/anchorpoint/pkg/domain/types"
)

// ConceptDiff compares the two coordinates of one concept
type ConceptDiff struct {
	Concept string `json:"concept"`
	// Diff is a minus b per dimension in canonical order
	Diff         [4]float64 `json:"diff"`
	MeanAbsDiff  float64    `json:"mean_abs_diff"`
	DistanceDiff float64    `json:"distance_diff"`
}

// DimensionAgreement compares one dimension across the shared concepts
type DimensionAgreement struct {
	Dimension   types.Dimension `json:"dimension"`
	MeanAbsDiff float64         `json:"mean_abs_diff"`
	Correlation Pearson         `json:"correlation"`
}

// Agreement compares two coordinate sets keyed by concept. Aggregates use shared concepts
// only; the rest are reported as coverage gaps.
type Agreement struct {
	Status              Status               `json:"status"`
	N                   int                  `json:"n"`
	MeanAbsDiff         float64              `json:"mean_abs_diff"`
	DistanceCorrelation Pearson              `json:"distance_correlation"`
	PerDimension        []DimensionAgreement `json:"per_dimension"`
	PerConcept          []ConceptDiff        `json:"per_concept"`
	OnlyInA             []string             `json:"only_in_a"`
	OnlyInB             []string             `json:"only_in_b"`
}

// CrossMethodAgreement measures how closely two generators agree on the same concepts
func CrossMethodAgreement(a, b map[string]model.Coordinate) Agreement {
	result := Agreement{
		OnlyInA: []string{},
		OnlyInB: []string{},
	}

	var shared []string
	for concept := range a {
		if _, ok := b[concept]; ok {
			shared = append(shared, concept)
		} else {
			result.OnlyInA = append(result.OnlyInA, concept)
		}
	}
	for concept := range b {
		if _, ok := a[concept]; !ok {
			result.OnlyInB = append(result.OnlyInB, concept)
		}
	}
	slices.Sort(shared)
	slices.Sort(result.OnlyInA)
	slices.Sort(result.OnlyInB)

	result.N = len(shared)
	if len(shared) == 0 {
		result.Status = StatusNoData
		return result
	}

	dims := types.Dimensions()
	seriesA := make([][]float64, len(dims))
	seriesB := make([][]float64, len(dims))
	distA := make([]float64, len(shared))
	distB := make([]float64, len(shared))
	dimAbs := make([]float64, len(dims))
	var totalAbs float64

	for i, concept := range shared {
		ca, cb := a[concept], b[concept]
		va, vb := ca.Values(), cb.Values()

		diff := ConceptDiff{Concept: concept}
		var conceptAbs float64
		for d := range dims {
			diff.Diff[d] = va[d] - vb[d]
			abs := math.Abs(diff.Diff[d])
			conceptAbs += abs
			dimAbs[d] += abs
			seriesA[d] = append(seriesA[d], va[d])
			seriesB[d] = append(seriesB[d], vb[d])
		}
		diff.MeanAbsDiff = conceptAbs / float64(len(dims))
		distA[i], distB[i] = ca.Distance(), cb.Distance()
		diff.DistanceDiff = distA[i] - distB[i]
		totalAbs += conceptAbs

		result.PerConcept = append(result.PerConcept, diff)
	}

	for d, dim := range dims {
		result.PerDimension = append(result.PerDimension, DimensionAgreement{
			Dimension:   dim,
			MeanAbsDiff: dimAbs[d] / float64(len(shared)),
			Correlation: PearsonOf(seriesA[d], seriesB[d]),
		})
	}

	result.Status = StatusOK
	result.MeanAbsDiff = totalAbs / float64(len(shared)*len(dims))
	result.DistanceCorrelation = PearsonOf(distA, distB)
	return result
}
