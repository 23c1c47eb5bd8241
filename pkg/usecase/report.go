package usecase

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anchorpoint/pkg/domain/analysis"
	"github.com/secmon-lab/anchorpoint/pkg/domain/model"
	"github.com/secmon-lab/anchorpoint/pkg/domain/types"
)

// ConceptPoint is one concept's coordinate in a report
type ConceptPoint struct {
	Concept  string     `json:"concept"`
	Values   [4]float64 `json:"values"`
	Distance float64    `json:"distance"`
	Zone     types.Zone `json:"zone"`
}

// CategoryReport is the distance summary of one dataset category
type CategoryReport struct {
	Name string `json:"name"`
	analysis.Summary
	Concepts []ConceptPoint `json:"concepts"`
}

// CategoryTTest compares two categories with Welch's t-test
type CategoryTTest struct {
	A string `json:"a"`
	B string `json:"b"`
	analysis.TTest
}

// Report is the statistics of a dataset generated by one method
type Report struct {
	Method        types.Method           `json:"method"`
	GeneratedAt   time.Time              `json:"generated_at"`
	Categories    []CategoryReport       `json:"categories"`
	Overall       analysis.Summary       `json:"overall"`
	Correlations  []analysis.Correlation `json:"correlations"`
	TTests        []CategoryTTest        `json:"t_tests"`
	ZoneChiSquare analysis.ChiSquare     `json:"zone_chi_square"`
	// Failed maps concepts that could not be generated to the reason
	Failed  map[string]string `json:"failed"`
	Skipped []string          `json:"skipped,omitempty"`
}

// BuildReport generates every concept of the dataset and computes category statistics,
// dimension correlations, pairwise t-tests and a zone chi-square test. Failed concepts are
// listed in the report and left out of every statistic.
func (uc *UseCases) BuildReport(ctx context.Context, dataset *model.Dataset, method types.Method) (*Report, error) {
	if err := dataset.Validate(); err != nil {
		return nil, err
	}

	g, err := uc.Generator(method)
	if err != nil {
		return nil, err
	}

	coords, failed, skipped, err := uc.generateAll(ctx, g, dataset)
	if err != nil {
		return nil, err
	}

	groups := dataset.Group(coords)
	stats := analysis.CategoryStatistics(groups)

	report := &Report{
		Method:        g.Method(),
		GeneratedAt:   uc.now(),
		Failed:        failed,
		Skipped:       skipped,
		ZoneChiSquare: analysis.ZoneChiSquare(groups),
	}

	var all []model.Coordinate
	for _, category := range dataset.Categories {
		cr := CategoryReport{
			Name:     category.Name,
			Summary:  stats[category.Name],
			Concepts: []ConceptPoint{},
		}
		for _, concept := range category.Concepts {
			c, ok := coords[concept]
			if !ok {
				continue
			}
			cr.Concepts = append(cr.Concepts, ConceptPoint{
				Concept:  concept,
				Values:   c.Values(),
				Distance: c.Distance(),
				Zone:     c.Zone(),
			})
		}
		report.Categories = append(report.Categories, cr)
	}

	for _, concept := range dataset.Concepts() {
		if c, ok := coords[concept]; ok {
			all = append(all, c)
		}
	}
	report.Overall = analysis.Summarize(analysis.Distances(all))
	report.Correlations = analysis.PairwiseCorrelation(all)

	for i := 0; i < len(dataset.Categories); i++ {
		for j := i + 1; j < len(dataset.Categories); j++ {
			a, b := dataset.Categories[i].Name, dataset.Categories[j].Name
			report.TTests = append(report.TTests, CategoryTTest{
				A:     a,
				B:     b,
				TTest: analysis.WelchTTest(groups[a], groups[b]),
			})
		}
	}

	return report, nil
}

// Comparison is the cross-method agreement over one dataset
type Comparison struct {
	MethodA     types.Method       `json:"method_a"`
	MethodB     types.Method       `json:"method_b"`
	GeneratedAt time.Time          `json:"generated_at"`
	Agreement   analysis.Agreement `json:"agreement"`
	FailedA     map[string]string  `json:"failed_a"`
	FailedB     map[string]string  `json:"failed_b"`
}

// CompareMethods generates the dataset with both methods and measures their agreement.
// Concepts that failed on one side show up as coverage gaps.
func (uc *UseCases) CompareMethods(ctx context.Context, dataset *model.Dataset, methodA, methodB types.Method) (*Comparison, error) {
	if err := dataset.Validate(); err != nil {
		return nil, err
	}

	ga, err := uc.Generator(methodA)
	if err != nil {
		return nil, err
	}
	gb, err := uc.Generator(methodB)
	if err != nil {
		return nil, err
	}

	coordsA, failedA, _, err := uc.generateAll(ctx, ga, dataset)
	if err != nil {
		return nil, err
	}
	coordsB, failedB, _, err := uc.generateAll(ctx, gb, dataset)
	if err != nil {
		return nil, err
	}

	return &Comparison{
		MethodA:     ga.Method(),
		MethodB:     gb.Method(),
		GeneratedAt: uc.now(),
		Agreement:   analysis.CrossMethodAgreement(coordsA, coordsB),
		FailedA:     failedA,
		FailedB:     failedB,
	}, nil
}

func (uc *UseCases) generateAll(ctx context.Context, g *Generator, dataset *model.Dataset) (map[string]model.Coordinate, map[string]string, []string, error) {
	result, err := g.GenerateBatch(ctx, dataset.Concepts(), uc.batch)
	if err != nil {
		return nil, nil, nil, goerr.Wrap(err, "failed to generate dataset coordinates",
			goerr.V("method", g.Method()))
	}

	failed := make(map[string]string, len(result.Errors))
	for concept, err := range result.Errors {
		failed[concept] = err.Error()
	}

	skipped := append(result.Skipped, result.Abandoned...)
	return result.Coordinates(), failed, skipped, nil
}
