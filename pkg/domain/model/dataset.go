package model

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// Category is a named, ordered list of concepts supplied by the caller
type Category struct {
	Name     string   `json:"name"`
	Concepts []string `json:"concepts"`
}

// Dataset is an ordered set of categories. Membership is never checked for meaning,
// only for shape.
type Dataset struct {
	Categories []Category `json:"categories"`
}

// Validate checks category names are present and unique. Concepts must be valid keys and
// not blank: a curated list has no use for an empty entry even though the hash method
// accepts one.
func (d *Dataset) Validate() error {
	if d == nil {
		return goerr.Wrap(ErrInvalidInput, "dataset is required")
	}
	seen := make(map[string]bool, len(d.Categories))
	for _, c := range d.Categories {
		if c.Name == "" {
			return goerr.Wrap(ErrInvalidInput, "category name is required")
		}
		if seen[c.Name] {
			return goerr.Wrap(ErrInvalidInput, "duplicate category", goerr.V("category", c.Name))
		}
		seen[c.Name] = true

		for _, concept := range c.Concepts {
			if err := ValidateConcept(concept); err != nil {
				return goerr.Wrap(err, "invalid concept in category", goerr.V("category", c.Name))
			}
			if strings.TrimSpace(concept) == "" {
				return goerr.Wrap(ErrInvalidInput, "blank concept in category", goerr.V("category", c.Name))
			}
		}
	}
	return nil
}

// Concepts returns every distinct concept in first-seen order
func (d *Dataset) Concepts() []string {
	seen := make(map[string]bool)
	var concepts []string
	for _, c := range d.Categories {
		for _, concept := range c.Concepts {
			if seen[concept] {
				continue
			}
			seen[concept] = true
			concepts = append(concepts, concept)
		}
	}
	return concepts
}

// Group arranges generated coordinates by category. Concepts without a coordinate are
// left out, so a category may come back empty.
func (d *Dataset) Group(coords map[string]Coordinate) map[string][]Coordinate {
	grouped := make(map[string][]Coordinate, len(d.Categories))
	for _, c := range d.Categories {
		list := make([]Coordinate, 0, len(c.Concepts))
		for _, concept := range c.Concepts {
			if coord, ok := coords[concept]; ok {
				list = append(list, coord)
			}
		}
		grouped[c.Name] = list
	}
	return grouped
}
