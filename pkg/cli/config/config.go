package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/secmon-lab/anchorpoint/pkg/domain/model"
)

// DatasetFile is the on-disk layout of a dataset:
//
//	[[category]]
//	name = "divine"
//	concepts = ["God", "Grace"]
type DatasetFile struct {
	Categories []DatasetCategory `toml:"category" json:"categories"`
}

// DatasetCategory is one named list of concepts
type DatasetCategory struct {
	Name     string   `toml:"name" json:"name"`
	Concepts []string `toml:"concepts" json:"concepts"`
}

// ToDataset converts the file layout to the domain dataset and validates it
func (f *DatasetFile) ToDataset() (*model.Dataset, error) {
	ds := &model.Dataset{Categories: make([]model.Category, len(f.Categories))}
	for i, c := range f.Categories {
		ds.Categories[i] = model.Category{
			Name:     strings.TrimSpace(c.Name),
			Concepts: c.Concepts,
		}
	}
	if err := ds.Validate(); err != nil {
		return nil, goerr.Wrap(ErrInvalidConfig, "invalid dataset", goerr.V("cause", err.Error()))
	}
	return ds, nil
}

// LoadDataset reads a dataset from a TOML file, or JSON when the extension is .json
func LoadDataset(path string) (*model.Dataset, error) {
	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, goerr.Wrap(ErrConfigNotFound, "dataset file not found", goerr.V(ConfigPathKey, path))
		}
		return nil, goerr.Wrap(err, "failed to read dataset file", goerr.V(ConfigPathKey, path))
	}

	var file DatasetFile
	format := "toml"
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = "json"
		err = json.Unmarshal(data, &file)
	} else {
		err = toml.Unmarshal(data, &file)
	}
	if err != nil {
		return nil, goerr.Wrap(ErrInvalidConfig, "failed to parse dataset file",
			goerr.V(ConfigPathKey, path), goerr.V(FormatKey, format), goerr.V("cause", err.Error()))
	}

	ds, err := file.ToDataset()
	if err != nil {
		return nil, goerr.Wrap(err, "dataset validation failed", goerr.V(ConfigPathKey, path))
	}
	return ds, nil
}
