// Package sampledata enumerates the read-only directory of FHIR bundle JSON
// files produced by the external data-generation tool, keyed on
// population_size (spec.md §6).
//
// Grounded on the original orchestrator's sample_data.rs::SampleResourceIter,
// simplified: this package loads each bundle once and serves resources
// round-robin by index, since the benchmark only needs repeatable-by-index
// access rather than the original's stack-popping streaming iterator.
package sampledata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

// Index provides indexed, repeatable access to one FHIR resource type's
// sample resources.
type Index struct {
	resourceType string
	resources    []json.RawMessage
}

// Load reads every bundle JSON file under dir matching the population size
// and extracts all entries of resourceType from their "entry" arrays.
//
// Parameters:
//   - dir: the sample-data directory produced by the external generator
//   - populationSize: selects the `<population>/*.json` subdirectory
//   - resourceType: the FHIR resourceType to extract, e.g. "Organization"
func Load(dir string, populationSize int, resourceType string) (*Index, error) {
	populationDir := filepath.Join(dir, fmt.Sprintf("%d", populationSize))
	entries, err := os.ReadDir(populationDir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading sample-data directory %q", populationDir)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		files = append(files, filepath.Join(populationDir, e.Name()))
	}
	sort.Strings(files)

	idx := &Index{resourceType: resourceType}
	for _, file := range files {
		resources, err := extractResources(file, resourceType)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing sample bundle %q", file)
		}
		idx.resources = append(idx.resources, resources...)
	}

	if len(idx.resources) == 0 {
		return nil, errors.Errorf("no %q resources found under %q", resourceType, populationDir)
	}
	return idx, nil
}

// Len returns the number of distinct sample resources available.
func (idx *Index) Len() int { return len(idx.resources) }

// At returns the i'th sample resource (wrapping modulo Len), so callers can
// draw an arbitrary number of iterations' worth of input from a fixed pool.
func (idx *Index) At(i int) json.RawMessage {
	return idx.resources[i%len(idx.resources)]
}

func extractResources(path string, resourceType string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var bundle struct {
		Entry []struct {
			Resource json.RawMessage `json:"resource"`
		} `json:"entry"`
	}
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, err
	}

	var out []json.RawMessage
	for _, entry := range bundle.Entry {
		var typed struct {
			ResourceType string `json:"resourceType"`
		}
		if err := json.Unmarshal(entry.Resource, &typed); err != nil {
			continue
		}
		if typed.ResourceType == resourceType {
			out = append(out, entry.Resource)
		}
	}
	return out, nil
}
