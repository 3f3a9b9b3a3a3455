// Package jsonio reads and writes the self-describing JSON document
// format for expression matrices:
//
//	{
//	  "samples":  ["s1", "s2", ...],            // optional
//	  "batches":  ["site1", "site1", ...],      // one label per row
//	  "features": ["gene_a", "gene_b", ...],
//	  "data":     [[1.5, 2.0], [2.5, 3.1], ...],
//	  "covariates": {                            // optional
//	    "interest": {"age": [34, 41, ...]},
//	    "nuisance": {"rin": [7.2, 8.1, ...]}
//	  }
//	}
package jsonio

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gocombat/domain/core"
	"gocombat/domain/dataset"
	"gocombat/ports"

	"github.com/tidwall/gjson"
)

// Reader parses matrix documents. Column-selection options are ignored:
// the document names its own metadata.
type Reader struct{}

// NewReader creates a JSON document reader
func NewReader() *Reader {
	return &Reader{}
}

// ReadMatrix implements ports.MatrixReader
func (r *Reader) ReadMatrix(_ context.Context, path string, _ ports.ReadOptions) (*ports.MatrixPayload, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Parse(body)
}

// Parse decodes a matrix document from raw JSON
func Parse(body []byte) (*ports.MatrixPayload, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("document is not valid JSON")
	}

	doc := gjson.ParseBytes(body)
	for _, field := range []string{"batches", "features", "data"} {
		if !doc.Get(field).Exists() {
			return nil, fmt.Errorf("document is missing %q", field)
		}
	}

	features, err := stringList(doc.Get("features"))
	if err != nil {
		return nil, fmt.Errorf("features: %w", err)
	}
	labels, err := stringList(doc.Get("batches"))
	if err != nil {
		return nil, fmt.Errorf("batches: %w", err)
	}

	featureKeys := make([]core.FeatureKey, len(features))
	for i, f := range features {
		featureKeys[i] = core.FeatureKey(f)
	}

	var data [][]float64
	var rowErr error
	doc.Get("data").ForEach(func(_, row gjson.Result) bool {
		if !row.IsArray() {
			rowErr = fmt.Errorf("data row %d is not an array", len(data))
			return false
		}
		vals := row.Array()
		parsed := make([]float64, len(vals))
		for j, v := range vals {
			if v.Type != gjson.Number {
				rowErr = fmt.Errorf("data[%d][%d] is not a number", len(data), j)
				return false
			}
			parsed[j] = v.Float()
		}
		data = append(data, parsed)
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}

	var samples []core.SampleKey
	if s := doc.Get("samples"); s.Exists() {
		names, err := stringList(s)
		if err != nil {
			return nil, fmt.Errorf("samples: %w", err)
		}
		samples = make([]core.SampleKey, len(names))
		for i, n := range names {
			samples[i] = core.SampleKey(n)
		}
	}

	matrix := dataset.NewMatrix(data, samples, featureKeys)
	batches, err := dataset.NewBatchAssignment(labels)
	if err != nil {
		return nil, err
	}

	covs, err := parseCovariates(doc.Get("covariates"), len(data))
	if err != nil {
		return nil, err
	}

	return &ports.MatrixPayload{Matrix: matrix, Batches: batches, Covariates: covs}, nil
}

func parseCovariates(node gjson.Result, rows int) (*dataset.CovariateSet, error) {
	if !node.Exists() {
		return nil, nil
	}

	covs := dataset.NewCovariateSet()
	for _, role := range []string{"interest", "nuisance"} {
		group := node.Get(role)
		if !group.Exists() {
			continue
		}

		// Map iteration order is not specified; keep columns sorted so
		// the design is the same on every read.
		names := make([]string, 0)
		group.ForEach(func(key, _ gjson.Result) bool {
			names = append(names, key.String())
			return true
		})
		sort.Strings(names)

		for _, name := range names {
			values, err := floatList(group.Get(name))
			if err != nil {
				return nil, fmt.Errorf("covariate %q: %w", name, err)
			}
			if len(values) != rows {
				return nil, core.NewShapeError(fmt.Sprintf("covariate %q", name), len(values), rows)
			}
			if role == "interest" {
				covs.AddInterest(name, values)
			} else {
				covs.AddNuisance(name, values)
			}
		}
	}

	if covs.InterestCount()+covs.NuisanceCount() == 0 {
		return nil, nil
	}
	return covs, nil
}

func stringList(node gjson.Result) ([]string, error) {
	if !node.IsArray() {
		return nil, fmt.Errorf("expected an array")
	}
	items := node.Array()
	out := make([]string, len(items))
	for i, it := range items {
		if it.Type != gjson.String {
			return nil, fmt.Errorf("element %d is not a string", i)
		}
		out[i] = it.String()
	}
	return out, nil
}

func floatList(node gjson.Result) ([]float64, error) {
	if !node.IsArray() {
		return nil, fmt.Errorf("expected an array")
	}
	items := node.Array()
	out := make([]float64, len(items))
	for i, it := range items {
		if it.Type != gjson.Number {
			return nil, fmt.Errorf("element %d is not a number", i)
		}
		out[i] = it.Float()
	}
	return out, nil
}
