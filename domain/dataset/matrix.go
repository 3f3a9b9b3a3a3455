package dataset

import (
	"fmt"
	"math"

	"gocombat/domain/core"
)

// Matrix is the canonical data object for all harmonization computation:
// dense numerical data with rows = samples and cols = features.
type Matrix struct {
	Data      [][]float64
	SampleIDs []core.SampleKey
	Features  []core.FeatureKey
}

// NewMatrix builds a Matrix with generated sample IDs when none are supplied.
func NewMatrix(data [][]float64, samples []core.SampleKey, features []core.FeatureKey) *Matrix {
	if samples == nil {
		samples = make([]core.SampleKey, len(data))
		for i := range samples {
			samples[i] = core.SampleKey(fmt.Sprintf("sample_%d", i))
		}
	}
	return &Matrix{Data: data, SampleIDs: samples, Features: features}
}

// Rows returns the number of samples
func (m *Matrix) Rows() int {
	return len(m.Data)
}

// Cols returns the number of features
func (m *Matrix) Cols() int {
	return len(m.Features)
}

// Validate ensures the matrix is rectangular, labeled, and fully finite.
// Harmonization has no missing-value handling, so NaN and Inf are rejected
// here rather than propagated into the linear algebra.
func (m *Matrix) Validate() error {
	if len(m.Data) == 0 || len(m.Features) == 0 {
		return core.ErrEmptyMatrix
	}
	if len(m.SampleIDs) != len(m.Data) {
		return core.NewShapeError("sample_ids", len(m.SampleIDs), len(m.Data))
	}

	seen := make(map[core.FeatureKey]bool, len(m.Features))
	for _, key := range m.Features {
		if seen[key] {
			return core.NewValidationError("features", fmt.Sprintf("duplicate feature key %q", key))
		}
		seen[key] = true
	}

	cols := len(m.Features)
	for i, row := range m.Data {
		if len(row) != cols {
			return fmt.Errorf("%w: row %d has %d values, expected %d", core.ErrRaggedMatrix, i, len(row), cols)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: row %d, feature %q", core.ErrNonFinite, i, m.Features[j])
			}
		}
	}

	return nil
}

// Clone returns a deep copy; the harmonizer never mutates its inputs.
func (m *Matrix) Clone() *Matrix {
	data := make([][]float64, len(m.Data))
	for i, row := range m.Data {
		data[i] = make([]float64, len(row))
		copy(data[i], row)
	}
	samples := make([]core.SampleKey, len(m.SampleIDs))
	copy(samples, m.SampleIDs)
	features := make([]core.FeatureKey, len(m.Features))
	copy(features, m.Features)
	return &Matrix{Data: data, SampleIDs: samples, Features: features}
}

// Column returns a copy of the values for feature index j
func (m *Matrix) Column(j int) []float64 {
	col := make([]float64, len(m.Data))
	for i, row := range m.Data {
		col[i] = row[j]
	}
	return col
}

// FeatureIndex returns the column index for a feature key
func (m *Matrix) FeatureIndex(key core.FeatureKey) (int, bool) {
	for j, k := range m.Features {
		if k == key {
			return j, true
		}
	}
	return -1, false
}

// SameFeatures reports whether other carries the identical feature set in
// the identical order. Transform requires this of any matrix it is handed.
func (m *Matrix) SameFeatures(other *Matrix) bool {
	if len(m.Features) != len(other.Features) {
		return false
	}
	for j, k := range m.Features {
		if other.Features[j] != k {
			return false
		}
	}
	return true
}

// Fingerprint hashes contents and feature order for replayability checks
func (m *Matrix) Fingerprint() core.MatrixFingerprint {
	return core.ComputeMatrixFingerprint(m.Data, m.Features)
}
