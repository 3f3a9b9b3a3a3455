package combat

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"

	"gocombat/domain/core"
	"gocombat/domain/dataset"
)

// PriorFit measures how well a batch's fitted priors describe its raw
// estimates: the Kolmogorov distance between the empirical distribution
// of the raw estimates and the fitted prior. Values are numbers only;
// rendering them is a caller concern.
type PriorFit struct {
	Batch        core.BatchKey `json:"batch"`
	LocationKS   float64       `json:"location_ks"`
	ScaleKS      float64       `json:"scale_ks"`
	DiffuseScale bool          `json:"diffuse_scale"`
}

// PriorFitDiagnostics evaluates every batch of a fitted model
func PriorFitDiagnostics(m *Model) []PriorFit {
	out := make([]PriorFit, m.K())
	for k := range m.Batches {
		fit := PriorFit{Batch: m.Batches[k].Key}

		if m.Tau2[k] > 0 {
			normal := distuv.Normal{Mu: m.GammaBar[k], Sigma: math.Sqrt(m.Tau2[k])}
			fit.LocationKS = ksDistance(m.GammaHat[k], normal.CDF)
		}

		// Lambda = 1 with Theta = 0 marks the diffuse fallback; no
		// proper inverse-gamma to compare against.
		if m.Lambda[k] == diffuseLambda && m.Theta[k] == diffuseTheta {
			fit.DiffuseScale = true
		} else {
			ig := distuv.InverseGamma{Alpha: m.Lambda[k], Beta: m.Theta[k]}
			fit.ScaleKS = ksDistance(m.Delta2Hat[k], ig.CDF)
		}

		out[k] = fit
	}
	return out
}

// ksDistance is the two-sided Kolmogorov statistic between an observed
// sample and a reference CDF
func ksDistance(sample []float64, cdf func(float64) float64) float64 {
	sorted := append([]float64(nil), sample...)
	sort.Float64s(sorted)

	n := float64(len(sorted))
	var d float64
	for i, x := range sorted {
		f := cdf(x)
		lo := f - float64(i)/n
		hi := float64(i+1)/n - f
		if lo > d {
			d = lo
		}
		if hi > d {
			d = hi
		}
	}
	return d
}

// BatchSummary is the per-batch, per-feature location and spread of a
// matrix, used for before/after harmonization comparisons
type BatchSummary struct {
	Batch     core.BatchKey `json:"batch"`
	Size      int           `json:"size"`
	Means     []float64     `json:"means"`
	Variances []float64     `json:"variances"`
}

// SummarizeByBatch computes per-batch feature means and sample variances
func SummarizeByBatch(y *dataset.Matrix, batches *dataset.BatchAssignment) ([]BatchSummary, error) {
	if err := y.Validate(); err != nil {
		return nil, err
	}
	if err := batches.Validate(y.Rows()); err != nil {
		return nil, err
	}

	groups := batches.Groups()
	out := make([]BatchSummary, len(groups))
	for gi, g := range groups {
		summary := BatchSummary{
			Batch:     g.Key,
			Size:      len(g.Rows),
			Means:     make([]float64, y.Cols()),
			Variances: make([]float64, y.Cols()),
		}
		col := make([]float64, len(g.Rows))
		for j := 0; j < y.Cols(); j++ {
			for idx, i := range g.Rows {
				col[idx] = y.Data[i][j]
			}
			m, err := stats.Mean(col)
			if err != nil {
				return nil, err
			}
			summary.Means[j] = m
			if len(col) > 1 {
				v, err := stats.SampleVariance(col)
				if err != nil {
					return nil, err
				}
				summary.Variances[j] = v
			}
		}
		out[gi] = summary
	}
	return out, nil
}
