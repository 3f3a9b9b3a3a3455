package combat

import (
	"gonum.org/v1/gonum/mat"

	"gocombat/domain/dataset"
)

// design is the assembled regression design for one fit: batch indicator
// block first, then interest covariates, then nuisance covariates. The
// block offsets let coefficient rows be sliced back out by role.
type design struct {
	matrix *mat.Dense
	groups []dataset.BatchGroup

	nBatches  int
	pInterest int
	qNuisance int
}

func (d *design) cols() int { return d.nBatches + d.pInterest + d.qNuisance }

// interestCol maps interest-covariate index to its design column
func (d *design) interestCol(p int) int { return d.nBatches + p }

// nuisanceCol maps nuisance-covariate index to its design column
func (d *design) nuisanceCol(q int) int { return d.nBatches + d.pInterest + q }

// buildDesign assembles [batch one-hot | interest | nuisance]. Batch
// indicators use the full one-hot (no reference drop): every batch gets
// its own intercept, and the grand mean is derived from their weighted
// average. Covariate categorical levels arrive already reference-dropped
// from dataset.EncodeCategorical.
func buildDesign(rows int, groups []dataset.BatchGroup, covs *dataset.CovariateSet) *design {
	d := &design{
		groups:    groups,
		nBatches:  len(groups),
		pInterest: covs.InterestCount(),
		qNuisance: covs.NuisanceCount(),
	}

	m := mat.NewDense(rows, d.cols(), nil)
	for gi, g := range groups {
		for _, i := range g.Rows {
			m.Set(i, gi, 1)
		}
	}
	if covs != nil {
		for p, col := range covs.Interest {
			for i, v := range col.Values {
				m.Set(i, d.interestCol(p), v)
			}
		}
		for q, col := range covs.Nuisance {
			for i, v := range col.Values {
				m.Set(i, d.nuisanceCol(q), v)
			}
		}
	}
	d.matrix = m
	return d
}
