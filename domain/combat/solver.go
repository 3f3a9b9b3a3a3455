package combat

import (
	"context"
	"math"
	"sync"

	"golang.org/x/sync/semaphore"

	"gocombat/domain/core"
	"gocombat/domain/dataset"
)

// ConvergenceStatus tags how a batch's fixed-point iteration ended
type ConvergenceStatus string

const (
	StatusConverged     ConvergenceStatus = "converged"
	StatusMaxIterations ConvergenceStatus = "max_iterations_reached"
)

// BatchConvergence is the terminal state of one batch's solve. Hitting
// the iteration cap is reported here, never raised as an error: the last
// iterate is still returned and the caller decides whether to accept it.
type BatchConvergence struct {
	Batch      core.BatchKey     `json:"batch"`
	Status     ConvergenceStatus `json:"status"`
	Iterations int               `json:"iterations"`
	MaxDelta   float64           `json:"max_delta"`
}

// Converged reports whether the batch reached tolerance
func (c BatchConvergence) Converged() bool {
	return c.Status == StatusConverged
}

// batchSolution is the posterior point estimate pair for one batch
type batchSolution struct {
	gamma  []float64
	delta2 []float64
	report BatchConvergence
}

// relativeChange guards the 0/0 case with an epsilon floor so a
// parameter resting at zero counts as unchanged.
func relativeChange(next, cur float64) float64 {
	denom := math.Abs(cur)
	if denom < 1e-12 {
		denom = 1e-12
	}
	return math.Abs(next-cur) / denom
}

// solveBatch iterates the coupled posterior updates for a single batch
// until the maximum relative change across both parameter vectors drops
// below tolerance or the iteration cap is reached. The gamma update uses
// the current delta2; the delta2 update uses the fresh gamma.
func solveBatch(ctx context.Context, z [][]float64, group dataset.BatchGroup, gammaHat, delta2Hat []float64, prior hyperPrior, cfg Config) (batchSolution, error) {
	nk := float64(len(group.Rows))
	feats := len(gammaHat)

	gammaCur := append([]float64(nil), gammaHat...)
	delta2Cur := append([]float64(nil), delta2Hat...)
	gammaNext := make([]float64, feats)
	delta2Next := make([]float64, feats)

	// Moment-matched lambda always exceeds 2, and the diffuse fallback
	// uses lambda = 1, so this denominator stays positive for n_k >= 2.
	scaleDenom := nk/2 + prior.lambda - 1

	maxDelta := math.Inf(1)
	for iter := 1; iter <= cfg.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return batchSolution{}, err
		}

		for j := 0; j < feats; j++ {
			if prior.tau2 == 0 {
				// tau2 -> 0 limit: the prior pins the location.
				gammaNext[j] = prior.gammaBar
			} else {
				gammaNext[j] = (nk*prior.tau2*gammaHat[j] + delta2Cur[j]*prior.gammaBar) /
					(nk*prior.tau2 + delta2Cur[j])
			}

			var sse float64
			for _, i := range group.Rows {
				d := z[i][j] - gammaNext[j]
				sse += d * d
			}
			delta2Next[j] = (prior.theta + 0.5*sse) / scaleDenom
		}

		maxDelta = 0
		for j := 0; j < feats; j++ {
			if d := relativeChange(gammaNext[j], gammaCur[j]); d > maxDelta {
				maxDelta = d
			}
			if d := relativeChange(delta2Next[j], delta2Cur[j]); d > maxDelta {
				maxDelta = d
			}
		}
		copy(gammaCur, gammaNext)
		copy(delta2Cur, delta2Next)

		if maxDelta < cfg.ConvergenceTolerance {
			return batchSolution{
				gamma:  gammaCur,
				delta2: delta2Cur,
				report: BatchConvergence{Batch: group.Key, Status: StatusConverged, Iterations: iter, MaxDelta: maxDelta},
			}, nil
		}
	}

	return batchSolution{
		gamma:  gammaCur,
		delta2: delta2Cur,
		report: BatchConvergence{Batch: group.Key, Status: StatusMaxIterations, Iterations: cfg.MaxIterations, MaxDelta: maxDelta},
	}, nil
}

// solveAll dispatches one worker per batch, bounded by the configured
// parallelism. Batches share no state: each worker reads a disjoint row
// slice of Z and fills a disjoint solution slot.
func solveAll(ctx context.Context, z [][]float64, groups []dataset.BatchGroup, est *batchEstimates, priors []hyperPrior, cfg Config) ([]batchSolution, error) {
	solutions := make([]batchSolution, len(groups))
	sem := semaphore.NewWeighted(int64(cfg.MaxParallelBatches))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	setErr := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for k := range groups {
		if err := sem.Acquire(ctx, 1); err != nil {
			setErr(err)
			break
		}
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			defer sem.Release(1)

			sol, err := solveBatch(ctx, z, groups[k], est.gammaHat[k], est.delta2Hat[k], priors[k], cfg)
			if err != nil {
				setErr(err)
				return
			}
			solutions[k] = sol
		}(k)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return solutions, nil
}
