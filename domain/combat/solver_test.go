package combat

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"gocombat/domain/dataset"
)

func TestRelativeChange(t *testing.T) {
	cases := []struct {
		next, cur, want float64
	}{
		{0, 0, 0},
		{1, 1, 0},
		{2, 1, 1},
		{0, 5, 1},
		{1e-13, 0, 0.1},
	}
	for _, c := range cases {
		if got := relativeChange(c.next, c.cur); math.Abs(got-c.want) > 1e-12 {
			t.Errorf("relativeChange(%v, %v) = %v, want %v", c.next, c.cur, got, c.want)
		}
	}
}

func TestSolveBatch_ZeroTau2PinsLocationToPriorMean(t *testing.T) {
	z := [][]float64{
		{0.5, -0.2},
		{0.1, 0.4},
		{-0.3, 0.9},
		{0.7, -0.6},
	}
	group := dataset.BatchGroup{Key: "a", Rows: []int{0, 1, 2, 3}}
	prior := hyperPrior{gammaBar: 0.25, tau2: 0, lambda: diffuseLambda, theta: diffuseTheta, diffuse: true}

	sol, err := solveBatch(context.Background(), z, group,
		[]float64{0.25, 0.125}, []float64{0.2, 0.5}, prior, DefaultConfig())
	if err != nil {
		t.Fatalf("solveBatch: %v", err)
	}
	if sol.report.Status != StatusConverged {
		t.Fatalf("expected convergence, got %+v", sol.report)
	}
	for j, g := range sol.gamma {
		if g != prior.gammaBar {
			t.Errorf("gamma[%d] = %v, want pinned %v", j, g, prior.gammaBar)
		}
	}
	for j, d2 := range sol.delta2 {
		if d2 <= 0 {
			t.Errorf("delta2[%d] = %v, want positive", j, d2)
		}
	}
}

func TestSolveBatch_ConvergedPointIsSelfConsistent(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const rows, feats = 12, 4

	z := make([][]float64, rows)
	for i := range z {
		z[i] = make([]float64, feats)
		for j := range z[i] {
			z[i][j] = 0.3 + 0.8*rng.NormFloat64()
		}
	}
	group := dataset.BatchGroup{Key: "a", Rows: []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}}

	est, err := estimateLocationScale(z, []dataset.BatchGroup{group}, feats)
	if err != nil {
		t.Fatalf("estimateLocationScale: %v", err)
	}
	prior, err := estimatePrior(est.gammaHat[0], est.delta2Hat[0])
	if err != nil {
		t.Fatalf("estimatePrior: %v", err)
	}

	cfg := DefaultConfig()
	cfg.ConvergenceTolerance = 1e-10
	cfg.MaxIterations = 500

	sol, err := solveBatch(context.Background(), z, group, est.gammaHat[0], est.delta2Hat[0], prior, cfg)
	if err != nil {
		t.Fatalf("solveBatch: %v", err)
	}
	if sol.report.Status != StatusConverged {
		t.Fatalf("expected convergence within 500 iterations, got %+v", sol.report)
	}

	// One more update step from the returned point must stay put.
	nk := float64(rows)
	for j := 0; j < feats; j++ {
		gNext := (nk*prior.tau2*est.gammaHat[0][j] + sol.delta2[j]*prior.gammaBar) /
			(nk*prior.tau2 + sol.delta2[j])
		var sse float64
		for _, i := range group.Rows {
			d := z[i][j] - gNext
			sse += d * d
		}
		d2Next := (prior.theta + 0.5*sse) / (nk/2 + prior.lambda - 1)

		if rc := relativeChange(gNext, sol.gamma[j]); rc > 1e-9 {
			t.Errorf("gamma[%d] not a fixed point: one step moves it by %v", j, rc)
		}
		if rc := relativeChange(d2Next, sol.delta2[j]); rc > 1e-9 {
			t.Errorf("delta2[%d] not a fixed point: one step moves it by %v", j, rc)
		}
	}
}

func TestSolveAll_SerialAndParallelAgreeExactly(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	const feats = 4

	var z [][]float64
	var labels []string
	for b, key := range []string{"a", "b", "c"} {
		for i := 0; i < 10; i++ {
			row := make([]float64, feats)
			for j := range row {
				row[j] = float64(b)*0.2 + rng.NormFloat64()
			}
			z = append(z, row)
			labels = append(labels, key)
		}
	}
	assign, err := dataset.NewBatchAssignment(labels)
	if err != nil {
		t.Fatalf("batch assignment: %v", err)
	}
	groups := assign.Groups()

	est, err := estimateLocationScale(z, groups, feats)
	if err != nil {
		t.Fatalf("estimateLocationScale: %v", err)
	}
	priors := make([]hyperPrior, len(groups))
	for k := range groups {
		priors[k], err = estimatePrior(est.gammaHat[k], est.delta2Hat[k])
		if err != nil {
			t.Fatalf("estimatePrior batch %d: %v", k, err)
		}
	}

	serial := DefaultConfig()
	serial.MaxParallelBatches = 1
	parallel := DefaultConfig()
	parallel.MaxParallelBatches = 4

	solSerial, err := solveAll(context.Background(), z, groups, est, priors, serial)
	if err != nil {
		t.Fatalf("solveAll(serial): %v", err)
	}
	solParallel, err := solveAll(context.Background(), z, groups, est, priors, parallel)
	if err != nil {
		t.Fatalf("solveAll(parallel): %v", err)
	}

	for k := range groups {
		for j := 0; j < feats; j++ {
			if solSerial[k].gamma[j] != solParallel[k].gamma[j] {
				t.Errorf("gamma[%d][%d] differs across parallelism: %v vs %v",
					k, j, solSerial[k].gamma[j], solParallel[k].gamma[j])
			}
			if solSerial[k].delta2[j] != solParallel[k].delta2[j] {
				t.Errorf("delta2[%d][%d] differs across parallelism: %v vs %v",
					k, j, solSerial[k].delta2[j], solParallel[k].delta2[j])
			}
		}
		if solSerial[k].report != solParallel[k].report {
			t.Errorf("convergence report differs across parallelism: %+v vs %+v",
				solSerial[k].report, solParallel[k].report)
		}
	}
}

func TestSolveAll_CancelledContext(t *testing.T) {
	z := [][]float64{{0.1}, {0.2}, {-0.1}, {-0.2}}
	assign, err := dataset.NewBatchAssignment([]string{"a", "a", "b", "b"})
	if err != nil {
		t.Fatalf("batch assignment: %v", err)
	}
	groups := assign.Groups()

	est, err := estimateLocationScale(z, groups, 1)
	if err != nil {
		t.Fatalf("estimateLocationScale: %v", err)
	}
	priors := []hyperPrior{
		{gammaBar: 0, tau2: 0, lambda: diffuseLambda, theta: diffuseTheta, diffuse: true},
		{gammaBar: 0, tau2: 0, lambda: diffuseLambda, theta: diffuseTheta, diffuse: true},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := solveAll(ctx, z, groups, est, priors, DefaultConfig()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
