package core

import (
	"testing"
)

// TestMatrixFingerprintDeterminism tests that the same matrix always
// produces the same fingerprint and that content changes are detected
func TestMatrixFingerprintDeterminism(t *testing.T) {
	data := [][]float64{{1.5, 2.25}, {3.0, -4.125}}
	features := []FeatureKey{"g1", "g2"}

	a := ComputeMatrixFingerprint(data, features)
	b := ComputeMatrixFingerprint(data, features)
	if !Hash(a).Equals(Hash(b)) {
		t.Fatalf("identical matrices produced different fingerprints: %s vs %s", a, b)
	}

	perturbed := [][]float64{{1.5, 2.25}, {3.0, -4.1250000001}}
	c := ComputeMatrixFingerprint(perturbed, features)
	if Hash(a).Equals(Hash(c)) {
		t.Fatal("perturbed matrix produced the same fingerprint")
	}

	renamed := []FeatureKey{"g2", "g1"}
	d := ComputeMatrixFingerprint(data, renamed)
	if Hash(a).Equals(Hash(d)) {
		t.Fatal("reordered feature keys produced the same fingerprint")
	}
}

// TestModelFingerprintOrderIndependence tests that batch map iteration
// order does not leak into the fingerprint
func TestModelFingerprintOrderIndependence(t *testing.T) {
	gamma := map[BatchKey][]float64{
		"a": {0.1, 0.2},
		"b": {-0.3, 0.05},
		"c": {0.0, 1.0},
	}
	delta2 := map[BatchKey][]float64{
		"a": {1.1, 0.9},
		"b": {1.0, 1.2},
		"c": {0.8, 1.05},
	}
	grand := []float64{5.0, 6.0}
	pooled := []float64{2.0, 3.0}

	first := ComputeModelFingerprint(gamma, delta2, grand, pooled)
	for i := 0; i < 50; i++ {
		if got := ComputeModelFingerprint(gamma, delta2, grand, pooled); got != first {
			t.Fatalf("fingerprint changed across recomputations: %s vs %s", first, got)
		}
	}
}
