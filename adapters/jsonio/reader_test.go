package jsonio

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gocombat/ports"
)

const sampleDoc = `{
  "samples": ["s1", "s2", "s3", "s4"],
  "batches": ["site1", "site1", "site2", "site2"],
  "features": ["gene_a", "gene_b"],
  "data": [[1.5, 2.0], [2.5, 3.0], [5.0, 6.5], [9.5, 8.0]],
  "covariates": {
    "interest": {"age": [34, 41, 29, 58]},
    "nuisance": {"rin": [7.2, 8.1, 6.9, 7.7]}
  }
}`

func TestParse_FullDocument(t *testing.T) {
	payload, err := Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if payload.Matrix.Rows() != 4 || payload.Matrix.Cols() != 2 {
		t.Fatalf("got %dx%d, want 4x2", payload.Matrix.Rows(), payload.Matrix.Cols())
	}
	if payload.Matrix.Data[3][0] != 9.5 {
		t.Fatalf("data[3][0]: got %v", payload.Matrix.Data[3][0])
	}
	if payload.Matrix.SampleIDs[0] != "s1" {
		t.Fatalf("samples not carried: %v", payload.Matrix.SampleIDs)
	}
	if payload.Batches.Labels[2] != "site2" {
		t.Fatalf("labels wrong: %v", payload.Batches.Labels)
	}
	if payload.Covariates.InterestCount() != 1 || payload.Covariates.NuisanceCount() != 1 {
		t.Fatalf("covariates wrong: %+v", payload.Covariates)
	}
	if payload.Covariates.Nuisance[0].Name != "rin" {
		t.Fatalf("nuisance name: %s", payload.Covariates.Nuisance[0].Name)
	}
}

func TestParse_Rejections(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want string
	}{
		{"invalid json", `{"batches": [`, "not valid JSON"},
		{"missing data", `{"batches": ["a"], "features": ["g"]}`, `missing "data"`},
		{"string in data", `{"batches": ["a", "a"], "features": ["g"], "data": [[1], ["x"]]}`, "not a number"},
		{"ragged covariate", `{"batches": ["a", "a"], "features": ["g"], "data": [[1], [2]],
			"covariates": {"interest": {"age": [1]}}}`, "covariate"},
		{"non-array features", `{"batches": ["a"], "features": "g", "data": [[1]]}`, "expected an array"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Parse([]byte(c.doc))
			if err == nil || !strings.Contains(err.Error(), c.want) {
				t.Fatalf("want error containing %q, got %v", c.want, err)
			}
		})
	}
}

func TestWriteThenRead_DocumentRoundTrip(t *testing.T) {
	ctx := context.Background()

	payload, err := Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	path := filepath.Join(t.TempDir(), "adjusted.json")
	if err := NewWriter().WriteMatrix(ctx, path, payload.Matrix, payload.Batches); err != nil {
		t.Fatalf("WriteMatrix: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("output file missing: %v", err)
	}

	back, err := NewReader().ReadMatrix(ctx, path, ports.ReadOptions{})
	if err != nil {
		t.Fatalf("ReadMatrix: %v", err)
	}
	if back.Matrix.Fingerprint() != payload.Matrix.Fingerprint() {
		t.Fatal("document round trip changed the matrix")
	}
	if back.Covariates != nil {
		t.Fatal("writer does not emit covariates, reader should see none")
	}
}
