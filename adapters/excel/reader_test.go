package excel

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gocombat/ports"
)

const sampleCSV = `sample_id,batch,age,gene_a,gene_b
s1,site1,34,1.5,2.25
s2,site1,41,2.5,3.75
s3,site2,29,5.25,6.5
s4,site2,58,9.75,8.5
`

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "expr.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp csv: %v", err)
	}
	return path
}

func TestReadMatrix_CSV(t *testing.T) {
	path := writeTempCSV(t, sampleCSV)

	payload, err := NewDataReader().ReadMatrix(context.Background(), path, ports.ReadOptions{
		BatchColumn:     "batch",
		SampleColumn:    "sample_id",
		InterestColumns: []string{"age"},
	})
	if err != nil {
		t.Fatalf("ReadMatrix: %v", err)
	}

	m := payload.Matrix
	if m.Rows() != 4 || m.Cols() != 2 {
		t.Fatalf("got %dx%d, want 4x2", m.Rows(), m.Cols())
	}
	if m.Features[0] != "gene_a" || m.Features[1] != "gene_b" {
		t.Fatalf("unexpected features: %v", m.Features)
	}
	if m.Data[2][1] != 6.5 {
		t.Fatalf("data[2][1]: got %v, want 6.5", m.Data[2][1])
	}
	if m.SampleIDs[3] != "s4" {
		t.Fatalf("sample ids not carried: %v", m.SampleIDs)
	}
	if payload.Batches.Labels[0] != "site1" || payload.Batches.Labels[3] != "site2" {
		t.Fatalf("unexpected labels: %v", payload.Batches.Labels)
	}
	if payload.Covariates.InterestCount() != 1 {
		t.Fatalf("expected one interest covariate, got %d", payload.Covariates.InterestCount())
	}
	if payload.Covariates.Interest[0].Values[1] != 41 {
		t.Fatalf("age[1]: got %v, want 41", payload.Covariates.Interest[0].Values[1])
	}
}

func TestReadMatrix_ErrorPaths(t *testing.T) {
	ctx := context.Background()
	r := NewDataReader()

	t.Run("missing batch column", func(t *testing.T) {
		path := writeTempCSV(t, sampleCSV)
		if _, err := r.ReadMatrix(ctx, path, ports.ReadOptions{BatchColumn: "center"}); err == nil ||
			!strings.Contains(err.Error(), `"center"`) {
			t.Fatalf("expected missing-column error, got %v", err)
		}
	})

	t.Run("non-numeric cell", func(t *testing.T) {
		path := writeTempCSV(t, "batch,g\na,1.5\na,oops\nb,2\nb,3\n")
		if _, err := r.ReadMatrix(ctx, path, ports.ReadOptions{BatchColumn: "batch"}); err == nil ||
			!strings.Contains(err.Error(), "not numeric") {
			t.Fatalf("expected parse error, got %v", err)
		}
	})

	t.Run("no feature columns", func(t *testing.T) {
		path := writeTempCSV(t, "batch\na\nb\n")
		if _, err := r.ReadMatrix(ctx, path, ports.ReadOptions{BatchColumn: "batch"}); err == nil {
			t.Fatal("expected error when every column is metadata")
		}
	})

	t.Run("file not found", func(t *testing.T) {
		if _, err := r.ReadMatrix(ctx, "/nonexistent/expr.csv", ports.ReadOptions{BatchColumn: "batch"}); err == nil {
			t.Fatal("expected error for missing file")
		}
	})

	t.Run("unsupported extension", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "expr.parquet")
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := r.ReadMatrix(ctx, path, ports.ReadOptions{BatchColumn: "batch"}); err == nil ||
			!strings.Contains(err.Error(), "unsupported") {
			t.Fatalf("expected unsupported-format error, got %v", err)
		}
	})
}

func TestWriteThenRead_WorkbookRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := writeTempCSV(t, sampleCSV)

	payload, err := NewDataReader().ReadMatrix(ctx, src, ports.ReadOptions{
		BatchColumn:  "batch",
		SampleColumn: "sample_id",
	})
	if err != nil {
		t.Fatalf("ReadMatrix: %v", err)
	}

	out := filepath.Join(t.TempDir(), "adjusted.xlsx")
	if err := NewDataWriter().WriteMatrix(ctx, out, payload.Matrix, payload.Batches); err != nil {
		t.Fatalf("WriteMatrix: %v", err)
	}

	back, err := NewDataReader().ReadMatrix(ctx, out, ports.ReadOptions{
		BatchColumn:  "batch",
		SampleColumn: "sample_id",
	})
	if err != nil {
		t.Fatalf("ReadMatrix(round trip): %v", err)
	}

	if back.Matrix.Fingerprint() != payload.Matrix.Fingerprint() {
		t.Fatal("workbook round trip changed the matrix")
	}
	for i, l := range payload.Batches.Labels {
		if back.Batches.Labels[i] != l {
			t.Fatalf("label %d changed: %s -> %s", i, l, back.Batches.Labels[i])
		}
	}
}
