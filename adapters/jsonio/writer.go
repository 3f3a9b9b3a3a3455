package jsonio

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gocombat/domain/dataset"
)

// Writer saves a matrix as the same JSON document format the reader
// accepts, so adjusted output can feed a later transform call
type Writer struct{}

// NewWriter creates a JSON document writer
func NewWriter() *Writer {
	return &Writer{}
}

type document struct {
	Samples  []string    `json:"samples"`
	Batches  []string    `json:"batches"`
	Features []string    `json:"features"`
	Data     [][]float64 `json:"data"`
}

// WriteMatrix implements ports.MatrixWriter
func (w *Writer) WriteMatrix(_ context.Context, path string, m *dataset.Matrix, batches *dataset.BatchAssignment) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if err := batches.Validate(m.Rows()); err != nil {
		return err
	}

	doc := document{
		Samples:  make([]string, m.Rows()),
		Batches:  make([]string, m.Rows()),
		Features: make([]string, m.Cols()),
		Data:     m.Data,
	}
	for i, s := range m.SampleIDs {
		doc.Samples[i] = s.String()
	}
	for i, b := range batches.Labels {
		doc.Batches[i] = b.String()
	}
	for j, f := range m.Features {
		doc.Features[j] = f.String()
	}

	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	if err := os.WriteFile(path, body, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
