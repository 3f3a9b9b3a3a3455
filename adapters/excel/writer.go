package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gocombat/domain/dataset"

	"github.com/xuri/excelize/v2"
)

// DataWriter saves an adjusted matrix as an Excel workbook or CSV file,
// one row per sample with its ID and batch label up front
type DataWriter struct{}

// NewDataWriter creates a writer that handles both formats by extension
func NewDataWriter() *DataWriter {
	return &DataWriter{}
}

// WriteMatrix implements ports.MatrixWriter
func (w *DataWriter) WriteMatrix(_ context.Context, path string, m *dataset.Matrix, batches *dataset.BatchAssignment) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if err := batches.Validate(m.Rows()); err != nil {
		return err
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx", ".xlsm":
		return writeWorkbook(path, m, batches)
	case ".csv":
		return writeCSV(path, m, batches)
	default:
		return fmt.Errorf("unsupported output format %q (want .xlsx, .xlsm or .csv)", ext)
	}
}

func headerRow(m *dataset.Matrix) []string {
	header := make([]string, 0, 2+m.Cols())
	header = append(header, "sample_id", "batch")
	for _, f := range m.Features {
		header = append(header, f.String())
	}
	return header
}

func writeWorkbook(path string, m *dataset.Matrix, batches *dataset.BatchAssignment) error {
	f := excelize.NewFile()
	defer f.Close()

	header := headerRow(m)
	cells := make([]interface{}, len(header))
	for i, h := range header {
		cells[i] = h
	}
	if err := f.SetSheetRow(defaultSheet, "A1", &cells); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i := range m.Data {
		row := make([]interface{}, 0, len(header))
		row = append(row, m.SampleIDs[i].String(), batches.Labels[i].String())
		for _, v := range m.Data[i] {
			row = append(row, v)
		}
		anchor, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(defaultSheet, anchor, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func writeCSV(path string, m *dataset.Matrix, batches *dataset.BatchAssignment) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	cw := csv.NewWriter(file)
	if err := cw.Write(headerRow(m)); err != nil {
		return err
	}

	for i := range m.Data {
		row := make([]string, 0, 2+m.Cols())
		row = append(row, m.SampleIDs[i].String(), batches.Labels[i].String())
		for _, v := range m.Data[i] {
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
