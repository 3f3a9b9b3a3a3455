package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gocombat/domain/core"
	"gocombat/domain/dataset"
	"gocombat/ports"

	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Sheet1"

// DataReader loads expression tables from Excel workbooks or CSV files.
// One row per sample, one column per feature, with the batch label and
// any covariates carried in named metadata columns.
type DataReader struct{}

// NewDataReader creates a reader that handles both formats by extension
func NewDataReader() *DataReader {
	return &DataReader{}
}

// ReadMatrix implements ports.MatrixReader
func (r *DataReader) ReadMatrix(_ context.Context, path string, opts ports.ReadOptions) (*ports.MatrixPayload, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("input file not found: %s", path)
	}

	var (
		rows [][]string
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx", ".xlsm":
		rows, err = readWorkbookRows(path)
	case ".csv":
		rows, err = readCSVRows(path)
	default:
		return nil, fmt.Errorf("unsupported input format %q (want .xlsx, .xlsm or .csv)", ext)
	}
	if err != nil {
		return nil, err
	}

	log.Printf("[excel] %s read (%d rows)", filepath.Base(path), len(rows))
	return parsePayload(rows, opts)
}

func readWorkbookRows(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheet := defaultSheet
	if sheets := f.GetSheetList(); len(sheets) > 0 {
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	return rows, nil
}

func readCSVRows(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	return rows, nil
}

// parsePayload converts raw string rows into a matrix payload. Every
// column not claimed by the options is a feature.
func parsePayload(rows [][]string, opts ports.ReadOptions) (*ports.MatrixPayload, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("input must have a header row and at least one data row")
	}
	if opts.BatchColumn == "" {
		return nil, fmt.Errorf("batch column name is required")
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}

	colIndex := make(map[string]int, len(headers))
	for i, h := range headers {
		colIndex[h] = i
	}

	batchCol, ok := colIndex[opts.BatchColumn]
	if !ok {
		return nil, fmt.Errorf("batch column %q not found in header", opts.BatchColumn)
	}

	claimed := map[int]bool{batchCol: true}
	sampleCol := -1
	if opts.SampleColumn != "" {
		sampleCol, ok = colIndex[opts.SampleColumn]
		if !ok {
			return nil, fmt.Errorf("sample column %q not found in header", opts.SampleColumn)
		}
		claimed[sampleCol] = true
	}

	locate := func(role string, names []string) ([]int, error) {
		cols := make([]int, len(names))
		for i, name := range names {
			c, ok := colIndex[name]
			if !ok {
				return nil, fmt.Errorf("%s covariate column %q not found in header", role, name)
			}
			cols[i] = c
			claimed[c] = true
		}
		return cols, nil
	}
	interestCols, err := locate("interest", opts.InterestColumns)
	if err != nil {
		return nil, err
	}
	nuisanceCols, err := locate("nuisance", opts.NuisanceColumns)
	if err != nil {
		return nil, err
	}

	var features []core.FeatureKey
	var featureCols []int
	for i, h := range headers {
		if claimed[i] {
			continue
		}
		features = append(features, core.FeatureKey(h))
		featureCols = append(featureCols, i)
	}
	if len(features) == 0 {
		return nil, fmt.Errorf("no feature columns left after metadata columns")
	}

	covCols := append(append([]int{}, interestCols...), nuisanceCols...)

	n := len(rows) - 1
	data := make([][]float64, n)
	labels := make([]string, n)
	samples := make([]core.SampleKey, 0, n)
	covValues := make([][]float64, len(covCols))
	for i := range covValues {
		covValues[i] = make([]float64, n)
	}

	cell := func(row []string, col int) string {
		if col < len(row) {
			return strings.TrimSpace(row[col])
		}
		return ""
	}

	for i := 1; i < len(rows); i++ {
		row := rows[i]
		labels[i-1] = cell(row, batchCol)
		if sampleCol >= 0 {
			samples = append(samples, core.SampleKey(cell(row, sampleCol)))
		}

		vals := make([]float64, len(featureCols))
		for j, col := range featureCols {
			v, err := strconv.ParseFloat(cell(row, col), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %q is not numeric", i+1, headers[col], cell(row, col))
			}
			vals[j] = v
		}
		data[i-1] = vals

		for ci, col := range covCols {
			v, err := strconv.ParseFloat(cell(row, col), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d covariate %q: %q is not numeric", i+1, headers[col], cell(row, col))
			}
			covValues[ci][i-1] = v
		}
	}

	if len(samples) == 0 {
		samples = nil
	}
	matrix := dataset.NewMatrix(data, samples, features)
	batches, err := dataset.NewBatchAssignment(labels)
	if err != nil {
		return nil, err
	}

	var covs *dataset.CovariateSet
	if len(interestCols)+len(nuisanceCols) > 0 {
		covs = dataset.NewCovariateSet()
		for i, name := range opts.InterestColumns {
			covs.AddInterest(name, covValues[i])
		}
		for i, name := range opts.NuisanceColumns {
			covs.AddNuisance(name, covValues[len(interestCols)+i])
		}
	}

	return &ports.MatrixPayload{Matrix: matrix, Batches: batches, Covariates: covs}, nil
}
