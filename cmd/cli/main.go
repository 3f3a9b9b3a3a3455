package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/montanaflynn/stats"
	"github.com/spf13/cobra"

	"gocombat/adapters/excel"
	"gocombat/adapters/jsonio"
	"gocombat/app"
	"gocombat/domain/combat"
	"gocombat/domain/dataset"
	"gocombat/internal/testkit"
	"gocombat/ports"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gocombat",
		Short: "ComBat batch-effect harmonization for expression matrices",
	}

	rootCmd.AddCommand(
		newFitCmd(),
		newTransformCmd(),
		newFitTransformCmd(),
		newDiagnoseCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newFitCmd() *cobra.Command {
	var batchColumn string
	var sampleColumn string
	var covariates []string
	var nuisance []string
	var tolerance float64
	var maxIter int
	var mode string
	var modelOut string

	cmd := &cobra.Command{
		Use:   "fit [input-file]",
		Short: "Fit a harmonization model from an expression matrix",
		Long: `Estimate per-batch location and scale effects with empirical Bayes shrinkage.

Input format is chosen by extension: .xlsx, .xlsm and .csv are read as tables
with one row per sample, .json as a matrix document. JSON documents carry
batch labels and covariates inline; the column flags apply to table formats.

Example: gocombat fit expression.csv --batch-column site --covariates age --model-out model.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			readOpts := ports.ReadOptions{
				BatchColumn:     batchColumn,
				SampleColumn:    sampleColumn,
				InterestColumns: covariates,
				NuisanceColumns: nuisance,
			}
			opts := app.Options{Tolerance: tolerance, MaxIterations: maxIter, Mode: mode}
			return runFit(cmd.Context(), args[0], readOpts, opts, modelOut)
		},
	}

	cmd.Flags().StringVar(&batchColumn, "batch-column", "batch", "Column holding the batch label")
	cmd.Flags().StringVar(&sampleColumn, "sample-column", "", "Column holding the sample ID")
	cmd.Flags().StringSliceVar(&covariates, "covariates", nil, "Covariate columns preserved through adjustment")
	cmd.Flags().StringSliceVar(&nuisance, "nuisance", nil, "Covariate columns removed by adjustment")
	cmd.Flags().Float64Var(&tolerance, "tolerance", 0, "Convergence tolerance for the shrinkage solver (0 = default)")
	cmd.Flags().IntVar(&maxIter, "max-iter", 0, "Iteration cap for the shrinkage solver (0 = default)")
	cmd.Flags().StringVar(&mode, "mode", "", "Adjustment mode: preserve-interest or strip-all")
	cmd.Flags().StringVar(&modelOut, "model-out", "", "Write the fitted model as JSON to this path")

	return cmd
}

func newTransformCmd() *cobra.Command {
	var modelPath string
	var batchColumn string
	var sampleColumn string
	var covariates []string
	var nuisance []string
	var output string

	cmd := &cobra.Command{
		Use:   "transform [input-file]",
		Short: "Apply a fitted model to new samples",
		Long: `Adjust new samples with a previously fitted model. Every batch in the
input must have been present when the model was fitted, and the covariate
columns must match the fit by name.

Example: gocombat transform newsamples.csv --model model.json --batch-column site --covariates age`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if modelPath == "" {
				return fmt.Errorf("--model is required")
			}
			readOpts := ports.ReadOptions{
				BatchColumn:     batchColumn,
				SampleColumn:    sampleColumn,
				InterestColumns: covariates,
				NuisanceColumns: nuisance,
			}
			return runTransform(cmd.Context(), args[0], modelPath, readOpts, output)
		},
	}

	cmd.Flags().StringVar(&modelPath, "model", "", "Path to a fitted model JSON file (required)")
	cmd.Flags().StringVar(&batchColumn, "batch-column", "batch", "Column holding the batch label")
	cmd.Flags().StringVar(&sampleColumn, "sample-column", "", "Column holding the sample ID")
	cmd.Flags().StringSliceVar(&covariates, "covariates", nil, "Covariate columns preserved through adjustment")
	cmd.Flags().StringSliceVar(&nuisance, "nuisance", nil, "Covariate columns removed by adjustment")
	cmd.Flags().StringVar(&output, "output", "", "Output path for the adjusted matrix (default: <input>_harmonized)")

	return cmd
}

func newFitTransformCmd() *cobra.Command {
	var batchColumn string
	var sampleColumn string
	var covariates []string
	var nuisance []string
	var tolerance float64
	var maxIter int
	var mode string
	var modelOut string
	var output string

	cmd := &cobra.Command{
		Use:   "fit-transform [input-file]",
		Short: "Fit a model and adjust the training data in one pass",
		Long: `Fit batch-effect estimates and immediately apply them to the same samples.

Example: gocombat fit-transform expression.xlsx --batch-column site --output harmonized.xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			readOpts := ports.ReadOptions{
				BatchColumn:     batchColumn,
				SampleColumn:    sampleColumn,
				InterestColumns: covariates,
				NuisanceColumns: nuisance,
			}
			opts := app.Options{Tolerance: tolerance, MaxIterations: maxIter, Mode: mode}
			return runFitTransform(cmd.Context(), args[0], readOpts, opts, modelOut, output)
		},
	}

	cmd.Flags().StringVar(&batchColumn, "batch-column", "batch", "Column holding the batch label")
	cmd.Flags().StringVar(&sampleColumn, "sample-column", "", "Column holding the sample ID")
	cmd.Flags().StringSliceVar(&covariates, "covariates", nil, "Covariate columns preserved through adjustment")
	cmd.Flags().StringSliceVar(&nuisance, "nuisance", nil, "Covariate columns removed by adjustment")
	cmd.Flags().Float64Var(&tolerance, "tolerance", 0, "Convergence tolerance for the shrinkage solver (0 = default)")
	cmd.Flags().IntVar(&maxIter, "max-iter", 0, "Iteration cap for the shrinkage solver (0 = default)")
	cmd.Flags().StringVar(&mode, "mode", "", "Adjustment mode: preserve-interest or strip-all")
	cmd.Flags().StringVar(&modelOut, "model-out", "", "Write the fitted model as JSON to this path")
	cmd.Flags().StringVar(&output, "output", "", "Output path for the adjusted matrix (default: <input>_harmonized)")

	return cmd
}

func newDiagnoseCmd() *cobra.Command {
	var modelPath string
	var batchColumn string
	var sampleColumn string
	var covariates []string
	var nuisance []string

	cmd := &cobra.Command{
		Use:   "diagnose [input-file]",
		Short: "Summarize per-batch location and spread of a matrix",
		Long: `Report per-batch sample counts, mean signal and mean variance. Run it on
the raw matrix before fitting and on the harmonized output to compare, or
pass --model to also check how well the fitted priors describe each batch.

Example: gocombat diagnose expression.csv --batch-column site --model model.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			readOpts := ports.ReadOptions{
				BatchColumn:     batchColumn,
				SampleColumn:    sampleColumn,
				InterestColumns: covariates,
				NuisanceColumns: nuisance,
			}
			return runDiagnose(cmd.Context(), args[0], modelPath, readOpts)
		},
	}

	cmd.Flags().StringVar(&modelPath, "model", "", "Path to a fitted model JSON file for prior fit checks")
	cmd.Flags().StringVar(&batchColumn, "batch-column", "batch", "Column holding the batch label")
	cmd.Flags().StringVar(&sampleColumn, "sample-column", "", "Column holding the sample ID")
	cmd.Flags().StringSliceVar(&covariates, "covariates", nil, "Covariate columns preserved through adjustment")
	cmd.Flags().StringSliceVar(&nuisance, "nuisance", nil, "Covariate columns removed by adjustment")

	return cmd
}

func runFit(ctx context.Context, inputPath string, readOpts ports.ReadOptions, opts app.Options, modelOut string) error {
	fmt.Printf("Fitting harmonization model from %s...\n", inputPath)

	payload, err := readPayload(ctx, inputPath, readOpts)
	if err != nil {
		return err
	}

	svc, _ := newService()
	result, err := svc.Fit(ctx, app.FitRequest{
		Data:       payload.Matrix,
		Batches:    payload.Batches,
		Covariates: payload.Covariates,
		Options:    opts,
	})
	if err != nil {
		return fmt.Errorf("fit failed: %w", err)
	}

	printFitSummary(result.Model, result.Warnings, result.RuntimeMs)

	if modelOut != "" {
		if err := writeModelFile(modelOut, result.Model); err != nil {
			return err
		}
		fmt.Printf("\n💾 Model saved to: %s\n", modelOut)
	}

	return nil
}

func runTransform(ctx context.Context, inputPath, modelPath string, readOpts ports.ReadOptions, output string) error {
	fmt.Printf("Adjusting %s with model from %s...\n", inputPath, modelPath)

	payload, err := readPayload(ctx, inputPath, readOpts)
	if err != nil {
		return err
	}

	model, err := readModelFile(modelPath)
	if err != nil {
		return err
	}

	svc, kit := newService()
	if err := kit.Models.SaveModel(ctx, model); err != nil {
		return fmt.Errorf("failed to stage model: %w", err)
	}

	result, err := svc.Transform(ctx, app.TransformRequest{
		ModelID:    model.ID,
		Data:       payload.Matrix,
		Batches:    payload.Batches,
		Covariates: payload.Covariates,
	})
	if err != nil {
		return fmt.Errorf("transform failed: %w", err)
	}

	if output == "" {
		output = derivedOutputPath(inputPath)
	}
	if err := writeAdjusted(ctx, output, result.Adjusted, payload.Batches); err != nil {
		return err
	}

	fmt.Printf("\n=== TRANSFORM RESULTS ===\n")
	fmt.Printf("Model ID: %s\n", result.ModelID)
	fmt.Printf("Samples Adjusted: %d\n", result.Adjusted.Rows())
	fmt.Printf("Features: %d\n", result.Adjusted.Cols())
	fmt.Printf("Output Fingerprint: %s\n", result.Adjusted.Fingerprint())
	fmt.Printf("Runtime: %d ms\n", result.RuntimeMs)
	fmt.Printf("\n💾 Adjusted matrix saved to: %s\n", output)

	return nil
}

func runFitTransform(ctx context.Context, inputPath string, readOpts ports.ReadOptions, opts app.Options, modelOut, output string) error {
	fmt.Printf("Fitting and adjusting %s...\n", inputPath)

	payload, err := readPayload(ctx, inputPath, readOpts)
	if err != nil {
		return err
	}

	svc, _ := newService()
	result, err := svc.FitTransform(ctx, app.FitRequest{
		Data:       payload.Matrix,
		Batches:    payload.Batches,
		Covariates: payload.Covariates,
		Options:    opts,
	})
	if err != nil {
		return fmt.Errorf("fit-transform failed: %w", err)
	}

	printFitSummary(result.Model, result.Warnings, result.RuntimeMs)

	if output == "" {
		output = derivedOutputPath(inputPath)
	}
	if err := writeAdjusted(ctx, output, result.Adjusted, payload.Batches); err != nil {
		return err
	}
	fmt.Printf("\n💾 Adjusted matrix saved to: %s\n", output)

	if modelOut != "" {
		if err := writeModelFile(modelOut, result.Model); err != nil {
			return err
		}
		fmt.Printf("💾 Model saved to: %s\n", modelOut)
	}

	return nil
}

func runDiagnose(ctx context.Context, inputPath, modelPath string, readOpts ports.ReadOptions) error {
	fmt.Printf("Summarizing %s by batch...\n", inputPath)

	payload, err := readPayload(ctx, inputPath, readOpts)
	if err != nil {
		return err
	}

	summaries, err := combat.SummarizeByBatch(payload.Matrix, payload.Batches)
	if err != nil {
		return fmt.Errorf("summary failed: %w", err)
	}

	fmt.Printf("\n=== BATCH SUMMARY ===\n")
	fmt.Printf("Samples: %d\n", payload.Matrix.Rows())
	fmt.Printf("Features: %d\n", payload.Matrix.Cols())
	fmt.Printf("Batches: %d\n", len(summaries))
	for _, s := range summaries {
		meanSignal, _ := stats.Mean(s.Means)
		meanVariance, _ := stats.Mean(s.Variances)
		fmt.Printf("• %s: %d samples, mean signal %.4g, mean variance %.4g\n",
			s.Batch, s.Size, meanSignal, meanVariance)
	}

	if modelPath == "" {
		return nil
	}

	model, err := readModelFile(modelPath)
	if err != nil {
		return err
	}

	fmt.Printf("\n=== PRIOR FIT (model %s) ===\n", model.ID)
	for _, fit := range combat.PriorFitDiagnostics(model) {
		if fit.DiffuseScale {
			fmt.Printf("• %s: location KS %.3f, scale prior diffuse\n", fit.Batch, fit.LocationKS)
			continue
		}
		fmt.Printf("• %s: location KS %.3f, scale KS %.3f\n", fit.Batch, fit.LocationKS, fit.ScaleKS)
	}
	for _, c := range model.NonConverged() {
		fmt.Printf("⚠️  %s stopped at %d iterations (max delta %.3g)\n", c.Batch, c.Iterations, c.MaxDelta)
	}

	return nil
}

func printFitSummary(model *combat.Model, warnings []string, runtimeMs int64) {
	samples := 0
	for _, b := range model.Batches {
		samples += b.Size
	}

	fmt.Printf("\n=== FIT RESULTS ===\n")
	fmt.Printf("Model ID: %s\n", model.ID)
	fmt.Printf("Features: %d\n", model.FeatureCount())
	fmt.Printf("Samples: %d\n", samples)
	fmt.Printf("Batches: %d\n", model.K())
	fmt.Printf("Mode: %s\n", model.Config.Mode)
	fmt.Printf("Fingerprint: %s\n", model.Fingerprint)
	fmt.Printf("Runtime: %d ms\n", runtimeMs)

	fmt.Printf("\n=== BATCH CONVERGENCE ===\n")
	for _, c := range model.Convergence {
		marker := "✅"
		if !c.Converged() {
			marker = "⚠️ "
		}
		fmt.Printf("%s %s: %s after %d iterations (max delta %.3g)\n",
			marker, c.Batch, c.Status, c.Iterations, c.MaxDelta)
	}

	if len(warnings) > 0 {
		fmt.Printf("\n⚠️  WARNINGS:\n")
		for _, w := range warnings {
			fmt.Printf("• %s\n", w)
		}
	}
}

// newService wires the harmonization service over in-memory storage. CLI
// runs are one-shot, so models cross invocations as JSON files rather
// than through a repository.
func newService() (*app.HarmonizationService, *testkit.Kit) {
	kit := testkit.NewKit()
	return app.NewHarmonizationService(combat.DefaultConfig(), kit.Models, kit.Runs, kit.Logger), kit
}

func readPayload(ctx context.Context, path string, opts ports.ReadOptions) (*ports.MatrixPayload, error) {
	reader, err := pickReader(path)
	if err != nil {
		return nil, err
	}
	payload, err := reader.ReadMatrix(ctx, path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return payload, nil
}

func writeAdjusted(ctx context.Context, path string, m *dataset.Matrix, batches *dataset.BatchAssignment) error {
	writer, err := pickWriter(path)
	if err != nil {
		return err
	}
	if err := writer.WriteMatrix(ctx, path, m, batches); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func pickReader(path string) (ports.MatrixReader, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return jsonio.NewReader(), nil
	case ".xlsx", ".xlsm", ".csv":
		return excel.NewDataReader(), nil
	default:
		return nil, fmt.Errorf("unsupported input format %q (want .xlsx, .xlsm, .csv or .json)", ext)
	}
}

func pickWriter(path string) (ports.MatrixWriter, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return jsonio.NewWriter(), nil
	case ".xlsx", ".xlsm", ".csv":
		return excel.NewDataWriter(), nil
	default:
		return nil, fmt.Errorf("unsupported output format %q (want .xlsx, .xlsm, .csv or .json)", ext)
	}
}

func derivedOutputPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + "_harmonized" + ext
}

func readModelFile(path string) (*combat.Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	var model combat.Model
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("failed to parse model file: %w", err)
	}
	return &model, nil
}

func writeModelFile(path string, model *combat.Model) error {
	data, err := json.MarshalIndent(model, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write model file: %w", err)
	}
	return nil
}
