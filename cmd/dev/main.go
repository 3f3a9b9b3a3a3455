package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/montanaflynn/stats"
	"github.com/spf13/cobra"
	"github.com/xuri/excelize/v2"

	"gocombat/app"
	"gocombat/domain/combat"
	"gocombat/domain/dataset"
	"gocombat/internal/migration"
	"gocombat/internal/testkit"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gocombat-dev",
		Short: "gocombat development tools",
	}

	rootCmd.AddCommand(
		newSeedCmd(),
		newSmokeTestCmd(),
		newDeterminismTestCmd(),
		newMigrateCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newSeedCmd() *cobra.Command {
	var seed int64
	var features int
	var output string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Generate a synthetic expression fixture with injected batch effects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return generateSeedData(seed, features, output)
		},
	}

	cmd.Flags().Int64Var(&seed, "seed", 42, "Random seed for deterministic generation")
	cmd.Flags().IntVar(&features, "features", 20, "Number of feature columns")
	cmd.Flags().StringVar(&output, "output", "seed_expression.xlsx", "Fixture path (.xlsx or .csv)")

	return cmd
}

func newSmokeTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Run smoke tests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSmokeTests(cmd.Context())
		},
	}
	return cmd
}

func newDeterminismTestCmd() *cobra.Command {
	var seed int64

	cmd := &cobra.Command{
		Use:   "determinism",
		Short: "Fit the same dataset twice and compare fingerprints",
		RunE: func(cmd *cobra.Command, args []string) error {
			return testDeterminism(cmd.Context(), seed)
		},
	}

	cmd.Flags().Int64Var(&seed, "seed", 42, "Random seed shared by both runs")

	return cmd
}

func newMigrateCmd() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the harmonization store schema",
		Long: `Apply the model and run tables.

Targets Postgres when --database-url (or DATABASE_URL) is set, otherwise a
local SQLite file for development.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				databaseURL = os.Getenv("DATABASE_URL")
			}
			return runMigrate(cmd.Context(), databaseURL)
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", "", "Postgres connection string (default: DATABASE_URL env)")

	return cmd
}

func generateSeedData(seed int64, features int, output string) error {
	fmt.Println("Generating seed data...")

	cfg := testkit.DefaultExpressionConfig()
	cfg.Seed = seed
	cfg.Features = features

	matrix, batches, covs, err := testkit.NewExpressionGenerator(cfg).Generate()
	if err != nil {
		return fmt.Errorf("failed to generate dataset: %w", err)
	}

	rows := fixtureRows(matrix, batches, covs)
	switch ext := strings.ToLower(filepath.Ext(output)); ext {
	case ".xlsx":
		err = writeFixtureWorkbook(output, rows)
	case ".csv":
		err = writeFixtureCSV(output, rows)
	default:
		return fmt.Errorf("unsupported fixture format %q (want .xlsx or .csv)", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to write fixture: %w", err)
	}

	fmt.Printf("Created fixture: %s\n", output)
	fmt.Printf("  Samples:  %d\n", matrix.Rows())
	fmt.Printf("  Features: %d\n", matrix.Cols())
	fmt.Printf("  Batches:  %d\n", len(batches.Groups()))
	for _, c := range covs.Interest {
		fmt.Printf("  Covariate: %s\n", c.Name)
	}
	fmt.Println("Seed data generation completed successfully")
	return nil
}

// fixtureRows lays the dataset out the way the table reader expects it
// back: sample_id, batch, covariate columns, then one column per feature.
func fixtureRows(m *dataset.Matrix, batches *dataset.BatchAssignment, covs *dataset.CovariateSet) [][]string {
	header := []string{"sample_id", "batch"}
	for _, c := range covs.Interest {
		header = append(header, c.Name)
	}
	for _, f := range m.Features {
		header = append(header, f.String())
	}

	rows := [][]string{header}
	for i := range m.Data {
		row := make([]string, 0, len(header))
		row = append(row, m.SampleIDs[i].String(), batches.Labels[i].String())
		for _, c := range covs.Interest {
			row = append(row, strconv.FormatFloat(c.Values[i], 'g', -1, 64))
		}
		for _, v := range m.Data[i] {
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		rows = append(rows, row)
	}
	return rows
}

func writeFixtureWorkbook(path string, rows [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cells := make([]interface{}, len(row))
		for j, v := range row {
			cells[j] = v
		}
		anchor, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow("Sheet1", anchor, &cells); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}

func writeFixtureCSV(path string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	cw := csv.NewWriter(file)
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func runSmokeTests(ctx context.Context) error {
	fmt.Println("Running smoke tests...")

	tests := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"fit_converges", func(ctx context.Context) error {
			result, err := fitDefault(ctx, 42)
			if err != nil {
				return err
			}
			if !result.Model.AllConverged() {
				return fmt.Errorf("solver did not converge: %v", result.Warnings)
			}
			return nil
		}},
		{"transform_matches_fit_transform", func(ctx context.Context) error {
			matrix, batches, covs, err := generate(42)
			if err != nil {
				return err
			}

			svc := newService()
			fit, err := svc.Fit(ctx, app.FitRequest{Data: matrix, Batches: batches, Covariates: covs})
			if err != nil {
				return err
			}
			viaTransform, err := svc.Transform(ctx, app.TransformRequest{
				ModelID: fit.Model.ID, Data: matrix, Batches: batches, Covariates: covs,
			})
			if err != nil {
				return err
			}

			combined, err := newService().FitTransform(ctx, app.FitRequest{Data: matrix, Batches: batches, Covariates: covs})
			if err != nil {
				return err
			}

			if viaTransform.Adjusted.Fingerprint() != combined.Adjusted.Fingerprint() {
				return fmt.Errorf("fit+transform and fit-transform disagree")
			}
			return nil
		}},
		{"batch_means_aligned", func(ctx context.Context) error {
			matrix, batches, covs, err := generate(42)
			if err != nil {
				return err
			}
			result, err := newService().FitTransform(ctx, app.FitRequest{Data: matrix, Batches: batches, Covariates: covs})
			if err != nil {
				return err
			}

			before, err := batchMeanSpread(matrix, batches)
			if err != nil {
				return err
			}
			after, err := batchMeanSpread(result.Adjusted, batches)
			if err != nil {
				return err
			}
			if after >= before {
				return fmt.Errorf("batch mean spread did not shrink: %.4g -> %.4g", before, after)
			}
			return nil
		}},
		{"model_json_round_trip", func(ctx context.Context) error {
			matrix, batches, covs, err := generate(42)
			if err != nil {
				return err
			}

			svc := newService()
			fit, err := svc.Fit(ctx, app.FitRequest{Data: matrix, Batches: batches, Covariates: covs})
			if err != nil {
				return err
			}
			direct, err := svc.Transform(ctx, app.TransformRequest{
				ModelID: fit.Model.ID, Data: matrix, Batches: batches, Covariates: covs,
			})
			if err != nil {
				return err
			}

			data, err := json.Marshal(fit.Model)
			if err != nil {
				return err
			}
			var restored combat.Model
			if err := json.Unmarshal(data, &restored); err != nil {
				return err
			}
			if restored.Fingerprint != fit.Model.Fingerprint {
				return fmt.Errorf("model fingerprint changed across JSON round trip")
			}

			kit := testkit.NewKit()
			svc2 := app.NewHarmonizationService(combat.DefaultConfig(), kit.Models, kit.Runs, kit.Logger)
			if err := kit.Models.SaveModel(ctx, &restored); err != nil {
				return err
			}
			replayed, err := svc2.Transform(ctx, app.TransformRequest{
				ModelID: restored.ID, Data: matrix, Batches: batches, Covariates: covs,
			})
			if err != nil {
				return err
			}
			if replayed.Adjusted.Fingerprint() != direct.Adjusted.Fingerprint() {
				return fmt.Errorf("restored model produced different output")
			}
			return nil
		}},
	}

	passed := 0
	for _, test := range tests {
		fmt.Printf("  Running %s...", test.name)
		if err := test.fn(ctx); err != nil {
			fmt.Printf(" FAILED: %v\n", err)
		} else {
			fmt.Println(" PASSED")
			passed++
		}
	}

	fmt.Printf("\nSmoke tests: %d/%d passed\n", passed, len(tests))
	if passed < len(tests) {
		return fmt.Errorf("some smoke tests failed")
	}

	return nil
}

func testDeterminism(ctx context.Context, seed int64) error {
	fmt.Printf("Testing determinism with seed %d...\n", seed)

	first, err := fitDefault(ctx, seed)
	if err != nil {
		return fmt.Errorf("first run failed: %w", err)
	}

	fmt.Println("Re-running with the same seed...")
	second, err := fitDefault(ctx, seed)
	if err != nil {
		return fmt.Errorf("second run failed: %w", err)
	}

	if first.Model.InputFingerprint != second.Model.InputFingerprint {
		return fmt.Errorf("determinism test failed: input fingerprints differ")
	}
	if first.Model.Fingerprint != second.Model.Fingerprint {
		return fmt.Errorf("determinism test failed: model fingerprints differ")
	}
	if first.Adjusted.Fingerprint() != second.Adjusted.Fingerprint() {
		return fmt.Errorf("determinism test failed: adjusted outputs differ")
	}

	fmt.Println("✓ Determinism test passed - results identical")
	return nil
}

func runMigrate(ctx context.Context, databaseURL string) error {
	driver, dsn := "sqlite3", "./gocombat_dev.db"
	if databaseURL != "" {
		driver, dsn = "postgres", databaseURL
	}
	fmt.Printf("Applying schema (%s)...\n", driver)

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	runner := migration.NewRunner()
	if err := runner.Run(ctx, db); err != nil {
		return err
	}

	fmt.Printf("Schema version %s applied\n", runner.Version())
	return nil
}

func generate(seed int64) (*dataset.Matrix, *dataset.BatchAssignment, *dataset.CovariateSet, error) {
	cfg := testkit.DefaultExpressionConfig()
	cfg.Seed = seed
	return testkit.NewExpressionGenerator(cfg).Generate()
}

func newService() *app.HarmonizationService {
	kit := testkit.NewKit()
	return app.NewHarmonizationService(combat.DefaultConfig(), kit.Models, kit.Runs, kit.Logger)
}

func fitDefault(ctx context.Context, seed int64) (*app.FitTransformResult, error) {
	matrix, batches, covs, err := generate(seed)
	if err != nil {
		return nil, err
	}
	return newService().FitTransform(ctx, app.FitRequest{Data: matrix, Batches: batches, Covariates: covs})
}

// batchMeanSpread is the gap between the highest and lowest per-batch
// grand mean, the coarsest possible read on location batch effects.
func batchMeanSpread(m *dataset.Matrix, batches *dataset.BatchAssignment) (float64, error) {
	summaries, err := combat.SummarizeByBatch(m, batches)
	if err != nil {
		return 0, err
	}

	grand := make([]float64, 0, len(summaries))
	for _, s := range summaries {
		mean, err := stats.Mean(s.Means)
		if err != nil {
			return 0, err
		}
		grand = append(grand, mean)
	}

	lo, err := stats.Min(grand)
	if err != nil {
		return 0, err
	}
	hi, err := stats.Max(grand)
	if err != nil {
		return 0, err
	}
	return hi - lo, nil
}
