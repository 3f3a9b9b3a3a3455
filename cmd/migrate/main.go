package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"gocombat/adapters/postgres"
	"gocombat/domain/combat"
	"gocombat/internal/migration"
)

// Imports model files produced by the CLI (fit --model-out) into the
// Postgres store, so file-based workflows can graduate to the API server
// without refitting.
func main() {
	if len(os.Args) < 3 {
		log.Fatal("Usage: migrate <database_url> <models_dir>")
	}

	databaseURL := os.Args[1]
	modelsDir := os.Args[2]

	log.Printf("Starting model import from %s", modelsDir)

	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := migration.NewRunner().Run(ctx, db); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	repo := postgres.NewModelRepository(db)

	files, err := findModelFiles(modelsDir)
	if err != nil {
		log.Fatalf("Failed to scan %s: %v", modelsDir, err)
	}
	log.Printf("Found %d model files to import", len(files))

	imported := 0
	skipped := 0

	for _, file := range files {
		model, err := loadModelFromFile(file)
		if err != nil {
			log.Printf("Failed to load model from %s: %v", file, err)
			skipped++
			continue
		}

		// A fresh config validation catches files edited by hand.
		if err := model.Config.Validate(); err != nil {
			log.Printf("Model %s carries an invalid config: %v", filepath.Base(file), err)
			skipped++
			continue
		}

		if err := repo.SaveModel(ctx, model); err != nil {
			log.Printf("Failed to save model %s: %v", model.ID, err)
			skipped++
			continue
		}

		imported++
		log.Printf("Imported model %s from %s", model.ID, filepath.Base(file))
	}

	log.Printf("Import complete: %d imported, %d skipped", imported, skipped)
}

func findModelFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && strings.HasSuffix(path, ".json") {
			files = append(files, path)
		}

		return nil
	})

	return files, err
}

func loadModelFromFile(path string) (*combat.Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var model combat.Model
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, err
	}

	return &model, nil
}
