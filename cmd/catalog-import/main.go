// Command catalog-import loads a catalog JSON envelope into the database.
//
//	catalog-import -file catalog.json
//	catalog-import -export > catalog.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/saq-app/backend/internal/catalog"
	"github.com/saq-app/backend/internal/config"
	"github.com/saq-app/backend/internal/database"
	"github.com/saq-app/backend/internal/models"
)

func main() {
	file := flag.String("file", "", "catalog JSON file to import")
	export := flag.Bool("export", false, "write the current catalog to stdout instead of importing")
	flag.Parse()

	if err := run(context.Background(), *file, *export); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, file string, export bool) error {
	if !export && file == "" {
		return fmt.Errorf("-file is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(db, cfg.Database.Driver); err != nil {
		return err
	}

	service := catalog.NewService(catalog.NewStore(db))

	if export {
		envelope, err := service.Export(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(envelope)
	}

	raw, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	var envelope models.CatalogEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode catalog: %w", err)
	}

	result, err := service.Import(ctx, envelope)
	if err != nil {
		return err
	}
	log.Printf("Imported %d pages, %d questions, %d answers", result.Pages, result.Questions, result.Answers)
	return nil
}
