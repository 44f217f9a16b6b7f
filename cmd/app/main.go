package main

import (
	"context"
	"flag"
	"os"

	"github.com/gofiber/fiber/v2/log"

	"foodgram-backend/cmd/config"
	migration "foodgram-backend/cmd/database/migrate"
	"foodgram-backend/internal/utils"
	"foodgram-backend/pkg/catalog"
)

func main() {
	ingredientsCSV := flag.String("ingredients", "", "path to an ingredients CSV to import on startup")
	flag.Parse()

	utils.LoadConfig()

	db, err := config.ConnectDB()
	if err != nil {
		log.Fatalf("error connecting to database: %v", err)
	}

	if err := migration.Migrate(db); err != nil {
		log.Fatalf("error migrating database: %v", err)
	}

	if *ingredientsCSV != "" {
		file, err := os.Open(*ingredientsCSV)
		if err != nil {
			log.Fatalf("error opening ingredients file: %v", err)
		}
		service := catalog.NewCatalogService(catalog.NewCatalogRepository(db))
		count, err := service.ImportIngredientsCSV(context.Background(), file)
		_ = file.Close()
		if err != nil {
			log.Fatalf("error importing ingredients: %v", err)
		}
		log.Infof("imported %d ingredients", count)
	}

	app, err := config.NewApp(db)
	if err != nil {
		log.Fatalf("error creating app: %v", err)
	}

	if err := app.Listen(":" + utils.GetConfig("APP_PORT")); err != nil {
		log.Fatalf("error starting server: %v", err)
	}
}
