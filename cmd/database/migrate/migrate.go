package migration

import (
	"fmt"
	"log"

	"gorm.io/gorm"

	"foodgram-backend/entities"
)

func Migrate(db *gorm.DB) error {
	models := []any{
		&entities.User{},
		&entities.Ingredient{},
		&entities.Tag{},
		&entities.Recipe{},
		&entities.IngredientInRecipe{},
		&entities.ShoppingCart{},
		&entities.Favorite{},
		&entities.ShortLink{},
	}
	for _, model := range models {
		if err := db.AutoMigrate(model); err != nil {
			log.Fatalf("Error migrating %T: %v", model, err)
			return err
		}
	}

	fmt.Println("Database migration complete")
	return nil
}
