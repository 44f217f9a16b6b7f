package domain

import (
	"errors"
	"time"
)

// Bounds for recipe payload fields. Violations surface as
// ValidationError{Kind: KindOutOfRange}.
const (
	MinCookingTime = 1
	MaxCookingTime = 32000

	MinIngredientAmount = 1
	MaxIngredientAmount = 32000
)

var (
	MessageSuccessGetRecipes      = "success get recipes"
	MessageSuccessGetRecipeDetail = "success get recipe detail"
	MessageSuccessCreateRecipe    = "recipe created successfully"
	MessageSuccessUpdateRecipe    = "recipe updated successfully"
	MessageSuccessDeleteRecipe    = "recipe deleted successfully"
	MessageSuccessAddFavorite     = "recipe added to favorites"
	MessageSuccessRemoveFavorite  = "recipe removed from favorites"
	MessageSuccessAddToCart       = "recipe added to shopping cart"
	MessageSuccessRemoveFromCart  = "recipe removed from shopping cart"
	MessageSuccessGetShortLink    = "success get short link"
	MessageSuccessGetShoppingList = "success get shopping list"

	MessageFailedGetRecipes      = "failed to get recipes"
	MessageFailedGetRecipeDetail = "failed to get recipe detail"
	MessageFailedCreateRecipe    = "failed to create recipe"
	MessageFailedUpdateRecipe    = "failed to update recipe"
	MessageFailedDeleteRecipe    = "failed to delete recipe"
	MessageFailedFavorite        = "failed to update favorites"
	MessageFailedShoppingCart    = "failed to update shopping cart"
	MessageFailedGetShortLink    = "failed to get short link"
	MessageFailedGetShoppingList = "failed to build shopping list"

	ErrRecipeNotFound           = errors.New("recipe not found")
	ErrUnauthorizedRecipeAccess = errors.New("unauthorized access to recipe")
	ErrAlreadyInShoppingCart    = errors.New("recipe already in shopping cart")
	ErrNotInShoppingCart        = errors.New("recipe not in shopping cart")
	ErrAlreadyFavorited         = errors.New("recipe already in favorites")
	ErrNotFavorited             = errors.New("recipe not in favorites")
	ErrShortLinkNotFound        = errors.New("short link not found")
)

type (
	IngredientAmountRequest struct {
		ID     uint `json:"id" validate:"required"`
		Amount int  `json:"amount" validate:"required"`
	}

	CreateRecipeRequest struct {
		Name        string                    `json:"name" validate:"required,max=256"`
		Text        string                    `json:"text" validate:"required"`
		CookingTime int                       `json:"cooking_time" validate:"required"`
		Image       string                    `json:"image" validate:"required"`
		Tags        []uint                    `json:"tags"`
		Ingredients []IngredientAmountRequest `json:"ingredients"`
	}

	UpdateRecipeRequest struct {
		Name        string                    `json:"name" validate:"required,max=256"`
		Text        string                    `json:"text" validate:"required"`
		CookingTime int                       `json:"cooking_time" validate:"required"`
		Image       string                    `json:"image" validate:"omitempty"`
		Tags        []uint                    `json:"tags"`
		Ingredients []IngredientAmountRequest `json:"ingredients"`
	}

	RecipeListQuery struct {
		Page             int
		Limit            int
		TagSlugs         []string
		AuthorID         uint
		IsFavorited      bool
		IsInShoppingCart bool
	}

	IngredientInRecipeResponse struct {
		ID              uint   `json:"id"`
		Name            string `json:"name"`
		MeasurementUnit string `json:"measurement_unit"`
		Amount          int    `json:"amount"`
	}

	RecipeResponse struct {
		ID               uint                         `json:"id"`
		Tags             []TagResponse                `json:"tags"`
		Author           UserResponse                 `json:"author"`
		Ingredients      []IngredientInRecipeResponse `json:"ingredients"`
		IsFavorited      bool                         `json:"is_favorited"`
		IsInShoppingCart bool                         `json:"is_in_shopping_cart"`
		Name             string                       `json:"name"`
		Image            string                       `json:"image"`
		Text             string                       `json:"text"`
		CookingTime      int                          `json:"cooking_time"`
		PubDate          time.Time                    `json:"pub_date"`
	}

	RecipeShortResponse struct {
		ID          uint   `json:"id"`
		Name        string `json:"name"`
		Image       string `json:"image"`
		CookingTime int    `json:"cooking_time"`
	}

	// ShoppingListItem is one aggregated report line. Lines are grouped by
	// the textual identity (name, unit) of the ingredient, not its id.
	ShoppingListItem struct {
		Name   string `json:"name"`
		Unit   string `json:"unit"`
		Amount int    `json:"total_amount"`
	}

	ShortLinkResponse struct {
		ShortLink string `json:"short-link"`
	}
)
