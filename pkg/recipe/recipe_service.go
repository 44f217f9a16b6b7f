package recipe

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"foodgram-backend/domain"
	"foodgram-backend/entities"
	"foodgram-backend/internal/utils"
	"foodgram-backend/internal/utils/storage"
	"foodgram-backend/pkg/catalog"
)

type (
	RecipeService interface {
		CreateRecipe(ctx context.Context, req domain.CreateRecipeRequest, userID uint) (domain.RecipeResponse, error)
		UpdateRecipe(ctx context.Context, recipeID uint, req domain.UpdateRecipeRequest, userID uint) (domain.RecipeResponse, error)
		DeleteRecipe(ctx context.Context, recipeID uint, userID uint) error
		GetRecipeDetail(ctx context.Context, recipeID uint, viewerID uint) (domain.RecipeResponse, error)
		GetRecipes(ctx context.Context, q domain.RecipeListQuery, viewerID uint) ([]domain.RecipeResponse, int64, error)

		AddToShoppingCart(ctx context.Context, recipeID uint, userID uint) (domain.RecipeShortResponse, error)
		RemoveFromShoppingCart(ctx context.Context, recipeID uint, userID uint) error
		AddFavorite(ctx context.Context, recipeID uint, userID uint) (domain.RecipeShortResponse, error)
		RemoveFavorite(ctx context.Context, recipeID uint, userID uint) error

		BuildShoppingList(ctx context.Context, userID uint) ([]domain.ShoppingListItem, error)
		RenderShoppingList(items []domain.ShoppingListItem) string

		GetShortLink(ctx context.Context, recipeID uint) (domain.ShortLinkResponse, error)
		ResolveShortLink(ctx context.Context, hash string) (uint, error)
	}

	// SubscriptionChecker answers whether a viewer follows an author.
	// Satisfied by the user repository; declared here to keep the
	// dependency one-directional.
	SubscriptionChecker interface {
		IsSubscribed(ctx context.Context, subscriberID, authorID uint) (bool, error)
	}

	recipeService struct {
		recipeRepository  RecipeRepository
		catalogRepository catalog.CatalogRepository
		subscriptions     SubscriptionChecker
		storage           storage.ObjectStorage
	}
)

func NewRecipeService(
	recipeRepository RecipeRepository,
	catalogRepository catalog.CatalogRepository,
	subscriptions SubscriptionChecker,
	objectStorage storage.ObjectStorage,
) RecipeService {
	return &recipeService{
		recipeRepository:  recipeRepository,
		catalogRepository: catalogRepository,
		subscriptions:     subscriptions,
		storage:           objectStorage,
	}
}

// validateRecipePayload runs the whole validation protocol before any
// persistence mutation. On success it returns the resolved tag rows and
// the ingredient lines ready to attach to a recipe.
func (s *recipeService) validateRecipePayload(
	ctx context.Context,
	cookingTime int,
	tagIDs []uint,
	ingredients []domain.IngredientAmountRequest,
) ([]entities.Tag, []entities.IngredientInRecipe, error) {
	if cookingTime < domain.MinCookingTime || cookingTime > domain.MaxCookingTime {
		return nil, nil, domain.NewValidationError(domain.KindOutOfRange, "cooking_time")
	}
	if len(tagIDs) == 0 {
		return nil, nil, domain.NewValidationError(domain.KindMissingRequired, "tags")
	}
	if len(ingredients) == 0 {
		return nil, nil, domain.NewValidationError(domain.KindMissingRequired, "ingredients")
	}

	seen := make(map[uint]struct{}, len(ingredients))
	ingredientIDs := make([]uint, 0, len(ingredients))
	for i, line := range ingredients {
		if line.Amount < domain.MinIngredientAmount || line.Amount > domain.MaxIngredientAmount {
			return nil, nil, domain.NewValidationError(
				domain.KindOutOfRange, fmt.Sprintf("ingredients[%d].amount", i))
		}
		if _, dup := seen[line.ID]; dup {
			return nil, nil, domain.NewValidationError(domain.KindDuplicate, "ingredients")
		}
		seen[line.ID] = struct{}{}
		ingredientIDs = append(ingredientIDs, line.ID)
	}

	existing, err := s.catalogRepository.GetIngredientsByIDs(ctx, ingredientIDs)
	if err != nil {
		return nil, nil, err
	}
	if len(existing) != len(ingredientIDs) {
		return nil, nil, domain.NewValidationError(domain.KindNotFound, "ingredients")
	}

	uniqueTagIDs := dedupeIDs(tagIDs)
	tags, err := s.catalogRepository.GetTagsByIDs(ctx, uniqueTagIDs)
	if err != nil {
		return nil, nil, err
	}
	if len(tags) != len(uniqueTagIDs) {
		return nil, nil, domain.NewValidationError(domain.KindNotFound, "tags")
	}

	lines := make([]entities.IngredientInRecipe, 0, len(ingredients))
	for _, line := range ingredients {
		lines = append(lines, entities.IngredientInRecipe{
			IngredientID: line.ID,
			Amount:       line.Amount,
		})
	}
	return tags, lines, nil
}

func (s *recipeService) CreateRecipe(ctx context.Context, req domain.CreateRecipeRequest, userID uint) (domain.RecipeResponse, error) {
	tags, lines, err := s.validateRecipePayload(ctx, req.CookingTime, req.Tags, req.Ingredients)
	if err != nil {
		return domain.RecipeResponse{}, err
	}

	imageURL, err := s.uploadImage(ctx, req.Image)
	if err != nil {
		return domain.RecipeResponse{}, err
	}

	recipe := &entities.Recipe{
		AuthorID:        userID,
		Name:            req.Name,
		Text:            req.Text,
		CookingTime:     req.CookingTime,
		ImageURL:        imageURL,
		Tags:            tags,
		IngredientLines: lines,
	}
	if err := s.recipeRepository.CreateRecipe(ctx, recipe); err != nil {
		return domain.RecipeResponse{}, err
	}

	return s.GetRecipeDetail(ctx, recipe.ID, userID)
}

func (s *recipeService) UpdateRecipe(ctx context.Context, recipeID uint, req domain.UpdateRecipeRequest, userID uint) (domain.RecipeResponse, error) {
	recipe, err := s.recipeRepository.GetRecipeByID(ctx, recipeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.RecipeResponse{}, domain.ErrRecipeNotFound
		}
		return domain.RecipeResponse{}, err
	}
	if recipe.AuthorID != userID {
		return domain.RecipeResponse{}, domain.ErrUnauthorizedRecipeAccess
	}

	tags, lines, err := s.validateRecipePayload(ctx, req.CookingTime, req.Tags, req.Ingredients)
	if err != nil {
		return domain.RecipeResponse{}, err
	}

	oldImageURL := recipe.ImageURL
	if req.Image != "" {
		imageURL, err := s.uploadImage(ctx, req.Image)
		if err != nil {
			return domain.RecipeResponse{}, err
		}
		recipe.ImageURL = imageURL
	}

	recipe.Name = req.Name
	recipe.Text = req.Text
	recipe.CookingTime = req.CookingTime

	if err := s.recipeRepository.UpdateRecipe(ctx, recipe, tags, lines); err != nil {
		return domain.RecipeResponse{}, err
	}

	if req.Image != "" && oldImageURL != "" && oldImageURL != recipe.ImageURL {
		_ = s.storage.DeleteFile(ctx, s.storage.GetObjectKeyFromLink(oldImageURL))
	}

	return s.GetRecipeDetail(ctx, recipe.ID, userID)
}

func (s *recipeService) DeleteRecipe(ctx context.Context, recipeID uint, userID uint) error {
	recipe, err := s.recipeRepository.GetRecipeByID(ctx, recipeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrRecipeNotFound
		}
		return err
	}
	if recipe.AuthorID != userID {
		return domain.ErrUnauthorizedRecipeAccess
	}

	if err := s.recipeRepository.DeleteRecipe(ctx, recipeID); err != nil {
		return err
	}
	if recipe.ImageURL != "" {
		_ = s.storage.DeleteFile(ctx, s.storage.GetObjectKeyFromLink(recipe.ImageURL))
	}
	return nil
}

func (s *recipeService) GetRecipeDetail(ctx context.Context, recipeID uint, viewerID uint) (domain.RecipeResponse, error) {
	recipe, err := s.recipeRepository.GetRecipeByID(ctx, recipeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.RecipeResponse{}, domain.ErrRecipeNotFound
		}
		return domain.RecipeResponse{}, err
	}
	return s.toRecipeResponse(ctx, recipe, viewerID)
}

func (s *recipeService) GetRecipes(ctx context.Context, q domain.RecipeListQuery, viewerID uint) ([]domain.RecipeResponse, int64, error) {
	recipes, count, err := s.recipeRepository.GetRecipes(ctx, q, viewerID)
	if err != nil {
		return nil, 0, err
	}

	res := make([]domain.RecipeResponse, 0, len(recipes))
	for _, recipe := range recipes {
		item, err := s.toRecipeResponse(ctx, recipe, viewerID)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, item)
	}
	return res, count, nil
}

func (s *recipeService) AddToShoppingCart(ctx context.Context, recipeID uint, userID uint) (domain.RecipeShortResponse, error) {
	recipe, err := s.getExistingRecipe(ctx, recipeID)
	if err != nil {
		return domain.RecipeShortResponse{}, err
	}

	inCart, err := s.recipeRepository.InCart(ctx, userID, recipeID)
	if err != nil {
		return domain.RecipeShortResponse{}, err
	}
	if inCart {
		return domain.RecipeShortResponse{}, domain.ErrAlreadyInShoppingCart
	}

	if err := s.recipeRepository.AddToCart(ctx, userID, recipeID); err != nil {
		// Two racing adds can both pass the existence check; the unique
		// index decides, and the loser reports the same conflict.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.RecipeShortResponse{}, domain.ErrAlreadyInShoppingCart
		}
		return domain.RecipeShortResponse{}, err
	}
	return toRecipeShortResponse(recipe), nil
}

func (s *recipeService) RemoveFromShoppingCart(ctx context.Context, recipeID uint, userID uint) error {
	if _, err := s.getExistingRecipe(ctx, recipeID); err != nil {
		return err
	}
	removed, err := s.recipeRepository.RemoveFromCart(ctx, userID, recipeID)
	if err != nil {
		return err
	}
	if !removed {
		return domain.ErrNotInShoppingCart
	}
	return nil
}

func (s *recipeService) AddFavorite(ctx context.Context, recipeID uint, userID uint) (domain.RecipeShortResponse, error) {
	recipe, err := s.getExistingRecipe(ctx, recipeID)
	if err != nil {
		return domain.RecipeShortResponse{}, err
	}

	favorited, err := s.recipeRepository.IsFavorited(ctx, userID, recipeID)
	if err != nil {
		return domain.RecipeShortResponse{}, err
	}
	if favorited {
		return domain.RecipeShortResponse{}, domain.ErrAlreadyFavorited
	}

	if err := s.recipeRepository.AddFavorite(ctx, userID, recipeID); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.RecipeShortResponse{}, domain.ErrAlreadyFavorited
		}
		return domain.RecipeShortResponse{}, err
	}
	return toRecipeShortResponse(recipe), nil
}

func (s *recipeService) RemoveFavorite(ctx context.Context, recipeID uint, userID uint) error {
	if _, err := s.getExistingRecipe(ctx, recipeID); err != nil {
		return err
	}
	removed, err := s.recipeRepository.RemoveFavorite(ctx, userID, recipeID)
	if err != nil {
		return err
	}
	if !removed {
		return domain.ErrNotFavorited
	}
	return nil
}

// BuildShoppingList aggregates the ingredient lines of every recipe in
// the user's cart. Lines are grouped by the textual (name, unit) identity
// of the ingredient: two catalog rows with the same name and unit merge
// into one report line.
func (s *recipeService) BuildShoppingList(ctx context.Context, userID uint) ([]domain.ShoppingListItem, error) {
	lines, err := s.recipeRepository.GetCartIngredientLines(ctx, userID)
	if err != nil {
		return nil, err
	}

	type groupKey struct {
		name string
		unit string
	}
	totals := make(map[groupKey]int)
	for _, line := range lines {
		if line.Ingredient == nil {
			continue
		}
		key := groupKey{name: line.Ingredient.Name, unit: line.Ingredient.MeasurementUnit}
		totals[key] += line.Amount
	}

	items := make([]domain.ShoppingListItem, 0, len(totals))
	for key, amount := range totals {
		items = append(items, domain.ShoppingListItem{
			Name:   key.name,
			Unit:   key.unit,
			Amount: amount,
		})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Name != items[j].Name {
			return items[i].Name < items[j].Name
		}
		return items[i].Unit < items[j].Unit
	})
	return items, nil
}

func (s *recipeService) RenderShoppingList(items []domain.ShoppingListItem) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, fmt.Sprintf("%s (%s) — %d", item.Name, item.Unit, item.Amount))
	}
	return strings.Join(lines, "\n")
}

func (s *recipeService) GetShortLink(ctx context.Context, recipeID uint) (domain.ShortLinkResponse, error) {
	if _, err := s.getExistingRecipe(ctx, recipeID); err != nil {
		return domain.ShortLinkResponse{}, err
	}

	link, err := s.recipeRepository.GetShortLinkByRecipe(ctx, recipeID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		link = &entities.ShortLink{RecipeID: recipeID, Hash: ShortLinkHash(recipeID)}
		if createErr := s.recipeRepository.CreateShortLink(ctx, link); createErr != nil {
			if errors.Is(createErr, gorm.ErrDuplicatedKey) {
				link, err = s.recipeRepository.GetShortLinkByRecipe(ctx, recipeID)
				if err != nil {
					return domain.ShortLinkResponse{}, err
				}
			} else {
				return domain.ShortLinkResponse{}, createErr
			}
		}
	} else if err != nil {
		return domain.ShortLinkResponse{}, err
	}

	return domain.ShortLinkResponse{
		ShortLink: fmt.Sprintf("%s/s/%s", utils.GetConfig("BASE_URL"), link.Hash),
	}, nil
}

func (s *recipeService) ResolveShortLink(ctx context.Context, hash string) (uint, error) {
	link, err := s.recipeRepository.GetShortLinkByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, domain.ErrShortLinkNotFound
		}
		return 0, err
	}
	return link.RecipeID, nil
}

// ShortLinkHash derives the stable 6-character hash for a recipe id.
func ShortLinkHash(recipeID uint) string {
	sum := sha256.Sum256([]byte(strconv.FormatUint(uint64(recipeID), 10)))
	return base64.URLEncoding.EncodeToString(sum[:])[:6]
}

func (s *recipeService) getExistingRecipe(ctx context.Context, recipeID uint) (*entities.Recipe, error) {
	recipe, err := s.recipeRepository.GetRecipeByID(ctx, recipeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRecipeNotFound
		}
		return nil, err
	}
	return recipe, nil
}

func (s *recipeService) uploadImage(ctx context.Context, payload string) (string, error) {
	raw, ext, err := utils.DecodeBase64Image(payload)
	if err != nil {
		return "", domain.NewValidationError(domain.KindMalformedInput, "image")
	}

	fileName := uuid.New().String()
	objectKey, err := s.storage.UploadFile(ctx, fileName, raw, ext, "recipes/images", storage.AllowImage...)
	if err != nil {
		if errors.Is(err, storage.ErrExtensionNotAllowed) {
			return "", domain.NewValidationError(domain.KindMalformedInput, "image")
		}
		return "", err
	}
	return s.storage.GetPublicLinkKey(objectKey), nil
}

func (s *recipeService) toRecipeResponse(ctx context.Context, recipe *entities.Recipe, viewerID uint) (domain.RecipeResponse, error) {
	res := domain.RecipeResponse{
		ID:          recipe.ID,
		Name:        recipe.Name,
		Image:       recipe.ImageURL,
		Text:        recipe.Text,
		CookingTime: recipe.CookingTime,
		PubDate:     recipe.PubDate,
	}

	res.Tags = make([]domain.TagResponse, 0, len(recipe.Tags))
	for _, tag := range recipe.Tags {
		res.Tags = append(res.Tags, domain.TagResponse{ID: tag.ID, Name: tag.Name, Slug: tag.Slug})
	}

	res.Ingredients = make([]domain.IngredientInRecipeResponse, 0, len(recipe.IngredientLines))
	for _, line := range recipe.IngredientLines {
		item := domain.IngredientInRecipeResponse{
			ID:     line.IngredientID,
			Amount: line.Amount,
		}
		if line.Ingredient != nil {
			item.Name = line.Ingredient.Name
			item.MeasurementUnit = line.Ingredient.MeasurementUnit
		}
		res.Ingredients = append(res.Ingredients, item)
	}

	if recipe.Author != nil {
		res.Author = domain.UserResponse{
			ID:        recipe.Author.ID,
			Email:     recipe.Author.Email,
			Username:  recipe.Author.Username,
			FirstName: recipe.Author.FirstName,
			LastName:  recipe.Author.LastName,
			Avatar:    recipe.Author.AvatarURL,
		}
		if viewerID != 0 && viewerID != recipe.AuthorID {
			subscribed, err := s.subscriptions.IsSubscribed(ctx, viewerID, recipe.AuthorID)
			if err != nil {
				return domain.RecipeResponse{}, err
			}
			res.Author.IsSubscribed = subscribed
		}
	}

	if viewerID != 0 {
		favorited, err := s.recipeRepository.IsFavorited(ctx, viewerID, recipe.ID)
		if err != nil {
			return domain.RecipeResponse{}, err
		}
		res.IsFavorited = favorited

		inCart, err := s.recipeRepository.InCart(ctx, viewerID, recipe.ID)
		if err != nil {
			return domain.RecipeResponse{}, err
		}
		res.IsInShoppingCart = inCart
	}

	return res, nil
}

func toRecipeShortResponse(recipe *entities.Recipe) domain.RecipeShortResponse {
	return domain.RecipeShortResponse{
		ID:          recipe.ID,
		Name:        recipe.Name,
		Image:       recipe.ImageURL,
		CookingTime: recipe.CookingTime,
	}
}

func dedupeIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
