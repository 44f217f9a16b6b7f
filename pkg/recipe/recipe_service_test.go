package recipe

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"foodgram-backend/domain"
	"foodgram-backend/entities"
	"foodgram-backend/pkg/catalog"
)

type fakeStorage struct {
	deleted []string
}

func (f *fakeStorage) UploadFile(_ context.Context, fileName string, _ []byte, ext string, dir string, _ ...string) (string, error) {
	return fmt.Sprintf("%s/%s.%s", dir, fileName, ext), nil
}

func (f *fakeStorage) DeleteFile(_ context.Context, objectKey string) error {
	f.deleted = append(f.deleted, objectKey)
	return nil
}

func (f *fakeStorage) GetPublicLinkKey(objectKey string) string {
	return "https://cdn.test/" + objectKey
}

func (f *fakeStorage) GetObjectKeyFromLink(link string) string {
	return strings.TrimPrefix(link, "https://cdn.test/")
}

type fakeSubscriptions struct {
	subscribed bool
}

func (f *fakeSubscriptions) IsSubscribed(context.Context, uint, uint) (bool, error) {
	return f.subscribed, nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&entities.User{},
		&entities.Ingredient{},
		&entities.Tag{},
		&entities.Recipe{},
		&entities.IngredientInRecipe{},
		&entities.ShoppingCart{},
		&entities.Favorite{},
		&entities.ShortLink{},
	))
	return db
}

type fixture struct {
	db      *gorm.DB
	service RecipeService

	author entities.User
	viewer entities.User

	saltA entities.Ingredient
	saltB entities.Ingredient
	sugar entities.Ingredient
	flour entities.Ingredient

	breakfast entities.Tag
	dinner    entities.Tag
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)

	f := &fixture{
		db:     db,
		author: entities.User{Email: "author@example.com", Username: "author", Password: "x"},
		viewer: entities.User{Email: "viewer@example.com", Username: "viewer", Password: "x"},

		saltA: entities.Ingredient{Name: "salt", MeasurementUnit: "g"},
		saltB: entities.Ingredient{Name: "salt", MeasurementUnit: "g"},
		sugar: entities.Ingredient{Name: "sugar", MeasurementUnit: "g"},
		flour: entities.Ingredient{Name: "flour", MeasurementUnit: "g"},

		breakfast: entities.Tag{Name: "Breakfast", Slug: "breakfast"},
		dinner:    entities.Tag{Name: "Dinner", Slug: "dinner"},
	}
	require.NoError(t, db.Create(&f.author).Error)
	require.NoError(t, db.Create(&f.viewer).Error)
	for _, ing := range []*entities.Ingredient{&f.saltA, &f.saltB, &f.sugar, &f.flour} {
		require.NoError(t, db.Create(ing).Error)
	}
	require.NoError(t, db.Create(&f.breakfast).Error)
	require.NoError(t, db.Create(&f.dinner).Error)

	f.service = NewRecipeService(
		NewRecipeRepository(db),
		catalog.NewCatalogRepository(db),
		&fakeSubscriptions{},
		&fakeStorage{},
	)
	return f
}

func testImage() string {
	return base64.StdEncoding.EncodeToString([]byte("image-bytes"))
}

func (f *fixture) createRequest() domain.CreateRecipeRequest {
	return domain.CreateRecipeRequest{
		Name:        "Pancakes",
		Text:        "Mix and fry.",
		CookingTime: 20,
		Image:       testImage(),
		Tags:        []uint{f.breakfast.ID},
		Ingredients: []domain.IngredientAmountRequest{
			{ID: f.flour.ID, Amount: 100},
			{ID: f.sugar.ID, Amount: 5},
		},
	}
}

func (f *fixture) lineCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&entities.IngredientInRecipe{}).Count(&count).Error)
	return count
}

func TestCreateRecipe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.service.CreateRecipe(ctx, f.createRequest(), f.author.ID)
	require.NoError(t, err)

	assert.NotZero(t, res.ID)
	assert.Equal(t, "Pancakes", res.Name)
	assert.Equal(t, 20, res.CookingTime)
	assert.Equal(t, f.author.ID, res.Author.ID)
	require.Len(t, res.Tags, 1)
	assert.Equal(t, "breakfast", res.Tags[0].Slug)
	require.Len(t, res.Ingredients, 2)
	assert.True(t, strings.HasPrefix(res.Image, "https://cdn.test/recipes/images/"))
}

func TestCreateRecipeCookingTimeBounds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, valid := range []int{domain.MinCookingTime, domain.MaxCookingTime} {
		req := f.createRequest()
		req.CookingTime = valid
		_, err := f.service.CreateRecipe(ctx, req, f.author.ID)
		require.NoError(t, err)
	}

	for _, invalid := range []int{domain.MinCookingTime - 1, domain.MaxCookingTime + 1} {
		req := f.createRequest()
		req.CookingTime = invalid
		_, err := f.service.CreateRecipe(ctx, req, f.author.ID)
		vErr, ok := domain.AsValidationError(err)
		require.True(t, ok)
		assert.Equal(t, domain.KindOutOfRange, vErr.Kind)
		assert.Equal(t, "cooking_time", vErr.Field)
	}
}

func TestCreateRecipeValidationOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Cooking time is checked before the tag set.
	req := f.createRequest()
	req.CookingTime = 0
	req.Tags = nil
	_, err := f.service.CreateRecipe(ctx, req, f.author.ID)
	vErr, ok := domain.AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, "cooking_time", vErr.Field)

	// Tags are checked before ingredients.
	req = f.createRequest()
	req.Tags = nil
	req.Ingredients = nil
	_, err = f.service.CreateRecipe(ctx, req, f.author.ID)
	vErr, ok = domain.AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindMissingRequired, vErr.Kind)
	assert.Equal(t, "tags", vErr.Field)
}

func TestCreateRecipeDuplicateIngredient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.createRequest()
	req.Ingredients = []domain.IngredientAmountRequest{
		{ID: f.sugar.ID, Amount: 5},
		{ID: f.sugar.ID, Amount: 7},
	}
	_, err := f.service.CreateRecipe(ctx, req, f.author.ID)
	vErr, ok := domain.AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindDuplicate, vErr.Kind)
	assert.Equal(t, int64(0), f.lineCount(t))
}

func TestCreateRecipeUnknownIngredientIsAtomic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.createRequest()
	req.Ingredients = []domain.IngredientAmountRequest{
		{ID: f.sugar.ID, Amount: 5},
		{ID: f.flour.ID, Amount: 100},
		{ID: 9999, Amount: 1},
	}
	_, err := f.service.CreateRecipe(ctx, req, f.author.ID)
	vErr, ok := domain.AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindNotFound, vErr.Kind)
	assert.Equal(t, "ingredients", vErr.Field)

	// No partial rows survive a rejected payload.
	assert.Equal(t, int64(0), f.lineCount(t))
	var recipes int64
	require.NoError(t, f.db.Model(&entities.Recipe{}).Count(&recipes).Error)
	assert.Equal(t, int64(0), recipes)
}

func TestCreateRecipeAmountBounds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.createRequest()
	req.Ingredients = []domain.IngredientAmountRequest{
		{ID: f.sugar.ID, Amount: domain.MaxIngredientAmount + 1},
	}
	_, err := f.service.CreateRecipe(ctx, req, f.author.ID)
	vErr, ok := domain.AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindOutOfRange, vErr.Kind)
	assert.Equal(t, "ingredients[0].amount", vErr.Field)
}

func TestUpdateRecipeReplacesWholesale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.createRequest()
	req.Ingredients = []domain.IngredientAmountRequest{
		{ID: f.sugar.ID, Amount: 2},
		{ID: f.flour.ID, Amount: 3},
	}
	created, err := f.service.CreateRecipe(ctx, req, f.author.ID)
	require.NoError(t, err)

	update := domain.UpdateRecipeRequest{
		Name:        "Crepes",
		Text:        "Thinner.",
		CookingTime: 15,
		Tags:        []uint{f.dinner.ID},
		Ingredients: []domain.IngredientAmountRequest{
			{ID: f.sugar.ID, Amount: 5},
		},
	}
	res, err := f.service.UpdateRecipe(ctx, created.ID, update, f.author.ID)
	require.NoError(t, err)

	assert.Equal(t, "Crepes", res.Name)
	require.Len(t, res.Ingredients, 1)
	assert.Equal(t, f.sugar.ID, res.Ingredients[0].ID)
	assert.Equal(t, 5, res.Ingredients[0].Amount)
	require.Len(t, res.Tags, 1)
	assert.Equal(t, "dinner", res.Tags[0].Slug)

	// The old lines are gone, not merged.
	assert.Equal(t, int64(1), f.lineCount(t))
}

func TestUpdateRecipeAuthorOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.service.CreateRecipe(ctx, f.createRequest(), f.author.ID)
	require.NoError(t, err)

	update := domain.UpdateRecipeRequest{
		Name:        "Hijack",
		Text:        "x",
		CookingTime: 10,
		Tags:        []uint{f.dinner.ID},
		Ingredients: []domain.IngredientAmountRequest{{ID: f.sugar.ID, Amount: 1}},
	}
	_, err = f.service.UpdateRecipe(ctx, created.ID, update, f.viewer.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorizedRecipeAccess)

	err = f.service.DeleteRecipe(ctx, created.ID, f.viewer.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorizedRecipeAccess)
}

func TestDeleteRecipeCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.service.CreateRecipe(ctx, f.createRequest(), f.author.ID)
	require.NoError(t, err)

	_, err = f.service.AddToShoppingCart(ctx, created.ID, f.viewer.ID)
	require.NoError(t, err)
	_, err = f.service.AddFavorite(ctx, created.ID, f.viewer.ID)
	require.NoError(t, err)
	_, err = f.service.GetShortLink(ctx, created.ID)
	require.NoError(t, err)

	require.NoError(t, f.service.DeleteRecipe(ctx, created.ID, f.author.ID))

	assert.Equal(t, int64(0), f.lineCount(t))
	for _, model := range []any{&entities.ShoppingCart{}, &entities.Favorite{}, &entities.ShortLink{}} {
		var count int64
		require.NoError(t, f.db.Model(model).Count(&count).Error)
		assert.Equal(t, int64(0), count)
	}

	_, err = f.service.GetRecipeDetail(ctx, created.ID, 0)
	assert.ErrorIs(t, err, domain.ErrRecipeNotFound)
}

func TestShoppingCartLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.service.CreateRecipe(ctx, f.createRequest(), f.author.ID)
	require.NoError(t, err)

	short, err := f.service.AddToShoppingCart(ctx, created.ID, f.viewer.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, short.ID)

	_, err = f.service.AddToShoppingCart(ctx, created.ID, f.viewer.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyInShoppingCart)

	detail, err := f.service.GetRecipeDetail(ctx, created.ID, f.viewer.ID)
	require.NoError(t, err)
	assert.True(t, detail.IsInShoppingCart)

	require.NoError(t, f.service.RemoveFromShoppingCart(ctx, created.ID, f.viewer.ID))
	err = f.service.RemoveFromShoppingCart(ctx, created.ID, f.viewer.ID)
	assert.ErrorIs(t, err, domain.ErrNotInShoppingCart)

	detail, err = f.service.GetRecipeDetail(ctx, created.ID, f.viewer.ID)
	require.NoError(t, err)
	assert.False(t, detail.IsInShoppingCart)

	_, err = f.service.AddToShoppingCart(ctx, 9999, f.viewer.ID)
	assert.ErrorIs(t, err, domain.ErrRecipeNotFound)
}

func TestFavoriteLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.service.CreateRecipe(ctx, f.createRequest(), f.author.ID)
	require.NoError(t, err)

	_, err = f.service.AddFavorite(ctx, created.ID, f.viewer.ID)
	require.NoError(t, err)
	_, err = f.service.AddFavorite(ctx, created.ID, f.viewer.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyFavorited)

	require.NoError(t, f.service.RemoveFavorite(ctx, created.ID, f.viewer.ID))
	err = f.service.RemoveFavorite(ctx, created.ID, f.viewer.ID)
	assert.ErrorIs(t, err, domain.ErrNotFavorited)
}

func TestBuildShoppingListAggregates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r1 := f.createRequest()
	r1.Name = "One"
	r1.Ingredients = []domain.IngredientAmountRequest{
		{ID: f.saltA.ID, Amount: 2},
		{ID: f.sugar.ID, Amount: 5},
	}
	first, err := f.service.CreateRecipe(ctx, r1, f.author.ID)
	require.NoError(t, err)

	r2 := f.createRequest()
	r2.Name = "Two"
	r2.Ingredients = []domain.IngredientAmountRequest{
		{ID: f.saltB.ID, Amount: 3},
		{ID: f.flour.ID, Amount: 100},
	}
	second, err := f.service.CreateRecipe(ctx, r2, f.author.ID)
	require.NoError(t, err)

	for _, id := range []uint{first.ID, second.ID} {
		_, err := f.service.AddToShoppingCart(ctx, id, f.viewer.ID)
		require.NoError(t, err)
	}

	items, err := f.service.BuildShoppingList(ctx, f.viewer.ID)
	require.NoError(t, err)

	// Two distinct salt rows with the same (name, unit) merge into one
	// line; output is sorted by name.
	require.Equal(t, []domain.ShoppingListItem{
		{Name: "flour", Unit: "g", Amount: 100},
		{Name: "salt", Unit: "g", Amount: 5},
		{Name: "sugar", Unit: "g", Amount: 5},
	}, items)

	// Reading the report does not consume the cart.
	again, err := f.service.BuildShoppingList(ctx, f.viewer.ID)
	require.NoError(t, err)
	assert.Equal(t, items, again)
}

func TestBuildShoppingListEmpty(t *testing.T) {
	f := newFixture(t)

	items, err := f.service.BuildShoppingList(context.Background(), f.viewer.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, "", f.service.RenderShoppingList(items))
}

func TestRenderShoppingList(t *testing.T) {
	f := newFixture(t)

	out := f.service.RenderShoppingList([]domain.ShoppingListItem{
		{Name: "flour", Unit: "g", Amount: 100},
		{Name: "salt", Unit: "g", Amount: 5},
	})
	assert.Equal(t, "flour (g) — 100\nsalt (g) — 5", out)
}

func TestGetRecipesFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	breakfastReq := f.createRequest()
	breakfastReq.Name = "Morning"
	morning, err := f.service.CreateRecipe(ctx, breakfastReq, f.author.ID)
	require.NoError(t, err)

	dinnerReq := f.createRequest()
	dinnerReq.Name = "Evening"
	dinnerReq.Tags = []uint{f.dinner.ID}
	evening, err := f.service.CreateRecipe(ctx, dinnerReq, f.viewer.ID)
	require.NoError(t, err)

	res, count, err := f.service.GetRecipes(ctx, domain.RecipeListQuery{
		Page: 1, Limit: 6, TagSlugs: []string{"dinner"},
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	require.Len(t, res, 1)
	assert.Equal(t, evening.ID, res[0].ID)

	res, count, err = f.service.GetRecipes(ctx, domain.RecipeListQuery{
		Page: 1, Limit: 6, AuthorID: f.author.ID,
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	require.Len(t, res, 1)
	assert.Equal(t, morning.ID, res[0].ID)

	_, err = f.service.AddFavorite(ctx, evening.ID, f.author.ID)
	require.NoError(t, err)
	res, count, err = f.service.GetRecipes(ctx, domain.RecipeListQuery{
		Page: 1, Limit: 6, IsFavorited: true,
	}, f.author.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	require.Len(t, res, 1)
	assert.Equal(t, evening.ID, res[0].ID)
}

func TestGetRecipesPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		req := f.createRequest()
		req.Name = fmt.Sprintf("Recipe %d", i)
		_, err := f.service.CreateRecipe(ctx, req, f.author.ID)
		require.NoError(t, err)
	}

	page1, count, err := f.service.GetRecipes(ctx, domain.RecipeListQuery{Page: 1, Limit: 6}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(8), count)
	assert.Len(t, page1, 6)

	page2, _, err := f.service.GetRecipes(ctx, domain.RecipeListQuery{Page: 2, Limit: 6}, 0)
	require.NoError(t, err)
	assert.Len(t, page2, 2)
}

func TestShortLinkHash(t *testing.T) {
	assert.Len(t, ShortLinkHash(1), 6)
	assert.Equal(t, ShortLinkHash(42), ShortLinkHash(42))
	assert.NotEqual(t, ShortLinkHash(1), ShortLinkHash(2))
}

func TestShortLinkRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.service.CreateRecipe(ctx, f.createRequest(), f.author.ID)
	require.NoError(t, err)

	link, err := f.service.GetShortLink(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(link.ShortLink, "/s/"+ShortLinkHash(created.ID)))

	// Stable across calls.
	again, err := f.service.GetShortLink(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, link, again)

	recipeID, err := f.service.ResolveShortLink(ctx, ShortLinkHash(created.ID))
	require.NoError(t, err)
	assert.Equal(t, created.ID, recipeID)

	_, err = f.service.ResolveShortLink(ctx, "zzzzzz")
	assert.ErrorIs(t, err, domain.ErrShortLinkNotFound)

	_, err = f.service.GetShortLink(ctx, 9999)
	assert.ErrorIs(t, err, domain.ErrRecipeNotFound)
}
