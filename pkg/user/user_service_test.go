package user

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"foodgram-backend/domain"
	"foodgram-backend/entities"
	"foodgram-backend/pkg/jwt"
)

type fakeStorage struct {
	uploaded []string
	deleted  []string
}

func (f *fakeStorage) UploadFile(_ context.Context, fileName string, _ []byte, ext string, dir string, _ ...string) (string, error) {
	key := fmt.Sprintf("%s/%s.%s", dir, fileName, ext)
	f.uploaded = append(f.uploaded, key)
	return key, nil
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

type fakeMailer struct {
	to      []string
	subject []string
	body    []string
}

func (f *fakeMailer) SendMail(toEmail, subject, body string) error {
	f.to = append(f.to, toEmail)
	f.subject = append(f.subject, subject)
	f.body = append(f.body, body)
	return nil
}

type fakeAuthorRecipes struct {
	recipes map[uint][]*entities.Recipe
}

func (f *fakeAuthorRecipes) GetRecipesByAuthor(_ context.Context, authorID uint, limit int) ([]*entities.Recipe, error) {
	recipes := f.recipes[authorID]
	if limit > 0 && len(recipes) > limit {
		recipes = recipes[:limit]
	}
	return recipes, nil
}

func (f *fakeAuthorRecipes) CountRecipesByAuthor(_ context.Context, authorID uint) (int64, error) {
	return int64(len(f.recipes[authorID])), nil
}

type fixture struct {
	db      *gorm.DB
	service UserService
	jwt     jwt.JWTService
	storage *fakeStorage
	mailer  *fakeMailer
	recipes *fakeAuthorRecipes
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&entities.User{}))

	f := &fixture{
		db:      db,
		jwt:     jwt.NewJWTServiceWithKey("test-secret"),
		storage: &fakeStorage{},
		mailer:  &fakeMailer{},
		recipes: &fakeAuthorRecipes{recipes: map[uint][]*entities.Recipe{}},
	}
	f.service = NewUserService(NewUserRepository(db), f.recipes, f.jwt, f.storage, f.mailer)
	return f
}

func registerRequest(name string) domain.RegisterUserRequest {
	return domain.RegisterUserRequest{
		Email:     name + "@example.com",
		Username:  name,
		FirstName: "Test",
		LastName:  "User",
		Password:  "correct-horse",
	}
}

func (f *fixture) register(t *testing.T, name string) domain.UserResponse {
	t.Helper()
	res, err := f.service.Register(context.Background(), registerRequest(name))
	require.NoError(t, err)
	return res
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.service.Register(ctx, registerRequest("alice"))
	require.NoError(t, err)
	assert.NotZero(t, res.ID)
	assert.Equal(t, "alice", res.Username)
	assert.False(t, res.IsSubscribed)

	// Password is stored hashed, never verbatim.
	var stored entities.User
	require.NoError(t, f.db.First(&stored, res.ID).Error)
	assert.NotEqual(t, "correct-horse", stored.Password)

	_, err = f.service.Register(ctx, registerRequest("alice"))
	assert.ErrorIs(t, err, domain.ErrEmailAlreadyRegistered)

	taken := registerRequest("alice")
	taken.Email = "other@example.com"
	_, err = f.service.Register(ctx, taken)
	assert.ErrorIs(t, err, domain.ErrUsernameTaken)
}

func TestRegisterUsernameCharset(t *testing.T) {
	f := newFixture(t)

	req := registerRequest("bob")
	req.Username = "bad name!"
	_, err := f.service.Register(context.Background(), req)
	vErr, ok := domain.AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindMalformedInput, vErr.Kind)
	assert.Equal(t, "username", vErr.Field)

	req = registerRequest("ok")
	req.Username = "user.name@host+x-1"
	_, err = f.service.Register(context.Background(), req)
	assert.NoError(t, err)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	registered := f.register(t, "alice")

	res, err := f.service.Login(ctx, domain.LoginRequest{
		Email:    "alice@example.com",
		Password: "correct-horse",
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)

	userID, role, err := f.jwt.GetUserIDByToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprint(registered.ID), userID)
	assert.Equal(t, domain.RoleUser, role)

	_, err = f.service.Login(ctx, domain.LoginRequest{
		Email:    "alice@example.com",
		Password: "wrong",
	})
	assert.ErrorIs(t, err, domain.ErrCredentialsInvalid)

	_, err = f.service.Login(ctx, domain.LoginRequest{
		Email:    "nobody@example.com",
		Password: "correct-horse",
	})
	assert.ErrorIs(t, err, domain.ErrCredentialsInvalid)
}

func TestSetPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	registered := f.register(t, "alice")

	err := f.service.SetPassword(ctx, registered.ID, domain.SetPasswordRequest{
		CurrentPassword: "wrong",
		NewPassword:     "new-password",
	})
	assert.ErrorIs(t, err, domain.ErrWrongCurrentPassword)

	require.NoError(t, f.service.SetPassword(ctx, registered.ID, domain.SetPasswordRequest{
		CurrentPassword: "correct-horse",
		NewPassword:     "new-password",
	}))

	_, err = f.service.Login(ctx, domain.LoginRequest{
		Email:    "alice@example.com",
		Password: "new-password",
	})
	assert.NoError(t, err)
}

func TestAvatarLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	registered := f.register(t, "alice")

	payload := base64.StdEncoding.EncodeToString([]byte("avatar-bytes"))
	res, err := f.service.UpdateAvatar(ctx, registered.ID, domain.UpdateAvatarRequest{Avatar: payload})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Avatar, "https://cdn.test/users/avatars/"))

	// Replacing the avatar removes the previous object.
	first := res.Avatar
	res, err = f.service.UpdateAvatar(ctx, registered.ID, domain.UpdateAvatarRequest{Avatar: payload})
	require.NoError(t, err)
	assert.NotEqual(t, first, res.Avatar)
	require.Len(t, f.storage.deleted, 1)

	require.NoError(t, f.service.DeleteAvatar(ctx, registered.ID))
	me, err := f.service.Me(ctx, registered.ID)
	require.NoError(t, err)
	assert.Empty(t, me.Avatar)
	assert.Len(t, f.storage.deleted, 2)

	err = f.service.DeleteAvatar(ctx, registered.ID)
	assert.NoError(t, err)

	_, err = f.service.UpdateAvatar(ctx, registered.ID, domain.UpdateAvatarRequest{Avatar: "%%%not-base64"})
	vErr, ok := domain.AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindMalformedInput, vErr.Kind)
}

func TestForgotAndResetPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	registered := f.register(t, "alice")

	err := f.service.ForgotPassword(ctx, domain.ForgotPasswordRequest{Email: "nobody@example.com"})
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	require.NoError(t, f.service.ForgotPassword(ctx, domain.ForgotPasswordRequest{Email: "alice@example.com"}))
	require.Len(t, f.mailer.to, 1)
	assert.Equal(t, "alice@example.com", f.mailer.to[0])
	assert.Contains(t, f.mailer.body[0], "reset-password?token=")

	token, err := f.jwt.GenerateTokenResetPassword(map[string]any{
		"user_id": fmt.Sprint(registered.ID),
	}, 15*time.Minute)
	require.NoError(t, err)

	require.NoError(t, f.service.ResetPassword(ctx, domain.ResetPasswordRequest{
		Token:       token,
		NewPassword: "reset-password",
	}))
	_, err = f.service.Login(ctx, domain.LoginRequest{
		Email:    "alice@example.com",
		Password: "reset-password",
	})
	assert.NoError(t, err)

	err = f.service.ResetPassword(ctx, domain.ResetPasswordRequest{
		Token:       "garbage",
		NewPassword: "whatever",
	})
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)
}

func TestSubscribeSemantics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	follower := f.register(t, "follower")
	author := f.register(t, "author")

	_, err := f.service.Subscribe(ctx, follower.ID, follower.ID, 0)
	assert.ErrorIs(t, err, domain.ErrSelfSubscription)

	_, err = f.service.Subscribe(ctx, follower.ID, 9999, 0)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	res, err := f.service.Subscribe(ctx, follower.ID, author.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, author.ID, res.ID)
	assert.True(t, res.IsSubscribed)

	_, err = f.service.Subscribe(ctx, follower.ID, author.ID, 0)
	assert.ErrorIs(t, err, domain.ErrAlreadySubscribed)

	require.NoError(t, f.service.Unsubscribe(ctx, follower.ID, author.ID))
	err = f.service.Unsubscribe(ctx, follower.ID, author.ID)
	assert.ErrorIs(t, err, domain.ErrNotSubscribed)
}

func TestGetSubscriptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	follower := f.register(t, "follower")
	zoe := f.register(t, "zoe")
	anna := f.register(t, "anna")

	f.recipes.recipes[anna.ID] = []*entities.Recipe{
		{ID: 1, AuthorID: anna.ID, Name: "One", CookingTime: 5},
		{ID: 2, AuthorID: anna.ID, Name: "Two", CookingTime: 10},
		{ID: 3, AuthorID: anna.ID, Name: "Three", CookingTime: 15},
	}

	for _, authorID := range []uint{zoe.ID, anna.ID} {
		_, err := f.service.Subscribe(ctx, follower.ID, authorID, 0)
		require.NoError(t, err)
	}

	res, count, err := f.service.GetSubscriptions(ctx, follower.ID, 1, 6, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	require.Len(t, res, 2)

	// Ordered by username, recipes truncated to the requested limit.
	assert.Equal(t, "anna", res[0].Username)
	assert.Equal(t, "zoe", res[1].Username)
	assert.Len(t, res[0].Recipes, 2)
	assert.Equal(t, int64(3), res[0].RecipesCount)
	assert.True(t, res[0].IsSubscribed)

	empty, count, err := f.service.GetSubscriptions(ctx, zoe.ID, 1, 6, 0)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, empty)
}
