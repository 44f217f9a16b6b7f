package user

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"foodgram-backend/domain"
	"foodgram-backend/entities"
	"foodgram-backend/internal/utils"
	"foodgram-backend/internal/utils/mailing"
	"foodgram-backend/internal/utils/storage"
	"foodgram-backend/pkg/jwt"
)

var usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

type (
	UserService interface {
		Register(ctx context.Context, req domain.RegisterUserRequest) (domain.UserResponse, error)
		Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error)
		Me(ctx context.Context, userID uint) (domain.UserResponse, error)
		SetPassword(ctx context.Context, userID uint, req domain.SetPasswordRequest) error
		UpdateAvatar(ctx context.Context, userID uint, req domain.UpdateAvatarRequest) (domain.UserResponse, error)
		DeleteAvatar(ctx context.Context, userID uint) error
		ForgotPassword(ctx context.Context, req domain.ForgotPasswordRequest) error
		ResetPassword(ctx context.Context, req domain.ResetPasswordRequest) error

		Subscribe(ctx context.Context, userID, authorID uint, recipesLimit int) (domain.UserWithRecipesResponse, error)
		Unsubscribe(ctx context.Context, userID, authorID uint) error
		GetSubscriptions(ctx context.Context, userID uint, page, limit, recipesLimit int) ([]domain.UserWithRecipesResponse, int64, error)
	}

	// AuthorRecipes exposes the recipe queries the subscription listing
	// needs. Satisfied by the recipe repository.
	AuthorRecipes interface {
		GetRecipesByAuthor(ctx context.Context, authorID uint, limit int) ([]*entities.Recipe, error)
		CountRecipesByAuthor(ctx context.Context, authorID uint) (int64, error)
	}

	userService struct {
		userRepository UserRepository
		authorRecipes  AuthorRecipes
		jwtService     jwt.JWTService
		storage        storage.ObjectStorage
		mailer         mailing.Mailer
	}
)

func NewUserService(
	userRepository UserRepository,
	authorRecipes AuthorRecipes,
	jwtService jwt.JWTService,
	objectStorage storage.ObjectStorage,
	mailer mailing.Mailer,
) UserService {
	return &userService{
		userRepository: userRepository,
		authorRecipes:  authorRecipes,
		jwtService:     jwtService,
		storage:        objectStorage,
		mailer:         mailer,
	}
}

func (s *userService) Register(ctx context.Context, req domain.RegisterUserRequest) (domain.UserResponse, error) {
	if !usernamePattern.MatchString(req.Username) {
		return domain.UserResponse{}, domain.NewValidationError(domain.KindMalformedInput, "username")
	}

	if _, err := s.userRepository.GetUserByEmail(ctx, req.Email); err == nil {
		return domain.UserResponse{}, domain.ErrEmailAlreadyRegistered
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.UserResponse{}, err
	}
	if _, err := s.userRepository.GetUserByUsername(ctx, req.Username); err == nil {
		return domain.UserResponse{}, domain.ErrUsernameTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.UserResponse{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.UserResponse{}, err
	}

	user := &entities.User{
		Email:     req.Email,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  string(hash),
		Role:      domain.RoleUser,
	}
	if err := s.userRepository.CreateUser(ctx, user); err != nil {
		// The unique indexes arbitrate concurrent registrations.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.UserResponse{}, domain.ErrEmailAlreadyRegistered
		}
		return domain.UserResponse{}, err
	}

	return toUserResponse(user, false), nil
}

func (s *userService) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	user, err := s.userRepository.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.LoginResponse{}, domain.ErrCredentialsInvalid
		}
		return domain.LoginResponse{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return domain.LoginResponse{}, domain.ErrCredentialsInvalid
	}

	token := s.jwtService.GenerateTokenUser(strconv.FormatUint(uint64(user.ID), 10), user.Role)
	return domain.LoginResponse{Token: token}, nil
}

func (s *userService) Me(ctx context.Context, userID uint) (domain.UserResponse, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return domain.UserResponse{}, err
	}
	return toUserResponse(user, false), nil
}

func (s *userService) SetPassword(ctx context.Context, userID uint, req domain.SetPasswordRequest) error {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.CurrentPassword)); err != nil {
		return domain.ErrWrongCurrentPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user.Password = string(hash)
	return s.userRepository.UpdateUser(ctx, user)
}

func (s *userService) UpdateAvatar(ctx context.Context, userID uint, req domain.UpdateAvatarRequest) (domain.UserResponse, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return domain.UserResponse{}, err
	}

	raw, ext, err := utils.DecodeBase64Image(req.Avatar)
	if err != nil {
		return domain.UserResponse{}, domain.NewValidationError(domain.KindMalformedInput, "avatar")
	}

	fileName := uuid.New().String()
	objectKey, err := s.storage.UploadFile(ctx, fileName, raw, ext, "users/avatars", storage.AllowImage...)
	if err != nil {
		if errors.Is(err, storage.ErrExtensionNotAllowed) {
			return domain.UserResponse{}, domain.NewValidationError(domain.KindMalformedInput, "avatar")
		}
		return domain.UserResponse{}, err
	}

	oldAvatar := user.AvatarURL
	user.AvatarURL = s.storage.GetPublicLinkKey(objectKey)
	if err := s.userRepository.UpdateUser(ctx, user); err != nil {
		return domain.UserResponse{}, err
	}

	if oldAvatar != "" {
		_ = s.storage.DeleteFile(ctx, s.storage.GetObjectKeyFromLink(oldAvatar))
	}
	return toUserResponse(user, false), nil
}

func (s *userService) DeleteAvatar(ctx context.Context, userID uint) error {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.AvatarURL == "" {
		return nil
	}

	_ = s.storage.DeleteFile(ctx, s.storage.GetObjectKeyFromLink(user.AvatarURL))
	user.AvatarURL = ""
	return s.userRepository.UpdateUser(ctx, user)
}

func (s *userService) ForgotPassword(ctx context.Context, req domain.ForgotPasswordRequest) error {
	user, err := s.userRepository.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrUserNotFound
		}
		return err
	}

	token, err := s.jwtService.GenerateTokenResetPassword(map[string]any{
		"user_id": strconv.FormatUint(uint64(user.ID), 10),
		"nonce":   uuid.New().String(),
	}, 15*time.Minute)
	if err != nil {
		return err
	}

	resetURL := fmt.Sprintf("%s/reset-password?token=%s", utils.GetConfig("BASE_URL"), token)
	body := fmt.Sprintf(
		"<p>Hello %s,</p><p>Follow <a href=%q>this link</a> to reset your password. The link expires in 15 minutes.</p>",
		user.FirstName, resetURL,
	)
	return s.mailer.SendMail(user.Email, "Reset your password", body)
}

func (s *userService) ResetPassword(ctx context.Context, req domain.ResetPasswordRequest) error {
	claims, err := s.jwtService.ValidateTokenResetPassword(req.Token)
	if err != nil {
		return err
	}

	rawID, ok := claims["user_id"].(string)
	if !ok {
		return domain.ErrTokenInvalid
	}
	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil {
		return domain.ErrTokenInvalid
	}

	user, err := s.getUser(ctx, uint(id))
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user.Password = string(hash)
	return s.userRepository.UpdateUser(ctx, user)
}

func (s *userService) Subscribe(ctx context.Context, userID, authorID uint, recipesLimit int) (domain.UserWithRecipesResponse, error) {
	if userID == authorID {
		return domain.UserWithRecipesResponse{}, domain.ErrSelfSubscription
	}

	subscriber, err := s.getUser(ctx, userID)
	if err != nil {
		return domain.UserWithRecipesResponse{}, err
	}
	author, err := s.getUser(ctx, authorID)
	if err != nil {
		return domain.UserWithRecipesResponse{}, err
	}

	subscribed, err := s.userRepository.IsSubscribed(ctx, userID, authorID)
	if err != nil {
		return domain.UserWithRecipesResponse{}, err
	}
	if subscribed {
		return domain.UserWithRecipesResponse{}, domain.ErrAlreadySubscribed
	}

	if err := s.userRepository.Subscribe(ctx, subscriber, author); err != nil {
		return domain.UserWithRecipesResponse{}, err
	}

	return s.toUserWithRecipes(ctx, author, true, recipesLimit)
}

func (s *userService) Unsubscribe(ctx context.Context, userID, authorID uint) error {
	if userID == authorID {
		return domain.ErrSelfSubscription
	}

	subscriber, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	author, err := s.getUser(ctx, authorID)
	if err != nil {
		return err
	}

	subscribed, err := s.userRepository.IsSubscribed(ctx, userID, authorID)
	if err != nil {
		return err
	}
	if !subscribed {
		return domain.ErrNotSubscribed
	}

	return s.userRepository.Unsubscribe(ctx, subscriber, author)
}

func (s *userService) GetSubscriptions(ctx context.Context, userID uint, page, limit, recipesLimit int) ([]domain.UserWithRecipesResponse, int64, error) {
	authors, count, err := s.userRepository.GetSubscriptions(ctx, userID, page, limit)
	if err != nil {
		return nil, 0, err
	}

	res := make([]domain.UserWithRecipesResponse, 0, len(authors))
	for i := range authors {
		item, err := s.toUserWithRecipes(ctx, &authors[i], true, recipesLimit)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, item)
	}
	return res, count, nil
}

func (s *userService) getUser(ctx context.Context, userID uint) (*entities.User, error) {
	user, err := s.userRepository.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *userService) toUserWithRecipes(ctx context.Context, author *entities.User, subscribed bool, recipesLimit int) (domain.UserWithRecipesResponse, error) {
	recipes, err := s.authorRecipes.GetRecipesByAuthor(ctx, author.ID, recipesLimit)
	if err != nil {
		return domain.UserWithRecipesResponse{}, err
	}
	count, err := s.authorRecipes.CountRecipesByAuthor(ctx, author.ID)
	if err != nil {
		return domain.UserWithRecipesResponse{}, err
	}

	res := domain.UserWithRecipesResponse{
		UserResponse: toUserResponse(author, subscribed),
		Recipes:      make([]domain.RecipeShortResponse, 0, len(recipes)),
		RecipesCount: count,
	}
	for _, recipe := range recipes {
		res.Recipes = append(res.Recipes, domain.RecipeShortResponse{
			ID:          recipe.ID,
			Name:        recipe.Name,
			Image:       recipe.ImageURL,
			CookingTime: recipe.CookingTime,
		})
	}
	return res, nil
}

func toUserResponse(user *entities.User, subscribed bool) domain.UserResponse {
	return domain.UserResponse{
		ID:           user.ID,
		Email:        user.Email,
		Username:     user.Username,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		IsSubscribed: subscribed,
		Avatar:       user.AvatarURL,
	}
}
