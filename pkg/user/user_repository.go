package user

import (
	"context"

	"gorm.io/gorm"

	"foodgram-backend/entities"
)

type (
	UserRepository interface {
		CreateUser(ctx context.Context, user *entities.User) error
		GetUserByID(ctx context.Context, id uint) (*entities.User, error)
		GetUserByEmail(ctx context.Context, email string) (*entities.User, error)
		GetUserByUsername(ctx context.Context, username string) (*entities.User, error)
		UpdateUser(ctx context.Context, user *entities.User) error

		Subscribe(ctx context.Context, subscriber, author *entities.User) error
		Unsubscribe(ctx context.Context, subscriber, author *entities.User) error
		IsSubscribed(ctx context.Context, subscriberID, authorID uint) (bool, error)
		GetSubscriptions(ctx context.Context, userID uint, page, limit int) ([]entities.User, int64, error)
	}

	userRepository struct {
		db *gorm.DB
	}
)

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) CreateUser(ctx context.Context, user *entities.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepository) GetUserByID(ctx context.Context, id uint) (*entities.User, error) {
	var user entities.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetUserByEmail(ctx context.Context, email string) (*entities.User, error) {
	var user entities.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetUserByUsername(ctx context.Context, username string) (*entities.User, error) {
	var user entities.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) UpdateUser(ctx context.Context, user *entities.User) error {
	return r.db.WithContext(ctx).Save(user).Error
}

func (r *userRepository) Subscribe(ctx context.Context, subscriber, author *entities.User) error {
	return r.db.WithContext(ctx).Model(subscriber).Association("Subscriptions").Append(author)
}

func (r *userRepository) Unsubscribe(ctx context.Context, subscriber, author *entities.User) error {
	return r.db.WithContext(ctx).Model(subscriber).Association("Subscriptions").Delete(author)
}

func (r *userRepository) IsSubscribed(ctx context.Context, subscriberID, authorID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Table("subscriptions").
		Where("subscriber_id = ? AND author_id = ?", subscriberID, authorID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *userRepository) GetSubscriptions(ctx context.Context, userID uint, page, limit int) ([]entities.User, int64, error) {
	var authors []entities.User
	var count int64

	query := r.db.WithContext(ctx).Model(&entities.User{}).
		Joins("JOIN subscriptions ON subscriptions.author_id = users.id").
		Where("subscriptions.subscriber_id = ?", userID)

	if err := query.Count(&count).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.
		Order("users.username asc").
		Offset(offset).
		Limit(limit).
		Find(&authors).Error; err != nil {
		return nil, 0, err
	}

	return authors, count, nil
}
