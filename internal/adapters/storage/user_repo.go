package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/spear-it/spearhead/internal/core/domain"
	"github.com/spear-it/spearhead/internal/core/ports"
)

// Ensure interface compliance
var _ ports.UserRepository = (*SQLiteAdapter)(nil)

var ErrUserNotFound = errors.New("user not found")

func userToModel(u *domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		CreatedAt:    u.CreatedAt,
		LastLogin:    u.LastLogin,
	}
}

func userToDomain(m UserModel) *domain.User {
	return &domain.User{
		ID:           m.ID,
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		Role:         domain.Role(m.Role),
		CreatedAt:    m.CreatedAt,
		LastLogin:    m.LastLogin,
	}
}

// UserSave creates or updates a user.
func (a *SQLiteAdapter) UserSave(ctx context.Context, user *domain.User) error {
	model := userToModel(user)
	if err := a.db.WithContext(ctx).Save(&model).Error; err != nil {
		return err
	}
	user.ID = model.ID
	return nil
}

// UserByUsername retrieves a user by their username.
func (a *SQLiteAdapter) UserByUsername(ctx context.Context, username string) (*domain.User, error) {
	var model UserModel
	if err := a.db.WithContext(ctx).Where("username = ?", username).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return userToDomain(model), nil
}

// UserByID retrieves a user by their ID.
func (a *SQLiteAdapter) UserByID(ctx context.Context, id int64) (*domain.User, error) {
	var model UserModel
	if err := a.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return userToDomain(model), nil
}

// UserList returns all users.
func (a *SQLiteAdapter) UserList(ctx context.Context) ([]domain.User, error) {
	var models []UserModel
	if err := a.db.WithContext(ctx).Order("id").Find(&models).Error; err != nil {
		return nil, err
	}
	users := make([]domain.User, len(models))
	for i, m := range models {
		users[i] = *userToDomain(m)
	}
	return users, nil
}
