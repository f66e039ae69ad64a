package repository

import (
	"context"
	"edu_exam_backend/internal/model"
	"edu_exam_backend/internal/util"
	"fmt"

	"gorm.io/gorm"
)

type UserRepository struct {
	DB *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{DB: db}
}

// Create 插入用户；IsActive=false 需要二次更新，否则会被列默认值覆盖
func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	active := user.IsActive
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			if IsUniqueViolation(err) {
				return util.ErrEmailRegistered
			}
			return fmt.Errorf("create user: %w", err)
		}
		if !active {
			user.IsActive = false
			return tx.Model(user).Update("is_active", false).Error
		}
		return nil
	})
}

func (r *UserRepository) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := r.DB.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err, util.ErrUserNotFound)
	}
	return &user, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := r.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, notFound(err, util.ErrUserNotFound)
	}
	return &user, nil
}

func (r *UserRepository) Update(ctx context.Context, user *model.User) error {
	return r.DB.WithContext(ctx).Save(user).Error
}

// SetActive 启用或停用账号
func (r *UserRepository) SetActive(ctx context.Context, id uint, active bool) (*model.User, error) {
	var user model.User
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(&user, id).Error; err != nil {
			return notFound(err, util.ErrUserNotFound)
		}
		user.IsActive = active
		return tx.Model(&user).Update("is_active", active).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}
