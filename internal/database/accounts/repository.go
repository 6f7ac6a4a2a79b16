// Package accounts provides database operations for account management.
//
// # Usage
//
//	repo := accounts.NewRepository(db)
//	account, err := repo.GetByEmail(ctx, email)
package accounts

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/mrlokans/bookshelf/internal/entities"
)

var (
	ErrNotFound = errors.New("account not found")
	// ErrDuplicate is returned when a username or email collides on commit.
	ErrDuplicate = errors.New("username or email already in use")
)

// Repository handles all account database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new accounts repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new account. The password must already be hashed.
func (r *Repository) Create(ctx context.Context, username, email, passwordHash string) (*entities.Account, error) {
	account := &entities.Account{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
	}

	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	return account, nil
}

// GetByID retrieves an account by ID.
func (r *Repository) GetByID(ctx context.Context, id uint) (*entities.Account, error) {
	return r.first(ctx, "id = ?", id)
}

// GetByUsername retrieves an account by username.
func (r *Repository) GetByUsername(ctx context.Context, username string) (*entities.Account, error) {
	return r.first(ctx, "username = ?", username)
}

// GetByEmail retrieves an account by email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*entities.Account, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *Repository) first(ctx context.Context, query string, args ...any) (*entities.Account, error) {
	var account entities.Account
	err := r.db.WithContext(ctx).Where(query, args...).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &account, nil
}

// UsernameTaken reports whether another account already uses username.
// Pass exceptID = 0 to check against every account.
func (r *Repository) UsernameTaken(ctx context.Context, username string, exceptID uint) (bool, error) {
	return r.taken(ctx, "username = ?", username, exceptID)
}

// EmailTaken reports whether another account already uses email.
// Pass exceptID = 0 to check against every account.
func (r *Repository) EmailTaken(ctx context.Context, email string, exceptID uint) (bool, error) {
	return r.taken(ctx, "email = ?", email, exceptID)
}

func (r *Repository) taken(ctx context.Context, query, value string, exceptID uint) (bool, error) {
	var count int64
	q := r.db.WithContext(ctx).Model(&entities.Account{}).Where(query, value)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// UpdateProfile changes username and email of an account.
func (r *Repository) UpdateProfile(ctx context.Context, id uint, username, email string) (*entities.Account, error) {
	var account entities.Account

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&account, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		account.Username = username
		account.Email = email
		return tx.Model(&account).Select("username", "email", "updated_at").Updates(&account).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicate
		}
		return nil, err
	}

	return &account, nil
}

// UpdatePasswordHash replaces the stored password hash.
func (r *Repository) UpdatePasswordHash(ctx context.Context, id uint, passwordHash string) error {
	result := r.db.WithContext(ctx).Model(&entities.Account{}).
		Where("id = ?", id).
		Update("password_hash", passwordHash)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of registered accounts.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.Account{}).Count(&count).Error
	return count, err
}
