package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrlokans/bookshelf/internal/config"
	"github.com/mrlokans/bookshelf/internal/database/accounts"
	"github.com/mrlokans/bookshelf/internal/entities"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountExists      = errors.New("account already exists")
)

// AccountStore is the account persistence the service needs.
type AccountStore interface {
	Create(ctx context.Context, username, email, passwordHash string) (*entities.Account, error)
	GetByID(ctx context.Context, id uint) (*entities.Account, error)
	GetByEmail(ctx context.Context, email string) (*entities.Account, error)
	UpdatePasswordHash(ctx context.Context, id uint, passwordHash string) error
}

// Service handles registration and credential checks.
type Service struct {
	accounts AccountStore
	hasher   *Hasher
}

// NewService creates a new authentication service.
func NewService(accounts AccountStore, cfg config.Auth) *Service {
	return &Service{
		accounts: accounts,
		hasher:   NewHasher(cfg.BcryptCost),
	}
}

// Register hashes the password and stores a new account.
// Field validation is the caller's job; uniqueness is enforced by the store.
func (s *Service) Register(ctx context.Context, username, email, password string) (*entities.Account, error) {
	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account, err := s.accounts.Create(ctx, username, email, passwordHash)
	if err != nil {
		if errors.Is(err, accounts.ErrDuplicate) {
			return nil, ErrAccountExists
		}
		return nil, err
	}
	return account, nil
}

// Authenticate looks the account up by email and verifies the password.
// Unknown email and wrong password both yield ErrInvalidCredentials.
// A hash made with a different bcrypt cost is replaced on success; failing
// to store the new hash does not fail the login.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*entities.Account, error) {
	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			s.hasher.CompareDecoy(password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find account: %w", err)
	}

	if err := CheckPassword(password, account.PasswordHash); err != nil {
		if errors.Is(err, ErrInvalidPassword) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if s.hasher.Stale(account.PasswordHash) {
		if hash, err := s.hasher.Hash(password); err == nil {
			if err := s.accounts.UpdatePasswordHash(ctx, account.ID, hash); err == nil {
				account.PasswordHash = hash
			}
		}
	}

	return account, nil
}

// GetAccount retrieves an account by its ID.
func (s *Service) GetAccount(ctx context.Context, id uint) (*entities.Account, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}
