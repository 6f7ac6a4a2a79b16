// Package books provides database operations for the books on an account's shelf.
//
// Every mutation takes the acting account ID and verifies ownership inside
// the same transaction as the write:
//
//	book, err := repo.Update(ctx, bookID, actorID, books.Fields{...})
//	if errors.Is(err, books.ErrForbidden) { ... }
package books

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/bookshelf/internal/entities"
)

var (
	ErrNotFound  = errors.New("book not found")
	ErrForbidden = errors.New("book belongs to another account")
)

// Fields are the user-editable attributes of a book.
type Fields struct {
	Title  string
	Author string
	Pages  int
}

// Shelf is an account's books split by completion state.
type Shelf struct {
	Complete   []entities.Book
	Incomplete []entities.Book
}

// Total returns the number of books on the shelf.
func (s Shelf) Total() int {
	return len(s.Complete) + len(s.Incomplete)
}

// Repository handles all book database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new books repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create adds a new, not yet completed book owned by accountID.
func (r *Repository) Create(ctx context.Context, accountID uint, fields Fields, startedAt time.Time) (*entities.Book, error) {
	book := &entities.Book{
		AccountID: accountID,
		Title:     fields.Title,
		Author:    fields.Author,
		Pages:     fields.Pages,
		StartedAt: startedAt,
		Complete:  false,
	}

	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(book).Error; err != nil {
		return nil, fmt.Errorf("failed to create book: %w", err)
	}
	return book, nil
}

// GetByID retrieves a book together with its owner.
func (r *Repository) GetByID(ctx context.Context, id uint) (*entities.Book, error) {
	var book entities.Book
	err := r.db.WithContext(ctx).Preload("Account").First(&book, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &book, nil
}

// ListForAccount returns every book owned by accountID, newest first,
// partitioned into complete and incomplete.
func (r *Repository) ListForAccount(ctx context.Context, accountID uint) (Shelf, error) {
	var all []entities.Book
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("started_at DESC, id DESC").
		Find(&all).Error
	if err != nil {
		return Shelf{}, err
	}

	shelf := Shelf{
		Complete:   make([]entities.Book, 0),
		Incomplete: make([]entities.Book, 0),
	}
	for _, book := range all {
		if book.Complete {
			shelf.Complete = append(shelf.Complete, book)
		} else {
			shelf.Incomplete = append(shelf.Incomplete, book)
		}
	}
	return shelf, nil
}

// Update changes title, author and page count of a book owned by accountID.
func (r *Repository) Update(ctx context.Context, id, accountID uint, fields Fields) (*entities.Book, error) {
	var book *entities.Book

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		book, err = owned(tx, id, accountID)
		if err != nil {
			return err
		}

		book.Title = fields.Title
		book.Author = fields.Author
		book.Pages = fields.Pages
		return tx.Model(book).Select("title", "author", "pages", "updated_at").Updates(book).Error
	})
	if err != nil {
		return nil, err
	}
	return book, nil
}

// Complete marks a book owned by accountID as finished at the given time.
// A book that is already complete keeps its original finish date.
func (r *Repository) Complete(ctx context.Context, id, accountID uint, at time.Time) (*entities.Book, error) {
	var book *entities.Book

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		book, err = owned(tx, id, accountID)
		if err != nil {
			return err
		}
		if book.Complete && book.FinishedAt != nil {
			return nil
		}

		book.Complete = true
		book.FinishedAt = &at
		return tx.Model(book).Select("complete", "finished_at", "updated_at").Updates(book).Error
	})
	if err != nil {
		return nil, err
	}
	return book, nil
}

// Delete removes a book owned by accountID and returns what was removed.
func (r *Repository) Delete(ctx context.Context, id, accountID uint) (*entities.Book, error) {
	var book *entities.Book

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		book, err = owned(tx, id, accountID)
		if err != nil {
			return err
		}
		return tx.Delete(&entities.Book{}, book.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return book, nil
}

// owned loads a book inside tx and enforces the ownership check.
func owned(tx *gorm.DB, id, accountID uint) (*entities.Book, error) {
	var book entities.Book
	if err := tx.First(&book, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if book.AccountID != accountID {
		return nil, ErrForbidden
	}
	return &book, nil
}
