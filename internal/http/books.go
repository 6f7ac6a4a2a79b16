package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/bookshelf/internal/audit"
	"github.com/mrlokans/bookshelf/internal/auth"
	"github.com/mrlokans/bookshelf/internal/database/books"
	"github.com/mrlokans/bookshelf/internal/entities"
	"github.com/mrlokans/bookshelf/internal/forms"
)

// BooksController serves the book list and book CRUD pages.
// Every mutation passes the caller's account ID to the repository, which
// rejects it with books.ErrForbidden when the book belongs to someone else.
type BooksController struct {
	books     *books.Repository
	validator *forms.Validator
	audit     *audit.Service
	pages     *pages
	now       func() time.Time
}

func NewBooksController(
	repo *books.Repository,
	validator *forms.Validator,
	auditService *audit.Service,
	pages *pages,
	now func() time.Time,
) *BooksController {
	if now == nil {
		now = time.Now
	}
	return &BooksController{
		books:     repo,
		validator: validator,
		audit:     auditService,
		pages:     pages,
		now:       now,
	}
}

// List renders the caller's books split into finished and in progress.
// GET /my_books/:username
func (bc *BooksController) List(c *gin.Context) {
	identity := auth.CurrentIdentity(c)
	if c.Param("username") != identity.Username {
		bc.pages.errorPage(c, http.StatusForbidden)
		return
	}

	shelf, err := bc.books.ListForAccount(c.Request.Context(), identity.AccountID)
	if err != nil {
		bc.pages.internalError(c, err, "list books")
		return
	}

	bc.pages.render(c, http.StatusOK, "my_books", gin.H{
		"Title":           "My Books",
		"Owner":           identity.Username,
		"Complete":        shelf.Complete,
		"Incomplete":      shelf.Incomplete,
		"CompleteCount":   len(shelf.Complete),
		"IncompleteCount": len(shelf.Incomplete),
		"Total":           shelf.Total(),
	})
}

// AddPage renders an empty book form.
// GET /book/add
func (bc *BooksController) AddPage(c *gin.Context) {
	bc.renderAddForm(c, forms.BookForm{}, nil)
}

// Add creates a book owned by the caller.
// POST /book/add
func (bc *BooksController) Add(c *gin.Context) {
	identity := auth.CurrentIdentity(c)

	var form forms.BookForm
	if err := c.ShouldBind(&form); err != nil {
		bc.pages.errorPage(c, http.StatusBadRequest)
		return
	}
	if errs := bc.validator.ValidateBook(&form); errs.Any() {
		bc.renderAddForm(c, form, errs)
		return
	}

	book, err := bc.books.Create(c.Request.Context(), identity.AccountID, fieldsFrom(form), bc.now())
	if err != nil {
		bc.pages.internalError(c, err, "create book")
		return
	}

	bc.audit.LogBook(identity.AccountID, audit.ActionBookAdd, book.ID, book.Title)
	bc.pages.flash(c, auth.FlashSuccess, fmt.Sprintf("%q has been added to your list!", book.Title))
	bc.pages.redirect(c, myBooksPath(identity.Username))
}

func (bc *BooksController) renderAddForm(c *gin.Context, form forms.BookForm, errs forms.Errors) {
	bc.pages.render(c, http.StatusOK, "book_form", gin.H{
		"Title":  "New Book",
		"Legend": "New Book",
		"Action": "/book/add",
		"Submit": "Add Book",
		"Form":   form,
		"Errors": errs,
	})
}

// View renders a single book with its reading stats. Anyone may view it.
// GET /book/:id
func (bc *BooksController) View(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		bc.pages.errorPage(c, http.StatusNotFound)
		return
	}

	book, err := bc.books.GetByID(c.Request.Context(), id)
	if err != nil {
		bc.pages.repositoryError(c, err, "get book")
		return
	}

	identity := auth.CurrentIdentity(c)
	bc.pages.render(c, http.StatusOK, "book", gin.H{
		"Title":   book.Title,
		"Book":    book,
		"Stats":   book.Stats(bc.now()),
		"IsOwner": identity.Authenticated() && identity.AccountID == book.AccountID,
	})
}

// UpdatePage renders the edit form pre-filled with the stored values.
// GET /book/:id/update
func (bc *BooksController) UpdatePage(c *gin.Context) {
	book, ok := bc.ownedBook(c)
	if !ok {
		return
	}

	form := forms.BookForm{
		Title:    book.Title,
		Author:   book.Author,
		NumPages: strconv.Itoa(book.Pages),
	}
	bc.renderUpdateForm(c, book.ID, form, nil)
}

// Update changes title, author and page count.
// POST /book/:id/update
func (bc *BooksController) Update(c *gin.Context) {
	book, ok := bc.ownedBook(c)
	if !ok {
		return
	}
	identity := auth.CurrentIdentity(c)

	var form forms.BookForm
	if err := c.ShouldBind(&form); err != nil {
		bc.pages.errorPage(c, http.StatusBadRequest)
		return
	}
	if errs := bc.validator.ValidateBook(&form); errs.Any() {
		bc.renderUpdateForm(c, book.ID, form, errs)
		return
	}

	updated, err := bc.books.Update(c.Request.Context(), book.ID, identity.AccountID, fieldsFrom(form))
	if err != nil {
		bc.pages.repositoryError(c, err, "update book")
		return
	}

	bc.audit.LogBook(identity.AccountID, audit.ActionBookUpdate, updated.ID, updated.Title)
	bc.pages.flash(c, auth.FlashSuccess, "Your book has been updated!")
	bc.pages.redirect(c, bookPath(updated.ID))
}

func (bc *BooksController) renderUpdateForm(c *gin.Context, id uint, form forms.BookForm, errs forms.Errors) {
	bc.pages.render(c, http.StatusOK, "book_form", gin.H{
		"Title":  "Update Book",
		"Legend": "Update Book",
		"Action": bookPath(id) + "/update",
		"Submit": "Update",
		"Form":   form,
		"Errors": errs,
	})
}

// Complete marks a book as finished now.
// POST /book/:id/complete
func (bc *BooksController) Complete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		bc.pages.errorPage(c, http.StatusNotFound)
		return
	}
	identity := auth.CurrentIdentity(c)

	book, err := bc.books.Complete(c.Request.Context(), id, identity.AccountID, bc.now())
	if err != nil {
		bc.pages.repositoryError(c, err, "complete book")
		return
	}

	bc.audit.LogBook(identity.AccountID, audit.ActionBookComplete, book.ID, book.Title)
	bc.pages.flash(c, auth.FlashSuccess, fmt.Sprintf("Marked %q as complete.", book.Title))
	bc.pages.redirect(c, myBooksPath(identity.Username))
}

// Delete removes a book.
// POST /book/:id/delete
func (bc *BooksController) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		bc.pages.errorPage(c, http.StatusNotFound)
		return
	}
	identity := auth.CurrentIdentity(c)

	book, err := bc.books.Delete(c.Request.Context(), id, identity.AccountID)
	if err != nil {
		bc.pages.repositoryError(c, err, "delete book")
		return
	}

	bc.audit.LogBook(identity.AccountID, audit.ActionBookDelete, book.ID, book.Title)
	bc.pages.flash(c, auth.FlashSuccess, fmt.Sprintf("%q has been deleted.", book.Title))
	bc.pages.redirect(c, myBooksPath(identity.Username))
}

// ownedBook loads the :id book and renders 404/403 unless the caller owns it.
func (bc *BooksController) ownedBook(c *gin.Context) (*entities.Book, bool) {
	id, ok := parseID(c, "id")
	if !ok {
		bc.pages.errorPage(c, http.StatusNotFound)
		return nil, false
	}

	book, err := bc.books.GetByID(c.Request.Context(), id)
	if err != nil {
		bc.pages.repositoryError(c, err, "get book")
		return nil, false
	}
	if book.AccountID != auth.CurrentIdentity(c).AccountID {
		bc.pages.errorPage(c, http.StatusForbidden)
		return nil, false
	}
	return book, true
}

func fieldsFrom(form forms.BookForm) books.Fields {
	return books.Fields{
		Title:  form.Title,
		Author: form.Author,
		Pages:  form.Pages(),
	}
}
