// Package forms binds and validates the HTML forms of the web UI.
//
// Field constraints are declared with go-playground/validator tags. Checks
// that need the database (username and email uniqueness) go through an
// AccountLookup. Validation failures come back as an Errors value keyed by
// form field name, ready to be rendered next to the inputs.
package forms

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxPasswordBytes = 72

// Messages rendered next to invalid fields.
const (
	MsgRequired      = "This field is required."
	MsgInvalidEmail  = "Invalid email address."
	MsgPasswordMatch = "Field must be equal to password."
	MsgNotInteger    = "Not a valid integer value."
	MsgUsernameSlash = "Username cannot contain a slash."
	MsgPositive      = "Number must be at least 1."
	MsgUsernameTaken = "That username is taken. Please choose a different one."
	MsgEmailTaken    = "That email is taken. Please choose a different one."
)

// Errors maps a form field name to its validation messages.
type Errors map[string][]string

// Add appends a message for field.
func (e Errors) Add(field, message string) {
	e[field] = append(e[field], message)
}

// Has reports whether field has at least one message.
func (e Errors) Has(field string) bool {
	return len(e[field]) > 0
}

// Get returns the messages for field.
func (e Errors) Get(field string) []string {
	return e[field]
}

// Any reports whether any field failed validation.
func (e Errors) Any() bool {
	return len(e) > 0
}

// AccountLookup answers the uniqueness questions for account forms.
// exceptID excludes one account from the check; 0 excludes nothing.
type AccountLookup interface {
	UsernameTaken(ctx context.Context, username string, exceptID uint) (bool, error)
	EmailTaken(ctx context.Context, email string, exceptID uint) (bool, error)
}

// RegistrationForm is the sign-up form.
type RegistrationForm struct {
	Username        string `form:"username" validate:"required,min=2,max=20,excludesall=/"`
	Email           string `form:"email" validate:"required,email,max=120"`
	Password        string `form:"password" validate:"required"`
	ConfirmPassword string `form:"confirm_password" validate:"required,eqfield=Password"`
}

// LoginForm is the sign-in form. Remember is a checkbox: any value means on.
type LoginForm struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required"`
	Remember string `form:"remember"`
}

// RememberMe reports whether the "remember me" box was ticked.
func (f LoginForm) RememberMe() bool {
	return f.Remember != ""
}

// AccountForm edits the current account's username and email.
type AccountForm struct {
	Username string `form:"username" validate:"required,min=2,max=20,excludesall=/"`
	Email    string `form:"email" validate:"required,email,max=120"`
}

// BookForm adds or edits a book. NumPages stays a string so that
// non-numeric input is reported as a field error instead of a bind failure.
type BookForm struct {
	Title    string `form:"title" validate:"required,max=120"`
	Author   string `form:"author" validate:"required,max=120"`
	NumPages string `form:"num_pages" validate:"required"`

	pages int
}

// Pages returns the page count parsed by ValidateBook.
func (f BookForm) Pages() int {
	return f.pages
}

// Validator runs the declarative and database-backed checks.
type Validator struct {
	validate *validator.Validate
	accounts AccountLookup
}

// NewValidator creates a validator that reports errors under form field names.
func NewValidator(accounts AccountLookup) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("form"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})

	return &Validator{validate: v, accounts: accounts}
}

// ValidateRegistration checks a sign-up form, including uniqueness of
// username and email across all accounts.
func (v *Validator) ValidateRegistration(ctx context.Context, form *RegistrationForm) (Errors, error) {
	form.Username = strings.TrimSpace(form.Username)
	form.Email = strings.TrimSpace(form.Email)

	errs := v.check(form)
	if !errs.Has("password") && len(form.Password) > maxPasswordBytes {
		errs.Add("password", fmt.Sprintf("Field cannot be longer than %d characters.", maxPasswordBytes))
	}

	if err := v.checkUnique(ctx, errs, form.Username, form.Email, 0); err != nil {
		return nil, err
	}
	return errs, nil
}

// ValidateLogin checks a sign-in form.
func (v *Validator) ValidateLogin(form *LoginForm) Errors {
	form.Email = strings.TrimSpace(form.Email)
	return v.check(form)
}

// ValidateAccount checks an account update. The account may keep its own
// username and email; collisions with any other account are rejected.
func (v *Validator) ValidateAccount(ctx context.Context, form *AccountForm, accountID uint) (Errors, error) {
	form.Username = strings.TrimSpace(form.Username)
	form.Email = strings.TrimSpace(form.Email)

	errs := v.check(form)
	if err := v.checkUnique(ctx, errs, form.Username, form.Email, accountID); err != nil {
		return nil, err
	}
	return errs, nil
}

// ValidateBook checks a book form and parses the page count.
func (v *Validator) ValidateBook(form *BookForm) Errors {
	form.Title = strings.TrimSpace(form.Title)
	form.Author = strings.TrimSpace(form.Author)
	form.NumPages = strings.TrimSpace(form.NumPages)

	errs := v.check(form)
	if errs.Has("num_pages") {
		return errs
	}

	pages, err := strconv.Atoi(form.NumPages)
	switch {
	case err != nil:
		errs.Add("num_pages", MsgNotInteger)
	case pages < 1:
		errs.Add("num_pages", MsgPositive)
	default:
		form.pages = pages
	}
	return errs
}

func (v *Validator) checkUnique(ctx context.Context, errs Errors, username, email string, exceptID uint) error {
	if !errs.Has("username") {
		taken, err := v.accounts.UsernameTaken(ctx, username, exceptID)
		if err != nil {
			return fmt.Errorf("failed to check username: %w", err)
		}
		if taken {
			errs.Add("username", MsgUsernameTaken)
		}
	}

	if !errs.Has("email") {
		taken, err := v.accounts.EmailTaken(ctx, email, exceptID)
		if err != nil {
			return fmt.Errorf("failed to check email: %w", err)
		}
		if taken {
			errs.Add("email", MsgEmailTaken)
		}
	}
	return nil
}

// check runs the struct tags and converts failures into Errors.
func (v *Validator) check(form any) Errors {
	errs := Errors{}

	err := v.validate.Struct(form)
	if err == nil {
		return errs
	}

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		errs.Add("form", err.Error())
		return errs
	}

	for _, fe := range validationErrs {
		errs.Add(fe.Field(), message(fe))
	}
	return errs
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return MsgRequired
	case "email":
		return MsgInvalidEmail
	case "eqfield":
		return MsgPasswordMatch
	case "min":
		return fmt.Sprintf("Field must be at least %s characters long.", fe.Param())
	case "max":
		return fmt.Sprintf("Field cannot be longer than %s characters.", fe.Param())
	case "excludesall":
		// Usernames end up as a path segment of the book list URL.
		return MsgUsernameSlash
	default:
		return "Invalid value."
	}
}
