package http

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mrlokans/bookshelf/internal/audit"
	"github.com/mrlokans/bookshelf/internal/auth"
	"github.com/mrlokans/bookshelf/internal/database/accounts"
	"github.com/mrlokans/bookshelf/internal/database/books"
	"github.com/mrlokans/bookshelf/internal/forms"
)

// RouterConfig contains all dependencies and configuration needed
// to create the HTTP router.
type RouterConfig struct {
	// Storage
	Database Pinger
	Accounts *accounts.Repository
	Books    *books.Repository

	// Authentication
	AuthService    *auth.Service
	SessionManager *auth.SessionManager
	AuthMiddleware *auth.Middleware
	RateLimiter    *auth.RateLimiter
	CSRFSecret     []byte // CSRF protection is off when empty
	SecureCookies  bool

	Validator *forms.Validator
	Audit     *audit.Service
	Logger    *logrus.Logger

	// Application info
	Version string

	// Clock for book timestamps and reading stats; defaults to time.Now
	Now func() time.Time
}
