package auth

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ContextKeyIdentity is the gin context key holding the request's Identity.
const ContextKeyIdentity = "auth_identity"

// LoginPath is where anonymous users are sent.
const LoginPath = "/login"

// Identity is the caller of a request. The zero value is anonymous.
type Identity struct {
	AccountID uint
	Username  string
	Email     string
}

// Authenticated reports whether the identity belongs to a logged-in account.
func (i Identity) Authenticated() bool {
	return i.AccountID != 0
}

// Middleware resolves the session into an Identity for every request.
type Middleware struct {
	service  *Service
	sessions *SessionManager
	logger   *logrus.Logger
	now      func() time.Time
}

// NewMiddleware creates a new authentication middleware.
func NewMiddleware(service *Service, sessions *SessionManager, logger *logrus.Logger) *Middleware {
	return &Middleware{
		service:  service,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

// Handler returns a Gin middleware that stores the caller's Identity on the
// context. It never aborts: any failure resolves to the anonymous identity.
func (m *Middleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextKeyIdentity, m.resolve(c))
		c.Next()
	}
}

func (m *Middleware) resolve(c *gin.Context) Identity {
	accountID := m.sessions.AccountID(c.Request)
	if accountID == 0 {
		return Identity{}
	}

	if m.sessions.Expired(c.Request, m.now()) {
		m.endSession(c)
		return Identity{}
	}

	account, err := m.service.GetAccount(c.Request.Context(), accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			m.endSession(c)
		} else {
			m.logger.WithError(err).WithField("account_id", accountID).Warn("Failed to resolve session account")
		}
		return Identity{}
	}

	return Identity{
		AccountID: account.ID,
		Username:  account.Username,
		Email:     account.Email,
	}
}

func (m *Middleware) endSession(c *gin.Context) {
	if err := m.sessions.Logout(c.Request); err != nil {
		m.logger.WithError(err).Warn("Failed to destroy stale session")
	}
}

// RequireAuth returns a middleware that redirects anonymous callers to the
// login page, carrying the requested path in "next".
func (m *Middleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentIdentity(c).Authenticated() {
			c.Next()
			return
		}

		target := LoginPath + "?next=" + url.QueryEscape(c.Request.URL.RequestURI())
		c.Redirect(http.StatusFound, target)
		c.Abort()
	}
}

// CurrentIdentity returns the Identity stored by Handler, or the anonymous
// identity when none is set.
func CurrentIdentity(c *gin.Context) Identity {
	if v, exists := c.Get(ContextKeyIdentity); exists {
		if identity, ok := v.(Identity); ok {
			return identity
		}
	}
	return Identity{}
}
