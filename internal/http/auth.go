package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/bookshelf/internal/audit"
	"github.com/mrlokans/bookshelf/internal/auth"
	"github.com/mrlokans/bookshelf/internal/forms"
)

// AuthController serves registration, login and logout.
type AuthController struct {
	service   *auth.Service
	sessions  *auth.SessionManager
	validator *forms.Validator
	limiter   *auth.RateLimiter
	audit     *audit.Service
	pages     *pages
}

func NewAuthController(
	service *auth.Service,
	sessions *auth.SessionManager,
	validator *forms.Validator,
	limiter *auth.RateLimiter,
	auditService *audit.Service,
	pages *pages,
) *AuthController {
	return &AuthController{
		service:   service,
		sessions:  sessions,
		validator: validator,
		limiter:   limiter,
		audit:     auditService,
		pages:     pages,
	}
}

// redirectIfAuthenticated sends logged-in users to their book list.
// Returns true when a redirect was issued.
func (ac *AuthController) redirectIfAuthenticated(c *gin.Context) bool {
	identity := auth.CurrentIdentity(c)
	if !identity.Authenticated() {
		return false
	}
	ac.pages.redirect(c, myBooksPath(identity.Username))
	return true
}

// RegisterPage renders the sign-up form.
// GET /register
func (ac *AuthController) RegisterPage(c *gin.Context) {
	if ac.redirectIfAuthenticated(c) {
		return
	}
	ac.renderRegister(c, forms.RegistrationForm{}, nil)
}

// Register creates an account.
// POST /register
func (ac *AuthController) Register(c *gin.Context) {
	if ac.redirectIfAuthenticated(c) {
		return
	}

	var form forms.RegistrationForm
	if err := c.ShouldBind(&form); err != nil {
		ac.pages.errorPage(c, http.StatusBadRequest)
		return
	}

	ctx := c.Request.Context()
	errs, err := ac.validator.ValidateRegistration(ctx, &form)
	if err != nil {
		ac.pages.internalError(c, err, "validate registration")
		return
	}
	if errs.Any() {
		ac.renderRegister(c, form, errs)
		return
	}

	account, err := ac.service.Register(ctx, form.Username, form.Email, form.Password)
	if err != nil {
		ac.pages.repositoryError(c, err, "register account")
		return
	}

	ac.audit.LogAuth(account.ID, audit.ActionRegister, c.ClientIP(), true)
	ac.pages.flash(c, auth.FlashSuccess, fmt.Sprintf("Account created for %s!", account.Username))
	ac.pages.redirect(c, auth.LoginPath)
}

func (ac *AuthController) renderRegister(c *gin.Context, form forms.RegistrationForm, errs forms.Errors) {
	// Passwords are never echoed back
	form.Password = ""
	form.ConfirmPassword = ""

	ac.pages.render(c, http.StatusOK, "register", gin.H{
		"Title":  "Register",
		"Form":   form,
		"Errors": errs,
	})
}

// LoginPage renders the sign-in form.
// GET /login
func (ac *AuthController) LoginPage(c *gin.Context) {
	if ac.redirectIfAuthenticated(c) {
		return
	}
	ac.renderLogin(c, http.StatusOK, forms.LoginForm{}, nil, auth.SafeRedirectPath(c.Query("next"), ""))
}

// Login verifies credentials and opens a session.
// POST /login
func (ac *AuthController) Login(c *gin.Context) {
	if ac.redirectIfAuthenticated(c) {
		return
	}

	var form forms.LoginForm
	if err := c.ShouldBind(&form); err != nil {
		ac.pages.errorPage(c, http.StatusBadRequest)
		return
	}
	next := auth.SafeRedirectPath(c.PostForm("next"), "")

	if errs := ac.validator.ValidateLogin(&form); errs.Any() {
		ac.renderLogin(c, http.StatusOK, form, errs, next)
		return
	}

	clientIP := c.ClientIP()
	if allowed, retryAfter := ac.limiter.Allow(clientIP, form.Email); !allowed {
		ac.audit.LogAuth(0, audit.ActionLoginLocked, clientIP, false)
		c.Header("Retry-After", fmt.Sprintf("%.0f", retryAfter.Seconds()))
		ac.pages.flash(c, auth.FlashDanger, "Too many login attempts. Please try again later.")
		ac.renderLogin(c, http.StatusTooManyRequests, form, nil, next)
		return
	}

	account, err := ac.service.Authenticate(c.Request.Context(), form.Email, form.Password)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			ac.pages.internalError(c, err, "authenticate")
			return
		}

		ac.limiter.RecordFailure(clientIP, form.Email)
		ac.audit.LogAuth(0, audit.ActionLoginFailed, clientIP, false)
		ac.pages.flash(c, auth.FlashDanger, "Login Unsuccessful. Please check email and password.")
		ac.renderLogin(c, http.StatusOK, form, nil, next)
		return
	}

	ac.limiter.RecordSuccess(clientIP, form.Email)

	if err := ac.sessions.Login(c.Request, account, form.RememberMe()); err != nil {
		ac.pages.internalError(c, err, "create session")
		return
	}

	ac.audit.LogAuth(account.ID, audit.ActionLogin, clientIP, true)
	ac.pages.redirect(c, auth.SafeRedirectPath(next, myBooksPath(account.Username)))
}

func (ac *AuthController) renderLogin(c *gin.Context, status int, form forms.LoginForm, errs forms.Errors, next string) {
	form.Password = ""

	ac.pages.render(c, status, "login", gin.H{
		"Title":  "Login",
		"Form":   form,
		"Errors": errs,
		"Next":   next,
	})
}

// Logout destroys the session and redirects to login.
// GET|POST /logout
func (ac *AuthController) Logout(c *gin.Context) {
	identity := auth.CurrentIdentity(c)
	if identity.Authenticated() {
		ac.audit.LogAuth(identity.AccountID, audit.ActionLogout, c.ClientIP(), true)
	}

	if err := ac.sessions.Logout(c.Request); err != nil {
		ac.pages.internalError(c, err, "destroy session")
		return
	}

	ac.pages.flash(c, auth.FlashInfo, "You have been logged out.")
	ac.pages.redirect(c, auth.LoginPath)
}
