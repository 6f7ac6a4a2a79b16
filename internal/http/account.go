package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/bookshelf/internal/audit"
	"github.com/mrlokans/bookshelf/internal/auth"
	"github.com/mrlokans/bookshelf/internal/database/accounts"
	"github.com/mrlokans/bookshelf/internal/forms"
)

const recentActivityLimit = 10

// AccountController serves the account page of the logged-in user.
type AccountController struct {
	accounts  *accounts.Repository
	validator *forms.Validator
	audit     *audit.Service
	pages     *pages
}

func NewAccountController(
	repo *accounts.Repository,
	validator *forms.Validator,
	auditService *audit.Service,
	pages *pages,
) *AccountController {
	return &AccountController{
		accounts:  repo,
		validator: validator,
		audit:     auditService,
		pages:     pages,
	}
}

// Page renders the account form pre-filled with the stored values.
// GET /account
func (ac *AccountController) Page(c *gin.Context) {
	identity := auth.CurrentIdentity(c)
	form := forms.AccountForm{Username: identity.Username, Email: identity.Email}
	ac.renderAccount(c, form, nil)
}

// Update changes username and email.
// POST /account
func (ac *AccountController) Update(c *gin.Context) {
	identity := auth.CurrentIdentity(c)
	ctx := c.Request.Context()

	var form forms.AccountForm
	if err := c.ShouldBind(&form); err != nil {
		ac.pages.errorPage(c, http.StatusBadRequest)
		return
	}

	errs, err := ac.validator.ValidateAccount(ctx, &form, identity.AccountID)
	if err != nil {
		ac.pages.internalError(c, err, "validate account")
		return
	}
	if errs.Any() {
		ac.renderAccount(c, form, errs)
		return
	}

	account, err := ac.accounts.UpdateProfile(ctx, identity.AccountID, form.Username, form.Email)
	if err != nil {
		ac.pages.repositoryError(c, err, "update account")
		return
	}

	ac.audit.LogAccount(account.ID, audit.ActionAccountUpdate, "Updated username and email")
	ac.pages.flash(c, auth.FlashSuccess, "Your account has been updated!")
	ac.pages.redirect(c, "/account")
}

func (ac *AccountController) renderAccount(c *gin.Context, form forms.AccountForm, errs forms.Errors) {
	identity := auth.CurrentIdentity(c)

	activity, err := ac.audit.RecentActivity(c.Request.Context(), identity.AccountID, recentActivityLimit)
	if err != nil {
		// The page is still usable without the activity list
		ac.pages.logger.WithError(err).Warn("Failed to load recent activity")
	}

	ac.pages.render(c, http.StatusOK, "account", gin.H{
		"Title":    "Account",
		"Form":     form,
		"Errors":   errs,
		"Activity": activity,
	})
}
