package http

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mrlokans/bookshelf/internal/auth"
	"github.com/mrlokans/bookshelf/internal/database/accounts"
	"github.com/mrlokans/bookshelf/internal/database/books"
	"github.com/mrlokans/bookshelf/internal/forms"
)

// errorPages holds the title and message shown for each error status.
var errorPages = map[int]struct{ title, message string }{
	http.StatusBadRequest:          {"Bad Request", "The submitted form could not be read."},
	http.StatusForbidden:           {"Forbidden", "You don't have permission to do that."},
	http.StatusNotFound:            {"Not Found", "That page does not exist."},
	http.StatusConflict:            {"Conflict", "Someone else changed this at the same moment. Please try again."},
	http.StatusInternalServerError: {"Something Went Wrong", "We're experiencing some trouble on our end. Please try again in a moment."},
}

// pages renders templates with the data every page needs and owns the
// flash and error-page conventions shared by the controllers.
type pages struct {
	sessions *auth.SessionManager
	logger   *logrus.Logger
}

// render executes a page template. The caller's data is extended with the
// current identity, pending flashes, the CSRF token and an Errors map.
func (p *pages) render(c *gin.Context, status int, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	if _, ok := data["Errors"]; !ok {
		data["Errors"] = forms.Errors{}
	}
	data["Identity"] = auth.CurrentIdentity(c)
	data["Flashes"] = p.sessions.PopFlashes(c.Request)
	data["CSRFToken"] = auth.GetCSRFToken(c)

	c.HTML(status, name, data)
}

// flash queues a notification for the next rendered page.
func (p *pages) flash(c *gin.Context, category, message string) {
	p.sessions.AddFlash(c.Request, category, message)
}

// redirect sends a 302 to path.
func (p *pages) redirect(c *gin.Context, path string) {
	c.Redirect(http.StatusFound, path)
}

// errorPage renders the error template for status and stops the chain.
func (p *pages) errorPage(c *gin.Context, status int) {
	page, ok := errorPages[status]
	if !ok {
		page = errorPages[http.StatusInternalServerError]
	}
	p.render(c, status, "error", gin.H{
		"Title":   page.title,
		"Status":  status,
		"Message": page.message,
	})
	c.Abort()
}

// internalError logs err and renders a generic 500 page.
// The actual error is logged but not exposed to the client.
func (p *pages) internalError(c *gin.Context, err error, context string) {
	p.logger.WithError(err).WithFields(logrus.Fields{
		"context": context,
		"path":    c.Request.URL.Path,
	}).Error("Internal error")
	p.errorPage(c, http.StatusInternalServerError)
}

// formExpired answers a request rejected by the CSRF check. It runs before
// the session is loaded, so no flashes are read.
func (p *pages) formExpired(c *gin.Context, reason error) {
	p.logger.WithFields(logrus.Fields{
		"path":   c.Request.URL.Path,
		"reason": reason,
	}).Warn("CSRF check failed")

	c.HTML(http.StatusForbidden, "error", gin.H{
		"Title":    "Form Expired",
		"Status":   http.StatusForbidden,
		"Message":  "The form submission could not be verified. Go back, reload the page and try again.",
		"Errors":   forms.Errors{},
		"Identity": auth.Identity{},
	})
}

// repositoryError maps repository sentinel errors onto error pages.
func (p *pages) repositoryError(c *gin.Context, err error, context string) {
	switch {
	case errors.Is(err, books.ErrNotFound), errors.Is(err, accounts.ErrNotFound):
		p.errorPage(c, http.StatusNotFound)
	case errors.Is(err, books.ErrForbidden):
		p.errorPage(c, http.StatusForbidden)
	case errors.Is(err, accounts.ErrDuplicate), errors.Is(err, auth.ErrAccountExists):
		p.errorPage(c, http.StatusConflict)
	default:
		p.internalError(c, err, context)
	}
}

// myBooksPath is the book list of the given account.
func myBooksPath(username string) string {
	return "/my_books/" + url.PathEscape(username)
}

func bookPath(id uint) string {
	return "/book/" + strconv.FormatUint(uint64(id), 10)
}

// parseID parses a positive numeric path parameter.
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
