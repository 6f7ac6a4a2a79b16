package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/bookshelf/internal/auth"
)

// Index sends logged-in users to their book list and everyone else to login.
// GET /
func Index(c *gin.Context) {
	identity := auth.CurrentIdentity(c)
	if identity.Authenticated() {
		c.Redirect(http.StatusFound, myBooksPath(identity.Username))
		return
	}
	c.Redirect(http.StatusFound, auth.LoginPath)
}
