package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/csrf"
)

// CSRFFieldName is the form field gorilla/csrf reads the token from.
const CSRFFieldName = "gorilla.csrf.Token"

const contextKeyCSRFToken = "csrf_token"

// CSRFFailureFunc responds to a request whose token check failed.
// reason is the gorilla/csrf failure reason, e.g. csrf.ErrNoToken.
type CSRFFailureFunc func(c *gin.Context, reason error)

// csrfWriter carries the failure reason from the gorilla error handler back
// to the gin middleware.
type csrfWriter struct {
	gin.ResponseWriter
	reason error
	failed bool
}

// CSRFMiddleware protects unsafe methods with gorilla/csrf. Rejected requests
// are handed to onFailure and the chain is aborted; a nil onFailure answers
// with a bare 403. With secure=false the request is marked as plaintext HTTP
// so the HTTPS-only referer check does not reject local traffic.
func CSRFMiddleware(secret []byte, secure bool, onFailure CSRFFailureFunc) gin.HandlerFunc {
	if onFailure == nil {
		onFailure = func(c *gin.Context, _ error) {
			c.String(http.StatusForbidden, "Forbidden")
		}
	}

	protect := csrf.Protect(
		secret,
		csrf.Secure(secure),
		csrf.HttpOnly(true),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.Path("/"),
		csrf.FieldName(CSRFFieldName),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cw, ok := w.(*csrfWriter); ok {
				cw.failed = true
				cw.reason = csrf.FailureReason(r)
				return
			}
			http.Error(w, "Forbidden", http.StatusForbidden)
		})),
	)

	return func(c *gin.Context) {
		if !secure {
			c.Request = csrf.PlaintextHTTPRequest(c.Request)
		}

		cw := &csrfWriter{ResponseWriter: c.Writer}
		passed := false
		protect(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			passed = true
			c.Set(contextKeyCSRFToken, csrf.Token(r))
			c.Request = r
			c.Next()
		})).ServeHTTP(cw, c.Request)

		if passed {
			return
		}
		if cw.failed {
			onFailure(c, cw.reason)
		}
		c.Abort()
	}
}

// GetCSRFToken retrieves the CSRF token from the Gin context.
// Returns "" when CSRF protection is disabled.
func GetCSRFToken(c *gin.Context) string {
	return c.GetString(contextKeyCSRFToken)
}
