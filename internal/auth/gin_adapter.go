package auth

import (
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/gin-gonic/gin"
)

// committingWriter saves the session and sets its cookie the first time
// anything is written, because headers cannot change after that.
type committingWriter struct {
	gin.ResponseWriter
	commit func()
	done   bool
}

func (w *committingWriter) flushSession() {
	if !w.done {
		w.done = true
		w.commit()
	}
}

func (w *committingWriter) WriteHeader(code int) {
	w.flushSession()
	w.ResponseWriter.WriteHeader(code)
}

func (w *committingWriter) WriteHeaderNow() {
	w.flushSession()
	w.ResponseWriter.WriteHeaderNow()
}

func (w *committingWriter) Write(b []byte) (int, error) {
	w.flushSession()
	return w.ResponseWriter.Write(b)
}

func (w *committingWriter) WriteString(s string) (int, error) {
	w.flushSession()
	return w.ResponseWriter.WriteString(s)
}

// SessionLoadSave is the gin counterpart of scs LoadAndSave. Handlers that
// read or write the session must run after it.
func (sm *SessionManager) SessionLoadSave() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Vary", "Cookie")

		token := ""
		if cookie, err := c.Request.Cookie(sm.Cookie.Name); err == nil {
			token = cookie.Value
		}

		ctx, err := sm.Load(c.Request.Context(), token)
		if err != nil {
			sm.ErrorFunc(c.Writer, c.Request, err)
			c.Abort()
			return
		}
		r := c.Request.WithContext(ctx)
		c.Request = r

		w := &committingWriter{ResponseWriter: c.Writer}
		w.commit = func() { sm.writeCookie(w.ResponseWriter, r) }
		c.Writer = w

		c.Next()

		// Redirects and empty bodies may never touch the writer.
		w.flushSession()
	}
}

// writeCookie persists a modified session or expires the cookie of a
// destroyed one. Unchanged sessions need no cookie.
func (sm *SessionManager) writeCookie(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch sm.Status(ctx) {
	case scs.Modified:
		token, expiry, err := sm.Commit(ctx)
		if err != nil {
			sm.ErrorFunc(w, r, err)
			return
		}
		sm.WriteSessionCookie(ctx, w, token, expiry)
	case scs.Destroyed:
		sm.WriteSessionCookie(ctx, w, "", time.Time{})
	}
}
