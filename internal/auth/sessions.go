package auth

import (
	"database/sql"
	"encoding/gob"
	"net/http"
	"time"

	"github.com/alexedwards/scs/postgresstore"
	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"

	"github.com/mrlokans/bookshelf/internal/config"
	"github.com/mrlokans/bookshelf/internal/database"
	"github.com/mrlokans/bookshelf/internal/entities"
)

// Session data keys
const (
	SessionKeyAccountID = "account_id"
	SessionKeyUsername  = "username"
	SessionKeyRemember  = "remember"
	SessionKeyLoginAt   = "login_at"
	SessionKeyFlashes   = "flashes"
)

// Flash categories understood by the templates.
const (
	FlashSuccess = "success"
	FlashInfo    = "info"
	FlashDanger  = "danger"
)

// Flash is a one-shot notification shown on the next rendered page.
type Flash struct {
	Category string
	Message  string
}

func init() {
	// Register types that will be stored in sessions
	gob.Register(time.Time{})
	gob.Register([]Flash{})
}

const sqliteSessionsDDL = `CREATE TABLE IF NOT EXISTS sessions (
	token TEXT PRIMARY KEY,
	data BLOB NOT NULL,
	expiry REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS sessions_expiry_idx ON sessions(expiry);`

const postgresSessionsDDL = `CREATE TABLE IF NOT EXISTS sessions (
	token TEXT PRIMARY KEY,
	data BYTEA NOT NULL,
	expiry TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS sessions_expiry_idx ON sessions (expiry);`

// NewSessionStore creates the sessions table for the driver and returns
// the matching scs store. The sqlDB parameter should be the underlying
// *sql.DB from GORM.
func NewSessionStore(sqlDB *sql.DB, driver database.Driver) (scs.Store, error) {
	switch driver {
	case database.DriverPostgres:
		if _, err := sqlDB.Exec(postgresSessionsDDL); err != nil {
			return nil, err
		}
		return postgresstore.New(sqlDB), nil
	default:
		if _, err := sqlDB.Exec(sqliteSessionsDDL); err != nil {
			return nil, err
		}
		return sqlite3store.New(sqlDB), nil
	}
}

// SessionManager wraps scs.SessionManager with application-specific methods.
type SessionManager struct {
	*scs.SessionManager
	sessionLifetime time.Duration
}

// NewSessionManager creates a configured session manager.
//
// Cookies are browser-session cookies unless the login asked to be
// remembered. Server-side data lives for RememberLifetime; logins without
// "remember me" are expired by the middleware after SessionLifetime.
func NewSessionManager(store scs.Store, cfg config.Auth) *SessionManager {
	sm := scs.New()
	sm.Store = store

	sm.Lifetime = cfg.RememberLifetime
	if sm.Lifetime < cfg.SessionLifetime {
		sm.Lifetime = cfg.SessionLifetime
	}

	sm.Cookie.Name = "session"
	sm.Cookie.HttpOnly = true
	sm.Cookie.Secure = cfg.SecureCookies
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Path = "/"
	sm.Cookie.Persist = false

	return &SessionManager{SessionManager: sm, sessionLifetime: cfg.SessionLifetime}
}

// Login starts an authenticated session for the account.
// This should be called after password verification.
func (sm *SessionManager) Login(r *http.Request, account *entities.Account, remember bool) error {
	ctx := r.Context()

	// Renew token to prevent session fixation
	if err := sm.RenewToken(ctx); err != nil {
		return err
	}

	// Store account ID as int to match GetInt() retrieval
	sm.Put(ctx, SessionKeyAccountID, int(account.ID))
	sm.Put(ctx, SessionKeyUsername, account.Username)
	sm.Put(ctx, SessionKeyRemember, remember)
	sm.Put(ctx, SessionKeyLoginAt, time.Now())
	sm.RememberMe(ctx, remember)

	return nil
}

// Logout removes all session data and invalidates the session.
func (sm *SessionManager) Logout(r *http.Request) error {
	return sm.Destroy(r.Context())
}

// AccountID retrieves the account ID from the session.
// Returns 0 if not authenticated.
func (sm *SessionManager) AccountID(r *http.Request) uint {
	id := sm.GetInt(r.Context(), SessionKeyAccountID)
	if id <= 0 {
		return 0
	}
	return uint(id)
}

// Remembered reports whether the login asked for a persistent session.
func (sm *SessionManager) Remembered(r *http.Request) bool {
	return sm.GetBool(r.Context(), SessionKeyRemember)
}

// Expired reports whether a login without "remember me" has outlived the
// short session lifetime.
func (sm *SessionManager) Expired(r *http.Request, now time.Time) bool {
	if sm.Remembered(r) || sm.sessionLifetime <= 0 {
		return false
	}
	loginAt := sm.GetTime(r.Context(), SessionKeyLoginAt)
	if loginAt.IsZero() {
		return true
	}
	return now.Sub(loginAt) > sm.sessionLifetime
}

// AddFlash queues a notification for the next rendered page.
func (sm *SessionManager) AddFlash(r *http.Request, category, message string) {
	flashes, _ := sm.Get(r.Context(), SessionKeyFlashes).([]Flash)
	flashes = append(flashes, Flash{Category: category, Message: message})
	sm.Put(r.Context(), SessionKeyFlashes, flashes)
}

// PopFlashes returns and clears all queued notifications.
func (sm *SessionManager) PopFlashes(r *http.Request) []Flash {
	flashes, _ := sm.Pop(r.Context(), SessionKeyFlashes).([]Flash)
	return flashes
}
