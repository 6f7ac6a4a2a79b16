// Package auth provides authentication for the bookshelf web UI.
//
// Accounts log in with email and password. A successful login renews the
// session token and stores the account ID in a server-side scs session;
// the cookie only carries the opaque token.
//
// # Configuration
//
//	AUTH_SESSION_SECRET=<hex string>     # CSRF signing key, generated when empty
//	AUTH_SESSION_LIFETIME=24h            # Login without "remember me"
//	AUTH_REMEMBER_LIFETIME=720h          # Login with "remember me"
//	AUTH_BCRYPT_COST=12                  # bcrypt cost factor
//	AUTH_SECURE_COOKIES=true             # HTTPS-only cookies
//
// # Usage
//
// Wire the session and identity middleware in the router:
//
//	sessions := auth.NewSessionManager(store, cfg.Auth)
//	mw := auth.NewMiddleware(service, sessions, logger)
//	router.Use(sessions.SessionLoadSave(), mw.Handler())
//	protected := router.Group("/", mw.RequireAuth())
//
// Read the caller in handlers:
//
//	identity := auth.CurrentIdentity(c)
//	if identity.Authenticated() { ... }
package auth
