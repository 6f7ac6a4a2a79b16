package http

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/bookshelf/internal/auth"
	"github.com/mrlokans/bookshelf/internal/ui"
)

// NewRouter creates and configures the HTTP router with all endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	pages := &pages{sessions: cfg.SessionManager, logger: cfg.Logger}

	router := gin.New()

	router.Use(auth.SecurityHeadersMiddleware(cfg.SecureCookies))
	router.Use(RequestLogger(cfg.Logger))
	router.Use(Recovery(pages))

	// CSRF must run before session so that session context is preserved
	if len(cfg.CSRFSecret) > 0 {
		router.Use(auth.CSRFMiddleware(cfg.CSRFSecret, cfg.SecureCookies, pages.formExpired))
	}
	router.Use(cfg.SessionManager.SessionLoadSave())
	router.Use(cfg.AuthMiddleware.Handler())

	router.SetHTMLTemplate(template.Must(ui.Templates()))
	router.StaticFS("/static", http.FS(ui.Static()))

	health := NewHealthController(cfg.Database, cfg.Version)
	authController := NewAuthController(cfg.AuthService, cfg.SessionManager, cfg.Validator, cfg.RateLimiter, cfg.Audit, pages)
	accountController := NewAccountController(cfg.Accounts, cfg.Validator, cfg.Audit, pages)
	booksController := NewBooksController(cfg.Books, cfg.Validator, cfg.Audit, pages, cfg.Now)

	// Health endpoints
	router.GET("/health", health.Status)
	router.GET("/ping", health.Ping)

	router.GET("/", Index)

	// Auth routes
	router.GET("/register", authController.RegisterPage)
	router.POST("/register", authController.Register)
	router.GET("/login", authController.LoginPage)
	router.POST("/login", authController.Login)
	router.GET("/logout", authController.Logout)
	router.POST("/logout", authController.Logout)

	// Public book page
	router.GET("/book/:id", booksController.View)

	protected := router.Group("/", cfg.AuthMiddleware.RequireAuth())
	{
		protected.GET("/account", accountController.Page)
		protected.POST("/account", accountController.Update)

		protected.GET("/my_books/:username", booksController.List)

		protected.GET("/book/add", booksController.AddPage)
		protected.POST("/book/add", booksController.Add)
		protected.GET("/book/:id/update", booksController.UpdatePage)
		protected.POST("/book/:id/update", booksController.Update)
		protected.POST("/book/:id/complete", booksController.Complete)
		protected.POST("/book/:id/delete", booksController.Delete)
	}

	router.NoRoute(func(c *gin.Context) {
		pages.errorPage(c, http.StatusNotFound)
	})

	return router
}
