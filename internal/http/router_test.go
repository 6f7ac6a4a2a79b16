package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2/memstore"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mrlokans/bookshelf/internal/audit"
	"github.com/mrlokans/bookshelf/internal/auth"
	"github.com/mrlokans/bookshelf/internal/config"
	"github.com/mrlokans/bookshelf/internal/database"
	"github.com/mrlokans/bookshelf/internal/database/accounts"
	auditrepo "github.com/mrlokans/bookshelf/internal/database/audit"
	"github.com/mrlokans/bookshelf/internal/database/books"
	"github.com/mrlokans/bookshelf/internal/forms"
	"github.com/mrlokans/bookshelf/internal/logging"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testApp struct {
	router   *gin.Engine
	accounts *accounts.Repository
	books    *books.Repository
	audit    *audit.Service
}

func setupApp(t *testing.T, maxLoginAttempts int) *testApp {
	t.Helper()
	return setupAppWithCSRF(t, maxLoginAttempts, nil)
}

func setupAppWithCSRF(t *testing.T, maxLoginAttempts int, csrfSecret []byte) *testApp {
	t.Helper()

	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "bookshelf.db"), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	authCfg := config.Auth{
		SessionLifetime:  24 * time.Hour,
		RememberLifetime: 720 * time.Hour,
		BcryptCost:       bcrypt.MinCost,
		MaxLoginAttempts: maxLoginAttempts,
	}

	logger := logging.Discard()
	accountRepo := accounts.NewRepository(db.DB)
	bookRepo := books.NewRepository(db.DB)
	auditService := audit.NewService(auditrepo.NewRepository(db.DB), logger)
	t.Cleanup(auditService.Wait)

	limiter := auth.NewRateLimiter(auth.RateLimitConfigFrom(authCfg))
	t.Cleanup(limiter.Stop)

	authService := auth.NewService(accountRepo, authCfg)
	sessions := auth.NewSessionManager(memstore.New(), authCfg)

	router := NewRouter(RouterConfig{
		Database:       db,
		Accounts:       accountRepo,
		Books:          bookRepo,
		AuthService:    authService,
		SessionManager: sessions,
		AuthMiddleware: auth.NewMiddleware(authService, sessions, logger),
		RateLimiter:    limiter,
		CSRFSecret:     csrfSecret,
		Validator:      forms.NewValidator(accountRepo),
		Audit:          auditService,
		Logger:         logger,
		Version:        "test",
	})

	return &testApp{router: router, accounts: accountRepo, books: bookRepo, audit: auditService}
}

// browser keeps the cookies a real browser would between requests.
type browser struct {
	app     *testApp
	cookies map[string]*http.Cookie
}

func (a *testApp) browser() *browser {
	return &browser{app: a, cookies: map[string]*http.Cookie{}}
}

func (b *browser) do(req *http.Request) *httptest.ResponseRecorder {
	for _, c := range b.cookies {
		req.AddCookie(c)
	}

	rr := httptest.NewRecorder()
	b.app.router.ServeHTTP(rr, req)

	for _, c := range rr.Result().Cookies() {
		if c.MaxAge < 0 || c.Value == "" {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c
	}
	return rr
}

func (b *browser) get(target string) *httptest.ResponseRecorder {
	return b.do(httptest.NewRequest(http.MethodGet, target, nil))
}

func (b *browser) post(target string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

func (b *browser) register(t *testing.T, username, email, password string) {
	t.Helper()
	rr := b.post("/register", url.Values{
		"username":         {username},
		"email":            {email},
		"password":         {password},
		"confirm_password": {password},
	})
	require.Equal(t, http.StatusFound, rr.Code, rr.Body.String())
	require.Equal(t, "/login", rr.Header().Get("Location"))
}

func (b *browser) login(t *testing.T, email, password string) {
	t.Helper()
	rr := b.post("/login", url.Values{"email": {email}, "password": {password}})
	require.Equal(t, http.StatusFound, rr.Code, rr.Body.String())
}

func (b *browser) addBook(t *testing.T, title, author string, pages int) {
	t.Helper()
	rr := b.post("/book/add", url.Values{
		"title":     {title},
		"author":    {author},
		"num_pages": {strconv.Itoa(pages)},
	})
	require.Equal(t, http.StatusFound, rr.Code, rr.Body.String())
}

func (a *testApp) signedIn(t *testing.T, username string) *browser {
	t.Helper()
	b := a.browser()
	email := username + "@example.com"
	b.register(t, username, email, "correct horse")
	b.login(t, email, "correct horse")
	return b
}

func (a *testApp) accountID(t *testing.T, username string) uint {
	t.Helper()
	account, err := a.accounts.GetByUsername(context.Background(), username)
	require.NoError(t, err)
	return account.ID
}

func (a *testApp) onlyBookOf(t *testing.T, username string) uint {
	t.Helper()
	shelf, err := a.books.ListForAccount(context.Background(), a.accountID(t, username))
	require.NoError(t, err)
	require.Equal(t, 1, shelf.Total())
	if len(shelf.Complete) == 1 {
		return shelf.Complete[0].ID
	}
	return shelf.Incomplete[0].ID
}

func TestReadingScenario(t *testing.T) {
	app := setupApp(t, 5)
	ctx := context.Background()

	alice := app.browser()
	alice.register(t, "alice", "alice@example.com", "pw-alice")

	rr := alice.post("/login", url.Values{"email": {"alice@example.com"}, "password": {"pw-alice"}})
	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/my_books/alice", rr.Header().Get("Location"))

	rr = alice.post("/book/add", url.Values{"title": {"Dune"}, "author": {"Frank Herbert"}, "num_pages": {"412"}})
	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/my_books/alice", rr.Header().Get("Location"))

	id := app.onlyBookOf(t, "alice")
	bookURL := "/book/" + strconv.FormatUint(uint64(id), 10)

	rr = alice.post(bookURL+"/complete", nil)
	require.Equal(t, http.StatusFound, rr.Code)

	book, err := app.books.GetByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, book.Complete)
	assert.NotNil(t, book.FinishedAt)
	assert.Equal(t, 412, book.Pages)

	bob := app.signedIn(t, "bob")
	rr = bob.post(bookURL+"/delete", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	_, err = app.books.GetByID(ctx, id)
	assert.NoError(t, err, "book must survive another account's delete")

	app.audit.Wait()
	activity, err := app.audit.RecentActivity(ctx, book.AccountID, 10)
	require.NoError(t, err)
	var actions []string
	for _, e := range activity {
		actions = append(actions, e.Action)
	}
	assert.Contains(t, actions, audit.ActionBookAdd)
	assert.Contains(t, actions, audit.ActionBookComplete)
	assert.Contains(t, actions, audit.ActionLogin)
}

func TestBookOwnership(t *testing.T) {
	app := setupApp(t, 5)
	ctx := context.Background()

	alice := app.signedIn(t, "alice")
	alice.addBook(t, "Dune", "Frank Herbert", 412)
	id := app.onlyBookOf(t, "alice")
	bookURL := "/book/" + strconv.FormatUint(uint64(id), 10)

	bob := app.signedIn(t, "bob")

	tests := []struct {
		name string
		do   func() *httptest.ResponseRecorder
	}{
		{"update page", func() *httptest.ResponseRecorder { return bob.get(bookURL + "/update") }},
		{"update", func() *httptest.ResponseRecorder {
			return bob.post(bookURL+"/update", url.Values{"title": {"Mine"}, "author": {"Bob"}, "num_pages": {"1"}})
		}},
		{"complete", func() *httptest.ResponseRecorder { return bob.post(bookURL+"/complete", nil) }},
		{"delete", func() *httptest.ResponseRecorder { return bob.post(bookURL+"/delete", nil) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := tt.do()
			assert.Equal(t, http.StatusForbidden, rr.Code)

			book, err := app.books.GetByID(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, "Dune", book.Title)
			assert.Equal(t, 412, book.Pages)
			assert.False(t, book.Complete)
		})
	}
}

func TestBookUpdate(t *testing.T) {
	app := setupApp(t, 5)
	alice := app.signedIn(t, "alice")
	alice.addBook(t, "Dun", "F. Herbert", 400)
	id := app.onlyBookOf(t, "alice")
	bookURL := "/book/" + strconv.FormatUint(uint64(id), 10)

	rr := alice.get(bookURL + "/update")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `value="Dun"`)
	assert.Contains(t, rr.Body.String(), `value="400"`)

	rr = alice.post(bookURL+"/update", url.Values{"title": {"Dune"}, "author": {"Frank Herbert"}, "num_pages": {"412"}})
	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, bookURL, rr.Header().Get("Location"))

	book, err := app.books.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Dune", book.Title)
	assert.Equal(t, "Frank Herbert", book.Author)
	assert.Equal(t, 412, book.Pages)
}

func TestMutationsWhileAuditWritesPending(t *testing.T) {
	app := setupApp(t, 5)
	alice := app.signedIn(t, "alice")
	alice.addBook(t, "Dune", "Frank Herbert", 412)
	id := app.onlyBookOf(t, "alice")
	bookURL := "/book/" + strconv.FormatUint(uint64(id), 10)

	// Each request queues an audit write that is still in flight when the
	// next transaction starts.
	for i := 0; i < 100; i++ {
		form := url.Values{"title": {"Dune " + strconv.Itoa(i)}, "author": {"Frank Herbert"}, "num_pages": {"412"}}
		rr := alice.post(bookURL+"/update", form)
		require.Equal(t, http.StatusFound, rr.Code, "update %d", i)

		rr = alice.post("/account", url.Values{"username": {"alice"}, "email": {"alice@example.com"}})
		require.Equal(t, http.StatusFound, rr.Code, "account update %d", i)
	}

	rr := alice.post(bookURL+"/complete", nil)
	require.Equal(t, http.StatusFound, rr.Code)
	rr = alice.post(bookURL+"/delete", nil)
	require.Equal(t, http.StatusFound, rr.Code)

	app.audit.Wait()
	activity, err := app.audit.RecentActivity(context.Background(), app.accountID(t, "alice"), 500)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(activity), 202)
}

func TestBookForm_ValidationErrors(t *testing.T) {
	app := setupApp(t, 5)
	alice := app.signedIn(t, "alice")

	rr := alice.post("/book/add", url.Values{"title": {"Dune"}, "author": {"Frank Herbert"}, "num_pages": {"lots"}})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), forms.MsgNotInteger)

	rr = alice.post("/book/add", url.Values{"title": {""}, "author": {"Frank Herbert"}, "num_pages": {"0"}})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), forms.MsgRequired)
	assert.Contains(t, rr.Body.String(), forms.MsgPositive)

	account, err := app.accounts.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)
	shelf, err := app.books.ListForAccount(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Zero(t, shelf.Total())
}

func TestMyBooks(t *testing.T) {
	app := setupApp(t, 5)
	alice := app.signedIn(t, "alice")
	alice.addBook(t, "Dune", "Frank Herbert", 412)
	alice.addBook(t, "Emma", "Jane Austen", 474)
	alice.addBook(t, "Ulysses", "James Joyce", 730)

	account, err := app.accounts.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)
	shelf, err := app.books.ListForAccount(context.Background(), account.ID)
	require.NoError(t, err)
	rr := alice.post("/book/"+strconv.FormatUint(uint64(shelf.Incomplete[0].ID), 10)+"/complete", nil)
	require.Equal(t, http.StatusFound, rr.Code)

	bob := app.signedIn(t, "bob")
	bob.addBook(t, "Beloved", "Toni Morrison", 324)

	rr = alice.get("/my_books/alice")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "3 books: 2 in progress, 1 finished.")
	assert.Contains(t, body, "Dune")
	assert.NotContains(t, body, "Beloved")

	rr = alice.get("/my_books/bob")
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestViewBook(t *testing.T) {
	app := setupApp(t, 5)
	alice := app.signedIn(t, "alice")
	alice.addBook(t, "Dune", "Frank Herbert", 412)
	id := app.onlyBookOf(t, "alice")
	bookURL := "/book/" + strconv.FormatUint(uint64(id), 10)

	t.Run("public", func(t *testing.T) {
		rr := app.browser().get(bookURL)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "Dune")
		assert.NotContains(t, rr.Body.String(), bookURL+"/delete")
	})

	t.Run("owner sees actions", func(t *testing.T) {
		rr := alice.get(bookURL)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), bookURL+"/delete")
	})

	t.Run("unknown and malformed ids", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, alice.get("/book/9999").Code)
		assert.Equal(t, http.StatusNotFound, alice.get("/book/abc").Code)
		assert.Equal(t, http.StatusNotFound, alice.post("/book/9999/delete", nil).Code)
	})
}

func TestRegister_Duplicate(t *testing.T) {
	app := setupApp(t, 5)
	first := app.browser()
	first.register(t, "alice", "alice@example.com", "pw-alice")

	rr := app.browser().post("/register", url.Values{
		"username":         {"alice"},
		"email":            {"alice@example.com"},
		"password":         {"other"},
		"confirm_password": {"other"},
	})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), forms.MsgUsernameTaken)
	assert.Contains(t, rr.Body.String(), forms.MsgEmailTaken)

	count, err := app.accounts.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRegister_UsernameWithSlash(t *testing.T) {
	app := setupApp(t, 5)

	rr := app.browser().post("/register", url.Values{
		"username":         {"a/b"},
		"email":            {"ab@example.com"},
		"password":         {"pw-ab"},
		"confirm_password": {"pw-ab"},
	})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), forms.MsgUsernameSlash)

	count, err := app.accounts.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestAccountUpdate(t *testing.T) {
	app := setupApp(t, 5)
	app.signedIn(t, "bob")
	alice := app.signedIn(t, "alice")

	t.Run("keeping own username", func(t *testing.T) {
		rr := alice.post("/account", url.Values{"username": {"alice"}, "email": {"alice@example.com"}})
		require.Equal(t, http.StatusFound, rr.Code)
		assert.Equal(t, "/account", rr.Header().Get("Location"))
	})

	t.Run("taking another account's username", func(t *testing.T) {
		rr := alice.post("/account", url.Values{"username": {"bob"}, "email": {"alice@example.com"}})
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), forms.MsgUsernameTaken)
	})

	t.Run("renaming", func(t *testing.T) {
		rr := alice.post("/account", url.Values{"username": {"alicia"}, "email": {"alicia@example.com"}})
		require.Equal(t, http.StatusFound, rr.Code)

		rr = alice.get("/")
		assert.Equal(t, "/my_books/alicia", rr.Header().Get("Location"))
	})

	t.Run("page lists recent activity", func(t *testing.T) {
		app.audit.Wait()
		rr := alice.get("/account")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "Recent Activity")
		assert.NotContains(t, rr.Body.String(), "No activity yet.")
	})
}

func TestAuthRedirects(t *testing.T) {
	app := setupApp(t, 5)

	t.Run("anonymous is sent to login with next", func(t *testing.T) {
		anon := app.browser()
		rr := anon.get("/book/add")
		require.Equal(t, http.StatusFound, rr.Code)
		assert.Equal(t, "/login?next=%2Fbook%2Fadd", rr.Header().Get("Location"))

		assert.Equal(t, "/login", anon.get("/").Header().Get("Location"))
	})

	t.Run("login honours local next", func(t *testing.T) {
		b := app.browser()
		b.register(t, "carol", "carol@example.com", "pw-carol")
		rr := b.post("/login", url.Values{
			"email":    {"carol@example.com"},
			"password": {"pw-carol"},
			"next":     {"/book/add"},
		})
		require.Equal(t, http.StatusFound, rr.Code)
		assert.Equal(t, "/book/add", rr.Header().Get("Location"))
	})

	t.Run("login ignores external next", func(t *testing.T) {
		b := app.browser()
		b.register(t, "dave", "dave@example.com", "pw-dave")
		rr := b.post("/login", url.Values{
			"email":    {"dave@example.com"},
			"password": {"pw-dave"},
			"next":     {"//evil.example.com/"},
		})
		require.Equal(t, http.StatusFound, rr.Code)
		assert.Equal(t, "/my_books/dave", rr.Header().Get("Location"))
	})

	t.Run("login ignores next hidden behind a tab", func(t *testing.T) {
		b := app.browser()
		b.register(t, "erin", "erin@example.com", "pw-erin")
		rr := b.post("/login", url.Values{
			"email":    {"erin@example.com"},
			"password": {"pw-erin"},
			"next":     {"/\t/evil.example.com"},
		})
		require.Equal(t, http.StatusFound, rr.Code)
		assert.Equal(t, "/my_books/erin", rr.Header().Get("Location"))
	})

	t.Run("authenticated users skip login and register", func(t *testing.T) {
		alice := app.signedIn(t, "alice")
		assert.Equal(t, "/my_books/alice", alice.get("/login").Header().Get("Location"))
		assert.Equal(t, "/my_books/alice", alice.get("/register").Header().Get("Location"))
		assert.Equal(t, "/my_books/alice", alice.get("/").Header().Get("Location"))
	})

	t.Run("logout ends the session", func(t *testing.T) {
		erin := app.signedIn(t, "erin")
		rr := erin.post("/logout", nil)
		require.Equal(t, http.StatusFound, rr.Code)
		assert.Equal(t, "/login", rr.Header().Get("Location"))

		rr = erin.get("/account")
		assert.Equal(t, "/login?next=%2Faccount", rr.Header().Get("Location"))
	})
}

func TestLogin_Failures(t *testing.T) {
	app := setupApp(t, 2)
	b := app.browser()
	b.register(t, "alice", "alice@example.com", "pw-alice")

	wrong := url.Values{"email": {"alice@example.com"}, "password": {"nope"}}

	for i := 0; i < 2; i++ {
		rr := b.post("/login", wrong)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "Login Unsuccessful. Please check email and password.")
	}

	rr := b.post("/login", url.Values{"email": {"alice@example.com"}, "password": {"pw-alice"}})
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	rr = b.get("/account")
	assert.Equal(t, http.StatusFound, rr.Code, "locked out login must not open a session")
}

func TestHealth(t *testing.T) {
	app := setupApp(t, 5)
	b := app.browser()

	rr := b.get("/health")
	require.Equal(t, http.StatusOK, rr.Code)

	var response HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response.Status)
	assert.Equal(t, "test", response.Version)
	assert.Equal(t, "ok", response.Checks["database"])

	rr = b.get("/ping")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"message":"pong"}`, rr.Body.String())
}

func TestNotFoundAndStatic(t *testing.T) {
	app := setupApp(t, 5)
	b := app.browser()

	rr := b.get("/nowhere")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "That page does not exist.")

	rr = b.get("/static/style.css")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Content-Security-Policy"))
}

func TestCSRF_RejectedFormRendersErrorPage(t *testing.T) {
	app := setupAppWithCSRF(t, 5, []byte("test-secret-key-32-bytes-long!!!"))
	b := app.browser()

	form := url.Values{"email": {"a@x.com"}, "password": {"pw12345"}}
	rr := b.post("/login", form)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "Form Expired")

	rr = b.get("/login")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `name="gorilla.csrf.Token"`)
}
