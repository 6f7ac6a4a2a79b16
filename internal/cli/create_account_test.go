package cli

import (
	"bufio"
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mrlokans/bookshelf/internal/auth"
	"github.com/mrlokans/bookshelf/internal/config"
	"github.com/mrlokans/bookshelf/internal/database"
	"github.com/mrlokans/bookshelf/internal/database/accounts"
	"github.com/mrlokans/bookshelf/internal/forms"
	"github.com/mrlokans/bookshelf/internal/logging"
)

func setupCreator(t *testing.T, input string, passwords ...string) (*accountCreator, *accounts.Repository, *bytes.Buffer) {
	t.Helper()

	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "cli.db"), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := accounts.NewRepository(db.DB)
	out := &bytes.Buffer{}
	authCfg := config.Auth{BcryptCost: bcrypt.MinCost, SessionLifetime: time.Hour, RememberLifetime: time.Hour}

	return &accountCreator{
		service:   auth.NewService(repo, authCfg),
		validator: forms.NewValidator(repo),
		in:        bufio.NewReader(strings.NewReader(input)),
		out:       out,
		password: func(string) (string, error) {
			next := passwords[0]
			passwords = passwords[1:]
			return next, nil
		},
	}, repo, out
}

func TestCreateAccount_Prompts(t *testing.T) {
	creator, repo, out := setupCreator(t, "alice\nalice@example.com\n", "pw-alice", "pw-alice")

	require.NoError(t, creator.run(context.Background(), "", ""))
	assert.Contains(t, out.String(), "Account created for alice!")

	account, err := repo.GetByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", account.Username)
	assert.NoError(t, auth.CheckPassword("pw-alice", account.PasswordHash))
}

func TestCreateAccount_Flags(t *testing.T) {
	creator, repo, _ := setupCreator(t, "", "pw-bob", "pw-bob")

	require.NoError(t, creator.run(context.Background(), "bob", "bob@example.com"))

	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestCreateAccount_Invalid(t *testing.T) {
	creator, repo, _ := setupCreator(t, "", "one", "two")

	err := creator.run(context.Background(), "bob", "not-an-email")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "confirm_password: "+forms.MsgPasswordMatch)
	assert.Contains(t, err.Error(), "email: "+forms.MsgInvalidEmail)

	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRootCommand(t *testing.T) {
	root := NewRootCommand("1.2.3")

	names := map[string]bool{}
	for _, cmd := range root.Commands() {
		names[cmd.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["migrate"])
	assert.True(t, names["create-account"])
	assert.NotNil(t, root.PersistentFlags().Lookup("database"))
}

func TestMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migrate.db")
	root := NewRootCommand("test")
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetArgs([]string{"migrate", "--database", path})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Database is up to date.")

	db, err := database.NewDatabase(path, logging.Discard())
	require.NoError(t, err)
	defer db.Close()
	assert.True(t, db.DB.Migrator().HasTable("sessions"))
}
