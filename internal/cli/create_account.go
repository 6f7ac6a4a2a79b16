package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mrlokans/bookshelf/internal/auth"
	"github.com/mrlokans/bookshelf/internal/database"
	"github.com/mrlokans/bookshelf/internal/database/accounts"
	"github.com/mrlokans/bookshelf/internal/forms"
)

// passwordReader reads a password without echoing it.
type passwordReader func(prompt string) (string, error)

func newCreateAccountCommand(load configLoader) *cobra.Command {
	var username, email string

	cmd := &cobra.Command{
		Use:   "create-account",
		Short: "Register an account from the command line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := load()

			db, err := database.NewDatabase(cfg.Database.URL, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			repo := accounts.NewRepository(db.DB)
			creator := &accountCreator{
				service:   auth.NewService(repo, cfg.Auth),
				validator: forms.NewValidator(repo),
				in:        bufio.NewReader(cmd.InOrStdin()),
				out:       cmd.OutOrStdout(),
				password:  terminalPassword(cmd.OutOrStdout()),
			}
			return creator.run(cmd.Context(), username, email)
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "account username (prompted when empty)")
	cmd.Flags().StringVar(&email, "email", "", "account email (prompted when empty)")
	return cmd
}

type accountCreator struct {
	service   *auth.Service
	validator *forms.Validator
	in        *bufio.Reader
	out       io.Writer
	password  passwordReader
}

func (a *accountCreator) run(ctx context.Context, username, email string) error {
	var err error
	if username == "" {
		if username, err = a.prompt("Username: "); err != nil {
			return err
		}
	}
	if email == "" {
		if email, err = a.prompt("Email: "); err != nil {
			return err
		}
	}

	password, err := a.password("Password: ")
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	confirm, err := a.password("Confirm Password: ")
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	form := forms.RegistrationForm{
		Username:        username,
		Email:           email,
		Password:        password,
		ConfirmPassword: confirm,
	}
	errs, err := a.validator.ValidateRegistration(ctx, &form)
	if err != nil {
		return err
	}
	if errs.Any() {
		return formError(errs)
	}

	account, err := a.service.Register(ctx, form.Username, form.Email, form.Password)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Account created for %s!\n", account.Username)
	return nil
}

func (a *accountCreator) prompt(label string) (string, error) {
	fmt.Fprint(a.out, label)
	line, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func terminalPassword(out io.Writer) passwordReader {
	return func(prompt string) (string, error) {
		fmt.Fprint(out, prompt)
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return string(password), nil
	}
}

func formError(errs forms.Errors) error {
	fields := make([]string, 0, len(errs))
	for field := range errs {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString("invalid account:")
	for _, field := range fields {
		fmt.Fprintf(&b, "\n  %s: %s", field, strings.Join(errs[field], " "))
	}
	return errors.New(b.String())
}
