package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/tesso57/readsync/internal/application/settings"
)

// AccountsCmd groups the account management commands.
type AccountsCmd struct {
	List   AccountsListCmd   `cmd:"" default:"1" help:"List configured accounts."`
	Add    AccountsAddCmd    `cmd:"" help:"Add an account to the config file."`
	Remove AccountsRemoveCmd `cmd:"" help:"Remove an account and its stored content."`
}

// AccountsListCmd lists configured accounts with their sync state.
type AccountsListCmd struct{}

// Run executes the command.
func (c *AccountsListCmd) Run(ctx context.Context, app *App) error {
	rows := make([][]string, 0, len(app.accounts))
	for _, acc := range app.accounts {
		cursor, err := app.store.SyncCursor(ctx, acc.ID)
		if err != nil {
			return err
		}
		pending, err := app.store.PendingStates(ctx, acc.ID)
		if err != nil {
			return err
		}
		rows = append(rows, []string{
			strconv.FormatInt(acc.ID, 10), string(acc.Type), acc.DisplayName(), cursor, strconv.Itoa(len(pending)),
		})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "TYPE", "NAME", "CURSOR", "PENDING").
		Rows(rows...)
	_, err := fmt.Fprintln(app.out, t.String())
	return err
}

// AccountsAddCmd adds an account.
type AccountsAddCmd struct {
	ID          int64  `arg:"" help:"Account id, unique and positive."`
	Type        string `arg:"" enum:"local,nextcloud_news,freshrss,fever" help:"Account type (${enum})."`
	Name        string `help:"Display name."`
	URL         string `help:"Service base URL."`
	Login       string `help:"Login name."`
	Password    string `help:"Password, stored in the config file."`
	PasswordEnv string `help:"Environment variable holding the password."`
}

// Run executes the command.
func (c *AccountsAddCmd) Run(ctx context.Context, app *App) error {
	if app.config == nil {
		return errors.New("no config file loaded")
	}
	cfg := settings.AccountConfig{
		ID:          c.ID,
		Type:        c.Type,
		Name:        c.Name,
		URL:         c.URL,
		Login:       c.Login,
		Password:    c.Password,
		PasswordEnv: c.PasswordEnv,
	}
	if cfg.ID <= 0 {
		return fmt.Errorf("account id must be positive, got %d", cfg.ID)
	}
	acc, err := cfg.Account()
	if err != nil {
		return err
	}
	if err := acc.Validate(); err != nil {
		return err
	}
	if err := app.config.AddAccount(cfg); err != nil {
		return err
	}
	if err := app.store.EnsureAccount(ctx, acc); err != nil {
		return err
	}
	app.accounts = append(app.accounts, acc)
	_, err = fmt.Fprintf(app.out, "Added account %d (%s)\n", acc.ID, acc.DisplayName())
	return err
}

// AccountsRemoveCmd removes an account.
type AccountsRemoveCmd struct {
	ID int64 `arg:"" help:"Account id."`
}

// Run executes the command.
func (c *AccountsRemoveCmd) Run(ctx context.Context, app *App) error {
	if app.config == nil {
		return errors.New("no config file loaded")
	}
	if err := app.config.RemoveAccount(c.ID); err != nil {
		return err
	}
	if err := app.store.DeleteAccount(ctx, c.ID); err != nil {
		return err
	}
	for i, acc := range app.accounts {
		if acc.ID == c.ID {
			app.accounts = append(app.accounts[:i:i], app.accounts[i+1:]...)
			break
		}
	}
	_, err := fmt.Fprintf(app.out, "Removed account %d\n", c.ID)
	return err
}
