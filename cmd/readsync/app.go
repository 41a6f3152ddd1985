package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/tesso57/readsync/internal/application/settings"
	"github.com/tesso57/readsync/internal/application/usecase"
	"github.com/tesso57/readsync/internal/domain/account"
	"github.com/tesso57/readsync/internal/infrastructure/api/fever"
	"github.com/tesso57/readsync/internal/infrastructure/api/freshrss"
	"github.com/tesso57/readsync/internal/infrastructure/api/nextcloud"
	"github.com/tesso57/readsync/internal/infrastructure/config"
	"github.com/tesso57/readsync/internal/infrastructure/feed"
	"github.com/tesso57/readsync/internal/infrastructure/logging"
	"github.com/tesso57/readsync/internal/infrastructure/store/sqlite"
	"github.com/tesso57/readsync/internal/infrastructure/transport"
)

// App holds the collaborators shared by every command.
type App struct {
	config   *config.Store
	settings settings.Settings
	accounts []account.Account
	log      *zap.Logger
	store    *sqlite.Store
	locks    *usecase.AccountLocks
	sync     *usecase.Synchronizer
	source   *feed.Source
	out      io.Writer
}

func newApp(ctx context.Context, configPath, logLevel string, out io.Writer) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Settings.Log.Level = logLevel
	}
	logger, err := logging.New(cfg.Settings.Log.Level, cfg.Settings.Log.Format)
	if err != nil {
		return nil, err
	}
	app, err := assemble(ctx, cfg.Settings, logger, out)
	if err != nil {
		return nil, err
	}
	app.config = cfg
	return app, nil
}

// assemble opens the store and registers every configured account.
func assemble(ctx context.Context, s settings.Settings, logger *zap.Logger, out io.Writer) (*App, error) {
	accounts, err := s.ResolveAccounts()
	if err != nil {
		return nil, err
	}
	store, err := sqlite.Open(ctx, s.DatabaseFile, logger.Named("store"))
	if err != nil {
		return nil, err
	}
	for _, acc := range accounts {
		if err := store.EnsureAccount(ctx, acc); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("register account %d: %w", acc.ID, err)
		}
	}
	return &App{
		settings: s,
		accounts: accounts,
		log:      logger,
		store:    store,
		locks:    usecase.NewAccountLocks(),
		sync:     usecase.NewSynchronizer(logger),
		source:   feed.NewSource(),
		out:      out,
	}, nil
}

// Close releases the store and flushes the logger.
func (a *App) Close() {
	_ = a.store.Close()
	_ = a.log.Sync()
}

func (a *App) deps() usecase.Deps {
	return usecase.Deps{
		Store:  a.store,
		Logger: a.log,
		Locks:  a.locks,
		Now:    time.Now,
		Retry: func(ctx context.Context, op func(ctx context.Context) error) error {
			return transport.Retry(ctx, transport.DefaultRetryPolicy, op)
		},
		Options: a.settings.Sync.Options(),
	}
}

// account returns the configured account with id; zero selects the only
// account when exactly one is configured.
func (a *App) account(id int64) (account.Account, error) {
	if id == 0 {
		if len(a.accounts) == 1 {
			return a.accounts[0], nil
		}
		return account.Account{}, fmt.Errorf("%d accounts configured, choose one with --account", len(a.accounts))
	}
	for _, acc := range a.accounts {
		if acc.ID == id {
			return acc, nil
		}
	}
	return account.Account{}, fmt.Errorf("unknown account id: %d", id)
}

// repository builds the repository variant matching the account type.
func (a *App) repository(acc account.Account) (usecase.AccountRepository, error) {
	deps := a.deps()
	switch acc.Type {
	case account.Local:
		return usecase.NewLocalRepository(acc, deps, a.source), nil
	case account.NextcloudNews:
		return usecase.NewNextcloudRepository(acc, deps, nextcloud.NewClient(acc)), nil
	case account.FreshRSS:
		return usecase.NewFreshRSSRepository(acc, deps, freshrss.NewClient(acc, deps.Now)), nil
	case account.Fever:
		return usecase.NewFeverRepository(acc, deps, fever.NewClient(acc)), nil
	default:
		return nil, fmt.Errorf("unsupported account type %q", acc.Type)
	}
}

func (a *App) repositoryFor(id int64) (usecase.AccountRepository, error) {
	acc, err := a.account(id)
	if err != nil {
		return nil, err
	}
	return a.repository(acc)
}
