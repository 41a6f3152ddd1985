// Package settings defines application-level configuration data.
package settings

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tesso57/readsync/internal/application/usecase"
	"github.com/tesso57/readsync/internal/domain/account"
	"github.com/tesso57/readsync/internal/domain/reading"
)

// LogConfig defines logging output.
type LogConfig struct {
	Level  string `yaml:"level" kong:"help='Log level (debug/info/warn/error)',default='info'"`
	Format string `yaml:"format" kong:"help='Log format (console/json)',default='console'"`
}

// SyncConfig tunes synchronization.
type SyncConfig struct {
	Concurrency           int `yaml:"concurrency" kong:"help='Parallel feed fetches of local accounts',default='8'"`
	PerFeedTimeoutSeconds int `yaml:"per_feed_timeout_seconds" kong:"help='Timeout of one feed fetch',default='60'"`
	BatchTimeoutSeconds   int `yaml:"batch_timeout_seconds" kong:"help='Timeout of one local fetch batch',default='300'"`
	MaxItemsPerFeed       int `yaml:"max_items_per_feed" kong:"help='Newest items kept per local feed (0 keeps all)',default='200'"`
	MaxItemAgeDays        int `yaml:"max_item_age_days" kong:"help='Drop older local items (0 keeps all)',default='0'"`
}

// Options converts the config into usecase options.
func (c SyncConfig) Options() usecase.SyncOptions {
	return usecase.SyncOptions{
		Concurrency:     c.Concurrency,
		PerFeedTimeout:  time.Duration(c.PerFeedTimeoutSeconds) * time.Second,
		BatchTimeout:    time.Duration(c.BatchTimeoutSeconds) * time.Second,
		MaxItemsPerFeed: c.MaxItemsPerFeed,
		MaxItemAge:      time.Duration(c.MaxItemAgeDays) * 24 * time.Hour,
	}
}

// AccountConfig is one configured account. PasswordEnv names an environment
// variable holding the password and takes precedence over Password.
type AccountConfig struct {
	ID          int64  `yaml:"id"`
	Type        string `yaml:"type"`
	Name        string `yaml:"name,omitempty"`
	URL         string `yaml:"url,omitempty"`
	Login       string `yaml:"login,omitempty"`
	Password    string `yaml:"password,omitempty"`
	PasswordEnv string `yaml:"password_env,omitempty"`
}

// Account builds the domain account.
func (c AccountConfig) Account() (account.Account, error) {
	t, err := account.ParseType(c.Type)
	if err != nil {
		return account.Account{}, err
	}
	password := c.Password
	if c.PasswordEnv != "" {
		v, ok := os.LookupEnv(c.PasswordEnv)
		if !ok {
			return account.Account{}, fmt.Errorf("%w: environment variable %s is not set", reading.ErrInvalidAccount, c.PasswordEnv)
		}
		password = v
	}
	return account.Account{
		ID:       c.ID,
		Type:     t,
		Name:     strings.TrimSpace(c.Name),
		URL:      strings.TrimSpace(c.URL),
		Login:    strings.TrimSpace(c.Login),
		Password: password,
	}, nil
}

// Settings represents the application configuration.
type Settings struct {
	DatabaseFile string          `yaml:"database_file" kong:"help='SQLite database path'"`
	Log          LogConfig       `yaml:"log" kong:"embed,prefix='log.'"`
	Sync         SyncConfig      `yaml:"sync" kong:"embed,prefix='sync.'"`
	Accounts     []AccountConfig `yaml:"accounts" kong:"-"`
}

// DefaultAccounts is written to a new config file.
func DefaultAccounts() []AccountConfig {
	return []AccountConfig{{ID: 1, Type: string(account.Local), Name: "Local"}}
}

// ResolveAccounts builds every configured account. IDs must be positive and unique.
func (s Settings) ResolveAccounts() ([]account.Account, error) {
	seen := map[int64]bool{}
	out := make([]account.Account, 0, len(s.Accounts))
	for i, c := range s.Accounts {
		if c.ID <= 0 {
			return nil, fmt.Errorf("accounts[%d]: id must be positive", i)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("accounts[%d]: duplicate id %d", i, c.ID)
		}
		seen[c.ID] = true
		acc, err := c.Account()
		if err != nil {
			return nil, fmt.Errorf("accounts[%d]: %w", i, err)
		}
		out = append(out, acc)
	}
	return out, nil
}
