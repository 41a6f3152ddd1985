// Package config handles configuration loading and saving.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	"gopkg.in/yaml.v3"

	"github.com/tesso57/readsync/internal/application/settings"
)

// Store manages persisted application settings.
type Store struct {
	Settings   settings.Settings
	configPath string
}

// DefaultPath returns the config file used when none is given.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "readsync", "config.yaml"), nil
}

// Load loads the configuration from the specified path or default location.
func Load(customPath ...string) (*Store, error) {
	var configPath string
	if len(customPath) > 0 && customPath[0] != "" {
		configPath = customPath[0]
	} else {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		configPath = p
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	cfg := settings.Settings{}
	store := &Store{configPath: configPath}

	var options []kong.Option
	_, statErr := os.Stat(configPath)
	exists := statErr == nil
	if exists {
		options = append(options, kong.Configuration(yamlKongLoader, configPath))
	}

	parser, err := kong.New(&cfg, options...)
	if err != nil {
		return nil, err
	}
	if _, err := parser.Parse([]string{}); err != nil {
		return nil, err
	}

	// Accounts are a list of records, which kong flags cannot express.
	if exists {
		accounts, err := loadAccounts(configPath)
		if err != nil {
			return nil, err
		}
		cfg.Accounts = accounts
	} else {
		cfg.Accounts = settings.DefaultAccounts()
	}

	store.Settings = cfg
	store.Settings.DatabaseFile = strings.TrimSpace(store.Settings.DatabaseFile)
	if store.Settings.DatabaseFile == "" {
		store.Settings.DatabaseFile = filepath.Join(defaultDataHome(), "readsync", "readsync.db")
	}

	if !exists {
		if err := store.Save(); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
	}

	return store, nil
}

func loadAccounts(path string) ([]settings.AccountConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var doc struct {
		Accounts []settings.AccountConfig `yaml:"accounts"`
	}
	if err := yaml.NewDecoder(f).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read accounts: %w", err)
	}
	return doc.Accounts, nil
}

func defaultDataHome() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome != "" {
		return dataHome
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share")
}

func yamlKongLoader(r io.Reader) (kong.Resolver, error) {
	values := map[string]any{}
	if err := yaml.NewDecoder(r).Decode(&values); err != nil {
		if err == io.EOF {
			return nil, nil // Return nil resolver (no op)
		}
		return nil, err
	}

	var f kong.ResolverFunc = func(_ *kong.Context, _ *kong.Path, flag *kong.Flag) (any, error) {
		// Try various naming conventions
		names := []string{flag.Name, strings.ReplaceAll(flag.Name, "-", "_")}
		for _, name := range names {
			if v, ok := values[name]; ok {
				return v, nil
			}
			if v, ok := lookup(values, strings.Split(name, ".")); ok {
				return v, nil
			}
		}
		return nil, nil
	}
	return f, nil
}

// lookup walks nested maps along path.
func lookup(values map[string]any, path []string) (any, bool) {
	if len(path) < 2 {
		return nil, false
	}
	curr := values
	for _, part := range path[:len(path)-1] {
		next, ok := curr[part].(map[string]any)
		if !ok {
			return nil, false
		}
		curr = next
	}
	v, ok := curr[path[len(path)-1]]
	return v, ok
}

// Path returns the config file location.
func (s *Store) Path() string {
	return s.configPath
}

// AddAccount appends an account and saves the configuration.
func (s *Store) AddAccount(acc settings.AccountConfig) error {
	for _, existing := range s.Settings.Accounts {
		if existing.ID == acc.ID {
			return fmt.Errorf("account id %d already configured", acc.ID)
		}
	}
	s.Settings.Accounts = append(s.Settings.Accounts, acc)
	return s.Save()
}

// RemoveAccount deletes an account by id and saves the configuration.
func (s *Store) RemoveAccount(id int64) error {
	for i, acc := range s.Settings.Accounts {
		if acc.ID == id {
			s.Settings.Accounts = append(s.Settings.Accounts[:i], s.Settings.Accounts[i+1:]...)
			return s.Save()
		}
	}
	return fmt.Errorf("unknown account id: %d", id)
}

// Save writes the current settings to the config file.
func (s *Store) Save() error {
	f, err := os.OpenFile(s.configPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return yaml.NewEncoder(f).Encode(s.Settings)
}
