// Package account defines accounts and their static capability registry.
package account

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tesso57/readsync/internal/domain/reading"
)

// Type identifies the synchronization protocol of an account.
type Type string

// Supported account types.
const (
	Local         Type = "local"
	NextcloudNews Type = "nextcloud_news"
	FreshRSS      Type = "freshrss"
	Fever         Type = "fever"
)

// Types lists every supported account type.
var Types = []Type{Local, NextcloudNews, FreshRSS, Fever}

// Config describes what an account type allows. It is pure data.
type Config struct {
	IsFeedURLReadOnly bool
	CanCreateFolder   bool
	AddNoFolder       bool
	UseSeparateState  bool
}

var registry = map[Type]Config{
	Local:         {IsFeedURLReadOnly: false, CanCreateFolder: true, AddNoFolder: true, UseSeparateState: false},
	NextcloudNews: {IsFeedURLReadOnly: true, CanCreateFolder: true, AddNoFolder: true, UseSeparateState: false},
	FreshRSS:      {IsFeedURLReadOnly: true, CanCreateFolder: false, AddNoFolder: false, UseSeparateState: true},
	Fever:         {IsFeedURLReadOnly: false, CanCreateFolder: false, AddNoFolder: true, UseSeparateState: true},
}

// ConfigFor returns the capability tuple of t.
func ConfigFor(t Type) (Config, bool) {
	cfg, ok := registry[t]
	return cfg, ok
}

// ParseType converts a config string into a Type.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := registry[t]; !ok {
		return "", fmt.Errorf("%w: unknown account type %q", reading.ErrInvalidAccount, s)
	}
	return t, nil
}

// Remote reports whether t talks to a remote service.
func (t Type) Remote() bool {
	return t != Local
}

// Account holds one configured account and its credentials.
type Account struct {
	ID       int64
	Type     Type
	Name     string
	URL      string
	Login    string
	Password string
}

// Config returns the capability tuple of the account type.
func (a Account) Config() Config {
	cfg, _ := ConfigFor(a.Type)
	return cfg
}

// Validate checks the account can be synchronized at all.
// Failures wrap reading.ErrInvalidAccount.
func (a Account) Validate() error {
	if _, ok := registry[a.Type]; !ok {
		return fmt.Errorf("%w: unknown account type %q", reading.ErrInvalidAccount, a.Type)
	}
	if !a.Type.Remote() {
		return nil
	}
	u, err := url.Parse(strings.TrimSpace(a.URL))
	if err != nil {
		return fmt.Errorf("%w: %v", reading.ErrInvalidAccount, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: base url %q must be http or https", reading.ErrInvalidAccount, a.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: base url %q has no host", reading.ErrInvalidAccount, a.URL)
	}
	if strings.TrimSpace(a.Login) == "" {
		return fmt.Errorf("%w: login is required for %s accounts", reading.ErrInvalidAccount, a.Type)
	}
	return nil
}

// BaseURL returns the account URL without trailing slashes.
func (a Account) BaseURL() string {
	return strings.TrimRight(strings.TrimSpace(a.URL), "/")
}

// DisplayName returns Name, or a name derived from the type and host.
func (a Account) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	if u, err := url.Parse(a.URL); err == nil && u.Host != "" {
		return string(a.Type) + "@" + u.Host
	}
	return string(a.Type)
}
