package account

import (
	"errors"
	"testing"

	"github.com/tesso57/readsync/internal/domain/reading"
)

func TestConfigFor(t *testing.T) {
	tests := []struct {
		typ  Type
		want Config
	}{
		{Local, Config{IsFeedURLReadOnly: false, CanCreateFolder: true, AddNoFolder: true, UseSeparateState: false}},
		{NextcloudNews, Config{IsFeedURLReadOnly: true, CanCreateFolder: true, AddNoFolder: true, UseSeparateState: false}},
		{FreshRSS, Config{IsFeedURLReadOnly: true, CanCreateFolder: false, AddNoFolder: false, UseSeparateState: true}},
		{Fever, Config{IsFeedURLReadOnly: false, CanCreateFolder: false, AddNoFolder: true, UseSeparateState: true}},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			got, ok := ConfigFor(tt.typ)
			if !ok {
				t.Fatalf("no config for %s", tt.typ)
			}
			if got != tt.want {
				t.Errorf("ConfigFor(%s) = %+v, want %+v", tt.typ, got, tt.want)
			}
		})
	}

	if _, ok := ConfigFor("rss2email"); ok {
		t.Fatal("expected no config for an unknown type")
	}
	if len(Types) != 4 {
		t.Fatalf("expected 4 account types, got %d", len(Types))
	}
}

func TestParseType(t *testing.T) {
	got, err := ParseType(" FreshRSS ")
	if err != nil {
		t.Fatalf("ParseType: %v", err)
	}
	if got != FreshRSS {
		t.Fatalf("ParseType() = %q, want %q", got, FreshRSS)
	}

	if _, err := ParseType("inoreader"); !errors.Is(err, reading.ErrInvalidAccount) {
		t.Fatalf("expected ErrInvalidAccount, got %v", err)
	}
}

func TestAccountValidate(t *testing.T) {
	tests := []struct {
		name    string
		account Account
		wantErr bool
	}{
		{name: "local needs nothing", account: Account{Type: Local}},
		{name: "remote ok", account: Account{Type: NextcloudNews, URL: "https://cloud.example.com", Login: "me"}},
		{name: "bad scheme", account: Account{Type: Fever, URL: "ftp://x", Login: "me"}, wantErr: true},
		{name: "no host", account: Account{Type: FreshRSS, URL: "https://", Login: "me"}, wantErr: true},
		{name: "missing login", account: Account{Type: FreshRSS, URL: "https://rss.example.com"}, wantErr: true},
		{name: "unknown type", account: Account{Type: "x"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.account.Validate()
			if tt.wantErr {
				if !errors.Is(err, reading.ErrInvalidAccount) {
					t.Fatalf("expected ErrInvalidAccount, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
		})
	}
}

func TestAccountNames(t *testing.T) {
	a := Account{Type: Fever, URL: "https://rss.example.com/fever/"}
	if got := a.BaseURL(); got != "https://rss.example.com/fever" {
		t.Errorf("BaseURL() = %q", got)
	}
	if got := a.DisplayName(); got != "fever@rss.example.com" {
		t.Errorf("DisplayName() = %q", got)
	}
	a.Name = "Home"
	if got := a.DisplayName(); got != "Home" {
		t.Errorf("DisplayName() with name = %q", got)
	}
}
