package usecase

import (
	"errors"
	"strings"
	"testing"

	"github.com/tesso57/readsync/internal/domain/account"
	"github.com/tesso57/readsync/internal/domain/reading"
)

func TestValidateFeedCandidate(t *testing.T) {
	local, _ := account.ConfigFor(account.Local)
	freshRSS, _ := account.ConfigFor(account.FreshRSS)

	tests := []struct {
		name      string
		candidate FeedCandidate
		cfg       account.Config
		wantField string
	}{
		{name: "valid", candidate: FeedCandidate{URL: "https://example.com/feed"}, cfg: local},
		{name: "empty url", candidate: FeedCandidate{}, cfg: local, wantField: "url"},
		{name: "whitespace", candidate: FeedCandidate{URL: "https://example.com/a feed"}, cfg: local, wantField: "url"},
		{name: "not http", candidate: FeedCandidate{URL: "ftp://example.com/feed"}, cfg: local, wantField: "url"},
		{name: "relative", candidate: FeedCandidate{URL: "/feed.xml"}, cfg: local, wantField: "url"},
		{name: "long name", candidate: FeedCandidate{URL: "https://example.com/feed", Name: strings.Repeat("x", 513)}, cfg: local, wantField: "name"},
		{name: "folder required", candidate: FeedCandidate{URL: "https://example.com/feed"}, cfg: freshRSS, wantField: "folder"},
		{name: "folder given", candidate: FeedCandidate{URL: "https://example.com/feed", FolderName: "Tech"}, cfg: freshRSS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFeedCandidate(tt.candidate, tt.cfg)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("ValidateFeedCandidate() error = %v", err)
				}
				return
			}
			var vErr *reading.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("ValidateFeedCandidate() error = %v, want ValidationError", err)
			}
			if vErr.Field != tt.wantField {
				t.Errorf("field = %q, want %q", vErr.Field, tt.wantField)
			}
		})
	}
}

func TestValidateFolderName(t *testing.T) {
	nextcloud, _ := account.ConfigFor(account.NextcloudNews)
	fever, _ := account.ConfigFor(account.Fever)

	if err := ValidateFolderName("Tech", nextcloud); err != nil {
		t.Fatalf("ValidateFolderName() error = %v", err)
	}
	if err := ValidateFolderName("", nextcloud); !reading.IsValidation(err) {
		t.Errorf("empty name error = %v, want ValidationError", err)
	}
	if err := ValidateFolderName(strings.Repeat("x", 257), nextcloud); !reading.IsValidation(err) {
		t.Errorf("long name error = %v, want ValidationError", err)
	}
	if err := ValidateFolderName("Tech", fever); !reading.IsValidation(err) {
		t.Errorf("fever error = %v, want ValidationError", err)
	}
}

func TestFeedCandidateNormalized(t *testing.T) {
	got := FeedCandidate{URL: " https://example.com/feed\n", Name: " A ", FolderName: "\tTech "}.Normalized()
	want := FeedCandidate{URL: "https://example.com/feed", Name: "A", FolderName: "Tech"}
	if got.URL != want.URL || got.Name != want.Name || got.FolderName != want.FolderName {
		t.Errorf("Normalized() = %+v, want %+v", got, want)
	}
	if !got.HasFolder() {
		t.Error("HasFolder() = false, want true")
	}
}
