package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tesso57/readsync/internal/application/settings"
	"github.com/tesso57/readsync/internal/application/usecase"
	"github.com/tesso57/readsync/internal/domain/reading"
	"github.com/tesso57/readsync/internal/infrastructure/config"
)

const testRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Example Blog</title>
  <link>http://%[1]s/</link>
  <item>
    <title>Hello readers</title>
    <link>http://%[1]s/hello</link>
    <guid>http://%[1]s/hello</guid>
    <pubDate>Mon, 02 Jan 2006 15:04:05 +0000</pubDate>
  </item>
</channel>
</rss>`

func newTestApp(t *testing.T, accounts ...settings.AccountConfig) (*App, *bytes.Buffer) {
	t.Helper()
	if len(accounts) == 0 {
		accounts = settings.DefaultAccounts()
	}
	s := settings.Settings{
		DatabaseFile: filepath.Join(t.TempDir(), "readsync.db"),
		Sync:         settings.SyncConfig{Concurrency: 2, PerFeedTimeoutSeconds: 5, BatchTimeoutSeconds: 10},
		Accounts:     accounts,
	}
	out := &bytes.Buffer{}
	app, err := assemble(t.Context(), s, zap.NewNop(), out)
	require.NoError(t, err)
	t.Cleanup(app.Close)
	return app, out
}

func feedServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feed.xml" {
			w.Header().Set("Content-Type", "text/html")
			_, _ = fmt.Fprint(w, `<html><head><link rel="icon" href="/icon.png"></head></html>`)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = fmt.Fprintf(w, testRSS, r.Host)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestApp_RepositoryPerAccountType(t *testing.T) {
	app, _ := newTestApp(t,
		settings.AccountConfig{ID: 1, Type: "local"},
		settings.AccountConfig{ID: 2, Type: "nextcloud_news", URL: "https://cloud.example.com", Login: "me", Password: "pw"},
		settings.AccountConfig{ID: 3, Type: "freshrss", URL: "https://rss.example.com", Login: "me", Password: "pw"},
		settings.AccountConfig{ID: 4, Type: "fever", URL: "https://fever.example.com", Login: "me", Password: "pw"},
	)

	tests := []struct {
		id   int64
		want any
	}{
		{id: 1, want: &usecase.LocalRepository{}},
		{id: 2, want: &usecase.NextcloudRepository{}},
		{id: 3, want: &usecase.FreshRSSRepository{}},
		{id: 4, want: &usecase.FeverRepository{}},
	}
	for _, tt := range tests {
		repo, err := app.repositoryFor(tt.id)
		require.NoError(t, err)
		assert.IsType(t, tt.want, repo)
		assert.Equal(t, tt.id, repo.Account().ID)
	}

	_, err := app.repositoryFor(0)
	assert.Error(t, err, "several accounts need an explicit id")
	_, err = app.repositoryFor(9)
	assert.Error(t, err)
}

func TestApp_SingleAccountIsDefault(t *testing.T) {
	app, _ := newTestApp(t)

	acc, err := app.account(0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), acc.ID)
}

func TestCommands_LocalAccountWorkflow(t *testing.T) {
	srv := feedServer(t)
	app, out := newTestApp(t)
	ctx := t.Context()

	require.NoError(t, (&AddFolderCmd{Name: "Tech"}).Run(ctx, app))
	assert.Contains(t, out.String(), "Folder Tech ready")

	out.Reset()
	require.NoError(t, (&AddFeedCmd{URL: srv.URL + "/feed.xml", Folder: "Tech"}).Run(ctx, app))
	assert.Contains(t, out.String(), "Subscribed to")

	items, err := app.store.ListItems(ctx, usecase.ItemQuery{AccountID: 1})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Hello readers", items[0].Title)
	assert.False(t, items[0].IsRead)

	out.Reset()
	require.NoError(t, (&SyncCmd{}).Run(ctx, app))
	assert.Contains(t, out.String(), "Local: success")

	require.NoError(t, (&MarkCmd{Item: items[0].RemoteID, Read: true, Star: true}).Run(ctx, app))
	item, err := app.store.Item(ctx, 1, items[0].RemoteID)
	require.NoError(t, err)
	assert.True(t, item.IsRead)
	assert.True(t, item.IsStarred)

	out.Reset()
	require.NoError(t, (&ItemsCmd{Starred: true, Limit: 10}).Run(ctx, app))
	assert.Contains(t, out.String(), "Hello readers")

	out.Reset()
	require.NoError(t, (&ExportCmd{}).Run(ctx, app))
	assert.Contains(t, out.String(), `text="Tech"`)
	assert.Contains(t, out.String(), srv.URL+"/feed.xml")

	out.Reset()
	require.NoError(t, (&FeedsCmd{}).Run(ctx, app))
	assert.Contains(t, out.String(), "Example Blog")
	assert.Contains(t, out.String(), "Tech")

	assert.ErrorIs(t, (&RemoveFeedCmd{Feed: 999}).Run(ctx, app), reading.ErrNotFound)
	require.NoError(t, (&RemoveFeedCmd{Feed: items[0].FeedID}).Run(ctx, app))
	feeds, err := app.store.ListFeeds(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, feeds)
}

func TestMarkCmd_RequiresAChange(t *testing.T) {
	app, _ := newTestApp(t)

	err := (&MarkCmd{Item: "x"}).Run(t.Context(), app)
	assert.ErrorContains(t, err, "nothing to change")
}

func TestAccountsCmd_ListAddRemove(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)
	cfg, err := config.Load(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)

	app, out := newTestApp(t)
	app.config = cfg
	ctx := t.Context()

	add := &AccountsAddCmd{ID: 2, Type: "fever", URL: "https://fever.example.com", Login: "me", PasswordEnv: "READSYNC_FEVER_PASSWORD"}
	t.Setenv("READSYNC_FEVER_PASSWORD", "secret")
	require.NoError(t, add.Run(ctx, app))
	assert.Contains(t, out.String(), "Added account 2 (fever@fever.example.com)")
	assert.Error(t, add.Run(ctx, app), "duplicate id")

	out.Reset()
	require.NoError(t, (&AccountsListCmd{}).Run(ctx, app))
	assert.Contains(t, out.String(), "PENDING")
	assert.Contains(t, out.String(), "fever@fever.example.com")

	reloaded, err := config.Load(cfg.Path())
	require.NoError(t, err)
	assert.Len(t, reloaded.Settings.Accounts, 2)

	require.NoError(t, (&AccountsRemoveCmd{ID: 2}).Run(ctx, app))
	_, err = app.account(2)
	assert.Error(t, err)
	assert.Error(t, (&AccountsRemoveCmd{ID: 2}).Run(ctx, app))
}

func TestAccountsAddCmd_RejectsInvalidAccount(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)
	cfg, err := config.Load(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)

	app, _ := newTestApp(t)
	app.config = cfg

	err = (&AccountsAddCmd{ID: 3, Type: "nextcloud_news", URL: "ftp://cloud.example.com", Login: "me"}).Run(t.Context(), app)
	assert.ErrorIs(t, err, reading.ErrInvalidAccount)
	assert.Len(t, cfg.Settings.Accounts, 1)
}
