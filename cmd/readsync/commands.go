package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"go.uber.org/multierr"

	"github.com/tesso57/readsync/internal/application/usecase"
	"github.com/tesso57/readsync/internal/domain/reading"
	"github.com/tesso57/readsync/internal/infrastructure/opml"
	"github.com/tesso57/readsync/internal/presentation/progress"
	"github.com/tesso57/readsync/internal/presentation/textutil"
)

// SyncCmd synchronizes accounts.
type SyncCmd struct {
	Account []int64 `help:"Accounts to synchronize (default all)." short:"a"`
}

// Run executes the command.
func (c *SyncCmd) Run(ctx context.Context, app *App) error {
	accounts := app.accounts
	if len(c.Account) > 0 {
		accounts = accounts[:0:0]
		for _, id := range c.Account {
			acc, err := app.account(id)
			if err != nil {
				return err
			}
			accounts = append(accounts, acc)
		}
	}
	repos := make([]usecase.AccountRepository, 0, len(accounts))
	for _, acc := range accounts {
		repo, err := app.repository(acc)
		if err != nil {
			return err
		}
		repos = append(repos, repo)
	}

	var results []usecase.AccountSync
	err := progress.Run(ctx, app.out, fmt.Sprintf("Synchronizing %d account(s)", len(repos)),
		func(chan<- usecase.Progress) (string, error) {
			results = app.sync.SynchronizeAll(ctx, repos)
			return fmt.Sprintf("%d account(s) synchronized", len(results)), nil
		})
	if err != nil {
		return err
	}

	var fatal error
	for _, r := range results {
		writeSyncResult(app.out, r)
		if r.Err != nil {
			fatal = multierr.Append(fatal, fmt.Errorf("%s: %w", r.Account.DisplayName(), r.Err))
		}
	}
	return fatal
}

func writeSyncResult(w io.Writer, r usecase.AccountSync) {
	name := r.Account.DisplayName()
	if r.Err != nil {
		_, _ = fmt.Fprintf(w, "%s: error: %v\n", name, r.Err)
		return
	}
	m := r.Result.Mutations
	_, _ = fmt.Fprintf(w, "%s: %s (+%d ~%d -%d, %d state changes)\n",
		name, r.Result.Status(), m.Inserted, m.Updated, m.Deleted, m.StateChanged)
	if r.Result.NeedsReauth {
		_, _ = fmt.Fprintf(w, "  credentials were rejected, update the account password\n")
	}
	for _, line := range r.Result.ErrorSummaries() {
		_, _ = fmt.Fprintf(w, "  %s\n", line)
	}
}

// ImportCmd subscribes an account to the feeds of an OPML file.
type ImportCmd struct {
	File    string `arg:"" type:"existingfile" help:"OPML file."`
	Account int64  `help:"Account id." short:"a"`
}

// Run executes the command.
func (c *ImportCmd) Run(ctx context.Context, app *App) error {
	repo, err := app.repositoryFor(c.Account)
	if err != nil {
		return err
	}
	f, err := os.Open(c.File)
	if err != nil {
		return err
	}
	subs, err := opml.Decode(f)
	_ = f.Close()
	if err != nil {
		return err
	}

	svc := usecase.NewOPMLService(app.store, app.log)
	var result usecase.ImportResult
	err = progress.Run(ctx, app.out, fmt.Sprintf("Importing %d feed(s)", len(subs)),
		func(updates chan<- usecase.Progress) (string, error) {
			var err error
			result, err = svc.Import(ctx, repo, subs, updates)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d imported, %d already subscribed, %d failed, %d folder(s) created",
				len(result.Imported), len(result.Existing), len(result.Failed), result.FoldersCreated), nil
		})
	if err != nil {
		return err
	}
	for _, f := range result.Failed {
		_, _ = fmt.Fprintf(app.out, "  %s: %v\n", f.URL, f.Err)
	}
	return nil
}

// ExportCmd writes the subscriptions of an account as OPML.
type ExportCmd struct {
	Output  string `help:"Output file (default stdout)." short:"o" type:"path"`
	Account int64  `help:"Account id." short:"a"`
}

// Run executes the command.
func (c *ExportCmd) Run(ctx context.Context, app *App) (err error) {
	acc, err := app.account(c.Account)
	if err != nil {
		return err
	}
	groups, unfiled, err := usecase.NewOPMLService(app.store, app.log).Export(ctx, acc.ID)
	if err != nil {
		return err
	}

	w := app.out
	if c.Output != "" {
		f, createErr := os.Create(c.Output)
		if createErr != nil {
			return createErr
		}
		defer func() { err = multierr.Append(err, f.Close()) }()
		w = f
	}
	return opml.Encode(w, "readsync: "+acc.DisplayName(), groups, unfiled)
}

// AddFeedCmd subscribes an account to a feed.
type AddFeedCmd struct {
	URL     string `arg:"" help:"Feed or web page URL."`
	Name    string `help:"Display name."`
	Folder  string `help:"Folder name; created when missing." short:"f"`
	Account int64  `help:"Account id." short:"a"`
}

// Run executes the command.
func (c *AddFeedCmd) Run(ctx context.Context, app *App) error {
	repo, err := app.repositoryFor(c.Account)
	if err != nil {
		return err
	}
	feed, err := repo.CreateFeed(ctx, usecase.FeedCandidate{URL: c.URL, Name: c.Name, FolderName: c.Folder})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(app.out, "Subscribed to %s (%s)\n", feed.Name, feed.URL)
	return err
}

// AddFolderCmd creates a folder.
type AddFolderCmd struct {
	Name    string `arg:"" help:"Folder name."`
	Account int64  `help:"Account id." short:"a"`
}

// Run executes the command.
func (c *AddFolderCmd) Run(ctx context.Context, app *App) error {
	repo, err := app.repositoryFor(c.Account)
	if err != nil {
		return err
	}
	folder, err := repo.CreateFolder(ctx, c.Name)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(app.out, "Folder %s ready\n", folder.Name)
	return err
}

// MarkCmd changes the read or starred state of an item.
type MarkCmd struct {
	Item    string `arg:"" help:"Item id."`
	Read    bool   `help:"Mark read." xor:"read"`
	Unread  bool   `help:"Mark unread." xor:"read"`
	Star    bool   `help:"Star." xor:"star"`
	Unstar  bool   `help:"Remove the star." xor:"star"`
	Account int64  `help:"Account id." short:"a"`
}

func (c *MarkCmd) state() (read, starred *bool) {
	switch {
	case c.Read:
		read = new(true)
	case c.Unread:
		read = new(false)
	}
	switch {
	case c.Star:
		starred = new(true)
	case c.Unstar:
		starred = new(false)
	}
	return read, starred
}

// Run executes the command.
func (c *MarkCmd) Run(ctx context.Context, app *App) error {
	read, starred := c.state()
	if read == nil && starred == nil {
		return errors.New("nothing to change: pass --read, --unread, --star or --unstar")
	}
	repo, err := app.repositoryFor(c.Account)
	if err != nil {
		return err
	}
	item, err := app.store.Item(ctx, repo.Account().ID, c.Item)
	if err != nil {
		return err
	}
	return repo.UpdateItemState(ctx, item, read, starred)
}

// ItemsCmd lists stored items.
type ItemsCmd struct {
	Account int64 `help:"Account id." short:"a"`
	Feed    int64 `help:"Only items of this feed id."`
	Folder  int64 `help:"Only items of this folder id."`
	Unread  bool  `help:"Only unread items."`
	Starred bool  `help:"Only starred items."`
	Limit   int   `help:"Maximum number of items." default:"20"`
}

// Run executes the command.
func (c *ItemsCmd) Run(ctx context.Context, app *App) error {
	acc, err := app.account(c.Account)
	if err != nil {
		return err
	}
	items, err := app.store.ListItems(ctx, usecase.ItemQuery{
		AccountID:   acc.ID,
		FeedID:      c.Feed,
		FolderID:    c.Folder,
		UnreadOnly:  c.Unread,
		StarredOnly: c.Starred,
		Limit:       c.Limit,
	})
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(items))
	for _, it := range items {
		rows = append(rows, []string{it.RemoteID, itemFlags(it), published(it), textutil.Cell(it.Title, 72)})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "", "PUBLISHED", "TITLE").
		Rows(rows...)
	_, err = fmt.Fprintln(app.out, t.String())
	return err
}

func itemFlags(it reading.Item) string {
	var b strings.Builder
	if !it.IsRead {
		b.WriteString("●")
	}
	if it.IsStarred {
		b.WriteString("★")
	}
	return b.String()
}

func published(it reading.Item) string {
	if it.PubDate.IsZero() {
		return ""
	}
	return it.PubDate.Format("2006-01-02 15:04")
}

// DiscoverCmd finds the feeds behind a web page.
type DiscoverCmd struct {
	URL string `arg:"" help:"Web page URL."`
}

// Run executes the command.
func (c *DiscoverCmd) Run(ctx context.Context, app *App) error {
	links, err := app.source.Discover(ctx, c.URL)
	if err != nil {
		return err
	}
	for _, link := range links {
		if _, err := fmt.Fprintln(app.out, link); err != nil {
			return err
		}
	}
	return nil
}

// FeedsCmd lists the subscriptions of an account.
type FeedsCmd struct {
	Account int64 `help:"Account id." short:"a"`
}

// Run executes the command.
func (c *FeedsCmd) Run(ctx context.Context, app *App) error {
	acc, err := app.account(c.Account)
	if err != nil {
		return err
	}
	folders, err := app.store.ListFolders(ctx, acc.ID)
	if err != nil {
		return err
	}
	feeds, err := app.store.ListFeeds(ctx, acc.ID)
	if err != nil {
		return err
	}
	names := make(map[int64]string, len(folders))
	for _, f := range folders {
		names[f.ID] = f.Name
	}

	rows := make([][]string, 0, len(feeds))
	for _, f := range feeds {
		folder := ""
		if f.FolderID != nil {
			folder = names[*f.FolderID]
		}
		rows = append(rows, []string{strconv.FormatInt(f.ID, 10), folder, textutil.Cell(f.Name, 40), f.URL})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "FOLDER", "NAME", "URL").
		Rows(rows...)
	_, err = fmt.Fprintln(app.out, t.String())
	return err
}

// RemoveFeedCmd unsubscribes an account from a feed.
type RemoveFeedCmd struct {
	Feed    int64 `arg:"" help:"Feed id, as listed by the feeds command."`
	Account int64 `help:"Account id." short:"a"`
}

// Run executes the command.
func (c *RemoveFeedCmd) Run(ctx context.Context, app *App) error {
	repo, err := app.repositoryFor(c.Account)
	if err != nil {
		return err
	}
	feeds, err := app.store.ListFeeds(ctx, repo.Account().ID)
	if err != nil {
		return err
	}
	for _, f := range feeds {
		if f.ID != c.Feed {
			continue
		}
		if err := repo.DeleteFeed(ctx, f); err != nil {
			return err
		}
		_, err = fmt.Fprintf(app.out, "Unsubscribed from %s\n", f.Name)
		return err
	}
	return fmt.Errorf("feed %d: %w", c.Feed, reading.ErrNotFound)
}
