// Command readsync synchronizes feed reader accounts into a local store.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"
)

// CLI is the command line of readsync.
type CLI struct {
	Config   string `help:"Config file path (default ~/.config/readsync/config.yaml)." type:"path" short:"c"`
	LogLevel string `help:"Override the configured log level (debug/info/warn/error)."`

	Sync       SyncCmd       `cmd:"" help:"Synchronize accounts."`
	Import     ImportCmd     `cmd:"" help:"Subscribe an account to the feeds of an OPML file."`
	Export     ExportCmd     `cmd:"" help:"Write the subscriptions of an account as OPML."`
	AddFeed    AddFeedCmd    `cmd:"" name:"add-feed" help:"Subscribe an account to a feed."`
	RemoveFeed RemoveFeedCmd `cmd:"" name:"remove-feed" help:"Unsubscribe an account from a feed."`
	AddFolder  AddFolderCmd  `cmd:"" name:"add-folder" help:"Create a folder."`
	Feeds      FeedsCmd      `cmd:"" help:"List subscriptions."`
	Mark       MarkCmd       `cmd:"" help:"Change the read or starred state of an item."`
	Items      ItemsCmd      `cmd:"" help:"List stored items."`
	Discover   DiscoverCmd   `cmd:"" help:"Find the feeds behind a web page."`
	Accounts   AccountsCmd   `cmd:"" help:"Manage configured accounts."`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("readsync"),
		kong.Description("Synchronize feed reader accounts into a local store."),
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	app, err := newApp(ctx, cli.Config, cli.LogLevel, os.Stdout)
	kctx.FatalIfErrorf(err)
	err = kctx.Run(app)
	app.Close()
	kctx.FatalIfErrorf(err)
}
