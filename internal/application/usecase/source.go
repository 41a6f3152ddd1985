// Package usecase contains application-level services.
package usecase

import (
	"context"

	"github.com/tesso57/readsync/internal/domain/reading"
)

// FetchedFeed is the outcome of fetching one local feed.
type FetchedFeed struct {
	Feed        reading.Feed
	Items       []reading.Item
	NotModified bool
}

// LocalSource abstracts RSS/Atom/JSON feed fetching for local accounts.
type LocalSource interface {
	Fetch(ctx context.Context, feed reading.Feed) (FetchedFeed, error)
	Discover(ctx context.Context, pageURL string) ([]string, error)
}

// RemoteSource abstracts a sync server API.
type RemoteSource interface {
	Login(ctx context.Context) error
	Folders(ctx context.Context) ([]reading.Folder, error)
	Feeds(ctx context.Context) ([]reading.Feed, error)
	// Items returns the items changed since cursor and the cursor to store
	// for the next sync. An empty cursor requests the initial item set.
	Items(ctx context.Context, cursor string) ([]reading.Item, string, error)
	MarkItems(ctx context.Context, changes reading.StateChanges) error
}

// StateSource is implemented by protocols that report read and starred
// state separately from item content.
type StateSource interface {
	StateSnapshot(ctx context.Context) (reading.StateSnapshot, error)
}

// FolderCreator is implemented by protocols with explicit folder creation.
type FolderCreator interface {
	CreateFolder(ctx context.Context, name string) (reading.Folder, error)
}

// FeedManager is implemented by protocols that can subscribe and unsubscribe.
type FeedManager interface {
	CreateFeed(ctx context.Context, feedURL string, remoteFolderID *string) (reading.Feed, error)
	DeleteFeed(ctx context.Context, remoteID string) error
}

// FolderNamer is implemented by protocols whose folders are labels created
// implicitly from their name.
type FolderNamer interface {
	FolderRemoteID(name string) string
}
