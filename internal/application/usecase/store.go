package usecase

import (
	"context"

	"github.com/tesso57/readsync/internal/domain/account"
	"github.com/tesso57/readsync/internal/domain/reading"
)

// ItemQuery filters stored items.
type ItemQuery struct {
	AccountID   int64
	FeedID      int64
	FolderID    int64
	UnreadOnly  bool
	StarredOnly bool
	Limit       int
}

// StoreReader reads the local store.
type StoreReader interface {
	ListFolders(ctx context.Context, accountID int64) ([]reading.Folder, error)
	ListFeeds(ctx context.Context, accountID int64) ([]reading.Feed, error)
	Item(ctx context.Context, accountID int64, remoteID string) (reading.Item, error)
	ListItems(ctx context.Context, q ItemQuery) ([]reading.Item, error)
	SyncCursor(ctx context.Context, accountID int64) (string, error)
	PendingStates(ctx context.Context, accountID int64) ([]reading.ItemState, error)
}

// StoreTx writes to the local store inside one transaction.
type StoreTx interface {
	StoreReader

	// UpsertFolder matches on (account, remote id).
	UpsertFolder(ctx context.Context, f reading.Folder) (reading.Folder, reading.Change, error)
	// UpsertFeed matches on (account, remote id), or on (account, url) for
	// local feeds. RemoteFolderID is resolved to a local folder.
	UpsertFeed(ctx context.Context, f reading.Feed) (reading.Feed, reading.Change, error)
	// UpsertItem matches on (account, remote id). FeedRemoteID is resolved
	// when FeedID is zero; an unknown feed yields reading.ErrNotFound.
	// Read and starred flags are only written on insert.
	UpsertItem(ctx context.Context, it reading.Item) (reading.Change, error)

	DeleteFoldersNotIn(ctx context.Context, accountID int64, remoteIDs []string) (int, error)
	DeleteFeedsNotIn(ctx context.Context, accountID int64, remoteIDs []string) (int, error)
	DeleteFeed(ctx context.Context, accountID, feedID int64) error

	// UpdateItemState applies a user change and reports whether the row changed.
	UpdateItemState(ctx context.Context, accountID int64, s reading.ItemState) (bool, error)
	// ApplyRemoteStates applies server states, skipping items with pending
	// local changes. It returns the number of rows changed.
	ApplyRemoteStates(ctx context.Context, accountID int64, states []reading.ItemState) (int, error)
	// MergeRemoteState reconciles every stored item with a full snapshot,
	// skipping items with pending local changes.
	MergeRemoteState(ctx context.Context, accountID int64, snapshot reading.StateSnapshot) (int, error)

	// RecordPendingState merges s into the pending change of the item.
	RecordPendingState(ctx context.Context, accountID int64, s reading.ItemState) error
	// ClearPendingStates removes pending changes still equal to pushed.
	ClearPendingStates(ctx context.Context, accountID int64, pushed []reading.ItemState) error

	SetSyncCursor(ctx context.Context, accountID int64, cursor string) error
}

// Store is the transactional local store.
type Store interface {
	StoreReader
	InTx(ctx context.Context, fn func(tx StoreTx) error) error
	EnsureAccount(ctx context.Context, acc account.Account) error
	DeleteAccount(ctx context.Context, accountID int64) error
}
