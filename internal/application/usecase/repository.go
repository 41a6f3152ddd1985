package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tesso57/readsync/internal/domain/account"
	"github.com/tesso57/readsync/internal/domain/reading"
)

// AccountRepository synchronizes and edits one account.
type AccountRepository interface {
	Account() account.Account
	Synchronize(ctx context.Context) (reading.SyncResult, error)
	CreateFeed(ctx context.Context, candidate FeedCandidate) (reading.Feed, error)
	DeleteFeed(ctx context.Context, feed reading.Feed) error
	CreateFolder(ctx context.Context, name string) (reading.Folder, error)
	UpdateItemState(ctx context.Context, item reading.Item, read, starred *bool) error
}

// RetryFunc runs op, retrying transient failures.
type RetryFunc func(ctx context.Context, op func(ctx context.Context) error) error

// SyncOptions tunes synchronization.
type SyncOptions struct {
	// Concurrency bounds parallel feed fetches of local accounts.
	Concurrency    int
	PerFeedTimeout time.Duration
	BatchTimeout   time.Duration
	// MaxItemsPerFeed keeps only the newest items of a local feed; 0 keeps all.
	MaxItemsPerFeed int
	// MaxItemAge drops older local items; 0 keeps all.
	MaxItemAge time.Duration
}

// DefaultSyncOptions returns the options used when none are configured.
func DefaultSyncOptions() SyncOptions {
	return SyncOptions{
		Concurrency:     8,
		PerFeedTimeout:  time.Minute,
		BatchTimeout:    5 * time.Minute,
		MaxItemsPerFeed: 200,
	}
}

// Deps carries the collaborators shared by every repository.
type Deps struct {
	Store   Store
	Logger  *zap.Logger
	Locks   *AccountLocks
	Now     func() time.Time
	Retry   RetryFunc
	Options SyncOptions
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Locks == nil {
		d.Locks = NewAccountLocks()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Retry == nil {
		d.Retry = func(ctx context.Context, op func(ctx context.Context) error) error {
			return op(ctx)
		}
	}
	defaults := DefaultSyncOptions()
	if d.Options.Concurrency <= 0 {
		d.Options.Concurrency = defaults.Concurrency
	}
	if d.Options.PerFeedTimeout <= 0 {
		d.Options.PerFeedTimeout = defaults.PerFeedTimeout
	}
	if d.Options.BatchTimeout <= 0 {
		d.Options.BatchTimeout = defaults.BatchTimeout
	}
	return d
}

// AccountLocks serializes store writes per account. Different accounts
// never wait on each other.
type AccountLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewAccountLocks creates an empty lock table.
func NewAccountLocks() *AccountLocks {
	return &AccountLocks{locks: map[int64]*sync.Mutex{}}
}

// Lock acquires the lock of accountID and returns its release function.
func (l *AccountLocks) Lock(accountID int64) func() {
	l.mu.Lock()
	m, ok := l.locks[accountID]
	if !ok {
		m = new(sync.Mutex)
		l.locks[accountID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// write runs fn in one store transaction under the account lock.
func write(ctx context.Context, deps Deps, accountID int64, fn func(tx StoreTx) error) error {
	unlock := deps.Locks.Lock(accountID)
	defer unlock()
	return deps.Store.InTx(ctx, fn)
}

// NextcloudSource is what a Nextcloud News account needs from its client.
type NextcloudSource interface {
	RemoteSource
	FolderCreator
	FeedManager
}

// FreshRSSSource is what a FreshRSS account needs from its client.
type FreshRSSSource interface {
	RemoteSource
	StateSource
	FeedManager
	FolderNamer
}

// FeverSource is what a Fever account needs from its client.
type FeverSource interface {
	RemoteSource
	StateSource
}
