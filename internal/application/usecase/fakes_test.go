package usecase

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/tesso57/readsync/internal/domain/account"
	"github.com/tesso57/readsync/internal/domain/reading"
)

// memStore is an in-memory Store. Transactions work on a copy that replaces
// the live data only when fn succeeds.
type memStore struct {
	mu   sync.Mutex
	data *memData
	// failTx makes every InTx fail before running fn.
	failTx error
}

type memData struct {
	nextID  int64
	folders []reading.Folder
	feeds   []reading.Feed
	items   []reading.Item
	cursors map[int64]string
	pending map[int64][]reading.ItemState
}

func newMemStore() *memStore {
	return &memStore{data: &memData{cursors: map[int64]string{}, pending: map[int64][]reading.ItemState{}}}
}

func (d *memData) clone() *memData {
	out := &memData{
		nextID:  d.nextID,
		folders: slices.Clone(d.folders),
		feeds:   slices.Clone(d.feeds),
		items:   slices.Clone(d.items),
		cursors: map[int64]string{},
		pending: map[int64][]reading.ItemState{},
	}
	for k, v := range d.cursors {
		out.cursors[k] = v
	}
	for k, v := range d.pending {
		out.pending[k] = slices.Clone(v)
	}
	return out
}

func (s *memStore) view() *memData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.clone()
}

func (s *memStore) InTx(ctx context.Context, fn func(tx StoreTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTx != nil {
		return s.failTx
	}
	work := s.data.clone()
	if err := fn(&memTx{d: work}); err != nil {
		return err
	}
	s.data = work
	return nil
}

func (s *memStore) EnsureAccount(context.Context, account.Account) error { return nil }

func (s *memStore) DeleteAccount(_ context.Context, accountID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{d: s.data}
	tx.d.folders = slices.DeleteFunc(tx.d.folders, func(f reading.Folder) bool { return f.AccountID == accountID })
	tx.d.feeds = slices.DeleteFunc(tx.d.feeds, func(f reading.Feed) bool { return f.AccountID == accountID })
	tx.d.items = slices.DeleteFunc(tx.d.items, func(it reading.Item) bool { return it.AccountID == accountID })
	return nil
}

func (s *memStore) ListFolders(ctx context.Context, accountID int64) ([]reading.Folder, error) {
	return (&memTx{d: s.view()}).ListFolders(ctx, accountID)
}

func (s *memStore) ListFeeds(ctx context.Context, accountID int64) ([]reading.Feed, error) {
	return (&memTx{d: s.view()}).ListFeeds(ctx, accountID)
}

func (s *memStore) Item(ctx context.Context, accountID int64, remoteID string) (reading.Item, error) {
	return (&memTx{d: s.view()}).Item(ctx, accountID, remoteID)
}

func (s *memStore) ListItems(ctx context.Context, q ItemQuery) ([]reading.Item, error) {
	return (&memTx{d: s.view()}).ListItems(ctx, q)
}

func (s *memStore) SyncCursor(ctx context.Context, accountID int64) (string, error) {
	return (&memTx{d: s.view()}).SyncCursor(ctx, accountID)
}

func (s *memStore) PendingStates(ctx context.Context, accountID int64) ([]reading.ItemState, error) {
	return (&memTx{d: s.view()}).PendingStates(ctx, accountID)
}

type memTx struct {
	d *memData
}

func (t *memTx) id() int64 {
	t.d.nextID++
	return t.d.nextID
}

func (t *memTx) ListFolders(_ context.Context, accountID int64) ([]reading.Folder, error) {
	var out []reading.Folder
	for _, f := range t.d.folders {
		if f.AccountID == accountID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (t *memTx) ListFeeds(_ context.Context, accountID int64) ([]reading.Feed, error) {
	var out []reading.Feed
	for _, f := range t.d.feeds {
		if f.AccountID == accountID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (t *memTx) Item(_ context.Context, accountID int64, remoteID string) (reading.Item, error) {
	for _, it := range t.d.items {
		if it.AccountID == accountID && it.RemoteID == remoteID {
			return it, nil
		}
	}
	return reading.Item{}, reading.ErrNotFound
}

func (t *memTx) ListItems(_ context.Context, q ItemQuery) ([]reading.Item, error) {
	var out []reading.Item
	for _, it := range t.d.items {
		if it.AccountID != q.AccountID || (q.FeedID != 0 && it.FeedID != q.FeedID) {
			continue
		}
		if (q.UnreadOnly && it.IsRead) || (q.StarredOnly && !it.IsStarred) {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

func (t *memTx) SyncCursor(_ context.Context, accountID int64) (string, error) {
	return t.d.cursors[accountID], nil
}

func (t *memTx) PendingStates(_ context.Context, accountID int64) ([]reading.ItemState, error) {
	return slices.Clone(t.d.pending[accountID]), nil
}

func (t *memTx) UpsertFolder(_ context.Context, f reading.Folder) (reading.Folder, reading.Change, error) {
	for i, cur := range t.d.folders {
		if cur.AccountID == f.AccountID && cur.RemoteID == f.RemoteID {
			if cur.Name == f.Name {
				return cur, reading.Unchanged, nil
			}
			t.d.folders[i].Name = f.Name
			return t.d.folders[i], reading.Updated, nil
		}
	}
	f.ID = t.id()
	t.d.folders = append(t.d.folders, f)
	return f, reading.Inserted, nil
}

func (t *memTx) folderID(accountID int64, remoteID *string) *int64 {
	if remoteID == nil {
		return nil
	}
	for _, f := range t.d.folders {
		if f.AccountID == accountID && f.RemoteID == *remoteID {
			return new(f.ID)
		}
	}
	return nil
}

func (t *memTx) UpsertFeed(_ context.Context, f reading.Feed) (reading.Feed, reading.Change, error) {
	if f.RemoteID != "" {
		f.FolderID = t.folderID(f.AccountID, f.RemoteFolderID)
	}
	for i, cur := range t.d.feeds {
		if cur.AccountID != f.AccountID || cur.Key() != f.Key() {
			continue
		}
		f.ID = cur.ID
		if sameFeed(cur, f) {
			return cur, reading.Unchanged, nil
		}
		t.d.feeds[i] = f
		return f, reading.Updated, nil
	}
	f.ID = t.id()
	t.d.feeds = append(t.d.feeds, f)
	return f, reading.Inserted, nil
}

func sameFeed(a, b reading.Feed) bool {
	return a.URL == b.URL && a.Name == b.Name && a.SiteURL == b.SiteURL && a.IconURL == b.IconURL &&
		a.ETag == b.ETag && a.LastModified == b.LastModified && sameID(a.FolderID, b.FolderID)
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (t *memTx) UpsertItem(_ context.Context, it reading.Item) (reading.Change, error) {
	if it.FeedID == 0 {
		for _, f := range t.d.feeds {
			if f.AccountID == it.AccountID && f.RemoteID == it.FeedRemoteID {
				it.FeedID = f.ID
			}
		}
		if it.FeedID == 0 {
			return reading.Unchanged, reading.ErrNotFound
		}
	}
	for i, cur := range t.d.items {
		if cur.AccountID != it.AccountID || cur.RemoteID != it.RemoteID {
			continue
		}
		it.ID, it.IsRead, it.IsStarred = cur.ID, cur.IsRead, cur.IsStarred
		if cur == it {
			return reading.Unchanged, nil
		}
		t.d.items[i] = it
		return reading.Updated, nil
	}
	it.ID = t.id()
	t.d.items = append(t.d.items, it)
	return reading.Inserted, nil
}

func (t *memTx) DeleteFoldersNotIn(_ context.Context, accountID int64, remoteIDs []string) (int, error) {
	before := len(t.d.folders)
	var removed []int64
	t.d.folders = slices.DeleteFunc(t.d.folders, func(f reading.Folder) bool {
		drop := f.AccountID == accountID && !slices.Contains(remoteIDs, f.RemoteID)
		if drop {
			removed = append(removed, f.ID)
		}
		return drop
	})
	for i, f := range t.d.feeds {
		if f.FolderID != nil && slices.Contains(removed, *f.FolderID) {
			t.d.feeds[i].FolderID = nil
		}
	}
	return before - len(t.d.folders), nil
}

func (t *memTx) DeleteFeedsNotIn(_ context.Context, accountID int64, remoteIDs []string) (int, error) {
	before := len(t.d.feeds)
	var removed []int64
	t.d.feeds = slices.DeleteFunc(t.d.feeds, func(f reading.Feed) bool {
		drop := f.AccountID == accountID && !slices.Contains(remoteIDs, f.RemoteID)
		if drop {
			removed = append(removed, f.ID)
		}
		return drop
	})
	t.d.items = slices.DeleteFunc(t.d.items, func(it reading.Item) bool { return slices.Contains(removed, it.FeedID) })
	return before - len(t.d.feeds), nil
}

func (t *memTx) DeleteFeed(_ context.Context, accountID, feedID int64) error {
	t.d.feeds = slices.DeleteFunc(t.d.feeds, func(f reading.Feed) bool { return f.AccountID == accountID && f.ID == feedID })
	t.d.items = slices.DeleteFunc(t.d.items, func(it reading.Item) bool { return it.FeedID == feedID })
	return nil
}

func (t *memTx) UpdateItemState(_ context.Context, accountID int64, s reading.ItemState) (bool, error) {
	for i, it := range t.d.items {
		if it.AccountID != accountID || it.RemoteID != s.RemoteID {
			continue
		}
		if !s.Differs(it.IsRead, it.IsStarred) {
			return false, nil
		}
		if s.Read != nil {
			t.d.items[i].IsRead = *s.Read
		}
		if s.Starred != nil {
			t.d.items[i].IsStarred = *s.Starred
		}
		return true, nil
	}
	return false, reading.ErrNotFound
}

func (t *memTx) hasPending(accountID int64, remoteID string) bool {
	return slices.ContainsFunc(t.d.pending[accountID], func(p reading.ItemState) bool { return p.RemoteID == remoteID })
}

func (t *memTx) ApplyRemoteStates(ctx context.Context, accountID int64, states []reading.ItemState) (int, error) {
	changed := 0
	for _, s := range states {
		if t.hasPending(accountID, s.RemoteID) {
			continue
		}
		ok, err := t.UpdateItemState(ctx, accountID, s)
		if err != nil && !errors.Is(err, reading.ErrNotFound) {
			return changed, err
		}
		if ok {
			changed++
		}
	}
	return changed, nil
}

func (t *memTx) MergeRemoteState(ctx context.Context, accountID int64, snapshot reading.StateSnapshot) (int, error) {
	idx := snapshot.Index()
	var states []reading.ItemState
	for _, it := range t.d.items {
		if it.AccountID == accountID {
			states = append(states, idx.StateFor(it.RemoteID))
		}
	}
	return t.ApplyRemoteStates(ctx, accountID, states)
}

func (t *memTx) RecordPendingState(_ context.Context, accountID int64, s reading.ItemState) error {
	for i, p := range t.d.pending[accountID] {
		if p.RemoteID == s.RemoteID {
			t.d.pending[accountID][i] = p.Merge(s)
			return nil
		}
	}
	t.d.pending[accountID] = append(t.d.pending[accountID], s)
	return nil
}

func (t *memTx) ClearPendingStates(_ context.Context, accountID int64, pushed []reading.ItemState) error {
	t.d.pending[accountID] = slices.DeleteFunc(t.d.pending[accountID], func(p reading.ItemState) bool {
		return slices.ContainsFunc(pushed, p.Equal)
	})
	return nil
}

func (t *memTx) SetSyncCursor(_ context.Context, accountID int64, cursor string) error {
	t.d.cursors[accountID] = cursor
	return nil
}

// fakeRemote is a scripted server client for every remote protocol.
type fakeRemote struct {
	mu sync.Mutex

	loginErr error
	folders  []reading.Folder
	feeds    []reading.Feed
	items    []reading.Item
	next     string
	snapshot reading.StateSnapshot

	foldersErr  error
	feedsErr    error
	itemsErr    error
	stateErr    error
	markErr     error
	createErr   error
	createdFeed reading.Feed

	cursors       []string
	marked        []reading.StateChanges
	createdFolder []string
	createdIn     []*string
	deleted       []string
}

func (f *fakeRemote) Login(context.Context) error { return f.loginErr }

func (f *fakeRemote) Folders(context.Context) ([]reading.Folder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.folders), f.foldersErr
}

func (f *fakeRemote) Feeds(context.Context) ([]reading.Feed, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.feedsErr != nil {
		return nil, f.feedsErr
	}
	return slices.Clone(f.feeds), nil
}

func (f *fakeRemote) Items(_ context.Context, cursor string) ([]reading.Item, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursors = append(f.cursors, cursor)
	if f.itemsErr != nil {
		return nil, "", f.itemsErr
	}
	return slices.Clone(f.items), f.next, nil
}

func (f *fakeRemote) StateSnapshot(context.Context) (reading.StateSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot, f.stateErr
}

func (f *fakeRemote) MarkItems(_ context.Context, changes reading.StateChanges) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, changes)
	return f.markErr
}

func (f *fakeRemote) CreateFolder(_ context.Context, name string) (reading.Folder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdFolder = append(f.createdFolder, name)
	return reading.Folder{RemoteID: "f-" + name, Name: name}, nil
}

func (f *fakeRemote) CreateFeed(_ context.Context, feedURL string, remoteFolderID *string) (reading.Feed, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdIn = append(f.createdIn, remoteFolderID)
	if f.createErr != nil {
		return reading.Feed{}, f.createErr
	}
	feed := f.createdFeed
	if feed.RemoteID == "" {
		feed.RemoteID = "new-" + feedURL
	}
	feed.URL = feedURL
	return feed, nil
}

func (f *fakeRemote) DeleteFeed(_ context.Context, remoteID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, remoteID)
	return nil
}

func (f *fakeRemote) FolderRemoteID(name string) string { return "user/-/label/" + name }

// fakeLocal serves scripted feeds by URL.
type fakeLocal struct {
	mu       sync.Mutex
	feeds    map[string]FetchedFeed
	errs     map[string]error
	links    map[string][]string
	requests []string
}

func (f *fakeLocal) Fetch(ctx context.Context, feed reading.Feed) (FetchedFeed, error) {
	f.mu.Lock()
	f.requests = append(f.requests, feed.URL)
	fetched, ok := f.feeds[feed.URL]
	err := f.errs[feed.URL]
	f.mu.Unlock()
	if err != nil {
		return FetchedFeed{}, err
	}
	if !ok {
		<-ctx.Done()
		return FetchedFeed{}, &reading.TransportError{Op: "GET", URL: feed.URL, Err: ctx.Err()}
	}
	out := fetched
	out.Feed.ID = feed.ID
	out.Feed.AccountID = feed.AccountID
	out.Feed.FolderID = feed.FolderID
	if feed.Name != "" {
		out.Feed.Name = feed.Name
	}
	return out, nil
}

func (f *fakeLocal) Discover(_ context.Context, pageURL string) ([]string, error) {
	links, ok := f.links[pageURL]
	if !ok {
		return nil, reading.NewValidationError("url", "no feed found")
	}
	return links, nil
}
