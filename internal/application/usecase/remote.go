package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/tesso57/readsync/internal/domain/account"
	"github.com/tesso57/readsync/internal/domain/reading"
)

// remoteRepository runs the phased synchronization shared by every server
// protocol. Variants add their own create and delete operations.
type remoteRepository struct {
	account account.Account
	deps    Deps
	source  RemoteSource
	// state is nil for protocols that embed state in items.
	state StateSource
	log   *zap.Logger
}

func newRemoteRepository(acc account.Account, deps Deps, source RemoteSource, state StateSource) remoteRepository {
	deps = deps.withDefaults()
	if !acc.Config().UseSeparateState {
		state = nil
	}
	return remoteRepository{
		account: acc,
		deps:    deps,
		source:  source,
		state:   state,
		log:     deps.Logger.Named("sync").With(zap.Int64("account_id", acc.ID), zap.String("account_type", string(acc.Type))),
	}
}

// Account returns the synchronized account.
func (r *remoteRepository) Account() account.Account {
	return r.account
}

// Synchronize pushes pending local state and then pulls folders, feeds,
// items and, for separate-state protocols, the state snapshot. Each phase
// commits on its own; a failed phase is recorded and the next one still runs.
func (r *remoteRepository) Synchronize(ctx context.Context) (reading.SyncResult, error) {
	result := reading.SyncResult{AccountID: r.account.ID, SyncID: uuid.NewString(), StartedAt: r.deps.Now()}
	defer func() { result.FinishedAt = r.deps.Now() }()
	log := r.log.With(zap.String("sync_id", result.SyncID))

	if err := r.account.Validate(); err != nil {
		return result, err
	}
	if err := r.source.Login(ctx); err != nil {
		if reading.IsAuth(err) {
			result.PhasesAttempted++
			result.AddPhaseError(reading.PhaseLogin, err)
			log.Warn("login rejected", zap.Error(err))
			return result, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		return result, fmt.Errorf("%w: %w", reading.ErrInvalidAccount, err)
	}

	failed := map[reading.Phase]bool{}
	phases := []struct {
		phase reading.Phase
		run   func(ctx context.Context, m *reading.Mutations) (bool, error)
	}{
		{reading.PhasePush, r.push},
		{reading.PhaseFolders, r.syncFolders},
		{reading.PhaseFeeds, r.syncFeeds},
		{reading.PhaseItems, func(ctx context.Context, m *reading.Mutations) (bool, error) {
			return r.syncItems(ctx, m, failed[reading.PhaseFeeds])
		}},
		{reading.PhaseState, r.syncState},
	}
	for _, p := range phases {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		attempted, err := p.run(ctx, &result.Mutations)
		if attempted {
			result.PhasesAttempted++
		}
		if err != nil {
			if isStoreFatal(err) {
				return result, err
			}
			log.Warn("phase failed", zap.String("phase", string(p.phase)), zap.Error(err))
			result.AddPhaseError(p.phase, err)
			failed[p.phase] = true
		}
	}

	log.Info("sync finished",
		zap.Stringer("status", result.Status()),
		zap.Int("inserted", result.Mutations.Inserted),
		zap.Int("updated", result.Mutations.Updated),
		zap.Int("deleted", result.Mutations.Deleted),
		zap.Int("state_changed", result.Mutations.StateChanged),
	)
	return result, nil
}

func (r *remoteRepository) push(ctx context.Context, _ *reading.Mutations) (bool, error) {
	pending, err := r.deps.Store.PendingStates(ctx, r.account.ID)
	if err != nil {
		return false, storeError(err)
	}
	if len(pending) == 0 {
		return false, nil
	}
	changes := reading.GroupStates(pending)
	err = r.deps.Retry(ctx, func(ctx context.Context) error {
		return r.source.MarkItems(ctx, changes)
	})
	if err != nil {
		return true, err
	}
	return true, storeError(r.write(ctx, func(tx StoreTx) error {
		return tx.ClearPendingStates(ctx, r.account.ID, pending)
	}))
}

func (r *remoteRepository) syncFolders(ctx context.Context, m *reading.Mutations) (bool, error) {
	folders, err := r.source.Folders(ctx)
	if err != nil {
		return true, err
	}
	return true, storeError(r.write(ctx, func(tx StoreTx) error {
		for _, f := range folders {
			f.AccountID = r.account.ID
			_, change, err := tx.UpsertFolder(ctx, f)
			if err != nil {
				return err
			}
			m.Count(change)
		}
		deleted, err := tx.DeleteFoldersNotIn(ctx, r.account.ID, remoteIDs(folders, func(f reading.Folder) string { return f.RemoteID }))
		if err != nil {
			return err
		}
		m.Deleted += deleted
		return nil
	}))
}

func (r *remoteRepository) syncFeeds(ctx context.Context, m *reading.Mutations) (bool, error) {
	feeds, err := r.source.Feeds(ctx)
	if err != nil {
		return true, err
	}
	return true, storeError(r.write(ctx, func(tx StoreTx) error {
		for _, f := range feeds {
			f.AccountID = r.account.ID
			f.FolderID = nil
			_, change, err := tx.UpsertFeed(ctx, f)
			if err != nil {
				return err
			}
			m.Count(change)
		}
		deleted, err := tx.DeleteFeedsNotIn(ctx, r.account.ID, remoteIDs(feeds, func(f reading.Feed) string { return f.RemoteID }))
		if err != nil {
			return err
		}
		m.Deleted += deleted
		return nil
	}))
}

// syncItems stores the items changed since the stored cursor. The cursor only
// advances when every fetched item was stored, so items of feeds that are not
// known yet (feeds phase failed, or a feed was added upstream in between) are
// fetched again by the next sync.
func (r *remoteRepository) syncItems(ctx context.Context, m *reading.Mutations, holdCursor bool) (bool, error) {
	cursor, err := r.deps.Store.SyncCursor(ctx, r.account.ID)
	if err != nil {
		return false, storeError(err)
	}
	items, next, err := r.source.Items(ctx, cursor)
	if err != nil {
		return true, err
	}
	return true, storeError(r.write(ctx, func(tx StoreTx) error {
		stored := make([]reading.Item, 0, len(items))
		skipped := 0
		for _, it := range items {
			it.AccountID = r.account.ID
			change, err := tx.UpsertItem(ctx, it)
			if errors.Is(err, reading.ErrNotFound) {
				r.log.Debug("item of unknown feed skipped", zap.String("item", it.RemoteID), zap.String("feed", it.FeedRemoteID))
				skipped++
				continue
			}
			if err != nil {
				return err
			}
			m.Count(change)
			stored = append(stored, it)
		}
		if r.state == nil {
			states := lo.Map(stored, func(it reading.Item, _ int) reading.ItemState { return it.State() })
			changed, err := tx.ApplyRemoteStates(ctx, r.account.ID, states)
			if err != nil {
				return err
			}
			m.StateChanged += changed
		}
		if holdCursor || skipped > 0 {
			r.log.Info("sync cursor kept", zap.String("cursor", cursor), zap.Int("skipped", skipped), zap.Bool("feeds_failed", holdCursor))
			return nil
		}
		if next != "" && next != cursor {
			return tx.SetSyncCursor(ctx, r.account.ID, next)
		}
		return nil
	}))
}

func (r *remoteRepository) syncState(ctx context.Context, m *reading.Mutations) (bool, error) {
	if r.state == nil {
		return false, nil
	}
	snapshot, err := r.state.StateSnapshot(ctx)
	if err != nil {
		return true, err
	}
	return true, storeError(r.write(ctx, func(tx StoreTx) error {
		changed, err := tx.MergeRemoteState(ctx, r.account.ID, snapshot)
		if err != nil {
			return err
		}
		m.StateChanged += changed
		return nil
	}))
}

// UpdateItemState applies the change locally and queues it for the next push.
func (r *remoteRepository) UpdateItemState(ctx context.Context, item reading.Item, read, starred *bool) error {
	s := reading.NewItemState(item.RemoteID, read, starred)
	if s.Empty() {
		return nil
	}
	return r.write(ctx, func(tx StoreTx) error {
		changed, err := tx.UpdateItemState(ctx, r.account.ID, s)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		return tx.RecordPendingState(ctx, r.account.ID, s)
	})
}

// deleteFeed unsubscribes upstream, then removes the feed and its items.
func (r *remoteRepository) deleteFeed(ctx context.Context, manager FeedManager, feed reading.Feed) error {
	if feed.RemoteID == "" {
		return reading.NewValidationError("feed", "feed has no remote id")
	}
	if err := manager.DeleteFeed(ctx, feed.RemoteID); err != nil {
		return err
	}
	return r.write(ctx, func(tx StoreTx) error {
		return tx.DeleteFeed(ctx, r.account.ID, feed.ID)
	})
}

// createFeed subscribes upstream and stores the returned feed. folder, when
// set, must carry the remote folder id and is stored along with the feed.
func (r *remoteRepository) createFeed(ctx context.Context, manager FeedManager, candidate FeedCandidate, folder *reading.Folder) (reading.Feed, error) {
	var remoteFolderID *string
	if folder != nil {
		remoteFolderID = new(folder.RemoteID)
	}
	created, err := manager.CreateFeed(ctx, candidate.URL, remoteFolderID)
	if err != nil {
		return reading.Feed{}, err
	}
	created.AccountID = r.account.ID
	if created.URL == "" {
		created.URL = candidate.URL
	}
	if candidate.Name != "" && created.Name == "" {
		created.Name = candidate.Name
	}
	if created.RemoteFolderID == nil {
		created.RemoteFolderID = remoteFolderID
	}

	var stored reading.Feed
	err = r.write(ctx, func(tx StoreTx) error {
		if folder != nil {
			f := *folder
			f.AccountID = r.account.ID
			if _, _, err := tx.UpsertFolder(ctx, f); err != nil {
				return err
			}
		}
		var err error
		stored, _, err = tx.UpsertFeed(ctx, created)
		return err
	})
	return stored, err
}

// existingFeed returns ErrFeedExists when url is already subscribed.
func existingFeed(ctx context.Context, store StoreReader, accountID int64, url string) error {
	feeds, err := store.ListFeeds(ctx, accountID)
	if err != nil {
		return err
	}
	if _, ok := lo.Find(feeds, func(f reading.Feed) bool { return f.URL == url }); ok {
		return fmt.Errorf("%w: %s", reading.ErrFeedExists, url)
	}
	return nil
}

// findFolder resolves the folder named by a candidate among the stored ones.
func findFolder(ctx context.Context, store StoreReader, accountID int64, candidate FeedCandidate) (reading.Folder, bool, error) {
	folders, err := store.ListFolders(ctx, accountID)
	if err != nil {
		return reading.Folder{}, false, err
	}
	if candidate.FolderID != nil {
		f, ok := lo.Find(folders, func(f reading.Folder) bool { return f.ID == *candidate.FolderID })
		if !ok {
			return reading.Folder{}, false, reading.NewValidationError("folder", "folder does not exist")
		}
		return f, true, nil
	}
	f, ok := lo.Find(folders, func(f reading.Folder) bool { return f.Name == candidate.FolderName })
	return f, ok, nil
}

func (r *remoteRepository) write(ctx context.Context, fn func(tx StoreTx) error) error {
	return write(ctx, r.deps, r.account.ID, fn)
}

func remoteIDs[T any](entities []T, id func(T) string) []string {
	return lo.Uniq(lo.FilterMap(entities, func(e T, _ int) (string, bool) {
		v := id(e)
		return v, v != ""
	}))
}

// storeFailure marks errors of the local store itself. They abort the sync.
type storeFailure struct{ err error }

func (e storeFailure) Error() string { return "local store: " + e.err.Error() }
func (e storeFailure) Unwrap() error { return e.err }

func storeError(err error) error {
	if err == nil {
		return nil
	}
	return storeFailure{err: err}
}

func isStoreFatal(err error) bool {
	var sf storeFailure
	return errors.As(err, &sf)
}
