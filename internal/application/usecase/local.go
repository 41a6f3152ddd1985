package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tesso57/readsync/internal/domain/account"
	"github.com/tesso57/readsync/internal/domain/reading"
)

// LocalRepository keeps plain RSS/Atom/JSON subscriptions. Every feed is
// fetched directly; there is no server and nothing to push.
type LocalRepository struct {
	account account.Account
	deps    Deps
	source  LocalSource
	log     *zap.Logger
}

// NewLocalRepository constructs a LocalRepository.
func NewLocalRepository(acc account.Account, deps Deps, source LocalSource) *LocalRepository {
	deps = deps.withDefaults()
	return &LocalRepository{
		account: acc,
		deps:    deps,
		source:  source,
		log:     deps.Logger.Named("sync").With(zap.Int64("account_id", acc.ID), zap.String("account_type", string(acc.Type))),
	}
}

// Account returns the synchronized account.
func (r *LocalRepository) Account() account.Account {
	return r.account
}

type fetchOutcome struct {
	feed     reading.Feed
	fetched  FetchedFeed
	err      error
	timedOut bool
}

// Synchronize fetches every feed concurrently, then stores the results in
// one transaction. A failing feed is recorded and the others still commit.
func (r *LocalRepository) Synchronize(ctx context.Context) (reading.SyncResult, error) {
	result := reading.SyncResult{AccountID: r.account.ID, SyncID: uuid.NewString(), StartedAt: r.deps.Now()}
	defer func() { result.FinishedAt = r.deps.Now() }()
	log := r.log.With(zap.String("sync_id", result.SyncID))

	if err := r.account.Validate(); err != nil {
		return result, err
	}
	feeds, err := r.deps.Store.ListFeeds(ctx, r.account.ID)
	if err != nil {
		return result, err
	}
	result.FeedsAttempted = len(feeds)
	if len(feeds) == 0 {
		return result, nil
	}

	outcomes := r.fetchAll(ctx, feeds)
	if err := ctx.Err(); err != nil {
		return result, err
	}
	result.Fetch = report(outcomes)

	cutoff := time.Time{}
	if r.deps.Options.MaxItemAge > 0 {
		cutoff = r.deps.Now().Add(-r.deps.Options.MaxItemAge)
	}

	removed := map[int64]bool{}
	err = write(ctx, r.deps, r.account.ID, func(tx StoreTx) error {
		// Feeds deleted while their fetch was in flight stay deleted.
		current, err := tx.ListFeeds(ctx, r.account.ID)
		if err != nil {
			return err
		}
		live := lo.SliceToMap(current, func(f reading.Feed) (int64, bool) { return f.ID, true })
		for _, o := range outcomes {
			if !live[o.feed.ID] {
				removed[o.feed.ID] = true
				continue
			}
			if o.err != nil || o.fetched.NotModified {
				continue
			}
			feed, change, err := tx.UpsertFeed(ctx, o.fetched.Feed)
			if err != nil {
				return err
			}
			result.Mutations.Count(change)
			for _, it := range r.retain(o.fetched.Items, cutoff) {
				it.AccountID = r.account.ID
				it.FeedID = feed.ID
				change, err := tx.UpsertItem(ctx, it)
				if err != nil {
					return err
				}
				result.Mutations.Count(change)
			}
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	for _, o := range outcomes {
		if o.err == nil || removed[o.feed.ID] {
			continue
		}
		log.Warn("feed failed", zap.String("feed_url", o.feed.URL), zap.Bool("timed_out", o.timedOut), zap.Error(o.err))
		result.AddFeedError(o.feed, o.err)
	}
	log.Info("sync finished",
		zap.Stringer("status", result.Status()),
		zap.Int("feeds", result.Fetch.Requested),
		zap.Int("failed", result.Fetch.Failed),
		zap.Int("timed_out", result.Fetch.TimedOut),
		zap.Int("inserted", result.Mutations.Inserted),
		zap.Int("updated", result.Mutations.Updated),
	)
	return result, nil
}

func (r *LocalRepository) fetchAll(ctx context.Context, feeds []reading.Feed) []fetchOutcome {
	batchCtx, cancel := context.WithTimeout(ctx, r.deps.Options.BatchTimeout)
	defer cancel()

	outcomes := make([]fetchOutcome, len(feeds))
	var g errgroup.Group
	g.SetLimit(r.deps.Options.Concurrency)
	for i, feed := range feeds {
		g.Go(func() error {
			feedCtx, cancelFeed := context.WithTimeout(batchCtx, r.deps.Options.PerFeedTimeout)
			defer cancelFeed()

			fetched, err := r.source.Fetch(feedCtx, feed)
			outcomes[i] = fetchOutcome{feed: feed, fetched: fetched, err: err}
			if err != nil && (errors.Is(feedCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded)) {
				outcomes[i].timedOut = true
			}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func report(outcomes []fetchOutcome) reading.FetchReport {
	rep := reading.FetchReport{Requested: len(outcomes)}
	for _, o := range outcomes {
		switch {
		case o.timedOut:
			rep.TimedOut++
		case o.err != nil:
			rep.Failed++
		case o.fetched.NotModified:
			rep.NotModified++
		default:
			rep.Succeeded++
		}
	}
	return rep
}

// retain keeps the newest MaxItemsPerFeed items published after cutoff.
// Items without a date are kept.
func (r *LocalRepository) retain(items []reading.Item, cutoff time.Time) []reading.Item {
	if !cutoff.IsZero() {
		items = lo.Filter(items, func(it reading.Item, _ int) bool {
			return it.PubDate.IsZero() || it.PubDate.After(cutoff)
		})
	}
	limit := r.deps.Options.MaxItemsPerFeed
	if limit <= 0 || len(items) <= limit {
		return items
	}
	sorted := append([]reading.Item(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PubDate.After(sorted[j].PubDate)
	})
	return sorted[:limit]
}

// CreateFeed fetches the URL, falling back to feed discovery when it points
// at an HTML page, and stores the feed with its current items.
func (r *LocalRepository) CreateFeed(ctx context.Context, candidate FeedCandidate) (reading.Feed, error) {
	candidate = candidate.Normalized()
	if err := ValidateFeedCandidate(candidate, r.account.Config()); err != nil {
		return reading.Feed{}, err
	}
	if err := existingFeed(ctx, r.deps.Store, r.account.ID, candidate.URL); err != nil {
		return reading.Feed{}, err
	}

	target := reading.Feed{AccountID: r.account.ID, URL: candidate.URL, Name: candidate.Name}
	fetched, err := r.source.Fetch(ctx, target)
	if reading.IsParse(err) {
		links, derr := r.source.Discover(ctx, candidate.URL)
		if derr != nil {
			return reading.Feed{}, fmt.Errorf("%s is not a feed: %w", candidate.URL, err)
		}
		target.URL = links[0]
		if err := existingFeed(ctx, r.deps.Store, r.account.ID, target.URL); err != nil {
			return reading.Feed{}, err
		}
		fetched, err = r.source.Fetch(ctx, target)
	}
	if err != nil {
		return reading.Feed{}, err
	}

	var folder *reading.Folder
	if candidate.HasFolder() {
		f, ok, err := findFolder(ctx, r.deps.Store, r.account.ID, candidate)
		if err != nil {
			return reading.Feed{}, err
		}
		if !ok {
			if f, err = r.CreateFolder(ctx, candidate.FolderName); err != nil {
				return reading.Feed{}, err
			}
		}
		folder = &f
	}

	feed := fetched.Feed
	feed.AccountID = r.account.ID
	if folder != nil {
		feed.FolderID = new(folder.ID)
	}
	var stored reading.Feed
	err = write(ctx, r.deps, r.account.ID, func(tx StoreTx) error {
		var err error
		if stored, _, err = tx.UpsertFeed(ctx, feed); err != nil {
			return err
		}
		for _, it := range r.retain(fetched.Items, time.Time{}) {
			it.AccountID = r.account.ID
			it.FeedID = stored.ID
			if _, err := tx.UpsertItem(ctx, it); err != nil {
				return err
			}
		}
		return nil
	})
	return stored, err
}

// CreateFolder stores a new folder. An existing folder with the same name is
// returned as is.
func (r *LocalRepository) CreateFolder(ctx context.Context, name string) (reading.Folder, error) {
	name = strings.TrimSpace(name)
	if err := ValidateFolderName(name, r.account.Config()); err != nil {
		return reading.Folder{}, err
	}
	existing, ok, err := findFolder(ctx, r.deps.Store, r.account.ID, FeedCandidate{FolderName: name})
	if err != nil || ok {
		return existing, err
	}
	var stored reading.Folder
	err = write(ctx, r.deps, r.account.ID, func(tx StoreTx) error {
		var err error
		stored, _, err = tx.UpsertFolder(ctx, reading.Folder{AccountID: r.account.ID, RemoteID: uuid.NewString(), Name: name})
		return err
	})
	return stored, err
}

// DeleteFeed removes the feed and its items.
func (r *LocalRepository) DeleteFeed(ctx context.Context, feed reading.Feed) error {
	return write(ctx, r.deps, r.account.ID, func(tx StoreTx) error {
		return tx.DeleteFeed(ctx, r.account.ID, feed.ID)
	})
}

// UpdateItemState applies the change directly; local accounts have nothing
// to push.
func (r *LocalRepository) UpdateItemState(ctx context.Context, item reading.Item, read, starred *bool) error {
	s := reading.NewItemState(item.RemoteID, read, starred)
	if s.Empty() {
		return nil
	}
	return write(ctx, r.deps, r.account.ID, func(tx StoreTx) error {
		_, err := tx.UpdateItemState(ctx, r.account.ID, s)
		return err
	})
}
