package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/tesso57/readsync/internal/domain/reading"
	"github.com/tesso57/readsync/internal/domain/subscription"
)

// Progress is one import progress notification.
type Progress struct {
	Current string
	Done    int
	Total   int
}

// ImportFailure records an entry that could not be subscribed.
type ImportFailure struct {
	URL string
	Err error
}

// ImportResult summarizes an import.
type ImportResult struct {
	Imported       []reading.Feed
	Existing       []string
	Failed         []ImportFailure
	FoldersCreated int
}

// OPMLService imports and exports feed lists.
type OPMLService struct {
	Store  StoreReader
	Logger *zap.Logger
}

// NewOPMLService constructs an OPMLService.
func NewOPMLService(store StoreReader, logger *zap.Logger) OPMLService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return OPMLService{Store: store, Logger: logger.Named("opml")}
}

// Import subscribes repo's account to every entry through the same path as
// manual entry. Progress is sent to progress without blocking; notifications
// are dropped while the receiver is busy. The last notification always
// reports Done == Total when the receiver is ready for it.
func (s OPMLService) Import(ctx context.Context, repo AccountRepository, subs []subscription.Subscription, progress chan<- Progress) (ImportResult, error) {
	var result ImportResult
	subs = lo.UniqBy(lo.Filter(subs, func(sub subscription.Subscription, _ int) bool {
		return strings.TrimSpace(sub.URL) != ""
	}), func(sub subscription.Subscription) string { return strings.TrimSpace(sub.URL) })
	total := len(subs)
	log := s.Logger.With(zap.Int64("account_id", repo.Account().ID), zap.Int("total", total))

	cfg := repo.Account().Config()
	if cfg.CanCreateFolder {
		for _, name := range subscription.GroupNames(subs) {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			created, err := s.ensureFolder(ctx, repo, name)
			if err != nil {
				log.Warn("folder not created", zap.String("folder", name), zap.Error(err))
				continue
			}
			if created {
				result.FoldersCreated++
			}
		}
	}

	for i, sub := range subs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		title := strings.TrimSpace(sub.Title)
		if title == "" {
			title = sub.URL
		}
		notify(progress, Progress{Current: title, Done: i, Total: total})

		feed, err := repo.CreateFeed(ctx, FeedCandidate{URL: sub.URL, Name: sub.Title, FolderName: sub.Group})
		switch {
		case err == nil:
			result.Imported = append(result.Imported, feed)
		case errors.Is(err, reading.ErrFeedExists):
			result.Existing = append(result.Existing, sub.URL)
		case errors.Is(err, context.Canceled) && ctx.Err() != nil:
			return result, ctx.Err()
		default:
			log.Warn("entry not imported", zap.String("feed_url", sub.URL), zap.Error(err))
			result.Failed = append(result.Failed, ImportFailure{URL: sub.URL, Err: err})
		}
	}
	notify(progress, Progress{Done: total, Total: total})
	log.Info("import finished",
		zap.Int("imported", len(result.Imported)),
		zap.Int("existing", len(result.Existing)),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}

func (s OPMLService) ensureFolder(ctx context.Context, repo AccountRepository, name string) (bool, error) {
	folders, err := s.Store.ListFolders(ctx, repo.Account().ID)
	if err != nil {
		return false, err
	}
	if lo.ContainsBy(folders, func(f reading.Folder) bool { return f.Name == name }) {
		return false, nil
	}
	_, err = repo.CreateFolder(ctx, name)
	return err == nil, err
}

func notify(progress chan<- Progress, p Progress) {
	if progress == nil {
		return
	}
	select {
	case progress <- p:
	default:
	}
}

// Export returns the account's folders with their feeds, in store order, and
// the unfiled feeds.
func (s OPMLService) Export(ctx context.Context, accountID int64) ([]subscription.FeedGroup, []subscription.Subscription, error) {
	folders, err := s.Store.ListFolders(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}
	feeds, err := s.Store.ListFeeds(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}

	byFolder := lo.GroupBy(lo.Filter(feeds, func(f reading.Feed, _ int) bool { return f.FolderID != nil }),
		func(f reading.Feed) int64 { return *f.FolderID })
	groups := make([]subscription.FeedGroup, 0, len(folders))
	for _, folder := range folders {
		groups = append(groups, subscription.FeedGroup{
			Name: folder.Name,
			Feeds: lo.Map(byFolder[folder.ID], func(f reading.Feed, _ int) subscription.Subscription {
				return toSubscription(f, folder.Name)
			}),
		})
	}
	unfiled := lo.FilterMap(feeds, func(f reading.Feed, _ int) (subscription.Subscription, bool) {
		return toSubscription(f, ""), f.FolderID == nil
	})
	return groups, unfiled, nil
}

func toSubscription(f reading.Feed, group string) subscription.Subscription {
	return subscription.Subscription{URL: f.URL, Title: f.Name, Group: group}
}
