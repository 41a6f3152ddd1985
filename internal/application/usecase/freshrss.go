package usecase

import (
	"context"

	"github.com/tesso57/readsync/internal/domain/account"
	"github.com/tesso57/readsync/internal/domain/reading"
)

// FreshRSSRepository synchronizes a FreshRSS account through the Google
// Reader API. Folders are labels and state is merged in its own pass.
type FreshRSSRepository struct {
	remoteRepository
	client FreshRSSSource
}

// NewFreshRSSRepository constructs a FreshRSSRepository.
func NewFreshRSSRepository(acc account.Account, deps Deps, client FreshRSSSource) *FreshRSSRepository {
	return &FreshRSSRepository{
		remoteRepository: newRemoteRepository(acc, deps, client, client),
		client:           client,
	}
}

// CreateFolder is refused: labels only exist through the feeds filed under them.
func (r *FreshRSSRepository) CreateFolder(_ context.Context, name string) (reading.Folder, error) {
	if err := ValidateFolderName(name, r.account.Config()); err != nil {
		return reading.Folder{}, err
	}
	return reading.Folder{}, reading.ErrUnsupported
}

// CreateFeed subscribes on the server under the candidate's label. A label
// that does not exist yet is created along with the subscription.
func (r *FreshRSSRepository) CreateFeed(ctx context.Context, candidate FeedCandidate) (reading.Feed, error) {
	candidate = candidate.Normalized()
	if err := ValidateFeedCandidate(candidate, r.account.Config()); err != nil {
		return reading.Feed{}, err
	}
	if err := existingFeed(ctx, r.deps.Store, r.account.ID, candidate.URL); err != nil {
		return reading.Feed{}, err
	}

	var folder *reading.Folder
	if candidate.HasFolder() {
		f, ok, err := findFolder(ctx, r.deps.Store, r.account.ID, candidate)
		if err != nil {
			return reading.Feed{}, err
		}
		if !ok {
			f = reading.Folder{RemoteID: r.client.FolderRemoteID(candidate.FolderName), Name: candidate.FolderName}
		}
		folder = &f
	}
	return r.createFeed(ctx, r.client, candidate, folder)
}

// DeleteFeed unsubscribes on the server and removes the feed locally.
func (r *FreshRSSRepository) DeleteFeed(ctx context.Context, feed reading.Feed) error {
	return r.deleteFeed(ctx, r.client, feed)
}
