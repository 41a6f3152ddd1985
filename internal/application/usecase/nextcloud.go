package usecase

import (
	"context"
	"strings"

	"github.com/tesso57/readsync/internal/domain/account"
	"github.com/tesso57/readsync/internal/domain/reading"
)

// NextcloudRepository synchronizes a Nextcloud News account. Item state is
// embedded in items, so there is no separate state pass.
type NextcloudRepository struct {
	remoteRepository
	client NextcloudSource
}

// NewNextcloudRepository constructs a NextcloudRepository.
func NewNextcloudRepository(acc account.Account, deps Deps, client NextcloudSource) *NextcloudRepository {
	return &NextcloudRepository{
		remoteRepository: newRemoteRepository(acc, deps, client, nil),
		client:           client,
	}
}

// CreateFolder creates the folder on the server and stores it. An existing
// folder with the same name is returned as is.
func (r *NextcloudRepository) CreateFolder(ctx context.Context, name string) (reading.Folder, error) {
	return createRemoteFolder(ctx, &r.remoteRepository, r.client, name)
}

// CreateFeed subscribes on the server and stores the returned feed.
func (r *NextcloudRepository) CreateFeed(ctx context.Context, candidate FeedCandidate) (reading.Feed, error) {
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
			if f, err = r.CreateFolder(ctx, candidate.FolderName); err != nil {
				return reading.Feed{}, err
			}
		}
		folder = &f
	}
	return r.createFeed(ctx, r.client, candidate, folder)
}

// DeleteFeed removes the feed on the server and locally.
func (r *NextcloudRepository) DeleteFeed(ctx context.Context, feed reading.Feed) error {
	return r.deleteFeed(ctx, r.client, feed)
}

func createRemoteFolder(ctx context.Context, r *remoteRepository, creator FolderCreator, name string) (reading.Folder, error) {
	name = strings.TrimSpace(name)
	if err := ValidateFolderName(name, r.account.Config()); err != nil {
		return reading.Folder{}, err
	}
	existing, ok, err := findFolder(ctx, r.deps.Store, r.account.ID, FeedCandidate{FolderName: name})
	if err != nil {
		return reading.Folder{}, err
	}
	if ok {
		return existing, nil
	}
	created, err := creator.CreateFolder(ctx, name)
	if err != nil {
		return reading.Folder{}, err
	}
	created.AccountID = r.account.ID
	var stored reading.Folder
	err = r.write(ctx, func(tx StoreTx) error {
		var err error
		stored, _, err = tx.UpsertFolder(ctx, created)
		return err
	})
	return stored, err
}
