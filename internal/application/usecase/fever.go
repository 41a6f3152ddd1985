package usecase

import (
	"context"

	"github.com/tesso57/readsync/internal/domain/account"
	"github.com/tesso57/readsync/internal/domain/reading"
)

// FeverRepository synchronizes a Fever account. The API is read-mostly:
// subscriptions and groups are managed on the server itself.
type FeverRepository struct {
	remoteRepository
}

// NewFeverRepository constructs a FeverRepository.
func NewFeverRepository(acc account.Account, deps Deps, client FeverSource) *FeverRepository {
	return &FeverRepository{remoteRepository: newRemoteRepository(acc, deps, client, client)}
}

// CreateFolder is refused; Fever groups cannot be created through the API.
func (r *FeverRepository) CreateFolder(_ context.Context, name string) (reading.Folder, error) {
	if err := ValidateFolderName(name, r.account.Config()); err != nil {
		return reading.Folder{}, err
	}
	return reading.Folder{}, reading.ErrUnsupported
}

// CreateFeed returns reading.ErrUnsupported.
func (r *FeverRepository) CreateFeed(context.Context, FeedCandidate) (reading.Feed, error) {
	return reading.Feed{}, reading.ErrUnsupported
}

// DeleteFeed returns reading.ErrUnsupported.
func (r *FeverRepository) DeleteFeed(context.Context, reading.Feed) error {
	return reading.ErrUnsupported
}
