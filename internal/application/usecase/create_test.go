package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesso57/readsync/internal/domain/account"
	"github.com/tesso57/readsync/internal/domain/reading"
)

func TestNextcloudCreateFeed(t *testing.T) {
	store := newMemStore()
	server := &fakeRemote{createdFeed: reading.Feed{RemoteID: "55", Name: "Server title"}}
	repo := NewNextcloudRepository(nextcloudAccount(), testDeps(store), server)

	feed, err := repo.CreateFeed(context.Background(), FeedCandidate{URL: "https://a.example.com/feed", FolderName: "Tech"})
	require.NoError(t, err)
	assert.Equal(t, "55", feed.RemoteID)
	assert.Equal(t, "Server title", feed.Name)
	assert.Equal(t, []string{"Tech"}, server.createdFolder)
	require.Len(t, server.createdIn, 1)
	require.NotNil(t, server.createdIn[0])
	assert.Equal(t, "f-Tech", *server.createdIn[0])

	folders, err := store.ListFolders(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, folders, 1)
	require.NotNil(t, feed.FolderID)
	assert.Equal(t, folders[0].ID, *feed.FolderID)

	_, err = repo.CreateFeed(context.Background(), FeedCandidate{URL: "https://a.example.com/feed"})
	assert.ErrorIs(t, err, reading.ErrFeedExists)
}

func TestNextcloudCreateFeedWithoutFolder(t *testing.T) {
	store := newMemStore()
	server := &fakeRemote{}
	repo := NewNextcloudRepository(nextcloudAccount(), testDeps(store), server)

	feed, err := repo.CreateFeed(context.Background(), FeedCandidate{URL: "https://a.example.com/feed", Name: "Mine"})
	require.NoError(t, err)
	assert.Equal(t, "Mine", feed.Name)
	assert.True(t, feed.Unfiled())
	require.Len(t, server.createdIn, 1)
	assert.Nil(t, server.createdIn[0])
}

func TestNextcloudCreateFeedSurfacesServerError(t *testing.T) {
	server := &fakeRemote{createErr: reading.NewValidationError("url", "feed could not be added")}
	repo := NewNextcloudRepository(nextcloudAccount(), testDeps(newMemStore()), server)

	_, err := repo.CreateFeed(context.Background(), FeedCandidate{URL: "https://a.example.com/feed"})
	assert.True(t, reading.IsValidation(err))
}

func TestNextcloudDeleteFeed(t *testing.T) {
	store := newMemStore()
	server := newNextcloudServer()
	repo := NewNextcloudRepository(nextcloudAccount(), testDeps(store), server)
	_, err := repo.Synchronize(context.Background())
	require.NoError(t, err)

	feeds, err := store.ListFeeds(context.Background(), 1)
	require.NoError(t, err)
	require.NoError(t, repo.DeleteFeed(context.Background(), feeds[0]))
	assert.Equal(t, []string{"10"}, server.deleted)

	feeds, err = store.ListFeeds(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, feeds, 1)
	assert.Len(t, store.view().items, 1)
}

func TestFreshRSSCreateFeed(t *testing.T) {
	t.Run("new label", func(t *testing.T) {
		store := newMemStore()
		server := &fakeRemote{}
		repo := NewFreshRSSRepository(freshRSSAccount(), testDeps(store), server)

		feed, err := repo.CreateFeed(context.Background(), FeedCandidate{URL: "https://a.example.com/feed", FolderName: "News"})
		require.NoError(t, err)
		require.NotNil(t, server.createdIn[0])
		assert.Equal(t, "user/-/label/News", *server.createdIn[0])

		folders, err := store.ListFolders(context.Background(), 2)
		require.NoError(t, err)
		require.Len(t, folders, 1)
		assert.Equal(t, "News", folders[0].Name)
		require.NotNil(t, feed.FolderID)
		assert.Equal(t, folders[0].ID, *feed.FolderID)
	})

	t.Run("folder required", func(t *testing.T) {
		server := &fakeRemote{}
		repo := NewFreshRSSRepository(freshRSSAccount(), testDeps(newMemStore()), server)

		_, err := repo.CreateFeed(context.Background(), FeedCandidate{URL: "https://a.example.com/feed"})
		assert.True(t, reading.IsValidation(err))
		assert.Empty(t, server.createdIn)
	})
}

func TestCreateFolderPolicy(t *testing.T) {
	tests := []struct {
		name string
		repo AccountRepository
	}{
		{name: "freshrss", repo: NewFreshRSSRepository(freshRSSAccount(), testDeps(newMemStore()), &fakeRemote{})},
		{name: "fever", repo: NewFeverRepository(feverAccount(), testDeps(newMemStore()), &fakeRemote{})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.repo.CreateFolder(context.Background(), "Tech")
			assert.True(t, reading.IsValidation(err))
		})
	}
}

func TestNextcloudCreateFolderReusesExisting(t *testing.T) {
	store := newMemStore()
	server := &fakeRemote{}
	repo := NewNextcloudRepository(nextcloudAccount(), testDeps(store), server)

	first, err := repo.CreateFolder(context.Background(), "Tech")
	require.NoError(t, err)
	second, err := repo.CreateFolder(context.Background(), "Tech")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, []string{"Tech"}, server.createdFolder)
}

func feverAccount() account.Account {
	return account.Account{ID: 3, Type: account.Fever, URL: "https://fever.example.com/fever/", Login: "me", Password: "pw"}
}

func TestFeverFeedManagementUnsupported(t *testing.T) {
	repo := NewFeverRepository(feverAccount(), testDeps(newMemStore()), &fakeRemote{})

	_, err := repo.CreateFeed(context.Background(), FeedCandidate{URL: "https://a.example.com/feed"})
	assert.ErrorIs(t, err, reading.ErrUnsupported)
	assert.ErrorIs(t, repo.DeleteFeed(context.Background(), reading.Feed{RemoteID: "1"}), reading.ErrUnsupported)
}

func TestFeverSynchronizeUsesStateSnapshot(t *testing.T) {
	store := newMemStore()
	server := &fakeRemote{
		folders:  []reading.Folder{{RemoteID: "1", Name: "Tech"}},
		feeds:    []reading.Feed{{RemoteID: "5", URL: "https://a.example.com/feed", RemoteFolderID: new("1")}},
		items:    []reading.Item{{RemoteID: "9", FeedRemoteID: "5", Title: "nine", IsRead: true}},
		next:     "9",
		snapshot: reading.StateSnapshot{Unread: []string{"9"}, Starred: []string{"9"}},
	}
	repo := NewFeverRepository(feverAccount(), testDeps(store), server)

	result, err := repo.Synchronize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, result.PhasesAttempted)
	assert.Equal(t, 1, result.Mutations.StateChanged)

	it, err := store.Item(context.Background(), 3, "9")
	require.NoError(t, err)
	assert.False(t, it.IsRead)
	assert.True(t, it.IsStarred)

	second, err := repo.Synchronize(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second.Mutations.Total())
	assert.Equal(t, []string{"", "9"}, server.cursors)
}
