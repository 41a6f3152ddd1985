package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tesso57/readsync/internal/domain/account"
	"github.com/tesso57/readsync/internal/domain/reading"
)

type mockRepository struct {
	mock.Mock
	acc account.Account
}

func (m *mockRepository) Account() account.Account { return m.acc }

func (m *mockRepository) Synchronize(ctx context.Context) (reading.SyncResult, error) {
	args := m.Called(ctx)
	out, _ := args.Get(0).(reading.SyncResult)
	return out, args.Error(1)
}

func (m *mockRepository) CreateFeed(ctx context.Context, candidate FeedCandidate) (reading.Feed, error) {
	args := m.Called(ctx, candidate)
	out, _ := args.Get(0).(reading.Feed)
	return out, args.Error(1)
}

func (m *mockRepository) DeleteFeed(ctx context.Context, feed reading.Feed) error {
	return m.Called(ctx, feed).Error(0)
}

func (m *mockRepository) CreateFolder(ctx context.Context, name string) (reading.Folder, error) {
	args := m.Called(ctx, name)
	out, _ := args.Get(0).(reading.Folder)
	return out, args.Error(1)
}

func (m *mockRepository) UpdateItemState(ctx context.Context, item reading.Item, read, starred *bool) error {
	return m.Called(ctx, item, read, starred).Error(0)
}

// blockingRepository blocks Synchronize until release is closed.
type blockingRepository struct {
	mockRepository
	started chan struct{}
	release chan struct{}
	runs    atomic.Int32
}

func (b *blockingRepository) Synchronize(ctx context.Context) (reading.SyncResult, error) {
	b.runs.Add(1)
	close(b.started)
	select {
	case <-b.release:
		return reading.SyncResult{AccountID: b.acc.ID, SyncID: "run"}, nil
	case <-ctx.Done():
		return reading.SyncResult{AccountID: b.acc.ID}, ctx.Err()
	}
}

func TestSynchronizerCoalescesConcurrentRuns(t *testing.T) {
	repo := &blockingRepository{
		mockRepository: mockRepository{acc: account.Account{ID: 1, Type: account.Local}},
		started:        make(chan struct{}),
		release:        make(chan struct{}),
	}
	s := NewSynchronizer(nil)

	var wg sync.WaitGroup
	results := make([]AccountSync, 2)
	wg.Go(func() { results[0] = s.Synchronize(context.Background(), repo) })
	<-repo.started
	require.True(t, s.Running(1))
	wg.Go(func() { results[1] = s.Synchronize(context.Background(), repo) })

	// Give the second caller time to join before releasing the first run.
	time.Sleep(50 * time.Millisecond)
	close(repo.release)
	wg.Wait()

	assert.Equal(t, int32(1), repo.runs.Load())
	for _, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, "run", r.Result.SyncID)
	}
	assert.True(t, results[0].Shared || results[1].Shared)
	assert.False(t, s.Running(1))
}

func TestSynchronizerRunOutlivesFirstCaller(t *testing.T) {
	repo := &blockingRepository{
		mockRepository: mockRepository{acc: account.Account{ID: 2, Type: account.Fever}},
		started:        make(chan struct{}),
		release:        make(chan struct{}),
	}
	s := NewSynchronizer(nil)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan AccountSync, 1)
	go func() { first <- s.Synchronize(ctx, repo) }()
	<-repo.started
	second := make(chan AccountSync, 1)
	go func() { second <- s.Synchronize(context.Background(), repo) }()
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case out := <-first:
		assert.ErrorIs(t, out.Err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("first caller kept waiting after its context ended")
	}
	assert.True(t, s.Running(2))

	close(repo.release)
	select {
	case out := <-second:
		require.NoError(t, out.Err)
		assert.Equal(t, "run", out.Result.SyncID)
		assert.True(t, out.Shared)
	case <-time.After(time.Second):
		t.Fatal("joined caller got no result")
	}
	assert.Equal(t, int32(1), repo.runs.Load())
	assert.False(t, s.Running(2))
}

func TestSynchronizerLastCallerLeavingCancelsRun(t *testing.T) {
	repo := &blockingRepository{
		mockRepository: mockRepository{acc: account.Account{ID: 3, Type: account.Local}},
		started:        make(chan struct{}),
		release:        make(chan struct{}),
	}
	s := NewSynchronizer(nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan AccountSync, 1)
	go func() { done <- s.Synchronize(ctx, repo) }()
	<-repo.started
	cancel()

	out := <-done
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.False(t, s.Running(3))
}

func TestSynchronizerCancel(t *testing.T) {
	repo := &blockingRepository{
		mockRepository: mockRepository{acc: account.Account{ID: 4, Type: account.Local}},
		started:        make(chan struct{}),
		release:        make(chan struct{}),
	}
	s := NewSynchronizer(nil)
	assert.False(t, s.Cancel(4))

	done := make(chan AccountSync, 1)
	go func() { done <- s.Synchronize(context.Background(), repo) }()
	<-repo.started
	assert.True(t, s.Cancel(4))

	select {
	case out := <-done:
		assert.ErrorIs(t, out.Err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sync was not cancelled")
	}
}

func TestSynchronizeAll(t *testing.T) {
	a := &mockRepository{acc: account.Account{ID: 1, Type: account.Local}}
	a.On("Synchronize", mock.Anything).Return(reading.SyncResult{AccountID: 1}, nil).Once()
	b := &mockRepository{acc: account.Account{ID: 2, Type: account.Fever}}
	b.On("Synchronize", mock.Anything).Return(reading.SyncResult{}, reading.ErrInvalidAccount).Once()

	out := NewSynchronizer(nil).SynchronizeAll(context.Background(), []AccountRepository{a, b})

	require.Len(t, out, 2)
	assert.NoError(t, out[0].Err)
	assert.Equal(t, int64(1), out[0].Result.AccountID)
	assert.ErrorIs(t, out[1].Err, reading.ErrInvalidAccount)
	a.AssertExpectations(t)
	b.AssertExpectations(t)
}
