package usecase

import (
	"context"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/tesso57/readsync/internal/domain/account"
	"github.com/tesso57/readsync/internal/domain/reading"
)

// AccountSync is the outcome of synchronizing one account.
type AccountSync struct {
	Account account.Account
	Result  reading.SyncResult
	Err     error
	// Shared is true when the call joined a sync already in flight.
	Shared bool
}

// Synchronizer runs account synchronizations. Concurrent requests for the
// same account join the sync in flight instead of starting another one.
// The shared run is detached from the contexts of its callers: it stops on
// Cancel, or once every caller waiting for it has given up.
type Synchronizer struct {
	group singleflight.Group
	log   *zap.Logger

	mu   sync.Mutex
	runs map[int64]*run
}

// run tracks the callers waiting for one account's sync.
type run struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewSynchronizer constructs a Synchronizer.
func NewSynchronizer(logger *zap.Logger) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{log: logger.Named("synchronizer"), runs: map[int64]*run{}}
}

// Synchronize runs repo.Synchronize, or waits for the run already in flight
// for the same account and returns its result. When ctx ends first the call
// returns ctx.Err() and the run continues for the remaining callers. A
// caller arriving while a cancelled run is still unwinding receives that
// run's error.
func (s *Synchronizer) Synchronize(ctx context.Context, repo AccountRepository) AccountSync {
	acc := repo.Account()
	r := s.attach(ctx, acc.ID)
	defer s.detach(acc.ID, r)

	ch := s.group.DoChan(strconv.FormatInt(acc.ID, 10), func() (any, error) {
		return repo.Synchronize(r.ctx)
	})
	select {
	case res := <-ch:
		if res.Shared {
			s.log.Debug("joined sync in flight", zap.Int64("account_id", acc.ID))
		}
		result, _ := res.Val.(reading.SyncResult)
		return AccountSync{Account: acc, Result: result, Err: res.Err, Shared: res.Shared}
	case <-ctx.Done():
		s.log.Debug("stopped waiting for sync", zap.Int64("account_id", acc.ID), zap.Error(ctx.Err()))
		return AccountSync{Account: acc, Err: ctx.Err()}
	}
}

// SynchronizeAll synchronizes every account concurrently. Accounts do not
// share store rows, so their writes never interleave.
func (s *Synchronizer) SynchronizeAll(ctx context.Context, repos []AccountRepository) []AccountSync {
	out := make([]AccountSync, len(repos))
	var g errgroup.Group
	for i, repo := range repos {
		g.Go(func() error {
			out[i] = s.Synchronize(ctx, repo)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Cancel stops the sync in flight for accountID and reports whether there
// was one. The interrupted phase rolls back; committed phases stay.
func (s *Synchronizer) Cancel(accountID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[accountID]
	if ok {
		r.cancel()
	}
	return ok
}

// Running reports whether a sync is in flight for accountID.
func (s *Synchronizer) Running(accountID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.runs[accountID]
	return ok
}

func (s *Synchronizer) attach(ctx context.Context, accountID int64) *run {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[accountID]
	if !ok {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		r = &run{ctx: runCtx, cancel: cancel}
		s.runs[accountID] = r
	}
	r.waiters++
	return r
}

// detach releases one caller; the last one cancels and forgets the run.
func (s *Synchronizer) detach(accountID int64, r *run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.waiters--
	if r.waiters > 0 {
		return
	}
	r.cancel()
	if s.runs[accountID] == r {
		delete(s.runs, accountID)
	}
}
