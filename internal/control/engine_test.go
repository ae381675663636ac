package control

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/boardcheck/internal/core/config"
	"github.com/vietddude/boardcheck/internal/core/domain"
	"github.com/vietddude/boardcheck/internal/infra/notify"
	"github.com/vietddude/boardcheck/internal/infra/storage/memory"
)

type fakeProvider struct {
	mu        sync.Mutex
	followers int
	holders   int
	err       error
}

func (f *fakeProvider) FetchFollowerCount(ctx context.Context, wallet string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.followers, nil
}

func (f *fakeProvider) FetchTokenHolders(ctx context.Context, wallet string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.holders, nil
}

type captureNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (c *captureNotifier) Notify(ctx context.Context, userID int64, event notify.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func testEngine(t *testing.T, store *memory.MemoryStorage, client *fakeProvider) (*Engine, *captureNotifier) {
	t.Helper()
	sink := &captureNotifier{}
	eng, err := NewEngine(Config{
		Port: 0,
		Checker: config.CheckerConfig{
			MaxAttempts:        3,
			BaseDelay:          10 * time.Millisecond,
			MaxDelay:           50 * time.Millisecond,
			RateLimitPerSecond: 200,
			WorkerCount:        2,
			MatchOfferTTL:      time.Hour,
			RescanInterval:     time.Hour,
			ProviderTimeout:    time.Second,
			QueueCapacity:      100,
		},
		ProviderClient: client,
		NotifierSink:   sink,
		MemoryStore:    store,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return eng, sink
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestEngine_EnqueueAndVerify(t *testing.T) {
	store := memory.NewMemoryStorage()
	store.SeedBoards(&domain.Board{ID: "board-1", Name: "Alpha", RequiredFollowers: 10, RequiredTokenHolders: 10})

	eng, sink := testEngine(t, store, &fakeProvider{followers: 12})
	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer eng.Stop(ctx)

	if err := eng.EnqueueCheck(ctx, 7, "0xabc", "board-1", domain.KindFollowers); err != nil {
		t.Fatalf("EnqueueCheck: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return eng.Status(7, "board-1", domain.KindFollowers).State == domain.StateSatisfied
	})

	st := eng.Status(7, "board-1", domain.KindFollowers)
	if st.LastValue != 12 {
		t.Errorf("LastValue = %d, want 12", st.LastValue)
	}
	if sink.count() != 1 {
		t.Errorf("notifications = %d, want 1", sink.count())
	}
}

func TestEngine_EnqueueUnknownBoard(t *testing.T) {
	store := memory.NewMemoryStorage()
	eng, _ := testEngine(t, store, &fakeProvider{})

	err := eng.EnqueueCheck(context.Background(), 1, "0xabc", "missing", domain.KindFollowers)
	if !errors.Is(err, domain.ErrBoardNotFound) {
		t.Fatalf("err = %v, want ErrBoardNotFound", err)
	}
}

func TestEngine_RescanBoard(t *testing.T) {
	store := memory.NewMemoryStorage()
	store.SeedBoards(&domain.Board{ID: "board-1", Name: "Alpha", RequiredFollowers: 5, RequiredTokenHolders: 5})
	store.SeedTracking(
		&domain.Tracking{UserID: 1, Wallet: "0xa", BoardID: "board-1", Kind: domain.KindFollowers},
		&domain.Tracking{UserID: 2, Wallet: "0xb", BoardID: "board-1", Kind: domain.KindFollowers},
		&domain.Tracking{UserID: 3, Wallet: "0xc", BoardID: "other", Kind: domain.KindFollowers},
	)

	eng, _ := testEngine(t, store, &fakeProvider{followers: 9})
	ctx := context.Background()
	if err := eng.registry.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	n, err := eng.RescanBoard(ctx, "board-1")
	if err != nil {
		t.Fatalf("RescanBoard: %v", err)
	}
	if n != 2 {
		t.Errorf("enqueued = %d, want 2", n)
	}

	if _, err := eng.RescanBoard(ctx, "missing"); !errors.Is(err, domain.ErrBoardNotFound) {
		t.Errorf("err = %v, want ErrBoardNotFound", err)
	}
}

func TestEngine_RemoveWalletCancelsChecks(t *testing.T) {
	store := memory.NewMemoryStorage()
	store.SeedBoards(&domain.Board{ID: "board-1", Name: "Alpha", RequiredFollowers: 10, RequiredTokenHolders: 10})

	eng, _ := testEngine(t, store, &fakeProvider{followers: 12})
	ctx := context.Background()
	if err := eng.registry.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if err := eng.EnqueueCheck(ctx, 7, "0xabc", "board-1", domain.KindFollowers); err != nil {
		t.Fatalf("EnqueueCheck: %v", err)
	}
	eng.RemoveWallet(ctx, 7, "0xabc")
	if depth := eng.queue.Depth(); depth != 0 {
		t.Errorf("queue depth = %d, want 0", depth)
	}
}

func TestEngine_RetryAfterError(t *testing.T) {
	store := memory.NewMemoryStorage()
	store.SeedBoards(&domain.Board{ID: "board-1", Name: "Alpha", RequiredFollowers: 10, RequiredTokenHolders: 10})

	eng, _ := testEngine(t, store, &fakeProvider{})
	ctx := context.Background()
	if err := eng.registry.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	// Retrying a key that never errored is rejected.
	err := eng.RetryAfterError(ctx, 7, "0xabc", "board-1", domain.KindFollowers)
	if err == nil {
		t.Fatal("expected error for key not in error state")
	}
}

func TestEngine_RequestMatch(t *testing.T) {
	store := memory.NewMemoryStorage()
	store.SeedBoards(&domain.Board{ID: "board-1", Name: "Alpha", RequiredFollowers: 10, RequiredTokenHolders: 10})

	provider := &fakeProvider{followers: 12}
	eng, _ := testEngine(t, store, provider)
	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer eng.Stop(ctx)

	// User 1 passes the check and becomes a helper.
	if err := eng.EnqueueCheck(ctx, 1, "0xhelper", "board-1", domain.KindFollowers); err != nil {
		t.Fatalf("EnqueueCheck: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		return eng.Status(1, "board-1", domain.KindFollowers).State == domain.StateSatisfied
	})

	// User 2 fails the check and becomes a seeker.
	provider.mu.Lock()
	provider.followers = 3
	provider.mu.Unlock()
	if err := eng.EnqueueCheck(ctx, 2, "0xseeker", "board-1", domain.KindFollowers); err != nil {
		t.Fatalf("EnqueueCheck: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		return eng.Status(2, "board-1", domain.KindFollowers).State == domain.StateUnsatisfied
	})

	offer, err := eng.RequestMatch(ctx, 2, "board-1", domain.KindFollowers)
	if err != nil {
		t.Fatalf("RequestMatch: %v", err)
	}
	if offer.HelperID != 1 || offer.SeekerID != 2 {
		t.Errorf("offer pair = (%d, %d), want (1, 2)", offer.HelperID, offer.SeekerID)
	}

	// A satisfied user has nothing to seek.
	if _, err := eng.RequestMatch(ctx, 1, "board-1", domain.KindFollowers); !errors.Is(err, domain.ErrNoneAvailable) {
		t.Errorf("err = %v, want ErrNoneAvailable", err)
	}
}

func TestEngine_FailedStartIsRecoverable(t *testing.T) {
	store := memory.NewMemoryStorage()
	eng, _ := testEngine(t, store, &fakeProvider{})
	ctx := context.Background()

	// Occupy the poller so Start fails partway through.
	if err := eng.poller.Start(ctx); err != nil {
		t.Fatalf("poller Start: %v", err)
	}
	defer eng.poller.Stop()

	if err := eng.Start(ctx); err == nil {
		t.Fatal("Start should fail while the poller is already running")
	}

	// The failure must not leave the engine marked running: a retry gets
	// the real error back, not "already running", and Stop returns
	// immediately instead of waiting on loops that never started.
	if err := eng.Start(ctx); err == nil {
		t.Fatal("retried Start should fail the same way")
	} else if err.Error() == "engine already running" {
		t.Fatalf("retried Start reported %q; a failed start must reset the running flag", err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := eng.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestEngine_QueueFullLeavesStatusUntouched(t *testing.T) {
	store := memory.NewMemoryStorage()
	store.SeedBoards(&domain.Board{ID: "board-1", Name: "Alpha", RequiredFollowers: 10, RequiredTokenHolders: 10})

	eng, err := NewEngine(Config{
		Port: 0,
		Checker: config.CheckerConfig{
			MaxAttempts:        3,
			BaseDelay:          10 * time.Millisecond,
			MaxDelay:           50 * time.Millisecond,
			RateLimitPerSecond: 200,
			WorkerCount:        2,
			MatchOfferTTL:      time.Hour,
			RescanInterval:     time.Hour,
			ProviderTimeout:    time.Second,
			QueueCapacity:      1,
		},
		ProviderClient: &fakeProvider{},
		NotifierSink:   &captureNotifier{},
		MemoryStore:    store,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	ctx := context.Background()
	if err := eng.registry.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	// Fill the only slot with a user request, which is never evictable.
	if err := eng.EnqueueCheck(ctx, 1, "0xa", "board-1", domain.KindFollowers); err != nil {
		t.Fatalf("EnqueueCheck: %v", err)
	}
	if err := eng.EnqueueCheck(ctx, 2, "0xb", "board-1", domain.KindFollowers); !errors.Is(err, domain.ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}

	// The rejected request must not leave a PENDING status with no check
	// behind it.
	if st := eng.Status(2, "board-1", domain.KindFollowers); st.State != domain.StateUnchecked {
		t.Errorf("State = %q, want %q after overflow", st.State, domain.StateUnchecked)
	}
}

func TestEngine_StartStop(t *testing.T) {
	store := memory.NewMemoryStorage()
	eng, _ := testEngine(t, store, &fakeProvider{})

	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := eng.Start(ctx); err == nil {
		t.Error("second Start should fail")
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := eng.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	// Stop is idempotent.
	if err := eng.Stop(stopCtx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}
