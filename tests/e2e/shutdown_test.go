package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/vietddude/boardcheck/internal/control"
	"github.com/vietddude/boardcheck/internal/core/config"
	"github.com/vietddude/boardcheck/internal/core/domain"
	"github.com/vietddude/boardcheck/internal/infra/storage/memory"
)

func TestGracefulShutdown(t *testing.T) {
	// In-memory storage, no provider traffic: just enough to exercise the
	// full start/stop path.
	store := memory.NewMemoryStorage()
	store.SeedBoards(&domain.Board{ID: "board-1", Name: "Alpha", RequiredFollowers: 10, RequiredTokenHolders: 10})

	cfg := control.Config{
		Port: 0,
		Checker: config.CheckerConfig{
			MaxAttempts:        5,
			BaseDelay:          time.Second,
			MaxDelay:           time.Minute,
			RateLimitPerSecond: 5,
			WorkerCount:        4,
			MatchOfferTTL:      time.Hour,
			RescanInterval:     time.Hour,
			ProviderTimeout:    time.Second,
			QueueCapacity:      100,
		},
		MemoryStore: store,
	}

	engine, err := control.NewEngine(cfg)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := engine.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Let the workers spin up and idle.
	time.Sleep(200 * time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()

	done := make(chan error, 1)
	go func() {
		done <- engine.Stop(stopCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Stop failed: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Error("Stop did not return within 10s")
	}
}
