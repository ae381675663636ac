package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/vietddude/boardcheck/internal/core/domain"
	"github.com/vietddude/boardcheck/internal/infra/storage/memory"
)

func TestRegistry_GetAndReload(t *testing.T) {
	store := memory.NewMemoryStorage()
	store.SeedBoards(
		&domain.Board{ID: "alpha", Name: "Alpha", RequiredFollowers: 10, RequiredTokenHolders: 10},
		&domain.Board{ID: "beta", Name: "Beta", RequiredFollowers: 25, RequiredTokenHolders: 5},
	)

	r := New(memory.NewBoardRepo(store))
	ctx := context.Background()

	// Empty before the first load.
	if _, err := r.Get("alpha"); !errors.Is(err, domain.ErrBoardNotFound) {
		t.Fatalf("Get before Reload = %v, want ErrBoardNotFound", err)
	}

	if err := r.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	b, err := r.Get("beta")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if b.RequiredFollowers != 25 {
		t.Errorf("RequiredFollowers = %d, want 25", b.RequiredFollowers)
	}

	if _, err := r.Get("missing"); !errors.Is(err, domain.ErrBoardNotFound) {
		t.Errorf("Get(missing) = %v, want ErrBoardNotFound", err)
	}

	if got := len(r.List()); got != 2 {
		t.Errorf("List = %d boards, want 2", got)
	}

	// A reload picks up catalog changes.
	store.SeedBoards(&domain.Board{ID: "gamma", Name: "Gamma", RequiredFollowers: 1, RequiredTokenHolders: 1})
	if err := r.Reload(ctx); err != nil {
		t.Fatalf("second Reload: %v", err)
	}
	if _, err := r.Get("gamma"); err != nil {
		t.Errorf("Get(gamma) after reload = %v", err)
	}
}

func TestBoard_ThresholdPerKind(t *testing.T) {
	b := domain.Board{ID: "alpha", RequiredFollowers: 7, RequiredTokenHolders: 3}
	if got := b.Threshold(domain.KindFollowers); got != 7 {
		t.Errorf("followers threshold = %d, want 7", got)
	}
	if got := b.Threshold(domain.KindTokenHolders); got != 3 {
		t.Errorf("token holders threshold = %d, want 3", got)
	}
}
