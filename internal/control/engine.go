// Package control wires the verification engine together and owns its
// lifecycle.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/vietddude/boardcheck/internal/core/config"
	"github.com/vietddude/boardcheck/internal/core/domain"
	"github.com/vietddude/boardcheck/internal/infra/notify"
	"github.com/vietddude/boardcheck/internal/infra/provider"
	redisclient "github.com/vietddude/boardcheck/internal/infra/redis"
	"github.com/vietddude/boardcheck/internal/infra/storage"
	"github.com/vietddude/boardcheck/internal/infra/storage/memory"
	"github.com/vietddude/boardcheck/internal/infra/storage/postgres"
	"github.com/vietddude/boardcheck/internal/verify/health"
	"github.com/vietddude/boardcheck/internal/verify/matching"
	"github.com/vietddude/boardcheck/internal/verify/poller"
	"github.com/vietddude/boardcheck/internal/verify/queue"
	"github.com/vietddude/boardcheck/internal/verify/registry"
	"github.com/vietddude/boardcheck/internal/verify/status"
)

// Config holds the engine configuration.
type Config struct {
	Port     int
	Checker  config.CheckerConfig
	Provider provider.Config
	Notifier notify.Config
	Redis    redisclient.Config
	Database postgres.Config

	// ProviderClient overrides the HTTP client when set (tests).
	ProviderClient provider.Client
	// NotifierSink overrides the configured sink when set (tests).
	NotifierSink notify.Notifier
	// MemoryStore overrides the storage backend when set (tests).
	MemoryStore *memory.MemoryStorage
}

// Engine is the background verification and matchmaking engine. One
// active instance is the design target; the queue's in-flight marking is
// what prevents duplicate work inside it.
type Engine struct {
	cfg Config
	log *slog.Logger

	registry *registry.Registry
	queue    *queue.Queue
	store    *status.Store
	matcher  *matching.Engine
	poller   *poller.Poller

	tracking     storage.TrackingRepository
	healthServer *health.Server
	db           *postgres.DB
	redisClient  *redisclient.Client

	running  atomic.Bool
	stopLoop chan struct{}
	loopDone chan struct{}
}

// NewEngine creates an engine with all dependencies initialized. With no
// database URL configured, everything runs on in-memory storage.
func NewEngine(cfg Config) (*Engine, error) {
	log := slog.Default().With("component", "engine")

	var (
		checkRepo    storage.CheckRepository
		statusRepo   storage.StatusRepository
		boardRepo    storage.BoardRepository
		trackingRepo storage.TrackingRepository
		db           *postgres.DB
	)

	switch {
	case cfg.MemoryStore != nil:
		checkRepo = memory.NewCheckRepo(cfg.MemoryStore)
		statusRepo = memory.NewStatusRepo(cfg.MemoryStore)
		boardRepo = memory.NewBoardRepo(cfg.MemoryStore)
		trackingRepo = memory.NewTrackingRepo(cfg.MemoryStore)
	case cfg.Database.URL != "":
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		checkRepo = postgres.NewCheckRepo(db)
		statusRepo = postgres.NewStatusRepo(db)
		boardRepo = postgres.NewBoardRepo(db)
		trackingRepo = postgres.NewTrackingRepo(db)
	default:
		log.Warn("No database configured, using in-memory storage")
		store := memory.NewMemoryStorage()
		checkRepo = memory.NewCheckRepo(store)
		statusRepo = memory.NewStatusRepo(store)
		boardRepo = memory.NewBoardRepo(store)
		trackingRepo = memory.NewTrackingRepo(store)
	}

	notifier := cfg.NotifierSink
	if notifier == nil {
		var err error
		notifier, err = notify.New(context.Background(), cfg.Notifier)
		if err != nil {
			return nil, fmt.Errorf("failed to init notifier: %w", err)
		}
	}

	providerClient := cfg.ProviderClient
	if providerClient == nil {
		providerClient = provider.NewHTTPClient(cfg.Provider, cfg.Checker.ProviderTimeout)
	}

	var offerStore matching.OfferStore
	var redisClient *redisclient.Client
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		offerStore = redisclient.NewOfferStore(redisClient)
	} else {
		offerStore = matching.NewMemoryOfferStore()
	}

	reg := registry.New(boardRepo)
	q := queue.New(queue.Config{
		MaxAttempts: cfg.Checker.MaxAttempts,
		BaseDelay:   cfg.Checker.BaseDelay,
		MaxDelay:    cfg.Checker.MaxDelay,
		Capacity:    cfg.Checker.QueueCapacity,
	}, checkRepo)
	store := status.NewStore(statusRepo, notifier)
	matcher := matching.NewEngine(matching.Config{OfferTTL: cfg.Checker.MatchOfferTTL}, offerStore)
	store.OnTransition(matcher.Apply)

	pol := poller.New(poller.Config{
		Workers:         cfg.Checker.WorkerCount,
		RatePerSecond:   cfg.Checker.RateLimitPerSecond,
		ProviderTimeout: cfg.Checker.ProviderTimeout,
	}, q, store, reg, providerClient)

	monitor := health.NewMonitor(q, store, matcher)

	return &Engine{
		cfg:          cfg,
		log:          log,
		registry:     reg,
		queue:        q,
		store:        store,
		matcher:      matcher,
		poller:       pol,
		tracking:     trackingRepo,
		healthServer: health.NewServer(monitor, cfg.Port),
		db:           db,
		redisClient:  redisClient,
		stopLoop:     make(chan struct{}),
		loopDone:     make(chan struct{}),
	}, nil
}

// Start loads persisted state and launches the poller, the rescan loop and
// the health server.
func (e *Engine) Start(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return fmt.Errorf("engine already running")
	}

	// A failed startup must leave the engine stoppable and restartable,
	// so the flag is cleared on every error path below.
	if err := e.registry.Reload(ctx); err != nil {
		e.running.Store(false)
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	if err := e.store.Load(ctx); err != nil {
		e.running.Store(false)
		return fmt.Errorf("failed to load statuses: %w", err)
	}
	if err := e.queue.Load(ctx); err != nil {
		e.running.Store(false)
		return fmt.Errorf("failed to load queue: %w", err)
	}
	e.seedMatcher()

	if e.cfg.Checker.InitialSweep {
		if n, err := e.sweepAll(ctx); err != nil {
			e.log.Warn("Initial sweep failed", "error", err)
		} else {
			e.log.Info("Initial sweep enqueued", "checks", n)
		}
	}

	if err := e.poller.Start(ctx); err != nil {
		e.running.Store(false)
		return err
	}

	go func() {
		if err := e.healthServer.Start(); err != nil {
			e.log.Debug("Health server closed", "error", err)
		}
	}()

	go e.runRescanLoop(ctx)

	e.log.Info("Engine started", "port", e.cfg.Port)
	return nil
}

// Stop drains in-flight work and shuts everything down.
func (e *Engine) Stop(ctx context.Context) error {
	if !e.running.CompareAndSwap(true, false) {
		return nil
	}
	e.log.Info("Stopping engine...")

	close(e.stopLoop)
	select {
	case <-e.loopDone:
	case <-ctx.Done():
	}

	e.poller.Stop()

	if e.redisClient != nil {
		if err := e.redisClient.Close(); err != nil {
			e.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			e.log.Warn("Failed to close database", "error", err)
		}
	}

	return e.healthServer.Stop(ctx)
}

// ReloadCatalog refreshes the board registry. Wired to SIGHUP by the CLI.
func (e *Engine) ReloadCatalog(ctx context.Context) error {
	return e.registry.Reload(ctx)
}

// seedMatcher replays persisted statuses into the matching engine so its
// seeker/helper sets survive restarts.
func (e *Engine) seedMatcher() {
	for _, st := range e.store.List() {
		e.matcher.Apply(status.Transition{Key: st.Key, From: st.State, To: st.State, At: st.UpdatedAt})
	}
}

// EnqueueCheck schedules a user-initiated verification.
func (e *Engine) EnqueueCheck(ctx context.Context, userID int64, wallet, boardID string, kind domain.RequirementKind) error {
	return e.enqueue(ctx, domain.CheckKey{UserID: userID, Wallet: wallet, BoardID: boardID, Kind: kind}, domain.OriginUser)
}

// RescanBoard re-enqueues every tracked user of a board.
func (e *Engine) RescanBoard(ctx context.Context, boardID string) (int, error) {
	if _, err := e.registry.Get(boardID); err != nil {
		return 0, err
	}
	rows, err := e.tracking.ListByBoard(ctx, boardID)
	if err != nil {
		return 0, err
	}
	enqueued := 0
	for _, row := range rows {
		if err := e.enqueue(ctx, row.Key(), domain.OriginRescan); err != nil {
			e.log.Debug("Rescan enqueue skipped", "key", row.Key(), "error", err)
			continue
		}
		enqueued++
	}
	return enqueued, nil
}

// RemoveWallet cancels all outstanding checks for (userID, wallet).
func (e *Engine) RemoveWallet(ctx context.Context, userID int64, wallet string) {
	removed := e.queue.Cancel(ctx, userID, wallet)
	e.log.Info("Wallet removed", "user", userID, "wallet", wallet, "canceled", removed)
}

// RetryAfterError re-arms an ERROR status and schedules a fresh check.
func (e *Engine) RetryAfterError(ctx context.Context, userID int64, wallet, boardID string, kind domain.RequirementKind) error {
	key := domain.CheckKey{UserID: userID, Wallet: wallet, BoardID: boardID, Kind: kind}
	if _, err := e.registry.Get(boardID); err != nil {
		return err
	}
	if st := e.store.Get(key.StatusKey()); st.State != domain.StateError {
		return status.ErrNotInError
	}
	if err := e.queue.Enqueue(ctx, domain.CheckRequest{Key: key, Origin: domain.OriginUser}); err != nil {
		return err
	}
	return e.store.ManualRetry(ctx, key.StatusKey())
}

// RequestMatch pairs the seeker with an eligible helper. The seeker must
// currently miss the requirement.
func (e *Engine) RequestMatch(ctx context.Context, userID int64, boardID string, kind domain.RequirementKind) (*domain.MatchOffer, error) {
	if _, err := e.registry.Get(boardID); err != nil {
		return nil, err
	}
	st := e.store.Get(domain.StatusKey{UserID: userID, BoardID: boardID, Kind: kind})
	if st.State != domain.StateUnchecked && st.State != domain.StateUnsatisfied {
		return nil, domain.ErrNoneAvailable
	}
	return e.matcher.RequestMatch(ctx, userID, boardID, kind)
}

// Status returns the current requirement status for one key.
func (e *Engine) Status(userID int64, boardID string, kind domain.RequirementKind) domain.RequirementStatus {
	return e.store.Get(domain.StatusKey{UserID: userID, BoardID: boardID, Kind: kind})
}

func (e *Engine) enqueue(ctx context.Context, key domain.CheckKey, origin domain.CheckOrigin) error {
	if _, err := e.registry.Get(key.BoardID); err != nil {
		return err
	}
	// Validate up front so an ERROR key still requires ManualRetry, but
	// transition to PENDING only after the queue accepted the request. A
	// PENDING status must always have a check behind it.
	if st := e.store.Get(key.StatusKey()); st.State != domain.StatePending && !st.State.CanEnqueue() {
		return status.ErrInvalidTransition
	}
	if err := e.queue.Enqueue(ctx, domain.CheckRequest{Key: key, Origin: origin}); err != nil {
		return err
	}
	return e.store.MarkPending(ctx, key.StatusKey())
}

// sweepAll enqueues a rescan for every tracked association. Runs at
// startup when initial_sweep is enabled.
func (e *Engine) sweepAll(ctx context.Context) (int, error) {
	rows, err := e.tracking.List(ctx)
	if err != nil {
		return 0, err
	}
	enqueued := 0
	for _, row := range rows {
		if err := e.enqueue(ctx, row.Key(), domain.OriginRescan); err != nil {
			continue
		}
		enqueued++
	}
	return enqueued, nil
}

// runRescanLoop periodically re-enqueues all tracked users so statuses
// converge after unfollows or sell-offs.
func (e *Engine) runRescanLoop(ctx context.Context) {
	defer close(e.loopDone)

	interval := e.cfg.Checker.RescanInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopLoop:
			return
		case <-ticker.C:
			for _, board := range e.registry.List() {
				n, err := e.RescanBoard(ctx, board.ID)
				if err != nil {
					e.log.Warn("Rescan failed", "board", board.ID, "error", err)
					continue
				}
				e.log.Debug("Rescan scheduled", "board", board.ID, "checks", n)
			}
		}
	}
}
