// Package poller drains the check queue against the external provider
// with a bounded worker pool and a shared global rate limit.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/vietddude/boardcheck/internal/core/domain"
	"github.com/vietddude/boardcheck/internal/infra/provider"
	"github.com/vietddude/boardcheck/internal/verify/metrics"
	"github.com/vietddude/boardcheck/internal/verify/queue"
	"github.com/vietddude/boardcheck/internal/verify/registry"
	"github.com/vietddude/boardcheck/internal/verify/status"
)

// Config holds poller settings.
type Config struct {
	Workers         int
	RatePerSecond   int
	ProviderTimeout time.Duration
	IdleSleep       time.Duration
}

// defaultHold applies when a 429 response carries no Retry-After.
const defaultHold = 10 * time.Second

// Poller executes pending checks. Workers share one token bucket, so the
// provider sees at most RatePerSecond calls regardless of pool size.
type Poller struct {
	cfg      Config
	queue    *queue.Queue
	store    *status.Store
	registry *registry.Registry
	client   provider.Client
	limiter  *rate.Limiter
	log      *slog.Logger

	holdMu    sync.Mutex
	holdUntil time.Time

	running atomic.Bool
	stop    chan struct{}
	wg      sync.WaitGroup
	now     func() time.Time
}

// New creates a poller.
func New(cfg Config, q *queue.Queue, store *status.Store, reg *registry.Registry, client provider.Client) *Poller {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 5
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 15 * time.Second
	}
	if cfg.IdleSleep <= 0 {
		cfg.IdleSleep = time.Second
	}
	return &Poller{
		cfg:      cfg,
		queue:    q,
		store:    store,
		registry: reg,
		client:   client,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RatePerSecond),
		log:      slog.Default().With("component", "poller"),
		stop:     make(chan struct{}),
		now:      time.Now,
	}
}

// Start launches the worker pool.
func (p *Poller) Start(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("poller already running")
	}
	p.log.Info("Starting poller", "workers", p.cfg.Workers, "rate", p.cfg.RatePerSecond)
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx, i)
	}
	return nil
}

// Stop signals the workers and waits for in-flight checks to finish.
func (p *Poller) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.stop)
	p.wg.Wait()
	p.log.Info("Poller stopped")
}

func (p *Poller) runWorker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.log.With("worker", id)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		default:
		}

		if !p.waitForHold(ctx) {
			return
		}

		batch := p.queue.DequeueReady(1)
		if len(batch) == 0 {
			if !p.sleep(ctx, p.cfg.IdleSleep) {
				return
			}
			continue
		}

		// The token is taken only once a request is held, so idle
		// polling leaves the bucket full for real work.
		if err := p.limiter.Wait(ctx); err != nil {
			p.queue.Release(ctx, batch[0].Key, 0)
			return
		}

		p.process(ctx, log, batch[0])
	}
}

// process runs one check end to end: provider call, threshold comparison,
// queue completion and status transition.
func (p *Poller) process(ctx context.Context, log *slog.Logger, req domain.CheckRequest) {
	board, err := p.registry.Get(req.Key.BoardID)
	if err != nil {
		// Unknown board: permanent, no provider call.
		p.failPermanently(ctx, req, err)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.ProviderTimeout)
	observed, err := p.fetch(callCtx, req)
	cancel()

	if err != nil {
		p.handleError(ctx, log, req, err)
		return
	}

	result := domain.CheckResult{
		Req:           req,
		ObservedValue: observed,
		Satisfied:     observed >= board.Threshold(req.Key.Kind),
		CheckedAt:     p.now(),
	}
	if !p.queue.Complete(ctx, req.Key) {
		// Canceled or superseded while in flight.
		log.Debug("Discarding result for canceled check", "key", req.Key)
		return
	}
	p.store.ApplyResult(ctx, result)
}

func (p *Poller) fetch(ctx context.Context, req domain.CheckRequest) (int, error) {
	switch req.Key.Kind {
	case domain.KindFollowers:
		return p.client.FetchFollowerCount(ctx, req.Key.Wallet)
	case domain.KindTokenHolders:
		return p.client.FetchTokenHolders(ctx, req.Key.Wallet)
	}
	return 0, &domain.ProviderError{
		Kind:  domain.ProviderMalformed,
		Cause: fmt.Errorf("unknown requirement kind %q", req.Key.Kind),
	}
}

func (p *Poller) handleError(ctx context.Context, log *slog.Logger, req domain.CheckRequest, err error) {
	pe := domain.AsProviderError(err)

	if pe.Kind == domain.ProviderRateLimited {
		// A 429 backs off every worker, not just this request. The
		// request itself did nothing wrong, so it goes back without
		// spending an attempt.
		p.holdAll(pe.RetryAfter)
		hold := pe.RetryAfter
		if hold <= 0 {
			hold = defaultHold
		}
		p.queue.Release(ctx, req.Key, hold)
		return
	}

	if !pe.Transient() {
		log.Warn("Permanent provider error", "key", req.Key, "kind", pe.Kind, "error", err)
		p.failPermanently(ctx, req, err)
		return
	}

	log.Debug("Transient provider error, requeueing", "key", req.Key, "kind", pe.Kind, "attempt", req.AttemptCount+1)
	if rqErr := p.queue.RequeueAfterFailure(ctx, req.Key); errors.Is(rqErr, domain.ErrRetriesExhausted) {
		log.Warn("Retries exhausted", "key", req.Key, "error", err)
		p.store.ApplyFailure(ctx, domain.CheckFailure{Req: req, Err: rqErr})
	}
}

func (p *Poller) failPermanently(ctx context.Context, req domain.CheckRequest, err error) {
	if !p.queue.Complete(ctx, req.Key) {
		return
	}
	p.store.ApplyFailure(ctx, domain.CheckFailure{Req: req, Err: err})
}

// holdAll pauses dequeueing across all workers until the provider's
// rate-limit window passes.
func (p *Poller) holdAll(retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = defaultHold
	}
	until := p.now().Add(retryAfter)

	p.holdMu.Lock()
	if until.After(p.holdUntil) {
		p.holdUntil = until
		metrics.RateLimiterHolds.Inc()
		p.log.Warn("Provider rate limited, holding all workers", "until", until)
	}
	p.holdMu.Unlock()
}

// waitForHold blocks while a global hold is active. Returns false when the
// poller is stopping.
func (p *Poller) waitForHold(ctx context.Context) bool {
	for {
		p.holdMu.Lock()
		wait := p.holdUntil.Sub(p.now())
		p.holdMu.Unlock()
		if wait <= 0 {
			return true
		}
		if !p.sleep(ctx, wait) {
			return false
		}
	}
}

func (p *Poller) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-p.stop:
		return false
	case <-timer.C:
		return true
	}
}
