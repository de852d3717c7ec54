package scraper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/speisekarte-scraper/config"
)

// retryManager re-issues failed requests with capped exponential backoff.
// Retries go through colly.Request.Retry so the request context, and the
// record carried in it, survive.
type retryManager struct {
	cfg     *config.Config
	metrics *Metrics
	ctx     context.Context
	// abandon, when set, receives retries that could not be re-issued.
	abandon func(r *colly.Request, err error)

	mu           sync.Mutex
	idle         *sync.Cond
	attempts     map[string]int
	timers       map[uint64]*time.Timer
	nextTimer    uint64
	totalRetries int
	stopped      bool
}

func newRetryManager(cfg *config.Config, metrics *Metrics) *retryManager {
	rm := &retryManager{
		cfg:      cfg,
		attempts: make(map[string]int),
		timers:   make(map[uint64]*time.Timer),
		metrics:  metrics,
		ctx:      context.Background(),
	}
	rm.idle = sync.NewCond(&rm.mu)
	return rm
}

// Schedule arranges a retry of r and reports whether one was scheduled.
func (rm *retryManager) Schedule(r *colly.Request) bool {
	if rm.cfg.MaxRetries == 0 || r == nil || r.URL == nil {
		return false
	}
	url := r.URL.String()

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.stopped || rm.ctx.Err() != nil {
		return false
	}

	attempt := rm.attempts[url]
	if attempt >= rm.cfg.MaxRetries {
		return false
	}

	attempt++
	rm.attempts[url] = attempt
	rm.totalRetries++
	if rm.metrics != nil {
		rm.metrics.IncRetries()
	}

	delay := rm.backoff(attempt)
	id := rm.nextTimer
	rm.nextTimer++
	rm.timers[id] = time.AfterFunc(delay, func() {
		rm.fireRetry(id, r)
	})
	slog.Debug("retry scheduled",
		slog.String("url", url),
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay),
	)
	return true
}

func (rm *retryManager) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := rm.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if ceiling := rm.cfg.RetryBackoffMax; ceiling > 0 && (delay > ceiling || delay <= 0) {
		delay = ceiling
	}
	return delay
}

func (rm *retryManager) fireRetry(id uint64, r *colly.Request) {
	defer func() {
		rm.mu.Lock()
		delete(rm.timers, id)
		rm.idle.Broadcast()
		rm.mu.Unlock()
	}()

	rm.mu.Lock()
	stopped := rm.stopped
	ctx := rm.ctx
	rm.mu.Unlock()

	if stopped || ctx.Err() != nil {
		return
	}
	if err := r.Retry(); err != nil {
		slog.Debug("retry visit failed", slog.String("url", r.URL.String()), slog.Any("error", err))
		if rm.abandon != nil {
			rm.abandon(r, err)
		}
	}
}

// Wait blocks until no retry timer is pending and reports whether it had to
// wait. A fired retry has already been handed to the collector by then.
func (rm *retryManager) Wait() bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	waited := false
	for len(rm.timers) > 0 {
		waited = true
		rm.idle.Wait()
	}
	return waited
}

func (rm *retryManager) Stop() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.stopped {
		return
	}

	rm.stopped = true
	for id, timer := range rm.timers {
		timer.Stop()
		delete(rm.timers, id)
	}
	rm.idle.Broadcast()
}

func (rm *retryManager) TotalRetries() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.totalRetries
}

func (rm *retryManager) SetContext(ctx context.Context) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if ctx == nil {
		rm.ctx = context.Background()
		return
	}
	rm.ctx = ctx
}
