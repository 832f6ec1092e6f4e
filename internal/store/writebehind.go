package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/solmae/animus/internal/fault"
)

const (
	// DefaultFlushDelay is how long a dirty entry may sit in the queue
	// before it must reach the database.
	DefaultFlushDelay = 2 * time.Second

	// DefaultRetryBase is the first retry backoff after a failed write.
	DefaultRetryBase = 100 * time.Millisecond

	// DefaultRetryCap bounds the exponential backoff.
	DefaultRetryCap = 5 * time.Second

	// DefaultMaxAttempts is how many times an op is tried before it is
	// dropped and reported through OnDrop.
	DefaultMaxAttempts = 5
)

// WriteOp is a deferred store mutation. Ops must be idempotent: a retry
// after a transient failure re-executes the whole op, and a newer op
// enqueued under the same key replaces an older one wholesale.
type WriteOp func(ctx context.Context) error

// WriteBehindConfig configures a [WriteBehind]. Zero-value fields are
// replaced with defaults.
type WriteBehindConfig struct {
	// FlushDelay is the coalescing window: an entry flushes within this
	// long of its first enqueue, however many times it is replaced.
	FlushDelay time.Duration

	// RetryBase is the initial backoff after a failed write. Doubles per
	// attempt up to RetryCap.
	RetryBase time.Duration

	// RetryCap bounds the backoff.
	RetryCap time.Duration

	// MaxAttempts is the total tries per op before giving up.
	MaxAttempts int

	// OnDrop is called when an op exhausts its attempts. Optional.
	OnDrop func(key string, err error)

	// Logger receives flush diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

func (c *WriteBehindConfig) setDefaults() {
	if c.FlushDelay <= 0 {
		c.FlushDelay = DefaultFlushDelay
	}
	if c.RetryBase <= 0 {
		c.RetryBase = DefaultRetryBase
	}
	if c.RetryCap <= 0 {
		c.RetryCap = DefaultRetryCap
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// pendingWrite is one coalesced queue entry.
type pendingWrite struct {
	key       string
	op        WriteOp
	due       time.Time // earliest flush time, fixed at first enqueue
	attempts  int
	notBefore time.Time // backoff gate after a failure
}

// WriteBehind is a coalescing write queue in front of the [Store]. Hot
// mutation paths enqueue ops keyed by the row they touch ("agent:guard-01",
// "faction:iron_brotherhood"); repeated writes to the same key within the
// flush window collapse to the latest op, which runs once.
//
// The queue trades read-your-writes for throughput: callers hold the
// authoritative in-memory state and use the store purely for durability,
// so a write sitting in the queue is never read back stale.
//
// All methods are safe for concurrent use.
type WriteBehind struct {
	cfg WriteBehindConfig
	log *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingWrite
	lastErr error
	dropped uint64

	done     chan struct{}
	stopOnce sync.Once
}

// NewWriteBehind creates a stopped [WriteBehind]. Call [WriteBehind.Start]
// to begin background flushing.
func NewWriteBehind(cfg WriteBehindConfig) *WriteBehind {
	cfg.setDefaults()
	return &WriteBehind{
		cfg:     cfg,
		log:     cfg.Logger.With("component", "write-behind"),
		pending: make(map[string]*pendingWrite),
		done:    make(chan struct{}),
	}
}

// Start begins the background flush loop. The goroutine runs until
// [WriteBehind.Close] is called or ctx is cancelled.
func (w *WriteBehind) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Enqueue schedules op under key. If an op is already queued for the key
// the new op replaces it but keeps the original due time, so a hot key
// still reaches the database within the flush window of its first write.
func (w *WriteBehind) Enqueue(key string, op WriteOp) {
	now := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	if existing, ok := w.pending[key]; ok {
		existing.op = op
		existing.attempts = 0
		existing.notBefore = time.Time{}
		return
	}
	w.pending[key] = &pendingWrite{
		key: key,
		op:  op,
		due: now.Add(w.cfg.FlushDelay),
	}
}

// Pending returns the queue depth.
func (w *WriteBehind) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Dropped returns how many ops were abandoned after exhausting retries.
func (w *WriteBehind) Dropped() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}

// Healthy reports whether the most recent flush attempt succeeded. A false
// return means the database is rejecting writes and the queue is backing
// off; readiness probes surface this as store_unavailable.
func (w *WriteBehind) Healthy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr == nil
}

// Flush synchronously drains the queue, ignoring due times and backoff
// gates. Entries that keep failing are retried up to their remaining
// attempts and then dropped. Returns a store_unavailable error when any
// op was dropped during the drain.
func (w *WriteBehind) Flush(ctx context.Context) error {
	w.mu.Lock()
	droppedBefore := w.dropped
	w.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("store: flush: %w", err)
		}
		w.mu.Lock()
		remaining := len(w.pending)
		w.mu.Unlock()
		if remaining == 0 {
			break
		}
		w.flushReady(ctx, time.Now(), true)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.dropped > droppedBefore {
		msg := fmt.Sprintf("flush dropped %d writes", w.dropped-droppedBefore)
		if w.lastErr != nil {
			return fault.Wrap(fault.StoreUnavailable, msg, w.lastErr)
		}
		return fault.New(fault.StoreUnavailable, msg)
	}
	return nil
}

// Close stops the background loop and performs a final drain with ctx as
// the deadline. Safe to call multiple times.
func (w *WriteBehind) Close(ctx context.Context) error {
	w.stopOnce.Do(func() {
		close(w.done)
	})
	return w.Flush(ctx)
}

// loop sweeps for due entries. The sweep period is a quarter of the flush
// delay so an entry lands at most ~1.25 windows after its first enqueue.
func (w *WriteBehind) loop(ctx context.Context) {
	interval := w.cfg.FlushDelay / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-ticker.C:
			w.flushReady(ctx, time.Now(), false)
		}
	}
}

// flushReady claims every entry whose due time and backoff gate have
// passed (or everything, when force is set), then executes the claimed ops
// without holding the lock. Failed ops re-queue unless a newer op arrived
// for the same key while they ran.
func (w *WriteBehind) flushReady(ctx context.Context, now time.Time, force bool) {
	w.mu.Lock()
	var ready []*pendingWrite
	for key, pw := range w.pending {
		if force || (!now.Before(pw.due) && !now.Before(pw.notBefore)) {
			ready = append(ready, pw)
			delete(w.pending, key)
		}
	}
	w.mu.Unlock()

	if len(ready) == 0 {
		return
	}
	sort.Slice(ready, func(i, j int) bool {
		if !ready[i].due.Equal(ready[j].due) {
			return ready[i].due.Before(ready[j].due)
		}
		return ready[i].key < ready[j].key
	})

	for _, pw := range ready {
		err := pw.op(ctx)
		if err == nil {
			w.mu.Lock()
			w.lastErr = nil
			w.mu.Unlock()
			continue
		}

		pw.attempts++
		if pw.attempts >= w.cfg.MaxAttempts {
			w.mu.Lock()
			w.dropped++
			w.lastErr = err
			w.mu.Unlock()
			w.log.Error("write dropped after retries",
				"key", pw.key,
				"attempts", pw.attempts,
				"error", err,
			)
			if w.cfg.OnDrop != nil {
				w.cfg.OnDrop(pw.key, err)
			}
			continue
		}

		pw.notBefore = now.Add(w.backoff(pw.attempts))
		w.mu.Lock()
		w.lastErr = err
		// A newer op for the key wins; the failed one is superseded.
		if _, exists := w.pending[pw.key]; !exists {
			w.pending[pw.key] = pw
		}
		w.mu.Unlock()
		w.log.Warn("write failed, backing off",
			"key", pw.key,
			"attempt", pw.attempts,
			"error", err,
		)
	}
}

// backoff returns the delay before retry number attempt (1-based):
// base, 2*base, 4*base, ... capped at RetryCap.
func (w *WriteBehind) backoff(attempt int) time.Duration {
	d := w.cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= w.cfg.RetryCap {
			return w.cfg.RetryCap
		}
	}
	if d > w.cfg.RetryCap {
		return w.cfg.RetryCap
	}
	return d
}
