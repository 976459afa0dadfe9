package locqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pebblestore "github.com/brdigitals4u/ttm-eld-mobile-sub000/internal/storage/pebble"
	logpkg "github.com/brdigitals4u/ttm-eld-mobile-sub000/pkg/log"
)

// DeliveryResult is the server's response to one submitted batch.
type DeliveryResult struct {
	// AppliedUpToSeq, when present, is the highest sequence the server
	// durably processed. Entries above it were not confirmed and stay
	// queued. When absent, the server's contract guarantees the whole
	// batch was processed.
	AppliedUpToSeq *uint64 `json:"appliedUpToSeq,omitempty"`

	ProcessedCount int `json:"processedCount,omitempty"`

	// AutoStatusChanges carries server-driven state changes inferred from
	// the ingested locations. Forwarded verbatim to the side-effect
	// handler; never interpreted here.
	AutoStatusChanges []json.RawMessage `json:"autoStatusChanges,omitempty"`
}

// Delivery submits one batch to the ingestion service.
type Delivery interface {
	SubmitBatch(ctx context.Context, batch []BatchSample) (*DeliveryResult, error)
}

// SideEffectHandler observes server-driven state changes carried in a
// delivery response.
type SideEffectHandler func(changes []json.RawMessage)

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithFlushThreshold sets the queue size at which an append triggers a
// flush. Default 10.
func WithFlushThreshold(n int) QueueOption {
	return func(q *Queue) {
		if n >= 1 {
			q.threshold = n
		}
	}
}

// WithQueueLogger sets the logger.
func WithQueueLogger(l logpkg.Logger) QueueOption {
	return func(q *Queue) { q.logger = l }
}

// Queue is the producer-facing service object over the durable store, the
// flush controller, and the side-effect dispatcher. Construct one per
// process and share it by reference.
type Queue struct {
	db        *pebblestore.DB
	name      string
	delivery  Delivery
	logger    logpkg.Logger
	threshold int

	// initOnce is the single-slot initialization future: concurrent
	// EnsureInitialized callers wait on one load outcome instead of
	// re-reading storage, which would re-allocate sequence numbers.
	initOnce sync.Once
	initErr  error
	store    *Store

	// flushing is the flush controller's mutual-exclusion guard.
	flushing atomic.Bool

	handlerMu sync.RWMutex
	handler   SideEffectHandler

	timerMu   sync.Mutex
	timerStop chan struct{}
}

// NewQueue builds a Queue over db for the named queue. Storage is not read
// until EnsureInitialized (or the first operation).
func NewQueue(db *pebblestore.DB, name string, delivery Delivery, opts ...QueueOption) *Queue {
	q := &Queue{
		db:        db,
		name:      name,
		delivery:  delivery,
		threshold: 10,
	}
	for _, o := range opts {
		o(q)
	}
	if q.logger == nil {
		q.logger = logpkg.NewLogger().With(logpkg.Component("locqueue"))
	}
	return q
}

// EnsureInitialized loads the queue and watermarks from storage exactly
// once. Safe for concurrent callers; later calls observe the first outcome.
func (q *Queue) EnsureInitialized(ctx context.Context) error {
	q.initOnce.Do(func() {
		store, err := OpenStore(q.db, q.name, q.logger)
		if err != nil {
			q.initErr = fmt.Errorf("locqueue: initialize: %w", err)
			return
		}
		q.store = store
		q.logger.Info("queue initialized",
			logpkg.Str("queue", q.name),
			logpkg.Int("pending", store.Size()),
			logpkg.Uint64("last_seq", store.LastSeq()),
			logpkg.Uint64("last_applied", store.LastAppliedSeq()))
	})
	return q.initErr
}

// AddLocation validates and durably enqueues one observation. When the queue
// reaches the flush threshold the append triggers an immediate flush
// attempt. Returns the assigned sequence number.
func (q *Queue) AddLocation(ctx context.Context, s Sample) (uint64, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}
	if err := q.EnsureInitialized(ctx); err != nil {
		return 0, err
	}
	qs := q.store.Append(ctx, s)
	if q.store.Size() >= q.threshold {
		q.Flush(ctx)
	}
	return qs.Seq, nil
}

// Flush attempts one delivery of the pending entries. It is a no-op when the
// queue is empty or another flush is outstanding; both return nil without
// error. A delivery failure leaves the queue untouched and returns nil: the
// next trigger retries unconditionally, with no backoff state.
func (q *Queue) Flush(ctx context.Context) *DeliveryResult {
	if err := q.EnsureInitialized(ctx); err != nil {
		q.logger.Error("flush skipped; initialization failed", logpkg.Err(err))
		return nil
	}
	if !q.flushing.CompareAndSwap(false, true) {
		return nil
	}
	defer q.flushing.Store(false)

	// Generation before snapshot: if a Reset lands anywhere between here
	// and the reconciliation, PruneIfCurrent sees a newer generation and
	// the stale reconciliation is dropped.
	gen := q.store.Generation()
	snapshot := q.store.Snapshot()
	if len(snapshot) == 0 {
		return nil
	}
	batch := make([]BatchSample, len(snapshot))
	for i, e := range snapshot {
		batch[i] = e.Outbound()
	}

	res, err := q.submit(ctx, batch)
	if err != nil {
		q.logger.Warn("delivery failed; batch remains queued",
			logpkg.Int("batch", len(batch)),
			logpkg.Uint64("first_seq", batch[0].Seq),
			logpkg.Uint64("last_seq", batch[len(batch)-1].Seq),
			logpkg.Err(err))
		return nil
	}

	// Reconcile. An explicit watermark confirms a prefix of the batch;
	// its absence confirms the whole batch. A server that fails mid-batch
	// must return the watermark or tolerate re-processing.
	upto := batch[len(batch)-1].Seq
	if res.AppliedUpToSeq != nil {
		upto = *res.AppliedUpToSeq
	}
	if !q.store.PruneIfCurrent(ctx, upto, gen) {
		// The queue was reset while the batch was in flight. The delivered
		// seqs belong to the old sequence space; applying them would prune
		// post-reset entries and resurrect the old watermark.
		q.logger.Warn("discarding reconciliation; queue was reset during delivery",
			logpkg.Int("submitted", len(batch)),
			logpkg.Uint64("applied_upto", upto))
		return nil
	}
	q.logger.Debug("flush reconciled",
		logpkg.Int("submitted", len(batch)),
		logpkg.Uint64("applied_upto", upto),
		logpkg.Int("remaining", q.store.Size()))

	q.dispatch(res.AutoStatusChanges)
	return res
}

// submit shields the controller from a panicking delivery implementation so
// the mutual-exclusion guard is always released.
func (q *Queue) submit(ctx context.Context, batch []BatchSample) (res *DeliveryResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("locqueue: delivery panic: %v", r)
		}
	}()
	res, err = q.delivery.SubmitBatch(ctx, batch)
	if err == nil && res == nil {
		res = &DeliveryResult{}
	}
	return res, err
}

// dispatch invokes the registered side-effect handler, if any. Pruning has
// already completed by the time the handler runs; a handler panic is logged
// and contained.
func (q *Queue) dispatch(changes []json.RawMessage) {
	if len(changes) == 0 {
		return
	}
	q.handlerMu.RLock()
	h := q.handler
	q.handlerMu.RUnlock()
	if h == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			q.logger.Warn("side-effect handler panicked", logpkg.Any("panic", r))
		}
	}()
	h(changes)
}

// SetSideEffectHandler registers the observer for server-driven state
// changes. Replaces any previous handler; nil detaches.
func (q *Queue) SetSideEffectHandler(h SideEffectHandler) {
	q.handlerMu.Lock()
	q.handler = h
	q.handlerMu.Unlock()
}

// StartAutoFlush starts (or restarts) the recurring flush timer.
func (q *Queue) StartAutoFlush(interval time.Duration) {
	if interval <= 0 {
		return
	}
	q.timerMu.Lock()
	defer q.timerMu.Unlock()
	if q.timerStop != nil {
		close(q.timerStop)
	}
	stop := make(chan struct{})
	q.timerStop = stop
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				q.Flush(context.Background())
			}
		}
	}()
}

// StopAutoFlush cancels future ticks. Idempotent; an attempt already in
// progress is unaffected.
func (q *Queue) StopAutoFlush() {
	q.timerMu.Lock()
	defer q.timerMu.Unlock()
	if q.timerStop != nil {
		close(q.timerStop)
		q.timerStop = nil
	}
}

// QueueSize returns the number of unconfirmed entries.
func (q *Queue) QueueSize(ctx context.Context) (int, error) {
	if err := q.EnsureInitialized(ctx); err != nil {
		return 0, err
	}
	return q.store.Size(), nil
}

// LastSeq returns the highest sequence ever allocated.
func (q *Queue) LastSeq(ctx context.Context) (uint64, error) {
	if err := q.EnsureInitialized(ctx); err != nil {
		return 0, err
	}
	return q.store.LastSeq(), nil
}

// LastAppliedSeq returns the server-confirmed watermark.
func (q *Queue) LastAppliedSeq(ctx context.Context) (uint64, error) {
	if err := q.EnsureInitialized(ctx); err != nil {
		return 0, err
	}
	return q.store.LastAppliedSeq(), nil
}

// Entries returns a snapshot of pending entries, optionally narrowed by a
// CEL predicate. Diagnostics only; never affects queue state.
func (q *Queue) Entries(ctx context.Context, filterExpr string) ([]QueuedSample, error) {
	if err := q.EnsureInitialized(ctx); err != nil {
		return nil, err
	}
	f, err := NewFilter(filterExpr)
	if err != nil {
		return nil, err
	}
	snapshot := q.store.Snapshot()
	if !f.Enabled() {
		return snapshot, nil
	}
	out := snapshot[:0]
	for _, e := range snapshot {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Reset clears the queue and both watermarks. Testing and account-switch
// use only.
func (q *Queue) Reset(ctx context.Context) error {
	if err := q.EnsureInitialized(ctx); err != nil {
		return err
	}
	return q.store.Reset(ctx)
}
