package locqueue

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/brdigitals4u/ttm-eld-mobile-sub000/internal/storage/pebble"
	logpkg "github.com/brdigitals4u/ttm-eld-mobile-sub000/pkg/log"
)

// nowMs is swapped in tests.
var nowMs = func() int64 { return time.Now().UnixMilli() }

// Store is the authoritative, crash-consistent representation of the queue
// and its two watermarks.
//
// The in-memory state is authoritative: every logical mutation is applied in
// memory first and then persisted through one committed batch. A storage
// write failure is logged, never raised; the entry survives in memory and is
// re-persisted opportunistically by the next successful mutation. A crash in
// that window can re-deliver already-flushed data, which the at-least-once
// contract allows.
type Store struct {
	db     *pebblestore.DB
	queue  string
	logger logpkg.Logger

	mu          sync.Mutex
	entries     []QueuedSample // ascending by Seq
	lastSeq     uint64
	lastApplied uint64
	gen         uint64 // bumped by Reset; stale reconciliations carry the old value
}

// OpenStore loads the queue and watermarks for the named queue. Entries at
// or below the loaded lastAppliedSeq are dropped and deleted: a prior run
// may have persisted the applied watermark and crashed before pruning.
func OpenStore(db *pebblestore.DB, queue string, logger logpkg.Logger) (*Store, error) {
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("store"))
	}
	s := &Store{db: db, queue: queue, logger: logger}

	if v, err := db.Get(KeyLastSeq(queue)); err == nil {
		s.lastSeq = decodeSeq(v)
	} else if !pebblestore.IsNotFound(err) {
		return nil, err
	}
	if v, err := db.Get(KeyLastApplied(queue)); err == nil {
		s.lastApplied = decodeSeq(v)
	} else if !pebblestore.IsNotFound(err) {
		return nil, err
	}

	low, high := KeyEntryBounds(queue)
	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: high})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var stale []uint64
	for ok := iter.First(); ok; ok = iter.Next() {
		seq := SeqFromEntryKey(iter.Key())
		dec, okDec := DecodeEntry(iter.Value())
		if !okDec || dec.Seq != seq {
			s.logger.Warn("dropping corrupt queue entry", logpkg.Uint64("seq", seq))
			stale = append(stale, seq)
			continue
		}
		if seq <= s.lastApplied {
			stale = append(stale, seq)
			continue
		}
		s.entries = append(s.entries, dec)
		if seq > s.lastSeq {
			// entry persisted after the lastSeq watermark write was lost
			s.lastSeq = seq
		}
	}

	if len(stale) > 0 {
		b := db.NewBatch()
		for _, seq := range stale {
			if err := b.Delete(KeyEntry(queue, seq), nil); err != nil {
				b.Close()
				return nil, err
			}
		}
		if err := db.CommitBatch(context.Background(), b); err != nil {
			b.Close()
			return nil, err
		}
		b.Close()
		s.logger.Info("removed stale queue entries",
			logpkg.Int("count", len(stale)),
			logpkg.Uint64("last_applied", s.lastApplied))
	}
	return s, nil
}

// Append allocates the next sequence number and durably enqueues the sample.
// Allocation and append are one atomic step under the store mutex: two
// concurrent producers never receive the same sequence.
func (s *Store) Append(ctx context.Context, sample Sample) QueuedSample {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSeq++
	q := QueuedSample{Seq: s.lastSeq, Sample: sample, QueuedAt: nowMs()}
	s.entries = append(s.entries, q)

	val, err := EncodeEntry(q)
	if err != nil {
		// encoding a validated sample cannot fail; keep the entry in memory
		s.logger.Error("encode queue entry", logpkg.Uint64("seq", q.Seq), logpkg.Err(err))
		return q
	}
	b := s.db.NewBatch()
	defer b.Close()
	err = b.Set(KeyEntry(s.queue, q.Seq), val, nil)
	if err == nil {
		err = b.Set(KeyLastSeq(s.queue), encodeSeq(s.lastSeq), nil)
	}
	if err == nil {
		err = s.db.CommitBatch(ctx, b)
	}
	if err != nil {
		s.logger.Warn("persist append failed; retaining in memory",
			logpkg.Uint64("seq", q.Seq), logpkg.Err(err))
	}
	return q
}

// Generation returns the reset generation. A flush captures it before taking
// its snapshot and hands it back to PruneIfCurrent, so a reconciliation that
// raced a Reset is recognized and discarded.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Prune removes every entry with seq <= uptoSeq and advances lastAppliedSeq
// to max(lastAppliedSeq, uptoSeq). Idempotent.
func (s *Store) Prune(ctx context.Context, uptoSeq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(ctx, uptoSeq)
}

// PruneIfCurrent applies Prune only when gen still matches the store's reset
// generation. Reports whether the prune was applied. The generation check and
// the prune are one atomic step, so a Reset can never land between them.
func (s *Store) PruneIfCurrent(ctx context.Context, uptoSeq uint64, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}
	s.pruneLocked(ctx, uptoSeq)
	return true
}

// pruneLocked clamps uptoSeq to the allocated sequence space: a server ack
// beyond the submitted batch must not advance the watermark past lastSeq and
// strand future allocations at or below it.
func (s *Store) pruneLocked(ctx context.Context, uptoSeq uint64) {
	if uptoSeq > s.lastSeq {
		uptoSeq = s.lastSeq
	}

	var removed []uint64
	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.Seq <= uptoSeq {
			removed = append(removed, e.Seq)
		} else {
			kept = append(kept, e)
		}
	}
	s.entries = kept
	if uptoSeq > s.lastApplied {
		s.lastApplied = uptoSeq
	}

	b := s.db.NewBatch()
	defer b.Close()
	for _, seq := range removed {
		if err := b.Delete(KeyEntry(s.queue, seq), nil); err != nil {
			s.logger.Warn("persist prune failed", logpkg.Err(err))
			return
		}
	}
	if err := b.Set(KeyLastApplied(s.queue), encodeSeq(s.lastApplied), nil); err != nil {
		s.logger.Warn("persist prune failed", logpkg.Err(err))
		return
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		s.logger.Warn("persist prune failed; in-memory state remains authoritative",
			logpkg.Uint64("upto", uptoSeq), logpkg.Err(err))
	}
}

// Reset clears the queue and both watermarks, in memory and in storage.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.db.NewBatch()
	defer b.Close()
	for _, e := range s.entries {
		if err := b.Delete(KeyEntry(s.queue, e.Seq), nil); err != nil {
			return err
		}
	}
	if err := b.Delete(KeyLastSeq(s.queue), nil); err != nil {
		return err
	}
	if err := b.Delete(KeyLastApplied(s.queue), nil); err != nil {
		return err
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return err
	}
	s.entries = nil
	s.lastSeq = 0
	s.lastApplied = 0
	s.gen++
	return nil
}

// Snapshot returns a copy of the pending entries in ascending seq order.
func (s *Store) Snapshot() []QueuedSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]QueuedSample, len(s.entries))
	copy(out, s.entries)
	return out
}

// Size returns the number of entries currently retained.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// LastSeq returns the highest sequence number ever allocated.
func (s *Store) LastSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeq
}

// LastAppliedSeq returns the highest server-confirmed sequence number.
func (s *Store) LastAppliedSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastApplied
}
