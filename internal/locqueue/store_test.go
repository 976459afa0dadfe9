package locqueue

import (
	"context"
	"fmt"
	"sync"
	"testing"

	pebblestore "github.com/brdigitals4u/ttm-eld-mobile-sub000/internal/storage/pebble"
	logpkg "github.com/brdigitals4u/ttm-eld-mobile-sub000/pkg/log"
)

func testLogger() logpkg.Logger {
	l, _ := logpkg.ApplyConfig(&logpkg.Config{Level: "error", Output: "null"})
	return l
}

func newTestDB(t *testing.T) *pebblestore.DB {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(newTestDB(t), "test", testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func sampleAt(i int) Sample {
	return Sample{
		DeviceTime: fmt.Sprintf("2026-08-28T10:%02d:00Z", i),
		Latitude:   37.0 + float64(i)*0.001,
		Longitude:  -122.0,
	}
}

func TestAppendAssignsSequentialNoGaps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		q := s.Append(ctx, sampleAt(i))
		if q.Seq != uint64(i) {
			t.Fatalf("want seq %d got %d", i, q.Seq)
		}
	}
	if s.Size() != 5 || s.LastSeq() != 5 {
		t.Fatalf("size=%d lastSeq=%d", s.Size(), s.LastSeq())
	}
}

func TestAppendConcurrentUniqueSeqs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	const workers, per = 8, 25

	var wg sync.WaitGroup
	seqs := make(chan uint64, workers*per)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < per; i++ {
				seqs <- s.Append(ctx, sampleAt(i)).Seq
			}
		}(w)
	}
	wg.Wait()
	close(seqs)

	seen := make(map[uint64]bool, workers*per)
	for seq := range seqs {
		if seen[seq] {
			t.Fatalf("duplicate seq %d", seq)
		}
		seen[seq] = true
	}
	// gap-free: exactly 1..N allocated
	for i := uint64(1); i <= workers*per; i++ {
		if !seen[i] {
			t.Fatalf("gap at seq %d", i)
		}
	}
}

func TestPruneRemovesConfirmedPrefix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 1; i <= 10; i++ {
		s.Append(ctx, sampleAt(i))
	}
	s.Prune(ctx, 7)

	if s.LastAppliedSeq() != 7 {
		t.Fatalf("lastApplied=%d", s.LastAppliedSeq())
	}
	snap := s.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("want 3 remaining, got %d", len(snap))
	}
	for i, want := range []uint64{8, 9, 10} {
		if snap[i].Seq != want {
			t.Fatalf("remaining[%d]=%d want %d", i, snap[i].Seq, want)
		}
	}
}

func TestPruneIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 1; i <= 4; i++ {
		s.Append(ctx, sampleAt(i))
	}
	s.Prune(ctx, 2)
	s.Prune(ctx, 2)
	if s.Size() != 2 || s.LastAppliedSeq() != 2 {
		t.Fatalf("size=%d applied=%d", s.Size(), s.LastAppliedSeq())
	}
	// pruning below the watermark never regresses it
	s.Prune(ctx, 1)
	if s.LastAppliedSeq() != 2 {
		t.Fatalf("watermark regressed to %d", s.LastAppliedSeq())
	}
}

func TestPruneClampsToAllocatedSeqs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		s.Append(ctx, sampleAt(i))
	}
	// a server ack beyond the submitted batch confirms at most what exists
	s.Prune(ctx, 99)
	if s.LastAppliedSeq() != 3 || s.Size() != 0 {
		t.Fatalf("applied=%d size=%d", s.LastAppliedSeq(), s.Size())
	}
	// the next allocation stays above the watermark
	if q := s.Append(ctx, sampleAt(4)); q.Seq != 4 {
		t.Fatalf("seq after clamped prune: %d", q.Seq)
	}
}

func TestPruneIfCurrentDropsStaleGeneration(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		s.Append(ctx, sampleAt(i))
	}
	gen := s.Generation()
	if err := s.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	s.Append(ctx, sampleAt(1))
	s.Append(ctx, sampleAt(2))

	if s.PruneIfCurrent(ctx, 5, gen) {
		t.Fatalf("stale generation pruned")
	}
	if s.Size() != 2 || s.LastAppliedSeq() != 0 {
		t.Fatalf("stale prune mutated state: size=%d applied=%d", s.Size(), s.LastAppliedSeq())
	}
	// the current generation still reconciles
	if !s.PruneIfCurrent(ctx, 1, s.Generation()) {
		t.Fatalf("current generation rejected")
	}
	if s.Size() != 1 || s.LastAppliedSeq() != 1 {
		t.Fatalf("size=%d applied=%d", s.Size(), s.LastAppliedSeq())
	}
}

func TestReopenReproducesState(t *testing.T) {
	dir := t.TempDir()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	ctx := context.Background()
	s, err := OpenStore(db, "test", testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	for i := 1; i <= 6; i++ {
		s.Append(ctx, sampleAt(i))
	}
	s.Prune(ctx, 2)
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db2, err := pebblestore.Open(pebblestore.Options{DataDir: dir})
	if err != nil {
		t.Fatalf("reopen pebble: %v", err)
	}
	t.Cleanup(func() { _ = db2.Close() })
	s2, err := OpenStore(db2, "test", testLogger())
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	if s2.LastSeq() != 6 || s2.LastAppliedSeq() != 2 || s2.Size() != 4 {
		t.Fatalf("restored lastSeq=%d applied=%d size=%d", s2.LastSeq(), s2.LastAppliedSeq(), s2.Size())
	}
	// sequence space continues, never reused
	if q := s2.Append(ctx, sampleAt(7)); q.Seq != 7 {
		t.Fatalf("seq after reopen: %d", q.Seq)
	}
}

func TestOpenFiltersEntriesAtOrBelowWatermark(t *testing.T) {
	// simulate a run that appended {3,4,6,7}, persisted applied=5, and
	// crashed before pruning
	db := newTestDB(t)
	for _, seq := range []uint64{3, 4, 6, 7} {
		val, err := EncodeEntry(QueuedSample{Seq: seq, Sample: sampleAt(int(seq)), QueuedAt: 1000})
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if err := db.Set(KeyEntry("test", seq), val); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	if err := db.Set(KeyLastSeq("test"), encodeSeq(7)); err != nil {
		t.Fatalf("set lastSeq: %v", err)
	}
	if err := db.Set(KeyLastApplied("test"), encodeSeq(5)); err != nil {
		t.Fatalf("set applied: %v", err)
	}

	s, err := OpenStore(db, "test", testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	snap := s.Snapshot()
	if len(snap) != 2 || snap[0].Seq != 6 || snap[1].Seq != 7 {
		t.Fatalf("expected {6,7}, got %+v", snap)
	}
	// stale entries were deleted from disk too
	if _, err := db.Get(KeyEntry("test", 3)); !pebblestore.IsNotFound(err) {
		t.Fatalf("stale entry 3 still on disk: %v", err)
	}
}

func TestOpenDropsCorruptEntries(t *testing.T) {
	db := newTestDB(t)
	if err := db.Set(KeyEntry("test", 1), []byte("garbage")); err != nil {
		t.Fatalf("set: %v", err)
	}
	s, err := OpenStore(db, "test", testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if s.Size() != 0 {
		t.Fatalf("corrupt entry loaded")
	}
}

func TestOpenRecoversLastSeqFromEntries(t *testing.T) {
	// entry persisted but the lastSeq watermark write was lost
	db := newTestDB(t)
	val, err := EncodeEntry(QueuedSample{Seq: 9, Sample: sampleAt(9), QueuedAt: 1})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := db.Set(KeyEntry("test", 9), val); err != nil {
		t.Fatalf("set: %v", err)
	}
	s, err := OpenStore(db, "test", testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if s.LastSeq() != 9 {
		t.Fatalf("lastSeq not recovered: %d", s.LastSeq())
	}
	if q := s.Append(context.Background(), sampleAt(10)); q.Seq != 10 {
		t.Fatalf("seq reused: %d", q.Seq)
	}
}

func TestResetClearsEverything(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		s.Append(ctx, sampleAt(i))
	}
	s.Prune(ctx, 1)
	if err := s.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if s.Size() != 0 || s.LastSeq() != 0 || s.LastAppliedSeq() != 0 {
		t.Fatalf("state not cleared")
	}
	// sequence space restarts after an explicit reset
	if q := s.Append(ctx, sampleAt(1)); q.Seq != 1 {
		t.Fatalf("seq after reset: %d", q.Seq)
	}
}
