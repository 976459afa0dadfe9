package locqueue

import (
	"bytes"
	"testing"
)

func TestEntryKeysSortBySeq(t *testing.T) {
	prev := KeyEntry("q", 0)
	for _, seq := range []uint64{1, 2, 255, 256, 1 << 20, 1 << 40} {
		k := KeyEntry("q", seq)
		if bytes.Compare(prev, k) >= 0 {
			t.Fatalf("keys not ordered at seq %d", seq)
		}
		prev = k
	}
}

func TestSeqFromEntryKeyRoundTrip(t *testing.T) {
	for _, seq := range []uint64{0, 1, 1 << 33, ^uint64(0)} {
		if got := SeqFromEntryKey(KeyEntry("drv", seq)); got != seq {
			t.Fatalf("got %d want %d", got, seq)
		}
	}
}

func TestEntryBoundsCoverEntries(t *testing.T) {
	low, high := KeyEntryBounds("q")
	k := KeyEntry("q", 12)
	if bytes.Compare(k, low) < 0 || bytes.Compare(k, high) >= 0 {
		t.Fatalf("entry key outside bounds")
	}
	// watermark keys live outside the entry range
	if m := KeyLastSeq("q"); bytes.Compare(m, low) >= 0 && bytes.Compare(m, high) < 0 {
		t.Fatalf("lastSeq key collides with entry range")
	}
	if a := KeyLastApplied("q"); bytes.Compare(a, low) >= 0 && bytes.Compare(a, high) < 0 {
		t.Fatalf("applied key collides with entry range")
	}
}

func TestQueuesAreIsolated(t *testing.T) {
	if bytes.Equal(KeyEntry("a", 1), KeyEntry("b", 1)) {
		t.Fatalf("queues share entry keys")
	}
	if bytes.Equal(KeyLastSeq("a"), KeyLastSeq("b")) {
		t.Fatalf("queues share watermark keys")
	}
}
