package locqueue

import (
	"strings"
	"testing"
)

func TestEncodeDecodeEntry(t *testing.T) {
	in := QueuedSample{Seq: 42, Sample: validSample(), QueuedAt: 1_700_000_000_123}
	b, err := EncodeEntry(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, ok := DecodeEntry(b)
	if !ok {
		t.Fatalf("decode failed")
	}
	if out.Seq != in.Seq || out.QueuedAt != in.QueuedAt || out.DeviceTime != in.DeviceTime {
		t.Fatalf("round trip mismatch: %+v vs %+v", out, in)
	}
}

func TestDecodeRejectsCorruption(t *testing.T) {
	b, err := EncodeEntry(QueuedSample{Seq: 1, Sample: validSample(), QueuedAt: 7})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	b[len(b)/2] ^= 0xff
	if _, ok := DecodeEntry(b); ok {
		t.Fatalf("expected corrupt entry to be rejected")
	}
	if _, ok := DecodeEntry(b[:3]); ok {
		t.Fatalf("expected truncated entry to be rejected")
	}
}

func TestPayloadOmitsLocalFields(t *testing.T) {
	b, err := EncodeEntry(QueuedSample{Seq: 9, Sample: validSample(), QueuedAt: 555})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// the stored payload is the outbound JSON; queuedAt lives only in the
	// binary header
	if strings.Contains(string(b), "queuedAt") {
		t.Fatalf("local-only field leaked into payload")
	}
}
