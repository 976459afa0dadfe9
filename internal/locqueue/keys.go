package locqueue

import (
	"encoding/binary"
)

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
// - lq/{queue}/e/{seq_be8}  one record per pending sample
// - lq/{queue}/m            lastSeq watermark (8-byte BE)
// - lq/{queue}/a            lastAppliedSeq watermark (8-byte BE)

var (
	lqPrefix      = []byte("lq/")
	entrySeg      = []byte("/e/")
	lastSeqSuffix = []byte("/m")
	appliedSuffix = []byte("/a")
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// KeyEntry builds the entry key with a big-endian sequence for ordering.
func KeyEntry(queue string, seq uint64) []byte {
	k := make([]byte, 0, len(queue)+16)
	k = append(k, lqPrefix...)
	k = append(k, queue...)
	k = append(k, entrySeg...)
	k = appendBE8(k, seq)
	return k
}

// KeyEntryBounds returns [low, high) covering all entry keys for a queue.
func KeyEntryBounds(queue string) (low, high []byte) {
	low = KeyEntry(queue, 0)
	high = KeyEntry(queue, ^uint64(0))
	high = append(high, 0x00)
	return low, high
}

// SeqFromEntryKey extracts the sequence from an entry key.
func SeqFromEntryKey(key []byte) uint64 {
	if len(key) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(key[len(key)-8:])
}

// KeyLastSeq builds the lastSeq watermark key.
func KeyLastSeq(queue string) []byte {
	k := make([]byte, 0, len(queue)+8)
	k = append(k, lqPrefix...)
	k = append(k, queue...)
	k = append(k, lastSeqSuffix...)
	return k
}

// KeyLastApplied builds the lastAppliedSeq watermark key.
func KeyLastApplied(queue string) []byte {
	k := make([]byte, 0, len(queue)+8)
	k = append(k, lqPrefix...)
	k = append(k, queue...)
	k = append(k, appliedSuffix...)
	return k
}

func encodeSeq(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func decodeSeq(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b[:8])
}
