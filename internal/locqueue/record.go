package locqueue

import (
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
)

// Record encoding: varint headerLen | header | payload | crc32c(header|payload)
//
// The header is the 8-byte big-endian local enqueue time in ms; the payload
// is the canonical JSON of the outbound sample. Keeping the local-only
// timestamp in the header means the payload is exactly the bytes a flush
// would send.

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// EncodeEntry serializes a queued sample for storage.
func EncodeEntry(q QueuedSample) ([]byte, error) {
	payload, err := json.Marshal(q.Outbound())
	if err != nil {
		return nil, err
	}
	var header [8]byte
	binary.BigEndian.PutUint64(header[:], uint64(q.QueuedAt))

	out := make([]byte, 0, 10+len(header)+len(payload)+4)
	var tmp [10]byte
	n := binary.PutUvarint(tmp[:], uint64(len(header)))
	out = append(out, tmp[:n]...)
	out = append(out, header[:]...)
	out = append(out, payload...)

	crc := crc32.Update(0, castagnoli, header[:])
	crc = crc32.Update(crc, castagnoli, payload)
	var crcb [4]byte
	binary.BigEndian.PutUint32(crcb[:], crc)
	out = append(out, crcb[:]...)
	return out, nil
}

// DecodeEntry deserializes a stored entry. Returns false on framing or
// checksum corruption.
func DecodeEntry(b []byte) (QueuedSample, bool) {
	if len(b) < 1+4 {
		return QueuedSample{}, false
	}
	hlen, n := binary.Uvarint(b)
	if n <= 0 || hlen != 8 {
		return QueuedSample{}, false
	}
	if n+int(hlen)+4 > len(b) {
		return QueuedSample{}, false
	}
	header := b[n : n+int(hlen)]
	payload := b[n+int(hlen) : len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	if crc != expect {
		return QueuedSample{}, false
	}

	var bs BatchSample
	if err := json.Unmarshal(payload, &bs); err != nil {
		return QueuedSample{}, false
	}
	return QueuedSample{
		Seq:      bs.Seq,
		Sample:   bs.Sample,
		QueuedAt: int64(binary.BigEndian.Uint64(header)),
	}, true
}
