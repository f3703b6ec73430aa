package klv

import (
	"bytes"
	"errors"
)

// Segment is one packet cut out of a raw metadata stream.
type Segment struct {
	Offset int
	Data   []byte
}

type SplitStats struct {
	Packets      int
	Resyncs      int
	SkippedBytes int
	Truncated    bool
}

// Split cuts a concatenated KLV stream into packets by searching for the
// local set key and honouring each packet's BER length. Bytes between
// packets are skipped and counted as a resync. A packet running past the end
// of the stream stops the scan. Packets are not decoded.
func Split(stream []byte) ([]Segment, SplitStats) {
	var (
		segs  []Segment
		stats SplitStats
	)
	pos := 0
	for pos < len(stream) {
		idx := bytes.Index(stream[pos:], UASLocalSetKey[:])
		if idx < 0 {
			stats.SkippedBytes += len(stream) - pos
			if len(stream)-pos > 0 {
				stats.Resyncs++
			}
			break
		}
		if idx > 0 {
			stats.Resyncs++
			stats.SkippedBytes += idx
		}
		p := pos + idx
		n, err := PacketLen(stream[p:])
		if err != nil {
			if errors.Is(err, ErrMalformedLength) && len(stream)-p > KeyLen+1 {
				// Key bytes inside a payload; keep searching past them.
				stats.Resyncs++
				stats.SkippedBytes++
				pos = p + 1
				continue
			}
			stats.Truncated = true
			stats.SkippedBytes += len(stream) - p
			break
		}
		if p+n > len(stream) {
			stats.Truncated = true
			stats.SkippedBytes += len(stream) - p
			break
		}
		segs = append(segs, Segment{Offset: p, Data: stream[p : p+n]})
		stats.Packets++
		pos = p + n
	}
	return segs, stats
}

// Join concatenates packets into one stream.
func Join(packets [][]byte) []byte {
	size := 0
	for _, p := range packets {
		size += len(p)
	}
	out := make([]byte, 0, size)
	for _, p := range packets {
		out = append(out, p...)
	}
	return out
}
