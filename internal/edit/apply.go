package edit

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"example.com/klvgate/internal/common"
	"example.com/klvgate/internal/klv"
)

var (
	ErrFrameOutOfRange = errors.New("override targets a frame beyond the stream")
	ErrUndoMismatch    = errors.New("stream does not match the edit log")
)

type Editor struct {
	Codec  *klv.Codec
	Log    *common.EditLog
	Logger zerolog.Logger
	Now    func() time.Time
}

type Result struct {
	Stream      []byte
	Frames      int
	Modified    []int
	Passthrough int
	Entries     []common.EditEntry
}

// Apply rewrites the frames named by plan. Only those packets are decoded
// and re-encoded; every other byte of stream, including data between
// packets, is copied through unchanged. Nothing is logged unless every
// targeted frame encodes.
func (e Editor) Apply(stream []byte, plan Plan) (Result, error) {
	codec := e.Codec
	if codec == nil {
		codec = klv.NewCodec(nil)
	}
	now := e.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	segs, st := klv.Split(stream)
	if st.Truncated {
		e.Logger.Warn().Int("packets", st.Packets).Msg("stream ends inside a packet; tail passed through")
	}
	res := Result{Frames: len(segs)}
	if max := plan.MaxFrame(); max >= len(segs) {
		return res, fmt.Errorf("frame %d of %d: %w", max, len(segs), ErrFrameOutOfRange)
	}

	replaced := make(map[int][]byte)
	for i, seg := range segs {
		fe, ok := plan.For(i)
		if !ok {
			res.Passthrough++
			continue
		}
		m, err := codec.Decode(seg.Data)
		if err != nil {
			return res, fmt.Errorf("frame %d: %w", i, err)
		}
		for _, name := range fe.Remove {
			m.Delete(name)
		}
		for _, name := range fe.Fields() {
			if err := m.Set(name, fe.Set[name]); err != nil {
				return res, fmt.Errorf("frame %d: %w", i, err)
			}
		}
		out, err := codec.Encode(m)
		if err != nil {
			return res, fmt.Errorf("frame %d: %w", i, err)
		}
		replaced[i] = out
		res.Modified = append(res.Modified, i)
		res.Entries = append(res.Entries, common.EditEntry{
			Frame:     i,
			Offset:    int64(seg.Offset),
			Fields:    fe.Fields(),
			Removed:   fe.Remove,
			BeforeHex: hex.EncodeToString(seg.Data),
			AfterHex:  hex.EncodeToString(out),
			Ts:        now(),
		})
	}

	res.Stream = rebuild(stream, segs, replaced)
	for _, entry := range res.Entries {
		if e.Log == nil {
			break
		}
		if err := e.Log.Append(entry); err != nil {
			return res, fmt.Errorf("edit log: %w", err)
		}
	}
	e.Logger.Info().Int("frames", res.Frames).Int("modified", len(res.Modified)).Int("passthrough", res.Passthrough).Msg("stream edited")
	return res, nil
}

// Undo reverts entries, newest first, against a stream produced by Apply.
func Undo(stream []byte, entries []common.EditEntry) ([]byte, error) {
	segs, _ := klv.Split(stream)
	current := make(map[int][]byte)
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if entry.Frame < 0 || entry.Frame >= len(segs) {
			return nil, fmt.Errorf("frame %d of %d: %w", entry.Frame, len(segs), ErrFrameOutOfRange)
		}
		after, err := entry.AfterBytes()
		if err != nil {
			return nil, fmt.Errorf("frame %d: after bytes: %w", entry.Frame, err)
		}
		before, err := entry.BeforeBytes()
		if err != nil {
			return nil, fmt.Errorf("frame %d: before bytes: %w", entry.Frame, err)
		}
		have, ok := current[entry.Frame]
		if !ok {
			have = segs[entry.Frame].Data
		}
		if !bytes.Equal(have, after) {
			return nil, fmt.Errorf("frame %d: %w", entry.Frame, ErrUndoMismatch)
		}
		current[entry.Frame] = before
	}
	return rebuild(stream, segs, current), nil
}

func rebuild(stream []byte, segs []klv.Segment, replaced map[int][]byte) []byte {
	if len(replaced) == 0 {
		return append([]byte(nil), stream...)
	}
	var buf bytes.Buffer
	buf.Grow(len(stream))
	prev := 0
	for i, seg := range segs {
		buf.Write(stream[prev:seg.Offset])
		if out, ok := replaced[i]; ok {
			buf.Write(out)
		} else {
			buf.Write(seg.Data)
		}
		prev = seg.Offset + len(seg.Data)
	}
	buf.Write(stream[prev:])
	return buf.Bytes()
}
