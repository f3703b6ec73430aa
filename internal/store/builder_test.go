package store

import (
	"context"
	"errors"
	"testing"

	"example.com/klvgate/internal/common"
	"example.com/klvgate/internal/klv"
)

func packet(t *testing.T, alt float64) []byte {
	t.Helper()
	m := klv.NewMapping()
	if err := m.Set("altitude", klv.FloatValue(alt)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	b, err := klv.Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return b
}

func corrupt(b []byte) []byte {
	out := append([]byte(nil), b...)
	out[len(out)-1] ^= 0xFF
	return out
}

func sequence(t *testing.T) []Input {
	t.Helper()
	return []Input{
		{Index: 0, Data: packet(t, 100)},
		{Index: 2, Data: packet(t, 200)},
		{Index: 3, Data: corrupt(packet(t, 300))},
		{Index: 5, Data: packet(t, 400)},
		{Index: 9, Data: []byte{0x00, 0x01}},
	}
}

func TestBuildNonStrictSkipsFailures(t *testing.T) {
	metrics := common.NewMetrics()
	s, err := Builder{Concurrency: 3, Metrics: metrics}.Build(context.Background(), sequence(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := []int{0, 2, 5}
	got := s.Indices()
	if len(got) != len(want) {
		t.Fatalf("indices %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("indices %v, want %v", got, want)
		}
	}
	if _, ok := s.Lookup(3); ok {
		t.Fatalf("corrupt frame 3 present")
	}
	f, ok := s.Lookup(5)
	if !ok || f.Record.Platform == nil || f.Record.Platform.Position.Altitude == nil {
		t.Fatalf("frame 5 not decoded: %+v", f)
	}
	failures := s.Failures()
	if len(failures) != 2 || failures[0].Index != 3 || failures[0].Kind != "ChecksumMismatch" ||
		failures[1].Index != 9 || failures[1].Kind != "TruncatedPacket" {
		t.Fatalf("failures %+v", failures)
	}
	snap := metrics.Snapshot()
	if snap.Frames != 3 || snap.Failures != 2 {
		t.Fatalf("metrics %+v", snap)
	}
}

func TestBuildStrictReturnsFirstFailure(t *testing.T) {
	for _, conc := range []int{1, 4} {
		_, err := Builder{Strict: true, Concurrency: conc}.Build(context.Background(), sequence(t))
		var fe *FrameError
		if !errors.As(err, &fe) {
			t.Fatalf("concurrency %d: expected FrameError, got %v", conc, err)
		}
		if fe.Index != 3 || !errors.Is(err, klv.ErrChecksumMismatch) {
			t.Fatalf("concurrency %d: got %v", conc, err)
		}
	}
}

func TestBuildRejectsUnorderedIndices(t *testing.T) {
	inputs := []Input{{Index: 2, Data: packet(t, 1)}, {Index: 2, Data: packet(t, 2)}}
	if _, err := (Builder{}).Build(context.Background(), inputs); !errors.Is(err, ErrFrameOrder) {
		t.Fatalf("expected ErrFrameOrder, got %v", err)
	}
	if _, err := (Builder{}).Build(context.Background(), []Input{{Index: -1}}); !errors.Is(err, ErrFrameOrder) {
		t.Fatalf("expected ErrFrameOrder for negative index, got %v", err)
	}
}

func TestBuildEmptyAndCancelled(t *testing.T) {
	s, err := Builder{}.Build(context.Background(), nil)
	if err != nil || !s.Empty() {
		t.Fatalf("empty build: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (Builder{}).Build(ctx, sequence(t)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestStoreHelpers(t *testing.T) {
	s, err := Builder{}.Build(context.Background(), sequence(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	fields := s.PresentFields()
	if len(fields) != 1 || fields[0] != "altitude" {
		t.Fatalf("present fields %v", fields)
	}
	if s.FieldPresent("latitude") {
		t.Fatalf("latitude reported present")
	}
	if _, err := New(nil, []Frame{{Index: 1}}, nil); err == nil {
		t.Fatalf("expected error for frame without mapping")
	}
}
