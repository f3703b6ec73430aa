package scenario

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"example.com/klvgate/internal/klv"
	"example.com/klvgate/internal/patterns"
	"example.com/klvgate/internal/stats"
	"example.com/klvgate/internal/store"
)

func TestEveryScenarioEncodes(t *testing.T) {
	for _, sc := range List() {
		t.Run(sc.Name, func(t *testing.T) {
			recs, err := sc.Generate(Options{})
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			if len(recs) != sc.DefaultFrames {
				t.Fatalf("frames %d, want %d", len(recs), sc.DefaultFrames)
			}
			stream, err := Encode(recs)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			segs, st := klv.Split(stream)
			if st.Resyncs != 0 || st.Truncated || len(segs) != len(recs) {
				t.Fatalf("split %d packets, stats %+v", len(segs), st)
			}
			s, err := store.Builder{Strict: true}.Build(context.Background(), store.InputsFromSegments(segs))
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if s.Len() != len(recs) {
				t.Fatalf("decoded %d frames", s.Len())
			}
			res := stats.Compute(s)
			if got := res.DiscontinuousFields(s.Dictionary()); len(got) != 0 {
				t.Fatalf("unexpected discontinuities %v", got)
			}
			if got := res.OutOfRangeFields(s.Dictionary()); len(got) != 0 {
				t.Fatalf("unexpected out-of-range %v", got)
			}
		})
	}
}

func TestTimestampsAndFrameOverride(t *testing.T) {
	sc, err := Get("stationary")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	recs, err := sc.Generate(Options{Frames: 3, Start: start})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("frames %d", len(recs))
	}
	if !recs[0].Timestamp.Time().Equal(start) {
		t.Fatalf("first timestamp %s", recs[0].Timestamp)
	}
	if d := *recs[2].Timestamp - *recs[1].Timestamp; d != 40000 {
		t.Fatalf("interval %d us", d)
	}

	sample, _ := Get("sample_video")
	recs, _ = sample.Generate(Options{})
	if *recs[0].Timestamp != SampleStart || recs[0].Timestamp.String() != "2015-10-07T07:18:40.413948Z" {
		t.Fatalf("sample start %s", recs[0].Timestamp)
	}
}

func TestScenarioPatterns(t *testing.T) {
	cases := []struct {
		name    string
		want    string
		notWant string
	}{
		{"high_altitude", patterns.HighAltitude, patterns.PartialCorners},
		{"minimal", patterns.MissingCorners, patterns.HighAltitude},
		{"sample_video", patterns.MissingFrameCenter, patterns.Discontinuities},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sc, err := Get(tc.name)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			recs, err := sc.Generate(Options{})
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			s, err := store.FromRecords(recs)
			if err != nil {
				t.Fatalf("FromRecords: %v", err)
			}
			det := patterns.Detect(s, stats.Compute(s))
			if !slices.Contains(det.Matched, tc.want) || slices.Contains(det.Matched, tc.notWant) {
				t.Fatalf("matched %v", det.Matched)
			}
		})
	}
}

func TestUnknownScenario(t *testing.T) {
	if _, err := Get("orbit"); !errors.Is(err, ErrUnknownScenario) {
		t.Fatalf("expected ErrUnknownScenario, got %v", err)
	}
	if _, err := (Scenario{DefaultFrames: 1, build: minimal}).Generate(Options{Start: time.Unix(-10, 0)}); !errors.Is(err, klv.ErrValueOutOfRange) {
		t.Fatalf("expected pre-epoch start to fail, got %v", err)
	}
}
