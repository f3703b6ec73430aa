package patterns

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"example.com/klvgate/internal/model"
	"example.com/klvgate/internal/stats"
	"example.com/klvgate/internal/store"
)

func withAltitude(alt float64) model.Record {
	return model.Record{Platform: &model.Platform{Position: &model.Position{
		Latitude:  model.Ptr(60.1),
		Longitude: model.Ptr(24.9),
		Altitude:  model.Ptr(alt),
	}}}
}

func detect(t *testing.T, recs []model.Record) Detection {
	t.Helper()
	s, err := store.FromRecords(recs)
	if err != nil {
		t.Fatalf("FromRecords: %v", err)
	}
	return Builtins(0).Detect(s, stats.Compute(s))
}

func TestMissingAndPartialCorners(t *testing.T) {
	recs := make([]model.Record, 10)
	for i := range recs {
		recs[i] = withAltitude(500)
	}
	det := detect(t, recs)
	if !slices.Contains(det.Matched, MissingCorners) || slices.Contains(det.Matched, PartialCorners) {
		t.Fatalf("no corners: matched %v", det.Matched)
	}

	recs[3].Frame = &model.Footprint{Corners: &model.CornerSet{{Latitude: model.Ptr(60.2)}}}
	det = detect(t, recs)
	if !slices.Contains(det.Matched, PartialCorners) || slices.Contains(det.Matched, MissingCorners) {
		t.Fatalf("one corner field: matched %v", det.Matched)
	}
}

func TestFullCornersNotPartial(t *testing.T) {
	var cs model.CornerSet
	for i := range cs {
		cs[i] = &model.Corner{Latitude: model.Ptr(60.0 + float64(i)/100), Longitude: model.Ptr(24.0)}
	}
	rec := withAltitude(500)
	rec.Frame = &model.Footprint{Corners: &cs}
	det := detect(t, []model.Record{rec, withAltitude(500)})
	if slices.Contains(det.Matched, PartialCorners) || slices.Contains(det.Matched, MissingCorners) {
		t.Fatalf("full corner set: matched %v", det.Matched)
	}
}

func TestHighAltitude(t *testing.T) {
	cases := []struct {
		name string
		alts []float64
		want bool
	}{
		{"all above", []float64{12000, 12000, 12000}, true},
		{"one below", []float64{12000, 9000, 12000}, false},
		{"at threshold", []float64{10000}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recs := make([]model.Record, len(tc.alts))
			for i, a := range tc.alts {
				recs[i] = withAltitude(a)
			}
			if got := slices.Contains(detect(t, recs).Matched, HighAltitude); got != tc.want {
				t.Fatalf("high-altitude = %v, want %v", got, tc.want)
			}
		})
	}

	recs := []model.Record{withAltitude(12000), {}}
	if slices.Contains(detect(t, recs).Matched, HighAltitude) {
		t.Fatalf("frame without altitude should break high-altitude")
	}
}

func TestConfigurableThreshold(t *testing.T) {
	s, err := store.FromRecords([]model.Record{withAltitude(600), withAltitude(700)})
	if err != nil {
		t.Fatalf("FromRecords: %v", err)
	}
	det := Builtins(500).Detect(s, stats.Compute(s))
	if !slices.Contains(det.Matched, HighAltitude) {
		t.Fatalf("threshold 500: matched %v", det.Matched)
	}
}

func TestDiscontinuityAndAnomalies(t *testing.T) {
	recs := make([]model.Record, 4)
	for i, v := range []float64{10, 12, 50, 51} {
		recs[i].Sensor = &model.Sensor{RelativeElevation: model.Ptr(v)}
	}
	recs[1].Platform = &model.Platform{Position: &model.Position{Latitude: model.Ptr(91.0)}}
	det := detect(t, recs)
	if !slices.Contains(det.Matched, Discontinuities) {
		t.Fatalf("matched %v", det.Matched)
	}
	if !slices.Contains(det.Matched, MissingFrameCenter) {
		t.Fatalf("missing frame center not matched: %v", det.Matched)
	}
	if len(det.Anomalies) != 2 {
		t.Fatalf("anomalies %q", det.Anomalies)
	}
	if !strings.HasPrefix(det.Anomalies[0], "sensor_relative_elevation:") ||
		!strings.HasPrefix(det.Anomalies[1], "latitude:") {
		t.Fatalf("anomalies %q", det.Anomalies)
	}
}

func TestMatchOrderFollowsRegistration(t *testing.T) {
	recs := []model.Record{withAltitude(15000), withAltitude(15000)}
	det := detect(t, recs)
	want := []string{HighAltitude, MissingCorners, MissingFrameCenter}
	if !slices.Equal(det.Matched, want) {
		t.Fatalf("matched %v, want %v", det.Matched, want)
	}
}

func TestEmptyStoreMatchesNothing(t *testing.T) {
	det := detect(t, nil)
	if len(det.Matched) != 0 || len(det.Anomalies) != 0 {
		t.Fatalf("empty store detection %+v", det)
	}
}

func TestRegistryIsOpen(t *testing.T) {
	r := Builtins(0)
	custom := Pattern{
		Name:        "short-sequence",
		Description: "fewer than three frames",
		Predicate:   func(s *store.Store, _ stats.Result) bool { return s.Len() < 3 },
	}
	if err := r.Register(custom); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(custom); !errors.Is(err, ErrDuplicatePattern) {
		t.Fatalf("expected ErrDuplicatePattern, got %v", err)
	}
	if err := r.Register(Pattern{Name: "nil"}); err == nil {
		t.Fatalf("expected error for nil predicate")
	}
	s, _ := store.FromRecords([]model.Record{withAltitude(1)})
	det := r.Detect(s, stats.Compute(s))
	if det.Matched[len(det.Matched)-1] != "short-sequence" {
		t.Fatalf("custom pattern not last: %v", det.Matched)
	}
	if p, ok := r.Lookup(PartialCorners); !ok || p.Description == "" {
		t.Fatalf("Lookup partial-corners failed")
	}
	if n := len(r.Patterns()); n != 6 {
		t.Fatalf("patterns %d, want 6", n)
	}
}
