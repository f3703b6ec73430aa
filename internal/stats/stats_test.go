package stats

import (
	"math"
	"testing"

	"example.com/klvgate/internal/model"
	"example.com/klvgate/internal/store"
)

func elevationRecords(values ...*float64) []model.Record {
	recs := make([]model.Record, len(values))
	for i, v := range values {
		if v != nil {
			recs[i].Sensor = &model.Sensor{RelativeElevation: v}
		}
	}
	return recs
}

func mustStore(t *testing.T, recs []model.Record) *store.Store {
	t.Helper()
	s, err := store.FromRecords(recs)
	if err != nil {
		t.Fatalf("FromRecords: %v", err)
	}
	return s
}

func TestDiscontinuityScenario(t *testing.T) {
	p := model.Ptr[float64]
	cases := []struct {
		name   string
		values []*float64
		want   bool
		jumps  []int
	}{
		{name: "jump", values: []*float64{p(10), p(12), p(50), p(51)}, want: true, jumps: []int{2}},
		{name: "smooth", values: []*float64{p(10), p(12), p(14), p(16)}, want: false},
		{name: "gap is not a pair", values: []*float64{p(10), nil, p(50), p(51)}, want: false},
		{name: "negative jump", values: []*float64{p(0), p(-31)}, want: true, jumps: []int{1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Compute(mustStore(t, elevationRecords(tc.values...)))
			fs, ok := res.Field("sensor_relative_elevation")
			if !ok {
				t.Fatalf("field missing from result")
			}
			if fs.HasDiscontinuities != tc.want {
				t.Fatalf("HasDiscontinuities = %v, want %v", fs.HasDiscontinuities, tc.want)
			}
			if len(fs.JumpFrames) != len(tc.jumps) {
				t.Fatalf("JumpFrames = %v, want %v", fs.JumpFrames, tc.jumps)
			}
			for i := range tc.jumps {
				if fs.JumpFrames[i] != tc.jumps[i] {
					t.Fatalf("JumpFrames = %v, want %v", fs.JumpFrames, tc.jumps)
				}
			}
		})
	}
}

func TestCircularHeading(t *testing.T) {
	recs := make([]model.Record, 3)
	for i, h := range []float64{350, 10, 25} {
		recs[i].Platform = &model.Platform{Orientation: &model.Orientation{Heading: model.Ptr(h)}}
	}
	fs, _ := Compute(mustStore(t, recs)).Field("heading")
	if fs.HasDiscontinuities {
		t.Fatalf("350 -> 10 should wrap to a 20 degree change")
	}
	recs[1].Platform.Orientation.Heading = model.Ptr(300.0)
	fs, _ = Compute(mustStore(t, recs)).Field("heading")
	if !fs.HasDiscontinuities {
		t.Fatalf("expected discontinuity for 300 -> 25")
	}
}

func TestPresenceAndSummary(t *testing.T) {
	recs := make([]model.Record, 4)
	for i, alt := range []float64{100, 200, 0, 300} {
		if i == 2 {
			continue
		}
		recs[i].Platform = &model.Platform{Position: &model.Position{Altitude: model.Ptr(alt)}}
	}
	recs[2].Identification = &model.Identification{MissionID: model.Ptr("m")}
	res := Compute(mustStore(t, recs))
	if res.NoFrames || res.FrameCount != 4 {
		t.Fatalf("frame count %d, no frames %v", res.FrameCount, res.NoFrames)
	}
	alt, ok := res.Field("altitude")
	if !ok || alt.PresentRatio != 0.75 || alt.PresentFrames != 3 {
		t.Fatalf("altitude presence %+v", alt)
	}
	if alt.Summary == nil || alt.Summary.Min != 100 || alt.Summary.Max != 300 || alt.Summary.Mean != 200 {
		t.Fatalf("altitude summary %+v", alt.Summary)
	}
	if want := math.Sqrt(20000.0 / 3); math.Abs(alt.Summary.StdDev-want) > 1e-9 {
		t.Fatalf("std dev %v, want %v", alt.Summary.StdDev, want)
	}
	mission, ok := res.Field("mission_id")
	if !ok || mission.Summary != nil || mission.PresentRatio != 0.25 {
		t.Fatalf("mission stats %+v", mission)
	}
	if _, ok := res.Field("latitude"); ok {
		t.Fatalf("absent field listed")
	}
}

func TestOutOfRangeLatitude(t *testing.T) {
	recs := []model.Record{
		{Platform: &model.Platform{Position: &model.Position{Latitude: model.Ptr(45.0)}}},
		{Platform: &model.Platform{Position: &model.Position{Latitude: model.Ptr(91.0)}}},
	}
	s := mustStore(t, recs)
	res := Compute(s)
	lat, _ := res.Field("latitude")
	if !lat.HasOutOfRange || len(lat.OutOfRangeFrames) != 1 || lat.OutOfRangeFrames[0] != 1 {
		t.Fatalf("latitude stats %+v", lat)
	}
	if got := res.OutOfRangeFields(s.Dictionary()); len(got) != 1 || got[0] != "latitude" {
		t.Fatalf("OutOfRangeFields = %v", got)
	}
}

func TestEmptyStore(t *testing.T) {
	res := Compute(mustStore(t, nil))
	if !res.NoFrames || res.FrameCount != 0 || len(res.Fields) != 0 {
		t.Fatalf("empty result %+v", res)
	}
	if !Compute(nil).NoFrames {
		t.Fatalf("nil store should report no frames")
	}
}
