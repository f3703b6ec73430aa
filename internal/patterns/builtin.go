package patterns

import (
	"example.com/klvgate/internal/dict"
	"example.com/klvgate/internal/stats"
	"example.com/klvgate/internal/store"
)

const DefaultAltitudeThreshold = 10000.0

const (
	HighAltitude       = "high-altitude"
	MissingCorners     = "missing-corners"
	PartialCorners     = "partial-corners"
	MissingFrameCenter = "missing-frame-center"
	Discontinuities    = "discontinuities"
)

// Builtins returns a registry holding the stock patterns. A non-positive
// threshold falls back to DefaultAltitudeThreshold.
func Builtins(altitudeThreshold float64) *Registry {
	if altitudeThreshold <= 0 {
		altitudeThreshold = DefaultAltitudeThreshold
	}
	r := NewRegistry()
	for _, p := range []Pattern{
		{
			Name:        HighAltitude,
			Description: "every frame reports an altitude above the threshold",
			Predicate:   AltitudeAbove(altitudeThreshold),
		},
		{
			Name:        MissingCorners,
			Description: "no frame carries any corner point field",
			Predicate:   MissingCornerPoints,
		},
		{
			Name:        PartialCorners,
			Description: "a corner family is only partly present across the sequence",
			Predicate:   PartialCornerPoints,
		},
		{
			Name:        MissingFrameCenter,
			Description: "no frame carries frame center latitude or longitude",
			Predicate:   MissingFrameCenterPoint,
		},
		{
			Name:        Discontinuities,
			Description: "at least one field jumps between adjacent frames",
			Predicate:   AnyDiscontinuity,
		},
	} {
		if err := r.Register(p); err != nil {
			panic(err)
		}
	}
	return r
}

// Detect runs the stock patterns with the default altitude threshold.
func Detect(s *store.Store, st stats.Result) Detection {
	return Builtins(DefaultAltitudeThreshold).Detect(s, st)
}

func AltitudeAbove(threshold float64) Predicate {
	return func(s *store.Store, _ stats.Result) bool {
		for _, f := range s.Frames() {
			v, ok := f.Mapping.Get("altitude")
			if !ok {
				return false
			}
			if n, _ := v.Number(); n <= threshold {
				return false
			}
		}
		return true
	}
}

func cornerFamilies(d *dict.Store) [][]string {
	return [][]string{d.GroupNames(dict.GroupCorners), d.GroupNames(dict.GroupOffsetCorners)}
}

func MissingCornerPoints(s *store.Store, _ stats.Result) bool {
	for _, family := range cornerFamilies(s.Dictionary()) {
		for _, name := range family {
			if s.FieldPresent(name) {
				return false
			}
		}
	}
	return true
}

func PartialCornerPoints(s *store.Store, _ stats.Result) bool {
	for _, family := range cornerFamilies(s.Dictionary()) {
		present := 0
		for _, name := range family {
			if s.FieldPresent(name) {
				present++
			}
		}
		if present > 0 && present < len(family) {
			return true
		}
	}
	return false
}

func MissingFrameCenterPoint(s *store.Store, _ stats.Result) bool {
	return !s.FieldPresent("frame_center_latitude") && !s.FieldPresent("frame_center_longitude")
}

func AnyDiscontinuity(_ *store.Store, st stats.Result) bool {
	for _, fs := range st.Fields {
		if fs.HasDiscontinuities {
			return true
		}
	}
	return false
}
