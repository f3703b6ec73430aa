// Package stats derives per-field statistics from a decoded frame sequence.
package stats

import (
	"math"

	mstats "github.com/montanaflynn/stats"

	"example.com/klvgate/internal/dict"
	"example.com/klvgate/internal/store"
)

type Summary struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
}

type FieldStats struct {
	PresentRatio       float64  `json:"present_ratio"`
	PresentFrames      int      `json:"present_frames"`
	Summary            *Summary `json:"summary,omitempty"`
	HasDiscontinuities bool     `json:"has_discontinuities"`
	HasOutOfRange      bool     `json:"has_out_of_range"`

	// Frame indices where a jump above the field's max delta lands, and
	// where a value leaves the domain.
	JumpFrames       []int   `json:"jump_frames,omitempty"`
	OutOfRangeFrames []int   `json:"out_of_range_frames,omitempty"`
	MaxDelta         float64 `json:"max_delta,omitempty"`
}

// Result maps field names to statistics. Only fields present in at least
// one frame are listed.
type Result struct {
	FrameCount int                   `json:"frame_count"`
	NoFrames   bool                  `json:"no_frames"`
	Fields     map[string]FieldStats `json:"fields"`
}

func (r Result) Field(name string) (FieldStats, bool) {
	fs, ok := r.Fields[name]
	return fs, ok
}

// DiscontinuousFields returns flagged fields in dictionary name order.
func (r Result) DiscontinuousFields(d *dict.Store) []string {
	var out []string
	for _, name := range d.Names() {
		if r.Fields[name].HasDiscontinuities {
			out = append(out, name)
		}
	}
	return out
}

func (r Result) OutOfRangeFields(d *dict.Store) []string {
	var out []string
	for _, name := range d.Names() {
		if r.Fields[name].HasOutOfRange {
			out = append(out, name)
		}
	}
	return out
}

func Compute(s *store.Store) Result {
	res := Result{Fields: map[string]FieldStats{}}
	if s == nil || s.Empty() {
		res.NoFrames = true
		return res
	}
	res.FrameCount = s.Len()
	d := s.Dictionary()
	for _, name := range d.Names() {
		e, _ := d.LookupName(name)
		if fs, ok := computeField(s, e); ok {
			res.Fields[name] = fs
		}
	}
	return res
}

func computeField(s *store.Store, e dict.Entry) (FieldStats, bool) {
	var (
		fs       FieldStats
		values   []float64
		prev     float64
		havePrev bool
	)
	for _, f := range s.Frames() {
		v, ok := f.Mapping.Get(e.Name)
		if !ok {
			havePrev = false
			continue
		}
		fs.PresentFrames++
		n, numeric := v.Number()
		if !numeric {
			continue
		}
		values = append(values, n)
		if !e.InRange(n) || math.IsNaN(n) {
			fs.HasOutOfRange = true
			fs.OutOfRangeFrames = append(fs.OutOfRangeFrames, f.Index)
		}
		if e.MaxDelta > 0 && havePrev && delta(e, prev, n) > e.MaxDelta {
			fs.HasDiscontinuities = true
			fs.JumpFrames = append(fs.JumpFrames, f.Index)
		}
		prev, havePrev = n, true
	}
	if fs.PresentFrames == 0 {
		return fs, false
	}
	fs.PresentRatio = float64(fs.PresentFrames) / float64(s.Len())
	fs.MaxDelta = e.MaxDelta
	if len(values) > 0 {
		fs.Summary = summarize(values)
	}
	return fs, true
}

// delta is the change between adjacent values; circular fields take the
// shorter way around.
func delta(e dict.Entry, a, b float64) float64 {
	d := math.Abs(b - a)
	if e.Circular && e.HasRange {
		span := e.Max - e.Min
		if span > 0 {
			d = math.Mod(d, span)
			d = math.Min(d, span-d)
		}
	}
	return d
}

func summarize(values []float64) *Summary {
	data := mstats.Float64Data(values)
	min, _ := mstats.Min(data)
	max, _ := mstats.Max(data)
	mean, _ := mstats.Mean(data)
	sd, _ := mstats.StandardDeviationPopulation(data)
	return &Summary{Min: min, Max: max, Mean: mean, StdDev: sd}
}
