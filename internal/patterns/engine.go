// Package patterns evaluates named predicates over a decoded frame sequence
// and its statistics.
package patterns

import (
	"errors"
	"fmt"

	"example.com/klvgate/internal/stats"
	"example.com/klvgate/internal/store"
)

var ErrDuplicatePattern = errors.New("pattern already registered")

// Predicate reports whether a pattern holds. It is only called for a
// non-empty store.
type Predicate func(s *store.Store, st stats.Result) bool

type Pattern struct {
	Name        string
	Description string
	Predicate   Predicate
}

// Detection is the outcome of running a registry over one sequence.
type Detection struct {
	Matched   []string `json:"matched_templates"`
	Anomalies []string `json:"anomalies"`
}

// Registry holds patterns in registration order.
type Registry struct {
	patterns []Pattern
	names    map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

func (r *Registry) Register(p Pattern) error {
	if p.Name == "" || p.Predicate == nil {
		return fmt.Errorf("pattern %q: name and predicate are required", p.Name)
	}
	if _, ok := r.names[p.Name]; ok {
		return fmt.Errorf("%s: %w", p.Name, ErrDuplicatePattern)
	}
	r.names[p.Name] = struct{}{}
	r.patterns = append(r.patterns, p)
	return nil
}

func (r *Registry) Patterns() []Pattern {
	return append([]Pattern(nil), r.patterns...)
}

func (r *Registry) Lookup(name string) (Pattern, bool) {
	for _, p := range r.patterns {
		if p.Name == name {
			return p, true
		}
	}
	return Pattern{}, false
}

// Detect runs every pattern in order. Matches accumulate; an empty store
// matches nothing but still reports decode failures as anomalies.
func (r *Registry) Detect(s *store.Store, st stats.Result) Detection {
	det := Detection{Matched: []string{}, Anomalies: []string{}}
	if s == nil {
		return det
	}
	if !s.Empty() {
		for _, p := range r.patterns {
			if p.Predicate(s, st) {
				det.Matched = append(det.Matched, p.Name)
			}
		}
	}
	det.Anomalies = Anomalies(s, st)
	return det
}

// Anomalies lists human-readable findings: discontinuous fields, fields
// leaving their domain, then frames that failed to decode.
func Anomalies(s *store.Store, st stats.Result) []string {
	out := []string{}
	d := s.Dictionary()
	for _, name := range st.DiscontinuousFields(d) {
		fs := st.Fields[name]
		out = append(out, fmt.Sprintf("%s: %d jump(s) above %g between adjacent frames (first at frame %d)",
			name, len(fs.JumpFrames), fs.MaxDelta, fs.JumpFrames[0]))
	}
	for _, name := range st.OutOfRangeFields(d) {
		fs := st.Fields[name]
		e, _ := d.LookupName(name)
		out = append(out, fmt.Sprintf("%s: %d value(s) outside [%g, %g] (first at frame %d)",
			name, len(fs.OutOfRangeFrames), e.Min, e.Max, fs.OutOfRangeFrames[0]))
	}
	for _, f := range s.Failures() {
		out = append(out, fmt.Sprintf("frame %d: decode failed (%s): %s", f.Index, f.Kind, f.Err))
	}
	return out
}
