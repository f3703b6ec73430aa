// Package report assembles analysis results for a frame sequence and
// exports them.
package report

import (
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"example.com/klvgate/internal/model"
	"example.com/klvgate/internal/patterns"
	"example.com/klvgate/internal/stats"
	"example.com/klvgate/internal/store"
)

type FrameEntry struct {
	FrameNumber int          `json:"frame_number"`
	Size        int          `json:"size,omitempty"`
	Metadata    model.Record `json:"metadata"`
}

type Report struct {
	ID               string                      `json:"id"`
	GeneratedAt      time.Time                   `json:"generated_at"`
	Source           string                      `json:"source,omitempty"`
	FrameCount       int                         `json:"frame_count"`
	FieldsPresent    []string                    `json:"fields_present"`
	FieldsMissing    []string                    `json:"fields_missing"`
	FieldStats       map[string]stats.FieldStats `json:"field_stats"`
	MatchedTemplates []string                    `json:"matched_templates"`
	Anomalies        []string                    `json:"anomalies"`
	Failures         []store.Failure             `json:"failures,omitempty"`
	Frames           []FrameEntry                `json:"frames,omitempty"`
}

type Options struct {
	Source string
	// OmitFrames leaves the per-frame records out of the report.
	OmitFrames bool
	// ID and GeneratedAt are filled in when zero.
	ID          string
	GeneratedAt time.Time
}

// Clean reports whether the sequence decoded fully with no anomalies.
func (r Report) Clean() bool {
	return len(r.Anomalies) == 0 && len(r.Failures) == 0
}

func Build(s *store.Store, st stats.Result, det patterns.Detection, opts Options) Report {
	rep := Report{
		ID:               opts.ID,
		GeneratedAt:      opts.GeneratedAt,
		Source:           opts.Source,
		FieldsPresent:    []string{},
		FieldsMissing:    []string{},
		FieldStats:       map[string]stats.FieldStats{},
		MatchedTemplates: append([]string{}, det.Matched...),
		Anomalies:        append([]string{}, det.Anomalies...),
	}
	if rep.ID == "" {
		rep.ID = uuid.NewString()
	}
	if rep.GeneratedAt.IsZero() {
		rep.GeneratedAt = time.Now().UTC()
	}
	if s == nil {
		return rep
	}
	rep.FrameCount = s.Len()
	rep.Failures = append([]store.Failure(nil), s.Failures()...)
	present := map[string]bool{}
	for _, name := range s.PresentFields() {
		present[name] = true
		rep.FieldsPresent = append(rep.FieldsPresent, name)
	}
	for _, name := range s.Dictionary().Names() {
		if !present[name] {
			rep.FieldsMissing = append(rep.FieldsMissing, name)
		}
	}
	for name, fs := range st.Fields {
		rep.FieldStats[name] = fs
	}
	if !opts.OmitFrames {
		for _, f := range s.Frames() {
			rep.Frames = append(rep.Frames, FrameEntry{FrameNumber: f.Index, Size: f.Size, Metadata: f.Record})
		}
	}
	return rep
}

// Analyze runs statistics and the given registry over s and builds the report.
func Analyze(s *store.Store, reg *patterns.Registry, opts Options) Report {
	if reg == nil {
		reg = patterns.Builtins(patterns.DefaultAltitudeThreshold)
	}
	st := stats.Compute(s)
	return Build(s, st, reg.Detect(s, st), opts)
}

func SaveJSON(rep Report, out string) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, append(b, '\n'), 0o644)
}

func LoadJSON(path string) (Report, error) {
	var rep Report
	b, err := os.ReadFile(path)
	if err != nil {
		return rep, err
	}
	err = json.Unmarshal(b, &rep)
	return rep, err
}
