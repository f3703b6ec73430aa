// Package edit rewrites selected packets of a metadata stream and keeps an
// audit trail that can undo the change.
package edit

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"example.com/klvgate/internal/dict"
	"example.com/klvgate/internal/klv"
)

var ErrInvalidOverride = errors.New("invalid override")

// AllFrames is the overrides key that targets every frame.
const AllFrames = "*"

// Removable groups. A null group name in an overrides document deletes
// every field of the group.
const (
	GroupCorners       = "corners"
	GroupOffsetCorners = "offset_corners"
	GroupFrameCenter   = "frame_center"
)

var groupMembers = map[string]string{
	GroupCorners:       dict.GroupCorners,
	GroupOffsetCorners: dict.GroupOffsetCorners,
	GroupFrameCenter:   dict.GroupFrame,
}

// FrameEdit is the merge applied to one frame: Remove runs first, then Set.
type FrameEdit struct {
	Set    map[string]klv.Value
	Remove []string
}

func (fe FrameEdit) empty() bool {
	return len(fe.Set) == 0 && len(fe.Remove) == 0
}

// merge layers o on top of fe; o wins for fields named by both.
func (fe FrameEdit) merge(o FrameEdit) FrameEdit {
	out := FrameEdit{Set: map[string]klv.Value{}}
	removed := map[string]bool{}
	for _, n := range fe.Remove {
		removed[n] = true
	}
	for n, v := range fe.Set {
		out.Set[n] = v
	}
	for _, n := range o.Remove {
		removed[n] = true
		delete(out.Set, n)
	}
	for n, v := range o.Set {
		out.Set[n] = v
		delete(removed, n)
	}
	for n := range removed {
		out.Remove = append(out.Remove, n)
	}
	sort.Strings(out.Remove)
	return out
}

// Fields returns the names set by the edit, sorted.
func (fe FrameEdit) Fields() []string {
	names := make([]string, 0, len(fe.Set))
	for n := range fe.Set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type Plan struct {
	Frames map[int]FrameEdit
	All    FrameEdit
}

// For returns the effective edit of frame i.
func (p Plan) For(i int) (FrameEdit, bool) {
	fe, ok := p.Frames[i]
	if p.All.empty() {
		return fe, ok && !fe.empty()
	}
	merged := p.All.merge(fe)
	return merged, !merged.empty()
}

// MaxFrame is the highest frame index the plan names, or -1.
func (p Plan) MaxFrame() int {
	max := -1
	for i := range p.Frames {
		if i > max {
			max = i
		}
	}
	return max
}

// LoadOverrides reads an overrides document, YAML for .yaml/.yml files and
// JSON otherwise.
func LoadOverrides(d *dict.Store, path string) (Plan, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, err
	}
	format := "json"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	}
	return ParseOverrides(d, b, format)
}

// ParseOverrides decodes {"<frame>|*": {"<field>|<group>": value|null}}.
func ParseOverrides(d *dict.Store, data []byte, format string) (Plan, error) {
	if d == nil {
		d = dict.Default()
	}
	var doc map[string]map[string]any
	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return Plan{}, fmt.Errorf("parse overrides: %w", err)
		}
	case "json", "":
		if err := json.Unmarshal(data, &doc); err != nil {
			return Plan{}, fmt.Errorf("parse overrides: %w", err)
		}
	default:
		return Plan{}, fmt.Errorf("overrides format %q not supported", format)
	}

	plan := Plan{Frames: map[int]FrameEdit{}}
	for key, fields := range doc {
		fe, err := parseFrame(d, fields)
		if err != nil {
			return Plan{}, fmt.Errorf("frame %s: %w", key, err)
		}
		if strings.TrimSpace(key) == AllFrames {
			plan.All = fe
			continue
		}
		idx, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil || idx < 0 {
			return Plan{}, fmt.Errorf("frame key %q: %w", key, ErrInvalidOverride)
		}
		plan.Frames[idx] = fe
	}
	return plan, nil
}

func parseFrame(d *dict.Store, fields map[string]any) (FrameEdit, error) {
	fe := FrameEdit{Set: map[string]klv.Value{}}
	names := make([]string, 0, len(fields))
	for n := range fields {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, name := range names {
		raw := fields[name]
		if group, ok := groupMembers[name]; ok {
			if raw != nil {
				return fe, fmt.Errorf("group %s can only be removed: %w", name, ErrInvalidOverride)
			}
			fe.Remove = append(fe.Remove, d.GroupNames(group)...)
			continue
		}
		e, ok := d.LookupName(name)
		if !ok {
			return fe, fmt.Errorf("%q: %w", name, klv.ErrUnknownField)
		}
		if raw == nil {
			fe.Remove = append(fe.Remove, name)
			continue
		}
		v, err := toValue(e, raw)
		if err != nil {
			return fe, err
		}
		fe.Set[name] = v
	}
	sort.Strings(fe.Remove)
	return fe, nil
}

func toValue(e dict.Entry, raw any) (klv.Value, error) {
	kind := klv.KindFor(e.Kind)
	if kind == klv.ValueString {
		s, ok := raw.(string)
		if !ok {
			return klv.Value{}, fmt.Errorf("%s: want string, got %T: %w", e.Name, raw, klv.ErrKindMismatch)
		}
		return klv.StringValue(s), nil
	}
	if kind == klv.ValueTimestamp {
		if s, ok := raw.(string); ok {
			ts, err := klv.ParseTimestamp(s)
			if err != nil {
				return klv.Value{}, fmt.Errorf("%s: %w", e.Name, err)
			}
			return klv.TimestampValue(ts), nil
		}
	}
	n, ok := number(raw)
	if !ok {
		return klv.Value{}, fmt.Errorf("%s: want number, got %T: %w", e.Name, raw, klv.ErrKindMismatch)
	}
	switch kind {
	case klv.ValueFloat:
		return klv.FloatValue(n), nil
	case klv.ValueInt:
		if n != math.Trunc(n) {
			return klv.Value{}, fmt.Errorf("%s: %v is not an integer: %w", e.Name, n, klv.ErrKindMismatch)
		}
		return klv.IntValue(int64(n)), nil
	case klv.ValueUint, klv.ValueTimestamp:
		if n != math.Trunc(n) || n < 0 {
			return klv.Value{}, fmt.Errorf("%s: %v is not a non-negative integer: %w", e.Name, n, klv.ErrKindMismatch)
		}
		if kind == klv.ValueTimestamp {
			return klv.TimestampValue(klv.Timestamp(n)), nil
		}
		return klv.UintValue(uint64(n)), nil
	}
	return klv.Value{}, fmt.Errorf("%s: %w", e.Name, klv.ErrKindMismatch)
}

func number(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}
