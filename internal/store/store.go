package store

import (
	"errors"
	"fmt"
	"sort"

	"example.com/klvgate/internal/dict"
	"example.com/klvgate/internal/klv"
	"example.com/klvgate/internal/model"
)

var ErrFrameOrder = errors.New("frame indices must be non-negative and strictly increasing")

type Input struct {
	Index int
	Data  []byte
}

type Frame struct {
	Index   int
	Size    int
	Record  model.Record
	Mapping *klv.Mapping
}

// Failure is a frame the codec rejected in non-strict mode.
type Failure struct {
	Index int    `json:"index"`
	Kind  string `json:"kind"`
	Err   string `json:"error"`
}

type FrameError struct {
	Index int
	Err   error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame %d: %v", e.Index, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// Store is an ordered, read-only set of decoded frames.
type Store struct {
	dict     *dict.Store
	frames   []Frame
	failures []Failure
}

// New assembles a store from already decoded frames.
func New(d *dict.Store, frames []Frame, failures []Failure) (*Store, error) {
	if d == nil {
		d = dict.Default()
	}
	for i, f := range frames {
		if f.Index < 0 || (i > 0 && f.Index <= frames[i-1].Index) {
			return nil, fmt.Errorf("frame %d after %d: %w", f.Index, prevIndex(frames, i), ErrFrameOrder)
		}
		if f.Mapping == nil {
			return nil, fmt.Errorf("frame %d has no mapping", f.Index)
		}
	}
	return &Store{
		dict:     d,
		frames:   append([]Frame(nil), frames...),
		failures: append([]Failure(nil), failures...),
	}, nil
}

// FromRecords builds a store from hierarchical records numbered 0..n-1.
func FromRecords(records []model.Record) (*Store, error) {
	frames := make([]Frame, len(records))
	for i, r := range records {
		m, err := model.ToFlat(r)
		if err != nil {
			return nil, &FrameError{Index: i, Err: err}
		}
		frames[i] = Frame{Index: i, Record: r, Mapping: m}
	}
	return New(nil, frames, nil)
}

func prevIndex(frames []Frame, i int) int {
	if i == 0 {
		return -1
	}
	return frames[i-1].Index
}

func (s *Store) Dictionary() *dict.Store { return s.dict }

func (s *Store) Len() int { return len(s.frames) }

func (s *Store) Empty() bool { return len(s.frames) == 0 }

// Frames returns the frames in index order. Callers must not modify them.
func (s *Store) Frames() []Frame { return s.frames }

func (s *Store) Failures() []Failure { return s.failures }

func (s *Store) Indices() []int {
	out := make([]int, len(s.frames))
	for i, f := range s.frames {
		out[i] = f.Index
	}
	return out
}

func (s *Store) Lookup(index int) (Frame, bool) {
	i := sort.Search(len(s.frames), func(i int) bool { return s.frames[i].Index >= index })
	if i < len(s.frames) && s.frames[i].Index == index {
		return s.frames[i], true
	}
	return Frame{}, false
}

// FieldPresent reports whether any frame carries name.
func (s *Store) FieldPresent(name string) bool {
	for _, f := range s.frames {
		if f.Mapping.Has(name) {
			return true
		}
	}
	return false
}

// PresentFields returns every field carried by at least one frame, sorted.
func (s *Store) PresentFields() []string {
	var names []string
	for _, name := range s.dict.Names() {
		if s.FieldPresent(name) {
			names = append(names, name)
		}
	}
	return names
}
