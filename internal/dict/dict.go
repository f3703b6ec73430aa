package dict

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

type Kind string

const (
	KindUint       Kind = "uint"
	KindInt        Kind = "int"
	KindFloat      Kind = "float"
	KindString     Kind = "string"
	KindTimestamp  Kind = "timestamp"
	KindScaledUint Kind = "scaled_uint"
	KindScaledInt  Kind = "scaled_int"
)

// ChecksumTag is reserved for the trailing checksum item of every packet.
const ChecksumTag uint8 = 1

type Entry struct {
	Tag   uint8
	Name  string
	Kind  Kind
	Width int
	Group string

	// Min and Max bound the domain; scaled kinds also map their raw integer
	// range onto it.
	Min      float64
	Max      float64
	HasRange bool

	// MaxDelta is the largest reasonable change between adjacent frames.
	// Zero disables discontinuity checks.
	MaxDelta float64
	Circular bool
}

func (e Entry) Numeric() bool {
	switch e.Kind {
	case KindUint, KindInt, KindFloat, KindScaledUint, KindScaledInt:
		return true
	}
	return false
}

func (e Entry) Scaled() bool {
	return e.Kind == KindScaledUint || e.Kind == KindScaledInt
}

// InRange reports whether v lies inside the declared domain. Entries without
// a range accept everything.
func (e Entry) InRange(v float64) bool {
	if !e.HasRange {
		return true
	}
	return v >= e.Min && v <= e.Max
}

type Store struct {
	byTag  map[uint8]Entry
	byName map[string]Entry
	names  []string
	tags   []uint8
}

type JSONFile struct {
	Entries []JSONEntry `json:"entries"`
}

type JSONEntry struct {
	Tag      int      `json:"tag"`
	Name     string   `json:"name"`
	Kind     string   `json:"kind"`
	Width    int      `json:"width"`
	Group    string   `json:"group,omitempty"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	MaxDelta float64  `json:"maxDelta,omitempty"`
	Circular bool     `json:"circular,omitempty"`
}

func FromJSON(file JSONFile) (*Store, error) {
	entries := make([]Entry, 0, len(file.Entries))
	for i, je := range file.Entries {
		if je.Tag < 1 || je.Tag > 127 {
			return nil, fmt.Errorf("entries[%d]: tag out of range", i)
		}
		if uint8(je.Tag) == ChecksumTag {
			return nil, fmt.Errorf("entries[%d]: tag %d is reserved for the checksum", i, je.Tag)
		}
		kind := Kind(strings.TrimSpace(je.Kind))
		if err := checkWidth(kind, je.Width); err != nil {
			return nil, fmt.Errorf("entries[%d]: %w", i, err)
		}
		entry := Entry{
			Tag:      uint8(je.Tag),
			Name:     strings.TrimSpace(je.Name),
			Kind:     kind,
			Width:    je.Width,
			Group:    strings.TrimSpace(je.Group),
			MaxDelta: je.MaxDelta,
			Circular: je.Circular,
		}
		if (je.Min == nil) != (je.Max == nil) {
			return nil, fmt.Errorf("entries[%d]: min and max must be set together", i)
		}
		if je.Min != nil {
			if *je.Min >= *je.Max {
				return nil, fmt.Errorf("entries[%d]: min must be below max", i)
			}
			entry.Min, entry.Max, entry.HasRange = *je.Min, *je.Max, true
		}
		if entry.Scaled() && !entry.HasRange {
			return nil, fmt.Errorf("entries[%d]: scaled kind requires min/max", i)
		}
		entries = append(entries, entry)
	}
	return newStore(entries)
}

func checkWidth(kind Kind, width int) error {
	switch kind {
	case KindUint, KindInt:
		switch width {
		case 1, 2, 4, 8:
			return nil
		}
		return fmt.Errorf("width %d invalid for %s", width, kind)
	case KindScaledUint, KindScaledInt:
		switch width {
		case 1, 2, 4:
			return nil
		}
		return fmt.Errorf("width %d invalid for %s", width, kind)
	case KindFloat:
		if width != 4 && width != 8 {
			return fmt.Errorf("width %d invalid for float", width)
		}
	case KindString:
		if width < 1 {
			return fmt.Errorf("width %d invalid for string", width)
		}
	case KindTimestamp:
		if width != 8 {
			return fmt.Errorf("width %d invalid for timestamp", width)
		}
	default:
		return fmt.Errorf("unknown kind %q", kind)
	}
	return nil
}

func newStore(entries []Entry) (*Store, error) {
	s := &Store{
		byTag:  make(map[uint8]Entry, len(entries)),
		byName: make(map[string]Entry, len(entries)),
	}
	for i, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("entries[%d]: empty name", i)
		}
		if _, exists := s.byTag[e.Tag]; exists {
			return nil, fmt.Errorf("entries[%d]: duplicate tag %d", i, e.Tag)
		}
		if _, exists := s.byName[e.Name]; exists {
			return nil, fmt.Errorf("entries[%d]: duplicate name %q", i, e.Name)
		}
		s.byTag[e.Tag] = e
		s.byName[e.Name] = e
		s.names = append(s.names, e.Name)
		s.tags = append(s.tags, e.Tag)
	}
	sort.Strings(s.names)
	sort.Slice(s.tags, func(i, j int) bool { return s.tags[i] < s.tags[j] })
	return s, nil
}

func (s *Store) Lookup(tag uint8) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	e, ok := s.byTag[tag]
	return e, ok
}

func (s *Store) LookupName(name string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	e, ok := s.byName[name]
	return e, ok
}

// Names returns every field name in lexicographic order.
func (s *Store) Names() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.names...)
}

// Tags returns every known tag in ascending order.
func (s *Store) Tags() []uint8 {
	if s == nil {
		return nil
	}
	return append([]uint8(nil), s.tags...)
}

func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.byTag)
}

var (
	defaultOnce  sync.Once
	defaultStore *Store
)

// Default returns the built-in ST 0601 subset. It is built on first use and
// never mutated afterwards.
func Default() *Store {
	defaultOnce.Do(func() {
		s, err := newStore(builtinEntries())
		if err != nil {
			panic("dict: builtin table: " + err.Error())
		}
		defaultStore = s
	})
	return defaultStore
}
