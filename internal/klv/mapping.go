package klv

import (
	"bytes"
	"fmt"
	"sort"

	"example.com/klvgate/internal/dict"
)

// maxFieldTag bounds the slot array; dictionary tags are single byte BER-OIDs.
const maxFieldTag = 127

// Mapping is the flat view of one packet: one optional slot per dictionary
// tag plus the raw bytes of every tag the dictionary does not know.
type Mapping struct {
	dict    *dict.Store
	slots   [maxFieldTag + 1]Value
	unknown map[int][]byte
}

func NewMapping() *Mapping {
	return NewMappingFor(nil)
}

func NewMappingFor(d *dict.Store) *Mapping {
	if d == nil {
		d = dict.Default()
	}
	return &Mapping{dict: d}
}

func (m *Mapping) Dictionary() *dict.Store {
	return m.dict
}

func (m *Mapping) entry(name string) (dict.Entry, error) {
	e, ok := m.dict.LookupName(name)
	if !ok {
		return e, fmt.Errorf("%q: %w", name, ErrUnknownField)
	}
	return e, nil
}

// Set stores v under name. The value kind must match the field encoding;
// the domain range is enforced on encode, not here.
func (m *Mapping) Set(name string, v Value) error {
	e, err := m.entry(name)
	if err != nil {
		return err
	}
	return m.setEntry(e, v)
}

func (m *Mapping) SetTag(tag uint8, v Value) error {
	e, ok := m.dict.Lookup(tag)
	if !ok {
		return fmt.Errorf("tag %d: %w", tag, ErrUnknownField)
	}
	return m.setEntry(e, v)
}

func (m *Mapping) setEntry(e dict.Entry, v Value) error {
	if v.Kind() != KindFor(e.Kind) {
		return fmt.Errorf("%s: %s value for %s field: %w", e.Name, v.Kind(), e.Kind, ErrKindMismatch)
	}
	m.slots[e.Tag] = v
	return nil
}

func (m *Mapping) Get(name string) (Value, bool) {
	e, ok := m.dict.LookupName(name)
	if !ok {
		return Value{}, false
	}
	return m.GetTag(e.Tag)
}

func (m *Mapping) GetTag(tag uint8) (Value, bool) {
	if int(tag) > maxFieldTag {
		return Value{}, false
	}
	v := m.slots[tag]
	return v, !v.IsZero()
}

func (m *Mapping) Has(name string) bool {
	_, ok := m.Get(name)
	return ok
}

func (m *Mapping) Delete(name string) {
	if e, ok := m.dict.LookupName(name); ok {
		m.slots[e.Tag] = Value{}
	}
}

// Tags returns the known tags present, ascending.
func (m *Mapping) Tags() []uint8 {
	var tags []uint8
	for tag := range m.slots {
		if !m.slots[tag].IsZero() {
			tags = append(tags, uint8(tag))
		}
	}
	return tags
}

// Names returns the field names present, in lexicographic order.
func (m *Mapping) Names() []string {
	var names []string
	for _, tag := range m.Tags() {
		e, _ := m.dict.Lookup(tag)
		names = append(names, e.Name)
	}
	sort.Strings(names)
	return names
}

func (m *Mapping) Len() int {
	n := 0
	for i := range m.slots {
		if !m.slots[i].IsZero() {
			n++
		}
	}
	return n
}

// SetUnknown keeps raw under a tag the dictionary does not define.
func (m *Mapping) SetUnknown(tag int, raw []byte) error {
	if tag < 0 {
		return fmt.Errorf("negative tag %d", tag)
	}
	if tag >= maxUnknownTag {
		return fmt.Errorf("tag %d needs more than %d BER-OID bytes: %w", tag, maxTagBytes, ErrMalformedLength)
	}
	if tag == int(dict.ChecksumTag) {
		return fmt.Errorf("tag %d is reserved for the checksum", tag)
	}
	if tag <= maxFieldTag {
		if e, ok := m.dict.Lookup(uint8(tag)); ok {
			return fmt.Errorf("tag %d is known as %s", tag, e.Name)
		}
	}
	if m.unknown == nil {
		m.unknown = make(map[int][]byte)
	}
	m.unknown[tag] = append([]byte(nil), raw...)
	return nil
}

func (m *Mapping) UnknownTags() []int {
	tags := make([]int, 0, len(m.unknown))
	for tag := range m.unknown {
		tags = append(tags, tag)
	}
	sort.Ints(tags)
	return tags
}

func (m *Mapping) UnknownValue(tag int) ([]byte, bool) {
	raw, ok := m.unknown[tag]
	return raw, ok
}

// Unknown returns a copy of the unknown tag table.
func (m *Mapping) Unknown() map[int][]byte {
	if len(m.unknown) == 0 {
		return nil
	}
	out := make(map[int][]byte, len(m.unknown))
	for tag, raw := range m.unknown {
		out[tag] = append([]byte(nil), raw...)
	}
	return out
}

func (m *Mapping) Clone() *Mapping {
	c := &Mapping{dict: m.dict, slots: m.slots}
	c.unknown = m.Unknown()
	return c
}

func (m *Mapping) Equal(o *Mapping) bool {
	if m == nil || o == nil {
		return m == o
	}
	for i := range m.slots {
		if !m.slots[i].Equal(o.slots[i]) {
			return false
		}
	}
	if len(m.unknown) != len(o.unknown) {
		return false
	}
	for tag, raw := range m.unknown {
		other, ok := o.unknown[tag]
		if !ok || !bytes.Equal(raw, other) {
			return false
		}
	}
	return true
}
