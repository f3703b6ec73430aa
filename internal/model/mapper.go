package model

import (
	"fmt"

	"example.com/klvgate/internal/dict"
	"example.com/klvgate/internal/klv"
)

// binding connects one flat field name to its place in a Record. load reports
// absence; store creates parent groups on demand.
type binding struct {
	name  string
	load  func(r *Record) (klv.Value, bool)
	store func(r *Record, v klv.Value) error
}

type floatSlot func(r *Record, create bool) **float64

func floatField(name string, slot floatSlot) binding {
	return binding{
		name: name,
		load: func(r *Record) (klv.Value, bool) {
			p := slot(r, false)
			if p == nil || *p == nil {
				return klv.Value{}, false
			}
			return klv.FloatValue(**p), true
		},
		store: func(r *Record, v klv.Value) error {
			if v.Kind() != klv.ValueFloat {
				return fmt.Errorf("%s: %s value: %w", name, v.Kind(), klv.ErrKindMismatch)
			}
			f := v.Float()
			*slot(r, true) = &f
			return nil
		},
	}
}

type stringSlot func(r *Record, create bool) **string

func stringField(name string, slot stringSlot) binding {
	return binding{
		name: name,
		load: func(r *Record) (klv.Value, bool) {
			p := slot(r, false)
			if p == nil || *p == nil {
				return klv.Value{}, false
			}
			return klv.StringValue(**p), true
		},
		store: func(r *Record, v klv.Value) error {
			if v.Kind() != klv.ValueString {
				return fmt.Errorf("%s: %s value: %w", name, v.Kind(), klv.ErrKindMismatch)
			}
			s := v.Str()
			*slot(r, true) = &s
			return nil
		},
	}
}

type byteSlot func(r *Record, create bool) **uint8

func byteField(name string, slot byteSlot) binding {
	return binding{
		name: name,
		load: func(r *Record) (klv.Value, bool) {
			p := slot(r, false)
			if p == nil || *p == nil {
				return klv.Value{}, false
			}
			return klv.UintValue(uint64(**p)), true
		},
		store: func(r *Record, v klv.Value) error {
			if v.Kind() != klv.ValueUint {
				return fmt.Errorf("%s: %s value: %w", name, v.Kind(), klv.ErrKindMismatch)
			}
			if v.Uint() > 0xFF {
				return fmt.Errorf("%s: %d: %w", name, v.Uint(), klv.ErrValueOutOfRange)
			}
			b := uint8(v.Uint())
			*slot(r, true) = &b
			return nil
		},
	}
}

var timestampBinding = binding{
	name: "timestamp",
	load: func(r *Record) (klv.Value, bool) {
		if r.Timestamp == nil {
			return klv.Value{}, false
		}
		return klv.TimestampValue(*r.Timestamp), true
	},
	store: func(r *Record, v klv.Value) error {
		if v.Kind() != klv.ValueTimestamp {
			return fmt.Errorf("timestamp: %s value: %w", v.Kind(), klv.ErrKindMismatch)
		}
		ts := v.Timestamp()
		r.Timestamp = &ts
		return nil
	},
}

func position(get func(p *Position) **float64) floatSlot {
	return func(r *Record, create bool) **float64 {
		if p := r.position(create); p != nil {
			return get(p)
		}
		return nil
	}
}

func orientation(get func(o *Orientation) **float64) floatSlot {
	return func(r *Record, create bool) **float64 {
		if o := r.orientation(create); o != nil {
			return get(o)
		}
		return nil
	}
}

func sensor(get func(s *Sensor) **float64) floatSlot {
	return func(r *Record, create bool) **float64 {
		if s := r.sensor(create); s != nil {
			return get(s)
		}
		return nil
	}
}

func footprint(get func(f *Footprint) **float64) floatSlot {
	return func(r *Record, create bool) **float64 {
		if f := r.footprint(create); f != nil {
			return get(f)
		}
		return nil
	}
}

func ident(get func(i *Identification) **string) stringSlot {
	return func(r *Record, create bool) **string {
		if i := r.ident(create); i != nil {
			return get(i)
		}
		return nil
	}
}

func corner(offset bool, i int, lat bool) floatSlot {
	return func(r *Record, create bool) **float64 {
		c := r.corner(offset, i, create)
		if c == nil {
			return nil
		}
		if lat {
			return &c.Latitude
		}
		return &c.Longitude
	}
}

var bindings = buildBindings()

func buildBindings() []binding {
	b := []binding{
		timestampBinding,
		byteField("version", func(r *Record, _ bool) **uint8 { return &r.Version }),
		floatField("latitude", position(func(p *Position) **float64 { return &p.Latitude })),
		floatField("longitude", position(func(p *Position) **float64 { return &p.Longitude })),
		floatField("altitude", position(func(p *Position) **float64 { return &p.Altitude })),
		floatField("heading", orientation(func(o *Orientation) **float64 { return &o.Heading })),
		floatField("pitch", orientation(func(o *Orientation) **float64 { return &o.Pitch })),
		floatField("roll", orientation(func(o *Orientation) **float64 { return &o.Roll })),
		byteField("platform_ground_speed", func(r *Record, create bool) **uint8 {
			if p := r.platform(create); p != nil {
				return &p.GroundSpeed
			}
			return nil
		}),
		stringField("sensor_name", func(r *Record, create bool) **string {
			if s := r.sensor(create); s != nil {
				return &s.Name
			}
			return nil
		}),
		floatField("sensor_relative_azimuth", sensor(func(s *Sensor) **float64 { return &s.RelativeAzimuth })),
		floatField("sensor_relative_elevation", sensor(func(s *Sensor) **float64 { return &s.RelativeElevation })),
		floatField("sensor_relative_roll", sensor(func(s *Sensor) **float64 { return &s.RelativeRoll })),
		floatField("horizontal_fov", sensor(func(s *Sensor) **float64 { return &s.HorizontalFOV })),
		floatField("vertical_fov", sensor(func(s *Sensor) **float64 { return &s.VerticalFOV })),
		floatField("slant_range", sensor(func(s *Sensor) **float64 { return &s.SlantRange })),
		floatField("ground_range", sensor(func(s *Sensor) **float64 { return &s.GroundRange })),
		floatField("target_width", sensor(func(s *Sensor) **float64 { return &s.TargetWidth })),
		floatField("frame_center_latitude", footprint(func(f *Footprint) **float64 { return &f.CenterLatitude })),
		floatField("frame_center_longitude", footprint(func(f *Footprint) **float64 { return &f.CenterLongitude })),
		floatField("frame_center_elevation", footprint(func(f *Footprint) **float64 { return &f.CenterElevation })),
		stringField("mission_id", ident(func(i *Identification) **string { return &i.MissionID })),
		stringField("platform_designation", ident(func(i *Identification) **string { return &i.PlatformDesignation })),
		stringField("platform_call_sign", ident(func(i *Identification) **string { return &i.PlatformCallSign })),
		stringField("platform_tail_number", ident(func(i *Identification) **string { return &i.PlatformTailNumber })),
	}
	for i := 0; i < 4; i++ {
		n := i + 1
		b = append(b,
			floatField(fmt.Sprintf("corner_lat_%d", n), corner(false, i, true)),
			floatField(fmt.Sprintf("corner_lon_%d", n), corner(false, i, false)),
			floatField(fmt.Sprintf("offset_corner_lat_%d", n), corner(true, i, true)),
			floatField(fmt.Sprintf("offset_corner_lon_%d", n), corner(true, i, false)),
		)
	}
	return b
}

// FieldNames lists every flat field the Record can hold.
func FieldNames() []string {
	names := make([]string, len(bindings))
	for i, b := range bindings {
		names[i] = b.name
	}
	return names
}

type Mapper struct {
	dict *dict.Store
}

// NewMapper returns a mapper producing mappings for d, or for the built-in
// dictionary when d is nil.
func NewMapper(d *dict.Store) *Mapper {
	if d == nil {
		d = dict.Default()
	}
	return &Mapper{dict: d}
}

func ToHierarchical(m *klv.Mapping) (Record, error) {
	return NewMapper(nil).ToHierarchical(m)
}

func ToFlat(r Record) (*klv.Mapping, error) {
	return NewMapper(nil).ToFlat(r)
}

// ToHierarchical groups the fields present in m. Dictionary fields the Record
// has no place for are left out.
func (mp *Mapper) ToHierarchical(m *klv.Mapping) (Record, error) {
	var r Record
	if m == nil {
		return r, nil
	}
	for _, b := range bindings {
		v, ok := m.Get(b.name)
		if !ok {
			continue
		}
		if err := b.store(&r, v); err != nil {
			return Record{}, err
		}
	}
	r.Unknown = m.Unknown()
	return r, nil
}

func (mp *Mapper) ToFlat(r Record) (*klv.Mapping, error) {
	m := klv.NewMappingFor(mp.dict)
	for _, b := range bindings {
		v, ok := b.load(&r)
		if !ok {
			continue
		}
		if err := m.Set(b.name, v); err != nil {
			return nil, err
		}
	}
	for tag, raw := range r.Unknown {
		if err := m.SetUnknown(tag, raw); err != nil {
			return nil, fmt.Errorf("unknown tag %d: %w", tag, err)
		}
	}
	return m, nil
}
