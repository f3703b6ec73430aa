package klv

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"example.com/klvgate/internal/dict"
)

type ValueKind uint8

const (
	ValueNone ValueKind = iota
	ValueFloat
	ValueUint
	ValueInt
	ValueString
	ValueTimestamp
)

func (k ValueKind) String() string {
	switch k {
	case ValueFloat:
		return "float"
	case ValueUint:
		return "uint"
	case ValueInt:
		return "int"
	case ValueString:
		return "string"
	case ValueTimestamp:
		return "timestamp"
	}
	return "none"
}

// KindFor returns the value kind stored for fields of the given encoding.
func KindFor(k dict.Kind) ValueKind {
	switch k {
	case dict.KindFloat, dict.KindScaledUint, dict.KindScaledInt:
		return ValueFloat
	case dict.KindUint:
		return ValueUint
	case dict.KindInt:
		return ValueInt
	case dict.KindString:
		return ValueString
	case dict.KindTimestamp:
		return ValueTimestamp
	}
	return ValueNone
}

// Value is a typed scalar held by a Mapping slot. The zero Value is absent.
type Value struct {
	kind ValueKind
	f    float64
	u    uint64
	i    int64
	s    string
}

func FloatValue(f float64) Value        { return Value{kind: ValueFloat, f: f} }
func UintValue(u uint64) Value          { return Value{kind: ValueUint, u: u} }
func IntValue(i int64) Value            { return Value{kind: ValueInt, i: i} }
func StringValue(s string) Value        { return Value{kind: ValueString, s: s} }
func TimestampValue(ts Timestamp) Value { return Value{kind: ValueTimestamp, u: uint64(ts)} }

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsZero() bool    { return v.kind == ValueNone }
func (v Value) Float() float64  { return v.f }
func (v Value) Uint() uint64    { return v.u }
func (v Value) Int() int64      { return v.i }
func (v Value) Str() string     { return v.s }

func (v Value) Timestamp() Timestamp { return Timestamp(v.u) }

// Number converts numeric kinds to float64.
func (v Value) Number() (float64, bool) {
	switch v.kind {
	case ValueFloat:
		return v.f, true
	case ValueUint:
		return float64(v.u), true
	case ValueInt:
		return float64(v.i), true
	}
	return 0, false
}

// Interface returns the Go value held: float64, uint64, int64, string or
// Timestamp, or nil when absent.
func (v Value) Interface() any {
	switch v.kind {
	case ValueFloat:
		return v.f
	case ValueUint:
		return v.u
	case ValueInt:
		return v.i
	case ValueString:
		return v.s
	case ValueTimestamp:
		return Timestamp(v.u)
	}
	return nil
}

func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case ValueFloat:
		return math.Float64bits(v.f) == math.Float64bits(o.f)
	case ValueUint, ValueTimestamp:
		return v.u == o.u
	case ValueInt:
		return v.i == o.i
	case ValueString:
		return v.s == o.s
	}
	return true
}

func (v Value) String() string {
	switch v.kind {
	case ValueFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case ValueUint:
		return strconv.FormatUint(v.u, 10)
	case ValueInt:
		return strconv.FormatInt(v.i, 10)
	case ValueString:
		return v.s
	case ValueTimestamp:
		return Timestamp(v.u).String()
	}
	return ""
}

func DecodeValue(e dict.Entry, raw []byte) (Value, error) {
	switch e.Kind {
	case dict.KindString:
		return StringValue(string(bytes.TrimRight(raw, "\x00"))), nil
	case dict.KindTimestamp:
		if len(raw) > 8 {
			return Value{}, fmt.Errorf("%s: %d byte timestamp: %w", e.Name, len(raw), ErrValueOutOfRange)
		}
		if len(raw) < 8 {
			return Value{}, fmt.Errorf("%s: %d byte timestamp: %w", e.Name, len(raw), ErrTruncatedPacket)
		}
		return TimestampValue(Timestamp(binary.BigEndian.Uint64(raw))), nil
	}
	if len(raw) < e.Width {
		return Value{}, fmt.Errorf("%s: got %d bytes, want %d: %w", e.Name, len(raw), e.Width, ErrTruncatedPacket)
	}
	if len(raw) > e.Width {
		return Value{}, fmt.Errorf("%s: got %d bytes, want %d: %w", e.Name, len(raw), e.Width, ErrValueOutOfRange)
	}
	switch e.Kind {
	case dict.KindUint:
		return UintValue(readUint(raw)), nil
	case dict.KindInt:
		return IntValue(readInt(raw)), nil
	case dict.KindFloat:
		if e.Width == 4 {
			return FloatValue(float64(math.Float32frombits(binary.BigEndian.Uint32(raw)))), nil
		}
		return FloatValue(math.Float64frombits(binary.BigEndian.Uint64(raw))), nil
	case dict.KindScaledUint:
		step, offset := scaling(e)
		return FloatValue(float64(readUint(raw))*step + offset), nil
	case dict.KindScaledInt:
		step, offset := scaling(e)
		return FloatValue(float64(readInt(raw))*step + offset), nil
	}
	return Value{}, fmt.Errorf("%s: unsupported kind %q", e.Name, e.Kind)
}

func EncodeValue(e dict.Entry, v Value) ([]byte, error) {
	if v.kind != KindFor(e.Kind) {
		return nil, fmt.Errorf("%s: %s value for %s field: %w", e.Name, v.kind, e.Kind, ErrKindMismatch)
	}
	switch e.Kind {
	case dict.KindString:
		if len(v.s) > e.Width {
			return nil, fmt.Errorf("%s: %d bytes exceeds width %d: %w", e.Name, len(v.s), e.Width, ErrStringTooLong)
		}
		out := make([]byte, e.Width)
		copy(out, v.s)
		return out, nil
	case dict.KindTimestamp:
		out := make([]byte, 8)
		binary.BigEndian.PutUint64(out, v.u)
		return out, nil
	case dict.KindUint:
		if v.u > maxUint(e.Width) || (e.HasRange && !e.InRange(float64(v.u))) {
			return nil, fmt.Errorf("%s: %d: %w", e.Name, v.u, ErrValueOutOfRange)
		}
		return putUint(v.u, e.Width), nil
	case dict.KindInt:
		lim := maxInt(e.Width)
		if v.i > lim || v.i < -lim-1 || (e.HasRange && !e.InRange(float64(v.i))) {
			return nil, fmt.Errorf("%s: %d: %w", e.Name, v.i, ErrValueOutOfRange)
		}
		return putUint(uint64(v.i), e.Width), nil
	case dict.KindFloat:
		if math.IsNaN(v.f) || (e.HasRange && !e.InRange(v.f)) {
			return nil, fmt.Errorf("%s: %v: %w", e.Name, v.f, ErrValueOutOfRange)
		}
		if e.Width == 4 {
			if !math.IsInf(v.f, 0) && math.Abs(v.f) > math.MaxFloat32 {
				return nil, fmt.Errorf("%s: %v exceeds float32: %w", e.Name, v.f, ErrValueOutOfRange)
			}
			out := make([]byte, 4)
			binary.BigEndian.PutUint32(out, math.Float32bits(float32(v.f)))
			return out, nil
		}
		out := make([]byte, 8)
		binary.BigEndian.PutUint64(out, math.Float64bits(v.f))
		return out, nil
	case dict.KindScaledUint, dict.KindScaledInt:
		return encodeScaled(e, v.f)
	}
	return nil, fmt.Errorf("%s: unsupported kind %q", e.Name, e.Kind)
}

func encodeScaled(e dict.Entry, f float64) ([]byte, error) {
	step, offset := scaling(e)
	// Half a quantum of slack lets decoded endpoint values re-encode.
	if math.IsNaN(f) || math.IsInf(f, 0) || f < e.Min-step/2 || f > e.Max+step/2 {
		return nil, fmt.Errorf("%s: %v outside [%v, %v]: %w", e.Name, f, e.Min, e.Max, ErrValueOutOfRange)
	}
	raw := math.Round((f - offset) / step)
	if e.Kind == dict.KindScaledUint {
		raw = math.Max(0, math.Min(raw, float64(maxUint(e.Width))))
		return putUint(uint64(raw), e.Width), nil
	}
	lim := float64(maxInt(e.Width))
	raw = math.Max(-lim, math.Min(raw, lim))
	return putUint(uint64(int64(raw)), e.Width), nil
}

// scaling returns the value of one raw count and the value of raw zero.
// Signed fields reserve the most negative raw value, so their span covers
// 2^n-2 counts centred on zero.
func scaling(e dict.Entry) (step, offset float64) {
	bits := uint(e.Width * 8)
	span := e.Max - e.Min
	if e.Kind == dict.KindScaledInt {
		return span / (math.Exp2(float64(bits)) - 2), (e.Max + e.Min) / 2
	}
	return span / (math.Exp2(float64(bits)) - 1), e.Min
}

func maxUint(width int) uint64 {
	if width >= 8 {
		return math.MaxUint64
	}
	return 1<<(uint(width)*8) - 1
}

func maxInt(width int) int64 {
	if width >= 8 {
		return math.MaxInt64
	}
	return 1<<(uint(width)*8-1) - 1
}

func readUint(b []byte) uint64 {
	var n uint64
	for _, c := range b {
		n = n<<8 | uint64(c)
	}
	return n
}

func readInt(b []byte) int64 {
	n := readUint(b)
	shift := 64 - uint(len(b))*8
	return int64(n<<shift) >> shift
}

func putUint(n uint64, width int) []byte {
	out := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		out[i] = byte(n)
		n >>= 8
	}
	return out
}
