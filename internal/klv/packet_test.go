package klv

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

// seal wraps raw TLV items into a packet with a valid checksum.
func seal(items []byte) []byte {
	out := append([]byte(nil), UASLocalSetKey[:]...)
	out = append(out, EncodeLength(len(items)+checksumItemLen)...)
	out = append(out, items...)
	out = append(out, 0x01, 0x02)
	return binary.BigEndian.AppendUint16(out, Checksum(out))
}

func sampleMapping(t *testing.T) *Mapping {
	t.Helper()
	m := NewMapping()
	set := func(name string, v Value) {
		if err := m.Set(name, v); err != nil {
			t.Fatalf("Set(%s): %v", name, err)
		}
	}
	set("timestamp", TimestampValue(1444202320413948))
	set("mission_id", StringValue("Tabasco-2015-Oct-07-0449"))
	set("platform_tail_number", StringValue("VH-EMI"))
	set("heading", FloatValue(321.921))
	set("pitch", FloatValue(3.35154))
	set("roll", FloatValue(8.84426))
	set("latitude", FloatValue(-34.974211466021004))
	set("longitude", FloatValue(138.48646995541009))
	set("altitude", FloatValue(4904.05))
	set("sensor_relative_elevation", FloatValue(-29.4914))
	set("slant_range", FloatValue(7890.99))
	set("platform_ground_speed", UintValue(89))
	set("version", UintValue(7))
	set("corner_lat_1", FloatValue(-34.98))
	set("offset_corner_lon_2", FloatValue(0.0123))
	if err := m.SetUnknown(8, []byte{0xDE, 0xAD}); err != nil {
		t.Fatalf("SetUnknown: %v", err)
	}
	if err := m.SetUnknown(200, []byte{0x01}); err != nil {
		t.Fatalf("SetUnknown: %v", err)
	}
	return m
}

func TestEncodeKnownVector(t *testing.T) {
	m := NewMapping()
	if err := m.Set("version", UintValue(13)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := append(append([]byte(nil), UASLocalSetKey[:]...), 0x07, 0x41, 0x01, 0x0D, 0x01, 0x02, 0x4F, 0xA0)
	if !bytes.Equal(got, want) {
		t.Fatalf("Encode = % X\nwant     % X", got, want)
	}
	back, err := Decode(got)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if v, ok := back.Get("version"); !ok || v.Uint() != 13 {
		t.Fatalf("version = %v %v", v, ok)
	}
}

func TestPacketRoundTrip(t *testing.T) {
	m := sampleMapping(t)
	first, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	second, err := Encode(m)
	if err != nil || !bytes.Equal(first, second) {
		t.Fatalf("encoding is not deterministic")
	}
	decoded, err := Decode(first)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for _, name := range m.Names() {
		want, _ := m.Get(name)
		got, ok := decoded.Get(name)
		if !ok {
			t.Fatalf("%s lost in round trip", name)
		}
		if want.Kind() == ValueFloat {
			e, _ := m.Dictionary().LookupName(name)
			step, _ := scaling(e)
			if math.Abs(got.Float()-want.Float()) > step/2+1e-12 {
				t.Fatalf("%s: got %v want %v", name, got.Float(), want.Float())
			}
			continue
		}
		if !got.Equal(want) {
			t.Fatalf("%s: got %v want %v", name, got, want)
		}
	}
	if raw, ok := decoded.UnknownValue(200); !ok || !bytes.Equal(raw, []byte{0x01}) {
		t.Fatalf("unknown tag 200 lost: % X", raw)
	}

	// Quantized mappings survive exactly.
	again, err := Encode(decoded)
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if !bytes.Equal(again, first) {
		t.Fatalf("re-encode differs")
	}
	redecoded, err := Decode(again)
	if err != nil || !redecoded.Equal(decoded) {
		t.Fatalf("decode(encode(M)) != M: %v", err)
	}
}

func TestEncodeOrdersUnknownTags(t *testing.T) {
	m := NewMapping()
	_ = m.Set("roll", FloatValue(0))
	_ = m.Set("platform_designation", StringValue("x"))
	_ = m.SetUnknown(8, []byte{0xAA})
	_ = m.SetUnknown(130, []byte{0xBB})
	b, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	payload := b[KeyLen+1:]
	var tags []int
	for off := 0; off < len(payload); {
		tag, tn, err := decodeTag(payload[off:])
		if err != nil {
			t.Fatalf("decodeTag: %v", err)
		}
		n, ln, _ := DecodeLength(payload[off+tn:])
		tags = append(tags, tag)
		off += tn + ln + n
	}
	want := []int{7, 8, 10, 130, 1}
	if len(tags) != len(want) {
		t.Fatalf("tags %v, want %v", tags, want)
	}
	for i := range want {
		if tags[i] != want[i] {
			t.Fatalf("tags %v, want %v", tags, want)
		}
	}
}

func TestChecksumSensitivity(t *testing.T) {
	b, err := Encode(sampleMapping(t))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	_, consumed, _ := DecodeLength(b[KeyLen:])
	for i := KeyLen + consumed; i < len(b); i++ {
		for bit := 0; bit < 8; bit++ {
			flipped := append([]byte(nil), b...)
			flipped[i] ^= 1 << bit
			if _, err := Decode(flipped); !errors.Is(err, ErrChecksumMismatch) {
				t.Fatalf("flip byte %d bit %d: expected ErrChecksumMismatch, got %v", i, bit, err)
			}
		}
	}
}

func TestChecksumWordSum(t *testing.T) {
	if got := Checksum([]byte{0x01, 0x02, 0x03}); got != 0x0402 {
		t.Fatalf("Checksum = 0x%04X", got)
	}
	if got := Checksum([]byte{0xFF, 0xFF, 0x00, 0x02}); got != 0x0001 {
		t.Fatalf("Checksum wrap = 0x%04X", got)
	}
}

func TestDecodeErrors(t *testing.T) {
	good, err := Encode(sampleMapping(t))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	badKey := append([]byte(nil), good...)
	badKey[5] = 0x0C

	noChecksum := append([]byte(nil), UASLocalSetKey[:]...)
	noChecksum = append(noChecksum, 0x03, 0x41, 0x01, 0x07)

	cases := []struct {
		name string
		in   []byte
		want error
	}{
		{"short key", good[:10], ErrTruncatedPacket},
		{"bad key", badKey, ErrUnknownUniversalKey},
		{"zero count length", append(append([]byte(nil), UASLocalSetKey[:]...), 0x80), ErrMalformedLength},
		{"truncated payload", good[:len(good)-3], ErrTruncatedPacket},
		{"missing checksum", noChecksum, ErrChecksumMismatch},
		{"item overruns payload", seal([]byte{0x05, 0x0A, 0x00, 0x01}), ErrTruncatedPacket},
		{"tag without length", seal([]byte{0x41, 0x01, 0x07, 0x05}), ErrTruncatedPacket},
		{"early checksum item", seal([]byte{0x01, 0x02, 0x00, 0x00, 0x41, 0x01, 0x07}), ErrChecksumMismatch},
		{"short heading", seal([]byte{0x05, 0x01, 0x10}), ErrTruncatedPacket},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decode(tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestDecodeAcceptsOutOfDomainLatitude(t *testing.T) {
	m, err := Decode(seal([]byte{0x0D, 0x04, 0x80, 0x00, 0x00, 0x00}))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	v, ok := m.Get("latitude")
	if !ok || math.Abs(v.Float()) <= 90 {
		t.Fatalf("latitude = %v %v", v.Float(), ok)
	}
	if _, err := Encode(m); !errors.Is(err, ErrValueOutOfRange) {
		t.Fatalf("expected encode to refuse out-of-domain latitude, got %v", err)
	}
}

func TestMappingMisuse(t *testing.T) {
	m := NewMapping()
	if err := m.Set("not_a_field", FloatValue(1)); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
	if err := m.Set("latitude", StringValue("north")); !errors.Is(err, ErrKindMismatch) {
		t.Fatalf("expected ErrKindMismatch, got %v", err)
	}
	if err := m.SetUnknown(13, []byte{0}); err == nil {
		t.Fatalf("expected SetUnknown to refuse a known tag")
	}
	if err := m.SetUnknown(1, []byte{0}); err == nil {
		t.Fatalf("expected SetUnknown to refuse the checksum tag")
	}
	_ = m.Set("latitude", FloatValue(1))
	c := m.Clone()
	m.Delete("latitude")
	if m.Has("latitude") || !c.Has("latitude") || m.Equal(c) {
		t.Fatalf("Clone shares state with original")
	}
	if m.Len() != 0 || c.Len() != 1 {
		t.Fatalf("Len = %d/%d", m.Len(), c.Len())
	}
}

func TestUnknownTagWidthLimit(t *testing.T) {
	m := NewMapping()
	if err := m.SetUnknown(1<<28, []byte{0x01, 0x02}); !errors.Is(err, ErrMalformedLength) {
		t.Fatalf("expected ErrMalformedLength for a 5-byte tag, got %v", err)
	}
	widest := 1<<28 - 1
	if err := m.SetUnknown(widest, []byte{0x01, 0x02}); err != nil {
		t.Fatalf("SetUnknown(%d): %v", widest, err)
	}
	packet, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(packet)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if raw, ok := decoded.UnknownValue(widest); !ok || !bytes.Equal(raw, []byte{0x01, 0x02}) {
		t.Fatalf("unknown tag %d = % X, %v", widest, raw, ok)
	}
}

func TestErrorKind(t *testing.T) {
	_, err := Decode(seal([]byte{0x05, 0x0A}))
	if got := ErrorKind(err); got != "TruncatedPacket" {
		t.Fatalf("ErrorKind = %s (%v)", got, err)
	}
	if got := ErrorKind(errors.New("x")); got != "Other" {
		t.Fatalf("ErrorKind = %s", got)
	}
}
