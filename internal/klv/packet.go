package klv

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"example.com/klvgate/internal/dict"
)

// UASLocalSetKey prefixes every ST 0601 local set packet.
var UASLocalSetKey = [16]byte{
	0x06, 0x0E, 0x2B, 0x34, 0x02, 0x0B, 0x01, 0x01,
	0x0E, 0x01, 0x03, 0x01, 0x01, 0x00, 0x00, 0x00,
}

const (
	KeyLen          = len(UASLocalSetKey)
	checksumItemLen = 4
	checksumLen     = 2
	maxTagBytes     = 4
	maxUnknownTag   = 1 << (7 * maxTagBytes)
)

type Codec struct {
	dict *dict.Store
}

// NewCodec binds a codec to d, or to the built-in dictionary when d is nil.
func NewCodec(d *dict.Store) *Codec {
	if d == nil {
		d = dict.Default()
	}
	return &Codec{dict: d}
}

func (c *Codec) Dictionary() *dict.Store {
	return c.dict
}

func (c *Codec) NewMapping() *Mapping {
	return NewMappingFor(c.dict)
}

func Decode(b []byte) (*Mapping, error) {
	return NewCodec(nil).Decode(b)
}

func Encode(m *Mapping) ([]byte, error) {
	return NewCodec(nil).Encode(m)
}

// PacketLen returns the total size of the packet at the start of b as
// declared by its length field.
func PacketLen(b []byte) (int, error) {
	if len(b) < KeyLen {
		return 0, fmt.Errorf("%d bytes before key end: %w", len(b), ErrTruncatedPacket)
	}
	if !bytes.Equal(b[:KeyLen], UASLocalSetKey[:]) {
		return 0, fmt.Errorf("key % X: %w", b[:KeyLen], ErrUnknownUniversalKey)
	}
	n, consumed, err := DecodeLength(b[KeyLen:])
	if err != nil {
		return 0, fmt.Errorf("packet length: %w", err)
	}
	return KeyLen + consumed + n, nil
}

// Decode parses one local set packet. The checksum is verified before any
// item is interpreted; any failure rejects the whole packet.
func (c *Codec) Decode(b []byte) (*Mapping, error) {
	end, err := PacketLen(b)
	if err != nil {
		return nil, err
	}
	if end > len(b) {
		return nil, fmt.Errorf("declared %d bytes, have %d: %w", end, len(b), ErrTruncatedPacket)
	}
	_, consumed, _ := DecodeLength(b[KeyLen:])
	start := KeyLen + consumed
	packet := b[:end]
	if end-start < checksumItemLen ||
		packet[end-checksumItemLen] != dict.ChecksumTag || packet[end-checksumItemLen+1] != checksumLen {
		return nil, fmt.Errorf("no trailing checksum item: %w", ErrChecksumMismatch)
	}
	want := binary.BigEndian.Uint16(packet[end-checksumLen:])
	if got := Checksum(packet[:end-checksumLen]); got != want {
		return nil, fmt.Errorf("computed 0x%04X, packet carries 0x%04X: %w", got, want, ErrChecksumMismatch)
	}

	m := c.NewMapping()
	items := packet[start : end-checksumItemLen]
	for off := 0; off < len(items); {
		tag, tn, err := decodeTag(items[off:])
		if err != nil {
			return nil, fmt.Errorf("item at %d: %w", start+off, err)
		}
		off += tn
		if off >= len(items) {
			return nil, fmt.Errorf("tag %d: no length: %w", tag, ErrTruncatedPacket)
		}
		n, ln, err := DecodeLength(items[off:])
		if err != nil {
			return nil, fmt.Errorf("tag %d: %w", tag, err)
		}
		off += ln
		if off+n > len(items) {
			return nil, fmt.Errorf("tag %d: length %d runs past payload: %w", tag, n, ErrTruncatedPacket)
		}
		raw := items[off : off+n]
		off += n
		if tag == int(dict.ChecksumTag) {
			return nil, fmt.Errorf("checksum item at %d is not last: %w", start+off-n, ErrChecksumMismatch)
		}
		if tag <= maxFieldTag {
			if e, ok := c.dict.Lookup(uint8(tag)); ok {
				v, err := DecodeValue(e, raw)
				if err != nil {
					return nil, fmt.Errorf("tag %d: %w", tag, err)
				}
				m.slots[tag] = v
				continue
			}
		}
		if m.unknown == nil {
			m.unknown = make(map[int][]byte)
		}
		m.unknown[tag] = append([]byte(nil), raw...)
	}
	return m, nil
}

// Encode serializes m with items in ascending tag order and appends a
// freshly computed checksum. Identical mappings encode identically.
func (c *Codec) Encode(m *Mapping) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("nil mapping")
	}
	var body []byte
	known := m.Tags()
	unknown := m.UnknownTags()
	for len(known) > 0 || len(unknown) > 0 {
		var tag int
		var raw []byte
		if len(unknown) == 0 || (len(known) > 0 && int(known[0]) < unknown[0]) {
			tag = int(known[0])
			known = known[1:]
			e, _ := m.dict.Lookup(uint8(tag))
			enc, err := EncodeValue(e, m.slots[tag])
			if err != nil {
				return nil, fmt.Errorf("tag %d: %w", tag, err)
			}
			raw = enc
		} else {
			tag = unknown[0]
			unknown = unknown[1:]
			raw = m.unknown[tag]
		}
		body = append(body, encodeTag(tag)...)
		body = append(body, EncodeLength(len(raw))...)
		body = append(body, raw...)
	}

	length := EncodeLength(len(body) + checksumItemLen)
	out := make([]byte, 0, KeyLen+len(length)+len(body)+checksumItemLen)
	out = append(out, UASLocalSetKey[:]...)
	out = append(out, length...)
	out = append(out, body...)
	out = append(out, dict.ChecksumTag, checksumLen)
	out = binary.BigEndian.AppendUint16(out, Checksum(out))
	return out, nil
}

// decodeTag reads a BER-OID tag number.
func decodeTag(b []byte) (int, int, error) {
	tag := 0
	for i := 0; i < len(b) && i < maxTagBytes; i++ {
		tag = tag<<7 | int(b[i]&0x7F)
		if b[i]&0x80 == 0 {
			return tag, i + 1, nil
		}
	}
	if len(b) < maxTagBytes {
		return 0, 0, fmt.Errorf("tag runs past payload: %w", ErrTruncatedPacket)
	}
	return 0, 0, fmt.Errorf("tag longer than %d bytes: %w", maxTagBytes, ErrMalformedLength)
}

func encodeTag(tag int) []byte {
	if tag < 0x80 {
		return []byte{byte(tag)}
	}
	var tmp [maxTagBytes + 1]byte
	i := len(tmp) - 1
	tmp[i] = byte(tag & 0x7F)
	for tag >>= 7; tag > 0; tag >>= 7 {
		i--
		tmp[i] = byte(tag&0x7F) | 0x80
	}
	return append([]byte(nil), tmp[i:]...)
}
