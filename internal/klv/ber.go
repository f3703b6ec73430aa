package klv

import (
	"fmt"
	"math"
)

// DecodeLength reads a BER length from the start of b and returns the length
// and the number of bytes consumed.
func DecodeLength(b []byte) (int, int, error) {
	if len(b) == 0 {
		return 0, 0, fmt.Errorf("empty length field: %w", ErrMalformedLength)
	}
	first := b[0]
	if first&0x80 == 0 {
		return int(first), 1, nil
	}
	count := int(first & 0x7F)
	if count == 0 {
		return 0, 0, fmt.Errorf("long form with zero byte count: %w", ErrMalformedLength)
	}
	if count > len(b)-1 {
		return 0, 0, fmt.Errorf("long form needs %d bytes, have %d: %w", count, len(b)-1, ErrMalformedLength)
	}
	var n uint64
	for _, c := range b[1 : 1+count] {
		if n > math.MaxInt32>>8 {
			return 0, 0, fmt.Errorf("length overflows: %w", ErrMalformedLength)
		}
		n = n<<8 | uint64(c)
	}
	return int(n), 1 + count, nil
}

// EncodeLength returns the minimal BER form of n. It panics if n is
// negative.
func EncodeLength(n int) []byte {
	if n < 0 {
		panic(fmt.Sprintf("klv: negative length %d", n))
	}
	if n <= 0x7F {
		return []byte{byte(n)}
	}
	var tmp [8]byte
	i := len(tmp)
	for v := uint64(n); v > 0; v >>= 8 {
		i--
		tmp[i] = byte(v)
	}
	out := make([]byte, 0, 1+len(tmp)-i)
	out = append(out, 0x80|byte(len(tmp)-i))
	return append(out, tmp[i:]...)
}
