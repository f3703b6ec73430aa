package klv

// Checksum is the ST 0601 running sum: bytes at even offsets form the high
// half of a 16-bit word, odd offsets the low half, summed modulo 2^16.
func Checksum(b []byte) uint16 {
	var sum uint16
	for i, c := range b {
		if i%2 == 0 {
			sum += uint16(c) << 8
		} else {
			sum += uint16(c)
		}
	}
	return sum
}
