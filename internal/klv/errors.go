package klv

import "errors"

var (
	ErrMalformedLength     = errors.New("malformed BER length")
	ErrTruncatedPacket     = errors.New("truncated packet")
	ErrChecksumMismatch    = errors.New("checksum mismatch")
	ErrUnknownUniversalKey = errors.New("unknown universal key")
	ErrValueOutOfRange     = errors.New("value out of range")
	ErrStringTooLong       = errors.New("string too long")

	ErrUnknownField = errors.New("unknown field")
	ErrKindMismatch = errors.New("value kind does not match field")
)

var errorKinds = []struct {
	err  error
	name string
}{
	{ErrMalformedLength, "MalformedLength"},
	{ErrTruncatedPacket, "TruncatedPacket"},
	{ErrChecksumMismatch, "ChecksumMismatch"},
	{ErrUnknownUniversalKey, "UnknownUniversalKey"},
	{ErrValueOutOfRange, "ValueOutOfRange"},
	{ErrStringTooLong, "StringTooLong"},
	{ErrUnknownField, "UnknownField"},
	{ErrKindMismatch, "KindMismatch"},
}

// ErrorKind names the codec error class of err, or "Other".
func ErrorKind(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Other"
}
