package klv

import (
	"fmt"
	"strings"
	"time"
)

// Timestamp is a count of microseconds since the Unix epoch (UTC).
type Timestamp uint64

const isoLayout = "2006-01-02T15:04:05.000000Z07:00"

func TimestampFromTime(t time.Time) (Timestamp, error) {
	if t.Before(time.Unix(0, 0)) {
		return 0, fmt.Errorf("timestamp %s before epoch: %w", t.Format(time.RFC3339), ErrValueOutOfRange)
	}
	sec := t.Unix()
	usec := int64(t.Nanosecond() / 1000)
	return Timestamp(uint64(sec)*1_000_000 + uint64(usec)), nil
}

func (ts Timestamp) Time() time.Time {
	sec := uint64(ts) / 1_000_000
	usec := uint64(ts) % 1_000_000
	return time.Unix(int64(sec), int64(usec)*1000).UTC()
}

func (ts Timestamp) String() string {
	return ts.Time().Format(isoLayout)
}

func (ts Timestamp) MarshalText() ([]byte, error) {
	return []byte(ts.String()), nil
}

func (ts *Timestamp) UnmarshalText(b []byte) error {
	parsed, err := ParseTimestamp(string(b))
	if err != nil {
		return err
	}
	*ts = parsed
	return nil
}

// ParseTimestamp accepts an RFC 3339 string with optional fractional seconds.
func ParseTimestamp(s string) (Timestamp, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return TimestampFromTime(t)
}
