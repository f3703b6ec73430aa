package klv

import (
	"bytes"
	"errors"
	"testing"
)

func TestLengthRoundTrip(t *testing.T) {
	cases := []struct {
		n    int
		want []byte
	}{
		{0, []byte{0x00}},
		{127, []byte{0x7F}},
		{128, []byte{0x81, 0x80}},
		{255, []byte{0x81, 0xFF}},
		{256, []byte{0x82, 0x01, 0x00}},
		{65535, []byte{0x82, 0xFF, 0xFF}},
		{65536, []byte{0x83, 0x01, 0x00, 0x00}},
	}
	for _, tc := range cases {
		enc := EncodeLength(tc.n)
		if !bytes.Equal(enc, tc.want) {
			t.Fatalf("EncodeLength(%d) = % X, want % X", tc.n, enc, tc.want)
		}
		n, consumed, err := DecodeLength(append(enc, 0xAA))
		if err != nil {
			t.Fatalf("DecodeLength(% X): %v", enc, err)
		}
		if n != tc.n || consumed != len(enc) {
			t.Fatalf("DecodeLength(% X) = %d,%d want %d,%d", enc, n, consumed, tc.n, len(enc))
		}
	}
}

func TestEncodeLengthNegativePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("EncodeLength(-1) did not panic")
		}
	}()
	EncodeLength(-1)
}

func TestDecodeLengthNonMinimal(t *testing.T) {
	n, consumed, err := DecodeLength([]byte{0x82, 0x00, 0x05})
	if err != nil || n != 5 || consumed != 3 {
		t.Fatalf("got %d,%d,%v", n, consumed, err)
	}
}

func TestDecodeLengthMalformed(t *testing.T) {
	cases := map[string][]byte{
		"empty":        nil,
		"zero count":   {0x80},
		"short buffer": {0x82, 0x01},
		"overflow":     {0x88, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
	}
	for name, in := range cases {
		if _, _, err := DecodeLength(in); !errors.Is(err, ErrMalformedLength) {
			t.Fatalf("%s: expected ErrMalformedLength, got %v", name, err)
		}
	}
}
