package common

import (
	"strings"
	"testing"
)

// ---------- WipeByteArray ----------

func TestWipeByteArray_ZerosBuffer(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5}
	WipeByteArray(buf)
	for i, v := range buf {
		if v != 0 {
			t.Fatalf("expected buf[%d]==0, got %d", i, v)
		}
	}
}

func TestWipeByteArray_NilSafe(t *testing.T) {
	WipeByteArray(nil)
}

// ---------- MakeRandURLToken ----------

func TestMakeRandURLToken_Length(t *testing.T) {
	s, err := MakeRandURLToken(32)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 32 bytes -> 43 chars without padding
	if len(s) != 43 {
		t.Fatalf("expected 43 chars, got %d (%q)", len(s), s)
	}
	if strings.ContainsAny(s, "+/=") {
		t.Fatalf("token is not url-safe: %q", s)
	}
}

// ---------- MakeRandDigits ----------

func TestMakeRandDigits_LengthAndCharset(t *testing.T) {
	for _, n := range []int{1, 4, 6, 8} {
		for i := 0; i < 50; i++ {
			s, err := MakeRandDigits(n)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(s) != n {
				t.Fatalf("n=%d: got %q", n, s)
			}
			for _, r := range s {
				if r < '0' || r > '9' {
					t.Fatalf("non-digit in %q", s)
				}
			}
		}
	}
}

func TestMakeRandDigits_InvalidLength(t *testing.T) {
	if _, err := MakeRandDigits(0); err == nil {
		t.Fatal("expected error for n=0")
	}
}
