package ir

import "testing"

func TestDecodeKnownCodes(t *testing.T) {
	for code, want := range codeTable {
		if got := Decode(code); got != want {
			t.Errorf("Decode(%#x) = %v, want %v", code, got, want)
		}
	}
}

func TestDecodeUnknownCode(t *testing.T) {
	if got := Decode(0xDEADBEEF); got != Unknown {
		t.Errorf("Decode(unmapped) = %v, want Unknown", got)
	}
}
