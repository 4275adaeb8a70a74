package attendance

import (
	"strings"
	"testing"
)

func TestNewShareCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := NewShareCode()
		if err != nil {
			t.Fatalf("NewShareCode: %v", err)
		}
		if len(code) != codeLength {
			t.Fatalf("len(%q) = %d, want %d", code, len(code), codeLength)
		}
		for _, ch := range code {
			if !strings.ContainsRune(codeAlphabet, ch) {
				t.Fatalf("code %q contains %q outside the alphabet", code, ch)
			}
		}
		seen[code] = true
	}
	// 36^6 codes; 200 draws colliding down to a handful would mean broken
	// entropy.
	if len(seen) < 190 {
		t.Fatalf("only %d distinct codes out of 200", len(seen))
	}
}
