package handshake

import "testing"

func TestGenerateRoomCodeFormat(t *testing.T) {
	for i := 0; i < 20; i++ {
		code, err := GenerateRoomCode()
		if err != nil {
			t.Fatalf("GenerateRoomCode: %v", err)
		}
		if len(code) != roomCodeDigits {
			t.Fatalf("code %q has length %d, want %d", code, len(code), roomCodeDigits)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("code %q contains non-digit %q", code, r)
			}
		}
	}
}

func TestGenerateRoomCodeVaries(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := GenerateRoomCode()
		if err != nil {
			t.Fatalf("GenerateRoomCode: %v", err)
		}
		seen[code] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expected GenerateRoomCode to vary across calls, got only %d distinct values", len(seen))
	}
}
