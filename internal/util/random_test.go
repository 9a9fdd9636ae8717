package util

import (
	"testing"
)

func TestGenerateRecoveryToken(t *testing.T) {
	token, err := GenerateRecoveryToken()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(token) != RecoveryTokenBytes*2 {
		t.Errorf("token length = %d, want %d", len(token), RecoveryTokenBytes*2)
	}
	for _, c := range token {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			t.Errorf("token contains non-hex character %q", c)
		}
	}
}

func TestGenerateRecoveryTokenUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		token, err := GenerateRecoveryToken()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seen[token] {
			t.Fatalf("duplicate token generated: %s", token)
		}
		seen[token] = true
	}
}

func TestGenerateSecureHexInvalidLength(t *testing.T) {
	if _, err := GenerateSecureHex(0); err == nil {
		t.Error("expected error for zero length")
	}
	if _, err := GenerateSecureHex(-1); err == nil {
		t.Error("expected error for negative length")
	}
}

func TestGenerateRandomID(t *testing.T) {
	id, err := GenerateRandomID("run_", 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(id) != len("run_")+16 {
		t.Errorf("id length = %d, want %d", len(id), len("run_")+16)
	}
	if id[:4] != "run_" {
		t.Errorf("id prefix = %q, want run_", id[:4])
	}
}
