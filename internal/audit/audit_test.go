package audit

import (
	"testing"
)

// TestPurpose: Validates that sensitive keys are correctly identified as secrets to prevent them from being logged in plaintext.
// Scope: Unit Test
// Expected: Returns true for keys containing 'password', 'token', 'secret', etc., and false for non-sensitive keys.
func TestAudit_IsSecret(t *testing.T) {
	tests := []struct {
		key      string
		isSecret bool
	}{
		{"password", true},
		{"Password", true},
		{"token", true},
		{"access_token", true},
		{"secret", true},
		{"api_key", true},
		{"credential", true},
		{"role_id", false},
		{"scope", false},
		{"user_id", false},
		{"group_id", false},
		{"name", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := isSecret(tt.key); got != tt.isSecret {
				t.Errorf("isSecret(%q) = %v, want %v", tt.key, got, tt.isSecret)
			}
		})
	}
}
