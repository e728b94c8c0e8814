package service

import (
	"strings"
	"testing"
)

func TestGenerateReferralCode(t *testing.T) {
	tests := []struct {
		name, prefix string
	}{
		{"Alice", "ALIC"},
		{"al", "ALXX"},
		{"Jo-hn Smith", "JOHN"},
		{"Zoë", "ZOXX"},
		{"", "XXXX"},
		{"42 Bo", "BOXX"},
	}
	for _, tt := range tests {
		code, err := GenerateReferralCode(tt.name)
		if err != nil {
			t.Fatalf("%q: %v", tt.name, err)
		}
		if !strings.HasPrefix(code, tt.prefix) || !referralCodePattern.MatchString(code) {
			t.Errorf("%q -> %q, want prefix %s", tt.name, code, tt.prefix)
		}
	}
}

func TestGenerateOTP(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		code, err := GenerateOTP()
		if err != nil {
			t.Fatal(err)
		}
		if !validOTPFormat(code) {
			t.Fatalf("bad code %q", code)
		}
		seen[code] = true
	}
	if len(seen) < 150 {
		t.Errorf("only %d distinct codes in 200 draws", len(seen))
	}
}
