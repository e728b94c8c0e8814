package client

import "testing"

func TestExtractHostPort(t *testing.T) {
	tests := []struct{ in, want string }{
		{"clickhouse.internal", "clickhouse.internal:9000"},
		{"https://ch.example.com", "ch.example.com:9440"},
		{"http://localhost:9000/", "localhost:9000"},
		{"clickhouse://10.0.0.5:9001", "10.0.0.5:9001"},
	}
	for _, tt := range tests {
		if got := extractHostPort(tt.in); got != tt.want {
			t.Errorf("extractHostPort(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := extractHostname("https://ch.example.com"); got != "ch.example.com" {
		t.Errorf("extractHostname = %q", got)
	}
}
