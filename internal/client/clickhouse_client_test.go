package client

import "testing"

func TestExtractHostPort(t *testing.T) {
	tests := []struct {
		url    string
		secure bool
		want   string
	}{
		{"http://localhost:9000", false, "localhost:9000"},
		{"clickhouse://ch.internal", false, "ch.internal:9000"},
		{"https://ch.example.com", true, "ch.example.com:9440"},
		{"tcp://10.0.0.5:9001/", false, "10.0.0.5:9001"},
	}

	for _, tt := range tests {
		if got := extractHostPort(tt.url, tt.secure); got != tt.want {
			t.Errorf("extractHostPort(%q, %v) = %q, want %q", tt.url, tt.secure, got, tt.want)
		}
	}
	if got := extractHostname("https://ch.example.com:9440"); got != "ch.example.com" {
		t.Errorf("extractHostname = %q", got)
	}
}
