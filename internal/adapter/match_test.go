package adapter

import "testing"

func TestMatchTopic(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		topic   string
		want    bool
	}{
		// Exact matches
		{"exact match", "devices/s1/temp", "devices/s1/temp", true},
		{"exact mismatch", "devices/s1/temp", "devices/s1/humidity", false},
		{"exact shorter topic", "devices/s1/temp", "devices/s1", false},
		{"exact longer topic", "devices/s1", "devices/s1/temp", false},

		// Single-level wildcard
		{"plus matches one level", "devices/+/temp", "devices/s1/temp", true},
		{"plus any device", "devices/+/temp", "devices/s42/temp", true},
		{"plus wrong suffix", "devices/+/temp", "devices/s1/humidity", false},
		{"plus does not span levels", "devices/+", "devices/s1/temp", false},
		{"plus too short", "devices/+/temp", "devices/s1", false},
		{"leading plus", "+/s1/temp", "devices/s1/temp", true},
		{"multiple plus", "+/+/temp", "devices/s1/temp", true},

		// Multi-level wildcard
		{"hash matches remainder", "devices/#", "devices/s1/temp", true},
		{"hash matches deep", "devices/#", "devices/s1/temp/raw", true},
		{"hash alone matches everything", "#", "a/b/c", true},
		{"hash after literal mismatch", "sensors/#", "devices/s1/temp", false},

		// Combinations
		{"plus then hash", "devices/+/#", "devices/s1/temp/raw", true},
		{"hash matches parent level", "devices/#", "devices", true},
		{"empty topic vs pattern", "devices/+", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchTopic(tt.pattern, tt.topic); got != tt.want {
				t.Errorf("MatchTopic(%q, %q) = %v, want %v", tt.pattern, tt.topic, got, tt.want)
			}
		})
	}
}
