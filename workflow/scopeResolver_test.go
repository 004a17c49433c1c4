package workflow

import (
	"testing"
	"time"
)

func TestResolutionCacheUsable(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)
	var zero time.Time

	cases := []struct {
		name        string
		evaluatedAt *time.Time
		expected    bool
	}{
		{"no instant means now", nil, true},
		{"zero instant means now", &zero, true},
		{"explicit past bypasses the cache", &past, false},
		{"exactly now uses the cache", &now, true},
		{"future instant uses the cache", &future, true},
	}
	for _, tc := range cases {
		if got := resolutionCacheUsable(tc.evaluatedAt, now); got != tc.expected {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.expected, got)
		}
	}
}
