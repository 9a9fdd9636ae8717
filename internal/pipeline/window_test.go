package pipeline

import (
	"testing"
	"time"
)

func TestComputeWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	w := ComputeWindow(now, 2*time.Hour, 24*time.Hour)

	if !w.Oldest.Equal(now.Add(-24 * time.Hour)) {
		t.Errorf("Oldest = %v, want %v", w.Oldest, now.Add(-24*time.Hour))
	}
	if !w.Newest.Equal(now.Add(-2 * time.Hour)) {
		t.Errorf("Newest = %v, want %v", w.Newest, now.Add(-2*time.Hour))
	}
}

// The interval is half-open: inclusive at the oldest edge, exclusive at the
// freshest edge.
func TestWindowBoundaries(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	minAge := 2 * time.Hour
	maxAge := 24 * time.Hour
	w := ComputeWindow(now, minAge, maxAge)

	cases := []struct {
		name     string
		modified time.Time
		want     bool
	}{
		{"exactly at now-minAge is excluded", now.Add(-minAge), false},
		{"one second older than now-minAge is included", now.Add(-minAge).Add(-time.Second), true},
		{"exactly at now-maxAge is included", now.Add(-maxAge), true},
		{"one second older than now-maxAge is excluded", now.Add(-maxAge).Add(-time.Second), false},
		{"middle of the window is included", now.Add(-5 * time.Hour), true},
		{"brand new cart is excluded", now, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := w.Contains(tc.modified); got != tc.want {
				t.Errorf("Contains(%v) = %v, want %v", tc.modified, got, tc.want)
			}
		})
	}
}

func TestRecoveryLink(t *testing.T) {
	got := RecoveryLink("https://shop.example.com/", "abc123")
	want := "https://shop.example.com/recovery?action=track&token=abc123"
	if got != want {
		t.Errorf("RecoveryLink = %q, want %q", got, want)
	}
}
