package pipeline

import "time"

// Window is the staleness interval a cart's last_modified must fall in to
// qualify for a recovery notification: old enough to be genuinely abandoned,
// fresh enough that a nudge is still relevant.
//
// The interval is half-open: [Oldest, Newest). A cart modified exactly at
// now-minAge is excluded; one modified exactly at now-maxAge is included.
type Window struct {
	Oldest time.Time `json:"oldest"`
	Newest time.Time `json:"newest"`
}

// ComputeWindow returns the staleness window for the given instant.
// Pure function; callers inject the clock.
func ComputeWindow(now time.Time, minAge, maxAge time.Duration) Window {
	return Window{
		Oldest: now.Add(-maxAge),
		Newest: now.Add(-minAge),
	}
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Oldest) && t.Before(w.Newest)
}
