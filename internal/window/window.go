package window

import (
	"sort"
	"time"

	appLog "calwatch/internal/log"
	"calwatch/internal/model"
)

// Length is the span of one dispatch window.
const Length = 30 * time.Minute

// Window is the half-hour-aligned interval used to decide which events
// are due now. Both bounds are inclusive for matching.
type Window struct {
	Start time.Time
	End   time.Time
}

// Compute returns the canonical window for the given instant: the start
// is now truncated down to the most recent half-hour boundary, the end
// is start + 30 minutes. Any two instants inside the same half-hour
// bucket compute an identical window, so the rule is safe for runs
// invoked off-cadence.
func Compute(now time.Time) Window {
	now = now.UTC()
	start := now.Truncate(Length)
	return Window{Start: start, End: start.Add(Length)}
}

// Match filters events to those due inside the window and returns them
// sorted ascending by start, ties broken by source ID so the order is
// deterministic regardless of which adapter delivered first. An empty
// result from a non-empty candidate set is a benign nothing-to-do
// outcome, logged at debug level only.
func Match(events []model.Event, w Window) []model.Event {
	matched := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if ev.Overlaps(w.Start, w.End) {
			matched = append(matched, ev)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Start.Equal(matched[j].Start) {
			return matched[i].Start.Before(matched[j].Start)
		}
		return matched[i].SourceID < matched[j].SourceID
	})

	if len(matched) == 0 && len(events) > 0 {
		appLog.Debug("no events due in window",
			"window_start", w.Start.Format(time.RFC3339),
			"window_end", w.End.Format(time.RFC3339),
			"candidates", len(events),
		)
	}
	return matched
}
