package model

import (
	"fmt"
	"time"
)

// NoTitle is the sentinel used when a source carries no human label.
const NoTitle = "No Title"

// DefaultDuration is applied when a source omits the event end.
const DefaultDuration = time.Hour

// Event is the single normalized record every source adapter produces.
// Start and End are always UTC; no naive timestamp crosses an adapter
// boundary. Events live for one run only and are never persisted.
type Event struct {
	Title       string
	Start       time.Time
	End         time.Time
	Description string
	Location    string

	// SourceID is the origin system's identifier (transcript "Event ID"
	// or iCalendar UID). Unique within one adapter's result set for one
	// fetch; not unique across adapters or fetches.
	SourceID string
	// SourceName identifies which adapter or logical calendar produced
	// the event.
	SourceName string
}

// MalformedEventError reports an event that could not satisfy the model
// invariants at construction time.
type MalformedEventError struct {
	SourceName string
	SourceID   string
	Reason     string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed event from %s (id %q): %s", e.SourceName, e.SourceID, e.Reason)
}

// New builds a normalized Event. A zero start is rejected; a missing or
// earlier-than-start end is replaced by start + DefaultDuration. Both
// timestamps are converted to UTC so callers never see a naive or
// zoned value downstream.
func New(title string, start, end time.Time, description, location, sourceID, sourceName string) (Event, error) {
	if start.IsZero() {
		return Event{}, &MalformedEventError{
			SourceName: sourceName,
			SourceID:   sourceID,
			Reason:     "start time could not be resolved",
		}
	}
	if title == "" {
		title = NoTitle
	}
	start = start.UTC()
	if end.IsZero() || end.Before(start) {
		end = start.Add(DefaultDuration)
	} else {
		end = end.UTC()
	}

	return Event{
		Title:       title,
		Start:       start,
		End:         end,
		Description: description,
		Location:    location,
		SourceID:    sourceID,
		SourceName:  sourceName,
	}, nil
}

// Duration returns End - Start.
func (e Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// Overlaps reports whether the event is due inside the window, i.e. its
// start falls within [windowStart, windowEnd] inclusive on both ends.
func (e Event) Overlaps(windowStart, windowEnd time.Time) bool {
	if e.Start.Before(windowStart) {
		return false
	}
	return !e.Start.After(windowEnd)
}

// HasTitle reports whether the event carries a real human label rather
// than the sentinel.
func (e Event) HasTitle() bool {
	return e.Title != "" && e.Title != NoTitle && e.Title != "No title"
}
