package ics

import (
	"time"

	"github.com/teambition/rrule-go"

	appLog "calwatch/internal/log"
	"calwatch/internal/model"
)

// maxOccurrences caps expansion of a single recurring event so a
// pathological RRULE cannot flood one fetch.
const maxOccurrences = 500

// recurringEvent carries the fields needed to expand one RRULE-bearing
// VEVENT into concrete occurrences.
type recurringEvent struct {
	title       string
	description string
	location    string
	uid         string

	start    time.Time
	end      time.Time
	rawRRule string
	exDates  []time.Time
}

// expandRecurring generates one Event per occurrence inside the options
// window. Each occurrence keeps the base event's duration and gets a
// per-instance source ID (UID plus occurrence start) so IDs stay unique
// within the result set.
func (a *Adapter) expandRecurring(ev recurringEvent, opts Options) ([]model.Event, error) {
	r, err := rrule.StrToRRule(ev.rawRRule)
	if err != nil {
		return nil, err
	}
	r.DTStart(ev.start.UTC())

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.exDates {
		set.ExDate(ex.UTC())
	}

	duration := model.DefaultDuration
	if !ev.end.IsZero() && ev.end.After(ev.start) {
		duration = ev.end.Sub(ev.start)
	}

	occTimes := set.Between(opts.RangeStart, opts.RangeEnd, true)
	if len(occTimes) > maxOccurrences {
		appLog.Warn("recurring event truncated",
			"source", a.feed.SourceName,
			"uid", ev.uid,
			"cap", maxOccurrences,
		)
		occTimes = occTimes[:maxOccurrences]
	}

	out := make([]model.Event, 0, len(occTimes))
	for _, occStart := range occTimes {
		// The occurrence start keeps IDs unique within the result set
		// even when the feed omits a UID.
		sourceID := occStart.UTC().Format(time.RFC3339)
		if ev.uid != "" {
			sourceID = ev.uid + "-" + sourceID
		}
		occ, err := model.New(
			ev.title,
			occStart,
			occStart.Add(duration),
			ev.description,
			ev.location,
			sourceID,
			a.feed.SourceName,
		)
		if err != nil {
			continue
		}
		out = append(out, occ)
	}
	return out, nil
}
