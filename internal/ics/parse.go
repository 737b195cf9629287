package ics

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "calwatch/internal/log"
	"calwatch/internal/model"
)

const (
	// DefaultMaxEvents caps one fetch's result set.
	DefaultMaxEvents = 100
	// Default window bounds relative to now.
	defaultLookback = 24 * time.Hour
	defaultHorizon  = 14 * 24 * time.Hour
)

// Options controls the range filter and truncation applied during parsing.
type Options struct {
	// RangeStart / RangeEnd bound the inclusive filter window in UTC.
	// Zero values default to [now-1d, now+14d].
	RangeStart time.Time
	RangeEnd   time.Time
	// MaxEvents truncates the sorted result; zero means DefaultMaxEvents.
	MaxEvents int
}

func (o *Options) normalize(now time.Time) {
	if o.RangeStart.IsZero() {
		o.RangeStart = now.Add(-defaultLookback)
	}
	if o.RangeEnd.IsZero() {
		o.RangeEnd = now.Add(defaultHorizon)
	}
	o.RangeStart = o.RangeStart.UTC()
	o.RangeEnd = o.RangeEnd.UTC()
	if o.MaxEvents <= 0 {
		o.MaxEvents = DefaultMaxEvents
	}
}

// Adapter turns the media-release feed into normalized events. The
// options are fixed at construction; callers that need a different
// window or cap build a new adapter.
type Adapter struct {
	feed    Feed
	opts    Options
	fetcher *Fetcher
	now     func() time.Time
}

func NewAdapter(feed Feed, opts Options) *Adapter {
	return &Adapter{
		feed:    feed,
		opts:    opts,
		fetcher: NewFetcher(),
		now:     time.Now,
	}
}

// Fetch retrieves and parses the feed. Failures never escape the
// adapter boundary: a network or HTTP error yields an empty result, a
// malformed VEVENT is skipped, and in both cases the cause is logged
// with the source name and UID.
func (a *Adapter) Fetch(ctx context.Context) []model.Event {
	body, err := a.fetcher.Fetch(ctx, a.feed)
	if err != nil {
		appLog.Error("ics fetch failed", err, "source", a.feed.SourceName)
		return nil
	}
	return a.Parse(body, a.opts)
}

// Parse normalizes every VEVENT in the payload, expands recurring ones,
// filters to the options window, sorts ascending by start, and
// truncates to the max count.
func (a *Adapter) Parse(body []byte, opts Options) []model.Event {
	opts.normalize(a.now().UTC())

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics payload parse failed", err, "source", a.feed.SourceName)
		return nil
	}

	events := make([]model.Event, 0)

	for _, ve := range cal.Events() {
		parsed, err := a.parseVEvent(ve, opts)
		if err != nil {
			appLog.Error("ics vevent skipped", err,
				"source", a.feed.SourceName,
				"uid", propValue(ve, ical.ComponentPropertyUniqueId),
			)
			continue
		}
		events = append(events, parsed...)
	}

	events = filterRange(events, opts.RangeStart, opts.RangeEnd)
	sort.Slice(events, func(i, j int) bool {
		return events[i].Start.Before(events[j].Start)
	})
	if len(events) > opts.MaxEvents {
		events = events[:opts.MaxEvents]
	}

	appLog.Info("ics parse completed", "source", a.feed.SourceName, "event_count", len(events))
	return events
}

// parseVEvent normalizes one VEVENT. Recurring events expand into one
// Event per occurrence within the options window; plain events yield a
// single Event.
func (a *Adapter) parseVEvent(ve *ical.VEvent, opts Options) ([]model.Event, error) {
	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil || dtStart.Value == "" {
		return nil, errors.New("missing DTSTART")
	}
	start, err := icsTime(dtStart)
	if err != nil {
		return nil, err
	}

	var end time.Time
	if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil && dtEnd.Value != "" {
		end, err = icsTime(dtEnd)
		if err != nil {
			return nil, err
		}
		if end.Before(start) {
			return nil, errors.New("DTEND precedes DTSTART")
		}
	}

	title := propValue(ve, ical.ComponentPropertySummary)
	description := propValue(ve, ical.ComponentPropertyDescription)
	location := propValue(ve, ical.ComponentPropertyLocation)
	uid := propValue(ve, ical.ComponentPropertyUniqueId)

	if rruleProp := ve.GetProperty(ical.ComponentPropertyRrule); rruleProp != nil && rruleProp.Value != "" {
		return a.expandRecurring(recurringEvent{
			title:       title,
			description: description,
			location:    location,
			uid:         uid,
			start:       start,
			end:         end,
			rawRRule:    rruleProp.Value,
			exDates:     exDates(ve),
		}, opts)
	}

	ev, err := model.New(title, start, end, description, location, uid, a.feed.SourceName)
	if err != nil {
		return nil, err
	}
	return []model.Event{ev}, nil
}

func filterRange(events []model.Event, rangeStart, rangeEnd time.Time) []model.Event {
	kept := events[:0]
	for _, ev := range events {
		if ev.Overlaps(rangeStart, rangeEnd) {
			kept = append(kept, ev)
		}
	}
	return kept
}

func propValue(ve *ical.VEvent, name ical.ComponentProperty) string {
	if p := ve.GetProperty(name); p != nil {
		return p.Value
	}
	return ""
}

func exDates(ve *ical.VEvent) []time.Time {
	var out []time.Time
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSValue(part, false); err == nil {
				out = append(out, t)
			}
		}
	}
	return out
}

// icsTime resolves a DTSTART/DTEND property to UTC. Bare dates (all-day
// markers) become midnight UTC of that date; datetimes without a zone
// are assumed UTC; TZID-qualified values are converted.
func icsTime(p *ical.IANAProperty) (time.Time, error) {
	dateOnly := !strings.Contains(p.Value, "T")
	if params := p.ICalParameters; params != nil {
		if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			dateOnly = true
		}
		if tzs, ok := params["TZID"]; ok && len(tzs) > 0 && !dateOnly {
			loc, err := time.LoadLocation(tzs[0])
			if err != nil {
				return time.Time{}, err
			}
			t, err := time.ParseInLocation("20060102T150405", strings.TrimSuffix(p.Value, "Z"), loc)
			if err != nil {
				return time.Time{}, err
			}
			return t.UTC(), nil
		}
	}
	return parseICSValue(p.Value, dateOnly)
}

func parseICSValue(v string, dateOnly bool) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	if dateOnly || !strings.Contains(v, "T") {
		t, err := time.ParseInLocation("20060102", v, time.UTC)
		if err != nil {
			return time.Time{}, err
		}
		return t, nil
	}

	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}

	// Floating local time: the feed carries no zone, assume UTC.
	return time.ParseInLocation("20060102T150405", v, time.UTC)
}
