package transcript

import (
	"fmt"
	"strings"
	"time"

	appLog "calwatch/internal/log"
	"calwatch/internal/model"
)

// startLayout matches the tool's timestamp lines, e.g.
// "Wednesday, July 16, 2025, 9:00 AM UTC".
const startLayout = "Monday, January 2, 2006, 3:04 PM MST"

// minBlockLines is the smallest block that can carry a start time:
// header, event ID, and a Start/End pair.
const minBlockLines = 4

// ParseError reports one block that could not be turned into an event.
// Blocks fail independently; the surrounding transcript still parses.
type ParseError struct {
	Ordinal int
	Reason  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("transcript block %d: %s", e.Ordinal, e.Reason)
}

// Parse turns a listing transcript into normalized events. Empty input,
// a bad count header, or a transcript with no blocks all yield an empty
// slice; a malformed block is logged and skipped. Parse never fails the
// whole transcript.
func Parse(blob, sourceName string) []model.Event {
	blob = strings.TrimRight(blob, "\n")
	if blob == "" {
		return nil
	}

	rawLines := strings.Split(blob, "\n")
	count, ok := parseCountHeader(rawLines[0])
	if !ok {
		appLog.Warn("transcript count header unreadable", "source", sourceName, "line", rawLines[0])
		return nil
	}
	if count == 0 {
		return nil
	}

	blocks := segment(tokenize(rawLines[1:]))
	if len(blocks) != count {
		// The header count is advisory; whatever parsed validly wins.
		appLog.Debug("transcript block count differs from header",
			"source", sourceName, "header", count, "blocks", len(blocks))
	}

	events := make([]model.Event, 0, len(blocks))
	for _, b := range blocks {
		ev, err := parseBlock(b, sourceName)
		if err != nil {
			appLog.Error("transcript block skipped", err, "source", sourceName)
			continue
		}
		events = append(events, ev)
	}
	return events
}

// segment groups classified lines into blocks. A block runs from its
// introducing header line up to (excluding) the next header, or end of
// input. Lines before the first header are ignored.
func segment(lines []line) [][]line {
	var blocks [][]line
	var current []line

	for _, l := range lines {
		if l.kind == lineBlockHeader {
			if current != nil {
				blocks = append(blocks, current)
			}
			current = []line{l}
			continue
		}
		if current != nil {
			current = append(current, l)
		}
	}
	if current != nil {
		blocks = append(blocks, current)
	}
	return blocks
}

// parseBlock extracts one event from a block, in the transcript's fixed
// textual order: title on the header line, event ID on the next, then
// free description lines until the first Start line, then Start/End.
func parseBlock(b []line, sourceName string) (model.Event, error) {
	ordinal := b[0].ordinal
	if len(b) < minBlockLines {
		return model.Event{}, &ParseError{Ordinal: ordinal, Reason: "too few lines"}
	}

	title := b[0].rest

	var sourceID string
	if b[1].kind == lineEventID {
		sourceID = b[1].rest
	}

	startIdx := -1
	for i := 2; i < len(b); i++ {
		if b[i].kind == lineStart {
			startIdx = i
			break
		}
	}
	if startIdx == -1 {
		return model.Event{}, &ParseError{Ordinal: ordinal, Reason: "no Start line"}
	}

	descLines := make([]string, 0, startIdx-2)
	for _, l := range b[2:startIdx] {
		descLines = append(descLines, l.raw)
	}
	description := strings.Join(descLines, "\n")

	start, err := parseToolTime(b[startIdx].rest)
	if err != nil {
		return model.Event{}, &ParseError{Ordinal: ordinal, Reason: "bad Start time: " + err.Error()}
	}

	// A missing or unreadable End line falls back to the model's
	// default duration rather than dropping the block.
	var end time.Time
	if startIdx+1 < len(b) && b[startIdx+1].kind == lineEnd {
		if t, err := parseToolTime(b[startIdx+1].rest); err == nil {
			end = t
		}
	}

	return model.New(title, start, end, description, "", sourceID, sourceName)
}

// zoneOffsets resolves the timezone abbreviations the tool emits.
// time.Parse gives unknown abbreviations a fabricated zero-offset zone,
// which would silently shift the event by the real offset, so anything
// not listed here is rejected instead.
var zoneOffsets = map[string]int{
	"UT": 0, "GMT": 0, "UTC": 0,
	"EST": -5 * 3600, "EDT": -4 * 3600,
	"CST": -6 * 3600, "CDT": -5 * 3600,
	"MST": -7 * 3600, "MDT": -6 * 3600,
	"PST": -8 * 3600, "PDT": -7 * 3600,
	"AKST": -9 * 3600, "AKDT": -8 * 3600,
	"HST": -10 * 3600,
	"WET": 0, "WEST": 3600,
	"BST": 3600, "CET": 3600, "CEST": 2 * 3600,
	"EET": 2 * 3600, "EEST": 3 * 3600,
}

func parseToolTime(v string) (time.Time, error) {
	t, err := time.Parse(startLayout, strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, err
	}

	name, offset := t.Zone()
	if offset == 0 {
		known, ok := zoneOffsets[name]
		if !ok {
			return time.Time{}, fmt.Errorf("unknown timezone abbreviation %q", name)
		}
		if known != 0 {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(),
				t.Second(), t.Nanosecond(), time.FixedZone(name, known))
		}
	}
	return t.UTC(), nil
}
