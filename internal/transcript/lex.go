package transcript

import (
	"regexp"
	"strconv"
	"strings"
)

// The listing transcript is free text, so parsing is split into stages:
// the tokenizer here classifies each line into a typed record, the
// segmenter in parse.go groups records into per-event blocks, and the
// block parser extracts fields. Each stage fails in one obvious way,
// which keeps the fragile parts unit-testable on their own.

type lineKind int

const (
	lineText lineKind = iota
	lineBlockHeader
	lineEventID
	lineStart
	lineEnd
)

// line is one classified transcript line.
type line struct {
	kind lineKind
	raw  string
	// rest is the text after the recognized marker, trimmed.
	rest string
	// ordinal is the 1-based block number for lineBlockHeader records.
	ordinal int
}

var blockHeaderRe = regexp.MustCompile(`^(\d+)\. Event:`)

// tokenize classifies every line after the count header.
func tokenize(lines []string) []line {
	out := make([]line, 0, len(lines))
	for _, raw := range lines {
		out = append(out, classify(raw))
	}
	return out
}

func classify(raw string) line {
	if m := blockHeaderRe.FindStringSubmatch(raw); m != nil {
		ordinal, _ := strconv.Atoi(m[1])
		return line{
			kind:    lineBlockHeader,
			raw:     raw,
			rest:    strings.TrimSpace(raw[len(m[0]):]),
			ordinal: ordinal,
		}
	}
	if rest, ok := strings.CutPrefix(raw, "Event ID:"); ok {
		return line{kind: lineEventID, raw: raw, rest: strings.TrimSpace(rest)}
	}
	if rest, ok := strings.CutPrefix(raw, "Start:"); ok {
		return line{kind: lineStart, raw: raw, rest: strings.TrimSpace(rest)}
	}
	if rest, ok := strings.CutPrefix(raw, "End:"); ok {
		return line{kind: lineEnd, raw: raw, rest: strings.TrimSpace(rest)}
	}
	return line{kind: lineText, raw: raw}
}

// parseCountHeader reads the "Found N events" first line. Only the
// second whitespace-delimited token, the count, is meaningful; the
// leading verb is not inspected. A malformed count reports ok=false and
// the caller returns an empty result rather than failing the run.
func parseCountHeader(raw string) (int, bool) {
	fields := strings.Fields(raw)
	if len(fields) < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
