package transcript

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	appLog "calwatch/internal/log"
	"calwatch/internal/model"
)

// toolTimeLayout is the ISO-8601 seconds-precision form the lookup tool
// expects for its window bounds. No zone suffix; values are UTC.
const toolTimeLayout = "2006-01-02T15:04:05"

// Tool runs the calendar lookup command that produces a listing
// transcript on stdout.
type Tool struct {
	// Command is the tool binary path.
	Command string
	// WorkDir is the directory the tool runs in.
	WorkDir string
	// CalendarID identifies the calendar to list.
	CalendarID string
}

// List invokes the tool for the given window and returns the raw
// transcript. Timeout policy belongs to the caller's context.
func (t *Tool) List(ctx context.Context, timeMin, timeMax time.Time) (string, error) {
	if t.Command == "" {
		return "", errors.New("transcript tool command is empty")
	}

	cmd := exec.CommandContext(ctx, t.Command,
		"list-events",
		"--calendar", t.CalendarID,
		"--time-min", timeMin.UTC().Format(toolTimeLayout),
		"--time-max", timeMax.UTC().Format(toolTimeLayout),
	)
	cmd.Dir = t.WorkDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			appLog.Debug("transcript tool stderr", "output", stderr.String())
		}
		return "", err
	}
	return stdout.String(), nil
}

// Lister abstracts the tool transport so the adapter is testable with
// canned transcripts.
type Lister interface {
	List(ctx context.Context, timeMin, timeMax time.Time) (string, error)
}

// Adapter turns one calendar's listing transcript into normalized
// events.
type Adapter struct {
	lister Lister
	// SourceName is the logical name stamped on produced events.
	sourceName string
}

func NewAdapter(lister Lister, sourceName string) *Adapter {
	return &Adapter{lister: lister, sourceName: sourceName}
}

// Fetch lists events for the given bounds and parses the transcript.
// Transport failures degrade to an empty result, logged; they never
// fail the run.
func (a *Adapter) Fetch(ctx context.Context, timeMin, timeMax time.Time) []model.Event {
	blob, err := a.lister.List(ctx, timeMin, timeMax)
	if err != nil {
		appLog.Error("transcript fetch failed", err, "source", a.sourceName)
		return nil
	}

	events := Parse(blob, a.sourceName)
	appLog.Info("transcript parse completed", "source", a.sourceName, "event_count", len(events))
	return events
}
