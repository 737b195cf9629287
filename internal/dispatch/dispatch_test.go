package dispatch

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"calwatch/internal/model"
)

type fakeRunner struct {
	payloads []string
	// failOn maps a payload to the exit code it should produce.
	failOn map[string]int
	// launchErr, if set, is returned for every run.
	launchErr error
	stderr    []byte
}

func (f *fakeRunner) Run(payload string) (int, []byte, error) {
	f.payloads = append(f.payloads, payload)
	if f.launchErr != nil {
		return -1, f.stderr, f.launchErr
	}
	if code, ok := f.failOn[payload]; ok {
		return code, f.stderr, nil
	}
	return 0, f.stderr, nil
}

func mustEvent(t *testing.T, title, description, id string) model.Event {
	t.Helper()
	ev, err := model.New(title,
		time.Date(2025, 7, 16, 9, 0, 0, 0, time.UTC), time.Time{},
		description, "", id, "test")
	if err != nil {
		t.Fatal(err)
	}
	return ev
}

func TestDispatchIsolatesFailures(t *testing.T) {
	runner := &fakeRunner{failOn: map[string]int{"second payload": 2}}
	d := New(runner, filepath.Join(t.TempDir(), "trigger.log"))

	events := []model.Event{
		mustEvent(t, "First", "first payload", "ev-1"),
		mustEvent(t, "Second", "second payload", "ev-2"),
		mustEvent(t, "Third", "third payload", "ev-3"),
	}

	failures := d.Dispatch(events)
	if len(runner.payloads) != 3 {
		t.Fatalf("runner invoked %d times, want 3", len(runner.payloads))
	}
	if len(failures) != 1 {
		t.Fatalf("recorded %d failures, want 1", len(failures))
	}
	if failures[0].SourceID != "ev-2" || failures[0].ExitCode != 2 {
		t.Errorf("failure = %+v, want ev-2 with exit 2", failures[0])
	}
}

func TestDispatchPassesFullDescriptionAsPayload(t *testing.T) {
	runner := &fakeRunner{}
	d := New(runner, filepath.Join(t.TempDir(), "trigger.log"))

	long := strings.Repeat("x", 500)
	events := []model.Event{mustEvent(t, model.NoTitle, long, "ev-1")}

	d.Dispatch(events)
	if len(runner.payloads) != 1 || runner.payloads[0] != long {
		t.Error("payload was truncated; the label limit must not apply to the payload")
	}
}

func TestDispatchRecordsLaunchFailure(t *testing.T) {
	runner := &fakeRunner{launchErr: errors.New("binary not found")}
	d := New(runner, filepath.Join(t.TempDir(), "trigger.log"))

	failures := d.Dispatch([]model.Event{mustEvent(t, "Only", "payload", "ev-1")})
	if len(failures) != 1 {
		t.Fatalf("recorded %d failures, want 1", len(failures))
	}
	if failures[0].Err == nil {
		t.Error("launch failure should carry the underlying error")
	}
}

func TestDispatchAppendsStderrToLog(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "trigger.log")
	runner := &fakeRunner{stderr: []byte("warning: something odd\n")}
	d := New(runner, logPath)

	d.Dispatch([]model.Event{
		mustEvent(t, "A", "a", "ev-1"),
		mustEvent(t, "B", "b", "ev-2"),
	})

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(data), "warning: something odd"); got != 2 {
		t.Errorf("log contains %d stderr entries, want 2", got)
	}
}

func TestConsoleLabel(t *testing.T) {
	long := strings.Repeat("d", 300)

	tests := []struct {
		name  string
		event model.Event
		want  string
	}{
		{"titled", mustEvent(t, "Launch", long, "ev-1"), "Launch"},
		{"sentinel title", mustEvent(t, model.NoTitle, "short desc", "ev-2"), "short desc"},
		{"untitled long description", mustEvent(t, model.NoTitle, long, "ev-3"), long[:labelLimit]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := consoleLabel(tt.event); got != tt.want {
				t.Errorf("consoleLabel = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConsoleLabelTruncatesOnRuneBoundary(t *testing.T) {
	// 80 three-byte runes = 240 bytes; a byte cut at 200 would land
	// mid-rune after 66 whole characters.
	desc := strings.Repeat("日", 80)
	ev := mustEvent(t, model.NoTitle, desc, "ev-utf8")

	got := consoleLabel(ev)
	if !utf8.ValidString(got) {
		t.Fatalf("label is not valid UTF-8: %q", got)
	}
	if len(got) > labelLimit {
		t.Errorf("label length = %d bytes, want <= %d", len(got), labelLimit)
	}
	if want := strings.Repeat("日", 66); got != want {
		t.Errorf("label = %q, want %d whole runes", got, 66)
	}
}

func TestExecRunnerRoundTrip(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}

	script := filepath.Join(t.TempDir(), "action.sh")
	// Echoes the payload to stderr and exits 7; the payload arrives as
	// $2, after the confirmation-skip flag.
	if err := os.WriteFile(script, []byte("#!/bin/sh\necho \"$2\" >&2\nexit 7\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	r := &ExecRunner{Command: script}
	exitCode, stderr, err := r.Run(`it's "quoted" $payload`)
	if err != nil {
		t.Fatal(err)
	}
	if exitCode != 7 {
		t.Errorf("exit code = %d, want 7", exitCode)
	}
	if got := strings.TrimSpace(string(stderr)); got != `it's "quoted" $payload` {
		t.Errorf("stderr = %q; quoting mangled the payload", got)
	}
}
