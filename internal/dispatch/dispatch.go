package dispatch

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"unicode/utf8"

	"al.essio.dev/pkg/shellescape"

	appLog "calwatch/internal/log"
	"calwatch/internal/model"
)

// labelLimit caps the description prefix used as a console label for
// untitled events.
const labelLimit = 200

// ActionRunner is the capability the dispatcher needs from the external
// action process: run one payload, report the exit code and captured
// stderr. A non-nil error means the process could not be launched at
// all.
type ActionRunner interface {
	Run(payload string) (exitCode int, stderr []byte, err error)
}

// ExecRunner invokes the configured action command through the shell
// with the payload as a single shell-escaped argument plus a flag that
// skips interactive confirmation. It blocks until the process exits; no
// timeout is applied here.
type ExecRunner struct {
	// Command is the action runner binary.
	Command string
}

func (r *ExecRunner) Run(payload string) (int, []byte, error) {
	cmdLine := r.Command + " --yes " + shellescape.Quote(payload)
	cmd := exec.Command("sh", "-c", cmdLine)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	// Stdout is deliberately discarded.

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), stderr.Bytes(), nil
		}
		return -1, stderr.Bytes(), err
	}
	return 0, stderr.Bytes(), nil
}

// DispatchError records one failed dispatch: a nonzero exit or a launch
// failure. Failures are isolated per event and never abort the run.
type DispatchError struct {
	SourceID string
	Title    string
	ExitCode int
	Err      error
}

func (e *DispatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dispatch %q (id %s): %v", e.Title, e.SourceID, e.Err)
	}
	return fmt.Sprintf("dispatch %q (id %s): exit status %d", e.Title, e.SourceID, e.ExitCode)
}

// Dispatcher hands matched events to the action runner, one at a time,
// in the order given. At most one dispatch per event per run; there are
// no retries.
type Dispatcher struct {
	runner ActionRunner
	// logPath is the append-only file receiving action stderr.
	logPath string
}

func New(runner ActionRunner, logPath string) *Dispatcher {
	return &Dispatcher{runner: runner, logPath: logPath}
}

// Dispatch invokes the action runner once per event, passing the full
// description as the payload. Each event's outcome is independent: a
// failure is recorded and the remaining events still dispatch.
func (d *Dispatcher) Dispatch(events []model.Event) []DispatchError {
	var failures []DispatchError

	for _, ev := range events {
		label := consoleLabel(ev)

		exitCode, stderr, err := d.runner.Run(ev.Description)

		if len(stderr) > 0 {
			if logErr := d.appendLog(stderr); logErr != nil {
				appLog.Error("action stderr log append failed", logErr, "path", d.logPath)
			}
		}

		switch {
		case err != nil:
			failures = append(failures, DispatchError{
				SourceID: ev.SourceID, Title: ev.Title, ExitCode: exitCode, Err: err,
			})
			appLog.Error("action launch failed", err, "event", label, "id", ev.SourceID)
		case exitCode != 0:
			failures = append(failures, DispatchError{
				SourceID: ev.SourceID, Title: ev.Title, ExitCode: exitCode,
			})
			appLog.Warn("action exited nonzero", "event", label, "id", ev.SourceID, "exit_code", exitCode)
		default:
			appLog.Info("action dispatched", "event", label, "id", ev.SourceID)
		}
	}
	return failures
}

// appendLog opens the log fresh per dispatch and appends the captured
// stderr. Dispatch is sequential, so no locking is needed.
func (d *Dispatcher) appendLog(stderr []byte) error {
	f, err := os.OpenFile(d.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(stderr); err != nil {
		return err
	}
	if stderr[len(stderr)-1] != '\n' {
		if _, err := f.Write([]byte{'\n'}); err != nil {
			return err
		}
	}
	return nil
}

// consoleLabel picks the log line label: the human title when the event
// has one, otherwise a bounded description prefix. The payload is the
// full description either way.
func consoleLabel(ev model.Event) string {
	if ev.HasTitle() {
		return ev.Title
	}
	desc := ev.Description
	if len(desc) > labelLimit {
		// Back off to a rune boundary so the cut never splits a
		// multi-byte character.
		cut := labelLimit
		for cut > 0 && !utf8.RuneStart(desc[cut]) {
			cut--
		}
		desc = desc[:cut]
	}
	return desc
}
