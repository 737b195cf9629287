package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"calwatch/internal/dispatch"
	appLog "calwatch/internal/log"
	"calwatch/internal/model"
	"calwatch/internal/window"
)

// ICSSource is the media-release feed adapter as the pipeline sees it.
type ICSSource interface {
	Fetch(ctx context.Context) []model.Event
}

// TranscriptSource is the calendar-tool transcript adapter as the
// pipeline sees it, bounded to the run's window.
type TranscriptSource interface {
	Fetch(ctx context.Context, timeMin, timeMax time.Time) []model.Event
}

// Summary describes one completed run. A run succeeds whenever
// configuration was valid; skipped records and failed dispatches only
// show up in the counts.
type Summary struct {
	RunID            string
	Window           window.Window
	TranscriptEvents int
	FeedEvents       int
	Matched          int
	Dispatched       int
	Failures         []dispatch.DispatchError
}

// Pipeline wires the two source adapters, the window matcher, and the
// dispatcher into one run.
type Pipeline struct {
	transcript TranscriptSource
	feed       ICSSource
	dispatcher *dispatch.Dispatcher
	now        func() time.Time
}

func New(transcript TranscriptSource, feed ICSSource, dispatcher *dispatch.Dispatcher) *Pipeline {
	return &Pipeline{
		transcript: transcript,
		feed:       feed,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// Run executes one fetch-match-dispatch cycle. The two sources share no
// mutable state, so they are fetched concurrently; the merged set is
// sorted deterministically by the matcher, which keeps the concurrency
// observationally neutral. Matched events dispatch sequentially in
// ascending start order.
func (p *Pipeline) Run(ctx context.Context) Summary {
	runID := uuid.NewString()
	w := window.Compute(p.now())

	appLog.Info("run started", "run_id", runID,
		"window_start", w.Start.Format(time.RFC3339),
		"window_end", w.End.Format(time.RFC3339),
	)

	var (
		wg               sync.WaitGroup
		transcriptEvents []model.Event
		feedEvents       []model.Event
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		transcriptEvents = p.transcript.Fetch(ctx, w.Start, w.End)
	}()
	go func() {
		defer wg.Done()
		feedEvents = p.feed.Fetch(ctx)
	}()
	wg.Wait()

	candidates := make([]model.Event, 0, len(transcriptEvents)+len(feedEvents))
	candidates = append(candidates, transcriptEvents...)
	candidates = append(candidates, feedEvents...)

	matched := window.Match(candidates, w)

	summary := Summary{
		RunID:            runID,
		Window:           w,
		TranscriptEvents: len(transcriptEvents),
		FeedEvents:       len(feedEvents),
		Matched:          len(matched),
	}

	if len(matched) == 0 {
		appLog.Info("run completed, nothing to dispatch", "run_id", runID, "candidates", len(candidates))
		return summary
	}

	summary.Failures = p.dispatcher.Dispatch(matched)
	summary.Dispatched = len(matched) - len(summary.Failures)

	appLog.Info("run completed", "run_id", runID,
		"matched", summary.Matched,
		"dispatched", summary.Dispatched,
		"failed", len(summary.Failures),
	)
	return summary
}
