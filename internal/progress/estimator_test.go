package progress

import "testing"

func TestTick_MonotoneOverArbitrarySequence(t *testing.T) {
	e := New(FeedbackSegments())
	e.Reset("job-1")

	// Server progress jitters, regresses, and stalls; displayed must only
	// ever move up.
	sequence := []struct {
		activity  int
		serverPct int
		complete  bool
	}{
		{ActivityRound1, 0, false},
		{ActivityRound1, 40, false},
		{ActivityRound1, 10, false}, // regression
		{ActivityRound1, 0, true},
		{ActivityRound2, 0, false},
		{ActivityRound2, 0, false},
		{ActivityRound2, 0, false}, // long stall
		{ActivityRound2, 90, false},
		{ActivityRound2, 0, true},
		{ActivityRound3, 50, false},
		{ActivityRound3, 0, true},
		{ActivityRound4, 0, true},
		{ActivityRound5, 0, true},
	}

	prev := 0
	for i, step := range sequence {
		got := e.Tick(step.activity, step.serverPct, step.complete)
		if got < prev {
			t.Fatalf("step %d: displayed went %d -> %d", i, prev, got)
		}
		if got < 0 || got > 100 {
			t.Fatalf("step %d: displayed %d out of range", i, got)
		}
		prev = got
	}
	if prev != 100 {
		t.Fatalf("final displayed = %d, want 100", prev)
	}
}

func TestTick_PulseNeverReachesBoundBeforeCompletion(t *testing.T) {
	e := New(FeedbackSegments())
	e.Reset("job-1")

	// Many ticks without server movement: synthetic motion must stop one
	// point short of the segment's upper bound.
	for i := 0; i < 100; i++ {
		if got := e.Tick(ActivityRound1, 0, false); got >= 20 {
			t.Fatalf("tick %d: displayed %d reached bound 20 without completion", i, got)
		}
	}
	if got := e.Displayed(); got != 19 {
		t.Fatalf("displayed = %d, want 19 after saturating pulses", got)
	}

	if got := e.Tick(ActivityRound1, 0, true); got != 20 {
		t.Fatalf("completion snap = %d, want 20", got)
	}
}

func TestTick_ServerProgressMapsIntoBand(t *testing.T) {
	e := New(FeedbackSegments())
	e.Reset("job-1")

	// Round 3 owns [40,60]; server at 50% maps to 50 on the overall bar.
	got := e.Tick(ActivityRound3, 50, false)
	if got != 50 {
		t.Fatalf("displayed = %d, want 50", got)
	}
}

func TestTick_CompletionSnapsToUpperBound(t *testing.T) {
	e := New(TranscriptionSegments())
	e.Reset("job-1")

	e.Tick(ActivityTranscription, 10, false)
	if got := e.Tick(ActivityTranscription, 0, true); got != 100 {
		t.Fatalf("displayed = %d, want 100", got)
	}
}

func TestReset_NewJobDropsState(t *testing.T) {
	e := New(FeedbackSegments())
	e.Reset("job-1")
	e.Tick(ActivityRound1, 0, true)
	e.Tick(ActivityRound2, 0, true)
	if e.Displayed() != 40 {
		t.Fatalf("displayed = %d, want 40", e.Displayed())
	}

	e.Reset("job-2")
	if e.JobID() != "job-2" {
		t.Fatalf("job id = %q", e.JobID())
	}
	if e.Displayed() != 0 {
		t.Fatalf("displayed = %d after reset, want 0", e.Displayed())
	}
	// Pulses from the old job must not leak into the new one.
	if got := e.Tick(ActivityRound1, 0, false); got != 1 {
		t.Fatalf("first tick after reset = %d, want 1", got)
	}
}

func TestTick_OutOfRangeActivityIsIgnored(t *testing.T) {
	e := New(FeedbackSegments())
	e.Reset("job-1")
	e.Tick(ActivityRound1, 50, false)
	before := e.Displayed()
	if got := e.Tick(9, 80, true); got != before {
		t.Fatalf("out-of-range tick changed displayed: %d -> %d", before, got)
	}
}
