// Package progress maps coarse server-reported pipeline progress to a
// smoothly moving displayed percentage. The server pins a handful of
// discrete phases to static percentages for long stretches (a recognition
// wait can sit at 60% for a minute), so the estimator adds bounded
// synthetic motion between polls without ever overstating what the server
// has confirmed.
package progress

// Segment is the percentage band owned by one monitored activity.
type Segment struct {
	Lo int
	Hi int
}

// Activity indexes for the standard pitch pipeline layout.
const (
	ActivityTranscription = 0
	ActivityRound1        = 1
	ActivityRound2        = 2
	ActivityRound3        = 3
	ActivityRound4        = 4
	ActivityRound5        = 5
)

// FeedbackSegments returns the standard layout where each of the five
// rounds owns a 20-point band of the feedback bar.
func FeedbackSegments() []Segment {
	return []Segment{
		{Lo: 0, Hi: 20},
		{Lo: 20, Hi: 40},
		{Lo: 40, Hi: 60},
		{Lo: 60, Hi: 80},
		{Lo: 80, Hi: 100},
	}
}

// TranscriptionSegments returns the single full-width band used while the
// transcription phase is the only monitored activity.
func TranscriptionSegments() []Segment {
	return []Segment{{Lo: 0, Hi: 100}}
}

// Estimator synthesizes displayed progress for one job at a time. It is
// not safe for concurrent use; the orchestrator is the single writer.
type Estimator struct {
	jobID     string
	segments  []Segment
	displayed int
	pulses    []int
}

// New creates an estimator over the given activity segments.
func New(segments []Segment) *Estimator {
	return &Estimator{
		segments: segments,
		pulses:   make([]int, len(segments)),
	}
}

// Reset rebinds the estimator to a new job, dropping all synthetic state.
// Displayed progress is monotone only within one job.
func (e *Estimator) Reset(jobID string) {
	e.jobID = jobID
	e.displayed = 0
	e.pulses = make([]int, len(e.segments))
}

// JobID returns the job the estimator is currently bound to.
func (e *Estimator) JobID() string { return e.jobID }

// Displayed returns the current displayed percentage.
func (e *Estimator) Displayed() int { return e.displayed }

// Tick folds one poll observation for the given activity into the
// displayed value and returns it. serverPct is the server's own progress
// for the activity (0-100 within the activity, 0 when unknown). When
// complete, the value snaps to the segment's upper bound; otherwise a
// pulse nudges it upward but never lets it reach the bound before the
// server confirms completion. The result is clamped to [0,100] and never
// decreases for the lifetime of the job.
func (e *Estimator) Tick(activity int, serverPct int, complete bool) int {
	if activity < 0 || activity >= len(e.segments) {
		return e.displayed
	}
	seg := e.segments[activity]

	if complete {
		e.observe(seg.Hi)
		return e.displayed
	}

	// Scale the server's confirmed percentage into the band.
	mapped := seg.Lo + clamp(serverPct, 0, 100)*(seg.Hi-seg.Lo)/100

	// Synthetic motion: one point per tick, bounded below the top.
	e.pulses[activity]++
	pulsed := seg.Lo + e.pulses[activity]

	candidate := mapped
	if pulsed > candidate {
		candidate = pulsed
	}
	if candidate >= seg.Hi {
		candidate = seg.Hi - 1
	}
	e.observe(candidate)
	return e.displayed
}

func (e *Estimator) observe(v int) {
	v = clamp(v, 0, 100)
	if v > e.displayed {
		e.displayed = v
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
