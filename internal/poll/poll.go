// Package poll repeatedly fetches a job record until a caller-supplied
// completion predicate, failure predicate, or wall-clock timeout fires.
package poll

import (
	"context"
	"fmt"
	"time"

	"github.com/pitchkit/pitchkit/internal/api"
)

// Fetcher reads one job record. *api.Client satisfies it.
type Fetcher interface {
	GetJob(ctx context.Context, jobID string) (*api.Job, error)
}

var _ Fetcher = (*api.Client)(nil)

// TimeoutError is returned when the poll budget expires. It carries the
// last observed status and progress for diagnostics ("timed out — last
// status: waiting_for_recognition, 60%").
type TimeoutError struct {
	Timeout      time.Duration
	LastStatus   api.Status
	LastProgress int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("polling timed out after %s (last status: %s, %d%%)",
		e.Timeout, e.LastStatus, e.LastProgress)
}

// JobFailedError reports that the server marked the job, or one of its
// rounds, as failed. Round is zero for a job-level failure.
type JobFailedError struct {
	JobID  string
	Round  int
	Reason string
}

func (e *JobFailedError) Error() string {
	if e.Round > 0 {
		return fmt.Sprintf("job %s round %d failed: %s", e.JobID, e.Round, e.Reason)
	}
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Reason)
}

// FetchError is a network-level failure while reading job status. It is
// distinct from JobFailedError so callers can offer "retry polling" rather
// than "start over". The poller does not retry fetches itself: swallowing
// network errors here would mask a service outage as a hang.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string { return "poll fetch: " + e.Err.Error() }
func (e *FetchError) Unwrap() error { return e.Err }

// Options parameterizes one poll run.
type Options struct {
	// Timeout is the wall-clock budget for the whole run.
	Timeout time.Duration
	// Interval is the fixed delay between polls. No adaptive backoff: the
	// remote pipeline takes tens of seconds to minutes, and a fixed
	// cadence bounds both server load and staleness.
	Interval time.Duration
	// IsComplete stops the run successfully the first tick it returns true.
	IsComplete func(*api.Job) bool
	// IsFailed allows phase-specific failure detection (for example "this
	// round's status is failed") distinct from the job's global failure.
	// The returned reason is carried in the error.
	IsFailed func(*api.Job) (string, bool)
	// OnTick observes every successful fetch; never called after
	// completion or failure has been decided.
	OnTick func(*api.Job)
}

// Wait polls the job until completion, failure, or timeout. The job's
// global failed status is authoritative and checked before the caller's
// failure predicate.
func Wait(ctx context.Context, f Fetcher, jobID string, opts Options) (*api.Job, error) {
	if opts.Interval <= 0 {
		opts.Interval = 1500 * time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}

	deadline := time.Now().Add(opts.Timeout)
	var (
		lastStatus   api.Status
		lastProgress int
	)

	for {
		job, err := f.GetJob(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &FetchError{Err: err}
		}
		lastStatus, lastProgress = job.Status, job.Progress

		if opts.OnTick != nil {
			opts.OnTick(job)
		}

		if job.Status == api.StatusFailed {
			return job, &JobFailedError{JobID: jobID, Reason: derefOr(job.Error, "unknown failure")}
		}
		if opts.IsFailed != nil {
			if reason, failed := opts.IsFailed(job); failed {
				return job, &JobFailedError{JobID: jobID, Reason: reason}
			}
		}
		if opts.IsComplete != nil && opts.IsComplete(job) {
			return job, nil
		}

		if !time.Now().Before(deadline) {
			return job, &TimeoutError{Timeout: opts.Timeout, LastStatus: lastStatus, LastProgress: lastProgress}
		}
		t := time.NewTimer(opts.Interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return job, ctx.Err()
		case <-t.C:
		}
	}
}

func derefOr(p *string, def string) string {
	if p != nil && *p != "" {
		return *p
	}
	return def
}
