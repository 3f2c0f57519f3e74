// Package rounds sequences the five coaching-feedback passes run against a
// transcribed job. Rounds are independent server-side extensions of the
// job; ordering is a scheduling convenience for request sequencing and
// progress banding, not a correctness dependency.
package rounds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pitchkit/pitchkit/internal/api"
	"github.com/pitchkit/pitchkit/internal/common"
	"github.com/pitchkit/pitchkit/internal/poll"
)

// Service is the slice of the job service the orchestrator needs.
type Service interface {
	GetJob(ctx context.Context, jobID string) (*api.Job, error)
	StartRound(ctx context.Context, jobID string, n int) (*api.CreateJobResponse, error)
}

var _ Service = (*api.Client)(nil)

// requestKey identifies one start-request: explicit (jobID, round) keying
// so stale state from a previous job can never suppress a request.
type requestKey struct {
	jobID string
	round int
}

// Result carries per-round payloads. Earlier rounds' results survive a
// later round's failure so partial feedback stays renderable.
type Result struct {
	Rounds [common.FeedbackRounds]map[string]any
	Job    *api.Job
}

// Complete reports whether every round's payload is present.
func (r *Result) Complete() bool {
	for _, p := range r.Rounds {
		if p == nil {
			return false
		}
	}
	return true
}

// TickFunc observes every poll of an in-flight round.
type TickFunc func(round int, job *api.Job)

// Orchestrator drives rounds 1..5 for one job at a time, tracking request
// idempotency across invocations.
type Orchestrator struct {
	log       *slog.Logger
	svc       Service
	timeout   time.Duration
	interval  time.Duration
	requested map[requestKey]bool
	onTick    TickFunc
}

// New creates an orchestrator. timeout bounds each round's poll; interval
// is the fixed poll cadence.
func New(log *slog.Logger, svc Service, timeout, interval time.Duration) *Orchestrator {
	return &Orchestrator{
		log:       log,
		svc:       svc,
		timeout:   timeout,
		interval:  interval,
		requested: make(map[requestKey]bool),
	}
}

// OnTick registers a poll observer used to drive progress display.
func (o *Orchestrator) OnTick(fn TickFunc) { o.onTick = fn }

// Forget drops request-tracking state for a job. Called on job switch.
func (o *Orchestrator) Forget(jobID string) {
	for k := range o.requested {
		if k.jobID == jobID {
			delete(o.requested, k)
		}
	}
}

// Run requests and awaits all five rounds in order. Rounds already done on
// the server are never re-requested. isRetry re-issues start requests for
// unfinished rounds even when a prior request was recorded, covering a
// request that was lost or failed silently. On a round failure the run
// aborts with that round's error; results from earlier rounds remain in
// the returned Result.
func (o *Orchestrator) Run(ctx context.Context, jobID string, isRetry bool) (*Result, error) {
	job, err := o.svc.GetJob(ctx, jobID)
	if err != nil {
		return nil, &poll.FetchError{Err: err}
	}

	res := &Result{Job: job}
	for n := 1; n <= common.FeedbackRounds; n++ {
		job, err = o.runRound(ctx, jobID, n, job, isRetry, res)
		if err != nil {
			return res, err
		}
		res.Job = job
	}

	if !res.Complete() {
		return res, fmt.Errorf("round payloads incomplete despite all rounds settling")
	}
	return res, nil
}

// runRound settles one round: skip if done, request if needed, then poll.
func (o *Orchestrator) runRound(ctx context.Context, jobID string, n int, job *api.Job, isRetry bool, res *Result) (*api.Job, error) {
	if r := job.FeedbackRound(n); r.Done() {
		o.log.Debug("round already done", "job_id", jobID, "round", n)
		res.Rounds[n-1] = r.Payload
		return job, nil
	}

	key := requestKey{jobID: jobID, round: n}
	if !o.requested[key] || isRetry {
		if _, err := o.svc.StartRound(ctx, jobID, n); err != nil {
			return job, fmt.Errorf("start round %d: %w", n, err)
		}
		o.requested[key] = true
		o.log.Info("round requested", "job_id", jobID, "round", n, "retry", isRetry)
	}

	latest, err := poll.Wait(ctx, o.svc, jobID, poll.Options{
		Timeout:  o.timeout,
		Interval: o.interval,
		IsComplete: func(j *api.Job) bool {
			return j.FeedbackRound(n).Done()
		},
		IsFailed: func(j *api.Job) (string, bool) {
			r := j.FeedbackRound(n)
			if r.Status == api.RoundFailed {
				if r.Error != nil && *r.Error != "" {
					return *r.Error, true
				}
				return fmt.Sprintf("round %d failed", n), true
			}
			return "", false
		},
		OnTick: func(j *api.Job) {
			if o.onTick != nil {
				o.onTick(n, j)
			}
		},
	})
	if err != nil {
		// Attribute the failure to this round unless the whole job died;
		// the global failed status is authoritative over round fields.
		var jfe *poll.JobFailedError
		if errors.As(err, &jfe) && latest != nil && latest.Status != api.StatusFailed {
			jfe.Round = n
		}
		return latest, err
	}

	res.Rounds[n-1] = latest.FeedbackRound(n).Payload
	return latest, nil
}
