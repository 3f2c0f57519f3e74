// Package session is the top-level orchestrator composing upload, polling,
// progress estimation and feedback rounds into the full recording →
// upload → transcribe → feedback lifecycle, exposing a small set of
// stable stages to the rendering layer.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pitchkit/pitchkit/internal/api"
	"github.com/pitchkit/pitchkit/internal/capture"
	"github.com/pitchkit/pitchkit/internal/common"
	"github.com/pitchkit/pitchkit/internal/poll"
	"github.com/pitchkit/pitchkit/internal/progress"
	"github.com/pitchkit/pitchkit/internal/rounds"
	"github.com/pitchkit/pitchkit/internal/upload"
)

// Stage is the session's externally visible state.
type Stage string

const (
	StageIdle         Stage = "idle"
	StageRecording    Stage = "recording"
	StageUploading    Stage = "uploading"
	StageTranscribing Stage = "transcribing"
	StageFeedbacking  Stage = "feedbacking"
	StageDone         Stage = "done"
	StageError        Stage = "error"
)

// validTransition enforces the allowed stage edges. Error is reachable
// from anywhere; retry re-enters transcribing or feedbacking from error.
func validTransition(from, to Stage) bool {
	if to == StageError {
		return true
	}
	switch from {
	case StageIdle:
		return to == StageRecording
	case StageRecording:
		return to == StageUploading || to == StageIdle
	case StageUploading:
		return to == StageTranscribing
	case StageTranscribing:
		return to == StageFeedbacking
	case StageFeedbacking:
		return to == StageDone
	case StageDone, StageError:
		return to == StageIdle || to == StageTranscribing || to == StageFeedbacking
	default:
		return false
	}
}

// ErrIncompletePayload flags a stage that reported success while its
// expected data is missing. Treated as a bug signal, not a transient.
var ErrIncompletePayload = errors.New("stage completed but expected payload is missing")

// ErrRecordingTooShort rejects a stop below the minimum duration.
var ErrRecordingTooShort = errors.New("recording is shorter than the minimum duration")

// Service is the job service surface the session needs.
type Service interface {
	GetJob(ctx context.Context, jobID string) (*api.Job, error)
	PrepareJob(ctx context.Context) (*api.CreateJobResponse, error)
	StartRound(ctx context.Context, jobID string, n int) (*api.CreateJobResponse, error)
}

// Uploader delivers the blob and starts processing. *upload.Coordinator
// satisfies it.
type Uploader interface {
	Deliver(ctx context.Context, jobID string, blob upload.Blob, deck *api.DeckFile, onProgress upload.ProgressFunc) (*api.CreateJobResponse, error)
}

var (
	_ Service  = (*api.Client)(nil)
	_ Uploader = (*upload.Coordinator)(nil)
)

// Options configures a session.
type Options struct {
	MinDuration  time.Duration // shortest acceptable recording
	PollTimeout  time.Duration // budget per polled phase
	PollInterval time.Duration
}

// Snapshot is what the rendering layer sees.
type Snapshot struct {
	SessionID         string
	Stage             Stage
	JobID             string
	DisplayedProgress int
	Job               *api.Job
	Transcript        *api.Transcript
	Feedback          *rounds.Result
	Err               string
}

// Session owns the working state for one practice run. All writes to the
// state go through its mutex so in-flight poll completions for an
// abandoned job can be detected and ignored.
type Session struct {
	log  *slog.Logger
	svc  Service
	up   Uploader
	orch *rounds.Orchestrator
	opts Options

	mu         sync.RWMutex
	id         string
	stage      Stage
	jobID      string
	lastJob    *api.Job
	transcript *api.Transcript
	feedback   *rounds.Result
	lastErr    error

	// One estimator per displayed bar; a stage change moves the snapshot
	// to the next bar, which is how a "segment reset" appears externally.
	uploadEst     *progress.Estimator
	transcribeEst *progress.Estimator
	feedbackEst   *progress.Estimator
}

// New creates an idle session.
func New(log *slog.Logger, svc Service, up Uploader, orch *rounds.Orchestrator, opts Options) *Session {
	if opts.MinDuration <= 0 {
		opts.MinDuration = 3 * time.Second
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 10 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 1500 * time.Millisecond
	}
	s := &Session{
		log:           log,
		svc:           svc,
		up:            up,
		orch:          orch,
		opts:          opts,
		id:            uuid.NewString(),
		stage:         StageIdle,
		uploadEst:     progress.New(progress.TranscriptionSegments()),
		transcribeEst: progress.New(progress.TranscriptionSegments()),
		feedbackEst:   progress.New(progress.FeedbackSegments()),
	}
	orch.OnTick(s.feedbackTick)
	return s
}

// Snapshot returns a copy of the session's visible state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		SessionID:  s.id,
		Stage:      s.stage,
		JobID:      s.jobID,
		Job:        s.lastJob,
		Transcript: s.transcript,
		Feedback:   s.feedback,
	}
	if s.lastErr != nil {
		snap.Err = s.lastErr.Error()
	}
	switch s.stage {
	case StageUploading:
		snap.DisplayedProgress = s.uploadEst.Displayed()
	case StageFeedbacking, StageDone:
		snap.DisplayedProgress = s.feedbackEst.Displayed()
	default:
		snap.DisplayedProgress = s.transcribeEst.Displayed()
	}
	return snap
}

// StartRecording moves idle → recording. A second start while recording
// is a deliberate no-op.
func (s *Session) StartRecording() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage == StageRecording {
		return nil
	}
	return s.transitionLocked(StageRecording)
}

// FinishRecording accepts the captured blob and runs the full pipeline:
// upload, transcription polling, and all five feedback rounds. A blob
// below the minimum duration or with no bytes aborts before any job is
// created and returns the session to idle.
func (s *Session) FinishRecording(ctx context.Context, rec *capture.Recording, deck *api.DeckFile) error {
	s.mu.Lock()
	if s.stage != StageRecording {
		s.mu.Unlock()
		return fmt.Errorf("finish recording in stage %s", s.stage)
	}
	if rec == nil || rec.Size == 0 || rec.Elapsed < s.opts.MinDuration {
		s.stage = StageIdle
		elapsed := time.Duration(0)
		if rec != nil {
			elapsed = rec.Elapsed
		}
		s.lastErr = fmt.Errorf("%w (got %s, need %s)", ErrRecordingTooShort, elapsed, s.opts.MinDuration)
		err := s.lastErr
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	jobID, err := s.beginJob(ctx)
	if err != nil {
		return s.fail(err)
	}

	if err := s.uploadStage(ctx, jobID, rec, deck); err != nil {
		return s.fail(err)
	}
	if err := s.pollTranscription(ctx, jobID); err != nil {
		return s.fail(err)
	}
	if err := s.feedbackStage(ctx, jobID, false); err != nil {
		return s.fail(err)
	}
	return nil
}

// Retry re-runs the remaining pipeline for the current job after an
// error. Transcription is re-polled if it never finished; rounds already
// done on the server are skipped and unfinished rounds are re-requested.
func (s *Session) Retry(ctx context.Context) error {
	s.mu.Lock()
	if s.stage != StageError {
		s.mu.Unlock()
		return fmt.Errorf("retry in stage %s", s.stage)
	}
	jobID := s.jobID
	hasTranscript := s.transcript != nil
	s.lastErr = nil
	s.mu.Unlock()

	if jobID == "" {
		return s.fail(fmt.Errorf("no job to retry"))
	}

	if !hasTranscript {
		if err := s.transitionTo(StageTranscribing); err != nil {
			return s.fail(err)
		}
		if err := s.pollTranscription(ctx, jobID); err != nil {
			return s.fail(err)
		}
	} else {
		if err := s.transitionTo(StageFeedbacking); err != nil {
			return s.fail(err)
		}
	}
	if err := s.feedbackStage(ctx, jobID, true); err != nil {
		return s.fail(err)
	}
	return nil
}

// Reset returns the session to idle from done or error, clearing the job
// binding, round request tracking, and progress state.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage != StageDone && s.stage != StageError && s.stage != StageIdle {
		return fmt.Errorf("reset in stage %s", s.stage)
	}
	if s.jobID != "" {
		s.orch.Forget(s.jobID)
	}
	s.stage = StageIdle
	s.jobID = ""
	s.lastJob = nil
	s.transcript = nil
	s.feedback = nil
	s.lastErr = nil
	s.uploadEst.Reset("")
	s.transcribeEst.Reset("")
	s.feedbackEst.Reset("")
	return nil
}

func (s *Session) beginJob(ctx context.Context) (string, error) {
	resp, err := s.svc.PrepareJob(ctx)
	if err != nil {
		return "", fmt.Errorf("prepare job: %w", err)
	}

	s.mu.Lock()
	s.jobID = resp.JobID
	s.lastJob = nil
	s.transcript = nil
	s.feedback = nil
	s.uploadEst.Reset(resp.JobID)
	s.transcribeEst.Reset(resp.JobID)
	s.feedbackEst.Reset(resp.JobID)
	err = s.transitionLocked(StageUploading)
	s.mu.Unlock()
	if err != nil {
		return "", err
	}

	s.log.Info("job prepared", "session_id", s.id, "job_id", resp.JobID)
	return resp.JobID, nil
}

func (s *Session) uploadStage(ctx context.Context, jobID string, rec *capture.Recording, deck *api.DeckFile) error {
	blob := upload.Blob{Name: rec.Name, Reader: rec.Reader, Size: rec.Size}
	if _, err := s.up.Deliver(ctx, jobID, blob, deck, func(uploaded int64) {
		// Byte counts regress to zero across retries; the estimator keeps
		// the displayed value monotone regardless.
		if !s.isCurrentJob(jobID) {
			return
		}
		s.mu.Lock()
		s.uploadEst.Tick(0, int(uploaded*100/rec.Size), uploaded >= rec.Size)
		s.mu.Unlock()
	}); err != nil {
		return err
	}
	return s.transitionTo(StageTranscribing)
}

// pollTranscription waits until transcription reaches terminal success AND
// a transcript payload is present. Status alone can race ahead of payload
// availability, so both conditions are required.
func (s *Session) pollTranscription(ctx context.Context, jobID string) error {
	job, err := poll.Wait(ctx, s.svc, jobID, poll.Options{
		Timeout:  s.opts.PollTimeout,
		Interval: s.opts.PollInterval,
		IsComplete: func(j *api.Job) bool {
			return j.Status == api.StatusDone && j.TranscriptResult() != nil
		},
		OnTick: func(j *api.Job) {
			if !s.isCurrentJob(jobID) {
				return
			}
			s.mu.Lock()
			s.lastJob = j
			s.transcribeEst.Tick(0, j.Progress, j.Status == api.StatusDone && j.TranscriptResult() != nil)
			s.mu.Unlock()
		},
	})
	if err != nil {
		return err
	}
	if job.TranscriptResult() == nil {
		return fmt.Errorf("transcription: %w", ErrIncompletePayload)
	}

	s.mu.Lock()
	if s.jobID == jobID {
		s.lastJob = job
		s.transcript = job.TranscriptResult()
	}
	err = s.transitionLocked(StageFeedbacking)
	s.mu.Unlock()
	return err
}

func (s *Session) feedbackStage(ctx context.Context, jobID string, isRetry bool) error {
	res, err := s.orch.Run(ctx, jobID, isRetry)

	// Partial results stay renderable alongside any error.
	s.mu.Lock()
	if s.jobID == jobID && res != nil {
		s.feedback = res
		if res.Job != nil {
			s.lastJob = res.Job
		}
		if err == nil && res.Complete() {
			for r := 1; r <= common.FeedbackRounds; r++ {
				s.feedbackEst.Tick(r-1, 0, true)
			}
		}
	}
	s.mu.Unlock()

	if err != nil {
		return err
	}
	if !res.Complete() {
		return fmt.Errorf("feedback: %w", ErrIncompletePayload)
	}
	return s.transitionTo(StageDone)
}

// feedbackTick drives the feedback progress bar from round polls. Ticks
// for a job that is no longer current are dropped: a stale in-flight poll
// must not mutate the new job's displayed state.
func (s *Session) feedbackTick(round int, job *api.Job) {
	if !s.isCurrentJob(job.JobID) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastJob = job
	for r := 1; r < round; r++ {
		if job.FeedbackRound(r).Done() {
			s.feedbackEst.Tick(r-1, 0, true)
		}
	}
	s.feedbackEst.Tick(round-1, 0, false)
}

func (s *Session) isCurrentJob(jobID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobID == jobID
}

func (s *Session) transitionTo(to Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(to)
}

func (s *Session) transitionLocked(to Stage) error {
	if !validTransition(s.stage, to) {
		return fmt.Errorf("invalid transition: %s -> %s", s.stage, to)
	}
	s.log.Debug("stage transition", "session_id", s.id, "from", s.stage, "to", to)
	s.stage = to
	return nil
}

// fail records the error and moves to the error stage, retaining the last
// good job snapshot so partial transcript and feedback remain visible.
func (s *Session) fail(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	s.stage = StageError
	s.log.Warn("session failed", "session_id", s.id, "job_id", s.jobID, "err", err)
	return err
}
