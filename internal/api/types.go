package api

// Status is the server-assigned lifecycle status of a job.
type Status string

const (
	StatusQueued          Status = "queued"
	StatusCreated         Status = "created"
	StatusPending         Status = "pending"
	StatusDeckProcessing  Status = "deck_processing"
	StatusTranscribing    Status = "transcribing"
	StatusUploadingAudio  Status = "uploading_audio"
	StatusBatchRecognize  Status = "batch_recognize"
	StatusWaitingForSTT   Status = "waiting_for_recognition"
	StatusParsingResults  Status = "parsing_results"
	StatusComputing       Status = "computing_metrics"
	StatusWritingArtifact Status = "writing_artifacts"
	StatusSummarizing     Status = "summarizing"
	StatusDone            Status = "done"
	StatusFailed          Status = "failed"
)

// phaseOrder maps each status to its position in the transcription pipeline.
// The server never regresses to an earlier phase except into failed.
var phaseOrder = map[Status]int{
	StatusCreated:         0,
	StatusPending:         0,
	StatusQueued:          0,
	StatusDeckProcessing:  1,
	StatusTranscribing:    2,
	StatusUploadingAudio:  3,
	StatusBatchRecognize:  4,
	StatusWaitingForSTT:   5,
	StatusParsingResults:  6,
	StatusComputing:       7,
	StatusWritingArtifact: 8,
	StatusSummarizing:     9,
	StatusDone:            10,
}

// Phase returns the pipeline position of s, or -1 for failed/unknown statuses.
func (s Status) Phase() int {
	if p, ok := phaseOrder[s]; ok {
		return p
	}
	return -1
}

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Startable reports whether a process request is accepted in this status.
// Mirrors the server's idempotent-start check: processing can only begin
// from a fresh or previously failed job.
func (s Status) Startable() bool {
	switch s {
	case StatusQueued, StatusPending, StatusCreated, StatusFailed:
		return true
	default:
		return false
	}
}

// RoundStatus is the per-round lifecycle of one feedback pass.
type RoundStatus string

const (
	RoundPending RoundStatus = "pending"
	RoundRunning RoundStatus = "running"
	RoundDone    RoundStatus = "done"
	RoundFailed  RoundStatus = "failed"
)

// Segment is one timed span of the transcript.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Word is one recognized word with time offsets.
type Word struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Word  string  `json:"word"`
}

// Transcript is the speech-recognition result for one job.
type Transcript struct {
	FullText string    `json:"full_text"`
	Segments []Segment `json:"segments"`
	Words    []Word    `json:"words"`
}

// DeckInfo describes a processed slide deck attached to a job.
type DeckInfo struct {
	Filename    string  `json:"filename"`
	ContentType *string `json:"content_type"`
	SizeBytes   int64   `json:"size_bytes"`
	TextExcerpt string  `json:"text_excerpt"`
	NumPages    *int    `json:"num_pages_or_slides"`
}

// Round is the observed state of one feedback round on the job record.
type Round struct {
	Status  RoundStatus
	Payload map[string]any
	Error   *string
}

// Done reports whether the round settled successfully with a payload,
// matching the server's own "done and payload present" check.
func (r Round) Done() bool {
	return r.Status == RoundDone && r.Payload != nil
}

// Job is the full record returned by GET /api/jobs/{id}.
type Job struct {
	JobID        string         `json:"job_id"`
	Status       Status         `json:"status"`
	Progress     int            `json:"progress"`
	Transcript   *Transcript    `json:"transcript"`
	Deck         *DeckInfo      `json:"deck"`
	Summary      map[string]any `json:"summary"`
	SummaryError *string        `json:"summary_error"`
	Error        *string        `json:"error"`

	Round1Status RoundStatus    `json:"feedback_round_1_status"`
	Round1       map[string]any `json:"feedback_round_1"`
	Round1Error  *string        `json:"feedback_round_1_error"`
	Round2Status RoundStatus    `json:"feedback_round_2_status"`
	Round2       map[string]any `json:"feedback_round_2"`
	Round2Error  *string        `json:"feedback_round_2_error"`
	Round3Status RoundStatus    `json:"feedback_round_3_status"`
	Round3       map[string]any `json:"feedback_round_3"`
	Round3Error  *string        `json:"feedback_round_3_error"`
	Round4Status RoundStatus    `json:"feedback_round_4_status"`
	Round4       map[string]any `json:"feedback_round_4"`
	Round4Error  *string        `json:"feedback_round_4_error"`
	Round5Status RoundStatus    `json:"feedback_round_5_status"`
	Round5       map[string]any `json:"feedback_round_5"`
	Round5Error  *string        `json:"feedback_round_5_error"`

	// Result is a backward-compatible alias for Transcript served by older
	// service versions.
	Result *Transcript `json:"result"`
}

// TranscriptResult returns the transcript, falling back to the legacy
// result field when an older service omits the transcript key.
func (j *Job) TranscriptResult() *Transcript {
	if j.Transcript != nil {
		return j.Transcript
	}
	return j.Result
}

// FeedbackRound returns the observed state of round n (1-based).
func (j *Job) FeedbackRound(n int) Round {
	switch n {
	case 1:
		return Round{Status: j.Round1Status, Payload: j.Round1, Error: j.Round1Error}
	case 2:
		return Round{Status: j.Round2Status, Payload: j.Round2, Error: j.Round2Error}
	case 3:
		return Round{Status: j.Round3Status, Payload: j.Round3, Error: j.Round3Error}
	case 4:
		return Round{Status: j.Round4Status, Payload: j.Round4, Error: j.Round4Error}
	case 5:
		return Round{Status: j.Round5Status, Payload: j.Round5, Error: j.Round5Error}
	default:
		return Round{}
	}
}

// CreateJobResponse is returned by job creation, process and round-start calls.
type CreateJobResponse struct {
	JobID  string `json:"job_id"`
	Status Status `json:"status"`
}

// UploadTarget is the signed direct-upload destination for a job's video.
type UploadTarget struct {
	UploadURL   string `json:"upload_url"`
	ContentType string `json:"content_type"`
	MaxBytes    int64  `json:"max_bytes"`
}

// ChunkAck is the server's acknowledgement of one uploaded chunk.
type ChunkAck struct {
	Received int64 `json:"received"`
	Complete bool  `json:"complete"`
}

// StreamRecord is one NDJSON line of the streaming upload response.
type StreamRecord struct {
	Status string `json:"status"` // uploading | done | error
	Bytes  int64  `json:"bytes,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
}
