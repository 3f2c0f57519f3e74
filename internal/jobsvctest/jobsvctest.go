// Package jobsvctest provides an in-process fake of the remote job
// service for tests: real HTTP handlers over httptest, with scripted
// pipeline behavior and per-endpoint hit counters.
package jobsvctest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/pitchkit/pitchkit/internal/api"
	"github.com/pitchkit/pitchkit/internal/common"
)

// RoundScript controls how one feedback round behaves after its start
// request.
type RoundScript struct {
	// TicksToDone is how many status GETs after the start request the
	// round stays running before settling. Zero settles on the next GET.
	TicksToDone int
	// Fail settles the round as failed with FailDetail instead of done.
	Fail       bool
	FailDetail string
}

type roundState struct {
	status    api.RoundStatus
	payload   map[string]any
	errDetail string
	started   bool
	ticks     int
}

type jobState struct {
	id         string
	status     api.Status
	progress   int
	received   int64
	totalSize  int64
	processing bool
	ticks      int
	rounds     [common.FeedbackRounds]roundState
	summary    map[string]any
}

// Server is the scripted fake. Configure the script fields before issuing
// requests; inspect counters afterwards. All methods are safe for
// concurrent use.
type Server struct {
	mu   sync.Mutex
	http *httptest.Server
	jobs map[string]*jobState
	seq  int

	// SignedPutFailures makes the first N signed-URL PUTs return 500.
	SignedPutFailures int
	// TranscribeTicks is how many status GETs after process the job
	// stays in intermediate statuses before reaching done.
	TranscribeTicks int
	// Rounds scripts each feedback round (index 0 = round 1).
	Rounds [common.FeedbackRounds]RoundScript
	// StreamError, when set, makes the streaming upload emit an error
	// record after the first progress record.
	StreamError string

	counts       map[string]int
	chunkOffsets []int64
}

// New starts the fake service.
func New() *Server {
	s := &Server{
		jobs:            make(map[string]*jobState),
		counts:          make(map[string]int),
		TranscribeTicks: 1,
	}
	mux := http.NewServeMux()
	mux.HandleFunc(http.MethodGet+" "+common.PathHealth, s.handleHealth)
	mux.HandleFunc(http.MethodPost+" "+common.PathJobs, s.handleCreate)
	mux.HandleFunc(http.MethodPost+" "+common.PathJobs+"/prepare", s.handlePrepare)
	mux.HandleFunc(http.MethodPost+" "+common.PathJobs+"/{id}/upload-url", s.handleUploadURL)
	mux.HandleFunc(http.MethodPut+" /signed/{id}", s.handleSignedPut)
	mux.HandleFunc(http.MethodPatch+" "+common.PathJobs+"/{id}/upload-chunk", s.handleChunk)
	mux.HandleFunc(http.MethodPut+" "+common.PathJobs+"/{id}/upload-video", s.handleStream)
	mux.HandleFunc(http.MethodPost+" "+common.PathJobs+"/{id}/process", s.handleProcess)
	mux.HandleFunc(http.MethodPost+" "+common.PathJobs+"/{id}/process-gcs", s.handleProcess)
	mux.HandleFunc(http.MethodGet+" "+common.PathJobs+"/{id}", s.handleGet)
	mux.HandleFunc(http.MethodPost+" "+common.PathJobs+"/{id}/feedback/{round}", s.handleRound)
	mux.HandleFunc(http.MethodPost+" "+common.PathJobs+"/{id}/summarize", s.handleSummarize)
	s.http = httptest.NewServer(mux)
	return s
}

// URL is the fake service's base URL.
func (s *Server) URL() string { return s.http.URL }

// Close shuts the fake down.
func (s *Server) Close() { s.http.Close() }

// Count returns how many requests hit the named endpoint: health, create,
// prepare, upload-url, signed-put, chunk, stream, process, get,
// round1..round5, summarize.
func (s *Server) Count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[name]
}

// ChunkOffsets returns the offsets of received chunks in arrival order.
func (s *Server) ChunkOffsets() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.chunkOffsets...)
}

// SeedJob creates a job in the given status. doneRounds marks those
// rounds as already settled with a payload, as after a partial prior run.
func (s *Server) SeedJob(id string, status api.Status, doneRounds ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := &jobState{id: id, status: status}
	if status == api.StatusDone {
		j.processing = true
		j.progress = 100
		j.ticks = s.TranscribeTicks
	}
	for i := range j.rounds {
		j.rounds[i].status = api.RoundPending
	}
	for _, n := range doneRounds {
		j.rounds[n-1] = roundState{
			status:  api.RoundDone,
			payload: roundPayload(n),
			started: true,
		}
	}
	s.jobs[id] = j
}

func roundPayload(n int) map[string]any {
	return map[string]any{"summary": fmt.Sprintf("feedback for round %d", n)}
}

func (s *Server) bump(name string) {
	s.counts[name]++
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.bump("health")
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok", Storage: "ok"})
}

// handleCreate is the one-shot multipart submission: the video arrives with
// the create request and processing starts immediately.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	_, _ = io.Copy(io.Discard, r.Body)
	s.mu.Lock()
	s.bump("create")
	s.seq++
	id := fmt.Sprintf("job-%d", s.seq)
	j := &jobState{id: id, status: api.StatusQueued, processing: true}
	for i := range j.rounds {
		j.rounds[i].status = api.RoundPending
	}
	s.jobs[id] = j
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, api.CreateJobResponse{JobID: id, Status: api.StatusQueued})
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	s.bump("summarize")
	j, ok := s.jobs[id]
	if ok {
		j.summary = map[string]any{"summary_text": "a concise pitch summary"}
	}
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "Job not found.")
		return
	}
	writeJSON(w, http.StatusOK, api.CreateJobResponse{JobID: id, Status: api.StatusSummarizing})
}

func (s *Server) handlePrepare(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.bump("prepare")
	s.seq++
	id := fmt.Sprintf("job-%d", s.seq)
	j := &jobState{id: id, status: api.StatusCreated}
	for i := range j.rounds {
		j.rounds[i].status = api.RoundPending
	}
	s.jobs[id] = j
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, api.CreateJobResponse{JobID: id, Status: api.StatusCreated})
}

func (s *Server) handleUploadURL(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	s.bump("upload-url")
	_, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "Job not found.")
		return
	}
	writeJSON(w, http.StatusOK, api.UploadTarget{
		UploadURL:   s.http.URL + "/signed/" + id,
		ContentType: common.ContentTypeOctetStream,
		MaxBytes:    common.DefaultMaxUploadBytes,
	})
}

func (s *Server) handleSignedPut(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	n, _ := io.Copy(io.Discard, r.Body)

	s.mu.Lock()
	s.bump("signed-put")
	fail := s.counts["signed-put"] <= s.SignedPutFailures
	if j, ok := s.jobs[id]; ok && !fail {
		j.received = n
	}
	s.mu.Unlock()

	if fail {
		writeDetail(w, http.StatusInternalServerError, "storage backend unavailable")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	offset, err1 := strconv.ParseInt(r.URL.Query().Get("offset"), 10, 64)
	total, err2 := strconv.ParseInt(r.URL.Query().Get("total_size"), 10, 64)
	if err1 != nil || err2 != nil {
		writeDetail(w, http.StatusBadRequest, "offset and total_size must be integers")
		return
	}
	body, _ := io.ReadAll(r.Body)
	if len(body) == 0 {
		writeDetail(w, http.StatusBadRequest, "Empty chunk body.")
		return
	}

	s.mu.Lock()
	s.bump("chunk")
	s.chunkOffsets = append(s.chunkOffsets, offset)
	j, ok := s.jobs[id]
	if ok {
		j.totalSize = total
		if end := offset + int64(len(body)); end > j.received {
			j.received = end
		}
	}
	var ack api.ChunkAck
	if ok {
		ack = api.ChunkAck{Received: j.received, Complete: total > 0 && j.received >= total}
	}
	s.mu.Unlock()

	if !ok {
		writeDetail(w, http.StatusNotFound, "Job not found.")
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	s.bump("stream")
	j, ok := s.jobs[id]
	streamErr := s.StreamError
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "Job not found.")
		return
	}

	w.Header().Set("Content-Type", common.ContentTypeNDJSON)
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)

	var total int64
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Body.Read(buf)
		if n > 0 {
			total += int64(n)
			_ = enc.Encode(api.StreamRecord{Status: "uploading", Bytes: total})
			if streamErr != "" {
				_ = enc.Encode(api.StreamRecord{Status: "error", Detail: streamErr})
				return
			}
		}
		if err != nil {
			break
		}
	}
	s.mu.Lock()
	j.received = total
	s.mu.Unlock()
	_ = enc.Encode(api.StreamRecord{Status: "done", Bytes: total})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	s.bump("process")
	j, ok := s.jobs[id]
	if ok && j.processing {
		status := j.status
		s.mu.Unlock()
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("Job is already being processed (status=%s).", status))
		return
	}
	if ok {
		j.processing = true
		j.ticks = 0
		j.status = api.StatusQueued
		j.progress = 0
	}
	s.mu.Unlock()

	if !ok {
		writeDetail(w, http.StatusNotFound, "Job not found.")
		return
	}
	writeJSON(w, http.StatusOK, api.CreateJobResponse{JobID: id, Status: api.StatusQueued})
}

// handleGet advances the scripted pipeline one tick and reports the job.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	s.bump("get")
	j, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		writeDetail(w, http.StatusNotFound, "Job not found.")
		return
	}

	if j.processing && j.status != api.StatusDone {
		j.ticks++
		switch {
		case j.ticks >= s.TranscribeTicks:
			j.status = api.StatusDone
			j.progress = 100
		case j.ticks == 1:
			j.status = api.StatusTranscribing
			j.progress = 10
		default:
			j.status = api.StatusWaitingForSTT
			j.progress = 60
		}
	}
	for i := range j.rounds {
		rs := &j.rounds[i]
		if !rs.started || rs.status != api.RoundRunning {
			continue
		}
		rs.ticks++
		script := s.Rounds[i]
		if rs.ticks > script.TicksToDone {
			if script.Fail {
				rs.status = api.RoundFailed
				rs.errDetail = script.FailDetail
				if rs.errDetail == "" {
					rs.errDetail = fmt.Sprintf("round %d failed", i+1)
				}
			} else {
				rs.status = api.RoundDone
				rs.payload = roundPayload(i + 1)
			}
		}
	}

	out := s.jobJSONLocked(j)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRound(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	roundStr := strings.TrimPrefix(r.PathValue("round"), "round")
	n, err := strconv.Atoi(roundStr)
	if err != nil || n < 1 || n > common.FeedbackRounds {
		writeDetail(w, http.StatusNotFound, "Unknown round.")
		return
	}

	s.mu.Lock()
	s.bump(fmt.Sprintf("round%d", n))
	j, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		writeDetail(w, http.StatusNotFound, "Job not found.")
		return
	}
	rs := &j.rounds[n-1]
	status := rs.status
	if status != api.RoundDone && status != api.RoundRunning {
		rs.status = api.RoundRunning
		rs.started = true
		rs.ticks = 0
		status = api.RoundRunning
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, api.CreateJobResponse{JobID: id, Status: api.Status(status)})
}

// jobJSONLocked renders the wire shape of the job record.
func (s *Server) jobJSONLocked(j *jobState) map[string]any {
	out := map[string]any{
		"job_id":   j.id,
		"status":   j.status,
		"progress": j.progress,
	}
	if j.status == api.StatusDone {
		out["transcript"] = api.Transcript{
			FullText: "hello investors",
			Segments: []api.Segment{{Start: 0, End: 2.5, Text: "hello investors"}},
			Words: []api.Word{
				{Start: 0, End: 1.0, Word: "hello"},
				{Start: 1.1, End: 2.5, Word: "investors"},
			},
		}
	}
	if j.summary != nil {
		out["summary"] = j.summary
	}
	for i := range j.rounds {
		n := i + 1
		rs := j.rounds[i]
		out[fmt.Sprintf("feedback_round_%d_status", n)] = rs.status
		if rs.payload != nil {
			out[fmt.Sprintf("feedback_round_%d", n)] = rs.payload
		}
		if rs.errDetail != "" {
			out[fmt.Sprintf("feedback_round_%d_error", n)] = rs.errDetail
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", common.ContentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
