package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pitchkit/pitchkit/internal/common"
)

const (
	headerContentType = "Content-Type"

	// Status polls and small control calls finish quickly; uploads carry
	// their own per-request deadlines set by the caller's context.
	defaultTimeout = 60 * time.Second

	errorSnippetLimit = 400
)

// StatusError is a non-2xx response from the job service.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("job service status %d: %s", e.Code, e.Detail)
}

// Client talks to the remote job service over HTTP/JSON.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// New creates a job service client for the given base URL.
func New(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// NewWithHTTPClient creates a client with a caller-supplied http.Client.
// Used for uploads, where the flat 60s timeout would kill large transfers.
func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	return &Client{
		httpClient: hc,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// Health checks service liveness.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.getJSON(ctx, common.PathHealth, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateJob submits the video (and optional deck) as one multipart request.
// The prepare/upload/process flow is preferred for large recordings; this
// single call covers small files and older service versions.
func (c *Client) CreateJob(ctx context.Context, videoName string, video io.Reader, deck *DeckFile) (*CreateJobResponse, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	part, err := w.CreateFormFile("video", videoName)
	if err != nil {
		return nil, fmt.Errorf("create video part: %w", err)
	}
	if _, err := io.Copy(part, video); err != nil {
		return nil, fmt.Errorf("write video part: %w", err)
	}
	if deck != nil {
		dp, err := w.CreateFormFile("deck", deck.Filename)
		if err != nil {
			return nil, fmt.Errorf("create deck part: %w", err)
		}
		if _, err := dp.Write(deck.Content); err != nil {
			return nil, fmt.Errorf("write deck part: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, common.PathJobs, buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set(headerContentType, w.FormDataContentType())

	var out CreateJobResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PrepareJob creates a job shell so the video can be uploaded separately.
func (c *Client) PrepareJob(ctx context.Context) (*CreateJobResponse, error) {
	var out CreateJobResponse
	if err := c.postJSON(ctx, common.PathJobs+"/prepare", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadURL requests a short-lived signed URL for a direct video upload.
func (c *Client) UploadURL(ctx context.Context, jobID string) (*UploadTarget, error) {
	var out UploadTarget
	if err := c.postJSON(ctx, c.jobPath(jobID, "upload-url"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PutSigned uploads the full video body to a signed storage URL.
// The URL is absolute (object storage, not the job service).
func (c *Client) PutSigned(ctx context.Context, target *UploadTarget, body io.Reader, size int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target.UploadURL, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set(headerContentType, target.ContentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("http do: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, errorSnippetLimit))
		return &StatusError{Code: resp.StatusCode, Detail: strings.TrimSpace(string(b))}
	}
	return nil
}

// UploadChunk sends one chunk of the video at the given byte offset.
func (c *Client) UploadChunk(ctx context.Context, jobID string, offset, totalSize int64, chunk []byte) (*ChunkAck, error) {
	q := url.Values{}
	q.Set("offset", strconv.FormatInt(offset, 10))
	q.Set("total_size", strconv.FormatInt(totalSize, 10))
	path := c.jobPath(jobID, "upload-chunk") + "?" + q.Encode()

	req, err := c.newRequest(ctx, http.MethodPatch, path, bytes.NewReader(chunk))
	if err != nil {
		return nil, err
	}
	req.Header.Set(headerContentType, common.ContentTypeOctetStream)

	var out ChunkAck
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StreamUpload sends the raw video body in one PUT and consumes the NDJSON
// progress records the server streams back. onRecord is invoked for every
// record, including the terminal one. The upload failed if the stream ends
// without a terminal done record or if the server sends an error record.
func (c *Client) StreamUpload(ctx context.Context, jobID string, body io.Reader, size int64, onRecord func(StreamRecord)) error {
	req, err := c.newRequest(ctx, http.MethodPut, c.jobPath(jobID, "upload-video"), body)
	if err != nil {
		return err
	}
	req.ContentLength = size
	req.Header.Set(headerContentType, common.ContentTypeOctetStream)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("http do: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, errorSnippetLimit))
		return &StatusError{Code: resp.StatusCode, Detail: strings.TrimSpace(string(b))}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	sawDone := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec StreamRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return fmt.Errorf("parse stream record: %w", err)
		}
		if onRecord != nil {
			onRecord(rec)
		}
		switch rec.Status {
		case "error":
			return fmt.Errorf("stream upload rejected: %s", rec.Detail)
		case "done":
			sawDone = true
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	if !sawDone {
		return fmt.Errorf("stream ended without terminal done record")
	}
	return nil
}

// StartProcessing tells the service the media is in place and the pipeline
// may begin. Safe to call twice for the same job: the server refuses with
// 400 once processing is underway, which callers may treat as already
// started. fromStorage selects the process-gcs variant used after a signed
// direct upload. deck is optional.
func (c *Client) StartProcessing(ctx context.Context, jobID string, deck *DeckFile, fromStorage bool) (*CreateJobResponse, error) {
	endpoint := "process"
	if fromStorage {
		endpoint = "process-gcs"
	}

	var (
		body        io.Reader
		contentType string
	)
	if deck != nil {
		buf, ct, err := deck.multipartBody()
		if err != nil {
			return nil, err
		}
		body, contentType = buf, ct
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.jobPath(jobID, endpoint), body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set(headerContentType, contentType)
	}

	var out CreateJobResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetJob fetches the full job record.
func (c *Client) GetJob(ctx context.Context, jobID string) (*Job, error) {
	var out Job
	if err := c.getJSON(ctx, common.PathJobs+"/"+url.PathEscape(jobID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartRound requests feedback round n (1-based) for the job.
func (c *Client) StartRound(ctx context.Context, jobID string, n int) (*CreateJobResponse, error) {
	if n < 1 || n > common.FeedbackRounds {
		return nil, fmt.Errorf("round %d out of range 1..%d", n, common.FeedbackRounds)
	}
	var out CreateJobResponse
	if err := c.postJSON(ctx, c.jobPath(jobID, fmt.Sprintf("feedback/round%d", n)), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Summarize requests transcript summarization for the job.
func (c *Client) Summarize(ctx context.Context, jobID string) (*CreateJobResponse, error) {
	var out CreateJobResponse
	if err := c.postJSON(ctx, c.jobPath(jobID, "summarize"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) jobPath(jobID string, suffix string) string {
	return common.PathJobs + "/" + url.PathEscape(jobID) + "/" + suffix
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	u := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set(headerContentType, common.ContentTypeJSON)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return req.Context().Err()
		}
		return fmt.Errorf("http do: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &StatusError{Code: resp.StatusCode, Detail: truncate(extractDetail(respBytes), errorSnippetLimit)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBytes, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// extractDetail pulls the detail field from an error payload when present.
func extractDetail(b []byte) string {
	var e struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(b, &e); err == nil && e.Detail != "" {
		return e.Detail
	}
	return strings.TrimSpace(string(b))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
