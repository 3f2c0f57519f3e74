package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/pitchkit/pitchkit/internal/api"
)

// DirectTransport requests a short-lived signed write URL and PUTs the
// whole blob to object storage, bypassing the service's HTTP router.
type DirectTransport struct {
	log      *slog.Logger
	client   *api.Client
	attempts int
	base     time.Duration
}

// NewDirectTransport builds the signed-URL transport. attempts bounds the
// retry loop; base is the first backoff delay, doubled per attempt.
func NewDirectTransport(log *slog.Logger, client *api.Client, attempts int, base time.Duration) *DirectTransport {
	if attempts <= 0 {
		attempts = 3
	}
	if base <= 0 {
		base = time.Second
	}
	return &DirectTransport{log: log, client: client, attempts: attempts, base: base}
}

var _ Transport = (*DirectTransport)(nil)

func (t *DirectTransport) Name() string { return "direct" }

// Upload PUTs the blob to a fresh signed URL, retrying transport-level
// failures with exponential backoff. Progress restarts at zero on each
// attempt. A 4xx aborts immediately: a bad signed URL will not heal.
func (t *DirectTransport) Upload(ctx context.Context, jobID string, blob Blob, onProgress ProgressFunc) error {
	if blob.Size == 0 {
		return &ClientRejectedError{Err: errEmptyBlob}
	}

	var lastErr error
	for attempt := 1; attempt <= t.attempts; attempt++ {
		if onProgress != nil {
			onProgress(0)
		}

		err := t.put(ctx, jobID, blob, onProgress)
		if err == nil {
			t.log.Info("direct upload complete", "job_id", jobID, "bytes", blob.Size, "attempt", attempt)
			return nil
		}

		lastErr = classify(err)
		if !retriable(lastErr) {
			t.log.Warn("direct upload rejected", "job_id", jobID, "err", err)
			return lastErr
		}

		t.log.Warn("direct upload attempt failed",
			"job_id", jobID, "attempt", attempt, "size", humanize.Bytes(uint64(blob.Size)), "err", err)
		if attempt < t.attempts {
			if berr := backoff(ctx, t.base, attempt); berr != nil {
				return &TransportError{Err: berr}
			}
		}
	}
	return fmt.Errorf("direct upload exhausted after %d attempts: %w", t.attempts, lastErr)
}

func (t *DirectTransport) put(ctx context.Context, jobID string, blob Blob, onProgress ProgressFunc) error {
	target, err := t.client.UploadURL(ctx, jobID)
	if err != nil {
		return fmt.Errorf("request upload url: %w", err)
	}
	if target.MaxBytes > 0 && blob.Size > target.MaxBytes {
		return &api.StatusError{Code: 413, Detail: fmt.Sprintf("video is %s, limit %s",
			humanize.Bytes(uint64(blob.Size)), humanize.Bytes(uint64(target.MaxBytes)))}
	}

	body := io.Reader(blob.SectionFrom(0, blob.Size))
	if onProgress != nil {
		body = &countingReader{r: body, onProgress: onProgress}
	}
	return t.client.PutSigned(ctx, target, body, blob.Size)
}

// countingReader reports cumulative bytes read to the progress observer.
type countingReader struct {
	r          io.Reader
	read       int64
	onProgress ProgressFunc
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.read += int64(n)
		c.onProgress(c.read)
	}
	return n, err
}
