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

// ChunkedTransport splits the blob into fixed-size chunks and PATCHes each
// one with its byte offset. Every request finishes in seconds, staying
// inside proxy idle-connection timeouts. Chunks go strictly in order and
// the offset advances only on confirmed success, so there are never gaps.
type ChunkedTransport struct {
	log       *slog.Logger
	client    *api.Client
	chunkSize int64
	attempts  int
	base      time.Duration
	resume    *ResumeStore // optional; nil disables cross-restart resume
}

// NewChunkedTransport builds the chunked transport. resume may be nil.
func NewChunkedTransport(log *slog.Logger, client *api.Client, chunkSize int64, attempts int, base time.Duration, resume *ResumeStore) *ChunkedTransport {
	if chunkSize <= 0 {
		chunkSize = 2 * 1024 * 1024
	}
	if attempts <= 0 {
		attempts = 3
	}
	if base <= 0 {
		base = time.Second
	}
	return &ChunkedTransport{
		log:       log,
		client:    client,
		chunkSize: chunkSize,
		attempts:  attempts,
		base:      base,
		resume:    resume,
	}
}

var _ Transport = (*ChunkedTransport)(nil)

func (t *ChunkedTransport) Name() string { return "chunked" }

// Upload sends the blob chunk by chunk. Each chunk retries independently
// with exponential backoff; a chunk failing after all retries aborts the
// whole upload with the completed percentage in the error.
func (t *ChunkedTransport) Upload(ctx context.Context, jobID string, blob Blob, onProgress ProgressFunc) error {
	if blob.Size == 0 {
		return &ClientRejectedError{Err: errEmptyBlob}
	}

	offset := t.resumeOffset(jobID, blob.Size)
	if offset > 0 {
		t.log.Info("resuming chunked upload",
			"job_id", jobID, "offset", offset, "size", humanize.Bytes(uint64(blob.Size)))
	}

	buf := make([]byte, t.chunkSize)
	for offset < blob.Size {
		length := t.chunkSize
		if remaining := blob.Size - offset; remaining < length {
			length = remaining
		}
		if _, err := io.ReadFull(blob.SectionFrom(offset, length), buf[:length]); err != nil {
			return &ClientRejectedError{Err: fmt.Errorf("read chunk at %d: %w", offset, err)}
		}

		ack, err := t.sendChunk(ctx, jobID, offset, blob.Size, buf[:length])
		if err != nil {
			return fmt.Errorf("chunk at offset %d failed with %d%% uploaded: %w",
				offset, percentOf(offset, blob.Size), err)
		}

		offset += length
		if onProgress != nil {
			onProgress(offset)
		}
		t.saveOffset(jobID, blob.Size, offset)

		if ack.Complete {
			break
		}
	}

	t.clearOffset(jobID)
	t.log.Info("chunked upload complete", "job_id", jobID, "bytes", blob.Size)
	return nil
}

// sendChunk retries one chunk up to the attempt budget.
func (t *ChunkedTransport) sendChunk(ctx context.Context, jobID string, offset, total int64, chunk []byte) (*api.ChunkAck, error) {
	var lastErr error
	for attempt := 1; attempt <= t.attempts; attempt++ {
		ack, err := t.client.UploadChunk(ctx, jobID, offset, total, chunk)
		if err == nil {
			return ack, nil
		}

		lastErr = classify(err)
		if !retriable(lastErr) {
			return nil, lastErr
		}

		t.log.Warn("chunk attempt failed", "job_id", jobID, "offset", offset, "attempt", attempt, "err", err)
		if attempt < t.attempts {
			if berr := backoff(ctx, t.base, attempt); berr != nil {
				return nil, &TransportError{Err: berr}
			}
		}
	}
	return nil, lastErr
}

func (t *ChunkedTransport) resumeOffset(jobID string, size int64) int64 {
	if t.resume == nil {
		return 0
	}
	offset, err := t.resume.Offset(jobID, size)
	if err != nil {
		t.log.Warn("resume offset lookup failed", "job_id", jobID, "err", err)
		return 0
	}
	return offset
}

func (t *ChunkedTransport) saveOffset(jobID string, size, offset int64) {
	if t.resume == nil {
		return
	}
	if err := t.resume.Save(jobID, size, offset); err != nil {
		t.log.Warn("resume offset save failed", "job_id", jobID, "err", err)
	}
}

func (t *ChunkedTransport) clearOffset(jobID string) {
	if t.resume == nil {
		return
	}
	if err := t.resume.Clear(jobID); err != nil {
		t.log.Warn("resume offset clear failed", "job_id", jobID, "err", err)
	}
}
