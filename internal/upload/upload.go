// Package upload moves a recorded video to the job service despite large
// sizes and intermediaries that kill idle or long-lived connections. Three
// transports exist; the coordinator tries them in priority order.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pitchkit/pitchkit/internal/api"
)

// Blob is the recorded video to deliver. Reader must support random access
// so that retries and chunking can re-read arbitrary ranges.
type Blob struct {
	Name   string
	Reader io.ReaderAt
	Size   int64
}

// SectionFrom returns a reader over blob bytes [offset, offset+length).
func (b Blob) SectionFrom(offset, length int64) io.Reader {
	return io.NewSectionReader(b.Reader, offset, length)
}

// ProgressFunc observes uploaded byte counts. Counts are monotonically
// increasing within one attempt; a retry restarts the sequence at zero.
type ProgressFunc func(uploaded int64)

// Transport is one concrete strategy for moving video bytes to storage.
type Transport interface {
	Name() string
	Upload(ctx context.Context, jobID string, blob Blob, onProgress ProgressFunc) error
}

// TransportError is a retryable delivery failure (network error or 5xx).
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "transport: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// ClientRejectedError is a 4xx rejection. Retrying cannot help: a bad
// signed URL or an oversized body will not heal.
type ClientRejectedError struct {
	Err error
}

func (e *ClientRejectedError) Error() string { return "rejected: " + e.Err.Error() }
func (e *ClientRejectedError) Unwrap() error { return e.Err }

// classify wraps an upload error into the retryable/terminal taxonomy.
func classify(err error) error {
	var se *api.StatusError
	if errors.As(err, &se) {
		if se.Code >= 400 && se.Code < 500 {
			return &ClientRejectedError{Err: err}
		}
		return &TransportError{Err: err}
	}
	return &TransportError{Err: err}
}

// backoff sleeps for the attempt's exponential delay (base doubling per
// attempt) or until the context ends.
func backoff(ctx context.Context, base time.Duration, attempt int) error {
	d := base << (attempt - 1)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retriable reports whether the error permits another attempt.
func retriable(err error) bool {
	var cr *ClientRejectedError
	if errors.As(err, &cr) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

func percentOf(done, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(done * 100 / total)
}

var errEmptyBlob = fmt.Errorf("video blob is empty")
