package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/pitchkit/pitchkit/internal/api"
)

// StreamTransport PUTs the raw blob in a single request and consumes the
// NDJSON status records the server streams back. Keeping bytes flowing in
// both directions defeats idle-connection proxy timeouts without chunking.
// It is selected by configuration for environments where chunked PATCH
// requests are not viable; the coordinator never falls back to it.
type StreamTransport struct {
	log    *slog.Logger
	client *api.Client
}

func NewStreamTransport(log *slog.Logger, client *api.Client) *StreamTransport {
	return &StreamTransport{log: log, client: client}
}

var _ Transport = (*StreamTransport)(nil)

func (t *StreamTransport) Name() string { return "stream" }

// Upload performs the streaming PUT. An error record from the server is
// immediately fatal; this transport does no retries of its own.
func (t *StreamTransport) Upload(ctx context.Context, jobID string, blob Blob, onProgress ProgressFunc) error {
	if blob.Size == 0 {
		return &ClientRejectedError{Err: errEmptyBlob}
	}

	body := io.Reader(blob.SectionFrom(0, blob.Size))
	err := t.client.StreamUpload(ctx, jobID, body, blob.Size, func(rec api.StreamRecord) {
		if rec.Status == "uploading" && onProgress != nil {
			onProgress(rec.Bytes)
		}
	})
	if err != nil {
		return classify(fmt.Errorf("stream upload: %w", err))
	}

	if onProgress != nil {
		onProgress(blob.Size)
	}
	t.log.Info("stream upload complete", "job_id", jobID, "bytes", blob.Size)
	return nil
}
