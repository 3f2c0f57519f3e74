package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pitchkit/pitchkit/internal/api"
)

// Coordinator tries transports in priority order, falling back on failure,
// and finishes by telling the service the media is in place.
type Coordinator struct {
	log        *slog.Logger
	client     *api.Client
	transports []Transport
}

// NewCoordinator builds a coordinator over the given transports. The slice
// order is the fallback order: the reference chain is direct then chunked,
// while a configured stream transport stands alone.
func NewCoordinator(log *slog.Logger, client *api.Client, transports ...Transport) *Coordinator {
	return &Coordinator{log: log, client: client, transports: transports}
}

// Upload delivers the blob via the first transport that succeeds. Errors
// from earlier transports are logged and folded into the final error only
// if every transport fails.
func (c *Coordinator) Upload(ctx context.Context, jobID string, blob Blob, onProgress ProgressFunc) (string, error) {
	if len(c.transports) == 0 {
		return "", fmt.Errorf("no upload transports configured")
	}

	var failures []string
	for _, t := range c.transports {
		err := t.Upload(ctx, jobID, blob, onProgress)
		if err == nil {
			return t.Name(), nil
		}
		if ctx.Err() != nil {
			return "", err
		}
		c.log.Warn("transport failed, falling back", "job_id", jobID, "transport", t.Name(), "err", err)
		failures = append(failures, fmt.Sprintf("%s: %v", t.Name(), err))
	}
	return "", fmt.Errorf("all upload transports failed: %s", strings.Join(failures, "; "))
}

// Deliver uploads the blob and then issues the start-processing request.
// Issuing the start request twice for the same job is safe: the server
// refuses a second start with a conflict, which is folded into success.
func (c *Coordinator) Deliver(ctx context.Context, jobID string, blob Blob, deck *api.DeckFile, onProgress ProgressFunc) (*api.CreateJobResponse, error) {
	transport, err := c.Upload(ctx, jobID, blob, onProgress)
	if err != nil {
		return nil, err
	}

	// The signed direct upload lands in object storage; everything else
	// lands on the service host.
	fromStorage := transport == "direct"

	resp, err := c.client.StartProcessing(ctx, jobID, deck, fromStorage)
	if err != nil {
		if alreadyStarted(err) {
			c.log.Info("processing already started", "job_id", jobID)
			return &api.CreateJobResponse{JobID: jobID, Status: api.StatusQueued}, nil
		}
		return nil, fmt.Errorf("start processing: %w", err)
	}
	return resp, nil
}

// alreadyStarted matches the server's refusal to start a job twice.
func alreadyStarted(err error) bool {
	var se *api.StatusError
	return errors.As(err, &se) && se.Code == 400 && strings.Contains(se.Detail, "already being processed")
}
