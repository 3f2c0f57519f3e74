package upload

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/pitchkit/pitchkit/internal/api"
	"github.com/pitchkit/pitchkit/internal/jobsvctest"
)

func TestStream_UploadReportsProgressFromRecords(t *testing.T) {
	srv := jobsvctest.New()
	defer srv.Close()
	srv.SeedJob("j1", api.StatusCreated)

	client := api.NewWithHTTPClient(srv.URL(), &http.Client{})
	tr := NewStreamTransport(testLogger(), client)

	blob := testBlob(64 * 1024)
	var last int64
	if err := tr.Upload(context.Background(), "j1", blob, func(uploaded int64) {
		if uploaded < last {
			t.Fatalf("progress regressed: %d -> %d", last, uploaded)
		}
		last = uploaded
	}); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if last != blob.Size {
		t.Fatalf("final progress = %d, want %d", last, blob.Size)
	}
	if got := srv.Count("stream"); got != 1 {
		t.Fatalf("stream requests = %d, want 1", got)
	}
}

func TestStream_ErrorRecordIsFatal(t *testing.T) {
	srv := jobsvctest.New()
	defer srv.Close()
	srv.SeedJob("j1", api.StatusCreated)
	srv.StreamError = "disk full on service host"

	client := api.NewWithHTTPClient(srv.URL(), &http.Client{})
	tr := NewStreamTransport(testLogger(), client)

	err := tr.Upload(context.Background(), "j1", testBlob(64*1024), nil)
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TransportError", err)
	}
	// The single request is the whole story: this transport never retries.
	if got := srv.Count("stream"); got != 1 {
		t.Fatalf("stream requests = %d, want 1", got)
	}
}

func TestStream_EmptyBlob(t *testing.T) {
	tr := NewStreamTransport(testLogger(), nil)
	err := tr.Upload(context.Background(), "j1", Blob{}, nil)
	var cr *ClientRejectedError
	if !errors.As(err, &cr) {
		t.Fatalf("err = %v, want ClientRejectedError", err)
	}
}
