package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClient_StatusErrorCarriesDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"Job is already being processed (status=transcribing)."}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).GetJob(context.Background(), "j1")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want StatusError", err)
	}
	if se.Code != http.StatusBadRequest {
		t.Fatalf("code = %d", se.Code)
	}
	if !strings.Contains(se.Detail, "already being processed") {
		t.Fatalf("detail = %q", se.Detail)
	}
}

func TestClient_StatusErrorNonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer srv.Close()

	_, err := New(srv.URL).GetJob(context.Background(), "j1")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want StatusError", err)
	}
	if se.Detail != "<html>bad gateway</html>" {
		t.Fatalf("detail = %q", se.Detail)
	}
}

func TestClient_GetJobLegacyResultAlias(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"job_id": "j1",
			"status": "done",
			"progress": 100,
			"result": {"full_text": "legacy transcript", "segments": [], "words": []}
		}`))
	}))
	defer srv.Close()

	job, err := New(srv.URL).GetJob(context.Background(), "j1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	tr := job.TranscriptResult()
	if tr == nil || tr.FullText != "legacy transcript" {
		t.Fatalf("legacy result not surfaced: %+v", tr)
	}
}

func TestClient_StartRoundRangeCheck(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	c := New(srv.URL)
	for _, n := range []int{0, -1, 6} {
		if _, err := c.StartRound(context.Background(), "j1", n); err == nil {
			t.Fatalf("round %d accepted", n)
		}
	}
	if hits != 0 {
		t.Fatalf("out-of-range rounds reached the server %d times", hits)
	}
}

func TestStreamUpload_FailsWithoutTerminalDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Stream cut mid-upload: progress records but no terminal one.
		_, _ = w.Write([]byte(`{"status":"uploading","bytes":1024}` + "\n"))
	}))
	defer srv.Close()

	err := New(srv.URL).StreamUpload(context.Background(), "j1", strings.NewReader("data"), 4, nil)
	if err == nil || !strings.Contains(err.Error(), "without terminal done") {
		t.Fatalf("err = %v, want missing-terminal error", err)
	}
}

func TestStreamUpload_ErrorRecordStopsConsumption(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"uploading","bytes":1024}` + "\n"))
		_, _ = w.Write([]byte(`{"status":"error","detail":"no space left"}` + "\n"))
		_, _ = w.Write([]byte(`{"status":"done","bytes":2048}` + "\n"))
	}))
	defer srv.Close()

	var records []StreamRecord
	err := New(srv.URL).StreamUpload(context.Background(), "j1", strings.NewReader("data"), 4, func(rec StreamRecord) {
		records = append(records, rec)
	})
	if err == nil || !strings.Contains(err.Error(), "no space left") {
		t.Fatalf("err = %v, want error record detail", err)
	}
	// The error record is terminal: nothing after it is consumed.
	if len(records) != 2 {
		t.Fatalf("records seen = %d, want 2", len(records))
	}
}

func TestClient_TrimsTrailingSlash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "//") {
			t.Errorf("double slash in path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"job_id":"j1","status":"created"}`))
	}))
	defer srv.Close()

	if _, err := New(srv.URL + "/").PrepareJob(context.Background()); err != nil {
		t.Fatalf("prepare: %v", err)
	}
}
