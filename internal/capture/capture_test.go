package capture

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromBytes_RandomAccess(t *testing.T) {
	rec := FromBytes("clip.webm", []byte("0123456789"), 5*time.Second)
	if rec.Size != 10 || rec.Name != "clip.webm" || rec.Elapsed != 5*time.Second {
		t.Fatalf("recording = %+v", rec)
	}

	buf := make([]byte, 4)
	n, err := rec.Reader.ReadAt(buf, 3)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if n != 4 || string(buf) != "3456" {
		t.Fatalf("ReadAt(3) = %q", buf[:n])
	}

	// Reads past the end report EOF.
	n, err = rec.Reader.ReadAt(buf, 8)
	if err != io.EOF {
		t.Fatalf("err = %v, want EOF", err)
	}
	if n != 2 || string(buf[:n]) != "89" {
		t.Fatalf("tail read = %q", buf[:n])
	}
	if _, err = rec.Reader.ReadAt(buf, 20); err != io.EOF {
		t.Fatalf("past-end read err = %v, want EOF", err)
	}

	// In-memory recordings have nothing to release.
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pitch.webm")
	if err := os.WriteFile(path, []byte("video bytes"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	rec, err := FromFile(path, 12*time.Second)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	if rec.Name != "pitch.webm" || rec.Size != 11 {
		t.Fatalf("recording = %+v", rec)
	}
	buf := make([]byte, 5)
	if _, err := rec.Reader.ReadAt(buf, 6); err != nil && err != io.EOF {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(buf) != "bytes" {
		t.Fatalf("read = %q", buf)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := FromFile(filepath.Join(t.TempDir(), "missing.webm"), time.Second); err == nil {
		t.Fatalf("missing file must fail")
	}
}
