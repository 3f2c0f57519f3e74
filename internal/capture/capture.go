// Package capture abstracts the media source. The orchestrator treats a
// recording as an opaque producer of bytes plus an elapsed duration; how
// the bytes were captured is someone else's problem.
package capture

import (
	"fmt"
	"io"
	"os"
	"time"
)

// Recording is a finished capture: random-access video bytes and the
// elapsed recording duration reported by the recorder.
type Recording struct {
	Name    string
	Reader  io.ReaderAt
	Size    int64
	Elapsed time.Duration

	closer io.Closer
}

// Close releases the underlying source, if it holds one.
func (r *Recording) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// FromFile opens an already-recorded video file as a Recording. elapsed is
// supplied by the caller; probing the container is out of scope here.
func FromFile(path string, elapsed time.Duration) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat recording: %w", err)
	}
	return &Recording{
		Name:    info.Name(),
		Reader:  f,
		Size:    info.Size(),
		Elapsed: elapsed,
		closer:  f,
	}, nil
}

// FromBytes wraps an in-memory blob as a Recording. Used by tests and by
// recorders that buffer in memory.
func FromBytes(name string, b []byte, elapsed time.Duration) *Recording {
	return &Recording{
		Name:    name,
		Reader:  bytesReaderAt(b),
		Size:    int64(len(b)),
		Elapsed: elapsed,
	}
}

type byteSlice []byte

func (b byteSlice) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(b)) {
		return 0, io.EOF
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func bytesReaderAt(b []byte) io.ReaderAt { return byteSlice(b) }
