package api

import (
	"bytes"
	"mime/multipart"
	"strings"
	"testing"

	"github.com/pitchkit/pitchkit/internal/common"
)

func TestNewDeckFile_Valid(t *testing.T) {
	d, err := NewDeckFile("pitch.pdf", "", strings.NewReader("%PDF-1.7 fake"), 1024)
	if err != nil {
		t.Fatalf("NewDeckFile: %v", err)
	}
	if d.ContentType != common.MimePDF {
		t.Fatalf("content type = %q, want %q", d.ContentType, common.MimePDF)
	}
	if d.Filename != "pitch.pdf" {
		t.Fatalf("filename = %q", d.Filename)
	}
}

func TestNewDeckFile_Rejections(t *testing.T) {
	cases := []struct {
		name        string
		filename    string
		contentType string
		content     string
		maxBytes    int64
	}{
		{"unsupported extension", "notes.docx", "", "x", 1024},
		{"no extension", "deck", "", "x", 1024},
		{"wrong content type", "pitch.pdf", "image/png", "x", 1024},
		{"oversized", "pitch.pdf", "", strings.Repeat("x", 100), 50},
		{"empty", "pitch.pdf", "", "", 1024},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := NewDeckFile(c.filename, c.contentType, strings.NewReader(c.content), c.maxBytes); err == nil {
				t.Fatalf("expected rejection")
			}
		})
	}
}

func TestNewDeckFile_OctetStreamTolerated(t *testing.T) {
	// Browsers that cannot sniff office formats send octet-stream.
	if _, err := NewDeckFile("pitch.pptx", common.ContentTypeOctetStream, strings.NewReader("PK"), 1024); err != nil {
		t.Fatalf("octet-stream pptx rejected: %v", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct{ in, want string }{
		{"../../etc/passwd", "passwd"},
		{"my deck (final).pdf", "my_deck__final_.pdf"},
		{"simple-name_1.pptx", "simple-name_1.pptx"},
	}
	for _, c := range cases {
		if got := sanitizeFilename(c.in); got != c.want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestMultipartBody_DeckField(t *testing.T) {
	d, err := NewDeckFile("pitch.pdf", "", strings.NewReader("content"), 1024)
	if err != nil {
		t.Fatalf("NewDeckFile: %v", err)
	}
	buf, contentType, err := d.multipartBody()
	if err != nil {
		t.Fatalf("multipartBody: %v", err)
	}

	_, params, found := strings.Cut(contentType, "boundary=")
	if !found {
		t.Fatalf("no boundary in content type %q", contentType)
	}
	form, err := multipart.NewReader(bytes.NewReader(buf.Bytes()), params).ReadForm(1 << 20)
	if err != nil {
		t.Fatalf("parse form: %v", err)
	}
	files := form.File["deck"]
	if len(files) != 1 {
		t.Fatalf("deck parts = %d, want 1", len(files))
	}
	if files[0].Filename != "pitch.pdf" {
		t.Fatalf("part filename = %q", files[0].Filename)
	}
}
