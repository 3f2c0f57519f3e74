package api

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/pitchkit/pitchkit/internal/common"
)

// allowedDeckMimes maps deck extensions to the content types the service
// accepts for them. octet-stream is tolerated because some clients cannot
// sniff office formats.
var allowedDeckMimes = map[string][]string{
	".pdf":  {common.MimePDF, "application/x-pdf", common.ContentTypeOctetStream},
	".pptx": {common.MimePPTX, common.MimeZip, common.ContentTypeOctetStream},
	".ppt":  {common.MimePPT, common.ContentTypeOctetStream},
}

// DeckFile is a slide deck ready to attach to a process request.
type DeckFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

// NewDeckFile validates the deck's extension, content type and size, and
// returns it packaged for upload. contentType may be empty, in which case
// it is derived from the extension.
func NewDeckFile(filename, contentType string, r io.Reader, maxBytes int64) (*DeckFile, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	allowed, ok := allowedDeckMimes[ext]
	if !ok {
		return nil, fmt.Errorf("unsupported deck extension %q (want .pdf, .ppt, or .pptx)", ext)
	}

	if contentType == "" {
		contentType = deckTypeByExtension(ext)
	} else if !contains(allowed, contentType) {
		return nil, fmt.Errorf("invalid deck content type for %s: %s", ext, contentType)
	}

	limited := io.LimitReader(r, maxBytes+1)
	content, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read deck: %w", err)
	}
	if int64(len(content)) > maxBytes {
		return nil, fmt.Errorf("deck exceeds %d bytes", maxBytes)
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("deck file is empty")
	}

	return &DeckFile{
		Filename:    sanitizeFilename(filename),
		ContentType: contentType,
		Content:     content,
	}, nil
}

func deckTypeByExtension(ext string) string {
	switch ext {
	case ".pdf":
		return common.MimePDF
	case ".pptx":
		return common.MimePPTX
	case ".ppt":
		return common.MimePPT
	default:
		return common.ContentTypeOctetStream
	}
}

// multipartBody builds the multipart form carrying the deck field.
func (d *DeckFile) multipartBody() (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	part, err := w.CreateFormFile("deck", d.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(d.Content); err != nil {
		return nil, "", fmt.Errorf("write deck part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return buf, w.FormDataContentType(), nil
}

// sanitizeFilename strips path components and replaces characters that are
// unsafe in storage paths.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "deck"
	}
	return b.String()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
