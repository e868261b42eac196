package api

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const pptxMIME = "application/vnd.openxmlformats-officedocument.presentationml.presentation"

// maxUploadSize matches what the backend is willing to accept
const maxUploadSize = 100 << 20

// Upload is a named file to send to the backend
type Upload struct {
	Filename string
	Content  []byte
}

// LoadUpload reads a file from disk. Only the base name is sent to the backend.
func LoadUpload(path string) (Upload, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Upload{}, fmt.Errorf("failed to stat upload: %w", err)
	}
	if info.IsDir() {
		return Upload{}, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > maxUploadSize {
		return Upload{}, fmt.Errorf("%s is too large (%d bytes, max %d)", path, info.Size(), maxUploadSize)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Upload{}, fmt.Errorf("failed to read upload: %w", err)
	}
	return Upload{Filename: filepath.Base(path), Content: content}, nil
}

// Ext returns the lowercased file extension including the dot
func (u Upload) Ext() string {
	return strings.ToLower(filepath.Ext(u.Filename))
}

// ContentType sniffs the MIME type from the file contents
func (u Upload) ContentType() string {
	mtype := mimetype.Detect(u.Content)
	// Office documents are zip containers; trust the extension when sniffing stops at zip
	if mtype.Is("application/zip") {
		if byExt := mimeForExt(u.Ext()); byExt != "" {
			return byExt
		}
	}
	base, _, _ := strings.Cut(mtype.String(), ";")
	return base
}

// writeMultipart encodes the upload as a single-file multipart form into buf
// and returns the form content type
func (u Upload) writeMultipart(buf *bytes.Buffer, field string) (string, error) {
	w := multipart.NewWriter(buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(field), escapeQuotes(u.Filename)))
	h.Set("Content-Type", u.ContentType())

	part, err := w.CreatePart(h)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(u.Content); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return w.FormDataContentType(), nil
}

func mimeForExt(ext string) string {
	switch ext {
	case ".pptx":
		return pptxMIME
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return ""
	}
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
