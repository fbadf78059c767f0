// Package extract turns uploaded resumes and job descriptions into plain text.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	apierrors "github.com/skillspeak/interview-proxy/internal/errors"
)

// FailedMessage is the client-facing text for an upload that could not be
// converted; the wrapped cause is only logged.
const FailedMessage = "Failed to extract text from file"

// MaxFileSize is the upload limit per file.
const MaxFileSize = 5 * 1024 * 1024

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeTXT  = "text/plain"
)

var (
	ErrUnsupportedType = apierrors.NewValidationError("Invalid file type. Only PDF, DOCX, and TXT files are allowed.")
	ErrFileTooLarge    = apierrors.NewValidationError("File too large. Maximum size is 5MB.")
)

// Kind is a supported document format.
type Kind int

const (
	KindPDF Kind = iota + 1
	KindDOCX
	KindTXT
)

func (k Kind) String() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindDOCX:
		return "docx"
	case KindTXT:
		return "txt"
	}
	return "unknown"
}

// Detect picks the format from the part's content type, falling back to the
// file extension when the browser sent a generic type.
func Detect(filename, contentType string) (Kind, error) {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mt {
		case mimePDF:
			return KindPDF, nil
		case mimeDOCX:
			return KindDOCX, nil
		case mimeTXT:
			return KindTXT, nil
		}
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return KindPDF, nil
	case ".docx":
		return KindDOCX, nil
	case ".txt":
		return KindTXT, nil
	}
	return 0, ErrUnsupportedType
}

// FromFileHeader reads and converts an uploaded multipart file.
func FromFileHeader(fh *multipart.FileHeader) (string, error) {
	if fh.Size > MaxFileSize {
		return "", ErrFileTooLarge
	}
	kind, err := Detect(fh.Filename, fh.Header.Get("Content-Type"))
	if err != nil {
		return "", err
	}

	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxFileSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) > MaxFileSize {
		return "", ErrFileTooLarge
	}
	return Text(data, kind)
}

// Text converts data of the given kind to plain text.
func Text(data []byte, kind Kind) (string, error) {
	var (
		text string
		err  error
	)
	switch kind {
	case KindPDF:
		text, err = pdfText(data)
	case KindDOCX:
		text, err = docxText(data)
	case KindTXT:
		text = string(data)
	default:
		return "", ErrUnsupportedType
	}
	if err != nil {
		return "", fmt.Errorf("failed to extract text from %s: %w", kind, err)
	}
	return text, nil
}

func pdfText(data []byte) (text string, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}
