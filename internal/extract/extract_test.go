package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	apierrors "github.com/skillspeak/interview-proxy/internal/errors"
)

func buildDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(documentPart)
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte(documentXML))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDetect(t *testing.T) {
	tests := []struct {
		filename, contentType string
		want                  Kind
		wantErr               bool
	}{
		{"cv.pdf", "application/pdf", KindPDF, false},
		{"cv.docx", mimeDOCX, KindDOCX, false},
		{"notes.txt", "text/plain; charset=utf-8", KindTXT, false},
		{"cv.PDF", "application/octet-stream", KindPDF, false},
		{"photo.png", "image/png", 0, true},
		{"cv.doc", "application/msword", 0, true},
	}
	for _, tt := range tests {
		got, err := Detect(tt.filename, tt.contentType)
		if tt.wantErr {
			if !errors.Is(err, ErrUnsupportedType) {
				t.Errorf("Detect(%q, %q) err = %v", tt.filename, tt.contentType, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("Detect(%q, %q) = %v, %v; want %v", tt.filename, tt.contentType, got, err, tt.want)
		}
	}

	if apierrors.StatusOf(ErrUnsupportedType) != http.StatusBadRequest {
		t.Error("unsupported type should be a client error")
	}
}

func TestDOCXText(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Jane Doe</w:t></w:r></w:p>
    <w:p><w:r><w:t xml:space="preserve">Senior </w:t></w:r><w:r><w:t>Engineer</w:t></w:r></w:p>
    <w:p><w:r><w:t>Go</w:t><w:tab/><w:t>Kubernetes</w:t></w:r></w:p>
  </w:body>
</w:document>`

	got, err := Text(buildDOCX(t, doc), KindDOCX)
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	want := "Jane Doe\nSenior Engineer\nGo\tKubernetes"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDOCXWithoutDocumentPart(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.Create("other.xml")
	zw.Close()

	if _, err := Text(buf.Bytes(), KindDOCX); err == nil {
		t.Fatal("expected an error for a zip without word/document.xml")
	}
}

func TestMalformedPDF(t *testing.T) {
	if _, err := Text([]byte("not a pdf at all"), KindPDF); err == nil {
		t.Fatal("expected an error for a malformed pdf")
	}
}

func TestFromFileHeader(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="resume"; filename="resume.txt"`)
	h.Set("Content-Type", "text/plain")
	part, _ := mw.CreatePart(h)
	part.Write([]byte("Ten years of backend development in Go."))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if err := req.ParseMultipartForm(MaxFileSize); err != nil {
		t.Fatal(err)
	}

	got, err := FromFileHeader(req.MultipartForm.File["resume"][0])
	if err != nil {
		t.Fatalf("FromFileHeader: %v", err)
	}
	if got != "Ten years of backend development in Go." {
		t.Errorf("text = %q", got)
	}
}

func TestFromFileHeaderTooLarge(t *testing.T) {
	fh := &multipart.FileHeader{Filename: "big.txt", Size: MaxFileSize + 1}
	if _, err := FromFileHeader(fh); !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("err = %v, want ErrFileTooLarge", err)
	}
}
