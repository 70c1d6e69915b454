package routes

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/gin-gonic/gin"
)

type uploadPart struct {
	filename    string
	contentType string
	data        []byte
}

func multipartContext(t *testing.T, parts []uploadPart) (*gin.Context, []*multipart.FileHeader) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, p.filename))
		h.Set("Content-Type", p.contentType)
		pw, err := w.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := pw.Write(p.data); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	req := httptest.NewRequest(http.MethodPost, "/chatbots", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	c.Request = req
	if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
		t.Fatalf("failed to parse multipart form: %v", err)
	}
	return c, c.Request.MultipartForm.File["files"]
}

func TestSaveUploadsFiltersFiles(t *testing.T) {
	photo := []byte("png bytes")
	c, files := multipartContext(t, []uploadPart{
		{filename: "notes.txt", contentType: "text/plain", data: []byte("hello")},
		{filename: "photo.png", contentType: "image/png", data: photo},
		{filename: "fake.png", contentType: "text/plain", data: []byte("not a picture")},
		{filename: "tool.exe", contentType: "application/octet-stream", data: []byte("MZ")},
		{filename: `..\evil.txt`, contentType: "text/plain", data: []byte("x")},
		{filename: "big.txt", contentType: "text/plain", data: bytes.Repeat([]byte("a"), 100)},
	})

	dir := t.TempDir()
	supported := map[string]bool{".txt": true}
	saved, rejected, totalBytes := saveUploads(c, files, dir, 64, supported)

	if want := []string{"notes.txt", "photo.png"}; !reflect.DeepEqual(saved, want) {
		t.Errorf("saved = %v, want %v", saved, want)
	}
	if want := []string{"fake.png", "tool.exe", `..\evil.txt`, "big.txt"}; !reflect.DeepEqual(rejected, want) {
		t.Errorf("rejected = %v, want %v", rejected, want)
	}
	if want := int64(len("hello") + len(photo)); totalBytes != want {
		t.Errorf("totalBytes = %d, want %d", totalBytes, want)
	}

	for _, name := range saved {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("saved file %s missing on disk: %v", name, err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != len(saved) {
		t.Errorf("upload dir holds %d files, want %d", len(entries), len(saved))
	}
}
