package uploads

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/storefront-ai/assistant-hub/internal/config"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func fileHeader(t *testing.T, name string, data []byte) *multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err = part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err = writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if err = req.ParseMultipartForm(1 << 20); err != nil {
		t.Fatalf("parse form: %v", err)
	}
	return req.MultipartForm.File["file"][0]
}

func TestSaveImage_StoresUnderUUIDName(t *testing.T) {
	dir := t.TempDir()
	store := New(config.UploadsConfig{Dir: dir, PublicBaseURL: "https://cdn.example.com/", MaxImageBytes: 1024})

	saved, err := store.SaveImage(fileHeader(t, "avatar.jpg", pngHeader))
	if err != nil {
		t.Fatalf("save image: %v", err)
	}
	if !strings.HasSuffix(saved.Name, ".png") || saved.MimeType != "image/png" {
		t.Fatalf("expected sniffed png, got %+v", saved)
	}
	if saved.URL != "https://cdn.example.com/uploads/"+saved.Name {
		t.Fatalf("unexpected url %q", saved.URL)
	}
	if _, errStat := os.Stat(filepath.Join(dir, saved.Name)); errStat != nil {
		t.Fatalf("expected stored file: %v", errStat)
	}
}

func TestSaveImage_Rejects(t *testing.T) {
	store := New(config.UploadsConfig{Dir: t.TempDir(), MaxImageBytes: 64})

	if _, err := store.SaveImage(fileHeader(t, "notes.png", []byte("plain text pretending"))); !errors.Is(err, ErrNotImage) {
		t.Fatalf("expected ErrNotImage, got %v", err)
	}
	big := append(append([]byte{}, pngHeader...), make([]byte, 64)...)
	if _, err := store.SaveImage(fileHeader(t, "big.png", big)); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestSaveTemp_KeepsExtension(t *testing.T) {
	path, err := SaveTemp(fileHeader(t, "orders.csv", []byte("sku,qty\n")), 1024)
	if err != nil {
		t.Fatalf("save temp: %v", err)
	}
	defer func() { _ = os.Remove(path) }()
	if filepath.Ext(path) != ".csv" {
		t.Fatalf("expected .csv temp file, got %q", path)
	}

	if _, err = SaveTemp(fileHeader(t, "orders.csv", make([]byte, 32)), 16); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}
