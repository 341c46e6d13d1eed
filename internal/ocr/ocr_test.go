package ocr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/readaloud-tools/readaloud/internal/config"
)

func TestReadImage(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "  The extracted text.  "}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	imgPath := filepath.Join(t.TempDir(), "page.png")
	if err := os.WriteFile(imgPath, []byte("not-really-png"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}

	api := config.APIConfig{BaseURL: server.URL, Key: "sk-test", TimeoutMS: 5000}
	reader := NewVisionReader(api, config.Default().OCR)

	text, err := reader.ReadImage(context.Background(), imgPath)
	if err != nil {
		t.Fatalf("read image: %v", err)
	}
	if text != "The extracted text." {
		t.Fatalf("expected trimmed content, got %q", text)
	}

	if body["model"] != config.Default().OCR.Model {
		t.Fatalf("unexpected model in request: %v", body["model"])
	}
	raw, _ := json.Marshal(body)
	if !strings.Contains(string(raw), "data:image/png;base64,") {
		t.Fatal("request should embed the image as a base64 data URL")
	}
}

func TestReadImageUnsupportedType(t *testing.T) {
	api := config.APIConfig{BaseURL: "http://unused", Key: "k", TimeoutMS: 1000}
	reader := NewVisionReader(api, config.Default().OCR)

	path := filepath.Join(t.TempDir(), "doc.bmp")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := reader.ReadImage(context.Background(), path); err == nil {
		t.Fatal("expected error for unsupported image type")
	}
}

func TestReadImageAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	imgPath := filepath.Join(t.TempDir(), "page.jpg")
	if err := os.WriteFile(imgPath, []byte("x"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	api := config.APIConfig{BaseURL: server.URL, Key: "k", TimeoutMS: 5000}
	reader := NewVisionReader(api, config.Default().OCR)
	if _, err := reader.ReadImage(context.Background(), imgPath); err == nil {
		t.Fatal("expected error for non-2xx status")
	}
}
