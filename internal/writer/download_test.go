package writer

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lamim/deckforge/internal/api"
	"github.com/lamim/deckforge/internal/config"
)

func newDownloadClient(t *testing.T, handler http.HandlerFunc) *api.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cfg := config.BackendConfig{
		BaseURL:            server.URL,
		TimeoutSeconds:     5,
		RateLimitPerMinute: 6000,
		BaseRetryDelayMs:   1,
	}
	return api.NewClient(cfg, "", discardLogger())
}

func TestDownloader_Fetch(t *testing.T) {
	payload := bytes.Repeat([]byte("PK"), 4096)
	client := newDownloadClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/download/abc" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Disposition", `attachment; filename="Quarterly Review.pptx"`)
		_, _ = w.Write(payload)
	})

	sm, err := NewSessionManager(t.TempDir(), "", discardLogger())
	if err != nil {
		t.Fatal(err)
	}

	var progress bytes.Buffer
	d := NewDownloader(client, sm, discardLogger(), &progress)
	path, err := d.Fetch(context.Background(), "abc", "abc.pptx")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if path != filepath.Join(sm.RunDir(), "Quarterly Review.pptx") {
		t.Errorf("path = %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("downloaded %d bytes, want %d", len(data), len(payload))
	}
	if _, err := os.Stat(path + ".part"); !os.IsNotExist(err) {
		t.Error("partial file left behind")
	}
}

func TestDownloader_FallbackName(t *testing.T) {
	client := newDownloadClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "%PDF-1.7")
	})
	sm, err := NewSessionManager(t.TempDir(), "", discardLogger())
	if err != nil {
		t.Fatal(err)
	}

	path, err := NewDownloader(client, sm, discardLogger(), nil).Fetch(context.Background(), "c1", "c1.pdf")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if filepath.Base(path) != "c1.pdf" {
		t.Errorf("expected fallback name, got %s", path)
	}
}

func TestDownloader_Error(t *testing.T) {
	client := newDownloadClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"detail":"文件不存在"}`)
	})
	sm, err := NewSessionManager(t.TempDir(), "", discardLogger())
	if err != nil {
		t.Fatal(err)
	}

	_, err = NewDownloader(client, sm, discardLogger(), nil).Fetch(context.Background(), "gone", "gone.pptx")
	if err == nil {
		t.Fatal("expected error")
	}
	if !api.IsNotFound(err) || !strings.Contains(api.Message(err), "文件不存在") {
		t.Errorf("unexpected error: %v", err)
	}

	entries, _ := os.ReadDir(sm.RunDir())
	if len(entries) != 0 {
		t.Errorf("run directory should stay empty, has %d entries", len(entries))
	}
}
