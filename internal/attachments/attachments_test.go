package attachments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modmailhq/go-modmail-backend/internal/transport"
)

func newSource(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSave_WritesFileAndBuildsURL(t *testing.T) {
	src := newSource(t, http.StatusOK, "image-bytes")
	dir := t.TempDir()
	store := &DiskStore{BaseDir: dir, BaseURL: "http://files.local"}

	saved, err := store.Save(context.Background(), transport.Attachment{
		Name: "shot.png",
		URL:  src.URL + "/shot.png",
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(saved.URL, "http://files.local/") || !strings.HasSuffix(saved.URL, "/shot.png") {
		t.Fatalf("unexpected url: %q", saved.URL)
	}

	// The file lands under BaseDir/<id>/<name>.
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one id dir: %v err=%v", entries, err)
	}
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name(), "shot.png"))
	if err != nil || string(data) != "image-bytes" {
		t.Fatalf("file content wrong: %q err=%v", data, err)
	}
}

func TestSave_SanitizesName(t *testing.T) {
	src := newSource(t, http.StatusOK, "x")
	store := &DiskStore{BaseDir: t.TempDir(), BaseURL: "http://files.local"}

	saved, err := store.Save(context.Background(), transport.Attachment{
		Name: "../../etc/passwd",
		URL:  src.URL,
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if strings.Contains(saved.URL, "..") {
		t.Fatalf("path traversal leaked into url: %q", saved.URL)
	}
	if !strings.HasSuffix(saved.URL, "/passwd") {
		t.Fatalf("base name should survive: %q", saved.URL)
	}
}

func TestSave_FetchFailure(t *testing.T) {
	src := newSource(t, http.StatusNotFound, "gone")
	store := &DiskStore{BaseDir: t.TempDir(), BaseURL: "http://files.local"}

	if _, err := store.Save(context.Background(), transport.Attachment{Name: "a", URL: src.URL}); err == nil {
		t.Fatalf("non-200 fetch should fail")
	}
}

func TestTransportFile(t *testing.T) {
	src := newSource(t, http.StatusOK, "payload")
	store := &DiskStore{BaseDir: t.TempDir(), BaseURL: "http://files.local"}

	f, err := store.TransportFile(context.Background(), transport.Attachment{Name: "doc.txt", URL: src.URL})
	if err != nil {
		t.Fatalf("transport file: %v", err)
	}
	if f.Name != "doc.txt" || string(f.Data) != "payload" {
		t.Fatalf("file wrong: %+v", f)
	}
}

func TestTransportFile_DefaultName(t *testing.T) {
	src := newSource(t, http.StatusOK, "x")
	store := &DiskStore{BaseDir: t.TempDir(), BaseURL: "http://files.local"}

	f, err := store.TransportFile(context.Background(), transport.Attachment{URL: src.URL})
	if err != nil {
		t.Fatalf("transport file: %v", err)
	}
	if f.Name != "attachment" {
		t.Fatalf("expected fallback name, got %q", f.Name)
	}
}
