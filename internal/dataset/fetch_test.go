package dataset

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFetcherDownloads(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleRows))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "data", "adult.data")
	f := NewFetcher(srv.URL, 5*time.Second)
	if err := f.Ensure(context.Background(), path); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(data) != sampleRows {
		t.Error("downloaded content mismatch")
	}
}

func TestFetcherSkipsExisting(t *testing.T) {
	t.Parallel()

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte("remote"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "adult.data")
	if err := os.WriteFile(path, []byte("local"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	f := NewFetcher(srv.URL, 5*time.Second)
	if err := f.Ensure(context.Background(), path); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if calls != 0 {
		t.Errorf("server hit %d times, want 0 for cached file", calls)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "local" {
		t.Error("cached file was overwritten")
	}
}

func TestFetcherBadStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, 5*time.Second)
	err := f.Ensure(context.Background(), filepath.Join(t.TempDir(), "adult.data"))
	if err == nil {
		t.Error("expected error for 404 response")
	}
}
