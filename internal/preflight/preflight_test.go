package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"lectern/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckDirectoryAccess("test", f); result.Passed {
		t.Fatal("expected failure for file path")
	}
	if result := CheckDirectoryAccess("test", ""); result.Passed {
		t.Fatal("expected failure for blank path")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if result := CheckFreeSpace("space", dir, 1); !result.Passed {
		t.Fatalf("expected pass with 1 byte minimum, got: %s", result.Detail)
	}
	if result := CheckFreeSpace("space", dir, 1<<62); result.Passed {
		t.Fatal("expected failure with absurd minimum")
	}
	if result := CheckFreeSpace("space", filepath.Join(dir, "nope"), 1); result.Passed {
		t.Fatal("expected failure for missing path")
	}
}

func TestCheckAPIKey(t *testing.T) {
	if CheckAPIKey("key", " ").Passed {
		t.Fatal("expected blank key to fail")
	}
	if !CheckAPIKey("key", "sk-test").Passed {
		t.Fatal("expected key to pass")
	}
}

func TestCheckEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if result := CheckEndpoint(context.Background(), "api", srv.URL+"/v1/", "good-key"); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	result := CheckEndpoint(context.Background(), "api", srv.URL+"/v1", "bad-key")
	if result.Passed || result.Detail != "auth failed (invalid api key)" {
		t.Fatalf("expected auth failure, got: %+v", result)
	}
	if result := CheckEndpoint(context.Background(), "api", srv.URL, "good-key"); result.Passed {
		t.Fatal("expected failure for wrong path")
	}
	if result := CheckEndpoint(context.Background(), "api", "", "k"); result.Passed {
		t.Fatal("expected failure for missing url")
	}
}

func TestRunAllReportsMissingKeys(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.InputDir = base
	cfg.Paths.OutputDir = base
	cfg.Paths.ScreenshotsDir = base
	cfg.Paths.RAGDir = base
	cfg.Paths.WorkDir = base
	cfg.Transcription.APIKey = ""
	cfg.Embedding.APIKey = ""

	results := RunAll(context.Background(), &cfg)
	failed := Failed(results)
	names := map[string]bool{}
	for _, r := range failed {
		names[r.Name] = true
	}
	if !names["Transcription API key"] || !names["Embedding API key"] {
		t.Fatalf("expected key checks to fail, got %+v", failed)
	}
	for _, r := range results {
		if r.Name == "Input directory" && !r.Passed {
			t.Fatalf("expected input directory to pass: %s", r.Detail)
		}
	}
}
