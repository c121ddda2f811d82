package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	// Create a temporary config file
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = os.Remove(tmpfile.Name())
	}()

	content := `
archive:
  endpoint: "https://s3.us.archive.org"
  collection: "test-collection"

upload:
  max_file_size_mb: 100
  retries: 3
  rate_limit_seconds: 1

paths:
  work_dir: "/tmp/arcup"
  ledger_file: "uploads.log"

publish:
  pages_branch: "pages"
`

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Verify loaded values
	if cfg.Archive.Collection != "test-collection" {
		t.Errorf("expected collection test-collection, got %s", cfg.Archive.Collection)
	}
	if cfg.Upload.MaxFileSizeMB != 100 {
		t.Errorf("expected max_file_size_mb 100, got %d", cfg.Upload.MaxFileSizeMB)
	}
	if cfg.Upload.Retries != 3 {
		t.Errorf("expected retries 3, got %d", cfg.Upload.Retries)
	}
	if cfg.Publish.PagesBranch != "pages" {
		t.Errorf("expected pages_branch pages, got %s", cfg.Publish.PagesBranch)
	}

	// Verify defaults filled in for omitted fields
	if cfg.Archive.DownloadBase != "https://archive.org/download" {
		t.Errorf("expected default download_base, got %s", cfg.Archive.DownloadBase)
	}
	if cfg.Upload.BackoffSeconds != 5 {
		t.Errorf("expected default backoff 5, got %d", cfg.Upload.BackoffSeconds)
	}
	if cfg.Publish.Remote != "origin" {
		t.Errorf("expected default remote origin, got %s", cfg.Publish.Remote)
	}

	// Verify derived paths resolve against work_dir
	want := filepath.Join("/tmp/arcup", "uploads.log")
	if cfg.LedgerPath() != want {
		t.Errorf("expected ledger path %s, got %s", want, cfg.LedgerPath())
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("ARCUP_TEST_DIR", "/srv/archive")

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	content := []byte("paths:\n  work_dir: \"${ARCUP_TEST_DIR}\"\n")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Paths.WorkDir != "/srv/archive" {
		t.Errorf("expected expanded work_dir /srv/archive, got %s", cfg.Paths.WorkDir)
	}
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(c *Config) {}, wantErr: false},
		{name: "negative retries", mutate: func(c *Config) { c.Upload.Retries = -1 }, wantErr: true},
		{name: "negative size ceiling", mutate: func(c *Config) { c.Upload.MaxFileSizeMB = -5 }, wantErr: true},
		{name: "negative rate limit", mutate: func(c *Config) { c.Upload.RateLimitSeconds = -1 }, wantErr: true},
		{name: "zero speed", mutate: func(c *Config) { c.Upload.SpeedMBps = -1 }, wantErr: true},
		{name: "missing endpoint", mutate: func(c *Config) { c.Archive.Endpoint = "" }, wantErr: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}
