package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete arcup configuration
type Config struct {
	Archive ArchiveConfig `yaml:"archive"`
	Upload  UploadConfig  `yaml:"upload"`
	Paths   PathsConfig   `yaml:"paths"`
	Publish PublishConfig `yaml:"publish"`
}

// ArchiveConfig configures the remote archival service
type ArchiveConfig struct {
	// Endpoint is the S3-compatible upload endpoint of the archival service.
	Endpoint string `yaml:"endpoint"`
	// DownloadBase is the public base URL under which uploaded files are served.
	DownloadBase string `yaml:"download_base"`
	// Collection is the remote collection every item is tagged with.
	Collection string `yaml:"collection"`
	// LicenseURL is attached to every uploaded item as its license metadata.
	LicenseURL string `yaml:"license_url"`
	// CredentialFile points at a file containing "accesskey:secretkey".
	// Empty means unauthenticated uploads (only useful against test endpoints).
	CredentialFile string `yaml:"credential_file"`
}

// UploadConfig configures worklist filtering and upload pacing
type UploadConfig struct {
	// MaxFileSizeMB is the per-file size ceiling; larger files are skipped.
	MaxFileSizeMB int `yaml:"max_file_size_mb"`
	// Retries is the number of additional attempts after the first failed
	// upload of an item. 0 falls back to the default of 2.
	Retries int `yaml:"retries"`
	// RateLimitSeconds is the courtesy delay before every upload attempt.
	RateLimitSeconds int `yaml:"rate_limit_seconds"`
	// BackoffSeconds is the delay between a failed attempt and its retry.
	BackoffSeconds int `yaml:"backoff_seconds"`
	// SpeedMBps is the nominal upload speed used for time estimates.
	SpeedMBps int `yaml:"speed_mbps"`
}

// PathsConfig configures where the ledger and rendered output live.
// All file names are resolved relative to WorkDir.
type PathsConfig struct {
	WorkDir     string `yaml:"work_dir"`
	LedgerFile  string `yaml:"ledger_file"`
	FailureLog  string `yaml:"failure_log"`
	SiteFile    string `yaml:"site_file"`
	FeedFile    string `yaml:"feed_file"`
	PendingFlag string `yaml:"pending_flag"`
}

// PublishConfig configures how the rendered site is pushed
type PublishConfig struct {
	// Remote is the git remote the site is pushed to.
	Remote string `yaml:"remote"`
	// PagesBranch is preferred as the publish branch when it exists locally.
	PagesBranch string `yaml:"pages_branch"`
	// CommitMessage is used for the publish commit.
	CommitMessage string `yaml:"commit_message"`
}

// Default returns a configuration with all defaults applied
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Expand environment variables in string fields
	cfg.expandEnv()

	// Apply defaults
	cfg.applyDefaults()

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Archive.Endpoint = os.ExpandEnv(c.Archive.Endpoint)
	c.Archive.DownloadBase = os.ExpandEnv(c.Archive.DownloadBase)
	c.Archive.Collection = os.ExpandEnv(c.Archive.Collection)
	c.Archive.LicenseURL = os.ExpandEnv(c.Archive.LicenseURL)
	c.Archive.CredentialFile = os.ExpandEnv(c.Archive.CredentialFile)
	c.Paths.WorkDir = os.ExpandEnv(c.Paths.WorkDir)
	c.Paths.LedgerFile = os.ExpandEnv(c.Paths.LedgerFile)
	c.Paths.FailureLog = os.ExpandEnv(c.Paths.FailureLog)
	c.Paths.SiteFile = os.ExpandEnv(c.Paths.SiteFile)
	c.Paths.FeedFile = os.ExpandEnv(c.Paths.FeedFile)
	c.Paths.PendingFlag = os.ExpandEnv(c.Paths.PendingFlag)
	c.Publish.Remote = os.ExpandEnv(c.Publish.Remote)
	c.Publish.PagesBranch = os.ExpandEnv(c.Publish.PagesBranch)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Archive.Endpoint == "" {
		c.Archive.Endpoint = "https://s3.us.archive.org"
	}
	if c.Archive.DownloadBase == "" {
		c.Archive.DownloadBase = "https://archive.org/download"
	}
	if c.Archive.Collection == "" {
		c.Archive.Collection = "opensource"
	}
	if c.Archive.LicenseURL == "" {
		c.Archive.LicenseURL = "http://creativecommons.org/publicdomain/zero/1.0/"
	}
	if c.Upload.MaxFileSizeMB == 0 {
		c.Upload.MaxFileSizeMB = 500
	}
	if c.Upload.Retries == 0 {
		c.Upload.Retries = 2
	}
	if c.Upload.RateLimitSeconds == 0 {
		c.Upload.RateLimitSeconds = 10
	}
	if c.Upload.BackoffSeconds == 0 {
		c.Upload.BackoffSeconds = 5
	}
	if c.Upload.SpeedMBps == 0 {
		c.Upload.SpeedMBps = 5
	}
	if c.Paths.WorkDir == "" {
		c.Paths.WorkDir = "."
	}
	if c.Paths.LedgerFile == "" {
		c.Paths.LedgerFile = "uploaded.log"
	}
	if c.Paths.FailureLog == "" {
		c.Paths.FailureLog = "failed.log"
	}
	if c.Paths.SiteFile == "" {
		c.Paths.SiteFile = "index.html"
	}
	if c.Paths.FeedFile == "" {
		c.Paths.FeedFile = "feed.xml"
	}
	if c.Paths.PendingFlag == "" {
		c.Paths.PendingFlag = ".push_state"
	}
	if c.Publish.Remote == "" {
		c.Publish.Remote = "origin"
	}
	if c.Publish.PagesBranch == "" {
		c.Publish.PagesBranch = "gh-pages"
	}
	if c.Publish.CommitMessage == "" {
		c.Publish.CommitMessage = "Update archive index"
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Archive.Endpoint == "" {
		return fmt.Errorf("archive.endpoint is required")
	}
	if c.Archive.DownloadBase == "" {
		return fmt.Errorf("archive.download_base is required")
	}
	if c.Upload.MaxFileSizeMB < 0 {
		return fmt.Errorf("upload.max_file_size_mb must not be negative: %d", c.Upload.MaxFileSizeMB)
	}
	if c.Upload.Retries < 0 {
		return fmt.Errorf("upload.retries must not be negative: %d", c.Upload.Retries)
	}
	if c.Upload.RateLimitSeconds < 0 {
		return fmt.Errorf("upload.rate_limit_seconds must not be negative: %d", c.Upload.RateLimitSeconds)
	}
	if c.Upload.BackoffSeconds < 0 {
		return fmt.Errorf("upload.backoff_seconds must not be negative: %d", c.Upload.BackoffSeconds)
	}
	if c.Upload.SpeedMBps <= 0 {
		return fmt.Errorf("upload.speed_mbps must be positive: %d", c.Upload.SpeedMBps)
	}
	return nil
}

// LedgerPath returns the path to the append-only upload ledger
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.WorkDir, c.Paths.LedgerFile)
}

// FailureLogPath returns the path to the append-only failure log
func (c *Config) FailureLogPath() string {
	return filepath.Join(c.Paths.WorkDir, c.Paths.FailureLog)
}

// SitePath returns the path to the rendered HTML listing
func (c *Config) SitePath() string {
	return filepath.Join(c.Paths.WorkDir, c.Paths.SiteFile)
}

// FeedPath returns the path to the rendered Atom feed
func (c *Config) FeedPath() string {
	return filepath.Join(c.Paths.WorkDir, c.Paths.FeedFile)
}

// PendingFlagPath returns the path to the pending-publish sentinel file
func (c *Config) PendingFlagPath() string {
	return filepath.Join(c.Paths.WorkDir, c.Paths.PendingFlag)
}

// RateLimit returns the delay enforced before every upload attempt
func (c *Config) RateLimit() time.Duration {
	return time.Duration(c.Upload.RateLimitSeconds) * time.Second
}

// Backoff returns the delay between a failed attempt and its retry
func (c *Config) Backoff() time.Duration {
	return time.Duration(c.Upload.BackoffSeconds) * time.Second
}

// MaxFileBytes returns the size ceiling in bytes
func (c *Config) MaxFileBytes() int64 {
	return int64(c.Upload.MaxFileSizeMB) * 1024 * 1024
}
