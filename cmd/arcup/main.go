package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/schaermu/arcup/internal/archive"
	"github.com/schaermu/arcup/internal/config"
	"github.com/schaermu/arcup/internal/git"
	"github.com/schaermu/arcup/internal/ledger"
	"github.com/schaermu/arcup/internal/publish"
	"github.com/schaermu/arcup/internal/scan"
	"github.com/schaermu/arcup/internal/site"
	"github.com/schaermu/arcup/internal/upload"
	"github.com/schaermu/arcup/internal/workflow"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string
)

func main() {
	if err := fang.Execute(context.Background(), rootCmd); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "arcup",
	Short: "Upload directory trees to the archive and publish a browsable index",
	Long: `arcup uploads a local directory tree to the archive.org content archive,
deduplicating files by content hash across runs through an append-only ledger.

After uploading, it renders the ledger as a static HTML listing and can push
it to a GitHub Pages branch. An interrupted publish is detected on the next
run and offered for retry.`,
	SilenceUsage: true,
}

var uploadCmd = &cobra.Command{
	Use:   "upload [path]",
	Short: "Scan a directory and upload its new files to the archive",
	Long: `Upload walks the given directory (prompting for one when omitted), skips
files already recorded in the ledger or above the size ceiling, and uploads
the rest sequentially with rate limiting and bounded retries.

Each successful upload is appended to the ledger before the next file
starts, so an interrupted run resumes exactly where it stopped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runUpload,
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Regenerate the HTML listing and feed from the ledger",
	RunE:  runRender,
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Push the rendered listing to the GitHub Pages branch",
	Long: `Publish commits and pushes the rendered index and feed. It is the manual
retry path for a publish that failed or was declined during an upload run;
the pending-publish sentinel tracks whether one is outstanding.`,
	RunE: runPublish,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("arcup %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/arcup/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	// Add commands
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(versionCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger().With("run_id", uuid.NewString())

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	sourceDir := ""
	if len(args) == 1 {
		sourceDir = args[0]
	}

	wf, err := buildWorkflow(cfg, logger)
	if err != nil {
		return err
	}

	if err := wf.Run(ctx, sourceDir); err != nil {
		if ctx.Err() != nil {
			logger.Warn("run interrupted", "error", err)
			return err
		}
		logger.Error("upload run failed", "error", err)
		return err
	}
	return nil
}

func runRender(cmd *cobra.Command, args []string) error {
	_, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger().With("run_id", uuid.NewString())

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	uploads := ledger.New(cfg.LedgerPath())
	store := publish.NewFileStore(cfg.PendingFlagPath())
	builder := site.NewBuilder(cfg.Archive.DownloadBase, cfg.SitePath(), cfg.FeedPath(), store, logger)

	entries, err := uploads.Entries()
	if err != nil {
		return err
	}
	rendered, err := builder.Render(entries)
	if err != nil {
		return err
	}
	if !rendered {
		fmt.Println("Ledger is empty, nothing to render.")
		return nil
	}
	fmt.Printf("Rendered %s\n", cfg.SitePath())
	return nil
}

func runPublish(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger().With("run_id", uuid.NewString())

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if _, err := os.Stat(cfg.SitePath()); err != nil {
		return fmt.Errorf("no rendered site at %s, run `arcup render` first", cfg.SitePath())
	}

	wf, err := buildWorkflow(cfg, logger)
	if err != nil {
		return err
	}
	return wf.Publish(ctx)
}

// buildWorkflow wires all collaborators for the interactive workflow
func buildWorkflow(cfg *config.Config, logger *slog.Logger) (*workflow.Workflow, error) {
	prompter := workflow.NewStdioPrompter(os.Stdin, os.Stdout)

	var accessKey, secretKey string
	if cfg.Archive.CredentialFile != "" {
		var err error
		accessKey, secretKey, err = archive.LoadCredentials(cfg.Archive.CredentialFile)
		if err != nil {
			return nil, err
		}
	}
	client := archive.NewS3Client(cfg.Archive.Endpoint, accessKey, secretKey)

	uploads := ledger.New(cfg.LedgerPath())
	failures := ledger.NewFailureLog(cfg.FailureLogPath())
	store := publish.NewFileStore(cfg.PendingFlagPath())

	scanner := scan.NewScanner(cfg.MaxFileBytes(), logger)
	engine := upload.NewEngine(client, uploads, failures, cfg, logger)
	builder := site.NewBuilder(cfg.Archive.DownloadBase, cfg.SitePath(), cfg.FeedPath(), store, logger)

	gitClient := git.NewShellClient(cfg.Paths.WorkDir)
	confirmSwitch := func(current, target string) (bool, error) {
		return prompter.Confirm(fmt.Sprintf("You're on branch %q but publishing needs %q. Switch?", current, target))
	}
	pusher := publish.NewPusher(gitClient, store, cfg.Publish.Remote, cfg.Publish.PagesBranch, cfg.Publish.CommitMessage, confirmSwitch, logger)

	return workflow.New(cfg, scanner, engine, builder, pusher, store, uploads, prompter, os.Stdout, logger), nil
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Create handler based on format
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	// Determine config file path
	configPath := cfgFile
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		configPath = fmt.Sprintf("%s/.config/arcup/config.yaml", home)

		// Run on pure defaults when the default config doesn't exist.
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			logger.Debug("no config file, using defaults")
			return config.Default(), nil
		}
	}

	logger.Info("loading configuration", "path", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"endpoint", cfg.Archive.Endpoint,
		"collection", cfg.Archive.Collection,
		"work_dir", cfg.Paths.WorkDir)

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
