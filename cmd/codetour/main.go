package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/avelez/codetour/internal/github"
	"github.com/avelez/codetour/internal/llm"
	"github.com/avelez/codetour/internal/logging"
	"github.com/avelez/codetour/internal/scheduler"
	"github.com/avelez/codetour/internal/server"
	"github.com/avelez/codetour/internal/store"
	"github.com/avelez/codetour/internal/tutorial"
	"github.com/avelez/codetour/internal/validation"
	"github.com/avelez/codetour/pkg/mcp"
	"github.com/avelez/codetour/pkg/schema"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "generate":
		err = runGenerate(os.Args[2:])
	case "mcp":
		err = runMCP(os.Args[2:])
	case "version":
		printVersion()
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: codetour <command>

commands:
  serve     start the HTTP API server
  generate  generate a tutorial for one repository
  mcp       serve MCP tools over stdio
  version   print the version`)
}

// deps holds the wired application components shared by all commands.
type deps struct {
	cfg    Config
	logger *slog.Logger
	store  *store.LibSQLStore
	runner *tutorial.Runner
}

func wire(ctx context.Context, cfg Config) (*deps, error) {
	logger := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	// Startup maintenance: evict cache entries unused past the TTL.
	if cfg.CacheTTLDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -cfg.CacheTTLDays)
		if n, err := st.PurgeCache(ctx, cutoff); err != nil {
			logger.Warn("cache purge failed", slog.String("error", err.Error()))
		} else if n > 0 {
			logger.Info("purged stale cache entries", slog.Int64("count", n))
			if err := st.Vacuum(ctx); err != nil {
				logger.Warn("vacuum failed", slog.String("error", err.Error()))
			}
		}
	}

	chat, err := llm.NewChatModel(ctx, llm.ModelConfig{
		Provider: cfg.LLMProvider,
		Model:    cfg.LLMModel,
		APIKey:   cfg.LLMAPIKey,
		BaseURL:  cfg.LLMBaseURL,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("build chat model: %w", err)
	}

	gh := github.NewClient(github.Config{
		Token:   cfg.GitHubToken,
		BaseURL: cfg.GitHubBaseURL,
	}, logger)

	runner := tutorial.NewRunner(tutorial.RunnerConfig{
		GitHub:    gh,
		Generator: llm.NewCachingGenerator(chat, st, cfg.LLMModel, logger),
		Store:     st,
		OutputDir: cfg.OutputDir,
		UseCache:  cfg.UseCache,
		Logger:    logger,
	})

	return &deps{cfg: cfg, logger: logger, store: st, runner: runner}, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	listenAddr := fs.String("listen", "", "listen address (overrides config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := loadConfig()
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := wire(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.store.Close()

	validator, err := validation.NewJSONSchemaValidator()
	if err != nil {
		return fmt.Errorf("build validator: %w", err)
	}

	api := server.NewServer(server.Deps{
		Store:     d.store,
		Runner:    d.runner,
		Validator: validator,
		Logger:    d.logger,
	})

	if cfg.Scheduler {
		sched := scheduler.NewScheduler(d.store, d.runner, d.logger)
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer sched.Stop()
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		d.logger.Info("http server listening", slog.String("addr", cfg.ListenAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		d.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

func runGenerate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	repoURL := fs.String("repo", "", "GitHub repository URL (required)")
	language := fs.String("language", "", "tutorial language")
	outputDir := fs.String("output", "", "output directory (overrides config)")
	maxSize := fs.Int64("max-file-size", 0, "per-file size limit in bytes")
	var include, exclude stringsFlag
	fs.Var(&include, "include", "include glob pattern (repeatable)")
	fs.Var(&exclude, "exclude", "exclude glob pattern (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *repoURL == "" {
		return fmt.Errorf("-repo is required")
	}

	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := wire(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.store.Close()

	validator, err := validation.NewJSONSchemaValidator()
	if err != nil {
		return fmt.Errorf("build validator: %w", err)
	}

	req := &schema.TutorialRequest{
		RepoURL:         *repoURL,
		Language:        *language,
		IncludePatterns: include,
		ExcludePatterns: exclude,
		MaxFileSize:     *maxSize,
		OutputDir:       *outputDir,
	}
	if err := validator.ValidateRequest(req); err != nil {
		return err
	}

	tut, runID, err := d.runner.Run(ctx, req)
	if err != nil {
		return fmt.Errorf("run %s: %w", runID, err)
	}

	fmt.Printf("tutorial written to %s (%d chapters, run %s)\n",
		tut.OutputDir, len(tut.Chapters), runID)
	return nil
}

func runMCP(args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := wire(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.store.Close()

	mcpSrv := mcp.NewCodetourServer(mcp.CodetourServerDeps{
		Runner: d.runner,
		Store:  d.store,
		Logger: d.logger,
	})
	return mcpSrv.Serve(ctx)
}

// stringsFlag collects repeated flag values.
type stringsFlag []string

func (s *stringsFlag) String() string { return strings.Join(*s, ",") }

func (s *stringsFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}
