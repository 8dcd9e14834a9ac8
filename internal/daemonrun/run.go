package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"dossier/internal/answer"
	"dossier/internal/assets"
	"dossier/internal/config"
	"dossier/internal/daemon"
	"dossier/internal/logging"
	"dossier/internal/pipeline"
	"dossier/internal/store"
)

// Options configures server process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// SweepInterval overrides the retention sweep period.
	SweepInterval time.Duration
}

// Run starts the dossier server and blocks until the context is cancelled or
// the process receives SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("dossier-%s.log", runID))
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logProviderSnapshot(logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update dossier.log link: %v\n", err)
	}
	pidPath := filepath.Join(cfg.Paths.DataDir, "dossier.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	profiles, err := store.Open(cfg)
	if err != nil {
		logger.Error("open profile store", logging.Error(err))
		return err
	}

	service, err := pipeline.FromConfig(cfg, profiles, logger)
	if err != nil {
		_ = profiles.Close()
		return fmt.Errorf("build pipeline: %w", err)
	}

	answers, err := answer.FromConfig(cfg, profiles, logger)
	if err != nil {
		_ = profiles.Close()
		return fmt.Errorf("build answer service: %w", err)
	}

	referenceLoader := assets.NewFetcher(cfg.AssetFetchTimeout(),
		assets.WithRetry(cfg.Pipeline.AssetAttempts, cfg.AssetBackoff()),
	)
	d, err := daemon.New(cfg, profiles, service, logger,
		daemon.WithImageLoader(referenceLoader),
		daemon.WithSweepInterval(opts.SweepInterval),
		daemon.WithAnswers(answers),
	)
	if err != nil {
		_ = profiles.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "server start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.api_bind and that no other server uses this data directory"),
			logging.String(logging.FieldImpact, "no requests will be served"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("dossier server shutting down")
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "dossier-current.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logProviderSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("provider snapshot",
		logging.String(logging.FieldEventType, "provider_snapshot"),
		logging.Bool("llm_key_present", strings.TrimSpace(cfg.LLM.APIKey) != ""),
		logging.String("llm_model", strings.TrimSpace(cfg.LLM.Model)),
		logging.Bool("people_data_key_present", strings.TrimSpace(cfg.PeopleData.APIKey) != ""),
		logging.Bool("serpapi_key_present", strings.TrimSpace(cfg.SerpAPI.APIKey) != ""),
		logging.Bool("google_images_configured", strings.TrimSpace(cfg.GoogleImages.APIKey) != "" && strings.TrimSpace(cfg.GoogleImages.SearchEngineID) != ""),
		logging.Bool("apify_token_present", strings.TrimSpace(cfg.Apify.APIToken) != ""),
		logging.Bool("similarity_configured", strings.TrimSpace(cfg.Similarity.BaseURL) != ""),
		logging.Bool("news_enabled", cfg.News.Enabled),
		logging.Bool("page_meta_enabled", cfg.PageMeta.Enabled),
		logging.String("asset_backend", cfg.AssetStorage.Backend),
	)
}
