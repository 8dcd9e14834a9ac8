package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"dossier/internal/answer"
	"dossier/internal/api"
	"dossier/internal/config"
	"dossier/internal/logging"
	"dossier/internal/pipeline"
	"dossier/internal/profile"
	"dossier/internal/store"
)

const defaultSweepInterval = time.Hour

// ProfileService is the pipeline surface the server exposes.
type ProfileService interface {
	Search(ctx context.Context, req pipeline.Request) (pipeline.Response, error)
	Candidates(ctx context.Context, q profile.Query, reference []byte) ([]profile.Candidate, error)
	Profile(ctx context.Context, key profile.CacheKey) (*profile.Profile, bool)
}

// AnswerService is the question answering surface over stored profiles.
type AnswerService interface {
	Generate(ctx context.Context, ref string, regenerate bool) (answer.Result, error)
	Stored(ctx context.Context, ref string) (answer.Result, error)
	FollowUp(ctx context.Context, ref, question string) (answer.FollowUp, error)
	Chat(ctx context.Context, ref, chatID, message string) (answer.ChatReply, error)
}

// Daemon owns the server lifecycle and enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.Store
	service ProfileService
	loader  api.ImageLoader
	answers AnswerService

	lockPath string
	lock     *flock.Flock

	api           *apiServer
	sweepInterval time.Duration

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Address      string
	DatabasePath string
	LockFilePath string
	Profiles     int
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithImageLoader lets requests name their reference photo by URL.
func WithImageLoader(loader api.ImageLoader) Option {
	return func(d *Daemon) { d.loader = loader }
}

// WithAnswers exposes answer, follow-up, and chat endpoints.
func WithAnswers(answers AnswerService) Option {
	return func(d *Daemon) { d.answers = answers }
}

// WithSweepInterval overrides how often the retention sweep runs.
func WithSweepInterval(interval time.Duration) Option {
	return func(d *Daemon) {
		if interval > 0 {
			d.sweepInterval = interval
		}
	}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, profiles *store.Store, service ProfileService, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || profiles == nil || service == nil {
		return nil, errors.New("daemon requires config, store, and profile service")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "dossier.lock")
	d := &Daemon{
		cfg:           cfg,
		logger:        logger,
		store:         profiles,
		service:       service,
		lockPath:      lockPath,
		lock:          flock.New(lockPath),
		sweepInterval: defaultSweepInterval,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, opens the API listener, and schedules the
// retention sweep.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another dossier server is already running on this data directory")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	d.cancel = cancel

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.retentionLoop(runCtx)
	}()

	d.running.Store(true)
	d.logger.Info("dossier server started",
		logging.String("lock", d.lockPath),
		logging.String("address", d.api.address()),
	)
	return nil
}

// Stop shuts the API down, waits for the sweep, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("dossier server stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	count, _ := d.store.Count(ctx)
	return Status{
		Running:      d.running.Load(),
		Address:      d.api.address(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		Profiles:     count,
	}
}

// Sweep runs one retention pass.
func (d *Daemon) Sweep(ctx context.Context) (api.PruneResult, error) {
	req := api.PruneRequest{
		Store:     d.store,
		OlderThan: d.cfg.Retention(),
		Logger:    d.logger,
	}
	if d.cfg.AssetStorage.Backend == config.BackendFilesystem {
		req.AssetDir = d.cfg.Paths.AssetDir
	}
	return api.PruneProfiles(ctx, req)
}

func (d *Daemon) retentionLoop(ctx context.Context) {
	ticker := time.NewTicker(d.sweepInterval)
	defer ticker.Stop()
	for {
		d.sweepOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *Daemon) sweepOnce(ctx context.Context) {
	result, err := d.Sweep(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logging.WarnWithContext(d.logger, "retention sweep failed", "retention_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the profile database with dossier doctor"),
			logging.String(logging.FieldImpact, "expired profiles kept until the next sweep"),
		)
		return
	}
	if result.Profiles > 0 || len(result.Orphaned.Removed) > 0 || len(result.Temp.Removed) > 0 {
		d.logger.Info("retention sweep completed",
			logging.String(logging.FieldEventType, "retention_sweep"),
			logging.Int64("profiles_removed", result.Profiles),
			logging.Int("assets_removed", len(result.Orphaned.Removed)),
			logging.Int("temp_removed", len(result.Temp.Removed)),
		)
	}
}
