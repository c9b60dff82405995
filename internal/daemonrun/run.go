package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/api/option"

	"github.com/iamvazu/SQAN/internal/broker"
	"github.com/iamvazu/SQAN/internal/config"
	"github.com/iamvazu/SQAN/internal/daemon"
	"github.com/iamvazu/SQAN/internal/header"
	"github.com/iamvazu/SQAN/internal/ingest"
	"github.com/iamvazu/SQAN/internal/lock"
	"github.com/iamvazu/SQAN/internal/logging"
	"github.com/iamvazu/SQAN/internal/metrics"
	"github.com/iamvazu/SQAN/internal/notifications"
	"github.com/iamvazu/SQAN/internal/preflight"
	"github.com/iamvazu/SQAN/internal/qc"
	"github.com/iamvazu/SQAN/internal/snapshot"
	"github.com/iamvazu/SQAN/internal/store"
	"github.com/iamvazu/SQAN/internal/storeaccess"
	"github.com/iamvazu/SQAN/internal/upsert"
	"github.com/iamvazu/SQAN/internal/workflow"
)

// Mode selects which halves of the daemon run.
type Mode string

const (
	ModeAll    Mode = "all"
	ModeIngest Mode = "ingest"
	ModeQC     Mode = "qc"
)

func (m Mode) ingest() bool { return m == ModeAll || m == ModeIngest || m == "" }
func (m Mode) qc() bool     { return m == ModeAll || m == ModeQC || m == "" }

// Options configures daemon process runtime behavior.
type Options struct {
	Mode        Mode
	LogLevel    string
	Development bool
}

// Run starts the sqan daemon and blocks until a signal arrives or the ingest
// consumer halts. A halt is returned as an error so the process exits
// non-zero.
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
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("sqan-%s.log", runID))
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update sqan.log link: %v\n", err)
	}
	logConfigSnapshot(logger, cfg, opts.Mode)
	if err := runPreflight(signalCtx, logger, cfg, opts.Mode); err != nil {
		return err
	}

	pidPath := filepath.Join(cfg.Paths.DataDir, "sqan.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	rt, err := Build(signalCtx, cfg, logger, opts.Mode)
	if err != nil {
		logger.Error("daemon wiring failed", logging.Error(err))
		return err
	}
	defer rt.Close()

	if err := rt.Daemon.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	select {
	case <-signalCtx.Done():
		logger.Info("sqan daemon shutting down")
		return nil
	case <-rt.Daemon.Halted():
		return fmt.Errorf("ingest halted: %w", rt.Daemon.Err())
	}
}

// Runtime holds a wired daemon and the resources it owns.
type Runtime struct {
	Daemon   *daemon.Daemon
	Store    store.Store
	Registry *prometheus.Registry
	closers  []func() error
}

// Close stops the daemon and releases every resource in reverse order of
// acquisition.
func (r *Runtime) Close() error {
	var errs []error
	if r.Daemon != nil {
		r.Daemon.Stop()
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *Runtime) onClose(fn func() error) {
	r.closers = append(r.closers, fn)
}

// Build opens the store and broker and wires the components selected by mode.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, mode Mode) (*Runtime, error) {
	rt := &Runtime{Registry: prometheus.NewRegistry()}
	rt.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(rt.Registry)
	notifier := notifications.NewService(cfg)

	s, err := storeaccess.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rt.Store = s
	rt.onClose(s.Close)

	comps := daemon.Components{Notifier: notifier, Gatherer: rt.Registry}
	if mode.ingest() {
		consumer, err := buildIngest(ctx, rt, cfg, s, notifier, m, logger)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		comps.Ingest = consumer
	}
	if mode.qc() {
		manager, err := buildQC(ctx, rt, cfg, s, notifier, m, logger)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		comps.QC = manager
	}

	d, err := daemon.New(cfg, s, logger, comps)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("create daemon: %w", err)
	}
	rt.Daemon = d
	return rt, nil
}

func buildIngest(ctx context.Context, rt *Runtime, cfg *config.Config, s store.Store, notifier notifications.Service, m *metrics.Metrics, logger *slog.Logger) (*ingest.Consumer, error) {
	b, err := broker.Open(ctx, cfg.Broker, logger)
	if err != nil {
		return nil, err
	}
	rt.onClose(b.Close)

	var mirror snapshot.Mirror
	if bucket := strings.TrimSpace(cfg.Snapshot.GCSBucket); bucket != "" {
		gcs, err := snapshot.NewGCSMirror(ctx, bucket, cfg.Snapshot.GCSPrefix, storageOptions(cfg)...)
		if err != nil {
			return nil, fmt.Errorf("open snapshot mirror: %w", err)
		}
		rt.onClose(gcs.Close)
		mirror = gcs
	}

	normalizer, err := header.NewFromConfig(cfg.Header)
	if err != nil {
		return nil, err
	}
	pipeline, err := ingest.NewPipeline(cfg, ingest.Deps{
		Normalizer:    normalizer,
		Upserter:      upsert.New(s, logger),
		Publisher:     b,
		RawWriter:     snapshot.NewDisk(cfg.Paths.RawDir, mirror, logger),
		CleanedWriter: snapshot.NewDisk(cfg.Paths.CleanedDir, nil, logger),
		Notifier:      notifier,
		Metrics:       m,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	return ingest.NewConsumer(b, pipeline, logger), nil
}

func buildQC(ctx context.Context, rt *Runtime, cfg *config.Config, s store.Store, notifier notifications.Service, m *metrics.Metrics, logger *slog.Logger) (*workflow.Manager, error) {
	evaluator, err := qc.NewRuleEvaluator(cfg.QC.Rules)
	if err != nil {
		return nil, err
	}
	opts := []workflow.ManagerOption{
		workflow.WithNotifier(notifier),
		workflow.WithMetrics(m),
	}
	if url := strings.TrimSpace(cfg.Redis.URL); url != "" {
		ttl := time.Duration(cfg.QC.LockTTLSeconds) * time.Second
		locker, err := lock.Open(ctx, url, cfg.QC.LockKey, ttl)
		if err != nil {
			return nil, fmt.Errorf("open qc cycle lock: %w", err)
		}
		rt.onClose(locker.Close)
		opts = append(opts, workflow.WithLocker(locker))
	}
	checker := qc.NewChecker(s, evaluator, logger)
	return workflow.NewManager(cfg, s, checker, logger, opts...), nil
}

func storageOptions(cfg *config.Config) []option.ClientOption {
	if creds := strings.TrimSpace(cfg.Broker.CredentialsJSON); creds != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "sqan.log")
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

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config, mode Mode) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("mode", string(mode)),
		logging.String("store_driver", cfg.Store.Driver),
		logging.String("project_id", cfg.Broker.ProjectID),
		logging.Bool("pubsub_emulator", strings.TrimSpace(cfg.Broker.EmulatorHost) != ""),
		logging.String("incoming_subscription", cfg.Broker.IncomingSubscription),
		logging.Bool("gcs_mirror", strings.TrimSpace(cfg.Snapshot.GCSBucket) != ""),
		logging.Bool("redis_lock", strings.TrimSpace(cfg.Redis.URL) != ""),
		logging.Int("qc_rules", len(cfg.QC.Rules)),
		logging.Bool("ntfy_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	)
}

func runPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config, mode Mode) error {
	results := preflight.RunAll(ctx, cfg, preflight.Options{Ingest: mode.ingest(), QC: mode.qc()})
	for _, r := range results {
		if r.Passed {
			logger.Debug("preflight check passed", logging.String("check", r.Name), logging.String("detail", r.Detail))
			continue
		}
		logging.ErrorWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "run `sqan preflight` and fix the reported settings"),
		)
	}
	failed := preflight.Failed(results)
	if len(failed) == 0 {
		return nil
	}
	names := make([]string, 0, len(failed))
	for _, r := range failed {
		names = append(names, r.Name)
	}
	return fmt.Errorf("preflight failed: %s", strings.Join(names, ", "))
}
