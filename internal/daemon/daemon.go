package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/iamvazu/SQAN/internal/config"
	"github.com/iamvazu/SQAN/internal/logging"
	"github.com/iamvazu/SQAN/internal/notifications"
	"github.com/iamvazu/SQAN/internal/store"
	"github.com/iamvazu/SQAN/internal/workflow"
)

// Ingester consumes broker messages until ctx ends or a fatal error halts it.
type Ingester interface {
	Run(ctx context.Context) error
}

// QCEngine is the background QC batch loop.
type QCEngine interface {
	Start(ctx context.Context) error
	Stop()
	Status(ctx context.Context) workflow.StatusSummary
}

// Components selects what the daemon runs. Either of Ingest and QC may be
// nil to run only the other half.
type Components struct {
	Ingest   Ingester
	QC       QCEngine
	Notifier notifications.Service
	Gatherer prometheus.Gatherer
}

// Daemon runs the ingest consumer and the QC engine and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    store.Store
	ingest   Ingester
	qc       QCEngine
	notifier notifications.Service
	gatherer prometheus.Gatherer
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedAt time.Time

	mu        sync.Mutex
	ingesting bool
	ingestErr error
	halted    chan struct{}
}

// IngestStatus reports the consumer state.
type IngestStatus struct {
	Enabled   bool   `json:"enabled"`
	Running   bool   `json:"running"`
	Halted    bool   `json:"halted"`
	LastError string `json:"last_error,omitempty"`
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool                    `json:"running"`
	PID          int                     `json:"pid"`
	StartedAt    *time.Time              `json:"started_at,omitempty"`
	LockFilePath string                  `json:"lock_file"`
	StoreDriver  string                  `json:"store_driver"`
	Ingest       IngestStatus            `json:"ingest"`
	QC           *workflow.StatusSummary `json:"qc,omitempty"`
	Components   []ComponentHealth       `json:"components"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, s store.Store, logger *slog.Logger, comps Components) (*Daemon, error) {
	if cfg == nil || s == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if comps.Ingest == nil && comps.QC == nil {
		return nil, errors.New("daemon requires an ingest consumer or a qc engine")
	}
	if comps.Notifier == nil {
		comps.Notifier = notifications.NewService(cfg)
	}
	if comps.Gatherer == nil {
		comps.Gatherer = prometheus.DefaultGatherer
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    s,
		ingest:   comps.Ingest,
		qc:       comps.QC,
		notifier: comps.Notifier,
		gatherer: comps.Gatherer,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		halted:   make(chan struct{}),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, then launches the API server, the QC
// engine and the ingest consumer.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := os.MkdirAll(d.cfg.Paths.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another sqan daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	if d.qc != nil {
		if err := d.qc.Start(runCtx); err != nil {
			cancel()
			d.api.stop()
			_ = d.lock.Unlock()
			return fmt.Errorf("start qc engine: %w", err)
		}
	}

	d.cancel = cancel
	d.startedAt = time.Now().UTC()
	d.running.Store(true)
	if d.ingest != nil {
		d.mu.Lock()
		d.ingesting = true
		d.mu.Unlock()
		d.wg.Add(1)
		go d.runIngest(runCtx)
	}

	d.logger.Info("sqan daemon started",
		logging.String("lock", d.lockPath),
		logging.Bool("ingest", d.ingest != nil),
		logging.Bool("qc", d.qc != nil),
	)
	return nil
}

func (d *Daemon) runIngest(ctx context.Context) {
	defer d.wg.Done()
	err := d.ingest.Run(ctx)

	d.mu.Lock()
	d.ingesting = false
	if err != nil && !errors.Is(err, context.Canceled) {
		d.ingestErr = err
	}
	halted := d.ingestErr != nil
	d.mu.Unlock()

	if halted {
		logging.ErrorWithContext(d.logger, "ingest consumer halted", "ingest_halted",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "resolve the cause, then restart the daemon"),
		)
		close(d.halted)
	}
}

// Halted is closed when the ingest consumer stops on a fatal error.
func (d *Daemon) Halted() <-chan struct{} {
	return d.halted
}

// Err returns the fatal ingest error, if any.
func (d *Daemon) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ingestErr
}

// Stop stops background processing and releases the daemon lock. An
// in-flight message is allowed to finish.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if d.qc != nil {
		d.qc.Stop()
	}
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("sqan daemon stopped")
}

// APIAddr returns the HTTP listener address, or "" when the server is
// disabled or not started.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}

// Close stops the daemon and releases the store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// TestNotification sends a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockFilePath: d.lockPath,
		StoreDriver:  d.cfg.Store.Driver,
	}
	if status.Running {
		started := d.startedAt
		status.StartedAt = &started
	}

	d.mu.Lock()
	status.Ingest = IngestStatus{
		Enabled: d.ingest != nil,
		Running: d.ingesting,
		Halted:  d.ingestErr != nil,
	}
	if d.ingestErr != nil {
		status.Ingest.LastError = d.ingestErr.Error()
	}
	d.mu.Unlock()

	if d.qc != nil {
		summary := d.qc.Status(ctx)
		status.QC = &summary
	}
	status.Components = d.health(ctx, status)
	return status
}

func (d *Daemon) health(ctx context.Context, status Status) []ComponentHealth {
	components := make([]ComponentHealth, 0, 3)
	if _, err := d.store.CountPendingImages(ctx); err != nil {
		components = append(components, UnhealthyComponent("store", err.Error()))
	} else {
		components = append(components, HealthyComponent("store"))
	}
	if status.Ingest.Enabled {
		switch {
		case status.Ingest.Halted:
			components = append(components, UnhealthyComponent("ingest", status.Ingest.LastError))
		case !status.Ingest.Running:
			components = append(components, UnhealthyComponent("ingest", "consumer not running"))
		default:
			components = append(components, HealthyComponent("ingest"))
		}
	}
	if status.QC != nil {
		if status.QC.Running {
			components = append(components, HealthyComponent("qc"))
		} else {
			components = append(components, UnhealthyComponent("qc", "engine not running"))
		}
	}
	return components
}
