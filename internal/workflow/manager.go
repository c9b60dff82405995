package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/iamvazu/SQAN/internal/config"
	"github.com/iamvazu/SQAN/internal/lock"
	"github.com/iamvazu/SQAN/internal/logging"
	"github.com/iamvazu/SQAN/internal/metrics"
	"github.com/iamvazu/SQAN/internal/notifications"
	"github.com/iamvazu/SQAN/internal/store"
)

// ImageChecker evaluates one image and stores its verdict.
type ImageChecker interface {
	Check(ctx context.Context, img *store.Image) (*store.Verdict, error)
}

// Manager coordinates QC cycles over the pending image set.
type Manager struct {
	store    store.Store
	checker  ImageChecker
	locker   lock.Locker
	notifier notifications.Service
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time

	batchSize     int
	concurrency   int
	rollup        bool
	pollInterval  time.Duration
	retryInterval time.Duration

	mu        sync.RWMutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	lastErr   error
	lastCycle *CycleResult
	cycles    int64
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithLocker sets the cross-host cycle lock.
func WithLocker(l lock.Locker) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.locker = l
		}
	}
}

// WithNotifier sets the notification service.
func WithNotifier(n notifications.Service) ManagerOption {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = mt }
}

// WithPollInterval overrides qc.poll_interval.
func WithPollInterval(d time.Duration) ManagerOption {
	return func(m *Manager) { m.pollInterval = d }
}

// NewManager constructs a QC manager from the [qc] section.
func NewManager(cfg *config.Config, s store.Store, checker ImageChecker, logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:         s,
		checker:       checker,
		locker:        lock.Noop{},
		notifier:      notifications.NewService(nil),
		logger:        logging.NewComponentLogger(logger, "qc-manager"),
		now:           time.Now,
		batchSize:     cfg.QC.BatchSize,
		concurrency:   cfg.QC.Concurrency,
		rollup:        cfg.QC.SeriesRollup,
		pollInterval:  time.Duration(cfg.QC.PollInterval) * time.Second,
		retryInterval: time.Duration(cfg.QC.ErrorRetryInterval) * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.batchSize <= 0 {
		m.batchSize = 1
	}
	if m.concurrency <= 0 {
		m.concurrency = 1
	}
	return m
}
