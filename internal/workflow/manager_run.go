package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/iamvazu/SQAN/internal/logging"
)

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("qc manager already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	go m.loop(runCtx)
	return nil
}

// Stop terminates background processing and waits for completion.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) loop(ctx context.Context) {
	defer m.wg.Done()
	m.logger.Info("qc engine started",
		logging.Int("batch_size", m.batchSize),
		logging.Int("concurrency", m.concurrency),
		logging.Duration("poll_interval", m.pollInterval),
	)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("qc engine stopped")
			return
		default:
		}

		wait := m.pollInterval
		if _, err := m.RunCycle(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			m.setLastError(err)
			m.logger.Error("qc cycle failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "qc_query_failed"),
				logging.String(logging.FieldErrorHint, "check document store connectivity"),
			)
			wait = m.retryInterval
		}

		select {
		case <-ctx.Done():
		case <-time.After(wait):
		}
	}
}
