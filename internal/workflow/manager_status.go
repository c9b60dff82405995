package workflow

import (
	"context"

	"github.com/iamvazu/SQAN/internal/logging"
)

// StatusSummary represents lightweight QC engine diagnostics.
type StatusSummary struct {
	Running   bool         `json:"running"`
	LastError string       `json:"last_error,omitempty"`
	LastCycle *CycleResult `json:"last_cycle,omitempty"`
	Cycles    int64        `json:"cycles"`
	Pending   int64        `json:"pending"`
}

// Status returns the latest QC engine information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{Running: m.running, Cycles: m.cycles}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastCycle != nil {
		cycle := *m.lastCycle
		summary.LastCycle = &cycle
	}
	m.mu.RUnlock()

	pending, err := m.store.CountPendingImages(ctx)
	if err != nil {
		m.logger.Warn("failed to count pending images", logging.Error(err))
	}
	summary.Pending = pending
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) recordCycle(result CycleResult) {
	m.mu.Lock()
	m.cycles++
	m.lastCycle = &result
	m.mu.Unlock()
}
