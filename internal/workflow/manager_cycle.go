package workflow

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iamvazu/SQAN/internal/logging"
	"github.com/iamvazu/SQAN/internal/metrics"
	"github.com/iamvazu/SQAN/internal/notifications"
	"github.com/iamvazu/SQAN/internal/store"
)

// CycleResult summarizes one Querying → Evaluating pass.
type CycleResult struct {
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Skipped    bool          `json:"skipped"`
	Checked    int           `json:"checked"`
	Failed     int           `json:"failed"`
	Errors     int           `json:"errors"`
	Warnings   int           `json:"warnings"`
	NoTemplate int           `json:"notemp"`
	RolledUp   int           `json:"rolled_up"`
}

// RunCycle fetches one batch of pending images and checks them. Per-image
// failures are counted in the result; only lock and query failures are
// returned.
func (m *Manager) RunCycle(ctx context.Context) (CycleResult, error) {
	result := CycleResult{StartedAt: m.now().UTC()}
	start := time.Now()

	lease, err := m.locker.TryAcquire(ctx)
	if err != nil {
		return result, err
	}
	if lease == nil {
		result.Skipped = true
		m.logger.Debug("qc cycle lock held elsewhere; skipping")
		m.recordCycle(result)
		return result, nil
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			m.logger.Warn("release qc cycle lock failed", logging.Error(err))
		}
	}()

	if pending, err := m.store.CountPendingImages(ctx); err == nil {
		m.metrics.SetPending(pending)
	}

	images, err := m.store.PendingImages(ctx, m.batchSize)
	if err != nil {
		return result, err
	}

	touched := m.evaluate(ctx, images, &result)
	if m.rollup {
		result.RolledUp = m.rollupSeries(ctx, touched)
	}

	result.Duration = time.Since(start)
	m.metrics.ObserveCycle(result.Duration)
	m.recordCycle(result)
	if len(images) > 0 {
		m.logger.Info("qc batch complete",
			logging.Int("checked", result.Checked),
			logging.Int("failed", result.Failed),
			logging.Int("errors", result.Errors),
			logging.Int("notemp", result.NoTemplate),
			logging.Duration("duration", result.Duration),
		)
	}
	if result.Errors > 0 {
		if err := m.notifier.Publish(ctx, notifications.EventQCErrors, notifications.Payload{
			"failed":  result.Errors,
			"checked": result.Checked,
		}); err != nil {
			m.logger.Debug("qc notification failed", logging.Error(err))
		}
	}
	return result, nil
}

// evaluate checks images with bounded parallelism and returns the IDs of the
// series that received a verdict.
func (m *Manager) evaluate(ctx context.Context, images []*store.Image, result *CycleResult) []string {
	var (
		mu      sync.Mutex
		touched = make(map[string]struct{})
		order   []string
	)
	var g errgroup.Group
	g.SetLimit(m.concurrency)
	for _, img := range images {
		g.Go(func() error {
			verdict, err := m.checker.Check(ctx, img)
			if err != nil {
				if markErr := m.store.MarkImageAttempted(ctx, img.ID, m.now().UTC()); markErr != nil {
					m.logger.Warn("record qc attempt failed", logging.String(logging.FieldImageID, img.ID), logging.Error(markErr))
				}
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				m.metrics.IncImage(metrics.OutcomeFailed)
				m.setLastError(err)
				logging.WarnWithContext(m.logger, "qc check failed", "qc_image_failed",
					logging.String(logging.FieldImageID, img.ID),
					logging.String(logging.FieldSeriesID, img.SeriesID),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "image stays pending and is retried after other pending images"),
					logging.String(logging.FieldImpact, "verdict delayed for this image"),
				)
				return nil
			}
			result.Checked++
			m.metrics.IncImage(outcome(verdict))
			switch {
			case verdict.NoTemplate:
				result.NoTemplate++
			case len(verdict.Errors) > 0:
				result.Errors++
			case len(verdict.Warnings) > 0:
				result.Warnings++
			}
			if _, ok := touched[img.SeriesID]; !ok {
				touched[img.SeriesID] = struct{}{}
				order = append(order, img.SeriesID)
			}
			return nil
		})
	}
	_ = g.Wait()
	return order
}

func outcome(v *store.Verdict) string {
	switch {
	case v.NoTemplate:
		return metrics.OutcomeNoTemplate
	case len(v.Errors) > 0:
		return metrics.OutcomeErrors
	case len(v.Warnings) > 0:
		return metrics.OutcomeWarnings
	default:
		return metrics.OutcomePass
	}
}

// rollupSeries stores a QC summary on each series with no pending images.
func (m *Manager) rollupSeries(ctx context.Context, seriesIDs []string) int {
	rolled := 0
	for _, id := range seriesIDs {
		stats, err := m.store.SeriesStats(ctx, id)
		if err != nil {
			m.logger.Warn("series stats failed", logging.String(logging.FieldSeriesID, id), logging.Error(err))
			continue
		}
		if stats.Pending > 0 || stats.Images == 0 {
			continue
		}
		err = m.store.SetSeriesQC(ctx, id, &store.SeriesQC{
			Images:     stats.Images,
			Errors:     stats.Errors,
			Warnings:   stats.Warnings,
			NoTemplate: stats.NoTemplate,
			Date:       m.now().UTC(),
		})
		if err != nil {
			m.logger.Warn("series rollup failed", logging.String(logging.FieldSeriesID, id), logging.Error(err))
			continue
		}
		rolled++
	}
	return rolled
}
