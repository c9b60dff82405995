package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iamvazu/SQAN/internal/config"
	"github.com/iamvazu/SQAN/internal/header"
	"github.com/iamvazu/SQAN/internal/lock"
	"github.com/iamvazu/SQAN/internal/qc"
	"github.com/iamvazu/SQAN/internal/store"
	"github.com/iamvazu/SQAN/internal/store/sqlite"
	"github.com/iamvazu/SQAN/internal/testsupport"
	"github.com/iamvazu/SQAN/internal/upsert"
	"github.com/iamvazu/SQAN/internal/workflow"
)

type env struct {
	cfg   *config.Config
	store *sqlite.Store
}

func newEnv(t *testing.T) *env {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	return &env{cfg: cfg, store: testsupport.MustOpenStore(t, cfg)}
}

func (e *env) ingest(t *testing.T, overrides map[string]any) *upsert.Result {
	t.Helper()
	n, err := header.NewFromConfig(e.cfg.Header)
	if err != nil {
		t.Fatalf("normalizer: %v", err)
	}
	raw, err := header.Decode(testsupport.HeaderJSON(t, overrides))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	cleaned, id, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	res, err := upsert.New(e.store, nil).Upsert(context.Background(), id, cleaned)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	return res
}

func (e *env) checker(t *testing.T) *qc.Checker {
	t.Helper()
	ev, err := qc.NewRuleEvaluator(nil)
	if err != nil {
		t.Fatalf("evaluator: %v", err)
	}
	return qc.NewChecker(e.store, ev, nil)
}

func (e *env) pending(t *testing.T) int64 {
	t.Helper()
	n, err := e.store.CountPendingImages(context.Background())
	if err != nil {
		t.Fatalf("count pending: %v", err)
	}
	return n
}

type stubChecker struct {
	mu     sync.Mutex
	failID string
	calls  []string
	inner  workflow.ImageChecker
}

func (s *stubChecker) Check(ctx context.Context, img *store.Image) (*store.Verdict, error) {
	s.mu.Lock()
	s.calls = append(s.calls, img.ID)
	s.mu.Unlock()
	if img.ID == s.failID {
		return nil, errors.New("evaluation exploded")
	}
	return s.inner.Check(ctx, img)
}

type heldLocker struct{}

func (heldLocker) TryAcquire(context.Context) (lock.Lease, error) { return nil, nil }
func (heldLocker) Close() error                                 { return nil }

func TestRunCycleChecksPendingImages(t *testing.T) {
	e := newEnv(t)
	first := e.ingest(t, map[string]any{"InstanceNumber": 1})
	e.ingest(t, map[string]any{"InstanceNumber": 2, "SOPInstanceUID": "1.2.840.1.2"})
	e.ingest(t, map[string]any{"InstanceNumber": 3, "SOPInstanceUID": "1.2.840.1.3"})

	mgr := workflow.NewManager(e.cfg, e.store, e.checker(t), nil)
	res, err := mgr.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.Checked != 3 || res.NoTemplate != 3 || res.Failed != 0 {
		t.Fatalf("unexpected cycle result: %+v", res)
	}
	if got := e.pending(t); got != 0 {
		t.Fatalf("expected no pending images, got %d", got)
	}
	if res.RolledUp != 1 {
		t.Fatalf("expected one series rollup, got %d", res.RolledUp)
	}

	series, err := e.store.GetSeries(context.Background(), first.Series.ID)
	if err != nil {
		t.Fatalf("GetSeries: %v", err)
	}
	if series.QC == nil || series.QC.Images != 3 || series.QC.NoTemplate != 3 {
		t.Fatalf("unexpected series rollup: %+v", series.QC)
	}
}

func TestRunCycleRespectsBatchSize(t *testing.T) {
	e := newEnv(t)
	e.cfg.QC.BatchSize = 2
	for i := 1; i <= 3; i++ {
		e.ingest(t, map[string]any{"InstanceNumber": i, "SOPInstanceUID": fmt.Sprintf("1.2.840.1.%d", i)})
	}

	mgr := workflow.NewManager(e.cfg, e.store, e.checker(t), nil)
	res, err := mgr.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.Checked != 2 {
		t.Fatalf("expected 2 checked, got %d", res.Checked)
	}
	if res.RolledUp != 0 {
		t.Fatalf("series with pending images must not roll up, got %d", res.RolledUp)
	}
	if got := e.pending(t); got != 1 {
		t.Fatalf("expected 1 pending image, got %d", got)
	}
}

func TestRunCycleIsolatesImageFailures(t *testing.T) {
	e := newEnv(t)
	bad := e.ingest(t, map[string]any{"InstanceNumber": 1})
	e.ingest(t, map[string]any{"InstanceNumber": 2, "SOPInstanceUID": "1.2.840.1.2"})

	checker := &stubChecker{failID: bad.Image.ID, inner: e.checker(t)}
	mgr := workflow.NewManager(e.cfg, e.store, checker, nil)

	res, err := mgr.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.Failed != 1 || res.Checked != 1 {
		t.Fatalf("unexpected cycle result: %+v", res)
	}
	if got := e.pending(t); got != 1 {
		t.Fatalf("failed image should stay pending, got %d pending", got)
	}
	if status := mgr.Status(context.Background()); status.LastError == "" {
		t.Fatal("expected last error to be recorded")
	}
}

func TestRunCycleFailingImageYieldsToOtherPending(t *testing.T) {
	e := newEnv(t)
	e.cfg.QC.BatchSize = 1
	bad := e.ingest(t, map[string]any{"InstanceNumber": 1})
	for i := 2; i <= 4; i++ {
		e.ingest(t, map[string]any{"InstanceNumber": i, "SOPInstanceUID": fmt.Sprintf("1.2.840.1.%d", i)})
	}

	checker := &stubChecker{failID: bad.Image.ID, inner: e.checker(t)}
	mgr := workflow.NewManager(e.cfg, e.store, checker, nil)
	for i := 0; i < 4; i++ {
		if _, err := mgr.RunCycle(context.Background()); err != nil {
			t.Fatalf("RunCycle %d: %v", i, err)
		}
	}

	seen := make(map[string]int)
	for _, id := range checker.calls {
		seen[id]++
	}
	if len(seen) != 4 || seen[bad.Image.ID] != 1 {
		t.Fatalf("expected each image checked once, got %v", seen)
	}
	if got := e.pending(t); got != 1 {
		t.Fatalf("expected only the failing image pending, got %d", got)
	}

	if _, err := mgr.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if last := checker.calls[len(checker.calls)-1]; last != bad.Image.ID {
		t.Fatalf("expected failing image to be retried once the queue drained, got %s", last)
	}
}

func TestRunCycleEmptyBatch(t *testing.T) {
	e := newEnv(t)
	mgr := workflow.NewManager(e.cfg, e.store, e.checker(t), nil)
	res, err := mgr.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.Checked != 0 || res.Skipped {
		t.Fatalf("unexpected cycle result: %+v", res)
	}
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	e := newEnv(t)
	e.ingest(t, nil)
	mgr := workflow.NewManager(e.cfg, e.store, e.checker(t), nil, workflow.WithLocker(heldLocker{}))

	res, err := mgr.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if !res.Skipped {
		t.Fatal("expected cycle to be skipped")
	}
	if got := e.pending(t); got != 1 {
		t.Fatalf("expected image to stay pending, got %d", got)
	}
}

type countingChecker struct{ n atomic.Int64 }

func (c *countingChecker) Check(context.Context, *store.Image) (*store.Verdict, error) {
	c.n.Add(1)
	return &store.Verdict{NoTemplate: true}, nil
}

func TestLoopSleepsBetweenEmptyCycles(t *testing.T) {
	e := newEnv(t)
	mgr := workflow.NewManager(e.cfg, e.store, &countingChecker{}, nil, workflow.WithPollInterval(100*time.Millisecond))

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := mgr.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}
	time.Sleep(350 * time.Millisecond)
	mgr.Stop()

	status := mgr.Status(context.Background())
	if status.Running {
		t.Fatal("expected manager to be stopped")
	}
	if status.Cycles < 1 || status.Cycles > 5 {
		t.Fatalf("expected a handful of cycles over 350ms at 100ms poll, got %d", status.Cycles)
	}
}

func TestLoopProcessesThenStops(t *testing.T) {
	e := newEnv(t)
	e.ingest(t, nil)
	mgr := workflow.NewManager(e.cfg, e.store, e.checker(t), nil, workflow.WithPollInterval(20*time.Millisecond))

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer mgr.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for e.pending(t) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("image never checked")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
