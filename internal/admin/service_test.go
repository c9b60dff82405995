package admin_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamvazu/SQAN/internal/admin"
	"github.com/iamvazu/SQAN/internal/header"
	"github.com/iamvazu/SQAN/internal/notifications"
	"github.com/iamvazu/SQAN/internal/qc"
	"github.com/iamvazu/SQAN/internal/services"
	"github.com/iamvazu/SQAN/internal/store"
	"github.com/iamvazu/SQAN/internal/testsupport"
	"github.com/iamvazu/SQAN/internal/upsert"
)

type recordingNotifier struct {
	mu       sync.Mutex
	events   []notifications.Event
	payloads []notifications.Payload
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.payloads = append(r.payloads, payload)
	return nil
}

type fixture struct {
	store      store.Store
	upserter   *upsert.Upserter
	normalizer *header.Normalizer
	checker    *qc.Checker
	notifier   *recordingNotifier
	svc        *admin.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	normalizer, err := header.NewFromConfig(cfg.Header)
	require.NoError(t, err)
	ev, err := qc.NewRuleEvaluator(nil)
	require.NoError(t, err)
	notifier := &recordingNotifier{}
	return &fixture{
		store:      st,
		upserter:   upsert.New(st, nil),
		normalizer: normalizer,
		checker:    qc.NewChecker(st, ev, nil),
		notifier:   notifier,
		svc:        admin.NewService(st, notifier, nil),
	}
}

func (f *fixture) ingest(t *testing.T, data []byte) *upsert.Result {
	t.Helper()
	raw, err := header.Decode(data)
	require.NoError(t, err)
	cleaned, id, err := f.normalizer.Normalize(raw)
	require.NoError(t, err)
	result, err := f.upserter.Upsert(context.Background(), id, cleaned)
	require.NoError(t, err)
	return result
}

func (f *fixture) check(t *testing.T, results ...*upsert.Result) {
	t.Helper()
	for _, r := range results {
		_, err := f.checker.Check(context.Background(), r.Image)
		require.NoError(t, err)
	}
}

func (f *fixture) pending(t *testing.T) int64 {
	t.Helper()
	n, err := f.store.CountPendingImages(context.Background())
	require.NoError(t, err)
	return n
}

func TestResearchReQCReenrollsCheckedImages(t *testing.T) {
	f := newFixture(t)
	first := f.ingest(t, testsupport.HeaderJSON(t, nil))
	second := f.ingest(t, testsupport.HeaderJSON(t, map[string]any{"SOPInstanceUID": "1.2.840.1.2", "InstanceNumber": 2}))
	f.check(t, first, second)
	require.Zero(t, f.pending(t))

	n, err := f.svc.ResearchReQC(context.Background(), first.Research.ID, admin.ReQCRequest{UserID: "op1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, int64(2), f.pending(t))

	series, err := f.store.GetSeries(context.Background(), first.Series.ID)
	require.NoError(t, err)
	assert.Nil(t, series.QC)
	require.Len(t, series.Events, 1)
	assert.Equal(t, admin.TitleResearchReQC, series.Events[0].Title)
	assert.Equal(t, "op1", series.Events[0].UserID)
	assert.Equal(t, "all images", series.Events[0].Detail)

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, notifications.EventReQC, f.notifier.events[0])
	assert.Equal(t, int64(2), f.notifier.payloads[0]["count"])
}

func TestResearchReQCFailedOnly(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, testsupport.TemplateHeaderJSON(t, nil))
	matched := f.ingest(t, testsupport.HeaderJSON(t, nil))
	unmatched := f.ingest(t, testsupport.HeaderJSON(t, map[string]any{"SOPInstanceUID": "1.2.840.1.2", "InstanceNumber": 2}))
	f.check(t, matched, unmatched)

	n, err := f.svc.ResearchReQC(context.Background(), matched.Research.ID, admin.ReQCRequest{UserID: "op1", FailedOnly: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	pending, err := f.store.PendingImages(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, unmatched.Image.ID, pending[0].ID)
}

func TestSeriesReQC(t *testing.T) {
	f := newFixture(t)
	res := f.ingest(t, testsupport.HeaderJSON(t, nil))
	f.check(t, res)

	n, err := f.svc.SeriesReQC(context.Background(), res.Series.ID, admin.ReQCRequest{UserID: "op2"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	series, err := f.store.GetSeries(context.Background(), res.Series.ID)
	require.NoError(t, err)
	require.Len(t, series.Events, 1)
	assert.Equal(t, admin.TitleSeriesReQC, series.Events[0].Title)
}

func TestReQCValidatesInput(t *testing.T) {
	f := newFixture(t)
	res := f.ingest(t, testsupport.HeaderJSON(t, nil))

	_, err := f.svc.ResearchReQC(context.Background(), res.Research.ID, admin.ReQCRequest{})
	assert.True(t, errors.Is(err, services.ErrConfiguration), "got %v", err)

	_, err = f.svc.ResearchReQC(context.Background(), "missing", admin.ReQCRequest{UserID: "op1"})
	assert.True(t, errors.Is(err, services.ErrNotFound), "got %v", err)

	_, err = f.svc.SeriesReQC(context.Background(), "missing", admin.ReQCRequest{UserID: "op1"})
	assert.True(t, errors.Is(err, services.ErrNotFound), "got %v", err)
	assert.Empty(t, f.notifier.events)
}

func TestPinAndUnpinTemplateExam(t *testing.T) {
	f := newFixture(t)
	tmpl := f.ingest(t, testsupport.TemplateHeaderJSON(t, nil))
	res := f.ingest(t, testsupport.HeaderJSON(t, nil))

	require.NoError(t, f.svc.PinTemplateExam(context.Background(), res.Series.ID, tmpl.Exam.ID))
	series, err := f.store.GetSeries(context.Background(), res.Series.ID)
	require.NoError(t, err)
	require.NotNil(t, series.TemplateExamID)
	assert.Equal(t, tmpl.Exam.ID, *series.TemplateExamID)

	require.NoError(t, f.svc.UnpinTemplateExam(context.Background(), res.Series.ID))
	series, err = f.store.GetSeries(context.Background(), res.Series.ID)
	require.NoError(t, err)
	assert.Nil(t, series.TemplateExamID)
}

func TestPinRejectsUnknownOrForeignExam(t *testing.T) {
	f := newFixture(t)
	res := f.ingest(t, testsupport.HeaderJSON(t, nil))
	foreign := f.ingest(t, testsupport.TemplateHeaderJSON(t, map[string]any{"StationName": "MR2"}))
	require.NotEqual(t, res.Research.ID, foreign.Template.ResearchID)

	err := f.svc.PinTemplateExam(context.Background(), res.Series.ID, "missing")
	assert.True(t, errors.Is(err, services.ErrNotFound), "got %v", err)

	err = f.svc.PinTemplateExam(context.Background(), res.Series.ID, foreign.Exam.ID)
	assert.True(t, errors.Is(err, services.ErrConfiguration), "got %v", err)

	err = f.svc.UnpinTemplateExam(context.Background(), "missing")
	assert.True(t, errors.Is(err, services.ErrNotFound), "got %v", err)
}

func TestSummaryAndList(t *testing.T) {
	f := newFixture(t)
	first := f.ingest(t, testsupport.HeaderJSON(t, nil))
	f.ingest(t, testsupport.HeaderJSON(t, map[string]any{"SOPInstanceUID": "1.2.840.1.2", "InstanceNumber": 2}))
	f.check(t, first)

	research, err := f.svc.ListResearch(context.Background())
	require.NoError(t, err)
	require.Len(t, research, 1)

	summary, err := f.svc.Summary(context.Background(), first.Research.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Research.ID, summary.Research.ID)
	require.Len(t, summary.Series, 1)
	assert.Equal(t, "T1 MPRAGE", summary.Series[0].Description)
	assert.Equal(t, int64(2), summary.Series[0].Stats.Images)
	assert.Equal(t, int64(1), summary.Series[0].Stats.Pending)
	assert.Equal(t, int64(1), summary.Series[0].Subjects)

	_, err = f.svc.Summary(context.Background(), "missing")
	assert.True(t, errors.Is(err, services.ErrNotFound), "got %v", err)
}

func TestTemplateHead(t *testing.T) {
	f := newFixture(t)
	tmpl := f.ingest(t, testsupport.TemplateHeaderJSON(t, nil))
	f.ingest(t, testsupport.TemplateHeaderJSON(t, map[string]any{"SOPInstanceUID": "1.2.840.9.2", "InstanceNumber": 2}))

	head, err := f.svc.TemplateHead(context.Background(), tmpl.Template.ID)
	require.NoError(t, err)
	assert.Equal(t, tmpl.Template.ID, head.Template.ID)
	assert.Equal(t, tmpl.Research.ID, head.Research.ID)
	require.Len(t, head.Headers, 2)
	require.NotNil(t, head.Headers[0].InstanceNumber)
	assert.Equal(t, "1", *head.Headers[0].InstanceNumber)

	_, err = f.svc.TemplateHead(context.Background(), "missing")
	assert.True(t, errors.Is(err, services.ErrNotFound), "got %v", err)
}
