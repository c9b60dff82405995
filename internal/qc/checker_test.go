package qc_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamvazu/SQAN/internal/config"
	"github.com/iamvazu/SQAN/internal/header"
	"github.com/iamvazu/SQAN/internal/qc"
	"github.com/iamvazu/SQAN/internal/store"
	"github.com/iamvazu/SQAN/internal/testsupport"
	"github.com/iamvazu/SQAN/internal/upsert"
)

type fixture struct {
	store      store.Store
	upserter   *upsert.Upserter
	normalizer *header.Normalizer
	checker    *qc.Checker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	normalizer, err := header.NewFromConfig(cfg.Header)
	require.NoError(t, err)
	ev, err := qc.NewRuleEvaluator([]config.Rule{
		{Field: "RepetitionTime", Check: "tolerance", Tolerance: 1, Severity: "error"},
		{Field: "EchoTime", Check: "equal", Severity: "warning"},
	})
	require.NoError(t, err)
	return &fixture{
		store:      st,
		upserter:   upsert.New(st, nil),
		normalizer: normalizer,
		checker:    qc.NewChecker(st, ev, nil),
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

func TestCheckWithoutTemplateIsNoTemp(t *testing.T) {
	f := newFixture(t)
	res := f.ingest(t, testsupport.HeaderJSON(t, nil))

	verdict, err := f.checker.Check(context.Background(), res.Image)
	require.NoError(t, err)
	assert.True(t, verdict.NoTemplate)
	assert.Nil(t, verdict.TemplateID)
	assert.Empty(t, verdict.Errors)

	n, err := f.store.CountPendingImages(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCheckComparesAgainstMatchingTemplateHeader(t *testing.T) {
	f := newFixture(t)
	tres := f.ingest(t, testsupport.TemplateHeaderJSON(t, map[string]any{"RepetitionTime": 2300, "EchoTime": 2.98}))
	ires := f.ingest(t, testsupport.HeaderJSON(t, map[string]any{"RepetitionTime": 2310, "EchoTime": 3.1}))

	verdict, err := f.checker.Check(context.Background(), ires.Image)
	require.NoError(t, err)
	assert.False(t, verdict.NoTemplate)
	require.NotNil(t, verdict.TemplateID)
	assert.Equal(t, tres.Template.ID, *verdict.TemplateID)
	require.Len(t, verdict.Errors, 1)
	assert.Equal(t, "RepetitionTime", verdict.Errors[0].Field)
	require.Len(t, verdict.Warnings, 1)
	assert.Equal(t, "EchoTime", verdict.Warnings[0].Field)
}

func TestCheckEchoNumberMustMatchExactly(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, testsupport.TemplateHeaderJSON(t, map[string]any{"EchoNumbers": 2}))

	// Image without EchoNumbers does not match a template header with echo 2.
	ires := f.ingest(t, testsupport.HeaderJSON(t, nil))
	verdict, err := f.checker.Check(context.Background(), ires.Image)
	require.NoError(t, err)
	assert.True(t, verdict.NoTemplate)

	echo := f.ingest(t, testsupport.HeaderJSON(t, map[string]any{"EchoNumbers": 2}))
	verdict, err = f.checker.Check(context.Background(), echo.Image)
	require.NoError(t, err)
	assert.False(t, verdict.NoTemplate)
}

func TestCheckMissingInstanceIsNoTemp(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, testsupport.TemplateHeaderJSON(t, map[string]any{"InstanceNumber": 1}))
	ires := f.ingest(t, testsupport.HeaderJSON(t, map[string]any{"InstanceNumber": 2}))

	verdict, err := f.checker.Check(context.Background(), ires.Image)
	require.NoError(t, err)
	assert.True(t, verdict.NoTemplate)
}

func TestCheckClearsSeriesQC(t *testing.T) {
	f := newFixture(t)
	ires := f.ingest(t, testsupport.HeaderJSON(t, nil))
	ctx := context.Background()
	require.NoError(t, f.store.SetSeriesQC(ctx, ires.Series.ID, &store.SeriesQC{Images: 1}))

	_, err := f.checker.Check(ctx, ires.Image)
	require.NoError(t, err)

	series, err := f.store.GetSeries(ctx, ires.Series.ID)
	require.NoError(t, err)
	assert.Nil(t, series.QC)
}

func TestCheckUnknownSeriesFails(t *testing.T) {
	f := newFixture(t)
	_, err := f.checker.Check(context.Background(), &store.Image{ID: "img", SeriesID: "missing"})
	assert.Error(t, err)
}
