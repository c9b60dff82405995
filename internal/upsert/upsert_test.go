package upsert_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamvazu/SQAN/internal/config"
	"github.com/iamvazu/SQAN/internal/header"
	"github.com/iamvazu/SQAN/internal/logging"
	"github.com/iamvazu/SQAN/internal/store/sqlite"
	"github.com/iamvazu/SQAN/internal/testsupport"
	"github.com/iamvazu/SQAN/internal/upsert"
)

type harness struct {
	store      *sqlite.Store
	upserter   *upsert.Upserter
	normalizer *header.Normalizer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	n, err := header.NewFromConfig(config.Default().Header)
	require.NoError(t, err)
	return &harness{store: s, upserter: upsert.New(s, logging.NewNop()), normalizer: n}
}

func (h *harness) ingest(t *testing.T, raw string) *upsert.Result {
	t.Helper()
	headers, err := header.Decode([]byte(raw))
	require.NoError(t, err)
	cleaned, id, err := h.normalizer.Normalize(headers)
	require.NoError(t, err)
	result, err := h.upserter.Upsert(context.Background(), id, cleaned)
	require.NoError(t, err)
	return result
}

const subjectHeader = `{
	"SOPInstanceUID": %q,
	"StudyInstanceUID": "1.2.840.9",
	"PatientName": "IU01^S042",
	"Modality": "MR",
	"ManufacturerModelName": "Signa",
	"StationName": "MR1",
	"SoftwareVersions": "v1",
	"SeriesDescription": "T1 MPRAGE",
	"SeriesNumber": 5,
	"AcquisitionNumber": 1,
	"InstanceNumber": %d,
	"StudyDate": "20240315",
	"StudyTime": "134501"
}`

const templateHeader = `{
	"SOPInstanceUID": %q,
	"PatientName": "IU01^TEMPLATE",
	"Modality": "MR",
	"ManufacturerModelName": "Signa",
	"StationName": "MR1",
	"SoftwareVersions": "v1",
	"SeriesDescription": "T1 MPRAGE",
	"SeriesNumber": 5,
	"InstanceNumber": %d,
	"EchoNumbers": 1,
	"StudyDate": "20240301",
	"StudyTime": "090000"
}`

func TestUpsertSubjectBranchReusesParents(t *testing.T) {
	h := newHarness(t)

	first := h.ingest(t, fmt.Sprintf(subjectHeader, "1.2.840.9.1", 1))
	second := h.ingest(t, fmt.Sprintf(subjectHeader, "1.2.840.9.2", 2))

	require.NotNil(t, first.Image)
	require.NotNil(t, second.Image)
	assert.Equal(t, first.Research.ID, second.Research.ID)
	assert.Equal(t, first.Series.ID, second.Series.ID)
	assert.Equal(t, first.Study.ID, second.Study.ID)
	assert.Equal(t, first.Acquisition.ID, second.Acquisition.ID)
	assert.NotEqual(t, first.Image.ID, second.Image.ID)
	assert.Nil(t, first.Template)

	assert.Equal(t, "T1 MPRAGE", first.Series.Description)
	assert.Equal(t, 5, first.Series.SeriesNumber)
	assert.Equal(t, "S042", first.Study.SubjectID)
	require.NotNil(t, first.Research.SiteID)
	assert.Equal(t, "IU01", *first.Research.SiteID)

	pending, err := h.store.PendingImages(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
	subject, _ := pending[0].Headers.String(header.FieldSubject)
	assert.Equal(t, "S042", subject)
}

func TestUpsertReplayAppendsImageOnly(t *testing.T) {
	h := newHarness(t)
	raw := fmt.Sprintf(subjectHeader, "1.2.840.9.1", 1)

	first := h.ingest(t, raw)
	replay := h.ingest(t, raw)
	assert.Equal(t, first.Study.ID, replay.Study.ID)
	assert.NotEqual(t, first.Image.ID, replay.Image.ID)
}

func TestUpsertTemplateBranch(t *testing.T) {
	h := newHarness(t)

	first := h.ingest(t, fmt.Sprintf(templateHeader, "9.1", 1))
	require.NotNil(t, first.Template)
	assert.Nil(t, first.Image)
	assert.Nil(t, first.Study)
	assert.EqualValues(t, 1, first.Template.Count)
	assert.Equal(t, first.Exam.ID, first.Template.ExamID)
	require.NotNil(t, first.TemplateHeader.EchoNumber)
	assert.Equal(t, "1", *first.TemplateHeader.EchoNumber)

	second := h.ingest(t, fmt.Sprintf(templateHeader, "9.2", 2))
	assert.Equal(t, first.Template.ID, second.Template.ID)
	assert.EqualValues(t, 2, second.Template.Count)
	assert.NotEqual(t, first.TemplateHeader.ID, second.TemplateHeader.ID)

	again := h.ingest(t, fmt.Sprintf(templateHeader, "9.3", 2))
	assert.Equal(t, second.TemplateHeader.ID, again.TemplateHeader.ID)
	assert.EqualValues(t, 2, again.TemplateHeader.Count)
	uid, _ := again.TemplateHeader.Headers.String("SOPInstanceUID")
	assert.Equal(t, "9.3", uid, "latest header wins")

	latest, err := h.store.LatestTemplateExam(context.Background(), first.Research.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, first.Exam.ID, latest.ID)

	count, err := h.store.CountPendingImages(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}
