// Package storetest holds the behavioural contract every store.Store backend
// must satisfy. Backends call Run from their own tests with a constructor
// that returns an empty store.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamvazu/SQAN/internal/header"
	"github.com/iamvazu/SQAN/internal/services"
	"github.com/iamvazu/SQAN/internal/store"
)

// Factory returns an empty store. Cleanup is registered on t by the factory.
type Factory func(t *testing.T) store.Store

// Run executes the contract suite against stores produced by open.
func Run(t *testing.T, open Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"EnsureResearchIsIdempotent", testEnsureResearchIsIdempotent},
		{"EnsureResearchConcurrent", testEnsureResearchConcurrent},
		{"EnsureSeriesKeepsFirstNumber", testEnsureSeriesKeepsFirstNumber},
		{"StudyAndAcquisitionIdentity", testStudyAndAcquisitionIdentity},
		{"ImagesAreAlwaysAppended", testImagesAreAlwaysAppended},
		{"ImageQCLifecycle", testImageQCLifecycle},
		{"AttemptedImagesYield", testAttemptedImagesYield},
		{"TemplateUpsertCounts", testTemplateUpsertCounts},
		{"TemplateHeaderEchoMatching", testTemplateHeaderEchoMatching},
		{"LatestTemplateExam", testLatestTemplateExam},
		{"ReQCResearch", testReQCResearch},
		{"ReQCSeriesFailedOnly", testReQCSeriesFailedOnly},
		{"SummarizeResearch", testSummarizeResearch},
		{"SeriesTemplateExamPin", testSeriesTemplateExamPin},
		{"NotFound", testNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, open(t))
		})
	}
}

func ptr(s string) *string { return &s }

func at(minute int) time.Time {
	return time.Date(2024, 3, 15, 13, minute, 1, 250_000_000, time.UTC)
}

type fixture struct {
	research *store.Research
	series   *store.Series
	study    *store.Study
	acq      *store.Acquisition
}

func seed(t *testing.T, s store.Store, desc string) fixture {
	t.Helper()
	ctx := context.Background()
	research, err := s.EnsureResearch(ctx, store.ResearchKey{SiteID: ptr("IU01"), Modality: "MR", StationName: "MR1"})
	require.NoError(t, err)
	series, err := s.EnsureSeries(ctx, store.SeriesKey{ResearchID: research.ID, Description: desc}, 3)
	require.NoError(t, err)
	study, err := s.EnsureStudy(ctx, store.StudyKey{SeriesID: series.ID, SubjectID: "S042", StudyInstanceUID: "1.2.3"}, at(0))
	require.NoError(t, err)
	acq, err := s.EnsureAcquisition(ctx, store.AcquisitionKey{StudyID: study.ID, AcquisitionNumber: ptr("1")})
	require.NoError(t, err)
	return fixture{research: research, series: series, study: study, acq: acq}
}

func (f fixture) image(uid string) *store.Image {
	return &store.Image{
		ResearchID:    f.research.ID,
		SeriesID:      f.series.ID,
		StudyID:       f.study.ID,
		AcquisitionID: f.acq.ID,
		InstanceUID:   uid,
		Headers: header.Headers{
			"SOPInstanceUID": uid,
			"InstanceNumber": json.Number("12"),
			"EchoTime":       json.Number("2.5"),
			"ImageType":      []any{"ORIGINAL", "PRIMARY"},
		},
	}
}

func testEnsureResearchIsIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()
	key := store.ResearchKey{SiteID: ptr("IU01"), Modality: "PT", StationName: "PET1", Radiotracer: ptr("FDG")}

	first, err := s.EnsureResearch(ctx, key)
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	again, err := s.EnsureResearch(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	nullSite := store.ResearchKey{Modality: "PT", StationName: "PET1", Radiotracer: ptr("FDG")}
	a, err := s.EnsureResearch(ctx, nullSite)
	require.NoError(t, err)
	b, err := s.EnsureResearch(ctx, nullSite)
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID, "nil site is one group")
	assert.NotEqual(t, first.ID, a.ID)
	assert.Nil(t, a.SiteID)

	emptySite, err := s.EnsureResearch(ctx, store.ResearchKey{SiteID: ptr(""), Modality: "PT", StationName: "PET1", Radiotracer: ptr("FDG")})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, emptySite.ID, "nil and empty site are different groups")

	list, err := s.ListResearch(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	got, err := s.GetResearch(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Radiotracer)
	assert.Equal(t, "FDG", *got.Radiotracer)
}

func testEnsureResearchConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()
	key := store.ResearchKey{SiteID: ptr("IU09"), Modality: "CT", StationName: "CT1"}

	const workers = 8
	ids := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := s.EnsureResearch(ctx, key)
			errs[i] = err
			if r != nil {
				ids[i] = r.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
}

func testEnsureSeriesKeepsFirstNumber(t *testing.T, s store.Store) {
	ctx := context.Background()
	research, err := s.EnsureResearch(ctx, store.ResearchKey{Modality: "MR", StationName: "MR1"})
	require.NoError(t, err)

	first, err := s.EnsureSeries(ctx, store.SeriesKey{ResearchID: research.ID, Description: "T1"}, 4)
	require.NoError(t, err)
	second, err := s.EnsureSeries(ctx, store.SeriesKey{ResearchID: research.ID, Description: "T1"}, 9)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 4, second.SeriesNumber)
	assert.Nil(t, second.QC)
	assert.Empty(t, second.Events)

	other, err := s.EnsureSeries(ctx, store.SeriesKey{ResearchID: research.ID, Description: "T2"}, 4)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func testStudyAndAcquisitionIdentity(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := seed(t, s, "T1")
	assert.True(t, f.study.Timestamp.Equal(at(0)), "got %v", f.study.Timestamp)

	study, err := s.EnsureStudy(ctx, store.StudyKey{SeriesID: f.series.ID, SubjectID: "S042", StudyInstanceUID: "1.2.3"}, at(30))
	require.NoError(t, err)
	assert.Equal(t, f.study.ID, study.ID)
	assert.True(t, study.Timestamp.Equal(at(0)), "timestamp is not overwritten")

	otherSubject, err := s.EnsureStudy(ctx, store.StudyKey{SeriesID: f.series.ID, SubjectID: "S043", StudyInstanceUID: "1.2.3"}, at(0))
	require.NoError(t, err)
	assert.NotEqual(t, f.study.ID, otherSubject.ID)

	noNumber, err := s.EnsureAcquisition(ctx, store.AcquisitionKey{StudyID: f.study.ID})
	require.NoError(t, err)
	again, err := s.EnsureAcquisition(ctx, store.AcquisitionKey{StudyID: f.study.ID})
	require.NoError(t, err)
	assert.Equal(t, noNumber.ID, again.ID)
	assert.NotEqual(t, f.acq.ID, noNumber.ID)
	assert.Nil(t, noNumber.AcquisitionNumber)
}

func testImagesAreAlwaysAppended(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := seed(t, s, "T1")

	first := f.image("1.2.3.4")
	second := f.image("1.2.3.4")
	require.NoError(t, s.InsertImage(ctx, first))
	require.NoError(t, s.InsertImage(ctx, second))
	assert.NotEqual(t, first.ID, second.ID)

	pending, err := s.PendingImages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.ElementsMatch(t, []string{first.ID, second.ID}, []string{pending[0].ID, pending[1].ID})
	assert.Nil(t, pending[0].QC)

	instance, ok := pending[0].Headers.String("InstanceNumber")
	require.True(t, ok)
	assert.Equal(t, "12", instance)
	echo, _ := pending[0].Headers.String("EchoTime")
	assert.Equal(t, "2.5", echo)
	imageType, _ := pending[0].Headers.String("ImageType")
	assert.Equal(t, `ORIGINAL\PRIMARY`, imageType)

	limited, err := s.PendingImages(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	count, err := s.CountPendingImages(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func testAttemptedImagesYield(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := seed(t, s, "T1")
	first := f.image("1")
	second := f.image("2")
	third := f.image("3")
	for i, img := range []*store.Image{first, second, third} {
		img.CreatedAt = at(i)
		require.NoError(t, s.InsertImage(ctx, img))
	}

	require.NoError(t, s.MarkImageAttempted(ctx, first.ID, at(10)))
	require.NoError(t, s.MarkImageAttempted(ctx, second.ID, at(5)))

	pending, err := s.PendingImages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, []string{third.ID, second.ID, first.ID},
		[]string{pending[0].ID, pending[1].ID, pending[2].ID})

	require.NoError(t, s.SetImageQC(ctx, first.ID, &store.Verdict{Date: at(11)}))
	require.NoError(t, s.SetImageQC(ctx, first.ID, nil))
	pending, err = s.PendingImages(ctx, 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, first.ID, pending[0].ID, "a cleared verdict drops the attempt mark")

	err = s.MarkImageAttempted(ctx, "missing", at(12))
	assert.True(t, errors.Is(err, services.ErrNotFound), "got %v", err)
}

func testImageQCLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := seed(t, s, "T1")
	ok := f.image("1")
	bad := f.image("2")
	missing := f.image("3")
	waiting := f.image("4")
	for _, img := range []*store.Image{ok, bad, missing, waiting} {
		require.NoError(t, s.InsertImage(ctx, img))
	}

	require.NoError(t, s.SetSeriesQC(ctx, f.series.ID, &store.SeriesQC{Images: 4, Date: at(1)}))
	series, err := s.GetSeries(ctx, f.series.ID)
	require.NoError(t, err)
	require.NotNil(t, series.QC)
	assert.EqualValues(t, 4, series.QC.Images)

	templateID := ptr("tmpl")
	require.NoError(t, s.SetImageQC(ctx, ok.ID, &store.Verdict{TemplateID: templateID, Date: at(2)}))
	require.NoError(t, s.SetImageQC(ctx, bad.ID, &store.Verdict{
		TemplateID: templateID,
		Date:       at(2),
		Errors:     []store.Finding{{Field: "EchoTime", Check: "equal", Message: "mismatch", Expected: "2.5", Actual: "3"}},
		Warnings:   []store.Finding{{Field: "RepetitionTime", Check: "tolerance", Message: "drift"}},
	}))
	require.NoError(t, s.SetImageQC(ctx, missing.ID, &store.Verdict{Date: at(2), NoTemplate: true}))
	require.NoError(t, s.ClearSeriesQC(ctx, f.series.ID))

	series, err = s.GetSeries(ctx, f.series.ID)
	require.NoError(t, err)
	assert.Nil(t, series.QC)

	pending, err := s.PendingImages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, waiting.ID, pending[0].ID)

	stats, err := s.SeriesStats(ctx, f.series.ID)
	require.NoError(t, err)
	assert.Equal(t, store.SeriesStats{Images: 4, Pending: 1, Errors: 1, Warnings: 1, NoTemplate: 1}, stats)

	err = s.SetImageQC(ctx, "no-such-image", &store.Verdict{Date: at(2)})
	assert.True(t, errors.Is(err, services.ErrNotFound), "got %v", err)
}

func testTemplateUpsertCounts(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := seed(t, s, "T1_TEMPLATE")
	exam, err := s.EnsureTemplateExam(ctx, store.TemplateExamKey{ResearchID: f.research.ID, Timestamp: at(0)})
	require.NoError(t, err)
	again, err := s.EnsureTemplateExam(ctx, store.TemplateExamKey{ResearchID: f.research.ID, Timestamp: at(0)})
	require.NoError(t, err)
	assert.Equal(t, exam.ID, again.ID)

	tmpl := &store.Template{
		SeriesID:     f.series.ID,
		ExamID:       exam.ID,
		ResearchID:   f.research.ID,
		Description:  "T1_TEMPLATE",
		SeriesNumber: 3,
		Timestamp:    at(0),
		Headers:      header.Headers{"SOPInstanceUID": "a"},
	}
	first, err := s.UpsertTemplate(ctx, tmpl)
	require.NoError(t, err)
	assert.EqualValues(t, 1, first.Count)

	tmpl.Headers = header.Headers{"SOPInstanceUID": "b"}
	second, err := s.UpsertTemplate(ctx, tmpl)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.EqualValues(t, 2, second.Count)
	uid, _ := second.Headers.String("SOPInstanceUID")
	assert.Equal(t, "b", uid)

	byExam, err := s.TemplatesByExam(ctx, exam.ID)
	require.NoError(t, err)
	require.Len(t, byExam, 1)
	assert.Equal(t, first.ID, byExam[0].ID)

	got, err := s.GetTemplate(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "T1_TEMPLATE", got.Description)
	assert.True(t, got.Timestamp.Equal(at(0)))
}

func testTemplateHeaderEchoMatching(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := seed(t, s, "T1")
	exam, err := s.EnsureTemplateExam(ctx, store.TemplateExamKey{ResearchID: f.research.ID, Timestamp: at(0)})
	require.NoError(t, err)
	tmpl, err := s.UpsertTemplate(ctx, &store.Template{SeriesID: f.series.ID, ExamID: exam.ID, ResearchID: f.research.ID, Description: "T1", Timestamp: at(0)})
	require.NoError(t, err)

	put := func(instance string, echo *string, acq string) *store.TemplateHeader {
		th, err := s.UpsertTemplateHeader(ctx, &store.TemplateHeader{
			TemplateID:        tmpl.ID,
			InstanceNumber:    ptr(instance),
			EchoNumber:        echo,
			AcquisitionNumber: ptr(acq),
			Headers:           header.Headers{"InstanceNumber": instance},
		})
		require.NoError(t, err)
		return th
	}
	noEcho := put("10", nil, "1")
	echo1 := put("10", ptr("1"), "1")
	put("2", nil, "1")
	repeat := put("10", nil, "1")
	assert.Equal(t, noEcho.ID, repeat.ID)
	assert.EqualValues(t, 2, repeat.Count)
	assert.NotEqual(t, noEcho.ID, echo1.ID)

	found, err := s.FindTemplateHeader(ctx, store.TemplateHeaderKey{TemplateID: tmpl.ID, InstanceNumber: ptr("10")})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, noEcho.ID, found.ID)

	found, err = s.FindTemplateHeader(ctx, store.TemplateHeaderKey{TemplateID: tmpl.ID, InstanceNumber: ptr("10"), EchoNumber: ptr("1")})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, echo1.ID, found.ID)

	found, err = s.FindTemplateHeader(ctx, store.TemplateHeaderKey{TemplateID: tmpl.ID, InstanceNumber: ptr("10"), EchoNumber: ptr("2")})
	require.NoError(t, err)
	assert.Nil(t, found)

	headers, err := s.TemplateHeaders(ctx, tmpl.ID)
	require.NoError(t, err)
	require.Len(t, headers, 3)
	assert.Equal(t, "2", *headers[0].InstanceNumber, "instance numbers sort numerically")
	assert.Equal(t, "10", *headers[1].InstanceNumber)
}

func testLatestTemplateExam(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := seed(t, s, "T1")

	none, err := s.LatestTemplateExam(ctx, f.research.ID)
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = s.EnsureTemplateExam(ctx, store.TemplateExamKey{ResearchID: f.research.ID, Timestamp: at(5)})
	require.NoError(t, err)
	newest, err := s.EnsureTemplateExam(ctx, store.TemplateExamKey{ResearchID: f.research.ID, Timestamp: at(40)})
	require.NoError(t, err)
	_, err = s.EnsureTemplateExam(ctx, store.TemplateExamKey{ResearchID: f.research.ID, Timestamp: at(20)})
	require.NoError(t, err)

	latest, err := s.LatestTemplateExam(ctx, f.research.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, newest.ID, latest.ID)
}

func testReQCResearch(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := seed(t, s, "T1")
	other, err := s.EnsureSeries(ctx, store.SeriesKey{ResearchID: f.research.ID, Description: "T2"}, 4)
	require.NoError(t, err)

	done := f.image("1")
	pending := f.image("2")
	require.NoError(t, s.InsertImage(ctx, done))
	require.NoError(t, s.InsertImage(ctx, pending))
	require.NoError(t, s.SetImageQC(ctx, done.ID, &store.Verdict{Date: at(1)}))
	require.NoError(t, s.SetSeriesQC(ctx, f.series.ID, &store.SeriesQC{Images: 1, Date: at(1)}))

	event := store.Event{UserID: "42", Title: "Research-level ReQC", Date: at(3)}
	n, err := s.ReQC(ctx, store.Scope{ResearchID: f.research.ID}, event)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	count, err := s.CountPendingImages(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	for _, id := range []string{f.series.ID, other.ID} {
		series, err := s.GetSeries(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, series.QC)
		require.Len(t, series.Events, 1)
		assert.Equal(t, "Research-level ReQC", series.Events[0].Title)
		assert.Equal(t, "42", series.Events[0].UserID)
		assert.True(t, series.Events[0].Date.Equal(at(3)))
	}
}

func testReQCSeriesFailedOnly(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := seed(t, s, "T1")
	passed := f.image("1")
	failed := f.image("2")
	notemp := f.image("3")
	for _, img := range []*store.Image{passed, failed, notemp} {
		require.NoError(t, s.InsertImage(ctx, img))
	}
	require.NoError(t, s.SetImageQC(ctx, passed.ID, &store.Verdict{Date: at(1)}))
	require.NoError(t, s.SetImageQC(ctx, failed.ID, &store.Verdict{Date: at(1), Errors: []store.Finding{{Field: "EchoTime"}}}))
	require.NoError(t, s.SetImageQC(ctx, notemp.ID, &store.Verdict{Date: at(1), NoTemplate: true}))

	n, err := s.ReQC(ctx, store.Scope{SeriesID: f.series.ID, FailedOnly: true}, store.Event{UserID: "7", Title: "Series-level ReQC", Date: at(2)})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	pending, err := s.PendingImages(ctx, 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(pending))
	for _, img := range pending {
		ids = append(ids, img.ID)
	}
	assert.ElementsMatch(t, []string{failed.ID, notemp.ID}, ids)

	series, err := s.GetSeries(ctx, f.series.ID)
	require.NoError(t, err)
	require.Len(t, series.Events, 1)
	assert.Equal(t, "Series-level ReQC", series.Events[0].Title)
}

func testSummarizeResearch(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := seed(t, s, "T1")
	empty, err := s.EnsureSeries(ctx, store.SeriesKey{ResearchID: f.research.ID, Description: "A_LOCALIZER"}, 1)
	require.NoError(t, err)

	first := f.image("1")
	require.NoError(t, s.InsertImage(ctx, first))
	require.NoError(t, s.InsertImage(ctx, f.image("2")))
	require.NoError(t, s.SetImageQC(ctx, first.ID, &store.Verdict{Date: at(1), NoTemplate: true}))

	summary, err := s.SummarizeResearch(ctx, f.research.ID)
	require.NoError(t, err)
	require.Len(t, summary, 2)

	assert.Equal(t, empty.ID, summary[0].SeriesID)
	assert.Equal(t, store.SeriesStats{}, summary[0].Stats)
	assert.EqualValues(t, 0, summary[0].Subjects)

	assert.Equal(t, "T1", summary[1].Description)
	assert.EqualValues(t, 1, summary[1].Subjects)
	assert.Equal(t, store.SeriesStats{Images: 2, Pending: 1, NoTemplate: 1}, summary[1].Stats)
}

func testSeriesTemplateExamPin(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := seed(t, s, "T1")

	require.NoError(t, s.SetSeriesTemplateExam(ctx, f.series.ID, ptr("exam-1")))
	series, err := s.GetSeries(ctx, f.series.ID)
	require.NoError(t, err)
	require.NotNil(t, series.TemplateExamID)
	assert.Equal(t, "exam-1", *series.TemplateExamID)

	require.NoError(t, s.SetSeriesTemplateExam(ctx, f.series.ID, nil))
	series, err = s.GetSeries(ctx, f.series.ID)
	require.NoError(t, err)
	assert.Nil(t, series.TemplateExamID)

	err = s.SetSeriesTemplateExam(ctx, "missing", ptr("exam-1"))
	assert.True(t, errors.Is(err, services.ErrNotFound), "got %v", err)
}

func testNotFound(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.GetSeries(ctx, "missing")
	assert.True(t, errors.Is(err, services.ErrNotFound), "got %v", err)
	_, err = s.GetResearch(ctx, "missing")
	assert.True(t, errors.Is(err, services.ErrNotFound), "got %v", err)
	_, err = s.GetTemplate(ctx, "missing")
	assert.True(t, errors.Is(err, services.ErrNotFound), "got %v", err)
	exam, err := s.LatestTemplateExam(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, exam)
}
