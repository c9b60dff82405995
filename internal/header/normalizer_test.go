package header_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamvazu/SQAN/internal/config"
	"github.com/iamvazu/SQAN/internal/header"
	"github.com/iamvazu/SQAN/internal/services"
)

func rawMR() header.Headers {
	h, err := header.Decode([]byte(`{
		"SOPInstanceUID": "1.2.840.1.1",
		"StudyInstanceUID": "1.2.840.1",
		"PatientName": "IU01^S042^extra",
		"PatientBirthDate": "19700101",
		"Modality": "MR ",
		"ManufacturerModelName": "Signa HDxt",
		"StationName": "MR1",
		"SoftwareVersions": "v2.3",
		"SeriesDescription": "T1 MPRAGE ",
		"SeriesNumber": 5,
		"AcquisitionNumber": 1,
		"InstanceNumber": 12,
		"StudyDate": "20240315",
		"StudyTime": "134501.25",
		"00191002": "private"
	}`))
	if err != nil {
		panic(err)
	}
	return h
}

func newNormalizer(t *testing.T) *header.Normalizer {
	t.Helper()
	n, err := header.NewFromConfig(config.Default().Header)
	require.NoError(t, err)
	return n
}

func TestIndexKeyNormalizesFields(t *testing.T) {
	key, err := header.IndexKey(header.Headers{
		"Modality":              "MR ",
		"ManufacturerModelName": "Signa HDxt",
		"StationName":           "MR1",
		"SoftwareVersions":      "v2.3",
	})
	require.NoError(t, err)
	assert.Equal(t, "mr.signa_hdxt.mr1.v2_3", key)
}

func TestIndexKeyCollapsesRunsAndJoinsMultiValues(t *testing.T) {
	key, err := header.IndexKey(header.Headers{
		"Modality":              "PT",
		"ManufacturerModelName": "Biograph -- mCT",
		"StationName":           "PET/CT#2",
		"SoftwareVersions":      []any{"VG60A", "PET 2.0"},
	})
	require.NoError(t, err)
	assert.Equal(t, "pt.biograph_mct.pet_ct_2.vg60a_pet_2_0", key)
}

func TestIndexKeyMissingFieldFails(t *testing.T) {
	for _, field := range header.IndexFields {
		t.Run(field, func(t *testing.T) {
			h := rawMR()
			h[field] = "  "
			_, err := header.IndexKey(h)
			require.Error(t, err)
			assert.True(t, errors.Is(err, header.ErrMissingIndexField))
			assert.True(t, errors.Is(err, services.ErrMalformedHeader))
		})
	}
}

func TestSiteID(t *testing.T) {
	site := header.SiteID(header.Headers{"PatientName": "IU01^S042"})
	require.NotNil(t, site)
	assert.Equal(t, "IU01", *site)

	pn := header.SiteID(header.Headers{"PatientName": map[string]any{"Alphabetic": "IU02^S1"}})
	require.NotNil(t, pn)
	assert.Equal(t, "IU02", *pn)

	assert.Nil(t, header.SiteID(header.Headers{}))
	assert.Nil(t, header.SiteID(header.Headers{"PatientName": "^S042"}))
}

func TestIdentifyDerivesHierarchyKeys(t *testing.T) {
	n := newNormalizer(t)
	raw := rawMR()

	id, err := n.Identify(raw)
	require.NoError(t, err)

	require.NotNil(t, id.SiteID)
	assert.Equal(t, "IU01", *id.SiteID)
	assert.Equal(t, "S042", id.SubjectID)
	assert.False(t, id.IsTemplate)
	assert.Equal(t, "mr.signa_hdxt.mr1.v2_3", id.IndexKey)
	assert.Equal(t, "1.2.840.1.1", id.InstanceUID)
	assert.Equal(t, "T1 MPRAGE", id.SeriesDescription)
	assert.Equal(t, 5, id.SeriesNumber)
	assert.Equal(t, "MR", id.Modality)
	require.NotNil(t, id.InstanceNumber)
	assert.Equal(t, "12", *id.InstanceNumber)
	assert.Nil(t, id.EchoNumber)
	assert.Nil(t, id.Radiotracer)
	assert.Equal(t, time.Date(2024, 3, 15, 13, 45, 1, 250000000, time.UTC), id.StudyTimestamp)
}

func TestIdentifyDoesNotMutateInput(t *testing.T) {
	n := newNormalizer(t)
	raw := rawMR()
	before := raw.Clone()

	_, _, err := n.Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, before, raw)
}

func TestIdentifyTemplateWithoutSubject(t *testing.T) {
	n := newNormalizer(t)
	raw := rawMR()
	raw["PatientName"] = "IU01^TEMPLATE"
	delete(raw, "StudyInstanceUID")

	id, err := n.Identify(raw)
	require.NoError(t, err)
	assert.True(t, id.IsTemplate)
}

func TestIdentifyFailures(t *testing.T) {
	cases := map[string]func(header.Headers){
		"missing uid":        func(h header.Headers) { delete(h, "SOPInstanceUID") },
		"missing subject":    func(h header.Headers) { h["PatientName"] = "IU01" },
		"missing model":      func(h header.Headers) { delete(h, "ManufacturerModelName") },
		"missing study date": func(h header.Headers) { delete(h, "StudyDate") },
		"bad study date":     func(h header.Headers) { h["StudyDate"] = "2024-03" },
		"missing study uid":  func(h header.Headers) { delete(h, "StudyInstanceUID") },
	}
	n := newNormalizer(t)
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			raw := rawMR()
			mutate(raw)
			_, err := n.Identify(raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, services.ErrMalformedHeader), "got %v", err)
		})
	}
}

func TestCleanStripsPHIAndPrivateTags(t *testing.T) {
	n := newNormalizer(t)
	cleaned, id, err := n.Normalize(rawMR())
	require.NoError(t, err)

	assert.NotContains(t, cleaned, "PatientBirthDate")
	assert.NotContains(t, cleaned, "00191002")
	assert.Equal(t, "MR", cleaned["Modality"])
	assert.Equal(t, "IU01", cleaned[header.FieldSite])
	assert.Equal(t, "S042", cleaned[header.FieldSubject])
	assert.Equal(t, false, cleaned[header.FieldIsTemplate])
	assert.Equal(t, id.IndexKey, cleaned[header.FieldIndexKey])
	assert.Equal(t, "2024-03-15T13:45:01.25Z", cleaned[header.FieldStudyTimestamp])
}

func TestNewRejectsUnknownStripKeyword(t *testing.T) {
	parser, err := header.NewRuleParser(config.Default().Header)
	require.NoError(t, err)
	_, err = header.New(parser, []string{"PatientBirthDayOfWeek"})
	require.Error(t, err)
}

func TestRadiotracerFromSequence(t *testing.T) {
	h := header.Headers{
		"RadiopharmaceuticalInformationSequence": []any{
			map[string]any{"Radiopharmaceutical": "Fluorodeoxyglucose"},
		},
	}
	tracer := header.Radiotracer(h)
	require.NotNil(t, tracer)
	assert.Equal(t, "Fluorodeoxyglucose", *tracer)
}

func TestCanonicalValues(t *testing.T) {
	h, err := header.Decode([]byte(`{"a": 2.0, "b": "  x ", "c": [1, 2], "d": null, "e": 1.5}`))
	require.NoError(t, err)

	a, _ := h.String("a")
	assert.Equal(t, "2", a)
	b, _ := h.String("b")
	assert.Equal(t, "x", b)
	c, _ := h.String("c")
	assert.Equal(t, `1\2`, c)
	_, ok := h.String("d")
	assert.False(t, ok)
	e, _ := h.String("e")
	assert.Equal(t, "1.5", e)
}

func TestDecodeRejectsNonObjects(t *testing.T) {
	_, err := header.Decode([]byte(`[1,2]`))
	assert.Error(t, err)
	_, err = header.Decode([]byte(`null`))
	assert.Error(t, err)
	_, err = header.Decode([]byte(`{`))
	assert.Error(t, err)
}
