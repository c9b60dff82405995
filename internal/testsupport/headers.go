package testsupport

import (
	"encoding/json"
	"testing"
)

// HeaderJSON returns a well-formed MR instance header with overrides applied.
// A nil override value removes the field.
func HeaderJSON(t testing.TB, overrides map[string]any) []byte {
	t.Helper()
	h := map[string]any{
		"SOPInstanceUID":        "1.2.840.1.1",
		"StudyInstanceUID":      "1.2.840.1",
		"PatientName":           "IU01^S042",
		"PatientBirthDate":      "19700101",
		"Modality":              "MR",
		"ManufacturerModelName": "Signa HDxt",
		"StationName":           "MR1",
		"SoftwareVersions":      "v2.3",
		"SeriesDescription":     "T1 MPRAGE",
		"SeriesNumber":          5,
		"AcquisitionNumber":     1,
		"InstanceNumber":        1,
		"StudyDate":             "20240315",
		"StudyTime":             "134501",
		"RepetitionTime":        2300,
		"EchoTime":              2.98,
	}
	for k, v := range overrides {
		if v == nil {
			delete(h, k)
			continue
		}
		h[k] = v
	}
	data, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}
	return data
}

// TemplateHeaderJSON returns a template instance header with overrides applied.
func TemplateHeaderJSON(t testing.TB, overrides map[string]any) []byte {
	t.Helper()
	merged := map[string]any{
		"PatientName":    "IU01^TEMPLATE",
		"SOPInstanceUID": "1.2.840.9.1",
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return HeaderJSON(t, merged)
}
