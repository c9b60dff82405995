package header

import (
	"fmt"
	"strings"
	"time"

	"github.com/iamvazu/SQAN/internal/services"
)

// Identity holds every field derived from a header that decides where the
// instance is filed.
type Identity struct {
	SiteID            *string
	SubjectID         string
	IsTemplate        bool
	IndexKey          string
	InstanceUID       string
	StudyInstanceUID  string
	SeriesDescription string
	SeriesNumber      int
	Modality          string
	StationName       string
	Radiotracer       *string
	AcquisitionNumber *string
	InstanceNumber    *string
	EchoNumber        *string
	StudyTimestamp    time.Time
}

// SiteID returns the first "^" segment of PatientName, or nil when the field
// is absent or that segment is blank.
func SiteID(h Headers) *string {
	name, ok := h.String("PatientName")
	if !ok {
		return nil
	}
	site := strings.TrimSpace(strings.SplitN(name, "^", 2)[0])
	if site == "" {
		return nil
	}
	return &site
}

// Radiotracer reads Radiopharmaceutical from the top level or from the first
// RadiopharmaceuticalInformationSequence item.
func Radiotracer(h Headers) *string {
	if v := h.Optional("Radiopharmaceutical"); v != nil {
		return v
	}
	seq, ok := h["RadiopharmaceuticalInformationSequence"].([]any)
	if !ok || len(seq) == 0 {
		return nil
	}
	item, ok := seq[0].(map[string]any)
	if !ok {
		return nil
	}
	return Headers(item).Optional("Radiopharmaceutical")
}

// StudyTimestamp combines StudyDate (YYYYMMDD) with an optional StudyTime
// (HHMMSS with optional fraction) in UTC.
func StudyTimestamp(h Headers) (time.Time, error) {
	date, ok := h.String("StudyDate")
	if !ok {
		return time.Time{}, services.Wrap(services.ErrMalformedHeader, "header", "study timestamp", "StudyDate missing", nil)
	}
	day, err := time.Parse("20060102", date)
	if err != nil {
		return time.Time{}, services.Wrap(services.ErrMalformedHeader, "header", "study timestamp", "StudyDate", err)
	}
	clock, ok := h.String("StudyTime")
	if !ok {
		return day.UTC(), nil
	}
	clock = strings.ReplaceAll(clock, ":", "")
	frac := ""
	if dot := strings.IndexByte(clock, '.'); dot >= 0 {
		clock, frac = clock[:dot], clock[dot+1:]
	}
	for len(clock) < 6 {
		clock += "0"
	}
	if frac != "" {
		clock += "." + frac
	}
	tod, err := time.Parse("150405", clock)
	if err != nil {
		return time.Time{}, services.Wrap(services.ErrMalformedHeader, "header", "study timestamp", "StudyTime", err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), tod.Hour(), tod.Minute(), tod.Second(), tod.Nanosecond(), time.UTC), nil
}

func seriesNumber(h Headers) int {
	value, ok := h.String("SeriesNumber")
	if !ok {
		return 0
	}
	var n int
	if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
		return 0
	}
	return n
}
