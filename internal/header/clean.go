package header

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/suyashkumar/dicom/pkg/tag"
)

// Derived field names added to cleaned headers.
const (
	FieldSite           = "qc_site"
	FieldSubject        = "qc_subject"
	FieldIsTemplate     = "qc_istemplate"
	FieldIndexKey       = "qc_esindex"
	FieldStudyTimestamp = "qc_StudyTimestamp"
)

// stripSet resolves configured keywords against the DICOM dictionary so typos
// surface at startup instead of silently leaking fields.
func stripSet(keywords []string) (map[string]struct{}, error) {
	set := make(map[string]struct{}, len(keywords))
	for _, keyword := range keywords {
		info, err := tag.FindByName(keyword)
		if err != nil {
			return nil, fmt.Errorf("strip field %q: not a DICOM keyword: %w", keyword, err)
		}
		set[info.Name] = struct{}{}
	}
	return set, nil
}

// isPrivateKey reports whether key is a raw "ggggeeee" tag in an odd (private) group.
func isPrivateKey(key string) bool {
	key = strings.Trim(key, "()")
	key = strings.ReplaceAll(key, ",", "")
	if len(key) != 8 {
		return false
	}
	group, err := strconv.ParseUint(key[:4], 16, 16)
	if err != nil {
		return false
	}
	if _, err := strconv.ParseUint(key[4:], 16, 16); err != nil {
		return false
	}
	return group%2 == 1
}

// WithIdentity returns a copy of h carrying the derived identity fields.
func WithIdentity(h Headers, id Identity) Headers {
	out := h.Clone()
	if out == nil {
		out = Headers{}
	}
	if id.SiteID != nil {
		out[FieldSite] = *id.SiteID
	} else {
		out[FieldSite] = nil
	}
	out[FieldSubject] = id.SubjectID
	out[FieldIsTemplate] = id.IsTemplate
	out[FieldIndexKey] = id.IndexKey
	out[FieldStudyTimestamp] = id.StudyTimestamp.UTC().Format(time.RFC3339Nano)
	return out
}

func cleanHeaders(raw Headers, strip map[string]struct{}, id Identity) Headers {
	out := WithIdentity(raw, id)
	for key, value := range out {
		if _, drop := strip[key]; drop || isPrivateKey(key) {
			delete(out, key)
			continue
		}
		if s, ok := value.(string); ok {
			out[key] = strings.TrimSpace(s)
		}
	}
	return out
}
