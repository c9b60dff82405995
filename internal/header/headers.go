package header

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Headers is a keyword-keyed DICOM header set as delivered by the scanner
// gateway, e.g. {"Modality": "MR", "InstanceNumber": 3}.
type Headers map[string]any

// Decode parses a JSON object into Headers, keeping numbers as json.Number so
// instance and echo numbers round-trip without float formatting.
func Decode(data []byte) (Headers, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var h Headers
	if err := dec.Decode(&h); err != nil {
		return nil, fmt.Errorf("decode header json: %w", err)
	}
	if h == nil {
		return nil, fmt.Errorf("decode header json: expected object")
	}
	return h, nil
}

// String returns the canonical string form of key, or false when the field is
// absent, null, or blank.
func (h Headers) String(key string) (string, bool) {
	if h == nil {
		return "", false
	}
	v, ok := h[key]
	if !ok {
		return "", false
	}
	s, ok := Canonical(v)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// Optional returns a pointer to the canonical string of key, or nil.
func (h Headers) Optional(key string) *string {
	if s, ok := h.String(key); ok {
		return &s
	}
	return nil
}

// Clone returns a deep copy of h.
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	out := make(Headers, len(h))
	for k, v := range h {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = cloneValue(inner)
		}
		return out
	case Headers:
		return val.Clone()
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = cloneValue(inner)
		}
		return out
	default:
		return v
	}
}

// Canonical renders a header value as a comparable string. Numbers lose any
// trailing ".0", multi-valued fields are joined with the DICOM backslash
// separator, and person-name objects collapse to their alphabetic form.
func Canonical(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return strings.TrimSpace(val), true
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return formatFloat(f), true
		}
		return val.String(), true
	case float64:
		return formatFloat(val), true
	case float32:
		return formatFloat(float64(val)), true
	case int:
		return strconv.Itoa(val), true
	case int32:
		return strconv.FormatInt(int64(val), 10), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case bool:
		return strconv.FormatBool(val), true
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := Canonical(item); ok {
				parts = append(parts, s)
			}
		}
		if len(parts) == 0 {
			return "", false
		}
		return strings.Join(parts, `\`), true
	case map[string]any:
		if name, ok := val["Alphabetic"]; ok {
			return Canonical(name)
		}
		return "", false
	default:
		return strings.TrimSpace(fmt.Sprint(val)), true
	}
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
