package sqlite

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/iamvazu/SQAN/internal/header"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type rowScanner interface{ Scan(dest ...any) error }

func newID() string {
	return uuid.NewString()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(timeLayout, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

// dedupKey renders an identity tuple as JSON so nil parts stay distinct from
// empty strings and compare equal to each other.
func dedupKey(parts ...any) string {
	data, _ := json.Marshal(parts)
	return string(data)
}

func nullable(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

func fromNull(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}

func marshalJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeHeaders(raw sql.NullString) (header.Headers, error) {
	if !raw.Valid || raw.String == "" || raw.String == "null" {
		return nil, nil
	}
	return header.Decode([]byte(raw.String))
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
