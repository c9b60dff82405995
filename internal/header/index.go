package header

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/iamvazu/SQAN/internal/services"
)

// ErrMissingIndexField is returned when one of the search index source fields
// is absent or empty.
var ErrMissingIndexField = errors.New("missing index field")

// IndexFields are the header keywords concatenated into the search index key.
var IndexFields = []string{"Modality", "ManufacturerModelName", "StationName", "SoftwareVersions"}

var nonWord = regexp.MustCompile(`\W+`)

// IndexKey builds "modality.model.station.version" with each part lower-cased
// and every run of non-alphanumerics replaced by "_".
func IndexKey(h Headers) (string, error) {
	parts := make([]string, 0, len(IndexFields))
	for _, field := range IndexFields {
		value, ok := h.String(field)
		if !ok {
			return "", services.Wrap(services.ErrMalformedHeader, "header", "index key", field,
				fmt.Errorf("%w: %s", ErrMissingIndexField, field))
		}
		parts = append(parts, strings.ToLower(nonWord.ReplaceAllString(value, "_")))
	}
	return strings.Join(parts, "."), nil
}
