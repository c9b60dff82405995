package textutil

import "strings"

// NoneSegment stands in for an absent or blank path segment.
const NoneSegment = "_none"

// fileNameReplacer replaces filesystem-unsafe characters with safe alternatives.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
	"\x00", "",
)

// SanitizeFileName replaces filesystem-unsafe characters in a filename.
// Slashes, backslashes, colons, and asterisks become dashes; other unsafe
// characters are removed. The result is trimmed of leading/trailing whitespace.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return strings.TrimSpace(fileNameReplacer.Replace(name))
}

// SanitizePathSegment turns a header value into a single directory name.
// Blank values become NoneSegment and dot-only names are neutralised so a
// segment can never climb out of its parent.
func SanitizePathSegment(value string) string {
	out := SanitizeFileName(value)
	if out == "" {
		return NoneSegment
	}
	if strings.Trim(out, ".") == "" {
		return strings.Repeat("_", len(out))
	}
	return out
}

// OptionalSegment sanitises value, mapping nil to NoneSegment.
func OptionalSegment(value *string) string {
	if value == nil {
		return NoneSegment
	}
	return SanitizePathSegment(*value)
}
