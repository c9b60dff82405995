package textutil

import "testing"

func TestSanitizePathSegment(t *testing.T) {
	cases := map[string]string{
		"T1 MPRAGE":     "T1 MPRAGE",
		"  ":            NoneSegment,
		"":              NoneSegment,
		"a/b\\c":        "a-b-c",
		"..":            "__",
		".":             "_",
		"PET:CT <AC>?":  "PET-CT AC",
		"1.2.840.10008": "1.2.840.10008",
	}
	for in, want := range cases {
		if got := SanitizePathSegment(in); got != want {
			t.Errorf("SanitizePathSegment(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOptionalSegment(t *testing.T) {
	if got := OptionalSegment(nil); got != NoneSegment {
		t.Fatalf("expected %q for nil, got %q", NoneSegment, got)
	}
	site := "IU01"
	if got := OptionalSegment(&site); got != "IU01" {
		t.Fatalf("expected IU01, got %q", got)
	}
}

func TestSanitizeFileName(t *testing.T) {
	if got := SanitizeFileName(" a|b "); got != "ab" {
		t.Fatalf("unexpected sanitized name %q", got)
	}
}
