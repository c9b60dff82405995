package qc

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/iamvazu/SQAN/internal/store"
)

var trailingDigits = regexp.MustCompile(`\d+$`)

// StripTrailingDigits removes a trailing run of digits, so template "abc123"
// is compared as "abc".
func StripTrailingDigits(s string) string {
	return trailingDigits.ReplaceAllString(s, "")
}

// PickTemplate returns the candidate that best matches a series description,
// or nil when none is eligible. A candidate is eligible when description
// contains its stripped description. Longer stripped descriptions, counted in
// characters, win, then the higher SeriesNumber, then the lower ID, so the
// result does not depend on candidate order.
func PickTemplate(description string, candidates []*store.Template) *store.Template {
	var (
		best    *store.Template
		bestLen int
	)
	for _, t := range candidates {
		if t == nil {
			continue
		}
		stripped := StripTrailingDigits(t.Description)
		if !strings.Contains(description, stripped) {
			continue
		}
		n := utf8.RuneCountInString(stripped)
		if best == nil || better(n, t, bestLen, best) {
			best = t
			bestLen = n
		}
	}
	return best
}

func better(n int, t *store.Template, bestLen int, best *store.Template) bool {
	if n != bestLen {
		return n > bestLen
	}
	if t.SeriesNumber != best.SeriesNumber {
		return t.SeriesNumber > best.SeriesNumber
	}
	return t.ID < best.ID
}

// TemplateSource is the store surface the Selector reads.
type TemplateSource interface {
	LatestTemplateExam(ctx context.Context, researchID string) (*store.TemplateExam, error)
	TemplatesByExam(ctx context.Context, examID string) ([]*store.Template, error)
}

// Selector resolves the template series for a series.
type Selector struct {
	source TemplateSource
}

// NewSelector constructs a Selector.
func NewSelector(source TemplateSource) *Selector {
	return &Selector{source: source}
}

// Select returns the template for series, or nil when there is none.
func (s *Selector) Select(ctx context.Context, series *store.Series) (*store.Template, error) {
	examID := ""
	if series.TemplateExamID != nil {
		examID = *series.TemplateExamID
	} else {
		exam, err := s.source.LatestTemplateExam(ctx, series.ResearchID)
		if err != nil {
			return nil, err
		}
		if exam == nil {
			return nil, nil
		}
		examID = exam.ID
	}
	templates, err := s.source.TemplatesByExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	return PickTemplate(series.Description, templates), nil
}
