package qc

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/iamvazu/SQAN/internal/config"
	"github.com/iamvazu/SQAN/internal/header"
	"github.com/iamvazu/SQAN/internal/services"
	"github.com/iamvazu/SQAN/internal/store"
)

// Rule checks.
const (
	CheckEqual     = "equal"
	CheckTolerance = "tolerance"
	CheckExists    = "exists"
)

// Severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Evaluator compares an image's headers with its template's headers.
type Evaluator interface {
	Evaluate(image, template header.Headers) (errs, warnings []store.Finding)
}

// RuleEvaluator applies a configured rule table.
type RuleEvaluator struct {
	rules []config.Rule
}

// NewRuleEvaluator validates rules and returns an evaluator for them.
func NewRuleEvaluator(rules []config.Rule) (*RuleEvaluator, error) {
	out := make([]config.Rule, 0, len(rules))
	for i, r := range rules {
		r.Field = strings.TrimSpace(r.Field)
		r.Check = strings.ToLower(strings.TrimSpace(r.Check))
		r.Severity = strings.ToLower(strings.TrimSpace(r.Severity))
		r.Modality = strings.TrimSpace(r.Modality)
		if r.Field == "" {
			return nil, services.Wrap(services.ErrConfiguration, "qc", "rules", fmt.Sprintf("qc.rules[%d].field is required", i), nil)
		}
		switch r.Check {
		case CheckEqual, CheckExists:
		case CheckTolerance:
			if r.Tolerance < 0 {
				return nil, services.Wrap(services.ErrConfiguration, "qc", "rules", fmt.Sprintf("qc.rules[%d].tolerance must be >= 0", i), nil)
			}
		default:
			return nil, services.Wrap(services.ErrConfiguration, "qc", "rules", fmt.Sprintf("qc.rules[%d].check %q is not one of equal, tolerance, exists", i, r.Check), nil)
		}
		if r.Severity == "" {
			r.Severity = SeverityError
		}
		if r.Severity != SeverityError && r.Severity != SeverityWarning {
			return nil, services.Wrap(services.ErrConfiguration, "qc", "rules", fmt.Sprintf("qc.rules[%d].severity %q is not error or warning", i, r.Severity), nil)
		}
		out = append(out, r)
	}
	return &RuleEvaluator{rules: out}, nil
}

// Evaluate runs every rule that applies to the image's modality.
func (e *RuleEvaluator) Evaluate(image, template header.Headers) (errs, warnings []store.Finding) {
	errs = []store.Finding{}
	warnings = []store.Finding{}
	modality, _ := image.String("Modality")
	for _, r := range e.rules {
		if r.Modality != "" && !strings.EqualFold(r.Modality, modality) {
			continue
		}
		finding, ok := apply(r, image, template)
		if !ok {
			continue
		}
		if r.Severity == SeverityWarning {
			warnings = append(warnings, finding)
		} else {
			errs = append(errs, finding)
		}
	}
	return errs, warnings
}

// apply returns a finding when r is violated.
func apply(r config.Rule, image, template header.Headers) (store.Finding, bool) {
	actual, hasActual := image.String(r.Field)
	if r.Check == CheckExists {
		if hasActual {
			return store.Finding{}, false
		}
		return store.Finding{Field: r.Field, Check: r.Check, Message: "field is missing"}, true
	}

	expected, hasExpected := template.String(r.Field)
	if !hasExpected {
		return store.Finding{}, false
	}
	if !hasActual {
		return store.Finding{Field: r.Field, Check: r.Check, Message: "field is missing", Expected: expected}, true
	}

	switch r.Check {
	case CheckTolerance:
		if msg, ok := withinTolerance(actual, expected, r.Tolerance); !ok {
			return store.Finding{Field: r.Field, Check: r.Check, Message: msg, Expected: expected, Actual: actual}, true
		}
	default:
		if actual != expected {
			return store.Finding{Field: r.Field, Check: r.Check, Message: "value does not match template", Expected: expected, Actual: actual}, true
		}
	}
	return store.Finding{}, false
}

// withinTolerance compares backslash-separated numeric values element-wise.
func withinTolerance(actual, expected string, tolerance float64) (string, bool) {
	av := strings.Split(actual, `\`)
	ev := strings.Split(expected, `\`)
	if len(av) != len(ev) {
		return fmt.Sprintf("expected %d values, got %d", len(ev), len(av)), false
	}
	for i := range av {
		a, errA := strconv.ParseFloat(strings.TrimSpace(av[i]), 64)
		x, errE := strconv.ParseFloat(strings.TrimSpace(ev[i]), 64)
		if errA != nil || errE != nil {
			return "value is not numeric", false
		}
		if math.Abs(a-x) > tolerance {
			return fmt.Sprintf("differs from template by more than %g", tolerance), false
		}
	}
	return "", true
}
