package qc_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamvazu/SQAN/internal/config"
	"github.com/iamvazu/SQAN/internal/header"
	"github.com/iamvazu/SQAN/internal/qc"
	"github.com/iamvazu/SQAN/internal/services"
)

func TestRuleEvaluator(t *testing.T) {
	ev, err := qc.NewRuleEvaluator([]config.Rule{
		{Field: "RepetitionTime", Check: "tolerance", Tolerance: 0.5, Severity: "error"},
		{Field: "FlipAngle", Check: "equal", Severity: "warning"},
		{Field: "ImageType", Check: "equal"},
		{Field: "PixelSpacing", Check: "tolerance", Tolerance: 0.01, Severity: "warning"},
		{Field: "CoilString", Check: "exists", Severity: "warning"},
		{Field: "RadionuclideTotalDose", Check: "exists", Severity: "error", Modality: "PT"},
	})
	require.NoError(t, err)

	template := header.Headers{
		"RepetitionTime": 2300,
		"FlipAngle":      9,
		"ImageType":      []any{"ORIGINAL", "PRIMARY"},
		"PixelSpacing":   []any{1.0, 1.0},
	}
	image := header.Headers{
		"Modality":       "MR",
		"RepetitionTime": 2300.4,
		"FlipAngle":      8,
		"PixelSpacing":   []any{1.0, 1.2},
	}

	errs, warnings := ev.Evaluate(image, template)

	require.Len(t, errs, 1)
	assert.Equal(t, "ImageType", errs[0].Field)
	assert.Equal(t, "field is missing", errs[0].Message)
	assert.Equal(t, `ORIGINAL\PRIMARY`, errs[0].Expected)

	require.Len(t, warnings, 3)
	assert.Equal(t, "FlipAngle", warnings[0].Field)
	assert.Equal(t, "9", warnings[0].Expected)
	assert.Equal(t, "8", warnings[0].Actual)
	assert.Equal(t, "PixelSpacing", warnings[1].Field)
	assert.Equal(t, "tolerance", warnings[1].Check)
	assert.Equal(t, "CoilString", warnings[2].Field)
}

func TestRuleEvaluatorSkipsFieldsAbsentFromTemplate(t *testing.T) {
	ev, err := qc.NewRuleEvaluator([]config.Rule{{Field: "EchoTime", Check: "equal"}})
	require.NoError(t, err)
	errs, warnings := ev.Evaluate(header.Headers{"EchoTime": 3}, header.Headers{})
	assert.Empty(t, errs)
	assert.Empty(t, warnings)
	assert.NotNil(t, errs)
}

func TestRuleEvaluatorNonNumericTolerance(t *testing.T) {
	ev, err := qc.NewRuleEvaluator([]config.Rule{{Field: "SliceThickness", Check: "tolerance", Tolerance: 0.1}})
	require.NoError(t, err)
	errs, _ := ev.Evaluate(header.Headers{"SliceThickness": "thick"}, header.Headers{"SliceThickness": 1})
	require.Len(t, errs, 1)
	assert.Equal(t, "value is not numeric", errs[0].Message)
}

func TestNewRuleEvaluatorRejectsBadRules(t *testing.T) {
	cases := map[string]config.Rule{
		"no field":     {Check: "equal"},
		"bad check":    {Field: "A", Check: "regex"},
		"bad severity": {Field: "A", Check: "equal", Severity: "fatal"},
		"negative tol": {Field: "A", Check: "tolerance", Tolerance: -1},
	}
	for name, rule := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := qc.NewRuleEvaluator([]config.Rule{rule})
			require.Error(t, err)
			assert.True(t, errors.Is(err, services.ErrConfiguration))
		})
	}
}
