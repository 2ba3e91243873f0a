package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONObjectBare(t *testing.T) {
	obj, err := ExtractJSONObject(`{"risk_score": 50}`)
	require.NoError(t, err)
	assert.Equal(t, `{"risk_score": 50}`, obj)
}

func TestExtractJSONObjectFencedBlock(t *testing.T) {
	text := "Sure, here is the assessment:\n```json\n{\"risk_score\": 70, \"explanation\": \"x\"}\n```\nLet me know if you need more."
	obj, err := ExtractJSONObject(text)
	require.NoError(t, err)
	assert.JSONEq(t, `{"risk_score": 70, "explanation": "x"}`, obj)
}

func TestExtractJSONObjectNestedBraces(t *testing.T) {
	text := `prefix {"a": {"b": {"c": 1}}, "d": 2} suffix {"other": true}`
	obj, err := ExtractJSONObject(text)
	require.NoError(t, err)
	assert.Equal(t, `{"a": {"b": {"c": 1}}, "d": 2}`, obj)
}

func TestExtractJSONObjectBracesInsideStrings(t *testing.T) {
	text := `{"explanation": "uses { and } freely", "quote": "she said \"}\"", "n": 1}`
	obj, err := ExtractJSONObject(text)
	require.NoError(t, err)
	assert.Equal(t, text, obj)
}

func TestExtractJSONObjectMissing(t *testing.T) {
	_, err := ExtractJSONObject("no json here at all")
	assert.ErrorIs(t, err, ErrNoJSONObject)

	_, err = ExtractJSONObject(`{"unterminated": true`)
	assert.ErrorIs(t, err, ErrNoJSONObject)
}

func TestParseAssessmentValid(t *testing.T) {
	reply, err := ParseAssessment(`The model replied:
{"risk_score": 82.5, "explanation": "sustained incident growth", "recommendations": ["escalate", "audit"]}`)
	require.NoError(t, err)
	assert.Equal(t, 82.5, *reply.RiskScore)
	assert.Equal(t, "sustained incident growth", reply.Explanation)
	assert.Len(t, reply.Recommendations, 2)
}

func TestParseAssessmentRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"missing risk":          `{"explanation": "x", "recommendations": ["a"]}`,
		"risk out of range":     `{"risk_score": 140, "explanation": "x", "recommendations": ["a"]}`,
		"negative risk":         `{"risk_score": -3, "explanation": "x", "recommendations": ["a"]}`,
		"blank explanation":     `{"risk_score": 50, "explanation": "  ", "recommendations": ["a"]}`,
		"empty recommendations": `{"risk_score": 50, "explanation": "x", "recommendations": []}`,
		"not json":              `risk is about 50 out of 100`,
	}
	for name, text := range cases {
		_, err := ParseAssessment(text)
		assert.Error(t, err, name)
	}
}
