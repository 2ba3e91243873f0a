package inference

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSONObject means no balanced JSON object was found in the reply text.
var ErrNoJSONObject = errors.New("inference: reply contains no JSON object")

// ExtractJSONObject locates the first balanced JSON object in text. Models
// routinely wrap their answer in prose or a fenced code block, so the
// scanner tracks brace depth outside of string literals instead of trusting
// the reply to be bare JSON.
func ExtractJSONObject(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", ErrNoJSONObject
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", ErrNoJSONObject
}

// assessmentReply is the structured answer expected from the generative
// backend.
type assessmentReply struct {
	RiskScore       *float64 `json:"risk_score"`
	Explanation     string   `json:"explanation"`
	Recommendations []string `json:"recommendations"`
}

// ParseAssessment extracts and validates the structured reply. It fails
// closed: any missing or invalid required field fails the secondary tier
// rather than letting partially populated data through.
func ParseAssessment(text string) (*assessmentReply, error) {
	obj, err := ExtractJSONObject(text)
	if err != nil {
		return nil, err
	}
	var reply assessmentReply
	if err := json.Unmarshal([]byte(obj), &reply); err != nil {
		return nil, fmt.Errorf("inference: parse reply: %w", err)
	}
	if reply.RiskScore == nil {
		return nil, fmt.Errorf("inference: reply missing risk_score")
	}
	if *reply.RiskScore < 0 || *reply.RiskScore > 100 {
		return nil, fmt.Errorf("inference: risk_score %.1f out of range", *reply.RiskScore)
	}
	if strings.TrimSpace(reply.Explanation) == "" {
		return nil, fmt.Errorf("inference: reply missing explanation")
	}
	if len(reply.Recommendations) == 0 {
		return nil, fmt.Errorf("inference: reply missing recommendations")
	}
	return &reply, nil
}
