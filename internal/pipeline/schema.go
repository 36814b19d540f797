package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseEvaluation decodes the provider's evaluation response. Markdown
// fences around the JSON are tolerated; anything that fails to decode
// into the expected shape, or carries an out-of-range score, is a
// MalformedEvaluationError.
func ParseEvaluation(raw string) (Evaluation, error) {
	trimmed := stripFences(raw)

	var eval Evaluation
	if err := json.Unmarshal([]byte(trimmed), &eval); err != nil {
		return Evaluation{}, &MalformedEvaluationError{Raw: raw, Err: err}
	}
	if eval.Score < 0 || eval.Score > 100 {
		return Evaluation{}, &MalformedEvaluationError{
			Raw: raw,
			Err: fmt.Errorf("score %d out of range 0-100", eval.Score),
		}
	}
	if strings.TrimSpace(eval.Assessment) == "" {
		return Evaluation{}, &MalformedEvaluationError{
			Raw: raw,
			Err: fmt.Errorf("missing assessment"),
		}
	}
	if eval.Strengths == nil {
		eval.Strengths = []string{}
	}
	if eval.Improvements == nil {
		eval.Improvements = []string{}
	}
	if eval.MissingElements == nil {
		eval.MissingElements = []string{}
	}
	return eval, nil
}

// stripFences removes a single wrapping markdown code fence, which some
// models add despite instructions.
func stripFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		// Drop a language tag on the fence line.
		first := strings.TrimSpace(trimmed[:idx])
		if first == "" || isFenceTag(first) {
			trimmed = trimmed[idx+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

func isFenceTag(s string) bool {
	switch strings.ToLower(s) {
	case "json", "latex", "tex", "text":
		return true
	default:
		return false
	}
}
