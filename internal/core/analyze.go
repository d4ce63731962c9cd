package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"telecare/pkg"
)

// ErrNoJSON is returned when a classification reply contains no JSON object.
var ErrNoJSON = errors.New("no JSON object in completion reply")

// ExtractAnalysis pulls the classification verdict out of a free-text
// completion reply. The model is instructed to answer with JSON only but
// routinely wraps it in prose, so the span from the first '{' through the
// last '}' is taken and parsed. Failure here is a hard error; the pipeline
// does not retry.
func ExtractAnalysis(reply string) (*pkg.AnalysisResult, error) {
	span, err := extractJSONSpan(reply)
	if err != nil {
		return nil, err
	}
	var result pkg.AnalysisResult
	if err := json.Unmarshal([]byte(span), &result); err != nil {
		return nil, fmt.Errorf("malformed analysis JSON: %w", err)
	}
	return &result, nil
}

func extractJSONSpan(s string) (string, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return "", ErrNoJSON
	}
	return s[start : end+1], nil
}
