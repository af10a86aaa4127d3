package client

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/menta2k/image-annotator/pkg/types"
)

var (
	reBlockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment   = regexp.MustCompile(`(?m)^\s*//.*$`)
	reInlineComment = regexp.MustCompile(`(?m)\s//.*$`)
	reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// ParseSuggestions parses the JSON reply of a vision model. Replies that are
// not JSON at all yield an empty result rather than an error, since models
// routinely answer "nothing found" in prose.
func ParseSuggestions(raw string) (*types.SuggestionResult, error) {
	raw = SanitizeModelJSON(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty model response")
	}

	if strings.HasPrefix(raw, "[") {
		var objs []types.Detection
		if err := json.Unmarshal([]byte(raw), &objs); err != nil {
			return nil, fmt.Errorf("failed to parse model response: %w", err)
		}
		return &types.SuggestionResult{Objects: objs}, nil
	}

	if !strings.HasPrefix(raw, "{") {
		return &types.SuggestionResult{Description: "model returned non-JSON response"}, nil
	}

	var result types.SuggestionResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("failed to parse model response: %w", err)
	}
	return &result, nil
}

// SanitizeModelJSON removes code fences, comments, and trailing commas from a model reply
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reInlineComment.ReplaceAllString(raw, "")
	raw = reTrailingComma.ReplaceAllString(raw, "$1")

	// Keep only the outermost object or array
	open, close := "{", "}"
	if a, o := strings.Index(raw, "["), strings.Index(raw, "{"); a >= 0 && (o < 0 || a < o) {
		open, close = "[", "]"
	}
	if start := strings.Index(raw, open); start >= 0 {
		if end := strings.LastIndex(raw, close); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
