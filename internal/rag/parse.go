package rag

import (
	"encoding/json"
	"errors"
	"strings"

	"agentic-rag/internal/models"
)

const fence = "```"

// ErrNotJSONObject is returned by DecodeAnswer when the text is not a JSON object.
var ErrNotJSONObject = errors.New("model output is not a JSON object")

// StripFences trims the text and removes one leading ```json marker and
// one trailing ``` marker. Other fences are left alone.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, fence+"json")
	s = strings.TrimSuffix(strings.TrimSpace(s), fence)
	return strings.TrimSpace(s)
}

// DecodeAnswer parses a JSON object into an Answer. Each key is decoded on
// its own: a missing or mistyped key keeps its default and marks the
// answer incomplete rather than failing the whole decode.
func DecodeAnswer(text string) (models.Answer, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &fields); err != nil || fields == nil {
		return models.Answer{}, ErrNotJSONObject
	}

	ans := models.Answer{
		Answer:      models.AnswerParseError,
		UsedContext: []string{},
		Status:      models.StatusOK,
	}

	var answer string
	if decodeField(fields, "answer", &answer) {
		ans.Answer = answer
	} else {
		ans.Status = models.StatusIncomplete
	}

	var confidence float64
	if decodeField(fields, "confidence", &confidence) {
		ans.Confidence = clamp01(confidence)
	} else {
		ans.Status = models.StatusIncomplete
	}

	var used []string
	if decodeField(fields, "used_context", &used) {
		if used != nil {
			ans.UsedContext = used
		}
	} else {
		ans.Status = models.StatusIncomplete
	}

	return ans, nil
}

// ParseAnswer never fails: text that is not a JSON object becomes the
// answer itself with zero confidence.
func ParseAnswer(raw string) models.Answer {
	text := StripFences(raw)
	ans, err := DecodeAnswer(text)
	if err != nil {
		return models.Answer{
			Answer:      text,
			Confidence:  0,
			UsedContext: []string{},
			Status:      models.StatusUnparsed,
		}
	}
	return ans
}

func decodeField(fields map[string]json.RawMessage, key string, dst interface{}) bool {
	raw, ok := fields[key]
	if !ok || string(raw) == "null" {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
