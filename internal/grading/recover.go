package grading

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	scoreField = regexp.MustCompile(`(?i)"score"\s*:\s*([0-9]+(?:\.[0-9]+)?)`)
	scoreRatio = regexp.MustCompile(`(?i)([0-9]+(?:\.[0-9]+)?)\s*(?:/|out of)\s*([0-9]+(?:\.[0-9]+)?)`)
)

type recovery int

const (
	recoveredNone recovery = iota
	recoveredJSON
	recoveredField
	recoveredRatio
)

type recovered struct {
	how      recovery
	score    float64
	feedback string
}

// recoverScore extracts a score from model text, trying a JSON object
// first, then a "score": n fragment, then an n/m or "n out of m" ratio
func recoverScore(text string, maxScore float64) recovered {
	if score, feedback, ok := scoreObject(text); ok {
		return recovered{how: recoveredJSON, score: clamp(score, maxScore), feedback: feedback}
	}

	if m := scoreField.FindStringSubmatch(text); m != nil {
		score, _ := strconv.ParseFloat(m[1], 64)
		return recovered{how: recoveredField, score: clamp(score, maxScore), feedback: strings.TrimSpace(text)}
	}

	if m := scoreRatio.FindStringSubmatch(text); m != nil {
		num, _ := strconv.ParseFloat(m[1], 64)
		den, _ := strconv.ParseFloat(m[2], 64)
		if den <= 0 {
			den = maxScore
		}
		scaled := 0.0
		if den > 0 {
			scaled = clamp(num/den*maxScore, maxScore)
		}
		return recovered{how: recoveredRatio, score: round2(scaled), feedback: strings.TrimSpace(text)}
	}

	return recovered{how: recoveredNone}
}

// scoreObject finds the first top-level {...} in text that decodes to an
// object with a numeric score
func scoreObject(text string) (float64, string, bool) {
	var score float64
	var feedback string
	found := eachObject(text, func(obj map[string]any) bool {
		v, ok := numeric(obj["score"])
		if !ok {
			return false
		}
		score = v
		feedback, _ = obj["feedback"].(string)
		return true
	})
	return score, feedback, found
}

// ExtractObject returns the first JSON object embedded in model text.
// Prose and markdown fences around the object are ignored.
func ExtractObject(text string) (map[string]any, bool) {
	var found map[string]any
	ok := eachObject(text, func(obj map[string]any) bool {
		found = obj
		return true
	})
	return found, ok
}

// eachObject calls fn on every balanced {...} in text that decodes as a
// JSON object, until fn returns true
func eachObject(text string, fn func(obj map[string]any) bool) bool {
	for i := 0; i < len(text); {
		start := strings.IndexByte(text[i:], '{')
		if start < 0 {
			return false
		}
		start += i
		end := matchBrace(text, start)
		if end < 0 {
			return false
		}

		var obj map[string]any
		if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err != nil {
			i = start + 1
			continue
		}
		if fn(obj) {
			return true
		}
		i = end + 1
	}
	return false
}

// matchBrace returns the index of the brace closing the one at start, or
// -1. Braces inside JSON strings are ignored.
func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
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
				return i
			}
		}
	}
	return -1
}

func numeric(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	}
	return 0, false
}

func clamp(score, maxScore float64) float64 {
	return math.Max(0, math.Min(maxScore, score))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// provisional is the score assigned when the backend gives no usable answer
func provisional(maxScore float64) float64 {
	return round2(maxScore / 2)
}
