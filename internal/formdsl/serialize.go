package formdsl

import (
	"sort"
	"strconv"
	"strings"

	"astapp/internal/model"
)

// appKeys are written first, in this order
var appKeys = []string{"id", "creator_id", "group_id", "pass_score", "target_role"}

// questionKeys are the keys with dedicated Question fields
var questionKeys = []string{
	"id", "type", "text", "points", "max_score", "max_length",
	"options", "scoring", "grading_criteria",
}

// Serialize renders a config as DSL text: APP, STYLE, then every question
// in order. Formatting is canonical, not a copy of the original input.
func Serialize(cfg *model.FormConfig) string {
	var parts []string

	var b strings.Builder
	b.WriteString("APP {\n")
	writeFields(&b, "  ", cfg.App, appKeys)
	b.WriteString("}\n")
	parts = append(parts, b.String())

	b.Reset()
	b.WriteString("STYLE {\n")
	writeFields(&b, "  ", cfg.Style, nil)
	b.WriteString("}\n")
	parts = append(parts, b.String())

	for i, q := range cfg.Questions {
		parts = append(parts, serializeQuestion(i, &q))
	}
	return strings.Join(parts, "\n")
}

func serializeQuestion(i int, q *model.Question) string {
	id := q.ID
	if id == "" {
		id = defaultQuestionID(i)
	}
	qType := string(q.Type)
	if qType == "" {
		qType = string(model.QuestionTypeShortAnswer)
	}

	var b strings.Builder
	b.WriteString("QUESTION " + quote(id) + " TYPE " + quote(qType) + " {\n")
	if q.Text != "" {
		writeEntry(&b, "  ", "text", q.Text)
	}
	if q.Points != nil {
		writeEntry(&b, "  ", "points", *q.Points)
	}
	if q.MaxScore != nil {
		writeEntry(&b, "  ", "max_score", *q.MaxScore)
	}
	if q.MaxLength != nil {
		writeEntry(&b, "  ", "max_length", *q.MaxLength)
	}
	if q.GradingCriteria != "" {
		writeEntry(&b, "  ", "grading_criteria", q.GradingCriteria)
	}
	if len(q.Options) > 0 {
		b.WriteString("  options: [\n")
		for _, opt := range q.Options {
			b.WriteString("    {id: " + quote(opt.ID) + ", text: " + quote(opt.Text) + ", correct: " + strconv.FormatBool(opt.Correct) + "},\n")
		}
		b.WriteString("  ];\n")
	}
	if q.Scoring != nil {
		b.WriteString("  scoring: {\n")
		if q.Scoring.PointsPerCorrect != nil {
			writeEntry(&b, "    ", "points_per_correct", *q.Scoring.PointsPerCorrect)
		}
		if q.Scoring.PenaltyPerIncorrect != nil {
			writeEntry(&b, "    ", "penalty_per_incorrect", *q.Scoring.PenaltyPerIncorrect)
		}
		b.WriteString("  };\n")
	}

	extra := model.Fields{}
	for k, v := range q.Extra {
		if !isQuestionKey(k) {
			extra[k] = v
		}
	}
	writeFields(&b, "  ", extra, nil)
	b.WriteString("}\n")
	return b.String()
}

// writeFields writes the ordered keys first, then the rest sorted
func writeFields(b *strings.Builder, indent string, f model.Fields, ordered []string) {
	done := make(map[string]bool, len(ordered))
	for _, k := range ordered {
		if v, ok := f[k]; ok {
			writeEntry(b, indent, k, v)
		}
		done[k] = true
	}
	rest := make([]string, 0, len(f))
	for k := range f {
		if !done[k] && validKey(k) {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		writeEntry(b, indent, k, f[k])
	}
}

func writeEntry(b *strings.Builder, indent, key string, v any) {
	b.WriteString(indent + key + ": " + formatValue(v) + ";\n")
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return quote(t)
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return `""`
	}
	return quote(canonical(v).(string))
}

var escaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`)

func quote(s string) string {
	return `"` + escaper.Replace(s) + `"`
}

// validKey reports whether k can be written as an entry key
func validKey(k string) bool {
	return strings.TrimSpace(k) == k && k != "" && !strings.ContainsAny(k, ":;,\"{}[]\n\r\t ")
}

func isQuestionKey(k string) bool {
	for _, qk := range questionKeys {
		if k == qk {
			return true
		}
	}
	return false
}
