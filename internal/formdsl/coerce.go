package formdsl

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"astapp/internal/model"
)

// numericPrefix matches the leading number of a raw value; "70%" reads as 70
var numericPrefix = regexp.MustCompile(`^\s*[+-]?(?:\d+(?:\.\d*)?|\.\d+)(?:[eE][+-]?\d+)?`)

func coerceFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case int:
		return float64(t)
	case bool:
		if t {
			return 1
		}
		return 0
	case string:
		m := strings.TrimSpace(numericPrefix.FindString(t))
		if m == "" {
			return 0
		}
		f, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

func coerceInt(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	}
	f := coerceFloat(v)
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(f)
}

func coerceAppFields(f model.Fields) {
	if v, ok := f["group_id"]; ok {
		f["group_id"] = coerceInt(v)
	}
	if v, ok := f["pass_score"]; ok {
		f["pass_score"] = coerceFloat(v)
	}
}

// canonical converts a value that is not one of the coerced keys into the
// type Parse would produce for it: numbers become their string form.
func canonical(v any) any {
	switch t := v.(type) {
	case string, bool:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

func canonicalFields(f model.Fields) model.Fields {
	out := model.Fields{}
	for k, v := range f {
		if validKey(k) {
			out[k] = canonical(v)
		}
	}
	return out
}

// Normalize brings a config built outside the parser (for example decoded
// from JSON) into the shape Parse produces, so that it serializes and
// parses back to an equal value. Missing question ids and types get the
// same defaults the serializer would write.
func Normalize(cfg *model.FormConfig) {
	cfg.App = canonicalFields(cfg.App)
	coerceAppFields(cfg.App)
	cfg.Style = canonicalFields(cfg.Style)
	if cfg.Questions == nil {
		cfg.Questions = []model.Question{}
	}
	for i := range cfg.Questions {
		q := &cfg.Questions[i]
		if q.ID == "" {
			q.ID = defaultQuestionID(i)
		}
		if q.Type == "" {
			q.Type = model.QuestionTypeShortAnswer
		}
		if len(q.Options) == 0 {
			q.Options = nil
		}
		if len(q.Extra) == 0 {
			q.Extra = nil
		} else {
			extra := canonicalFields(q.Extra)
			for _, k := range questionKeys {
				delete(extra, k)
			}
			if len(extra) == 0 {
				extra = nil
			}
			q.Extra = extra
		}
	}
}

func defaultQuestionID(i int) string {
	return "q" + strconv.Itoa(i+1)
}
