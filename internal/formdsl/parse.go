// Package formdsl parses and serializes the .astappcnt form DSL.
//
// A document is a sequence of blocks:
//
//	APP { id: "recruits"; group_id: 123; pass_score: 70; }
//	STYLE { theme: "dark"; }
//	QUESTION "q1" TYPE "multiple_choice" {
//	  text: "Pick one";
//	  points: 10;
//	  options: [ {id: "a", text: "A", correct: true}, {id: "b", text: "B"} ];
//	}
//
// Parsing is permissive: unknown text is skipped and missing blocks yield
// empty values. Parse never fails.
package formdsl

import (
	"strings"

	"astapp/internal/model"
)

type valueKind int

const (
	kindScalar valueKind = iota
	kindList             // [ ... ]
	kindBlock            // { ... }
)

type rawValue struct {
	kind   valueKind
	text   string
	quoted bool
}

type entry struct {
	key   string
	value rawValue
}

// Parse converts DSL text into a FormConfig. Only the first APP and STYLE
// blocks are used; QUESTION blocks are collected in document order.
func Parse(text string) *model.FormConfig {
	cfg := model.NewFormConfig()
	s := &scanner{src: strings.ReplaceAll(text, "\r\n", "\n")}

	seenApp, seenStyle := false, false
	for !s.eof() {
		c := s.peek()
		switch {
		case c == '"':
			s.skipQuoted()
		case c == '{':
			s.group('{', '}')
		case isIdent(c):
			switch s.word() {
			case "APP":
				if body, ok := blockBody(s); ok && !seenApp {
					seenApp = true
					cfg.App = appFields(parseEntries(body, false))
				}
			case "STYLE":
				if body, ok := blockBody(s); ok && !seenStyle {
					seenStyle = true
					cfg.Style = fieldsFromEntries(parseEntries(body, false))
				}
			case "QUESTION":
				if q, ok := questionBlock(s); ok {
					cfg.Questions = append(cfg.Questions, q)
				}
			}
		default:
			s.pos++
		}
	}
	return cfg
}

// blockBody reads `{ ... }` after a block keyword. On mismatch the scanner
// is left where it was.
func blockBody(s *scanner) (string, bool) {
	mark := s.pos
	s.skipSpace()
	if s.peek() != '{' {
		s.pos = mark
		return "", false
	}
	return s.group('{', '}'), true
}

// questionBlock reads `"<id>" TYPE "<type>" { ... }` after QUESTION
func questionBlock(s *scanner) (model.Question, bool) {
	mark := s.pos
	fail := func() (model.Question, bool) {
		s.pos = mark
		return model.Question{}, false
	}

	s.skipSpace()
	if s.peek() != '"' {
		return fail()
	}
	id := s.quoted()
	s.skipSpace()
	if s.word() != "TYPE" {
		return fail()
	}
	s.skipSpace()
	if s.peek() != '"' {
		return fail()
	}
	qType := s.quoted()
	body, ok := blockBody(s)
	if !ok || id == "" || qType == "" {
		return fail()
	}

	q := questionFromEntries(parseEntries(body, false))
	q.ID = id
	q.Type = model.QuestionType(qType)
	return q, true
}

// parseEntries splits a block body into key: value entries. Entries end at
// `;` or a newline, and also at `,` inside option groups. Keys containing
// spaces or delimiters are skipped along with their value.
func parseEntries(body string, commas bool) []entry {
	s := &scanner{src: body}
	var entries []entry
	for {
		for !s.eof() && (isSpace(s.peek()) || isSeparator(s.peek(), commas)) {
			s.pos++
		}
		if s.eof() {
			return entries
		}

		start := s.pos
		for !s.eof() && s.peek() != ':' && !isSeparator(s.peek(), commas) && !strings.ContainsRune(`"{[`, rune(s.peek())) {
			s.pos++
		}
		if s.peek() != ':' {
			s.skipToSeparator(commas)
			continue
		}
		key := strings.TrimSpace(s.src[start:s.pos])
		s.pos++ // colon
		s.skipInlineSpace()

		var v rawValue
		switch s.peek() {
		case '"':
			v = rawValue{kind: kindScalar, text: s.quoted(), quoted: true}
			s.skipToSeparator(commas)
		case '[':
			v = rawValue{kind: kindList, text: s.group('[', ']')}
			s.skipToSeparator(commas)
		case '{':
			v = rawValue{kind: kindBlock, text: s.group('{', '}')}
			s.skipToSeparator(commas)
		default:
			vstart := s.pos
			for !s.eof() && !isSeparator(s.peek(), commas) {
				s.pos++
			}
			v = rawValue{kind: kindScalar, text: strings.TrimSpace(s.src[vstart:s.pos])}
		}
		// keys the serializer cannot write back are malformed entries
		if !validKey(key) {
			continue
		}
		entries = append(entries, entry{key: key, value: v})
	}
}

// scalar converts a raw value into its field value: string, or bool for
// a bare true/false. Nested groups keep their delimiters as text.
func (v rawValue) scalar() any {
	switch v.kind {
	case kindList:
		return "[" + v.text + "]"
	case kindBlock:
		return "{" + v.text + "}"
	}
	if !v.quoted {
		switch v.text {
		case "true":
			return true
		case "false":
			return false
		}
	}
	return v.text
}

func (v rawValue) String() string {
	switch s := v.scalar().(type) {
	case string:
		return s
	case bool:
		if s {
			return "true"
		}
		return "false"
	}
	return ""
}

func fieldsFromEntries(entries []entry) model.Fields {
	f := model.Fields{}
	for _, e := range entries {
		f[e.key] = e.value.scalar()
	}
	return f
}

func appFields(entries []entry) model.Fields {
	f := fieldsFromEntries(entries)
	coerceAppFields(f)
	return f
}

func questionFromEntries(entries []entry) model.Question {
	var q model.Question
	for _, e := range entries {
		switch e.key {
		case "id", "type":
			// the block header is authoritative
		case "text":
			q.Text = e.value.String()
		case "grading_criteria":
			q.GradingCriteria = e.value.String()
		case "points":
			q.Points = model.Float(coerceFloat(e.value.scalar()))
		case "max_score":
			q.MaxScore = model.Float(coerceFloat(e.value.scalar()))
		case "max_length":
			q.MaxLength = model.Int(int(coerceInt(e.value.scalar())))
		case "options":
			if e.value.kind == kindList {
				q.Options = parseOptions(e.value.text)
			}
		case "scoring":
			if e.value.kind == kindBlock {
				q.Scoring = parseScoring(e.value.text)
			}
		default:
			if q.Extra == nil {
				q.Extra = model.Fields{}
			}
			q.Extra[e.key] = e.value.scalar()
		}
	}
	return q
}

// parseOptions reads a sequence of {id, text, correct} brace groups
func parseOptions(text string) []model.Option {
	s := &scanner{src: text}
	var opts []model.Option
	for !s.eof() {
		switch s.peek() {
		case '"':
			s.skipQuoted()
		case '{':
			var opt model.Option
			for _, e := range parseEntries(s.group('{', '}'), true) {
				switch e.key {
				case "id":
					opt.ID = e.value.String()
				case "text":
					opt.Text = e.value.String()
				case "correct":
					opt.Correct = e.value.String() == "true"
				}
			}
			opts = append(opts, opt)
		default:
			s.pos++
		}
	}
	return opts
}

func parseScoring(text string) *model.Scoring {
	sc := &model.Scoring{}
	for _, e := range parseEntries(text, false) {
		switch e.key {
		case "points_per_correct":
			sc.PointsPerCorrect = model.Float(coerceFloat(e.value.scalar()))
		case "penalty_per_incorrect":
			sc.PenaltyPerIncorrect = model.Float(coerceFloat(e.value.scalar()))
		}
	}
	return sc
}
