package formdsl

import "strings"

// scanner walks DSL text one byte at a time. Every read is permissive:
// unterminated strings and blocks run to the end of input.
type scanner struct {
	src string
	pos int
}

func (s *scanner) eof() bool { return s.pos >= len(s.src) }

func (s *scanner) peek() byte {
	if s.eof() {
		return 0
	}
	return s.src[s.pos]
}

func (s *scanner) skipSpace() {
	for !s.eof() && isSpace(s.src[s.pos]) {
		s.pos++
	}
}

// skipInlineSpace skips spaces and tabs but stops at a newline, which
// terminates an entry
func (s *scanner) skipInlineSpace() {
	for !s.eof() && (s.src[s.pos] == ' ' || s.src[s.pos] == '\t') {
		s.pos++
	}
}

// word reads an identifier at the current position
func (s *scanner) word() string {
	start := s.pos
	for !s.eof() && isIdent(s.src[s.pos]) {
		s.pos++
	}
	return s.src[start:s.pos]
}

// quoted reads a double-quoted string starting at the opening quote and
// returns it unescaped
func (s *scanner) quoted() string {
	s.pos++ // opening quote
	var b strings.Builder
	for !s.eof() {
		c := s.src[s.pos]
		switch {
		case c == '\\' && s.pos+1 < len(s.src):
			s.pos += 2
			switch next := s.src[s.pos-1]; next {
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			default:
				b.WriteByte('\\')
				b.WriteByte(next)
			}
		case c == '"':
			s.pos++
			return b.String()
		default:
			b.WriteByte(c)
			s.pos++
		}
	}
	return b.String()
}

// skipQuoted advances past a quoted string without decoding it
func (s *scanner) skipQuoted() {
	s.pos++
	for !s.eof() {
		switch s.src[s.pos] {
		case '\\':
			s.pos += 2
			continue
		case '"':
			s.pos++
			return
		}
		s.pos++
	}
	if s.pos > len(s.src) {
		s.pos = len(s.src)
	}
}

// group reads a balanced open/close group starting at the opening byte and
// returns its inner text. Quoted strings inside the group are opaque.
func (s *scanner) group(open, close byte) string {
	s.pos++
	start := s.pos
	depth := 1
	for !s.eof() {
		switch s.src[s.pos] {
		case '"':
			s.skipQuoted()
			continue
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				inner := s.src[start:s.pos]
				s.pos++
				return inner
			}
		}
		s.pos++
	}
	return s.src[start:]
}

// skipToSeparator advances to the next entry separator outside of quotes
// and nested groups
func (s *scanner) skipToSeparator(commas bool) {
	for !s.eof() {
		c := s.src[s.pos]
		switch {
		case isSeparator(c, commas):
			return
		case c == '"':
			s.skipQuoted()
			continue
		case c == '{':
			s.group('{', '}')
			continue
		case c == '[':
			s.group('[', ']')
			continue
		}
		s.pos++
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdent(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isSeparator(c byte, commas bool) bool {
	return c == ';' || c == '\n' || (commas && c == ',')
}
