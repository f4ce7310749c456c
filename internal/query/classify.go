package query

import (
	"strings"
	"unicode"
)

// Class separates statements that only read from those that may write.
type Class string

const (
	ClassRead  Class = "read"
	ClassWrite Class = "write"
)

var readKeywords = map[string]bool{
	"SELECT":    true,
	"WITH":      true,
	"FROM":      true,
	"VALUES":    true,
	"TABLE":     true,
	"DESCRIBE":  true,
	"SHOW":      true,
	"SUMMARIZE": true,
	"EXPLAIN":   true,
	"PIVOT":     true,
	"UNPIVOT":   true,
}

// cacheable reports whether a read statement can be wrapped in COPY.
func cacheable(keyword string) bool {
	return readKeywords[keyword] && keyword != "EXPLAIN"
}

// Classify returns the statement class and its leading keyword.
// Unknown or empty statements are classified as writes.
func Classify(sql string) (Class, string) {
	kw := leadingKeyword(sql)
	if readKeywords[kw] {
		return ClassRead, kw
	}
	return ClassWrite, kw
}

// leadingKeyword skips whitespace, comments and opening parentheses and
// returns the first word upper-cased.
func leadingKeyword(sql string) string {
	s := sql
	for {
		s = strings.TrimLeftFunc(s, func(r rune) bool { return unicode.IsSpace(r) || r == '(' })
		switch {
		case strings.HasPrefix(s, "--"):
			if i := strings.IndexByte(s, '\n'); i >= 0 {
				s = s[i+1:]
				continue
			}
			return ""
		case strings.HasPrefix(s, "/*"):
			if i := strings.Index(s, "*/"); i >= 0 {
				s = s[i+2:]
				continue
			}
			return ""
		}
		break
	}
	end := strings.IndexFunc(s, func(r rune) bool { return !(unicode.IsLetter(r) || r == '_') })
	if end < 0 {
		end = len(s)
	}
	return strings.ToUpper(s[:end])
}

// trimStatement removes surrounding whitespace and trailing semicolons so the
// statement can be embedded in COPY or EXPLAIN.
func trimStatement(sql string) string {
	s := strings.TrimSpace(sql)
	for strings.HasSuffix(s, ";") {
		s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
	}
	return s
}
