package engine

import (
	"fmt"
	"strings"
)

type spanKind int

const (
	spanCode spanKind = iota
	spanString
	spanComment
)

// span is a run of sql that is plain code, a quoted literal or identifier,
// or a comment. An unterminated literal or comment runs to the end.
type span struct {
	kind   spanKind
	start  int
	end    int
	closed bool
}

// lexSQL splits sql into spans so that separators and keywords inside
// quotes, dollar-quoted strings and comments are never mistaken for code.
func lexSQL(sql string) []span {
	var out []span
	start := 0
	i := 0
	for i < len(sql) {
		c := sql[i]
		var (
			kind   spanKind
			end    int
			closed bool
		)
		switch {
		case c == '\'':
			kind = spanString
			end, closed = scanQuoted(sql, i, '\'', backslashEscapes(sql, i))
		case c == '"':
			kind = spanString
			end, closed = scanQuoted(sql, i, '"', false)
		case c == '-' && strings.HasPrefix(sql[i:], "--"):
			kind = spanComment
			end, closed = len(sql), true
			if j := strings.IndexByte(sql[i:], '\n'); j >= 0 {
				end = i + j + 1
			}
		case c == '/' && strings.HasPrefix(sql[i:], "/*"):
			kind = spanComment
			end, closed = scanBlockComment(sql, i)
		case c == '$':
			tag, ok := dollarTag(sql, i)
			if !ok {
				i++
				continue
			}
			kind = spanString
			end = len(sql)
			if j := strings.Index(sql[i+len(tag):], tag); j >= 0 {
				end, closed = i+len(tag)+j+len(tag), true
			}
		default:
			i++
			continue
		}
		if i > start {
			out = append(out, span{kind: spanCode, start: start, end: i, closed: true})
		}
		out = append(out, span{kind: kind, start: i, end: end, closed: closed})
		i, start = end, end
	}
	if len(sql) > start {
		out = append(out, span{kind: spanCode, start: start, end: len(sql), closed: true})
	}
	return out
}

func scanQuoted(sql string, i int, quote byte, backslash bool) (int, bool) {
	for j := i + 1; j < len(sql); j++ {
		switch {
		case backslash && sql[j] == '\\':
			j++
		case sql[j] == quote:
			if j+1 < len(sql) && sql[j+1] == quote {
				j++
				continue
			}
			return j + 1, true
		}
	}
	return len(sql), false
}

// scanBlockComment handles nested block comments.
func scanBlockComment(sql string, i int) (int, bool) {
	depth := 0
	for j := i; j+1 < len(sql); {
		switch {
		case sql[j] == '/' && sql[j+1] == '*':
			depth++
			j += 2
		case sql[j] == '*' && sql[j+1] == '/':
			depth--
			j += 2
			if depth == 0 {
				return j, true
			}
		default:
			j++
		}
	}
	return len(sql), false
}

// backslashEscapes reports whether the quote at i opens an E'...' string.
func backslashEscapes(sql string, i int) bool {
	if i == 0 || (sql[i-1] != 'E' && sql[i-1] != 'e') {
		return false
	}
	return i == 1 || !isWordByte(sql[i-2])
}

// dollarTag returns the opening tag of a dollar-quoted string at i, such as
// $$ or $body$. Positional parameters like $1 are not tags.
func dollarTag(sql string, i int) (string, bool) {
	if i > 0 && isWordByte(sql[i-1]) {
		return "", false
	}
	j := i + 1
	if j < len(sql) && (isLetterByte(sql[j]) || sql[j] == '_') {
		for j < len(sql) && isWordByte(sql[j]) {
			j++
		}
	}
	if j < len(sql) && sql[j] == '$' {
		return sql[i : j+1], true
	}
	return "", false
}

func isLetterByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

func isWordByte(c byte) bool {
	return isLetterByte(c) || c >= '0' && c <= '9' || c == '_'
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

// CountStatements returns the number of non-empty statements in sql.
// Pieces holding only whitespace or comments are not counted.
func CountStatements(sql string) int {
	n := 0
	pending := false
	for _, sp := range lexSQL(sql) {
		switch sp.kind {
		case spanComment:
		case spanString:
			pending = true
		default:
			for i := sp.start; i < sp.end; i++ {
				switch c := sql[i]; {
				case c == ';':
					if pending {
						n++
					}
					pending = false
				case !isSpaceByte(c):
					pending = true
				}
			}
		}
	}
	if pending {
		n++
	}
	return n
}

// ValidateExpression checks that expr can be embedded as one parenthesized
// scalar expression in generated SQL: no statement separators or comments
// outside literals, balanced parentheses, and no unterminated literals.
func ValidateExpression(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return fmt.Errorf("expression is empty")
	}
	depth := 0
	for _, sp := range lexSQL(expr) {
		if !sp.closed {
			return fmt.Errorf("expression %q has an unterminated literal or comment", expr)
		}
		switch sp.kind {
		case spanComment:
			return fmt.Errorf("expression %q contains a comment", expr)
		case spanString:
			continue
		}
		for i := sp.start; i < sp.end; i++ {
			switch expr[i] {
			case ';':
				return fmt.Errorf("expression %q contains a statement separator", expr)
			case '(':
				depth++
			case ')':
				depth--
				if depth < 0 {
					return fmt.Errorf("expression %q has unbalanced parentheses", expr)
				}
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("expression %q has unbalanced parentheses", expr)
	}
	return nil
}

// Literal is a single-quoted string literal located in a statement.
// Start and End are byte offsets of the quotes; Value is unescaped.
type Literal struct {
	Start int
	End   int
	Value string
}

// fileTargetWords lists, per leading keyword, the words that directly
// precede a file path the statement writes to or creates.
var fileTargetWords = map[string][]string{
	"COPY":   {"TO"},
	"EXPORT": {"DATABASE", "TO"},
	"ATTACH": {"ATTACH", "DATABASE", "EXISTS"},
}

// FileTargets returns the path literals of COPY ... TO, EXPORT DATABASE and
// ATTACH statements. Literals nested in parentheses, such as the inner query
// of COPY (SELECT ...) TO, are ignored.
func FileTargets(stmt string) []Literal {
	var (
		out     []Literal
		words   []string
		prev    string
		leading string
		depth   int
	)
	for _, sp := range lexSQL(stmt) {
		switch sp.kind {
		case spanComment:
			continue
		case spanString:
			if depth == 0 && stmt[sp.start] == '\'' && sp.closed && !backslashEscapes(stmt, sp.start) && precedes(words, prev) {
				out = append(out, Literal{
					Start: sp.start,
					End:   sp.end,
					Value: strings.ReplaceAll(stmt[sp.start+1:sp.end-1], "''", "'"),
				})
			}
			prev = ""
			continue
		}
		for i := sp.start; i < sp.end; {
			c := stmt[i]
			switch {
			case isWordByte(c):
				j := i
				for j < sp.end && isWordByte(stmt[j]) {
					j++
				}
				if depth == 0 {
					prev = strings.ToUpper(stmt[i:j])
					if leading == "" {
						leading = prev
						words = fileTargetWords[leading]
						if words == nil {
							return nil
						}
					}
				}
				i = j
				continue
			case c == '(':
				depth++
				prev = ""
			case c == ')':
				if depth > 0 {
					depth--
				}
				prev = ""
			case !isSpaceByte(c):
				prev = ""
			}
			i++
		}
	}
	return out
}

func precedes(words []string, prev string) bool {
	for _, w := range words {
		if w == prev {
			return true
		}
	}
	return false
}
