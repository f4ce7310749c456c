package engine

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxNameLength bounds view and dataset names.
const MaxNameLength = 255

// ReservedPrefix marks objects owned by the engine inside a session database.
const ReservedPrefix = "_session"

// QuoteIdent quotes s as a SQL identifier, doubling embedded quotes.
func QuoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// QuoteLiteral quotes s as a SQL string literal, doubling embedded quotes.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// QualifiedName quotes and dot-joins non-empty parts: catalog.schema.table.
func QualifiedName(parts ...string) string {
	quoted := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		quoted = append(quoted, QuoteIdent(p))
	}
	return strings.Join(quoted, ".")
}

// ValidateName checks a caller-supplied object name (view, dataset, table)
// before it is quoted into generated SQL. Quoting alone makes any string a
// safe identifier; validation rejects names that would be confusing or that
// collide with engine-owned objects.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name is empty")
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("name %q is not valid UTF-8", name)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return fmt.Errorf("name exceeds %d characters", MaxNameLength)
	}
	if strings.TrimSpace(name) != name {
		return fmt.Errorf("name %q has leading or trailing whitespace", name)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("name %q contains control characters", name)
		}
	}
	if strings.HasPrefix(strings.ToLower(name), ReservedPrefix) {
		return fmt.Errorf("name %q uses reserved prefix %s", name, ReservedPrefix)
	}
	return nil
}

// CatalogName derives the attachment catalog for a source id. Catalogs are
// scoped per source so two sources of the same engine type never collide.
// Ids that need rewriting get a hash suffix to keep distinct ids distinct.
func CatalogName(sourceID string) string {
	var b strings.Builder
	b.WriteString("src_")
	rewritten := false
	for _, r := range sourceID {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(unicode.ToLower(r))
			rewritten = true
		default:
			b.WriteByte('_')
			rewritten = true
		}
	}
	if rewritten || sourceID == "" {
		h := fnv.New32a()
		h.Write([]byte(sourceID))
		fmt.Fprintf(&b, "_%08x", h.Sum32())
	}
	return b.String()
}
