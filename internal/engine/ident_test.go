package engine

import (
	"strings"
	"testing"
)

func TestQuoteIdent(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"orders", `"orders"`},
		{"Sales 2024", `"Sales 2024"`},
		{`we"ird`, `"we""ird"`},
		{"", `""`},
	}
	for _, tt := range tests {
		if got := QuoteIdent(tt.in); got != tt.want {
			t.Errorf("QuoteIdent(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestQuoteLiteral(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"s3://bucket/a.csv", "'s3://bucket/a.csv'"},
		{"O'Brien", "'O''Brien'"},
		{"", "''"},
	}
	for _, tt := range tests {
		if got := QuoteLiteral(tt.in); got != tt.want {
			t.Errorf("QuoteLiteral(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestQualifiedName(t *testing.T) {
	got := QualifiedName("src_a", "public", "orders")
	if got != `"src_a"."public"."orders"` {
		t.Errorf("QualifiedName = %s", got)
	}
	if got := QualifiedName("src_a", "", "orders"); got != `"src_a"."orders"` {
		t.Errorf("QualifiedName with empty schema = %s", got)
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "orders", false},
		{"spaces inside", "Q1 Sales", false},
		{"unicode", "ventes_été", false},
		{"empty", "", true},
		{"leading space", " orders", true},
		{"control char", "ord\x00ers", true},
		{"newline", "ord\ners", true},
		{"reserved prefix", "_session_sources", true},
		{"reserved prefix mixed case", "_Session_x", true},
		{"too long", strings.Repeat("a", MaxNameLength+1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestCatalogName(t *testing.T) {
	if got := CatalogName("db_1"); got != "src_db_1" {
		t.Errorf("CatalogName(db_1) = %s, want src_db_1", got)
	}

	a := CatalogName("db-1")
	b := CatalogName("db.1")
	if a == b {
		t.Errorf("distinct ids collided: %s", a)
	}
	if !strings.HasPrefix(a, "src_db_1_") {
		t.Errorf("CatalogName(db-1) = %s, want src_db_1_ prefix", a)
	}
	if CatalogName("db-1") != a {
		t.Error("CatalogName should be deterministic")
	}
	if !isIdentSafe(CatalogName("Ünïcode id")) {
		t.Errorf("CatalogName produced unsafe characters: %s", CatalogName("Ünïcode id"))
	}
}

func isIdentSafe(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_') {
			return false
		}
	}
	return true
}
