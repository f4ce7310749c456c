package engine

import "testing"

func TestCountStatements(t *testing.T) {
	tests := []struct {
		sql  string
		want int
	}{
		{"", 0},
		{"  ;  ; ", 0},
		{"-- only a comment", 0},
		{"SELECT 1", 1},
		{"SELECT 1;", 1},
		{"SELECT 1; -- trailing note", 1},
		{"SELECT ';' AS semi", 1},
		{`SELECT 1 AS "a;b"`, 1},
		{"SELECT 'it''s; fine'", 1},
		{`SELECT E'esc\'; still one'`, 1},
		{"SELECT $$a;b$$", 1},
		{"SELECT $body$ ; $body$", 1},
		{"SELECT 1 /* ; /* nested ; */ ; */", 1},
		{"SELECT 'unterminated ;", 1},
		{"DROP VIEW v; SELECT * FROM missing", 2},
		{"SELECT 1;SELECT 2;SELECT 3", 3},
		{"SELECT $1; SELECT $2", 2},
	}
	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			if got := CountStatements(tt.sql); got != tt.want {
				t.Errorf("CountStatements(%q) = %d, want %d", tt.sql, got, tt.want)
			}
		})
	}
}

func TestValidateExpression(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"price", false},
		{"price * qty", false},
		{"coalesce(a, (b + 1))", false},
		{"'a;b' || name", false},
		{`"odd)name" + 1`, false},
		{"", true},
		{"   ", true},
		{"price); DROP VIEW a; SELECT (1", true},
		{"price; DROP VIEW a", true},
		{"price) AS x, secret FROM other --", true},
		{"price /* hidden */", true},
		{"(price", true},
		{"price)", true},
		{"'open", true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			err := ValidateExpression(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateExpression(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestFileTargets(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want []string
	}{
		{"copy query to", "COPY (SELECT 'x' AS v) TO 'out.csv' (HEADER)", []string{"out.csv"}},
		{"copy table to", "copy orders to 'dir/o.parquet'", []string{"dir/o.parquet"}},
		{"copy from is a read", "COPY orders FROM 'in.csv'", nil},
		{"export database", "EXPORT DATABASE 'backup'", []string{"backup"}},
		{"export named database", "EXPORT DATABASE db TO 'backup'", []string{"backup"}},
		{"attach", "ATTACH 'other.db' AS other", []string{"other.db"}},
		{"attach if not exists", "ATTACH IF NOT EXISTS 'o''k.db'", []string{"o'k.db"}},
		{"comment between", "COPY t TO /* here */ 'x.csv'", []string{"x.csv"}},
		{"select is ignored", "SELECT 'a' TO", nil},
		{"create is ignored", "CREATE TABLE t AS SELECT 'x.csv'", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FileTargets(tt.sql)
			if len(got) != len(tt.want) {
				t.Fatalf("FileTargets(%q) = %+v, want %v", tt.sql, got, tt.want)
			}
			for i, lit := range got {
				if lit.Value != tt.want[i] {
					t.Errorf("target %d = %q, want %q", i, lit.Value, tt.want[i])
				}
				if q := tt.sql[lit.Start:lit.End]; q != QuoteLiteral(lit.Value) {
					t.Errorf("target %d span = %s", i, q)
				}
			}
		})
	}
}
