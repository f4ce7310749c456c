package query

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		sql     string
		class   Class
		keyword string
	}{
		{"SELECT 1", ClassRead, "SELECT"},
		{"  select * from t", ClassRead, "SELECT"},
		{"WITH x AS (SELECT 1) SELECT * FROM x", ClassRead, "WITH"},
		{"FROM 'result.parquet'", ClassRead, "FROM"},
		{"(SELECT 1) UNION ALL (SELECT 2)", ClassRead, "SELECT"},
		{"-- note\nSELECT 1", ClassRead, "SELECT"},
		{"/* block */ describe orders", ClassRead, "DESCRIBE"},
		{"SUMMARIZE orders", ClassRead, "SUMMARIZE"},
		{"PIVOT sales ON region USING sum(amount)", ClassRead, "PIVOT"},
		{"EXPLAIN SELECT 1", ClassRead, "EXPLAIN"},
		{"CREATE TABLE t AS SELECT 1", ClassWrite, "CREATE"},
		{"insert into t values (1)", ClassWrite, "INSERT"},
		{"DROP VIEW v", ClassWrite, "DROP"},
		{"SET threads = 2", ClassWrite, "SET"},
		{"", ClassWrite, ""},
		{"-- only a comment", ClassWrite, ""},
	}
	for _, tt := range tests {
		class, kw := Classify(tt.sql)
		if class != tt.class || kw != tt.keyword {
			t.Errorf("Classify(%q) = %s, %s; want %s, %s", tt.sql, class, kw, tt.class, tt.keyword)
		}
	}
}

func TestTrimStatement(t *testing.T) {
	tests := map[string]string{
		"SELECT 1;":        "SELECT 1",
		"  SELECT 1 ; ;  ": "SELECT 1",
		"SELECT ';'":       "SELECT ';'",
	}
	for in, want := range tests {
		if got := trimStatement(in); got != want {
			t.Errorf("trimStatement(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCacheable(t *testing.T) {
	if cacheable("EXPLAIN") {
		t.Error("EXPLAIN output should not be cached")
	}
	if !cacheable("SELECT") || !cacheable("SUMMARIZE") {
		t.Error("query statements should be cached")
	}
}
