package binder

import (
	"testing"

	apperr "github.com/JonMunkholm/sessionlake/internal/errors"
)

func pgSource() Source {
	return Source{
		ID:   "pg1",
		Name: "orders",
		Kind: KindRelational,
		Relational: &Relational{
			Engine: "postgresql", Host: "db", Database: "shop", User: "app", Table: "orders",
		},
	}
}

func TestSourceValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Source)
		wantErr bool
	}{
		{"valid relational", func(s *Source) {}, false},
		{"missing id", func(s *Source) { s.ID = "" }, true},
		{"reserved view name", func(s *Source) { s.Name = "_session_x" }, true},
		{"unknown kind", func(s *Source) { s.Kind = "stream" }, true},
		{"missing relational", func(s *Source) { s.Relational = nil }, true},
		{"unsupported engine", func(s *Source) { s.Relational.Engine = "oracle" }, true},
		{"missing host", func(s *Source) { s.Relational.Host = "" }, true},
		{"missing table and query", func(s *Source) { s.Relational.Table = "" }, true},
		{"custom query only", func(s *Source) { s.Relational.Table = ""; s.Relational.Query = "select 1" }, false},
		{"bad port", func(s *Source) { s.Relational.Port = 70000 }, true},
		{"sqlite without host", func(s *Source) {
			s.Relational = &Relational{Engine: "sqlite", Database: "/data/app.db", Table: "t"}
		}, false},
		{"sqlite custom query", func(s *Source) {
			s.Relational = &Relational{Engine: "sqlite", Database: "/data/app.db", Query: "select 1"}
		}, true},
		{"object with bucket and key", func(s *Source) {
			s.Kind, s.Relational = KindObject, nil
			s.Object = &Object{Bucket: "b", Key: "sales.csv"}
		}, false},
		{"object with path", func(s *Source) {
			s.Kind, s.Relational = KindObject, nil
			s.Object = &Object{Path: "upload.parquet"}
		}, false},
		{"object with both locations", func(s *Source) {
			s.Kind, s.Relational = KindObject, nil
			s.Object = &Object{Bucket: "b", Key: "k.csv", Path: "x.csv"}
		}, true},
		{"object missing key", func(s *Source) {
			s.Kind, s.Relational = KindObject, nil
			s.Object = &Object{Bucket: "b", Format: "csv"}
		}, true},
		{"object unknown format", func(s *Source) {
			s.Kind, s.Relational = KindObject, nil
			s.Object = &Object{Bucket: "b", Key: "data.avro"}
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := pgSource()
			tt.mutate(&s)
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !apperr.Is(err, apperr.Configuration) {
				t.Errorf("Validate() kind = %s, want configuration", apperr.KindOf(err))
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		declared string
		name     string
		want     Format
		ok       bool
	}{
		{"csv", "", FormatCSV, true},
		{"", "data/sales.CSV", FormatCSV, true},
		{"", "events.ndjson", FormatJSON, true},
		{"jsonl", "x", FormatJSON, true},
		{"Excel", "", FormatXLSX, true},
		{"", "book.xlsx", FormatXLSX, true},
		{"", "t.parquet", FormatParquet, true},
		{"", "noext", "", false},
		{"avro", "", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseFormat(tt.declared, tt.name)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseFormat(%q, %q) = %q, %v; want %q, %v", tt.declared, tt.name, got, ok, tt.want, tt.ok)
		}
	}
}

func TestObjectURL(t *testing.T) {
	o := Object{Bucket: "raw/", Key: "/2024/sales.csv"}
	if got := o.URL(); got != "s3://raw/2024/sales.csv" {
		t.Errorf("URL() = %s", got)
	}
}

func TestLookupDialect(t *testing.T) {
	for _, name := range []string{"postgres", "PostgreSQL", "pg"} {
		n, d, ok := LookupDialect(name)
		if !ok || n != "postgres" || d.DefaultPort != 5432 {
			t.Errorf("LookupDialect(%q) = %s, %+v, %v", name, n, d, ok)
		}
	}
	if n, _, ok := LookupDialect("mariadb"); !ok || n != "mysql" {
		t.Errorf("LookupDialect(mariadb) = %s, %v", n, ok)
	}
}
