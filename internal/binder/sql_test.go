package binder

import "testing"

func TestConnString(t *testing.T) {
	pg := dialects["postgres"]
	my := dialects["mysql"]

	tests := []struct {
		name     string
		dialect  string
		d        Dialect
		r        Relational
		password string
		want     string
	}{
		{
			name:    "postgres default port",
			dialect: "postgres", d: pg,
			r:        Relational{Host: "db", Database: "shop", User: "app"},
			password: "pw",
			want:     "host=db port=5432 dbname=shop user=app password=pw",
		},
		{
			name:    "postgres quoted password",
			dialect: "postgres", d: pg,
			r:        Relational{Host: "db", Port: 6543, Database: "shop", User: "app"},
			password: `it's a \secret`,
			want:     `host=db port=6543 dbname=shop user=app password='it\'s a \\secret'`,
		},
		{
			name:    "mysql",
			dialect: "mysql", d: my,
			r:    Relational{Host: "mysql.local", Database: "crm", User: "ro"},
			want: "host=mysql.local port=3306 database=crm user=ro",
		},
		{
			name:    "sqlite path",
			dialect: "sqlite", d: dialects["sqlite"],
			r:    Relational{Database: "/data/app.db"},
			want: "/data/app.db",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConnString(tt.dialect, tt.d, tt.r, tt.password)
			if got != tt.want {
				t.Errorf("ConnString() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRelationalViewSQL(t *testing.T) {
	tests := []struct {
		name string
		d    Dialect
		r    Relational
		want string
	}{
		{
			name: "postgres default schema",
			d:    dialects["postgres"],
			r:    Relational{Table: "orders"},
			want: `CREATE OR REPLACE VIEW "Orders 2024" AS SELECT * FROM "src_pg1"."public"."orders"`,
		},
		{
			name: "explicit schema",
			d:    dialects["postgres"],
			r:    Relational{Schema: "sales", Table: "orders"},
			want: `CREATE OR REPLACE VIEW "Orders 2024" AS SELECT * FROM "src_pg1"."sales"."orders"`,
		},
		{
			name: "mysql without schema",
			d:    dialects["mysql"],
			r:    Relational{Table: "orders"},
			want: `CREATE OR REPLACE VIEW "Orders 2024" AS SELECT * FROM "src_pg1"."orders"`,
		},
		{
			name: "custom query",
			d:    dialects["postgres"],
			r:    Relational{Query: "SELECT id FROM orders WHERE note = 'x'"},
			want: `CREATE OR REPLACE VIEW "Orders 2024" AS SELECT * FROM postgres_query('src_pg1', 'SELECT id FROM orders WHERE note = ''x''')`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RelationalViewSQL("Orders 2024", "src_pg1", tt.d, tt.r)
			if got != tt.want {
				t.Errorf("RelationalViewSQL() =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestObjectViewSQL(t *testing.T) {
	tests := []struct {
		f    Format
		want string
	}{
		{FormatCSV, `CREATE OR REPLACE VIEW "sales" AS SELECT * FROM read_csv_auto('s3://b/k', header = true)`},
		{FormatParquet, `CREATE OR REPLACE VIEW "sales" AS SELECT * FROM read_parquet('s3://b/k')`},
		{FormatJSON, `CREATE OR REPLACE VIEW "sales" AS SELECT * FROM read_json_auto('s3://b/k', format = 'newline_delimited')`},
		{FormatXLSX, `CREATE OR REPLACE VIEW "sales" AS SELECT * FROM read_xlsx('s3://b/k', header = true)`},
	}
	for _, tt := range tests {
		if got := ObjectViewSQL("sales", tt.f, "s3://b/k"); got != tt.want {
			t.Errorf("ObjectViewSQL(%s) = %s", tt.f, got)
		}
	}
	if RequiredExtension(FormatXLSX) != "excel" || RequiredExtension(FormatCSV) != "" {
		t.Error("RequiredExtension mismatch")
	}
}
