package binder

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/JonMunkholm/sessionlake/internal/engine"
)

// ConnString builds the connection string handed to ATTACH. Postgres and
// MySQL use space separated key=value pairs; sqlite uses the file path.
func ConnString(dialect string, d Dialect, r Relational, password string) string {
	if dialect == "sqlite" {
		return r.Database
	}

	port := r.Port
	if port == 0 {
		port = d.DefaultPort
	}

	dbKey := "dbname"
	if dialect == "mysql" {
		dbKey = "database"
	}

	pairs := []string{
		"host=" + kvQuote(r.Host),
		"port=" + strconv.Itoa(port),
		dbKey + "=" + kvQuote(r.Database),
	}
	if r.User != "" {
		pairs = append(pairs, "user="+kvQuote(r.User))
	}
	if password != "" {
		pairs = append(pairs, "password="+kvQuote(password))
	}
	return strings.Join(pairs, " ")
}

// kvQuote quotes a key=value connection value when it contains spaces,
// quotes or backslashes, escaping the latter two with a backslash.
func kvQuote(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// RelationalViewSQL builds the CREATE OR REPLACE VIEW statement for a
// relational source attached as catalog.
func RelationalViewSQL(view, catalog string, d Dialect, r Relational) string {
	var from string
	if q := strings.TrimSpace(r.Query); q != "" {
		from = fmt.Sprintf("%s(%s, %s)", d.QueryFunc, engine.QuoteLiteral(catalog), engine.QuoteLiteral(q))
	} else {
		schema := r.Schema
		if schema == "" {
			schema = d.DefaultSchema
		}
		from = engine.QualifiedName(catalog, schema, r.Table)
	}
	return fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT * FROM %s", engine.QuoteIdent(view), from)
}

// ReaderCall returns the table function call that reads location in format.
func ReaderCall(f Format, location string) string {
	lit := engine.QuoteLiteral(location)
	switch f {
	case FormatParquet:
		return "read_parquet(" + lit + ")"
	case FormatJSON:
		return "read_json_auto(" + lit + ", format = 'newline_delimited')"
	case FormatXLSX:
		return "read_xlsx(" + lit + ", header = true)"
	default:
		return "read_csv_auto(" + lit + ", header = true)"
	}
}

// ObjectViewSQL builds the CREATE OR REPLACE VIEW statement for a file.
func ObjectViewSQL(view string, f Format, location string) string {
	return fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT * FROM %s", engine.QuoteIdent(view), ReaderCall(f, location))
}

// RequiredExtension names the extension a format needs beyond the core engine.
func RequiredExtension(f Format) string {
	if f == FormatXLSX {
		return "excel"
	}
	return ""
}
