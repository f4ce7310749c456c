// Package binder turns source descriptors into named views inside a session
// database: external relational tables through attached catalogs, and files
// in object storage through table functions.
package binder

import (
	"path"
	"strings"

	"github.com/JonMunkholm/sessionlake/internal/engine"
	apperr "github.com/JonMunkholm/sessionlake/internal/errors"
)

// Kind is the descriptor kind.
type Kind string

const (
	KindRelational Kind = "relational_table"
	KindObject     Kind = "object_file"
)

// Source is one registered unit of raw data. Name becomes the view name
// verbatim and must be unique within a session.
type Source struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Kind       Kind        `json:"kind"`
	Relational *Relational `json:"relational,omitempty"`
	Object     *Object     `json:"object,omitempty"`
}

// Relational describes a table (or custom query) in an external database.
type Relational struct {
	Engine   string `json:"engine"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Database string `json:"database"`
	User     string `json:"user,omitempty"`
	// Password may be sealed ("enc:..."); it is resolved before binding.
	Password string `json:"password,omitempty"`
	Schema   string `json:"schema,omitempty"`
	Table    string `json:"table,omitempty"`
	Query    string `json:"query,omitempty"`
}

// Object describes a file in object storage, or with Path set, a file
// already inside the session directory.
type Object struct {
	Bucket string `json:"bucket,omitempty"`
	Key    string `json:"key,omitempty"`
	Path   string `json:"path,omitempty"`
	Format string `json:"format,omitempty"`
}

// Dialect is a supported external engine.
type Dialect struct {
	// Extension is both the connector extension and the ATTACH type.
	Extension     string
	DefaultPort   int
	DefaultSchema string
	// QueryFunc passes a custom query through to the external engine.
	QueryFunc string
}

var dialects = map[string]Dialect{
	"postgres": {Extension: "postgres", DefaultPort: 5432, DefaultSchema: "public", QueryFunc: "postgres_query"},
	"mysql":    {Extension: "mysql", DefaultPort: 3306, QueryFunc: "mysql_query"},
	"sqlite":   {Extension: "sqlite"},
}

var dialectAliases = map[string]string{
	"postgresql": "postgres",
	"pg":         "postgres",
	"mariadb":    "mysql",
	"sqlite3":    "sqlite",
}

// LookupDialect normalizes an engine name.
func LookupDialect(name string) (string, Dialect, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := dialectAliases[n]; ok {
		n = alias
	}
	d, ok := dialects[n]
	return n, d, ok
}

// Format is a supported object file format.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
	FormatJSON    Format = "json"
	FormatXLSX    Format = "xlsx"
)

var formatAliases = map[string]Format{
	"csv":     FormatCSV,
	"tsv":     FormatCSV,
	"txt":     FormatCSV,
	"parquet": FormatParquet,
	"pq":      FormatParquet,
	"json":    FormatJSON,
	"jsonl":   FormatJSON,
	"ndjson":  FormatJSON,
	"xlsx":    FormatXLSX,
	"excel":   FormatXLSX,
}

// ParseFormat normalizes a declared format, falling back to the extension
// of name when declared is empty.
func ParseFormat(declared, name string) (Format, bool) {
	key := strings.ToLower(strings.TrimSpace(declared))
	if key == "" {
		key = strings.TrimPrefix(strings.ToLower(path.Ext(name)), ".")
	}
	f, ok := formatAliases[key]
	return f, ok
}

// Validate checks a descriptor before any engine work. Every error has
// the Configuration kind.
func (s Source) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return apperr.New(apperr.Configuration, "source id is required")
	}
	if err := engine.ValidateName(s.Name); err != nil {
		return apperr.Wrap(apperr.Configuration, "invalid source name", err)
	}

	switch s.Kind {
	case KindRelational:
		r := s.Relational
		if r == nil {
			return apperr.Newf(apperr.Configuration, "source %s: relational settings are required", s.Name)
		}
		name, _, ok := LookupDialect(r.Engine)
		if !ok {
			return apperr.Newf(apperr.Configuration, "source %s: unsupported engine %q", s.Name, r.Engine)
		}
		if strings.TrimSpace(r.Database) == "" {
			return apperr.Newf(apperr.Configuration, "source %s: database is required", s.Name)
		}
		if name != "sqlite" && strings.TrimSpace(r.Host) == "" {
			return apperr.Newf(apperr.Configuration, "source %s: host is required", s.Name)
		}
		if r.Port < 0 || r.Port > 65535 {
			return apperr.Newf(apperr.Configuration, "source %s: port %d out of range", s.Name, r.Port)
		}
		if strings.TrimSpace(r.Table) == "" && strings.TrimSpace(r.Query) == "" {
			return apperr.Newf(apperr.Configuration, "source %s: table or query is required", s.Name)
		}
		if name == "sqlite" && strings.TrimSpace(r.Query) != "" {
			return apperr.Newf(apperr.Configuration, "source %s: custom queries are not supported for sqlite", s.Name)
		}

	case KindObject:
		o := s.Object
		if o == nil {
			return apperr.Newf(apperr.Configuration, "source %s: object settings are required", s.Name)
		}
		hasRemote := o.Bucket != "" || o.Key != ""
		if hasRemote == (o.Path != "") {
			return apperr.Newf(apperr.Configuration, "source %s: set either bucket and key or path", s.Name)
		}
		if hasRemote && (o.Bucket == "" || o.Key == "") {
			return apperr.Newf(apperr.Configuration, "source %s: bucket and key are both required", s.Name)
		}
		if _, ok := ParseFormat(o.Format, o.Key+o.Path); !ok {
			return apperr.Newf(apperr.Configuration, "source %s: unsupported file format %q", s.Name, o.Format)
		}

	default:
		return apperr.Newf(apperr.Configuration, "source %s: unknown kind %q", s.Name, s.Kind)
	}
	return nil
}

// URL returns the object storage URL for a remote object source.
func (o Object) URL() string {
	return "s3://" + strings.Trim(o.Bucket, "/") + "/" + strings.TrimLeft(o.Key, "/")
}
