// Package engine wraps the embedded DuckDB analytical engine.
//
// There is no process-wide connection manager: an Engine is constructed once
// in main and passed to the components that need it. Every operation opens a
// fresh Handle on a session's database file, does its work and closes it; the
// file is the only state shared between calls. Because DuckDB settings,
// loaded extensions and ATTACHed catalogs belong to the database instance and
// not to the file, Open re-applies all of them on each handle.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" driver
	"github.com/jmoiron/sqlx"
)

// DriverName is the database/sql driver used for every handle.
const DriverName = "duckdb"

// ObjectStore holds S3-compatible storage settings applied to a handle.
type ObjectStore struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	PathStyle bool
}

// Sealer protects connection targets recorded in the attachment registry.
// A nil Sealer stores targets as given.
type Sealer interface {
	Seal(plain string) (string, error)
	Unseal(sealed string) (string, error)
}

// Options configures an Engine.
type Options struct {
	// ExtensionDir is a writable directory local to the deployment.
	ExtensionDir string
	// Threads caps worker threads per handle; zero lets the engine decide.
	Threads int
	// Preload lists extensions installed by Preload.
	Preload []string
	// ObjectStore is applied to handles that request object storage access.
	ObjectStore ObjectStore
	// Sealer protects registry connection targets at rest.
	Sealer Sealer
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Engine opens handles on session database files.
type Engine struct {
	extDir  string
	threads int
	preload []string
	store   ObjectStore
	sealer  Sealer
	logger  *slog.Logger
}

// New creates an Engine. The extension directory is made absolute so that
// handles opened with a session search path still resolve it.
func New(opts Options) (*Engine, error) {
	extDir := opts.ExtensionDir
	if extDir == "" {
		extDir = filepath.Join(".duckdb", "extensions")
	}
	abs, err := filepath.Abs(extDir)
	if err != nil {
		return nil, fmt.Errorf("resolve extension dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create extension dir: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		extDir:  abs,
		threads: opts.Threads,
		preload: opts.Preload,
		store:   opts.ObjectStore,
		sealer:  opts.Sealer,
		logger:  logger.With("component", "engine"),
	}, nil
}

// ExtensionDir returns the absolute extension directory.
func (e *Engine) ExtensionDir() string { return e.extDir }

// ObjectStoreConfigured reports whether object storage settings exist.
func (e *Engine) ObjectStoreConfigured() bool { return e.store.Endpoint != "" }

// Preload installs the configured extensions into the extension directory.
// It is called once at process startup; individual failures are logged and
// returned joined, and callers treat them as non-fatal (extensions are
// installed on demand later if the network allows it).
func (e *Engine) Preload(ctx context.Context) error {
	if len(e.preload) == 0 {
		return nil
	}

	db, err := sqlx.Open(DriverName, "")
	if err != nil {
		return fmt.Errorf("open in-memory engine: %w", err)
	}
	defer db.Close()

	conn, err := db.Connx(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SET extension_directory = "+QuoteLiteral(e.extDir)); err != nil {
		return fmt.Errorf("set extension directory: %w", err)
	}

	var errs []error
	for _, ext := range e.preload {
		ext = strings.TrimSpace(ext)
		if !isExtensionName(ext) {
			errs = append(errs, fmt.Errorf("invalid extension name %q", ext))
			continue
		}
		if _, err := conn.ExecContext(ctx, "INSTALL "+ext); err != nil {
			e.logger.Warn("extension preload failed", "extension", ext, "error", err)
			errs = append(errs, fmt.Errorf("install %s: %w", ext, err))
			continue
		}
		e.logger.Debug("extension installed", "extension", ext)
	}
	return errors.Join(errs...)
}

// OpenOptions controls how a handle is configured.
type OpenOptions struct {
	// ReadOnly opens the file in read-only access mode.
	ReadOnly bool
	// ObjectStore loads httpfs and applies the object storage settings.
	ObjectStore bool
	// SearchPath makes bare relative file names resolve inside this directory.
	SearchPath string
}

// Handle is one open connection to a session database file.
// It is not safe for concurrent use; each operation owns its handle.
type Handle struct {
	db       *sqlx.DB
	conn     *sqlx.Conn
	path     string
	readOnly bool
	engine   *Engine

	objectStoreReady bool
	loaded           map[string]bool
	restoreErrs      map[string]error
}

// Open opens a handle on the database file at path and applies per-handle
// configuration: extension directory, threads, search path, object storage
// and replay of recorded attachments.
func (e *Engine) Open(ctx context.Context, path string, opts OpenOptions) (*Handle, error) {
	dsn := path
	if opts.ReadOnly {
		dsn += "?access_mode=read_only"
	}

	db, err := sqlx.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open engine %s: %w", filepath.Base(path), err)
	}
	// Settings are per connection; pin exactly one.
	db.SetMaxOpenConns(1)

	conn, err := db.Connx(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect engine %s: %w", filepath.Base(path), err)
	}

	h := &Handle{
		db:          db,
		conn:        conn,
		path:        path,
		readOnly:    opts.ReadOnly,
		engine:      e,
		loaded:      make(map[string]bool),
		restoreErrs: make(map[string]error),
	}

	if err := h.configure(ctx, opts); err != nil {
		h.Close()
		return nil, err
	}

	if err := h.restore(ctx); err != nil {
		h.Close()
		return nil, err
	}

	return h, nil
}

func (h *Handle) configure(ctx context.Context, opts OpenOptions) error {
	stmts := []string{"SET extension_directory = " + QuoteLiteral(h.engine.extDir)}
	if h.engine.threads > 0 {
		stmts = append(stmts, fmt.Sprintf("SET threads = %d", h.engine.threads))
	}
	if opts.SearchPath != "" {
		stmts = append(stmts, "SET file_search_path = "+QuoteLiteral(opts.SearchPath))
	}
	for _, stmt := range stmts {
		if _, err := h.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("configure handle: %w", err)
		}
	}

	if opts.ObjectStore {
		if err := h.EnableObjectStore(ctx); err != nil {
			return err
		}
	}
	return nil
}

// EnableObjectStore loads httpfs and applies the engine's object storage
// settings on this handle. It is idempotent per handle.
func (h *Handle) EnableObjectStore(ctx context.Context) error {
	if h.objectStoreReady {
		return nil
	}
	s := h.engine.store
	if s.Endpoint == "" {
		return errors.New("object storage is not configured")
	}
	if err := h.LoadExtension(ctx, "httpfs"); err != nil {
		return err
	}

	urlStyle := "vhost"
	if s.PathStyle {
		urlStyle = "path"
	}
	stmts := []string{
		"SET s3_endpoint = " + QuoteLiteral(s.Endpoint),
		"SET s3_url_style = " + QuoteLiteral(urlStyle),
		fmt.Sprintf("SET s3_use_ssl = %t", s.UseSSL),
	}
	if s.Region != "" {
		stmts = append(stmts, "SET s3_region = "+QuoteLiteral(s.Region))
	}
	if s.AccessKey != "" {
		stmts = append(stmts,
			"SET s3_access_key_id = "+QuoteLiteral(s.AccessKey),
			"SET s3_secret_access_key = "+QuoteLiteral(s.SecretKey),
		)
	}
	for _, stmt := range stmts {
		if _, err := h.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("configure object storage: %w", err)
		}
	}
	h.objectStoreReady = true
	return nil
}

// LoadExtension installs (if needed) and loads an extension on this handle.
func (h *Handle) LoadExtension(ctx context.Context, name string) error {
	if h.loaded[name] {
		return nil
	}
	if !isExtensionName(name) {
		return fmt.Errorf("invalid extension name %q", name)
	}
	// INSTALL is a no-op when the extension is already in the extension directory.
	if _, err := h.conn.ExecContext(ctx, "INSTALL "+name); err != nil {
		return fmt.Errorf("install extension %s: %w", name, err)
	}
	if _, err := h.conn.ExecContext(ctx, "LOAD "+name); err != nil {
		return fmt.Errorf("load extension %s: %w", name, err)
	}
	h.loaded[name] = true
	return nil
}

// Path returns the database file path.
func (h *Handle) Path() string { return h.path }

// ReadOnly reports whether the handle was opened read-only.
func (h *Handle) ReadOnly() bool { return h.readOnly }

// Conn exposes the pinned connection for callers that stream rows.
func (h *Handle) Conn() *sqlx.Conn { return h.conn }

// Exec runs a statement that returns no rows.
func (h *Handle) Exec(ctx context.Context, query string, args ...any) error {
	_, err := h.conn.ExecContext(ctx, query, args...)
	return err
}

// Select runs a query and scans all rows into dest.
func (h *Handle) Select(ctx context.Context, dest any, query string, args ...any) error {
	return h.conn.SelectContext(ctx, dest, query, args...)
}

// Get runs a query and scans the single row into dest.
func (h *Handle) Get(ctx context.Context, dest any, query string, args ...any) error {
	return h.conn.GetContext(ctx, dest, query, args...)
}

// RestoreErrors returns attachments that could not be replayed, keyed by view name.
func (h *Handle) RestoreErrors() map[string]error {
	return h.restoreErrs
}

// Close releases the connection and the database instance.
func (h *Handle) Close() error {
	var errs []error
	if h.conn != nil {
		if err := h.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if h.db != nil {
		if err := h.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// isExtensionName limits extension names to the identifier alphabet so they
// can be interpolated into INSTALL/LOAD statements.
func isExtensionName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_') {
			return false
		}
	}
	return true
}
