// Package query runs caller-supplied SQL against a session database with a
// syntax check first, a row cap on what is returned, and the full result
// cached as a Parquet artifact in the session directory.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/JonMunkholm/sessionlake/internal/engine"
	apperr "github.com/JonMunkholm/sessionlake/internal/errors"
	"github.com/JonMunkholm/sessionlake/internal/metrics"
	"github.com/JonMunkholm/sessionlake/internal/session"
)

// Row cap defaults.
const (
	DefaultRowCap = 1000
	MaxRowCap     = 10000
)

// ArtifactPrefix starts every cached result file name.
const ArtifactPrefix = "query_result"

// Result is the bounded outcome of one statement.
type Result struct {
	Columns    []string
	Rows       [][]any
	RowCount   int
	Truncated  bool
	RowCap     int
	ResultFile string
	Class      Class
}

// Options configures an Executor.
type Options struct {
	DefaultRowCap int
	MaxRowCap     int
	Logger        *slog.Logger
}

// Executor runs ad-hoc statements for sessions in a Store.
type Executor struct {
	store      *session.Store
	defaultCap int
	maxCap     int
	logger     *slog.Logger
}

// New creates an Executor.
func New(store *session.Store, opts Options) *Executor {
	def := opts.DefaultRowCap
	if def <= 0 {
		def = DefaultRowCap
	}
	max := opts.MaxRowCap
	if max <= 0 {
		max = MaxRowCap
	}
	if def > max {
		def = max
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{store: store, defaultCap: def, maxCap: max, logger: logger.With("component", "query")}
}

// RowCap applies the default to non-positive values and clamps to the maximum.
func (e *Executor) RowCap(requested int) int {
	switch {
	case requested <= 0:
		return e.defaultCap
	case requested > e.maxCap:
		return e.maxCap
	}
	return requested
}

// Execute validates and runs sql. Read statements run on a read-only handle
// under the session reader lock; anything else runs on a writable handle
// under the writer lock.
func (e *Executor) Execute(ctx context.Context, userID, sessionID, sql string, rowCap int) (*Result, error) {
	stmt := trimStatement(sql)
	switch n := engine.CountStatements(stmt); {
	case n == 0:
		return nil, apperr.New(apperr.Syntax, "statement is empty")
	case n > 1:
		return nil, apperr.Newf(apperr.Syntax, "expected one statement, got %d", n)
	}
	rowCap = e.RowCap(rowCap)
	class, keyword := Classify(stmt)

	start := time.Now()
	var (
		res *Result
		err error
	)
	if class == ClassRead {
		res, err = e.read(ctx, userID, sessionID, stmt, keyword, rowCap)
	} else {
		res, err = e.write(ctx, userID, sessionID, stmt)
	}

	outcome := "ok"
	if err != nil {
		outcome = string(apperr.KindOf(err))
	}
	metrics.ObserveQuery(string(class), outcome, time.Since(start), res != nil && res.Truncated)

	if err != nil {
		e.logger.Debug("statement failed", "user_id", userID, "session_id", sessionID, "class", class, "error", err)
		return nil, err
	}
	res.Class = class
	return res, nil
}

func (e *Executor) read(ctx context.Context, userID, sessionID, stmt, keyword string, rowCap int) (*Result, error) {
	unlock := e.store.RLock(userID, sessionID)
	defer unlock()

	h, err := e.store.Open(ctx, userID, sessionID, session.OpenOptions{
		ReadOnly:    true,
		ObjectStore: e.store.Engine().ObjectStoreConfigured(),
	})
	if err != nil {
		return nil, err
	}
	defer h.Close()

	if !cacheable(keyword) {
		// An EXPLAIN is its own validation and has nothing worth caching.
		res, err := fetch(ctx, h, stmt, rowCap)
		if err != nil {
			return nil, syntaxError(err, h.RestoreErrors())
		}
		return res, nil
	}

	if err := explain(ctx, h, stmt); err != nil {
		return nil, err
	}

	dir, err := e.store.Dir(userID, sessionID)
	if err != nil {
		return nil, err
	}
	name, err := e.store.UniqueName(userID, sessionID, ArtifactPrefix, ".parquet")
	if err != nil {
		return nil, err
	}
	artifact := filepath.Join(dir, name)

	// The newline ends a trailing line comment before the closing parenthesis.
	copySQL := fmt.Sprintf("COPY (%s\n) TO %s (FORMAT parquet)", stmt, engine.QuoteLiteral(artifact))
	if err := h.Exec(ctx, copySQL); err != nil {
		os.Remove(artifact)
		return nil, apperr.Wrap(apperr.Runtime, "execution failed", err)
	}

	readback := fmt.Sprintf("SELECT * FROM read_parquet(%s) LIMIT %d", engine.QuoteLiteral(artifact), rowCap+1)
	res, err := fetch(ctx, h, readback, rowCap)
	if err != nil {
		os.Remove(artifact)
		return nil, err
	}
	if res.RowCount == 0 {
		os.Remove(artifact)
		return res, nil
	}
	res.ResultFile = name
	return res, nil
}

func (e *Executor) write(ctx context.Context, userID, sessionID, stmt string) (*Result, error) {
	unlock := e.store.Lock(userID, sessionID)
	defer unlock()

	h, err := e.store.Open(ctx, userID, sessionID, session.OpenOptions{
		ObjectStore: e.store.Engine().ObjectStoreConfigured(),
	})
	if err != nil {
		return nil, err
	}
	defer h.Close()

	dir, err := e.store.Dir(userID, sessionID)
	if err != nil {
		return nil, err
	}
	if stmt, err = scopeFileTargets(dir, stmt); err != nil {
		return nil, err
	}

	// Statements such as SET or ATTACH cannot be explained; preparing parses
	// and binds them without running anything.
	prepared, err := h.Conn().PrepareContext(ctx, stmt)
	if err != nil {
		return nil, syntaxError(err, h.RestoreErrors())
	}
	prepared.Close()

	if err := h.Exec(ctx, stmt); err != nil {
		return nil, apperr.Wrap(apperr.Runtime, "execution failed", err)
	}
	return &Result{Columns: []string{}, Rows: [][]any{}}, nil
}

func explain(ctx context.Context, h *engine.Handle, stmt string) error {
	rows, err := h.Conn().QueryContext(ctx, "EXPLAIN "+stmt)
	if err != nil {
		return syntaxError(err, h.RestoreErrors())
	}
	rows.Close()
	return nil
}

// syntaxError wraps a validation failure, mentioning sources whose
// attachments could not be restored since those surface as missing catalogs.
func syntaxError(err error, restore map[string]error) error {
	msg := "statement failed validation"
	if len(restore) > 0 {
		views := make([]string, 0, len(restore))
		for v := range restore {
			views = append(views, v)
		}
		sort.Strings(views)
		msg += "; sources not re-attached: " + strings.Join(views, ", ")
	}
	return apperr.Wrap(apperr.Syntax, msg, err)
}

// fetch reads rows until one past rowCap, which marks the result truncated.
func fetch(ctx context.Context, h *engine.Handle, q string, rowCap int) (*Result, error) {
	rows, err := h.Conn().QueryContext(ctx, q)
	if err != nil {
		return nil, apperr.Wrap(apperr.Runtime, "execution failed", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, apperr.Wrap(apperr.Runtime, "read columns", err)
	}

	res := &Result{Columns: cols, Rows: make([][]any, 0), RowCap: rowCap}
	for rows.Next() {
		if len(res.Rows) == rowCap {
			res.Truncated = true
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, apperr.Wrap(apperr.Runtime, "scan row", err)
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Runtime, "execution failed", err)
	}
	res.RowCount = len(res.Rows)
	return res, nil
}

// scopeFileTargets rewrites relative paths written by COPY, EXPORT and ATTACH
// to absolute paths inside dir. Absolute and remote paths are left alone.
func scopeFileTargets(dir, stmt string) (string, error) {
	targets := engine.FileTargets(stmt)
	if len(targets) == 0 {
		return stmt, nil
	}
	var b strings.Builder
	last := 0
	for _, t := range targets {
		if filepath.IsAbs(t.Value) || remotePath(t.Value) {
			continue
		}
		abs, err := session.ResolveIn(dir, t.Value)
		if err != nil {
			return "", err
		}
		b.WriteString(stmt[last:t.Start])
		b.WriteString(engine.QuoteLiteral(abs))
		last = t.End
	}
	b.WriteString(stmt[last:])
	return b.String(), nil
}

// remotePath reports whether p names something other than a local file:
// an empty or in-memory database, or a URL such as s3://bucket/key or md:db.
func remotePath(p string) bool {
	if p == "" || p == ":memory:" {
		return true
	}
	i := strings.IndexByte(p, ':')
	if i < 2 {
		return false
	}
	for _, r := range p[:i] {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}
