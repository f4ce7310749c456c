// Package analysis computes quick descriptive statistics over a session
// view or a cached artifact file.
package analysis

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/sessionlake/internal/binder"
	"github.com/JonMunkholm/sessionlake/internal/engine"
	apperr "github.com/JonMunkholm/sessionlake/internal/errors"
	"github.com/JonMunkholm/sessionlake/internal/metrics"
	"github.com/JonMunkholm/sessionlake/internal/session"
)

// Target types.
const (
	TargetView     = "view"
	TargetArtifact = "artifact"
)

// NumericStats holds aggregates for a numeric column. Fields are nil when
// the column has no non-null values.
type NumericStats struct {
	Mean   *float64 `json:"mean"`
	Std    *float64 `json:"std"`
	Min    *float64 `json:"min"`
	Max    *float64 `json:"max"`
	Median *float64 `json:"median"`
}

// ColumnReport describes one column.
type ColumnReport struct {
	Name         string        `json:"name"`
	DeclaredType string        `json:"declared_type"`
	NullCount    *int64        `json:"null_count"`
	NumericStats *NumericStats `json:"numeric_stats,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// Report is the analysis of one target. It is never persisted.
type Report struct {
	Target      string         `json:"target"`
	TargetType  string         `json:"target_type"`
	RowCount    *int64         `json:"row_count"`
	ColumnCount int            `json:"column_count"`
	Columns     []ColumnReport `json:"columns"`
	Error       string         `json:"error,omitempty"`
}

// Analyzer runs analyses on read-only handles.
type Analyzer struct {
	store  *session.Store
	logger *slog.Logger
}

// New creates an Analyzer.
func New(store *session.Store, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{store: store, logger: logger.With("component", "analysis")}
}

// AnalyzeViews analyzes each named view independently; an empty list means
// every view in the session. A failing view yields a report with Error set.
func (a *Analyzer) AnalyzeViews(ctx context.Context, userID, sessionID string, views []string) ([]Report, error) {
	unlock := a.store.RLock(userID, sessionID)
	defer unlock()

	h, err := a.open(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	if len(views) == 0 {
		views, err = h.Views(ctx)
		if err != nil {
			return nil, apperr.Wrap(apperr.Runtime, "list views", err)
		}
	}

	restore := h.RestoreErrors()
	reports := make([]Report, 0, len(views))
	for _, v := range views {
		rep := Report{Target: v, TargetType: TargetView, Columns: []ColumnReport{}}
		ok, err := h.ViewExists(ctx, v)
		switch {
		case err != nil:
			rep.Error = err.Error()
		case !ok:
			rep.Error = fmt.Sprintf("view %q not found", v)
		default:
			rep = analyze(ctx, h, engine.QuoteIdent(v), rep)
			if rep.Error != "" {
				if rerr, bad := restore[v]; bad {
					rep.Error += "; source not re-attached: " + rerr.Error()
				}
			}
		}
		outcome := "ok"
		if rep.Error != "" {
			outcome = "failed"
			a.logger.Warn("view analysis failed", "user_id", userID, "session_id", sessionID, "view", v, "error", rep.Error)
		}
		metrics.ObserveAnalysis(TargetView, outcome)
		reports = append(reports, rep)
	}
	return reports, nil
}

// AnalyzeFile analyzes an artifact in the session directory using the
// reader that matches its extension.
func (a *Analyzer) AnalyzeFile(ctx context.Context, userID, sessionID, name string) (*Report, error) {
	path, err := a.store.Resolve(userID, sessionID, name)
	if err != nil {
		return nil, err
	}
	format, ok := binder.ParseFormat("", path)
	if !ok {
		return nil, apperr.Newf(apperr.Configuration, "no reader for file type %q", filepath.Ext(name))
	}

	unlock := a.store.RLock(userID, sessionID)
	defer unlock()

	h, err := a.open(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	if ext := binder.RequiredExtension(format); ext != "" {
		if err := h.LoadExtension(ctx, ext); err != nil {
			metrics.ObserveAnalysis(TargetArtifact, "failed")
			return nil, apperr.Wrap(apperr.Runtime, "load "+ext, err)
		}
	}

	rep := analyze(ctx, h, binder.ReaderCall(format, path), Report{
		Target:     name,
		TargetType: TargetArtifact,
		Columns:    []ColumnReport{},
	})
	if rep.Error != "" {
		metrics.ObserveAnalysis(TargetArtifact, "failed")
		return nil, apperr.New(apperr.Runtime, rep.Error)
	}
	metrics.ObserveAnalysis(TargetArtifact, "ok")
	return &rep, nil
}

func (a *Analyzer) open(ctx context.Context, userID, sessionID string) (*engine.Handle, error) {
	return a.store.Open(ctx, userID, sessionID, session.OpenOptions{
		ReadOnly:    true,
		ObjectStore: a.store.Engine().ObjectStoreConfigured(),
	})
}

// analyze fills rep for the relation expression rel.
func analyze(ctx context.Context, h *engine.Handle, rel string, rep Report) Report {
	if n, err := h.CountRows(ctx, rel); err == nil {
		rep.RowCount = &n
	}

	cols, err := h.Describe(ctx, rel)
	if err != nil {
		rep.Error = err.Error()
		return rep
	}
	rep.ColumnCount = len(cols)

	for _, c := range cols {
		cr := ColumnReport{Name: c.Name, DeclaredType: c.Type}
		ident := engine.QuoteIdent(c.Name)

		var nulls int64
		if err := h.Get(ctx, &nulls, "SELECT COUNT(*) FROM "+rel+" WHERE "+ident+" IS NULL"); err != nil {
			cr.Error = err.Error()
		} else {
			cr.NullCount = &nulls
		}

		if IsNumeric(c.Type) && cr.Error == "" {
			stats, err := numericStats(ctx, h, rel, ident)
			if err != nil {
				cr.Error = err.Error()
			} else {
				cr.NumericStats = stats
			}
		}
		rep.Columns = append(rep.Columns, cr)
	}
	return rep
}

func numericStats(ctx context.Context, h *engine.Handle, rel, ident string) (*NumericStats, error) {
	q := fmt.Sprintf(`SELECT
		AVG(%[1]s)::DOUBLE,
		STDDEV_POP(%[1]s)::DOUBLE,
		MIN(%[1]s)::DOUBLE,
		MAX(%[1]s)::DOUBLE,
		MEDIAN(%[1]s)::DOUBLE
	FROM %[2]s`, ident, rel)

	var mean, std, min, max, median sql.NullFloat64
	if err := h.Conn().QueryRowContext(ctx, q).Scan(&mean, &std, &min, &max, &median); err != nil {
		return nil, err
	}
	return &NumericStats{
		Mean:   floatPtr(mean),
		Std:    floatPtr(std),
		Min:    floatPtr(min),
		Max:    floatPtr(max),
		Median: floatPtr(median),
	}, nil
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

var numericTypes = map[string]bool{
	"TINYINT": true, "SMALLINT": true, "INTEGER": true, "BIGINT": true, "HUGEINT": true,
	"UTINYINT": true, "USMALLINT": true, "UINTEGER": true, "UBIGINT": true, "UHUGEINT": true,
	"FLOAT": true, "DOUBLE": true, "REAL": true, "DECIMAL": true, "NUMERIC": true,
	"INT": true, "INT1": true, "INT2": true, "INT4": true, "INT8": true, "FLOAT4": true, "FLOAT8": true,
}

// IsNumeric reports whether a declared engine type gets numeric statistics.
func IsNumeric(declared string) bool {
	t := strings.ToUpper(strings.TrimSpace(declared))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	return numericTypes[t]
}
