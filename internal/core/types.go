package core

import (
	"github.com/JonMunkholm/sessionlake/internal/analysis"
	"github.com/JonMunkholm/sessionlake/internal/binder"
	"github.com/JonMunkholm/sessionlake/internal/engine"
	apperr "github.com/JonMunkholm/sessionlake/internal/errors"
	"github.com/JonMunkholm/sessionlake/internal/session"
	"github.com/JonMunkholm/sessionlake/internal/unify"
)

// DefaultDataset names the unified view when a request maps fields but
// does not name the dataset.
const DefaultDataset = "unified_dataset"

// InitRequest describes one session initialization.
type InitRequest struct {
	Sources []binder.Source `json:"sources"`
	// Dataset names the unified view; DefaultDataset when empty.
	Dataset string `json:"dataset,omitempty"`
	// TargetFields is the ordered unified schema; inferred when empty.
	TargetFields []string `json:"target_fields,omitempty"`
	// Mappings is keyed by source id or source name.
	Mappings map[string]unify.Mapping `json:"mappings,omitempty"`
}

// InitResult reports which views exist after initialization.
type InitResult struct {
	ViewsCreated []string         `json:"views_created"`
	Errors       []binder.Failure `json:"errors"`
	Unified      *unify.Result    `json:"unified,omitempty"`
}

// BindResult reports one re-bound source.
type BindResult struct {
	View    string          `json:"view"`
	Columns []engine.Column `json:"columns"`
}

// Failure fields shared by structured results. Error is condensed engine
// text; Detail keeps the full text.
type Failure struct {
	Error  string      `json:"error,omitempty"`
	Detail string      `json:"detail,omitempty"`
	Kind   apperr.Kind `json:"kind,omitempty"`
	Code   string      `json:"code,omitempty"`
}

func newFailure(err error) Failure {
	detail := apperr.Cause(err)
	return Failure{
		Error:  Condense(detail, DefaultCondenseLines),
		Detail: detail,
		Kind:   apperr.KindOf(err),
		Code:   MapError(err).Code,
	}
}

// SQLResult is the outcome of execute_sql.
type SQLResult struct {
	Success       bool     `json:"success"`
	Columns       []string `json:"columns"`
	Rows          [][]any  `json:"rows"`
	RowCount      int      `json:"row_count"`
	ResultFile    string   `json:"result_file,omitempty"`
	Truncated     bool     `json:"truncated"`
	RowCap        int      `json:"row_cap"`
	StatementType string   `json:"statement_type,omitempty"`
	Failure
}

// AnalysisRequest selects views or one artifact file. Both empty means
// every view in the session.
type AnalysisRequest struct {
	Views []string `json:"view_names,omitempty"`
	File  string   `json:"artifact_file,omitempty"`
}

// AnalysisResult is the outcome of quick_analysis.
type AnalysisResult struct {
	Success  bool              `json:"success"`
	Analysis []analysis.Report `json:"analysis,omitempty"`
	Failure
}

// ViewInfo describes one view in a session.
type ViewInfo struct {
	Name     string          `json:"name"`
	Columns  []engine.Column `json:"columns"`
	RowCount *int64          `json:"row_count,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// ViewsResult is the outcome of list_views.
type ViewsResult struct {
	Views []ViewInfo `json:"views"`
}

// FilesResult is the outcome of list_files.
type FilesResult struct {
	Files []session.FileInfo `json:"files"`
	Count int                `json:"count"`
}

// DeleteResult is the outcome of delete_file.
type DeleteResult struct {
	Deleted string `json:"deleted"`
}

// ResetRequest selects what to wipe.
type ResetRequest struct {
	Scope     string `json:"scope"`
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// ResetResult is the outcome of reset.
type ResetResult struct {
	DeletedCount int `json:"deleted_count"`
}

// ScriptRequest is one sandboxed script run.
type ScriptRequest struct {
	Script         string `json:"script"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// ScriptResult is the outcome of run_script.
type ScriptResult struct {
	Success    bool   `json:"success"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exit_code"`
	TimedOut   bool   `json:"timed_out"`
	DurationMS int64  `json:"duration_ms"`
	Truncated  bool   `json:"truncated,omitempty"`
	Failure
}
