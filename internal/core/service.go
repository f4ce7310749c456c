package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/sessionlake/internal/analysis"
	"github.com/JonMunkholm/sessionlake/internal/binder"
	"github.com/JonMunkholm/sessionlake/internal/engine"
	apperr "github.com/JonMunkholm/sessionlake/internal/errors"
	"github.com/JonMunkholm/sessionlake/internal/logging"
	"github.com/JonMunkholm/sessionlake/internal/metrics"
	"github.com/JonMunkholm/sessionlake/internal/query"
	"github.com/JonMunkholm/sessionlake/internal/sandbox"
	"github.com/JonMunkholm/sessionlake/internal/session"
	"github.com/JonMunkholm/sessionlake/internal/unify"
)

// Deps are the components a Service coordinates.
type Deps struct {
	Store    *session.Store
	Binder   *binder.Binder
	Executor *query.Executor
	Analyzer *analysis.Analyzer
	Sandbox  *sandbox.Runner
	Limiter  *InitLimiter
}

// Service is the entry point for every session operation. Transports (HTTP,
// CLI) call it and never touch engine handles directly.
type Service struct {
	store    *session.Store
	binder   *binder.Binder
	executor *query.Executor
	analyzer *analysis.Analyzer
	sandbox  *sandbox.Runner
	limiter  *InitLimiter
}

// NewService creates a new Service instance. Store is required; other
// components get defaults built on it.
func NewService(d Deps) (*Service, error) {
	if d.Store == nil {
		return nil, errors.New("session store is required")
	}
	s := &Service{
		store:    d.Store,
		binder:   d.Binder,
		executor: d.Executor,
		analyzer: d.Analyzer,
		sandbox:  d.Sandbox,
		limiter:  d.Limiter,
	}
	if s.binder == nil {
		s.binder = binder.New(binder.Options{})
	}
	if s.executor == nil {
		s.executor = query.New(d.Store, query.Options{})
	}
	if s.analyzer == nil {
		s.analyzer = analysis.New(d.Store, nil)
	}
	if s.sandbox == nil {
		s.sandbox = sandbox.New(sandbox.Options{})
	}
	if s.limiter == nil {
		s.limiter = NewInitLimiter(DefaultMaxConcurrentInits, DefaultMaxWaitTime)
	}
	return s, nil
}

// Store returns the session store.
func (s *Service) Store() *session.Store { return s.store }

// Limiter returns the initialization limiter.
func (s *Service) Limiter() *InitLimiter { return s.limiter }

// InitSession binds every source, then unifies them when the request maps
// at least one field. Per-source failures are reported in the result; only
// request-level problems (bad ids, busy server) are returned as errors.
func (s *Service) InitSession(ctx context.Context, userID, sessionID string, req InitRequest) (*InitResult, error) {
	if err := ValidateSessionRef(userID, sessionID); err != nil {
		return nil, err
	}
	if err := ValidateInitRequest(req); err != nil {
		return nil, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		if errors.Is(err, ErrTooManyInits) {
			metrics.InitRejected()
		}
		return nil, err
	}
	defer s.limiter.Release()

	start := time.Now()
	logger := logging.WithSession(ctx, userID, sessionID, clientFields(ctx)...)

	dir, err := s.store.EnsureDir(userID, sessionID)
	if err != nil {
		return nil, err
	}

	unlock := s.store.Lock(userID, sessionID)
	defer unlock()

	h, err := s.store.Open(ctx, userID, sessionID, session.OpenOptions{})
	if err != nil {
		return nil, err
	}
	defer h.Close()

	bound := s.binder.BindAll(ctx, h, dir, req.Sources)
	observeBinds(req.Sources, bound)

	res := &InitResult{
		ViewsCreated: append([]string{}, bound.Views...),
		Errors:       append([]binder.Failure{}, bound.Failures...),
	}

	if hasMapping(req.Mappings) {
		dataset := req.Dataset
		if dataset == "" {
			dataset = DefaultDataset
		}
		unified, err := unify.Unify(ctx, h, unify.Input{
			Name:         dataset,
			TargetFields: req.TargetFields,
			Mappings:     mappingsByView(req.Sources, req.Mappings),
			Views:        bound.Views,
			Columns:      bound.Columns,
		})
		switch {
		case err != nil:
			logger.Warn("unification failed", "dataset", dataset, "error", err)
			res.Errors = append(res.Errors, binder.Failure{
				Name:  dataset,
				Kind:  apperr.KindOf(err),
				Error: apperr.Cause(err),
				Err:   err,
			})
		case unified.View != "":
			res.ViewsCreated = append(res.ViewsCreated, unified.View)
			res.Unified = &unified
		}
	}

	elapsed := time.Since(start)
	metrics.ObserveInit(elapsed)
	logger.Info("session initialized",
		"views", len(res.ViewsCreated),
		"errors", len(res.Errors),
		"duration_ms", elapsed.Milliseconds(),
	)
	return res, nil
}

func hasMapping(mappings map[string]unify.Mapping) bool {
	for _, m := range mappings {
		for _, expr := range m {
			if strings.TrimSpace(expr) != "" {
				return true
			}
		}
	}
	return false
}

func observeBinds(sources []binder.Source, bound binder.Result) {
	kinds := make(map[string]string, len(sources))
	for _, src := range sources {
		kinds[src.Name] = string(src.Kind)
	}
	for _, v := range bound.Views {
		metrics.ObserveBind(kinds[v], "ok")
	}
	for _, f := range bound.Failures {
		metrics.ObserveBind(kinds[f.Name], string(f.Kind))
	}
}

// BindSource binds or re-binds one source without touching other views.
func (s *Service) BindSource(ctx context.Context, userID, sessionID string, src binder.Source) (*BindResult, error) {
	if err := ValidateSessionRef(userID, sessionID); err != nil {
		return nil, err
	}
	dir, err := s.store.EnsureDir(userID, sessionID)
	if err != nil {
		return nil, err
	}

	unlock := s.store.Lock(userID, sessionID)
	defer unlock()

	h, err := s.store.Open(ctx, userID, sessionID, session.OpenOptions{})
	if err != nil {
		return nil, err
	}
	defer h.Close()

	cols, err := s.binder.Bind(ctx, h, dir, src)
	if err != nil {
		metrics.ObserveBind(string(src.Kind), string(apperr.KindOf(err)))
		return nil, err
	}
	metrics.ObserveBind(string(src.Kind), "ok")
	return &BindResult{View: src.Name, Columns: cols}, nil
}

// ExecuteSQL runs one statement. Syntax and runtime failures come back as a
// structured result with Success false; only request-level problems are
// returned as errors.
func (s *Service) ExecuteSQL(ctx context.Context, userID, sessionID, sql string, rowCap int) (*SQLResult, error) {
	if err := ValidateSessionRef(userID, sessionID); err != nil {
		return nil, err
	}

	res, err := s.executor.Execute(ctx, userID, sessionID, sql, rowCap)
	if err != nil {
		if !structured(err) {
			return nil, err
		}
		logging.WithSession(ctx, userID, sessionID).Debug("statement rejected", "kind", apperr.KindOf(err), "error", err)
		return &SQLResult{
			Columns: []string{},
			Rows:    [][]any{},
			RowCap:  s.executor.RowCap(rowCap),
			Failure: newFailure(err),
		}, nil
	}

	out := &SQLResult{
		Success:       true,
		Columns:       res.Columns,
		Rows:          NormalizeRows(res.Rows),
		RowCount:      res.RowCount,
		ResultFile:    res.ResultFile,
		Truncated:     res.Truncated,
		RowCap:        res.RowCap,
		StatementType: string(res.Class),
	}
	if out.Columns == nil {
		out.Columns = []string{}
	}
	if out.Rows == nil {
		out.Rows = [][]any{}
	}
	return out, nil
}

// structured reports whether err belongs in a result body rather than the
// transport's error channel.
func structured(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.Syntax, apperr.Runtime:
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	return false
}

// QuickAnalysis analyzes one artifact file or a set of views.
func (s *Service) QuickAnalysis(ctx context.Context, userID, sessionID string, req AnalysisRequest) (*AnalysisResult, error) {
	if err := ValidateSessionRef(userID, sessionID); err != nil {
		return nil, err
	}

	if req.File != "" {
		if len(req.Views) > 0 {
			return nil, apperr.New(apperr.Configuration, "set either view_names or artifact_file, not both")
		}
		rep, err := s.analyzer.AnalyzeFile(ctx, userID, sessionID, req.File)
		if err != nil {
			if !structured(err) {
				return nil, err
			}
			return &AnalysisResult{Failure: newFailure(err)}, nil
		}
		return &AnalysisResult{Success: true, Analysis: []analysis.Report{*rep}}, nil
	}

	reports, err := s.analyzer.AnalyzeViews(ctx, userID, sessionID, req.Views)
	if err != nil {
		if !structured(err) {
			return nil, err
		}
		return &AnalysisResult{Failure: newFailure(err)}, nil
	}
	return &AnalysisResult{Success: true, Analysis: reports}, nil
}

// ListViews describes every view in the session. Row counts are included
// when withCounts is set; a view whose count fails keeps its columns and
// reports the error.
func (s *Service) ListViews(ctx context.Context, userID, sessionID string, withCounts bool) (*ViewsResult, error) {
	if err := ValidateSessionRef(userID, sessionID); err != nil {
		return nil, err
	}

	unlock := s.store.RLock(userID, sessionID)
	defer unlock()

	h, err := s.store.Open(ctx, userID, sessionID, session.OpenOptions{
		ReadOnly:    true,
		ObjectStore: s.store.Engine().ObjectStoreConfigured(),
	})
	if err != nil {
		return nil, err
	}
	defer h.Close()

	names, err := h.Views(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Runtime, "list views", err)
	}

	restore := h.RestoreErrors()
	out := &ViewsResult{Views: make([]ViewInfo, 0, len(names))}
	for _, name := range names {
		info := ViewInfo{Name: name, Columns: []engine.Column{}}
		rel := engine.QuoteIdent(name)

		cols, err := h.Describe(ctx, rel)
		if err != nil {
			info.Error = viewError(name, err, restore)
			out.Views = append(out.Views, info)
			continue
		}
		info.Columns = cols

		if withCounts {
			n, err := h.CountRows(ctx, rel)
			if err != nil {
				info.Error = viewError(name, err, restore)
			} else {
				info.RowCount = &n
			}
		}
		out.Views = append(out.Views, info)
	}
	return out, nil
}

func viewError(name string, err error, restore map[string]error) string {
	msg := Condense(err.Error(), DefaultCondenseLines)
	if rerr, ok := restore[name]; ok {
		msg += "; source not re-attached: " + rerr.Error()
	}
	return msg
}

// ListFiles lists artifacts in the session directory.
func (s *Service) ListFiles(ctx context.Context, userID, sessionID string) (*FilesResult, error) {
	if err := ValidateSessionRef(userID, sessionID); err != nil {
		return nil, err
	}
	files, err := s.store.ListFiles(userID, sessionID)
	if err != nil {
		return nil, err
	}
	return &FilesResult{Files: files, Count: len(files)}, nil
}

// DeleteFile removes one artifact from the session directory.
func (s *Service) DeleteFile(ctx context.Context, userID, sessionID, name string) (*DeleteResult, error) {
	if err := ValidateSessionRef(userID, sessionID); err != nil {
		return nil, err
	}

	unlock := s.store.Lock(userID, sessionID)
	defer unlock()

	if err := s.store.DeleteFile(userID, sessionID, name); err != nil {
		return nil, err
	}
	logging.WithSession(ctx, userID, sessionID, clientFields(ctx)...).Info("artifact deleted", "file", name)
	return &DeleteResult{Deleted: name}, nil
}

// Reset wipes one session, all sessions of a user, or everything.
func (s *Service) Reset(ctx context.Context, req ResetRequest) (*ResetResult, error) {
	scope, err := session.ParseScope(req.Scope)
	if err != nil {
		return nil, err
	}

	n, err := s.store.Reset(scope, req.UserID, req.SessionID)
	metrics.ObserveReset(string(scope), n)

	logger := logging.WithFields(ctx, append([]any{"scope", scope, "user_id", req.UserID, "session_id", req.SessionID}, clientFields(ctx)...)...)
	if err != nil {
		logger.Error("reset failed", "deleted_count", n, "error", err)
		return nil, err
	}
	logger.Info("reset completed", "deleted_count", n)
	return &ResetResult{DeletedCount: n}, nil
}

// RunScript runs a caller script in the session directory. A non-zero exit
// or a timeout is reported in the result; only request-level problems are
// returned as errors.
func (s *Service) RunScript(ctx context.Context, userID, sessionID string, req ScriptRequest) (*ScriptResult, error) {
	if err := ValidateSessionRef(userID, sessionID); err != nil {
		return nil, err
	}
	if err := ValidateScriptRequest(req); err != nil {
		return nil, err
	}

	dir, err := s.store.EnsureDir(userID, sessionID)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	run, err := s.sandbox.Run(ctx, dir, req.Script, timeout)
	if run == nil {
		if err == nil {
			err = fmt.Errorf("script produced no result")
		}
		return nil, err
	}

	res := &ScriptResult{
		Success:    run.Succeeded(),
		Stdout:     run.Stdout,
		Stderr:     run.Stderr,
		ExitCode:   run.ExitCode,
		TimedOut:   run.TimedOut,
		DurationMS: run.Duration.Milliseconds(),
		Truncated:  run.StdoutTruncated || run.StderrTruncated,
	}
	if err != nil {
		if !run.TimedOut {
			return nil, err
		}
		res.Failure = newFailure(err)
	}
	logging.WithSession(ctx, userID, sessionID, clientFields(ctx)...).Info("script finished",
		"exit_code", res.ExitCode, "timed_out", res.TimedOut, "duration_ms", res.DurationMS)
	return res, nil
}
