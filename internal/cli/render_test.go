package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/sessionlake/internal/analysis"
	"github.com/JonMunkholm/sessionlake/internal/binder"
	"github.com/JonMunkholm/sessionlake/internal/core"
	apperr "github.com/JonMunkholm/sessionlake/internal/errors"
	"github.com/JonMunkholm/sessionlake/internal/session"
	"github.com/JonMunkholm/sessionlake/internal/unify"
)

func TestCell(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "NULL"},
		{"string", "east", "east"},
		{"int", int64(42), "42"},
		{"float", 2.5, "2.5"},
		{"time", ts, "2024-03-01T12:00:00Z"},
		{"newline", "a\nb", "a b"},
		{"long", strings.Repeat("x", 100), strings.Repeat("x", maxCellWidth-3) + "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cell(tt.in); got != tt.want {
				t.Errorf("cell(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRenderInit(t *testing.T) {
	res := &core.InitResult{
		ViewsCreated: []string{"orders", "refunds", "unified_dataset"},
		Errors: []binder.Failure{
			{SourceID: "src-3", Name: "crm", Kind: apperr.Binding, Error: "connection refused"},
		},
		Unified: &unify.Result{View: "unified_dataset", Sources: []string{"orders", "refunds"}, TargetFields: []string{"amount", "region"}},
	}
	out := renderInit(res)
	for _, want := range []string{"orders", "refunds", "unified 2 sources into unified_dataset", "amount, region", "1 source(s) failed", "src-3", "connection refused"} {
		if !strings.Contains(out, want) {
			t.Errorf("renderInit() missing %q:\n%s", want, out)
		}
	}

	if out := renderInit(&core.InitResult{}); !strings.Contains(out, "no sources bound") {
		t.Errorf("empty init = %q", out)
	}
}

func TestRenderSQL_Failure(t *testing.T) {
	res := &core.SQLResult{Failure: core.Failure{Error: "Parser Error: syntax error at or near \"SELEC\"", Code: "SQL001", Kind: apperr.Syntax}}
	out := renderSQL(res)
	if !strings.Contains(out, "SELEC") || !strings.Contains(out, "SQL001") {
		t.Errorf("renderSQL() = %q", out)
	}
}

func TestRenderSQL_Statement(t *testing.T) {
	res := &core.SQLResult{Success: true, RowCount: 0, StatementType: "CREATE", ResultFile: "result_1.parquet"}
	out := renderSQL(res)
	if !strings.Contains(out, "CREATE: 0 row(s)") || !strings.Contains(out, "result_1.parquet") {
		t.Errorf("renderSQL() = %q", out)
	}
}

func TestRenderReport(t *testing.T) {
	rows, nulls := int64(5), int64(1)
	minV, maxV, mean := 1.0, 9.0, 4.5
	rep := analysis.Report{
		Target:      "orders",
		TargetType:  "view",
		RowCount:    &rows,
		ColumnCount: 2,
		Columns: []analysis.ColumnReport{
			{Name: "amount", DeclaredType: "BIGINT", NullCount: &nulls, NumericStats: &analysis.NumericStats{Min: &minV, Max: &maxV, Mean: &mean}},
			{Name: "region", DeclaredType: "VARCHAR", NullCount: new(int64)},
		},
	}
	out := renderReport(rep)
	for _, want := range []string{"orders (view)", "rows: 5", "columns: 2", "amount", "BIGINT", "4.5", "region"} {
		if !strings.Contains(out, want) {
			t.Errorf("renderReport() missing %q:\n%s", want, out)
		}
	}

	out = renderReport(analysis.Report{Target: "gone", TargetType: "view", Error: "Catalog Error: missing"})
	if !strings.Contains(out, "Catalog Error") {
		t.Errorf("error report = %q", out)
	}
}

func TestRenderViewsAndFiles(t *testing.T) {
	n := int64(3)
	views := &core.ViewsResult{Views: []core.ViewInfo{
		{Name: "orders", RowCount: &n},
		{Name: "crm", Error: "restore failed"},
	}}
	out := renderViews(views)
	if !strings.Contains(out, "orders") || !strings.Contains(out, "error: restore failed") {
		t.Errorf("renderViews() = %q", out)
	}
	if out := renderViews(&core.ViewsResult{}); !strings.Contains(out, "no views") {
		t.Errorf("empty views = %q", out)
	}

	files := &core.FilesResult{Count: 1, Files: []session.FileInfo{{Name: "out.csv", Size: 12, Modified: time.Unix(0, 0).UTC()}}}
	out = renderFiles(files)
	if !strings.Contains(out, "out.csv") || !strings.Contains(out, "12") {
		t.Errorf("renderFiles() = %q", out)
	}
}

func TestRenderScript(t *testing.T) {
	ok := renderScript(&core.ScriptResult{Success: true, Stdout: "hello\n", DurationMS: 7})
	if !strings.Contains(ok, "hello") || !strings.Contains(ok, "exit 0 in 7ms") {
		t.Errorf("success = %q", ok)
	}

	failed := renderScript(&core.ScriptResult{Stderr: "boom", ExitCode: 2, Truncated: true})
	if !strings.Contains(failed, "boom") || !strings.Contains(failed, "exit 2") || !strings.Contains(failed, "output truncated") {
		t.Errorf("failure = %q", failed)
	}

	timedOut := renderScript(&core.ScriptResult{TimedOut: true, Failure: core.Failure{Error: "script exceeded timeout", Code: "RES001"}})
	if !strings.Contains(timedOut, "RES001") {
		t.Errorf("timeout = %q", timedOut)
	}
}
