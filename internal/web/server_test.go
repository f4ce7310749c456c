package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/JonMunkholm/sessionlake/internal/core"
	"github.com/JonMunkholm/sessionlake/internal/engine"
	apperr "github.com/JonMunkholm/sessionlake/internal/errors"
	"github.com/JonMunkholm/sessionlake/internal/session"
)

func newTestServer(t *testing.T, opts Options) (*Server, *core.Service) {
	t.Helper()
	eng, err := engine.New(engine.Options{ExtensionDir: filepath.Join(t.TempDir(), "ext")})
	if err != nil {
		t.Fatalf("engine.New() error = %v", err)
	}
	store, err := session.NewStore(t.TempDir(), eng)
	if err != nil {
		t.Fatalf("session.NewStore() error = %v", err)
	}
	svc, err := core.NewService(core.Deps{Store: store})
	if err != nil {
		t.Fatalf("core.NewService() error = %v", err)
	}
	srv := NewServer(svc, opts)
	t.Cleanup(func() { srv.Shutdown(t.Context()) })
	return srv, svc
}

func do(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func TestRoutesRegistered(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/healthz"},
		{http.MethodGet, "/metrics"},
		{http.MethodPost, "/api/sessions/u1/s1/init"},
		{http.MethodPost, "/api/sessions/u1/s1/sources"},
		{http.MethodPost, "/api/sessions/u1/s1/sql"},
		{http.MethodPost, "/api/sessions/u1/s1/analysis"},
		{http.MethodGet, "/api/sessions/u1/s1/views"},
		{http.MethodGet, "/api/sessions/u1/s1/files"},
		{http.MethodDelete, "/api/sessions/u1/s1/files/x.parquet"},
		{http.MethodPost, "/api/sessions/u1/s1/scripts"},
		{http.MethodPost, "/api/reset"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			req := httptest.NewRequest(rt.method, rt.path, nil)
			w := httptest.NewRecorder()
			srv.Router().ServeHTTP(w, req)
			if w.Code == http.StatusNotFound && rt.method != http.MethodDelete {
				t.Errorf("route %s %s not registered", rt.method, rt.path)
			}
			if w.Code == http.StatusMethodNotAllowed {
				t.Errorf("route %s %s: method not allowed", rt.method, rt.path)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	w := do(t, srv, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	got := decode[healthResponse](t, w)
	if got.Status != "ok" || got.Init.MaxConcurrent != core.DefaultMaxConcurrentInits {
		t.Errorf("health = %+v", got)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestInitAndQueryFlow(t *testing.T) {
	srv, svc := newTestServer(t, Options{})
	dir, err := svc.Store().EnsureDir("u1", "s1")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "orders.csv"), []byte("id,amount\n1,5\n2,7\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	body := map[string]any{
		"sources": []map[string]any{{
			"id":     "src-1",
			"name":   "orders",
			"kind":   "object_file",
			"object": map[string]any{"path": "orders.csv"},
		}},
	}
	w := do(t, srv, http.MethodPost, "/api/sessions/u1/s1/init", body)
	if w.Code != http.StatusOK {
		t.Fatalf("init status = %d: %s", w.Code, w.Body.String())
	}
	init := decode[core.InitResult](t, w)
	if len(init.ViewsCreated) != 1 || init.ViewsCreated[0] != "orders" {
		t.Fatalf("views_created = %v", init.ViewsCreated)
	}

	w = do(t, srv, http.MethodPost, "/api/sessions/u1/s1/sql", sqlRequest{SQL: "SELECT SUM(amount) AS total FROM orders"})
	if w.Code != http.StatusOK {
		t.Fatalf("sql status = %d: %s", w.Code, w.Body.String())
	}
	res := decode[map[string]any](t, w)
	if res["success"] != true || res["row_count"] != float64(1) {
		t.Errorf("sql result = %v", res)
	}
	rows := res["rows"].([]any)
	if rows[0].([]any)[0] != float64(12) {
		t.Errorf("SUM(amount) = %v, want 12", rows[0])
	}

	w = do(t, srv, http.MethodGet, "/api/sessions/u1/s1/views", nil)
	views := decode[core.ViewsResult](t, w)
	if len(views.Views) != 1 || views.Views[0].RowCount == nil || *views.Views[0].RowCount != 2 {
		t.Errorf("views = %+v", views)
	}

	w = do(t, srv, http.MethodGet, "/api/sessions/u1/s1/files", nil)
	files := decode[core.FilesResult](t, w)
	if files.Count != 2 {
		t.Errorf("files = %+v, want the csv and one result artifact", files)
	}
}

func TestExecuteSQL_SyntaxErrorIsStructured(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	w := do(t, srv, http.MethodPost, "/api/sessions/u1/s1/sql", sqlRequest{SQL: "SELEC 1"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with success=false", w.Code)
	}
	res := decode[core.SQLResult](t, w)
	if res.Success || res.Kind != apperr.Syntax || res.Detail == "" {
		t.Errorf("result = %+v", res)
	}
}

func TestErrorResponses(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	tests := []struct {
		name     string
		method   string
		path     string
		body     any
		status   int
		wantCode string
	}{
		{"invalid user id", http.MethodGet, "/api/sessions/bad.id/s1/files", nil, http.StatusBadRequest, "CFG001"},
		{"unknown scope", http.MethodPost, "/api/reset", core.ResetRequest{Scope: "galaxy"}, http.StatusBadRequest, "CFG005"},
		{"path escape", http.MethodPost, "/api/sessions/u1/s1/analysis", core.AnalysisRequest{File: "../../etc/passwd"}, http.StatusForbidden, "PATH001"},
		{"missing file", http.MethodDelete, "/api/sessions/u1/s1/files/nope.parquet", nil, http.StatusNotFound, "PATH003"},
		{"engine file", http.MethodDelete, "/api/sessions/u1/s1/files/session.duckdb", nil, http.StatusForbidden, "PATH002"},
		{"bad counts", http.MethodGet, "/api/sessions/u1/s1/views?counts=maybe", nil, http.StatusBadRequest, "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, tt.method, tt.path, tt.body)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.status, w.Body.String())
			}
			got := decode[ErrorResponse](t, w)
			if got.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestInvalidJSONBody(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/u1/s1/sql", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, Options{RateLimitEnabled: true, RequestsPerMinute: 2})
	const path = "/api/sessions/u1/s1/files"

	for i := 0; i < 2; i++ {
		if w := do(t, srv, http.MethodGet, path, nil); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i+1, w.Code)
		}
	}
	w := do(t, srv, http.MethodGet, path, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("429 should carry Retry-After")
	}
	if got := decode[ErrorResponse](t, w); got.Code != "RES005" {
		t.Errorf("code = %q, want RES005", got.Code)
	}

	// Health checks are outside the limited group.
	if w := do(t, srv, http.MethodGet, "/healthz", nil); w.Code != http.StatusOK {
		t.Errorf("/healthz status = %d, want 200 while limited", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrTooManyInits, http.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", session.ErrPathEscape), http.StatusForbidden},
		{apperr.New(apperr.Configuration, "source id is required"), http.StatusBadRequest},
		{apperr.New(apperr.Binding, "attach failed"), http.StatusUnprocessableEntity},
		{apperr.New(apperr.Resource, `file "a" not found`), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor() = %d, want %d", got, tt.want)
			}
		})
	}
}
