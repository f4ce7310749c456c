package engine

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

// reverseSealer is a reversible stand-in for the secretbox sealer.
type reverseSealer struct{}

func (reverseSealer) Seal(s string) (string, error)   { return "sealed:" + reverse(s), nil }
func (reverseSealer) Unseal(s string) (string, error) { return reverse(strings.TrimPrefix(s, "sealed:")), nil }

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(Options{
		ExtensionDir: filepath.Join(t.TempDir(), "ext"),
		Sealer:       reverseSealer{},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

func TestOpen_ReadWriteThenReadOnly(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	path := filepath.Join(t.TempDir(), "session.duckdb")

	h, err := e.Open(ctx, path, OpenOptions{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := h.Exec(ctx, "CREATE TABLE t AS SELECT range AS n FROM range(5)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	ro, err := e.Open(ctx, path, OpenOptions{ReadOnly: true})
	if err != nil {
		t.Fatalf("Open(read-only) error = %v", err)
	}
	defer ro.Close()

	var n int64
	if err := ro.Get(ctx, &n, "SELECT COUNT(*) FROM t"); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 5 {
		t.Errorf("COUNT(*) = %d, want 5", n)
	}
	if err := ro.Exec(ctx, "CREATE TABLE u (x INTEGER)"); err == nil {
		t.Error("write on read-only handle should fail")
	}
}

func TestOpen_SearchPathResolvesBareNames(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	dir := t.TempDir()

	h, err := e.Open(ctx, filepath.Join(dir, "session.duckdb"), OpenOptions{SearchPath: dir})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer h.Close()

	copySQL := "COPY (SELECT 1 AS a UNION ALL SELECT 2) TO " + QuoteLiteral(filepath.Join(dir, "r.parquet")) + " (FORMAT parquet)"
	if err := h.Exec(ctx, copySQL); err != nil {
		t.Fatalf("copy: %v", err)
	}

	var n int64
	if err := h.Get(ctx, &n, "SELECT COUNT(*) FROM 'r.parquet'"); err != nil {
		t.Fatalf("bare name query: %v", err)
	}
	if n != 2 {
		t.Errorf("COUNT(*) = %d, want 2", n)
	}
}

func TestRegistry_RecordAndReplay(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	path := filepath.Join(t.TempDir(), "session.duckdb")

	h, err := e.Open(ctx, path, OpenOptions{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := h.Record(ctx, Attachment{
		SourceID:     "s1",
		ViewName:     "orders",
		Kind:         AttachmentRelational,
		Catalog:      "src_s1",
		AttachType:   "not a type",
		AttachTarget: "host=db password=hunter2",
	}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	// Re-recording the same view replaces the row.
	if err := h.Record(ctx, Attachment{
		SourceID:     "s1",
		ViewName:     "orders",
		Kind:         AttachmentRelational,
		Catalog:      "src_s1",
		AttachType:   "bad-type!",
		AttachTarget: "host=db password=hunter2",
	}); err != nil {
		t.Fatalf("Record() second call error = %v", err)
	}
	h.Close()

	ro, err := e.Open(ctx, path, OpenOptions{ReadOnly: true})
	if err != nil {
		t.Fatalf("Open(read-only) error = %v", err)
	}
	defer ro.Close()

	rows, err := ro.Attachments(ctx)
	if err != nil {
		t.Fatalf("Attachments() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Attachments() = %d rows, want 1", len(rows))
	}
	if strings.Contains(rows[0].AttachTarget, "hunter2") {
		t.Error("attach target should be sealed at rest")
	}
	if rows[0].BoundAt.IsZero() {
		t.Error("bound_at should be set")
	}

	errs := ro.RestoreErrors()
	if _, ok := errs["orders"]; !ok {
		t.Errorf("RestoreErrors() = %v, want entry for orders", errs)
	}
}

func TestRegistry_ReadOnlyRecordRejected(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	path := filepath.Join(t.TempDir(), "session.duckdb")

	h, err := e.Open(ctx, path, OpenOptions{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	h.Close()

	ro, err := e.Open(ctx, path, OpenOptions{ReadOnly: true})
	if err != nil {
		t.Fatalf("Open(read-only) error = %v", err)
	}
	defer ro.Close()

	if err := ro.Record(ctx, Attachment{SourceID: "s", ViewName: "v", Kind: AttachmentObject}); err == nil {
		t.Error("Record() on read-only handle should fail")
	}
	rows, err := ro.Attachments(ctx)
	if err != nil || len(rows) != 0 {
		t.Errorf("Attachments() on empty registry = %v, %v", rows, err)
	}
}

func TestEnableObjectStore_Unconfigured(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	h, err := e.Open(ctx, filepath.Join(t.TempDir(), "s.duckdb"), OpenOptions{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer h.Close()

	if e.ObjectStoreConfigured() {
		t.Fatal("engine should have no object store")
	}
	if err := h.EnableObjectStore(ctx); err == nil {
		t.Error("EnableObjectStore() should fail without an endpoint")
	}
}

func TestLoadExtension_RejectsInvalidName(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	h, err := e.Open(ctx, filepath.Join(t.TempDir(), "s.duckdb"), OpenOptions{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer h.Close()

	if err := h.LoadExtension(ctx, "httpfs; DROP TABLE x"); err == nil {
		t.Error("LoadExtension() should reject names outside the identifier alphabet")
	}
}
