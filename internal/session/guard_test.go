package session

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestResolve(t *testing.T) {
	s := newTestStore(t)
	dir, _ := s.EnsureDir("u1", "s1")
	writeFile(t, filepath.Join(dir, "result.parquet"), "x")

	outside := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(dir, "link")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	tests := []struct {
		name    string
		rel     string
		wantErr bool
	}{
		{"existing file", "result.parquet", false},
		{"new file", "new.csv", false},
		{"nested new file", "sub/new.csv", false},
		{"dot prefix inside", "./result.parquet", false},
		{"parent traversal", "../../etc/passwd", true},
		{"traversal that re-enters", "../s1/result.parquet", false},
		{"sibling session", "../s2/x", true},
		{"absolute", "/etc/passwd", true},
		{"the directory itself", ".", true},
		{"empty", "", true},
		{"symlink escape", "link/secret", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Resolve("u1", "s1", tt.rel)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Resolve(%q) = %q, error = %v, wantErr %v", tt.rel, got, err, tt.wantErr)
			}
			if err == nil {
				real, _ := filepath.EvalSymlinks(dir)
				if !strings.HasPrefix(got, real+string(filepath.Separator)) {
					t.Errorf("Resolve(%q) = %q, not inside %q", tt.rel, got, real)
				}
			}
		})
	}
}

func TestUniqueName_Distinct(t *testing.T) {
	s := newTestStore(t)

	const n = 200
	names := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name, err := s.UniqueName("u1", "s1", "query_result", "parquet")
			if err != nil {
				t.Errorf("UniqueName() error = %v", err)
				return
			}
			names <- name
		}()
	}
	wg.Wait()
	close(names)

	seen := make(map[string]bool)
	for name := range names {
		if seen[name] {
			t.Errorf("duplicate name %s", name)
		}
		seen[name] = true
		if !strings.HasPrefix(name, "query_result_") || !strings.HasSuffix(name, ".parquet") {
			t.Errorf("unexpected name shape %s", name)
		}
	}
	if len(seen) != n {
		t.Errorf("got %d names, want %d", len(seen), n)
	}
}

func TestUniqueName_FallbackWhenUnwritable(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist")
	a := uniqueIn(missing, "p", ".csv")
	b := uniqueIn(missing, "p", ".csv")
	if a == b {
		t.Errorf("fallback names collided: %s", a)
	}
	if !strings.HasPrefix(a, "p_") || !strings.HasSuffix(a, ".csv") {
		t.Errorf("fallback name shape = %s", a)
	}
}

func TestListFiles_ExcludesEngineFiles(t *testing.T) {
	s := newTestStore(t)
	dir, _ := s.EnsureDir("u1", "s1")
	writeFile(t, filepath.Join(dir, DBFileName), "db")
	writeFile(t, filepath.Join(dir, DBFileName+".wal"), "wal")
	writeFile(t, filepath.Join(dir, "b.parquet"), "bb")
	writeFile(t, filepath.Join(dir, "a.csv"), "a")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	files, err := s.ListFiles("u1", "s1")
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("ListFiles() = %d files, want 2: %+v", len(files), files)
	}
	if files[0].Name != "a.csv" || files[1].Name != "b.parquet" {
		t.Errorf("ListFiles() order = %s, %s", files[0].Name, files[1].Name)
	}
	if files[1].Size != 2 {
		t.Errorf("b.parquet size = %d, want 2", files[1].Size)
	}
}

func TestListFiles_MissingSession(t *testing.T) {
	s := newTestStore(t)
	files, err := s.ListFiles("u1", "never")
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	if len(files) != 0 {
		t.Errorf("ListFiles() = %v, want empty", files)
	}
}

func TestDeleteFile(t *testing.T) {
	s := newTestStore(t)
	dir, _ := s.EnsureDir("u1", "s1")
	writeFile(t, filepath.Join(dir, "a.csv"), "a")
	writeFile(t, filepath.Join(dir, DBFileName), "db")

	if err := s.DeleteFile("u1", "s1", "a.csv"); err != nil {
		t.Fatalf("DeleteFile() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.csv")); !os.IsNotExist(err) {
		t.Error("a.csv should be gone")
	}
	if err := s.DeleteFile("u1", "s1", "a.csv"); err == nil {
		t.Error("deleting a missing file should fail")
	}
	if err := s.DeleteFile("u1", "s1", DBFileName); err == nil {
		t.Error("deleting the engine database should fail")
	}
	if err := s.DeleteFile("u1", "s1", "../../x"); err == nil {
		t.Error("deleting outside the session should fail")
	}
}

func TestLockMap_ReleasesEntries(t *testing.T) {
	m := newLockMap()
	unlockR1 := m.lock("k", false)
	unlockR2 := m.lock("k", false)
	if m.size() != 1 {
		t.Fatalf("size = %d, want 1", m.size())
	}
	unlockR1()
	unlockR1() // idempotent
	unlockR2()
	if m.size() != 0 {
		t.Errorf("size = %d after release, want 0", m.size())
	}

	unlockW := m.lock("k", true)
	done := make(chan struct{})
	go func() {
		release := m.lock("k", false)
		release()
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("reader acquired while writer held the lock")
	default:
	}
	unlockW()
	<-done
}
