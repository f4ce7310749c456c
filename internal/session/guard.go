package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	apperr "github.com/JonMunkholm/sessionlake/internal/errors"
)

// maxNameAttempts bounds random suffix retries before the timestamp fallback.
const maxNameAttempts = 100

var fallbackSeq atomic.Uint64

// FileInfo describes one file in a session directory.
type FileInfo struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// ErrPathEscape is returned by Resolve for any path outside the session.
var ErrPathEscape = apperr.New(apperr.Resource, "path escapes the session directory")

// ListFiles returns the artifacts in a session directory sorted by name.
// The engine database and its write-ahead log are not artifacts.
func (s *Store) ListFiles(userID, sessionID string) ([]FileInfo, error) {
	dir, err := s.Dir(userID, sessionID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []FileInfo{}, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Resource, "read session directory", err)
	}

	files := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || isEngineFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Name:     e.Name(),
			Size:     info.Size(),
			Modified: info.ModTime().UTC(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func isEngineFile(name string) bool {
	return name == DBFileName || strings.HasPrefix(name, DBFileName+".") || strings.HasSuffix(name, ".wal")
}

// Resolve maps a caller-supplied relative path to an absolute path strictly
// inside the session directory. Absolute paths, ".." traversal and symlinks
// that lead outside are rejected, never clamped.
func (s *Store) Resolve(userID, sessionID, rel string) (string, error) {
	dir, err := s.Dir(userID, sessionID)
	if err != nil {
		return "", err
	}
	return ResolveIn(dir, rel)
}

// ResolveIn applies the Resolve checks to an already known session directory.
func ResolveIn(dir, rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", apperr.New(apperr.Resource, "path is empty")
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, `\`) {
		return "", ErrPathEscape
	}

	base, err := canonical(dir)
	if err != nil {
		return "", apperr.Wrap(apperr.Resource, "resolve session directory", err)
	}
	target, err := canonical(filepath.Join(base, rel))
	if err != nil {
		return "", apperr.Wrap(apperr.Resource, "resolve path", err)
	}

	r, err := filepath.Rel(base, target)
	if err != nil || r == "." || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", ErrPathEscape
	}
	return target, nil
}

// canonical cleans p and resolves symlinks on its deepest existing ancestor,
// so paths to files that do not exist yet are still checked.
func canonical(p string) (string, error) {
	p = filepath.Clean(p)
	var rest []string
	cur := p
	for {
		if _, err := os.Lstat(cur); err == nil {
			real, err := filepath.EvalSymlinks(cur)
			if err != nil {
				return "", err
			}
			for i := len(rest) - 1; i >= 0; i-- {
				real = filepath.Join(real, rest[i])
			}
			return real, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p, nil
		}
		rest = append(rest, filepath.Base(cur))
		cur = parent
	}
}

// UniqueName reserves a new file name in the session directory and returns
// it relative to that directory. It never fails: after maxNameAttempts
// collisions it falls back to a timestamp plus process-wide sequence.
func (s *Store) UniqueName(userID, sessionID, prefix, ext string) (string, error) {
	dir, err := s.EnsureDir(userID, sessionID)
	if err != nil {
		return "", err
	}
	return uniqueIn(dir, prefix, ext), nil
}

func uniqueIn(dir, prefix, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if prefix == "" {
		prefix = "file"
	}

	for i := 0; i < maxNameAttempts; i++ {
		name := fmt.Sprintf("%s_%s%s", prefix, randomSuffix(), ext)
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			return name
		}
	}

	return fmt.Sprintf("%s_%s_%d%s", prefix,
		time.Now().UTC().Format("20060102T150405.000000000"), fallbackSeq.Add(1), ext)
}

// randomSuffix returns 8 lowercase hex characters.
func randomSuffix() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:8]
}

// DeleteFile removes one artifact. The engine database cannot be deleted.
func (s *Store) DeleteFile(userID, sessionID, name string) error {
	path, err := s.Resolve(userID, sessionID, name)
	if err != nil {
		return err
	}
	if isEngineFile(filepath.Base(path)) {
		return apperr.Newf(apperr.Resource, "%s is not an artifact", filepath.Base(path))
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return apperr.Newf(apperr.Resource, "file %q not found", name)
	}
	if err != nil {
		return apperr.Wrap(apperr.Resource, "stat file", err)
	}
	if info.IsDir() {
		return apperr.Newf(apperr.Resource, "%q is a directory", name)
	}
	if err := os.Remove(path); err != nil {
		return apperr.Wrap(apperr.Resource, "delete file", err)
	}
	return nil
}
