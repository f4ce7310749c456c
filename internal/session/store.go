// Package session maps (user, session) pairs to isolated working directories,
// each holding one persistent engine database file plus cached artifacts.
package session

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/JonMunkholm/sessionlake/internal/engine"
	apperr "github.com/JonMunkholm/sessionlake/internal/errors"
)

// DBFileName is the engine database inside every session directory.
const DBFileName = "session.duckdb"

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// Scope selects what Reset wipes.
type Scope string

const (
	ScopeSession Scope = "session"
	ScopeUser    Scope = "user"
	ScopeAll     Scope = "all"
)

// ParseScope converts a caller-supplied scope name.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeSession:
		return ScopeSession, nil
	case ScopeUser:
		return ScopeUser, nil
	case ScopeAll:
		return ScopeAll, nil
	}
	return "", apperr.Newf(apperr.Configuration, "unknown reset scope %q", s)
}

// OpenOptions selects the handle mode for Store.Open.
type OpenOptions struct {
	ReadOnly    bool
	ObjectStore bool
}

// Store owns the session root directory.
type Store struct {
	root   string
	engine *engine.Engine
	locks  *lockMap
}

// NewStore creates the root directory if needed.
func NewStore(root string, eng *engine.Engine) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve session root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create session root: %w", err)
	}
	return &Store{root: abs, engine: eng, locks: newLockMap()}, nil
}

// Root returns the absolute session root.
func (s *Store) Root() string { return s.root }

// Engine returns the engine used to open session handles.
func (s *Store) Engine() *engine.Engine { return s.engine }

// ValidateID checks a user or session id. Ids become path components, so
// only a conservative alphabet is accepted.
func ValidateID(kind, id string) error {
	if !idPattern.MatchString(id) {
		return apperr.Newf(apperr.Configuration, "invalid %s id %q: use 1-128 letters, digits, '-' or '_'", kind, id)
	}
	return nil
}

// Dir returns the deterministic directory for a session without creating it.
func (s *Store) Dir(userID, sessionID string) (string, error) {
	if err := ValidateID("user", userID); err != nil {
		return "", err
	}
	if err := ValidateID("session", sessionID); err != nil {
		return "", err
	}
	return filepath.Join(s.root, userID, sessionID), nil
}

// EnsureDir creates the session directory if it does not exist.
func (s *Store) EnsureDir(userID, sessionID string) (string, error) {
	dir, err := s.Dir(userID, sessionID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apperr.Wrap(apperr.Resource, "create session directory", err)
	}
	return dir, nil
}

// Exists reports whether the session has been initialized.
func (s *Store) Exists(userID, sessionID string) bool {
	dir, err := s.Dir(userID, sessionID)
	if err != nil {
		return false
	}
	_, err = os.Stat(filepath.Join(dir, DBFileName))
	return err == nil
}

// Open opens a fresh engine handle on the session database with the session
// directory as search path. Read-only opens of a session that has no
// database yet create an empty one first, since the engine cannot open a
// missing file read-only.
func (s *Store) Open(ctx context.Context, userID, sessionID string, opts OpenOptions) (*engine.Handle, error) {
	dir, err := s.EnsureDir(userID, sessionID)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, DBFileName)

	if opts.ReadOnly {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			h, err := s.engine.Open(ctx, path, engine.OpenOptions{SearchPath: dir})
			if err != nil {
				return nil, apperr.Wrap(apperr.Runtime, "create session database", err)
			}
			h.Close()
		}
	}

	h, err := s.engine.Open(ctx, path, engine.OpenOptions{
		ReadOnly:    opts.ReadOnly,
		ObjectStore: opts.ObjectStore,
		SearchPath:  dir,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Runtime, "open session database", err)
	}
	return h, nil
}

// Lock takes the session's writer lock. The returned func releases it.
func (s *Store) Lock(userID, sessionID string) func() {
	return s.locks.lock(userID+"/"+sessionID, true)
}

// RLock takes the session's reader lock. The returned func releases it.
func (s *Store) RLock(userID, sessionID string) func() {
	return s.locks.lock(userID+"/"+sessionID, false)
}

// Reset wipes session directories and returns the number of files removed.
//
// ScopeSession deletes and recreates one session directory under its writer
// lock. ScopeUser and ScopeAll apply the same wipe to every session directory
// below the user or root prefix. A missing path removes nothing and is not an
// error.
func (s *Store) Reset(scope Scope, userID, sessionID string) (int, error) {
	switch scope {
	case ScopeSession:
		dir, err := s.Dir(userID, sessionID)
		if err != nil {
			return 0, err
		}
		unlock := s.Lock(userID, sessionID)
		defer unlock()
		return wipe(dir, true)

	case ScopeUser:
		if err := ValidateID("user", userID); err != nil {
			return 0, err
		}
		return s.wipeSessions(userID, filepath.Join(s.root, userID))

	case ScopeAll:
		entries, err := os.ReadDir(s.root)
		if os.IsNotExist(err) {
			return 0, nil
		}
		if err != nil {
			return 0, apperr.Wrap(apperr.Resource, "read session root", err)
		}
		total := 0
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			n, err := s.wipeSessions(e.Name(), filepath.Join(s.root, e.Name()))
			total += n
			if err != nil {
				return total, err
			}
		}
		return total, nil
	}
	return 0, apperr.Newf(apperr.Configuration, "unknown reset scope %q", scope)
}

func (s *Store) wipeSessions(userID, userDir string) (int, error) {
	entries, err := os.ReadDir(userDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, apperr.Wrap(apperr.Resource, "read user directory", err)
	}
	total := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		unlock := s.Lock(userID, e.Name())
		n, err := wipe(filepath.Join(userDir, e.Name()), true)
		unlock()
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// wipe removes dir and everything below it, optionally recreating it empty.
func wipe(dir string, recreate bool) (int, error) {
	if _, err := os.Lstat(dir); os.IsNotExist(err) {
		return 0, nil
	}

	count := 0
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, apperr.Wrap(apperr.Resource, "scan session directory", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return 0, apperr.Wrap(apperr.Resource, "remove session directory", err)
	}
	if recreate {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return count, apperr.Wrap(apperr.Resource, "recreate session directory", err)
		}
	}
	return count, nil
}
