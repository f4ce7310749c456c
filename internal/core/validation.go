package core

// validation.go checks requests before any session state is touched.
//
// Errors are collected rather than returned on the first problem so callers
// can fix a descriptor list in one round trip. The aggregate is a
// Configuration error.

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/sessionlake/internal/binder"
	"github.com/JonMunkholm/sessionlake/internal/engine"
	apperr "github.com/JonMunkholm/sessionlake/internal/errors"
	"github.com/JonMunkholm/sessionlake/internal/session"
	"github.com/JonMunkholm/sessionlake/internal/unify"
)

// ValidationError represents a single invalid request field.
type ValidationError struct {
	Field   string // Request field path, e.g. "mappings.orders"
	Value   string // The offending value
	Message string // Human-readable error message
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// ValidationErrors is every problem found in one request.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// orNil wraps collected problems as a Configuration error.
func (v ValidationErrors) orNil() error {
	if len(v) == 0 {
		return nil
	}
	return apperr.Wrap(apperr.Configuration, "invalid request", v)
}

// ValidateSessionRef checks the (user, session) pair.
func ValidateSessionRef(userID, sessionID string) error {
	if err := session.ValidateID("user", userID); err != nil {
		return err
	}
	return session.ValidateID("session", sessionID)
}

// ValidateInitRequest checks the dataset name, target fields and that every
// mapping key names a source in the request. Individual source descriptors
// are validated by the binder so a bad one fails alone.
func ValidateInitRequest(req InitRequest) error {
	var errs ValidationErrors

	if req.Dataset != "" {
		if err := engine.ValidateName(req.Dataset); err != nil {
			errs = append(errs, ValidationError{Field: "dataset", Value: req.Dataset, Message: err.Error()})
		}
	}

	seen := make(map[string]bool, len(req.TargetFields))
	for i, f := range req.TargetFields {
		field := fmt.Sprintf("target_fields[%d]", i)
		if err := engine.ValidateName(f); err != nil {
			errs = append(errs, ValidationError{Field: field, Value: f, Message: err.Error()})
			continue
		}
		if seen[f] {
			errs = append(errs, ValidationError{Field: field, Value: f, Message: "duplicate target field"})
		}
		seen[f] = true
	}

	for key := range req.Mappings {
		if _, ok := findSource(req.Sources, key); !ok {
			errs = append(errs, ValidationError{Field: "mappings." + key, Value: key, Message: "no source with this id or name"})
		}
	}

	return errs.orNil()
}

// findSource matches key against source ids first, then names.
func findSource(sources []binder.Source, key string) (binder.Source, bool) {
	for _, s := range sources {
		if s.ID == key {
			return s, true
		}
	}
	for _, s := range sources {
		if s.Name == key {
			return s, true
		}
	}
	return binder.Source{}, false
}

// mappingsByView re-keys request mappings by view name.
func mappingsByView(sources []binder.Source, in map[string]unify.Mapping) map[string]unify.Mapping {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]unify.Mapping, len(in))
	for key, m := range in {
		if src, ok := findSource(sources, key); ok {
			out[src.Name] = m
		}
	}
	return out
}

// ValidateScriptRequest checks a script run request.
func ValidateScriptRequest(req ScriptRequest) error {
	var errs ValidationErrors
	if strings.TrimSpace(req.Script) == "" {
		errs = append(errs, ValidationError{Field: "script", Message: "script is empty"})
	}
	if req.TimeoutSeconds < 0 {
		errs = append(errs, ValidationError{Field: "timeout_seconds", Value: fmt.Sprint(req.TimeoutSeconds), Message: "must not be negative"})
	}
	return errs.orNil()
}
