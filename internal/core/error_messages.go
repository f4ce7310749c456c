// # Error Codes Reference
//
// This file maps technical engine and system errors to user-friendly messages
// with codes for support reference. Callers quote the code; support staff
// look it up here and check the server logs for the full engine text.
//
// Error codes are grouped by category:
//
// # SQL Errors (SQL001-SQL099)
//
//	SQL001 - Parse failure: the statement could not be parsed
//	         Patterns: "parser error", "syntax error"
//	SQL002 - Unknown object: a table, view or column does not exist
//	         Patterns: "catalog error", "does not exist"
//	SQL003 - Unresolved expression: a column or function could not be bound
//	         Patterns: "binder error"
//	SQL004 - Conversion: a value could not be converted
//	         Patterns: "conversion error", "could not convert"
//	SQL005 - Out of range: a numeric value overflowed
//	         Patterns: "out of range", "overflow"
//	SQL006 - Read-only: the statement tried to write through a read-only handle
//	         Patterns: "read-only", "read only"
//
// # Binding Errors (BIND001-BIND099)
//
//	BIND001 - Unreachable: the external database refused or timed out
//	          Patterns: "unreachable", "connection refused", "no route to host"
//	BIND002 - Authentication: the external database rejected the credentials
//	          Patterns: "password authentication failed", "access denied"
//	BIND003 - Missing object: the file does not exist in object storage
//	          Patterns: "no files found", "http 404", "no such file"
//	BIND004 - Storage not configured
//	          Patterns: "object storage is not configured"
//	BIND005 - Duplicate view name in one initialization
//	          Patterns: "already used by source"
//
// # Path Errors (PATH001-PATH099)
//
//	PATH001 - Escape: the path leaves the session directory
//	          Patterns: "escapes the session"
//	PATH002 - Protected file: the engine database cannot be touched
//	          Patterns: "is not an artifact"
//	PATH003 - Missing file
//	          Patterns: "not found"
//
// # Configuration Errors (CFG001-CFG099)
//
//	CFG001 - Invalid identifier: user or session id has forbidden characters
//	         Patterns: "invalid user id", "invalid session id"
//	CFG002 - Unsupported source: engine or format not supported
//	         Patterns: "unsupported engine", "unsupported file format", "no reader for file type"
//	CFG003 - Credentials unavailable: sealed password without a key
//	         Patterns: "credential key is not configured"
//	CFG004 - Unsupported custom query
//	         Patterns: "custom queries are not supported"
//	CFG005 - Unknown reset scope
//	         Patterns: "unknown reset scope"
//
// # Resource Errors (RES001-RES099)
//
//	RES001 - Script timeout: the script exceeded its wall-clock limit
//	         Patterns: "exceeded timeout"
//	RES002 - System busy: too many concurrent initializations
//	         Patterns: "too many concurrent session initializations"
//	RES003 - Request timeout
//	         Patterns: "context deadline exceeded"
//	RES004 - Request cancelled
//	         Patterns: "context canceled"
//	RES005 - Rate limited
//	         Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches.
//
// # Pattern Matching
//
// Patterns are matched case-insensitively using strings.Contains. The first
// matching pattern wins, so more specific patterns come before general ones.
package core

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// To add a pattern, pick the category range, insert it specific-before-general,
// and update the reference at the top of this file.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Resource Errors (RES001-RES005)
	// Checked first: a timeout inside a query is still a timeout.
	// =========================================================================
	{
		pattern: "exceeded timeout",
		msg: UserMessage{
			Message: "The script exceeded its time limit and was stopped",
			Action:  "Reduce the work done by the script or request a longer timeout",
			Code:    "RES001",
		},
	},
	{
		pattern: "too many concurrent session initializations",
		msg: UserMessage{
			Message: "The system is busy initializing other sessions",
			Action:  "Please wait a moment and try again",
			Code:    "RES002",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Narrow the query or raise the request timeout",
			Code:    "RES003",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "RES004",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RES005",
		},
	},

	// =========================================================================
	// Path Errors (PATH001-PATH002)
	// =========================================================================
	{
		pattern: "escapes the session",
		msg: UserMessage{
			Message: "The path points outside the session directory",
			Action:  "Use a file name from list_files",
			Code:    "PATH001",
		},
	},
	{
		pattern: "is not an artifact",
		msg: UserMessage{
			Message: "The session database cannot be read or deleted as a file",
			Action:  "Use reset to wipe a session",
			Code:    "PATH002",
		},
	},

	// =========================================================================
	// Configuration Errors (CFG001-CFG005)
	// =========================================================================
	{
		pattern: "invalid user id",
		msg: UserMessage{
			Message: "The user id contains unsupported characters",
			Action:  "Use letters, digits, '-' or '_' (max 128)",
			Code:    "CFG001",
		},
	},
	{
		pattern: "invalid session id",
		msg: UserMessage{
			Message: "The session id contains unsupported characters",
			Action:  "Use letters, digits, '-' or '_' (max 128)",
			Code:    "CFG001",
		},
	},
	{
		pattern: "unsupported engine",
		msg: UserMessage{
			Message: "The source database engine is not supported",
			Action:  "Use postgres, mysql or sqlite",
			Code:    "CFG002",
		},
	},
	{
		pattern: "unsupported file format",
		msg: UserMessage{
			Message: "The source file format is not supported",
			Action:  "Use csv, parquet, json (newline-delimited) or xlsx",
			Code:    "CFG002",
		},
	},
	{
		pattern: "no reader for file type",
		msg: UserMessage{
			Message: "The file type cannot be analyzed",
			Action:  "Analyze a .parquet, .csv, .json, .jsonl or .xlsx file",
			Code:    "CFG002",
		},
	},
	{
		pattern: "credential key is not configured",
		msg: UserMessage{
			Message: "Stored credentials cannot be decrypted on this server",
			Action:  "Set CREDENTIAL_KEY to the key the passwords were sealed with",
			Code:    "CFG003",
		},
	},
	{
		pattern: "custom queries are not supported",
		msg: UserMessage{
			Message: "This source engine does not support custom queries",
			Action:  "Bind the table directly and filter with SQL afterwards",
			Code:    "CFG004",
		},
	},

	{
		pattern: "unknown reset scope",
		msg: UserMessage{
			Message: "The reset scope is not recognized",
			Action:  "Use session, user or all",
			Code:    "CFG005",
		},
	},

	// =========================================================================
	// Binding Errors (BIND001-BIND005)
	// =========================================================================
	{
		pattern: "unreachable",
		msg: UserMessage{
			Message: "The external database could not be reached",
			Action:  "Check host, port and network access from the engine host",
			Code:    "BIND001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "The external database refused the connection",
			Action:  "Check host, port and that the database is running",
			Code:    "BIND001",
		},
	},
	{
		pattern: "no route to host",
		msg: UserMessage{
			Message: "The external database could not be reached",
			Action:  "Check host, port and network access from the engine host",
			Code:    "BIND001",
		},
	},
	{
		pattern: "password authentication failed",
		msg: UserMessage{
			Message: "The external database rejected the credentials",
			Action:  "Update the stored user and password for this source",
			Code:    "BIND002",
		},
	},
	{
		pattern: "access denied",
		msg: UserMessage{
			Message: "The external database rejected the credentials",
			Action:  "Update the stored user and password for this source",
			Code:    "BIND002",
		},
	},
	{
		pattern: "no files found",
		msg: UserMessage{
			Message: "The file does not exist",
			Action:  "Check the bucket and key of the source",
			Code:    "BIND003",
		},
	},
	{
		pattern: "http 404",
		msg: UserMessage{
			Message: "The file does not exist in object storage",
			Action:  "Check the bucket and key of the source",
			Code:    "BIND003",
		},
	},
	{
		pattern: "no such file",
		msg: UserMessage{
			Message: "The file does not exist",
			Action:  "Check the path of the source",
			Code:    "BIND003",
		},
	},
	{
		pattern: "object storage is not configured",
		msg: UserMessage{
			Message: "Object storage sources are disabled on this server",
			Action:  "Set OBJECT_STORE_ENDPOINT and credentials",
			Code:    "BIND004",
		},
	},
	{
		pattern: "already used by source",
		msg: UserMessage{
			Message: "Two sources use the same view name",
			Action:  "Give every source in a session a unique name",
			Code:    "BIND005",
		},
	},

	// =========================================================================
	// SQL Errors (SQL001-SQL006)
	// Engine error text starts with its category, e.g. "Catalog Error:".
	// =========================================================================
	{
		pattern: "parser error",
		msg: UserMessage{
			Message: "The SQL statement could not be parsed",
			Action:  "Check the statement near the reported position",
			Code:    "SQL001",
		},
	},
	{
		pattern: "syntax error",
		msg: UserMessage{
			Message: "The SQL statement could not be parsed",
			Action:  "Check the statement near the reported position",
			Code:    "SQL001",
		},
	},
	{
		pattern: "catalog error",
		msg: UserMessage{
			Message: "A referenced table, view or column does not exist",
			Action:  "Use list_views to see the available views and columns",
			Code:    "SQL002",
		},
	},
	{
		pattern: "does not exist",
		msg: UserMessage{
			Message: "A referenced table, view or column does not exist",
			Action:  "Use list_views to see the available views and columns",
			Code:    "SQL002",
		},
	},
	{
		pattern: "binder error",
		msg: UserMessage{
			Message: "A column or function in the statement could not be resolved",
			Action:  "Check column names and quote names containing spaces",
			Code:    "SQL003",
		},
	},
	{
		pattern: "conversion error",
		msg: UserMessage{
			Message: "A value could not be converted to the required type",
			Action:  "Use TRY_CAST or filter out malformed values",
			Code:    "SQL004",
		},
	},
	{
		pattern: "could not convert",
		msg: UserMessage{
			Message: "A value could not be converted to the required type",
			Action:  "Use TRY_CAST or filter out malformed values",
			Code:    "SQL004",
		},
	},
	{
		pattern: "out of range",
		msg: UserMessage{
			Message: "A numeric value is out of range",
			Action:  "Cast to a wider type such as DOUBLE or HUGEINT",
			Code:    "SQL005",
		},
	},
	{
		pattern: "overflow",
		msg: UserMessage{
			Message: "A numeric value is out of range",
			Action:  "Cast to a wider type such as DOUBLE or HUGEINT",
			Code:    "SQL005",
		},
	},
	{
		pattern: "read-only",
		msg: UserMessage{
			Message: "The statement tried to modify read-only data",
			Action:  "Write to session tables instead of attached sources",
			Code:    "SQL006",
		},
	},
	{
		pattern: "read only",
		msg: UserMessage{
			Message: "The statement tried to modify read-only data",
			Action:  "Write to session tables instead of attached sources",
			Code:    "SQL006",
		},
	},

	// PATH003 is last among specific patterns: "not found" is generic.
	{
		pattern: "not found",
		msg: UserMessage{
			Message: "The requested file or view was not found",
			Action:  "Use list_files or list_views to see what exists",
			Code:    "PATH003",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It searches through known error patterns (case-insensitive) and returns
// the first match. If no pattern matches, ERR000 is returned.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a specific pattern rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// DefaultCondenseLines caps Condense output when no limit is given.
const DefaultCondenseLines = 6

var condenseKeywords = []string{"error", "exception", "suggest", "did you mean", "candidate", "hint", "line "}

// Condense extracts the useful lines from engine error text for consumers
// with little room, such as a chat transcript or a terminal row. Stack
// frames, caret markers and blank lines are dropped; lines mentioning an
// error, exception or suggestion are kept up to maxLines. When no line
// matches, the first non-noise lines are kept instead.
func Condense(text string, maxLines int) string {
	if maxLines <= 0 {
		maxLines = DefaultCondenseLines
	}

	var kept, fallback []string
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimRight(raw, " \t\r")
		if isNoise(line) {
			continue
		}
		if len(fallback) < maxLines {
			fallback = append(fallback, strings.TrimSpace(line))
		}
		lower := strings.ToLower(line)
		for _, kw := range condenseKeywords {
			if strings.Contains(lower, kw) {
				kept = append(kept, strings.TrimSpace(line))
				break
			}
		}
		if len(kept) == maxLines {
			break
		}
	}
	if len(kept) == 0 {
		kept = fallback
	}
	return strings.Join(kept, "\n")
}

func isNoise(line string) bool {
	t := strings.TrimSpace(line)
	switch {
	case t == "":
		return true
	case strings.Trim(t, "^~ ") == "":
		return true
	case strings.HasPrefix(t, "at "), strings.HasPrefix(t, "File \""), strings.HasPrefix(t, "Traceback"):
		return true
	case strings.HasPrefix(t, "goroutine "), strings.HasPrefix(t, "Stack Trace"), strings.HasPrefix(t, "-----"):
		return true
	case strings.HasPrefix(line, "\t") && strings.Contains(t, ".go:"):
		return true
	}
	return false
}
