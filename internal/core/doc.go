// Package core provides the session operations exposed to every transport.
//
// This package is the heart of the session engine, coordinating the store,
// binder, unifier, query executor, analyzer and script sandbox behind one
// [Service]. It has no HTTP or terminal dependencies and is used unchanged
// by the web handlers, the operator CLI and tests.
//
// # Architecture
//
// The package is organized around several key concepts:
//
//   - Service: The entry point for init_session, bind_source, execute_sql,
//     quick_analysis, list_views, list_files, delete_file, reset and run_script.
//   - Init limiter: A semaphore bounding concurrent initializations.
//   - Value normalization: Engine values (DECIMAL, UUID, HUGEINT, INTERVAL,
//     MAP, BLOB) converted to JSON-safe values before rows leave the service.
//   - Error mapping: Technical errors translated to coded user messages.
//
// # Session Initialization
//
// Initialization binds every source on one writable handle under the session
// writer lock, then unifies them when the request maps at least one field:
//
//	res, err := svc.InitSession(ctx, "u1", "s1", core.InitRequest{
//	    Sources:      sources,
//	    Dataset:      "sales",
//	    TargetFields: []string{"amount", "region"},
//	    Mappings: map[string]unify.Mapping{
//	        "shop_a": {"amount": "price"},
//	        "shop_b": {"amount": "total_price"},
//	    },
//	})
//
// A failing source never aborts its siblings; it is listed in res.Errors.
//
// # Structured Failures
//
// Syntax and runtime failures of execute_sql and quick_analysis come back
// as results with success=false, a condensed error, the full engine text in
// detail, the error kind and a support code. Request-level problems (bad
// identifiers, path escapes, a busy server) are returned as errors.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - SQL001-SQL006: Statement errors (parse, catalog, binder, conversion)
//   - BIND001-BIND005: Source binding errors (unreachable, auth, missing object)
//   - PATH001-PATH003: Session file errors (escape, protected, missing)
//   - CFG001-CFG005: Request configuration errors
//   - RES001-RES005: Resource errors (timeouts, busy, rate limits)
package core
