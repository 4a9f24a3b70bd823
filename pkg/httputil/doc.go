// Package httputil provides HTTP utilities for standardized request/response handling.
//
// Responses:
//
//	httputil.WriteSuccess(w, entity)
//	httputil.WriteBadRequest(w, "username is required")
//	httputil.WriteInternalError(w) // always {"error":"internal error"}
//
// Every list route answers with Page[T]:
//
//	httputil.WriteSuccess(w, httputil.NewPage(entries, total, limit, skip))
//
// Middleware (request id, request logging, panic recovery, body limits) is
// composed with Chain; the first middleware passed is the outermost.
package httputil
