// Package audit captures who did what to which entity, and serves that log back.
//
// The write path is Recorder.Record. It resolves the actor from an
// ActorContext, enriches the details with request context and appends the
// entry in the background. A failed append is logged, counted and dropped;
// the caller never sees it.
//
//	ac := audit.ActorContextFromRequest(r, trustHeaders)
//	recorder.Record(r.Context(), ac, "create_user", "LabUser", audit.Details{"targetId": id})
//
// The read path composes raw query parameters into a Filter (escaped,
// case-insensitive search across action, entity and actor; case-insensitive
// action prefix; inclusive day bounds) and runs it through QueryService,
// which returns a page newest first plus the total of the filtered set.
//
// Stores are append-only: the Store interface has no update or delete.
// MemoryStore lives here; PostgreSQL and MongoDB stores live in subpackages.
package audit
