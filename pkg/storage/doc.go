// Package storage groups the persistent backends for the audit event store.
//
// # Overview
//
// Every backend implements audit.Store: an append-only log of AuditEntry
// records with a filtered, newest-first window read and a filtered count.
// No backend exposes an update or delete path.
//
// # Backend Implementations
//
// postgres: Entries live in the audit_logs table. A trigger rejects UPDATE
// and DELETE, so the log stays append-only even against direct SQL. Reads go
// to a read replica when one is configured and healthy.
//
//	conns, err := postgres.NewConnectionManager(ctx, postgres.ConnectionConfig{
//		PrimaryURL:  "postgres://localhost/medtrail",
//		ReplicaURLs: []string{"postgres://replica1:5432/medtrail"},
//		MaxConns:    20,
//	}, logger)
//	store := postgres.NewStore(conns, logger)
//	err = store.EnsureSchema(ctx)
//
// mongo: Entries live in a single collection, indexed on createdAt and on
// action. Filters translate to case-insensitive $regex clauses.
//
//	store, err := mongo.NewStore(ctx, mongo.Config{
//		URI:        "mongodb://localhost:27017",
//		Database:   "medtrail",
//		Collection: "audit_logs",
//	}, logger)
//
// cache: Not a backend of its own. It wraps any audit.Store and caches
// totals in an in-process LRU and optionally in Redis.
//
//	cached := cache.NewStore(store, redisClient, cache.DefaultConfig(), metrics, logger)
//
// audit.MemoryStore covers development and tests and lives next to the
// audit package itself.
//
// # Filters
//
// audit.Filter is backend neutral. Search and Action carry a regular
// expression built from escaped user input plus the entry fields it applies to; each
// backend translates that into its own case-insensitive match (~* in
// PostgreSQL, $regex with the i option in MongoDB). Date bounds are
// inclusive on both ends.
//
// # Performance Considerations
//
// Every list request issues a Find and a Count. The count is the expensive
// half on large tables, which is what the cache package is for. Its keys
// carry a generation number bumped on every Append, so a new entry
// invalidates all cached totals across instances at once.
package storage
