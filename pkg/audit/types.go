package audit

import (
	"context"
	"errors"
	"time"
)

// AnonymousActor is the actor display value when no identity can be resolved
const AnonymousActor = "anonymous"

var (
	// ErrRetrieval is the generic read-path failure surfaced to callers
	ErrRetrieval = errors.New("audit log retrieval failed")

	// ErrUnknownField is returned when a search targets a field outside the searchable set
	ErrUnknownField = errors.New("unknown searchable field")

	// ErrInvalidEntry rejects an entry missing its action or entity
	ErrInvalidEntry = errors.New("invalid audit entry")
)

// Details is the open, nested key-value context of an entry
type Details map[string]interface{}

// AuditEntry is one immutable record of a business action
type AuditEntry struct {
	ID           string    `json:"id"`
	Action       string    `json:"action"`
	Entity       string    `json:"entity"`
	ActorDisplay string    `json:"actorDisplay"`
	Details      Details   `json:"details"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Validate reports whether the entry carries the fields every entry must have
func (e AuditEntry) Validate() error {
	switch {
	case e.Action == "":
		return errors.Join(ErrInvalidEntry, errors.New("action is required"))
	case e.Entity == "":
		return errors.Join(ErrInvalidEntry, errors.New("entity is required"))
	case e.ActorDisplay == "":
		return errors.Join(ErrInvalidEntry, errors.New("actor display is required"))
	}
	return nil
}

// Store is the append-only event log. Implementations assign ID and CreatedAt
// on Append and return entries newest first from Find.
type Store interface {
	Append(ctx context.Context, entry AuditEntry) (AuditEntry, error)
	Find(ctx context.Context, filter Filter, window Window) ([]AuditEntry, error)
	Count(ctx context.Context, filter Filter) (int64, error)
}
