package audit

import (
	"net/http"
	"strings"

	"github.com/platinummonkey/medtrail/pkg/auth"
	"github.com/platinummonkey/medtrail/pkg/httputil"
)

// Trusted identity headers set by an upstream gateway
const (
	HeaderUserID   = "X-User-Id"
	HeaderUserRole = "X-User-Role"
	HeaderUserName = "X-User-Name"
)

// Actor is the identity attributed to an action. Any field may be empty.
type Actor struct {
	ID   string `json:"id,omitempty"`
	Role string `json:"role,omitempty"`
	Name string `json:"name,omitempty"`
}

// Display is the name, else the id, else AnonymousActor
func (a Actor) Display() string {
	if a.Name != "" {
		return a.Name
	}
	if a.ID != "" {
		return a.ID
	}
	return AnonymousActor
}

// IsZero reports whether nothing about the actor was resolved
func (a Actor) IsZero() bool {
	return a == Actor{}
}

func (a Actor) details() Details {
	d := Details{}
	if a.ID != "" {
		d["id"] = a.ID
	}
	if a.Role != "" {
		d["role"] = a.Role
	}
	if a.Name != "" {
		d["name"] = a.Name
	}
	return d
}

// ActorContext carries only what attribution needs from a request. It is
// built once at the HTTP boundary; the zero value is a request with no identity.
type ActorContext struct {
	PrincipalUserID string
	PrincipalID     string
	PrincipalRole   string
	PrincipalName   string

	HeaderUserID string
	HeaderRole   string
	HeaderName   string

	Method        string
	Path          string
	ClientAddress string
}

// ActorContextFromRequest captures the principal attached by the auth
// middleware and, when trustHeaders is set, the gateway identity headers.
func ActorContextFromRequest(r *http.Request, trustHeaders bool) ActorContext {
	ac := ActorContext{
		Method:        r.Method,
		Path:          r.URL.Path,
		ClientAddress: httputil.ClientIP(r),
	}

	if p := auth.PrincipalFromContext(r.Context()); p != nil {
		ac.PrincipalUserID = p.UserID
		ac.PrincipalID = p.ID
		ac.PrincipalRole = string(p.Role)
		ac.PrincipalName = p.DisplayName()
	}

	if trustHeaders {
		ac.HeaderUserID = r.Header.Get(HeaderUserID)
		ac.HeaderRole = r.Header.Get(HeaderUserRole)
		ac.HeaderName = r.Header.Get(HeaderUserName)
	}
	return ac
}

// ResolveActor picks each field from the principal first and the trusted
// headers second. It never fails.
func ResolveActor(ac ActorContext) Actor {
	return Actor{
		ID:   firstNonEmpty(ac.PrincipalUserID, ac.PrincipalID, ac.HeaderUserID),
		Role: firstNonEmpty(ac.PrincipalRole, ac.HeaderRole),
		Name: firstNonEmpty(ac.PrincipalName, ac.HeaderName),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
