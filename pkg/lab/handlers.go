package lab

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/medtrail/pkg/audit"
	"github.com/platinummonkey/medtrail/pkg/httputil"
	"github.com/platinummonkey/medtrail/pkg/observability"
)

// Recorder is the audit write path the handlers report mutations to
type Recorder interface {
	Record(ctx context.Context, ac audit.ActorContext, action, entity string, details audit.Details)
}

// Handlers serves the lab user and report routes
type Handlers struct {
	repo         *Repository
	recorder     Recorder
	trustHeaders bool
}

// NewHandlers creates lab handlers. trustHeaders lets identity headers stand
// in for a verified principal when attributing audit entries.
func NewHandlers(repo *Repository, recorder Recorder, trustHeaders bool) *Handlers {
	return &Handlers{repo: repo, recorder: recorder, trustHeaders: trustHeaders}
}

// RegisterRoutes registers the lab routes on router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/lab/users", h.CreateUser).Methods(http.MethodPost)
	router.HandleFunc("/lab/users", h.ListUsers).Methods(http.MethodGet)
	router.HandleFunc("/lab/users/{id}", h.GetUser).Methods(http.MethodGet)
	router.HandleFunc("/lab/users/{id}", h.UpdateUser).Methods(http.MethodPut, http.MethodPatch)
	router.HandleFunc("/lab/users/{id}", h.DeleteUser).Methods(http.MethodDelete)

	router.HandleFunc("/lab/reports", h.CreateReport).Methods(http.MethodPost)
	router.HandleFunc("/lab/reports", h.ListReports).Methods(http.MethodGet)
	router.HandleFunc("/lab/reports/{id}", h.GetReport).Methods(http.MethodGet)
	router.HandleFunc("/lab/reports/{id}", h.UpdateReport).Methods(http.MethodPut, http.MethodPatch)
	router.HandleFunc("/lab/reports/{id}", h.DeleteReport).Methods(http.MethodDelete)
}

// CreateUser handles POST /lab/users
func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username    string `json:"username"`
		Role        string `json:"role"`
		DisplayName string `json:"displayName"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	u, err := h.repo.CreateUser(r.Context(), LabUser{Username: req.Username, Role: req.Role, DisplayName: req.DisplayName})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.record(r, ActionCreateUser, EntityUser, audit.Details{"targetId": u.ID, "username": u.Username, "role": u.Role})
	_ = httputil.WriteCreated(w, u)
}

// ListUsers handles GET /lab/users
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, skip := window(r)
	_ = httputil.WriteSuccess(w, httputil.Paginate(h.repo.ListUsers(r.Context()), limit, skip))
}

// GetUser handles GET /lab/users/{id}
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	u, err := h.repo.GetUser(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, u)
}

// UpdateUser handles PUT/PATCH /lab/users/{id}
func (h *Handlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var upd UserUpdate
	if !httputil.ParseJSONOrError(w, r, &upd) {
		return
	}

	u, changed, err := h.repo.UpdateUser(r.Context(), id, upd)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if len(changed) > 0 {
		h.record(r, ActionUpdateUser, EntityUser, audit.Details{"targetId": u.ID, "changed": changed})
	}
	_ = httputil.WriteSuccess(w, u)
}

// DeleteUser handles DELETE /lab/users/{id}
func (h *Handlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.repo.DeleteUser(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.record(r, ActionDeleteUser, EntityUser, audit.Details{"targetId": id})
	httputil.WriteNoContent(w)
}

// CreateReport handles POST /lab/reports
func (h *Handlers) CreateReport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PatientName string       `json:"patientName"`
		Test        string       `json:"test"`
		Status      ReportStatus `json:"status"`
		Result      string       `json:"result"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	rep, err := h.repo.CreateReport(r.Context(), LabReport{
		PatientName: req.PatientName,
		Test:        req.Test,
		Status:      req.Status,
		Result:      req.Result,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.record(r, ActionCreateReport, EntityReport, audit.Details{"targetId": rep.ID, "test": rep.Test, "status": string(rep.Status)})
	_ = httputil.WriteCreated(w, rep)
}

// ListReports handles GET /lab/reports, optionally filtered by ?status=
func (h *Handlers) ListReports(w http.ResponseWriter, r *http.Request) {
	status := ReportStatus(httputil.QueryString(r, "status"))
	if status != "" && !status.Valid() {
		httputil.WriteBadRequest(w, "unknown status")
		return
	}
	limit, skip := window(r)
	_ = httputil.WriteSuccess(w, httputil.Paginate(h.repo.ListReports(r.Context(), status), limit, skip))
}

// GetReport handles GET /lab/reports/{id}
func (h *Handlers) GetReport(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	rep, err := h.repo.GetReport(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, rep)
}

// UpdateReport handles PUT/PATCH /lab/reports/{id}
func (h *Handlers) UpdateReport(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var upd ReportUpdate
	if !httputil.ParseJSONOrError(w, r, &upd) {
		return
	}

	rep, changed, err := h.repo.UpdateReport(r.Context(), id, upd)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if len(changed) > 0 {
		h.record(r, ActionUpdateReport, EntityReport, audit.Details{"targetId": rep.ID, "changed": changed})
	}
	_ = httputil.WriteSuccess(w, rep)
}

// DeleteReport handles DELETE /lab/reports/{id}
func (h *Handlers) DeleteReport(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.repo.DeleteReport(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.record(r, ActionDeleteReport, EntityReport, audit.Details{"targetId": id})
	httputil.WriteNoContent(w)
}

// record runs after the mutation has succeeded and cannot affect the response
func (h *Handlers) record(r *http.Request, action, entity string, details audit.Details) {
	if h.recorder == nil {
		return
	}
	h.recorder.Record(r.Context(), audit.ActorContextFromRequest(r, h.trustHeaders), action, entity, details)
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httputil.WriteNotFound(w, err.Error())
	case errors.Is(err, ErrInvalid):
		httputil.WriteBadRequest(w, err.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("Lab request failed")
		httputil.WriteInternalError(w)
	}
}

// window reads limit/skip or pageSize/page; without either the page is unbounded
func window(r *http.Request) (limit, skip int) {
	limit, ok := httputil.QueryInt(r, "limit", 0)
	if !ok {
		limit, _ = httputil.QueryInt(r, "pageSize", 0)
	}
	if limit < 0 {
		limit = 0
	}
	if s, ok := httputil.QueryInt(r, "skip", 0); ok {
		return limit, max(s, 0)
	}
	if page, ok := httputil.QueryInt(r, "page", 1); ok && limit > 0 {
		return limit, (max(page, 1) - 1) * limit
	}
	return limit, 0
}
