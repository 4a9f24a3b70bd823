package audit

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/medtrail/pkg/httputil"
	"github.com/platinummonkey/medtrail/pkg/observability"
)

// Handlers serves the audit read route
type Handlers struct {
	service  *QueryService
	composer *Composer
}

// NewHandlers creates new audit handlers
func NewHandlers(service *QueryService, composer *Composer) *Handlers {
	return &Handlers{service: service, composer: composer}
}

// RegisterRoutes registers GET /audit/logs on router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/audit/logs", h.listLogs).Methods(http.MethodGet)
}

// listLogs handles GET /audit/logs
func (h *Handlers) listLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	window := WindowFromValues(q)

	filter, err := h.composer.Compose(QueryParamsFromValues(q))
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Failed to compose audit filter")
		httputil.WriteInternalError(w)
		return
	}

	res, err := h.service.List(r.Context(), filter, window)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Failed to list audit logs")
		httputil.WriteInternalError(w)
		return
	}

	_ = httputil.WriteSuccess(w, httputil.NewPage(res.Entries, res.Total, window.Limit, window.Skip))
}
