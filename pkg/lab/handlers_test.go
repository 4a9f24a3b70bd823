package lab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/platinummonkey/medtrail/pkg/audit"
	"github.com/platinummonkey/medtrail/pkg/auth"
	"github.com/platinummonkey/medtrail/pkg/contextkeys"
	"github.com/platinummonkey/medtrail/pkg/observability"
)

type recordedCall struct {
	Actor   audit.ActorContext
	Action  string
	Entity  string
	Details audit.Details
}

// captureRecorder keeps every Record call
type captureRecorder struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (c *captureRecorder) Record(_ context.Context, ac audit.ActorContext, action, entity string, details audit.Details) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, recordedCall{Actor: ac, Action: action, Entity: entity, Details: details})
}

func (c *captureRecorder) last() recordedCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[len(c.calls)-1]
}

func (c *captureRecorder) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

type HandlersTestSuite struct {
	suite.Suite
	recorder *captureRecorder
	router   *mux.Router
}

func (s *HandlersTestSuite) SetupTest() {
	s.recorder = &captureRecorder{}
	s.router = mux.NewRouter()
	NewHandlers(NewRepository(), s.recorder, true).RegisterRoutes(s.router)
}

func (s *HandlersTestSuite) do(method, target, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func (s *HandlersTestSuite) createUser(username string) LabUser {
	rr := s.do(http.MethodPost, "/lab/users", `{"username":"`+username+`","role":"lab_technician"}`)
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	var u LabUser
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &u))
	return u
}

func (s *HandlersTestSuite) TestCreateUserRecords() {
	rr := s.do(http.MethodPost, "/lab/users", `{"username":"jdoe","role":"lab_technician","displayName":"Jane"}`,
		"X-User-Name", "Front Desk")
	s.Equal(http.StatusCreated, rr.Code)

	var u LabUser
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &u))

	s.Require().Equal(1, s.recorder.count())
	call := s.recorder.last()
	s.Equal(ActionCreateUser, call.Action)
	s.Equal(EntityUser, call.Entity)
	s.Equal(u.ID, call.Details["targetId"])
	s.Equal("Front Desk", call.Actor.HeaderName)
	s.Equal(http.MethodPost, call.Actor.Method)
	s.Equal("/lab/users", call.Actor.Path)
}

func (s *HandlersTestSuite) TestCreateUserInvalid() {
	rr := s.do(http.MethodPost, "/lab/users", `{"username":""}`)
	s.Equal(http.StatusBadRequest, rr.Code)

	rr = s.do(http.MethodPost, "/lab/users", `{"username":"x","role":"r","unknown":1}`)
	s.Equal(http.StatusBadRequest, rr.Code)

	s.Zero(s.recorder.count(), "failed mutations are not recorded")
}

func (s *HandlersTestSuite) TestUpdateUserRecordsChangedFields() {
	u := s.createUser("jdoe")

	rr := s.do(http.MethodPatch, "/lab/users/"+u.ID, `{"role":"admin"}`)
	s.Equal(http.StatusOK, rr.Code)
	call := s.recorder.last()
	s.Equal(ActionUpdateUser, call.Action)
	s.Equal([]string{"role"}, call.Details["changed"])

	before := s.recorder.count()
	rr = s.do(http.MethodPut, "/lab/users/"+u.ID, `{"role":"admin"}`)
	s.Equal(http.StatusOK, rr.Code)
	s.Equal(before, s.recorder.count(), "no-op updates are not recorded")
}

func (s *HandlersTestSuite) TestDeleteUser() {
	u := s.createUser("jdoe")

	rr := s.do(http.MethodDelete, "/lab/users/"+u.ID, "")
	s.Equal(http.StatusNoContent, rr.Code)
	s.Equal(ActionDeleteUser, s.recorder.last().Action)

	rr = s.do(http.MethodDelete, "/lab/users/"+u.ID, "")
	s.Equal(http.StatusNotFound, rr.Code)
}

func (s *HandlersTestSuite) TestListUsersUnboundedByDefault() {
	for _, name := range []string{"a", "b", "c"} {
		s.createUser(name)
	}

	rr := s.do(http.MethodGet, "/lab/users", "")
	s.Equal(http.StatusOK, rr.Code)
	var page struct {
		Data  []LabUser `json:"data"`
		Total int64     `json:"total"`
		Limit int       `json:"limit"`
	}
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &page))
	s.Len(page.Data, 3)
	s.Equal(int64(3), page.Total)
	s.Zero(page.Limit)

	rr = s.do(http.MethodGet, "/lab/users?page=2&pageSize=2", "")
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &page))
	s.Len(page.Data, 1)
	s.Equal(2, page.Limit)
}

func (s *HandlersTestSuite) TestReportLifecycle() {
	rr := s.do(http.MethodPost, "/lab/reports", `{"patientName":"P. Smith","test":"CBC"}`)
	s.Require().Equal(http.StatusCreated, rr.Code)
	var rep LabReport
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &rep))
	s.Equal(ReportPending, rep.Status)
	s.Equal(ActionCreateReport, s.recorder.last().Action)
	s.Equal(EntityReport, s.recorder.last().Entity)

	rr = s.do(http.MethodPut, "/lab/reports/"+rep.ID, `{"status":"completed","result":"normal"}`)
	s.Equal(http.StatusOK, rr.Code)
	s.Equal(ActionUpdateReport, s.recorder.last().Action)

	rr = s.do(http.MethodGet, "/lab/reports?status=completed", "")
	s.Equal(http.StatusOK, rr.Code)
	s.Contains(rr.Body.String(), rep.ID)

	rr = s.do(http.MethodGet, "/lab/reports?status=bogus", "")
	s.Equal(http.StatusBadRequest, rr.Code)

	rr = s.do(http.MethodDelete, "/lab/reports/"+rep.ID, "")
	s.Equal(http.StatusNoContent, rr.Code)
	s.Equal(ActionDeleteReport, s.recorder.last().Action)

	rr = s.do(http.MethodGet, "/lab/reports/"+rep.ID, "")
	s.Equal(http.StatusNotFound, rr.Code)
}

func TestHandlersTestSuite(t *testing.T) {
	suite.Run(t, new(HandlersTestSuite))
}

// downStore is an audit store that is never reachable
type downStore struct{}

func (downStore) Append(context.Context, audit.AuditEntry) (audit.AuditEntry, error) {
	return audit.AuditEntry{}, errors.New("store unavailable")
}

func (downStore) Find(context.Context, audit.Filter, audit.Window) ([]audit.AuditEntry, error) {
	return nil, errors.New("store unavailable")
}

func (downStore) Count(context.Context, audit.Filter) (int64, error) {
	return 0, errors.New("store unavailable")
}

func quietLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, &bytes.Buffer{})
}

func TestHandlers_AuditStoreDownDoesNotAffectResponse(t *testing.T) {
	recorder := audit.NewRecorder(downStore{}, quietLogger())
	router := mux.NewRouter()
	NewHandlers(NewRepository(), recorder, false).RegisterRoutes(router)

	req := httptest.NewRequest(http.MethodPost, "/lab/users", strings.NewReader(`{"username":"jdoe","role":"admin"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.NoError(t, recorder.Close(context.Background()))
	assert.Equal(t, http.StatusCreated, rr.Code)

	var u LabUser
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &u))
	assert.Equal(t, "jdoe", u.Username)
}

func TestHandlers_EndToEndAttribution(t *testing.T) {
	store := audit.NewMemoryStore()
	recorder := audit.NewRecorder(store, quietLogger())
	repo := NewRepository()
	router := mux.NewRouter()
	NewHandlers(repo, recorder, false).RegisterRoutes(router)

	principal := &auth.Principal{ID: "staff-7", Role: auth.RoleLabTech, Name: "Lee"}
	req := httptest.NewRequest(http.MethodPost, "/lab/reports", strings.NewReader(`{"patientName":"P","test":"CBC"}`))
	req.Header.Set("X-User-Name", "ignored when headers are untrusted")
	req = req.WithContext(contextkeys.WithPrincipal(req.Context(), principal))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	require.NoError(t, recorder.Close(context.Background()))

	entries, err := store.Find(context.Background(), audit.Filter{}, audit.NewWindow(10, 0))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ActionCreateReport, entries[0].Action)
	assert.Equal(t, EntityReport, entries[0].Entity)
	assert.Equal(t, "Lee", entries[0].ActorDisplay)
	assert.Equal(t, audit.Details{"id": "staff-7", "role": "lab_technician", "name": "Lee"}, entries[0].Details["actor"])
	assert.Equal(t, "/lab/reports", entries[0].Details["path"])
}
