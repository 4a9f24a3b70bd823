package lab

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository keeps lab users and reports in memory
type Repository struct {
	mu      sync.RWMutex
	users   map[string]LabUser
	reports map[string]LabReport
	now     func() time.Time
}

// NewRepository creates an empty repository
func NewRepository() *Repository {
	return &Repository{
		users:   make(map[string]LabUser),
		reports: make(map[string]LabReport),
		now:     time.Now,
	}
}

// CreateUser validates and stores a new user
func (r *Repository) CreateUser(ctx context.Context, u LabUser) (LabUser, error) {
	if err := validateUser(u); err != nil {
		return LabUser{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if strings.EqualFold(existing.Username, u.Username) {
			return LabUser{}, fmt.Errorf("%w: username %q already exists", ErrInvalid, u.Username)
		}
	}

	u.ID = uuid.NewString()
	u.CreatedAt = r.now().UTC()
	u.UpdatedAt = u.CreatedAt
	r.users[u.ID] = u
	return u, nil
}

// GetUser returns the user with id
func (r *Repository) GetUser(ctx context.Context, id string) (LabUser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return LabUser{}, fmt.Errorf("lab user %s: %w", id, ErrNotFound)
	}
	return u, nil
}

// UpdateUser applies upd and returns the user with the names of the fields that changed
func (r *Repository) UpdateUser(ctx context.Context, id string, upd UserUpdate) (LabUser, []string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return LabUser{}, nil, fmt.Errorf("lab user %s: %w", id, ErrNotFound)
	}

	var changed []string
	apply(&changed, "username", &u.Username, upd.Username)
	apply(&changed, "role", &u.Role, upd.Role)
	apply(&changed, "displayName", &u.DisplayName, upd.DisplayName)

	if err := validateUser(u); err != nil {
		return LabUser{}, nil, err
	}
	if len(changed) > 0 {
		u.UpdatedAt = r.now().UTC()
		r.users[id] = u
	}
	return u, changed, nil
}

// DeleteUser removes the user with id
func (r *Repository) DeleteUser(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return fmt.Errorf("lab user %s: %w", id, ErrNotFound)
	}
	delete(r.users, id)
	return nil
}

// ListUsers returns every user, newest first
func (r *Repository) ListUsers(ctx context.Context) []LabUser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]LabUser, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b LabUser) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Username, b.Username)
	})
	return out
}

// CreateReport validates and stores a new report; status defaults to pending
func (r *Repository) CreateReport(ctx context.Context, rep LabReport) (LabReport, error) {
	if rep.Status == "" {
		rep.Status = ReportPending
	}
	if err := validateReport(rep); err != nil {
		return LabReport{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rep.ID = uuid.NewString()
	rep.CreatedAt = r.now().UTC()
	rep.UpdatedAt = rep.CreatedAt
	r.reports[rep.ID] = rep
	return rep, nil
}

// GetReport returns the report with id
func (r *Repository) GetReport(ctx context.Context, id string) (LabReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rep, ok := r.reports[id]
	if !ok {
		return LabReport{}, fmt.Errorf("lab report %s: %w", id, ErrNotFound)
	}
	return rep, nil
}

// UpdateReport applies upd and returns the report with the names of the fields that changed
func (r *Repository) UpdateReport(ctx context.Context, id string, upd ReportUpdate) (LabReport, []string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rep, ok := r.reports[id]
	if !ok {
		return LabReport{}, nil, fmt.Errorf("lab report %s: %w", id, ErrNotFound)
	}

	var changed []string
	apply(&changed, "patientName", &rep.PatientName, upd.PatientName)
	apply(&changed, "test", &rep.Test, upd.Test)
	apply(&changed, "status", &rep.Status, upd.Status)
	apply(&changed, "result", &rep.Result, upd.Result)

	if err := validateReport(rep); err != nil {
		return LabReport{}, nil, err
	}
	if len(changed) > 0 {
		rep.UpdatedAt = r.now().UTC()
		r.reports[id] = rep
	}
	return rep, changed, nil
}

// DeleteReport removes the report with id
func (r *Repository) DeleteReport(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.reports[id]; !ok {
		return fmt.Errorf("lab report %s: %w", id, ErrNotFound)
	}
	delete(r.reports, id)
	return nil
}

// ListReports returns reports newest first, optionally only those with status
func (r *Repository) ListReports(ctx context.Context, status ReportStatus) []LabReport {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]LabReport, 0, len(r.reports))
	for _, rep := range r.reports {
		if status != "" && rep.Status != status {
			continue
		}
		out = append(out, rep)
	}
	slices.SortFunc(out, func(a, b LabReport) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func apply[T comparable](changed *[]string, name string, field *T, value *T) {
	if value == nil || *value == *field {
		return
	}
	*field = *value
	*changed = append(*changed, name)
}

func validateUser(u LabUser) error {
	switch {
	case strings.TrimSpace(u.Username) == "":
		return fmt.Errorf("%w: username is required", ErrInvalid)
	case strings.TrimSpace(u.Role) == "":
		return fmt.Errorf("%w: role is required", ErrInvalid)
	}
	return nil
}

func validateReport(rep LabReport) error {
	switch {
	case strings.TrimSpace(rep.PatientName) == "":
		return fmt.Errorf("%w: patientName is required", ErrInvalid)
	case strings.TrimSpace(rep.Test) == "":
		return fmt.Errorf("%w: test is required", ErrInvalid)
	case !rep.Status.Valid():
		return fmt.Errorf("%w: unknown status %q", ErrInvalid, rep.Status)
	}
	return nil
}
