package lab

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record has the requested id
	ErrNotFound = errors.New("not found")

	// ErrInvalid is returned when a record fails validation
	ErrInvalid = errors.New("invalid")
)

// Audit entity kinds
const (
	EntityUser   = "LabUser"
	EntityReport = "LabReport"
)

// Audit actions
const (
	ActionCreateUser   = "create_user"
	ActionUpdateUser   = "update_user"
	ActionDeleteUser   = "delete_user"
	ActionCreateReport = "create_report"
	ActionUpdateReport = "update_report"
	ActionDeleteReport = "delete_report"
)

// ReportStatus is the lifecycle state of a lab report
type ReportStatus string

const (
	ReportPending    ReportStatus = "pending"
	ReportInProgress ReportStatus = "in_progress"
	ReportCompleted  ReportStatus = "completed"
)

// Valid reports whether s is a known status
func (s ReportStatus) Valid() bool {
	switch s {
	case ReportPending, ReportInProgress, ReportCompleted:
		return true
	}
	return false
}

// LabUser is a staff account of the lab back office
type LabUser struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Role        string    `json:"role"`
	DisplayName string    `json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// LabReport is one test result for a patient
type LabReport struct {
	ID          string       `json:"id"`
	PatientName string       `json:"patientName"`
	Test        string       `json:"test"`
	Status      ReportStatus `json:"status"`
	Result      string       `json:"result,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// UserUpdate holds the fields of a LabUser a client may change; nil means unchanged
type UserUpdate struct {
	Username    *string `json:"username,omitempty"`
	Role        *string `json:"role,omitempty"`
	DisplayName *string `json:"displayName,omitempty"`
}

// ReportUpdate holds the fields of a LabReport a client may change; nil means unchanged
type ReportUpdate struct {
	PatientName *string       `json:"patientName,omitempty"`
	Test        *string       `json:"test,omitempty"`
	Status      *ReportStatus `json:"status,omitempty"`
	Result      *string       `json:"result,omitempty"`
}
