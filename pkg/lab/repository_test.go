package lab

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_Users(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	u, err := repo.CreateUser(ctx, LabUser{Username: "jdoe", Role: "lab_technician", DisplayName: "Jane Doe"})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.False(t, u.CreatedAt.IsZero())

	_, err = repo.CreateUser(ctx, LabUser{Username: "JDOE", Role: "admin"})
	assert.ErrorIs(t, err, ErrInvalid, "usernames are unique ignoring case")

	_, err = repo.CreateUser(ctx, LabUser{Role: "admin"})
	assert.ErrorIs(t, err, ErrInvalid)

	role := "admin"
	same := "Jane Doe"
	updated, changed, err := repo.UpdateUser(ctx, u.ID, UserUpdate{Role: &role, DisplayName: &same})
	require.NoError(t, err)
	assert.Equal(t, []string{"role"}, changed)
	assert.Equal(t, "admin", updated.Role)

	empty := ""
	_, _, err = repo.UpdateUser(ctx, u.ID, UserUpdate{Username: &empty})
	assert.ErrorIs(t, err, ErrInvalid)
	got, err := repo.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "jdoe", got.Username, "rejected update leaves the user untouched")

	require.NoError(t, repo.DeleteUser(ctx, u.ID))
	_, err = repo.GetUser(ctx, u.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.DeleteUser(ctx, u.ID), ErrNotFound)
	_, _, err = repo.UpdateUser(ctx, u.ID, UserUpdate{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_ListUsersNewestFirst(t *testing.T) {
	repo := NewRepository()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	repo.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Hour)
	}

	for _, name := range []string{"a", "b", "c"} {
		_, err := repo.CreateUser(context.Background(), LabUser{Username: name, Role: "admin"})
		require.NoError(t, err)
	}

	var names []string
	for _, u := range repo.ListUsers(context.Background()) {
		names = append(names, u.Username)
	}
	assert.Equal(t, []string{"c", "b", "a"}, names)
}

func TestRepository_Reports(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	rep, err := repo.CreateReport(ctx, LabReport{PatientName: "P. Smith", Test: "CBC"})
	require.NoError(t, err)
	assert.Equal(t, ReportPending, rep.Status)

	_, err = repo.CreateReport(ctx, LabReport{PatientName: "P. Smith", Test: "CBC", Status: "lost"})
	assert.ErrorIs(t, err, ErrInvalid)

	done := ReportCompleted
	result := "normal"
	rep, changed, err := repo.UpdateReport(ctx, rep.ID, ReportUpdate{Status: &done, Result: &result})
	require.NoError(t, err)
	assert.Equal(t, []string{"status", "result"}, changed)

	_, err = repo.CreateReport(ctx, LabReport{PatientName: "A. Jones", Test: "Lipid panel"})
	require.NoError(t, err)

	assert.Len(t, repo.ListReports(ctx, ""), 2)
	completed := repo.ListReports(ctx, ReportCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, rep.ID, completed[0].ID)

	require.NoError(t, repo.DeleteReport(ctx, rep.ID))
	_, err = repo.GetReport(ctx, rep.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
