package appointments

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/skinovation-clinic/internal/accounts"
	"github.com/wolfman30/skinovation-clinic/internal/attendants"
	"github.com/wolfman30/skinovation-clinic/internal/catalog"
	"github.com/wolfman30/skinovation-clinic/internal/identity"
	"github.com/wolfman30/skinovation-clinic/pkg/logging"
)

// newPostgresService wires the service to a single mock pool. pgxmock
// matches expectations in order, so any pool query issued while a
// transaction is open fails the expectation that follows Begin.
func newPostgresService(t *testing.T) (*Service, pgxmock.PgxPoolIface, *attendants.InMemoryRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	roster := attendants.NewInMemoryRepository()
	svc := NewService(NewPostgresStore(mock), roster, accounts.NewMemoryDirectory(), catalog.NewPostgresCatalog(mock),
		logging.NewWithWriter(io.Discard, "error"),
		WithLocation(time.UTC),
		WithClock(func() time.Time { return testNow }),
	)
	return svc, mock, roster
}

func TestComplete_ReadsFactsBeforeTransaction(t *testing.T) {
	svc, mock, _ := newPostgresService(t)
	id, patientID, attendantID, itemID := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()
	row := func() *pgxmock.Rows {
		return pgxmock.NewRows(appointmentCols).
			AddRow(id, patientID, attendantID, "service", itemID, date, "14:00", "confirmed", "AB12CD34", now, now)
	}

	mock.ExpectQuery("FROM appointments WHERE id = \\$1$").WithArgs(id).WillReturnRows(row())
	mock.ExpectQuery("SELECT service_name").WithArgs(itemID).
		WillReturnRows(pgxmock.NewRows([]string{"service_name", "stock"}).AddRow("Hydrafacial", 0))
	mock.ExpectBegin()
	mock.ExpectQuery("FROM appointments WHERE id = \\$1 FOR UPDATE").WithArgs(id).WillReturnRows(row())
	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id, "completed", "2026-03-02", "14:00").
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(now))
	mock.ExpectQuery("INSERT INTO notifications").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectCommit()

	owner := identity.Principal{UserID: uuid.New(), Role: identity.RoleOwner}
	appt, err := svc.Complete(context.Background(), owner, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, appt.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveReschedule_ReadsFactsBeforeTransaction(t *testing.T) {
	svc, mock, roster := newPostgresService(t)
	attendant := roster.Add(attendants.Attendant{FirstName: "Ana", LastName: "Cruz"})
	id, patientID, itemID, requestID := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	newDate := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()
	apptRow := func() *pgxmock.Rows {
		return pgxmock.NewRows(appointmentCols).
			AddRow(id, patientID, attendant.ID, "service", itemID, date, "14:00", "confirmed", "AB12CD34", now, now)
	}
	requestRow := func() *pgxmock.Rows {
		return pgxmock.NewRows([]string{"id", "appointment_id", "patient_id", "new_date", "new_time", "reason", "status", "created_at", "resolved_at", "resolved_by"}).
			AddRow(requestID, id, patientID, newDate, "15:30", "work trip", "pending", now, (*time.Time)(nil), (*uuid.UUID)(nil))
	}

	mock.ExpectQuery("FROM reschedule_requests WHERE id = \\$1$").WithArgs(requestID).WillReturnRows(requestRow())
	mock.ExpectQuery("FROM appointments WHERE id = \\$1$").WithArgs(id).WillReturnRows(apptRow())
	mock.ExpectQuery("SELECT service_name").WithArgs(itemID).
		WillReturnRows(pgxmock.NewRows([]string{"service_name", "stock"}).AddRow("Hydrafacial", 0))
	mock.ExpectBegin()
	mock.ExpectQuery("FROM reschedule_requests WHERE id = \\$1 FOR UPDATE").WithArgs(requestID).WillReturnRows(requestRow())
	mock.ExpectQuery("FROM appointments WHERE id = \\$1 FOR UPDATE").WithArgs(id).WillReturnRows(apptRow())
	mock.ExpectExec("pg_advisory_xact_lock").WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("SELECT count").
		WithArgs("2026-03-09", "15:30", attendant.ID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id, "confirmed", "2026-03-09", "15:30").
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(now))
	mock.ExpectExec("UPDATE reschedule_requests").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("INSERT INTO notifications").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectCommit()

	owner := identity.Principal{UserID: uuid.New(), Role: identity.RoleOwner}
	req, err := svc.ApproveReschedule(context.Background(), owner, requestID)
	require.NoError(t, err)
	assert.Equal(t, RequestApproved, req.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}
