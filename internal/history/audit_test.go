package history

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_Log(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	log := NewLog(db)
	actor := uuid.New()

	mock.ExpectExec("INSERT INTO history_logs").
		WithArgs(sqlmock.AnyArg(), "appointment", "TX123456", "confirmed", &actor, sqlmock.AnyArg(), nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = log.Log(context.Background(), Entry{
		Type:        TypeAppointment,
		Name:        "TX123456",
		Action:      "confirmed",
		PerformedBy: &actor,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLog_LogError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO history_logs").WillReturnError(assert.AnError)

	err = NewLog(db).Log(context.Background(), Entry{Type: TypeSchedule, Name: "Ana Cruz", Action: "updated"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history: failed to log entry")
}

func TestLog_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	actor := uuid.New()
	related := uuid.New()
	created := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "type", "name", "action", "performed_by", "details", "related_id", "created_at"}).
		AddRow(uuid.NewString(), "appointment", "AB12CD34", "cancelled", actor.String(), "by owner", related.String(), created).
		AddRow(uuid.NewString(), "appointment", "EF56GH78", "confirmed", nil, nil, nil, created.Add(-time.Hour))

	mock.ExpectQuery("SELECT id, type, name, action").
		WithArgs("appointment").
		WillReturnRows(rows)

	entries, err := NewLog(db).List(context.Background(), Filter{Type: TypeAppointment, Limit: 20})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "cancelled", entries[0].Action)
	require.NotNil(t, entries[0].PerformedBy)
	assert.Equal(t, actor, *entries[0].PerformedBy)
	require.NotNil(t, entries[0].RelatedID)
	assert.Equal(t, related, *entries[0].RelatedID)
	assert.Equal(t, "by owner", entries[0].Details)

	assert.Nil(t, entries[1].PerformedBy)
	assert.Empty(t, entries[1].Details)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryLog(t *testing.T) {
	var log MemoryLog
	require.NoError(t, log.Log(context.Background(), Entry{Type: TypeAppointment, Action: "completed"}))

	entries := log.Entries()
	require.Len(t, entries, 1)
	assert.NotEqual(t, uuid.Nil, entries[0].ID)
	assert.False(t, entries[0].CreatedAt.IsZero())
}
