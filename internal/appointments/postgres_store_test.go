package appointments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/skinovation-clinic/internal/calendar"
	"github.com/wolfman30/skinovation-clinic/internal/catalog"
	"github.com/wolfman30/skinovation-clinic/internal/notify"
)

var appointmentCols = []string{"id", "patient_id", "attendant_id", "kind", "item_id", "appointment_date", "appointment_time", "status", "transaction_id", "created_at", "updated_at"}

func TestPostgresStore_BookingTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	ctx := context.Background()
	attendantID := uuid.New()
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	appt := &Appointment{
		PatientID:     uuid.New(),
		AttendantID:   attendantID,
		Item:          catalog.Ref{Kind: catalog.KindService, ID: uuid.New()},
		Date:          date,
		Time:          calendar.MustClock("14:00"),
		Status:        StatusConfirmed,
		TransactionID: "AB12CD34",
	}
	created := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs(appt.Slot().Key()).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("SELECT count").
		WithArgs("2026-03-02", "14:00", attendantID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), appt.PatientID, attendantID, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			"2026-03-02", "14:00", "confirmed", "AB12CD34").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(created, created))
	mock.ExpectQuery("INSERT INTO notifications").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(created))
	mock.ExpectCommit()

	err = store.WithinTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.LockSlot(ctx, appt.Slot()))
		n, err := tx.CountActive(ctx, appt.Slot())
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		require.NoError(t, tx.Insert(ctx, appt))
		note := notify.ToUser(appt.PatientID, notify.TypeAppointment, "Appointment Confirmed", "see you", &appt.ID)
		return tx.Notify(ctx, &note)
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, appt.ID)
	assert.Equal(t, created, appt.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RollsBackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	ctx := context.Background()
	productID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE products").
		WithArgs(productID).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err = store.WithinTx(ctx, func(tx Tx) error {
		return tx.DecrementStock(ctx, productID)
	})
	require.ErrorIs(t, err, catalog.ErrOutOfStock)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DuplicateTransactionID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("ON CONFLICT \\(transaction_id\\) DO NOTHING").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err = store.WithinTx(ctx, func(tx Tx) error {
		return tx.Insert(ctx, &Appointment{
			PatientID:     uuid.New(),
			AttendantID:   uuid.New(),
			Item:          catalog.Ref{Kind: catalog.KindPackage, ID: uuid.New()},
			Date:          time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
			Time:          calendar.MustClock("09:00"),
			Status:        StatusPending,
			TransactionID: "DUPLICAT",
		})
	})
	require.ErrorIs(t, err, ErrDuplicateTransactionID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	id := uuid.New()
	productID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery("FROM appointments WHERE id = \\$1").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(appointmentCols).
			AddRow(id, uuid.New(), uuid.New(), "product", productID, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), "15:30", "confirmed", "QWERTY12", now, now))

	appt, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, catalog.Ref{Kind: catalog.KindProduct, ID: productID}, appt.Item)
	assert.Equal(t, "15:30", appt.Time.String())
	assert.Equal(t, StatusConfirmed, appt.Status)
	assert.Equal(t, "2026-03-02", appt.DateString())

	mock.ExpectQuery("FROM appointments WHERE id = \\$1").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)
	_, err = store.Get(context.Background(), id)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListBuildsFilter(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	attendantID := uuid.New()
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("WHERE attendant_id = \\$1 AND status = \\$2 AND appointment_date = \\$3::date ORDER BY").
		WithArgs(attendantID, "pending", "2026-03-02").
		WillReturnRows(pgxmock.NewRows(appointmentCols))

	list, err := store.List(context.Background(), ListFilter{AttendantID: &attendantID, Status: StatusPending, Date: &date})
	require.NoError(t, err)
	assert.Empty(t, list)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FeedbackUniqueness(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO feedback").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err = store.WithinTx(ctx, func(tx Tx) error {
		return tx.InsertFeedback(ctx, &Feedback{AppointmentID: uuid.New(), PatientID: uuid.New(), AttendantID: uuid.New(), Rating: 5})
	})
	require.ErrorIs(t, err, ErrDuplicateFeedback)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListFeedback(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	attendantID := uuid.New()
	four := 4

	mock.ExpectQuery("FROM feedback").
		WithArgs(&attendantID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "appointment_id", "patient_id", "attendant_id", "rating", "attendant_rating", "comment", "created_at"}).
			AddRow(uuid.New(), uuid.New(), uuid.New(), attendantID, 5, &four, "Great", time.Now()).
			AddRow(uuid.New(), uuid.New(), uuid.New(), attendantID, 3, nil, "", time.Now()))

	list, err := store.ListFeedback(context.Background(), &attendantID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.NotNil(t, list[0].AttendantRating)
	assert.Equal(t, 4, *list[0].AttendantRating)
	assert.Nil(t, list[1].AttendantRating)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_BeginFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	err = NewPostgresStore(mock).WithinTx(context.Background(), func(tx Tx) error {
		t.Fatal("fn must not run")
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin tx")
}
