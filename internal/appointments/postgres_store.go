package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/skinovation-clinic/internal/calendar"
	"github.com/wolfman30/skinovation-clinic/internal/catalog"
	"github.com/wolfman30/skinovation-clinic/internal/notify"
)

// PgxPool is satisfied by *pgxpool.Pool and pgxmock.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists appointments in Postgres.
type PostgresStore struct {
	pool PgxPool
}

// NewPostgresStore wraps a pool.
func NewPostgresStore(pool PgxPool) *PostgresStore {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

// WithinTx runs fn inside a read-committed transaction.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("appointments: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("appointments: commit: %w", err)
	}
	return nil
}

const appointmentColumns = `
	id, patient_id, attendant_id,
	CASE
		WHEN service_id IS NOT NULL THEN 'service'
		WHEN product_id IS NOT NULL THEN 'product'
		WHEN package_id IS NOT NULL THEN 'package'
		ELSE ''
	END,
	COALESCE(service_id, product_id, package_id, '00000000-0000-0000-0000-000000000000'::uuid),
	appointment_date, to_char(appointment_time, 'HH24:MI'), status, transaction_id, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a      Appointment
		kind   string
		clock  string
		status string
	)
	if err := row.Scan(&a.ID, &a.PatientID, &a.AttendantID, &kind, &a.Item.ID, &a.Date, &clock, &status, &a.TransactionID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	t, err := calendar.ParseClock(clock)
	if err != nil {
		return nil, fmt.Errorf("appointments: stored time: %w", err)
	}
	a.Time = t
	a.Item.Kind = catalog.Kind(kind)
	a.Status = Status(status)
	return &a, nil
}

func getAppointment(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	a, err := scanAppointment(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: select appointment: %w", err)
	}
	return a, nil
}

const countActiveQuery = `
	SELECT count(*)
	FROM appointments
	WHERE appointment_date = $1::date
		AND appointment_time = $2::time
		AND attendant_id = $3
		AND status IN ('pending', 'confirmed')`

func countActive(ctx context.Context, q querier, slot Slot) (int, error) {
	var n int
	err := q.QueryRow(ctx, countActiveQuery, slot.Date.Format(calendar.DateLayout), slot.Time.String(), slot.AttendantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("appointments: count slot: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return getAppointment(ctx, s.pool, id, false)
}

func (s *PostgresStore) CountActive(ctx context.Context, slot Slot) (int, error) {
	return countActive(ctx, s.pool, slot)
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]Appointment, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.PatientID != nil {
		add("patient_id = $%d", *filter.PatientID)
	}
	if filter.AttendantID != nil {
		add("attendant_id = $%d", *filter.AttendantID)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.Date != nil {
		add("appointment_date = $%d::date", filter.Date.Format(calendar.DateLayout))
	}
	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY appointment_date DESC, appointment_time DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appointments: list: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

const cancellationColumns = `id, appointment_id, patient_id, appointment_type, reason, status, created_at, resolved_at, resolved_by`

func scanCancellation(row pgx.Row) (*CancellationRequest, error) {
	var (
		r       CancellationRequest
		apptTyp string
		status  string
	)
	if err := row.Scan(&r.ID, &r.AppointmentID, &r.PatientID, &apptTyp, &r.Reason, &status, &r.CreatedAt, &r.ResolvedAt, &r.ResolvedBy); err != nil {
		return nil, err
	}
	r.AppointmentType = AppointmentType(apptTyp)
	r.Status = RequestStatus(status)
	return &r, nil
}

func (s *PostgresStore) GetCancellationRequest(ctx context.Context, id uuid.UUID) (*CancellationRequest, error) {
	r, err := scanCancellation(s.pool.QueryRow(ctx, `SELECT `+cancellationColumns+` FROM cancellation_requests WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: select cancellation request: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListCancellationRequests(ctx context.Context, status RequestStatus) ([]CancellationRequest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+cancellationColumns+`
		FROM cancellation_requests
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("appointments: list cancellation requests: %w", err)
	}
	defer rows.Close()
	var out []CancellationRequest
	for rows.Next() {
		r, err := scanCancellation(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan cancellation request: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

const rescheduleColumns = `id, appointment_id, patient_id, new_date, to_char(new_time, 'HH24:MI'), reason, status, created_at, resolved_at, resolved_by`

func scanReschedule(row pgx.Row) (*RescheduleRequest, error) {
	var (
		r      RescheduleRequest
		clock  string
		status string
	)
	if err := row.Scan(&r.ID, &r.AppointmentID, &r.PatientID, &r.NewDate, &clock, &r.Reason, &status, &r.CreatedAt, &r.ResolvedAt, &r.ResolvedBy); err != nil {
		return nil, err
	}
	t, err := calendar.ParseClock(clock)
	if err != nil {
		return nil, fmt.Errorf("appointments: stored reschedule time: %w", err)
	}
	r.NewTime = t
	r.Status = RequestStatus(status)
	return &r, nil
}

func (s *PostgresStore) GetRescheduleRequest(ctx context.Context, id uuid.UUID) (*RescheduleRequest, error) {
	r, err := scanReschedule(s.pool.QueryRow(ctx, `SELECT `+rescheduleColumns+` FROM reschedule_requests WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: select reschedule request: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListRescheduleRequests(ctx context.Context, status RequestStatus) ([]RescheduleRequest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+rescheduleColumns+`
		FROM reschedule_requests
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("appointments: list reschedule requests: %w", err)
	}
	defer rows.Close()
	var out []RescheduleRequest
	for rows.Next() {
		r, err := scanReschedule(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan reschedule request: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListFeedback(ctx context.Context, attendantID *uuid.UUID) ([]Feedback, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, appointment_id, patient_id, attendant_id, rating, attendant_rating, comment, created_at
		FROM feedback
		WHERE ($1::uuid IS NULL OR attendant_id = $1)
		ORDER BY created_at DESC
	`, attendantID)
	if err != nil {
		return nil, fmt.Errorf("appointments: list feedback: %w", err)
	}
	defer rows.Close()
	var out []Feedback
	for rows.Next() {
		var f Feedback
		if err := rows.Scan(&f.ID, &f.AppointmentID, &f.PatientID, &f.AttendantID, &f.Rating, &f.AttendantRating, &f.Comment, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("appointments: scan feedback: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// pgTx implements Tx over a pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockSlot(ctx context.Context, slot Slot) error {
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, slot.Key()); err != nil {
		return fmt.Errorf("appointments: lock slot: %w", err)
	}
	return nil
}

func (t *pgTx) CountActive(ctx context.Context, slot Slot) (int, error) {
	return countActive(ctx, t.tx, slot)
}

func itemColumns(ref catalog.Ref) (service, product, pkg *uuid.UUID) {
	id := ref.ID
	switch ref.Kind {
	case catalog.KindService:
		service = &id
	case catalog.KindProduct:
		product = &id
	case catalog.KindPackage:
		pkg = &id
	}
	return service, product, pkg
}

func (t *pgTx) Insert(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	service, product, pkg := itemColumns(a.Item)
	err := t.tx.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, attendant_id, service_id, product_id, package_id,
			appointment_date, appointment_time, status, transaction_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7::date, $8::time, $9, $10)
		ON CONFLICT (transaction_id) DO NOTHING
		RETURNING created_at, updated_at
	`, a.ID, a.PatientID, a.AttendantID, service, product, pkg,
		a.DateString(), a.Time.String(), string(a.Status), a.TransactionID,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicateTransactionID
	}
	if err != nil {
		return fmt.Errorf("appointments: insert: %w", err)
	}
	return nil
}

func (t *pgTx) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return getAppointment(ctx, t.tx, id, true)
}

func (t *pgTx) Update(ctx context.Context, a *Appointment) error {
	err := t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2, appointment_date = $3::date, appointment_time = $4::time, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, a.ID, string(a.Status), a.DateString(), a.Time.String()).Scan(&a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrRecordNotFound
	}
	if err != nil {
		return fmt.Errorf("appointments: update: %w", err)
	}
	return nil
}

func (t *pgTx) DecrementStock(ctx context.Context, productID uuid.UUID) error {
	_, err := catalog.DecrementStock(ctx, t.tx, productID)
	return err
}

func (t *pgTx) RestoreStock(ctx context.Context, productID uuid.UUID) error {
	return catalog.RestoreStock(ctx, t.tx, productID)
}

func (t *pgTx) InsertCancellationRequest(ctx context.Context, r *CancellationRequest) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO cancellation_requests (id, appointment_id, patient_id, appointment_type, reason, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, r.ID, r.AppointmentID, r.PatientID, string(r.AppointmentType), r.Reason, string(r.Status)).Scan(&r.CreatedAt)
	if err != nil {
		return fmt.Errorf("appointments: insert cancellation request: %w", err)
	}
	return nil
}

func (t *pgTx) GetCancellationRequestForUpdate(ctx context.Context, id uuid.UUID) (*CancellationRequest, error) {
	r, err := scanCancellation(t.tx.QueryRow(ctx, `SELECT `+cancellationColumns+` FROM cancellation_requests WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: select cancellation request: %w", err)
	}
	return r, nil
}

func (t *pgTx) UpdateCancellationRequest(ctx context.Context, r *CancellationRequest) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE cancellation_requests SET status = $2, resolved_at = $3, resolved_by = $4 WHERE id = $1
	`, r.ID, string(r.Status), r.ResolvedAt, r.ResolvedBy)
	if err != nil {
		return fmt.Errorf("appointments: update cancellation request: %w", err)
	}
	return nil
}

func (t *pgTx) HasPendingCancellation(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM cancellation_requests WHERE appointment_id = $1 AND status = 'pending')
	`, appointmentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("appointments: pending cancellation lookup: %w", err)
	}
	return exists, nil
}

func (t *pgTx) InsertRescheduleRequest(ctx context.Context, r *RescheduleRequest) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO reschedule_requests (id, appointment_id, patient_id, new_date, new_time, reason, status)
		VALUES ($1, $2, $3, $4::date, $5::time, $6, $7)
		RETURNING created_at
	`, r.ID, r.AppointmentID, r.PatientID, r.NewDate.Format(calendar.DateLayout), r.NewTime.String(), r.Reason, string(r.Status)).Scan(&r.CreatedAt)
	if err != nil {
		return fmt.Errorf("appointments: insert reschedule request: %w", err)
	}
	return nil
}

func (t *pgTx) GetRescheduleRequestForUpdate(ctx context.Context, id uuid.UUID) (*RescheduleRequest, error) {
	r, err := scanReschedule(t.tx.QueryRow(ctx, `SELECT `+rescheduleColumns+` FROM reschedule_requests WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: select reschedule request: %w", err)
	}
	return r, nil
}

func (t *pgTx) UpdateRescheduleRequest(ctx context.Context, r *RescheduleRequest) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE reschedule_requests SET status = $2, resolved_at = $3, resolved_by = $4 WHERE id = $1
	`, r.ID, string(r.Status), r.ResolvedAt, r.ResolvedBy)
	if err != nil {
		return fmt.Errorf("appointments: update reschedule request: %w", err)
	}
	return nil
}

func (t *pgTx) InsertFeedback(ctx context.Context, f *Feedback) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO feedback (id, appointment_id, patient_id, attendant_id, rating, attendant_rating, comment)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (appointment_id, patient_id) DO NOTHING
		RETURNING created_at
	`, f.ID, f.AppointmentID, f.PatientID, f.AttendantID, f.Rating, f.AttendantRating, f.Comment).Scan(&f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicateFeedback
	}
	if err != nil {
		return fmt.Errorf("appointments: insert feedback: %w", err)
	}
	return nil
}

func (t *pgTx) Notify(ctx context.Context, n *notify.Notification) error {
	return notify.InsertWith(ctx, t.tx, n)
}
