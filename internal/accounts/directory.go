// Package accounts exposes user role and active-status lookups and the
// attendant schedule profiles keyed by user.
package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/wolfman30/skinovation-clinic/internal/calendar"
	"github.com/wolfman30/skinovation-clinic/internal/identity"
)

// Directory is the user/account store consumed by the booking workflow.
type Directory interface {
	Get(ctx context.Context, id uuid.UUID) (*User, error)
	ActiveOwners(ctx context.Context) ([]User, error)
	FindAttendantUser(ctx context.Context, firstName, lastName string) (*User, error)
	ScheduleProfile(ctx context.Context, userID uuid.UUID) (*ScheduleProfile, error)
	UpsertScheduleProfile(ctx context.Context, profile ScheduleProfile) error
	// SetActive enables or disables sign-in for an account.
	SetActive(ctx context.Context, id uuid.UUID, active bool) (*User, error)
}

// SQLDirectory reads accounts through database/sql.
type SQLDirectory struct {
	db *sql.DB
}

// NewSQLDirectory wraps an open database handle.
func NewSQLDirectory(db *sql.DB) *SQLDirectory {
	if db == nil {
		panic("accounts: sql db required")
	}
	return &SQLDirectory{db: db}
}

const userColumns = `id, first_name, last_name, email, phone, role, is_active`

func scanUser(scan func(dest ...any) error) (*User, error) {
	var (
		u     User
		email sql.NullString
		phone sql.NullString
		role  string
	)
	if err := scan(&u.ID, &u.FirstName, &u.LastName, &email, &phone, &role, &u.Active); err != nil {
		return nil, err
	}
	u.Email = email.String
	u.Phone = phone.String
	u.Role = identity.Role(role)
	return &u, nil
}

// Get fetches one user by id.
func (d *SQLDirectory) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("accounts: get user: %w", err)
	}
	return u, nil
}

func (d *SQLDirectory) SetActive(ctx context.Context, id uuid.UUID, active bool) (*User, error) {
	row := d.db.QueryRowContext(ctx, `UPDATE users SET is_active = $2 WHERE id = $1 RETURNING `+userColumns, id, active)
	u, err := scanUser(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("accounts: set active: %w", err)
	}
	return u, nil
}

// ActiveOwners lists every active owner account.
func (d *SQLDirectory) ActiveOwners(ctx context.Context) ([]User, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE role = $1 AND is_active
		ORDER BY created_at
	`, string(identity.RoleOwner))
	if err != nil {
		return nil, fmt.Errorf("accounts: list owners: %w", err)
	}
	defer rows.Close()

	var owners []User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("accounts: scan owner: %w", err)
		}
		owners = append(owners, *u)
	}
	return owners, rows.Err()
}

// FindAttendantUser matches an active attendant account by exact name.
// Zero matches yield ErrUserNotFound, several yield ErrAmbiguousUser.
func (d *SQLDirectory) FindAttendantUser(ctx context.Context, firstName, lastName string) (*User, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE role = $1 AND is_active AND first_name = $2 AND last_name = $3
		LIMIT 2
	`, string(identity.RoleAttendant), firstName, lastName)
	if err != nil {
		return nil, fmt.Errorf("accounts: find attendant user: %w", err)
	}
	defer rows.Close()

	var matches []*User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("accounts: scan attendant user: %w", err)
		}
		matches = append(matches, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("accounts: find attendant user: %w", err)
	}
	switch len(matches) {
	case 0:
		return nil, ErrUserNotFound
	case 1:
		return matches[0], nil
	default:
		return nil, ErrAmbiguousUser
	}
}

// ScheduleProfile loads the attendant's work schedule.
func (d *SQLDirectory) ScheduleProfile(ctx context.Context, userID uuid.UUID) (*ScheduleProfile, error) {
	var (
		p          ScheduleProfile
		days       pq.StringArray
		start, end string
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT user_id, work_days, to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'), updated_at
		FROM attendant_profiles
		WHERE user_id = $1
	`, userID).Scan(&p.UserID, &days, &start, &end, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("accounts: get schedule profile: %w", err)
	}
	if p.WorkDays, err = ParseDayNames(days); err != nil {
		return nil, err
	}
	if p.Start, err = calendar.ParseClock(start); err != nil {
		return nil, fmt.Errorf("accounts: profile start: %w", err)
	}
	if p.End, err = calendar.ParseClock(end); err != nil {
		return nil, fmt.Errorf("accounts: profile end: %w", err)
	}
	return &p, nil
}

// UpsertScheduleProfile writes the profile, replacing any previous one.
func (d *SQLDirectory) UpsertScheduleProfile(ctx context.Context, profile ScheduleProfile) error {
	if err := profile.Validate(); err != nil {
		return err
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO attendant_profiles (user_id, work_days, start_time, end_time, updated_at)
		VALUES ($1, $2, $3::time, $4::time, now())
		ON CONFLICT (user_id)
		DO UPDATE SET work_days = EXCLUDED.work_days,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			updated_at = now()
	`, profile.UserID, pq.Array(profile.DayNames()), profile.Start.String(), profile.End.String())
	if err != nil {
		return fmt.Errorf("accounts: upsert schedule profile: %w", err)
	}
	return nil
}

// MemoryDirectory is an in-process Directory for tests and local runs.
type MemoryDirectory struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]User
	order    []uuid.UUID
	profiles map[uuid.UUID]ScheduleProfile
}

// NewMemoryDirectory creates an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		users:    make(map[uuid.UUID]User),
		profiles: make(map[uuid.UUID]ScheduleProfile),
	}
}

// Put adds or replaces a user, assigning an id when missing.
func (m *MemoryDirectory) Put(u User) User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if _, ok := m.users[u.ID]; !ok {
		m.order = append(m.order, u.ID)
	}
	m.users[u.ID] = u
	return u
}

func (m *MemoryDirectory) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (m *MemoryDirectory) SetActive(ctx context.Context, id uuid.UUID, active bool) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	u.Active = active
	m.users[id] = u
	return &u, nil
}

func (m *MemoryDirectory) ActiveOwners(ctx context.Context) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var owners []User
	for _, id := range m.order {
		if u := m.users[id]; u.Role == identity.RoleOwner && u.Active {
			owners = append(owners, u)
		}
	}
	return owners, nil
}

func (m *MemoryDirectory) FindAttendantUser(ctx context.Context, firstName, lastName string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var match *User
	for _, id := range m.order {
		u := m.users[id]
		if u.Role != identity.RoleAttendant || !u.Active || u.FirstName != firstName || u.LastName != lastName {
			continue
		}
		if match != nil {
			return nil, ErrAmbiguousUser
		}
		match = &u
	}
	if match == nil {
		return nil, ErrUserNotFound
	}
	return match, nil
}

func (m *MemoryDirectory) ScheduleProfile(ctx context.Context, userID uuid.UUID) (*ScheduleProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return &p, nil
}

func (m *MemoryDirectory) UpsertScheduleProfile(ctx context.Context, profile ScheduleProfile) error {
	if err := profile.Validate(); err != nil {
		return err
	}
	profile.UpdatedAt = time.Now().UTC()
	m.mu.Lock()
	m.profiles[profile.UserID] = profile
	m.mu.Unlock()
	return nil
}
