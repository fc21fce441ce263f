// Package attendants holds the roster of staff who fulfil appointments.
package attendants

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when no attendant matches a lookup.
	ErrNotFound     = errors.New("attendants: not found")
	ErrNameRequired = errors.New("attendants: first and last name are required")
	// ErrInUse blocks removing an attendant that appointments or feedback
	// still reference.
	ErrInUse = errors.New("attendants: attendant has appointments")
)

// foreignKeyViolation is the Postgres SQLSTATE for a restricted delete.
const foreignKeyViolation = "23503"

// Attendant is a roster entry. Its optional schedule lives on the matching
// attendant user account.
type Attendant struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	CreatedAt time.Time `json:"created_at"`
}

// FullName joins first and last name.
func (a Attendant) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// Repository reads and edits the roster.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*Attendant, error)
	// First returns the earliest-created attendant, used as the default.
	First(ctx context.Context) (*Attendant, error)
	List(ctx context.Context) ([]Attendant, error)
	FindByName(ctx context.Context, firstName, lastName string) (*Attendant, error)
	Create(ctx context.Context, firstName, lastName string) (*Attendant, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Querier is satisfied by pgxpool.Pool, pgx.Tx and pgxmock.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func cleanNames(firstName, lastName string) (string, string, error) {
	firstName, lastName = strings.TrimSpace(firstName), strings.TrimSpace(lastName)
	if firstName == "" || lastName == "" {
		return "", "", ErrNameRequired
	}
	return firstName, lastName, nil
}

// PostgresRepository reads attendants from Postgres.
type PostgresRepository struct {
	db Querier
}

// NewPostgresRepository wraps a pool.
func NewPostgresRepository(db Querier) *PostgresRepository {
	if db == nil {
		panic("attendants: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

const selectAttendant = `SELECT id, first_name, last_name, created_at FROM attendants`

func (r *PostgresRepository) one(ctx context.Context, query string, args ...any) (*Attendant, error) {
	var a Attendant
	err := r.db.QueryRow(ctx, query, args...).Scan(&a.ID, &a.FirstName, &a.LastName, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("attendants: select failed: %w", err)
	}
	return &a, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (*Attendant, error) {
	return r.one(ctx, selectAttendant+` WHERE id = $1`, id)
}

func (r *PostgresRepository) First(ctx context.Context) (*Attendant, error) {
	return r.one(ctx, selectAttendant+` ORDER BY created_at, id LIMIT 1`)
}

func (r *PostgresRepository) FindByName(ctx context.Context, firstName, lastName string) (*Attendant, error) {
	return r.one(ctx, selectAttendant+` WHERE first_name = $1 AND last_name = $2 ORDER BY created_at LIMIT 1`, firstName, lastName)
}

func (r *PostgresRepository) List(ctx context.Context) ([]Attendant, error) {
	rows, err := r.db.Query(ctx, selectAttendant+` ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("attendants: list failed: %w", err)
	}
	defer rows.Close()

	var out []Attendant
	for rows.Next() {
		var a Attendant
		if err := rows.Scan(&a.ID, &a.FirstName, &a.LastName, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("attendants: scan failed: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Create(ctx context.Context, firstName, lastName string) (*Attendant, error) {
	firstName, lastName, err := cleanNames(firstName, lastName)
	if err != nil {
		return nil, err
	}
	a := Attendant{ID: uuid.New(), FirstName: firstName, LastName: lastName}
	err = r.db.QueryRow(ctx, `
		INSERT INTO attendants (id, first_name, last_name)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, a.ID, a.FirstName, a.LastName).Scan(&a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("attendants: insert failed: %w", err)
	}
	return &a, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM attendants WHERE id = $1`, id)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return ErrInUse
	}
	if err != nil {
		return fmt.Errorf("attendants: delete failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// InMemoryRepository keeps the roster in insertion order.
type InMemoryRepository struct {
	mu   sync.RWMutex
	list []Attendant
}

// NewInMemoryRepository seeds the roster with attendants in order.
func NewInMemoryRepository(seed ...Attendant) *InMemoryRepository {
	r := &InMemoryRepository{}
	for _, a := range seed {
		r.Add(a)
	}
	return r
}

// Add appends an attendant, assigning an id when missing.
func (r *InMemoryRepository) Add(a Attendant) Attendant {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	r.list = append(r.list, a)
	r.mu.Unlock()
	return a
}

func (r *InMemoryRepository) Get(ctx context.Context, id uuid.UUID) (*Attendant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.list {
		if a.ID == id {
			a := a
			return &a, nil
		}
	}
	return nil, ErrNotFound
}

func (r *InMemoryRepository) First(ctx context.Context) (*Attendant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.list) == 0 {
		return nil, ErrNotFound
	}
	a := r.list[0]
	return &a, nil
}

func (r *InMemoryRepository) FindByName(ctx context.Context, firstName, lastName string) (*Attendant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.list {
		if a.FirstName == firstName && a.LastName == lastName {
			a := a
			return &a, nil
		}
	}
	return nil, ErrNotFound
}

func (r *InMemoryRepository) List(ctx context.Context) ([]Attendant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Attendant(nil), r.list...), nil
}

func (r *InMemoryRepository) Create(ctx context.Context, firstName, lastName string) (*Attendant, error) {
	firstName, lastName, err := cleanNames(firstName, lastName)
	if err != nil {
		return nil, err
	}
	a := r.Add(Attendant{FirstName: firstName, LastName: lastName})
	return &a, nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, a := range r.list {
		if a.ID == id {
			r.list = append(r.list[:i], r.list[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}
