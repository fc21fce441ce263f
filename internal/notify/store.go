package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a notification is missing or not visible to the caller.
var ErrNotFound = errors.New("notify: notification not found")

// Store is the notification store: create, query and mark-read.
type Store interface {
	Insert(ctx context.Context, n *Notification) error
	List(ctx context.Context, audience Audience, limit int) ([]Notification, error)
	UnreadCount(ctx context.Context, audience Audience) (int, error)
	MarkRead(ctx context.Context, audience Audience, id uuid.UUID) error
	MarkAllRead(ctx context.Context, audience Audience) (int64, error)
}

// Querier is satisfied by pgxpool.Pool, pgx.Tx and pgxmock.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists notifications in Postgres.
type PostgresStore struct {
	db Querier
}

func NewPostgresStore(db Querier) *PostgresStore {
	if db == nil {
		panic("notify: pgx pool required")
	}
	return &PostgresStore{db: db}
}

// Insert writes n using the store's own connection.
func (s *PostgresStore) Insert(ctx context.Context, n *Notification) error {
	return InsertWith(ctx, s.db, n)
}

// InsertWith writes n on q so it commits with the surrounding transaction.
func InsertWith(ctx context.Context, q Querier, n *Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	query := `
		INSERT INTO notifications (id, type, title, message, user_id, appointment_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	if err := q.QueryRow(ctx, query, n.ID, string(n.Type), n.Title, n.Message, n.UserID, n.AppointmentID).Scan(&n.CreatedAt); err != nil {
		return fmt.Errorf("notify: insert notification: %w", err)
	}
	return nil
}

const audienceFilter = `(user_id = $1 OR ($2 AND user_id IS NULL))`

func (s *PostgresStore) List(ctx context.Context, audience Audience, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, type, title, message, user_id, appointment_id, is_read, created_at
		FROM notifications
		WHERE `+audienceFilter+`
		ORDER BY created_at DESC
		LIMIT $3
	`, audience.UserID, audience.Owners, limit)
	if err != nil {
		return nil, fmt.Errorf("notify: list notifications: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var (
			n   Notification
			typ string
		)
		if err := rows.Scan(&n.ID, &typ, &n.Title, &n.Message, &n.UserID, &n.AppointmentID, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("notify: scan notification: %w", err)
		}
		n.Type = Type(typ)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UnreadCount(ctx context.Context, audience Audience) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `
		SELECT count(*) FROM notifications
		WHERE `+audienceFilter+` AND NOT is_read
	`, audience.UserID, audience.Owners).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("notify: unread count: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) MarkRead(ctx context.Context, audience Audience, id uuid.UUID) error {
	ct, err := s.db.Exec(ctx, `
		UPDATE notifications SET is_read = true
		WHERE `+audienceFilter+` AND id = $3
	`, audience.UserID, audience.Owners, id)
	if err != nil {
		return fmt.Errorf("notify: mark read: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) MarkAllRead(ctx context.Context, audience Audience) (int64, error) {
	ct, err := s.db.Exec(ctx, `
		UPDATE notifications SET is_read = true
		WHERE `+audienceFilter+` AND NOT is_read
	`, audience.UserID, audience.Owners)
	if err != nil {
		return 0, fmt.Errorf("notify: mark all read: %w", err)
	}
	return ct.RowsAffected(), nil
}

// MemoryStore keeps notifications in process.
type MemoryStore struct {
	mu    sync.RWMutex
	items []Notification
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (m *MemoryStore) Insert(ctx context.Context, n *Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n.CreatedAt = m.now().UTC()
	m.items = append(m.items, *n)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, audience Audience, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 10
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Notification
	for i := len(m.items) - 1; i >= 0; i-- {
		if audience.Sees(m.items[i]) {
			out = append(out, m.items[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) UnreadCount(ctx context.Context, audience Audience) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, n := range m.items {
		if audience.Sees(n) && !n.Read {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) MarkRead(ctx context.Context, audience Audience, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ID == id && audience.Sees(m.items[i]) {
			m.items[i].Read = true
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) MarkAllRead(ctx context.Context, audience Audience) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.items {
		if audience.Sees(m.items[i]) && !m.items[i].Read {
			m.items[i].Read = true
			n++
		}
	}
	return n, nil
}

// All returns every stored notification in insertion order.
func (m *MemoryStore) All() []Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Notification(nil), m.items...)
}
