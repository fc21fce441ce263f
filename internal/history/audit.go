// Package history keeps the owner-facing audit trail of staff actions.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EntryType names the kind of record an action touched.
type EntryType string

const (
	TypeAppointment  EntryType = "appointment"
	TypeCancellation EntryType = "cancellation_request"
	TypeReschedule   EntryType = "reschedule_request"
	TypeSchedule     EntryType = "attendant_schedule"
	TypeAttendant    EntryType = "attendant"
	TypeAccount      EntryType = "attendant_account"
)

// Entry is an immutable audit record.
type Entry struct {
	ID          uuid.UUID  `json:"id"`
	Type        EntryType  `json:"type"`
	Name        string     `json:"name"`
	Action      string     `json:"action"`
	PerformedBy *uuid.UUID `json:"performed_by,omitempty"`
	Details     string     `json:"details,omitempty"`
	RelatedID   *uuid.UUID `json:"related_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Recorder appends audit entries.
type Recorder interface {
	Log(ctx context.Context, entry Entry) error
}

// Log is the Postgres-backed audit trail.
type Log struct {
	db *sql.DB
}

// NewLog creates a new audit log.
func NewLog(db *sql.DB) *Log {
	return &Log{db: db}
}

// Log records an entry.
func (l *Log) Log(ctx context.Context, entry Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO history_logs (
			id, type, name, action, performed_by, details, related_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		entry.ID,
		string(entry.Type),
		entry.Name,
		entry.Action,
		entry.PerformedBy,
		nullString(entry.Details),
		entry.RelatedID,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("history: failed to log entry: %w", err)
	}
	return nil
}

// Filter narrows List results.
type Filter struct {
	Type  EntryType
	Limit int
}

// List returns entries newest first.
func (l *Log) List(ctx context.Context, filter Filter) ([]Entry, error) {
	query := `
		SELECT id, type, name, action, performed_by, details, related_id, created_at
		FROM history_logs
	`
	var args []any
	if filter.Type != "" {
		query += " WHERE type = $1"
		args = append(args, string(filter.Type))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e           Entry
			typ         string
			performedBy uuid.NullUUID
			relatedID   uuid.NullUUID
			details     sql.NullString
		)
		if err := rows.Scan(&e.ID, &typ, &e.Name, &e.Action, &performedBy, &details, &relatedID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("history: failed to scan entry: %w", err)
		}
		e.Type = EntryType(typ)
		e.Details = details.String
		if performedBy.Valid {
			e.PerformedBy = &performedBy.UUID
		}
		if relatedID.Valid {
			e.RelatedID = &relatedID.UUID
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// MemoryLog keeps entries in process.
type MemoryLog struct {
	mu      sync.Mutex
	entries []Entry
}

func (m *MemoryLog) Log(ctx context.Context, entry Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	m.entries = append(m.entries, entry)
	m.mu.Unlock()
	return nil
}

// Entries returns a copy in insertion order.
func (m *MemoryLog) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

// List mirrors Log.List: newest first, optionally filtered by type.
func (m *MemoryLog) List(ctx context.Context, filter Filter) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}
