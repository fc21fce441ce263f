package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestOutboxStoreFlow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := NewOutboxStore(mock)

	mock.ExpectExec("INSERT INTO outbox").WithArgs(pgxmock.AnyArg(), "notify.outbound.v1", pgxmock.AnyArg()).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	if _, err := store.Insert(context.Background(), "notify.outbound.v1", map[string]string{"to": "+639170000000"}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	now := time.Now().UTC()
	id := uuid.New()
	rows := pgxmock.NewRows([]string{"id", "type", "payload", "attempts", "created_at"}).AddRow(id, "notify.outbound.v1", []byte("{\"to\":\"+639170000000\"}"), 1, now)
	mock.ExpectQuery("SELECT id").WithArgs(int32(10), 5).WillReturnRows(rows)

	entries, err := store.FetchPending(context.Background(), 10, 5)
	if err != nil {
		t.Fatalf("fetch pending failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != id || entries[0].Attempts != 1 {
		t.Fatalf("unexpected entries: %#v", entries)
	}

	mock.ExpectExec("UPDATE outbox").WithArgs(id).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	ok, err := store.MarkDelivered(context.Background(), id)
	if err != nil {
		t.Fatalf("mark delivered failed: %v", err)
	}
	if !ok {
		t.Fatal("expected mark delivered to report success")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

type scriptedHandler struct {
	fail map[uuid.UUID]error
	seen []uuid.UUID
}

func (h *scriptedHandler) Handle(ctx context.Context, entry OutboxEntry) error {
	h.seen = append(h.seen, entry.ID)
	return h.fail[entry.ID]
}

func TestDelivererDrainMarksOutcomes(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	okID, badID := uuid.New(), uuid.New()
	handler := &scriptedHandler{fail: map[uuid.UUID]error{badID: errors.New("twilio 503")}}
	deliverer := NewDeliverer(NewOutboxStore(mock), handler, nil).WithBatchSize(5).WithMaxAttempts(3)

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id").WithArgs(int32(5), 3).WillReturnRows(
		pgxmock.NewRows([]string{"id", "type", "payload", "attempts", "created_at"}).
			AddRow(okID, "notify.outbound.v1", []byte("{}"), 0, now).
			AddRow(badID, "notify.outbound.v1", []byte("{}"), 2, now),
	)
	mock.ExpectExec("UPDATE outbox").WithArgs(okID).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE outbox").WithArgs(badID, "twilio 503").WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if got := deliverer.Drain(context.Background()); got != 1 {
		t.Fatalf("expected 1 delivered, got %d", got)
	}
	if len(handler.seen) != 2 {
		t.Fatalf("expected handler to see both entries, saw %d", len(handler.seen))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
