package appointments

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/skinovation-clinic/internal/catalog"
	"github.com/wolfman30/skinovation-clinic/internal/notify"
)

// MemoryStore is an in-process Store. WithinTx holds a single lock, so
// transactions are fully serialised and roll back on error.
type MemoryStore struct {
	mu            sync.Mutex
	appointments  map[uuid.UUID]Appointment
	cancellations map[uuid.UUID]CancellationRequest
	reschedules   map[uuid.UUID]RescheduleRequest
	feedback      map[uuid.UUID]Feedback
	catalog       *catalog.MemoryCatalog
	notifications notify.Store
	now           func() time.Time
}

// NewMemoryStore builds a store that decrements stock in cat and records
// notifications in notes. Either may be nil.
func NewMemoryStore(cat *catalog.MemoryCatalog, notes notify.Store) *MemoryStore {
	if cat == nil {
		cat = catalog.NewMemoryCatalog()
	}
	if notes == nil {
		notes = notify.NewMemoryStore()
	}
	return &MemoryStore{
		appointments:  make(map[uuid.UUID]Appointment),
		cancellations: make(map[uuid.UUID]CancellationRequest),
		reschedules:   make(map[uuid.UUID]RescheduleRequest),
		feedback:      make(map[uuid.UUID]Feedback),
		catalog:       cat,
		notifications: notes,
		now:           time.Now,
	}
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		store:         s,
		appointments:  maps.Clone(s.appointments),
		cancellations: maps.Clone(s.cancellations),
		reschedules:   maps.Clone(s.reschedules),
		feedback:      maps.Clone(s.feedback),
	}
	if err := fn(tx); err != nil {
		tx.undoStock()
		return err
	}
	s.appointments = tx.appointments
	s.cancellations = tx.cancellations
	s.reschedules = tx.reschedules
	s.feedback = tx.feedback
	for i := range tx.notes {
		if err := s.notifications.Insert(ctx, tx.notes[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &a, nil
}

func (s *MemoryStore) List(ctx context.Context, filter ListFilter) ([]Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Appointment
	for _, a := range s.appointments {
		if filter.Matches(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].Time > out[j].Time
	})
	return out, nil
}

func (s *MemoryStore) CountActive(ctx context.Context, slot Slot) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return countActiveIn(s.appointments, slot), nil
}

func countActiveIn(appts map[uuid.UUID]Appointment, slot Slot) int {
	key := slot.Key()
	n := 0
	for _, a := range appts {
		if a.Status.Active() && a.Slot().Key() == key {
			n++
		}
	}
	return n
}

func (s *MemoryStore) GetCancellationRequest(ctx context.Context, id uuid.UUID) (*CancellationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.cancellations[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &r, nil
}

func (s *MemoryStore) ListCancellationRequests(ctx context.Context, status RequestStatus) ([]CancellationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []CancellationRequest
	for _, r := range s.cancellations {
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) GetRescheduleRequest(ctx context.Context, id uuid.UUID) (*RescheduleRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reschedules[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &r, nil
}

func (s *MemoryStore) ListRescheduleRequests(ctx context.Context, status RequestStatus) ([]RescheduleRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []RescheduleRequest
	for _, r := range s.reschedules {
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListFeedback(ctx context.Context, attendantID *uuid.UUID) ([]Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Feedback
	for _, f := range s.feedback {
		if attendantID == nil || f.AttendantID == *attendantID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type memTx struct {
	store         *MemoryStore
	appointments  map[uuid.UUID]Appointment
	cancellations map[uuid.UUID]CancellationRequest
	reschedules   map[uuid.UUID]RescheduleRequest
	feedback      map[uuid.UUID]Feedback
	notes         []*notify.Notification
	undo          []func()
}

func (t *memTx) undoStock() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
}

// LockSlot is a no-op: the store lock already serialises transactions.
func (t *memTx) LockSlot(ctx context.Context, slot Slot) error {
	return nil
}

func (t *memTx) CountActive(ctx context.Context, slot Slot) (int, error) {
	return countActiveIn(t.appointments, slot), nil
}

func (t *memTx) Insert(ctx context.Context, a *Appointment) error {
	for _, existing := range t.appointments {
		if existing.TransactionID == a.TransactionID {
			return ErrDuplicateTransactionID
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	ts := t.store.now().UTC()
	a.CreatedAt, a.UpdatedAt = ts, ts
	t.appointments[a.ID] = *a
	return nil
}

func (t *memTx) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := t.appointments[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &a, nil
}

func (t *memTx) Update(ctx context.Context, a *Appointment) error {
	if _, ok := t.appointments[a.ID]; !ok {
		return ErrRecordNotFound
	}
	a.UpdatedAt = t.store.now().UTC()
	t.appointments[a.ID] = *a
	return nil
}

func (t *memTx) DecrementStock(ctx context.Context, productID uuid.UUID) error {
	if _, err := t.store.catalog.DecrementStock(productID); err != nil {
		return err
	}
	t.undo = append(t.undo, func() { _ = t.store.catalog.RestoreStock(productID) })
	return nil
}

func (t *memTx) RestoreStock(ctx context.Context, productID uuid.UUID) error {
	if err := t.store.catalog.RestoreStock(productID); err != nil {
		return err
	}
	t.undo = append(t.undo, func() { _, _ = t.store.catalog.DecrementStock(productID) })
	return nil
}

func (t *memTx) InsertCancellationRequest(ctx context.Context, r *CancellationRequest) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.CreatedAt = t.store.now().UTC()
	t.cancellations[r.ID] = *r
	return nil
}

func (t *memTx) GetCancellationRequestForUpdate(ctx context.Context, id uuid.UUID) (*CancellationRequest, error) {
	r, ok := t.cancellations[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &r, nil
}

func (t *memTx) UpdateCancellationRequest(ctx context.Context, r *CancellationRequest) error {
	if _, ok := t.cancellations[r.ID]; !ok {
		return ErrRecordNotFound
	}
	t.cancellations[r.ID] = *r
	return nil
}

func (t *memTx) HasPendingCancellation(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	for _, r := range t.cancellations {
		if r.AppointmentID == appointmentID && r.Status == RequestPending {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertRescheduleRequest(ctx context.Context, r *RescheduleRequest) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.CreatedAt = t.store.now().UTC()
	t.reschedules[r.ID] = *r
	return nil
}

func (t *memTx) GetRescheduleRequestForUpdate(ctx context.Context, id uuid.UUID) (*RescheduleRequest, error) {
	r, ok := t.reschedules[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &r, nil
}

func (t *memTx) UpdateRescheduleRequest(ctx context.Context, r *RescheduleRequest) error {
	if _, ok := t.reschedules[r.ID]; !ok {
		return ErrRecordNotFound
	}
	t.reschedules[r.ID] = *r
	return nil
}

func (t *memTx) InsertFeedback(ctx context.Context, f *Feedback) error {
	for _, existing := range t.feedback {
		if existing.AppointmentID == f.AppointmentID && existing.PatientID == f.PatientID {
			return ErrDuplicateFeedback
		}
	}
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	f.CreatedAt = t.store.now().UTC()
	t.feedback[f.ID] = *f
	return nil
}

// Notify buffers n until commit.
func (t *memTx) Notify(ctx context.Context, n *notify.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	t.notes = append(t.notes, n)
	return nil
}
