package appointments

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/wolfman30/skinovation-clinic/internal/notify"
)

// ErrDuplicateTransactionID is returned by Tx.Insert when the generated
// reference collides with an existing booking.
var ErrDuplicateTransactionID = errors.New("appointments: transaction id already used")

// Store persists appointments and the requests layered on top of them.
type Store interface {
	// WithinTx runs fn in one transaction, committing when fn returns nil.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)
	List(ctx context.Context, filter ListFilter) ([]Appointment, error)
	CountActive(ctx context.Context, slot Slot) (int, error)
	GetCancellationRequest(ctx context.Context, id uuid.UUID) (*CancellationRequest, error)
	ListCancellationRequests(ctx context.Context, status RequestStatus) ([]CancellationRequest, error)
	GetRescheduleRequest(ctx context.Context, id uuid.UUID) (*RescheduleRequest, error)
	ListRescheduleRequests(ctx context.Context, status RequestStatus) ([]RescheduleRequest, error)
	ListFeedback(ctx context.Context, attendantID *uuid.UUID) ([]Feedback, error)
}

// Tx is the transactional surface of a Store. Reads made through it see the
// transaction's own writes, and ForUpdate reads hold row locks until commit.
type Tx interface {
	// LockSlot serialises bookings of the same slot until the transaction ends.
	LockSlot(ctx context.Context, slot Slot) error
	CountActive(ctx context.Context, slot Slot) (int, error)

	Insert(ctx context.Context, a *Appointment) error
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error

	// DecrementStock returns catalog.ErrOutOfStock when no unit is left.
	DecrementStock(ctx context.Context, productID uuid.UUID) error
	RestoreStock(ctx context.Context, productID uuid.UUID) error

	InsertCancellationRequest(ctx context.Context, r *CancellationRequest) error
	GetCancellationRequestForUpdate(ctx context.Context, id uuid.UUID) (*CancellationRequest, error)
	UpdateCancellationRequest(ctx context.Context, r *CancellationRequest) error
	HasPendingCancellation(ctx context.Context, appointmentID uuid.UUID) (bool, error)

	InsertRescheduleRequest(ctx context.Context, r *RescheduleRequest) error
	GetRescheduleRequestForUpdate(ctx context.Context, id uuid.UUID) (*RescheduleRequest, error)
	UpdateRescheduleRequest(ctx context.Context, r *RescheduleRequest) error

	// InsertFeedback returns ErrDuplicateFeedback for a repeated pair.
	InsertFeedback(ctx context.Context, f *Feedback) error

	// Notify records an in-app notification that commits with the transaction.
	Notify(ctx context.Context, n *notify.Notification) error
}
