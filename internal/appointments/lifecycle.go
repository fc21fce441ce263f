package appointments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/skinovation-clinic/internal/catalog"
	"github.com/wolfman30/skinovation-clinic/internal/history"
	"github.com/wolfman30/skinovation-clinic/internal/identity"
	"github.com/wolfman30/skinovation-clinic/internal/notify"
)

// transition describes one staff-driven status change.
type transition struct {
	action string
	from   []Status
	to     Status
	reject string
	note   func(item, when string) (notify.Type, string, string)
}

var (
	confirmTransition = transition{
		action: "confirmed",
		from:   []Status{StatusPending},
		to:     StatusConfirmed,
		reject: "Only pending appointments can be confirmed.",
		note: func(item, when string) (notify.Type, string, string) {
			return notify.TypeConfirmation, "Appointment Confirmed",
				fmt.Sprintf("Your %s appointment on %s has been confirmed.", item, when)
		},
	}
	completeTransition = transition{
		action: "completed",
		from:   []Status{StatusPending, StatusConfirmed},
		to:     StatusCompleted,
		reject: "Only pending or confirmed appointments can be completed.",
		note: func(item, when string) (notify.Type, string, string) {
			return notify.TypeFeedback, "Appointment Completed",
				fmt.Sprintf("Your %s appointment on %s has been completed. We would love to hear your feedback!", item, when)
		},
	}
	cancelTransition = transition{
		action: "cancelled",
		from:   []Status{StatusPending, StatusConfirmed},
		to:     StatusCancelled,
		reject: MsgCannotCancel,
		note: func(item, when string) (notify.Type, string, string) {
			return notify.TypeCancellation, "Appointment Cancelled",
				fmt.Sprintf("Your %s appointment on %s has been cancelled.", item, when)
		},
	}
)

func (t transition) allows(s Status) bool {
	for _, from := range t.from {
		if s == from {
			return true
		}
	}
	return false
}

// Confirm moves a pending appointment to confirmed.
func (s *Service) Confirm(ctx context.Context, actor identity.Principal, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, actor, id, confirmTransition)
}

// Complete closes an appointment and prompts the patient for feedback.
func (s *Service) Complete(ctx context.Context, actor identity.Principal, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, actor, id, completeTransition)
}

// Cancel is the direct staff cancellation. A confirmed product pre-order
// returns its unit to stock.
func (s *Service) Cancel(ctx context.Context, actor identity.Principal, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, actor, id, cancelTransition)
}

func (s *Service) transition(ctx context.Context, actor identity.Principal, id uuid.UUID, t transition) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments."+t.action)
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.appointment_id", id.String()),
		attribute.String("clinic.actor_role", string(actor.Role)),
	)

	if !actor.Role.Staff() {
		return nil, forbidden(MsgNotPermitted)
	}
	facts, err := s.loadFacts(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeStaff(ctx, actor, facts.appt); err != nil {
		return nil, err
	}

	var (
		appt *Appointment
		note notify.Notification
	)
	err = s.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		appt, err = lookupAppointment(ctx, tx, id)
		if err != nil {
			return err
		}
		if !t.allows(appt.Status) {
			return conflict("%s", t.reject)
		}
		if err := applyStatus(ctx, tx, appt, t.to); err != nil {
			return err
		}
		note = s.patientNote(appt, facts.itemName, t.note)
		return tx.Notify(ctx, &note)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveTransition(string(t.to))
	s.logger.Info("appointment "+t.action, "appointment_id", appt.ID, "actor_id", actor.UserID, "actor_role", actor.Role)
	s.fanOut([]*notify.Notification{&note})
	s.notifyPatientSMS(ctx, appt, note.Message)
	actorID := actor.UserID
	apptID := appt.ID
	s.record(ctx, history.Entry{
		Type:        history.TypeAppointment,
		Name:        appt.TransactionID,
		Action:      t.action,
		PerformedBy: &actorID,
		RelatedID:   &apptID,
	})
	return appt, nil
}

// applyStatus updates the status and returns pre-ordered stock when a
// confirmed product order is cancelled.
func applyStatus(ctx context.Context, tx Tx, appt *Appointment, to Status) error {
	if to == StatusCancelled && appt.Item.Kind == catalog.KindProduct && appt.Status == StatusConfirmed {
		if err := tx.RestoreStock(ctx, appt.Item.ID); err != nil {
			return fmt.Errorf("appointments: restore stock: %w", err)
		}
	}
	appt.Status = to
	return tx.Update(ctx, appt)
}

func (s *Service) when(appt *Appointment) string {
	return fmt.Sprintf("%s at %s", displayDate(appt.Date), appt.Time.Kitchen())
}

func (s *Service) patientNote(appt *Appointment, itemName string, build func(item, when string) (notify.Type, string, string)) notify.Notification {
	typ, title, message := build(itemName, s.when(appt))
	apptID := appt.ID
	return notify.ToUser(appt.PatientID, typ, title, message, &apptID)
}

func (s *Service) notifyPatientSMS(ctx context.Context, appt *Appointment, body string) bool {
	patient, err := s.directory.Get(ctx, appt.PatientID)
	if err != nil {
		s.logger.Warn("patient lookup for sms failed", "error", err, "appointment_id", appt.ID)
		return false
	}
	return s.sms(ctx, patient.Phone, body, appt.ID)
}

// ListForPatient returns the caller's own appointments.
func (s *Service) ListForPatient(ctx context.Context, actor identity.Principal) ([]Appointment, error) {
	id := actor.UserID
	return s.store.List(ctx, ListFilter{PatientID: &id})
}

// List returns appointments for staff. Attendants only see their own.
func (s *Service) List(ctx context.Context, actor identity.Principal, filter ListFilter) ([]Appointment, error) {
	if !actor.Role.Staff() {
		return nil, forbidden(MsgNotPermitted)
	}
	if actor.Role == identity.RoleAttendant {
		a, err := s.staffAttendant(ctx, actor)
		if err != nil {
			return nil, err
		}
		filter.AttendantID = &a.ID
	}
	return s.store.List(ctx, filter)
}

// Get returns one appointment visible to the actor.
func (s *Service) Get(ctx context.Context, actor identity.Principal, id uuid.UUID) (*Appointment, error) {
	appt, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, notFound(MsgAppointmentNotFound)
	}
	if err != nil {
		return nil, err
	}
	if actor.Role == identity.RolePatient {
		if appt.PatientID != actor.UserID {
			return nil, notFound(MsgAppointmentNotFound)
		}
		return appt, nil
	}
	if err := s.authorizeStaff(ctx, actor, appt); err != nil {
		return nil, err
	}
	return appt, nil
}
