package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/skinovation-clinic/internal/accounts"
	"github.com/wolfman30/skinovation-clinic/internal/calendar"
	"github.com/wolfman30/skinovation-clinic/internal/catalog"
	"github.com/wolfman30/skinovation-clinic/internal/history"
	"github.com/wolfman30/skinovation-clinic/internal/identity"
	"github.com/wolfman30/skinovation-clinic/internal/notify"
)

// ownAppointment loads an appointment for its patient. Other patients get
// not-found so they cannot discover appointment ids.
func ownAppointment(ctx context.Context, tx Tx, actor identity.Principal, id uuid.UUID) (*Appointment, error) {
	if actor.Role != identity.RolePatient {
		return nil, forbidden(MsgNotPermitted)
	}
	appt, err := lookupAppointment(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if appt.PatientID != actor.UserID {
		return nil, notFound(MsgAppointmentNotFound)
	}
	return appt, nil
}

// RequestCancellation records a patient's cancellation request. It must
// arrive at least the configured number of whole days before the
// appointment.
func (s *Service) RequestCancellation(ctx context.Context, actor identity.Principal, id uuid.UUID, reason string) (*CancellationRequest, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.request_cancellation")
	defer span.End()

	facts, err := s.loadOwnFacts(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	patientName := s.patientName(ctx, actor.UserID)

	var (
		req  *CancellationRequest
		note notify.Notification
	)
	err = s.store.WithinTx(ctx, func(tx Tx) error {
		appt, err := ownAppointment(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		if !appt.Status.Active() {
			return conflict(MsgCannotCancel)
		}
		startsAt := calendar.At(appt.Date, appt.Time, s.loc)
		if calendar.WholeDaysUntil(startsAt, s.now()) < s.noticeDays {
			return conflict("%s", msgCancellationTooLate(s.noticeDays))
		}
		pending, err := tx.HasPendingCancellation(ctx, appt.ID)
		if err != nil {
			return err
		}
		if pending {
			return conflict(MsgCancellationPending)
		}

		apptType := TypeRegular
		if appt.Item.Kind == catalog.KindPackage {
			apptType = TypePackage
		}
		req = &CancellationRequest{
			AppointmentID:   appt.ID,
			PatientID:       actor.UserID,
			AppointmentType: apptType,
			Reason:          strings.TrimSpace(reason),
			Status:          RequestPending,
		}
		if err := tx.InsertCancellationRequest(ctx, req); err != nil {
			return err
		}

		apptID := appt.ID
		note = notify.ToOwners(notify.TypeCancellation, "Cancellation Request",
			fmt.Sprintf("%s requested to cancel %s on %s.%s",
				patientName, facts.itemName, s.when(appt), reasonSuffix(req.Reason)),
			&apptID)
		return tx.Notify(ctx, &note)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("cancellation requested", "request_id", req.ID, "appointment_id", req.AppointmentID)
	s.fanOut([]*notify.Notification{&note})
	s.emailOwners(ctx, note.Title, note.Message, req.AppointmentID)
	return req, nil
}

// RescheduleInput carries the requested new slot.
type RescheduleInput struct {
	Date   string `json:"new_date"`
	Time   string `json:"new_time"`
	Reason string `json:"reason"`
}

// RequestReschedule records a patient's request to move an appointment.
func (s *Service) RequestReschedule(ctx context.Context, actor identity.Principal, id uuid.UUID, in RescheduleInput) (*RescheduleRequest, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.request_reschedule")
	defer span.End()

	if strings.TrimSpace(in.Date) == "" || strings.TrimSpace(in.Time) == "" {
		return nil, validation(MsgRescheduleFields)
	}
	newDate, err := calendar.ParseDate(in.Date, s.loc)
	if err != nil {
		return nil, validation("Invalid date %q. Use YYYY-MM-DD.", in.Date)
	}
	newTime, err := calendar.ParseClock(in.Time)
	if err != nil {
		return nil, validation("Invalid time %q. Use HH:MM.", in.Time)
	}
	facts, err := s.loadOwnFacts(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	patientName := s.patientName(ctx, actor.UserID)

	var (
		req  *RescheduleRequest
		note notify.Notification
	)
	err = s.store.WithinTx(ctx, func(tx Tx) error {
		appt, err := ownAppointment(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		if !appt.Status.Active() {
			return conflict(MsgCannotReschedule)
		}
		req = &RescheduleRequest{
			AppointmentID: appt.ID,
			PatientID:     actor.UserID,
			NewDate:       newDate,
			NewTime:       newTime,
			Reason:        strings.TrimSpace(in.Reason),
			Status:        RequestPending,
		}
		if err := tx.InsertRescheduleRequest(ctx, req); err != nil {
			return err
		}
		apptID := appt.ID
		note = notify.ToOwners(notify.TypeReschedule, "Reschedule Request",
			fmt.Sprintf("%s requested to move %s from %s to %s at %s.%s",
				patientName, facts.itemName, s.when(appt),
				displayDate(newDate), newTime.Kitchen(), reasonSuffix(req.Reason)),
			&apptID)
		return tx.Notify(ctx, &note)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("reschedule requested", "request_id", req.ID, "appointment_id", req.AppointmentID)
	s.fanOut([]*notify.Notification{&note})
	s.emailOwners(ctx, note.Title, note.Message, req.AppointmentID)
	return req, nil
}

func reasonSuffix(reason string) string {
	if reason == "" {
		return ""
	}
	return " Reason: " + reason
}

// ApproveCancellation cancels the appointment behind a pending request.
func (s *Service) ApproveCancellation(ctx context.Context, actor identity.Principal, requestID uuid.UUID) (*CancellationRequest, error) {
	return s.resolveCancellation(ctx, actor, requestID, RequestApproved)
}

// RejectCancellation closes a pending request and leaves the appointment as is.
func (s *Service) RejectCancellation(ctx context.Context, actor identity.Principal, requestID uuid.UUID) (*CancellationRequest, error) {
	return s.resolveCancellation(ctx, actor, requestID, RequestRejected)
}

func (s *Service) resolveCancellation(ctx context.Context, actor identity.Principal, requestID uuid.UUID, outcome RequestStatus) (*CancellationRequest, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.resolve_cancellation")
	defer span.End()

	if !actor.Role.Manager() {
		return nil, forbidden(MsgNotPermitted)
	}
	pre, err := s.store.GetCancellationRequest(ctx, requestID)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, notFound(MsgRequestNotFound)
	}
	if err != nil {
		return nil, err
	}
	facts, err := s.loadFacts(ctx, pre.AppointmentID)
	if err != nil {
		return nil, err
	}

	var (
		req       *CancellationRequest
		appt      *Appointment
		note      notify.Notification
		cancelled bool
	)
	err = s.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		req, err = tx.GetCancellationRequestForUpdate(ctx, requestID)
		if errors.Is(err, ErrRecordNotFound) {
			return notFound(MsgRequestNotFound)
		}
		if err != nil {
			return err
		}
		if req.Status != RequestPending {
			return conflict(MsgRequestProcessed)
		}
		appt, err = lookupAppointment(ctx, tx, req.AppointmentID)
		if err != nil {
			return err
		}

		if outcome == RequestApproved && appt.Status.Active() {
			if err := applyStatus(ctx, tx, appt, StatusCancelled); err != nil {
				return err
			}
			cancelled = true
		}
		resolve(&req.Status, &req.ResolvedAt, &req.ResolvedBy, outcome, actor.UserID, s.now())
		if err := tx.UpdateCancellationRequest(ctx, req); err != nil {
			return err
		}

		note = s.patientNote(appt, facts.itemName, func(item, when string) (notify.Type, string, string) {
			if outcome == RequestApproved {
				return notify.TypeCancellation, "Cancellation Approved",
					fmt.Sprintf("Your cancellation request for %s on %s has been approved.", item, when)
			}
			return notify.TypeCancellation, "Cancellation Rejected",
				fmt.Sprintf("Your cancellation request for %s on %s has been rejected. Your appointment remains scheduled.", item, when)
		})
		return tx.Notify(ctx, &note)
	})
	if err != nil {
		return nil, err
	}

	if cancelled {
		s.metrics.ObserveTransition(string(StatusCancelled))
	}
	s.logger.Info("cancellation request resolved", "request_id", req.ID, "outcome", outcome, "actor_id", actor.UserID)
	s.fanOut([]*notify.Notification{&note})
	s.notifyPatientSMS(ctx, appt, note.Message)
	actorID := actor.UserID
	s.record(ctx, history.Entry{
		Type:        history.TypeCancellation,
		Name:        appt.TransactionID,
		Action:      string(outcome),
		PerformedBy: &actorID,
		Details:     req.Reason,
		RelatedID:   &req.ID,
	})
	return req, nil
}

// ApproveReschedule moves the appointment after re-checking the attendant's
// schedule and the capacity of the new slot.
func (s *Service) ApproveReschedule(ctx context.Context, actor identity.Principal, requestID uuid.UUID) (*RescheduleRequest, error) {
	return s.resolveReschedule(ctx, actor, requestID, RequestApproved)
}

// RejectReschedule closes a pending request without moving the appointment.
func (s *Service) RejectReschedule(ctx context.Context, actor identity.Principal, requestID uuid.UUID) (*RescheduleRequest, error) {
	return s.resolveReschedule(ctx, actor, requestID, RequestRejected)
}

func (s *Service) resolveReschedule(ctx context.Context, actor identity.Principal, requestID uuid.UUID, outcome RequestStatus) (*RescheduleRequest, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.resolve_reschedule")
	defer span.End()

	if !actor.Role.Manager() {
		return nil, forbidden(MsgNotPermitted)
	}
	pre, err := s.store.GetRescheduleRequest(ctx, requestID)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, notFound(MsgRequestNotFound)
	}
	if err != nil {
		return nil, err
	}
	facts, err := s.loadFacts(ctx, pre.AppointmentID)
	if err != nil {
		return nil, err
	}
	var plan *movePlan
	if outcome == RequestApproved {
		if plan, err = s.planMove(ctx, facts.appt); err != nil {
			return nil, err
		}
	}

	var (
		req  *RescheduleRequest
		appt *Appointment
		note notify.Notification
	)
	err = s.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		req, err = tx.GetRescheduleRequestForUpdate(ctx, requestID)
		if errors.Is(err, ErrRecordNotFound) {
			return notFound(MsgRequestNotFound)
		}
		if err != nil {
			return err
		}
		if req.Status != RequestPending {
			return conflict(MsgRequestProcessed)
		}
		appt, err = lookupAppointment(ctx, tx, req.AppointmentID)
		if err != nil {
			return err
		}

		if outcome == RequestApproved {
			if !appt.Status.Active() {
				return conflict(MsgCannotReschedule)
			}
			if err := s.moveAppointment(ctx, tx, appt, req.NewDate, req.NewTime, plan); err != nil {
				return err
			}
		}
		resolve(&req.Status, &req.ResolvedAt, &req.ResolvedBy, outcome, actor.UserID, s.now())
		if err := tx.UpdateRescheduleRequest(ctx, req); err != nil {
			return err
		}

		note = s.patientNote(appt, facts.itemName, func(item, when string) (notify.Type, string, string) {
			if outcome == RequestApproved {
				return notify.TypeReschedule, "Reschedule Approved",
					fmt.Sprintf("Your %s appointment has been moved to %s.", item, when)
			}
			return notify.TypeReschedule, "Reschedule Rejected",
				fmt.Sprintf("Your reschedule request for %s was rejected. Your appointment remains on %s.", item, when)
		})
		return tx.Notify(ctx, &note)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("reschedule request resolved", "request_id", req.ID, "outcome", outcome, "actor_id", actor.UserID)
	s.fanOut([]*notify.Notification{&note})
	s.notifyPatientSMS(ctx, appt, note.Message)
	actorID := actor.UserID
	s.record(ctx, history.Entry{
		Type:        history.TypeReschedule,
		Name:        appt.TransactionID,
		Action:      string(outcome),
		PerformedBy: &actorID,
		Details:     fmt.Sprintf("%s %s", req.NewDate.Format(calendar.DateLayout), req.NewTime),
		RelatedID:   &req.ID,
	})
	return req, nil
}

// movePlan is the schedule of the attendant behind a reschedule. A nil plan
// means a product pickup, which only needs the date moved.
type movePlan struct {
	name    string
	profile *accounts.ScheduleProfile
}

func (s *Service) planMove(ctx context.Context, appt *Appointment) (*movePlan, error) {
	if appt.Item.Kind == catalog.KindProduct {
		return nil, nil
	}
	attendant, err := s.roster.Get(ctx, appt.AttendantID)
	if err != nil {
		return nil, fmt.Errorf("appointments: attendant lookup: %w", err)
	}
	profile, _, err := s.scheduleFor(ctx, attendant)
	if err != nil {
		return nil, err
	}
	return &movePlan{name: attendant.FullName(), profile: profile}, nil
}

// moveAppointment applies the same availability rules as booking to the new
// slot. The appointment already holds a place in its current slot, so moving
// within that slot skips the capacity check.
func (s *Service) moveAppointment(ctx context.Context, tx Tx, appt *Appointment, date time.Time, at calendar.Clock, plan *movePlan) error {
	if plan != nil {
		if err := checkSchedule(plan.profile, plan.name, date, at); err != nil {
			return err
		}
		slot := Slot{Date: date, Time: at, AttendantID: appt.AttendantID}
		if slot.Key() != appt.Slot().Key() {
			if err := tx.LockSlot(ctx, slot); err != nil {
				return err
			}
			n, err := tx.CountActive(ctx, slot)
			if err != nil {
				return err
			}
			if n >= s.capacity {
				return conflict(MsgSlotFull)
			}
		}
	}
	appt.Date = date
	appt.Time = at
	return tx.Update(ctx, appt)
}

func resolve(status *RequestStatus, at **time.Time, by **uuid.UUID, outcome RequestStatus, actor uuid.UUID, now time.Time) {
	ts := now.UTC()
	*status = outcome
	*at = &ts
	*by = &actor
}

// ListCancellationRequests returns requests with the given status, or all
// when status is empty.
func (s *Service) ListCancellationRequests(ctx context.Context, actor identity.Principal, status RequestStatus) ([]CancellationRequest, error) {
	if !actor.Role.Manager() {
		return nil, forbidden(MsgNotPermitted)
	}
	return s.store.ListCancellationRequests(ctx, status)
}

// ListRescheduleRequests returns requests with the given status, or all when
// status is empty.
func (s *Service) ListRescheduleRequests(ctx context.Context, actor identity.Principal, status RequestStatus) ([]RescheduleRequest, error) {
	if !actor.Role.Manager() {
		return nil, forbidden(MsgNotPermitted)
	}
	return s.store.ListRescheduleRequests(ctx, status)
}
