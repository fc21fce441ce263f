package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/skinovation-clinic/internal/accounts"
	"github.com/wolfman30/skinovation-clinic/internal/attendants"
	"github.com/wolfman30/skinovation-clinic/internal/calendar"
	"github.com/wolfman30/skinovation-clinic/internal/catalog"
	"github.com/wolfman30/skinovation-clinic/internal/notify"
	"github.com/wolfman30/skinovation-clinic/internal/observability/metrics"
)

// BookRequest is a patient's booking submission. Date is YYYY-MM-DD and Time
// is HH:MM in the clinic time zone.
type BookRequest struct {
	PatientID   uuid.UUID   `json:"-"`
	Item        catalog.Ref `json:"item"`
	Date        string      `json:"date"`
	Time        string      `json:"time"`
	AttendantID *uuid.UUID  `json:"attendant_id,omitempty"`
}

// BookResult is the committed appointment plus the outcome of the SMS
// confirmation.
type BookResult struct {
	Appointment Appointment `json:"appointment"`
	SMSSent     bool        `json:"sms_sent"`
	Message     string      `json:"message"`
}

// Book validates and persists a booking. Rejections are *Error values and
// leave no trace in the store.
func (s *Service) Book(ctx context.Context, req BookRequest) (*BookResult, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.item_kind", string(req.Item.Kind)),
		attribute.String("clinic.date", req.Date),
	)

	started := s.now()
	result, err := s.book(ctx, req)
	outcome := metrics.OutcomeBooked
	switch {
	case err == nil && result.Appointment.Status == StatusConfirmed:
		outcome = metrics.OutcomeConfirmed
	case err != nil && KindOf(err) != "":
		outcome = string(KindOf(err))
	case err != nil:
		outcome = metrics.OutcomeError
		span.RecordError(err)
	}
	s.metrics.ObserveAttempt(string(req.Item.Kind), outcome, s.now().Sub(started).Seconds())
	return result, err
}

func (s *Service) book(ctx context.Context, req BookRequest) (*BookResult, error) {
	if strings.TrimSpace(req.Date) == "" || strings.TrimSpace(req.Time) == "" || req.Item.ID == uuid.Nil {
		return nil, validation(MsgRequiredFields)
	}
	date, err := calendar.ParseDate(req.Date, s.loc)
	if err != nil {
		return nil, validation("Invalid date %q. Use YYYY-MM-DD.", req.Date)
	}
	at, err := calendar.ParseClock(req.Time)
	if err != nil {
		return nil, validation("Invalid time %q. Use HH:MM.", req.Time)
	}

	item, err := s.catalog.Lookup(ctx, req.Item)
	switch {
	case errors.Is(err, catalog.ErrInvalidKind):
		return nil, validation("Please select a service, product, or package.")
	case errors.Is(err, catalog.ErrNotFound):
		return nil, notFound("The selected %s was not found.", req.Item.Kind)
	case err != nil:
		return nil, fmt.Errorf("appointments: catalog lookup: %w", err)
	}

	patient, err := s.directory.Get(ctx, req.PatientID)
	if errors.Is(err, accounts.ErrUserNotFound) {
		return nil, notFound("Patient account not found.")
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: patient lookup: %w", err)
	}

	if item.Kind == catalog.KindProduct {
		return s.preorder(ctx, patient, item, date, at)
	}

	attendant, err := s.resolveAttendant(ctx, req.AttendantID)
	if err != nil {
		return nil, err
	}
	profile, attendantUser, err := s.scheduleFor(ctx, attendant)
	if err != nil {
		return nil, err
	}
	if err := checkSchedule(profile, attendant.FullName(), date, at); err != nil {
		return nil, err
	}

	appt := &Appointment{
		PatientID:   patient.ID,
		AttendantID: attendant.ID,
		Item:        item.Ref,
		Date:        date,
		Time:        at,
		Status:      StatusPending,
	}
	if profile != nil {
		appt.Status = StatusConfirmed
	}

	var notes []*notify.Notification
	err = s.store.WithinTx(ctx, func(tx Tx) error {
		slot := appt.Slot()
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
		if err := s.insertWithTransactionID(ctx, tx, appt); err != nil {
			return err
		}
		notes = s.bookingNotifications(appt, item, patient, attendant, attendantUser)
		for _, note := range notes {
			if err := tx.Notify(ctx, note); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"transaction_id", appt.TransactionID,
		"attendant_id", appt.AttendantID,
		"status", appt.Status,
	)
	s.fanOut(notes)

	when := fmt.Sprintf("%s at %s", displayDate(appt.Date), appt.Time.Kitchen())
	smsSent := s.sms(ctx, patient.Phone,
		fmt.Sprintf("Your %s appointment has been %s for %s. Transaction ID: %s", item.Name, bookedVerb(appt.Status), when, appt.TransactionID),
		appt.ID)
	if attendantUser != nil {
		s.sms(ctx, attendantUser.Phone,
			fmt.Sprintf("New appointment: %s - %s on %s.", patient.FullName(), item.Name, when),
			appt.ID)
	}
	s.emailOwners(ctx, "New Appointment Booked",
		fmt.Sprintf("New appointment booked: %s - %s on %s. Status: %s.", patient.FullName(), item.Name, when, appt.Status),
		appt.ID)

	return &BookResult{
		Appointment: *appt,
		SMSSent:     smsSent,
		Message:     bookingResultMessage(string(item.Kind), appt.Status, smsSent, appt.TransactionID),
	}, nil
}

// preorder books a product for pickup with the default attendant. Stock is
// taken in the same transaction and the order is confirmed immediately.
func (s *Service) preorder(ctx context.Context, patient *accounts.User, item *catalog.Item, date time.Time, at calendar.Clock) (*BookResult, error) {
	if item.Stock <= 0 {
		return nil, conflict("%s", msgOutOfStock(item.Name))
	}
	attendant, err := s.resolveAttendant(ctx, nil)
	if err != nil {
		return nil, err
	}

	appt := &Appointment{
		PatientID:   patient.ID,
		AttendantID: attendant.ID,
		Item:        item.Ref,
		Date:        date,
		Time:        at,
		Status:      StatusConfirmed,
	}
	var notes []*notify.Notification
	err = s.store.WithinTx(ctx, func(tx Tx) error {
		if err := tx.DecrementStock(ctx, item.ID); err != nil {
			if errors.Is(err, catalog.ErrOutOfStock) {
				return conflict("%s", msgOutOfStock(item.Name))
			}
			return err
		}
		if err := s.insertWithTransactionID(ctx, tx, appt); err != nil {
			return err
		}
		when := fmt.Sprintf("%s at %s", displayDate(date), at.Kitchen())
		apptID := appt.ID
		patientNote := notify.ToUser(patient.ID, notify.TypeAppointment, "Product Pre-Ordered",
			fmt.Sprintf("Your %s pre-order for pickup on %s is confirmed. Transaction ID: %s", item.Name, when, appt.TransactionID), &apptID)
		ownerNote := notify.ToOwners(notify.TypeAppointment, "Product Pre-Order",
			fmt.Sprintf("New product pre-order: %s - %s for pickup on %s.", patient.FullName(), item.Name, when), &apptID)
		notes = []*notify.Notification{&patientNote, &ownerNote}
		for _, note := range notes {
			if err := tx.Notify(ctx, note); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("product pre-ordered", "appointment_id", appt.ID, "transaction_id", appt.TransactionID, "product_id", item.ID)
	s.fanOut(notes)

	smsSent := s.sms(ctx, patient.Phone,
		fmt.Sprintf("Your %s pre-order is confirmed. Transaction ID: %s", item.Name, appt.TransactionID),
		appt.ID)
	s.emailOwners(ctx, "Product Pre-Order",
		fmt.Sprintf("New product pre-order: %s - %s for pickup on %s at %s.", patient.FullName(), item.Name, displayDate(date), at.Kitchen()),
		appt.ID)

	return &BookResult{
		Appointment: *appt,
		SMSSent:     smsSent,
		Message:     bookingResultMessage(string(item.Kind), appt.Status, smsSent, appt.TransactionID),
	}, nil
}

// resolveAttendant uses the explicit id when it names a roster entry and
// otherwise falls back to the first attendant.
func (s *Service) resolveAttendant(ctx context.Context, id *uuid.UUID) (*attendants.Attendant, error) {
	if id != nil && *id != uuid.Nil {
		a, err := s.roster.Get(ctx, *id)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, attendants.ErrNotFound) {
			return nil, fmt.Errorf("appointments: attendant lookup: %w", err)
		}
	}
	a, err := s.roster.First(ctx)
	if errors.Is(err, attendants.ErrNotFound) {
		return nil, conflict(MsgNoAttendants)
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: default attendant: %w", err)
	}
	return a, nil
}

func (s *Service) insertWithTransactionID(ctx context.Context, tx Tx, appt *Appointment) error {
	for i := 0; i < maxTransactionIDAttempts; i++ {
		appt.TransactionID = s.newTxID()
		err := tx.Insert(ctx, appt)
		if !errors.Is(err, ErrDuplicateTransactionID) {
			return err
		}
	}
	return fmt.Errorf("appointments: no unique transaction id after %d attempts", maxTransactionIDAttempts)
}

func (s *Service) bookingNotifications(appt *Appointment, item *catalog.Item, patient *accounts.User, attendant *attendants.Attendant, attendantUser *accounts.User) []*notify.Notification {
	apptID := appt.ID
	when := fmt.Sprintf("%s at %s", displayDate(appt.Date), appt.Time.Kitchen())
	verb := bookedVerb(appt.Status)

	title := "Appointment Booked"
	if item.Kind == catalog.KindPackage {
		title = "Package Booked"
	}
	if appt.Status == StatusConfirmed {
		title = strings.Replace(title, "Booked", "Confirmed", 1)
	}

	patientNote := notify.ToUser(patient.ID, notify.TypeAppointment, title,
		fmt.Sprintf("Your %s appointment has been %s for %s. Transaction ID: %s", item.Name, verb, when, appt.TransactionID), &apptID)
	ownerNote := notify.ToOwners(notify.TypeAppointment, "New Appointment Booked",
		fmt.Sprintf("New appointment booked: %s - %s on %s. Attendant: %s. Status: %s.", patient.FullName(), item.Name, when, attendant.FullName(), appt.Status), &apptID)
	notes := []*notify.Notification{&patientNote, &ownerNote}
	if attendantUser != nil {
		attendantNote := notify.ToUser(attendantUser.ID, notify.TypeAppointment, "New Appointment Assigned",
			fmt.Sprintf("You have been assigned a new appointment: %s - %s on %s.", patient.FullName(), item.Name, when), &apptID)
		notes = append(notes, &attendantNote)
	}
	return notes
}

// AvailableAttendants lists attendants whose schedule admits the slot and
// whose slot still has room.
func (s *Service) AvailableAttendants(ctx context.Context, dateStr, timeStr string) ([]attendants.Attendant, error) {
	if strings.TrimSpace(dateStr) == "" || strings.TrimSpace(timeStr) == "" {
		return nil, validation(MsgRequiredFields)
	}
	date, err := calendar.ParseDate(dateStr, s.loc)
	if err != nil {
		return nil, validation("Invalid date %q. Use YYYY-MM-DD.", dateStr)
	}
	at, err := calendar.ParseClock(timeStr)
	if err != nil {
		return nil, validation("Invalid time %q. Use HH:MM.", timeStr)
	}

	roster, err := s.roster.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("appointments: list attendants: %w", err)
	}
	var out []attendants.Attendant
	for _, a := range roster {
		profile, _, err := s.scheduleFor(ctx, &a)
		if err != nil {
			return nil, err
		}
		if profile != nil && !profile.Admits(date.Weekday(), at) {
			continue
		}
		n, err := s.store.CountActive(ctx, Slot{Date: date, Time: at, AttendantID: a.ID})
		if err != nil {
			return nil, fmt.Errorf("appointments: count slot: %w", err)
		}
		if n >= s.capacity {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
