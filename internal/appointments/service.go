package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/wolfman30/skinovation-clinic/internal/accounts"
	"github.com/wolfman30/skinovation-clinic/internal/attendants"
	"github.com/wolfman30/skinovation-clinic/internal/calendar"
	"github.com/wolfman30/skinovation-clinic/internal/catalog"
	"github.com/wolfman30/skinovation-clinic/internal/history"
	"github.com/wolfman30/skinovation-clinic/internal/identity"
	"github.com/wolfman30/skinovation-clinic/internal/notify"
	"github.com/wolfman30/skinovation-clinic/internal/observability/metrics"
	"github.com/wolfman30/skinovation-clinic/pkg/logging"
)

var appointmentsTracer = otel.Tracer("clinic.internal.appointments")

const (
	defaultSlotCapacity       = 3
	defaultCancellationNotice = 2
	maxTransactionIDAttempts  = 5
)

// Service runs the booking workflow and the appointment lifecycle.
type Service struct {
	store      Store
	roster     attendants.Repository
	directory  accounts.Directory
	catalog    catalog.Catalog
	dispatcher *notify.Dispatcher
	hub        *notify.Hub
	audit      history.Recorder
	metrics    *metrics.BookingMetrics
	logger     *logging.Logger

	capacity   int
	noticeDays int
	loc        *time.Location
	now        func() time.Time
	newTxID    func() string
}

// Option configures a Service.
type Option func(*Service)

// WithDispatcher enables SMS and email fan-out after commit.
func WithDispatcher(d *notify.Dispatcher) Option {
	return func(s *Service) { s.dispatcher = d }
}

// WithHub pushes committed notifications to live websocket clients.
func WithHub(h *notify.Hub) Option {
	return func(s *Service) { s.hub = h }
}

// WithAudit records staff actions in the history trail.
func WithAudit(r history.Recorder) Option {
	return func(s *Service) { s.audit = r }
}

// WithMetrics records booking attempts and transitions.
func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithSlotCapacity overrides the per-slot limit of active appointments.
func WithSlotCapacity(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithCancellationNotice overrides the minimum whole days between a
// cancellation request and the appointment.
func WithCancellationNotice(days int) Option {
	return func(s *Service) {
		if days >= 0 {
			s.noticeDays = days
		}
	}
}

// WithLocation sets the clinic time zone used to interpret dates and times.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the appointment workflow.
func NewService(store Store, roster attendants.Repository, directory accounts.Directory, items catalog.Catalog, logger *logging.Logger, opts ...Option) *Service {
	if store == nil {
		panic("appointments: store required")
	}
	if roster == nil {
		panic("appointments: attendant roster required")
	}
	if directory == nil {
		panic("appointments: account directory required")
	}
	if items == nil {
		panic("appointments: catalog required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		store:      store,
		roster:     roster,
		directory:  directory,
		catalog:    items,
		logger:     logger,
		capacity:   defaultSlotCapacity,
		noticeDays: defaultCancellationNotice,
		loc:        time.UTC,
		now:        time.Now,
		newTxID:    NewTransactionID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// staffAttendant returns the roster entry linked to an attendant principal.
func (s *Service) staffAttendant(ctx context.Context, actor identity.Principal) (*attendants.Attendant, error) {
	user, err := s.directory.Get(ctx, actor.UserID)
	if errors.Is(err, accounts.ErrUserNotFound) {
		return nil, forbidden(MsgNoAttendantLink)
	}
	if err != nil {
		return nil, err
	}
	a, err := s.roster.FindByName(ctx, user.FirstName, user.LastName)
	if errors.Is(err, attendants.ErrNotFound) {
		return nil, forbidden(MsgNoAttendantLink)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// authorizeStaff rejects non-staff actors and attendants acting on
// appointments assigned to someone else.
func (s *Service) authorizeStaff(ctx context.Context, actor identity.Principal, appt *Appointment) error {
	if !actor.Role.Staff() {
		return forbidden(MsgNotPermitted)
	}
	if actor.Role != identity.RoleAttendant {
		return nil
	}
	a, err := s.staffAttendant(ctx, actor)
	if err != nil {
		return err
	}
	if a.ID != appt.AttendantID {
		return forbidden(MsgNotAssigned)
	}
	return nil
}

// scheduleFor resolves the schedule profile of a roster attendant through
// the matching attendant user account. A nil profile means always available.
func (s *Service) scheduleFor(ctx context.Context, a *attendants.Attendant) (*accounts.ScheduleProfile, *accounts.User, error) {
	user, err := s.directory.FindAttendantUser(ctx, a.FirstName, a.LastName)
	if errors.Is(err, accounts.ErrUserNotFound) || errors.Is(err, accounts.ErrAmbiguousUser) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("appointments: attendant account lookup: %w", err)
	}
	profile, err := s.directory.ScheduleProfile(ctx, user.ID)
	if errors.Is(err, accounts.ErrProfileNotFound) {
		return nil, user, nil
	}
	if err != nil {
		return nil, user, fmt.Errorf("appointments: schedule profile lookup: %w", err)
	}
	return profile, user, nil
}

// checkSchedule returns a conflict when profile excludes the slot.
func checkSchedule(profile *accounts.ScheduleProfile, name string, date time.Time, at calendar.Clock) error {
	if profile == nil {
		return nil
	}
	if !profile.WorksOn(date.Weekday()) {
		return conflict("%s", msgDayUnavailable(name, date.Weekday()))
	}
	if !profile.Covers(at) {
		return conflict("%s", msgTimeUnavailable(name, profile.Start, profile.End))
	}
	return nil
}

func (s *Service) itemName(ctx context.Context, ref catalog.Ref) string {
	item, err := s.catalog.Lookup(ctx, ref)
	if err != nil {
		return string(ref.Kind)
	}
	return item.Name
}

func (s *Service) patientName(ctx context.Context, id uuid.UUID) string {
	u, err := s.directory.Get(ctx, id)
	if err != nil {
		return "A patient"
	}
	return u.FullName()
}

// fanOut publishes committed notifications to live clients.
func (s *Service) fanOut(notes []*notify.Notification) {
	for _, n := range notes {
		s.hub.Publish(*n)
	}
}

// sms attempts a text message and reports whether it went out.
func (s *Service) sms(ctx context.Context, to string, body string, appointmentID uuid.UUID) bool {
	if s.dispatcher == nil {
		return false
	}
	return s.dispatcher.Deliver(ctx, notify.Outbound{
		Channel:       notify.ChannelSMS,
		To:            to,
		Body:          body,
		AppointmentID: &appointmentID,
	})
}

// emailOwners sends subject/body to every active owner.
func (s *Service) emailOwners(ctx context.Context, subject, body string, appointmentID uuid.UUID) {
	if s.dispatcher == nil {
		return
	}
	owners, err := s.directory.ActiveOwners(ctx)
	if err != nil {
		s.logger.Warn("owner lookup failed", "error", err, "appointment_id", appointmentID)
		return
	}
	for _, o := range owners {
		s.dispatcher.Deliver(ctx, notify.Outbound{
			Channel:       notify.ChannelEmail,
			To:            o.Email,
			ToName:        o.FullName(),
			Subject:       subject,
			Body:          body,
			AppointmentID: &appointmentID,
		})
	}
}

func (s *Service) record(ctx context.Context, entry history.Entry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, entry); err != nil {
		s.logger.Warn("history entry not recorded", "error", err, "action", entry.Action, "type", entry.Type)
	}
}

// bookedFacts are the parts of an appointment that never change after
// booking: item, patient and attendant. They are read on the pool before a
// transaction opens; callbacks passed to WithinTx only query through tx.
type bookedFacts struct {
	appt     *Appointment
	itemName string
}

func (s *Service) loadFacts(ctx context.Context, id uuid.UUID) (*bookedFacts, error) {
	appt, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, notFound(MsgAppointmentNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &bookedFacts{appt: appt, itemName: s.itemName(ctx, appt.Item)}, nil
}

// loadOwnFacts is loadFacts for the appointment's own patient. Other
// patients get not-found so they cannot discover appointment ids.
func (s *Service) loadOwnFacts(ctx context.Context, actor identity.Principal, id uuid.UUID) (*bookedFacts, error) {
	if actor.Role != identity.RolePatient {
		return nil, forbidden(MsgNotPermitted)
	}
	facts, err := s.loadFacts(ctx, id)
	if err != nil {
		return nil, err
	}
	if facts.appt.PatientID != actor.UserID {
		return nil, notFound(MsgAppointmentNotFound)
	}
	return facts, nil
}

func lookupAppointment(ctx context.Context, tx Tx, id uuid.UUID) (*Appointment, error) {
	appt, err := tx.GetForUpdate(ctx, id)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, notFound(MsgAppointmentNotFound)
	}
	return appt, err
}
