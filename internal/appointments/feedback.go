package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/wolfman30/skinovation-clinic/internal/identity"
	"github.com/wolfman30/skinovation-clinic/internal/notify"
)

// FeedbackInput is the patient's rating form.
type FeedbackInput struct {
	Rating          int    `json:"rating"`
	AttendantRating *int   `json:"attendant_rating,omitempty"`
	Comment         string `json:"comment"`
}

func (in FeedbackInput) validate() error {
	if in.Rating == 0 {
		return validation(MsgFeedbackRatingMissing)
	}
	if in.Rating < 1 || in.Rating > 5 {
		return validation(MsgFeedbackRatingRange)
	}
	if in.AttendantRating != nil && (*in.AttendantRating < 1 || *in.AttendantRating > 5) {
		return validation(MsgAttendantRatingRange)
	}
	return nil
}

// SubmitFeedback stores the single rating a patient may leave for a
// completed appointment.
func (s *Service) SubmitFeedback(ctx context.Context, actor identity.Principal, id uuid.UUID, in FeedbackInput) (*Feedback, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.submit_feedback")
	defer span.End()

	if err := in.validate(); err != nil {
		return nil, err
	}
	facts, err := s.loadOwnFacts(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	patientName := s.patientName(ctx, actor.UserID)

	var (
		fb   *Feedback
		note notify.Notification
	)
	err = s.store.WithinTx(ctx, func(tx Tx) error {
		appt, err := ownAppointment(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		if appt.Status != StatusCompleted {
			return conflict(MsgFeedbackNotCompleted)
		}
		fb = &Feedback{
			AppointmentID:   appt.ID,
			PatientID:       actor.UserID,
			AttendantID:     appt.AttendantID,
			Rating:          in.Rating,
			AttendantRating: in.AttendantRating,
			Comment:         strings.TrimSpace(in.Comment),
		}
		if err := tx.InsertFeedback(ctx, fb); err != nil {
			if errors.Is(err, ErrDuplicateFeedback) {
				return conflict(MsgFeedbackDuplicate)
			}
			return err
		}
		apptID := appt.ID
		note = notify.ToOwners(notify.TypeFeedback, "New Feedback",
			fmt.Sprintf("%s rated %s %d/5.", patientName, facts.itemName, in.Rating),
			&apptID)
		return tx.Notify(ctx, &note)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("feedback submitted", "appointment_id", fb.AppointmentID, "rating", fb.Rating)
	s.fanOut([]*notify.Notification{&note})
	return fb, nil
}

// ListFeedback returns feedback for staff. Attendants only see ratings of
// their own appointments; managers may filter by attendant.
func (s *Service) ListFeedback(ctx context.Context, actor identity.Principal, attendantID *uuid.UUID) ([]Feedback, error) {
	if !actor.Role.Staff() {
		return nil, forbidden(MsgNotPermitted)
	}
	if actor.Role == identity.RoleAttendant {
		a, err := s.staffAttendant(ctx, actor)
		if err != nil {
			return nil, err
		}
		attendantID = &a.ID
	}
	return s.store.ListFeedback(ctx, attendantID)
}
