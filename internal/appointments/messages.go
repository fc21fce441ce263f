package appointments

import (
	"fmt"
	"time"

	"github.com/wolfman30/skinovation-clinic/internal/calendar"
)

// Patient-facing texts shared by the service and the HTTP layer.
const (
	MsgRequiredFields        = "Please fill in all required fields."
	MsgNoAttendants          = "No attendants available. Please contact the clinic."
	MsgSlotFull              = "This time slot is fully booked. Please choose another time."
	MsgAppointmentNotFound   = "Appointment not found."
	MsgRequestNotFound       = "Request not found."
	MsgRequestProcessed      = "This request has already been processed."
	MsgNotPermitted          = "You do not have permission to perform this action."
	MsgNotAssigned           = "You can only manage appointments assigned to you."
	MsgNoAttendantLink       = "Your account is not linked to an attendant."
	MsgCannotCancel          = "This appointment cannot be cancelled."
	MsgCannotReschedule      = "This appointment cannot be rescheduled."
	MsgCancellationPending   = "A cancellation request for this appointment is already pending."
	MsgRescheduleFields      = "Please provide both new date and time."
	MsgCancellationSubmitted = "Your cancellation request has been submitted. The staff will review it shortly."
	MsgRescheduleSubmitted   = "Your reschedule request has been submitted. The staff will review it shortly."
	MsgFeedbackNotCompleted  = "Feedback can only be submitted for completed appointments."
	MsgFeedbackRatingMissing = "Please provide a rating for the appointment."
	MsgFeedbackRatingRange   = "Appointment rating must be between 1 and 5."
	MsgAttendantRatingRange  = "Attendant rating must be between 1 and 5."
	MsgFeedbackDuplicate     = "You have already submitted feedback for this appointment."
	MsgFeedbackThanks        = "Thank you for your feedback!"
)

const displayDateLayout = "January 2, 2006"

func displayDate(d time.Time) string {
	return d.Format(displayDateLayout)
}

func msgDayUnavailable(name string, day time.Weekday) string {
	return fmt.Sprintf("%s is not available on %s. Please choose another day or attendant.", name, day)
}

func msgTimeUnavailable(name string, start, end calendar.Clock) string {
	return fmt.Sprintf("Appointment time must be between %s and %s for %s.", start.Kitchen(), end.Kitchen(), name)
}

func msgOutOfStock(product string) string {
	return fmt.Sprintf("Sorry, %s is currently out of stock. Please check back later or contact the clinic.", product)
}

func msgCancellationTooLate(days int) string {
	return fmt.Sprintf("Cancellation is not allowed within %d days of the appointment. Please contact the clinic directly.", days)
}

func smsClause(sent bool) string {
	if sent {
		return "SMS confirmation sent."
	}
	return "(SMS notification failed)"
}

func bookedVerb(status Status) string {
	if status == StatusConfirmed {
		return "confirmed"
	}
	return "booked"
}

func bookingResultMessage(kind string, status Status, smsSent bool, txID string) string {
	switch kind {
	case "product":
		return fmt.Sprintf("Product pre-ordered successfully! %s Transaction ID: %s", smsClause(smsSent), txID)
	case "package":
		return fmt.Sprintf("Package %s successfully! %s Transaction ID: %s", bookedVerb(status), smsClause(smsSent), txID)
	}
	if status == StatusConfirmed {
		return fmt.Sprintf("Appointment confirmed automatically! %s Transaction ID: %s", smsClause(smsSent), txID)
	}
	return fmt.Sprintf("Appointment booked successfully! %s Transaction ID: %s", smsClause(smsSent), txID)
}
