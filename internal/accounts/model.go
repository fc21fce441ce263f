package accounts

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/skinovation-clinic/internal/calendar"
	"github.com/wolfman30/skinovation-clinic/internal/identity"
)

// User is a clinic account of any role.
type User struct {
	ID        uuid.UUID     `json:"id"`
	FirstName string        `json:"first_name"`
	LastName  string        `json:"last_name"`
	Email     string        `json:"email,omitempty"`
	Phone     string        `json:"phone,omitempty"`
	Role      identity.Role `json:"role"`
	Active    bool          `json:"active"`
}

// FullName joins first and last name, tolerating either being blank.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// ScheduleProfile gates when an attendant accepts bookings.
type ScheduleProfile struct {
	UserID    uuid.UUID      `json:"user_id"`
	WorkDays  []time.Weekday `json:"work_days"`
	Start     calendar.Clock `json:"start_time"`
	End       calendar.Clock `json:"end_time"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// WorksOn reports whether day is one of the profile's work days.
func (p ScheduleProfile) WorksOn(day time.Weekday) bool {
	for _, d := range p.WorkDays {
		if d == day {
			return true
		}
	}
	return false
}

// Covers reports whether at falls inside [Start, End).
func (p ScheduleProfile) Covers(at calendar.Clock) bool {
	return at >= p.Start && at < p.End
}

// Admits combines WorksOn and Covers.
func (p ScheduleProfile) Admits(day time.Weekday, at calendar.Clock) bool {
	return p.WorksOn(day) && p.Covers(at)
}

// DayNames renders WorkDays as English day names in stored order.
func (p ScheduleProfile) DayNames() []string {
	names := make([]string, 0, len(p.WorkDays))
	for _, d := range p.WorkDays {
		names = append(names, d.String())
	}
	return names
}

// Validate checks the window is non-empty and at least one day is set.
func (p ScheduleProfile) Validate() error {
	if len(p.WorkDays) == 0 {
		return fmt.Errorf("%w: at least one work day is required", ErrInvalidProfile)
	}
	if p.Start >= p.End {
		return fmt.Errorf("%w: start time must be before end time", ErrInvalidProfile)
	}
	return nil
}

// ParseDayNames maps English day names onto weekdays.
func ParseDayNames(names []string) ([]time.Weekday, error) {
	days := make([]time.Weekday, 0, len(names))
	for _, name := range names {
		d, ok := calendar.ParseWeekday(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown work day %q", ErrInvalidProfile, name)
		}
		days = append(days, d)
	}
	return days, nil
}
