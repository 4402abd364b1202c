// Package domain defines the persistence models for bookings, the two
// calendar layers (date schedule and time slots), and the anti-abuse
// records. These types are mapped with GORM and form the core data layer
// of the studio booking application.
package domain

import (
	"fmt"
	"time"
)

// Service identifies one of the studio's offered services.
type Service string

// Offered services. The set mirrors the public price list.
const (
	ServiceRecording    Service = "recording"
	ServiceMixing       Service = "mixing"
	ServiceMastering    Service = "mastering"
	ServiceProduction   Service = "production"
	ServiceVocalCleanup Service = "vocal_cleanup"
	ServiceVocalTuning  Service = "vocal_tuning"
	ServiceHourly       Service = "hourly"
	ServiceDaily        Service = "daily"
)

// ValidService reports whether s is one of the offered services.
func ValidService(s Service) bool {
	switch s {
	case ServiceRecording, ServiceMixing, ServiceMastering, ServiceProduction,
		ServiceVocalCleanup, ServiceVocalTuning, ServiceHourly, ServiceDaily:
		return true
	}
	return false
}

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

// Booking lifecycle states. A booking starts pending and is moved to
// confirmed or cancelled by an operator or a mail-link action.
const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCancelled BookingStatus = "cancelled"
)

// ValidStatus reports whether st is a known booking status.
func ValidStatus(st BookingStatus) bool {
	switch st {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

// Date and time-of-day layouts used throughout the schedule tables.
// Dates and slot times are stored as strings so that they key naturally
// against the fixed hourly grid ("15:04" never carries seconds or zones).
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Working window and hourly grid of the studio. The grid runs 09:00–21:00
// inclusive (13 slots per day); the last admissible end of a session is 21:30.
const (
	OpeningHour    = 9
	ClosingHour    = 21
	ClosingMinute  = 30
	SlotsPerDay    = ClosingHour - OpeningHour + 1
	MinDurationHrs = 1
	MaxDurationHrs = 6
)

// GridTimes returns the fixed hourly grid ("09:00".."21:00") for one day.
func GridTimes() []string {
	out := make([]string, 0, SlotsPerDay)
	for h := OpeningHour; h <= ClosingHour; h++ {
		out = append(out, fmt.Sprintf("%02d:00", h))
	}
	return out
}

// Booking represents a single session request submitted through the site.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Name/Email/Phone: client contact details.
//   - Service: one of the offered services.
//   - Date/Time: session start, date as "2006-01-02", time as "15:04".
//   - DurationHours: contiguous session length in hours (validated at submission).
//   - Status: pending | confirmed | cancelled; changed only through the
//     booking service's transition path.
//   - SourceIP/UserAgent/Suspicious/SpamScore: anti-abuse bookkeeping.
//   - ConfirmToken/RejectToken: one-click mail-link secrets.
//   - EmailSent/EmailSentAt: studio notification bookkeeping.
type Booking struct {
	ID            string        `json:"id"             gorm:"type:char(36);primaryKey"`
	Name          string        `json:"name"           gorm:"type:varchar(100);not null"`
	Email         string        `json:"email"          gorm:"type:varchar(254);not null;index"`
	Phone         string        `json:"phone"          gorm:"type:varchar(20);not null"`
	Service       Service       `json:"service"        gorm:"type:varchar(20);not null"`
	Date          string        `json:"date"           gorm:"type:char(10);not null;index:idx_booking_day,priority:1"`
	Time          string        `json:"time"           gorm:"type:char(5);not null;index:idx_booking_day,priority:2"`
	DurationHours int           `json:"duration_hours" gorm:"not null;default:1"`
	Message       string        `json:"message"        gorm:"type:text"`
	Status        BookingStatus `json:"status"         gorm:"type:varchar(20);not null;default:'pending';index"`
	CreatedAt     time.Time     `json:"created_at"     gorm:"index"`
	UpdatedAt     time.Time     `json:"updated_at"`

	SourceIP   string `json:"-" gorm:"type:varchar(45);index"`
	UserAgent  string `json:"-" gorm:"type:text"`
	Suspicious bool   `json:"-" gorm:"not null;default:false"`
	SpamScore  int    `json:"-" gorm:"not null;default:0"`

	ConfirmToken string     `json:"-" gorm:"type:char(36);uniqueIndex"`
	RejectToken  string     `json:"-" gorm:"type:char(36);uniqueIndex"`
	EmailSent    bool       `json:"-" gorm:"not null;default:false"`
	EmailSentAt  *time.Time `json:"-"`
}

// TableName returns the database table name for Booking.
func (Booking) TableName() string { return "bookings" }

// EndTime returns the session end as "15:04" (start + duration hours).
// The working-window invariant is enforced at submission, so the result
// never wraps past midnight for a persisted booking.
func (b *Booking) EndTime() string {
	t, err := time.Parse(TimeLayout, b.Time)
	if err != nil {
		return b.Time
	}
	return t.Add(time.Duration(b.DurationHours) * time.Hour).Format(TimeLayout)
}

// StartsAt combines Date and Time into a time.Time in loc.
func (b *Booking) StartsAt(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout+" "+TimeLayout, b.Date+" "+b.Time, loc)
}

// DateSchedule is a calendar-day-level availability override. Absence of a
// record for a date means the date is open (default-open policy). Records are
// created and updated only by operator actions, never by the booking flow.
type DateSchedule struct {
	ID            string    `json:"id"             gorm:"type:char(36);primaryKey"`
	Date          string    `json:"date"           gorm:"type:char(10);not null;uniqueIndex"`
	IsBlocked     bool      `json:"is_blocked"     gorm:"not null;default:false"`
	IsHoliday     bool      `json:"is_holiday"     gorm:"not null;default:false"`
	IsMaintenance bool      `json:"is_maintenance" gorm:"not null;default:false"`
	Reason        string    `json:"reason"         gorm:"type:varchar(255)"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for DateSchedule.
func (DateSchedule) TableName() string { return "date_schedules" }

// Unavailable reports whether the date is closed for booking. Only the
// blocked flag closes a day; holiday and maintenance are annotations an
// operator sets alongside it.
func (d *DateSchedule) Unavailable() bool {
	return d.IsBlocked
}

// TimeSlot tracks the blocked/booked state of one (date, time) cell on the
// hourly grid. Slots are created lazily on first block or reservation and are
// never deleted on unblock, so the reason field keeps its audit history.
//
// BookingID is a weak back-reference to the booking that reserved the slot:
// it is cleared (not cascaded) when the booking is deleted or released.
type TimeSlot struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Date      string    `json:"date"       gorm:"type:char(10);not null;uniqueIndex:ux_slot_date_time,priority:1"`
	Time      string    `json:"time"       gorm:"type:char(5);not null;uniqueIndex:ux_slot_date_time,priority:2"`
	IsBlocked bool      `json:"is_blocked" gorm:"not null;default:false"`
	IsBooked  bool      `json:"is_booked"  gorm:"not null;default:false"`
	BookingID *string   `json:"booking_id,omitempty" gorm:"type:char(36);index"`
	Reason    string    `json:"reason"     gorm:"type:varchar(255)"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Booking *Booking `json:"-" gorm:"foreignKey:BookingID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

// TableName returns the database table name for TimeSlot.
func (TimeSlot) TableName() string { return "time_slots" }

// Available reports whether the slot can accept a new reservation.
func (s *TimeSlot) Available() bool { return !s.IsBlocked && !s.IsBooked }

// AbuseRecord tracks booking activity per source IP. Blocking is a one-way
// escalation: once the booking count crosses the configured threshold the
// record stays blocked until an operator clears it.
type AbuseRecord struct {
	ID           string    `json:"id"            gorm:"type:char(36);primaryKey"`
	IP           string    `json:"ip"            gorm:"type:varchar(45);not null;uniqueIndex"`
	BookingCount int       `json:"booking_count" gorm:"not null;default:0"`
	IsBlocked    bool      `json:"is_blocked"    gorm:"not null;default:false"`
	BlockReason  string    `json:"block_reason"  gorm:"type:varchar(255)"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"     gorm:"index"`
}

// TableName returns the database table name for AbuseRecord.
func (AbuseRecord) TableName() string { return "abuse_records" }

// AttemptKind classifies a rejected booking attempt.
type AttemptKind string

// Rejected-attempt kinds recorded in the audit log.
const (
	AttemptRateLimit  AttemptKind = "rate_limit"
	AttemptDuplicate  AttemptKind = "duplicate"
	AttemptHoneypot   AttemptKind = "honeypot"
	AttemptSuspicious AttemptKind = "suspicious"
)

// AttemptLog is an append-only audit record of a rejected booking attempt.
// Rows are never mutated after creation.
type AttemptLog struct {
	ID        string      `json:"id"         gorm:"type:char(36);primaryKey"`
	IP        string      `json:"ip"         gorm:"type:varchar(45);not null;index"`
	UserAgent string      `json:"user_agent" gorm:"type:text"`
	Kind      AttemptKind `json:"kind"       gorm:"type:varchar(20);not null;index"`
	Detail    string      `json:"detail"     gorm:"type:text"`
	CreatedAt time.Time   `json:"created_at" gorm:"index"`
}

// TableName returns the database table name for AttemptLog.
func (AttemptLog) TableName() string { return "attempt_logs" }
