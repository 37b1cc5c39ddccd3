package scheduling

import (
	"fmt"
	"strings"
	"time"
)

// Date is a calendar date with no time zone. Clinics book in local civil time.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

// FormatError reports a date or time of day that failed to parse.
type FormatError struct {
	Kind  string // "date" or "time"
	Value string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("scheduling: invalid %s %q", e.Kind, e.Value)
}

// Hint describes the accepted format.
func (e *FormatError) Hint() string {
	if e.Kind == "date" {
		return "must be YYYY-MM-DD"
	}
	return "must be HH:MM"
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, &FormatError{Kind: "date", Value: s}
	}
	return DateOf(t), nil
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Time returns midnight UTC on d.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) Weekday() time.Weekday { return d.Time().Weekday() }

func (d Date) IsZero() bool { return d.Year == 0 && d.Month == 0 && d.Day == 0 }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time().Format(dateLayout)
}

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Clock is a time of day expressed in minutes after midnight.
type Clock int

const minutesPerDay = 24 * 60

// NewClock builds a Clock from an hour and minute.
func NewClock(hour, minute int) Clock { return Clock(hour*60 + minute) }

// ParseClock accepts HH:MM or HH:MM:SS.
func ParseClock(s string) (Clock, error) {
	trimmed := strings.TrimSpace(s)
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return NewClock(t.Hour(), t.Minute()), nil
		}
	}
	return 0, &FormatError{Kind: "time", Value: s}
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

// Valid reports whether c falls inside a single day.
func (c Clock) Valid() bool { return c >= 0 && c < minutesPerDay }

// Add returns c shifted by the given number of minutes.
func (c Clock) Add(minutes int) Clock { return c + Clock(minutes) }

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute()) }

func (c Clock) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Clock) UnmarshalText(b []byte) error {
	parsed, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// WorkingHours is the opening window for one weekday.
type WorkingHours struct {
	ClinicID string       `json:"-"`
	Weekday  time.Weekday `json:"weekday"`
	Open     Clock        `json:"open"`
	Close    Clock        `json:"close"`
	Active   bool         `json:"active"`
}

// Contains reports whether the start time c falls inside the window.
func (w *WorkingHours) Contains(c Clock) bool {
	return w != nil && w.Active && c >= w.Open && c < w.Close
}

// BlockKind distinguishes weekly blocks from one-off blocks.
type BlockKind string

const (
	BlockRecurring BlockKind = "recurring"
	BlockSpecific  BlockKind = "specific"
)

func (k BlockKind) Valid() bool { return k == BlockRecurring || k == BlockSpecific }

// Block is a span during which booking is disallowed.
type Block struct {
	ID           string    `json:"id"`
	ClinicID     string    `json:"-"`
	Title        string    `json:"title"`
	Kind         BlockKind `json:"kind"`
	DayOfWeek    *int      `json:"day_of_week,omitempty"`
	SpecificDate *Date     `json:"specific_date,omitempty"`
	Start        Clock     `json:"start_time"`
	End          Clock     `json:"end_time"`
	CreatedAt    time.Time `json:"created_at"`
}

// AppliesOn reports whether the block is in force on d.
func (b *Block) AppliesOn(d Date) bool {
	switch b.Kind {
	case BlockRecurring:
		return b.DayOfWeek != nil && time.Weekday(*b.DayOfWeek) == d.Weekday()
	case BlockSpecific:
		return b.SpecificDate != nil && *b.SpecificDate == d
	default:
		return false
	}
}

// Covers reports whether the minute c lies inside [Start, End).
func (b *Block) Covers(c Clock) bool { return c >= b.Start && c < b.End }

// Overlaps reports whether [start, start+duration) intersects the block.
func (b *Block) Overlaps(start Clock, duration int) bool {
	return overlaps(start, start.Add(duration), b.Start, b.End)
}

// AppointmentStatus is the lifecycle state of an appointment.
type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

// Origin records which entry point created an appointment.
type Origin string

const (
	OriginDirect         Origin = "direct"
	OriginConversational Origin = "conversational"
)

func (o Origin) Valid() bool { return o == OriginDirect || o == OriginConversational }

// Appointment is a booked slot.
type Appointment struct {
	ID          string            `json:"id"`
	ClinicID    string            `json:"-"`
	PatientID   int64             `json:"patient_id"`
	Date        Date              `json:"date"`
	Time        Clock             `json:"time"`
	Duration    int               `json:"duration"`
	ProcedureID *int64            `json:"procedure_id,omitempty"`
	Status      AppointmentStatus `json:"status"`
	Notes       string            `json:"notes,omitempty"`
	Origin      Origin            `json:"origin"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// End is the first minute after the appointment.
func (a *Appointment) End() Clock { return a.Time.Add(a.Duration) }

// Covers reports whether the minute c lies inside [Time, Time+Duration).
func (a *Appointment) Covers(c Clock) bool { return c >= a.Time && c < a.End() }

// Active reports whether the appointment holds its slot.
func (a *Appointment) Active() bool { return a.Status != StatusCancelled }

// PaymentRecord snapshots the procedure price at booking time. Amount is in
// cents and never changes after creation.
type PaymentRecord struct {
	ID            string    `json:"id"`
	ClinicID      string    `json:"-"`
	AppointmentID string    `json:"appointment_id"`
	ProcedureID   int64     `json:"procedure_id"`
	ProcedureName string    `json:"procedure_name"`
	AmountCents   int64     `json:"amount_cents"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

func overlaps(aStart, aEnd, bStart, bEnd Clock) bool {
	return aStart < bEnd && bStart < aEnd
}
