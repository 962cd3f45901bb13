package availability

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// MinutesPerDay is also the largest valid ClockTime ("24:00").
const MinutesPerDay = 24 * 60

// ClockTime is a wall-clock time of day in minutes since midnight.
type ClockTime int

func ParseClock(s string) (ClockTime, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("clock time %q must be HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("clock time %q: bad hour", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || len(mm) != 2 {
		return 0, fmt.Errorf("clock time %q: bad minute", s)
	}
	c := ClockTime(h*60 + m)
	if h < 0 || m < 0 || m > 59 || c > MinutesPerDay {
		return 0, fmt.Errorf("clock time %q out of range", s)
	}
	return c, nil
}

// MustClock parses s and panics on error. Intended for fixtures.
func MustClock(s string) ClockTime {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("clock time must be a string: %w", err)
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Weekday marshals as its English name ("Monday").
type Weekday time.Weekday

func ParseWeekday(s string) (Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), s) {
			return Weekday(d), nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

func (d Weekday) String() string {
	return time.Weekday(d).String()
}

func (d Weekday) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Weekday) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("weekday must be a string: %w", err)
	}
	parsed, err := ParseWeekday(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

type Break struct {
	Start ClockTime `json:"breakStart"`
	End   ClockTime `json:"breakEnd"`
}

// DayEntry is one block of working hours on a weekday.
type DayEntry struct {
	Day       Weekday   `json:"day"`
	StartTime ClockTime `json:"startTime"`
	EndTime   ClockTime `json:"endTime"`
	Breaks    []Break   `json:"breaks"`
}

// EntryPatch holds the fields to merge into an existing DayEntry. Nil fields are kept.
type EntryPatch struct {
	Day       *Weekday   `json:"day,omitempty"`
	StartTime *ClockTime `json:"startTime,omitempty"`
	EndTime   *ClockTime `json:"endTime,omitempty"`
	Breaks    *[]Break   `json:"breaks,omitempty"`
}

func (e DayEntry) Apply(p EntryPatch) DayEntry {
	out := e.clone()
	if p.Day != nil {
		out.Day = *p.Day
	}
	if p.StartTime != nil {
		out.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		out.EndTime = *p.EndTime
	}
	if p.Breaks != nil {
		out.Breaks = append([]Break(nil), (*p.Breaks)...)
	}
	return out
}

func (e DayEntry) clone() DayEntry {
	e.Breaks = append([]Break(nil), e.Breaks...)
	return e
}

func (e DayEntry) Validate() error {
	if e.Day < Weekday(time.Sunday) || e.Day > Weekday(time.Saturday) {
		return ErrInvalidSchedule.WithDetail("invalid day %d", int(e.Day))
	}
	if e.StartTime < 0 || e.EndTime > MinutesPerDay || e.StartTime >= e.EndTime {
		return ErrInvalidSchedule.WithDetail("%s: startTime %s must be before endTime %s", e.Day, e.StartTime, e.EndTime)
	}
	for i, b := range e.Breaks {
		if b.Start >= b.End {
			return ErrInvalidSchedule.WithDetail("%s: break %s-%s is empty or inverted", e.Day, b.Start, b.End)
		}
		if b.Start < e.StartTime || b.End > e.EndTime {
			return ErrInvalidSchedule.WithDetail("%s: break %s-%s outside %s-%s", e.Day, b.Start, b.End, e.StartTime, e.EndTime)
		}
		for _, other := range e.Breaks[i+1:] {
			if b.Start < other.End && other.Start < b.End {
				return ErrInvalidSchedule.WithDetail("%s: breaks %s-%s and %s-%s overlap", e.Day, b.Start, b.End, other.Start, other.End)
			}
		}
	}
	return nil
}

// WeeklySchedule is the ordered list of a doctor's working blocks.
type WeeklySchedule []DayEntry

func (ws WeeklySchedule) Validate() error {
	for i, e := range ws {
		if err := e.Validate(); err != nil {
			return err
		}
		for _, other := range ws[i+1:] {
			if other.Day == e.Day && e.StartTime < other.EndTime && other.StartTime < e.EndTime {
				return ErrInvalidSchedule.WithDetail("%s: entries %s-%s and %s-%s overlap",
					e.Day, e.StartTime, e.EndTime, other.StartTime, other.EndTime)
			}
		}
	}
	return nil
}

func (ws WeeklySchedule) Clone() WeeklySchedule {
	if ws == nil {
		return nil
	}
	out := make(WeeklySchedule, len(ws))
	for i, e := range ws {
		out[i] = e.clone()
	}
	return out
}

// Window is an ad-hoc unavailability period.
type Window struct {
	ID    uuid.UUID `json:"id"`
	Start time.Time `json:"startDate"`
	End   time.Time `json:"endDate"`
}

func (w Window) Interval() Interval {
	return Interval{Start: w.Start, End: w.End}
}

// Availability is everything the slot validator needs to know about a doctor.
type Availability struct {
	DoctorID       uuid.UUID      `json:"doctorId"`
	Schedule       WeeklySchedule `json:"weeklySchedule"`
	Version        int            `json:"version"`
	Unavailability []Window       `json:"unavailability"`
	Location       *time.Location `json:"-"`
}

func (a Availability) location() *time.Location {
	if a.Location == nil {
		return time.UTC
	}
	return a.Location
}
