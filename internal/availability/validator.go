package availability

import "time"

// ValidateSlot decides whether req is bookable given the doctor's availability
// and the intervals of its active reservations. Checks run in a fixed order:
// interval shape, reservation overlap, working hours, unavailability.
func ValidateSlot(av Availability, active []Interval, req Interval) error {
	if err := req.Validate(); err != nil {
		return err
	}

	for _, a := range active {
		if req.Overlaps(a) {
			return ErrSlotConflict
		}
	}

	if !withinWorkingHours(av, req) {
		return ErrOutsideWorkingHours
	}

	for _, w := range av.Unavailability {
		if req.Overlaps(w.Interval()) {
			return ErrDoctorUnavailable
		}
	}

	return nil
}

func withinWorkingHours(av Availability, req Interval) bool {
	loc := av.location()
	start := req.Start.In(loc)
	end := req.End.In(loc)

	// start rounds down and end rounds up so the checked range covers the request
	startMin := ClockTime(start.Hour()*60 + start.Minute())
	endMin, ok := clockOfEnd(start, end)
	if !ok {
		return false
	}

	day := Weekday(start.Weekday())
	for _, e := range av.Schedule {
		if e.Day != day || startMin < e.StartTime || endMin > e.EndTime {
			continue
		}
		if hitsBreak(e, startMin, endMin) {
			continue
		}
		return true
	}
	return false
}

// clockOfEnd maps end onto the clock of start's day. An end at exactly
// midnight of the following day is 24:00; anything later spans days.
func clockOfEnd(start, end time.Time) (ClockTime, bool) {
	sy, sm, sd := start.Date()
	ey, em, ed := end.Date()
	sub := end.Second()*int(time.Second) + end.Nanosecond()

	if sy == ey && sm == em && sd == ed {
		c := ClockTime(end.Hour()*60 + end.Minute())
		if sub > 0 {
			c++
		}
		return c, true
	}

	next := time.Date(sy, sm, sd+1, 0, 0, 0, 0, start.Location())
	if end.Equal(next) {
		return MinutesPerDay, true
	}
	return 0, false
}

func hitsBreak(e DayEntry, startMin, endMin ClockTime) bool {
	for _, b := range e.Breaks {
		if startMin < b.End && b.Start < endMin {
			return true
		}
	}
	return false
}
