package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const maxScheduleWriteAttempts = 3

// Store persists a doctor's schedule and unavailability windows.
type Store interface {
	GetAvailability(ctx context.Context, doctorID uuid.UUID) (*Availability, error)

	// SaveSchedule replaces the schedule if the stored version still equals
	// expectedVersion and returns the new version. Otherwise ErrScheduleVersion.
	SaveSchedule(ctx context.Context, doctorID uuid.UUID, schedule WeeklySchedule, expectedVersion int) (int, error)

	AddUnavailability(ctx context.Context, doctorID uuid.UUID, w Window) (*Window, error)

	// BookedWithin lists booked appointment ids of the doctor overlapping iv.
	BookedWithin(ctx context.Context, doctorID uuid.UUID, iv Interval) ([]uuid.UUID, error)
}

// UnavailabilityResult is the stored window plus the booked appointments it
// overlaps. Those appointments are left in place.
type UnavailabilityResult struct {
	Window      Window      `json:"window"`
	Overlapping []uuid.UUID `json:"overlappingAppointments"`
}

// Manager owns every mutation of a doctor's schedule and unavailability list.
type Manager struct {
	store Store
}

func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

func (m *Manager) GetAvailability(ctx context.Context, doctorID uuid.UUID) (*Availability, error) {
	av, err := m.store.GetAvailability(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}
	return av, nil
}

// SetSchedule replaces the whole weekly schedule.
func (m *Manager) SetSchedule(ctx context.Context, doctorID uuid.UUID, schedule WeeklySchedule) (*Availability, error) {
	if err := schedule.Validate(); err != nil {
		return nil, err
	}
	return m.mutate(ctx, doctorID, func(WeeklySchedule) (WeeklySchedule, error) {
		return schedule.Clone(), nil
	})
}

// UpdateScheduleEntry merges patch into the entry at index and revalidates the schedule.
func (m *Manager) UpdateScheduleEntry(ctx context.Context, doctorID uuid.UUID, index int, patch EntryPatch) (*Availability, error) {
	return m.mutate(ctx, doctorID, func(current WeeklySchedule) (WeeklySchedule, error) {
		if index < 0 || index >= len(current) {
			return nil, ErrIndexOutOfRange.WithDetail("index %d, schedule has %d entries", index, len(current))
		}
		next := current.Clone()
		next[index] = next[index].Apply(patch)
		if err := next.Validate(); err != nil {
			return nil, err
		}
		return next, nil
	})
}

// AddUnavailability appends a window. Booked appointments inside it are not
// cancelled; they are reported back so the caller can act on them.
func (m *Manager) AddUnavailability(ctx context.Context, doctorID uuid.UUID, start, end time.Time) (*UnavailabilityResult, error) {
	iv, err := NewInterval(start, end)
	if err != nil {
		return nil, err
	}

	w, err := m.store.AddUnavailability(ctx, doctorID, Window{ID: uuid.New(), Start: iv.Start, End: iv.End})
	if err != nil {
		return nil, fmt.Errorf("add unavailability: %w", err)
	}

	overlapping, err := m.store.BookedWithin(ctx, doctorID, iv)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("doctor_id", doctorID.String()).
			Msg("could not list appointments overlapping new unavailability")
	}
	if overlapping == nil {
		overlapping = []uuid.UUID{}
	}
	if len(overlapping) > 0 {
		zerolog.Ctx(ctx).Warn().Str("doctor_id", doctorID.String()).Int("appointments", len(overlapping)).
			Msg("unavailability window overlaps booked appointments")
	}

	return &UnavailabilityResult{Window: *w, Overlapping: overlapping}, nil
}

func (m *Manager) mutate(ctx context.Context, doctorID uuid.UUID, fn func(WeeklySchedule) (WeeklySchedule, error)) (*Availability, error) {
	for attempt := 1; ; attempt++ {
		av, err := m.store.GetAvailability(ctx, doctorID)
		if err != nil {
			return nil, fmt.Errorf("load availability: %w", err)
		}

		next, err := fn(av.Schedule)
		if err != nil {
			return nil, err
		}

		version, err := m.store.SaveSchedule(ctx, doctorID, next, av.Version)
		if err == nil {
			av.Schedule = next
			av.Version = version
			return av, nil
		}
		if !errors.Is(err, ErrScheduleVersion) || attempt == maxScheduleWriteAttempts {
			return nil, fmt.Errorf("save schedule: %w", err)
		}
		zerolog.Ctx(ctx).Debug().Str("doctor_id", doctorID.String()).Int("attempt", attempt).
			Msg("schedule changed underneath, retrying")
	}
}
