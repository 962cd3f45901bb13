package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-appointment-booking/internal/availability"
)

// memRepository is an in-memory Repository. Booking units hold a per-doctor
// mutex from LockDoctor until commit, like the row lock in Postgres.
type memRepository struct {
	mu           sync.Mutex
	doctors      map[uuid.UUID]*Doctor
	patients     map[uuid.UUID]*Patient
	appointments map[uuid.UUID]*Appointment
	events       []EventLog
	doctorLocks  map[uuid.UUID]*sync.Mutex

	// insertFailures are returned, one per call, before any real insert.
	insertFailures []error
	deleteErr      error
}

func newMemRepository() *memRepository {
	return &memRepository{
		doctors:      map[uuid.UUID]*Doctor{},
		patients:     map[uuid.UUID]*Patient{},
		appointments: map[uuid.UUID]*Appointment{},
		doctorLocks:  map[uuid.UUID]*sync.Mutex{},
	}
}

func (r *memRepository) addDoctor(d Doctor) *Doctor {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doctors[d.ID] = &d
	r.doctorLocks[d.ID] = &sync.Mutex{}
	return &d
}

func (r *memRepository) addPatient(p Patient) *Patient {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patients[p.ID] = &p
	return &p
}

func (r *memRepository) setStatus(id uuid.UUID, status AppointmentStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appointments[id].Status = status
}

func (r *memRepository) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.EventType)
	}
	return out
}

func (r *memRepository) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *memRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memRepository) GetPatientByUserID(_ context.Context, userID uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.patients {
		if p.UserID == userID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrPatientNotFound
}

func (r *memRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memRepository) detail(a *Appointment) AppointmentDetail {
	d := r.doctors[a.DoctorID]
	p := r.patients[a.PatientID]
	return AppointmentDetail{
		Appointment: *a,
		Doctor:      PartySummary{ID: d.ID, UserID: d.UserID, Name: d.Name},
		Patient:     PartySummary{ID: p.ID, UserID: p.UserID, Name: p.Name},
	}
}

func (r *memRepository) GetAppointmentDetail(_ context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	d := r.detail(a)
	return &d, nil
}

func (r *memRepository) ListAppointments(_ context.Context, filter ListFilter) ([]AppointmentDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []AppointmentDetail{}
	for _, a := range r.appointments {
		if filter.DoctorID != nil && a.DoctorID != *filter.DoctorID {
			continue
		}
		if filter.PatientID != nil && a.PatientID != *filter.PatientID {
			continue
		}
		out = append(out, r.detail(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if filter.Offset >= len(out) {
		return []AppointmentDetail{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memRepository) InBookingTx(_ context.Context, fn func(tx BookingTx) error) error {
	tx := &memBookingTx{repo: r}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range tx.staged {
		cp := a
		r.appointments[a.ID] = &cp
	}
	return nil
}

func (r *memRepository) DeleteAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return nil, r.deleteErr
	}
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	delete(r.appointments, id)
	return a, nil
}

func (r *memRepository) CompleteElapsed(_ context.Context, now time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appointments {
		if a.Status == StatusBooked && !a.EndTime.After(now) {
			a.Status = StatusCompleted
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

type memBookingTx struct {
	repo   *memRepository
	held   *sync.Mutex
	staged []Appointment
}

func (t *memBookingTx) release() {
	if t.held != nil {
		t.held.Unlock()
	}
}

func (t *memBookingTx) LockDoctor(_ context.Context, doctorID uuid.UUID, _ availability.Interval) (*Doctor, error) {
	t.repo.mu.Lock()
	d, ok := t.repo.doctors[doctorID]
	lock := t.repo.doctorLocks[doctorID]
	t.repo.mu.Unlock()
	if !ok {
		return nil, ErrDoctorNotFound
	}

	lock.Lock()
	t.held = lock

	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	cp := *d
	return &cp, nil
}

func (t *memBookingTx) ActiveAppointments(_ context.Context, doctorID uuid.UUID, window availability.Interval) ([]Appointment, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	var out []Appointment
	for _, a := range t.repo.appointments {
		if a.DoctorID == doctorID && a.Status == StatusBooked && a.Interval().Overlaps(window) {
			out = append(out, *a)
		}
	}
	for _, a := range t.staged {
		if a.Interval().Overlaps(window) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (t *memBookingTx) InsertAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	t.repo.mu.Lock()
	if len(t.repo.insertFailures) > 0 {
		err := t.repo.insertFailures[0]
		t.repo.insertFailures = t.repo.insertFailures[1:]
		t.repo.mu.Unlock()
		return nil, err
	}
	t.repo.mu.Unlock()

	now := time.Now()
	a.CreatedAt, a.UpdatedAt = now, now
	t.staged = append(t.staged, a)
	return &a, nil
}

// passLocker runs fn without any distributed lock.
type passLocker struct{}

func (passLocker) WithDoctorLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type failingLocker struct{ err error }

func (l failingLocker) WithDoctorLock(context.Context, uuid.UUID, func(ctx context.Context) error) error {
	return l.err
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) messages() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.sent...)
}
