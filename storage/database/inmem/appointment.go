package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/appointment"
)

type appointmentRepository struct {
	db *DB
}

var _ appointment.Repository = (*appointmentRepository)(nil) // interface compliance check

func NewAppointmentRepository(db *DB) *appointmentRepository {
	return &appointmentRepository{db: db}
}

func (repo *appointmentRepository) CreateAppointment(ctx context.Context, a appointment.Appointment, exec ...core.DBExecutor) (appointment.Appointment, error) {
	err := repo.db.write(exec, func(t *tables) error {
		a.ID = uuid.New().String()
		t.appointments[a.ID] = a
		return nil
	})
	if err != nil {
		return appointment.Appointment{}, err
	}
	return a, nil
}

func (repo *appointmentRepository) GetAppointment(ctx context.Context, id string, exec ...core.DBExecutor) (appointment.Appointment, error) {
	var appt appointment.Appointment
	err := repo.db.read(func(t *tables) error {
		a, ok := t.appointments[id]
		if !ok {
			return appointment.ErrNotFound
		}
		appt = a
		return nil
	})
	return appt, err
}

func (repo *appointmentRepository) QueryAppointments(ctx context.Context, filter appointment.QueryFilter, exec ...core.DBExecutor) ([]appointment.Appointment, error) {
	appts := make([]appointment.Appointment, 0)
	_ = repo.db.read(func(t *tables) error {
		for _, a := range t.appointments {
			if (filter.SchoolID == "" || a.SchoolID == filter.SchoolID) &&
				(filter.ParentID == "" || a.ParentID == filter.ParentID) &&
				(filter.TeacherID == "" || a.TeacherID == filter.TeacherID) &&
				(filter.Status == "" || a.Status == filter.Status) {
				appts = append(appts, a)
			}
		}
		return nil
	})
	sort.Slice(appts, func(i, j int) bool {
		if appts[i].ScheduledAt.Equal(appts[j].ScheduledAt) {
			return appts[i].ID < appts[j].ID
		}
		return appts[i].ScheduledAt.Before(appts[j].ScheduledAt)
	})
	return appts, nil
}

func (repo *appointmentRepository) SetStatus(ctx context.Context, id string, status appointment.Status, at time.Time, exec ...core.DBExecutor) (bool, error) {
	var ok bool
	err := repo.db.write(exec, func(t *tables) error {
		a, found := t.appointments[id]
		if !found {
			return appointment.ErrNotFound
		}
		if a.Status != appointment.StatusPending {
			return nil
		}
		a.Status = status
		a.UpdatedAt = at
		t.appointments[id] = a
		ok = true
		return nil
	})
	return ok, err
}

func (repo *appointmentRepository) CreateMessage(ctx context.Context, m appointment.Message, exec ...core.DBExecutor) (appointment.Message, error) {
	err := repo.db.write(exec, func(t *tables) error {
		m.ID = uuid.New().String()
		t.messages = append(t.messages, m)
		return nil
	})
	if err != nil {
		return appointment.Message{}, err
	}
	return m, nil
}

func (repo *appointmentRepository) QueryMessages(ctx context.Context, appointmentID string, exec ...core.DBExecutor) ([]appointment.Message, error) {
	msgs := make([]appointment.Message, 0)
	_ = repo.db.read(func(t *tables) error {
		for _, m := range t.messages {
			if m.AppointmentID == appointmentID {
				msgs = append(msgs, m)
			}
		}
		return nil
	})
	return msgs, nil
}
