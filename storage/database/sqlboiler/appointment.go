package boiledrepos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/appointment"
)

const (
	appointmentColumns = "id, school_id, parent_id, teacher_id, student_id, topic, scheduled_at, status, created_at, updated_at"
	messageColumns     = "id, appointment_id, sender_id, body, created_at"
)

type appointmentRow struct {
	ID          string    `boil:"id"`
	SchoolID    string    `boil:"school_id"`
	ParentID    string    `boil:"parent_id"`
	TeacherID   string    `boil:"teacher_id"`
	StudentID   string    `boil:"student_id"`
	Topic       string    `boil:"topic"`
	ScheduledAt time.Time `boil:"scheduled_at"`
	Status      string    `boil:"status"`
	CreatedAt   time.Time `boil:"created_at"`
	UpdatedAt   time.Time `boil:"updated_at"`
}

type messageRow struct {
	ID            string    `boil:"id"`
	AppointmentID string    `boil:"appointment_id"`
	SenderID      string    `boil:"sender_id"`
	Body          string    `boil:"body"`
	CreatedAt     time.Time `boil:"created_at"`
}

type appointmentRepository struct {
	store
}

var _ appointment.Repository = (*appointmentRepository)(nil) // interface compliance check

func NewAppointmentRepository(exec core.DBExecutor, engine string) *appointmentRepository {
	return &appointmentRepository{store: newStore(exec, engine)}
}

func (repo appointmentRepository) unboil(r appointmentRow) appointment.Appointment {
	return appointment.Appointment{
		ID:          r.ID,
		SchoolID:    r.SchoolID,
		ParentID:    r.ParentID,
		TeacherID:   r.TeacherID,
		StudentID:   r.StudentID,
		Topic:       r.Topic,
		ScheduledAt: r.ScheduledAt.UTC(),
		Status:      appointment.Status(r.Status),
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func (repo appointmentRepository) CreateAppointment(ctx context.Context, a appointment.Appointment, exec ...core.DBExecutor) (appointment.Appointment, error) {
	a.ID = uuid.New().String()
	_, err := repo.execute(ctx, exec,
		"INSERT INTO appointments ("+appointmentColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		a.ID, a.SchoolID, a.ParentID, a.TeacherID, a.StudentID, a.Topic, a.ScheduledAt.UTC(), string(a.Status),
		a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	if err != nil {
		return appointment.Appointment{}, errors.Wrap(err, "inserting appointment")
	}
	return a, nil
}

func (repo appointmentRepository) GetAppointment(ctx context.Context, id string, exec ...core.DBExecutor) (appointment.Appointment, error) {
	if !isID(id) {
		return appointment.Appointment{}, appointment.ErrNotFound
	}
	var row appointmentRow
	err := repo.bind(ctx, exec, &row, "SELECT "+appointmentColumns+" FROM appointments WHERE id = ?", id)
	if err != nil {
		return appointment.Appointment{}, trapNoRows(err, appointment.ErrNotFound, "finding appointment")
	}
	return repo.unboil(row), nil
}

func (repo appointmentRepository) QueryAppointments(ctx context.Context, filter appointment.QueryFilter, exec ...core.DBExecutor) ([]appointment.Appointment, error) {
	appts := make([]appointment.Appointment, 0)
	var conds []string
	var args []interface{}
	for _, f := range []struct{ col, val string }{
		{"school_id", filter.SchoolID},
		{"parent_id", filter.ParentID},
		{"teacher_id", filter.TeacherID},
	} {
		if f.val == "" {
			continue
		}
		if !isID(f.val) {
			return appts, nil
		}
		conds = append(conds, f.col+" = ?")
		args = append(args, f.val)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}

	q := "SELECT " + appointmentColumns + " FROM appointments"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY scheduled_at, id"

	var rows []appointmentRow
	if err := repo.bind(ctx, exec, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying appointments")
	}
	for _, r := range rows {
		appts = append(appts, repo.unboil(r))
	}
	return appts, nil
}

func (repo appointmentRepository) SetStatus(ctx context.Context, id string, status appointment.Status, at time.Time, exec ...core.DBExecutor) (bool, error) {
	if !isID(id) {
		return false, appointment.ErrNotFound
	}
	n, err := repo.affected(ctx, exec,
		"UPDATE appointments SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(status), at.UTC(), id, string(appointment.StatusPending))
	if err != nil {
		return false, errors.Wrap(err, "answering appointment")
	}
	if n > 0 {
		return true, nil
	}
	if _, err = repo.GetAppointment(ctx, id, exec...); err != nil {
		return false, err
	}
	return false, nil
}

func (repo appointmentRepository) CreateMessage(ctx context.Context, m appointment.Message, exec ...core.DBExecutor) (appointment.Message, error) {
	m.ID = uuid.New().String()
	_, err := repo.execute(ctx, exec,
		"INSERT INTO appointment_messages ("+messageColumns+") VALUES (?, ?, ?, ?, ?)",
		m.ID, m.AppointmentID, m.SenderID, m.Body, m.CreatedAt.UTC())
	if err != nil {
		return appointment.Message{}, errors.Wrap(err, "inserting message")
	}
	return m, nil
}

func (repo appointmentRepository) QueryMessages(ctx context.Context, appointmentID string, exec ...core.DBExecutor) ([]appointment.Message, error) {
	msgs := make([]appointment.Message, 0)
	if !isID(appointmentID) {
		return msgs, nil
	}
	var rows []messageRow
	err := repo.bind(ctx, exec, &rows,
		"SELECT "+messageColumns+" FROM appointment_messages WHERE appointment_id = ? ORDER BY created_at, id", appointmentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying messages")
	}
	for _, r := range rows {
		msgs = append(msgs, appointment.Message{
			ID:            r.ID,
			AppointmentID: r.AppointmentID,
			SenderID:      r.SenderID,
			Body:          r.Body,
			CreatedAt:     r.CreatedAt.UTC(),
		})
	}
	return msgs, nil
}
