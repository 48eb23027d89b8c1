package appointment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
)

var (
	// errors
	ErrNotFound        = core.NewNotFoundError("appointment")
	ErrAlreadyAnswered = core.NewConflictError("appointment already answered")
	ErrNotAccepted     = core.NewConflictError("appointment is not accepted")
	errInvalidTeacher  = "teacher not found"
)

type (
	Repository interface {
		CreateAppointment(ctx context.Context, a Appointment, exec ...core.DBExecutor) (Appointment, error)
		GetAppointment(ctx context.Context, id string, exec ...core.DBExecutor) (Appointment, error)
		// QueryAppointments returns the Appointments matching every non-empty QueryFilter field, by schedule.
		QueryAppointments(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]Appointment, error)
		// SetStatus answers a PENDING Appointment. It returns false, without error, when it is not PENDING anymore.
		SetStatus(ctx context.Context, id string, status Status, at time.Time, exec ...core.DBExecutor) (bool, error)

		CreateMessage(ctx context.Context, m Message, exec ...core.DBExecutor) (Message, error)
		// QueryMessages returns the Messages of an Appointment in creation order.
		QueryMessages(ctx context.Context, appointmentID string, exec ...core.DBExecutor) ([]Message, error)
	}

	// Relay re-broadcasts persisted messages to the listeners of a room.
	// Delivery is at most once, best effort.
	Relay interface {
		Publish(ctx context.Context, room string, payload []byte) error
	}

	Service struct {
		repo     Repository
		students student.Repository
		usrSvc   user.ServiceInterface
		relay    Relay
		logger   core.Logger
	}
)

func NewService(
	repo Repository,
	students student.Repository,
	usrSvc user.ServiceInterface,
	relay Relay,
	logger core.Logger,
) *Service {
	return &Service{
		repo:     repo,
		students: students,
		usrSvc:   usrSvc,
		relay:    relay,
		logger:   logger,
	}
}

// Request asks a teacher of the child's School for an Appointment. Parents only.
func (svc *Service) Request(ctx context.Context, p user.Principal, na NewAppointment) (Appointment, error) {
	if !p.IsParent() {
		return Appointment{}, core.ErrForbidden
	}
	stud, err := svc.students.GetStudent(ctx, student.GetFilter{ID: na.StudentID})
	if err != nil {
		return Appointment{}, err
	}
	if stud.ParentID != p.UserID {
		return Appointment{}, core.ErrForbidden
	}

	teacher, err := svc.usrSvc.GetByID(ctx, na.TeacherID)
	if err != nil || !teacher.IsTeacher() || teacher.SchoolID != stud.SchoolID {
		if err != nil && errors.Cause(err) != user.ErrNotFound {
			return Appointment{}, errors.Wrap(err, "finding teacher")
		}
		return Appointment{}, core.NewValidationError(nil, core.FieldError{Field: "teacher_id", Error: errInvalidTeacher})
	}

	now := time.Now().UTC()
	return svc.repo.CreateAppointment(ctx, Appointment{
		SchoolID:    stud.SchoolID,
		ParentID:    p.UserID,
		TeacherID:   teacher.ID,
		StudentID:   stud.ID,
		Topic:       na.Topic,
		ScheduledAt: na.ScheduledAt.UTC(),
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

// Respond accepts or declines a PENDING Appointment. Only its teacher may answer.
func (svc *Service) Respond(ctx context.Context, p user.Principal, id string, r Response) (Appointment, error) {
	if r.Status != StatusAccepted && r.Status != StatusDeclined {
		return Appointment{}, core.NewValidationError(nil, core.FieldError{Field: "status", Error: "status must be one of [ACCEPTED DECLINED]"})
	}
	appt, err := svc.repo.GetAppointment(ctx, id)
	if err != nil {
		return Appointment{}, err
	}
	if appt.TeacherID != p.UserID {
		return Appointment{}, core.ErrForbidden
	}

	now := time.Now().UTC()
	ok, err := svc.repo.SetStatus(ctx, id, r.Status, now)
	if err != nil {
		return Appointment{}, errors.Wrap(err, "answering appointment")
	}
	if !ok {
		return Appointment{}, ErrAlreadyAnswered
	}
	appt.Status = r.Status
	appt.UpdatedAt = now
	return appt, nil
}

func (svc *Service) canRead(p user.Principal, appt Appointment) bool {
	return appt.IsParticipant(p.UserID) || p.CanAdminSchool(appt.SchoolID)
}

func (svc *Service) Get(ctx context.Context, p user.Principal, id string) (Appointment, error) {
	appt, err := svc.repo.GetAppointment(ctx, id)
	if err != nil {
		return Appointment{}, err
	}
	if !svc.canRead(p, appt) {
		return Appointment{}, core.ErrForbidden
	}
	return appt, nil
}

// List returns the caller's own Appointments, or a School's for its administrators.
func (svc *Service) List(ctx context.Context, p user.Principal, filter QueryFilter) ([]Appointment, error) {
	switch {
	case p.IsAdmin():
		if filter.SchoolID == "" {
			filter.SchoolID = p.SchoolID
		}
		if !p.CanAdminSchool(filter.SchoolID) {
			return nil, core.ErrForbidden
		}
	case p.IsTeacher():
		filter.TeacherID = p.UserID
	case p.IsParent():
		filter.ParentID = p.UserID
	default:
		return nil, core.ErrForbidden
	}
	return svc.repo.QueryAppointments(ctx, filter)
}

// PostMessage persists a Message of an ACCEPTED Appointment, then publishes it to the Appointment's room.
// A relay failure does not fail the call: the Message is already stored.
func (svc *Service) PostMessage(ctx context.Context, p user.Principal, id string, nm NewMessage) (Message, error) {
	appt, err := svc.repo.GetAppointment(ctx, id)
	if err != nil {
		return Message{}, err
	}
	if !appt.IsParticipant(p.UserID) {
		return Message{}, core.ErrForbidden
	}
	if appt.Status != StatusAccepted {
		return Message{}, ErrNotAccepted
	}
	if core.CleanString(nm.Body) == "" {
		return Message{}, core.NewValidationError(nil, core.FieldError{Field: "body", Error: "body is required"})
	}

	msg, err := svc.repo.CreateMessage(ctx, Message{
		AppointmentID: appt.ID,
		SenderID:      p.UserID,
		Body:          nm.Body,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return Message{}, errors.Wrap(err, "creating message")
	}

	payload, err := json.Marshal(msg)
	if err == nil {
		err = svc.relay.Publish(ctx, appt.Room(), payload)
	}
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("appointment.PostMessage: publishing: %v", err), err)
	}
	return msg, nil
}

func (svc *Service) ListMessages(ctx context.Context, p user.Principal, id string) ([]Message, error) {
	if _, err := svc.Get(ctx, p, id); err != nil {
		return nil, err
	}
	return svc.repo.QueryMessages(ctx, id)
}

// Join returns the relay room of an Appointment for one of its participants.
func (svc *Service) Join(ctx context.Context, p user.Principal, id string) (string, error) {
	appt, err := svc.repo.GetAppointment(ctx, id)
	if err != nil {
		return "", err
	}
	if !appt.IsParticipant(p.UserID) {
		return "", core.ErrForbidden
	}
	return appt.Room(), nil
}
