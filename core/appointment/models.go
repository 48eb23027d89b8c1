package appointment

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusAccepted Status = "ACCEPTED"
	StatusDeclined Status = "DECLINED"
)

// Appointment is a meeting request between a parent and a teacher about a Student.
type Appointment struct {
	ID          string    `json:"id"`
	SchoolID    string    `json:"school_id"`
	ParentID    string    `json:"parent_id"`
	TeacherID   string    `json:"teacher_id"`
	StudentID   string    `json:"student_id"`
	Topic       string    `json:"topic"`
	ScheduledAt time.Time `json:"scheduled_at"` // UTC
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

// IsParticipant reports whether userID is the parent or the teacher of a.
func (a Appointment) IsParticipant(userID string) bool {
	return userID != "" && (userID == a.ParentID || userID == a.TeacherID)
}

// Room is the relay room of an Appointment's conversation.
func (a Appointment) Room() string {
	return "appointment:" + a.ID
}

type Message struct {
	ID            string    `json:"id"`
	AppointmentID string    `json:"appointment_id"`
	SenderID      string    `json:"sender_id"`
	Body          string    `json:"body"`
	CreatedAt     time.Time `json:"created_at"` // UTC
}

type NewAppointment struct {
	TeacherID   string    `json:"teacher_id" validate:"required"`
	StudentID   string    `json:"student_id" validate:"required"`
	Topic       string    `json:"topic" validate:"required,notblank,max=256"`
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
}

func (na *NewAppointment) Validate(validate *validator.Validate) error {
	na.TeacherID = core.CleanString(na.TeacherID)
	na.StudentID = core.CleanString(na.StudentID)
	na.Topic = core.CleanString(na.Topic)
	return validate.Struct(na)
}

type Response struct {
	Status Status `json:"status" validate:"required,oneof=ACCEPTED DECLINED"`
}

func (r *Response) Validate(validate *validator.Validate) error {
	r.Status = Status(core.CleanString(string(r.Status)))
	return validate.Struct(r)
}

type NewMessage struct {
	Body string `json:"body" validate:"required,notblank,max=4096"`
}

func (nm *NewMessage) Validate(validate *validator.Validate) error {
	nm.Body = core.CleanString(nm.Body)
	return validate.Struct(nm)
}

type QueryFilter struct {
	SchoolID  string `query:"school_id"`
	ParentID  string `query:"parent_id"`
	TeacherID string `query:"teacher_id"`
	Status    Status `query:"status"`
}
