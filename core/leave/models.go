package leave

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

const dateLayout = "2006-01-02"

type (
	Type   string
	Status string
)

const (
	TypeSick   Type = "SICK"
	TypeCasual Type = "CASUAL"
	TypeEarned Type = "EARNED"
	TypeOther  Type = "OTHER"

	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Request is the leave request of a teacher.
// From and To are calendar dates (UTC midnight), both included.
type Request struct {
	ID         string    `json:"id"`
	TeacherID  string    `json:"teacher_id"`
	SchoolID   string    `json:"school_id"`
	Type       Type      `json:"leave_type"`
	Reason     string    `json:"reason"`
	From       time.Time `json:"from_date"`
	To         time.Time `json:"to_date"`
	Days       int       `json:"days"`
	Status     Status    `json:"status"`
	ApproverID string    `json:"approver_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"` // UTC
	UpdatedAt  time.Time `json:"updated_at"` // UTC
}

// Overlaps reports whether r and [from, to] share at least one day.
func (r Request) Overlaps(from, to time.Time) bool {
	return !r.From.After(to) && !r.To.Before(from)
}

// NewRequest contains information needed to apply for a leave.
type NewRequest struct {
	Type     Type   `json:"leave_type" validate:"required,oneof=SICK CASUAL EARNED OTHER"`
	FromDate string `json:"from_date" validate:"required,datetime=2006-01-02"`
	ToDate   string `json:"to_date" validate:"required,datetime=2006-01-02"`
	Days     int    `json:"days" validate:"gte=0"` // 0 means every day of the range
	Reason   string `json:"reason" validate:"max=512"`
}

func (nr *NewRequest) Validate(validate *validator.Validate) error {
	nr.Type = Type(core.CleanString(string(nr.Type)))
	nr.FromDate = core.CleanString(nr.FromDate)
	nr.ToDate = core.CleanString(nr.ToDate)
	nr.Reason = core.CleanString(nr.Reason)
	if err := validate.Struct(nr); err != nil {
		return err
	}

	from, to, err := nr.Dates()
	if err != nil {
		return err
	}
	if nr.Days == 0 {
		nr.Days = int(to.Sub(from).Hours()/24) + 1
	}
	return nil
}

// Dates parses the range of nr.
func (nr NewRequest) Dates() (from, to time.Time, err error) {
	if from, err = time.Parse(dateLayout, nr.FromDate); err != nil {
		return from, to, core.NewValidationError(nil, core.FieldError{Field: "from_date", Error: "from_date must be a YYYY-MM-DD date"})
	}
	if to, err = time.Parse(dateLayout, nr.ToDate); err != nil {
		return from, to, core.NewValidationError(nil, core.FieldError{Field: "to_date", Error: "to_date must be a YYYY-MM-DD date"})
	}
	if to.Before(from) {
		return from, to, core.NewValidationError(nil, core.FieldError{Field: "to_date", Error: "to_date must not be before from_date"})
	}
	return from, to, nil
}

type Decision struct {
	Status Status `json:"status" validate:"required,oneof=APPROVED REJECTED"`
}

func (d *Decision) Validate(validate *validator.Validate) error {
	d.Status = Status(core.CleanString(string(d.Status)))
	return validate.Struct(d)
}

type QueryFilter struct {
	SchoolID  string `query:"school_id"`
	TeacherID string `query:"teacher_id"`
	Status    Status `query:"status"`
}
