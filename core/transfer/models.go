package transfer

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Certificate is a Transfer Certificate: the formal request (then approval) of a Student leaving its School.
// PENDING moves once to APPROVED or REJECTED; both are terminal.
type Certificate struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"student_id"`
	SchoolID    string    `json:"school_id"`
	Status      Status    `json:"status"`
	Reason      string    `json:"reason"`
	RequestedBy string    `json:"requested_by"`
	ApprovedBy  string    `json:"approved_by,omitempty"` // also set on rejection
	IssuedDate  time.Time `json:"issued_date"`           // UTC, zero until approved
	DocumentURL string    `json:"document_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

// StudentHistory is the immutable archive of a Student taken when its transfer is approved.
type StudentHistory struct {
	ID                string          `json:"id"`
	OriginalStudentID string          `json:"original_student_id"`
	SchoolID          string          `json:"school_id"`
	Data              json.RawMessage `json:"data"` // snapshot of the Student record
	DeactivatedBy     string          `json:"deactivated_by"`
	Reason            string          `json:"reason"`
	DeactivatedAt     time.Time       `json:"deactivated_at"` // UTC
}

type NewRequest struct {
	StudentID string `json:"student_id"`
	Reason    string `json:"reason" validate:"max=512"`
}

func (nr *NewRequest) Validate(validate *validator.Validate) error {
	nr.StudentID = core.CleanString(nr.StudentID)
	nr.Reason = core.CleanString(nr.Reason)
	return validate.Struct(nr)
}

type Approval struct {
	DocumentURL string `json:"document_url" validate:"omitempty,url"`
}

func (a *Approval) Validate(validate *validator.Validate) error {
	a.DocumentURL = core.CleanString(a.DocumentURL)
	return validate.Struct(a)
}

type QueryFilter struct {
	SchoolID  string `query:"school_id"`
	StudentID string `query:"student_id"`
	Status    Status `query:"status"`
}
