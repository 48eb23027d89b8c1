package student

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

type Student struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	SchoolID    string    `json:"school_id"`
	ClassID     string    `json:"class_id"`  // empty when not assigned to any class
	ParentID    string    `json:"parent_id"` // parent/guardian user
	AdmissionNo string    `json:"admission_no"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

// FeeTerms are the initial fee terms of an enrolment.
type FeeTerms struct {
	TotalFee        decimal.Decimal `json:"total_fee"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Installments    int             `json:"installments"` // 0 means the default
}

// NewStudent contains information needed to enrol a new Student.
type NewStudent struct {
	SchoolID        string   `json:"school_id" validate:"required"`
	ClassID         string   `json:"class_id"`
	ParentID        string   `json:"parent_id"`
	AdmissionNo     string   `json:"admission_no" validate:"required,notblank,max=32"`
	Name            string   `json:"name" validate:"required,notblank,max=128"`
	Username        string   `json:"username"`
	Email           string   `json:"email"`
	Password        string   `json:"password"`
	PasswordConfirm string   `json:"password_confirm"`
	Fee             FeeTerms `json:"fee"`
}

func (ns *NewStudent) Clean() {
	ns.SchoolID = core.CleanString(ns.SchoolID)
	ns.ClassID = core.CleanString(ns.ClassID)
	ns.ParentID = core.CleanString(ns.ParentID)
	ns.AdmissionNo = core.CleanString(ns.AdmissionNo)
	ns.Name = core.CleanString(ns.Name)
}

// NewUser returns the login credential to create along with the Student.
func (ns NewStudent) NewUser() user.NewUser {
	return user.NewUser{
		SchoolID:        ns.SchoolID,
		Name:            ns.Name,
		Username:        ns.Username,
		Email:           ns.Email,
		Password:        ns.Password,
		PasswordConfirm: ns.PasswordConfirm,
		Roles:           user.StudentRoles,
	}
}

func (ns *NewStudent) Validate(ctx context.Context, validate *validator.Validate, usrSvc user.ServiceInterface) error {
	ns.Clean()
	if err := validate.Struct(ns); err != nil {
		return err
	}
	nu := ns.NewUser()
	if err := nu.Validate(ctx, validate, usrSvc); err != nil {
		return err
	}
	ns.Username, ns.Email = nu.Username, nu.Email
	return nil
}

type AssignClass struct {
	ClassID string `json:"class_id"` // empty to unassign
}

type QueryFilter struct {
	SchoolID string `query:"school_id"`
	ClassID  string `query:"class_id"`
	ParentID string `query:"parent_id"`
}

type GetFilter struct {
	ID     string
	UserID string
}

// CanView reports whether p may read the record of s.
func CanView(p user.Principal, s Student) bool {
	switch {
	case p.IsSuperAdmin():
		return true
	case (p.IsAdmin() || p.IsTeacher()) && p.CanAccessSchool(s.SchoolID):
		return true
	case p.IsStudent() && p.StudentID != "" && p.StudentID == s.ID:
		return true
	case p.IsParent() && s.ParentID != "" && s.ParentID == p.UserID:
		return true
	}
	return false
}

// CanManage reports whether p may modify the record of s.
func CanManage(p user.Principal, s Student) bool {
	return p.CanAdminSchool(s.SchoolID)
}
