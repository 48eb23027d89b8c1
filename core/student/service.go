package student

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/user"
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("student")
	ErrAdmissionNoExists  = errors.New("a student with this admission number already exists")
	errClassOfOtherSchool = "class does not belong to the student's school"
	errInvalidParent      = "parent not found"
)

type (
	Repository interface {
		CreateStudent(ctx context.Context, s Student, exec ...core.DBExecutor) (Student, error)
		GetStudent(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Student, error)
		AdmissionNoExists(ctx context.Context, schoolID, admissionNo string, exec ...core.DBExecutor) (bool, error)
		QueryStudents(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]Student, error)
		// SetClass sets (or clears with an empty classID) the class assignment of a Student.
		SetClass(ctx context.Context, id, classID string, at time.Time, exec ...core.DBExecutor) error
		// LockStudent takes a write lock on the Student row until the end of the transaction `exec` belongs to.
		LockStudent(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	// LedgerOpener opens the fee ledger of a newly enrolled Student.
	LedgerOpener interface {
		OpenLedger(ctx context.Context, s Student, terms FeeTerms, exec core.DBExecutor) error
	}

	Service struct {
		tx      core.Transactor
		repo    Repository
		usrSvc  user.ServiceInterface
		schools school.Repository
		ledgers LedgerOpener
	}
)

func NewService(
	tx core.Transactor,
	repo Repository,
	usrSvc user.ServiceInterface,
	schools school.Repository,
	ledgers LedgerOpener,
) *Service {
	return &Service{
		tx:      tx,
		repo:    repo,
		usrSvc:  usrSvc,
		schools: schools,
		ledgers: ledgers,
	}
}

// Enroll creates the Student's login, the Student and its fee ledger as a single unit.
func (svc *Service) Enroll(ctx context.Context, p user.Principal, ns NewStudent) (Student, error) {
	if !p.CanAdminSchool(ns.SchoolID) {
		return Student{}, core.ErrForbidden
	}

	var stud Student
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if _, err := svc.schools.GetSchool(ctx, ns.SchoolID, exec); err != nil {
			return err
		}
		if ns.ClassID != "" {
			if err := svc.checkClass(ctx, ns.SchoolID, ns.ClassID, exec); err != nil {
				return err
			}
		}
		if ns.ParentID != "" {
			parent, err := svc.usrSvc.GetByID(ctx, ns.ParentID, exec)
			if err != nil || !parent.IsParent() {
				if err != nil && errors.Cause(err) != user.ErrNotFound {
					return errors.Wrap(err, "finding parent")
				}
				return core.NewValidationError(nil, core.FieldError{Field: "parent_id", Error: errInvalidParent})
			}
		}

		exists, err := svc.repo.AdmissionNoExists(ctx, ns.SchoolID, ns.AdmissionNo, exec)
		if err != nil {
			return errors.Wrap(err, "checking admission number")
		}
		if exists {
			return core.NewValidationError(nil, core.FieldError{Field: "admission_no", Error: ErrAdmissionNoExists.Error()})
		}

		usr, err := svc.usrSvc.Create(ctx, ns.NewUser(), exec)
		if err != nil {
			return errors.Wrap(err, "creating student user")
		}

		now := time.Now().UTC()
		stud, err = svc.repo.CreateStudent(ctx, Student{
			UserID:      usr.ID,
			SchoolID:    ns.SchoolID,
			ClassID:     ns.ClassID,
			ParentID:    ns.ParentID,
			AdmissionNo: ns.AdmissionNo,
			Name:        ns.Name,
			CreatedAt:   now,
			UpdatedAt:   now,
		}, exec)
		if err != nil {
			return errors.Wrap(err, "creating student")
		}

		return svc.ledgers.OpenLedger(ctx, stud, ns.Fee, exec)
	})
	if err != nil {
		return Student{}, err
	}
	return stud, nil
}

func (svc *Service) checkClass(ctx context.Context, schoolID, classID string, exec core.DBExecutor) error {
	cls, err := svc.schools.GetClass(ctx, classID, exec)
	if err != nil {
		if errors.Cause(err) == school.ErrClassNotFound {
			return core.NewValidationError(nil, core.FieldError{Field: "class_id", Error: err.Error()})
		}
		return errors.Wrap(err, "finding class")
	}
	if cls.SchoolID != schoolID {
		return core.NewValidationError(nil, core.FieldError{Field: "class_id", Error: errClassOfOtherSchool})
	}
	return nil
}

func (svc *Service) Get(ctx context.Context, p user.Principal, id string) (Student, error) {
	stud, err := svc.repo.GetStudent(ctx, GetFilter{ID: id})
	if err != nil {
		return Student{}, err
	}
	if !CanView(p, stud) {
		return Student{}, core.ErrForbidden
	}
	return stud, nil
}

// GetByUserID returns the Student whose login is the given User.
func (svc *Service) GetByUserID(ctx context.Context, userID string) (Student, error) {
	return svc.repo.GetStudent(ctx, GetFilter{UserID: userID})
}

// List returns the Students visible to p: a School's students for its staff, their own children for parents.
func (svc *Service) List(ctx context.Context, p user.Principal, filter QueryFilter) ([]Student, error) {
	switch {
	case p.IsSuperAdmin():
	case p.IsAdmin() || p.IsTeacher():
		if filter.SchoolID == "" {
			filter.SchoolID = p.SchoolID
		}
		if !p.CanAccessSchool(filter.SchoolID) {
			return nil, core.ErrForbidden
		}
	case p.IsParent():
		filter.ParentID = p.UserID
	default:
		return nil, core.ErrForbidden
	}
	return svc.repo.QueryStudents(ctx, filter)
}

func (svc *Service) AssignClass(ctx context.Context, p user.Principal, id, classID string) (Student, error) {
	var stud Student
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if stud, err = svc.repo.GetStudent(ctx, GetFilter{ID: id}, exec); err != nil {
			return err
		}
		if !CanManage(p, stud) {
			return core.ErrForbidden
		}
		if classID != "" {
			if err = svc.checkClass(ctx, stud.SchoolID, classID, exec); err != nil {
				return err
			}
		}
		now := time.Now().UTC()
		if err = svc.repo.SetClass(ctx, id, classID, now, exec); err != nil {
			return errors.Wrap(err, "setting class")
		}
		stud.ClassID = classID
		stud.UpdatedAt = now
		return nil
	})
	if err != nil {
		return Student{}, err
	}
	return stud, nil
}
