package transfer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("transfer certificate")
	ErrAlreadyDecided = core.NewConflictError("transfer certificate already decided")
	ErrOpenRequest    = core.NewConflictError("student already has a pending or approved transfer certificate")
)

type (
	Repository interface {
		CreateCertificate(ctx context.Context, tc Certificate, exec ...core.DBExecutor) (Certificate, error)
		GetCertificate(ctx context.Context, id string, exec ...core.DBExecutor) (Certificate, error)
		// QueryCertificates returns the Certificates matching every non-empty QueryFilter field, newest first.
		QueryCertificates(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]Certificate, error)
		// HasOpenCertificate reports whether the Student has a PENDING or APPROVED Certificate.
		HasOpenCertificate(ctx context.Context, studentID string, exec ...core.DBExecutor) (bool, error)
		// DecideCertificate saves the decision fields of tc (status, approved by, issued date, document URL)
		// only if the stored Certificate is still PENDING. It returns false, without error, otherwise.
		DecideCertificate(ctx context.Context, tc Certificate, exec ...core.DBExecutor) (bool, error)

		CreateHistory(ctx context.Context, h StudentHistory, exec ...core.DBExecutor) (StudentHistory, error)
		QueryHistories(ctx context.Context, schoolID string, exec ...core.DBExecutor) ([]StudentHistory, error)
	}

	Service struct {
		tx       core.Transactor
		repo     Repository
		students student.Repository
		usrSvc   user.ServiceInterface
		mailSvc  core.EmailService
		logger   core.Logger
	}
)

func NewService(
	tx core.Transactor,
	repo Repository,
	students student.Repository,
	usrSvc user.ServiceInterface,
	mailSvc core.EmailService,
	logger core.Logger,
) *Service {
	return &Service{
		tx:       tx,
		repo:     repo,
		students: students,
		usrSvc:   usrSvc,
		mailSvc:  mailSvc,
		logger:   logger,
	}
}

func canRequest(p user.Principal, s student.Student) bool {
	return student.CanManage(p, s) || (p.IsStudent() && p.StudentID != "" && p.StudentID == s.ID)
}

// Request opens a PENDING Certificate for a Student; students request for themselves, school admins for any
// of their students. A Student may hold at most one PENDING or APPROVED Certificate.
func (svc *Service) Request(ctx context.Context, p user.Principal, nr NewRequest) (Certificate, error) {
	if nr.StudentID == "" && p.IsStudent() {
		nr.StudentID = p.StudentID
	}

	var tc Certificate
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.students.LockStudent(ctx, nr.StudentID, exec); err != nil {
			return err
		}
		stud, err := svc.students.GetStudent(ctx, student.GetFilter{ID: nr.StudentID}, exec)
		if err != nil {
			return err
		}
		if !canRequest(p, stud) {
			return core.ErrForbidden
		}

		open, err := svc.repo.HasOpenCertificate(ctx, stud.ID, exec)
		if err != nil {
			return errors.Wrap(err, "checking open transfer certificates")
		}
		if open {
			return ErrOpenRequest
		}

		now := time.Now().UTC()
		tc, err = svc.repo.CreateCertificate(ctx, Certificate{
			StudentID:   stud.ID,
			SchoolID:    stud.SchoolID,
			Status:      StatusPending,
			Reason:      nr.Reason,
			RequestedBy: p.UserID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}, exec)
		return errors.Wrap(err, "creating transfer certificate")
	})
	if err != nil {
		return Certificate{}, err
	}
	return tc, nil
}

func (svc *Service) getForAdmin(ctx context.Context, p user.Principal, id string) (Certificate, error) {
	tc, err := svc.repo.GetCertificate(ctx, id)
	if err != nil {
		return Certificate{}, err
	}
	if !p.CanAdminSchool(tc.SchoolID) {
		return Certificate{}, core.ErrForbidden
	}
	return tc, nil
}

// Approve issues a PENDING Certificate. In a single unit it:
// marks the Certificate APPROVED, archives the Student in a StudentHistory,
// deactivates the Student's login and clears its class assignment.
func (svc *Service) Approve(ctx context.Context, p user.Principal, id string, appr Approval) (Certificate, error) {
	tc, err := svc.getForAdmin(ctx, p, id)
	if err != nil {
		return Certificate{}, err
	}

	var stud student.Student
	err = svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		now := time.Now().UTC()
		tc.Status = StatusApproved
		tc.ApprovedBy = p.UserID
		tc.IssuedDate = now
		tc.DocumentURL = appr.DocumentURL
		tc.UpdatedAt = now

		ok, err := svc.repo.DecideCertificate(ctx, tc, exec)
		if err != nil {
			return errors.Wrap(err, "approving transfer certificate")
		}
		if !ok {
			return ErrAlreadyDecided
		}

		stud, err = svc.students.GetStudent(ctx, student.GetFilter{ID: tc.StudentID}, exec)
		if err != nil {
			return err
		}
		data, err := json.Marshal(stud)
		if err != nil {
			return errors.Wrap(err, "marshalling student snapshot")
		}
		if _, err = svc.repo.CreateHistory(ctx, StudentHistory{
			OriginalStudentID: stud.ID,
			SchoolID:          stud.SchoolID,
			Data:              data,
			DeactivatedBy:     p.UserID,
			Reason:            tc.Reason,
			DeactivatedAt:     now,
		}, exec); err != nil {
			return errors.Wrap(err, "creating student history")
		}

		if err = svc.usrSvc.Deactivate(ctx, stud.UserID, exec); err != nil {
			return errors.Wrap(err, "deactivating student user")
		}
		return errors.Wrap(svc.students.SetClass(ctx, stud.ID, "", now, exec), "clearing student class")
	})
	if err != nil {
		return Certificate{}, err
	}

	svc.notify(ctx, stud, tc)
	return tc, nil
}

// Reject closes a PENDING Certificate without touching the Student.
func (svc *Service) Reject(ctx context.Context, p user.Principal, id string) (Certificate, error) {
	tc, err := svc.getForAdmin(ctx, p, id)
	if err != nil {
		return Certificate{}, err
	}

	now := time.Now().UTC()
	tc.Status = StatusRejected
	tc.ApprovedBy = p.UserID
	tc.UpdatedAt = now
	ok, err := svc.repo.DecideCertificate(ctx, tc)
	if err != nil {
		return Certificate{}, errors.Wrap(err, "rejecting transfer certificate")
	}
	if !ok {
		return Certificate{}, ErrAlreadyDecided
	}

	if stud, err := svc.students.GetStudent(ctx, student.GetFilter{ID: tc.StudentID}); err == nil {
		svc.notify(ctx, stud, tc)
	}
	return tc, nil
}

// notify emails the decision to the Student. Failures are logged only.
func (svc *Service) notify(ctx context.Context, stud student.Student, tc Certificate) {
	usr, err := svc.usrSvc.GetByID(ctx, stud.UserID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("transfer.notify: %v", err), err)
		return
	}
	if usr.Email == "" {
		return
	}

	status := "approved"
	if tc.Status == StatusRejected {
		status = "rejected"
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Transfer Certificate " + status,
		TemplateName: "tc_decision",
		TemplateData: map[string]interface{}{
			"Name":        stud.Name,
			"Status":      status,
			"DocumentURL": tc.DocumentURL,
		},
	})
}

// Get returns a Certificate to its Student or to the administrators of its School.
func (svc *Service) Get(ctx context.Context, p user.Principal, id string) (Certificate, error) {
	tc, err := svc.repo.GetCertificate(ctx, id)
	if err != nil {
		return Certificate{}, err
	}
	if !p.CanAdminSchool(tc.SchoolID) && !(p.IsStudent() && p.StudentID == tc.StudentID) {
		return Certificate{}, core.ErrForbidden
	}
	return tc, nil
}

// List returns a School's Certificates for its administrators, a Student's own Certificates otherwise.
func (svc *Service) List(ctx context.Context, p user.Principal, filter QueryFilter) ([]Certificate, error) {
	switch {
	case p.IsAdmin():
		if filter.SchoolID == "" {
			filter.SchoolID = p.SchoolID
		}
		if !p.CanAdminSchool(filter.SchoolID) {
			return nil, core.ErrForbidden
		}
	case p.IsStudent() && p.StudentID != "":
		filter.SchoolID = ""
		filter.StudentID = p.StudentID
	default:
		return nil, core.ErrForbidden
	}
	return svc.repo.QueryCertificates(ctx, filter)
}

func (svc *Service) ListHistory(ctx context.Context, p user.Principal, schoolID string) ([]StudentHistory, error) {
	if schoolID == "" {
		schoolID = p.SchoolID
	}
	if !p.CanAdminSchool(schoolID) {
		return nil, core.ErrForbidden
	}
	return svc.repo.QueryHistories(ctx, schoolID)
}
