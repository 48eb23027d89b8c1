package leave

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("leave request")
	ErrOverlap        = core.NewConflictError("leave overlaps an existing leave request")
	ErrAlreadyDecided = core.NewConflictError("leave request already decided")
)

type (
	Repository interface {
		CreateRequest(ctx context.Context, lr Request, exec ...core.DBExecutor) (Request, error)
		GetRequest(ctx context.Context, id string, exec ...core.DBExecutor) (Request, error)
		// QueryRequests returns the Requests matching every non-empty QueryFilter field, ordered by from date.
		QueryRequests(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]Request, error)
		// HasOverlap reports whether the teacher has a non-REJECTED Request sharing at least one day with [from, to].
		HasOverlap(ctx context.Context, teacherID string, from, to time.Time, exec ...core.DBExecutor) (bool, error)
		// LockTeacher serializes leave applications of a teacher until the end of the transaction `exec` belongs to.
		LockTeacher(ctx context.Context, teacherID string, exec ...core.DBExecutor) error
		// DecideRequest sets the status and approver of a PENDING Request.
		// It returns false, without error, when the Request is not PENDING anymore.
		DecideRequest(ctx context.Context, id string, status Status, approverID string, at time.Time, exec ...core.DBExecutor) (bool, error)
	}

	Service struct {
		tx      core.Transactor
		repo    Repository
		usrSvc  user.ServiceInterface
		mailSvc core.EmailService
		logger  core.Logger
	}
)

func NewService(
	tx core.Transactor,
	repo Repository,
	usrSvc user.ServiceInterface,
	mailSvc core.EmailService,
	logger core.Logger,
) *Service {
	return &Service{
		tx:      tx,
		repo:    repo,
		usrSvc:  usrSvc,
		mailSvc: mailSvc,
		logger:  logger,
	}
}

// Apply files a PENDING leave Request for the calling teacher.
// The overlap check and the insert run in the same unit.
func (svc *Service) Apply(ctx context.Context, p user.Principal, nr NewRequest) (Request, error) {
	if !p.IsTeacher() || p.SchoolID == "" {
		return Request{}, core.ErrForbidden
	}
	from, to, err := nr.Dates()
	if err != nil {
		return Request{}, err
	}
	if nr.Days <= 0 {
		return Request{}, core.NewValidationError(nil, core.FieldError{Field: "days", Error: "days must be greater than 0"})
	}

	var lr Request
	err = svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.repo.LockTeacher(ctx, p.UserID, exec); err != nil {
			return errors.Wrap(err, "locking teacher")
		}
		overlap, err := svc.repo.HasOverlap(ctx, p.UserID, from, to, exec)
		if err != nil {
			return errors.Wrap(err, "checking leave overlap")
		}
		if overlap {
			return ErrOverlap
		}

		now := time.Now().UTC()
		lr, err = svc.repo.CreateRequest(ctx, Request{
			TeacherID: p.UserID,
			SchoolID:  p.SchoolID,
			Type:      nr.Type,
			Reason:    nr.Reason,
			From:      from,
			To:        to,
			Days:      nr.Days,
			Status:    StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}, exec)
		return errors.Wrap(err, "creating leave request")
	})
	if err != nil {
		return Request{}, err
	}
	return lr, nil
}

// Decide approves or rejects a PENDING Request; deciding twice is a Conflict.
func (svc *Service) Decide(ctx context.Context, p user.Principal, id string, d Decision) (Request, error) {
	if d.Status != StatusApproved && d.Status != StatusRejected {
		return Request{}, core.NewValidationError(nil, core.FieldError{Field: "status", Error: "status must be one of [APPROVED REJECTED]"})
	}
	lr, err := svc.repo.GetRequest(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if !p.CanAdminSchool(lr.SchoolID) {
		return Request{}, core.ErrForbidden
	}

	now := time.Now().UTC()
	ok, err := svc.repo.DecideRequest(ctx, id, d.Status, p.UserID, now)
	if err != nil {
		return Request{}, errors.Wrap(err, "deciding leave request")
	}
	if !ok {
		return Request{}, ErrAlreadyDecided
	}
	lr.Status = d.Status
	lr.ApproverID = p.UserID
	lr.UpdatedAt = now

	svc.notify(ctx, lr)
	return lr, nil
}

// notify emails the decision to the teacher. Failures are logged only.
func (svc *Service) notify(ctx context.Context, lr Request) {
	usr, err := svc.usrSvc.GetByID(ctx, lr.TeacherID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("leave.notify: %v", err), err)
		return
	}
	if usr.Email == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Leave Request " + string(lr.Status),
		TemplateName: "leave_decision",
		TemplateData: map[string]interface{}{
			"Name":      usr.Name,
			"LeaveType": string(lr.Type),
			"From":      lr.From.Format(dateLayout),
			"To":        lr.To.Format(dateLayout),
			"Days":      lr.Days,
			"Status":    string(lr.Status),
		},
	})
}

func (svc *Service) Get(ctx context.Context, p user.Principal, id string) (Request, error) {
	lr, err := svc.repo.GetRequest(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if !p.CanAdminSchool(lr.SchoolID) && lr.TeacherID != p.UserID {
		return Request{}, core.ErrForbidden
	}
	return lr, nil
}

// List returns a School's Requests for its administrators, the caller's own Requests for teachers.
func (svc *Service) List(ctx context.Context, p user.Principal, filter QueryFilter) ([]Request, error) {
	switch {
	case p.IsAdmin():
		if filter.SchoolID == "" {
			filter.SchoolID = p.SchoolID
		}
		if !p.CanAdminSchool(filter.SchoolID) {
			return nil, core.ErrForbidden
		}
	case p.IsTeacher():
		filter.SchoolID = p.SchoolID
		filter.TeacherID = p.UserID
	default:
		return nil, core.ErrForbidden
	}
	return svc.repo.QueryRequests(ctx, filter)
}
