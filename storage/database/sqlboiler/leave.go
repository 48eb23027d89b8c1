package boiledrepos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/leave"
	"github.com/trezcool/shule/core/user"
)

const leaveColumns = "id, teacher_id, school_id, leave_type, reason, from_date, to_date, days, status, approver_id, created_at, updated_at"

type leaveRow struct {
	ID         string      `boil:"id"`
	TeacherID  string      `boil:"teacher_id"`
	SchoolID   string      `boil:"school_id"`
	LeaveType  string      `boil:"leave_type"`
	Reason     string      `boil:"reason"`
	FromDate   time.Time   `boil:"from_date"`
	ToDate     time.Time   `boil:"to_date"`
	Days       int         `boil:"days"`
	Status     string      `boil:"status"`
	ApproverID null.String `boil:"approver_id"`
	CreatedAt  time.Time   `boil:"created_at"`
	UpdatedAt  time.Time   `boil:"updated_at"`
}

type leaveRepository struct {
	store
}

var _ leave.Repository = (*leaveRepository)(nil) // interface compliance check

func NewLeaveRepository(exec core.DBExecutor, engine string) *leaveRepository {
	return &leaveRepository{store: newStore(exec, engine)}
}

func (repo leaveRepository) unboil(r leaveRow) leave.Request {
	return leave.Request{
		ID:         r.ID,
		TeacherID:  r.TeacherID,
		SchoolID:   r.SchoolID,
		Type:       leave.Type(r.LeaveType),
		Reason:     r.Reason,
		From:       r.FromDate.UTC(),
		To:         r.ToDate.UTC(),
		Days:       r.Days,
		Status:     leave.Status(r.Status),
		ApproverID: r.ApproverID.String,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

func (repo leaveRepository) CreateRequest(ctx context.Context, lr leave.Request, exec ...core.DBExecutor) (leave.Request, error) {
	lr.ID = uuid.New().String()
	_, err := repo.execute(ctx, exec,
		"INSERT INTO leave_requests ("+leaveColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		lr.ID, lr.TeacherID, lr.SchoolID, string(lr.Type), lr.Reason, lr.From.UTC(), lr.To.UTC(), lr.Days,
		string(lr.Status), nullIfEmpty(lr.ApproverID), lr.CreatedAt.UTC(), lr.UpdatedAt.UTC())
	if err != nil {
		return leave.Request{}, errors.Wrap(err, "inserting leave request")
	}
	return lr, nil
}

func (repo leaveRepository) GetRequest(ctx context.Context, id string, exec ...core.DBExecutor) (leave.Request, error) {
	if !isID(id) {
		return leave.Request{}, leave.ErrNotFound
	}
	var row leaveRow
	err := repo.bind(ctx, exec, &row, "SELECT "+leaveColumns+" FROM leave_requests WHERE id = ?", id)
	if err != nil {
		return leave.Request{}, trapNoRows(err, leave.ErrNotFound, "finding leave request")
	}
	return repo.unboil(row), nil
}

func (repo leaveRepository) QueryRequests(ctx context.Context, filter leave.QueryFilter, exec ...core.DBExecutor) ([]leave.Request, error) {
	lrs := make([]leave.Request, 0)
	var conds []string
	var args []interface{}
	if filter.SchoolID != "" {
		if !isID(filter.SchoolID) {
			return lrs, nil
		}
		conds = append(conds, "school_id = ?")
		args = append(args, filter.SchoolID)
	}
	if filter.TeacherID != "" {
		if !isID(filter.TeacherID) {
			return lrs, nil
		}
		conds = append(conds, "teacher_id = ?")
		args = append(args, filter.TeacherID)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}

	q := "SELECT " + leaveColumns + " FROM leave_requests"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY from_date, created_at, id"

	var rows []leaveRow
	if err := repo.bind(ctx, exec, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying leave requests")
	}
	for _, r := range rows {
		lrs = append(lrs, repo.unboil(r))
	}
	return lrs, nil
}

func (repo leaveRepository) HasOverlap(ctx context.Context, teacherID string, from, to time.Time, exec ...core.DBExecutor) (bool, error) {
	if !isID(teacherID) {
		return false, nil
	}
	var rows []struct {
		ID string `boil:"id"`
	}
	err := repo.bind(ctx, exec, &rows,
		"SELECT id FROM leave_requests WHERE teacher_id = ? AND status <> ? AND from_date <= ? AND to_date >= ? LIMIT 1",
		teacherID, string(leave.StatusRejected), to.UTC(), from.UTC())
	if err != nil {
		return false, errors.Wrap(err, "checking leave overlap")
	}
	return len(rows) > 0, nil
}

// LockTeacher locks the teacher's user row.
func (repo leaveRepository) LockTeacher(ctx context.Context, teacherID string, exec ...core.DBExecutor) error {
	if !isID(teacherID) {
		return user.ErrNotFound
	}
	var row struct {
		ID string `boil:"id"`
	}
	err := repo.bind(ctx, exec, &row, "SELECT id FROM users WHERE id = ?"+repo.forUpdate(), teacherID)
	return trapNoRows(err, user.ErrNotFound, "locking teacher")
}

func (repo leaveRepository) DecideRequest(ctx context.Context, id string, status leave.Status, approverID string, at time.Time, exec ...core.DBExecutor) (bool, error) {
	if !isID(id) {
		return false, leave.ErrNotFound
	}
	n, err := repo.affected(ctx, exec,
		"UPDATE leave_requests SET status = ?, approver_id = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(status), nullIfEmpty(approverID), at.UTC(), id, string(leave.StatusPending))
	if err != nil {
		return false, errors.Wrap(err, "deciding leave request")
	}
	if n > 0 {
		return true, nil
	}
	if _, err = repo.GetRequest(ctx, id, exec...); err != nil {
		return false, err
	}
	return false, nil
}
