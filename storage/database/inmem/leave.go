package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/leave"
)

type leaveRepository struct {
	db *DB
}

var _ leave.Repository = (*leaveRepository)(nil) // interface compliance check

func NewLeaveRepository(db *DB) *leaveRepository {
	return &leaveRepository{db: db}
}

func (repo *leaveRepository) CreateRequest(ctx context.Context, lr leave.Request, exec ...core.DBExecutor) (leave.Request, error) {
	err := repo.db.write(exec, func(t *tables) error {
		lr.ID = uuid.New().String()
		t.leaves[lr.ID] = lr
		return nil
	})
	if err != nil {
		return leave.Request{}, err
	}
	return lr, nil
}

func (repo *leaveRepository) GetRequest(ctx context.Context, id string, exec ...core.DBExecutor) (leave.Request, error) {
	var lr leave.Request
	err := repo.db.read(func(t *tables) error {
		r, ok := t.leaves[id]
		if !ok {
			return leave.ErrNotFound
		}
		lr = r
		return nil
	})
	return lr, err
}

func (repo *leaveRepository) QueryRequests(ctx context.Context, filter leave.QueryFilter, exec ...core.DBExecutor) ([]leave.Request, error) {
	lrs := make([]leave.Request, 0)
	_ = repo.db.read(func(t *tables) error {
		for _, r := range t.leaves {
			if (filter.SchoolID == "" || r.SchoolID == filter.SchoolID) &&
				(filter.TeacherID == "" || r.TeacherID == filter.TeacherID) &&
				(filter.Status == "" || r.Status == filter.Status) {
				lrs = append(lrs, r)
			}
		}
		return nil
	})
	sort.Slice(lrs, func(i, j int) bool {
		if lrs[i].From.Equal(lrs[j].From) {
			return lrs[i].ID < lrs[j].ID
		}
		return lrs[i].From.Before(lrs[j].From)
	})
	return lrs, nil
}

func (repo *leaveRepository) HasOverlap(ctx context.Context, teacherID string, from, to time.Time, exec ...core.DBExecutor) (bool, error) {
	var overlap bool
	_ = repo.db.read(func(t *tables) error {
		for _, r := range t.leaves {
			if r.TeacherID == teacherID && r.Status != leave.StatusRejected && r.Overlaps(from, to) {
				overlap = true
				break
			}
		}
		return nil
	})
	return overlap, nil
}

// LockTeacher is a no-op: units of work are already serialized.
func (repo *leaveRepository) LockTeacher(ctx context.Context, teacherID string, exec ...core.DBExecutor) error {
	return nil
}

func (repo *leaveRepository) DecideRequest(ctx context.Context, id string, status leave.Status, approverID string, at time.Time, exec ...core.DBExecutor) (bool, error) {
	var ok bool
	err := repo.db.write(exec, func(t *tables) error {
		r, found := t.leaves[id]
		if !found {
			return leave.ErrNotFound
		}
		if r.Status != leave.StatusPending {
			return nil
		}
		r.Status = status
		r.ApproverID = approverID
		r.UpdatedAt = at
		t.leaves[id] = r
		ok = true
		return nil
	})
	return ok, err
}
