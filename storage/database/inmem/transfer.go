package inmemdb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/transfer"
)

type transferRepository struct {
	db *DB
}

var _ transfer.Repository = (*transferRepository)(nil) // interface compliance check

func NewTransferRepository(db *DB) *transferRepository {
	return &transferRepository{db: db}
}

func (repo *transferRepository) CreateCertificate(ctx context.Context, tc transfer.Certificate, exec ...core.DBExecutor) (transfer.Certificate, error) {
	err := repo.db.write(exec, func(t *tables) error {
		tc.ID = uuid.New().String()
		t.certificates[tc.ID] = tc
		return nil
	})
	if err != nil {
		return transfer.Certificate{}, err
	}
	return tc, nil
}

func (repo *transferRepository) GetCertificate(ctx context.Context, id string, exec ...core.DBExecutor) (transfer.Certificate, error) {
	var tc transfer.Certificate
	err := repo.db.read(func(t *tables) error {
		c, ok := t.certificates[id]
		if !ok {
			return transfer.ErrNotFound
		}
		tc = c
		return nil
	})
	return tc, err
}

func (repo *transferRepository) QueryCertificates(ctx context.Context, filter transfer.QueryFilter, exec ...core.DBExecutor) ([]transfer.Certificate, error) {
	tcs := make([]transfer.Certificate, 0)
	_ = repo.db.read(func(t *tables) error {
		for _, c := range t.certificates {
			if (filter.SchoolID == "" || c.SchoolID == filter.SchoolID) &&
				(filter.StudentID == "" || c.StudentID == filter.StudentID) &&
				(filter.Status == "" || c.Status == filter.Status) {
				tcs = append(tcs, c)
			}
		}
		return nil
	})
	byCreation(tcs, func(c transfer.Certificate) (time.Time, string) { return c.CreatedAt, c.ID })
	for i, j := 0, len(tcs)-1; i < j; i, j = i+1, j-1 { // newest first
		tcs[i], tcs[j] = tcs[j], tcs[i]
	}
	return tcs, nil
}

func (repo *transferRepository) HasOpenCertificate(ctx context.Context, studentID string, exec ...core.DBExecutor) (bool, error) {
	var open bool
	_ = repo.db.read(func(t *tables) error {
		for _, c := range t.certificates {
			if c.StudentID == studentID && (c.Status == transfer.StatusPending || c.Status == transfer.StatusApproved) {
				open = true
				break
			}
		}
		return nil
	})
	return open, nil
}

func (repo *transferRepository) DecideCertificate(ctx context.Context, tc transfer.Certificate, exec ...core.DBExecutor) (bool, error) {
	var ok bool
	err := repo.db.write(exec, func(t *tables) error {
		stored, found := t.certificates[tc.ID]
		if !found {
			return transfer.ErrNotFound
		}
		if stored.Status != transfer.StatusPending {
			return nil
		}
		stored.Status = tc.Status
		stored.ApprovedBy = tc.ApprovedBy
		stored.IssuedDate = tc.IssuedDate
		stored.DocumentURL = tc.DocumentURL
		stored.UpdatedAt = tc.UpdatedAt
		t.certificates[tc.ID] = stored
		ok = true
		return nil
	})
	return ok, err
}

func (repo *transferRepository) CreateHistory(ctx context.Context, h transfer.StudentHistory, exec ...core.DBExecutor) (transfer.StudentHistory, error) {
	err := repo.db.write(exec, func(t *tables) error {
		h.ID = uuid.New().String()
		h.Data = append([]byte(nil), h.Data...)
		t.histories = append(t.histories, h)
		return nil
	})
	if err != nil {
		return transfer.StudentHistory{}, err
	}
	return h, nil
}

func (repo *transferRepository) QueryHistories(ctx context.Context, schoolID string, exec ...core.DBExecutor) ([]transfer.StudentHistory, error) {
	hs := make([]transfer.StudentHistory, 0)
	_ = repo.db.read(func(t *tables) error {
		for _, h := range t.histories {
			if schoolID == "" || h.SchoolID == schoolID {
				hs = append(hs, h)
			}
		}
		return nil
	})
	return hs, nil
}
