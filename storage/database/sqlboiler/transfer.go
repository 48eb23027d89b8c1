package boiledrepos

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/transfer"
)

const (
	certificateColumns = "id, student_id, school_id, status, reason, requested_by, approved_by, issued_date, tc_document_url, created_at, updated_at"
	historyColumns     = "id, original_student_id, school_id, data, reason, deactivated_by, deactivated_at"
)

type certificateRow struct {
	ID          string      `boil:"id"`
	StudentID   string      `boil:"student_id"`
	SchoolID    string      `boil:"school_id"`
	Status      string      `boil:"status"`
	Reason      string      `boil:"reason"`
	RequestedBy string      `boil:"requested_by"`
	ApprovedBy  null.String `boil:"approved_by"`
	IssuedDate  null.Time   `boil:"issued_date"`
	DocumentURL null.String `boil:"tc_document_url"`
	CreatedAt   time.Time   `boil:"created_at"`
	UpdatedAt   time.Time   `boil:"updated_at"`
}

type historyRow struct {
	ID                string    `boil:"id"`
	OriginalStudentID string    `boil:"original_student_id"`
	SchoolID          string    `boil:"school_id"`
	Data              string    `boil:"data"`
	Reason            string    `boil:"reason"`
	DeactivatedBy     string    `boil:"deactivated_by"`
	DeactivatedAt     time.Time `boil:"deactivated_at"`
}

type transferRepository struct {
	store
}

var _ transfer.Repository = (*transferRepository)(nil) // interface compliance check

func NewTransferRepository(exec core.DBExecutor, engine string) *transferRepository {
	return &transferRepository{store: newStore(exec, engine)}
}

func (repo transferRepository) unboil(r certificateRow) transfer.Certificate {
	return transfer.Certificate{
		ID:          r.ID,
		StudentID:   r.StudentID,
		SchoolID:    r.SchoolID,
		Status:      transfer.Status(r.Status),
		Reason:      r.Reason,
		RequestedBy: r.RequestedBy,
		ApprovedBy:  r.ApprovedBy.String,
		IssuedDate:  r.IssuedDate.Time.UTC(),
		DocumentURL: r.DocumentURL.String,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func (repo transferRepository) CreateCertificate(ctx context.Context, tc transfer.Certificate, exec ...core.DBExecutor) (transfer.Certificate, error) {
	tc.ID = uuid.New().String()
	_, err := repo.execute(ctx, exec,
		"INSERT INTO transfer_certificates ("+certificateColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		tc.ID, tc.StudentID, tc.SchoolID, string(tc.Status), tc.Reason, tc.RequestedBy, nullIfEmpty(tc.ApprovedBy),
		null.NewTime(tc.IssuedDate.UTC(), !tc.IssuedDate.IsZero()), nullIfEmpty(tc.DocumentURL),
		tc.CreatedAt.UTC(), tc.UpdatedAt.UTC())
	if err != nil {
		return transfer.Certificate{}, errors.Wrap(err, "inserting transfer certificate")
	}
	return tc, nil
}

func (repo transferRepository) GetCertificate(ctx context.Context, id string, exec ...core.DBExecutor) (transfer.Certificate, error) {
	if !isID(id) {
		return transfer.Certificate{}, transfer.ErrNotFound
	}
	var row certificateRow
	err := repo.bind(ctx, exec, &row, "SELECT "+certificateColumns+" FROM transfer_certificates WHERE id = ?", id)
	if err != nil {
		return transfer.Certificate{}, trapNoRows(err, transfer.ErrNotFound, "finding transfer certificate")
	}
	return repo.unboil(row), nil
}

func (repo transferRepository) QueryCertificates(ctx context.Context, filter transfer.QueryFilter, exec ...core.DBExecutor) ([]transfer.Certificate, error) {
	tcs := make([]transfer.Certificate, 0)
	var conds []string
	var args []interface{}
	if filter.SchoolID != "" {
		if !isID(filter.SchoolID) {
			return tcs, nil
		}
		conds = append(conds, "school_id = ?")
		args = append(args, filter.SchoolID)
	}
	if filter.StudentID != "" {
		if !isID(filter.StudentID) {
			return tcs, nil
		}
		conds = append(conds, "student_id = ?")
		args = append(args, filter.StudentID)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}

	q := "SELECT " + certificateColumns + " FROM transfer_certificates"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC"

	var rows []certificateRow
	if err := repo.bind(ctx, exec, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying transfer certificates")
	}
	for _, r := range rows {
		tcs = append(tcs, repo.unboil(r))
	}
	return tcs, nil
}

func (repo transferRepository) HasOpenCertificate(ctx context.Context, studentID string, exec ...core.DBExecutor) (bool, error) {
	if !isID(studentID) {
		return false, nil
	}
	var rows []struct {
		ID string `boil:"id"`
	}
	err := repo.bind(ctx, exec, &rows,
		"SELECT id FROM transfer_certificates WHERE student_id = ? AND status IN (?, ?) LIMIT 1",
		studentID, string(transfer.StatusPending), string(transfer.StatusApproved))
	if err != nil {
		return false, errors.Wrap(err, "checking open transfer certificates")
	}
	return len(rows) > 0, nil
}

func (repo transferRepository) DecideCertificate(ctx context.Context, tc transfer.Certificate, exec ...core.DBExecutor) (bool, error) {
	if !isID(tc.ID) {
		return false, transfer.ErrNotFound
	}
	n, err := repo.affected(ctx, exec,
		`UPDATE transfer_certificates SET status = ?, approved_by = ?, issued_date = ?, tc_document_url = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(tc.Status), nullIfEmpty(tc.ApprovedBy), null.NewTime(tc.IssuedDate.UTC(), !tc.IssuedDate.IsZero()),
		nullIfEmpty(tc.DocumentURL), tc.UpdatedAt.UTC(), tc.ID, string(transfer.StatusPending))
	if err != nil {
		return false, errors.Wrap(err, "deciding transfer certificate")
	}
	if n > 0 {
		return true, nil
	}
	if _, err = repo.GetCertificate(ctx, tc.ID, exec...); err != nil {
		return false, err
	}
	return false, nil
}

func (repo transferRepository) CreateHistory(ctx context.Context, h transfer.StudentHistory, exec ...core.DBExecutor) (transfer.StudentHistory, error) {
	h.ID = uuid.New().String()
	_, err := repo.execute(ctx, exec,
		"INSERT INTO student_histories ("+historyColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		h.ID, h.OriginalStudentID, h.SchoolID, string(h.Data), h.Reason, h.DeactivatedBy, h.DeactivatedAt.UTC())
	if err != nil {
		return transfer.StudentHistory{}, errors.Wrap(err, "inserting student history")
	}
	return h, nil
}

func (repo transferRepository) QueryHistories(ctx context.Context, schoolID string, exec ...core.DBExecutor) ([]transfer.StudentHistory, error) {
	hs := make([]transfer.StudentHistory, 0)
	q := "SELECT " + historyColumns + " FROM student_histories"
	var args []interface{}
	if schoolID != "" {
		if !isID(schoolID) {
			return hs, nil
		}
		q += " WHERE school_id = ?"
		args = append(args, schoolID)
	}
	q += " ORDER BY deactivated_at, id"

	var rows []historyRow
	if err := repo.bind(ctx, exec, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying student histories")
	}
	for _, r := range rows {
		hs = append(hs, transfer.StudentHistory{
			ID:                r.ID,
			OriginalStudentID: r.OriginalStudentID,
			SchoolID:          r.SchoolID,
			Data:              json.RawMessage(r.Data),
			Reason:            r.Reason,
			DeactivatedBy:     r.DeactivatedBy,
			DeactivatedAt:     r.DeactivatedAt.UTC(),
		})
	}
	return hs, nil
}
