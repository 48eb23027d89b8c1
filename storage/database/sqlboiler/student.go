package boiledrepos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/student"
)

const studentColumns = "id, user_id, school_id, class_id, parent_id, admission_no, name, created_at, updated_at"

type studentRow struct {
	ID          string      `boil:"id"`
	UserID      string      `boil:"user_id"`
	SchoolID    string      `boil:"school_id"`
	ClassID     null.String `boil:"class_id"`
	ParentID    null.String `boil:"parent_id"`
	AdmissionNo string      `boil:"admission_no"`
	Name        string      `boil:"name"`
	CreatedAt   time.Time   `boil:"created_at"`
	UpdatedAt   time.Time   `boil:"updated_at"`
}

type studentRepository struct {
	store
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(exec core.DBExecutor, engine string) *studentRepository {
	return &studentRepository{store: newStore(exec, engine)}
}

func (repo studentRepository) unboil(r studentRow) student.Student {
	return student.Student{
		ID:          r.ID,
		UserID:      r.UserID,
		SchoolID:    r.SchoolID,
		ClassID:     r.ClassID.String,
		ParentID:    r.ParentID.String,
		AdmissionNo: r.AdmissionNo,
		Name:        r.Name,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func (repo studentRepository) CreateStudent(ctx context.Context, s student.Student, exec ...core.DBExecutor) (student.Student, error) {
	s.ID = uuid.New().String()
	_, err := repo.execute(ctx, exec,
		"INSERT INTO students ("+studentColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		s.ID, s.UserID, s.SchoolID, nullIfEmpty(s.ClassID), nullIfEmpty(s.ParentID), s.AdmissionNo, s.Name,
		s.CreatedAt.UTC(), s.UpdatedAt.UTC())
	if err != nil {
		return student.Student{}, errors.Wrap(err, "inserting student")
	}
	return s, nil
}

func (repo studentRepository) GetStudent(ctx context.Context, filter student.GetFilter, exec ...core.DBExecutor) (student.Student, error) {
	q := "SELECT " + studentColumns + " FROM students WHERE "
	var arg string
	if (filter.ID != "" && !isID(filter.ID)) || (filter.ID == "" && filter.UserID != "" && !isID(filter.UserID)) {
		return student.Student{}, student.ErrNotFound
	}
	switch {
	case filter.ID != "":
		q, arg = q+"id = ?", filter.ID
	case filter.UserID != "":
		q, arg = q+"user_id = ?", filter.UserID
	default:
		return student.Student{}, student.ErrNotFound
	}

	var row studentRow
	if err := repo.bind(ctx, exec, &row, q, arg); err != nil {
		return student.Student{}, trapNoRows(err, student.ErrNotFound, "finding student")
	}
	return repo.unboil(row), nil
}

func (repo studentRepository) AdmissionNoExists(ctx context.Context, schoolID, admissionNo string, exec ...core.DBExecutor) (bool, error) {
	if !isID(schoolID) {
		return false, nil
	}
	var rows []struct {
		ID string `boil:"id"`
	}
	err := repo.bind(ctx, exec, &rows,
		"SELECT id FROM students WHERE school_id = ? AND admission_no = ? LIMIT 1", schoolID, admissionNo)
	if err != nil {
		return false, errors.Wrap(err, "checking admission number")
	}
	return len(rows) > 0, nil
}

func (repo studentRepository) QueryStudents(ctx context.Context, filter student.QueryFilter, exec ...core.DBExecutor) ([]student.Student, error) {
	for _, id := range []string{filter.SchoolID, filter.ClassID, filter.ParentID} {
		if id != "" && !isID(id) {
			return []student.Student{}, nil
		}
	}
	var conds []string
	var args []interface{}
	if filter.SchoolID != "" {
		conds = append(conds, "school_id = ?")
		args = append(args, filter.SchoolID)
	}
	if filter.ClassID != "" {
		conds = append(conds, "class_id = ?")
		args = append(args, filter.ClassID)
	}
	if filter.ParentID != "" {
		conds = append(conds, "parent_id = ?")
		args = append(args, filter.ParentID)
	}

	q := "SELECT " + studentColumns + " FROM students"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY created_at, id"

	var rows []studentRow
	if err := repo.bind(ctx, exec, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	students := make([]student.Student, 0, len(rows))
	for _, r := range rows {
		students = append(students, repo.unboil(r))
	}
	return students, nil
}

func (repo studentRepository) SetClass(ctx context.Context, id, classID string, at time.Time, exec ...core.DBExecutor) error {
	if !isID(id) {
		return student.ErrNotFound
	}
	n, err := repo.affected(ctx, exec,
		"UPDATE students SET class_id = ?, updated_at = ? WHERE id = ?", nullIfEmpty(classID), at.UTC(), id)
	if err != nil {
		return errors.Wrap(err, "setting student class")
	}
	if n == 0 {
		return student.ErrNotFound
	}
	return nil
}

func (repo studentRepository) LockStudent(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !isID(id) {
		return student.ErrNotFound
	}
	var row struct {
		ID string `boil:"id"`
	}
	err := repo.bind(ctx, exec, &row, "SELECT id FROM students WHERE id = ?"+repo.forUpdate(), id)
	return trapNoRows(err, student.ErrNotFound, "locking student")
}
