package inmemdb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/student"
)

type studentRepository struct {
	db *DB
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *DB) *studentRepository {
	return &studentRepository{db: db}
}

func (repo *studentRepository) CreateStudent(ctx context.Context, s student.Student, exec ...core.DBExecutor) (student.Student, error) {
	err := repo.db.write(exec, func(t *tables) error {
		for _, st := range t.students {
			if st.SchoolID == s.SchoolID && st.AdmissionNo == s.AdmissionNo {
				return student.ErrAdmissionNoExists
			}
		}
		s.ID = uuid.New().String()
		t.students[s.ID] = s
		return nil
	})
	if err != nil {
		return student.Student{}, err
	}
	return s, nil
}

func (repo *studentRepository) GetStudent(ctx context.Context, filter student.GetFilter, exec ...core.DBExecutor) (student.Student, error) {
	var stud student.Student
	err := repo.db.read(func(t *tables) error {
		if filter.ID != "" {
			s, ok := t.students[filter.ID]
			if !ok {
				return student.ErrNotFound
			}
			stud = s
			return nil
		}
		if filter.UserID != "" {
			for _, s := range t.students {
				if s.UserID == filter.UserID {
					stud = s
					return nil
				}
			}
		}
		return student.ErrNotFound
	})
	return stud, err
}

func (repo *studentRepository) AdmissionNoExists(ctx context.Context, schoolID, admissionNo string, exec ...core.DBExecutor) (bool, error) {
	var exists bool
	_ = repo.db.read(func(t *tables) error {
		for _, s := range t.students {
			if s.SchoolID == schoolID && s.AdmissionNo == admissionNo {
				exists = true
				break
			}
		}
		return nil
	})
	return exists, nil
}

func (repo *studentRepository) QueryStudents(ctx context.Context, filter student.QueryFilter, exec ...core.DBExecutor) ([]student.Student, error) {
	students := make([]student.Student, 0)
	_ = repo.db.read(func(t *tables) error {
		for _, s := range t.students {
			if (filter.SchoolID == "" || s.SchoolID == filter.SchoolID) &&
				(filter.ClassID == "" || s.ClassID == filter.ClassID) &&
				(filter.ParentID == "" || s.ParentID == filter.ParentID) {
				students = append(students, s)
			}
		}
		return nil
	})
	byCreation(students, func(s student.Student) (time.Time, string) { return s.CreatedAt, s.ID })
	return students, nil
}

func (repo *studentRepository) SetClass(ctx context.Context, id, classID string, at time.Time, exec ...core.DBExecutor) error {
	return repo.db.write(exec, func(t *tables) error {
		s, ok := t.students[id]
		if !ok {
			return student.ErrNotFound
		}
		s.ClassID = classID
		s.UpdatedAt = at
		t.students[id] = s
		return nil
	})
}

// LockStudent only checks the Student exists: units of work are already serialized.
func (repo *studentRepository) LockStudent(ctx context.Context, id string, exec ...core.DBExecutor) error {
	_, err := repo.GetStudent(ctx, student.GetFilter{ID: id}, exec...)
	return err
}
