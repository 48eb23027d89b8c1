package boiledrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/school"
)

type schoolRow struct {
	ID        string    `boil:"id"`
	Name      string    `boil:"name"`
	Code      string    `boil:"code"`
	CreatedAt time.Time `boil:"created_at"`
}

type classRow struct {
	ID        string    `boil:"id"`
	SchoolID  string    `boil:"school_id"`
	Name      string    `boil:"name"`
	Section   string    `boil:"section"`
	CreatedAt time.Time `boil:"created_at"`
}

type schoolRepository struct {
	store
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(exec core.DBExecutor, engine string) *schoolRepository {
	return &schoolRepository{store: newStore(exec, engine)}
}

func (repo schoolRepository) unboil(r schoolRow) school.School {
	return school.School{ID: r.ID, Name: r.Name, Code: r.Code, CreatedAt: r.CreatedAt.UTC()}
}

func (repo schoolRepository) unboilClass(r classRow) school.Class {
	return school.Class{ID: r.ID, SchoolID: r.SchoolID, Name: r.Name, Section: r.Section, CreatedAt: r.CreatedAt.UTC()}
}

func (repo schoolRepository) CreateSchool(ctx context.Context, sch school.School, exec ...core.DBExecutor) (school.School, error) {
	sch.ID = uuid.New().String()
	_, err := repo.execute(ctx, exec,
		"INSERT INTO schools (id, name, code, created_at) VALUES (?, ?, ?, ?)",
		sch.ID, sch.Name, sch.Code, sch.CreatedAt.UTC())
	if err != nil {
		return school.School{}, errors.Wrap(err, "inserting school")
	}
	return sch, nil
}

func (repo schoolRepository) QuerySchools(ctx context.Context, ids []string, exec ...core.DBExecutor) ([]school.School, error) {
	schools := make([]school.School, 0)
	if ids != nil {
		valid := make([]string, 0, len(ids))
		for _, id := range ids {
			if isID(id) {
				valid = append(valid, id)
			}
		}
		if len(valid) == 0 {
			return schools, nil
		}
		ids = valid
	}

	q := "SELECT id, name, code, created_at FROM schools"
	var args []interface{}
	if ids != nil {
		var err error
		if q, args, err = repo.in(q+" WHERE id IN (?)", ids); err != nil {
			return nil, err
		}
	}
	q += " ORDER BY created_at, id"

	var rows []schoolRow
	if err := repo.bind(ctx, exec, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying schools")
	}
	for _, r := range rows {
		schools = append(schools, repo.unboil(r))
	}
	return schools, nil
}

func (repo schoolRepository) GetSchool(ctx context.Context, id string, exec ...core.DBExecutor) (school.School, error) {
	if !isID(id) {
		return school.School{}, school.ErrNotFound
	}
	var row schoolRow
	err := repo.bind(ctx, exec, &row, "SELECT id, name, code, created_at FROM schools WHERE id = ?", id)
	if err != nil {
		return school.School{}, trapNoRows(err, school.ErrNotFound, "finding school")
	}
	return repo.unboil(row), nil
}

func (repo schoolRepository) exists(ctx context.Context, exec []core.DBExecutor, q string, args ...interface{}) (bool, error) {
	var rows []struct {
		ID string `boil:"id"`
	}
	if err := repo.bind(ctx, exec, &rows, q, args...); err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func (repo schoolRepository) CodeExists(ctx context.Context, code string, exec ...core.DBExecutor) (bool, error) {
	return repo.exists(ctx, exec, "SELECT id FROM schools WHERE code = ? LIMIT 1", code)
}

func (repo schoolRepository) CreateClass(ctx context.Context, cls school.Class, exec ...core.DBExecutor) (school.Class, error) {
	cls.ID = uuid.New().String()
	_, err := repo.execute(ctx, exec,
		"INSERT INTO classes (id, school_id, name, section, created_at) VALUES (?, ?, ?, ?, ?)",
		cls.ID, cls.SchoolID, cls.Name, cls.Section, cls.CreatedAt.UTC())
	if err != nil {
		return school.Class{}, errors.Wrap(err, "inserting class")
	}
	return cls, nil
}

func (repo schoolRepository) QueryClasses(ctx context.Context, schoolID string, exec ...core.DBExecutor) ([]school.Class, error) {
	if !isID(schoolID) {
		return []school.Class{}, nil
	}
	var rows []classRow
	err := repo.bind(ctx, exec, &rows,
		"SELECT id, school_id, name, section, created_at FROM classes WHERE school_id = ? ORDER BY created_at, id", schoolID)
	if err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	classes := make([]school.Class, 0, len(rows))
	for _, r := range rows {
		classes = append(classes, repo.unboilClass(r))
	}
	return classes, nil
}

func (repo schoolRepository) GetClass(ctx context.Context, id string, exec ...core.DBExecutor) (school.Class, error) {
	if !isID(id) {
		return school.Class{}, school.ErrClassNotFound
	}
	var row classRow
	err := repo.bind(ctx, exec, &row, "SELECT id, school_id, name, section, created_at FROM classes WHERE id = ?", id)
	if err != nil {
		return school.Class{}, trapNoRows(err, school.ErrClassNotFound, "finding class")
	}
	return repo.unboilClass(row), nil
}

func (repo schoolRepository) ClassExists(ctx context.Context, schoolID, name, section string, exec ...core.DBExecutor) (bool, error) {
	if !isID(schoolID) {
		return false, nil
	}
	return repo.exists(ctx, exec,
		"SELECT id FROM classes WHERE school_id = ? AND name = ? AND section = ? LIMIT 1", schoolID, name, section)
}
