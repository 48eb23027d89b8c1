package inmemdb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/school"
)

type schoolRepository struct {
	db *DB
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *DB) *schoolRepository {
	return &schoolRepository{db: db}
}

func (repo *schoolRepository) CreateSchool(ctx context.Context, sch school.School, exec ...core.DBExecutor) (school.School, error) {
	err := repo.db.write(exec, func(t *tables) error {
		for _, s := range t.schools {
			if s.Code == sch.Code {
				return school.ErrCodeExists
			}
		}
		sch.ID = uuid.New().String()
		t.schools[sch.ID] = sch
		return nil
	})
	if err != nil {
		return school.School{}, err
	}
	return sch, nil
}

func (repo *schoolRepository) QuerySchools(ctx context.Context, ids []string, exec ...core.DBExecutor) ([]school.School, error) {
	schools := make([]school.School, 0)
	_ = repo.db.read(func(t *tables) error {
		if ids == nil {
			for _, s := range t.schools {
				schools = append(schools, s)
			}
			return nil
		}
		for _, id := range ids {
			if s, ok := t.schools[id]; ok {
				schools = append(schools, s)
			}
		}
		return nil
	})
	byCreation(schools, func(s school.School) (time.Time, string) { return s.CreatedAt, s.ID })
	return schools, nil
}

func (repo *schoolRepository) GetSchool(ctx context.Context, id string, exec ...core.DBExecutor) (school.School, error) {
	var sch school.School
	err := repo.db.read(func(t *tables) error {
		s, ok := t.schools[id]
		if !ok {
			return school.ErrNotFound
		}
		sch = s
		return nil
	})
	return sch, err
}

func (repo *schoolRepository) CodeExists(ctx context.Context, code string, exec ...core.DBExecutor) (bool, error) {
	var exists bool
	_ = repo.db.read(func(t *tables) error {
		for _, s := range t.schools {
			if s.Code == code {
				exists = true
				break
			}
		}
		return nil
	})
	return exists, nil
}

func (repo *schoolRepository) CreateClass(ctx context.Context, cls school.Class, exec ...core.DBExecutor) (school.Class, error) {
	err := repo.db.write(exec, func(t *tables) error {
		if _, ok := t.schools[cls.SchoolID]; !ok {
			return school.ErrNotFound
		}
		cls.ID = uuid.New().String()
		t.classes[cls.ID] = cls
		return nil
	})
	if err != nil {
		return school.Class{}, err
	}
	return cls, nil
}

func (repo *schoolRepository) QueryClasses(ctx context.Context, schoolID string, exec ...core.DBExecutor) ([]school.Class, error) {
	classes := make([]school.Class, 0)
	_ = repo.db.read(func(t *tables) error {
		for _, c := range t.classes {
			if c.SchoolID == schoolID {
				classes = append(classes, c)
			}
		}
		return nil
	})
	byCreation(classes, func(c school.Class) (time.Time, string) { return c.CreatedAt, c.ID })
	return classes, nil
}

func (repo *schoolRepository) GetClass(ctx context.Context, id string, exec ...core.DBExecutor) (school.Class, error) {
	var cls school.Class
	err := repo.db.read(func(t *tables) error {
		c, ok := t.classes[id]
		if !ok {
			return school.ErrClassNotFound
		}
		cls = c
		return nil
	})
	return cls, err
}

func (repo *schoolRepository) ClassExists(ctx context.Context, schoolID, name, section string, exec ...core.DBExecutor) (bool, error) {
	var exists bool
	_ = repo.db.read(func(t *tables) error {
		for _, c := range t.classes {
			if c.SchoolID == schoolID && c.Name == name && c.Section == section {
				exists = true
				break
			}
		}
		return nil
	})
	return exists, nil
}
