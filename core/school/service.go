package school

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

var (
	// errors
	ErrNotFound      = core.NewNotFoundError("school")
	ErrClassNotFound = core.NewNotFoundError("class")
	ErrCodeExists    = errors.New("a school with this code already exists")
	ErrClassExists   = errors.New("this class already exists")
)

type (
	Repository interface {
		CreateSchool(ctx context.Context, sch School, exec ...core.DBExecutor) (School, error)
		QuerySchools(ctx context.Context, ids []string, exec ...core.DBExecutor) ([]School, error)
		GetSchool(ctx context.Context, id string, exec ...core.DBExecutor) (School, error)
		CodeExists(ctx context.Context, code string, exec ...core.DBExecutor) (bool, error)

		CreateClass(ctx context.Context, cls Class, exec ...core.DBExecutor) (Class, error)
		QueryClasses(ctx context.Context, schoolID string, exec ...core.DBExecutor) ([]Class, error)
		GetClass(ctx context.Context, id string, exec ...core.DBExecutor) (Class, error)
		ClassExists(ctx context.Context, schoolID, name, section string, exec ...core.DBExecutor) (bool, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create registers a new School. Super admins only.
func (svc *Service) Create(ctx context.Context, p user.Principal, ns NewSchool) (School, error) {
	if !p.IsSuperAdmin() {
		return School{}, core.ErrForbidden
	}
	exists, err := svc.repo.CodeExists(ctx, ns.Code)
	if err != nil {
		return School{}, errors.Wrap(err, "checking school code")
	}
	if exists {
		return School{}, core.NewValidationError(nil, core.FieldError{Field: "code", Error: ErrCodeExists.Error()})
	}
	return svc.repo.CreateSchool(ctx, School{
		Name:      ns.Name,
		Code:      ns.Code,
		CreatedAt: time.Now().UTC(),
	})
}

// List returns every School for super admins, the caller's own School otherwise.
func (svc *Service) List(ctx context.Context, p user.Principal) ([]School, error) {
	if p.IsSuperAdmin() {
		return svc.repo.QuerySchools(ctx, nil)
	}
	if p.SchoolID == "" {
		return []School{}, nil
	}
	return svc.repo.QuerySchools(ctx, []string{p.SchoolID})
}

func (svc *Service) Get(ctx context.Context, p user.Principal, id string) (School, error) {
	if !p.CanAccessSchool(id) {
		return School{}, core.ErrForbidden
	}
	return svc.repo.GetSchool(ctx, id)
}

func (svc *Service) CreateClass(ctx context.Context, p user.Principal, schoolID string, nc NewClass) (Class, error) {
	if !p.CanAdminSchool(schoolID) {
		return Class{}, core.ErrForbidden
	}
	if _, err := svc.repo.GetSchool(ctx, schoolID); err != nil {
		return Class{}, err
	}
	exists, err := svc.repo.ClassExists(ctx, schoolID, nc.Name, nc.Section)
	if err != nil {
		return Class{}, errors.Wrap(err, "checking class uniqueness")
	}
	if exists {
		return Class{}, core.NewValidationError(nil, core.FieldError{Field: "name", Error: ErrClassExists.Error()})
	}
	return svc.repo.CreateClass(ctx, Class{
		SchoolID:  schoolID,
		Name:      nc.Name,
		Section:   nc.Section,
		CreatedAt: time.Now().UTC(),
	})
}

func (svc *Service) ListClasses(ctx context.Context, p user.Principal, schoolID string) ([]Class, error) {
	if !p.CanAccessSchool(schoolID) {
		return nil, core.ErrForbidden
	}
	return svc.repo.QueryClasses(ctx, schoolID)
}
