package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func copyUser(usr user.User) user.User {
	usr.Roles = append([]string(nil), usr.Roles...)
	usr.PasswordHash = append([]byte(nil), usr.PasswordHash...)
	if usr.IsActive != nil {
		usr.SetActive(*usr.IsActive)
	}
	return usr
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	excluded := make(map[string]bool, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded[u.ID] = true
	}
	return repo.db.read(func(t *tables) error {
		return checkUniqueness(t, username, email, excluded)
	})
}

func checkUniqueness(t *tables, username, email string, excluded map[string]bool) error {
	for _, usr := range t.users {
		if excluded[usr.ID] {
			continue
		}
		if username != "" && usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	err := repo.db.write(exec, func(t *tables) error {
		if err := checkUniqueness(t, usr.Username, usr.Email, nil); err != nil {
			return err
		}
		usr.ID = uuid.New().String()
		t.users[usr.ID] = copyUser(usr)
		return nil
	})
	if err != nil {
		return user.User{}, err
	}
	return usr, nil
}

func matchUser(usr user.User, filter *user.QueryFilter) bool {
	if filter == nil {
		return true
	}
	if filter.SchoolID != "" && usr.SchoolID != filter.SchoolID {
		return false
	}
	if filter.Search != "" {
		s := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(usr.Name), s) &&
			!strings.Contains(strings.ToLower(usr.Username), s) &&
			!strings.Contains(strings.ToLower(usr.Email), s) {
			return false
		}
	}
	if len(filter.Roles) > 0 {
		var found bool
		for _, role := range filter.Roles {
			if usr.RoleStartsWith(role) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.IsActive != nil && (usr.IsActive == nil || *usr.IsActive != *filter.IsActive) {
		return false
	}
	if !filter.CreatedFrom.IsZero() && usr.CreatedAt.Before(filter.CreatedFrom) {
		return false
	}
	if !filter.CreatedTo.IsZero() && usr.CreatedAt.After(filter.CreatedTo) {
		return false
	}
	return true
}

// compareUsers compares a and b on an orderable field; unknown fields compare equal.
func compareUsers(a, b user.User, field string) int {
	cmpTime := func(x, y time.Time) int {
		switch {
		case x.Before(y):
			return -1
		case x.After(y):
			return 1
		}
		return 0
	}
	switch field {
	case "name":
		return strings.Compare(a.Name, b.Name)
	case "username":
		return strings.Compare(a.Username, b.Username)
	case "email":
		return strings.Compare(a.Email, b.Email)
	case "created_at":
		return cmpTime(a.CreatedAt, b.CreatedAt)
	case "updated_at":
		return cmpTime(a.UpdatedAt, b.UpdatedAt)
	case "last_login":
		return cmpTime(a.LastLogin, b.LastLogin)
	}
	return 0
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	users := make([]user.User, 0)
	_ = repo.db.read(func(t *tables) error {
		for _, usr := range t.users {
			if matchUser(usr, filter) {
				users = append(users, copyUser(usr))
			}
		}
		return nil
	})

	byCreation(users, func(u user.User) (time.Time, string) { return u.CreatedAt, u.ID })
	if len(ordering) > 0 {
		sort.SliceStable(users, func(i, j int) bool {
			for _, ord := range ordering {
				c := compareUsers(users[i], users[j], ord.Field)
				if c == 0 {
					continue
				}
				if ord.Ascending {
					return c < 0
				}
				return c > 0
			}
			return false
		})
	}
	return users, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	var usr user.User
	err := repo.db.read(func(t *tables) error {
		if filter.ID != "" {
			u, ok := t.users[filter.ID]
			if !ok {
				return user.ErrNotFound
			}
			usr = copyUser(u)
			return nil
		}
		for _, u := range t.users {
			switch {
			case filter.Username != "" && u.Username == filter.Username,
				filter.Email != "" && u.Email == filter.Email,
				filter.UsernameOrEmail != "" && (u.Username == filter.UsernameOrEmail || u.Email == filter.UsernameOrEmail):
				usr = copyUser(u)
				return nil
			}
		}
		return user.ErrNotFound
	})
	if err != nil {
		return user.User{}, err
	}
	return usr, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	err := repo.db.write(exec, func(t *tables) error {
		if _, ok := t.users[usr.ID]; !ok {
			return user.ErrNotFound
		}
		if err := checkUniqueness(t, usr.Username, usr.Email, map[string]bool{usr.ID: true}); err != nil {
			return err
		}
		t.users[usr.ID] = copyUser(usr)
		return nil
	})
	if err != nil {
		return user.User{}, err
	}
	return usr, nil
}

func (repo *userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr, exec...)
	}
	return repo.UpdateUser(ctx, usr, exec...)
}

func (repo *userRepository) DeactivateUser(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) error {
	return repo.db.write(exec, func(t *tables) error {
		usr, ok := t.users[id]
		if !ok {
			return user.ErrNotFound
		}
		usr.PasswordHash = nil
		usr.SetActive(false)
		usr.UpdatedAt = at
		t.users[id] = usr
		return nil
	})
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	var cnt int
	err := repo.db.write(exec, func(t *tables) error {
		for _, id := range ids {
			if _, ok := t.users[id]; ok {
				delete(t.users, id)
				cnt++
			}
		}
		return nil
	})
	return cnt, err
}
