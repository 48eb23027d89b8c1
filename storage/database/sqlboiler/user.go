package boiledrepos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

const userColumns = "id, school_id, name, username, email, is_active, roles, password_hash, created_at, updated_at, last_login"

// orderable User columns
var userOrderings = map[string]bool{
	"name":       true,
	"username":   true,
	"email":      true,
	"created_at": true,
	"updated_at": true,
	"last_login": true,
}

type userRow struct {
	ID           string      `boil:"id"`
	SchoolID     null.String `boil:"school_id"`
	Name         null.String `boil:"name"`
	Username     null.String `boil:"username"`
	Email        null.String `boil:"email"`
	IsActive     null.Bool   `boil:"is_active"`
	Roles        string      `boil:"roles"`
	PasswordHash null.Bytes  `boil:"password_hash"`
	CreatedAt    null.Time   `boil:"created_at"`
	UpdatedAt    null.Time   `boil:"updated_at"`
	LastLogin    null.Time   `boil:"last_login"`
}

type userRepository struct {
	store
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor, engine string) *userRepository {
	return &userRepository{store: newStore(exec, engine)}
}

// roles are stored as ",role1,role2," so that a role prefix matches with LIKE '%,prefix%'.
func encodeRoles(roles []string) string {
	if len(roles) == 0 {
		return ""
	}
	return "," + strings.Join(roles, ",") + ","
}

func decodeRoles(s string) []string {
	s = strings.Trim(s, ",")
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func (repo userRepository) boil(usr user.User) userRow {
	return userRow{
		ID:           usr.ID,
		SchoolID:     null.NewString(usr.SchoolID, usr.SchoolID != ""),
		Name:         null.NewString(usr.Name, usr.Name != ""),
		Username:     null.NewString(usr.Username, usr.Username != ""),
		Email:        null.NewString(usr.Email, usr.Email != ""),
		IsActive:     null.BoolFromPtr(usr.IsActive),
		Roles:        encodeRoles(usr.Roles),
		PasswordHash: null.NewBytes(usr.PasswordHash, len(usr.PasswordHash) > 0),
		CreatedAt:    null.NewTime(usr.CreatedAt.UTC(), !usr.CreatedAt.IsZero()),
		UpdatedAt:    null.NewTime(usr.UpdatedAt.UTC(), !usr.UpdatedAt.IsZero()),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (repo userRepository) unboil(row userRow) user.User {
	return user.User{
		ID:           row.ID,
		SchoolID:     row.SchoolID.String,
		Name:         row.Name.String,
		Username:     row.Username.String,
		Email:        row.Email.String,
		IsActive:     row.IsActive.Ptr(),
		Roles:        decodeRoles(row.Roles),
		PasswordHash: row.PasswordHash.Bytes,
		CreatedAt:    row.CreatedAt.Time.UTC(),
		UpdatedAt:    row.UpdatedAt.Time.UTC(),
		LastLogin:    row.LastLogin.Time.UTC(),
	}
}

func (repo userRepository) unboilSlice(rows []userRow) []user.User {
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, repo.unboil(r))
	}
	return users
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	var conds []string
	var args []interface{}
	if username != "" {
		conds = append(conds, "username = ?")
		args = append(args, username)
	}
	if email != "" {
		conds = append(conds, "email = ?")
		args = append(args, email)
	}
	if len(conds) == 0 {
		return nil
	}

	q := "SELECT username, email FROM users WHERE (" + strings.Join(conds, " OR ") + ")"
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		var err error
		q, args, err = repo.in(q+" AND id NOT IN (?)", append(args, ids)...)
		if err != nil {
			return err
		}
	}

	var rows []struct {
		Username null.String `boil:"username"`
		Email    null.String `boil:"email"`
	}
	if err := repo.bind(ctx, exec, &rows, q, args...); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	for _, r := range rows {
		if username != "" && r.Username.String == username {
			return user.ErrUsernameExists
		}
	}
	if len(rows) > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.New().String()
	r := repo.boil(usr)
	_, err := repo.execute(ctx, exec,
		"INSERT INTO users ("+userColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		r.ID, r.SchoolID, r.Name, r.Username, r.Email, r.IsActive, r.Roles, r.PasswordHash, r.CreatedAt, r.UpdatedAt, r.LastLogin)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return repo.unboil(r), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	var conds []string
	var args []interface{}

	if filter != nil {
		if filter.SchoolID != "" {
			if !isID(filter.SchoolID) {
				return []user.User{}, nil
			}
			conds = append(conds, "school_id = ?")
			args = append(args, filter.SchoolID)
		}
		// users with Name, Username or Email matching the search keyword
		if filter.Search != "" {
			val := "%" + strings.ToLower(filter.Search) + "%"
			conds = append(conds, "(LOWER(name) LIKE ? OR LOWER(username) LIKE ? OR LOWER(email) LIKE ?)")
			args = append(args, val, val, val)
		}
		// users with any role that starts with any of the provided roles
		if len(filter.Roles) > 0 {
			roleConds := make([]string, 0, len(filter.Roles))
			for _, role := range filter.Roles {
				roleConds = append(roleConds, "roles LIKE ?")
				args = append(args, "%,"+role+"%")
			}
			conds = append(conds, "("+strings.Join(roleConds, " OR ")+")")
		}
		if filter.IsActive != nil {
			conds = append(conds, "is_active = ?")
			args = append(args, *filter.IsActive)
		}
		if !filter.CreatedFrom.IsZero() {
			conds = append(conds, "created_at >= ?")
			args = append(args, filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			conds = append(conds, "created_at <= ?")
			args = append(args, filter.CreatedTo.UTC())
		}
	}

	q := "SELECT " + userColumns + " FROM users"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	orderList := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		if userOrderings[ord.Field] {
			orderList = append(orderList, ord.String())
		}
	}
	orderList = append(orderList, "created_at ASC", "id ASC")
	q += " ORDER BY " + strings.Join(orderList, ", ")

	var rows []userRow
	if err := repo.bind(ctx, exec, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return repo.unboilSlice(rows), nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	q := "SELECT " + userColumns + " FROM users WHERE "
	var args []interface{}
	switch {
	case filter.ID != "":
		if !isID(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		q += "id = ?"
		args = append(args, filter.ID)
	case filter.Username != "":
		q += "username = ?"
		args = append(args, filter.Username)
	case filter.Email != "":
		q += "email = ?"
		args = append(args, filter.Email)
	case filter.UsernameOrEmail != "":
		q += "(username = ? OR email = ?)"
		args = append(args, filter.UsernameOrEmail, filter.UsernameOrEmail)
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := repo.bind(ctx, exec, &row, q, args...); err != nil {
		return user.User{}, trapNoRows(err, user.ErrNotFound, "finding user")
	}
	return repo.unboil(row), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	r := repo.boil(usr)
	n, err := repo.affected(ctx, exec,
		`UPDATE users SET school_id = ?, name = ?, username = ?, email = ?, is_active = ?, roles = ?,
			password_hash = ?, created_at = ?, updated_at = ?, last_login = ? WHERE id = ?`,
		r.SchoolID, r.Name, r.Username, r.Email, r.IsActive, r.Roles, r.PasswordHash, r.CreatedAt, r.UpdatedAt, r.LastLogin, r.ID)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.unboil(r), nil
}

func (repo userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr, exec...)
	}
	return repo.UpdateUser(ctx, usr, exec...)
}

func (repo userRepository) DeactivateUser(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) error {
	if !isID(id) {
		return user.ErrNotFound
	}
	n, err := repo.affected(ctx, exec,
		"UPDATE users SET password_hash = NULL, is_active = ?, updated_at = ? WHERE id = ?",
		false, at.UTC(), id)
	if err != nil {
		return errors.Wrap(err, "deactivating user")
	}
	if n == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if isID(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return 0, nil
	}
	q, args, err := repo.in("DELETE FROM users WHERE id IN (?)", valid)
	if err != nil {
		return 0, err
	}
	n, err := repo.affected(ctx, exec, q, args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	return int(n), nil
}
