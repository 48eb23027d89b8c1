package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/storage/database"
	"github.com/trezcool/shule/storage/database/sqlboiler"
	"github.com/trezcool/shule/tests"
)

var usrRepo user.Repository

func setup(t *testing.T) *commandLine {
	// set up DB & repos
	db := testutil.OpenTestDB(t)
	usrRepo = boiledrepos.NewUserRepository(db, database.EngineSqlite)

	// start CLI
	return &commandLine{
		db:        db,
		engine:    database.EngineSqlite,
		validate:  testutil.NewValidator(),
		usrRepo:   usrRepo,
		schoolSvc: school.NewService(boiledrepos.NewSchoolRepository(db, database.EngineSqlite)),
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	gooseRunFunc = func(db *sql.DB, engine, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "course", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != nil {
				if tt.wantErr != nil {
					if err != tt.wantErr {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if err.Error() != tt.wantErrStr {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			}
		})
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)

	usr := testutil.CreateUser(t, usrRepo, "", "User", "awe", "awe@test.cd", "mdr", nil, true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "lol"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", usr.Email}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err == nil {
				refreshedUsr, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
				if err != nil {
					t.Fatalf("GetUserByID() failed, %v", err)
				}
				if bytes.Equal(refreshedUsr.PasswordHash, usr.PasswordHash) {
					t.Error("failed to update new password")
				}
			} else if errors.Cause(err) != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)

	existing := testutil.CreateUser(t, usrRepo, "", "Old", "old", "old@test.cd", "mdr", []string{user.RoleTeacher}, false)

	pwd := "s3cretPass"
	readPasswordFunc = func(fd int) ([]byte, error) { return []byte(pwd), nil }

	t.Run("no args", func(t *testing.T) {
		assert.Equal(t, errHelp, cli.run([]string{"admin", "adduser"}))
	})

	t.Run("no password", func(t *testing.T) {
		readPasswordFunc = func(fd int) ([]byte, error) { return nil, nil }
		defer func() { readPasswordFunc = func(fd int) ([]byte, error) { return []byte(pwd), nil } }()
		assert.Equal(t, errHelp, cli.run([]string{"admin", "adduser", "-username", "root"}))
	})

	t.Run("create super admin", func(t *testing.T) {
		require.NoError(t, cli.run([]string{"admin", "adduser", "-username", " Root ", "-email", "Root@Test.cd"}))

		usr, err := usrRepo.GetUser(context.Background(), user.GetFilter{Username: "root"})
		require.NoError(t, err)
		assert.Equal(t, "root@test.cd", usr.Email)
		assert.Equal(t, user.SuperAdminRoles, usr.Roles)
		assert.Empty(t, usr.SchoolID)
		require.NotNil(t, usr.IsActive)
		assert.True(t, *usr.IsActive)
		assert.NoError(t, usr.CheckPassword(pwd))
	})

	t.Run("promote existing user", func(t *testing.T) {
		require.NoError(t, cli.run([]string{"admin", "adduser", "-email", existing.Email}))

		usr, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: existing.ID})
		require.NoError(t, err)
		assert.Equal(t, existing.Username, usr.Username)
		assert.Equal(t, user.SuperAdminRoles, usr.Roles)
		require.NotNil(t, usr.IsActive)
		assert.True(t, *usr.IsActive)
		assert.False(t, bytes.Equal(existing.PasswordHash, usr.PasswordHash))
	})
}

func Test_commandLine_addSchool(t *testing.T) {
	cli := setup(t)

	assert.Equal(t, errHelp, cli.run([]string{"admin", "addschool", "-name", "Mwinda"}))

	require.NoError(t, cli.run([]string{"admin", "addschool", "-name", " Mwinda ", "-code", "MWINDA"}))
	schools, err := cli.schoolSvc.List(context.Background(), user.Principal{Roles: user.SuperAdminRoles})
	require.NoError(t, err)
	require.Len(t, schools, 1)
	assert.Equal(t, "Mwinda", schools[0].Name)
	assert.Equal(t, "mwinda", schools[0].Code)

	err = cli.run([]string{"admin", "addschool", "-name", "Other", "-code", "mwinda"})
	var verr *core.ValidationError
	assert.ErrorAs(t, err, &verr)
}
