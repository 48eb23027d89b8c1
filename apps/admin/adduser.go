package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/user"
)

// addUser updates or creates a super admin.
func (cli *commandLine) addUser(uname, email, pwd string) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	lookup := uname
	if lookup == "" {
		lookup = email
	}
	now := time.Now().UTC()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: lookup})
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		usr = user.User{
			Name:      uname,
			Username:  uname,
			Email:     email,
			CreatedAt: now,
		}
		if usr.Name == "" {
			usr.Name = email
		}
	}
	usr.Roles = user.SuperAdminRoles
	usr.UpdatedAt = now
	usr.SetActive(true)
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}
	_, err = cli.usrRepo.UpdateOrCreateUser(ctx, usr)
	return err
}

// addSchool registers a School on behalf of the operator.
func (cli *commandLine) addSchool(name, code string) error {
	ns := school.NewSchool{Name: name, Code: code}
	if err := ns.Validate(cli.validate); err != nil {
		return err
	}
	sch, err := cli.schoolSvc.Create(context.Background(), user.Principal{Roles: user.SuperAdminRoles}, ns)
	if err != nil {
		return err
	}
	fmt.Printf("school %q created: %s\n", sch.Code, sch.ID)
	return nil
}
