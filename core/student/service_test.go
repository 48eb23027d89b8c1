package student_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/fee"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/tests"
)

func TestService_Enroll(t *testing.T) {
	for name, newEnv := range map[string]func(*testing.T) *testutil.Env{
		"inmem":  testutil.NewEnv,
		"sqlite": testutil.NewSQLiteEnv,
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			env := newEnv(t)
			alpha := testutil.CreateSchool(t, env, "Alpha", "alpha")
			beta := testutil.CreateSchool(t, env, "Beta", "beta")
			cls := testutil.CreateClass(t, env, alpha.ID, "6", "A")
			foreignCls := testutil.CreateClass(t, env, beta.ID, "6", "A")
			_, admin := testutil.CreateMember(t, env, alpha.ID, "admin", user.RoleAdmin)
			parent, _ := testutil.CreateMember(t, env, alpha.ID, "parent", user.RoleParent)
			teacher, _ := testutil.CreateMember(t, env, alpha.ID, "teacher", user.RoleTeacher)

			ns := student.NewStudent{
				SchoolID:    alpha.ID,
				ClassID:     cls.ID,
				ParentID:    parent.ID,
				AdmissionNo: "ADM-1",
				Name:        "Amani",
				Username:    "amani",
				Email:       "amani@test.cd",
				Password:    "Pwd.123!",
				Fee:         student.FeeTerms{TotalFee: decimal.NewFromInt(10000), DiscountPercent: decimal.NewFromInt(10)},
			}
			stud, err := env.StudentSvc.Enroll(ctx, admin, ns)
			require.NoError(t, err)
			assert.Equal(t, cls.ID, stud.ClassID)

			usr, err := env.UserSvc.GetByID(ctx, stud.UserID)
			require.NoError(t, err)
			assert.True(t, usr.IsStudent())
			assert.Equal(t, alpha.ID, usr.SchoolID)

			ledger, err := env.FeeSvc.GetLedger(ctx, admin, stud.ID)
			require.NoError(t, err)
			assert.True(t, ledger.FinalFee.Equal(decimal.NewFromInt(9000)), "final fee: %s", ledger.FinalFee)
			assert.Equal(t, fee.DefaultInstallments, ledger.Installments)

			t.Run("without an email", func(t *testing.T) {
				n := ns
				n.AdmissionNo = "ADM-3"
				n.Username = "noemail"
				n.Email = ""
				n.PasswordConfirm = n.Password
				require.NoError(t, n.Validate(ctx, env.Validate, env.UserSvc))

				got, err := env.StudentSvc.Enroll(ctx, admin, n)
				require.NoError(t, err)
				usr, err := env.UserSvc.GetByID(ctx, got.UserID)
				require.NoError(t, err)
				assert.Equal(t, "noemail", usr.Username)
				assert.Empty(t, usr.Email)

				dup := n
				dup.AdmissionNo = "ADM-4"
				assert.True(t, core.IsValidation(dup.Validate(ctx, env.Validate, env.UserSvc)), "username is taken")
			})

			t.Run("failures leave nothing behind", func(t *testing.T) {
				tests := []struct {
					name  string
					p     user.Principal
					edit  func(*student.NewStudent)
					check func(error) bool
				}{
					{name: "admin of another school", p: admin, edit: func(ns *student.NewStudent) { ns.SchoolID = beta.ID }, check: isForbidden},
					{name: "duplicate admission number", p: admin, edit: func(ns *student.NewStudent) {}, check: core.IsValidation},
					{name: "class of another school", p: admin, edit: func(ns *student.NewStudent) { ns.ClassID = foreignCls.ID }, check: core.IsValidation},
					{name: "unknown class", p: admin, edit: func(ns *student.NewStudent) { ns.ClassID = "unknown" }, check: core.IsValidation},
					{name: "parent is not a parent", p: admin, edit: func(ns *student.NewStudent) { ns.ParentID = teacher.ID }, check: core.IsValidation},
					{
						name:  "invalid fee terms",
						p:     admin,
						edit:  func(ns *student.NewStudent) { ns.Fee.DiscountPercent = decimal.NewFromInt(150) },
						check: core.IsValidation,
					},
				}
				for _, tt := range tests {
					t.Run(tt.name, func(t *testing.T) {
						n := ns
						n.AdmissionNo = "ADM-2"
						n.Username = "other"
						n.Email = "other@test.cd"
						if tt.name == "duplicate admission number" {
							n.AdmissionNo = "ADM-1"
						}
						tt.edit(&n)
						_, err := env.StudentSvc.Enroll(ctx, tt.p, n)
						assert.True(t, tt.check(err), "unexpected error: %v", err)

						_, err = env.UserSvc.GetByUsername(ctx, "other")
						assert.True(t, core.IsNotFound(err), "no login is left behind")
					})
				}
			})
		})
	}
}

func TestService_AssignClass(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	alpha := testutil.CreateSchool(t, env, "Alpha", "alpha")
	beta := testutil.CreateSchool(t, env, "Beta", "beta")
	cls := testutil.CreateClass(t, env, alpha.ID, "6", "A")
	foreignCls := testutil.CreateClass(t, env, beta.ID, "6", "A")
	_, admin := testutil.CreateMember(t, env, alpha.ID, "admin", user.RoleAdmin)
	_, teacher := testutil.CreateMember(t, env, alpha.ID, "teacher", user.RoleTeacher)
	stud, _ := testutil.EnrollStudent(t, env, alpha.ID, "ADM-1", "", decimal.NewFromInt(100), decimal.Zero)

	got, err := env.StudentSvc.AssignClass(ctx, admin, stud.ID, cls.ID)
	require.NoError(t, err)
	assert.Equal(t, cls.ID, got.ClassID)

	_, err = env.StudentSvc.AssignClass(ctx, admin, stud.ID, foreignCls.ID)
	assert.True(t, core.IsValidation(err))
	_, err = env.StudentSvc.AssignClass(ctx, teacher, stud.ID, "")
	assert.True(t, isForbidden(err))

	got, err = env.StudentSvc.AssignClass(ctx, admin, stud.ID, "")
	require.NoError(t, err)
	assert.Empty(t, got.ClassID)

	stored, err := env.StudentSvc.Get(ctx, admin, stud.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.ClassID)
}

func TestService_Visibility(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	alpha := testutil.CreateSchool(t, env, "Alpha", "alpha")
	beta := testutil.CreateSchool(t, env, "Beta", "beta")
	parent, parentP := testutil.CreateMember(t, env, alpha.ID, "parent", user.RoleParent)
	_, otherParent := testutil.CreateMember(t, env, alpha.ID, "other", user.RoleParent)
	_, teacher := testutil.CreateMember(t, env, alpha.ID, "teacher", user.RoleTeacher)
	_, foreignAdmin := testutil.CreateMember(t, env, beta.ID, "foreign", user.RoleAdmin)
	child, childP := testutil.EnrollStudent(t, env, alpha.ID, "ADM-1", parent.ID, decimal.NewFromInt(100), decimal.Zero)
	sibling, _ := testutil.EnrollStudent(t, env, alpha.ID, "ADM-2", "", decimal.NewFromInt(100), decimal.Zero)

	tests := []struct {
		name    string
		p       user.Principal
		id      string
		allowed bool
	}{
		{name: "own record", p: childP, id: child.ID, allowed: true},
		{name: "another student", p: childP, id: sibling.ID},
		{name: "parent of the child", p: parentP, id: child.ID, allowed: true},
		{name: "another parent", p: otherParent, id: child.ID},
		{name: "teacher of the school", p: teacher, id: sibling.ID, allowed: true},
		{name: "admin of another school", p: foreignAdmin, id: child.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.StudentSvc.Get(ctx, tt.p, tt.id)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			assert.True(t, isForbidden(err), "unexpected error: %v", err)
		})
	}

	studs, err := env.StudentSvc.List(ctx, parentP, student.QueryFilter{})
	require.NoError(t, err)
	require.Len(t, studs, 1)
	assert.Equal(t, child.ID, studs[0].ID)

	studs, err = env.StudentSvc.List(ctx, teacher, student.QueryFilter{})
	require.NoError(t, err)
	assert.Len(t, studs, 2)

	_, err = env.StudentSvc.List(ctx, foreignAdmin, student.QueryFilter{SchoolID: alpha.ID})
	assert.True(t, isForbidden(err))
	_, err = env.StudentSvc.List(ctx, childP, student.QueryFilter{})
	assert.True(t, isForbidden(err))
}

func isForbidden(err error) bool {
	return errors.Cause(err) == core.ErrForbidden
}
