package transfer_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/transfer"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/services/email"
	"github.com/trezcool/shule/tests"
)

type fixture struct {
	env     *testutil.Env
	admin   user.Principal
	stud    student.Student
	studP   user.Principal
	classID string
}

func setup(t *testing.T, newEnv func(*testing.T) *testutil.Env) fixture {
	env := newEnv(t)
	sch := testutil.CreateSchool(t, env, "Alpha", "alpha")
	cls := testutil.CreateClass(t, env, sch.ID, "Grade 5", "A")
	_, admin := testutil.CreateMember(t, env, sch.ID, "admin", user.RoleAdminPrincipal)
	stud, studP := testutil.EnrollStudent(t, env, sch.ID, "A001", "", decimal.NewFromInt(1000), decimal.Zero)

	stud, err := env.StudentSvc.AssignClass(context.Background(), admin, stud.ID, cls.ID)
	require.NoError(t, err)
	require.Equal(t, cls.ID, stud.ClassID)
	return fixture{env: env, admin: admin, stud: stud, studP: studP, classID: cls.ID}
}

var envs = map[string]func(*testing.T) *testutil.Env{
	"inmem":  testutil.NewEnv,
	"sqlite": testutil.NewSQLiteEnv,
}

func TestService_Approve(t *testing.T) {
	for name, newEnv := range envs {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			f := setup(t, newEnv)
			emailsvc.ResetSentMessages()

			tc, err := f.env.TransferSvc.Request(ctx, f.studP, transfer.NewRequest{Reason: "moving abroad"})
			require.NoError(t, err)
			assert.Equal(t, transfer.StatusPending, tc.Status)
			assert.Equal(t, f.stud.ID, tc.StudentID)
			assert.Equal(t, f.studP.UserID, tc.RequestedBy)

			tc, err = f.env.TransferSvc.Approve(ctx, f.admin, tc.ID, transfer.Approval{DocumentURL: "https://docs.test/tc.pdf"})
			require.NoError(t, err)
			assert.Equal(t, transfer.StatusApproved, tc.Status)
			assert.Equal(t, f.admin.UserID, tc.ApprovedBy)
			assert.False(t, tc.IssuedDate.IsZero())

			stored, err := f.env.TransferSvc.Get(ctx, f.admin, tc.ID)
			require.NoError(t, err)
			assert.Equal(t, transfer.StatusApproved, stored.Status)
			assert.Equal(t, "https://docs.test/tc.pdf", stored.DocumentURL)

			// the student is archived, unassigned and cannot log in anymore
			stud, err := f.env.Students.GetStudent(ctx, student.GetFilter{ID: f.stud.ID})
			require.NoError(t, err)
			assert.Empty(t, stud.ClassID)

			usr, err := f.env.UserSvc.GetByID(ctx, f.stud.UserID)
			require.NoError(t, err)
			assert.False(t, usr.Active())
			assert.Empty(t, usr.PasswordHash)

			hs, err := f.env.TransferSvc.ListHistory(ctx, f.admin, "")
			require.NoError(t, err)
			require.Len(t, hs, 1)
			assert.Equal(t, f.stud.ID, hs[0].OriginalStudentID)
			assert.Equal(t, "moving abroad", hs[0].Reason)
			var snapshot student.Student
			require.NoError(t, json.Unmarshal(hs[0].Data, &snapshot))
			assert.Equal(t, f.classID, snapshot.ClassID, "snapshot is taken before the class is cleared")

			msg, ok := emailsvc.LastSentMessage()
			require.True(t, ok)
			assert.Equal(t, "tc_decision", msg.TemplateName)

			// deciding twice is a conflict and archives nothing more
			_, err = f.env.TransferSvc.Approve(ctx, f.admin, tc.ID, transfer.Approval{})
			assert.True(t, core.IsConflict(err), "unexpected error: %v", err)
			_, err = f.env.TransferSvc.Reject(ctx, f.admin, tc.ID)
			assert.True(t, core.IsConflict(err), "unexpected error: %v", err)

			hs, err = f.env.TransferSvc.ListHistory(ctx, f.admin, "")
			require.NoError(t, err)
			assert.Len(t, hs, 1)

			// an approved certificate blocks new requests
			_, err = f.env.TransferSvc.Request(ctx, f.admin, transfer.NewRequest{StudentID: f.stud.ID})
			assert.True(t, core.IsConflict(err), "unexpected error: %v", err)
		})
	}
}

func TestService_Reject(t *testing.T) {
	ctx := context.Background()
	f := setup(t, testutil.NewEnv)

	tc, err := f.env.TransferSvc.Request(ctx, f.admin, transfer.NewRequest{StudentID: f.stud.ID})
	require.NoError(t, err)

	_, err = f.env.TransferSvc.Request(ctx, f.studP, transfer.NewRequest{})
	assert.True(t, core.IsConflict(err), "a pending certificate blocks new requests")

	tc, err = f.env.TransferSvc.Reject(ctx, f.admin, tc.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusRejected, tc.Status)

	stud, err := f.env.Students.GetStudent(ctx, student.GetFilter{ID: f.stud.ID})
	require.NoError(t, err)
	assert.Equal(t, f.classID, stud.ClassID, "rejection leaves the student untouched")

	hs, err := f.env.TransferSvc.ListHistory(ctx, f.admin, "")
	require.NoError(t, err)
	assert.Empty(t, hs)

	// a rejected certificate can be requested again
	_, err = f.env.TransferSvc.Request(ctx, f.studP, transfer.NewRequest{})
	require.NoError(t, err)

	tcs, err := f.env.TransferSvc.List(ctx, f.studP, transfer.QueryFilter{})
	require.NoError(t, err)
	assert.Len(t, tcs, 2)
}

type failingDeactivation struct {
	user.ServiceInterface
}

func (svc failingDeactivation) Deactivate(ctx context.Context, id string, exec ...core.DBExecutor) error {
	return errors.New("deactivation failed")
}

func TestService_Approve_Rollback(t *testing.T) {
	for name, newEnv := range envs {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			f := setup(t, newEnv)
			svc := transfer.NewService(
				f.env.Tx,
				f.env.Transfers,
				f.env.Students,
				failingDeactivation{ServiceInterface: f.env.UserSvc},
				f.env.MailSvc,
				f.env.Logger,
			)

			tc, err := svc.Request(ctx, f.studP, transfer.NewRequest{})
			require.NoError(t, err)
			_, err = svc.Approve(ctx, f.admin, tc.ID, transfer.Approval{})
			require.Error(t, err)

			stored, err := svc.Get(ctx, f.admin, tc.ID)
			require.NoError(t, err)
			assert.Equal(t, transfer.StatusPending, stored.Status)

			hs, err := svc.ListHistory(ctx, f.admin, "")
			require.NoError(t, err)
			assert.Empty(t, hs)

			stud, err := f.env.Students.GetStudent(ctx, student.GetFilter{ID: f.stud.ID})
			require.NoError(t, err)
			assert.Equal(t, f.classID, stud.ClassID)

			usr, err := f.env.UserSvc.GetByID(ctx, f.stud.UserID)
			require.NoError(t, err)
			assert.True(t, usr.Active())
		})
	}
}

func TestService_Permissions(t *testing.T) {
	ctx := context.Background()
	f := setup(t, testutil.NewEnv)
	other := testutil.CreateSchool(t, f.env, "Beta", "beta")
	_, otherAdmin := testutil.CreateMember(t, f.env, other.ID, "other", user.RoleAdmin)
	_, teacher := testutil.CreateMember(t, f.env, f.stud.SchoolID, "teacher", user.RoleTeacher)

	_, err := f.env.TransferSvc.Request(ctx, otherAdmin, transfer.NewRequest{StudentID: f.stud.ID})
	assert.Equal(t, core.ErrForbidden, errors.Cause(err))
	_, err = f.env.TransferSvc.Request(ctx, teacher, transfer.NewRequest{StudentID: f.stud.ID})
	assert.Equal(t, core.ErrForbidden, errors.Cause(err))

	tc, err := f.env.TransferSvc.Request(ctx, f.studP, transfer.NewRequest{})
	require.NoError(t, err)

	_, err = f.env.TransferSvc.Approve(ctx, otherAdmin, tc.ID, transfer.Approval{})
	assert.Equal(t, core.ErrForbidden, errors.Cause(err))
	_, err = f.env.TransferSvc.Approve(ctx, f.studP, tc.ID, transfer.Approval{})
	assert.Equal(t, core.ErrForbidden, errors.Cause(err))
	_, err = f.env.TransferSvc.Get(ctx, otherAdmin, tc.ID)
	assert.Equal(t, core.ErrForbidden, errors.Cause(err))
	_, err = f.env.TransferSvc.List(ctx, teacher, transfer.QueryFilter{})
	assert.Equal(t, core.ErrForbidden, errors.Cause(err))
	_, err = f.env.TransferSvc.ListHistory(ctx, otherAdmin, f.stud.SchoolID)
	assert.Equal(t, core.ErrForbidden, errors.Cause(err))

	_, err = f.env.TransferSvc.Approve(ctx, f.admin, "8f5a6c02-5b7e-4c41-9d3f-0a6f7c1d2e3b", transfer.Approval{})
	assert.True(t, core.IsNotFound(err))
}
