package leave_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/leave"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/services/email"
	"github.com/trezcool/shule/tests"
)

func newRequest(t *testing.T, env *testutil.Env, from, to string) leave.NewRequest {
	t.Helper()
	nr := leave.NewRequest{Type: leave.TypeCasual, FromDate: from, ToDate: to, Reason: "family"}
	require.NoError(t, nr.Validate(env.Validate))
	return nr
}

func TestService_Apply_Overlap(t *testing.T) {
	for name, newEnv := range map[string]func(*testing.T) *testutil.Env{
		"inmem":  testutil.NewEnv,
		"sqlite": testutil.NewSQLiteEnv,
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			env := newEnv(t)
			sch := testutil.CreateSchool(t, env, "Alpha", "alpha")
			_, admin := testutil.CreateMember(t, env, sch.ID, "admin", user.RoleAdmin)
			_, teacher := testutil.CreateMember(t, env, sch.ID, "teacher", user.RoleTeacher)
			_, colleague := testutil.CreateMember(t, env, sch.ID, "colleague", user.RoleTeacher)

			lr, err := env.LeaveSvc.Apply(ctx, teacher, newRequest(t, env, "2026-03-10", "2026-03-15"))
			require.NoError(t, err)
			assert.Equal(t, leave.StatusPending, lr.Status)
			assert.Equal(t, 6, lr.Days)

			lr, err = env.LeaveSvc.Decide(ctx, admin, lr.ID, leave.Decision{Status: leave.StatusApproved})
			require.NoError(t, err)
			assert.Equal(t, leave.StatusApproved, lr.Status)
			assert.Equal(t, admin.UserID, lr.ApproverID)

			tests := []struct {
				name     string
				p        user.Principal
				from, to string
				wantErr  bool
			}{
				{name: "overlapping end", p: teacher, from: "2026-03-14", to: "2026-03-20", wantErr: true},
				{name: "inside", p: teacher, from: "2026-03-11", to: "2026-03-12", wantErr: true},
				{name: "sharing a single day", p: teacher, from: "2026-03-01", to: "2026-03-10", wantErr: true},
				{name: "adjacent", p: teacher, from: "2026-03-16", to: "2026-03-20"},
				{name: "other teacher", p: colleague, from: "2026-03-10", to: "2026-03-15"},
			}
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					_, err := env.LeaveSvc.Apply(ctx, tt.p, newRequest(t, env, tt.from, tt.to))
					if tt.wantErr {
						assert.True(t, core.IsConflict(err), "unexpected error: %v", err)
						return
					}
					assert.NoError(t, err)
				})
			}

			lrs, err := env.LeaveSvc.List(ctx, teacher, leave.QueryFilter{})
			require.NoError(t, err)
			require.Len(t, lrs, 2)
			assert.True(t, lrs[0].From.Before(lrs[1].From), "ordered by from date")
		})
	}
}

func TestService_Apply_RejectedDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	sch := testutil.CreateSchool(t, env, "Alpha", "alpha")
	_, admin := testutil.CreateMember(t, env, sch.ID, "admin", user.RoleAdmin)
	_, teacher := testutil.CreateMember(t, env, sch.ID, "teacher", user.RoleTeacher)

	lr, err := env.LeaveSvc.Apply(ctx, teacher, newRequest(t, env, "2026-03-10", "2026-03-15"))
	require.NoError(t, err)

	// a pending request blocks too
	_, err = env.LeaveSvc.Apply(ctx, teacher, newRequest(t, env, "2026-03-12", "2026-03-13"))
	assert.True(t, core.IsConflict(err))

	_, err = env.LeaveSvc.Decide(ctx, admin, lr.ID, leave.Decision{Status: leave.StatusRejected})
	require.NoError(t, err)

	_, err = env.LeaveSvc.Apply(ctx, teacher, newRequest(t, env, "2026-03-12", "2026-03-13"))
	assert.NoError(t, err)
}

func TestService_Decide(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	sch := testutil.CreateSchool(t, env, "Alpha", "alpha")
	other := testutil.CreateSchool(t, env, "Beta", "beta")
	_, admin := testutil.CreateMember(t, env, sch.ID, "admin", user.RoleAdmin)
	_, otherAdmin := testutil.CreateMember(t, env, other.ID, "other", user.RoleAdmin)
	_, teacher := testutil.CreateMember(t, env, sch.ID, "teacher", user.RoleTeacher)

	lr, err := env.LeaveSvc.Apply(ctx, teacher, newRequest(t, env, "2026-04-01", "2026-04-02"))
	require.NoError(t, err)

	_, err = env.LeaveSvc.Decide(ctx, teacher, lr.ID, leave.Decision{Status: leave.StatusApproved})
	assert.Equal(t, core.ErrForbidden, errors.Cause(err))
	_, err = env.LeaveSvc.Decide(ctx, otherAdmin, lr.ID, leave.Decision{Status: leave.StatusApproved})
	assert.Equal(t, core.ErrForbidden, errors.Cause(err))
	_, err = env.LeaveSvc.Decide(ctx, admin, lr.ID, leave.Decision{Status: leave.StatusPending})
	assert.True(t, core.IsValidation(err))

	emailsvc.ResetSentMessages()
	_, err = env.LeaveSvc.Decide(ctx, admin, lr.ID, leave.Decision{Status: leave.StatusRejected})
	require.NoError(t, err)
	msg, ok := emailsvc.LastSentMessage()
	require.True(t, ok)
	assert.Equal(t, "leave_decision", msg.TemplateName)
	assert.Contains(t, msg.TextContent, "REJECTED")

	_, err = env.LeaveSvc.Decide(ctx, admin, lr.ID, leave.Decision{Status: leave.StatusApproved})
	assert.True(t, core.IsConflict(err), "deciding twice is a conflict")

	stored, err := env.LeaveSvc.Get(ctx, teacher, lr.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusRejected, stored.Status)
}

func TestService_Apply_Validation(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	sch := testutil.CreateSchool(t, env, "Alpha", "alpha")
	_, teacher := testutil.CreateMember(t, env, sch.ID, "teacher", user.RoleTeacher)
	_, parent := testutil.CreateMember(t, env, sch.ID, "parent", user.RoleParent)

	nr := leave.NewRequest{Type: leave.TypeSick, FromDate: "2026-05-10", ToDate: "2026-05-01"}
	assert.Error(t, nr.Validate(env.Validate))

	nr = leave.NewRequest{Type: "HOLIDAY", FromDate: "2026-05-01", ToDate: "2026-05-02"}
	assert.Error(t, nr.Validate(env.Validate))

	_, err := env.LeaveSvc.Apply(ctx, teacher, leave.NewRequest{Type: leave.TypeSick, FromDate: "2026-05-10", ToDate: "2026-05-01", Days: 1})
	assert.True(t, core.IsValidation(err))

	_, err = env.LeaveSvc.Apply(ctx, parent, newRequest(t, env, "2026-05-01", "2026-05-02"))
	assert.Equal(t, core.ErrForbidden, errors.Cause(err))
}
