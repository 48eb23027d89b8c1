package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core/transfer"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/services/email"
	"github.com/trezcool/shule/tests"
)

func Test_transferApi(t *testing.T) {
	env := testutil.NewEnv(t)
	app := setup(t, env)

	sch := testutil.CreateSchool(t, env, "School", "school")
	other := testutil.CreateSchool(t, env, "Other", "other")
	cls := testutil.CreateClass(t, env, sch.ID, "Grade 1", "A")
	admin, _ := testutil.CreateMember(t, env, sch.ID, "admin", user.RoleAdmin)
	foreignAdmin, _ := testutil.CreateMember(t, env, other.ID, "foreign", user.RoleAdmin)
	stud, studP := testutil.EnrollStudent(t, env, sch.ID, "ADM-1", "", decimal.NewFromInt(1000), decimal.Zero)
	_, err := env.StudentSvc.AssignClass(context.Background(), testutil.SuperAdmin(), stud.ID, cls.ID)
	require.NoError(t, err)

	studUsr, err := env.UserSvc.GetByID(context.Background(), stud.UserID)
	require.NoError(t, err)
	studToken := getToken(t, env, studUsr, studP.StudentID)
	adminToken := getToken(t, env, admin)

	// students request for themselves
	rec := do(app, http.MethodPost, "/v1/transfer-certificates", studToken, []byte(`{"reason": "moving"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var tc transfer.Certificate
	unmarshal(t, rec, &tc)
	assert.Equal(t, stud.ID, tc.StudentID)
	assert.Equal(t, transfer.StatusPending, tc.Status)

	tcPath := "/v1/transfer-certificates/" + tc.ID
	runHTTPTests(t, app, []httpTest{
		{
			name: "one open request per student", method: http.MethodPost, path: "/v1/transfer-certificates", token: adminToken,
			body: marshalObj(t, transfer.NewRequest{StudentID: stud.ID}), wantCode: http.StatusConflict,
		},
		{name: "students cannot approve", method: http.MethodPost, path: tcPath + "/approve", token: studToken, wantCode: http.StatusForbidden},
		{name: "admins of other schools cannot approve", method: http.MethodPost, path: tcPath + "/approve", token: getToken(t, env, foreignAdmin), wantCode: http.StatusForbidden},
		{name: "unknown certificate", method: http.MethodPost, path: "/v1/transfer-certificates/lol/approve", token: adminToken, wantCode: http.StatusNotFound},
		{
			name: "invalid document url", method: http.MethodPost, path: tcPath + "/approve", token: adminToken,
			body: marshalObj(t, transfer.Approval{DocumentURL: "lol"}), wantCode: http.StatusBadRequest,
		},
		{name: "student sees own certificate", method: http.MethodGet, path: tcPath, token: studToken},
	})

	t.Run("approve", func(t *testing.T) {
		emailsvc.ResetSentMessages()
		rec := do(app, http.MethodPost, tcPath+"/approve", adminToken, marshalObj(t, transfer.Approval{DocumentURL: "https://docs.test.cd/tc.pdf"}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var approved transfer.Certificate
		unmarshal(t, rec, &approved)
		assert.Equal(t, transfer.StatusApproved, approved.Status)
		assert.Equal(t, admin.ID, approved.ApprovedBy)
		assert.False(t, approved.IssuedDate.IsZero())

		msg, ok := emailsvc.LastSentMessage()
		require.True(t, ok, "decision email not sent")
		assert.Equal(t, "tc_decision", msg.TemplateName)
		assert.Contains(t, msg.TextContent, "https://docs.test.cd/tc.pdf")

		// the student login is deactivated and the class assignment cleared
		usr, err := env.UserSvc.GetByID(context.Background(), stud.UserID)
		require.NoError(t, err)
		assert.False(t, usr.Active())
		s, err := env.StudentSvc.Get(context.Background(), testutil.SuperAdmin(), stud.ID)
		require.NoError(t, err)
		assert.Empty(t, s.ClassID)

		rec = do(app, http.MethodGet, "/v1/transfer-certificates/history", adminToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var hs []transfer.StudentHistory
		unmarshal(t, rec, &hs)
		require.Len(t, hs, 1)
		assert.Equal(t, stud.ID, hs[0].OriginalStudentID)
		assert.Equal(t, "moving", hs[0].Reason)
	})

	t.Run("decisions are final", func(t *testing.T) {
		rec := do(app, http.MethodPost, tcPath+"/reject", adminToken)
		assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	})

	t.Run("foreign admins see no history", func(t *testing.T) {
		rec := do(app, http.MethodGet, "/v1/transfer-certificates/history", getToken(t, env, foreignAdmin))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `[]`, rec.Body.String())
	})
}
