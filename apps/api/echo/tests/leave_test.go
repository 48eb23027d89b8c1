package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core/leave"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/tests"
)

func Test_leaveApi(t *testing.T) {
	env := testutil.NewEnv(t)
	app := setup(t, env)

	sch := testutil.CreateSchool(t, env, "School", "school")
	admin, _ := testutil.CreateMember(t, env, sch.ID, "admin", user.RoleAdmin)
	teacher, _ := testutil.CreateMember(t, env, sch.ID, "teacher", user.RoleTeacher)
	colleague, _ := testutil.CreateMember(t, env, sch.ID, "colleague", user.RoleTeacher)
	parent, _ := testutil.CreateMember(t, env, sch.ID, "parent", user.RoleParent)

	teacherToken := getToken(t, env, teacher)
	adminToken := getToken(t, env, admin)
	apply := func(from, to string) []byte {
		return marshalObj(t, leave.NewRequest{Type: leave.TypeSick, FromDate: from, ToDate: to, Reason: "flu"})
	}

	rec := do(app, http.MethodPost, "/v1/leaves", teacherToken, apply("2026-03-10", "2026-03-15"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var lr leave.Request
	unmarshal(t, rec, &lr)
	assert.Equal(t, 6, lr.Days)
	assert.Equal(t, leave.StatusPending, lr.Status)
	assert.Equal(t, teacher.ID, lr.TeacherID)

	decisionPath := "/v1/leaves/" + lr.ID + "/decision"
	runHTTPTests(t, app, []httpTest{
		{name: "Auth required", method: http.MethodPost, path: "/v1/leaves", body: apply("2026-04-01", "2026-04-02"), wantCode: http.StatusUnauthorized},
		{name: "teachers only", method: http.MethodPost, path: "/v1/leaves", token: getToken(t, env, parent), body: apply("2026-04-01", "2026-04-02"), wantCode: http.StatusForbidden},
		{
			name: "required fields", method: http.MethodPost, path: "/v1/leaves", token: teacherToken, body: []byte(`{}`), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{
				"leave_type": "this field is required",
				"from_date":  "this field is required",
				"to_date":    "this field is required",
			}),
		},
		{name: "inverted range", method: http.MethodPost, path: "/v1/leaves", token: teacherToken, body: apply("2026-04-02", "2026-04-01"), wantCode: http.StatusBadRequest},
		{name: "overlap", method: http.MethodPost, path: "/v1/leaves", token: teacherToken, body: apply("2026-03-15", "2026-03-20"), wantCode: http.StatusConflict},
		{name: "colleagues may overlap", method: http.MethodPost, path: "/v1/leaves", token: getToken(t, env, colleague), body: apply("2026-03-12", "2026-03-13"), wantCode: http.StatusCreated},
		{name: "colleagues cannot see it", method: http.MethodGet, path: "/v1/leaves/" + lr.ID, token: getToken(t, env, colleague), wantCode: http.StatusForbidden},
		{name: "teachers cannot decide", method: http.MethodPost, path: decisionPath, token: teacherToken, body: []byte(`{"status": "APPROVED"}`), wantCode: http.StatusForbidden},
		{name: "invalid decision", method: http.MethodPost, path: decisionPath, token: adminToken, body: []byte(`{"status": "PENDING"}`), wantCode: http.StatusBadRequest},
		{name: "unknown request", method: http.MethodPost, path: "/v1/leaves/lol/decision", token: adminToken, body: []byte(`{"status": "APPROVED"}`), wantCode: http.StatusNotFound},
		{name: "approve", method: http.MethodPost, path: decisionPath, token: adminToken, body: []byte(`{"status": "APPROVED"}`)},
		{name: "decide twice", method: http.MethodPost, path: decisionPath, token: adminToken, body: []byte(`{"status": "REJECTED"}`), wantCode: http.StatusConflict},
	})

	t.Run("list", func(t *testing.T) {
		rec := do(app, http.MethodGet, "/v1/leaves", teacherToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var own []leave.Request
		unmarshal(t, rec, &own)
		require.Len(t, own, 1)
		assert.Equal(t, leave.StatusApproved, own[0].Status)
		assert.Equal(t, admin.ID, own[0].ApproverID)

		rec = do(app, http.MethodGet, "/v1/leaves?status=PENDING", adminToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var pending []leave.Request
		unmarshal(t, rec, &pending)
		require.Len(t, pending, 1)
		assert.Equal(t, colleague.ID, pending[0].TeacherID)
	})
}
