package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core/appointment"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/services/relay"
	"github.com/trezcool/shule/tests"
)

func Test_appointmentApi(t *testing.T) {
	env := testutil.NewEnv(t)

	// messages go through a real relay hub
	hub := relaysvc.NewHub(env.Logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	env.AppointmentSvc = appointment.NewService(env.Appointments, env.Students, env.UserSvc, hub, env.Logger)

	app := setup(t, env, hub)
	srv := httptest.NewServer(app)
	t.Cleanup(srv.Close)

	sch := testutil.CreateSchool(t, env, "School", "school")
	admin, _ := testutil.CreateMember(t, env, sch.ID, "admin", user.RoleAdmin)
	teacher, _ := testutil.CreateMember(t, env, sch.ID, "teacher", user.RoleTeacher)
	parent, _ := testutil.CreateMember(t, env, sch.ID, "parent", user.RoleParent)
	outsider, _ := testutil.CreateMember(t, env, sch.ID, "outsider", user.RoleParent)
	stud, _ := testutil.EnrollStudent(t, env, sch.ID, "ADM-1", parent.ID, decimal.NewFromInt(1000), decimal.Zero)

	parentToken := getToken(t, env, parent)
	teacherToken := getToken(t, env, teacher)
	outsiderToken := getToken(t, env, outsider)

	rec := do(app, http.MethodPost, "/v1/appointments", parentToken, marshalObj(t, appointment.NewAppointment{
		TeacherID:   teacher.ID,
		StudentID:   stud.ID,
		Topic:       "Grades",
		ScheduledAt: time.Now().Add(48 * time.Hour),
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var appt appointment.Appointment
	unmarshal(t, rec, &appt)
	assert.Equal(t, appointment.StatusPending, appt.Status)
	assert.Equal(t, sch.ID, appt.SchoolID)

	path := "/v1/appointments/" + appt.ID
	message := marshalObj(t, appointment.NewMessage{Body: "Hello"})
	runHTTPTests(t, app, []httpTest{
		{
			name: "not the child's parent", method: http.MethodPost, path: "/v1/appointments", token: outsiderToken,
			body:     marshalObj(t, appointment.NewAppointment{TeacherID: teacher.ID, StudentID: stud.ID, Topic: "Hi", ScheduledAt: time.Now()}),
			wantCode: http.StatusForbidden,
		},
		{name: "required fields", method: http.MethodPost, path: "/v1/appointments", token: parentToken, body: []byte(`{}`), wantCode: http.StatusBadRequest},
		{name: "outsiders cannot see it", method: http.MethodGet, path: path, token: outsiderToken, wantCode: http.StatusForbidden},
		{name: "admins see it", method: http.MethodGet, path: path, token: getToken(t, env, admin)},
		{name: "unknown appointment", method: http.MethodGet, path: "/v1/appointments/lol", token: parentToken, wantCode: http.StatusNotFound},
		{name: "no messages before acceptance", method: http.MethodPost, path: path + "/messages", token: parentToken, body: message, wantCode: http.StatusConflict},
		{name: "parents cannot answer", method: http.MethodPost, path: path + "/response", token: parentToken, body: []byte(`{"status": "ACCEPTED"}`), wantCode: http.StatusForbidden},
		{name: "invalid answer", method: http.MethodPost, path: path + "/response", token: teacherToken, body: []byte(`{"status": "LOL"}`), wantCode: http.StatusBadRequest},
		{name: "accept", method: http.MethodPost, path: path + "/response", token: teacherToken, body: []byte(`{"status": "ACCEPTED"}`)},
		{name: "answer twice", method: http.MethodPost, path: path + "/response", token: teacherToken, body: []byte(`{"status": "DECLINED"}`), wantCode: http.StatusConflict},
		{name: "blank message", method: http.MethodPost, path: path + "/messages", token: parentToken, body: []byte(`{"body": "  "}`), wantCode: http.StatusBadRequest},
		{name: "outsiders cannot post", method: http.MethodPost, path: path + "/messages", token: outsiderToken, body: message, wantCode: http.StatusForbidden},
	})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + path + "/ws?token="

	t.Run("outsiders cannot join", func(t *testing.T) {
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL+outsiderToken, nil)
		if conn != nil {
			_ = conn.Close()
		}
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("token required", func(t *testing.T) {
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if conn != nil {
			_ = conn.Close()
		}
		require.Error(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("messages are relayed to the room", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL+teacherToken, nil)
		require.NoError(t, err)
		defer conn.Close()
		require.Eventually(t, func() bool { return hub.RoomSize(appt.Room()) == 1 }, 2*time.Second, 10*time.Millisecond)

		rec := do(app, http.MethodPost, path+"/messages", parentToken, message)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var posted appointment.Message
		unmarshal(t, rec, &posted)

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err)
		var relayed appointment.Message
		require.NoError(t, json.Unmarshal(payload, &relayed))
		assert.Equal(t, posted.ID, relayed.ID)
		assert.Equal(t, "Hello", relayed.Body)
		assert.Equal(t, parent.ID, relayed.SenderID)
	})

	t.Run("history", func(t *testing.T) {
		rec := do(app, http.MethodGet, path+"/messages", teacherToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var msgs []appointment.Message
		unmarshal(t, rec, &msgs)
		require.Len(t, msgs, 1)
		assert.Equal(t, "Hello", msgs[0].Body)

		rec = do(app, http.MethodGet, "/v1/appointments", teacherToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var appts []appointment.Appointment
		unmarshal(t, rec, &appts)
		require.Len(t, appts, 1)
		assert.Equal(t, appointment.StatusAccepted, appts[0].Status)
	})
}
