package emailsvc

import (
	"errors"
	"io"
	"log"
	"net/http"
	"net/mail"
	"strings"
	"sync"
	"testing"

	"github.com/sendgrid/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/services/logger"
)

func newTestSendgrid(responses ...*rest.Response) (*sendgridService, *[]rest.Request) {
	conf := core.NewTestConfig()
	svc := NewSendgridService(conf, logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf))
	svc.backoff = 0

	var mu sync.Mutex
	var reqs []rest.Request
	svc.api = func(req rest.Request) (*rest.Response, error) {
		mu.Lock()
		defer mu.Unlock()
		reqs = append(reqs, req)
		if len(responses) == 0 {
			return nil, errors.New("no response")
		}
		res := responses[0]
		if len(responses) > 1 {
			responses = responses[1:]
		}
		return res, nil
	}
	return svc, &reqs
}

func TestSendgridService_prepare(t *testing.T) {
	svc, _ := newTestSendgrid()
	msg := core.EmailMessage{
		To:           []mail.Address{{Name: "Amani", Address: "amani@test.cd"}},
		Bcc:          []mail.Address{{Address: "office@test.cd"}},
		Subject:      "Leave Request APPROVED",
		TemplateName: "leave_decision",
		TextContent:  "approved",
	}
	require.NoError(t, msg.Attach(strings.NewReader("%PDF-1.4"), "tc.pdf", "application/pdf"))

	m := svc.prepare(msg)
	require.Len(t, m.Personalizations, 1)
	p := m.Personalizations[0]
	assert.Equal(t, "[Shule] Leave Request APPROVED", p.Subject)
	require.Len(t, p.To, 1)
	assert.Equal(t, "amani@test.cd", p.To[0].Address)
	require.Len(t, p.BCC, 1)

	require.Len(t, m.Content, 1, "empty html content is not sent")
	assert.Equal(t, "text/plain", m.Content[0].Type)
	assert.Equal(t, []string{"Shule", "leave_decision"}, m.Categories)

	require.Len(t, m.Attachments, 1)
	assert.Equal(t, "tc.pdf", m.Attachments[0].Filename)
	assert.Equal(t, "JVBERi0xLjQ=", m.Attachments[0].Content)
}

func TestSendgridService_send(t *testing.T) {
	msg := core.EmailMessage{
		To:          []mail.Address{{Address: "amani@test.cd"}},
		Subject:     "hi",
		TextContent: "hello",
	}
	tests := []struct {
		name      string
		responses []*rest.Response
		attempts  int
	}{
		{name: "accepted", responses: []*rest.Response{{StatusCode: http.StatusAccepted}}, attempts: 1},
		{name: "bad request is not retried", responses: []*rest.Response{{StatusCode: http.StatusBadRequest}}, attempts: 1},
		{
			name:      "rate limited then accepted",
			responses: []*rest.Response{{StatusCode: http.StatusTooManyRequests}, {StatusCode: http.StatusAccepted}},
			attempts:  2,
		},
		{name: "server errors give up", responses: []*rest.Response{{StatusCode: http.StatusBadGateway}}, attempts: sendAttempts},
		{name: "transport errors give up", attempts: sendAttempts},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, reqs := newTestSendgrid(tt.responses...)
			svc.send(msg)
			require.Len(t, *reqs, tt.attempts)
			assert.Equal(t, rest.Method(http.MethodPost), (*reqs)[0].Method)
			assert.Contains(t, string((*reqs)[0].Body), `"amani@test.cd"`)
		})
	}
}
