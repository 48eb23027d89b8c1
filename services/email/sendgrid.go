package emailsvc

import (
	"fmt"
	"net/http"
	"net/mail"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/trezcool/shule/core"
)

var (
	host     = "https://api.sendgrid.com"
	endpoint = "/v3/mail/send"
)

const (
	sendAttempts = 3
	retryBackoff = 2 * time.Second
)

type sendgridService struct {
	key        string
	appName    string
	from       *sgmail.Email
	subjPrefix string
	logger     core.Logger

	api     func(rest.Request) (*rest.Response, error) // mockable
	backoff time.Duration
}

var _ core.EmailService = (*sendgridService)(nil)

func NewSendgridService(conf *core.Config, logger core.Logger) *sendgridService {
	from := conf.DefaultFromEmail()
	return &sendgridService{
		key:        conf.SendgridApiKey,
		appName:    conf.AppName,
		from:       sgmail.NewEmail(from.Name, from.Address),
		subjPrefix: "[" + conf.AppName + "] ",
		logger:     logger,
		api:        sendgrid.API,
		backoff:    retryBackoff,
	}
}

func (svc sendgridService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		msg := msg
		go func() {
			if err := msg.Render(); err != nil {
				svc.logger.Error(fmt.Sprintf("rendering email: %v", err), err)
				return
			}
			if msg.HasRecipients() && (msg.HasContent() || msg.HasAttachments()) {
				svc.send(*msg)
			}
		}()
	}
}

// prepare builds the v3 payload of msg. Messages are tagged with the app name and their template
// (password_reset, tc_decision, leave_decision) so that deliveries can be filtered per workflow.
func (svc sendgridService) prepare(msg core.EmailMessage) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = svc.subjPrefix + msg.Subject

	for _, to := range msg.To {
		p.AddTos(svc.getSGEmail(to))
	}
	for _, cc := range msg.Cc {
		p.AddCCs(svc.getSGEmail(cc))
	}
	for _, bcc := range msg.Bcc {
		p.AddBCCs(svc.getSGEmail(bcc))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(svc.from)
	m.AddPersonalizations(p)

	// sendgrid rejects empty content values; text/plain must come first
	if msg.TextContent != "" {
		m.AddContent(sgmail.NewContent("text/plain", msg.TextContent))
	}
	if msg.HTMLContent != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTMLContent))
	}

	categories := []string{svc.appName}
	if msg.TemplateName != "" {
		categories = append(categories, msg.TemplateName)
	}
	m.AddCategories(categories...)

	for _, a := range msg.Attachments {
		m.AddAttachment(svc.getSGAttachment(a))
	}

	return m
}

func (svc sendgridService) getSGEmail(addr mail.Address) *sgmail.Email {
	return sgmail.NewEmail(addr.Name, addr.Address)
}

func (svc sendgridService) getSGAttachment(at core.Attachment) *sgmail.Attachment {
	var content string // already base64 encoded by core.EmailMessage.Attach
	if at.Content != nil {
		content = at.Content.String()
	}
	return &sgmail.Attachment{
		Content:     content,
		Type:        at.ContentType,
		Filename:    at.Filename,
		Disposition: "attachment",
	}
}

// retryable reports whether sendgrid may accept the same request later.
func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// send posts msg, retrying rate-limited and server-side failures.
func (svc sendgridService) send(msg core.EmailMessage) {
	body := sgmail.GetRequestBody(svc.prepare(msg))

	for attempt := 1; attempt <= sendAttempts; attempt++ {
		req := sendgrid.GetRequest(svc.key, endpoint, host)
		req.Method = http.MethodPost
		req.Body = body

		res, err := svc.api(req)
		switch {
		case err != nil:
			svc.logger.Error(fmt.Sprintf("sending email (attempt %d): %v", attempt, err), err)
		case res.StatusCode < http.StatusBadRequest:
			return
		case !retryable(res.StatusCode):
			svc.logger.Error(fmt.Sprintf("sending email - status: %d - Body: %s", res.StatusCode, res.Body))
			return
		default:
			svc.logger.Warn(fmt.Sprintf("sending email (attempt %d) - status: %d", attempt, res.StatusCode))
		}
		if attempt < sendAttempts {
			time.Sleep(svc.backoff * time.Duration(attempt))
		}
	}
	svc.logger.Error(fmt.Sprintf("sending email %q: giving up after %d attempts", msg.Subject, sendAttempts))
}
