package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/badoux/checkmail"
	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const mimeHeaders = "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n\n"

// SMTPConfig godoc
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// SMTP sends html emails with plain auth.
type SMTP struct {
	cfg      SMTPConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTP godoc
func NewSMTP(cfg SMTPConfig) *SMTP {
	if cfg.Username == "" {
		cfg.Username = cfg.From
	}
	return &SMTP{cfg: cfg, sendMail: smtp.SendMail}
}

// Channel godoc
func (s *SMTP) Channel() string {
	return "smtp"
}

// Notify godoc
func (s *SMTP) Notify(ctx context.Context, to Recipient, msg Message) error {
	address, err := emailOf(to)
	if err != nil {
		return err
	}
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)

	var body bytes.Buffer
	fmt.Fprintf(&body, "From: %s\nTo: %s\n", s.cfg.From, address)
	fmt.Fprintf(&body, "Subject: %s \n%s\n\n", msg.Subject, mimeHeaders)
	body.WriteString(msg.HTML)

	err = s.sendMail(s.cfg.Host+":"+s.cfg.Port, auth, s.cfg.From, []string{address}, body.Bytes())
	return errors.Wrap(err, "smtp: send")
}

// mailSender is the part of the sendgrid client we use.
type mailSender interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

// Sendgrid sends emails through the SendGrid v3 API.
type Sendgrid struct {
	from   string
	client mailSender
}

// NewSendgrid godoc
func NewSendgrid(key, from string) *Sendgrid {
	return &Sendgrid{from: from, client: sendgrid.NewSendClient(key)}
}

// Channel godoc
func (s *Sendgrid) Channel() string {
	return "sendgrid"
}

// Notify godoc
func (s *Sendgrid) Notify(ctx context.Context, to Recipient, msg Message) error {
	address, err := emailOf(to)
	if err != nil {
		return err
	}
	email := mail.NewSingleEmail(mail.NewEmail("", s.from), msg.Subject, mail.NewEmail(to.Name, address), msg.Text, msg.HTML)
	res, err := s.client.Send(email)
	if err != nil {
		return errors.Wrap(err, "sendgrid: send")
	}
	if res.StatusCode >= 300 {
		return errors.Errorf("sendgrid: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

func emailOf(to Recipient) (string, error) {
	address := strings.TrimSpace(to.Email)
	if address == "" {
		return "", ErrSkipped
	}
	if err := checkmail.ValidateFormat(address); err != nil {
		return "", errors.Wrapf(err, "email %q", address)
	}
	return address, nil
}
