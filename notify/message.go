package notify

import (
	"bytes"
	_ "embed"
	htmltemplate "html/template"
	"strings"
	"text/template"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"cowin-notifier/model"
)

//go:embed templates/message.yaml
var messageYAML []byte

type messageTemplates struct {
	SMS          string `yaml:"sms"`
	EmailSubject string `yaml:"email_subject"`
	EmailHTML    string `yaml:"email_html"`
}

// Message is one notification rendered for every channel.
type Message struct {
	Text    string
	Subject string
	HTML    string
}

// Recipient of a notification.
type Recipient struct {
	Name string
	// Phone holds one or more comma separated numbers.
	Phone string
	Email string
}

// RecipientOf godoc
func RecipientOf(u model.User) Recipient {
	return Recipient{Name: u.Name, Phone: u.PhoneNumber, Email: u.Email}
}

// Composer renders messages from the embedded templates.
type Composer struct {
	text *template.Template
	html *htmltemplate.Template
	subj string
}

// NewComposer parses the embedded message templates.
func NewComposer() (*Composer, error) {
	var tpl messageTemplates
	if err := yaml.Unmarshal(messageYAML, &tpl); err != nil {
		return nil, errors.Wrap(err, "notify: parse message yaml")
	}
	text, err := template.New("sms").Parse(tpl.SMS)
	if err != nil {
		return nil, errors.Wrap(err, "notify: parse sms template")
	}
	html, err := htmltemplate.New("email").Parse(tpl.EmailHTML)
	if err != nil {
		return nil, errors.Wrap(err, "notify: parse email template")
	}
	return &Composer{text: text, html: html, subj: tpl.EmailSubject}, nil
}

// Compose renders the notification of a slot for a user.
func (c *Composer) Compose(u model.User, slot model.AppointmentSlot) (Message, error) {
	var text bytes.Buffer
	if err := c.text.Execute(&text, slot); err != nil {
		return Message{}, errors.Wrap(err, "notify: render sms")
	}
	var html bytes.Buffer
	data := struct {
		Name string
		Slot model.AppointmentSlot
	}{u.Name, slot}
	if err := c.html.Execute(&html, data); err != nil {
		return Message{}, errors.Wrap(err, "notify: render email")
	}
	return Message{
		Text:    strings.TrimSpace(text.String()),
		Subject: c.subj,
		HTML:    html.String(),
	}, nil
}
