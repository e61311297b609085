package notify

import (
	"context"
	"errors"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"net/url"
	"testing"

	"github.com/go-playground/assert/v2"
	"github.com/rs/zerolog"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	. "github.com/smartystreets/goconvey/convey"

	"cowin-notifier/model"
)

var testSlot = model.AppointmentSlot{
	CenterID:          1201,
	CenterName:        "PHC Jayanagar",
	Address:           "9th Block",
	DistrictName:      "BBMP",
	Pincode:           "560041",
	Date:              "17-05-2021",
	Vaccine:           "COVISHIELD",
	MinAgeLimit:       18,
	AvailableCapacity: 4,
	FeeType:           "Free",
}

func TestCompose(t *testing.T) {
	Convey("it should render the sms and email of a slot", t, func() {
		c, err := NewComposer()
		So(err, ShouldBeNil)
		msg, err := c.Compose(model.User{Name: "Asha <Rao>"}, testSlot)
		So(err, ShouldBeNil)
		So(msg.Text, ShouldEqual, "Vaccine COVISHIELD available. Center: PHC Jayanagar, pincode: 560041, district: BBMP. "+
			"Date: 17-05-2021. Fee type: Free. Make appointment immediately.")
		So(msg.Subject, ShouldEqual, "ATTENTION!! Covid-19 Vaccine Availability Alert")
		So(msg.HTML, ShouldContainSubstring, "Hello Asha &lt;Rao&gt;")
		So(msg.HTML, ShouldContainSubstring, "<td>PHC Jayanagar</td>")
	})
}

func TestNormalizePhones(t *testing.T) {
	tests := []struct {
		name    string
		arg     string
		want    []string
		wantErr bool
	}{
		{
			name: "Success case. National number",
			arg:  "9845012345",
			want: []string{"9845012345"},
		},
		{
			name: "Success case. International format and a second number",
			arg:  "+91 98450 12345, 9845012346",
			want: []string{"9845012345", "9845012346"},
		},
		{
			name: "Success case. Invalid numbers are dropped",
			arg:  "12,9845012345",
			want: []string{"9845012345"},
		},
		{
			name:    "Fail case. Nothing valid",
			arg:     "abc, 12",
			wantErr: true,
		},
		{
			name:    "Fail case. Empty",
			arg:     "",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePhones(tt.arg, "IN")
			assert.Equal(t, tt.wantErr, err != nil)
			if tt.wantErr {
				assert.Equal(t, true, errors.Is(err, ErrInvalidPhone))
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSMS(t *testing.T) {
	var form url.Values
	var auth string
	reply := `{"return":true,"request_id":"abc","message":["SMS sent successfully."]}`
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := ioutil.ReadAll(r.Body)
		form, _ = url.ParseQuery(string(body))
		auth = r.Header.Get("authorization")
		w.WriteHeader(status)
		w.Write([]byte(reply))
	}))
	defer srv.Close()

	sms := NewSMS(SMSConfig{URL: srv.URL, APIKey: "secret"})
	msg := Message{Text: "Vaccine available"}

	Convey("it should post the message to the gateway", t, func() {
		err := sms.Notify(context.Background(), Recipient{Phone: "+919845012345"}, msg)
		So(err, ShouldBeNil)
		So(auth, ShouldEqual, "secret")
		So(form.Get("numbers"), ShouldEqual, "9845012345")
		So(form.Get("message"), ShouldEqual, "Vaccine available")
		So(form.Get("sender_id"), ShouldEqual, "TXTIND")
		So(form.Get("route"), ShouldEqual, "v3")
		So(form.Get("flash"), ShouldEqual, "0")
	})

	Convey("a rejected message is an error", t, func() {
		reply = `{"return":false,"message":"Invalid Authentication"}`
		err := sms.Notify(context.Background(), Recipient{Phone: "9845012345"}, msg)
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "Invalid Authentication")
	})

	Convey("a failing gateway is an error", t, func() {
		status = http.StatusInternalServerError
		err := sms.Notify(context.Background(), Recipient{Phone: "9845012345"}, msg)
		So(err, ShouldNotBeNil)
	})

	Convey("an invalid number is not sent", t, func() {
		err := sms.Notify(context.Background(), Recipient{Phone: "n/a"}, msg)
		So(errors.Is(err, ErrInvalidPhone), ShouldBeTrue)
	})
}

func TestSMTP(t *testing.T) {
	Convey("Given an smtp notifier", t, func() {
		s := NewSMTP(SMTPConfig{Host: "smtp.example.com", Port: "587", Password: "pw", From: "alerts@example.com"})
		var gotAddr, gotFrom string
		var gotTo []string
		var gotBody []byte
		s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotFrom, gotTo, gotBody = addr, from, to, msg
			return nil
		}
		msg := Message{Subject: "Alert", HTML: "<p>slot</p>"}

		Convey("it should send the html body to the recipient", func() {
			err := s.Notify(context.Background(), Recipient{Email: "asha@example.com"}, msg)
			So(err, ShouldBeNil)
			So(gotAddr, ShouldEqual, "smtp.example.com:587")
			So(gotFrom, ShouldEqual, "alerts@example.com")
			So(gotTo, ShouldResemble, []string{"asha@example.com"})
			So(string(gotBody), ShouldContainSubstring, "Subject: Alert")
			So(string(gotBody), ShouldEndWith, "<p>slot</p>")
		})

		Convey("recipients without an email are skipped", func() {
			err := s.Notify(context.Background(), Recipient{Phone: "9845012345"}, msg)
			So(err, ShouldEqual, ErrSkipped)
		})

		Convey("malformed emails are rejected", func() {
			err := s.Notify(context.Background(), Recipient{Email: "asha@"}, msg)
			So(err, ShouldNotBeNil)
			So(err, ShouldNotEqual, ErrSkipped)
		})
	})
}

type fakeSendgrid struct {
	status int
	sent   []*mail.SGMailV3
}

func (f *fakeSendgrid) Send(email *mail.SGMailV3) (*rest.Response, error) {
	f.sent = append(f.sent, email)
	return &rest.Response{StatusCode: f.status, Body: "body"}, nil
}

func TestSendgrid(t *testing.T) {
	Convey("Given a sendgrid notifier", t, func() {
		fake := &fakeSendgrid{status: http.StatusAccepted}
		s := &Sendgrid{from: "alerts@example.com", client: fake}
		msg := Message{Subject: "Alert", Text: "text", HTML: "<p>html</p>"}

		Convey("it should send a single email", func() {
			So(s.Notify(context.Background(), Recipient{Name: "Asha", Email: "asha@example.com"}, msg), ShouldBeNil)
			So(len(fake.sent), ShouldEqual, 1)
			So(fake.sent[0].Subject, ShouldEqual, "Alert")
			So(fake.sent[0].From.Address, ShouldEqual, "alerts@example.com")
		})

		Convey("an error status fails the delivery", func() {
			fake.status = http.StatusUnauthorized
			So(s.Notify(context.Background(), Recipient{Email: "asha@example.com"}, msg), ShouldNotBeNil)
		})
	})
}

type stubChannel struct {
	name string
	err  error
}

func (s stubChannel) Channel() string { return s.name }

func (s stubChannel) Notify(ctx context.Context, to Recipient, msg Message) error { return s.err }

func TestMulti(t *testing.T) {
	logger := zerolog.Nop()
	failed := stubChannel{name: "sms", err: errors.New("gateway down")}
	ok := stubChannel{name: "smtp"}
	skipped := stubChannel{name: "sendgrid", err: ErrSkipped}

	Convey("one delivered channel is enough", t, func() {
		m := NewMulti(logger, failed, ok)
		So(m.Notify(context.Background(), Recipient{}, Message{}), ShouldBeNil)
		So(m.Channel(), ShouldEqual, "sms+smtp")
	})

	Convey("every channel failing is an error", t, func() {
		m := NewMulti(logger, failed, skipped)
		err := m.Notify(context.Background(), Recipient{}, Message{})
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "gateway down")
	})

	Convey("every channel skipping reports skipped", t, func() {
		m := NewMulti(logger, skipped)
		So(m.Notify(context.Background(), Recipient{}, Message{}), ShouldEqual, ErrSkipped)
	})

	Convey("the log channel always delivers", t, func() {
		So(NewLog(logger).Notify(context.Background(), Recipient{}, Message{}), ShouldBeNil)
	})
}
