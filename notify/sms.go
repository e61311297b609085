package notify

import (
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/nyaruka/phonenumbers"
	"github.com/pkg/errors"
)

// DefaultSMSURL is the Fast2SMS bulk endpoint
const DefaultSMSURL = "https://www.fast2sms.com/dev/bulkV2"

// SMSConfig godoc
type SMSConfig struct {
	URL      string
	APIKey   string
	SenderID string
	Route    string
	// Country is the region used to parse numbers written without a country code.
	Country string
	Timeout time.Duration
}

// SMS sends text messages through the Fast2SMS bulk API.
type SMS struct {
	cfg  SMSConfig
	http *http.Client
}

type smsResponse struct {
	Return    bool        `json:"return"`
	RequestID string      `json:"request_id"`
	Message   interface{} `json:"message"`
}

// NewSMS godoc
func NewSMS(cfg SMSConfig) *SMS {
	if cfg.URL == "" {
		cfg.URL = DefaultSMSURL
	}
	if cfg.SenderID == "" {
		cfg.SenderID = "TXTIND"
	}
	if cfg.Route == "" {
		cfg.Route = "v3"
	}
	if cfg.Country == "" {
		cfg.Country = "IN"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SMS{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

// Channel godoc
func (s *SMS) Channel() string {
	return "sms"
}

// Notify godoc
func (s *SMS) Notify(ctx context.Context, to Recipient, msg Message) error {
	numbers, err := NormalizePhones(to.Phone, s.cfg.Country)
	if err != nil {
		return err
	}
	payload := url.Values{}
	payload.Set("sender_id", s.cfg.SenderID)
	payload.Set("message", msg.Text)
	payload.Set("language", "english")
	payload.Set("route", s.cfg.Route)
	payload.Set("flash", "0")
	payload.Set("numbers", strings.Join(numbers, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, strings.NewReader(payload.Encode()))
	if err != nil {
		return errors.Wrap(err, "sms: build request")
	}
	req.Header.Set("authorization", s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Cache-Control", "no-cache")

	res, err := s.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "sms: send")
	}
	defer res.Body.Close()
	body, err := ioutil.ReadAll(res.Body)
	if err != nil {
		return errors.Wrap(err, "sms: read response")
	}
	if res.StatusCode != http.StatusOK {
		return errors.Errorf("sms: gateway returned status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	resp := smsResponse{}
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(body, &resp); err != nil {
		return errors.Wrap(err, "sms: decode response")
	}
	if !resp.Return {
		return errors.Errorf("sms: gateway rejected message: %v", resp.Message)
	}
	return nil
}

// NormalizePhones parses comma separated phone numbers and returns the valid
// ones as national numbers, the form the gateway expects.
func NormalizePhones(phones, country string) ([]string, error) {
	var numbers []string
	for _, raw := range strings.Split(phones, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		num, err := phonenumbers.Parse(raw, country)
		if err != nil || !phonenumbers.IsValidNumber(num) {
			continue
		}
		numbers = append(numbers, fmt.Sprint(num.GetNationalNumber()))
	}
	if len(numbers) == 0 {
		return nil, errors.Wrapf(ErrInvalidPhone, "%q", phones)
	}
	return numbers, nil
}
