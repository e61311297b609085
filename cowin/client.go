package cowin

import (
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"cowin-notifier/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultBaseURL of the public CoWIN API
const DefaultBaseURL = "https://cdn-api.co-vin.in/api/v2"

// DefaultUserAgent is sent with every request, the API rejects requests without a browser agent
const DefaultUserAgent = "Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:88.0) Gecko/20100101 Firefox/88.0"

// Client queries the public CoWIN metadata and appointment endpoints.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

// NewClient godoc
func NewClient(baseURL, userAgent string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		http:      &http.Client{Timeout: timeout},
	}
}

// States lists all states known to the API.
func (c *Client) States(ctx context.Context) ([]States, error) {
	states := &CowinStates{}
	if err := c.get(ctx, "/admin/location/states", states); err != nil {
		return nil, err
	}
	return states.States, nil
}

// Districts lists the districts of a state.
func (c *Client) Districts(ctx context.Context, stateID int) ([]Districts, error) {
	districts := &CowinDistricts{}
	if err := c.get(ctx, fmt.Sprintf("/admin/location/districts/%d", stateID), districts); err != nil {
		return nil, err
	}
	return districts.Districts, nil
}

// CalendarByDistrict returns the sessions of every center in the district for
// the week starting at date (dd-mm-yyyy). An empty result is not an error.
func (c *Client) CalendarByDistrict(ctx context.Context, districtID int, date string) ([]model.AppointmentSlot, error) {
	q := url.Values{}
	q.Set("district_id", fmt.Sprintf("%d", districtID))
	q.Set("date", date)
	slots := &CowinSlots{}
	if err := c.get(ctx, "/appointment/sessions/public/calendarByDistrict?"+q.Encode(), slots); err != nil {
		return nil, err
	}
	return slots.toSlots(), nil
}

// CalendarByPin is CalendarByDistrict for a single pincode.
func (c *Client) CalendarByPin(ctx context.Context, pincode, date string) ([]model.AppointmentSlot, error) {
	q := url.Values{}
	q.Set("pincode", strings.TrimSpace(pincode))
	q.Set("date", date)
	slots := &CowinSlots{}
	if err := c.get(ctx, "/appointment/sessions/public/calendarByPin?"+q.Encode(), slots); err != nil {
		return nil, err
	}
	return slots.toSlots(), nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	res, err := c.makeRequest(ctx, c.baseURL+path)
	if err != nil {
		return errors.Wrapf(err, "cowin: request %s", path)
	}
	defer res.Body.Close()
	resBytes, err := ioutil.ReadAll(res.Body)
	if err != nil {
		return errors.Wrapf(err, "cowin: read %s", path)
	}
	if res.StatusCode != http.StatusOK {
		return errors.Errorf("cowin: %s returned status %d", path, res.StatusCode)
	}
	if err := json.Unmarshal(resBytes, out); err != nil {
		return errors.Wrapf(err, "cowin: decode %s", path)
	}
	return nil
}

func (c *Client) makeRequest(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "en_US")
	req.Header.Set("DNT", "1")
	req.Header.Set("User-Agent", c.userAgent)
	return c.http.Do(req)
}
