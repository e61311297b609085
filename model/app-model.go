package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the day-month-year layout the appointment API speaks.
const DateLayout = "02-01-2006"

// userNamespace seeds the name based ids of waiting list users
var userNamespace = uuid.MustParse("6f1c7f8e-4a57-4b8f-9a43-3d1d5b6f2c10")

// User is one entry of the waiting list.
type User struct {
	ID          string
	Name        string
	Age         int
	Place       string
	Pincode     string
	District    string
	State       string
	PhoneNumber string
	// CenterID is the preferred vaccination center, 0 when the user has none.
	CenterID int
	Email    string
	// Row is the 0 based data row the user was read from. Informational only,
	// removal is keyed by ID.
	Row int
}

// UserID derives the durable id of a user from the fields that identify a person
// on the waiting list, so the same row keeps its id across rewrites of the file.
func UserID(name, phone string) string {
	key := strings.ToLower(strings.TrimSpace(name)) + "|" + strings.TrimSpace(phone)
	return uuid.NewSHA1(userNamespace, []byte(key)).String()
}

// Location is the free text origin used for distance lookups.
func (u User) Location() string {
	return u.Place + ", " + u.District
}

// AppointmentSlot is a single session of a center on a given date.
type AppointmentSlot struct {
	CenterID          int
	CenterName        string
	Address           string
	DistrictName      string
	Pincode           string
	Date              string
	Vaccine           string
	MinAgeLimit       int
	AvailableCapacity int
	FeeType           string
}

// EligibleFor reports whether the user may book the slot: the user is old enough
// and there is at least one dose left.
func (s AppointmentSlot) EligibleFor(u User) bool {
	return s.MinAgeLimit <= u.Age && s.AvailableCapacity > 0
}

// Destination is the free text location of the center used for distance lookups.
func (s AppointmentSlot) Destination() string {
	return s.Address + ", " + s.Pincode + ", " + s.DistrictName
}

// Day parses the slot date. Unparseable dates sort last.
func (s AppointmentSlot) Day() time.Time {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s.Date))
	if err != nil {
		return time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)
	}
	return t
}

// Tier is a preference level used to narrow the eligible slots of a user.
type Tier int

// Tiers in priority order
const (
	TierNone Tier = iota
	TierCenter
	TierPincode
	TierDistrict
	TierState
)

func (t Tier) String() string {
	switch t {
	case TierCenter:
		return "center"
	case TierPincode:
		return "pincode"
	case TierDistrict:
		return "district"
	case TierState:
		return "state"
	}
	return "none"
}

// District is one row of the static location directory.
type District struct {
	StateID      int
	StateName    string
	DistrictID   int
	DistrictName string
}

// TargetDate returns the appointment date searched for a pass started at now.
func TargetDate(now time.Time, daysAhead int) string {
	return now.AddDate(0, 0, daysAhead).Format(DateLayout)
}
