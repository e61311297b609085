package cowin

import (
	"math"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"cowin-notifier/model"
)

// unknownMinAge makes a slot with a missing or unreadable age limit ineligible for everyone.
const unknownMinAge = math.MaxInt32

type CowinStates struct {
	States []States `json:"states"`
	TTL    int      `json:"ttl"`
}

type States struct {
	StateID   int    `json:"state_id"`
	StateName string `json:"state_name"`
}

type CowinDistricts struct {
	Districts []Districts `json:"districts"`
	TTL       int         `json:"ttl"`
}

type Districts struct {
	DistrictID   int    `json:"district_id"`
	DistrictName string `json:"district_name"`
}

type CowinSlots struct {
	Centers []Centers `json:"centers"`
}

type Sessions struct {
	SessionID string   `json:"session_id"`
	Date      string   `json:"date"`
	Vaccine   string   `json:"vaccine"`
	Slots     []string `json:"slots"`
	// kept raw so one bad value only spoils its own session
	AvailableCapacity jsoniter.RawMessage `json:"available_capacity"`
	MinAgeLimit       jsoniter.RawMessage `json:"min_age_limit"`
}

// getRoundedAvailableCapacity floors the capacity, unreadable or negative values count as none
func (s *Sessions) getRoundedAvailableCapacity() int {
	capacity, ok := parseNumber(s.AvailableCapacity)
	if !ok || capacity <= 0 {
		return 0
	}
	if capacity > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(capacity)
}

// getMinAgeLimit returns unknownMinAge when the limit is missing or malformed.
func (s *Sessions) getMinAgeLimit() int {
	age, ok := parseNumber(s.MinAgeLimit)
	if !ok || age < 0 || age > unknownMinAge {
		return unknownMinAge
	}
	return int(math.Ceil(age))
}

// parseNumber reads a json number, also when it is sent as a string.
func parseNumber(raw jsoniter.RawMessage) (float64, bool) {
	text := strings.TrimSpace(string(raw))
	if unquoted, err := strconv.Unquote(text); err == nil {
		text = strings.TrimSpace(unquoted)
	}
	if text == "" || text == "null" {
		return 0, false
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

type Centers struct {
	CenterID     int        `json:"center_id"`
	Name         string     `json:"name"`
	Address      string     `json:"address"`
	StateName    string     `json:"state_name"`
	DistrictName string     `json:"district_name"`
	BlockName    string     `json:"block_name"`
	Pincode      int        `json:"pincode"`
	Lat          float64    `json:"lat"`
	Long         float64    `json:"long"`
	From         string     `json:"from"`
	To           string     `json:"to"`
	FeeType      string     `json:"fee_type"`
	Sessions     []Sessions `json:"sessions"`
}

// toSlots flattens centers and their sessions in response order.
func (c *CowinSlots) toSlots() []model.AppointmentSlot {
	var slots []model.AppointmentSlot
	for _, center := range c.Centers {
		pincode := ""
		if center.Pincode > 0 {
			pincode = strconv.Itoa(center.Pincode)
		}
		for i := range center.Sessions {
			session := &center.Sessions[i]
			slots = append(slots, model.AppointmentSlot{
				CenterID:          center.CenterID,
				CenterName:        strings.TrimSpace(center.Name),
				Address:           strings.TrimSpace(center.Address),
				DistrictName:      strings.TrimSpace(center.DistrictName),
				Pincode:           pincode,
				Date:              session.Date,
				Vaccine:           session.Vaccine,
				MinAgeLimit:       session.getMinAgeLimit(),
				AvailableCapacity: session.getRoundedAvailableCapacity(),
				FeeType:           center.FeeType,
			})
		}
	}
	return slots
}
