package store

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/badoux/checkmail"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"cowin-notifier/model"
)

// Column names of the waiting and completed lists.
const (
	ColName     = "Name"
	ColAge      = "Age"
	ColPlace    = "Place"
	ColPincode  = "Pincode"
	ColDistrict = "District"
	ColState    = "State"
	ColPhone    = "PhoneNumber"
	ColCenterID = "CenterID"
	ColEmail    = "Email"
)

// RequiredColumns must be present in the waiting list header.
var RequiredColumns = []string{ColName, ColAge, ColPlace, ColPincode, ColDistrict, ColState, ColPhone}

// DefaultColumns is the header written to new list files.
var DefaultColumns = append(append([]string{}, RequiredColumns...), ColCenterID, ColEmail)

// ErrMissingColumn is returned when the waiting list lacks a required column.
var ErrMissingColumn = errors.New("store: missing column")

// WaitingList is the csv table of users still waiting for a slot.
type WaitingList struct {
	path   string
	logger zerolog.Logger
}

// NewWaitingList godoc
func NewWaitingList(path string, logger zerolog.Logger) *WaitingList {
	return &WaitingList{path: path, logger: logger}
}

// Load reads a snapshot of the waiting list. Rows that cannot be parsed are
// logged and left out, they stay in the file untouched.
func (w *WaitingList) Load() ([]model.User, error) {
	header, rows, err := readCSV(w.path)
	if err != nil {
		return nil, err
	}
	if header == nil {
		return nil, nil
	}
	cols := indexColumns(header)
	for _, name := range RequiredColumns {
		if !cols.has(name) {
			return nil, errors.Wrapf(ErrMissingColumn, "%s in %s", name, w.path)
		}
	}
	users := make([]model.User, 0, len(rows))
	for i, row := range rows {
		u, err := parseUser(cols, row)
		if err != nil {
			w.logger.Warn().Err(err).Str("path", w.path).Int("row", i+2).Msg("Skipping waiting list row")
			continue
		}
		if u.Email != "" {
			if err := checkmail.ValidateFormat(u.Email); err != nil {
				w.logger.Warn().Str("user_id", u.ID).Str("email", u.Email).Msg("Ignoring invalid email")
				u.Email = ""
			}
		}
		u.Row = i
		users = append(users, u)
	}
	return users, nil
}

// Remove deletes the rows of the given users. The file is re-read so rows
// added since the snapshot was taken are kept.
func (w *WaitingList) Remove(ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	header, rows, err := readCSV(w.path)
	if err != nil {
		return err
	}
	if header == nil {
		return nil
	}
	cols := indexColumns(header)
	kept := rows[:0:0]
	for _, row := range rows {
		id := model.UserID(cols.get(row, ColName), cols.get(row, ColPhone))
		if _, ok := drop[id]; ok {
			continue
		}
		kept = append(kept, row)
	}
	if len(kept) == len(rows) {
		return nil
	}
	return writeCSV(w.path, header, kept)
}

// Completed is the append only csv table of notified users.
type Completed struct {
	path string
}

// NewCompleted godoc
func NewCompleted(path string) *Completed {
	return &Completed{path: path}
}

// Append adds the user unless it is already present, so retrying after a
// partial failure never duplicates a row.
func (c *Completed) Append(u model.User) error {
	header, rows, err := readCSV(c.path)
	if err != nil {
		return err
	}
	if header == nil {
		header = DefaultColumns
	}
	cols := indexColumns(header)
	for _, row := range rows {
		if model.UserID(cols.get(row, ColName), cols.get(row, ColPhone)) == u.ID {
			return nil
		}
	}
	rows = append(rows, formatUser(header, u))
	return writeCSV(c.path, header, rows)
}

func parseUser(cols columns, row []string) (model.User, error) {
	u := model.User{
		Name:        cols.get(row, ColName),
		Place:       cols.get(row, ColPlace),
		Pincode:     trimFloat(cols.get(row, ColPincode)),
		District:    cols.get(row, ColDistrict),
		State:       cols.get(row, ColState),
		PhoneNumber: trimFloat(cols.get(row, ColPhone)),
		Email:       cols.get(row, ColEmail),
	}
	if u.Name == "" || u.PhoneNumber == "" {
		return u, errors.New("name and phone number are required")
	}
	age, err := strconv.Atoi(trimFloat(cols.get(row, ColAge)))
	if err != nil {
		return u, errors.Wrap(err, "age")
	}
	u.Age = age
	if raw := trimFloat(cols.get(row, ColCenterID)); raw != "" {
		center, err := strconv.Atoi(raw)
		if err != nil {
			return u, errors.Wrap(err, "center id")
		}
		u.CenterID = center
	}
	u.ID = model.UserID(u.Name, u.PhoneNumber)
	return u, nil
}

func formatUser(header []string, u model.User) []string {
	row := make([]string, len(header))
	for i, name := range header {
		switch strings.ToLower(name) {
		case strings.ToLower(ColName):
			row[i] = u.Name
		case strings.ToLower(ColAge):
			row[i] = strconv.Itoa(u.Age)
		case strings.ToLower(ColPlace):
			row[i] = u.Place
		case strings.ToLower(ColPincode):
			row[i] = u.Pincode
		case strings.ToLower(ColDistrict):
			row[i] = u.District
		case strings.ToLower(ColState):
			row[i] = u.State
		case strings.ToLower(ColPhone):
			row[i] = u.PhoneNumber
		case strings.ToLower(ColCenterID):
			if u.CenterID != 0 {
				row[i] = strconv.Itoa(u.CenterID)
			}
		case strings.ToLower(ColEmail):
			row[i] = u.Email
		}
	}
	return row
}

// trimFloat undoes spreadsheet exports that write integers as "560001.0"
func trimFloat(s string) string {
	if strings.HasSuffix(s, ".0") {
		if _, err := strconv.Atoi(strings.TrimSuffix(s, ".0")); err == nil {
			return strings.TrimSuffix(s, ".0")
		}
	}
	return s
}

var slotColumns = []string{"center_id", "center_name", "address", "district_name", "pincode", "date", "vaccine", "min_age_limit", "available_capacity", "fee_type"}

// DumpSlots writes the candidate pool of a user to dir for diagnostics.
func DumpSlots(dir, date string, u model.User, slots []model.AppointmentSlot) (string, error) {
	rows := make([][]string, 0, len(slots))
	for _, s := range slots {
		rows = append(rows, []string{
			strconv.Itoa(s.CenterID),
			s.CenterName,
			s.Address,
			s.DistrictName,
			s.Pincode,
			s.Date,
			s.Vaccine,
			strconv.Itoa(s.MinAgeLimit),
			strconv.Itoa(s.AvailableCapacity),
			s.FeeType,
		})
	}
	path := filepath.Join(dir, fmt.Sprintf("slots-%s-%s.csv", date, u.ID))
	return path, writeCSV(path, slotColumns, rows)
}
