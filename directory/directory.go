package directory

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"cowin-notifier/cowin"
	"cowin-notifier/model"
)

var header = []string{"state_id", "state_name", "district_id", "district_name"}

// Source lists states and their districts, usually the CoWIN client.
type Source interface {
	States(ctx context.Context) ([]cowin.States, error)
	Districts(ctx context.Context, stateID int) ([]cowin.Districts, error)
}

// Directory maps state names to their districts. It is immutable once loaded.
type Directory struct {
	entries []model.District
	byState map[string][]model.District
}

// New builds a directory from a list of entries.
func New(entries []model.District) *Directory {
	d := &Directory{
		entries: entries,
		byState: make(map[string][]model.District),
	}
	for _, e := range entries {
		key := normalize(e.StateName)
		d.byState[key] = append(d.byState[key], e)
	}
	return d
}

// Load reads the reference file at path. When the file does not exist the
// directory is pulled from the source and written to path for the next run.
func Load(ctx context.Context, path string, source Source, logger zerolog.Logger) (*Directory, error) {
	f, err := os.Open(path)
	if err == nil {
		defer f.Close()
		entries, err := read(f)
		if err != nil {
			return nil, errors.Wrapf(err, "directory: read %s", path)
		}
		logger.Debug().Str("path", path).Int("districts", len(entries)).Msg("District directory loaded")
		return New(entries), nil
	}
	if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "directory: open %s", path)
	}
	logger.Info().Str("path", path).Msg("District directory not found, pulling it from the API")
	return Refresh(ctx, path, source, logger)
}

// Refresh pulls the directory from the source and overwrites the file at path.
func Refresh(ctx context.Context, path string, source Source, logger zerolog.Logger) (*Directory, error) {
	entries, err := Pull(ctx, source)
	if err != nil {
		return nil, err
	}
	if err := Save(path, entries); err != nil {
		return nil, err
	}
	logger.Info().Str("path", path).Int("districts", len(entries)).Msg("District directory saved")
	return New(entries), nil
}

// Pull queries every state and its districts.
func Pull(ctx context.Context, source Source) ([]model.District, error) {
	states, err := source.States(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "directory: list states")
	}
	var entries []model.District
	for _, state := range states {
		districts, err := source.Districts(ctx, state.StateID)
		if err != nil {
			return nil, errors.Wrapf(err, "directory: list districts of %s", state.StateName)
		}
		for _, district := range districts {
			entries = append(entries, model.District{
				StateID:      state.StateID,
				StateName:    state.StateName,
				DistrictID:   district.DistrictID,
				DistrictName: district.DistrictName,
			})
		}
	}
	return entries, nil
}

// Save writes the entries as csv, replacing the file atomically.
func Save(path string, entries []model.District) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "directory: create %s", dir)
		}
	}
	rows := make([][]string, 0, len(entries)+1)
	rows = append(rows, header)
	for _, e := range entries {
		rows = append(rows, []string{
			strconv.Itoa(e.StateID),
			e.StateName,
			strconv.Itoa(e.DistrictID),
			e.DistrictName,
		})
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "directory: create temp file for %s", path)
	}
	if err := csv.NewWriter(tmp).WriteAll(rows); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "directory: write %s", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "directory: close %s", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "directory: replace %s", path)
	}
	return nil
}

func read(r io.Reader) ([]model.District, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	idx := map[string]int{}
	for i, name := range rows[0] {
		idx[strings.TrimSpace(name)] = i
	}
	for _, name := range header {
		if _, ok := idx[name]; !ok {
			return nil, errors.Errorf("missing column %q", name)
		}
	}
	entries := make([]model.District, 0, len(rows)-1)
	for n, row := range rows[1:] {
		field := func(name string) string {
			if i := idx[name]; i < len(row) {
				return strings.TrimSpace(row[i])
			}
			return ""
		}
		stateID, err := strconv.Atoi(field("state_id"))
		if err != nil {
			return nil, errors.Wrapf(err, "row %d: state_id", n+2)
		}
		districtID, err := strconv.Atoi(field("district_id"))
		if err != nil {
			return nil, errors.Wrapf(err, "row %d: district_id", n+2)
		}
		entries = append(entries, model.District{
			StateID:      stateID,
			StateName:    field("state_name"),
			DistrictID:   districtID,
			DistrictName: field("district_name"),
		})
	}
	return entries, nil
}

// DistrictIDs returns the district ids of a state in file order. Unknown states
// have no districts.
func (d *Directory) DistrictIDs(state string) []int {
	districts := d.byState[normalize(state)]
	ids := make([]int, 0, len(districts))
	for _, district := range districts {
		ids = append(ids, district.DistrictID)
	}
	return ids
}

// HasState reports whether the state is known.
func (d *Directory) HasState(state string) bool {
	_, ok := d.byState[normalize(state)]
	return ok
}

// Lookup finds a district of a state by name.
func (d *Directory) Lookup(state, district string) (model.District, bool) {
	for _, e := range d.byState[normalize(state)] {
		if normalize(e.DistrictName) == normalize(district) {
			return e, true
		}
	}
	return model.District{}, false
}

// States lists the known state names sorted alphabetically.
func (d *Directory) States() []string {
	seen := make(map[string]struct{})
	var states []string
	for _, e := range d.entries {
		if _, ok := seen[e.StateName]; ok {
			continue
		}
		seen[e.StateName] = struct{}{}
		states = append(states, e.StateName)
	}
	sort.Strings(states)
	return states
}

// Len is the number of districts in the directory.
func (d *Directory) Len() int {
	return len(d.entries)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
