package store

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// readCSV returns the header and the data rows of a csv file. A missing file
// reads as empty.
func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, errors.Wrapf(err, "store: open %s", path)
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, errors.Wrapf(err, "store: read %s", path)
	}
	if len(rows) == 0 {
		return nil, nil, nil
	}
	header := make([]string, len(rows[0]))
	for i, name := range rows[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
	}
	return header, rows[1:], nil
}

// writeCSV replaces the file at path with header and rows. The content is
// written to a temporary file first so readers never see a partial table.
func writeCSV(path string, header []string, rows [][]string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "store: create %s", dir)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "store: create temp file for %s", path)
	}
	w := csv.NewWriter(tmp)
	err = w.Write(header)
	if err == nil {
		err = w.WriteAll(rows)
	}
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "store: write %s", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "store: close %s", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "store: replace %s", path)
	}
	return nil
}

type columns map[string]int

func indexColumns(header []string) columns {
	c := make(columns, len(header))
	for i, name := range header {
		c[strings.ToLower(name)] = i
	}
	return c
}

func (c columns) get(row []string, name string) string {
	i, ok := c[strings.ToLower(name)]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (c columns) has(name string) bool {
	_, ok := c[strings.ToLower(name)]
	return ok
}
