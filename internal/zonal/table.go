package zonal

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"

	"github.com/gep-landslides/slidepanel/internal/utils"
)

// Record holds the statistics of one polygon for one year. Values line up
// with the Columns of the table the record belongs to.
type Record struct {
	FID    int64
	ID     string
	Year   int
	Values []float64
}

// Key identifies a record by stable id and year
type Key struct {
	ID   string
	Year int
}

// Table is a long format statistics table, ordered by year and fid
type Table struct {
	IDField    string
	YearColumn string
	Columns    []string
	Records    []Record
}

// Column returns the index of a statistic column, or -1
func (t *Table) Column(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Index maps every (id, year) to its record
func (t *Table) Index() map[Key]*Record {
	idx := make(map[Key]*Record, len(t.Records))
	for i := range t.Records {
		r := &t.Records[i]
		idx[Key{ID: r.ID, Year: r.Year}] = r
	}
	return idx
}

// Years returns the distinct years of the table in ascending order
func (t *Table) Years() []int {
	var years []int
	seen := map[int]bool{}
	for _, r := range t.Records {
		if !seen[r.Year] {
			seen[r.Year] = true
			years = append(years, r.Year)
		}
	}
	sort.Ints(years)
	return years
}

// WriteCSV writes the table as fid,<id>,<year>,<columns...>. Missing
// statistics are empty cells.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	header := append([]string{"fid", t.IDField, t.YearColumn}, t.Columns...)
	if err := cw.Write(header); err != nil {
		return err
	}

	row := make([]string, len(header))
	for _, r := range t.Records {
		row[0] = strconv.FormatInt(r.FID, 10)
		row[1] = r.ID
		row[2] = strconv.Itoa(r.Year)
		for i, v := range r.Values {
			row[3+i] = formatValue(v)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteFile writes the table as CSV to path
func (t *Table) WriteFile(path string) (err error) {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return t.WriteCSV(f)
}

// ReadCSV parses a table written by WriteCSV. Every column besides fid, the
// id field and the year column is a statistic.
func ReadCSV(r io.Reader, idField, yearColumn string) (*Table, error) {
	cr := csv.NewReader(r)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty table")
	}

	header := rows[0]
	fidCol, idCol, yearCol := -1, -1, -1
	t := &Table{IDField: idField, YearColumn: yearColumn}
	var statCols []int
	for i, name := range header {
		switch name {
		case "fid":
			fidCol = i
		case idField:
			idCol = i
		case yearColumn:
			yearCol = i
		default:
			t.Columns = append(t.Columns, name)
			statCols = append(statCols, i)
		}
	}
	if idCol < 0 || yearCol < 0 {
		return nil, fmt.Errorf("table needs columns %s and %s, got %v", idField, yearColumn, header)
	}

	for n, row := range rows[1:] {
		rec := Record{ID: row[idCol], Values: make([]float64, len(statCols))}
		if rec.Year, err = strconv.Atoi(row[yearCol]); err != nil {
			return nil, fmt.Errorf("line %d: invalid year %q", n+2, row[yearCol])
		}
		if fidCol >= 0 {
			if rec.FID, err = strconv.ParseInt(row[fidCol], 10, 64); err != nil {
				return nil, fmt.Errorf("line %d: invalid fid %q", n+2, row[fidCol])
			}
		}
		for i, c := range statCols {
			if row[c] == "" {
				rec.Values[i] = math.NaN()
				continue
			}
			if rec.Values[i], err = strconv.ParseFloat(row[c], 64); err != nil {
				return nil, fmt.Errorf("line %d: invalid %s %q", n+2, header[c], row[c])
			}
		}
		t.Records = append(t.Records, rec)
	}

	return t, nil
}

// ReadFile reads a CSV table from path
func ReadFile(path, idField, yearColumn string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := ReadCSV(f, idField, yearColumn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
