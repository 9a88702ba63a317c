// Package emdat loads landslide disaster records from an EM-DAT export and
// geocodes them to subnational units through the GDIS location layer.
package emdat

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gep-landslides/slidepanel/internal/gpkg"
	"github.com/xuri/excelize/v2"
)

// EM-DAT columns
const (
	ColDisNo   = "DisNo."
	ColType    = "Disaster Type"
	ColSubtype = "Disaster Subtype"
	ColCountry = "Country"
	ColISO     = "ISO"
	ColStart   = "Start Year"
	ColDeaths  = "Total Deaths"
)

var disasterID = regexp.MustCompile(`\d{4}-\d{4}`)

// DisasterID extracts the YYYY-NNNN part of an EM-DAT DisNo., e.g.
// 2015-0123 from 2015-0123-NPL
func DisasterID(disNo string) (string, bool) {
	id := disasterID.FindString(disNo)
	return id, id != ""
}

// Record is a row of the EM-DAT spreadsheet
type Record struct {
	ID        string
	DisNo     string
	Type      string
	Subtype   string
	Country   string
	ISO       string
	StartYear int
	Deaths    float64
	HasDeaths bool
}

// Filter selects records by disaster type and subtype
type Filter struct {
	Type     string
	Subtypes []string
}

// Keep reports whether r matches the filter and has a death count
func (f Filter) Keep(r Record) bool {
	if !r.HasDeaths || r.Type != f.Type {
		return false
	}
	for _, s := range f.Subtypes {
		if r.Subtype == s {
			return true
		}
	}
	return false
}

// ReadRecords reads every row of an EM-DAT export. An empty sheet name
// selects the first sheet.
func ReadRecords(path, sheet string) ([]Record, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%s has no sheets", path)
		}
		sheet = sheets[0]
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer rows.Close()

	var (
		records []Record
		cols    map[string]int
		line    int
	)
	for rows.Next() {
		line++
		cells, err := rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("%s: row %d: %w", path, line, err)
		}

		if cols == nil {
			cols = make(map[string]int, len(cells))
			for i, c := range cells {
				cols[strings.TrimSpace(c)] = i
			}
			for _, name := range []string{ColDisNo, ColType, ColSubtype, ColStart, ColDeaths} {
				if _, ok := cols[name]; !ok {
					return nil, fmt.Errorf("%s: missing column %q", path, name)
				}
			}
			continue
		}

		cell := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(cells) {
				return ""
			}
			return strings.TrimSpace(cells[i])
		}

		r := Record{
			DisNo:   cell(ColDisNo),
			Type:    cell(ColType),
			Subtype: cell(ColSubtype),
			Country: cell(ColCountry),
			ISO:     cell(ColISO),
		}
		if r.DisNo == "" {
			continue
		}
		r.ID, _ = DisasterID(r.DisNo)

		if r.StartYear, err = parseYear(cell(ColStart)); err != nil {
			return nil, fmt.Errorf("%s: row %d: %w", path, line, err)
		}
		if d := cell(ColDeaths); d != "" {
			if r.Deaths, err = strconv.ParseFloat(d, 64); err != nil {
				return nil, fmt.Errorf("%s: row %d: invalid %s %q", path, line, ColDeaths, d)
			}
			r.HasDeaths = true
		}

		records = append(records, r)
	}

	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if cols == nil {
		return nil, fmt.Errorf("%s: sheet %s is empty", path, sheet)
	}
	return records, nil
}

func parseYear(s string) (int, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", ColStart, s)
	}
	return int(v), nil
}

// Location is a geocoded disaster location of the GDIS dataset
type Location struct {
	DisasterID string
	Country    string
	ISO        string
	Adm3       string
	Name       string
}

// ReadLocations reads a GDIS location layer, dropping locations whose name
// is listed in exclude
func ReadLocations(ctx context.Context, path, layer, filter string, exclude []string) ([]Location, error) {
	l, err := gpkg.Read(ctx, path, layer, filter)
	if err != nil {
		return nil, err
	}

	skip := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		skip[e] = true
	}

	var locs []Location
	for _, f := range l.Features {
		loc := Location{
			DisasterID: gpkg.AsString(f.Properties["disasterno"]),
			Country:    gpkg.AsString(f.Properties["country"]),
			ISO:        gpkg.AsString(f.Properties["iso3"]),
			Adm3:       gpkg.AsString(f.Properties["adm3"]),
			Name:       gpkg.AsString(f.Properties["location"]),
		}
		if skip[loc.Name] {
			continue
		}
		locs = append(locs, loc)
	}
	return locs, nil
}

// Event is a landslide attributed to one subnational unit and its start year
type Event struct {
	DisasterID string
	Country    string
	Unit       string
	StartYear  int
	Deaths     float64
}

// recordKey identifies the row of one country within a disaster
type recordKey struct {
	id, country string
}

// Join attaches the records kept by filter to their locations. EM-DAT holds
// one row per country of a disaster, so a location is matched on the
// disaster id and its ISO code, falling back to the country name. A
// location carrying neither is matched only if the disaster has a single
// row. A disaster with several locations yields one event per location,
// each carrying the deaths of the location's country. Events follow
// location order.
func Join(records []Record, locs []Location, filter Filter) []Event {
	var (
		byISO     = make(map[recordKey]Record, len(records))
		byCountry = make(map[recordKey]Record, len(records))
		byID      = make(map[string]Record, len(records))
		rows      = make(map[string]int, len(records))
	)
	for _, r := range records {
		if r.ID == "" {
			continue
		}
		rows[r.ID]++
		if !filter.Keep(r) {
			continue
		}
		if iso := strings.ToUpper(r.ISO); iso != "" {
			byISO[recordKey{r.ID, iso}] = r
		}
		if country := strings.ToLower(r.Country); country != "" {
			byCountry[recordKey{r.ID, country}] = r
		}
		byID[r.ID] = r
	}

	lookup := func(loc Location) (Record, bool) {
		iso := strings.ToUpper(strings.TrimSpace(loc.ISO))
		country := strings.ToLower(strings.TrimSpace(loc.Country))
		if iso != "" {
			if r, ok := byISO[recordKey{loc.DisasterID, iso}]; ok {
				return r, true
			}
		}
		if country != "" {
			r, ok := byCountry[recordKey{loc.DisasterID, country}]
			return r, ok
		}
		if iso == "" && rows[loc.DisasterID] == 1 {
			r, ok := byID[loc.DisasterID]
			return r, ok
		}
		return Record{}, false
	}

	var events []Event
	for _, loc := range locs {
		if loc.Adm3 == "" {
			continue
		}
		r, ok := lookup(loc)
		if !ok {
			continue
		}
		events = append(events, Event{
			DisasterID: r.ID,
			Country:    loc.Country,
			Unit:       loc.Adm3,
			StartYear:  r.StartYear,
			Deaths:     r.Deaths,
		})
	}
	return events
}
