// Package panel assembles the balanced unit x year landslide panel: deaths
// from geocoded disaster events, population from the nearest census year and
// sediment export of the same year.
package panel

import (
	"math"
	"sort"

	"github.com/gep-landslides/slidepanel/internal/emdat"
	"github.com/gep-landslides/slidepanel/internal/zonal"
	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
)

// Unit is an administrative unit of the panel
type Unit struct {
	FID        int64
	ID         string
	Name       string
	Country    string
	Geometry   orb.Geometry
	Properties map[string]interface{}
}

// Row is one (unit, year) observation. Deaths is zero when no event was
// recorded; missing covariates are NaN.
type Row struct {
	Unit     *Unit
	Year     int
	Deaths   float64
	PopYear  int
	Pop      []float64
	Sediment []float64
}

// Panel is the assembled dataset, ordered by unit id and year
type Panel struct {
	PopColumns      []string
	SedimentColumns []string
	Rows            []Row
}

// Tables are the zonal statistics joined into the panel. NoForest is optional.
type Tables struct {
	Population *zonal.Table
	Sediment   *zonal.Table
	NoForest   *zonal.Table
}

// NoForestSuffix marks the counterfactual sediment columns
const NoForestSuffix = "_noforest"

type deathKey struct {
	Country string
	Name    string
	Year    int
}

// AggregateDeaths sums the deaths of events per country, unit name and start
// year
func AggregateDeaths(events []emdat.Event) map[deathKey]float64 {
	deaths := make(map[deathKey]float64)
	for _, e := range events {
		deaths[deathKey{Country: e.Country, Name: e.Unit, Year: e.StartYear}] += e.Deaths
	}
	return deaths
}

// NearestYear returns the available year closest to year. Ties go to the
// earlier year. ok is false when no year is available.
func NearestYear(year int, available []int) (int, bool) {
	if len(available) == 0 {
		return 0, false
	}
	sorted := append([]int{}, available...)
	sort.Ints(sorted)

	best := sorted[0]
	for _, y := range sorted[1:] {
		if abs(y-year) < abs(best-year) {
			best = y
		}
	}
	return best, true
}

// Build creates the balanced panel of units over years
func Build(units []*Unit, years []int, events []emdat.Event, tables Tables, log logrus.FieldLogger) *Panel {
	sorted := append([]*Unit{}, units...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	warnDuplicateNames(sorted, log)
	deaths := AggregateDeaths(events)
	warnUnmatchedEvents(sorted, deaths, log)

	p := &Panel{}

	var popIdx map[zonal.Key]*zonal.Record
	var popYears []int
	if tables.Population != nil {
		p.PopColumns = tables.Population.Columns
		popIdx = tables.Population.Index()
		popYears = tables.Population.Years()
	}

	type sedSource struct {
		idx    map[zonal.Key]*zonal.Record
		values int
	}
	var sources []sedSource
	if t := tables.Sediment; t != nil {
		p.SedimentColumns = append(p.SedimentColumns, t.Columns...)
		sources = append(sources, sedSource{idx: t.Index(), values: len(t.Columns)})
	}
	if t := tables.NoForest; t != nil {
		for _, c := range t.Columns {
			p.SedimentColumns = append(p.SedimentColumns, c+NoForestSuffix)
		}
		sources = append(sources, sedSource{idx: t.Index(), values: len(t.Columns)})
	}

	for _, u := range sorted {
		for _, year := range years {
			row := Row{
				Unit:     u,
				Year:     year,
				Deaths:   deaths[deathKey{Country: u.Country, Name: u.Name, Year: year}],
				Pop:      nanSlice(len(p.PopColumns)),
				Sediment: make([]float64, 0, len(p.SedimentColumns)),
			}

			if py, ok := NearestYear(year, popYears); ok {
				row.PopYear = py
				if r := popIdx[zonal.Key{ID: u.ID, Year: py}]; r != nil {
					copy(row.Pop, r.Values)
				}
			}

			for _, src := range sources {
				values := nanSlice(src.values)
				if r := src.idx[zonal.Key{ID: u.ID, Year: year}]; r != nil {
					copy(values, r.Values)
				}
				row.Sediment = append(row.Sediment, values...)
			}

			p.Rows = append(p.Rows, row)
		}
	}

	return p
}

// Value returns a numeric column of a row by name, NaN if unknown
func (p *Panel) Value(r Row, column string) float64 {
	switch column {
	case "deaths":
		return r.Deaths
	case "year":
		return float64(r.Year)
	case "pop_year":
		return float64(r.PopYear)
	}
	for i, c := range p.PopColumns {
		if c == column {
			return r.Pop[i]
		}
	}
	for i, c := range p.SedimentColumns {
		if c == column {
			return r.Sediment[i]
		}
	}
	return math.NaN()
}

func warnDuplicateNames(units []*Unit, log logrus.FieldLogger) {
	seen := make(map[[2]string][]string)
	for _, u := range units {
		k := [2]string{u.Country, u.Name}
		seen[k] = append(seen[k], u.ID)
	}
	for k, ids := range seen {
		if len(ids) > 1 {
			log.WithFields(logrus.Fields{"country": k[0], "name": k[1], "ids": ids}).
				Warn("⚠️  Units share a name, disaster deaths are attached to each of them")
		}
	}
}

func warnUnmatchedEvents(units []*Unit, deaths map[deathKey]float64, log logrus.FieldLogger) {
	names := make(map[[2]string]bool, len(units))
	countries := make(map[string]bool)
	for _, u := range units {
		names[[2]string{u.Country, u.Name}] = true
		countries[u.Country] = true
	}

	var unmatched []string
	for k := range deaths {
		if countries[k.Country] && !names[[2]string{k.Country, k.Name}] {
			unmatched = append(unmatched, k.Country+"/"+k.Name)
		}
	}
	if len(unmatched) > 0 {
		sort.Strings(unmatched)
		log.WithField("units", unmatched).Warnf("⚠️  %d disaster unit-years match no unit", len(unmatched))
	}
}

func nanSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
