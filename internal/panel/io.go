package panel

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/gep-landslides/slidepanel/internal/emdat"
	"github.com/gep-landslides/slidepanel/internal/gpkg"
	"github.com/gep-landslides/slidepanel/internal/utils"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/simplify"
)

// Generated columns of the panel layer
const (
	ColOriginalFID = "original_fid"
	ColYear        = "year"
	ColDeaths      = "deaths"
	ColPopYear     = "pop_year"
)

// CountryFilter builds the attribute filter selecting units of the given
// countries
func CountryFilter(field string, countries []string) string {
	if len(countries) == 0 {
		return ""
	}
	quoted := make([]string, len(countries))
	for i, c := range countries {
		quoted[i] = "'" + strings.ReplaceAll(c, "'", "''") + "'"
	}
	return fmt.Sprintf(`"%s" IN (%s)`, field, strings.Join(quoted, ", "))
}

// EventCountries lists the distinct countries of events, sorted
func EventCountries(events []emdat.Event) []string {
	seen := map[string]bool{}
	var countries []string
	for _, e := range events {
		if e.Country != "" && !seen[e.Country] {
			seen[e.Country] = true
			countries = append(countries, e.Country)
		}
	}
	sort.Strings(countries)
	return countries
}

// UnitsFromLayer converts border features into units
func UnitsFromLayer(l *gpkg.Layer, idField, nameField, countryField string) ([]*Unit, error) {
	units := make([]*Unit, 0, len(l.Features))
	seen := make(map[string]bool, len(l.Features))
	for _, f := range l.Features {
		u := &Unit{
			FID:        gpkg.FID(f),
			ID:         gpkg.AsString(f.Properties[idField]),
			Name:       gpkg.AsString(f.Properties[nameField]),
			Country:    gpkg.AsString(f.Properties[countryField]),
			Geometry:   f.Geometry,
			Properties: f.Properties,
		}
		if u.ID == "" {
			return nil, fmt.Errorf("%s: feature %d has no %s", l.Name, u.FID, idField)
		}
		if seen[u.ID] {
			return nil, fmt.Errorf("%s: %s %s is not unique", l.Name, idField, u.ID)
		}
		seen[u.ID] = true
		units = append(units, u)
	}
	return units, nil
}

// Layer converts the panel into a GeoPackage layer. Rows get a new fid
// starting at 1; the unit's fid is kept as original_fid.
func (p *Panel) Layer(name string, unitColumns []gpkg.Column, srs *gpkg.SRS) *gpkg.Layer {
	reserved := map[string]bool{ColOriginalFID: true, ColYear: true, ColDeaths: true, ColPopYear: true, "fid": true}
	for _, c := range p.PopColumns {
		reserved[c] = true
	}
	for _, c := range p.SedimentColumns {
		reserved[c] = true
	}

	l := &gpkg.Layer{Name: name, SRS: srs}
	var kept []gpkg.Column
	for _, c := range unitColumns {
		if !reserved[c.Name] {
			kept = append(kept, c)
		}
	}
	l.Columns = append(l.Columns, kept...)
	l.Columns = append(l.Columns,
		gpkg.Column{Name: ColOriginalFID, Type: gpkg.Integer},
		gpkg.Column{Name: ColYear, Type: gpkg.Integer},
		gpkg.Column{Name: ColDeaths, Type: gpkg.Real},
		gpkg.Column{Name: ColPopYear, Type: gpkg.Integer},
	)
	for _, c := range p.PopColumns {
		l.Columns = append(l.Columns, gpkg.Column{Name: c, Type: gpkg.Real})
	}
	for _, c := range p.SedimentColumns {
		l.Columns = append(l.Columns, gpkg.Column{Name: c, Type: gpkg.Real})
	}

	for i, r := range p.Rows {
		f := geojson.NewFeature(r.Unit.Geometry)
		f.ID = int64(i + 1)
		for _, c := range kept {
			f.Properties[c.Name] = r.Unit.Properties[c.Name]
		}
		f.Properties[ColOriginalFID] = r.Unit.FID
		f.Properties[ColYear] = int64(r.Year)
		f.Properties[ColDeaths] = r.Deaths
		if r.PopYear != 0 {
			f.Properties[ColPopYear] = int64(r.PopYear)
		}
		for j, c := range p.PopColumns {
			f.Properties[c] = r.Pop[j]
		}
		for j, c := range p.SedimentColumns {
			f.Properties[c] = r.Sediment[j]
		}
		l.Features = append(l.Features, f)
	}
	return l
}

// WriteGeoJSON exports a layer as a GeoJSON feature collection. A positive
// tolerance simplifies geometries with Douglas-Peucker. NaN values become
// null.
func WriteGeoJSON(path string, l *gpkg.Layer, tolerance float64) error {
	fc := geojson.NewFeatureCollection()
	simplifier := simplify.DouglasPeucker(tolerance)

	for _, f := range l.Features {
		var geom orb.Geometry
		if f.Geometry != nil {
			geom = orb.Clone(f.Geometry)
			if tolerance > 0 {
				geom = simplifier.Simplify(geom)
			}
		}
		out := geojson.NewFeature(geom)
		out.ID = f.ID
		for k, v := range f.Properties {
			if fv, ok := v.(float64); ok {
				if _, valid := gpkg.AsFloat(fv); !valid {
					v = nil
				}
			}
			out.Properties[k] = v
		}
		fc.Append(out)
	}

	data, err := json.Marshal(fc)
	if err != nil {
		return err
	}
	if err := utils.EnsureParent(path); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
