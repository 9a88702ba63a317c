package panel

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gep-landslides/slidepanel/internal/config"
	"github.com/gep-landslides/slidepanel/internal/emdat"
	"github.com/gep-landslides/slidepanel/internal/gpkg"
	"github.com/gep-landslides/slidepanel/internal/zonal"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/xuri/excelize/v2"
)

func square(x, y, size float64) orb.Polygon {
	return orb.Polygon{{
		{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y},
	}}
}

func TestNearestYear(t *testing.T) {
	census := []int{2000, 2005, 2010, 2015, 2020}
	tests := []struct {
		year      int
		available []int
		want      int
	}{
		{2007, census, 2005},
		{2008, census, 2010},
		{2002, census, 2000},
		{2003, census, 2005},
		{2020, census, 2020},
		{1990, census, 2000},
		{2005, []int{2000, 2010}, 2000},
		{2005, []int{2010, 2000}, 2000},
	}
	for _, tt := range tests {
		got, ok := NearestYear(tt.year, tt.available)
		if !ok || got != tt.want {
			t.Errorf("NearestYear(%d, %v): expected %d, got %d", tt.year, tt.available, tt.want, got)
		}
	}

	if _, ok := NearestYear(2000, nil); ok {
		t.Errorf("expected no match without available years")
	}
}

func testUnits() []*Unit {
	return []*Unit{
		{FID: 9, ID: "NPL.2_1", Name: "Kaski", Country: "Nepal", Geometry: square(1, 0, 1), Properties: map[string]interface{}{"GID_3": "NPL.2_1", "NAME_3": "Kaski"}},
		{FID: 4, ID: "NPL.1_1", Name: "Dolakha", Country: "Nepal", Geometry: square(0, 0, 1), Properties: map[string]interface{}{"GID_3": "NPL.1_1", "NAME_3": "Dolakha"}},
	}
}

func testTables() Tables {
	pop := &zonal.Table{IDField: "GID_3", YearColumn: "pop_year", Columns: []string{"pop_mean"}}
	for _, r := range []zonal.Record{
		{FID: 4, ID: "NPL.1_1", Year: 2000, Values: []float64{100}},
		{FID: 9, ID: "NPL.2_1", Year: 2000, Values: []float64{200}},
		{FID: 4, ID: "NPL.1_1", Year: 2005, Values: []float64{150}},
		{FID: 9, ID: "NPL.2_1", Year: 2005, Values: []float64{250}},
	} {
		pop.Records = append(pop.Records, r)
	}

	sed := &zonal.Table{IDField: "GID_3", YearColumn: "year", Columns: []string{"avg_sed_exp"}}
	noforest := &zonal.Table{IDField: "GID_3", YearColumn: "year", Columns: []string{"avg_sed_exp"}}
	for year := 2000; year <= 2003; year++ {
		for _, id := range []string{"NPL.1_1", "NPL.2_1"} {
			// Kaski has no sediment estimate for 2003
			if id == "NPL.2_1" && year == 2003 {
				continue
			}
			v := float64(year - 1999)
			sed.Records = append(sed.Records, zonal.Record{ID: id, Year: year, Values: []float64{v}})
			noforest.Records = append(noforest.Records, zonal.Record{ID: id, Year: year, Values: []float64{v * 10}})
		}
	}
	return Tables{Population: pop, Sediment: sed, NoForest: noforest}
}

func testEvents() []emdat.Event {
	return []emdat.Event{
		{DisasterID: "2001-0001", Country: "Nepal", Unit: "Kaski", StartYear: 2001, Deaths: 3},
		{DisasterID: "2001-0002", Country: "Nepal", Unit: "Kaski", StartYear: 2001, Deaths: 4},
		{DisasterID: "2003-0001", Country: "Nepal", Unit: "Dolakha", StartYear: 2003, Deaths: 2},
		{DisasterID: "1995-0001", Country: "Nepal", Unit: "Dolakha", StartYear: 1995, Deaths: 50},
		{DisasterID: "2002-0001", Country: "India", Unit: "Shimla", StartYear: 2002, Deaths: 8},
	}
}

func TestBuild(t *testing.T) {
	log, _ := test.NewNullLogger()
	years := []int{2000, 2001, 2002, 2003}
	p := Build(testUnits(), years, testEvents(), testTables(), log)

	if len(p.Rows) != 8 {
		t.Fatalf("expected 2 units x 4 years, got %d rows", len(p.Rows))
	}

	// balanced and ordered by unit id, then year
	seen := map[string]int{}
	for i, r := range p.Rows {
		wantID := []string{"NPL.1_1", "NPL.2_1"}[i/4]
		if r.Unit.ID != wantID || r.Year != years[i%4] {
			t.Errorf("row %d: expected %s/%d, got %s/%d", i, wantID, years[i%4], r.Unit.ID, r.Year)
		}
		seen[r.Unit.ID]++
	}
	if seen["NPL.1_1"] != 4 || seen["NPL.2_1"] != 4 {
		t.Errorf("panel is not balanced: %v", seen)
	}

	wantDeaths := []float64{0, 0, 0, 2, 0, 7, 0, 0}
	for i, r := range p.Rows {
		if r.Deaths != wantDeaths[i] {
			t.Errorf("row %d: expected %v deaths, got %v", i, wantDeaths[i], r.Deaths)
		}
	}

	if got := strings.Join(p.SedimentColumns, ","); got != "avg_sed_exp,avg_sed_exp_noforest" {
		t.Errorf("unexpected sediment columns %s", got)
	}

	kaski2003 := p.Rows[7]
	if !math.IsNaN(p.Value(kaski2003, "avg_sed_exp")) || !math.IsNaN(p.Value(kaski2003, "avg_sed_exp_noforest")) {
		t.Errorf("expected missing sediment to stay NaN, got %v", kaski2003.Sediment)
	}
	if kaski2003.PopYear != 2005 || p.Value(kaski2003, "pop_mean") != 250 {
		t.Errorf("expected 2005 population for 2003, got %d/%v", kaski2003.PopYear, kaski2003.Pop)
	}

	dolakha2002 := p.Rows[2]
	if dolakha2002.PopYear != 2000 || p.Value(dolakha2002, "pop_mean") != 100 {
		t.Errorf("expected 2000 population for 2002, got %d/%v", dolakha2002.PopYear, dolakha2002.Pop)
	}
	if p.Value(dolakha2002, "avg_sed_exp") != 3 || p.Value(dolakha2002, "avg_sed_exp_noforest") != 30 {
		t.Errorf("unexpected sediment %v", dolakha2002.Sediment)
	}
	if p.Value(dolakha2002, "deaths") != 0 || p.Value(dolakha2002, "year") != 2002 {
		t.Errorf("unexpected generated values")
	}
}

func TestBuildWarnings(t *testing.T) {
	log, hook := test.NewNullLogger()
	units := append(testUnits(), &Unit{FID: 12, ID: "NPL.3_1", Name: "Kaski", Country: "Nepal"})
	events := append(testEvents(), emdat.Event{Country: "Nepal", Unit: "Nowhere", StartYear: 2001, Deaths: 1})

	p := Build(units, []int{2001}, events, Tables{}, log)

	var messages []string
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			messages = append(messages, e.Message)
		}
	}
	if len(messages) != 2 {
		t.Fatalf("expected a duplicate name and an unmatched event warning, got %v", messages)
	}

	// both units called Kaski get the deaths
	for _, r := range p.Rows {
		if r.Unit.Name == "Kaski" && r.Deaths != 7 {
			t.Errorf("%s: expected 7 deaths, got %v", r.Unit.ID, r.Deaths)
		}
	}
	if len(p.PopColumns) != 0 || len(p.Rows[0].Sediment) != 0 || p.Rows[0].PopYear != 0 {
		t.Errorf("expected no covariates without tables")
	}
}

func TestLayerRoundTrip(t *testing.T) {
	ctx := context.Background()
	log, _ := test.NewNullLogger()
	p := Build(testUnits(), []int{2002, 2003}, testEvents(), testTables(), log)

	unitColumns := []gpkg.Column{{Name: "GID_3", Type: gpkg.Text}, {Name: "NAME_3", Type: gpkg.Text}, {Name: "year", Type: gpkg.Integer}}
	layer := p.Layer("full_panel", unitColumns, nil)

	path := filepath.Join(t.TempDir(), "full_panel.gpkg")
	if err := gpkg.Write(ctx, path, layer); err != nil {
		t.Fatal(err)
	}

	back, err := gpkg.Read(ctx, path, "full_panel", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(back.Features) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(back.Features))
	}

	var names []string
	for _, c := range back.Columns {
		names = append(names, c.Name)
	}
	want := "GID_3,NAME_3,original_fid,year,deaths,pop_year,pop_mean,avg_sed_exp,avg_sed_exp_noforest"
	if strings.Join(names, ",") != want {
		t.Errorf("expected columns %s, got %s", want, strings.Join(names, ","))
	}

	last := back.Features[3]
	if gpkg.FID(last) != 4 {
		t.Errorf("expected sequential fid 4, got %d", gpkg.FID(last))
	}
	if fid, _ := gpkg.AsInt(last.Properties["original_fid"]); fid != 9 {
		t.Errorf("expected original_fid 9, got %v", last.Properties["original_fid"])
	}
	if last.Properties["avg_sed_exp"] != nil {
		t.Errorf("expected NULL sediment, got %v", last.Properties["avg_sed_exp"])
	}
	if d, _ := gpkg.AsFloat(back.Features[1].Properties["deaths"]); d != 2 {
		t.Errorf("expected 2 deaths, got %v", back.Features[1].Properties["deaths"])
	}

	gj := filepath.Join(t.TempDir(), "panel.geojson")
	if err := WriteGeoJSON(gj, layer, 0.01); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(gj)
	if err != nil {
		t.Fatal(err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(fc.Features) != 4 || fc.Features[3].Properties["avg_sed_exp"] != nil {
		t.Errorf("unexpected geojson export")
	}
}

func TestCountryFilter(t *testing.T) {
	if got := CountryFilter("COUNTRY", []string{"Nepal", "Cote d'Ivoire"}); got != `"COUNTRY" IN ('Nepal', 'Cote d''Ivoire')` {
		t.Errorf("unexpected filter %s", got)
	}
	if CountryFilter("COUNTRY", nil) != "" {
		t.Errorf("expected no filter without countries")
	}
	if got := EventCountries(testEvents()); strings.Join(got, ",") != "India,Nepal" {
		t.Errorf("unexpected countries %v", got)
	}
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	ws := t.TempDir()

	// borders of two countries
	borders := &gpkg.Layer{
		Name: "ADM_3",
		Columns: []gpkg.Column{
			{Name: "GID_3", Type: gpkg.Text},
			{Name: "NAME_3", Type: gpkg.Text},
			{Name: "COUNTRY", Type: gpkg.Text},
		},
	}
	for i, u := range [][]string{{"NPL.1_1", "Dolakha", "Nepal"}, {"NPL.2_1", "Kaski", "Nepal"}, {"IND.1_1", "Shimla", "India"}} {
		f := geojson.NewFeature(square(float64(i), 0, 1))
		f.Properties["GID_3"], f.Properties["NAME_3"], f.Properties["COUNTRY"] = u[0], u[1], u[2]
		borders.Features = append(borders.Features, f)
	}
	if err := gpkg.Write(ctx, filepath.Join(ws, "gadm.gpkg"), borders); err != nil {
		t.Fatal(err)
	}

	// geocoded locations
	locations := &gpkg.Layer{
		Name: "locations",
		Columns: []gpkg.Column{
			{Name: "disasterno", Type: gpkg.Text},
			{Name: "country", Type: gpkg.Text},
			{Name: "adm3", Type: gpkg.Text},
			{Name: "location", Type: gpkg.Text},
			{Name: "disastertype", Type: gpkg.Text},
			{Name: "level", Type: gpkg.Text},
		},
	}
	for i, l := range [][]string{
		{"2001-0001", "Nepal", "Kaski", "Kaski", "landslide", "3"},
		{"2001-0001", "Nepal", "Kaski", "Kaski District", "landslide", "3"},
	} {
		f := geojson.NewFeature(orb.Point{float64(i), 0})
		for c, col := range locations.Columns {
			f.Properties[col.Name] = l[c]
		}
		locations.Features = append(locations.Features, f)
	}
	if err := gpkg.Write(ctx, filepath.Join(ws, "gdis.gpkg"), locations); err != nil {
		t.Fatal(err)
	}

	// disaster records
	xl := excelize.NewFile()
	rows := [][]interface{}{
		{"DisNo.", "Disaster Type", "Disaster Subtype", "Country", "Start Year", "Total Deaths"},
		{"2001-0001-NPL", "Mass movement (wet)", "Landslide (wet)", "Nepal", 2001, 9},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		r := row
		if err := xl.SetSheetRow("Sheet1", cell, &r); err != nil {
			t.Fatal(err)
		}
	}
	if err := xl.SaveAs(filepath.Join(ws, "emdat.xlsx")); err != nil {
		t.Fatal(err)
	}
	xl.Close()

	// zonal tables
	sed := "fid,GID_3,year,avg_sed_exp\n1,NPL.1_1,2000,1.5\n2,NPL.2_1,2000,\n1,NPL.1_1,2001,2.5\n2,NPL.2_1,2001,3.5\n"
	pop := "fid,GID_3,pop_year,pop_mean\n1,NPL.1_1,2000,10\n2,NPL.2_1,2000,20\n"
	if err := os.WriteFile(filepath.Join(ws, "sdr_panel.csv"), []byte(sed), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(ws, "pop_panel.csv"), []byte(pop), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Workspace = ws
	cfg.Years = config.YearRange{Start: 2000, End: 2001}
	cfg.Zonal = []config.ZonalJob{
		{Name: "sdr", IDField: "GID_3", Rename: map[string]string{"mean": "avg_sed_exp"}, Output: "sdr_panel.csv"},
		{Name: "population", IDField: "GID_3", Prefix: "pop_", Output: "pop_panel.csv"},
	}
	cfg.Panel.Borders = "gadm.gpkg"
	cfg.Panel.Locations = "gdis.gpkg"
	cfg.Panel.LocationsFilter = "disastertype = 'landslide' AND level = '3'"
	cfg.Panel.ExcludeLocations = []string{"Kaski District"}
	cfg.Panel.EMDAT = "emdat.xlsx"
	cfg.Panel.SedimentNoForest = ""
	cfg.Panel.GeoJSON = "out/full_panel.geojson"

	log, _ := test.NewNullLogger()
	p, err := Run(ctx, cfg, log)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(p.Rows) != 4 {
		t.Fatalf("expected 2 Nepal units x 2 years, got %d rows", len(p.Rows))
	}
	if p.Rows[3].Unit.Name != "Kaski" || p.Rows[3].Deaths != 9 {
		t.Errorf("expected 9 deaths in Kaski 2001 (duplicate location dropped), got %+v", p.Rows[3])
	}
	if !math.IsNaN(p.Value(p.Rows[2], "avg_sed_exp")) {
		t.Errorf("expected NaN sediment for Kaski 2000")
	}

	back, err := gpkg.Read(ctx, filepath.Join(ws, "full_panel.gpkg"), "full_panel", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(back.Features) != 4 || back.SRS == nil {
		t.Errorf("unexpected panel layer")
	}
	if _, err := os.Stat(filepath.Join(ws, "out", "full_panel.geojson")); err != nil {
		t.Errorf("expected geojson export: %v", err)
	}
}
