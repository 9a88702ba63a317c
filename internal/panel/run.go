package panel

import (
	"context"
	"fmt"
	"time"

	"github.com/gep-landslides/slidepanel/internal/config"
	"github.com/gep-landslides/slidepanel/internal/emdat"
	"github.com/gep-landslides/slidepanel/internal/gpkg"
	"github.com/gep-landslides/slidepanel/internal/utils"
	"github.com/gep-landslides/slidepanel/internal/validate"
	"github.com/gep-landslides/slidepanel/internal/zonal"
	"github.com/sirupsen/logrus"
)

// LoadEvents reads the disaster records and attaches them to their locations
func LoadEvents(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) ([]emdat.Event, error) {
	pc := cfg.Panel

	step := utils.Start(log, "Loading disaster records")
	records, err := emdat.ReadRecords(cfg.Path(pc.EMDAT), pc.Sheet)
	if err != nil {
		return nil, err
	}
	locs, err := emdat.ReadLocations(ctx, cfg.Path(pc.Locations), pc.LocationsLayer, pc.LocationsFilter, pc.ExcludeLocations)
	if err != nil {
		return nil, err
	}
	events := emdat.Join(records, locs, emdat.Filter{Type: pc.DisasterType, Subtypes: pc.DisasterSubtypes})
	step.Done("Loaded %d events from %d records and %d locations", len(events), len(records), len(locs))

	return events, nil
}

func readTable(cfg *config.Config, name string) (*zonal.Table, error) {
	if name == "" {
		return nil, nil
	}
	job, ok := cfg.ZonalJob(name)
	if !ok {
		return nil, fmt.Errorf("unknown zonal job %s", name)
	}
	return zonal.ReadFile(cfg.Path(job.Output), job.IDField, job.YearColumn())
}

// Run assembles the panel and writes it as GeoPackage and, when configured,
// as GeoJSON
func Run(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*Panel, error) {
	start := time.Now()
	pc := cfg.Panel

	if err := validate.Files(cfg.Path(pc.Borders), cfg.Path(pc.EMDAT), cfg.Path(pc.Locations)); err != nil {
		return nil, err
	}

	events, err := LoadEvents(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	countries := pc.Countries
	if len(countries) == 0 {
		countries = EventCountries(events)
		utils.Note(log, "Using countries of the disaster records: %v", countries)
	}

	step := utils.Start(log, "Loading units of %s", pc.Borders)
	borders, err := gpkg.Read(ctx, cfg.Path(pc.Borders), pc.Layer, CountryFilter(pc.CountryField, countries))
	if err != nil {
		return nil, err
	}
	units, err := UnitsFromLayer(borders, pc.IDField, pc.NameField, pc.CountryField)
	if err != nil {
		return nil, err
	}
	step.Done("Loaded %d units", len(units))

	var tables Tables
	if tables.Population, err = readTable(cfg, pc.Population); err != nil {
		return nil, err
	}
	if tables.Sediment, err = readTable(cfg, pc.Sediment); err != nil {
		return nil, err
	}
	if tables.NoForest, err = readTable(cfg, pc.SedimentNoForest); err != nil {
		return nil, err
	}

	step = utils.Start(log, "Building panel")
	p := Build(units, cfg.Years.List(), events, tables, log)
	step.Done("Built %d rows", len(p.Rows))

	out := cfg.Path(pc.Output)
	step = utils.Start(log, "Writing %s", out)
	layer := p.Layer(pc.OutputLayer, borders.Columns, borders.SRS)
	if err := utils.EnsureParent(out); err != nil {
		return nil, err
	}
	if err := gpkg.Write(ctx, out, layer); err != nil {
		return nil, fmt.Errorf("write %s: %w", out, err)
	}
	step.Done("Wrote %s", out)

	if pc.GeoJSON != "" {
		gj := cfg.Path(pc.GeoJSON)
		if err := WriteGeoJSON(gj, layer, pc.Simplify); err != nil {
			return nil, fmt.Errorf("write %s: %w", gj, err)
		}
		utils.Note(log, "Wrote %s", gj)
	}

	utils.Finished(log, start)
	return p, nil
}
