// Package zonal extracts per polygon raster statistics for a series of years.
// A pixel belongs to a polygon when its center falls inside it; nodata pixels
// are ignored and a polygon without valid pixels gets NaN statistics.
package zonal

import (
	"context"
	"fmt"
	"time"

	"github.com/gep-landslides/slidepanel/internal/config"
	"github.com/gep-landslides/slidepanel/internal/gpkg"
	"github.com/gep-landslides/slidepanel/internal/grid"
	"github.com/gep-landslides/slidepanel/internal/utils"
	"github.com/gep-landslides/slidepanel/internal/validate"
	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Unit is a polygon statistics are computed for
type Unit struct {
	FID      int64
	ID       string
	Geometry orb.Geometry
}

// LoadUnits reads the polygons of a GeoPackage layer in fid order. Every
// feature needs a unique, non-empty idField value.
func LoadUnits(ctx context.Context, path, layer, filter, idField string) ([]Unit, error) {
	l, err := gpkg.Read(ctx, path, layer, filter)
	if err != nil {
		return nil, err
	}
	return UnitsFromLayer(l, idField)
}

// UnitsFromLayer converts the features of l into units
func UnitsFromLayer(l *gpkg.Layer, idField string) ([]Unit, error) {
	units := make([]Unit, 0, len(l.Features))
	seen := make(map[string]int64, len(l.Features))
	for _, f := range l.Features {
		id := gpkg.AsString(f.Properties[idField])
		if id == "" {
			return nil, fmt.Errorf("%s: feature %d has no %s", l.Name, gpkg.FID(f), idField)
		}
		if other, ok := seen[id]; ok {
			return nil, fmt.Errorf("%s: %s %s is used by features %d and %d", l.Name, idField, id, other, gpkg.FID(f))
		}
		seen[id] = gpkg.FID(f)
		units = append(units, Unit{FID: gpkg.FID(f), ID: id, Geometry: f.Geometry})
	}
	return units, nil
}

// Options of an extraction
type Options struct {
	Units []Unit
	Years []int
	// Path returns the raster of a year
	Path   func(year int) string
	Reader grid.Reader
	Stats  []string
	// Columns name the statistics in the resulting table, defaults to Stats
	Columns    []string
	IDField    string
	YearColumn string
	// Workers bounds the number of years processed at once
	Workers int
	Log     logrus.FieldLogger
}

// Extract computes the statistics of every unit for every year. The records
// are ordered by year, then by unit order, whatever the number of workers.
func Extract(ctx context.Context, opts Options) (*Table, error) {
	if err := CheckStats(opts.Stats); err != nil {
		return nil, err
	}
	columns := opts.Columns
	if len(columns) == 0 {
		columns = opts.Stats
	}
	if len(columns) != len(opts.Stats) {
		return nil, fmt.Errorf("%d column names for %d statistics", len(columns), len(opts.Stats))
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	layerBound, ok := unitsBound(opts.Units)

	results := make([][]Record, len(opts.Years))

	g, ctx := errgroup.WithContext(ctx)
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)

	for i, year := range opts.Years {
		i, year := i, year
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			path := opts.Path(year)
			step := utils.Start(log, "Computing zonal statistics of %s", path)

			raster, err := opts.Reader.Read(path)
			if err != nil {
				return fmt.Errorf("year %d: %w", year, err)
			}
			if ok && !raster.Bound().Intersects(layerBound) {
				return fmt.Errorf("year %d: raster %s does not overlap the polygons, check the coordinate reference systems", year, path)
			}

			records := make([]Record, len(opts.Units))
			for u, unit := range opts.Units {
				idx, err := Pixels(raster, unit.Geometry)
				if err != nil {
					return fmt.Errorf("%s %s: %w", opts.IDField, unit.ID, err)
				}
				records[u] = Record{
					FID:    unit.FID,
					ID:     unit.ID,
					Year:   year,
					Values: Compute(raster, idx, opts.Stats),
				}
			}
			results[i] = records

			step.Done("Computed %d polygons for %d", len(records), year)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	t := &Table{IDField: opts.IDField, YearColumn: opts.YearColumn, Columns: columns}
	for _, records := range results {
		t.Records = append(t.Records, records...)
	}
	return t, nil
}

// Run executes a configured zonal job and writes its table
func Run(ctx context.Context, cfg *config.Config, job config.ZonalJob, reader grid.Reader, log logrus.FieldLogger) (*Table, error) {
	start := time.Now()
	years := cfg.JobYears(job)
	rasterPath := func(year int) string { return cfg.YearPath(job.Raster, year) }

	vector := cfg.Path(job.Vector)
	if err := validate.Files(vector); err != nil {
		return nil, err
	}
	if err := validate.YearFiles(rasterPath, years); err != nil {
		return nil, err
	}

	step := utils.Start(log, "Loading polygons of %s", vector)
	units, err := LoadUnits(ctx, vector, job.Layer, job.Filter, job.IDField)
	if err != nil {
		return nil, err
	}
	step.Done("Loaded %d polygons", len(units))

	columns := make([]string, len(job.Stats))
	for i, s := range job.Stats {
		columns[i] = job.Column(s)
	}

	t, err := Extract(ctx, Options{
		Units:      units,
		Years:      years,
		Path:       rasterPath,
		Reader:     reader,
		Stats:      job.Stats,
		Columns:    columns,
		IDField:    job.IDField,
		YearColumn: job.YearColumn(),
		Workers:    cfg.Workers,
		Log:        log,
	})
	if err != nil {
		return nil, fmt.Errorf("zonal job %s: %w", job.Name, err)
	}

	out := cfg.Path(job.Output)
	if err := t.WriteFile(out); err != nil {
		return nil, fmt.Errorf("write %s: %w", out, err)
	}
	utils.Note(log, "Wrote %d records to %s", len(t.Records), out)
	utils.Finished(log, start)

	return t, nil
}

func unitsBound(units []Unit) (orb.Bound, bool) {
	var b orb.Bound
	found := false
	for _, u := range units {
		if u.Geometry == nil {
			continue
		}
		if !found {
			b, found = u.Geometry.Bound(), true
			continue
		}
		b = b.Union(u.Geometry.Bound())
	}
	return b, found
}
