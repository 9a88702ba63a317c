// Package clip cuts global rasters to a boundary and reprojects them. A
// source that cannot be opened is logged and skipped, any later failure
// aborts the batch.
package clip

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gep-landslides/slidepanel/internal/config"
	"github.com/gep-landslides/slidepanel/internal/utils"
	"github.com/gep-landslides/slidepanel/internal/validate"
	"github.com/sirupsen/logrus"
)

// Warper is the raster engine used for clipping
type Warper interface {
	// Probe opens a raster and returns the data type of its first band
	Probe(path string) (string, error)
	// Warp runs gdalwarp with the given switches
	Warp(ctx context.Context, src, dst string, switches []string) error
}

// Options of a clipping batch
type Options struct {
	Inputs       []string
	Cutline      string
	CutlineLayer string
	DstCRS       string
	NoData       float64
	OutputDir    string
	Prefix       string
}

// Skip records an input that could not be opened
type Skip struct {
	Path string
	Err  error
}

// Report lists the outcome of a batch
type Report struct {
	Written []string
	Skipped []Skip
}

// Switches returns the gdalwarp arguments clipping a raster of the given
// data type
func Switches(o Options, dataType string) []string {
	s := []string{"-t_srs", o.DstCRS}
	if o.Cutline != "" {
		s = append(s, "-cutline", o.Cutline)
		if o.CutlineLayer != "" {
			s = append(s, "-cl", o.CutlineLayer)
		}
		s = append(s, "-crop_to_cutline")
	}
	s = append(s,
		"-dstnodata", strconv.FormatFloat(o.NoData, 'g', -1, 64),
		"-ot", dataType,
		"-wo", "CUTLINE_ALL_TOUCHED=TRUE",
		"-of", "GTiff",
		"-co", "COMPRESS=LZW",
		"-co", "TILED=YES",
		"-co", "BIGTIFF=YES",
	)
	return s
}

// OutputPath returns where the clipped version of input is written
func OutputPath(o Options, input string) string {
	return filepath.Join(o.OutputDir, o.Prefix+filepath.Base(input))
}

// Clip warps every input
func Clip(ctx context.Context, w Warper, o Options, log logrus.FieldLogger) (*Report, error) {
	if err := utils.EnsureDir(o.OutputDir); err != nil {
		return nil, err
	}

	report := &Report{}
	for i, input := range o.Inputs {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		dataType, err := w.Probe(input)
		if err != nil {
			log.WithError(err).WithField("path", input).Warn("⚠️  Could not open raster, skipping")
			report.Skipped = append(report.Skipped, Skip{Path: input, Err: err})
			continue
		}

		out := OutputPath(o, input)
		step := utils.Start(log, "Clipping %d/%d: %s", i+1, len(o.Inputs), input)
		if err := w.Warp(ctx, input, out, Switches(o, dataType)); err != nil {
			return report, err
		}
		report.Written = append(report.Written, out)
		step.Done("Clipped %s", out)
	}

	return report, nil
}

// Inputs lists the configured static rasters followed by the land cover
// raster of every year
func Inputs(cfg *config.Config) []string {
	var inputs []string
	for _, p := range cfg.Clip.Inputs {
		inputs = append(inputs, cfg.Path(p))
	}
	if cfg.Clip.LULC != "" {
		for _, year := range cfg.Years.List() {
			inputs = append(inputs, cfg.YearPath(cfg.Clip.LULC, year))
		}
	}
	return inputs
}

// Run clips the configured rasters
func Run(ctx context.Context, cfg *config.Config, w Warper, log logrus.FieldLogger) (*Report, error) {
	start := time.Now()
	o := Options{
		Inputs:       Inputs(cfg),
		Cutline:      cfg.Path(cfg.Clip.Cutline),
		CutlineLayer: cfg.Clip.CutlineLayer,
		DstCRS:       cfg.Clip.DstCRS,
		NoData:       cfg.Clip.NoData,
		OutputDir:    cfg.Path(cfg.Clip.OutputDir),
		Prefix:       cfg.Clip.Prefix,
	}
	if err := validate.Files(o.Cutline); err != nil {
		return nil, err
	}

	report, err := Clip(ctx, w, o, log)
	if err != nil {
		return report, fmt.Errorf("clip: %w", err)
	}

	utils.Note(log, "Clipped %d rasters, skipped %d", len(report.Written), len(report.Skipped))
	utils.Finished(log, start)
	return report, nil
}
