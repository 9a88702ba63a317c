// Package gdalio reads, writes and warps GeoTIFF rasters through GDAL. Esri
// ASCII grids are handled by the grid package without GDAL.
package gdalio

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/gep-landslides/slidepanel/internal/grid"
	"github.com/gep-landslides/slidepanel/internal/utils"
)

var registerOnce sync.Once

// Register makes the GDAL drivers available. It is safe to call repeatedly.
func Register() {
	registerOnce.Do(godal.RegisterAll)
}

// CreationOptions are used for every GeoTIFF written
var CreationOptions = []string{"TILED=YES", "BIGTIFF=YES", "COMPRESS=LZW", "BLOCKXSIZE=256", "BLOCKYSIZE=256"}

var dataTypes = map[string]godal.DataType{
	"Byte":    godal.Byte,
	"UInt16":  godal.UInt16,
	"Int16":   godal.Int16,
	"UInt32":  godal.UInt32,
	"Int32":   godal.Int32,
	"Float32": godal.Float32,
	"Float64": godal.Float64,
}

// Files implements grid.ReadWriter for GeoTIFF and Esri ASCII rasters
type Files struct{}

// Read loads band 1 of a raster
func (Files) Read(path string) (*grid.Grid, error) {
	if grid.IsASCIIPath(path) {
		return grid.ASCIIFile{}.Read(path)
	}
	Register()

	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer ds.Close()

	bands := ds.Bands()
	if len(bands) == 0 {
		return nil, fmt.Errorf("%s has no bands", path)
	}
	band := bands[0]
	st := band.Structure()

	transform, err := ds.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	g := grid.New(st.SizeX, st.SizeY, transform, st.DataType.String())
	g.Projection = ds.Projection()
	g.NoData, g.HasNoData = band.NoData()

	if err := band.Read(0, 0, g.Data, st.SizeX, st.SizeY); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// Write stores g as a single band GeoTIFF in its own data type
func (Files) Write(path string, g *grid.Grid) (err error) {
	if grid.IsASCIIPath(path) {
		return grid.ASCIIFile{}.Write(path, g)
	}
	if err := g.Validate(); err != nil {
		return err
	}
	Register()

	dtype, ok := dataTypes[g.DataType]
	if !ok {
		dtype = godal.Float32
	}

	if err := utils.RemoveIfExists(path); err != nil {
		return err
	}
	ds, err := godal.Create(godal.GTiff, path, 1, dtype, g.Cols, g.Rows, godal.CreationOption(CreationOptions...))
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if closeErr := ds.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err := ds.SetGeoTransform(g.Transform); err != nil {
		return err
	}
	if g.Projection != "" {
		if err := ds.SetProjection(g.Projection); err != nil {
			return err
		}
	}

	band := ds.Bands()[0]
	if g.HasNoData {
		if err := band.SetNoData(g.NoData); err != nil {
			return err
		}
	}
	return band.Write(0, 0, g.Data, g.Cols, g.Rows)
}

// Warper clips and reprojects rasters with gdalwarp semantics
type Warper struct{}

// Probe opens a raster and returns the data type of its first band
func (Warper) Probe(path string) (string, error) {
	Register()

	ds, err := godal.Open(path)
	if err != nil {
		return "", err
	}
	defer ds.Close()

	bands := ds.Bands()
	if len(bands) == 0 {
		return "", fmt.Errorf("%s has no bands", path)
	}
	return bands[0].Structure().DataType.String(), nil
}

// Warp runs gdalwarp with the given command line switches
func (Warper) Warp(ctx context.Context, src, dst string, switches []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	Register()

	ds, err := godal.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer ds.Close()

	if err := utils.RemoveIfExists(dst); err != nil {
		return err
	}
	out, err := ds.Warp(dst, switches)
	if err != nil {
		return fmt.Errorf("warp %s (%s): %w", src, strings.Join(switches, " "), err)
	}
	return out.Close()
}
