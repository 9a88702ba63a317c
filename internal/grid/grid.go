package grid

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Grid is a single-band raster held in memory. Pixels are stored row-major
// starting at the top-left corner.
type Grid struct {
	Cols, Rows int
	// Transform is a GDAL style geotransform:
	// x = T[0] + col*T[1] + row*T[2], y = T[3] + col*T[4] + row*T[5]
	Transform  [6]float64
	Projection string
	DataType   string
	NoData     float64
	HasNoData  bool
	Data       []float64
}

// Reader loads a raster from a path
type Reader interface {
	Read(path string) (*Grid, error)
}

// Writer persists a raster to a path
type Writer interface {
	Write(path string, g *Grid) error
}

// ReadWriter combines Reader and Writer
type ReadWriter interface {
	Reader
	Writer
}

// New allocates a grid filled with zeros
func New(cols, rows int, transform [6]float64, dataType string) *Grid {
	return &Grid{
		Cols:      cols,
		Rows:      rows,
		Transform: transform,
		DataType:  dataType,
		Data:      make([]float64, cols*rows),
	}
}

// Clone returns a deep copy of g
func (g *Grid) Clone() *Grid {
	c := *g
	c.Data = make([]float64, len(g.Data))
	copy(c.Data, g.Data)
	return &c
}

// At returns the pixel at col/row
func (g *Grid) At(col, row int) float64 {
	return g.Data[row*g.Cols+col]
}

// Set sets the pixel at col/row
func (g *Grid) Set(col, row int, v float64) {
	g.Data[row*g.Cols+col] = v
}

// X returns the x coordinate of the center of the given column
func (g *Grid) X(col int) float64 {
	return g.Transform[0] + (float64(col)+0.5)*g.Transform[1]
}

// Y returns the y coordinate of the center of the given row
func (g *Grid) Y(row int) float64 {
	return g.Transform[3] + (float64(row)+0.5)*g.Transform[5]
}

// Center returns the center point of a pixel
func (g *Grid) Center(col, row int) orb.Point {
	return orb.Point{g.X(col), g.Y(row)}
}

// IsValid reports whether v is a measurement and not the nodata sentinel.
func (g *Grid) IsValid(v float64) bool {
	if math.IsNaN(v) {
		return false
	}
	return !(g.HasNoData && v == g.NoData)
}

// Bound returns the spatial extent of the grid
func (g *Grid) Bound() orb.Bound {
	x0 := g.Transform[0]
	y0 := g.Transform[3]
	x1 := x0 + float64(g.Cols)*g.Transform[1]
	y1 := y0 + float64(g.Rows)*g.Transform[5]

	return orb.Bound{
		Min: orb.Point{math.Min(x0, x1), math.Min(y0, y1)},
		Max: orb.Point{math.Max(x0, x1), math.Max(y0, y1)},
	}
}

// Window returns the inclusive pixel range whose centers may fall within b,
// clamped to the grid. ok is false if b does not overlap the grid.
func (g *Grid) Window(b orb.Bound) (c0, r0, c1, r1 int, ok bool) {
	if !g.Bound().Intersects(b) {
		return 0, 0, 0, 0, false
	}

	colA := (b.Min[0] - g.Transform[0]) / g.Transform[1]
	colB := (b.Max[0] - g.Transform[0]) / g.Transform[1]
	rowA := (b.Min[1] - g.Transform[3]) / g.Transform[5]
	rowB := (b.Max[1] - g.Transform[3]) / g.Transform[5]

	c0 = clamp(int(math.Floor(math.Min(colA, colB))), 0, g.Cols-1)
	c1 = clamp(int(math.Ceil(math.Max(colA, colB))), 0, g.Cols-1)
	r0 = clamp(int(math.Floor(math.Min(rowA, rowB))), 0, g.Rows-1)
	r1 = clamp(int(math.Ceil(math.Max(rowA, rowB))), 0, g.Rows-1)

	return c0, r0, c1, r1, true
}

// Validate checks the grid dimensions against its pixel buffer. Rotated
// grids are rejected since the pixel coordinate helpers assume north-up.
func (g *Grid) Validate() error {
	if g.Cols <= 0 || g.Rows <= 0 {
		return fmt.Errorf("grid has invalid size %dx%d", g.Cols, g.Rows)
	}
	if len(g.Data) != g.Cols*g.Rows {
		return fmt.Errorf("grid buffer holds %d pixels, expected %d", len(g.Data), g.Cols*g.Rows)
	}
	if g.Transform[1] == 0 || g.Transform[5] == 0 {
		return fmt.Errorf("grid has a zero pixel size")
	}
	if g.Transform[2] != 0 || g.Transform[4] != 0 {
		return fmt.Errorf("rotated grids are not supported")
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
