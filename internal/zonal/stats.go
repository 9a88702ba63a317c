package zonal

import (
	"fmt"
	"math"

	"github.com/gep-landslides/slidepanel/internal/grid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Supported statistics
const (
	Count = "count"
	Min   = "min"
	Max   = "max"
	Mean  = "mean"
	Sum   = "sum"
)

var knownStats = map[string]bool{Count: true, Min: true, Max: true, Mean: true, Sum: true}

// CheckStats returns an error for unknown statistic names
func CheckStats(stats []string) error {
	if len(stats) == 0 {
		return fmt.Errorf("no statistics requested")
	}
	for _, s := range stats {
		if !knownStats[s] {
			return fmt.Errorf("unknown statistic %q", s)
		}
	}
	return nil
}

type accumulator struct {
	count    int
	sum      float64
	min, max float64
}

func (a *accumulator) add(v float64) {
	if a.count == 0 {
		a.min, a.max = v, v
	} else {
		a.min = math.Min(a.min, v)
		a.max = math.Max(a.max, v)
	}
	a.count++
	a.sum += v
}

// value of a statistic; everything but count is NaN without valid pixels
func (a *accumulator) value(stat string) float64 {
	if stat == Count {
		return float64(a.count)
	}
	if a.count == 0 {
		return math.NaN()
	}
	switch stat {
	case Min:
		return a.min
	case Max:
		return a.max
	case Mean:
		return a.sum / float64(a.count)
	case Sum:
		return a.sum
	}
	return math.NaN()
}

// Pixels returns the indices into g.Data of the pixels whose centers fall
// inside geom
func Pixels(g *grid.Grid, geom orb.Geometry) ([]int, error) {
	if geom == nil {
		return nil, nil
	}

	var contains func(orb.Point) bool
	switch t := geom.(type) {
	case orb.Polygon:
		contains = func(p orb.Point) bool { return planar.PolygonContains(t, p) }
	case orb.MultiPolygon:
		contains = func(p orb.Point) bool { return planar.MultiPolygonContains(t, p) }
	default:
		return nil, fmt.Errorf("unsupported geometry %s", geom.GeoJSONType())
	}

	bound := geom.Bound()
	c0, r0, c1, r1, ok := g.Window(bound)
	if !ok {
		return nil, nil
	}

	var idx []int
	for row := r0; row <= r1; row++ {
		for col := c0; col <= c1; col++ {
			p := g.Center(col, row)
			if !bound.Contains(p) || !contains(p) {
				continue
			}
			idx = append(idx, row*g.Cols+col)
		}
	}
	return idx, nil
}

// Compute aggregates the valid pixels at idx into the requested statistics
func Compute(g *grid.Grid, idx []int, stats []string) []float64 {
	var acc accumulator
	for _, i := range idx {
		v := g.Data[i]
		if !g.IsValid(v) {
			continue
		}
		acc.add(v)
	}

	values := make([]float64, len(stats))
	for i, s := range stats {
		values[i] = acc.value(s)
	}
	return values
}
