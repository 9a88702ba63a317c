// Package chart draws the annual summary of a panel: total deaths per year
// above the mean sediment export per year.
package chart

import (
	"context"
	"fmt"
	"image/color"
	"math"
	"os"
	"sort"
	"time"

	"github.com/gep-landslides/slidepanel/internal/config"
	"github.com/gep-landslides/slidepanel/internal/gpkg"
	"github.com/gep-landslides/slidepanel/internal/panel"
	"github.com/gep-landslides/slidepanel/internal/utils"
	"github.com/gep-landslides/slidepanel/internal/validate"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

var lineColors = []color.Color{
	color.RGBA{R: 139, G: 69, B: 19, A: 255},
	color.RGBA{R: 0, G: 100, B: 0, A: 255},
	color.RGBA{R: 70, G: 70, B: 160, A: 255},
}

// Year aggregates the panel rows of one year. Sediment holds the mean of
// every sediment column over the units with a value, NaN if there is none.
type Year struct {
	Year     int
	Deaths   float64
	Sediment []float64
}

// Summarize aggregates a panel layer by year
func Summarize(l *gpkg.Layer, sediment []string) ([]Year, error) {
	type acc struct {
		deaths float64
		sums   []float64
		counts []int
	}
	byYear := map[int]*acc{}
	for _, f := range l.Features {
		y, ok := gpkg.AsInt(f.Properties[panel.ColYear])
		if !ok {
			return nil, fmt.Errorf("%s: feature %d has no %s", l.Name, gpkg.FID(f), panel.ColYear)
		}
		a := byYear[int(y)]
		if a == nil {
			a = &acc{sums: make([]float64, len(sediment)), counts: make([]int, len(sediment))}
			byYear[int(y)] = a
		}
		if d, ok := gpkg.AsFloat(f.Properties[panel.ColDeaths]); ok {
			a.deaths += d
		}
		for i, c := range sediment {
			if v, ok := gpkg.AsFloat(f.Properties[c]); ok {
				a.sums[i] += v
				a.counts[i]++
			}
		}
	}
	if len(byYear) == 0 {
		return nil, fmt.Errorf("%s has no rows", l.Name)
	}

	years := make([]Year, 0, len(byYear))
	for y, a := range byYear {
		row := Year{Year: y, Deaths: a.deaths, Sediment: make([]float64, len(sediment))}
		for i := range sediment {
			row.Sediment[i] = math.NaN()
			if a.counts[i] > 0 {
				row.Sediment[i] = a.sums[i] / float64(a.counts[i])
			}
		}
		years = append(years, row)
	}
	sort.Slice(years, func(i, j int) bool { return years[i].Year < years[j].Year })
	return years, nil
}

// Plots builds the deaths bar chart and the sediment line chart
func Plots(years []Year, sediment []string) (*plot.Plot, *plot.Plot, error) {
	labels := make([]string, len(years))
	deaths := make(plotter.Values, len(years))
	for i, y := range years {
		labels[i] = fmt.Sprint(y.Year)
		deaths[i] = y.Deaths
	}

	top := plot.New()
	top.Title.Text = "Landslide deaths per year"
	top.Title.TextStyle.Font.Size = vg.Points(14)
	top.Y.Label.Text = "Deaths"

	bars, err := plotter.NewBarChart(deaths, vg.Points(12))
	if err != nil {
		return nil, nil, err
	}
	bars.Color = color.RGBA{R: 180, G: 30, B: 30, A: 255}
	bars.LineStyle.Width = vg.Length(0)
	top.Add(bars, plotter.NewGrid())
	top.NominalX(labels...)
	top.X.Tick.Label.Rotation = math.Pi / 4
	top.X.Tick.Label.XAlign = draw.XRight
	top.X.Tick.Label.YAlign = draw.YCenter

	bottom := plot.New()
	bottom.Title.Text = "Mean sediment export per year"
	bottom.Title.TextStyle.Font.Size = vg.Points(14)
	bottom.X.Label.Text = "Year"
	bottom.Y.Label.Text = "Sediment export"
	bottom.Add(plotter.NewGrid())

	for i, c := range sediment {
		var points plotter.XYs
		for _, y := range years {
			if math.IsNaN(y.Sediment[i]) {
				continue
			}
			points = append(points, plotter.XY{X: float64(y.Year), Y: y.Sediment[i]})
		}
		if len(points) == 0 {
			continue
		}
		line, err := plotter.NewLine(points)
		if err != nil {
			return nil, nil, err
		}
		line.Color = lineColors[i%len(lineColors)]
		line.Width = vg.Points(2)
		bottom.Add(line)
		bottom.Legend.Add(c, line)
	}
	bottom.Legend.Top = true

	return top, bottom, nil
}

// Save draws both plots stacked into a PNG
func Save(path string, top, bottom *plot.Plot, width, height vg.Length) error {
	plots := [][]*plot.Plot{{top}, {bottom}}
	img := vgimg.New(width, height)
	dc := draw.New(img)

	tiles := draw.Tiles{Rows: 2, Cols: 1, PadTop: vg.Millimeter * 4, PadBottom: vg.Millimeter * 4, PadY: vg.Millimeter * 8}
	canvases := plot.Align(plots, tiles, dc)
	for j := range plots {
		plots[j][0].Draw(canvases[j][0])
	}

	if err := utils.EnsureParent(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// SedimentColumns returns the configured sediment column and its no-forest
// counterpart, as far as the layer has them
func SedimentColumns(l *gpkg.Layer, column string) []string {
	var cols []string
	for _, want := range []string{column, column + panel.NoForestSuffix} {
		for _, c := range l.Columns {
			if c.Name == want {
				cols = append(cols, want)
				break
			}
		}
	}
	return cols
}

// Run draws the summary chart of the panel GeoPackage
func Run(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) error {
	start := time.Now()

	panelPath := cfg.Regress.Panel
	if panelPath == "" {
		panelPath = cfg.Panel.Output
	}
	panelPath = cfg.Path(panelPath)
	if err := validate.Files(panelPath); err != nil {
		return err
	}

	step := utils.Start(log, "Loading panel %s", panelPath)
	l, err := gpkg.Read(ctx, panelPath, cfg.Panel.OutputLayer, "")
	if err != nil {
		return err
	}
	sediment := SedimentColumns(l, cfg.Regress.Sediment)
	years, err := Summarize(l, sediment)
	if err != nil {
		return err
	}
	step.Done("Summarized %d years", len(years))

	top, bottom, err := Plots(years, sediment)
	if err != nil {
		return err
	}
	out := cfg.Path(cfg.Chart.Output)
	if err := Save(out, top, bottom, 12*vg.Inch, 10*vg.Inch); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	utils.Note(log, "Wrote chart to %s", out)
	utils.Finished(log, start)
	return nil
}
