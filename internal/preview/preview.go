// Package preview renders quick-look PNGs of rasters, stretched grayscale
// between the raster's minimum and maximum with nodata left transparent.
package preview

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gep-landslides/slidepanel/internal/config"
	"github.com/gep-landslides/slidepanel/internal/grid"
	"github.com/gep-landslides/slidepanel/internal/utils"
	"github.com/gep-landslides/slidepanel/internal/validate"
	"github.com/nfnt/resize"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Input is a raster to preview
type Input struct {
	Name string
	Path string
}

// Render stretches the valid pixels of g over the gray range. A grid with a
// single valid value renders mid gray.
func Render(g *grid.Grid) *image.NRGBA {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range g.Data {
		if !g.IsValid(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	img := image.NewNRGBA(image.Rect(0, 0, g.Cols, g.Rows))
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			v := g.At(col, row)
			if !g.IsValid(v) {
				continue
			}
			gray := uint8(128)
			if hi > lo {
				gray = uint8(math.Round(255 * (v - lo) / (hi - lo)))
			}
			img.SetNRGBA(col, row, color.NRGBA{R: gray, G: gray, B: gray, A: 255})
		}
	}
	return img
}

// Scale resizes img so its longer side is size pixels
func Scale(img image.Image, size uint) image.Image {
	b := img.Bounds()
	if b.Dx() >= b.Dy() {
		return resize.Resize(size, 0, img, resize.MitchellNetravali)
	}
	return resize.Resize(0, size, img, resize.MitchellNetravali)
}

// Name derives a file name stem from a workspace relative raster path
func Name(rel string) string {
	rel = filepath.ToSlash(utils.TrimExt(rel))
	rel = strings.Trim(rel, "/")
	return strings.NewReplacer("/", "_", " ", "_").Replace(rel)
}

// Build writes preview_<name>.png and one preview_<name>_<size>.png per size
// for every input. At most workers inputs are processed at once.
func Build(ctx context.Context, reader grid.Reader, inputs []Input, outputDir string, sizes []uint, workers int, log logrus.FieldLogger) ([]string, error) {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	sem := semaphore.NewWeighted(int64(workers))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		written  = make([][]string, len(inputs))
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for i, in := range inputs {
		if err := sem.Acquire(ctx, 1); err != nil {
			fail(err)
			break
		}
		wg.Add(1)
		go func(i int, in Input) {
			defer wg.Done()
			defer sem.Release(1)

			files, err := buildOne(reader, in, outputDir, sizes, log)
			if err != nil {
				fail(fmt.Errorf("preview %s: %w", in.Path, err))
				return
			}
			written[i] = files
		}(i, in)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	var all []string
	for _, files := range written {
		all = append(all, files...)
	}
	return all, nil
}

func buildOne(reader grid.Reader, in Input, outputDir string, sizes []uint, log logrus.FieldLogger) ([]string, error) {
	step := utils.Start(log, "Building previews of %s", in.Path)

	g, err := reader.Read(in.Path)
	if err != nil {
		return nil, err
	}
	img := Render(g)

	original := filepath.Join(outputDir, fmt.Sprintf("preview_%s.png", in.Name))
	if err := saveImage(original, img); err != nil {
		return nil, err
	}
	files := []string{original}

	for _, size := range sizes {
		p := filepath.Join(outputDir, fmt.Sprintf("preview_%s_%d.png", in.Name, size))
		if err := saveImage(p, Scale(img, size)); err != nil {
			return nil, err
		}
		files = append(files, p)
	}

	step.Done("Built %d previews of %s", len(files), in.Name)
	return files, nil
}

// Inputs expands the configured rasters over the study years
func Inputs(cfg *config.Config) []Input {
	var inputs []Input
	for _, p := range cfg.Preview.Inputs {
		if !strings.Contains(p, config.YearPlaceholder) {
			inputs = append(inputs, Input{Name: Name(p), Path: cfg.Path(p)})
			continue
		}
		for _, year := range cfg.Years.List() {
			rel := config.ExpandYear(p, year)
			inputs = append(inputs, Input{Name: Name(rel), Path: cfg.Path(rel)})
		}
	}
	return inputs
}

// Run builds the configured previews
func Run(ctx context.Context, cfg *config.Config, reader grid.Reader, log logrus.FieldLogger) ([]string, error) {
	start := time.Now()

	inputs := Inputs(cfg)
	for _, in := range inputs {
		if err := validate.Files(in.Path); err != nil {
			return nil, err
		}
	}

	out := cfg.Path(cfg.Preview.OutputDir)
	if err := utils.EnsureDir(out); err != nil {
		return nil, err
	}

	files, err := Build(ctx, reader, inputs, out, cfg.Preview.Sizes, cfg.Workers, log)
	if err != nil {
		return nil, err
	}
	utils.Note(log, "Wrote %d previews to %s", len(files), out)
	utils.Finished(log, start)
	return files, nil
}

func saveImage(path string, img image.Image) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(out, img); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
