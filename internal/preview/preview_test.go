package preview

import (
	"context"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/gep-landslides/slidepanel/internal/config"
	"github.com/gep-landslides/slidepanel/internal/grid"
	"github.com/sirupsen/logrus/hooks/test"
)

func testGrid() *grid.Grid {
	g := grid.New(4, 2, [6]float64{0, 1, 0, 2, 0, -1}, "Float32")
	g.HasNoData = true
	g.NoData = -1
	copy(g.Data, []float64{
		0, 1, 2, 3,
		4, 5, 6, -1,
	})
	return g
}

func TestRender(t *testing.T) {
	img := Render(testGrid())

	if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 2 {
		t.Fatalf("unexpected bounds %v", img.Bounds())
	}

	tests := []struct {
		col, row int
		gray     uint8
		alpha    uint8
	}{
		{0, 0, 0, 255},
		{2, 1, 255, 255},
		{3, 0, 128, 255},
		{3, 1, 0, 0},
	}
	for _, tt := range tests {
		c := img.NRGBAAt(tt.col, tt.row)
		if c.R != tt.gray || c.A != tt.alpha {
			t.Errorf("pixel %d/%d: expected gray %d alpha %d, got %d %d", tt.col, tt.row, tt.gray, tt.alpha, c.R, c.A)
		}
	}

	flat := grid.New(2, 2, [6]float64{0, 1, 0, 2, 0, -1}, "Float32")
	if c := Render(flat).NRGBAAt(1, 1); c.R != 128 || c.A != 255 {
		t.Errorf("expected mid gray for a constant grid, got %v", c)
	}
}

func TestName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"invest_sdr/2000/sed_export.tif", "invest_sdr_2000_sed_export"},
		{"raw/alt_m.asc.gz", "raw_alt_m"},
		{"lulc.tif", "lulc"},
	}
	for _, tt := range tests {
		if got := Name(tt.in); got != tt.want {
			t.Errorf("Name(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestRun(t *testing.T) {
	ws := t.TempDir()
	years := []int{2000, 2001}
	for _, year := range years {
		p := filepath.Join(ws, "sdr", config.ExpandYear("{year}", year), "sed_export.asc")
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := (grid.ASCIIFile{}).Write(p, testGrid()); err != nil {
			t.Fatal(err)
		}
	}

	cfg := config.Default()
	cfg.Workspace = ws
	cfg.Years = config.YearRange{Start: 2000, End: 2001}
	cfg.Workers = 2
	cfg.Preview = config.Preview{
		Inputs:    []string{"sdr/{year}/sed_export.asc"},
		OutputDir: "previews",
		Sizes:     []uint{16, 64},
	}

	log, _ := test.NewNullLogger()
	files, err := Run(context.Background(), cfg, grid.ASCIIFile{}, log)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(files) != 6 {
		t.Fatalf("expected 6 files, got %v", files)
	}

	want := filepath.Join(ws, "previews", "preview_sdr_2001_sed_export_64.png")
	if files[5] != want {
		t.Errorf("expected %s, got %s", want, files[5])
	}
	f, err := os.Open(want)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 32 {
		t.Errorf("expected 64x32, got %v", img.Bounds())
	}

	cfg.Preview.Inputs = []string{"missing.asc"}
	if _, err := Run(context.Background(), cfg, grid.ASCIIFile{}, log); err == nil {
		t.Errorf("expected error for a missing raster")
	}
}
