package clip

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/gep-landslides/slidepanel/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type fakeWarper struct {
	types   map[string]string
	failOn  string
	warped  []string
	lastArg []string
}

func (f *fakeWarper) Probe(path string) (string, error) {
	t, ok := f.types[path]
	if !ok {
		return "", errors.New("not recognized as a supported file format")
	}
	return t, nil
}

func (f *fakeWarper) Warp(ctx context.Context, src, dst string, switches []string) error {
	if src == f.failOn {
		return errors.New("cutline not found")
	}
	f.warped = append(f.warped, dst)
	f.lastArg = switches
	return nil
}

func argAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func TestSwitches(t *testing.T) {
	o := Options{
		Cutline:      "/ws/borders/gadm_nepal.gpkg",
		CutlineLayer: "gadm_nepal",
		DstCRS:       "ESRI:54030",
		NoData:       -9999,
	}

	want := []string{
		"-t_srs", "ESRI:54030",
		"-cutline", "/ws/borders/gadm_nepal.gpkg", "-cl", "gadm_nepal", "-crop_to_cutline",
		"-dstnodata", "-9999",
		"-ot", "Int16",
		"-wo", "CUTLINE_ALL_TOUCHED=TRUE",
		"-of", "GTiff",
		"-co", "COMPRESS=LZW", "-co", "TILED=YES", "-co", "BIGTIFF=YES",
	}
	if got := Switches(o, "Int16"); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestClipSkipsUnreadable(t *testing.T) {
	out := filepath.Join(t.TempDir(), "invest_inputs")
	w := &fakeWarper{types: map[string]string{
		"/raw/alt_m.tif":         "Int16",
		"/raw/lulc_esa_2000.tif": "Byte",
	}}
	o := Options{
		Inputs:    []string{"/raw/alt_m.tif", "/raw/broken.tif", "/raw/lulc_esa_2000.tif"},
		DstCRS:    "ESRI:54030",
		OutputDir: out,
		Prefix:    "clipped_",
	}

	log, hook := test.NewNullLogger()
	report, err := Clip(context.Background(), w, o, log)
	if err != nil {
		t.Fatalf("clip: %v", err)
	}

	wantWritten := []string{filepath.Join(out, "clipped_alt_m.tif"), filepath.Join(out, "clipped_lulc_esa_2000.tif")}
	if !reflect.DeepEqual(report.Written, wantWritten) {
		t.Errorf("expected %v, got %v", wantWritten, report.Written)
	}
	if len(report.Skipped) != 1 || report.Skipped[0].Path != "/raw/broken.tif" {
		t.Errorf("expected broken.tif to be skipped, got %+v", report.Skipped)
	}

	warnings := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warnings++
			if e.Data["path"] != "/raw/broken.tif" {
				t.Errorf("unexpected warning fields %v", e.Data)
			}
		}
	}
	if warnings != 1 {
		t.Errorf("expected one warning, got %d", warnings)
	}

	// the output keeps the input's data type
	if got := argAfter(w.lastArg, "-ot"); got != "Byte" {
		t.Errorf("expected -ot Byte, got %s", got)
	}

	if _, err := os.Stat(out); err != nil {
		t.Errorf("expected output directory to be created: %v", err)
	}
}

func TestClipWarpFailureAborts(t *testing.T) {
	w := &fakeWarper{
		types:  map[string]string{"/raw/a.tif": "Float32", "/raw/b.tif": "Float32"},
		failOn: "/raw/a.tif",
	}
	o := Options{Inputs: []string{"/raw/a.tif", "/raw/b.tif"}, OutputDir: t.TempDir()}

	log, _ := test.NewNullLogger()
	if _, err := Clip(context.Background(), w, o, log); err == nil {
		t.Fatal("expected warp failure to abort")
	}
	if len(w.warped) != 0 {
		t.Errorf("expected no further rasters after a failure, got %v", w.warped)
	}
}

func TestInputs(t *testing.T) {
	cfg := config.Default()
	cfg.Workspace = "/ws"
	cfg.Years = config.YearRange{Start: 2000, End: 2002}

	inputs := Inputs(cfg)
	if len(inputs) != 6 {
		t.Fatalf("expected 3 static rasters and 3 land cover rasters, got %v", inputs)
	}
	if inputs[0] != "/ws/raw/alt_m.tif" || inputs[5] != "/ws/raw/lulc_esa/lulc_esa_2002.tif" {
		t.Errorf("unexpected inputs %v", inputs)
	}
}

func TestRunNeedsCutline(t *testing.T) {
	cfg := config.Default()
	cfg.Workspace = t.TempDir()

	log, _ := test.NewNullLogger()
	if _, err := Run(context.Background(), cfg, &fakeWarper{}, log); err == nil || !strings.Contains(err.Error(), "is missing") {
		t.Errorf("expected missing cutline error, got %v", err)
	}
}
