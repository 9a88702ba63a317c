package reclass

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gep-landslides/slidepanel/internal/config"
	"github.com/gep-landslides/slidepanel/internal/grid"
	"github.com/sirupsen/logrus/hooks/test"
)

const correspondence = `src_id,dst_id,src_label,dst_label
10,2,cropland_rainfed,cropland
50,4,tree_broadleaved_evergreen,forest
60,4,tree_broadleaved_deciduous,forest
130,3,grassland,grassland
210,6,water,water
`

func TestReadCorrespondence(t *testing.T) {
	valueMap, err := ReadCorrespondence(strings.NewReader(correspondence), "forest", 200)
	if err != nil {
		t.Fatal(err)
	}

	want := map[int]int{10: 10, 50: 200, 60: 200, 130: 130, 210: 210}
	if len(valueMap) != len(want) {
		t.Fatalf("expected %d entries, got %v", len(want), valueMap)
	}
	for src, dst := range want {
		if valueMap[src] != dst {
			t.Errorf("code %d: expected %d, got %d", src, dst, valueMap[src])
		}
	}

	if _, err := ReadCorrespondence(strings.NewReader("a,b\n1,2\n"), "forest", 200); err == nil {
		t.Errorf("expected error for missing columns")
	}
	if _, err := ReadCorrespondence(strings.NewReader("src_id,dst_label\nx,forest\n"), "forest", 200); err == nil {
		t.Errorf("expected error for non-integer code")
	}
}

func TestNoForestPath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"/ws/invest_inputs/clipped_lulc_esa_2000.tif", "/ws/invest_inputs/clipped_lulc_esa_2000_noforest.tif"},
		{"lulc.asc.gz", "lulc_noforest.asc.gz"},
	}
	for _, tt := range tests {
		if got := NoForestPath(tt.in, "_noforest"); got != tt.want {
			t.Errorf("expected %s, got %s", tt.want, got)
		}
	}
}

func TestRun(t *testing.T) {
	ws := t.TempDir()
	if err := os.WriteFile(filepath.Join(ws, "correspondence.csv"), []byte(correspondence), 0644); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"lulc_2000.asc", "lulc_2001.asc"} {
		g := grid.New(3, 2, [6]float64{0, 1, 0, 2, 0, -1}, "Byte")
		g.HasNoData, g.NoData = true, 255
		copy(g.Data, []float64{50, 60, 10, 255, 130, 50})
		if err := (grid.ASCIIFile{}).Write(filepath.Join(ws, name), g); err != nil {
			t.Fatal(err)
		}
	}

	cfg := config.Default()
	cfg.Workspace = ws
	cfg.Years = config.YearRange{Start: 2000, End: 2001}
	cfg.Reclass.Correspondence = "correspondence.csv"
	cfg.Reclass.Input = "lulc_{year}.asc"

	log, hook := test.NewNullLogger()
	written, err := Run(context.Background(), cfg, grid.ASCIIFile{}, log)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(written) != 2 || written[1] != filepath.Join(ws, "lulc_2001_noforest.asc") {
		t.Errorf("unexpected outputs %v", written)
	}
	if !strings.Contains(hook.AllEntries()[1].Message, "Processing 1/2") {
		t.Errorf("expected progress message, got %q", hook.AllEntries()[1].Message)
	}

	out, err := (grid.ASCIIFile{}).Read(written[0])
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{200, 200, 10, 255, 130, 200}
	for i, v := range want {
		if out.Data[i] != v {
			t.Errorf("pixel %d: expected %v, got %v", i, v, out.Data[i])
		}
	}

	// an unmapped code aborts the batch
	g := grid.New(1, 1, [6]float64{0, 1, 0, 1, 0, -1}, "Byte")
	g.Data[0] = 11
	if err := (grid.ASCIIFile{}).Write(filepath.Join(ws, "lulc_2000.asc"), g); err != nil {
		t.Fatal(err)
	}
	if _, err := Run(context.Background(), cfg, grid.ASCIIFile{}, log); !errors.Is(err, grid.ErrUnmappedValue) {
		t.Errorf("expected ErrUnmappedValue, got %v", err)
	}
}

func TestExpandBiophysical(t *testing.T) {
	in := `lucode,description,usle_c,usle_p
1,urban,0.001,1
4,forest,0.003,1
9,unknown,0.5,1
`
	expansion := map[int][]int{1: {190}, 4: {40, 50}}

	var out bytes.Buffer
	n, err := ExpandBiophysical(strings.NewReader(in), &out, expansion)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("expected 3 rows, got %d", n)
	}

	want := `lucode,description,usle_c,usle_p,original_lucode
1,urban,0.001,1,190
4,forest,0.003,1,40
4,forest,0.003,1,50
`
	if out.String() != want {
		t.Errorf("expected\n%s\ngot\n%s", want, out.String())
	}

	if _, err := ExpandBiophysical(strings.NewReader("code\n1\n"), &out, expansion); err == nil {
		t.Errorf("expected error without lucode column")
	}
}

func TestRunBiophysical(t *testing.T) {
	ws := t.TempDir()
	if err := os.WriteFile(filepath.Join(ws, "bio.csv"), []byte("lucode,usle_c\n4,0.003\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Workspace = ws
	cfg.Biophysical.Input = "bio.csv"
	cfg.Biophysical.Output = "out/expanded.csv"

	log, _ := test.NewNullLogger()
	if err := RunBiophysical(cfg, log); err != nil {
		t.Fatal(err)
	}

	content, err := os.ReadFile(filepath.Join(ws, "out", "expanded.csv"))
	if err != nil {
		t.Fatal(err)
	}
	// the default forest class expands to 13 ESA codes
	if lines := strings.Count(string(content), "\n"); lines != 14 {
		t.Errorf("expected header and 13 rows, got %d lines", lines)
	}
}
