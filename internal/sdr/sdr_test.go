package sdr

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gep-landslides/slidepanel/internal/config"
	"github.com/gep-landslides/slidepanel/internal/datastack"
	"github.com/sirupsen/logrus/hooks/test"
)

type recordingRunner struct {
	calls  []string
	failAt int
}

func (r *recordingRunner) Run(ctx context.Context, datastackPath, workspace string) error {
	r.calls = append(r.calls, workspace)
	if r.failAt > 0 && len(r.calls) == r.failAt {
		return errors.New("exit status 1")
	}
	return nil
}

func testConfig(ws string) *config.Config {
	cfg := config.Default()
	cfg.Workspace = ws
	cfg.Years = config.YearRange{Start: 2000, End: 2001}
	return cfg
}

func TestPlan(t *testing.T) {
	jobs := Plan(testConfig("/ws"))
	if len(jobs) != 4 {
		t.Fatalf("expected 2 years x 2 scenarios, got %d jobs", len(jobs))
	}

	tests := []struct {
		year      int
		scenario  string
		workspace string
		lulc      string
	}{
		{2000, "baseline", "/ws/invest_sdr/2000", "/ws/invest_inputs/clipped_lulc_esa_2000.tif"},
		{2000, "noforest", "/ws/invest_sdr/2000_noforest", "/ws/invest_inputs/clipped_lulc_esa_2000_noforest.tif"},
		{2001, "baseline", "/ws/invest_sdr/2001", "/ws/invest_inputs/clipped_lulc_esa_2001.tif"},
		{2001, "noforest", "/ws/invest_sdr/2001_noforest", "/ws/invest_inputs/clipped_lulc_esa_2001_noforest.tif"},
	}
	for i, tt := range tests {
		j := jobs[i]
		if j.Year != tt.year || j.Scenario != tt.scenario || j.Params.WorkspaceDir != tt.workspace || j.Params.LULCPath != tt.lulc {
			t.Errorf("job %d: unexpected %+v", i, j)
		}
	}
}

func TestArgs(t *testing.T) {
	args := Plan(testConfig("/ws"))[0].Params.Args()

	want := map[string]string{
		"biophysical_table_path":      "/ws/invest_inputs/expanded_biophysical_table_gura.csv",
		"dem_path":                    "/ws/invest_inputs/clipped_alt_m.tif",
		"drainage_path":               "",
		"erodibility_path":            "/ws/invest_inputs/clipped_RUSLE_KFactor_v1.1_25km.tif",
		"erosivity_path":              "/ws/invest_inputs/clipped_GlobalR_NoPol-002.tif",
		"ic_0_param":                  "0.5",
		"k_param":                     "2",
		"l_max":                       "122",
		"lulc_path":                   "/ws/invest_inputs/clipped_lulc_esa_2000.tif",
		"n_workers":                   "-1",
		"results_suffix":              "",
		"sdr_max":                     "0.8",
		"threshold_flow_accumulation": "1000",
		"watersheds_path":             "/ws/invest_inputs/hybas_as_lev06_v1c.gpkg",
		"workspace_dir":               "/ws/invest_sdr/2000",
	}
	if len(args) != len(want) {
		t.Errorf("expected %d args, got %d", len(want), len(args))
	}
	for k, v := range want {
		if args[k] != v {
			t.Errorf("%s: expected %q, got %q", k, v, args[k])
		}
	}
}

func TestExecute(t *testing.T) {
	ws := t.TempDir()
	jobs := Plan(testConfig(ws))
	runner := &recordingRunner{}

	log, _ := test.NewNullLogger()
	if err := Execute(context.Background(), jobs, runner, "natcap.invest.sdr.sdr", "3.14.2", log); err != nil {
		t.Fatal(err)
	}
	if len(runner.calls) != 4 || runner.calls[1] != filepath.Join(ws, "invest_sdr", "2000_noforest") {
		t.Errorf("unexpected runs %v", runner.calls)
	}

	ds, err := datastack.Read(filepath.Join(ws, "invest_sdr", "2001_noforest", DatastackName))
	if err != nil {
		t.Fatal(err)
	}
	if ds.ModelName != "natcap.invest.sdr.sdr" || !strings.HasSuffix(ds.Args["lulc_path"], "clipped_lulc_esa_2001_noforest.tif") {
		t.Errorf("unexpected datastack %+v", ds)
	}

	// rerunning overwrites the workspace
	if err := Execute(context.Background(), jobs, runner, "natcap.invest.sdr.sdr", "3.14.2", log); err != nil {
		t.Errorf("expected rerun to succeed, got %v", err)
	}
}

func TestExecuteStopsOnFailure(t *testing.T) {
	runner := &recordingRunner{failAt: 2}
	log, _ := test.NewNullLogger()

	err := Execute(context.Background(), Plan(testConfig(t.TempDir())), runner, "natcap.invest.sdr.sdr", "", log)
	if err == nil || !strings.Contains(err.Error(), "sdr 2000 noforest") {
		t.Errorf("expected failure of the second run, got %v", err)
	}
	if len(runner.calls) != 2 {
		t.Errorf("expected the loop to stop after the failure, got %d runs", len(runner.calls))
	}
}

func TestRunValidatesInputs(t *testing.T) {
	log, _ := test.NewNullLogger()
	err := Run(context.Background(), testConfig(t.TempDir()), &recordingRunner{}, log)
	if err == nil || !strings.Contains(err.Error(), "expanded_biophysical_table_gura.csv is missing") {
		t.Errorf("expected missing biophysical table, got %v", err)
	}
}

func TestExecRunner(t *testing.T) {
	if _, err := os.Stat("/bin/echo"); err != nil {
		t.Skip("no echo binary")
	}

	var out strings.Builder
	r := ExecRunner{Command: []string{"/bin/echo", "invest"}, Model: "sdr", Stdout: &out}
	if err := r.Run(context.Background(), "/ws/datastack.json", "/ws"); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(out.String()); got != "invest run -d /ws/datastack.json -w /ws sdr" {
		t.Errorf("unexpected command line %q", got)
	}

	if err := (ExecRunner{}).Run(context.Background(), "", ""); err == nil {
		t.Errorf("expected error without command")
	}
}
