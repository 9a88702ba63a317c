// Package sdr drives the InVEST sediment delivery ratio model over years and
// land cover scenarios. It only assembles parameters and workspaces; the
// model itself runs as an external process.
package sdr

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gep-landslides/slidepanel/internal/config"
	"github.com/gep-landslides/slidepanel/internal/datastack"
	"github.com/gep-landslides/slidepanel/internal/utils"
	"github.com/gep-landslides/slidepanel/internal/validate"
	"github.com/sirupsen/logrus"
)

// DatastackName is the parameter set written into every workspace
const DatastackName = "datastack.json"

// Params is the parameter set of one model run
type Params struct {
	BiophysicalTablePath      string
	DEMPath                   string
	DrainagePath              string
	ErodibilityPath           string
	ErosivityPath             string
	IC0                       float64
	K                         float64
	LMax                      float64
	LULCPath                  string
	NWorkers                  int
	ResultsSuffix             string
	SDRMax                    float64
	ThresholdFlowAccumulation float64
	WatershedsPath            string
	WorkspaceDir              string
}

// Args returns the parameters under the model's argument names
func (p Params) Args() map[string]string {
	return map[string]string{
		"biophysical_table_path":      p.BiophysicalTablePath,
		"dem_path":                    p.DEMPath,
		"drainage_path":               p.DrainagePath,
		"erodibility_path":            p.ErodibilityPath,
		"erosivity_path":              p.ErosivityPath,
		"ic_0_param":                  formatFloat(p.IC0),
		"k_param":                     formatFloat(p.K),
		"l_max":                       formatFloat(p.LMax),
		"lulc_path":                   p.LULCPath,
		"n_workers":                   strconv.Itoa(p.NWorkers),
		"results_suffix":              p.ResultsSuffix,
		"sdr_max":                     formatFloat(p.SDRMax),
		"threshold_flow_accumulation": formatFloat(p.ThresholdFlowAccumulation),
		"watersheds_path":             p.WatershedsPath,
		"workspace_dir":               p.WorkspaceDir,
	}
}

// Job is one (year, scenario) model run
type Job struct {
	Year     int
	Scenario string
	Params   Params
}

// Plan lists the runs of every configured year and scenario
func Plan(cfg *config.Config) []Job {
	s := cfg.SDR
	base := Params{
		BiophysicalTablePath:      cfg.Path(s.BiophysicalTable),
		DEMPath:                   cfg.Path(s.DEM),
		DrainagePath:              cfg.Path(s.Drainage),
		ErodibilityPath:           cfg.Path(s.Erodibility),
		ErosivityPath:             cfg.Path(s.Erosivity),
		IC0:                       s.IC0,
		K:                         s.K,
		LMax:                      s.LMax,
		NWorkers:                  s.NWorkers,
		ResultsSuffix:             s.ResultsSuffix,
		SDRMax:                    s.SDRMax,
		ThresholdFlowAccumulation: s.ThresholdFlowAccumulation,
		WatershedsPath:            cfg.Path(s.Watersheds),
	}

	var jobs []Job
	for _, year := range cfg.Years.List() {
		for _, sc := range s.Scenarios {
			p := base
			p.LULCPath = cfg.YearPath(sc.LULC, year)
			p.WorkspaceDir = filepath.Join(cfg.Path(s.WorkspaceRoot), config.ExpandYear(sc.Workspace, year))
			jobs = append(jobs, Job{Year: year, Scenario: sc.Name, Params: p})
		}
	}
	return jobs
}

// Runner invokes the model on a prepared workspace
type Runner interface {
	Run(ctx context.Context, datastackPath, workspace string) error
}

// ExecRunner runs the invest command line tool
type ExecRunner struct {
	// Command prefix, e.g. ["invest"] or ["conda", "run", "-n", "invest", "invest"]
	Command []string
	Model   string
	Stdout  io.Writer
	Stderr  io.Writer
}

// Run executes `invest run -d <datastack> -w <workspace> <model>` and waits
// for it to finish
func (r ExecRunner) Run(ctx context.Context, datastackPath, workspace string) error {
	if len(r.Command) == 0 {
		return fmt.Errorf("no invest command configured")
	}
	args := append(append([]string{}, r.Command[1:]...), "run", "-d", datastackPath, "-w", workspace, r.Model)

	cmd := exec.CommandContext(ctx, r.Command[0], args...)
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", cmd.String(), err)
	}
	return nil
}

// Execute prepares the workspace of every job and runs the model on it, in
// order. Existing outputs are overwritten by the model.
func Execute(ctx context.Context, jobs []Job, runner Runner, modelName, investVersion string, log logrus.FieldLogger) error {
	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			return err
		}

		ws := job.Params.WorkspaceDir
		step := utils.Start(log, "Running SDR %d/%d: %d %s", i+1, len(jobs), job.Year, job.Scenario)

		if err := utils.EnsureDir(ws); err != nil {
			return err
		}

		ds := datastack.Datastack{Args: job.Params.Args(), InvestVersion: investVersion, ModelName: modelName}
		dsPath := filepath.Join(ws, DatastackName)
		if err := datastack.Write(dsPath, ds); err != nil {
			return fmt.Errorf("write %s: %w", dsPath, err)
		}

		if err := runner.Run(ctx, dsPath, ws); err != nil {
			return fmt.Errorf("sdr %d %s: %w", job.Year, job.Scenario, err)
		}
		step.Done("Finished SDR %d %s", job.Year, job.Scenario)
	}
	return nil
}

// Run checks the model inputs and runs every configured job
func Run(ctx context.Context, cfg *config.Config, runner Runner, log logrus.FieldLogger) error {
	start := time.Now()
	jobs := Plan(cfg)
	if len(jobs) == 0 {
		return fmt.Errorf("no sdr scenarios configured")
	}

	p := jobs[0].Params
	if err := validate.Files(p.BiophysicalTablePath, p.DEMPath, p.DrainagePath, p.ErodibilityPath, p.ErosivityPath, p.WatershedsPath); err != nil {
		return err
	}
	for _, job := range jobs {
		if err := validate.Files(job.Params.LULCPath); err != nil {
			return err
		}
	}

	if err := Execute(ctx, jobs, runner, cfg.SDR.ModelName, cfg.SDR.InvestVersion, log); err != nil {
		return err
	}

	utils.Finished(log, start)
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
