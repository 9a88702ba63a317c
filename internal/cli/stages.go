package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gep-landslides/slidepanel/internal/chart"
	"github.com/gep-landslides/slidepanel/internal/clip"
	"github.com/gep-landslides/slidepanel/internal/config"
	"github.com/gep-landslides/slidepanel/internal/gdalio"
	"github.com/gep-landslides/slidepanel/internal/panel"
	"github.com/gep-landslides/slidepanel/internal/preview"
	"github.com/gep-landslides/slidepanel/internal/reclass"
	"github.com/gep-landslides/slidepanel/internal/regress"
	"github.com/gep-landslides/slidepanel/internal/sdr"
	"github.com/gep-landslides/slidepanel/internal/utils"
	"github.com/gep-landslides/slidepanel/internal/zonal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// stage is one step of the pipeline
type stage struct {
	name        string
	description string
	run         func(ctx context.Context, cfg *config.Config, out io.Writer, log *logrus.Logger) error
}

// stages in pipeline order
var stages = []stage{
	{"clip", "Reproject and clip rasters to the study area.", runClip},
	{"reclass", "Write no-forest land cover rasters.", runReclass},
	{"biophys", "Expand the SDR biophysical table to the land cover classes.", runBiophysical},
	{"sdr", "Run the InVEST SDR model per year and scenario.", runSDR},
	{"zonal", "Compute zonal statistics per unit and year.", func(ctx context.Context, cfg *config.Config, out io.Writer, log *logrus.Logger) error {
		return runZonal(ctx, cfg, nil, log)
	}},
	{"panel", "Assemble the unit-year panel with disaster deaths.", runPanel},
	{"regress", "Fit the fixed effects and Poisson models.", runRegress},
}

func init() {
	for _, s := range stages {
		s := s
		cmd := &cobra.Command{
			Use:   s.name,
			Short: s.description,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, log, err := setup(cmd)
				if err != nil {
					return err
				}
				return s.run(cmd.Context(), cfg, cmd.OutOrStdout(), log)
			},
		}
		if s.name == "zonal" {
			cmd.Use = "zonal [job...]"
			cmd.Long = "Compute zonal statistics per unit and year. Without arguments every configured job runs."
			cmd.Args = cobra.ArbitraryArgs
			cmd.RunE = func(cmd *cobra.Command, args []string) error {
				cfg, log, err := setup(cmd)
				if err != nil {
					return err
				}
				return runZonal(cmd.Context(), cfg, args, log)
			}
		}
		rootCmd.AddCommand(cmd)
	}

	rootCmd.AddCommand(runCmd, previewCmd, chartCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every stage in order",
	Long: `Run clip, reclass, biophys, sdr, zonal, panel and regress in order.
Use --from and --to to run a contiguous part of the pipeline.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		selected, err := selectStages(from, to)
		if err != nil {
			return err
		}

		start := time.Now()
		for i, s := range selected {
			log.Infof("Stage %d/%d: %s", i+1, len(selected), s.name)
			if err := s.run(cmd.Context(), cfg, cmd.OutOrStdout(), log); err != nil {
				return fmt.Errorf("%s: %w", s.name, err)
			}
		}
		utils.Finished(log, start)
		return nil
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Build PNG previews of rasters in several sizes.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		_, err = preview.Run(cmd.Context(), cfg, gdalio.Files{}, log)
		return err
	},
}

var chartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Draw annual deaths and sediment export of the panel.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		return chart.Run(cmd.Context(), cfg, log)
	},
}

func init() {
	runCmd.Flags().String("from", "", "first stage to run")
	runCmd.Flags().String("to", "", "last stage to run")
}

// selectStages returns the stages between from and to, both inclusive
func selectStages(from, to string) ([]stage, error) {
	first, last := 0, len(stages)-1
	for i, s := range stages {
		if s.name == from {
			first = i
		}
		if s.name == to {
			last = i
		}
	}
	if from != "" && stages[first].name != from {
		return nil, fmt.Errorf("unknown stage %s", from)
	}
	if to != "" && stages[last].name != to {
		return nil, fmt.Errorf("unknown stage %s", to)
	}
	if first > last {
		return nil, fmt.Errorf("stage %s comes after %s", from, to)
	}
	return stages[first : last+1], nil
}

func runClip(ctx context.Context, cfg *config.Config, out io.Writer, log *logrus.Logger) error {
	report, err := clip.Run(ctx, cfg, gdalio.Warper{}, log)
	if err != nil {
		return err
	}
	if len(report.Skipped) > 0 {
		log.Warnf("Skipped %d inputs that could not be opened", len(report.Skipped))
	}
	return nil
}

func runReclass(ctx context.Context, cfg *config.Config, out io.Writer, log *logrus.Logger) error {
	_, err := reclass.Run(ctx, cfg, gdalio.Files{}, log)
	return err
}

func runBiophysical(ctx context.Context, cfg *config.Config, out io.Writer, log *logrus.Logger) error {
	return reclass.RunBiophysical(cfg, log)
}

func runSDR(ctx context.Context, cfg *config.Config, out io.Writer, log *logrus.Logger) error {
	stdout := log.WriterLevel(logrus.InfoLevel)
	defer stdout.Close()
	stderr := log.WriterLevel(logrus.WarnLevel)
	defer stderr.Close()

	runner := sdr.ExecRunner{
		Command: cfg.SDR.Command,
		Model:   cfg.SDR.Model,
		Stdout:  stdout,
		Stderr:  stderr,
	}
	return sdr.Run(ctx, cfg, runner, log)
}

// runZonal runs the named zonal jobs, all of them if names is empty
func runZonal(ctx context.Context, cfg *config.Config, names []string, log *logrus.Logger) error {
	jobs := cfg.Zonal
	if len(names) > 0 {
		jobs = nil
		for _, name := range names {
			job, ok := cfg.ZonalJob(name)
			if !ok {
				return fmt.Errorf("unknown zonal job %s", name)
			}
			jobs = append(jobs, job)
		}
	}

	for _, job := range jobs {
		if _, err := zonal.Run(ctx, cfg, job, gdalio.Files{}, log.WithField("job", job.Name)); err != nil {
			return err
		}
	}
	return nil
}

func runPanel(ctx context.Context, cfg *config.Config, out io.Writer, log *logrus.Logger) error {
	_, err := panel.Run(ctx, cfg, log)
	return err
}

func runRegress(ctx context.Context, cfg *config.Config, out io.Writer, log *logrus.Logger) error {
	_, err := regress.Run(ctx, cfg, out, log)
	return err
}
