package regress

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gep-landslides/slidepanel/internal/config"
	"github.com/gep-landslides/slidepanel/internal/gpkg"
	"github.com/gep-landslides/slidepanel/internal/panel"
	"github.com/gep-landslides/slidepanel/internal/utils"
	"github.com/gep-landslides/slidepanel/internal/validate"
	"github.com/sirupsen/logrus"
)

// Results of a regression run
type Results struct {
	Panel        string         `json:"panel"`
	FixedEffects *FEResult      `json:"fixed_effects"`
	Poisson      *PoissonResult `json:"poisson"`
}

// Observations reads the outcome and covariates of every panel feature.
// NULL attributes become NaN.
func Observations(l *gpkg.Layer, unitField, yearField, outcome string, covariates []string) ([]Observation, error) {
	obs := make([]Observation, 0, len(l.Features))
	for _, f := range l.Features {
		unit := gpkg.AsString(f.Properties[unitField])
		if unit == "" {
			return nil, fmt.Errorf("%s: feature %d has no %s", l.Name, gpkg.FID(f), unitField)
		}
		year, ok := gpkg.AsInt(f.Properties[yearField])
		if !ok {
			return nil, fmt.Errorf("%s: feature %d has no %s", l.Name, gpkg.FID(f), yearField)
		}

		o := Observation{Unit: unit, Year: int(year), Y: number(f.Properties[outcome]), X: make([]float64, len(covariates))}
		for j, c := range covariates {
			o.X[j] = number(f.Properties[c])
		}
		obs = append(obs, o)
	}
	return obs, nil
}

func number(v interface{}) float64 {
	f, ok := gpkg.AsFloat(v)
	if !ok {
		return math.NaN()
	}
	return f
}

// Fit estimates both models on the observations
func Fit(obs []Observation, outcome string, covariates []string, vcov string) (*Results, error) {
	fe, err := FixedEffects(obs, covariates, vcov)
	if err != nil {
		return nil, fmt.Errorf("fixed effects model: %w", err)
	}
	fe.Formula = fmt.Sprintf("%s ~ %s | unit + year", outcome, strings.Join(covariates, " + "))

	y, x, names, err := PoissonDesign(obs, covariates)
	if err != nil {
		return nil, fmt.Errorf("poisson model: %w", err)
	}
	pois, err := Poisson(y, x, names)
	if err != nil {
		return nil, fmt.Errorf("poisson model: %w", err)
	}
	logs := make([]string, len(covariates))
	for i, c := range covariates {
		logs[i] = fmt.Sprintf("ln(%s)", c)
	}
	pois.Formula = fmt.Sprintf("%s ~ 1 + %s + C(year)", outcome, strings.Join(logs, " + "))

	return &Results{FixedEffects: fe, Poisson: pois}, nil
}

// WriteText prints both models as aligned tables
func (r *Results) WriteText(w io.Writer) error {
	if fe := r.FixedEffects; fe != nil {
		fmt.Fprintln(w, fe.Formula)
		fmt.Fprintf(w, "N = %d, units = %d, years = %d, vcov = %s, within R2 = %.4f\n", fe.N, fe.Units, fe.Years, fe.VCov, fe.R2Within)
		if err := writeCoefficients(w, "t", fe.Coefficients); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}
	if p := r.Poisson; p != nil {
		fmt.Fprintln(w, p.Formula)
		fmt.Fprintf(w, "N = %d, deviance = %.4f, null deviance = %.4f, log-likelihood = %.4f, iterations = %d\n", p.N, p.Deviance, p.NullDeviance, p.LogLik, p.Iterations)
		if err := writeCoefficients(w, "z", p.Coefficients); err != nil {
			return err
		}
	}
	return nil
}

func writeCoefficients(w io.Writer, stat string, coefs []Coefficient) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "\testimate\tstd. error\t%s\tp\t\n", stat)
	for _, c := range coefs {
		fmt.Fprintf(tw, "%s\t%.6g\t%.6g\t%.3f\t%.4f\t\n", c.Name, c.Estimate, c.StdErr, c.Stat, c.P)
	}
	return tw.Flush()
}

// WriteJSON writes the results to given path
func (r *Results) WriteJSON(path string) error {
	bytes, err := json.MarshalIndent(r, "", "    ")
	if err != nil {
		return err
	}
	if err := utils.EnsureParent(path); err != nil {
		return err
	}
	return os.WriteFile(path, bytes, 0644)
}

// Run fits the models on the panel GeoPackage, prints them to out and writes
// the JSON results
func Run(ctx context.Context, cfg *config.Config, out io.Writer, log logrus.FieldLogger) (*Results, error) {
	start := time.Now()
	rc := cfg.Regress

	panelPath := rc.Panel
	if panelPath == "" {
		panelPath = cfg.Panel.Output
	}
	panelPath = cfg.Path(panelPath)
	if err := validate.Files(panelPath); err != nil {
		return nil, err
	}

	step := utils.Start(log, "Loading panel %s", panelPath)
	l, err := gpkg.Read(ctx, panelPath, cfg.Panel.OutputLayer, "")
	if err != nil {
		return nil, err
	}
	covariates := []string{rc.Sediment, rc.Population}
	obs, err := Observations(l, cfg.Panel.IDField, panel.ColYear, rc.Outcome, covariates)
	if err != nil {
		return nil, err
	}
	step.Done("Loaded %d rows", len(obs))

	step = utils.Start(log, "Fitting models")
	res, err := Fit(obs, rc.Outcome, covariates, rc.VCov)
	if err != nil {
		return nil, err
	}
	res.Panel = panelPath
	if !res.Poisson.Converged {
		log.WithField("iterations", res.Poisson.Iterations).Warn("poisson model did not converge")
	}
	step.Done("Fitted models on %d and %d rows", res.FixedEffects.N, res.Poisson.N)

	if out != nil {
		if err := res.WriteText(out); err != nil {
			return nil, err
		}
	}

	if rc.Output != "" {
		path := cfg.Path(rc.Output)
		if err := res.WriteJSON(path); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
		utils.Note(log, "Wrote results to %s", path)
	}
	utils.Finished(log, start)

	return res, nil
}
