package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// YearPlaceholder is substituted with the year in path templates
const YearPlaceholder = "{year}"

// Config is the full pipeline configuration. Every relative path is resolved
// against Workspace.
type Config struct {
	Workspace   string      `mapstructure:"workspace" yaml:"workspace"`
	Years       YearRange   `mapstructure:"years" yaml:"years"`
	Workers     int         `mapstructure:"workers" yaml:"workers"`
	Clip        Clip        `mapstructure:"clip" yaml:"clip"`
	Reclass     Reclass     `mapstructure:"reclass" yaml:"reclass"`
	Biophysical Biophysical `mapstructure:"biophysical" yaml:"biophysical"`
	SDR         SDR         `mapstructure:"sdr" yaml:"sdr"`
	Zonal       []ZonalJob  `mapstructure:"zonal" yaml:"zonal"`
	Panel       Panel       `mapstructure:"panel" yaml:"panel"`
	Regress     Regress     `mapstructure:"regress" yaml:"regress"`
	Preview     Preview     `mapstructure:"preview" yaml:"preview"`
	Chart       Chart       `mapstructure:"chart" yaml:"chart"`
}

// YearRange is an inclusive range of study years
type YearRange struct {
	Start int `mapstructure:"start" yaml:"start"`
	End   int `mapstructure:"end" yaml:"end"`
}

// List returns every year of the range in ascending order
func (r YearRange) List() []int {
	if r.End < r.Start {
		return nil
	}
	years := make([]int, 0, r.End-r.Start+1)
	for y := r.Start; y <= r.End; y++ {
		years = append(years, y)
	}
	return years
}

// Clip configures raster clipping and reprojection
type Clip struct {
	Inputs       []string `mapstructure:"inputs" yaml:"inputs"`
	LULC         string   `mapstructure:"lulc" yaml:"lulc"`
	Cutline      string   `mapstructure:"cutline" yaml:"cutline"`
	CutlineLayer string   `mapstructure:"cutline_layer" yaml:"cutline_layer"`
	DstCRS       string   `mapstructure:"dst_crs" yaml:"dst_crs"`
	NoData       float64  `mapstructure:"nodata" yaml:"nodata"`
	OutputDir    string   `mapstructure:"output_dir" yaml:"output_dir"`
	Prefix       string   `mapstructure:"prefix" yaml:"prefix"`
}

// Reclass configures the no-forest land cover counterfactual
type Reclass struct {
	Correspondence string `mapstructure:"correspondence" yaml:"correspondence"`
	ForestLabel    string `mapstructure:"forest_label" yaml:"forest_label"`
	ForestCode     int    `mapstructure:"forest_code" yaml:"forest_code"`
	Input          string `mapstructure:"input" yaml:"input"`
	Suffix         string `mapstructure:"suffix" yaml:"suffix"`
	ValuesRequired bool   `mapstructure:"values_required" yaml:"values_required"`
}

// Biophysical configures the SEALS7 to ESA biophysical table expansion
type Biophysical struct {
	Input     string        `mapstructure:"input" yaml:"input"`
	Output    string        `mapstructure:"output" yaml:"output"`
	Expansion map[int][]int `mapstructure:"expansion" yaml:"expansion"`
}

// SDR configures the external sediment delivery ratio model runs
type SDR struct {
	Command       []string `mapstructure:"command" yaml:"command"`
	Model         string   `mapstructure:"model" yaml:"model"`
	ModelName     string   `mapstructure:"model_name" yaml:"model_name"`
	InvestVersion string   `mapstructure:"invest_version" yaml:"invest_version"`
	WorkspaceRoot string   `mapstructure:"workspace_root" yaml:"workspace_root"`

	BiophysicalTable string `mapstructure:"biophysical_table" yaml:"biophysical_table"`
	DEM              string `mapstructure:"dem" yaml:"dem"`
	Drainage         string `mapstructure:"drainage" yaml:"drainage"`
	Erodibility      string `mapstructure:"erodibility" yaml:"erodibility"`
	Erosivity        string `mapstructure:"erosivity" yaml:"erosivity"`
	Watersheds       string `mapstructure:"watersheds" yaml:"watersheds"`

	IC0                       float64 `mapstructure:"ic_0" yaml:"ic_0"`
	K                         float64 `mapstructure:"k" yaml:"k"`
	LMax                      float64 `mapstructure:"l_max" yaml:"l_max"`
	SDRMax                    float64 `mapstructure:"sdr_max" yaml:"sdr_max"`
	ThresholdFlowAccumulation float64 `mapstructure:"threshold_flow_accumulation" yaml:"threshold_flow_accumulation"`
	NWorkers                  int     `mapstructure:"n_workers" yaml:"n_workers"`
	ResultsSuffix             string  `mapstructure:"results_suffix" yaml:"results_suffix"`

	Scenarios []Scenario `mapstructure:"scenarios" yaml:"scenarios"`
}

// Scenario is one land cover variant run through the SDR model each year
type Scenario struct {
	Name      string `mapstructure:"name" yaml:"name"`
	LULC      string `mapstructure:"lulc" yaml:"lulc"`
	Workspace string `mapstructure:"workspace" yaml:"workspace"`
}

// ZonalJob extracts per polygon statistics of a yearly raster series
type ZonalJob struct {
	Name    string            `mapstructure:"name" yaml:"name"`
	Vector  string            `mapstructure:"vector" yaml:"vector"`
	Layer   string            `mapstructure:"layer" yaml:"layer"`
	Filter  string            `mapstructure:"filter" yaml:"filter"`
	IDField string            `mapstructure:"id_field" yaml:"id_field"`
	Raster  string            `mapstructure:"raster" yaml:"raster"`
	Years   []int             `mapstructure:"years" yaml:"years"`
	Stats   []string          `mapstructure:"stats" yaml:"stats"`
	Rename  map[string]string `mapstructure:"rename" yaml:"rename"`
	Prefix  string            `mapstructure:"prefix" yaml:"prefix"`
	Output  string            `mapstructure:"output" yaml:"output"`
}

// Panel configures the panel assembly
type Panel struct {
	Borders      string   `mapstructure:"borders" yaml:"borders"`
	Layer        string   `mapstructure:"layer" yaml:"layer"`
	IDField      string   `mapstructure:"id_field" yaml:"id_field"`
	NameField    string   `mapstructure:"name_field" yaml:"name_field"`
	CountryField string   `mapstructure:"country_field" yaml:"country_field"`
	Countries    []string `mapstructure:"countries" yaml:"countries"`

	EMDAT            string   `mapstructure:"emdat" yaml:"emdat"`
	Sheet            string   `mapstructure:"sheet" yaml:"sheet"`
	DisasterType     string   `mapstructure:"disaster_type" yaml:"disaster_type"`
	DisasterSubtypes []string `mapstructure:"disaster_subtypes" yaml:"disaster_subtypes"`

	Locations        string   `mapstructure:"locations" yaml:"locations"`
	LocationsLayer   string   `mapstructure:"locations_layer" yaml:"locations_layer"`
	LocationsFilter  string   `mapstructure:"locations_filter" yaml:"locations_filter"`
	ExcludeLocations []string `mapstructure:"exclude_locations" yaml:"exclude_locations"`

	Population       string `mapstructure:"population" yaml:"population"`
	Sediment         string `mapstructure:"sediment" yaml:"sediment"`
	SedimentNoForest string `mapstructure:"sediment_noforest" yaml:"sediment_noforest"`

	Output      string  `mapstructure:"output" yaml:"output"`
	OutputLayer string  `mapstructure:"output_layer" yaml:"output_layer"`
	GeoJSON     string  `mapstructure:"geojson" yaml:"geojson"`
	Simplify    float64 `mapstructure:"simplify" yaml:"simplify"`
}

// Regress configures the regression models
type Regress struct {
	Panel      string `mapstructure:"panel" yaml:"panel"`
	Outcome    string `mapstructure:"outcome" yaml:"outcome"`
	Sediment   string `mapstructure:"sediment" yaml:"sediment"`
	Population string `mapstructure:"population" yaml:"population"`
	VCov       string `mapstructure:"vcov" yaml:"vcov"`
	Output     string `mapstructure:"output" yaml:"output"`
}

// Preview configures quick-look PNG rendering of rasters
type Preview struct {
	Inputs    []string `mapstructure:"inputs" yaml:"inputs"`
	OutputDir string   `mapstructure:"output_dir" yaml:"output_dir"`
	Sizes     []uint   `mapstructure:"sizes" yaml:"sizes"`
}

// Chart configures the annual summary chart of the panel
type Chart struct {
	Output string `mapstructure:"output" yaml:"output"`
}

// Path resolves p against the workspace and expands a leading ~
func (c *Config) Path(p string) string {
	if p == "" {
		return ""
	}
	p = expandHome(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(expandHome(c.Workspace), p)
}

// YearPath resolves a path template for the given year
func (c *Config) YearPath(pattern string, year int) string {
	return c.Path(ExpandYear(pattern, year))
}

// ExpandYear substitutes the year placeholder of a path template
func ExpandYear(pattern string, year int) string {
	return strings.ReplaceAll(pattern, YearPlaceholder, strconv.Itoa(year))
}

// ZonalJob returns the zonal job with the given name
func (c *Config) ZonalJob(name string) (ZonalJob, bool) {
	for _, j := range c.Zonal {
		if j.Name == name {
			return j, true
		}
	}
	return ZonalJob{}, false
}

// JobYears returns the years a zonal job covers
func (c *Config) JobYears(j ZonalJob) []int {
	if len(j.Years) == 0 {
		return c.Years.List()
	}
	years := append([]int{}, j.Years...)
	sort.Ints(years)
	return years
}

// Column returns the output column name of a statistic
func (j ZonalJob) Column(stat string) string {
	if name, ok := j.Rename[stat]; ok && name != "" {
		return name
	}
	return j.Prefix + stat
}

// YearColumn returns the output column name of the year
func (j ZonalJob) YearColumn() string {
	return j.Prefix + "year"
}

// Validate checks the configuration for inconsistencies
func (c *Config) Validate() error {
	if c.Years.Start == 0 || c.Years.End < c.Years.Start {
		return fmt.Errorf("invalid year range %d-%d", c.Years.Start, c.Years.End)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}

	seen := map[string]bool{}
	for i, j := range c.Zonal {
		if j.Name == "" {
			return fmt.Errorf("zonal job %d has no name", i)
		}
		if seen[j.Name] {
			return fmt.Errorf("zonal job %s is defined twice", j.Name)
		}
		seen[j.Name] = true
		if j.IDField == "" {
			return fmt.Errorf("zonal job %s has no id_field", j.Name)
		}
		if !strings.Contains(j.Raster, YearPlaceholder) {
			return fmt.Errorf("zonal job %s: raster %s has no %s placeholder", j.Name, j.Raster, YearPlaceholder)
		}
		if len(j.Stats) == 0 {
			return fmt.Errorf("zonal job %s has no stats", j.Name)
		}
	}

	for _, name := range []string{c.Panel.Population, c.Panel.Sediment, c.Panel.SedimentNoForest} {
		if name != "" && !seen[name] {
			return fmt.Errorf("panel references unknown zonal job %s", name)
		}
	}

	switch strings.ToUpper(c.Regress.VCov) {
	case "", "IID", "CRV1":
	default:
		return fmt.Errorf("unknown vcov %s, expected iid or CRV1", c.Regress.VCov)
	}

	return nil
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
