package config

// Default returns the configuration of the Nepal 2000-2020 landslide study
func Default() *Config {
	return &Config{
		Workspace: "~/Files/base_data/gep/landslides",
		Years:     YearRange{Start: 2000, End: 2020},
		Workers:   1,
		Clip: Clip{
			Inputs: []string{
				"raw/alt_m.tif",
				"raw/GlobalR_NoPol-002.tif",
				"raw/RUSLE_KFactor_v1.1_25km.tif",
			},
			LULC:         "raw/lulc_esa/lulc_esa_{year}.tif",
			Cutline:      "borders/gadm_nepal.gpkg",
			CutlineLayer: "gadm_nepal",
			DstCRS:       "ESRI:54030",
			NoData:       -9999,
			OutputDir:    "invest_inputs",
			Prefix:       "clipped_",
		},
		Reclass: Reclass{
			Correspondence: "raw/esa_seals7_correspondence.csv",
			ForestLabel:    "forest",
			ForestCode:     200,
			Input:          "invest_inputs/clipped_lulc_esa_{year}.tif",
			Suffix:         "_noforest",
			ValuesRequired: true,
		},
		Biophysical: Biophysical{
			Input:  "invest_inputs/biophysical_table_gura.csv",
			Output: "invest_inputs/expanded_biophysical_table_gura.csv",
			Expansion: map[int][]int{
				1: {190},
				2: {10, 11, 12, 20, 30},
				3: {130},
				4: {40, 50, 60, 61, 62, 70, 71, 72, 80, 81, 82, 90, 100},
				5: {110, 120, 121, 122, 140},
				6: {210},
				7: {150, 151, 152, 153, 160, 170, 180, 200, 201, 202, 220},
			},
		},
		SDR: SDR{
			Command:       []string{"invest"},
			Model:         "sdr",
			ModelName:     "natcap.invest.sdr.sdr",
			InvestVersion: "3.14.2",
			WorkspaceRoot: "invest_sdr",

			BiophysicalTable: "invest_inputs/expanded_biophysical_table_gura.csv",
			DEM:              "invest_inputs/clipped_alt_m.tif",
			Erodibility:      "invest_inputs/clipped_RUSLE_KFactor_v1.1_25km.tif",
			Erosivity:        "invest_inputs/clipped_GlobalR_NoPol-002.tif",
			Watersheds:       "invest_inputs/hybas_as_lev06_v1c.gpkg",

			IC0:                       0.5,
			K:                         2,
			LMax:                      122,
			SDRMax:                    0.8,
			ThresholdFlowAccumulation: 1000,
			NWorkers:                  -1,

			Scenarios: []Scenario{
				{Name: "baseline", LULC: "invest_inputs/clipped_lulc_esa_{year}.tif", Workspace: "{year}"},
				{Name: "noforest", LULC: "invest_inputs/clipped_lulc_esa_{year}_noforest.tif", Workspace: "{year}_noforest"},
			},
		},
		Zonal: []ZonalJob{
			{
				Name:    "sdr",
				Vector:  "borders/gadm_nepal_adm3_esri54030.gpkg",
				IDField: "GID_3",
				Raster:  "invest_sdr/{year}/sed_export.tif",
				Stats:   []string{"mean"},
				Rename:  map[string]string{"mean": "avg_sed_exp"},
				Output:  "invest_sdr/sdr_panel.csv",
			},
			{
				Name:    "sdr_noforest",
				Vector:  "borders/gadm_nepal_adm3_esri54030.gpkg",
				IDField: "GID_3",
				Raster:  "invest_sdr/{year}_noforest/sed_export.tif",
				Stats:   []string{"mean"},
				Rename:  map[string]string{"mean": "avg_sed_exp"},
				Output:  "invest_sdr/sdr_noforest_panel.csv",
			},
			{
				Name:    "population",
				Vector:  "borders/gadm_nepal_adm3.gpkg",
				IDField: "GID_3",
				Raster:  "nasa-gpw/gpw-v4-population-density-rev11_{year}_30_sec_tif/gpw_v4_population_density_rev11_{year}_30_sec.tif",
				Years:   []int{2000, 2005, 2010, 2015, 2020},
				Stats:   []string{"min", "max", "mean", "count"},
				Prefix:  "pop_",
				Output:  "nasa-gpw/nasa-gpw_panel.csv",
			},
		},
		Panel: Panel{
			Borders:      "gadm/gadm_410-levels.gpkg",
			Layer:        "ADM_3",
			IDField:      "GID_3",
			NameField:    "NAME_3",
			CountryField: "COUNTRY",
			Countries:    []string{"Nepal"},

			EMDAT:            "emdat/public_emdat_2024-09-09.xlsx",
			DisasterType:     "Mass movement (wet)",
			DisasterSubtypes: []string{"Landslide (wet)", "Mudslide"},

			Locations:        "pend-gdis-1960-2018-disasterlocations-gpkg/pend-gdis-1960-2018-disasterlocations.gpkg",
			LocationsFilter:  "disastertype = 'landslide' AND level = '3'",
			ExcludeLocations: []string{"Okhaldunga District"},

			Population:       "population",
			Sediment:         "sdr",
			SedimentNoForest: "sdr_noforest",

			Output:      "full_panel.gpkg",
			OutputLayer: "full_panel",
		},
		Regress: Regress{
			Outcome:    "deaths",
			Sediment:   "avg_sed_exp",
			Population: "pop_mean",
			VCov:       "CRV1",
			Output:     "regression.json",
		},
		Preview: Preview{
			Inputs:    []string{"invest_sdr/{year}/sed_export.tif"},
			OutputDir: "previews",
			Sizes:     []uint{128, 256, 512, 1024},
		},
		Chart: Chart{
			Output: "panel_summary.png",
		},
	}
}
