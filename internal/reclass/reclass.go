// Package reclass builds the no-forest land cover counterfactual and expands
// the SEALS7 biophysical table to ESA land cover codes.
package reclass

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/gep-landslides/slidepanel/internal/config"
	"github.com/gep-landslides/slidepanel/internal/grid"
	"github.com/gep-landslides/slidepanel/internal/utils"
	"github.com/gep-landslides/slidepanel/internal/validate"
	"github.com/sirupsen/logrus"
)

// ReadCorrespondence builds a value map from a land cover correspondence
// table with src_id and dst_label columns. Codes labelled forestLabel map to
// forestCode, every other code maps to itself.
func ReadCorrespondence(r io.Reader, forestLabel string, forestCode int) (map[int]int, error) {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty correspondence table")
	}

	srcCol, labelCol := columnIndex(rows[0], "src_id"), columnIndex(rows[0], "dst_label")
	if srcCol < 0 || labelCol < 0 {
		return nil, fmt.Errorf("correspondence table needs src_id and dst_label columns, got %v", rows[0])
	}

	valueMap := make(map[int]int, len(rows)-1)
	for n, row := range rows[1:] {
		src, err := strconv.Atoi(row[srcCol])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid src_id %q", n+2, row[srcCol])
		}
		if row[labelCol] == forestLabel {
			valueMap[src] = forestCode
		} else {
			valueMap[src] = src
		}
	}
	return valueMap, nil
}

// NoForestPath derives the counterfactual raster path,
// e.g. clipped_lulc_esa_2000.tif becomes clipped_lulc_esa_2000_noforest.tif
func NoForestPath(path, suffix string) string {
	return utils.TrimExt(path) + suffix + utils.Ext(path)
}

// Run reclassifies the clipped land cover raster of every configured year
// and returns the written paths
func Run(ctx context.Context, cfg *config.Config, rw grid.ReadWriter, log logrus.FieldLogger) ([]string, error) {
	start := time.Now()
	rc := cfg.Reclass
	years := cfg.Years.List()
	inputPath := func(year int) string { return cfg.YearPath(rc.Input, year) }

	correspondence := cfg.Path(rc.Correspondence)
	if err := validate.Files(correspondence); err != nil {
		return nil, err
	}
	if err := validate.YearFiles(inputPath, years); err != nil {
		return nil, err
	}

	f, err := os.Open(correspondence)
	if err != nil {
		return nil, err
	}
	valueMap, err := ReadCorrespondence(f, rc.ForestLabel, rc.ForestCode)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", correspondence, err)
	}
	utils.Note(log, "Loaded %d land cover codes from %s", len(valueMap), correspondence)

	var written []string
	for i, year := range years {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		src := inputPath(year)
		dst := NoForestPath(src, rc.Suffix)
		step := utils.Start(log, "Processing %d/%d: %s", i+1, len(years), src)

		g, err := rw.Read(src)
		if err != nil {
			return written, err
		}
		out, err := grid.Reclassify(g, valueMap, rc.ValuesRequired)
		if err != nil {
			return written, fmt.Errorf("%s: %w", src, err)
		}
		if err := rw.Write(dst, out); err != nil {
			return written, fmt.Errorf("write %s: %w", dst, err)
		}

		written = append(written, dst)
		step.Done("Wrote %s", dst)
	}

	utils.Finished(log, start)
	return written, nil
}

func columnIndex(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}
