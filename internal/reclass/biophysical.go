package reclass

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/gep-landslides/slidepanel/internal/config"
	"github.com/gep-landslides/slidepanel/internal/utils"
	"github.com/gep-landslides/slidepanel/internal/validate"
	"github.com/sirupsen/logrus"
)

// OriginalCodeColumn is appended to expanded biophysical tables
const OriginalCodeColumn = "original_lucode"

// ExpandBiophysical copies every row of a biophysical table once per code
// its lucode expands to, appending the code as original_lucode. Rows whose
// lucode has no expansion are dropped. Returns the number of rows written.
func ExpandBiophysical(r io.Reader, w io.Writer, expansion map[int][]int) (int, error) {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("empty biophysical table")
	}

	lucodeCol := columnIndex(rows[0], "lucode")
	if lucodeCol < 0 {
		return 0, fmt.Errorf("biophysical table has no lucode column")
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(append(append([]string{}, rows[0]...), OriginalCodeColumn)); err != nil {
		return 0, err
	}

	n := 0
	for i, row := range rows[1:] {
		lucode, err := strconv.Atoi(row[lucodeCol])
		if err != nil {
			return n, fmt.Errorf("line %d: invalid lucode %q", i+2, row[lucodeCol])
		}
		for _, code := range expansion[lucode] {
			out := append(append([]string{}, row...), strconv.Itoa(code))
			if err := cw.Write(out); err != nil {
				return n, err
			}
			n++
		}
	}

	cw.Flush()
	return n, cw.Error()
}

// RunBiophysical expands the configured biophysical table
func RunBiophysical(cfg *config.Config, log logrus.FieldLogger) (err error) {
	in, out := cfg.Path(cfg.Biophysical.Input), cfg.Path(cfg.Biophysical.Output)
	if err := validate.Files(in); err != nil {
		return err
	}
	if len(cfg.Biophysical.Expansion) == 0 {
		return fmt.Errorf("no biophysical expansion configured")
	}

	codes := make([]int, 0, len(cfg.Biophysical.Expansion))
	for c := range cfg.Biophysical.Expansion {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	log.WithField("codes", codes).Debug("expanding biophysical table")

	step := utils.Start(log, "Expanding biophysical table %s", in)

	src, err := os.Open(in)
	if err != nil {
		return err
	}
	defer src.Close()

	if err := utils.EnsureParent(out); err != nil {
		return err
	}
	dst, err := os.Create(out)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := dst.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	n, err := ExpandBiophysical(src, dst, cfg.Biophysical.Expansion)
	if err != nil {
		return fmt.Errorf("%s: %w", in, err)
	}

	step.Done("Wrote %d rows to %s", n, out)
	return nil
}
