package grid

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

type asciiHeader struct {
	ncols, nrows     int
	xcenter, ycenter *float64
	xcorner, ycorner *float64
	cellSize         float64
	noData           *float64
}

// ParseASCII parses an Esri ASCII raster
func ParseASCII(reader io.Reader) (*Grid, error) {

	header := asciiHeader{}
	remainingHeaders := []string{"NCOLS", "NROWS", "XLLCENTER", "XLLCORNER", "YLLCENTER", "YLLCORNER", "CELLSIZE", "NODATA_VALUE"}
	stillIsHeader := true
	rowIndex := 0
	var g *Grid

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		// first field as upper case
		keyword := strings.ToUpper(fields[0])

		if stillIsHeader && contains(remainingHeaders, keyword) {
			remainingHeaders = remove(remainingHeaders, keyword)

			// there can either be corner or center not both
			if keyword == "XLLCENTER" || keyword == "YLLCENTER" {
				remainingHeaders = remove(remainingHeaders, "XLLCORNER")
				remainingHeaders = remove(remainingHeaders, "YLLCORNER")
			}
			if keyword == "XLLCORNER" || keyword == "YLLCORNER" {
				remainingHeaders = remove(remainingHeaders, "XLLCENTER")
				remainingHeaders = remove(remainingHeaders, "YLLCENTER")
			}

			if err := parseHeaderLine(fields, &header); err != nil {
				return nil, err
			}
			continue
		}

		if stillIsHeader { // this is the first data line
			// NODATA_VALUE is optional
			remainingHeaders = remove(remainingHeaders, "NODATA_VALUE")

			if len(remainingHeaders) > 0 {
				return nil, fmt.Errorf("raster doesn't include all mandatory headers, missing %s", strings.Join(remainingHeaders, ", "))
			}

			stillIsHeader = false
			g = header.grid()
		}

		if err := parseDataLine(fields, g.Data[rowIndex*g.Cols:(rowIndex+1)*g.Cols]); err != nil {
			return nil, fmt.Errorf("row %d: %w", rowIndex+1, err)
		}
		rowIndex++

		if rowIndex >= g.Rows {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if g == nil {
		return nil, fmt.Errorf("raster has no data rows")
	}
	if rowIndex < g.Rows {
		return nil, fmt.Errorf("raster has %d data rows, expected %d", rowIndex, g.Rows)
	}

	return g, nil
}

func (h asciiHeader) grid() *Grid {
	var xll, yll float64
	if h.xcorner != nil {
		xll = *h.xcorner
	} else {
		xll = *h.xcenter - h.cellSize/2
	}
	if h.ycorner != nil {
		yll = *h.ycorner
	} else {
		yll = *h.ycenter - h.cellSize/2
	}

	top := yll + float64(h.nrows)*h.cellSize
	g := New(h.ncols, h.nrows, [6]float64{xll, h.cellSize, 0, top, 0, -h.cellSize}, "Float32")
	if h.noData != nil {
		g.NoData = *h.noData
		g.HasNoData = true
	}
	return g
}

func parseHeaderLine(fields []string, header *asciiHeader) error {
	if len(fields) != 2 {
		return fmt.Errorf("header line must have exactly two fields")
	}

	keyword := strings.ToUpper(fields[0])
	switch keyword {
	case "NCOLS", "NROWS":
		i, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return err
		}
		if keyword == "NCOLS" {
			header.ncols = int(i)
		} else {
			header.nrows = int(i)
		}
	case "XLLCENTER", "XLLCORNER", "YLLCENTER", "YLLCORNER", "NODATA_VALUE":
		f, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return err
		}
		switch keyword {
		case "XLLCENTER":
			header.xcenter = &f
		case "XLLCORNER":
			header.xcorner = &f
		case "YLLCENTER":
			header.ycenter = &f
		case "YLLCORNER":
			header.ycorner = &f
		case "NODATA_VALUE":
			header.noData = &f
		}
	case "CELLSIZE":
		f, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return err
		}
		if f <= 0.0 {
			return fmt.Errorf("CELLSIZE must be greater than 0")
		}
		header.cellSize = f

	default:
		return fmt.Errorf("unknown header keyword: %s", fields[0])
	}

	return nil
}

func parseDataLine(fields []string, row []float64) error {
	if len(fields) < len(row) {
		return fmt.Errorf("data row is too short")
	}

	for i := range row {
		f, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return err
		}
		row[i] = f
	}

	return nil
}

// WriteASCII encodes g as an Esri ASCII raster. Only north-up grids with
// square pixels can be represented.
func WriteASCII(w io.Writer, g *Grid) error {
	if err := g.Validate(); err != nil {
		return err
	}
	if g.Transform[2] != 0 || g.Transform[4] != 0 || g.Transform[1] != -g.Transform[5] {
		return fmt.Errorf("ascii rasters need north-up square pixels")
	}

	bw := bufio.NewWriter(w)
	cellSize := g.Transform[1]
	yll := g.Transform[3] + float64(g.Rows)*g.Transform[5]

	fmt.Fprintf(bw, "ncols %d\nnrows %d\n", g.Cols, g.Rows)
	fmt.Fprintf(bw, "xllcorner %s\nyllcorner %s\n", formatValue(g.Transform[0]), formatValue(yll))
	fmt.Fprintf(bw, "cellsize %s\n", formatValue(cellSize))
	if g.HasNoData {
		fmt.Fprintf(bw, "NODATA_value %s\n", formatValue(g.NoData))
	}

	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			if col > 0 {
				bw.WriteByte(' ')
			}
			v := g.At(col, row)
			if math.IsNaN(v) && g.HasNoData {
				v = g.NoData
			}
			bw.WriteString(formatValue(v))
		}
		bw.WriteByte('\n')
	}

	return bw.Flush()
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// contains checks whether an array contains a string
func contains(array []string, element string) bool {
	for _, curElement := range array {
		if curElement == element {
			return true
		}
	}
	return false
}

// remove removes a string from an array
func remove(arr []string, element string) []string {
	var remaining []string

	for i := 0; i < len(arr); i++ {
		if element != arr[i] {
			remaining = append(remaining, arr[i])
		}
	}

	return remaining
}
