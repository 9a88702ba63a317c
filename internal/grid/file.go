package grid

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
)

// ASCIIFile reads and writes Esri ASCII rasters, gzip compressed when the
// path ends in .gz
type ASCIIFile struct{}

// IsASCIIPath reports whether path names an Esri ASCII raster
func IsASCIIPath(path string) bool {
	p := strings.ToLower(path)
	return strings.HasSuffix(p, ".asc") || strings.HasSuffix(p, ".asc.gz")
}

// Read raster from given path
func (ASCIIFile) Read(path string) (*Grid, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var r io.Reader = file
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	g, err := ParseASCII(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// Write raster to given path
func (ASCIIFile) Write(path string, g *Grid) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if !strings.HasSuffix(strings.ToLower(path), ".gz") {
		return WriteASCII(file, g)
	}

	gz := gzip.NewWriter(file)
	if err := WriteASCII(gz, g); err != nil {
		return err
	}
	return gz.Close()
}
