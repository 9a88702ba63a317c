// Package gpkg reads and writes GeoPackage feature layers. A GeoPackage is a
// SQLite database, accessed here through the pure Go modernc driver, holding
// WKB geometries behind a small header.
package gpkg

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb/geojson"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// ErrLayerNotFound is returned when a requested feature layer does not exist
var ErrLayerNotFound = errors.New("layer not found")

// Column types understood by Write
const (
	Integer = "INTEGER"
	Real    = "REAL"
	Text    = "TEXT"
)

// Column describes one attribute column of a layer
type Column struct {
	Name string
	Type string
}

// SRS is a row of gpkg_spatial_ref_sys
type SRS struct {
	ID             int32
	Name           string
	Organization   string
	OrganizationID int32
	Definition     string
}

// Layer is a feature table. Feature IDs hold the layer's fid as int64 and
// Properties the attribute columns; SQL NULL is a nil property value.
type Layer struct {
	Name           string
	GeometryColumn string
	GeometryType   string
	SRS            *SRS
	Columns        []Column
	Features       []*geojson.Feature
}

// FID returns a feature's fid
func FID(f *geojson.Feature) int64 {
	id, _ := AsInt(f.ID)
	return id
}

// AsString converts an attribute value to a string. nil is "".
func AsString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

// AsFloat converts a numeric attribute value. ok is false for NULL and
// non-numeric values.
func AsFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, !math.IsNaN(t)
	case float32:
		return float64(t), !math.IsNaN(float64(t))
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	default:
		return 0, false
	}
}

// AsInt converts an integral attribute value
func AsInt(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case float64:
		if t != math.Trunc(t) || math.IsNaN(t) {
			return 0, false
		}
		return int64(t), true
	default:
		return 0, false
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
