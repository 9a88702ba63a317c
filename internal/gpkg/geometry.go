package gpkg

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

/*
	GeoPackage geometry blobs are standard WKB prefixed with a small header:

	  magic "GP" | version | flags | srs_id (int32) | envelope (0, 4, 6 or 8 doubles)

	flags bit 0 is the byte order of srs_id and envelope, bits 1-3 the envelope
	indicator, bit 4 marks an empty geometry and bit 5 an extended geometry type.
*/

var envelopeSizes = map[byte]int{0: 0, 1: 32, 2: 48, 3: 48, 4: 64}

// DecodeGeometry decodes a GeoPackage geometry blob. Empty geometries decode
// to nil.
func DecodeGeometry(blob []byte) (orb.Geometry, int32, error) {
	if len(blob) < 8 || blob[0] != 'G' || blob[1] != 'P' {
		return nil, 0, errors.New("not a geopackage geometry blob")
	}

	flags := blob[3]
	if flags&0x20 != 0 {
		return nil, 0, errors.New("extended geopackage geometries are not supported")
	}

	var order binary.ByteOrder = binary.BigEndian
	if flags&0x01 != 0 {
		order = binary.LittleEndian
	}
	srsID := int32(order.Uint32(blob[4:8]))

	envSize, ok := envelopeSizes[(flags>>1)&0x07]
	if !ok {
		return nil, 0, fmt.Errorf("invalid envelope indicator %d", (flags>>1)&0x07)
	}
	if len(blob) < 8+envSize {
		return nil, 0, errors.New("truncated geopackage geometry header")
	}

	if flags&0x10 != 0 {
		return nil, srsID, nil
	}

	geom, err := wkb.Unmarshal(blob[8+envSize:])
	if err != nil {
		return nil, 0, err
	}
	return geom, srsID, nil
}

// EncodeGeometry encodes geom as a little endian GeoPackage geometry blob with
// an xy envelope. A nil geometry encodes to nil (SQL NULL).
func EncodeGeometry(geom orb.Geometry, srsID int32) ([]byte, error) {
	if geom == nil {
		return nil, nil
	}

	body, err := wkb.Marshal(geom, binary.LittleEndian)
	if err != nil {
		return nil, err
	}

	buf := bytes.NewBuffer(make([]byte, 0, 40+len(body)))
	buf.Write([]byte{'G', 'P', 0, 0x03})

	header := make([]byte, 36)
	binary.LittleEndian.PutUint32(header[0:4], uint32(srsID))
	b := geom.Bound()
	for i, v := range []float64{b.Min[0], b.Max[0], b.Min[1], b.Max[1]} {
		binary.LittleEndian.PutUint64(header[4+i*8:], math.Float64bits(v))
	}
	buf.Write(header)
	buf.Write(body)

	return buf.Bytes(), nil
}

// geometryTypeName returns the gpkg_geometry_columns type name for geom
func geometryTypeName(geom orb.Geometry) string {
	switch geom.(type) {
	case orb.Point:
		return "POINT"
	case orb.LineString:
		return "LINESTRING"
	case orb.Polygon, orb.Ring:
		return "POLYGON"
	case orb.MultiPoint:
		return "MULTIPOINT"
	case orb.MultiLineString:
		return "MULTILINESTRING"
	case orb.MultiPolygon:
		return "MULTIPOLYGON"
	default:
		return "GEOMETRY"
	}
}
