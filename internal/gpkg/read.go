package gpkg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/paulmach/orb/geojson"
)

// Read loads a feature layer. An empty layer name selects the first feature
// table of the GeoPackage. filter is an optional SQL expression over the
// attribute columns, e.g. "COUNTRY = 'Nepal'". Features are ordered by fid.
func Read(ctx context.Context, path, layer, filter string) (*Layer, error) {
	// sql.Open would silently create a missing file
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	if layer == "" {
		err := db.QueryRowContext(ctx,
			`SELECT table_name FROM gpkg_contents WHERE data_type = 'features' ORDER BY rowid LIMIT 1`,
		).Scan(&layer)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: no feature layers: %w", path, ErrLayerNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: list layers: %w", path, err)
		}
	}

	l := &Layer{Name: layer}

	var srsID int32
	err = db.QueryRowContext(ctx,
		`SELECT column_name, geometry_type_name, srs_id FROM gpkg_geometry_columns WHERE table_name = ?`, layer,
	).Scan(&l.GeometryColumn, &l.GeometryType, &srsID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %s: %w", path, layer, ErrLayerNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: read geometry column: %w", path, err)
	}

	if l.SRS, err = readSRS(ctx, db, srsID); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	pk, err := readColumns(ctx, db, l)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	query := fmt.Sprintf("SELECT * FROM %s", quoteIdent(layer))
	if strings.TrimSpace(filter) != "" {
		query += " WHERE " + filter
	}
	if pk != "" {
		query += " ORDER BY " + quoteIdent(pk)
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: query %s: %w", path, layer, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	for rows.Next() {
		values := make([]interface{}, len(names))
		ptrs := make([]interface{}, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("%s: scan %s: %w", path, layer, err)
		}

		f := geojson.NewFeature(nil)
		for i, name := range names {
			switch name {
			case l.GeometryColumn:
				blob, _ := values[i].([]byte)
				if blob == nil {
					continue
				}
				geom, _, err := DecodeGeometry(blob)
				if err != nil {
					return nil, fmt.Errorf("%s: decode geometry: %w", path, err)
				}
				f.Geometry = geom
			case pk:
				f.ID = values[i]
			default:
				f.Properties[name] = normalize(values[i])
			}
		}
		l.Features = append(l.Features, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: read %s: %w", path, layer, err)
	}

	return l, nil
}

// Layers lists the feature layers of a GeoPackage
func Layers(ctx context.Context, path string) ([]string, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT table_name FROM gpkg_contents WHERE data_type = 'features' ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func readSRS(ctx context.Context, db *sql.DB, id int32) (*SRS, error) {
	srs := &SRS{ID: id}
	var definition sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT srs_name, organization, organization_coordsys_id, definition FROM gpkg_spatial_ref_sys WHERE srs_id = ?`, id,
	).Scan(&srs.Name, &srs.Organization, &srs.OrganizationID, &definition)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("srs %d is not defined", id)
	}
	if err != nil {
		return nil, fmt.Errorf("read srs %d: %w", id, err)
	}
	srs.Definition = definition.String
	return srs, nil
}

// readColumns fills the attribute columns of l and returns the primary key
func readColumns(ctx context.Context, db *sql.DB, l *Layer) (string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(l.Name)))
	if err != nil {
		return "", fmt.Errorf("table info %s: %w", l.Name, err)
	}
	defer rows.Close()

	pk := ""
	for rows.Next() {
		var (
			cid      int
			name     string
			typ      string
			notNull  int
			defValue sql.NullString
			isPK     int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defValue, &isPK); err != nil {
			return "", err
		}
		if isPK == 1 && pk == "" {
			pk = name
			continue
		}
		if name == l.GeometryColumn {
			continue
		}
		l.Columns = append(l.Columns, Column{Name: name, Type: affinity(typ)})
	}

	return pk, rows.Err()
}

// affinity maps a declared column type to one of Integer, Real or Text
func affinity(declared string) string {
	t := strings.ToUpper(declared)
	switch {
	case strings.Contains(t, "INT"), t == "BOOLEAN":
		return Integer
	case strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"), strings.Contains(t, "DOUB"):
		return Real
	default:
		return Text
	}
}

func normalize(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
