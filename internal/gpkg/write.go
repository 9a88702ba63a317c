package gpkg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/paulmach/orb"
)

const wgs84WKT = `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]]`

var defaultSRS = []SRS{
	{ID: -1, Name: "Undefined cartesian SRS", Organization: "NONE", OrganizationID: -1, Definition: "undefined"},
	{ID: 0, Name: "Undefined geographic SRS", Organization: "NONE", OrganizationID: 0, Definition: "undefined"},
	{ID: 4326, Name: "WGS 84 geodetic", Organization: "EPSG", OrganizationID: 4326, Definition: wgs84WKT},
}

const schema = `
PRAGMA application_id = 1196444487;
PRAGMA user_version = 10200;
CREATE TABLE gpkg_spatial_ref_sys (
	srs_name TEXT NOT NULL,
	srs_id INTEGER NOT NULL PRIMARY KEY,
	organization TEXT NOT NULL,
	organization_coordsys_id INTEGER NOT NULL,
	definition TEXT NOT NULL,
	description TEXT
);
CREATE TABLE gpkg_contents (
	table_name TEXT NOT NULL PRIMARY KEY,
	data_type TEXT NOT NULL,
	identifier TEXT UNIQUE,
	description TEXT DEFAULT '',
	last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	min_x DOUBLE, min_y DOUBLE, max_x DOUBLE, max_y DOUBLE,
	srs_id INTEGER,
	CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
);
CREATE TABLE gpkg_geometry_columns (
	table_name TEXT NOT NULL,
	column_name TEXT NOT NULL,
	geometry_type_name TEXT NOT NULL,
	srs_id INTEGER NOT NULL,
	z TINYINT NOT NULL,
	m TINYINT NOT NULL,
	CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name),
	CONSTRAINT fk_gc_tn FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name),
	CONSTRAINT fk_gc_srs FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys (srs_id)
);
`

// Write creates a GeoPackage at path holding l, replacing any existing file.
// Features with an integer ID keep it as fid. NaN values are stored as NULL.
func Write(ctx context.Context, path string, l *Layer) (err error) {
	if l.Name == "" {
		return errors.New("layer needs a name")
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("replace %s: %w", path, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create geopackage schema: %w", err)
	}

	srs := SRS{ID: -1, Name: "Undefined cartesian SRS", Organization: "NONE", OrganizationID: -1, Definition: "undefined"}
	if l.SRS != nil {
		srs = *l.SRS
	}
	if err := insertSRS(ctx, db, srs); err != nil {
		return err
	}

	geomColumn := l.GeometryColumn
	if geomColumn == "" {
		geomColumn = "geom"
	}
	geomType := l.GeometryType
	if geomType == "" {
		geomType = layerGeometryType(l)
	}

	defs := []string{
		`"fid" INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL`,
		fmt.Sprintf("%s %s", quoteIdent(geomColumn), geomType),
	}
	for _, c := range l.Columns {
		defs = append(defs, fmt.Sprintf("%s %s", quoteIdent(c.Name), c.Type))
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(l.Name), strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("create table %s: %w", l.Name, err)
	}

	var minX, minY, maxX, maxY interface{}
	if b, ok := layerBound(l); ok {
		minX, minY, maxX, maxY = b.Min[0], b.Min[1], b.Max[0], b.Max[1]
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO gpkg_contents (table_name, data_type, identifier, min_x, min_y, max_x, max_y, srs_id) VALUES (?, 'features', ?, ?, ?, ?, ?, ?)`,
		l.Name, l.Name, minX, minY, maxX, maxY, srs.ID,
	); err != nil {
		return fmt.Errorf("register %s: %w", l.Name, err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO gpkg_geometry_columns (table_name, column_name, geometry_type_name, srs_id, z, m) VALUES (?, ?, ?, ?, 0, 0)`,
		l.Name, geomColumn, geomType, srs.ID,
	); err != nil {
		return fmt.Errorf("register geometry column of %s: %w", l.Name, err)
	}

	return insertFeatures(ctx, db, l, geomColumn, srs.ID)
}

func insertSRS(ctx context.Context, db *sql.DB, layerSRS SRS) error {
	rows := append([]SRS{}, defaultSRS...)
	known := false
	for _, s := range rows {
		if s.ID == layerSRS.ID {
			known = true
		}
	}
	if !known {
		rows = append(rows, layerSRS)
	}

	for _, s := range rows {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO gpkg_spatial_ref_sys (srs_name, srs_id, organization, organization_coordsys_id, definition) VALUES (?, ?, ?, ?, ?)`,
			s.Name, s.ID, s.Organization, s.OrganizationID, s.Definition,
		); err != nil {
			return fmt.Errorf("insert srs %d: %w", s.ID, err)
		}
	}
	return nil
}

func insertFeatures(ctx context.Context, db *sql.DB, l *Layer, geomColumn string, srsID int32) error {
	names := []string{`"fid"`, quoteIdent(geomColumn)}
	for _, c := range l.Columns {
		names = append(names, quoteIdent(c.Name))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(l.Name), strings.Join(names, ", "), placeholders))
	if err != nil {
		return fmt.Errorf("prepare insert into %s: %w", l.Name, err)
	}
	defer stmt.Close()

	for i, f := range l.Features {
		blob, err := EncodeGeometry(f.Geometry, srsID)
		if err != nil {
			return fmt.Errorf("feature %d: encode geometry: %w", i, err)
		}

		var fid interface{}
		if id, ok := AsInt(f.ID); ok {
			fid = id
		}

		args := []interface{}{fid, blob}
		for _, c := range l.Columns {
			args = append(args, sqlValue(f.Properties[c.Name]))
		}

		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("feature %d: insert: %w", i, err)
		}
	}

	return tx.Commit()
}

func sqlValue(v interface{}) interface{} {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
	case float32:
		if math.IsNaN(float64(t)) {
			return nil
		}
	case bool:
		if t {
			return int64(1)
		}
		return int64(0)
	}
	return v
}

func layerGeometryType(l *Layer) string {
	name := ""
	for _, f := range l.Features {
		if f.Geometry == nil {
			continue
		}
		t := geometryTypeName(f.Geometry)
		if name != "" && name != t {
			return "GEOMETRY"
		}
		name = t
	}
	if name == "" {
		return "GEOMETRY"
	}
	return name
}

func layerBound(l *Layer) (orb.Bound, bool) {
	var b orb.Bound
	found := false
	for _, f := range l.Features {
		if f.Geometry == nil {
			continue
		}
		if !found {
			b = f.Geometry.Bound()
			found = true
			continue
		}
		b = b.Union(f.Geometry.Bound())
	}
	return b, found
}
