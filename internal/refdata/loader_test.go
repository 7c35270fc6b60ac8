package refdata

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"

	perrors "github.com/ironsheep/plotting-mcp/internal/errors"
)

const countriesGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"NAME": "France", "ISO_A3": "FRA", "ADMIN": "France"},
      "geometry": {"type": "Polygon", "coordinates": [[[-5, 42], [8, 42], [8, 51], [-5, 51], [-5, 42]]]}
    },
    {
      "type": "Feature",
      "properties": {"name": "Japan", "iso_a3": "JPN"},
      "geometry": {"type": "MultiPolygon", "coordinates": [
        [[[130, 31], [132, 31], [132, 34], [130, 31]]],
        [[[139, 35], [141, 35], [141, 41], [139, 35]]]
      ]}
    },
    {
      "type": "Feature",
      "properties": {"name": "Nowhere", "iso_a3": "-99"},
      "geometry": null
    }
  ]
}`

const coastlineGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {}, "geometry": {"type": "LineString", "coordinates": [[-10, 0], [0, 5], [10, 0]]}},
    {"type": "Feature", "properties": {}, "geometry": {"type": "MultiLineString", "coordinates": [[[20, 20], [21, 21]], [[30, 30], [31, 31]]]}}
  ]
}`

// writeFixture writes data to dir/name and returns the path.
func writeFixture(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	return path
}

func brotliBytes(t *testing.T, data string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	if _, err := w.Write([]byte(data)); err != nil {
		t.Fatalf("brotli write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("brotli close: %v", err)
	}
	return buf.Bytes()
}

func writeSQLiteFixture(t *testing.T, path string, rows [][2]string, version string) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	stmts := []string{"CREATE TABLE features (name TEXT, wkt TEXT)"}
	if version != "" {
		stmts = append(stmts,
			"CREATE TABLE meta (key TEXT PRIMARY KEY, value TEXT)",
			"INSERT INTO meta (key, value) VALUES ('version', '"+version+"')")
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
	for _, r := range rows {
		if _, err := db.Exec("INSERT INTO features (name, wkt) VALUES (?, ?)", r[0], r[1]); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
}

func TestDirLoaderGeoJSON(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "countries-low.geojson", []byte(countriesGeoJSON))

	ds, err := NewDirLoader(dir).Load(context.Background(), MustParseKey("countries-low"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if ds.Len() != 2 {
		t.Fatalf("expected 2 features (null geometry skipped), got %d", ds.Len())
	}
	if ds.Version == "" {
		t.Error("expected a content version")
	}
	if ds.BBox().MinX != -5 || ds.BBox().MaxX != 141 || ds.BBox().MinY != 31 || ds.BBox().MaxY != 51 {
		t.Errorf("unexpected bbox %+v", ds.BBox())
	}

	for _, name := range []string{"France", "fra", "JAPAN", "jpn"} {
		if _, ok := ds.Lookup(name); !ok {
			t.Errorf("Lookup(%q) found nothing", name)
		}
	}
	if _, ok := ds.Lookup("-99"); ok {
		t.Error("placeholder codes must not be indexed")
	}
	jp, _ := ds.Lookup("Japan")
	if len(jp.Polygons) != 2 {
		t.Errorf("expected 2 polygons for Japan, got %d", len(jp.Polygons))
	}
}

func TestDirLoaderLines(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "coastline-low.json", []byte(coastlineGeoJSON))

	ds, err := NewDirLoader(dir).Load(context.Background(), MustParseKey("coastline-low"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	_, lines, polygons := ds.Counts()
	if lines != 3 || polygons != 0 {
		t.Errorf("expected 3 lines and no polygons, got %d and %d", lines, polygons)
	}
}

func TestDirLoaderBrotli(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "countries-medium.geojson.br", brotliBytes(t, countriesGeoJSON))

	ds, err := NewDirLoader(dir).Load(context.Background(), MustParseKey("countries-medium"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if ds.Len() != 2 {
		t.Errorf("expected 2 features, got %d", ds.Len())
	}
	if !strings.HasSuffix(ds.Source, ".geojson.br") {
		t.Errorf("unexpected source %s", ds.Source)
	}
}

func TestDirLoaderSQLite(t *testing.T) {
	dir := t.TempDir()
	writeSQLiteFixture(t, filepath.Join(dir, "lakes-high.sqlite"), [][2]string{
		{"Lake Superior", "POLYGON ((-92 46, -84 46, -84 49, -92 49, -92 46))"},
		{"Lake Victoria", "POLYGON ((31.5 -3, 34 -3, 34 0.5, 31.5 0.5, 31.5 -3))"},
	}, "ne-5.1.2")

	ds, err := NewDirLoader(dir).Load(context.Background(), MustParseKey("lakes-high"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if ds.Version != "ne-5.1.2" {
		t.Errorf("expected meta version, got %q", ds.Version)
	}
	if _, ok := ds.Lookup("lake victoria"); !ok {
		t.Error("expected Lake Victoria to be indexed")
	}
}

func TestDirLoaderSQLiteWithoutMeta(t *testing.T) {
	dir := t.TempDir()
	writeSQLiteFixture(t, filepath.Join(dir, "rivers-low.db"), [][2]string{
		{"Nile", "LINESTRING (31 30, 32 25, 33 15)"},
	}, "")

	ds, err := NewDirLoader(dir).Load(context.Background(), MustParseKey("rivers-low"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(ds.Version) != 12 {
		t.Errorf("expected a 12 character hash version, got %q", ds.Version)
	}
}

func TestDirLoaderMissing(t *testing.T) {
	_, err := NewDirLoader(t.TempDir()).Load(context.Background(), MustParseKey("coastline-high"))
	if err == nil {
		t.Fatal("expected an error for a missing dataset")
	}
	if !errors.Is(err, perrors.ErrDataUnavailable) {
		t.Errorf("expected data_unavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "coastline-high") {
		t.Errorf("expected error to name the key, got %v", err)
	}
}

func TestDirLoaderCorrupt(t *testing.T) {
	tests := []struct {
		name string
		file string
		data []byte
	}{
		{name: "bad json", file: "land-low.geojson", data: []byte(`{"type": "FeatureCollection", "features": [`)},
		{name: "bad brotli", file: "land-low.geojson.br", data: []byte("not brotli at all")},
		{name: "bad sqlite", file: "land-low.sqlite", data: []byte("not a database")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFixture(t, dir, tt.file, tt.data)
			_, err := NewDirLoader(dir).Load(context.Background(), MustParseKey("land-low"))
			if !errors.Is(err, perrors.ErrDataUnavailable) {
				t.Fatalf("expected data_unavailable, got %v", err)
			}
			if !strings.Contains(err.Error(), "land-low") {
				t.Errorf("expected error to name the key, got %v", err)
			}
		})
	}
}

func TestDirLoaderBadWKT(t *testing.T) {
	dir := t.TempDir()
	writeSQLiteFixture(t, filepath.Join(dir, "land-low.sqlite"), [][2]string{
		{"Broken", "POLYGON ((0 0, 1 1"},
	}, "")

	_, err := NewDirLoader(dir).Load(context.Background(), MustParseKey("land-low"))
	if !errors.Is(err, perrors.ErrDataUnavailable) {
		t.Fatalf("expected data_unavailable, got %v", err)
	}
}

func TestDirLoaderProvisioned(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "coastline-low.geojson", []byte(coastlineGeoJSON))
	writeFixture(t, dir, "countries-low.geojson.br", brotliBytes(t, countriesGeoJSON))
	writeFixture(t, dir, "README.txt", []byte("ignored"))

	keys, err := NewDirLoader(dir).Provisioned()
	if err != nil {
		t.Fatalf("Provisioned failed: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 provisioned keys, got %v", keys)
	}

	if _, err := NewDirLoader(filepath.Join(dir, "absent")).Provisioned(); err == nil {
		t.Error("expected an error for a missing directory")
	}
}

func TestLocatePrefersGeoJSON(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "land-low.sqlite", []byte("x"))
	writeFixture(t, dir, "land-low.geojson", []byte(coastlineGeoJSON))

	path, ok := NewDirLoader(dir).Locate(MustParseKey("land-low"))
	if !ok || filepath.Base(path) != "land-low.geojson" {
		t.Errorf("expected land-low.geojson, got %q (%v)", path, ok)
	}
}
