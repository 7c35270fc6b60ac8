package refdata

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
	_ "github.com/glebarez/sqlite"
	geojson "github.com/paulmach/go.geojson"

	perrors "github.com/ironsheep/plotting-mcp/internal/errors"
)

// Loader reads a dataset from backing storage.
type Loader interface {
	Load(ctx context.Context, key Key) (*Dataset, error)
}

// Source file suffixes, in lookup order.
var sourceSuffixes = []string{".geojson", ".geojson.br", ".json", ".sqlite", ".db"}

// DefaultMaxBytes caps the decoded size of a single dataset file.
const DefaultMaxBytes = 512 << 20

// DirLoader loads datasets from a directory of "<name>-<tier>.<ext>" files:
// GeoJSON (optionally brotli compressed) or SQLite with a
// features(name TEXT, wkt TEXT) table.
type DirLoader struct {
	dir      string
	maxBytes int64
}

// NewDirLoader creates a loader rooted at dir.
func NewDirLoader(dir string) *DirLoader {
	return &DirLoader{dir: dir, maxBytes: DefaultMaxBytes}
}

// Dir returns the directory the loader reads.
func (l *DirLoader) Dir() string {
	return l.dir
}

// Locate returns the path of the first existing source file for key.
func (l *DirLoader) Locate(key Key) (string, bool) {
	for _, suffix := range sourceSuffixes {
		path := filepath.Join(l.dir, key.String()+suffix)
		if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() {
			return path, true
		}
	}
	return "", false
}

// Provisioned lists the catalog keys that have a source file. The error is
// non-nil only when the directory itself cannot be read.
func (l *DirLoader) Provisioned() ([]Key, error) {
	if _, err := os.ReadDir(l.dir); err != nil {
		return nil, fmt.Errorf("reading reference data dir: %w", err)
	}
	var keys []Key
	for _, key := range SupportedKeys() {
		if _, ok := l.Locate(key); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Load reads and decodes the dataset for key. Missing or unreadable files
// are data_unavailable errors naming the key.
func (l *DirLoader) Load(ctx context.Context, key Key) (*Dataset, error) {
	const op = "refdata.load"

	path, ok := l.Locate(key)
	if !ok {
		return nil, perrors.Newf(perrors.KindDataUnavailable, op,
			"reference dataset %q not found in %s", key.String(), l.dir)
	}

	var (
		features []Feature
		version  string
		err      error
	)
	switch {
	case strings.HasSuffix(path, ".sqlite") || strings.HasSuffix(path, ".db"):
		features, version, err = l.loadSQLite(ctx, path)
	case strings.HasSuffix(path, ".br"):
		features, version, err = l.loadGeoJSON(path, true)
	default:
		features, version, err = l.loadGeoJSON(path, false)
	}
	if err != nil {
		return nil, perrors.WrapKind(err, perrors.KindDataUnavailable, op,
			fmt.Sprintf("reference dataset %q is unreadable", key.String()))
	}

	return NewDataset(key, version, path, features), nil
}

func (l *DirLoader) loadGeoJSON(path string, compressed bool) ([]Feature, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	version := contentVersion(raw)

	data := raw
	if compressed {
		r := io.LimitReader(brotli.NewReader(bytes.NewReader(raw)), l.maxBytes+1)
		if data, err = io.ReadAll(r); err != nil {
			return nil, "", fmt.Errorf("decompressing %s: %w", filepath.Base(path), err)
		}
	}
	if int64(len(data)) > l.maxBytes {
		return nil, "", fmt.Errorf("%s exceeds %d bytes", filepath.Base(path), l.maxBytes)
	}

	features, err := decodeGeoJSON(data)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return features, version, nil
}

func (l *DirLoader) loadSQLite(ctx context.Context, path string) ([]Feature, string, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, "", fmt.Errorf("opening %s: %w", filepath.Base(path), err)
	}
	defer db.Close()

	_, _ = db.ExecContext(ctx, "PRAGMA query_only = ON")

	rows, err := db.QueryContext(ctx, "SELECT name, wkt FROM features ORDER BY rowid")
	if err != nil {
		return nil, "", fmt.Errorf("querying features: %w", err)
	}
	defer rows.Close()

	var features []Feature
	for n := 0; rows.Next(); n++ {
		var name sql.NullString
		var wkt string
		if err := rows.Scan(&name, &wkt); err != nil {
			return nil, "", fmt.Errorf("scanning feature %d: %w", n, err)
		}
		f, err := parseWKT(wkt)
		if err != nil {
			return nil, "", fmt.Errorf("feature %d (%s): %w", n, name.String, err)
		}
		f.Name = name.String
		features = append(features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("reading features: %w", err)
	}

	var version string
	if err := db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = 'version'").Scan(&version); err != nil || version == "" {
		version, err = fileVersion(path)
		if err != nil {
			return nil, "", err
		}
	}
	return features, version, nil
}

func decodeGeoJSON(data []byte) ([]Feature, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decoding geojson: %w", err)
	}

	features := make([]Feature, 0, len(fc.Features))
	for _, gf := range fc.Features {
		if gf == nil || gf.Geometry == nil {
			continue
		}
		f := Feature{}
		f.Name, f.Aliases = featureNames(gf.Properties)
		appendGeometry(&f, gf.Geometry)
		features = append(features, f)
	}
	return features, nil
}

func appendGeometry(f *Feature, g *geojson.Geometry) {
	switch {
	case g.IsPoint():
		if len(g.Point) >= 2 {
			f.Points = append(f.Points, [2]float64{g.Point[0], g.Point[1]})
		}
	case g.IsMultiPoint():
		f.Points = append(f.Points, toPairs(g.MultiPoint)...)
	case g.IsLineString():
		f.Lines = append(f.Lines, toPairs(g.LineString))
	case g.IsMultiLineString():
		for _, line := range g.MultiLineString {
			f.Lines = append(f.Lines, toPairs(line))
		}
	case g.IsPolygon():
		f.Polygons = append(f.Polygons, toRings(g.Polygon))
	case g.IsMultiPolygon():
		for _, poly := range g.MultiPolygon {
			f.Polygons = append(f.Polygons, toRings(poly))
		}
	case g.IsCollection():
		for _, sub := range g.Geometries {
			if sub != nil {
				appendGeometry(f, sub)
			}
		}
	}
}

func toPairs(coords [][]float64) [][2]float64 {
	out := make([][2]float64, 0, len(coords))
	for _, c := range coords {
		if len(c) >= 2 {
			out = append(out, [2]float64{c[0], c[1]})
		}
	}
	return out
}

func toRings(rings [][][]float64) [][][2]float64 {
	out := make([][][2]float64, 0, len(rings))
	for _, r := range rings {
		out = append(out, toPairs(r))
	}
	return out
}

// Property keys holding the display name and alternative identifiers,
// following Natural Earth conventions.
var (
	nameProps  = []string{"name", "admin", "name_long", "sovereignt"}
	aliasProps = []string{"admin", "name_long", "formal_en", "sovereignt", "iso_a3", "iso_a2", "adm0_a3", "abbrev", "postal"}
)

func featureNames(props map[string]interface{}) (string, []string) {
	if len(props) == 0 {
		return "", nil
	}
	lower := make(map[string]string, len(props))
	for k, v := range props {
		if s, ok := v.(string); ok {
			s = strings.TrimSpace(s)
			if s != "" && s != "-99" {
				lower[strings.ToLower(k)] = s
			}
		}
	}

	var name string
	for _, k := range nameProps {
		if v, ok := lower[k]; ok {
			name = v
			break
		}
	}

	var aliases []string
	seen := map[string]bool{strings.ToLower(name): true}
	for _, k := range aliasProps {
		v, ok := lower[k]
		if !ok || seen[strings.ToLower(v)] {
			continue
		}
		seen[strings.ToLower(v)] = true
		aliases = append(aliases, v)
	}
	return name, aliases
}

func contentVersion(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:6])
}

func fileVersion(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", filepath.Base(path), err)
	}
	return hex.EncodeToString(h.Sum(nil)[:6]), nil
}
