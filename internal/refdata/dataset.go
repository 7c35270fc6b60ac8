package refdata

import (
	"strings"
	"time"
)

// BBox is a bounding box in longitude/latitude degrees.
type BBox struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

// Empty reports whether the box has never been extended.
func (b BBox) Empty() bool {
	return b.MinX > b.MaxX || b.MinY > b.MaxY
}

func emptyBBox() BBox {
	return BBox{MinX: 1, MinY: 1, MaxX: -1, MaxY: -1}
}

func (b *BBox) extend(p [2]float64) {
	if b.Empty() {
		*b = BBox{MinX: p[0], MinY: p[1], MaxX: p[0], MaxY: p[1]}
		return
	}
	if p[0] < b.MinX {
		b.MinX = p[0]
	}
	if p[1] < b.MinY {
		b.MinY = p[1]
	}
	if p[0] > b.MaxX {
		b.MaxX = p[0]
	}
	if p[1] > b.MaxY {
		b.MaxY = p[1]
	}
}

// Feature is one named geometry of a dataset.
type Feature struct {
	// Name is the primary display name ("France").
	Name string
	// Aliases are alternative identifiers (ISO codes, admin names).
	Aliases []string

	Points   [][2]float64
	Lines    [][][2]float64
	Polygons [][][][2]float64 // first ring outer, following rings holes
}

// Dataset is an immutable reference dataset. Callers must not modify it.
type Dataset struct {
	Key      Key
	Version  string
	Source   string
	LoadedAt time.Time

	features []Feature
	bbox     BBox
	index    map[string]int
}

// NewDataset builds a dataset from decoded features, indexing names and
// computing the bounding box.
func NewDataset(key Key, version, source string, features []Feature) *Dataset {
	ds := &Dataset{
		Key:      key,
		Version:  version,
		Source:   source,
		LoadedAt: time.Now(),
		features: features,
		bbox:     emptyBBox(),
		index:    make(map[string]int, len(features)),
	}

	for i := range features {
		f := &features[i]
		for _, name := range append([]string{f.Name}, f.Aliases...) {
			k := normalizeName(name)
			if k == "" {
				continue
			}
			if _, dup := ds.index[k]; !dup {
				ds.index[k] = i
			}
		}
		for _, p := range f.Points {
			ds.bbox.extend(p)
		}
		for _, line := range f.Lines {
			for _, p := range line {
				ds.bbox.extend(p)
			}
		}
		for _, poly := range f.Polygons {
			for _, ring := range poly {
				for _, p := range ring {
					ds.bbox.extend(p)
				}
			}
		}
	}
	return ds
}

// Len returns the number of features.
func (d *Dataset) Len() int { return len(d.features) }

// Feature returns the i'th feature. Its coordinate slices are shared with
// the dataset and must not be modified.
func (d *Dataset) Feature(i int) Feature { return d.features[i] }

// Features returns a copy of the feature list.
func (d *Dataset) Features() []Feature {
	out := make([]Feature, len(d.features))
	copy(out, d.features)
	return out
}

// BBox returns the extent of every coordinate in the dataset.
func (d *Dataset) BBox() BBox { return d.bbox }

// Index finds the position of a feature by name or alias, case-insensitively.
func (d *Dataset) Index(name string) (int, bool) {
	i, ok := d.index[normalizeName(name)]
	return i, ok
}

// Lookup finds a feature by name or alias, case-insensitively.
func (d *Dataset) Lookup(name string) (Feature, bool) {
	i, ok := d.Index(name)
	if !ok {
		return Feature{}, false
	}
	return d.features[i], true
}

// Counts returns the number of points, lines and polygons.
func (d *Dataset) Counts() (points, lines, polygons int) {
	for _, f := range d.features {
		points += len(f.Points)
		lines += len(f.Lines)
		polygons += len(f.Polygons)
	}
	return
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
