// Package refdata loads and caches the geographic reference datasets that
// map charts draw: coastlines, country outlines, land, lakes and rivers, each
// at a low, medium or high resolution tier.
//
// Datasets live in a read-only directory provisioned at build time, one file
// per key named after Key.String ("coastline-high.geojson"). A Cache sits in
// front of a DirLoader and guarantees that each key is read from storage at
// most once per process.
package refdata
