// Package tiler defines the vector tile generation contract.
package tiler

import (
	"io"

	"github.com/paulmach/orb/geojson"
)

// Config controls tile generation.
type Config struct {
	// Layer is the vector layer name inside each tile.
	Layer   string
	MinZoom int
	MaxZoom int
}

// Stats summarizes a generated archive.
type Stats struct {
	Tiles   int
	MinZoom int
	MaxZoom int
	Bytes   int64
}

// Tiler turns a feature collection into a tile archive written to w.
type Tiler interface {
	Name() string
	Tile(fc *geojson.FeatureCollection, w io.Writer, cfg Config) (Stats, error)
}
