// Package gotiler renders district polygons into a PMTiles archive of
// gzipped Mapbox vector tiles using orb only.
package gotiler

import (
	"fmt"
	"io"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/maptile/tilecover"
	"github.com/paulmach/orb/simplify"

	"github.com/joeblew999/plat-choropleth/internal/pmtiles"
	"github.com/joeblew999/plat-choropleth/internal/tiler"
)

// maxZoom is the deepest zoom the tiler renders.
const maxZoom = 14

// GoTiler implements tiler.Tiler.
type GoTiler struct{}

// New creates a new GoTiler.
func New() *GoTiler {
	return &GoTiler{}
}

// Name returns the engine name.
func (g *GoTiler) Name() string {
	return "go"
}

var _ tiler.Tiler = (*GoTiler)(nil)

// Tile writes every tile covering fc for the configured zoom range.
// Non-finite numeric properties are dropped, as MVT readers treat them as
// data errors.
func (g *GoTiler) Tile(fc *geojson.FeatureCollection, w io.Writer, cfg tiler.Config) (tiler.Stats, error) {
	minZ, maxZ := clampZoom(cfg.MinZoom, cfg.MaxZoom)
	if cfg.Layer == "" {
		cfg.Layer = "districts"
	}

	features := prepare(fc)
	if len(features) == 0 {
		return tiler.Stats{}, fmt.Errorf("gotiler: no polygon features")
	}

	var tiles []pmtiles.Tile
	var bound orb.Bound
	for i, f := range features {
		if i == 0 {
			bound = f.Geometry.Bound()
		} else {
			bound = bound.Union(f.Geometry.Bound())
		}
	}

	for z := minZ; z <= maxZ; z++ {
		zt, err := g.zoomLevel(features, maptile.Zoom(z), cfg.Layer)
		if err != nil {
			return tiler.Stats{}, err
		}
		tiles = append(tiles, zt...)
	}

	cw := &countingWriter{w: w}
	meta := map[string]any{
		"name":    cfg.Layer,
		"format":  "pbf",
		"minzoom": minZ,
		"maxzoom": maxZ,
		"vector_layers": []map[string]any{{
			"id":      cfg.Layer,
			"minzoom": minZ,
			"maxzoom": maxZ,
			"fields": map[string]string{
				"boro_cd": "String",
				"cd_name": "String",
				"pop2010": "Number",
			},
		}},
	}
	h, err := pmtiles.Write(cw, tiles, pmtiles.Gzip, meta, bound, uint8(minZ))
	if err != nil {
		return tiler.Stats{}, err
	}
	return tiler.Stats{
		Tiles:   int(h.AddressedTilesCount),
		MinZoom: int(h.MinZoom),
		MaxZoom: int(h.MaxZoom),
		Bytes:   cw.n,
	}, nil
}

func clampZoom(minZ, maxZ int) (int, int) {
	minZ = max(minZ, 0)
	if maxZ <= 0 || maxZ > maxZoom {
		maxZ = maxZoom
	}
	return min(minZ, maxZ), maxZ
}

// prepare keeps polygonal features and strips non-finite numbers.
func prepare(fc *geojson.FeatureCollection) []*geojson.Feature {
	var out []*geojson.Feature
	for _, f := range fc.Features {
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			continue
		}
		nf := geojson.NewFeature(f.Geometry)
		for k, v := range f.Properties {
			if fv, ok := v.(float64); ok && (math.IsNaN(fv) || math.IsInf(fv, 0)) {
				continue
			}
			nf.Properties[k] = v
		}
		out = append(out, nf)
	}
	return out
}

func (g *GoTiler) zoomLevel(features []*geojson.Feature, z maptile.Zoom, layer string) ([]pmtiles.Tile, error) {
	byTile := make(map[maptile.Tile][]*geojson.Feature)
	for _, f := range features {
		cover, err := tilecover.Geometry(f.Geometry, z)
		if err != nil {
			return nil, fmt.Errorf("gotiler: cover z%d: %w", z, err)
		}
		for t := range cover {
			byTile[t] = append(byTile[t], f)
		}
	}

	var out []pmtiles.Tile
	for t, fs := range byTile {
		data, err := encodeTile(t, fs, layer)
		if err != nil {
			return nil, err
		}
		if data == nil {
			continue
		}
		out = append(out, pmtiles.Tile{Z: uint8(t.Z), X: t.X, Y: t.Y, Data: data})
	}
	return out, nil
}

// encodeTile clips, projects and encodes features into one gzipped MVT.
// It returns nil data when nothing survives clipping.
func encodeTile(t maptile.Tile, features []*geojson.Feature, layer string) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		// clip and projection mutate geometry in place
		clone := geojson.NewFeature(orb.Clone(f.Geometry))
		clone.Properties = f.Properties.Clone()
		fc.Append(clone)
	}

	l := mvt.NewLayer(layer, fc)
	if eps := simplifyEpsilon(t.Z); eps > 0 {
		l.Simplify(simplify.DouglasPeucker(eps))
	}
	l.Clip(t.Bound())
	l.ProjectToTile(t)
	l.RemoveEmpty(0.5, 0.5)
	if len(l.Features) == 0 {
		return nil, nil
	}

	data, err := mvt.MarshalGzipped(mvt.Layers{l})
	if err != nil {
		return nil, fmt.Errorf("gotiler: encode %v: %w", t, err)
	}
	return data, nil
}

// simplifyEpsilon is a quarter pixel in degrees at zoom z for 512px tiles.
func simplifyEpsilon(z maptile.Zoom) float64 {
	if z >= maxZoom {
		return 0
	}
	return 360.0 / (512 * math.Exp2(float64(z))) / 4
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

