package gotiler

import (
	"bytes"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-choropleth/internal/pmtiles"
	"github.com/joeblew999/plat-choropleth/internal/tiler"
)

func districts() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	a := geojson.NewFeature(orb.Bound{Min: orb.Point{-74.02, 40.70}, Max: orb.Point{-74.00, 40.72}}.ToPolygon())
	a.Properties["boro_cd"] = "101"
	a.Properties["pop2010"] = 46824.0
	b := geojson.NewFeature(orb.Bound{Min: orb.Point{-73.90, 40.80}, Max: orb.Point{-73.87, 40.82}}.ToPolygon())
	b.Properties["boro_cd"] = "202"
	b.Properties["pop2010"] = math.NaN()
	fc.Append(a)
	fc.Append(b)
	fc.Append(geojson.NewFeature(orb.Point{-74, 40.7}))
	return fc
}

func TestTileWritesArchive(t *testing.T) {
	var buf bytes.Buffer
	stats, err := New().Tile(districts(), &buf, tiler.Config{Layer: "districts", MinZoom: 8, MaxZoom: 10})
	require.NoError(t, err)

	assert.Equal(t, 8, stats.MinZoom)
	assert.Equal(t, 10, stats.MaxZoom)
	assert.GreaterOrEqual(t, stats.Tiles, 3)
	assert.Equal(t, int64(buf.Len()), stats.Bytes)

	h, err := pmtiles.ReadHeader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, pmtiles.Mvt, h.TileType)
	assert.InDelta(t, -74.02, h.Bounds.Min.Lon(), 1e-6)
	assert.InDelta(t, 40.82, h.Bounds.Max.Lat(), 1e-6)
}

func TestTileRejectsNoPolygons(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Point{1, 2}))
	_, err := New().Tile(fc, &bytes.Buffer{}, tiler.Config{})
	assert.Error(t, err)
}

func TestPrepareDropsNaN(t *testing.T) {
	fs := prepare(districts())
	require.Len(t, fs, 2)
	assert.Equal(t, 46824.0, fs[0].Properties["pop2010"])
	_, ok := fs[1].Properties["pop2010"]
	assert.False(t, ok)
}

func TestClampZoom(t *testing.T) {
	minZ, maxZ := clampZoom(-3, 99)
	assert.Equal(t, 0, minZ)
	assert.Equal(t, maxZoom, maxZ)

	minZ, maxZ = clampZoom(9, 4)
	assert.Equal(t, 4, minZ)
	assert.Equal(t, 4, maxZ)
}
