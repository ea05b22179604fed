package tippecanoe

import (
	"bytes"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-choropleth/internal/tiler"
)

func TestArgs(t *testing.T) {
	args := Args("in.geojson", "out.pmtiles", tiler.Config{})
	assert.Equal(t, []string{
		"-o", "out.pmtiles",
		"-l", "districts",
		"-Z", "0",
		"-z", "14",
		"--force",
		"--drop-densest-as-needed",
		"--quiet",
		"in.geojson",
	}, args)

	args = Args("in.geojson", "out.pmtiles", tiler.Config{Layer: "cd", MinZoom: 8, MaxZoom: 12})
	assert.Equal(t, []string{"-o", "out.pmtiles", "-l", "cd", "-Z", "8", "-z", "12"}, args[:8])
}

func TestFiniteDropsNaN(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	f := geojson.NewFeature(orb.Point{-74, 40.7})
	f.Properties["pop2010"] = math.NaN()
	f.Properties["boro_cd"] = "101"
	fc.Append(f)
	fc.Append(&geojson.Feature{Properties: geojson.Properties{}})

	out := finite(fc)
	require.Len(t, out.Features, 1)
	assert.NotContains(t, out.Features[0].Properties, "pop2010")
	assert.Equal(t, "101", out.Features[0].Properties["boro_cd"])
	_, err := out.MarshalJSON()
	assert.NoError(t, err)
}

func TestMissingBinary(t *testing.T) {
	tp := New("tippecanoe-not-installed", zerolog.Nop())
	assert.False(t, tp.Available())

	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Bound{Min: orb.Point{-74.02, 40.70}, Max: orb.Point{-74.00, 40.72}}.ToPolygon()))
	var buf bytes.Buffer
	_, err := tp.Tile(fc, &buf, tiler.Config{MinZoom: 8, MaxZoom: 9})
	assert.Error(t, err)
}

func TestTileWithBinary(t *testing.T) {
	tp := New("", zerolog.Nop())
	if !tp.Available() {
		t.Skip("tippecanoe not installed")
	}

	fc := geojson.NewFeatureCollection()
	f := geojson.NewFeature(orb.Bound{Min: orb.Point{-74.02, 40.70}, Max: orb.Point{-74.00, 40.72}}.ToPolygon())
	f.Properties["boro_cd"] = "101"
	fc.Append(f)

	var buf bytes.Buffer
	stats, err := tp.Tile(fc, &buf, tiler.Config{MinZoom: 8, MaxZoom: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), stats.Bytes)
	assert.Positive(t, stats.Tiles)
}
