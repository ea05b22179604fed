package style

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-choropleth/internal/config"
	"github.com/joeblew999/plat-choropleth/internal/mapview"
)

func defaultRamp(t *testing.T) *Ramp {
	t.Helper()
	r, err := NewRamp("pop2010", config.Default().Ramp)
	require.NoError(t, err)
	return r
}

func TestRampEndpointsAndClamping(t *testing.T) {
	r := defaultRamp(t)

	assert.Equal(t, "#f1eef6", r.HexAt(0))
	assert.Equal(t, "#f1eef6", r.HexAt(-1000))
	assert.Equal(t, "#045a8d", r.HexAt(500000))
	assert.Equal(t, "#045a8d", r.HexAt(2_000_000))
	assert.Equal(t, "#74a9cf", r.HexAt(100000))
	assert.Equal(t, "", r.HexAt(math.NaN()))
}

func TestRampInterpolatesBetweenStops(t *testing.T) {
	r := defaultRamp(t)
	lo, _ := r.ColorAt(50000)
	hi, _ := r.ColorAt(100000)
	mid, ok := r.ColorAt(75000)
	require.True(t, ok)

	assert.InDelta(t, (lo.R+hi.R)/2, mid.R, 1e-9)
	assert.InDelta(t, (lo.G+hi.G)/2, mid.G, 1e-9)
	assert.InDelta(t, (lo.B+hi.B)/2, mid.B, 1e-9)
}

func TestRampDarkensMonotonically(t *testing.T) {
	r := defaultRamp(t)
	prev := math.Inf(1)
	for v := 0.0; v <= 500000; v += 5000 {
		c, _ := r.ColorAt(v)
		l, _, _ := c.Lab()
		assert.LessOrEqual(t, l, prev+1e-9, "lightness increased at %v", v)
		prev = l
	}
}

func TestRampExpression(t *testing.T) {
	r := defaultRamp(t)
	want := []any{
		"interpolate", []any{"linear"}, []any{"get", "pop2010"},
		0.0, "#f1eef6",
		50000.0, "#bdc9e1",
		100000.0, "#74a9cf",
		250000.0, "#2b8cbe",
		500000.0, "#045a8d",
	}
	assert.Equal(t, want, r.Expression())
}

func TestRampLegend(t *testing.T) {
	legend := defaultRamp(t).Legend()
	require.Len(t, legend, 5)
	assert.Equal(t, "250,000+", legend[3].Label)
	assert.Equal(t, "#2b8cbe", legend[3].Color)
}

func TestNewRampRejectsBadStops(t *testing.T) {
	_, err := NewRamp("p", []config.RampStop{{Value: 0, Color: "nope"}})
	assert.Error(t, err)
	_, err = NewRamp("p", []config.RampStop{{Value: 10, Color: "#000000"}, {Value: 5, Color: "#ffffff"}})
	assert.Error(t, err)
}

type hitAll struct{}

func (hitAll) HitTest(orb.Point) []*geojson.Feature {
	return []*geojson.Feature{geojson.NewFeature(orb.Point{})}
}

func TestRegisterLayersAndIdempotence(t *testing.T) {
	cfg := config.Default()
	m := mapview.NewMirror(cfg.Layers.WaterLayer, cfg.Layers.BeforeLayer)
	reg := NewRegistrar(cfg.Layers, defaultRamp(t))

	src := reg.ChoroplethSource("/api/v1/districts.geojson", hitAll{})
	require.NoError(t, reg.Register(m, src))
	assert.True(t, reg.Registered())

	assert.Equal(t, []string{"water", "nyc-cd", "highlight-line", "waterway-label"}, m.LayerIDs())

	water, _ := m.Paint("water", "fill-color")
	assert.Equal(t, "#c9f4ff", water)
	opacity, _ := m.Paint("nyc-cd", "fill-opacity")
	assert.Equal(t, 0.8, opacity)
	outline, _ := m.Paint("nyc-cd", "fill-outline-color")
	assert.Equal(t, "#ccc", outline)
	color, _ := m.Paint("highlight-line", "line-color")
	assert.Equal(t, "orange", color)

	hl, ok := m.SourceData("highlight-feature").(*geojson.FeatureCollection)
	require.True(t, ok)
	assert.Empty(t, hl.Features)

	queued := len(m.Drain())
	require.NoError(t, reg.Register(m, src))
	assert.Empty(t, m.Drain())
	assert.Equal(t, 5, queued)
}

func TestChoroplethSourcePMTiles(t *testing.T) {
	layers := config.Default().Layers
	layers.SourceType = "pmtiles"
	layers.TilesURL = "/tiles/districts.pmtiles"
	reg := NewRegistrar(layers, defaultRamp(t))

	src := reg.ChoroplethSource("/ignored", nil)
	assert.Equal(t, "vector", src.Type)
	assert.Equal(t, "pmtiles:///tiles/districts.pmtiles", src.URL)

	m := mapview.NewMirror(layers.WaterLayer, layers.BeforeLayer)
	require.NoError(t, reg.Register(m, src))
	cmds := m.Drain()
	require.Equal(t, mapview.OpAddLayer, cmds[1].Op)
	assert.Equal(t, "districts", cmds[1].Layer.SourceLayer)
}
