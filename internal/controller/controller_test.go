package controller

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-choropleth/internal/config"
	"github.com/joeblew999/plat-choropleth/internal/district"
	"github.com/joeblew999/plat-choropleth/internal/mapview"
	"github.com/joeblew999/plat-choropleth/internal/style"
)

type fixture struct {
	cfg     config.Config
	mirror  *mapview.Mirror
	sidebar *SidebarState
	ctl     *Controller
	data    *district.Collection
}

func box(id, name string, pop any, minX, minY, maxX, maxY float64) *geojson.Feature {
	f := geojson.NewFeature(orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}.ToPolygon())
	f.Properties[district.PropBoroCD] = id
	f.Properties[district.PropName] = name
	f.Properties[district.PropPopulation] = pop
	return f
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()

	fc := geojson.NewFeatureCollection()
	fc.Append(box("101", "Financial District", "123456", -74.02, 40.70, -74.00, 40.72))
	fc.Append(box("306", "Park Slope", "104709", -74.00, 40.66, -73.98, 40.69))
	fc.Append(box("202", "Hunts Point", "52246", -73.90, 40.80, -73.87, 40.82))
	fc.Append(box("105", "Midtown", "51673", -73.99, 40.74, -73.97, 40.76))
	data := district.NewCollection(fc)

	ramp, err := style.NewRamp(district.PropPopulation, cfg.Ramp)
	require.NoError(t, err)
	m := mapview.NewMirror(cfg.Layers.WaterLayer, cfg.Layers.BeforeLayer)
	reg := style.NewRegistrar(cfg.Layers, ramp)
	require.NoError(t, reg.Register(m, reg.ChoroplethSource("/districts.geojson", data)))
	m.Drain()

	sb := NewSidebarState(cfg.Sidebar.DefaultPrompt)
	ctl := New(Options{
		Engine:      m,
		Sidebar:     sb,
		Lookup:      data,
		Layers:      cfg.Layers,
		SidebarText: cfg.Sidebar,
		Home:        mapview.CameraTarget{Center: orb.Point{cfg.Map.Center[0], cfg.Map.Center[1]}, Zoom: cfg.Map.Zoom},
		Targets:     cfg.FlyTargets,
		Log:         zerolog.Nop(),
	})
	return &fixture{cfg: cfg, mirror: m, sidebar: sb, ctl: ctl, data: data}
}

func (f *fixture) highlight(t *testing.T) any {
	t.Helper()
	return f.mirror.SourceData(f.cfg.Layers.HighlightSource)
}

func (f *fixture) assertHighlightEmpty(t *testing.T) {
	t.Helper()
	fc, ok := f.highlight(t).(*geojson.FeatureCollection)
	require.True(t, ok, "highlight should be a feature collection")
	assert.Empty(t, fc.Features)
}

func TestInitialState(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, Visible, f.ctl.Visibility())
	assert.True(t, f.ctl.Selection().IsNone())
	assert.True(t, f.sidebar.ResetDisabled)
	assert.True(t, f.sidebar.InfoVisible)
	assert.Equal(t, "Click a district for more information", f.sidebar.Name)
	f.assertHighlightEmpty(t)
}

func TestMapClickFormatsPopulation(t *testing.T) {
	f := newFixture(t)

	hit, err := f.ctl.HandleMapClick(orb.Point{-74.01, 40.71})
	require.NoError(t, err)
	require.True(t, hit)

	assert.Equal(t, "Financial District", f.sidebar.Name)
	assert.Equal(t, "2010 Population: 123.46k", f.sidebar.Population)
	assert.False(t, f.sidebar.ResetDisabled)
	assert.Equal(t, "101", f.ctl.Selection().ID)

	want, _ := f.data.Geometry("101")
	assert.Equal(t, want, f.highlight(t))
}

func TestMapClickMissIsNoop(t *testing.T) {
	f := newFixture(t)

	hit, err := f.ctl.HandleMapClick(orb.Point{-72, 41})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Empty(t, f.mirror.Drain())
	assert.True(t, f.ctl.Selection().IsNone())
	assert.False(t, f.sidebar.TakeDirty())
}

func TestMapClickReplacesHighlight(t *testing.T) {
	f := newFixture(t)

	_, err := f.ctl.HandleMapClick(orb.Point{-74.01, 40.71})
	require.NoError(t, err)
	_, err = f.ctl.HandleMapClick(orb.Point{-73.99, 40.67})
	require.NoError(t, err)

	want, _ := f.data.Geometry("306")
	assert.Equal(t, want, f.highlight(t))
	assert.Equal(t, "306", f.ctl.Selection().ID)
}

func TestResetScenario(t *testing.T) {
	f := newFixture(t)
	_, err := f.ctl.HandleButton("306")
	require.NoError(t, err)

	flight, err := f.ctl.HandleButton(config.ResetToken)
	require.NoError(t, err)
	require.NotNil(t, flight)

	assert.Equal(t, orb.Point{-73.882646, 40.810616}, flight.Target.Center)
	assert.InDelta(t, 9.3, flight.Target.Zoom, 1e-9)
	assert.Equal(t, "Click a district for more information", f.sidebar.Name)
	assert.Equal(t, "", f.sidebar.Population)
	assert.True(t, f.sidebar.InfoVisible)
	assert.True(t, f.sidebar.ResetDisabled)
	assert.Equal(t, Visible, f.ctl.Visibility())
	assert.True(t, f.ctl.Selection().IsNone())
	f.assertHighlightEmpty(t)

	vis, _ := f.mirror.Layout(f.cfg.Layers.ChoroplethLayer, "visibility")
	assert.Equal(t, Visible, vis)
}

func TestDistrictButtonScenario(t *testing.T) {
	f := newFixture(t)

	flight, err := f.ctl.HandleButton("101")
	require.NoError(t, err)
	require.NotNil(t, flight)

	assert.Equal(t, mapview.CameraTarget{Center: orb.Point{-74.005854, 40.712484}, Zoom: 13}, flight.Target)
	assert.Equal(t, Hidden, f.ctl.Visibility())
	assert.False(t, f.sidebar.InfoVisible)
	assert.False(t, f.sidebar.ResetDisabled)

	want, _ := f.data.Geometry("101")
	assert.Equal(t, want, f.highlight(t))

	vis, _ := f.mirror.Layout(f.cfg.Layers.ChoroplethLayer, "visibility")
	assert.Equal(t, Hidden, vis)

	// hidden choropleth renders nothing to click
	hit, err := f.ctl.HandleMapClick(orb.Point{-73.99, 40.67})
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestUnmappedDistrictDoesNotFly(t *testing.T) {
	f := newFixture(t)

	flight, err := f.ctl.HandleButton("105")
	require.NoError(t, err)
	assert.Nil(t, flight)
	_, moved := f.mirror.Target()
	assert.False(t, moved)

	assert.Equal(t, Hidden, f.ctl.Visibility())
	assert.Equal(t, "105", f.ctl.Selection().ID)
	assert.False(t, f.sidebar.ResetDisabled)
}

func TestUnknownDistrictChangesNothing(t *testing.T) {
	f := newFixture(t)
	_, err := f.ctl.HandleButton("306")
	require.NoError(t, err)
	f.mirror.Drain()
	f.sidebar.TakeDirty()

	flight, err := f.ctl.HandleButton("999")
	assert.ErrorIs(t, err, district.ErrNotFound)
	assert.Nil(t, flight)
	assert.Empty(t, f.mirror.Drain())
	assert.False(t, f.sidebar.TakeDirty())
	assert.Equal(t, "306", f.ctl.Selection().ID)
}

func TestResetDisabledIffNoSelection(t *testing.T) {
	f := newFixture(t)
	steps := []func(){
		func() { _, _ = f.ctl.HandleMapClick(orb.Point{-74.01, 40.71}) },
		func() { _, _ = f.ctl.HandleButton(config.ResetToken) },
		func() { _, _ = f.ctl.HandleButton("202") },
		func() { _, _ = f.ctl.HandleButton("nope") },
		func() { _, _ = f.ctl.HandleMapClick(orb.Point{-72, 41}) },
		func() { _, _ = f.ctl.HandleButton(config.ResetToken) },
		func() { _, _ = f.ctl.HandleButton(config.ResetToken) },
	}
	for i, step := range steps {
		step()
		assert.Equal(t, f.ctl.Selection().IsNone(), f.sidebar.ResetDisabled, "step %d", i)
	}
}

func TestPointerCursor(t *testing.T) {
	f := newFixture(t)
	f.ctl.HandlePointer(true)
	assert.Equal(t, mapview.CursorPointer, f.mirror.Cursor())
	f.ctl.HandlePointer(false)
	assert.Equal(t, mapview.CursorDefault, f.mirror.Cursor())
}
