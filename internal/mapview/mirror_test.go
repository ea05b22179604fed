package mapview

import (
	"context"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type squares []*geojson.Feature

func (s squares) HitTest(p orb.Point) []*geojson.Feature {
	var out []*geojson.Feature
	for i := len(s) - 1; i >= 0; i-- {
		if s[i].Geometry.Bound().Contains(p) {
			out = append(out, s[i])
		}
	}
	return out
}

func square(id string, minX, minY, maxX, maxY float64) *geojson.Feature {
	f := geojson.NewFeature(orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}.ToPolygon())
	f.Properties["boro_cd"] = id
	return f
}

func TestAddLayerOrdering(t *testing.T) {
	m := NewMirror("water", "waterway-label", "place-label")
	require.NoError(t, m.AddSource("a", SourceSpec{Type: "geojson"}))

	require.NoError(t, m.AddLayer(LayerSpec{ID: "fill", Type: "fill", Source: "a"}, "waterway-label"))
	require.NoError(t, m.AddLayer(LayerSpec{ID: "line", Type: "line", Source: "a"}, "waterway-label"))
	require.NoError(t, m.AddLayer(LayerSpec{ID: "top", Type: "line", Source: "a"}, "missing"))

	assert.Equal(t, []string{"water", "fill", "line", "waterway-label", "place-label", "top"}, m.LayerIDs())
}

func TestDuplicates(t *testing.T) {
	m := NewMirror()
	require.NoError(t, m.AddSource("a", SourceSpec{Type: "geojson"}))
	assert.ErrorIs(t, m.AddSource("a", SourceSpec{Type: "geojson"}), ErrDuplicateSource)

	require.NoError(t, m.AddLayer(LayerSpec{ID: "l", Type: "fill", Source: "a"}, ""))
	assert.ErrorIs(t, m.AddLayer(LayerSpec{ID: "l", Type: "fill", Source: "a"}, ""), ErrDuplicateLayer)
	assert.ErrorIs(t, m.AddLayer(LayerSpec{ID: "x", Type: "fill", Source: "b"}, ""), ErrUnknownSource)
	assert.ErrorIs(t, m.SetPaintProperty("nope", "fill-color", "red"), ErrUnknownLayer)
	assert.ErrorIs(t, m.SetSourceData("nope", nil), ErrUnknownSource)
}

func TestQueryRenderedFeaturesRespectsVisibility(t *testing.T) {
	m := NewMirror()
	data := squares{square("1", 0, 0, 10, 10), square("2", 5, 5, 15, 15)}
	require.NoError(t, m.AddSource("d", SourceSpec{Type: "geojson", Query: data}))
	require.NoError(t, m.AddLayer(LayerSpec{ID: "fill", Type: "fill", Source: "d"}, ""))

	hits := m.QueryRenderedFeatures(orb.Point{6, 6}, "fill")
	require.Len(t, hits, 2)
	assert.Equal(t, "2", hits[0].Properties["boro_cd"])

	assert.Empty(t, m.QueryRenderedFeatures(orb.Point{6, 6}, "other"))

	require.NoError(t, m.SetLayoutProperty("fill", "visibility", "none"))
	assert.Empty(t, m.QueryRenderedFeatures(orb.Point{6, 6}, "fill"))

	require.NoError(t, m.SetLayoutProperty("fill", "visibility", "visible"))
	assert.Len(t, m.QueryRenderedFeatures(orb.Point{6, 6}), 2)
}

func TestCommandQueue(t *testing.T) {
	m := NewMirror("water")
	require.NoError(t, m.SetPaintProperty("water", "fill-color", "#c9f4ff"))
	m.SetCursor(CursorPointer)
	m.SetCursor(CursorPointer)

	select {
	case <-m.Notify():
	default:
		t.Fatal("expected notification")
	}

	cmds := m.Drain()
	require.Len(t, cmds, 2)
	assert.Equal(t, OpSetPaintProperty, cmds[0].Op)
	assert.Equal(t, "water", cmds[0].ID)
	assert.Equal(t, OpSetCursor, cmds[1].Op)
	assert.Empty(t, m.Drain())

	v, ok := m.Paint("water", "fill-color")
	assert.True(t, ok)
	assert.Equal(t, "#c9f4ff", v)
}

func TestSetSourceDataWrapsGeometry(t *testing.T) {
	m := NewMirror()
	require.NoError(t, m.AddSource("h", SourceSpec{Type: "geojson", Data: geojson.NewFeatureCollection()}))
	m.Drain()

	poly := orb.Bound{Max: orb.Point{1, 1}}.ToPolygon()
	require.NoError(t, m.SetSourceData("h", poly))

	assert.Equal(t, poly, m.SourceData("h"))
	cmds := m.Drain()
	require.Len(t, cmds, 1)
	assert.IsType(t, &geojson.Geometry{}, cmds[0].Value)
}

func TestFlights(t *testing.T) {
	m := NewMirror()
	assert.Nil(t, m.LastFlight())
	first := m.FlyTo(CameraTarget{Center: orb.Point{1, 2}, Zoom: 3})
	second := m.FlyTo(CameraTarget{Center: orb.Point{4, 5}, Zoom: 6})
	assert.Same(t, second, m.LastFlight())

	select {
	case <-first.Done():
		assert.True(t, first.Interrupted())
	default:
		t.Fatal("first flight should be interrupted")
	}

	assert.False(t, m.CompleteFlight(first.ID))
	assert.True(t, m.CompleteFlight(second.ID))
	assert.Nil(t, m.LastFlight())
	assert.False(t, m.CompleteFlight(second.ID))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, second.Wait(ctx))
	assert.False(t, second.Interrupted())

	target, ok := m.Target()
	require.True(t, ok)
	assert.Equal(t, CameraTarget{Center: orb.Point{4, 5}, Zoom: 6}, target)

	cmds := m.Drain()
	require.Len(t, cmds, 2)
	assert.Equal(t, []float64{4, 5}, cmds[1].Center)
	assert.Equal(t, second.ID, cmds[1].FlightID)
}

func TestControls(t *testing.T) {
	m := NewMirror()
	geocoder := ControlSpec{Kind: "geocoder", Position: "top-right"}
	m.AddControl(geocoder)

	assert.Equal(t, []ControlSpec{geocoder}, m.Controls())
	cmds := m.Drain()
	require.Len(t, cmds, 1)
	assert.Equal(t, OpAddControl, cmds[0].Op)
	assert.Equal(t, &geocoder, cmds[0].Control)

	m.Controls()[0].Kind = "changed"
	assert.Equal(t, "geocoder", m.Controls()[0].Kind)
}
