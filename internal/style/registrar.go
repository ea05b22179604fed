package style

import (
	"fmt"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-choropleth/internal/config"
	"github.com/joeblew999/plat-choropleth/internal/mapview"
)

// Registrar adds the choropleth and highlight layers to one map. It is not
// safe for concurrent use; each session owns its own.
type Registrar struct {
	layers     config.LayersConfig
	ramp       *Ramp
	registered bool
}

// NewRegistrar returns a registrar for the given layer configuration.
func NewRegistrar(layers config.LayersConfig, ramp *Ramp) *Registrar {
	return &Registrar{layers: layers, ramp: ramp}
}

// ChoroplethSource describes the district source. dataURL is used for
// GeoJSON sources; PMTiles sources read the configured tiles URL.
func (r *Registrar) ChoroplethSource(dataURL string, query mapview.Queryable) mapview.SourceSpec {
	if r.layers.SourceType == "pmtiles" {
		return mapview.SourceSpec{Type: "vector", URL: "pmtiles://" + r.layers.TilesURL, Query: query}
	}
	return mapview.SourceSpec{Type: "geojson", Data: dataURL, Query: query}
}

// Registered reports whether Register has completed.
func (r *Registrar) Registered() bool { return r.registered }

// Register adds the sources and layers. Calls after the first success are
// no-ops.
func (r *Registrar) Register(e mapview.Engine, choropleth mapview.SourceSpec) error {
	if r.registered {
		return nil
	}
	l := r.layers

	if err := e.AddSource(l.ChoroplethSource, choropleth); err != nil {
		return fmt.Errorf("add source %s: %w", l.ChoroplethSource, err)
	}
	fill := mapview.LayerSpec{
		ID:     l.ChoroplethLayer,
		Type:   "fill",
		Source: l.ChoroplethSource,
		Paint: map[string]any{
			"fill-color":         r.ramp.Expression(),
			"fill-outline-color": l.FillOutlineColor,
			"fill-opacity":       l.FillOpacity,
		},
	}
	if choropleth.Type == "vector" {
		fill.SourceLayer = l.TilesLayer
	}
	if err := e.AddLayer(fill, l.BeforeLayer); err != nil {
		return fmt.Errorf("add layer %s: %w", l.ChoroplethLayer, err)
	}

	if err := e.SetPaintProperty(l.WaterLayer, "fill-color", l.WaterColor); err != nil {
		return fmt.Errorf("paint %s: %w", l.WaterLayer, err)
	}

	if err := e.AddSource(l.HighlightSource, mapview.SourceSpec{
		Type: "geojson",
		Data: geojson.NewFeatureCollection(),
	}); err != nil {
		return fmt.Errorf("add source %s: %w", l.HighlightSource, err)
	}
	if err := e.AddLayer(mapview.LayerSpec{
		ID:     l.HighlightLayer,
		Type:   "line",
		Source: l.HighlightSource,
		Paint: map[string]any{
			"line-width":   l.HighlightWidth,
			"line-opacity": l.HighlightOpacity,
			"line-color":   l.HighlightColor,
		},
	}, l.BeforeLayer); err != nil {
		return fmt.Errorf("add layer %s: %w", l.HighlightLayer, err)
	}

	r.registered = true
	return nil
}
