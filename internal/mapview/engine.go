// Package mapview models the browser map engine from the server side. The
// Engine interface is the call surface the viewer components use; Mirror
// implements it by tracking engine state and queueing commands for the
// page shim to execute.
package mapview

import (
	"errors"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var (
	ErrDuplicateSource = errors.New("mapview: source already exists")
	ErrDuplicateLayer  = errors.New("mapview: layer already exists")
	ErrUnknownSource   = errors.New("mapview: unknown source")
	ErrUnknownLayer    = errors.New("mapview: unknown layer")
)

// Cursor values for the map canvas.
const (
	CursorPointer = "pointer"
	CursorDefault = ""
)

// Engine is the map engine surface consumed by the viewer.
type Engine interface {
	AddControl(c ControlSpec)
	AddSource(id string, s SourceSpec) error
	AddLayer(l LayerSpec, before string) error
	SetPaintProperty(layer, prop string, value any) error
	SetLayoutProperty(layer, prop string, value any) error
	SetSourceData(source string, data any) error
	QueryRenderedFeatures(p orb.Point, layers ...string) []*geojson.Feature
	FlyTo(t CameraTarget) *Flight
	SetCursor(cursor string)
}

// Queryable is source data the engine can hit-test for rendered features.
type Queryable interface {
	HitTest(p orb.Point) []*geojson.Feature
}

// ControlSpec describes a map control such as the geocoder.
type ControlSpec struct {
	Kind     string         `json:"kind"`
	Position string         `json:"position,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

// SourceSpec describes a map data source.
type SourceSpec struct {
	Type string `json:"type"`
	// Data is inline GeoJSON or a URL the engine fetches.
	Data any    `json:"data,omitempty"`
	URL  string `json:"url,omitempty"`

	// Query backs rendered-feature queries on layers using this source.
	Query Queryable `json:"-"`
}

// LayerSpec describes a style layer.
type LayerSpec struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Source      string         `json:"source"`
	SourceLayer string         `json:"source-layer,omitempty"`
	Paint       map[string]any `json:"paint,omitempty"`
	Layout      map[string]any `json:"layout,omitempty"`
}

// CameraTarget is a fly-to destination.
type CameraTarget struct {
	Center orb.Point `json:"center"`
	Zoom   float64   `json:"zoom"`
}

// Command is one instruction for the page shim. Op selects which of the
// remaining fields apply.
type Command struct {
	Op       string       `json:"op"`
	ID       string       `json:"id,omitempty"`
	Prop     string       `json:"prop,omitempty"`
	Value    any          `json:"value,omitempty"`
	Before   string       `json:"before,omitempty"`
	Source   *SourceSpec  `json:"source,omitempty"`
	Layer    *LayerSpec   `json:"layer,omitempty"`
	Control  *ControlSpec `json:"control,omitempty"`
	Center   []float64    `json:"center,omitempty"`
	Zoom     *float64     `json:"zoom,omitempty"`
	FlightID string       `json:"flightId,omitempty"`
}

// Command ops understood by the shim.
const (
	OpAddControl        = "addControl"
	OpAddSource         = "addSource"
	OpAddLayer          = "addLayer"
	OpSetPaintProperty  = "setPaintProperty"
	OpSetLayoutProperty = "setLayoutProperty"
	OpSetSourceData     = "setSourceData"
	OpFlyTo             = "flyTo"
	OpSetCursor         = "setCursor"
)
