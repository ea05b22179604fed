// Package style builds the choropleth styling: the population color ramp
// and the registration of sources and layers on the map engine.
package style

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/joeblew999/plat-choropleth/internal/config"
)

// Stop is one ramp breakpoint.
type Stop struct {
	Value float64
	Color colorful.Color
}

// Ramp is a piecewise-linear color scale over population.
type Ramp struct {
	Property string
	stops    []Stop
}

// LegendEntry labels one ramp stop.
type LegendEntry struct {
	Value float64 `json:"value" doc:"Breakpoint value"`
	Label string  `json:"label" doc:"Display label" example:"50,000+"`
	Color string  `json:"color" doc:"Hex color" example:"#bdc9e1"`
}

// NewRamp builds a ramp over property from configured stops. Stops must be
// strictly increasing.
func NewRamp(property string, stops []config.RampStop) (*Ramp, error) {
	if len(stops) == 0 {
		return nil, fmt.Errorf("style: ramp has no stops")
	}
	r := &Ramp{Property: property, stops: make([]Stop, 0, len(stops))}
	for i, s := range stops {
		c, err := colorful.Hex(s.Color)
		if err != nil {
			return nil, fmt.Errorf("style: ramp stop %d: %w", i, err)
		}
		if i > 0 && s.Value <= stops[i-1].Value {
			return nil, fmt.Errorf("style: ramp stop %d not increasing", i)
		}
		r.stops = append(r.stops, Stop{Value: s.Value, Color: c})
	}
	return r, nil
}

// ColorAt evaluates the ramp at v, clamping outside the first and last
// breakpoints. NaN has no color.
func (r *Ramp) ColorAt(v float64) (colorful.Color, bool) {
	if math.IsNaN(v) {
		return colorful.Color{}, false
	}
	first, last := r.stops[0], r.stops[len(r.stops)-1]
	if v <= first.Value {
		return first.Color, true
	}
	if v >= last.Value {
		return last.Color, true
	}
	for i := 1; i < len(r.stops); i++ {
		hi := r.stops[i]
		if v > hi.Value {
			continue
		}
		lo := r.stops[i-1]
		t := (v - lo.Value) / (hi.Value - lo.Value)
		return lo.Color.BlendRgb(hi.Color, t).Clamped(), true
	}
	return last.Color, true
}

// HexAt is ColorAt rendered as "#rrggbb", or "" for NaN.
func (r *Ramp) HexAt(v float64) string {
	c, ok := r.ColorAt(v)
	if !ok {
		return ""
	}
	return c.Hex()
}

// Expression returns the engine paint expression for the ramp.
func (r *Ramp) Expression() []any {
	expr := []any{"interpolate", []any{"linear"}, []any{"get", r.Property}}
	for _, s := range r.stops {
		expr = append(expr, s.Value, s.Color.Hex())
	}
	return expr
}

// Legend returns one labeled entry per stop.
func (r *Ramp) Legend() []LegendEntry {
	out := make([]LegendEntry, len(r.stops))
	for i, s := range r.stops {
		out[i] = LegendEntry{
			Value: s.Value,
			Label: humanize.Comma(int64(s.Value)) + "+",
			Color: s.Color.Hex(),
		}
	}
	return out
}
