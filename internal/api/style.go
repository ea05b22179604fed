package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-choropleth/internal/config"
	"github.com/joeblew999/plat-choropleth/internal/mapview"
	"github.com/joeblew999/plat-choropleth/internal/style"
)

type StyleBody struct {
	Before   string            `json:"before" doc:"Layer the viewer layers are inserted beneath" example:"waterway-label"`
	Commands []mapview.Command `json:"commands" doc:"Engine calls that register the viewer layers, in order"`
}

type RampBody struct {
	Property   string              `json:"property" doc:"Feature property the ramp colors" example:"pop2010"`
	Expression []any               `json:"expression" doc:"Engine interpolate expression"`
	Legend     []style.LegendEntry `json:"legend" doc:"One entry per breakpoint"`
}

type ColorInput struct {
	Value float64 `query:"value" doc:"Population to evaluate" example:"75000"`
}

type ColorBody struct {
	Value float64 `json:"value" doc:"Evaluated population"`
	Color string  `json:"color" doc:"Interpolated hex color" example:"#98b9d8"`
}

type FlyTargetsBody struct {
	Home    config.FlyTarget   `json:"home" doc:"Initial camera, used by reset"`
	Targets []config.FlyTarget `json:"targets" doc:"Per-district camera targets"`
	Buttons []config.Button    `json:"buttons" doc:"Sidebar buttons in display order"`
}

// RegisterStyle registers the map style description routes.
func (h *APIHandler) RegisterStyle(api huma.API) {
	huma.Get(api, "/api/v1/style", h.GetStyle, huma.OperationTags("style"))
	huma.Get(api, "/api/v1/ramp", h.GetRamp, huma.OperationTags("style"))
	huma.Get(api, "/api/v1/ramp/color", h.GetRampColor, huma.OperationTags("style"))
	huma.Get(api, "/api/v1/fly-targets", h.GetFlyTargets, huma.OperationTags("style"))
}

func (h *APIHandler) styleDeps() (*config.Config, *style.Ramp, error) {
	if h.svc == nil || h.svc.Config == nil || h.svc.Ramp == nil {
		return nil, nil, huma.Error503ServiceUnavailable("style not configured")
	}
	return h.svc.Config, h.svc.Ramp, nil
}

// GetStyle replays layer registration against an empty mirror so clients
// see exactly what a session sends its map.
func (h *APIHandler) GetStyle(ctx context.Context, input *struct{}) (*struct{ Body StyleBody }, error) {
	cfg, ramp, err := h.styleDeps()
	if err != nil {
		return nil, err
	}
	m := mapview.NewMirror(cfg.Layers.WaterLayer, cfg.Layers.BeforeLayer)
	reg := style.NewRegistrar(cfg.Layers, ramp)
	if err := reg.Register(m, reg.ChoroplethSource(DatasetPath, nil)); err != nil {
		return nil, huma.Error500InternalServerError("register layers", err)
	}
	return &struct{ Body StyleBody }{Body: StyleBody{Before: cfg.Layers.BeforeLayer, Commands: m.Drain()}}, nil
}

func (h *APIHandler) GetRamp(ctx context.Context, input *struct{}) (*struct{ Body RampBody }, error) {
	_, ramp, err := h.styleDeps()
	if err != nil {
		return nil, err
	}
	return &struct{ Body RampBody }{Body: RampBody{
		Property:   ramp.Property,
		Expression: ramp.Expression(),
		Legend:     ramp.Legend(),
	}}, nil
}

func (h *APIHandler) GetRampColor(ctx context.Context, input *ColorInput) (*struct{ Body ColorBody }, error) {
	_, ramp, err := h.styleDeps()
	if err != nil {
		return nil, err
	}
	return &struct{ Body ColorBody }{Body: ColorBody{Value: input.Value, Color: ramp.HexAt(input.Value)}}, nil
}

func (h *APIHandler) GetFlyTargets(ctx context.Context, input *struct{}) (*struct{ Body FlyTargetsBody }, error) {
	cfg, _, err := h.styleDeps()
	if err != nil {
		return nil, err
	}
	return &struct{ Body FlyTargetsBody }{Body: FlyTargetsBody{
		Home:    config.FlyTarget{ID: config.ResetToken, Center: cfg.Map.Center, Zoom: cfg.Map.Zoom},
		Targets: cfg.FlyTargets,
		Buttons: cfg.Buttons,
	}}, nil
}
