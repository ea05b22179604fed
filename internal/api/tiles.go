package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-choropleth/internal/service"
	"github.com/joeblew999/plat-choropleth/internal/tiler"
)

type GenerateTilesInput struct {
	Body struct {
		Name    string `json:"name" default:"districts" doc:"Archive name, .pmtiles is appended" example:"districts"`
		Layer   string `json:"layer,omitempty" doc:"Vector layer name, defaults to the configured tiles layer"`
		MinZoom int    `json:"minZoom" minimum:"0" maximum:"14" default:"8" doc:"Lowest zoom to render"`
		MaxZoom int    `json:"maxZoom" minimum:"0" maximum:"14" default:"12" doc:"Highest zoom to render"`
	}
}

// RegisterTiles registers tile listing and generation routes.
func (h *APIHandler) RegisterTiles(api huma.API) {
	huma.Get(api, "/api/v1/tiles", h.GetTiles, huma.OperationTags("tiles"))
	huma.Post(api, "/api/v1/tiles", h.GenerateTiles, huma.OperationTags("tiles"))
}

func (h *APIHandler) GetTiles(ctx context.Context, input *struct{}) (*struct{ Body []service.TileFile }, error) {
	if h.svc == nil || h.svc.Tiles == nil {
		return &struct{ Body []service.TileFile }{Body: []service.TileFile{}}, nil
	}
	tiles, err := h.svc.Tiles.List()
	if err != nil || tiles == nil {
		return &struct{ Body []service.TileFile }{Body: []service.TileFile{}}, nil
	}
	return &struct{ Body []service.TileFile }{Body: tiles}, nil
}

func (h *APIHandler) GenerateTiles(ctx context.Context, input *GenerateTilesInput) (*struct{ Body service.TileFile }, error) {
	if h.svc == nil || h.svc.Tiles == nil {
		return nil, huma.Error503ServiceUnavailable("tile service not available")
	}
	if input.Body.MinZoom > input.Body.MaxZoom {
		return nil, huma.Error422UnprocessableEntity("minZoom must not exceed maxZoom")
	}
	c, err := h.dataset(ctx)
	if err != nil {
		return nil, err
	}
	layer := input.Body.Layer
	if layer == "" && h.svc.Config != nil {
		layer = h.svc.Config.Layers.TilesLayer
	}
	tf, err := h.svc.Tiles.Generate(c, input.Body.Name, tiler.Config{
		Layer:   layer,
		MinZoom: input.Body.MinZoom,
		MaxZoom: input.Body.MaxZoom,
	})
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	return &struct{ Body service.TileFile }{Body: tf}, nil
}
