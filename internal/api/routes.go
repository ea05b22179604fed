// Package api defines the Huma API routes and handlers.
package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-choropleth/internal/config"
	"github.com/joeblew999/plat-choropleth/internal/humastar"
	"github.com/joeblew999/plat-choropleth/internal/service"
	"github.com/joeblew999/plat-choropleth/internal/style"
)

// Version is reported by /health and /api/v1/info.
const Version = "0.1.0"

// DatasetPath is where the normalized district collection is served.
const DatasetPath = "/api/v1/districts.geojson"

// Services holds the service dependencies for API handlers.
type Services struct {
	Config    *config.Config
	Ramp      *style.Ramp
	Districts *service.DistrictService
	Tiles     *service.TileService
}

// Types

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"0.1.0"`
	Dataset bool   `json:"dataset" doc:"Whether the district dataset is loaded"`
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterRoutes registers every REST route backed by svc.
func RegisterRoutes(api huma.API, svc *Services) {
	huma.AutoRegister(api, NewAPIHandler(svc))
}

// Links returns the Link header table for the REST routes.
func Links() humastar.LinkTable {
	lt := humastar.LinkTable{}
	lt.Entry("/health",
		"/api/v1/info",
		"/api/v1/districts",
		DatasetPath,
		"/api/v1/style",
		"/api/v1/ramp",
		"/api/v1/fly-targets",
		"/api/v1/tiles",
		"/api/v1/tables",
	)
	lt.Add("/api/v1/info", "/health", "up")
	lt.Add("/api/v1/districts", DatasetPath, "alternate")
	lt.Add("/api/v1/districts", "/api/v1/ramp", "ramp")
	lt.Add("/api/v1/districts/{boroCD}", "/api/v1/districts", "collection")
	lt.Add("/api/v1/districts/{boroCD}", "/api/v1/districts", "up")
	lt.Add(DatasetPath, "/api/v1/districts", "alternate")
	lt.Add("/api/v1/style", "/api/v1/ramp", "ramp")
	lt.Add("/api/v1/ramp", "/api/v1/style", "style")
	lt.Add("/api/v1/fly-targets", "/api/v1/districts", "districts")
	lt.Add("/api/v1/tables", "/api/v1/query", "search")
	return lt
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	body := HealthBody{Status: "ok", Version: Version}
	if h.svc != nil && h.svc.Districts != nil {
		body.Dataset = h.svc.Districts.Current() != nil
	}
	return &struct{ Body HealthBody }{Body: body}, nil
}
