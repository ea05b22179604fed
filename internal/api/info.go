package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-choropleth/internal/service"
)

// SessionCounter reports live viewer sessions.
type SessionCounter interface {
	Len() int
}

type InfoHandler struct {
	dataDir   string
	dbOK      bool
	districts *service.DistrictService
	sessions  SessionCounter
}

func NewInfoHandler(dataDir string, dbOK bool, districts *service.DistrictService, sessions SessionCounter) *InfoHandler {
	return &InfoHandler{dataDir: dataDir, dbOK: dbOK, districts: districts, sessions: sessions}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name     string                 `json:"name" doc:"Service name"`
	Version  string                 `json:"version" doc:"Service version"`
	DataDir  string                 `json:"data_dir" doc:"Data directory path"`
	DB       bool                   `json:"db" doc:"Whether database is available"`
	Sessions int                    `json:"sessions" doc:"Live viewer sessions"`
	Dataset  *service.DatasetStatus `json:"dataset,omitempty" doc:"District dataset state"`
	Features []string               `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	body := InfoBody{
		Name:     "plat-choropleth",
		Version:  Version,
		DataDir:  h.dataDir,
		DB:       h.dbOK,
		Features: []string{"choropleth", "datastar", "pmtiles", "duckdb"},
	}
	if h.sessions != nil {
		body.Sessions = h.sessions.Len()
	}
	if h.districts != nil {
		st := h.districts.Status()
		body.Dataset = &st
	}
	return &struct{ Body InfoBody }{Body: body}, nil
}
