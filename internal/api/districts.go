package api

import (
	"context"
	"errors"
	"math"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dustin/go-humanize"

	"github.com/joeblew999/plat-choropleth/internal/district"
	"github.com/joeblew999/plat-choropleth/internal/humastar"
	"github.com/joeblew999/plat-choropleth/internal/numfmt"
	"github.com/joeblew999/plat-choropleth/internal/service"
)

var flyAction = humastar.ActionDef{
	Rel:     "fly",
	Pattern: "/api/v1/viewer/fly/%s",
	Method:  "POST",
	Title:   "Fly to district",
}

type ListDistrictsInput struct {
	Offset int `query:"offset" minimum:"0" default:"0" doc:"Items to skip"`
	Limit  int `query:"limit" minimum:"0" maximum:"500" default:"0" doc:"Page size, 0 for all"`
}

type BoroCDInput struct {
	BoroCD string `path:"boroCD" doc:"Community district id" example:"306"`
}

// DistrictBody is one district plus its state-dependent actions.
type DistrictBody struct {
	service.DistrictInfo
}

// Actions offers the fly action for districts with a camera target.
func (b DistrictBody) Actions() []humastar.Action {
	if !b.FlyTarget {
		return nil
	}
	return []humastar.Action{flyAction.For(b.BoroCD, "Fly to "+b.Name)}
}

type GeoJSONOutput struct {
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	Body         []byte
}

// RegisterDistricts registers the district dataset routes.
func (h *APIHandler) RegisterDistricts(api huma.API) {
	huma.Get(api, "/api/v1/districts", h.ListDistricts, huma.OperationTags("districts"))
	huma.Get(api, "/api/v1/districts/status", h.GetDatasetStatus, huma.OperationTags("districts"))
	huma.Get(api, "/api/v1/districts/{boroCD}", h.GetDistrict, huma.OperationTags("districts"))
	huma.Register(api, huma.Operation{
		OperationID: "get-districts-geojson",
		Method:      "GET",
		Path:        DatasetPath,
		Summary:     "Get districts GeoJSON",
		Description: "Normalized feature collection the map renders. Unparseable populations are null.",
		Tags:        []string{"districts"},
	}, h.GetDistrictsGeoJSON)
	huma.Post(api, "/api/v1/districts/reload", h.ReloadDistricts, huma.OperationTags("districts"))
}

func (h *APIHandler) dataset(ctx context.Context) (*district.Collection, error) {
	if h.svc == nil || h.svc.Districts == nil {
		return nil, huma.Error503ServiceUnavailable("district service not available")
	}
	c, err := h.svc.Districts.Dataset(ctx)
	if err != nil {
		return nil, huma.Error503ServiceUnavailable("district dataset unavailable", err)
	}
	return c, nil
}

func (h *APIHandler) info(s district.Summary, targets map[string]bool) service.DistrictInfo {
	info := service.DistrictInfo{
		BoroCD:        s.BoroCD,
		Name:          s.Name,
		PopulationFmt: numfmt.NotAvailable,
		BBox:          [4]float64{s.Bound.Min.X(), s.Bound.Min.Y(), s.Bound.Max.X(), s.Bound.Max.Y()},
		FlyTarget:     targets[s.BoroCD],
	}
	if !math.IsNaN(s.Population) {
		p := int64(s.Population)
		info.Population = &p
		info.PopulationFmt = humanize.Comma(p)
	}
	if h.svc.Ramp != nil {
		info.Color = h.svc.Ramp.HexAt(s.Population)
	}
	return info
}

func (h *APIHandler) flyTargets() map[string]bool {
	out := map[string]bool{}
	if h.svc.Config != nil {
		for _, t := range h.svc.Config.FlyTargets {
			out[t.ID] = true
		}
	}
	return out
}

func (h *APIHandler) ListDistricts(ctx context.Context, input *ListDistrictsInput) (*struct {
	Body humastar.PageBody[service.DistrictInfo]
}, error) {
	c, err := h.dataset(ctx)
	if err != nil {
		return nil, err
	}
	targets := h.flyTargets()
	summaries := c.Districts()
	infos := make([]service.DistrictInfo, len(summaries))
	for i, s := range summaries {
		infos[i] = h.info(s, targets)
	}
	return &struct {
		Body humastar.PageBody[service.DistrictInfo]
	}{Body: humastar.Paginate(infos, input.Offset, input.Limit)}, nil
}

func (h *APIHandler) GetDistrict(ctx context.Context, input *BoroCDInput) (*struct{ Body DistrictBody }, error) {
	c, err := h.dataset(ctx)
	if err != nil {
		return nil, err
	}
	f, err := c.Feature(input.BoroCD)
	if errors.Is(err, district.ErrNotFound) {
		return nil, huma.Error404NotFound("district " + input.BoroCD + " not found")
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("lookup failed", err)
	}
	s := district.Summary{BoroCD: district.BoroCD(f), Name: district.Name(f), Population: district.Population(f)}
	if f.Geometry != nil {
		s.Bound = f.Geometry.Bound()
	}
	return &struct{ Body DistrictBody }{Body: DistrictBody{h.info(s, h.flyTargets())}}, nil
}

func (h *APIHandler) GetDistrictsGeoJSON(ctx context.Context, input *struct{}) (*GeoJSONOutput, error) {
	c, err := h.dataset(ctx)
	if err != nil {
		return nil, err
	}
	data, err := c.MarshalGeoJSON()
	if err != nil {
		return nil, huma.Error500InternalServerError("encode districts", err)
	}
	return &GeoJSONOutput{
		ContentType:  "application/geo+json",
		CacheControl: "public, max-age=300",
		Body:         data,
	}, nil
}

func (h *APIHandler) ReloadDistricts(ctx context.Context, input *struct{}) (*struct{ Body service.DatasetStatus }, error) {
	if h.svc == nil || h.svc.Districts == nil {
		return nil, huma.Error503ServiceUnavailable("district service not available")
	}
	st, err := h.svc.Districts.Reload(ctx)
	if err != nil {
		return nil, huma.Error502BadGateway("reload failed, previous dataset kept", err)
	}
	return &struct{ Body service.DatasetStatus }{Body: st}, nil
}

func (h *APIHandler) GetDatasetStatus(ctx context.Context, input *struct{}) (*struct{ Body service.DatasetStatus }, error) {
	if h.svc == nil || h.svc.Districts == nil {
		return nil, huma.Error503ServiceUnavailable("district service not available")
	}
	return &struct{ Body service.DatasetStatus }{Body: h.svc.Districts.Status()}, nil
}
