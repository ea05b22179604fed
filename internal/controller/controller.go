// Package controller implements the district interaction state machine:
// map clicks select a district, sidebar buttons fly to a district or reset
// the view, and the pointer cursor tracks the choropleth layer.
package controller

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-choropleth/internal/config"
	"github.com/joeblew999/plat-choropleth/internal/district"
	"github.com/joeblew999/plat-choropleth/internal/mapview"
	"github.com/joeblew999/plat-choropleth/internal/numfmt"
)

// Visibility values for the choropleth layer.
const (
	Visible = "visible"
	Hidden  = "none"
)

// GeometryLookup finds a district geometry by boro_cd.
type GeometryLookup interface {
	Geometry(boroCD string) (orb.Geometry, error)
}

// Selection is the selected district. The zero value selects nothing.
type Selection struct {
	ID       string
	Geometry orb.Geometry
}

// IsNone reports whether nothing is selected.
func (s Selection) IsNone() bool { return s.Geometry == nil }

// Options configures a Controller.
type Options struct {
	Engine      mapview.Engine
	Sidebar     Sidebar
	Lookup      GeometryLookup
	Layers      config.LayersConfig
	SidebarText config.SidebarConfig
	// Home is the initial camera, restored by reset.
	Home    mapview.CameraTarget
	Targets []config.FlyTarget
	Log     zerolog.Logger
}

// Controller holds choropleth visibility and the selection. It is not safe
// for concurrent use; callers serialize events.
type Controller struct {
	engine  mapview.Engine
	sidebar Sidebar
	lookup  GeometryLookup
	layers  config.LayersConfig
	text    config.SidebarConfig
	home    mapview.CameraTarget
	targets map[string]mapview.CameraTarget
	log     zerolog.Logger

	visibility string
	selection  Selection
}

// New returns a controller with the choropleth visible and no selection.
func New(opts Options) *Controller {
	targets := make(map[string]mapview.CameraTarget, len(opts.Targets))
	for _, t := range opts.Targets {
		targets[t.ID] = mapview.CameraTarget{
			Center: orb.Point{t.Center[0], t.Center[1]},
			Zoom:   t.Zoom,
		}
	}
	return &Controller{
		engine:     opts.Engine,
		sidebar:    opts.Sidebar,
		lookup:     opts.Lookup,
		layers:     opts.Layers,
		text:       opts.SidebarText,
		home:       opts.Home,
		targets:    targets,
		log:        opts.Log,
		visibility: Visible,
	}
}

// Visibility returns the choropleth visibility, Visible or Hidden.
func (c *Controller) Visibility() string { return c.visibility }

// Selection returns the current selection.
func (c *Controller) Selection() Selection { return c.selection }

// HandleMapClick selects the topmost rendered district under p. It reports
// whether a district was hit.
func (c *Controller) HandleMapClick(p orb.Point) (bool, error) {
	hits := c.engine.QueryRenderedFeatures(p, c.layers.ChoroplethLayer)
	if len(hits) == 0 {
		return false, nil
	}
	f := hits[0]
	c.sidebar.SetDistrict(district.Name(f), c.populationText(district.Population(f)))
	return true, c.selectDistrict(district.BoroCD(f), f.Geometry)
}

// HandlePointer sets the canvas cursor as the pointer enters or leaves the
// choropleth layer.
func (c *Controller) HandlePointer(enter bool) {
	if enter {
		c.engine.SetCursor(mapview.CursorPointer)
		return
	}
	c.engine.SetCursor(mapview.CursorDefault)
}

// HandleButton runs the action bound to a sidebar button token. The returned
// flight is nil when the camera does not move. A token naming no district
// returns district.ErrNotFound and changes nothing.
func (c *Controller) HandleButton(token string) (*mapview.Flight, error) {
	if token == config.ResetToken {
		return c.reset()
	}
	return c.showDistrict(token)
}

func (c *Controller) reset() (*mapview.Flight, error) {
	flight := c.engine.FlyTo(c.home)
	if err := c.clearSelection(); err != nil {
		return flight, err
	}
	c.sidebar.SetDistrict(c.text.DefaultPrompt, "")
	c.sidebar.SetInfoVisible(true)
	return flight, c.setVisibility(Visible)
}

func (c *Controller) showDistrict(id string) (*mapview.Flight, error) {
	g, err := c.lookup.Geometry(id)
	if err == nil && g == nil {
		err = district.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("district %q: %w", id, err)
	}

	if err := c.selectDistrict(id, g); err != nil {
		return nil, err
	}
	c.sidebar.SetInfoVisible(false)
	if err := c.setVisibility(Hidden); err != nil {
		return nil, err
	}

	target, ok := c.targets[id]
	if !ok {
		c.log.Debug().Str("boro_cd", id).Msg("no fly target for district, camera unchanged")
		return nil, nil
	}
	return c.engine.FlyTo(target), nil
}

func (c *Controller) selectDistrict(id string, g orb.Geometry) error {
	c.selection = Selection{ID: id, Geometry: g}
	c.sidebar.SetResetEnabled(true)
	return c.syncHighlight()
}

func (c *Controller) clearSelection() error {
	c.selection = Selection{}
	c.sidebar.SetResetEnabled(false)
	return c.syncHighlight()
}

// syncHighlight writes the selection's geometry, or an empty collection, to
// the highlight source.
func (c *Controller) syncHighlight() error {
	var data any = geojson.NewFeatureCollection()
	if !c.selection.IsNone() {
		data = c.selection.Geometry
	}
	return c.engine.SetSourceData(c.layers.HighlightSource, data)
}

func (c *Controller) setVisibility(v string) error {
	c.visibility = v
	return c.engine.SetLayoutProperty(c.layers.ChoroplethLayer, "visibility", v)
}

func (c *Controller) populationText(pop float64) string {
	return c.text.PopulationLabel + numfmt.Abbrev(pop, 2)
}
