// Package config loads the viewer configuration: map defaults, dataset
// location, layer ids, color ramp, sidebar buttons and fly-to targets.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

// ResetToken is the button token that returns the map to its initial view.
const ResetToken = "reset"

// Config is the full viewer configuration.
type Config struct {
	Map        MapConfig     `yaml:"map" mapstructure:"map"`
	Dataset    DatasetConfig `yaml:"dataset" mapstructure:"dataset"`
	Layers     LayersConfig  `yaml:"layers" mapstructure:"layers"`
	Sidebar    SidebarConfig `yaml:"sidebar" mapstructure:"sidebar"`
	Session    SessionConfig `yaml:"session" mapstructure:"session"`
	Ramp       []RampStop    `yaml:"ramp" mapstructure:"ramp"`
	Buttons    []Button      `yaml:"buttons" mapstructure:"buttons"`
	FlyTargets []FlyTarget   `yaml:"fly_targets" mapstructure:"fly_targets"`
}

// MapConfig describes how the map view is constructed.
type MapConfig struct {
	Container   string    `yaml:"container" mapstructure:"container"`
	StyleURL    string    `yaml:"style_url" mapstructure:"style_url"`
	AccessToken string    `yaml:"access_token" mapstructure:"access_token"`
	Center      []float64 `yaml:"center" mapstructure:"center"`
	Zoom        float64   `yaml:"zoom" mapstructure:"zoom"`
	Geocoder    bool      `yaml:"geocoder" mapstructure:"geocoder"`
}

// DatasetConfig locates the district feature collection and tunes the fetch.
type DatasetConfig struct {
	// Source is a file path (relative to the data dir) or an http(s) URL.
	Source           string `yaml:"source" mapstructure:"source"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts      int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int    `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
}

// Timeout returns the per-attempt fetch timeout.
func (d DatasetConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutSecs) * time.Second
}

// LayersConfig names the sources and layers registered on the map.
type LayersConfig struct {
	// SourceType is "geojson" (default) or "pmtiles".
	SourceType       string  `yaml:"source_type" mapstructure:"source_type"`
	TilesURL         string  `yaml:"tiles_url" mapstructure:"tiles_url"`
	TilesLayer       string  `yaml:"tiles_layer" mapstructure:"tiles_layer"`
	ChoroplethSource string  `yaml:"choropleth_source" mapstructure:"choropleth_source"`
	ChoroplethLayer  string  `yaml:"choropleth_layer" mapstructure:"choropleth_layer"`
	FillOpacity      float64 `yaml:"fill_opacity" mapstructure:"fill_opacity"`
	FillOutlineColor string  `yaml:"fill_outline_color" mapstructure:"fill_outline_color"`
	HighlightSource  string  `yaml:"highlight_source" mapstructure:"highlight_source"`
	HighlightLayer   string  `yaml:"highlight_layer" mapstructure:"highlight_layer"`
	HighlightColor   string  `yaml:"highlight_color" mapstructure:"highlight_color"`
	HighlightWidth   float64 `yaml:"highlight_width" mapstructure:"highlight_width"`
	HighlightOpacity float64 `yaml:"highlight_opacity" mapstructure:"highlight_opacity"`
	BeforeLayer      string  `yaml:"before_layer" mapstructure:"before_layer"`
	WaterLayer       string  `yaml:"water_layer" mapstructure:"water_layer"`
	WaterColor       string  `yaml:"water_color" mapstructure:"water_color"`
}

// SidebarConfig holds the sidebar copy.
type SidebarConfig struct {
	Title           string `yaml:"title" mapstructure:"title"`
	DefaultPrompt   string `yaml:"default_prompt" mapstructure:"default_prompt"`
	PopulationLabel string `yaml:"population_label" mapstructure:"population_label"`
}

// SessionConfig bounds how long an idle browser session is kept.
type SessionConfig struct {
	IdleMinutes int `yaml:"idle_minutes" mapstructure:"idle_minutes"`
}

// IdleTimeout returns the session idle timeout.
func (s SessionConfig) IdleTimeout() time.Duration {
	return time.Duration(s.IdleMinutes) * time.Minute
}

// RampStop is one breakpoint of the choropleth color ramp.
type RampStop struct {
	Value float64 `yaml:"value" mapstructure:"value"`
	Color string  `yaml:"color" mapstructure:"color"`
}

// Button is a sidebar navigation button.
type Button struct {
	Token string `yaml:"token" mapstructure:"token" json:"token" doc:"District id or reset"`
	Label string `yaml:"label" mapstructure:"label" json:"label" doc:"Button text"`
}

// FlyTarget is the camera destination for a district button.
type FlyTarget struct {
	ID     string    `yaml:"id" mapstructure:"id" json:"id" doc:"District id"`
	Center []float64 `yaml:"center" mapstructure:"center" json:"center" doc:"Camera center [lng, lat]"`
	Zoom   float64   `yaml:"zoom" mapstructure:"zoom" json:"zoom" doc:"Camera zoom"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Map: MapConfig{
			Container: "mapContainer",
			StyleURL:  "mapbox://styles/mapbox/light-v10",
			Center:    []float64{-73.882646, 40.810616},
			Zoom:      9.3,
			Geocoder:  true,
		},
		Dataset: DatasetConfig{
			Source:           "districts-with-population.geojson",
			TimeoutSecs:      15,
			MaxAttempts:      3,
			InitialBackoffMs: 500,
		},
		Layers: LayersConfig{
			SourceType:       "geojson",
			TilesLayer:       "districts",
			ChoroplethSource: "nyc-cd",
			ChoroplethLayer:  "nyc-cd",
			FillOpacity:      0.8,
			FillOutlineColor: "#ccc",
			HighlightSource:  "highlight-feature",
			HighlightLayer:   "highlight-line",
			HighlightColor:   "orange",
			HighlightWidth:   2,
			HighlightOpacity: 0.9,
			BeforeLayer:      "waterway-label",
			WaterLayer:       "water",
			WaterColor:       "#c9f4ff",
		},
		Sidebar: SidebarConfig{
			Title:           "NYC Community Districts",
			DefaultPrompt:   "Click a district for more information",
			PopulationLabel: "2010 Population: ",
		},
		Session: SessionConfig{IdleMinutes: 30},
		Ramp: []RampStop{
			{Value: 0, Color: "#f1eef6"},
			{Value: 50000, Color: "#bdc9e1"},
			{Value: 100000, Color: "#74a9cf"},
			{Value: 250000, Color: "#2b8cbe"},
			{Value: 500000, Color: "#045a8d"},
		},
		Buttons: []Button{
			{Token: "306", Label: "Park Slope"},
			{Token: "101", Label: "Financial District"},
			{Token: "202", Label: "Hunts Point"},
			{Token: ResetToken, Label: "Reset"},
		},
		FlyTargets: []FlyTarget{
			{ID: "306", Center: []float64{-73.991631, 40.677715}, Zoom: 13},
			{ID: "101", Center: []float64{-74.005854, 40.712484}, Zoom: 13},
			{ID: "202", Center: []float64{-73.882646, 40.810616}, Zoom: 13},
		},
	}
}

// Load reads configuration from path (or ./choropleth.yaml when path is
// empty), applies CHOROPLETH_* environment overrides and validates it.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CHOROPLETH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("choropleth")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, eris.Wrap(err, "config: read")
		}
	}

	// Lists from the file replace the defaults wholesale instead of being
	// merged into them element by element.
	cfg := Default()
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) { dc.ZeroFields = true }); err != nil {
		return nil, eris.Wrap(err, "config: decode")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("map.container", d.Map.Container)
	v.SetDefault("map.style_url", d.Map.StyleURL)
	v.SetDefault("map.access_token", d.Map.AccessToken)
	v.SetDefault("map.zoom", d.Map.Zoom)
	v.SetDefault("map.geocoder", d.Map.Geocoder)

	v.SetDefault("dataset.source", d.Dataset.Source)
	v.SetDefault("dataset.timeout_secs", d.Dataset.TimeoutSecs)
	v.SetDefault("dataset.max_attempts", d.Dataset.MaxAttempts)
	v.SetDefault("dataset.initial_backoff_ms", d.Dataset.InitialBackoffMs)

	v.SetDefault("layers.source_type", d.Layers.SourceType)
	v.SetDefault("layers.tiles_url", d.Layers.TilesURL)
	v.SetDefault("layers.tiles_layer", d.Layers.TilesLayer)
	v.SetDefault("layers.choropleth_source", d.Layers.ChoroplethSource)
	v.SetDefault("layers.choropleth_layer", d.Layers.ChoroplethLayer)
	v.SetDefault("layers.fill_opacity", d.Layers.FillOpacity)
	v.SetDefault("layers.fill_outline_color", d.Layers.FillOutlineColor)
	v.SetDefault("layers.highlight_source", d.Layers.HighlightSource)
	v.SetDefault("layers.highlight_layer", d.Layers.HighlightLayer)
	v.SetDefault("layers.highlight_color", d.Layers.HighlightColor)
	v.SetDefault("layers.highlight_width", d.Layers.HighlightWidth)
	v.SetDefault("layers.highlight_opacity", d.Layers.HighlightOpacity)
	v.SetDefault("layers.before_layer", d.Layers.BeforeLayer)
	v.SetDefault("layers.water_layer", d.Layers.WaterLayer)
	v.SetDefault("layers.water_color", d.Layers.WaterColor)

	v.SetDefault("sidebar.title", d.Sidebar.Title)
	v.SetDefault("sidebar.default_prompt", d.Sidebar.DefaultPrompt)
	v.SetDefault("sidebar.population_label", d.Sidebar.PopulationLabel)

	v.SetDefault("session.idle_minutes", d.Session.IdleMinutes)
}

// Validate checks the invariants the viewer depends on.
func (c *Config) Validate() error {
	if len(c.Map.Center) != 2 {
		return fmt.Errorf("config: map.center must be [lng, lat], got %v", c.Map.Center)
	}
	if c.Map.Zoom < 0 {
		return fmt.Errorf("config: map.zoom must be >= 0")
	}
	if c.Dataset.Source == "" {
		return fmt.Errorf("config: dataset.source is required")
	}
	if len(c.Ramp) < 2 {
		return fmt.Errorf("config: ramp needs at least two stops")
	}
	for i := 1; i < len(c.Ramp); i++ {
		if c.Ramp[i].Value <= c.Ramp[i-1].Value {
			return fmt.Errorf("config: ramp stops must be strictly increasing (stop %d)", i)
		}
	}
	seen := map[string]bool{}
	for _, t := range c.FlyTargets {
		if t.ID == "" || t.ID == ResetToken {
			return fmt.Errorf("config: fly target id %q is reserved or empty", t.ID)
		}
		if len(t.Center) != 2 {
			return fmt.Errorf("config: fly target %q center must be [lng, lat]", t.ID)
		}
		if seen[t.ID] {
			return fmt.Errorf("config: duplicate fly target %q", t.ID)
		}
		seen[t.ID] = true
	}
	for _, b := range c.Buttons {
		if b.Token == "" {
			return fmt.Errorf("config: button %q has no token", b.Label)
		}
		if b.Label == "" {
			return fmt.Errorf("config: button %q has no label", b.Token)
		}
	}
	switch c.Layers.SourceType {
	case "geojson":
	case "pmtiles":
		if c.Layers.TilesURL == "" {
			return fmt.Errorf("config: layers.tiles_url is required for pmtiles sources")
		}
	default:
		return fmt.Errorf("config: unknown layers.source_type %q", c.Layers.SourceType)
	}
	return nil
}
