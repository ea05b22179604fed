package viewer

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-choropleth/internal/config"
	"github.com/joeblew999/plat-choropleth/internal/controller"
	"github.com/joeblew999/plat-choropleth/internal/district"
	"github.com/joeblew999/plat-choropleth/internal/mapview"
	"github.com/joeblew999/plat-choropleth/internal/style"
)

// ErrAlreadyBootstrapped is returned by OnStyleLoad after a successful run.
var ErrAlreadyBootstrapped = errors.New("viewer: already bootstrapped")

// Dataset supplies the shared district collection and the URL the engine
// fetches it from.
type Dataset interface {
	Dataset(ctx context.Context) (*district.Collection, error)
	DataURL() string
	mapview.Queryable
	controller.GeometryLookup
}

// MapOptions construct the browser map.
type MapOptions struct {
	Container   string                `json:"container"`
	Style       string                `json:"style"`
	AccessToken string                `json:"accessToken"`
	Center      []float64             `json:"center"`
	Zoom        float64               `json:"zoom"`
	Controls    []mapview.ControlSpec `json:"-"`
}

// NewMapOptions derives map options from configuration.
func NewMapOptions(cfg config.MapConfig) MapOptions {
	opts := MapOptions{
		Container:   cfg.Container,
		Style:       cfg.StyleURL,
		AccessToken: cfg.AccessToken,
		Center:      cfg.Center,
		Zoom:        cfg.Zoom,
	}
	if cfg.Geocoder {
		opts.Controls = append(opts.Controls, mapview.ControlSpec{Kind: "geocoder", Position: "top-right"})
	}
	return opts
}

// Home is the initial camera.
func (o MapOptions) Home() mapview.CameraTarget {
	return mapview.CameraTarget{Center: orb.Point{o.Center[0], o.Center[1]}, Zoom: o.Zoom}
}

// Bootstrapper attaches controls when the map is built and runs dataset
// load plus layer registration once the style is ready.
type Bootstrapper struct {
	opts      MapOptions
	engine    mapview.Engine
	dataset   Dataset
	registrar *style.Registrar
	done      bool
}

// NewBootstrapper attaches the configured controls to engine.
func NewBootstrapper(opts MapOptions, engine mapview.Engine, dataset Dataset, registrar *style.Registrar) *Bootstrapper {
	for _, c := range opts.Controls {
		engine.AddControl(c)
	}
	return &Bootstrapper{opts: opts, engine: engine, dataset: dataset, registrar: registrar}
}

// Options returns the map construction options.
func (b *Bootstrapper) Options() MapOptions { return b.opts }

// Done reports whether the pipeline has completed.
func (b *Bootstrapper) Done() bool { return b.done }

// OnStyleLoad loads the dataset and registers the layers. A failed load
// leaves the bootstrapper ready to retry; after success further calls
// return ErrAlreadyBootstrapped and do nothing.
func (b *Bootstrapper) OnStyleLoad(ctx context.Context) error {
	if b.done {
		return ErrAlreadyBootstrapped
	}
	if _, err := b.dataset.Dataset(ctx); err != nil {
		return err
	}
	src := b.registrar.ChoroplethSource(b.dataset.DataURL(), b.dataset)
	if err := b.registrar.Register(b.engine, src); err != nil {
		return fmt.Errorf("register layers: %w", err)
	}
	b.done = true
	return nil
}
