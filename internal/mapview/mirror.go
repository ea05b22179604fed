package mapview

import (
	"slices"
	"strconv"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const visibilityNone = "none"

type mirrorLayer struct {
	spec   LayerSpec
	paint  map[string]any
	layout map[string]any
}

// Mirror is an Engine that records state and queues commands for the page
// shim. It is safe for concurrent use.
type Mirror struct {
	mu       sync.Mutex
	sources  map[string]*SourceSpec
	data     map[string]any
	layers   []*mirrorLayer // bottom to top
	controls []ControlSpec
	cursor   string
	queue    []Command
	flights  map[string]*Flight
	lastFly  *Flight
	target   *CameraTarget
	nextID   int
	notify   chan struct{}
}

// NewMirror returns a mirror preloaded with the named base-style layers,
// bottom to top.
func NewMirror(baseLayers ...string) *Mirror {
	m := &Mirror{
		sources: make(map[string]*SourceSpec),
		data:    make(map[string]any),
		flights: make(map[string]*Flight),
		notify:  make(chan struct{}, 1),
	}
	for _, id := range baseLayers {
		m.layers = append(m.layers, &mirrorLayer{
			spec:   LayerSpec{ID: id},
			paint:  map[string]any{},
			layout: map[string]any{},
		})
	}
	return m
}

// Notify receives a value whenever new commands are queued.
func (m *Mirror) Notify() <-chan struct{} { return m.notify }

// Drain returns and clears the queued commands.
func (m *Mirror) Drain() []Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.queue
	m.queue = nil
	return out
}

func (m *Mirror) push(c Command) {
	m.queue = append(m.queue, c)
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *Mirror) layerIndex(id string) int {
	return slices.IndexFunc(m.layers, func(l *mirrorLayer) bool { return l.spec.ID == id })
}

func (m *Mirror) AddControl(c ControlSpec) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.controls = append(m.controls, c)
	m.push(Command{Op: OpAddControl, Control: &c})
}

func (m *Mirror) AddSource(id string, s SourceSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[id]; ok {
		return ErrDuplicateSource
	}
	m.sources[id] = &s
	m.data[id] = s.Data
	m.push(Command{Op: OpAddSource, ID: id, Source: &s})
	return nil
}

func (m *Mirror) AddLayer(l LayerSpec, before string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.layerIndex(l.ID) >= 0 {
		return ErrDuplicateLayer
	}
	if _, ok := m.sources[l.Source]; !ok {
		return ErrUnknownSource
	}
	ml := &mirrorLayer{spec: l, paint: copyProps(l.Paint), layout: copyProps(l.Layout)}
	if i := m.layerIndex(before); before != "" && i >= 0 {
		m.layers = slices.Insert(m.layers, i, ml)
	} else {
		m.layers = append(m.layers, ml)
	}
	m.push(Command{Op: OpAddLayer, Layer: &l, Before: before})
	return nil
}

func (m *Mirror) SetPaintProperty(layer, prop string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.layerIndex(layer)
	if i < 0 {
		return ErrUnknownLayer
	}
	m.layers[i].paint[prop] = value
	m.push(Command{Op: OpSetPaintProperty, ID: layer, Prop: prop, Value: value})
	return nil
}

func (m *Mirror) SetLayoutProperty(layer, prop string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.layerIndex(layer)
	if i < 0 {
		return ErrUnknownLayer
	}
	m.layers[i].layout[prop] = value
	m.push(Command{Op: OpSetLayoutProperty, ID: layer, Prop: prop, Value: value})
	return nil
}

// SetSourceData replaces a source's data. A bare orb.Geometry is sent as a
// GeoJSON geometry object.
func (m *Mirror) SetSourceData(source string, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[source]; !ok {
		return ErrUnknownSource
	}
	m.data[source] = data
	wire := data
	if g, ok := data.(orb.Geometry); ok {
		wire = geojson.NewGeometry(g)
	}
	m.push(Command{Op: OpSetSourceData, ID: source, Value: wire})
	return nil
}

// QueryRenderedFeatures hit-tests visible layers, topmost layer first. With
// no layer ids every layer is considered.
func (m *Mirror) QueryRenderedFeatures(p orb.Point, layers ...string) []*geojson.Feature {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*geojson.Feature
	for i := len(m.layers) - 1; i >= 0; i-- {
		l := m.layers[i]
		if len(layers) > 0 && !slices.Contains(layers, l.spec.ID) {
			continue
		}
		if l.layout["visibility"] == visibilityNone {
			continue
		}
		src, ok := m.sources[l.spec.Source]
		if !ok || src.Query == nil {
			continue
		}
		out = append(out, src.Query.HitTest(p)...)
	}
	return out
}

// FlyTo queues a camera animation and interrupts any flight still pending.
func (m *Mirror) FlyTo(t CameraTarget) *Flight {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastFly != nil {
		m.lastFly.resolve(true)
		delete(m.flights, m.lastFly.ID)
	}
	m.nextID++
	f := newFlight(strconv.Itoa(m.nextID), t)
	m.flights[f.ID] = f
	m.lastFly = f
	m.target = &t

	zoom := t.Zoom
	m.push(Command{
		Op:       OpFlyTo,
		Center:   []float64{t.Center.Lon(), t.Center.Lat()},
		Zoom:     &zoom,
		FlightID: f.ID,
	})
	return f
}

// CompleteFlight resolves the flight with the given id. It reports false for
// unknown or already resolved flights.
func (m *Mirror) CompleteFlight(id string) bool {
	m.mu.Lock()
	f, ok := m.flights[id]
	if ok {
		delete(m.flights, id)
		if m.lastFly == f {
			m.lastFly = nil
		}
	}
	m.mu.Unlock()
	return ok && f.resolve(false)
}

func (m *Mirror) SetCursor(cursor string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cursor == cursor {
		return
	}
	m.cursor = cursor
	m.push(Command{Op: OpSetCursor, Value: cursor})
}

// Cursor returns the current canvas cursor.
func (m *Mirror) Cursor() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

// HasSource reports whether a source id is registered.
func (m *Mirror) HasSource(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sources[id]
	return ok
}

// SourceData returns the data last set on a source.
func (m *Mirror) SourceData(id string) any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[id]
}

// LayerIDs returns layer ids bottom to top.
func (m *Mirror) LayerIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, len(m.layers))
	for i, l := range m.layers {
		ids[i] = l.spec.ID
	}
	return ids
}

// Paint returns a layer's current paint property.
func (m *Mirror) Paint(layer, prop string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.layerIndex(layer)
	if i < 0 {
		return nil, false
	}
	v, ok := m.layers[i].paint[prop]
	return v, ok
}

// Layout returns a layer's current layout property.
func (m *Mirror) Layout(layer, prop string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.layerIndex(layer)
	if i < 0 {
		return nil, false
	}
	v, ok := m.layers[i].layout[prop]
	return v, ok
}

// Controls returns the attached controls.
func (m *Mirror) Controls() []ControlSpec {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.controls)
}

// Target returns the most recent fly-to destination.
func (m *Mirror) Target() (CameraTarget, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.target == nil {
		return CameraTarget{}, false
	}
	return *m.target, true
}

// LastFlight returns the most recent unresolved flight, or nil.
func (m *Mirror) LastFlight() *Flight {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastFly
}

func copyProps(p map[string]any) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
