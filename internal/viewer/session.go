// Package viewer ties one browser tab to its map mirror, sidebar and
// interaction controller, and keeps the set of live sessions.
package viewer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-choropleth/internal/config"
	"github.com/joeblew999/plat-choropleth/internal/controller"
	"github.com/joeblew999/plat-choropleth/internal/district"
	"github.com/joeblew999/plat-choropleth/internal/mapview"
	"github.com/joeblew999/plat-choropleth/internal/metrics"
	"github.com/joeblew999/plat-choropleth/internal/style"
)

// ErrNotReady is returned for sidebar actions before the map has
// bootstrapped.
var ErrNotReady = errors.New("viewer: map not ready")

// LoadErrorMessage is shown in the sidebar when the dataset cannot be loaded.
const LoadErrorMessage = "District data could not be loaded."

// flightTimeout bounds how long a session waits for a move end.
const flightTimeout = 30 * time.Second

// Deps are the process-wide collaborators every session shares.
type Deps struct {
	Config  *config.Config
	Dataset Dataset
	Ramp    *style.Ramp
	Metrics *metrics.Metrics
	Log     zerolog.Logger
}

// Update is what a session needs to send to its browser after an event.
type Update struct {
	Commands []mapview.Command
	// Sidebar is nil when the sidebar did not change.
	Sidebar *controller.SidebarState
}

// Empty reports whether the update carries nothing.
func (u Update) Empty() bool { return len(u.Commands) == 0 && u.Sidebar == nil }

// Session is one browser tab. Its methods are safe for concurrent use;
// events are applied one at a time.
type Session struct {
	ID string

	mu      sync.Mutex
	cfg     *config.Config
	mirror  *mapview.Mirror
	sidebar *controller.SidebarState
	ctl     *controller.Controller
	boot    *Bootstrapper
	metrics *metrics.Metrics
	log     zerolog.Logger

	lastSeen atomic.Int64
	closed   chan struct{}
	once     sync.Once
}

// NewSession builds the per-tab state. The geocoder control is queued for
// the browser immediately.
func NewSession(id string, d Deps) *Session {
	cfg := d.Config
	mirror := mapview.NewMirror(cfg.Layers.WaterLayer, cfg.Layers.BeforeLayer)
	sidebar := controller.NewSidebarState(cfg.Sidebar.DefaultPrompt)
	opts := NewMapOptions(cfg.Map)
	log := d.Log.With().Str("session", id).Logger()

	s := &Session{
		ID:      id,
		cfg:     cfg,
		mirror:  mirror,
		sidebar: sidebar,
		boot:    NewBootstrapper(opts, mirror, d.Dataset, style.NewRegistrar(cfg.Layers, d.Ramp)),
		ctl: controller.New(controller.Options{
			Engine:      mirror,
			Sidebar:     sidebar,
			Lookup:      d.Dataset,
			Layers:      cfg.Layers,
			SidebarText: cfg.Sidebar,
			Home:        opts.Home(),
			Targets:     cfg.FlyTargets,
			Log:         log,
		}),
		metrics: d.Metrics,
		log:     log,
		closed:  make(chan struct{}),
	}
	s.touch()
	return s
}

func (s *Session) touch() { s.lastSeen.Store(time.Now().UnixNano()) }

// LastSeen returns when the session last handled an event.
func (s *Session) LastSeen() time.Time { return time.Unix(0, s.lastSeen.Load()) }

// Options returns the map construction options.
func (s *Session) Options() MapOptions { return s.boot.Options() }

// Notify receives a value whenever map commands are queued.
func (s *Session) Notify() <-chan struct{} { return s.mirror.Notify() }

// Closed is closed when the session is evicted.
func (s *Session) Closed() <-chan struct{} { return s.closed }

func (s *Session) close() { s.once.Do(func() { close(s.closed) }) }

// Do runs fn with the session locked and returns the resulting update.
func (s *Session) Do(fn func() error) (Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	err := fn()
	return s.pending(), err
}

// Pending drains queued commands and sidebar changes.
func (s *Session) Pending() Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending()
}

func (s *Session) pending() Update {
	u := Update{Commands: s.mirror.Drain()}
	if s.sidebar.TakeDirty() {
		snap := *s.sidebar
		u.Sidebar = &snap
	}
	return u
}

// Sidebar returns a copy of the sidebar state.
func (s *Session) Sidebar() controller.SidebarState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.sidebar
}

// Ready reports whether layers are registered.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boot.Done()
}

// StyleLoaded runs the bootstrap pipeline. Repeated calls after success are
// no-ops. A dataset failure is shown in the sidebar and returned.
func (s *Session) StyleLoaded(ctx context.Context) (Update, error) {
	s.metrics.IncViewerEvent("style_loaded")
	return s.Do(func() error {
		err := s.boot.OnStyleLoad(ctx)
		switch {
		case errors.Is(err, ErrAlreadyBootstrapped):
			return nil
		case err != nil:
			s.sidebar.SetError(LoadErrorMessage)
			return err
		}
		if s.sidebar.Error != "" {
			s.sidebar.SetError("")
		}
		s.log.Debug().Msg("map bootstrapped")
		return nil
	})
}

// Click handles a map click at p. Clicks before bootstrap do nothing.
func (s *Session) Click(p orb.Point) (Update, error) {
	s.metrics.IncViewerEvent("click")
	return s.Do(func() error {
		if !s.boot.Done() {
			return nil
		}
		_, err := s.ctl.HandleMapClick(p)
		return err
	})
}

// Pointer handles the pointer entering or leaving the choropleth layer.
func (s *Session) Pointer(enter bool) Update {
	u, _ := s.Do(func() error {
		s.ctl.HandlePointer(enter)
		return nil
	})
	return u
}

// Button handles a sidebar button. Unknown districts are logged and
// ignored; the returned error is for callers that want to report it.
func (s *Session) Button(token string) (Update, error) {
	s.metrics.IncViewerEvent("button")
	return s.Do(func() error {
		if !s.boot.Done() {
			return ErrNotReady
		}
		flight, err := s.ctl.HandleButton(token)
		if errors.Is(err, district.ErrNotFound) {
			s.log.Warn().Err(err).Str("token", token).Msg("ignoring button for unknown district")
		}
		if flight != nil {
			s.metrics.IncFlight("started")
			go s.watchFlight(flight)
		}
		return err
	})
}

// MoveEnd resolves the flight the engine finished. It reports whether the
// id matched a pending flight.
func (s *Session) MoveEnd(flightID string) bool {
	s.touch()
	return s.mirror.CompleteFlight(flightID)
}

// RefreshDataset points the choropleth source at url after a reload.
func (s *Session) RefreshDataset(url string) (Update, error) {
	return s.Do(func() error {
		if !s.boot.Done() || s.cfg.Layers.SourceType != "geojson" {
			return nil
		}
		return s.mirror.SetSourceData(s.cfg.Layers.ChoroplethSource, url)
	})
}

func (s *Session) watchFlight(f *mapview.Flight) {
	timer := time.NewTimer(flightTimeout)
	defer timer.Stop()
	select {
	case <-f.Done():
		if f.Interrupted() {
			s.metrics.IncFlight("interrupted")
		} else {
			s.metrics.IncFlight("completed")
		}
		s.log.Debug().Str("flight", f.ID).Bool("interrupted", f.Interrupted()).Msg("flight finished")
	case <-timer.C:
		s.metrics.IncFlight("timeout")
	case <-s.closed:
	}
}
