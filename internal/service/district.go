package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-choropleth/internal/district"
	"github.com/joeblew999/plat-choropleth/internal/metrics"
)

// ErrNotLoaded is returned by lookups before any dataset has loaded.
var ErrNotLoaded = errors.New("district dataset not loaded")

// DatasetLoader loads a district collection from a source.
type DatasetLoader interface {
	Load(ctx context.Context, source string) (*district.Collection, error)
}

// DistrictService owns the district dataset shared by every session. The
// dataset is loaded on first use and replaced only by Reload.
type DistrictService struct {
	loader  DatasetLoader
	source  string
	dataURL string
	bus     *EventBus
	metrics *metrics.Metrics
	log     zerolog.Logger

	loadMu sync.Mutex // serializes loads

	mu       sync.RWMutex
	current  *district.Collection
	version  int
	loadedAt time.Time
	lastErr  error
}

// NewDistrictService creates a service loading from source. dataURL is the
// path the normalized collection is served at.
func NewDistrictService(loader DatasetLoader, source, dataURL string, bus *EventBus, m *metrics.Metrics, log zerolog.Logger) *DistrictService {
	if bus == nil {
		bus = NewEventBus()
	}
	return &DistrictService{
		loader:  loader,
		source:  source,
		dataURL: dataURL,
		bus:     bus,
		metrics: m,
		log:     log,
	}
}

// Bus returns the event bus load events are published on.
func (s *DistrictService) Bus() *EventBus { return s.bus }

// Source returns the configured dataset source.
func (s *DistrictService) Source() string { return s.source }

// Current returns the loaded dataset or nil.
func (s *DistrictService) Current() *district.Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Dataset returns the loaded dataset, loading it on first use. Concurrent
// callers share one load.
func (s *DistrictService) Dataset(ctx context.Context) (*district.Collection, error) {
	if c := s.Current(); c != nil {
		return c, nil
	}
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if c := s.Current(); c != nil {
		return c, nil
	}
	return s.load(ctx, "loaded")
}

// Reload fetches the dataset again and swaps it in on success. On failure
// the previous dataset stays in place.
func (s *DistrictService) Reload(ctx context.Context) (DatasetStatus, error) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	_, err := s.load(ctx, "reloaded")
	return s.Status(), err
}

func (s *DistrictService) load(ctx context.Context, action string) (*district.Collection, error) {
	start := time.Now()
	c, err := s.loader.Load(ctx, s.source)
	s.metrics.ObserveDatasetLoad(err, time.Since(start))

	s.mu.Lock()
	if err != nil {
		s.lastErr = err
		s.mu.Unlock()
		s.log.Error().Err(err).Str("source", s.source).Msg("district dataset load failed")
		s.bus.Publish(Event{Resource: "districts", Action: "failed"})
		return nil, err
	}
	s.current = c
	s.version++
	s.loadedAt = time.Now()
	s.lastErr = nil
	version := s.version
	s.mu.Unlock()

	s.bus.Publish(Event{Resource: "districts", Action: action, ID: strconv.Itoa(version)})
	return c, nil
}

// Version returns the dataset version, 0 before the first load.
func (s *DistrictService) Version() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// DataURL returns the URL of the served collection, versioned so engines
// refetch after a reload.
func (s *DistrictService) DataURL() string {
	v := s.Version()
	if v == 0 {
		return s.dataURL
	}
	return s.dataURL + "?v=" + strconv.Itoa(v)
}

// Geometry looks up a district geometry in the current dataset.
func (s *DistrictService) Geometry(boroCD string) (orb.Geometry, error) {
	c := s.Current()
	if c == nil {
		return nil, ErrNotLoaded
	}
	return c.Geometry(boroCD)
}

// HitTest hit-tests the current dataset; it returns nothing before a load.
func (s *DistrictService) HitTest(p orb.Point) []*geojson.Feature {
	c := s.Current()
	if c == nil {
		return nil
	}
	return c.HitTest(p)
}

// Status reports the dataset state.
func (s *DistrictService) Status() DatasetStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := DatasetStatus{
		Source:   s.source,
		Loaded:   s.current != nil,
		Version:  s.version,
		LoadedAt: s.loadedAt,
	}
	if s.current != nil {
		st.Features = s.current.Len()
		st.Invalid = s.current.Invalid()
	}
	if s.lastErr != nil {
		st.Error = s.lastErr.Error()
	}
	return st
}
