// Package server wires the choropleth viewer's HTTP surface: the viewer
// page, the Datastar SSE endpoints, the REST API, tiles and metrics.
package server

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-choropleth/internal/api"
	viewerapi "github.com/joeblew999/plat-choropleth/internal/api/viewer"
	"github.com/joeblew999/plat-choropleth/internal/config"
	"github.com/joeblew999/plat-choropleth/internal/db"
	"github.com/joeblew999/plat-choropleth/internal/district"
	"github.com/joeblew999/plat-choropleth/internal/humastar"
	"github.com/joeblew999/plat-choropleth/internal/logging"
	"github.com/joeblew999/plat-choropleth/internal/metrics"
	"github.com/joeblew999/plat-choropleth/internal/resilience"
	"github.com/joeblew999/plat-choropleth/internal/service"
	"github.com/joeblew999/plat-choropleth/internal/style"
	"github.com/joeblew999/plat-choropleth/internal/templates"
	"github.com/joeblew999/plat-choropleth/internal/tiler"
	"github.com/joeblew999/plat-choropleth/internal/tiler/gotiler"
	"github.com/joeblew999/plat-choropleth/internal/tiler/tippecanoe"
	"github.com/joeblew999/plat-choropleth/internal/viewer"
	"github.com/joeblew999/plat-choropleth/web"
)

const (
	// sweepInterval is how often idle sessions are evicted.
	sweepInterval = time.Minute
	// dbSyncInterval bounds how stale the DuckDB table can get when a bus
	// event is dropped.
	dbSyncInterval = 30 * time.Second
)

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string
	// WebDir overrides the embedded web assets with a directory on disk.
	WebDir string
	// DisableDB skips opening DuckDB.
	DisableDB bool
	// Tiler selects the tile engine: "go" (default) or "tippecanoe".
	Tiler  string
	Viewer *config.Config
}

// Server is the choropleth HTTP server.
type Server struct {
	config    Config
	router    chi.Router
	humaAPI   huma.API
	log       zerolog.Logger
	metrics   *metrics.Metrics
	db        *db.Store
	ramp      *style.Ramp
	districts *service.DistrictService
	tiles     *service.TileService
	sessions  *viewer.Store
	renderer  *templates.Renderer
	web       fs.FS

	// dbVersion is the dataset version last copied into DuckDB.
	dbVersion atomic.Int64
}

// New creates a new server. Nothing runs in the background until Start.
func New(cfg Config, log zerolog.Logger) (*Server, error) {
	if cfg.Viewer == nil {
		d := config.Default()
		cfg.Viewer = &d
	}
	vc := cfg.Viewer

	webFS, err := webAssets(cfg.WebDir)
	if err != nil {
		return nil, err
	}
	tmplFS, err := fs.Sub(webFS, "templates")
	if err != nil {
		return nil, err
	}
	renderer, err := templates.New(tmplFS)
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	ramp, err := style.NewRamp(district.PropPopulation, vc.Ramp)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	bus := service.NewEventBus()
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = vc.Dataset.MaxAttempts
	retry.InitialBackoff = time.Duration(vc.Dataset.InitialBackoffMs) * time.Millisecond
	loader := district.NewLoader(cfg.DataDir, vc.Dataset.Timeout(), retry, log)
	districts := service.NewDistrictService(loader, vc.Dataset.Source, api.DatasetPath, bus, m, log)

	s := &Server{
		config:    cfg,
		log:       log,
		metrics:   m,
		ramp:      ramp,
		districts: districts,
		tiles:     service.NewTileService(cfg.DataDir, newTiler(cfg.Tiler, log), bus, log),
		renderer:  renderer,
		web:       webFS,
	}
	s.sessions = viewer.NewStore(viewer.Deps{
		Config:  vc,
		Dataset: districts,
		Ramp:    ramp,
		Metrics: m,
		Log:     log,
	}, vc.Session.IdleTimeout())

	if !cfg.DisableDB {
		store, err := db.Open(db.Config{DataDir: cfg.DataDir, DBName: "choropleth"}, log)
		if err != nil {
			log.Warn().Err(err).Msg("duckdb unavailable, /api/v1/query disabled")
		} else {
			s.db = store
		}
	}

	s.router = chi.NewRouter()
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(m.Middleware)
	s.router.Use(logging.RequestLogger(log))

	humaConfig := huma.DefaultConfig("plat-choropleth API", api.Version)
	humaConfig.Info.Description = "NYC community district choropleth: district data, map style and the Datastar viewer endpoints."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, humastar.LinkTransformer(api.Links()))
	s.humaAPI = humachi.New(s.router, humaConfig)

	s.routes()
	return s, nil
}

// newTiler picks the tile engine, falling back to the in-process one when
// tippecanoe is not installed.
func newTiler(name string, log zerolog.Logger) tiler.Tiler {
	if name == "tippecanoe" {
		tp := tippecanoe.New("", log)
		if tp.Available() {
			return tp
		}
		log.Warn().Msg("tippecanoe not found on PATH, using the go tiler")
	}
	return gotiler.New()
}

func webAssets(dir string) (fs.FS, error) {
	if dir == "" {
		return web.FS, nil
	}
	if _, err := os.Stat(filepath.Join(dir, "templates")); err != nil {
		return nil, fmt.Errorf("web dir %s: %w", dir, err)
	}
	return os.DirFS(dir), nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Districts returns the shared district dataset service.
func (s *Server) Districts() *service.DistrictService { return s.districts }

// Tiles returns the tile archive service.
func (s *Server) Tiles() *service.TileService { return s.tiles }

// Sessions returns the live viewer sessions.
func (s *Server) Sessions() *viewer.Store { return s.sessions }

// Start runs the session janitor and keeps DuckDB in sync with the dataset
// until ctx is done. The dataset is loaded eagerly so the first page view
// does not pay for it; a failure is logged and retried on demand.
func (s *Server) Start(ctx context.Context) {
	go s.sessions.Run(ctx, sweepInterval)
	if s.db != nil {
		// Subscribe before the eager load so its event is not missed.
		ch := s.districts.Bus().Subscribe()
		go s.syncDB(ctx, ch, dbSyncInterval)
	}
	go func() {
		if _, err := s.districts.Dataset(ctx); err != nil {
			s.log.Warn().Err(err).Msg("initial district load failed")
		}
	}()
}

// syncDB mirrors every successfully loaded dataset into the districts table.
// Bus events trigger a sync; the ticker catches events the bus dropped.
func (s *Server) syncDB(ctx context.Context, ch chan service.Event, interval time.Duration) {
	defer s.districts.Bus().Unsubscribe(ch)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.syncDistricts(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			s.syncDistricts(ctx)
		case <-ticker.C:
			s.syncDistricts(ctx)
		}
	}
}

// syncDistricts copies the current dataset into DuckDB until the synced
// version matches the loaded one.
func (s *Server) syncDistricts(ctx context.Context) {
	for {
		v := s.districts.Version()
		if v == 0 || int64(v) == s.dbVersion.Load() {
			return
		}
		c := s.districts.Current()
		if c == nil {
			return
		}
		if err := s.db.SyncDistricts(ctx, c); err != nil {
			s.log.Error().Err(err).Msg("sync districts table")
			return
		}
		s.dbVersion.Store(int64(v))
		s.log.Debug().Int("rows", c.Len()).Int("version", v).Msg("districts table synced")
	}
}

// Close closes server resources.
func (s *Server) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Server) routes() {
	// Register Huma REST API routes (OpenAPI-documented JSON endpoints)
	api.RegisterRoutes(s.humaAPI, &api.Services{
		Config:    s.config.Viewer,
		Ramp:      s.ramp,
		Districts: s.districts,
		Tiles:     s.tiles,
	})
	api.NewInfoHandler(s.config.DataDir, s.db != nil, s.districts, s.sessions).RegisterRoutes(s.humaAPI)
	api.NewDBHandler(s.db).RegisterRoutes(s.humaAPI)

	// Viewer SSE routes using Huma + Datastar SDK
	viewerapi.NewHandler(s.sessions, s.districts.Bus(), s.districts.DataURL, s.log).RegisterRoutes(s.humaAPI)

	s.router.Handle("/metrics", s.metrics.Handler())

	static, err := fs.Sub(s.web, "static")
	if err == nil {
		s.router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	}
	s.router.Handle("/tiles/*", http.StripPrefix("/tiles/", s.handleTiles(s.tiles.TilesDir())))

	// Page routes
	s.router.Get("/", s.handleViewer)
}

func (s *Server) handleTiles(tilesDir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		http.FileServer(http.Dir(tilesDir)).ServeHTTP(w, r)
	})
}
