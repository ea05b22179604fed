package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-choropleth/internal/district"
	"github.com/joeblew999/plat-choropleth/internal/pmtiles"
	"github.com/joeblew999/plat-choropleth/internal/tiler"
)

// TileService manages PMTiles archives of the district layer.
type TileService struct {
	tilesDir string
	tiler    tiler.Tiler
	bus      *EventBus
	log      zerolog.Logger
}

// NewTileService creates a tile service rooted at dataDir/tiles.
func NewTileService(dataDir string, t tiler.Tiler, bus *EventBus, log zerolog.Logger) *TileService {
	return &TileService{
		tilesDir: filepath.Join(dataDir, "tiles"),
		tiler:    t,
		bus:      bus,
		log:      log,
	}
}

// TilesDir returns the path to the tiles directory.
func (s *TileService) TilesDir() string {
	return s.tilesDir
}

// List returns the PMTiles archives in the tiles directory. Files that are
// not valid archives are skipped.
func (s *TileService) List() ([]TileFile, error) {
	entries, err := os.ReadDir(s.tilesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []TileFile{}, nil
		}
		return nil, err
	}

	files := []TileFile{}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".pmtiles" {
			continue
		}
		tf, err := s.inspect(entry.Name())
		if err != nil {
			s.log.Debug().Err(err).Str("file", entry.Name()).Msg("skipping tile archive")
			continue
		}
		files = append(files, tf)
	}
	return files, nil
}

func (s *TileService) inspect(name string) (TileFile, error) {
	f, err := os.Open(filepath.Join(s.tilesDir, name))
	if err != nil {
		return TileFile{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return TileFile{}, err
	}
	h, err := pmtiles.ReadHeader(f)
	if err != nil {
		return TileFile{}, err
	}
	return TileFile{
		Name:    name,
		Size:    humanize.Bytes(uint64(info.Size())),
		MinZoom: int(h.MinZoom),
		MaxZoom: int(h.MaxZoom),
		Tiles:   h.AddressedTilesCount,
	}, nil
}

// Generate renders the collection into tilesDir/name, replacing any archive
// with the same name once the new one is complete.
func (s *TileService) Generate(c *district.Collection, name string, cfg tiler.Config) (TileFile, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return TileFile{}, fmt.Errorf("invalid archive name %q", name)
	}
	if !strings.HasSuffix(name, ".pmtiles") {
		name += ".pmtiles"
	}
	if err := os.MkdirAll(s.tilesDir, 0o755); err != nil {
		return TileFile{}, fmt.Errorf("create tiles directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.tilesDir, name+".*.tmp")
	if err != nil {
		return TileFile{}, err
	}
	defer os.Remove(tmp.Name())

	fc := geojson.NewFeatureCollection()
	fc.Features = c.Features()
	stats, err := s.tiler.Tile(fc, tmp, cfg)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return TileFile{}, fmt.Errorf("generate %s with %s tiler: %w", name, s.tiler.Name(), err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.tilesDir, name)); err != nil {
		return TileFile{}, err
	}

	s.log.Info().
		Str("file", name).
		Int("tiles", stats.Tiles).
		Int("min_zoom", stats.MinZoom).
		Int("max_zoom", stats.MaxZoom).
		Str("size", humanize.Bytes(uint64(stats.Bytes))).
		Msg("tile archive generated")
	if s.bus != nil {
		s.bus.Publish(Event{Resource: "tiles", Action: "generated", ID: name})
	}
	return s.inspect(name)
}
